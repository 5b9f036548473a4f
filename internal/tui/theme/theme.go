package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/glabrego/moments-cli/internal/feed"
)

type Theme struct {
	Title      lipgloss.Style
	ModePill   lipgloss.Style
	TabActive  lipgloss.Style
	TabIdle    lipgloss.Style
	Category   lipgloss.Style
	LikeCount  lipgloss.Style
	ActiveLine lipgloss.Style
	MetaLabel  lipgloss.Style
	MetaValue  lipgloss.Style
	StateIdle  lipgloss.Style
	StateWarn  lipgloss.Style
	StateLoad  lipgloss.Style
	PageActive lipgloss.Style
	PageIdle   lipgloss.Style

	TitleLiked     lipgloss.Style
	TitleCommented lipgloss.Style
	TitlePlain     lipgloss.Style
	TitleBoth      lipgloss.Style
}

func Default() Theme {
	cpRosewater := lipgloss.Color("#f5e0dc")
	cpMauve := lipgloss.Color("#cba6f7")
	cpRed := lipgloss.Color("#f38ba8")
	cpPeach := lipgloss.Color("#fab387")
	cpYellow := lipgloss.Color("#f9e2af")
	cpGreen := lipgloss.Color("#a6e3a1")
	cpTeal := lipgloss.Color("#94e2d5")
	cpLavender := lipgloss.Color("#b4befe")
	cpText := lipgloss.Color("#cdd6f4")
	cpSubtext0 := lipgloss.Color("#a6adc8")
	cpSubtext1 := lipgloss.Color("#bac2de")
	cpOverlay1 := lipgloss.Color("#7f849c")
	cpSurface0 := lipgloss.Color("#313244")

	return Theme{
		Title:      lipgloss.NewStyle().Bold(true).Foreground(cpMauve),
		ModePill:   lipgloss.NewStyle().Foreground(cpLavender).Background(cpSurface0).Padding(0, 1),
		TabActive:  lipgloss.NewStyle().Bold(true).Foreground(cpSurface0).Background(cpMauve).Padding(0, 1),
		TabIdle:    lipgloss.NewStyle().Foreground(cpSubtext0).Padding(0, 1),
		Category:   lipgloss.NewStyle().Foreground(cpTeal),
		LikeCount:  lipgloss.NewStyle().Foreground(cpYellow).Bold(true),
		ActiveLine: lipgloss.NewStyle().Background(cpSurface0).Foreground(cpText),
		MetaLabel:  lipgloss.NewStyle().Foreground(cpOverlay1),
		MetaValue:  lipgloss.NewStyle().Foreground(cpSubtext1),
		StateIdle:  lipgloss.NewStyle().Foreground(cpGreen),
		StateWarn:  lipgloss.NewStyle().Foreground(cpRed),
		StateLoad:  lipgloss.NewStyle().Foreground(cpPeach),
		PageActive: lipgloss.NewStyle().Bold(true).Underline(true).Foreground(cpMauve),
		PageIdle:   lipgloss.NewStyle().Foreground(cpSubtext1),
		TitleLiked: lipgloss.NewStyle().Bold(true).Foreground(cpRosewater),
		TitleCommented: lipgloss.NewStyle().
			Italic(true).
			Foreground(cpLavender),
		TitlePlain: lipgloss.NewStyle().Foreground(cpText),
		TitleBoth:  lipgloss.NewStyle().Bold(true).Italic(true).Foreground(cpRosewater),
	}
}

// StyleItemTitle highlights items the user liked or that have comments.
func (t Theme) StyleItemTitle(item feed.Item, title string) string {
	if title == "" {
		return title
	}
	commented := item.CommentCount > 0
	switch {
	case item.Liked && commented:
		return t.TitleBoth.Render(title)
	case item.Liked:
		return t.TitleLiked.Render(title)
	case commented:
		return t.TitleCommented.Render(title)
	default:
		return t.TitlePlain.Render(title)
	}
}

func (t Theme) RenderActiveLine(active bool, line string) string {
	if !active {
		return line
	}
	return t.ActiveLine.Render(line)
}
