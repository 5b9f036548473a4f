package view

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/glabrego/moments-cli/internal/feed"
	tuitheme "github.com/glabrego/moments-cli/internal/tui/theme"
)

var reANSICodes = regexp.MustCompile(`\x1b\[[0-9;]*m`)

type ItemLineParams struct {
	Item         feed.Item
	Now          time.Time
	RelativeTime bool
	ShowNumbers  bool
	Position     int
	Active       bool
	Pending      bool
	Width        int
}

// RenderItemLine draws one row of the page: cursor, optional number, title
// with category and counters on the right.
func RenderItemLine(p ItemLineParams, th tuitheme.Theme) string {
	cursorMarker := " "
	if p.Active {
		cursorMarker = ">"
	}
	pendingMarker := " "
	if p.Pending {
		pendingMarker = "~"
	}

	prefix := fmt.Sprintf("  %s%s ", cursorMarker, pendingMarker)
	if p.ShowNumbers {
		prefix = fmt.Sprintf("  %s%s%2d. ", cursorMarker, pendingMarker, p.Position+1)
	}

	count := counters(p.Item)
	date := " [" + dateLabel(p) + "]"
	right := count + date
	available := p.Width - visibleLen(prefix) - 1 - visibleLen(right)
	if available < 1 {
		available = 1
	}

	label := strings.TrimSpace(p.Item.Title)
	if label == "" {
		label = "(untitled)"
	}
	if p.Item.Category != "" {
		label = p.Item.Category + " | " + label
	}
	label = truncateRunes(label, available)
	gap := p.Width - visibleLen(prefix) - visibleLen(label) - visibleLen(right)
	if gap < 1 {
		gap = 1
	}
	styled := th.StyleItemTitle(p.Item, label)
	return th.RenderActiveLine(p.Active, prefix+styled+strings.Repeat(" ", gap)+th.LikeCount.Render(count)+date)
}

func counters(item feed.Item) string {
	heart := "♡"
	if item.Liked {
		heart = "♥"
	}
	return fmt.Sprintf("%s%d ✎%d", heart, item.LikeCount, item.CommentCount)
}

func dateLabel(p ItemLineParams) string {
	ts, ok := p.Item.Timestamp()
	if !ok {
		return "undated"
	}
	if p.RelativeTime {
		return RelativeTimeLabel(p.Now, ts)
	}
	return ts.UTC().Format(time.DateOnly)
}

func RelativeTimeLabel(now, then time.Time) string {
	if now.IsZero() {
		now = time.Now()
	}
	if then.IsZero() {
		return "unknown"
	}
	if then.After(now) {
		return "just now"
	}
	d := now.Sub(then)
	if d < time.Minute {
		return "just now"
	}
	if d < time.Hour {
		n := int(d / time.Minute)
		if n == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", n)
	}
	if d < 24*time.Hour {
		n := int(d / time.Hour)
		if n == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", n)
	}
	n := int(d / (24 * time.Hour))
	if n == 1 {
		return "1 day ago"
	}
	return fmt.Sprintf("%d days ago", n)
}

func truncateRunes(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return strings.Repeat(".", maxLen)
	}
	runes := []rune(s)
	return string(runes[:maxLen-3]) + "..."
}

func visibleLen(s string) int {
	return utf8.RuneCountInString(StripANSI(s))
}

func StripANSI(s string) string {
	return reANSICodes.ReplaceAllString(s, "")
}
