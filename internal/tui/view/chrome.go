package view

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/glabrego/moments-cli/internal/pagination"
	tuitheme "github.com/glabrego/moments-cli/internal/tui/theme"
)

func Toolbar(inDetail bool) string {
	if inDetail {
		return "j/k scroll | [ ] prev/next | l like | C comment | y copy | esc back | ? help"
	}
	return "j/k move | ←/→ page | tab timeline | c/a/s category/attr/sort | / search | l like | C comment | r reload | ? help"
}

// Tabs renders the timeline switcher with the active timeline highlighted.
func Tabs(names []string, active int, th tuitheme.Theme) string {
	parts := make([]string, 0, len(names))
	for i, name := range names {
		if i == active {
			parts = append(parts, th.TabActive.Render(name))
			continue
		}
		parts = append(parts, th.TabIdle.Render(name))
	}
	return strings.Join(parts, " ")
}

// PageBar renders the compact page-number bar; pagination.Ellipsis entries
// become "…".
func PageBar(pages []int, current int, th tuitheme.Theme) string {
	if len(pages) == 0 {
		return ""
	}
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		switch {
		case p == pagination.Ellipsis:
			parts = append(parts, th.PageIdle.Render("…"))
		case p == current:
			parts = append(parts, th.PageActive.Render("["+strconv.Itoa(p)+"]"))
		default:
			parts = append(parts, th.PageIdle.Render(strconv.Itoa(p)))
		}
	}
	return strings.Join(parts, " ")
}

type FooterParams struct {
	Mode       string
	Category   string
	Attribute  string
	Tags       []string
	Sort       string
	Search     string
	Page       int
	TotalPages int
	TotalItems int
	PerPage    int
}

func Footer(p FooterParams, th tuitheme.Theme) string {
	parts := []string{
		th.MetaLabel.Render("mode") + " " + th.MetaValue.Render(p.Mode),
		th.MetaLabel.Render("category") + " " + th.MetaValue.Render(p.Category),
		th.MetaLabel.Render("attr") + " " + th.MetaValue.Render(p.Attribute),
		th.MetaLabel.Render("sort") + " " + th.MetaValue.Render(p.Sort),
		th.MetaLabel.Render("page") + " " + th.MetaValue.Render(fmt.Sprintf("%d/%d", p.Page, p.TotalPages)),
		th.MetaValue.Render(fmt.Sprintf("%d items, %d per page", p.TotalItems, p.PerPage)),
	}
	if len(p.Tags) > 0 {
		parts = append(parts, th.MetaLabel.Render("tags")+" "+th.MetaValue.Render(strings.Join(p.Tags, "+")))
	}
	if p.Search != "" {
		parts = append(parts, th.MetaLabel.Render("search")+" "+th.MetaValue.Render(fmt.Sprintf("%q", p.Search)))
	}
	return strings.Join(parts, " • ")
}

func Message(loading bool, hasWarning bool, status, warning string, th tuitheme.Theme) string {
	state := "idle"
	if loading {
		state = "loading"
	}
	if hasWarning {
		state = "warning"
	}
	main := "Ready"
	if status != "" {
		main = status
	} else if hasWarning {
		main = warning
	}
	stateLabel := th.StateIdle.Render("state")
	switch state {
	case "warning":
		stateLabel = th.StateWarn.Render("state")
	case "loading":
		stateLabel = th.StateLoad.Render("state")
	}
	return fmt.Sprintf("%s: %s | %s", stateLabel, state, th.MetaValue.Render(main))
}
