package view

import (
	"fmt"
	"strings"
	"time"

	"github.com/glabrego/moments-cli/internal/feed"
	"github.com/glabrego/moments-cli/internal/render"
)

type WrapFunc func(string, int) []string

func DetailMetaLines(item feed.Item, width int, wrap WrapFunc) []string {
	lines := make([]string, 0, 16)
	title := item.Title
	if title == "" {
		title = "(untitled)"
	}
	lines = append(lines, wrap(title, width)...)
	lines = append(lines, strings.Repeat("=", max(1, min(width, len(title)))))
	lines = append(lines, "")

	if item.Author != "" {
		lines = append(lines, wrap("Author: "+item.Author, width)...)
	}
	if ts, ok := item.Timestamp(); ok {
		lines = append(lines, "Date: "+ts.UTC().Format(time.RFC3339))
	} else {
		lines = append(lines, "Date: unknown")
	}
	if item.Category != "" {
		lines = append(lines, "Category: "+item.Category)
	}
	if item.Attribute != "" {
		lines = append(lines, "Attribute: "+item.Attribute)
	}
	if len(item.Tags) > 0 {
		lines = append(lines, wrap("Tags: "+strings.Join(item.Tags, ", "), width)...)
	}
	liked := "no"
	if item.Liked {
		liked = "yes"
	}
	lines = append(lines, fmt.Sprintf("Likes: %d (liked: %s)", item.LikeCount, liked))
	lines = append(lines, fmt.Sprintf("Comments: %d", item.CommentCount))
	return lines
}

// DetailLines is the metadata block followed by the wrapped body text.
func DetailLines(item feed.Item, width int, wrap WrapFunc) []string {
	lines := DetailMetaLines(item, width, wrap)
	body := render.Lines(item.Body, width)
	if len(body) == 0 {
		return lines
	}
	lines = append(lines, "")
	return append(lines, body...)
}

func DetailMaxTop(linesLen, bodyHeight int) int {
	maxTop := linesLen - bodyHeight
	if maxTop < 0 {
		return 0
	}
	return maxTop
}

func RenderDetailLines(lines []string, top, maxLines int) string {
	if len(lines) == 0 {
		return ""
	}
	if top < 0 {
		top = 0
	}
	if top > len(lines)-1 {
		top = len(lines) - 1
	}
	end := len(lines)
	if maxLines > 0 && top+maxLines < end {
		end = top + maxLines
	}
	return strings.Join(lines[top:end], "\n") + "\n"
}
