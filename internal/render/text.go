// Package render turns item bodies (HTML fragments) into plain text for
// searching and for the terminal detail pane.
package render

import (
	"html"
	"strings"

	nethtml "golang.org/x/net/html"

	"github.com/glabrego/moments-cli/internal/feed"
)

var blockTags = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "header": true,
	"footer": true, "blockquote": true, "pre": true, "ul": true, "ol": true,
	"li": true, "h1": true, "h2": true, "h3": true, "h4": true, "h5": true,
	"h6": true, "table": true, "tr": true, "br": true, "hr": true,
}

// Text returns the visible text of an HTML fragment with one paragraph per
// line. Script and style contents are dropped.
func Text(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	doc, err := nethtml.Parse(strings.NewReader("<html><body>" + raw + "</body></html>"))
	if err != nil {
		return strings.TrimSpace(html.UnescapeString(raw))
	}
	body := findBodyNode(doc)
	if body == nil {
		return strings.TrimSpace(html.UnescapeString(raw))
	}

	var (
		paragraphs []string
		current    []string
	)
	flush := func() {
		text := normalizeInlineText(strings.Join(current, " "))
		current = current[:0]
		if text != "" {
			paragraphs = append(paragraphs, text)
		}
	}

	var walk func(n *nethtml.Node)
	walk = func(n *nethtml.Node) {
		switch n.Type {
		case nethtml.TextNode:
			current = append(current, n.Data)
			return
		case nethtml.ElementNode:
			tag := strings.ToLower(n.Data)
			if tag == "script" || tag == "style" || tag == "noscript" {
				return
			}
			if tag == "img" {
				if alt := nodeAttr(n, "alt"); alt != "" {
					current = append(current, alt)
				}
				return
			}
			if blockTags[tag] {
				flush()
				defer flush()
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(body)
	flush()

	return strings.Join(paragraphs, "\n")
}

// Lines renders raw as plain text wrapped to width.
func Lines(raw string, width int) []string {
	text := Text(raw)
	if text == "" {
		return nil
	}
	return trimBlankLines(Wrap(text, width))
}

// SearchableText lists the texts a keyword search looks at for an item:
// title, author, the body without markup, and tags.
func SearchableText(item feed.Item) []string {
	fields := make([]string, 0, 3+len(item.Tags))
	for _, s := range []string{item.Title, item.Author, Text(item.Body)} {
		if s = strings.TrimSpace(s); s != "" {
			fields = append(fields, s)
		}
	}
	for _, tag := range item.Tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			fields = append(fields, tag)
		}
	}
	return fields
}

// Index fills SearchableText for items that arrive without it.
func Index(items []feed.Item) []feed.Item {
	for i := range items {
		if len(items[i].SearchableText) == 0 {
			items[i].SearchableText = SearchableText(items[i])
		}
	}
	return items
}

func normalizeInlineText(s string) string {
	return strings.Join(strings.Fields(html.UnescapeString(s)), " ")
}

func trimBlankLines(lines []string) []string {
	start := 0
	for start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	end := len(lines) - 1
	for end >= start && strings.TrimSpace(lines[end]) == "" {
		end--
	}
	if end < start {
		return nil
	}
	return lines[start : end+1]
}

// Wrap breaks text into lines of at most width runes, keeping paragraph breaks.
func Wrap(text string, width int) []string {
	if width < 1 {
		return []string{text}
	}
	paragraphs := strings.Split(text, "\n")
	out := make([]string, 0, len(paragraphs))

	for _, p := range paragraphs {
		words := strings.Fields(p)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		line := ""
		for _, word := range words {
			for len([]rune(word)) > width {
				if line != "" {
					out = append(out, line)
					line = ""
				}
				r := []rune(word)
				out = append(out, string(r[:width]))
				word = string(r[width:])
			}

			if line == "" {
				line = word
				continue
			}
			if len([]rune(line))+1+len([]rune(word)) <= width {
				line += " " + word
				continue
			}
			out = append(out, line)
			line = word
		}
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func findBodyNode(node *nethtml.Node) *nethtml.Node {
	if node == nil {
		return nil
	}
	if node.Type == nethtml.ElementNode && strings.EqualFold(node.Data, "body") {
		return node
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if found := findBodyNode(child); found != nil {
			return found
		}
	}
	return nil
}

func nodeAttr(node *nethtml.Node, name string) string {
	for _, attr := range node.Attr {
		if strings.EqualFold(attr.Key, name) {
			return strings.TrimSpace(attr.Val)
		}
	}
	return ""
}
