// Package pagination computes page slices and the compact page-number bar
// shown under a feed.
package pagination

import (
	"fmt"

	"github.com/glabrego/moments-cli/internal/feed"
)

// Ellipsis marks a gap in Window.Pages. Real page numbers start at 1.
const Ellipsis = 0

// State is the pagination part of a feed controller.
type State struct {
	ItemsPerPage    int
	CurrentPage     int
	MaxVisiblePages int
}

// Window describes which items and which page controls are visible.
type Window struct {
	StartIndex  int
	EndIndex    int // exclusive
	TotalPages  int
	CurrentPage int
	Pages       []int
}

func (w Window) Len() int {
	return w.EndIndex - w.StartIndex
}

// TotalPages returns max(1, ceil(totalItems/itemsPerPage)); itemsPerPage must be positive.
func TotalPages(totalItems, itemsPerPage int) int {
	if totalItems <= 0 {
		return 1
	}
	return (totalItems + itemsPerPage - 1) / itemsPerPage
}

func ClampPage(page, totalPages int) int {
	if page < 1 {
		return 1
	}
	if page > totalPages {
		return totalPages
	}
	return page
}

// ComputeWindow never applies defaults: non-positive itemsPerPage or
// maxVisiblePages is an invalid configuration. currentPage is clamped.
func ComputeWindow(totalItems, itemsPerPage, currentPage, maxVisiblePages int) (Window, error) {
	if itemsPerPage <= 0 {
		return Window{}, fmt.Errorf("items per page must be positive, got %d: %w", itemsPerPage, feed.ErrInvalidConfiguration)
	}
	if maxVisiblePages <= 0 {
		return Window{}, fmt.Errorf("max visible pages must be positive, got %d: %w", maxVisiblePages, feed.ErrInvalidConfiguration)
	}
	if totalItems < 0 {
		return Window{}, fmt.Errorf("total items must not be negative, got %d: %w", totalItems, feed.ErrInvalidConfiguration)
	}

	totalPages := TotalPages(totalItems, itemsPerPage)
	current := ClampPage(currentPage, totalPages)

	start := (current - 1) * itemsPerPage
	if start > totalItems {
		start = totalItems
	}
	end := min(start+itemsPerPage, totalItems)

	return Window{
		StartIndex:  start,
		EndIndex:    end,
		TotalPages:  totalPages,
		CurrentPage: current,
		Pages:       PageNumbers(totalPages, current, maxVisiblePages),
	}, nil
}

// PageNumbers builds the page bar: every page when they all fit, otherwise a
// window of maxVisible pages centered on current with the first and last page
// always present and Ellipsis where a boundary page is not adjacent.
func PageNumbers(totalPages, current, maxVisible int) []int {
	if totalPages <= maxVisible {
		pages := make([]int, 0, totalPages)
		for p := 1; p <= totalPages; p++ {
			pages = append(pages, p)
		}
		return pages
	}

	first, last := centeredRange(totalPages, current, maxVisible)
	pages := make([]int, 0, maxVisible+4)
	if first > 1 {
		pages = append(pages, 1)
		if first > 2 {
			pages = append(pages, Ellipsis)
		}
	}
	for p := first; p <= last; p++ {
		pages = append(pages, p)
	}
	if last < totalPages {
		if last < totalPages-1 {
			pages = append(pages, Ellipsis)
		}
		pages = append(pages, totalPages)
	}
	return pages
}

// centeredRange returns the inclusive page range of width size around
// current, shifted to stay inside [1, total].
func centeredRange(total, current, size int) (int, int) {
	current = ClampPage(current, total)
	first := current - size/2
	if first < 1 {
		first = 1
	}
	maxFirst := total - size + 1
	if first > maxFirst {
		first = maxFirst
	}
	return first, first + size - 1
}
