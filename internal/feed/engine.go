package feed

import (
	"math"
	"sort"
	"strings"
	"time"
)

// Apply filters items by spec and stably sorts the survivors by key.
// The input slice and its items are never modified.
func Apply(items []Item, spec FilterSpec, key SortKey) []Item {
	if len(items) == 0 {
		return []Item{}
	}

	keyword := strings.ToLower(strings.TrimSpace(spec.SearchKeyword))
	result := make([]Item, 0, len(items))
	for _, item := range items {
		if !matchCategory(item, spec.Category) {
			continue
		}
		if !matchTags(item, spec.RequiredTags) {
			continue
		}
		if !matchAttribute(item, spec.Attribute) {
			continue
		}
		if keyword != "" && !matchKeyword(item, keyword) {
			continue
		}
		result = append(result, item.Clone())
	}

	sortItems(result, key)
	return result
}

func matchCategory(item Item, category string) bool {
	return isAll(category) || item.Category == category
}

func matchTags(item Item, required []string) bool {
	for _, tag := range required {
		if !item.HasTag(tag) {
			return false
		}
	}
	return true
}

func matchAttribute(item Item, attribute string) bool {
	return isAll(attribute) || item.Attribute == attribute
}

// matchKeyword expects keyword to be trimmed and lower-cased already.
func matchKeyword(item Item, keyword string) bool {
	for _, field := range SearchFields(item) {
		if strings.Contains(strings.ToLower(field), keyword) {
			return true
		}
	}
	return false
}

// SearchFields returns the texts a search keyword is matched against: the
// item's searchable text plus its category and attribute labels.
func SearchFields(item Item) []string {
	fields := make([]string, 0, len(item.SearchableText)+2)
	fields = append(fields, item.SearchableText...)
	if item.Category != "" {
		fields = append(fields, item.Category)
	}
	if item.Attribute != "" {
		fields = append(fields, item.Attribute)
	}
	return fields
}

type sortEntry struct {
	item    Item
	ts      time.Time
	validTS bool
	score   float64
}

func sortItems(items []Item, key SortKey) {
	if len(items) < 2 {
		return
	}

	entries := make([]sortEntry, len(items))
	for i, item := range items {
		ts, ok := item.Timestamp()
		score := item.Score
		if math.IsNaN(score) {
			score = math.Inf(-1)
		}
		entries[i] = sortEntry{item: item, ts: ts, validTS: ok, score: score}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		switch key {
		case DateAsc:
			return olderThan(a, b)
		case ScoreDesc:
			return a.score > b.score
		case ScoreAsc:
			return a.score < b.score
		default:
			return olderThan(b, a)
		}
	})

	for i := range entries {
		items[i] = entries[i].item
	}
}

// olderThan treats an unparsable timestamp as the oldest possible value.
func olderThan(a, b sortEntry) bool {
	if !a.validTS {
		return b.validTS
	}
	if !b.validTS {
		return false
	}
	return a.ts.Before(b.ts)
}
