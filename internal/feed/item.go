package feed

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Timeline names one of the independent feeds rendered by the app.
type Timeline string

const (
	TimelineMoments Timeline = "moments"
	TimelineDiary   Timeline = "diary"
)

func ParseTimeline(raw string) (Timeline, error) {
	switch Timeline(strings.ToLower(strings.TrimSpace(raw))) {
	case TimelineMoments:
		return TimelineMoments, nil
	case TimelineDiary:
		return TimelineDiary, nil
	}
	return "", fmt.Errorf("unknown timeline: %q", raw)
}

// Item is a single post in a timeline. ID is the identity; everything else
// may change over the item's lifetime.
type Item struct {
	ID             string   `json:"id"`
	Timeline       Timeline `json:"timeline"`
	Title          string   `json:"title"`
	Author         string   `json:"author"`
	Body           string   `json:"body"`
	Category       string   `json:"category"`
	Tags           []string `json:"tags"`
	Attribute      string   `json:"attribute"`
	CreatedAt      string   `json:"created_at"`
	Score          float64  `json:"score"`
	LikeCount      int      `json:"like_count"`
	Liked          bool     `json:"liked"`
	CommentCount   int      `json:"comment_count"`
	SearchableText []string `json:"searchable_text,omitempty"`
}

// Comment is the record returned by persistence for a successful comment.
type Comment struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"item_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a deep copy, so callers can hold it without sharing slices
// with the collection.
func (it Item) Clone() Item {
	out := it
	out.Tags = append([]string(nil), it.Tags...)
	out.SearchableText = append([]string(nil), it.SearchableText...)
	return out
}

func (it Item) HasTag(tag string) bool {
	for _, t := range it.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Timestamp parses CreatedAt. ok is false for empty or malformed values.
func (it Item) Timestamp() (time.Time, bool) {
	return ParseTimestamp(it.CreatedAt)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.DateOnly,
}

func ParseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), true
	}
	return time.Time{}, false
}
