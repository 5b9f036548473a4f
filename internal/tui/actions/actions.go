package actions

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/glabrego/moments-cli/internal/controller"
	"github.com/glabrego/moments-cli/internal/feed"
	"github.com/glabrego/moments-cli/internal/mutation"
)

// Runtime is the part of app.Runtime the terminal UI drives.
type Runtime interface {
	ReloadTimeline(ctx context.Context, name feed.Timeline, category string) error
	ToggleLike(ctx context.Context, name feed.Timeline, itemID string) (mutation.Outcome, feed.Item, error)
	AddComment(ctx context.Context, name feed.Timeline, itemID, text string) (feed.Comment, mutation.Outcome, error)
}

type ReloadSuccessMsg struct {
	Timeline feed.Timeline
	Duration time.Duration
	Source   string
}

type ReloadErrorMsg struct {
	Timeline feed.Timeline
	Err      error
	Duration time.Duration
	Source   string
}

type LikeResultMsg struct {
	Timeline feed.Timeline
	ItemID   string
	Outcome  mutation.Outcome
	Item     feed.Item
	Err      error
}

type CommentResultMsg struct {
	Timeline feed.Timeline
	ItemID   string
	Outcome  mutation.Outcome
	Comment  feed.Comment
	Err      error
}

type CopySuccessMsg struct {
	Status string
}

type CopyErrorMsg struct {
	Err error
}

// PageChangedMsg tells the model that a feed controller emitted a new page
// outside of Update, for example after a mutation was rolled back.
type PageChangedMsg struct {
	Timeline feed.Timeline
}

func ReloadCmd(rt Runtime, name feed.Timeline, category, source string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		start := time.Now()

		if err := rt.ReloadTimeline(ctx, name, category); err != nil {
			return ReloadErrorMsg{Timeline: name, Err: err, Duration: time.Since(start), Source: source}
		}
		return ReloadSuccessMsg{Timeline: name, Duration: time.Since(start), Source: source}
	}
}

func ToggleLikeCmd(rt Runtime, name feed.Timeline, itemID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		outcome, item, err := rt.ToggleLike(ctx, name, itemID)
		return LikeResultMsg{Timeline: name, ItemID: itemID, Outcome: outcome, Item: item, Err: err}
	}
}

func AddCommentCmd(rt Runtime, name feed.Timeline, itemID, text string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		comment, outcome, err := rt.AddComment(ctx, name, itemID, text)
		return CommentResultMsg{Timeline: name, ItemID: itemID, Outcome: outcome, Comment: comment, Err: err}
	}
}

func CopyTextCmd(text string, copyFn func(string) error) tea.Cmd {
	return func() tea.Msg {
		if copyFn != nil {
			if err := copyFn(text); err == nil {
				return CopySuccessMsg{Status: "Copied to clipboard"}
			}
		}
		return CopyErrorMsg{Err: fmt.Errorf("could not copy to clipboard")}
	}
}

// WaitForPageCmd blocks until the next page notification. The model
// re-issues it after every PageChangedMsg.
func WaitForPageCmd(ch <-chan feed.Timeline) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		name, ok := <-ch
		if !ok {
			return nil
		}
		return PageChangedMsg{Timeline: name}
	}
}

// Notifier returns a page subscriber that signals ch without blocking.
// A dropped signal is harmless: a pending one already makes the model
// re-read the page.
func Notifier(name feed.Timeline, ch chan<- feed.Timeline) func(controller.RenderPage) {
	return func(controller.RenderPage) {
		select {
		case ch <- name:
		default:
		}
	}
}
