package mutation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/glabrego/moments-cli/internal/feed"
)

var ErrEmptyComment = errors.New("comment text is empty")

// Persistence is the remote side of like and comment actions for one timeline.
type Persistence interface {
	Like(ctx context.Context, itemID string) (int, error)
	Unlike(ctx context.Context, itemID string) (int, error)
	AddComment(ctx context.Context, itemID, text string) (feed.Comment, error)
}

// ToggleLike likes the item when this client has not liked it yet and
// unlikes it otherwise. The count moves by exactly one and never drops
// below zero.
// The direction is read after the like track is acquired, so two toggles
// racing on one item never apply the same direction twice.
func (c *Controller) ToggleLike(ctx context.Context, itemID string, p Persistence) (Outcome, error) {
	item, ok := c.items.Get(itemID)
	if !ok {
		return OutcomeRejected, fmt.Errorf("toggle like %s: %w", itemID, feed.ErrItemNotFound)
	}
	key := pendingKey{itemID: itemID, track: KindLike.track()}
	if !c.acquire(key) {
		return c.reject(Intent{ItemID: itemID, Kind: likeKind(item)})
	}

	item, ok = c.items.Get(itemID)
	if !ok {
		c.release(key)
		return OutcomeRejected, fmt.Errorf("toggle like %s: %w", itemID, feed.ErrItemNotFound)
	}
	kind := likeKind(item)
	intent := Intent{ItemID: itemID, Kind: kind}

	return c.mutateHeld(ctx, key, intent, likeApply(kind), func(ctx context.Context, item feed.Item) error {
		var (
			count int
			err   error
		)
		if kind == KindLike {
			count, err = p.Like(ctx, item.ID)
		} else {
			count, err = p.Unlike(ctx, item.ID)
		}
		if err != nil {
			return err
		}
		if count != item.LikeCount {
			c.logger.Debug("remote like count differs", "item", item.ID, "local", item.LikeCount, "remote", count)
		}
		return nil
	})
}

func likeKind(item feed.Item) Kind {
	if item.Liked {
		return KindUnlike
	}
	return KindLike
}

func likeApply(kind Kind) func(*feed.Item) {
	return func(it *feed.Item) {
		if kind == KindLike {
			it.Liked = true
			it.LikeCount++
			return
		}
		it.Liked = false
		if it.LikeCount > 0 {
			it.LikeCount--
		}
	}
}

// AddComment bumps the comment count locally and posts the comment.
func (c *Controller) AddComment(ctx context.Context, itemID, text string, p Persistence) (feed.Comment, Outcome, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return feed.Comment{}, OutcomeRejected, ErrEmptyComment
	}

	var record feed.Comment
	intent := Intent{ItemID: itemID, Kind: KindCommentAdd, Payload: text}
	outcome, err := c.Mutate(ctx, intent, func(it *feed.Item) {
		it.CommentCount++
	}, func(ctx context.Context, item feed.Item) error {
		rec, err := p.AddComment(ctx, item.ID, text)
		if err != nil {
			return err
		}
		record = rec
		return nil
	})
	if err != nil {
		return feed.Comment{}, outcome, err
	}
	return record, outcome, nil
}
