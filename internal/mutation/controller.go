// Package mutation applies user actions to feed items optimistically: the
// local item changes first, persistence runs afterwards, and a failed
// persist restores the item exactly as it was.
//
// At most one mutation is in flight per item and track. Like and unlike
// share a track, comments have their own, so liking an item never waits on
// (or rolls back) a comment being posted to it.
package mutation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/glabrego/moments-cli/internal/feed"
	"github.com/glabrego/moments-cli/internal/logging"
)

type Kind string

const (
	KindLike       Kind = "like"
	KindUnlike     Kind = "unlike"
	KindCommentAdd Kind = "comment_add"
)

func (k Kind) track() string {
	if k == KindCommentAdd {
		return "comment"
	}
	return "like"
}

// Intent describes one user action on one item.
type Intent struct {
	ItemID  string
	Kind    Kind
	Payload string
}

type Phase string

const (
	PhasePending   Phase = "pending"
	PhaseCommitted Phase = "committed"
	PhaseReverted  Phase = "reverted"
	PhaseRejected  Phase = "rejected"
)

// Event is sent to subscribers on every phase change of a mutation.
type Event struct {
	Intent Intent
	Phase  Phase
	Item   feed.Item
	Err    error
}

type Outcome string

const (
	OutcomeCommitted Outcome = "committed"
	OutcomeReverted  Outcome = "reverted"
	OutcomeRejected  Outcome = "rejected"
)

// PersistFunc stores an already applied change remotely.
type PersistFunc func(ctx context.Context, item feed.Item) error

type Options struct {
	// PersistTimeout bounds each persist call; zero means no bound beyond ctx.
	PersistTimeout time.Duration
	Logger         *log.Logger
}

type Controller struct {
	items          *feed.Collection
	persistTimeout time.Duration
	logger         *log.Logger

	mu      sync.Mutex
	pending map[pendingKey]struct{}

	subsMu  sync.RWMutex
	subs    map[int]func(Event)
	nextSub int
}

type pendingKey struct {
	itemID string
	track  string
}

func New(items *feed.Collection, opts Options) *Controller {
	return &Controller{
		items:          items,
		persistTimeout: opts.PersistTimeout,
		logger:         logging.OrDiscard(opts.Logger),
		pending:        make(map[pendingKey]struct{}),
		subs:           make(map[int]func(Event)),
	}
}

// Subscribe registers fn for mutation events and returns its cancel func.
// fn runs on the goroutine that called Mutate.
func (c *Controller) Subscribe(fn func(Event)) func() {
	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subsMu.Unlock()

	return func() {
		c.subsMu.Lock()
		delete(c.subs, id)
		c.subsMu.Unlock()
	}
}

// Pending reports whether a mutation of kind's track is in flight for itemID.
func (c *Controller) Pending(itemID string, kind Kind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[pendingKey{itemID: itemID, track: kind.track()}]
	return ok
}

// Mutate applies the intent locally, then persists it. It blocks until
// persist returns or times out; mutations of other items proceed meanwhile.
func (c *Controller) Mutate(ctx context.Context, intent Intent, apply func(*feed.Item), persist PersistFunc) (Outcome, error) {
	key := pendingKey{itemID: intent.ItemID, track: intent.Kind.track()}
	if !c.acquire(key) {
		return c.reject(intent)
	}
	return c.mutateHeld(ctx, key, intent, apply, persist)
}

func (c *Controller) reject(intent Intent) (Outcome, error) {
	c.logger.Debug("mutation rejected", "item", intent.ItemID, "kind", intent.Kind)
	c.notify(Event{Intent: intent, Phase: PhaseRejected, Err: feed.ErrAlreadyPending})
	return OutcomeRejected, fmt.Errorf("%s item %s: %w", intent.Kind, intent.ItemID, feed.ErrAlreadyPending)
}

// mutateHeld runs a mutation whose key the caller already acquired. The key
// is released once the persist call has returned, even when that happens
// after the timeout and the rollback.
func (c *Controller) mutateHeld(ctx context.Context, key pendingKey, intent Intent, apply func(*feed.Item), persist PersistFunc) (Outcome, error) {
	held := true
	defer func() {
		if held {
			c.release(key)
		}
	}()

	var snap snapshot
	_, applied, err := c.items.Update(intent.ItemID, func(it *feed.Item) {
		snap = takeSnapshot(*it)
		apply(it)
		floorCounts(it)
	})
	if err != nil {
		return OutcomeRejected, fmt.Errorf("%s item %s: %w", intent.Kind, intent.ItemID, err)
	}
	c.notify(Event{Intent: intent, Phase: PhasePending, Item: applied})

	track := intent.Kind.track()
	held = false
	if err := c.runPersist(ctx, persist, applied, func() { c.release(key) }); err != nil {
		wanted := takeSnapshot(applied)
		_, restored, restoreErr := c.items.Update(intent.ItemID, func(it *feed.Item) {
			// A reload may have replaced the item meanwhile; its values win.
			if takeSnapshot(*it).sameTrack(track, wanted) {
				snap.restore(track, it)
			}
		})
		if restoreErr != nil {
			c.logger.Warn("rollback target vanished", "item", intent.ItemID, "err", restoreErr)
			restored = snap.applyTo(track, applied)
		}
		c.logger.Warn("mutation reverted", "item", intent.ItemID, "kind", intent.Kind, "err", err)
		c.notify(Event{Intent: intent, Phase: PhaseReverted, Item: restored, Err: err})
		return OutcomeReverted, fmt.Errorf("%s item %s: %w: %w", intent.Kind, intent.ItemID, feed.ErrPersistenceFailed, err)
	}

	committed, ok := c.items.Get(intent.ItemID)
	if !ok {
		committed = applied
	}
	c.logger.Debug("mutation committed", "item", intent.ItemID, "kind", intent.Kind)
	c.notify(Event{Intent: intent, Phase: PhaseCommitted, Item: committed})
	return OutcomeCommitted, nil
}

// runPersist converts panics and timeouts into errors. finished runs when
// persist itself returns, which for a timed out call is after runPersist.
func (c *Controller) runPersist(ctx context.Context, persist PersistFunc, item feed.Item, finished func()) error {
	if c.persistTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.persistTimeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("persist panicked: %v", r)
			}
			finished()
			done <- err
		}()
		err = persist(ctx, item)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		c.logger.Warn("persist timed out, key held until it returns", "item", item.ID)
		return fmt.Errorf("persist: %w", ctx.Err())
	}
}

func (c *Controller) acquire(key pendingKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.pending[key]; busy {
		return false
	}
	c.pending[key] = struct{}{}
	return true
}

func (c *Controller) release(key pendingKey) {
	c.mu.Lock()
	delete(c.pending, key)
	c.mu.Unlock()
}

func (c *Controller) notify(ev Event) {
	c.subsMu.RLock()
	subs := make([]func(Event), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.subsMu.RUnlock()

	for _, fn := range subs {
		fn(ev)
	}
}

type snapshot struct {
	liked        bool
	likeCount    int
	commentCount int
}

func takeSnapshot(it feed.Item) snapshot {
	return snapshot{liked: it.Liked, likeCount: it.LikeCount, commentCount: it.CommentCount}
}

// restore only touches the fields owned by track, so a rollback never
// undoes a concurrent mutation on the other track.
func (s snapshot) restore(track string, it *feed.Item) {
	switch track {
	case "comment":
		it.CommentCount = s.commentCount
	default:
		it.Liked = s.liked
		it.LikeCount = s.likeCount
	}
}

// sameTrack reports whether s and other agree on the fields owned by track.
func (s snapshot) sameTrack(track string, other snapshot) bool {
	if track == "comment" {
		return s.commentCount == other.commentCount
	}
	return s.liked == other.liked && s.likeCount == other.likeCount
}

func (s snapshot) applyTo(track string, it feed.Item) feed.Item {
	s.restore(track, &it)
	return it
}

func floorCounts(it *feed.Item) {
	if it.LikeCount < 0 {
		it.LikeCount = 0
	}
	if it.CommentCount < 0 {
		it.CommentCount = 0
	}
}
