package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/glabrego/moments-cli/internal/controller"
	"github.com/glabrego/moments-cli/internal/feed"
	"github.com/glabrego/moments-cli/internal/logging"
	"github.com/glabrego/moments-cli/internal/mutation"
)

// ErrUnknownTimeline is returned when a timeline name is not served.
var ErrUnknownTimeline = errors.New("unknown timeline")

// Timeline bundles the state of one feed: its items, its view controller
// and the mutation controller writing to those items.
type Timeline struct {
	Name      feed.Timeline
	Items     *feed.Collection
	Feed      *controller.Feed
	Mutations *mutation.Controller
	Source    *Source
}

type RuntimeOptions struct {
	ItemsPerPage    int
	MaxVisiblePages int
	Sort            feed.SortKey
	PersistTimeout  time.Duration
	Logger          *log.Logger
	// MutationObserver, when set, is subscribed to every timeline's
	// mutation events.
	MutationObserver func(timeline string) func(mutation.Event)
}

// Runtime wires the service into one controller pair per timeline.
type Runtime struct {
	svc       *Service
	order     []feed.Timeline
	timelines map[feed.Timeline]*Timeline
	logger    *log.Logger
}

func NewRuntime(svc *Service, opts RuntimeOptions, timelines ...feed.Timeline) (*Runtime, error) {
	if len(timelines) == 0 {
		timelines = []feed.Timeline{feed.TimelineMoments, feed.TimelineDiary}
	}
	logger := logging.OrDiscard(opts.Logger)

	r := &Runtime{
		svc:       svc,
		timelines: make(map[feed.Timeline]*Timeline, len(timelines)),
		logger:    logger,
	}
	for _, name := range timelines {
		items := feed.NewCollection(nil)
		f, err := controller.New(string(name), items, controller.Options{
			ItemsPerPage:    opts.ItemsPerPage,
			MaxVisiblePages: opts.MaxVisiblePages,
			Sort:            opts.Sort,
			Logger:          logger.With("feed", string(name)),
		})
		if err != nil {
			return nil, err
		}
		mc := mutation.New(items, mutation.Options{
			PersistTimeout: opts.PersistTimeout,
			Logger:         logger.With("feed", string(name)),
		})
		mc.Subscribe(f.HandleMutation)
		if opts.MutationObserver != nil {
			mc.Subscribe(opts.MutationObserver(string(name)))
		}

		r.order = append(r.order, name)
		r.timelines[name] = &Timeline{
			Name:      name,
			Items:     items,
			Feed:      f,
			Mutations: mc,
			Source:    svc.Source(name),
		}
	}
	return r, nil
}

func (r *Runtime) Service() *Service {
	return r.svc
}

// Timelines lists the served timelines in display order.
func (r *Runtime) Timelines() []feed.Timeline {
	return append([]feed.Timeline(nil), r.order...)
}

func (r *Runtime) Timeline(name feed.Timeline) (*Timeline, error) {
	t, ok := r.timelines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTimeline, name)
	}
	return t, nil
}

// Reload loads every timeline concurrently. A failing timeline keeps its
// previous items; the failures are joined into the returned error.
func (r *Runtime) Reload(ctx context.Context) error {
	errs := make([]error, len(r.order))
	var g errgroup.Group
	for i, name := range r.order {
		t := r.timelines[name]
		g.Go(func() error {
			errs[i] = t.Feed.Load(ctx, t.Source, feed.All)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// ReloadTimeline loads a single timeline, optionally narrowed to category.
func (r *Runtime) ReloadTimeline(ctx context.Context, name feed.Timeline, category string) error {
	t, err := r.Timeline(name)
	if err != nil {
		return err
	}
	return t.Feed.Load(ctx, t.Source, category)
}

func (r *Runtime) ToggleLike(ctx context.Context, name feed.Timeline, itemID string) (mutation.Outcome, feed.Item, error) {
	t, err := r.Timeline(name)
	if err != nil {
		return mutation.OutcomeRejected, feed.Item{}, err
	}
	outcome, err := t.Mutations.ToggleLike(ctx, itemID, t.Source)
	item, _ := t.Items.Get(itemID)
	return outcome, item, err
}

func (r *Runtime) AddComment(ctx context.Context, name feed.Timeline, itemID, text string) (feed.Comment, mutation.Outcome, error) {
	t, err := r.Timeline(name)
	if err != nil {
		return feed.Comment{}, mutation.OutcomeRejected, err
	}
	return t.Mutations.AddComment(ctx, itemID, text, t.Source)
}
