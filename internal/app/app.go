package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sony/gobreaker"

	"github.com/glabrego/moments-cli/internal/feed"
	"github.com/glabrego/moments-cli/internal/logging"
	"github.com/glabrego/moments-cli/internal/remote"
	"github.com/glabrego/moments-cli/internal/render"
)

// RemoteClient is the hosted store. remote.Client implements it.
type RemoteClient interface {
	ListItems(ctx context.Context, timeline feed.Timeline, category string) ([]feed.Item, error)
	Like(ctx context.Context, timeline feed.Timeline, itemID string) (int, error)
	Unlike(ctx context.Context, timeline feed.Timeline, itemID string) (int, error)
	AddComment(ctx context.Context, timeline feed.Timeline, itemID, text string) (feed.Comment, error)
}

// Repository is the local cache. storage.Repository implements it.
type Repository interface {
	SaveItems(ctx context.Context, timeline feed.Timeline, items []feed.Item) error
	ListItems(ctx context.Context, timeline feed.Timeline, category string) ([]feed.Item, error)
	SetLiked(ctx context.Context, timeline feed.Timeline, itemID string, liked bool) (int, error)
	MirrorLike(ctx context.Context, timeline feed.Timeline, itemID string, liked bool, count int) error
	AddComment(ctx context.Context, timeline feed.Timeline, itemID, text string) (feed.Comment, error)
	SaveComment(ctx context.Context, timeline feed.Timeline, comment feed.Comment) error
	ListComments(ctx context.Context, timeline feed.Timeline, itemID string) ([]feed.Comment, error)
}

// LoadObserver is told about every load attempt; metrics.Collector implements it.
type LoadObserver interface {
	ObserveLoad(timeline, source string, err error)
}

type ServiceOptions struct {
	// BreakerTimeout is how long the remote stays skipped after the breaker trips.
	BreakerTimeout time.Duration
	Logger         *log.Logger
	Observer       LoadObserver
}

// Service reads through the remote store into the local cache and falls
// back to the cache when the remote is unavailable. Writes go to the remote
// when one is configured and are mirrored locally.
type Service struct {
	remote   RemoteClient
	repo     Repository
	breaker  *gobreaker.CircuitBreaker
	logger   *log.Logger
	observer LoadObserver
}

// NewService builds a service; client may be nil for a local-only setup.
func NewService(client RemoteClient, repo Repository, opts ServiceOptions) *Service {
	logger := logging.OrDiscard(opts.Logger)
	timeout := opts.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	s := &Service{
		remote:   client,
		repo:     repo,
		logger:   logger,
		observer: opts.Observer,
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "remote",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: countsAsHealthy,
	})
	return s
}

// countsAsHealthy keeps answers that prove the remote is up (missing item,
// client errors, caller cancellation) from tripping the breaker.
func countsAsHealthy(err error) bool {
	if err == nil || errors.Is(err, feed.ErrItemNotFound) || errors.Is(err, context.Canceled) {
		return true
	}
	var statusErr *remote.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode < http.StatusInternalServerError
	}
	return false
}

func execute[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	out, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out.(T), nil
}

// HasRemote reports whether a remote store is configured.
func (s *Service) HasRemote() bool {
	return s.remote != nil
}

// Load returns the items of timeline in category (empty or feed.All for
// every category), indexed for keyword search.
func (s *Service) Load(ctx context.Context, timeline feed.Timeline, category string) ([]feed.Item, error) {
	if s.remote == nil {
		items, err := s.listCached(ctx, timeline, category)
		if err != nil {
			return nil, err
		}
		return render.Index(items), nil
	}

	items, remoteErr := execute(s.breaker, func() ([]feed.Item, error) {
		return s.remote.ListItems(ctx, timeline, category)
	})
	s.observe(timeline, "remote", remoteErr)
	if remoteErr == nil {
		if err := s.repo.SaveItems(ctx, timeline, items); err != nil {
			s.logger.Warn("save items to cache", "timeline", timeline, "err", err)
			return render.Index(items), nil
		}
		cached, err := s.repo.ListItems(ctx, timeline, category)
		if err != nil {
			s.logger.Warn("load items from cache", "timeline", timeline, "err", err)
			return render.Index(items), nil
		}
		return render.Index(cached), nil
	}

	s.logger.Warn("remote load failed, using cache", "timeline", timeline, "category", category, "err", remoteErr)
	items, err := s.listCached(ctx, timeline, category)
	if err != nil {
		return nil, fmt.Errorf("load %s: remote: %w; cache: %w", timeline, remoteErr, err)
	}
	return render.Index(items), nil
}

func (s *Service) listCached(ctx context.Context, timeline feed.Timeline, category string) ([]feed.Item, error) {
	items, err := s.repo.ListItems(ctx, timeline, category)
	s.observe(timeline, "cache", err)
	if err != nil {
		return nil, fmt.Errorf("load items from cache: %w", err)
	}
	return items, nil
}

func (s *Service) observe(timeline feed.Timeline, source string, err error) {
	if s.observer != nil {
		s.observer.ObserveLoad(string(timeline), source, err)
	}
}

// SetLiked persists a like or unlike and returns the resulting count.
func (s *Service) SetLiked(ctx context.Context, timeline feed.Timeline, itemID string, liked bool) (int, error) {
	if s.remote == nil {
		count, err := s.repo.SetLiked(ctx, timeline, itemID, liked)
		if err != nil {
			return 0, fmt.Errorf("save like state: %w", err)
		}
		return count, nil
	}

	count, err := execute(s.breaker, func() (int, error) {
		if liked {
			return s.remote.Like(ctx, timeline, itemID)
		}
		return s.remote.Unlike(ctx, timeline, itemID)
	})
	if err != nil {
		return 0, fmt.Errorf("send like state to remote: %w", err)
	}
	if err := s.repo.MirrorLike(ctx, timeline, itemID, liked, count); err != nil {
		s.logger.Warn("mirror like to cache", "timeline", timeline, "item", itemID, "err", err)
	}
	return count, nil
}

func (s *Service) AddComment(ctx context.Context, timeline feed.Timeline, itemID, text string) (feed.Comment, error) {
	if s.remote == nil {
		comment, err := s.repo.AddComment(ctx, timeline, itemID, text)
		if err != nil {
			return feed.Comment{}, fmt.Errorf("save comment: %w", err)
		}
		return comment, nil
	}

	comment, err := execute(s.breaker, func() (feed.Comment, error) {
		return s.remote.AddComment(ctx, timeline, itemID, text)
	})
	if err != nil {
		return feed.Comment{}, fmt.Errorf("send comment to remote: %w", err)
	}
	if err := s.repo.SaveComment(ctx, timeline, comment); err != nil {
		s.logger.Warn("mirror comment to cache", "timeline", timeline, "item", itemID, "err", err)
	}
	return comment, nil
}

func (s *Service) Comments(ctx context.Context, timeline feed.Timeline, itemID string) ([]feed.Comment, error) {
	comments, err := s.repo.ListComments(ctx, timeline, itemID)
	if err != nil {
		return nil, fmt.Errorf("load comments from cache: %w", err)
	}
	return comments, nil
}

// Source binds the service to one timeline. It is both the feed loader and
// the mutation persistence for that timeline.
type Source struct {
	svc      *Service
	timeline feed.Timeline
}

func (s *Service) Source(timeline feed.Timeline) *Source {
	return &Source{svc: s, timeline: timeline}
}

func (s *Source) LoadAll(ctx context.Context) ([]feed.Item, error) {
	return s.svc.Load(ctx, s.timeline, feed.All)
}

func (s *Source) LoadByCategory(ctx context.Context, category string) ([]feed.Item, error) {
	return s.svc.Load(ctx, s.timeline, category)
}

func (s *Source) Like(ctx context.Context, itemID string) (int, error) {
	return s.svc.SetLiked(ctx, s.timeline, itemID, true)
}

func (s *Source) Unlike(ctx context.Context, itemID string) (int, error) {
	return s.svc.SetLiked(ctx, s.timeline, itemID, false)
}

func (s *Source) AddComment(ctx context.Context, itemID, text string) (feed.Comment, error) {
	return s.svc.AddComment(ctx, s.timeline, itemID, text)
}
