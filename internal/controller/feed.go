// Package controller holds the per-feed view state (filter, sort order and
// current page) and pushes a freshly computed RenderPage to subscribers
// after every change.
package controller

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/glabrego/moments-cli/internal/feed"
	"github.com/glabrego/moments-cli/internal/logging"
	"github.com/glabrego/moments-cli/internal/mutation"
	"github.com/glabrego/moments-cli/internal/pagination"
)

// Loader is a data source for one timeline.
type Loader interface {
	LoadAll(ctx context.Context) ([]feed.Item, error)
	LoadByCategory(ctx context.Context, category string) ([]feed.Item, error)
}

type Options struct {
	ItemsPerPage    int
	MaxVisiblePages int
	Sort            feed.SortKey
	Logger          *log.Logger
}

// RenderPage is everything a view needs to draw one page of a feed.
type RenderPage struct {
	Feed        string          `json:"feed"`
	Items       []feed.Item     `json:"items"`
	Pages       []int           `json:"pages"`
	CurrentPage int             `json:"current_page"`
	TotalPages  int             `json:"total_pages"`
	TotalItems  int             `json:"total_items"`
	Filter      feed.FilterSpec `json:"filter"`
	Sort        feed.SortKey    `json:"sort"`
	// LoadError is set while the items are the last ones loaded before a
	// failed reload.
	LoadError string `json:"load_error,omitempty"`
	Err       error  `json:"-"`
}

// WithLoadError marks the page as stale because of err; a nil err clears
// the mark.
func (p RenderPage) WithLoadError(err error) RenderPage {
	p.Err = err
	p.LoadError = ""
	if err != nil {
		p.LoadError = err.Error()
	}
	return p
}

type Feed struct {
	name   string
	items  *feed.Collection
	logger *log.Logger

	mu      sync.Mutex
	filter  feed.FilterSpec
	sort    feed.SortKey
	state   pagination.State
	loadErr error
	page    RenderPage
	visible map[string]struct{}
	subs    map[int]func(RenderPage)
	nextSub int
}

func New(name string, items *feed.Collection, opts Options) (*Feed, error) {
	if err := validateState(opts.ItemsPerPage, opts.MaxVisiblePages); err != nil {
		return nil, fmt.Errorf("new feed %s: %w", name, err)
	}
	if items == nil {
		items = feed.NewCollection(nil)
	}

	f := &Feed{
		name:   name,
		items:  items,
		logger: logging.OrDiscard(opts.Logger),
		filter: feed.DefaultFilter(),
		sort:   opts.Sort,
		state: pagination.State{
			ItemsPerPage:    opts.ItemsPerPage,
			CurrentPage:     1,
			MaxVisiblePages: opts.MaxVisiblePages,
		},
		subs: make(map[int]func(RenderPage)),
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.recomputeLocked(); err != nil {
		return nil, fmt.Errorf("new feed %s: %w", name, err)
	}
	return f, nil
}

func validateState(itemsPerPage, maxVisiblePages int) error {
	if itemsPerPage <= 0 {
		return fmt.Errorf("items per page must be positive, got %d: %w", itemsPerPage, feed.ErrInvalidConfiguration)
	}
	if maxVisiblePages <= 0 || maxVisiblePages%2 == 0 {
		return fmt.Errorf("max visible pages must be a positive odd number, got %d: %w", maxVisiblePages, feed.ErrInvalidConfiguration)
	}
	return nil
}

func (f *Feed) Name() string {
	return f.name
}

// Items exposes the underlying collection, shared with the mutation controller.
func (f *Feed) Items() *feed.Collection {
	return f.items
}

// Subscribe registers fn and returns a func that removes it. fn is called
// with the controller lock held and must not call back into the Feed.
func (f *Feed) Subscribe(fn func(RenderPage)) func() {
	f.mu.Lock()
	id := f.nextSub
	f.nextSub++
	f.subs[id] = fn
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

// Page returns the most recently computed page.
func (f *Feed) Page() RenderPage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.page
}

// SetFilter merges patch into the current filter and returns to page 1.
func (f *Feed) SetFilter(patch feed.FilterPatch) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.filter = f.filter.Merge(patch)
	f.state.CurrentPage = 1
	f.mustRecomputeLocked()
}

// SetSort changes the order and keeps the current page where possible.
func (f *Feed) SetSort(key feed.SortKey) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sort = key
	f.mustRecomputeLocked()
}

// GoToPage reports false and changes nothing when n is outside
// [1, TotalPages].
func (f *Feed) GoToPage(n int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if n < 1 || n > f.page.TotalPages {
		return false
	}
	f.state.CurrentPage = n
	f.mustRecomputeLocked()
	return true
}

func (f *Feed) NextPage() bool {
	return f.GoToPage(f.Page().CurrentPage + 1)
}

func (f *Feed) PrevPage() bool {
	return f.GoToPage(f.Page().CurrentPage - 1)
}

func (f *Feed) ItemsPerPage() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.ItemsPerPage
}

func (f *Feed) SetItemsPerPage(n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := validateState(n, f.state.MaxVisiblePages); err != nil {
		return fmt.Errorf("set items per page: %w", err)
	}
	f.state.ItemsPerPage = n
	f.state.CurrentPage = 1
	f.mustRecomputeLocked()
	return nil
}

// ReplaceSourceItems swaps the feed contents, for example after a reload.
func (f *Feed) ReplaceSourceItems(items []feed.Item) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.items.Replace(items)
	f.loadErr = nil
	f.mustRecomputeLocked()
}

// Load fetches items from src; an empty or "all" category loads everything.
// A category load only refreshes that category's items. On failure the
// previous items stay visible and the emitted page carries the error.
func (f *Feed) Load(ctx context.Context, src Loader, category string) error {
	var (
		items []feed.Item
		err   error
	)
	if category == "" || category == feed.All {
		items, err = src.LoadAll(ctx)
	} else {
		items, err = src.LoadByCategory(ctx, category)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err != nil {
		f.loadErr = fmt.Errorf("load %s: %w: %w", f.name, feed.ErrLoadFailed, err)
		f.logger.Warn("feed load failed", "feed", f.name, "category", category, "err", err)
		f.mustRecomputeLocked()
		return f.loadErr
	}

	if category == "" || category == feed.All {
		f.items.Replace(items)
	} else {
		f.items.ReplaceCategory(category, items)
	}
	f.loadErr = nil
	f.logger.Debug("feed loaded", "feed", f.name, "category", category, "items", len(items))
	f.mustRecomputeLocked()
	return nil
}

// LoadErr is the error of the last load, nil once a load succeeds.
func (f *Feed) LoadErr() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadErr
}

// HandleMutation re-renders when the mutated item is on the current page.
func (f *Feed) HandleMutation(ev mutation.Event) {
	if ev.Phase == mutation.PhaseRejected {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.visible[ev.Intent.ItemID]; !ok {
		return
	}
	f.mustRecomputeLocked()
}

// Facets lists the categories, tags and attributes of the whole feed.
func (f *Feed) Facets() feed.Facets {
	return feed.CollectFacets(f.items.Items())
}

// mustRecomputeLocked is used after state changes that were validated up
// front, so ComputeWindow cannot fail.
func (f *Feed) mustRecomputeLocked() {
	if err := f.recomputeLocked(); err != nil {
		f.logger.Error("recompute feed page", "feed", f.name, "err", err)
	}
}

func (f *Feed) recomputeLocked() error {
	page, err := Render(f.name, f.items.Items(), f.filter, f.sort, f.state)
	if err != nil {
		return err
	}
	page = page.WithLoadError(f.loadErr)

	f.state.CurrentPage = page.CurrentPage
	f.page = page
	f.visible = make(map[string]struct{}, len(page.Items))
	for _, item := range page.Items {
		f.visible[item.ID] = struct{}{}
	}

	for _, fn := range f.subs {
		fn(page)
	}
	return nil
}

// Render computes a single page without any controller state. It is used by
// Feed and by stateless callers such as the HTTP API.
func Render(name string, items []feed.Item, filter feed.FilterSpec, key feed.SortKey, state pagination.State) (RenderPage, error) {
	filtered := feed.Apply(items, filter, key)
	w, err := pagination.ComputeWindow(len(filtered), state.ItemsPerPage, state.CurrentPage, state.MaxVisiblePages)
	if err != nil {
		return RenderPage{}, err
	}

	filter.RequiredTags = slices.Clone(filter.RequiredTags)
	return RenderPage{
		Feed:        name,
		Items:       slices.Clone(filtered[w.StartIndex:w.EndIndex]),
		Pages:       w.Pages,
		CurrentPage: w.CurrentPage,
		TotalPages:  w.TotalPages,
		TotalItems:  len(filtered),
		Filter:      filter,
		Sort:        key,
	}, nil
}
