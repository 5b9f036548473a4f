package feed

import "sync"

// Collection is the item set shared by a feed controller (reader) and the
// mutation controller (the only writer of individual items).
type Collection struct {
	mu    sync.RWMutex
	items []Item
	index map[string]int
}

func NewCollection(items []Item) *Collection {
	c := &Collection{}
	c.Replace(items)
	return c
}

// Replace swaps the whole item set, e.g. after a reload.
func (c *Collection) Replace(items []Item) {
	copied := make([]Item, len(items))
	index := make(map[string]int, len(items))
	for i, item := range items {
		copied[i] = item.Clone()
		index[item.ID] = i
	}

	c.mu.Lock()
	c.items = copied
	c.index = index
	c.mu.Unlock()
}

// ReplaceCategory swaps only the items of category. Items of other
// categories keep their place; newly seen items are appended.
func (c *Collection) ReplaceCategory(category string, items []Item) {
	c.mu.Lock()
	defer c.mu.Unlock()

	loaded := make(map[string]Item, len(items))
	for _, item := range items {
		loaded[item.ID] = item.Clone()
	}

	next := make([]Item, 0, len(c.items)+len(items))
	for _, item := range c.items {
		if fresh, ok := loaded[item.ID]; ok {
			next = append(next, fresh)
			delete(loaded, item.ID)
			continue
		}
		if item.Category == category {
			continue
		}
		next = append(next, item)
	}
	for _, item := range items {
		if fresh, ok := loaded[item.ID]; ok {
			next = append(next, fresh)
			delete(loaded, item.ID)
		}
	}

	index := make(map[string]int, len(next))
	for i, item := range next {
		index[item.ID] = i
	}
	c.items = next
	c.index = index
}

// Items returns a copy of the current items in source order.
func (c *Collection) Items() []Item {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Item, len(c.items))
	for i, item := range c.items {
		out[i] = item.Clone()
	}
	return out
}

func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Collection) Get(id string) (Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i, ok := c.index[id]
	if !ok {
		return Item{}, false
	}
	return c.items[i].Clone(), true
}

// Update applies fn to the item in place and returns copies of the item
// before and after the change.
func (c *Collection) Update(id string, fn func(*Item)) (before, after Item, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.index[id]
	if !ok {
		return Item{}, Item{}, ErrItemNotFound
	}
	before = c.items[i].Clone()
	fn(&c.items[i])
	c.items[i].ID = before.ID
	return before, c.items[i].Clone(), nil
}
