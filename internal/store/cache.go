package store

import "github.com/cp25sy5-modjot/expense-engine/internal/domain"

// recordCache is a bounded id -> expense cache with pure insertion-order
// eviction: when over capacity the oldest-inserted entries go first,
// regardless of access recency. Updating an existing id keeps its slot.
// Not safe for concurrent use; the store's mutex guards it.
type recordCache struct {
	cap     int
	order   []string
	entries map[string]domain.Expense
}

func newRecordCache(capacity int) *recordCache {
	return &recordCache{
		cap:     capacity,
		entries: make(map[string]domain.Expense, capacity),
	}
}

func (c *recordCache) get(id string) (domain.Expense, bool) {
	e, ok := c.entries[id]
	return e, ok
}

func (c *recordCache) set(id string, e domain.Expense) {
	if _, ok := c.entries[id]; !ok {
		c.order = append(c.order, id)
	}
	c.entries[id] = e
	c.prune()
}

func (c *recordCache) delete(id string) {
	if _, ok := c.entries[id]; !ok {
		return
	}
	delete(c.entries, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

func (c *recordCache) len() int { return len(c.entries) }

func (c *recordCache) prune() {
	for len(c.order) > c.cap {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}
