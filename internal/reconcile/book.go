// Package reconcile enforces one-cancels-other between the protective legs
// of live bracket groups using polled order book snapshots.
package reconcile

import (
	"strings"
	"sync"

	"bracket-trader/internal/metrics"
	"bracket-trader/internal/models"
)

// Book holds the live bracket groups of a session.
type Book struct {
	mu     sync.RWMutex
	groups map[string]*models.BracketGroup
	order  []string
}

// NewBook creates an empty book.
func NewBook() *Book {
	return &Book{groups: make(map[string]*models.BracketGroup)}
}

// Add tracks g until it turns terminal. Only groups with both protective
// legs placed have anything to reconcile.
func (b *Book) Add(g *models.BracketGroup) bool {
	if g == nil || g.Terminal() || !g.Protected() {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.groups[g.ID]; ok {
		return false
	}
	b.groups[g.ID] = g
	b.order = append(b.order, g.ID)
	metrics.LiveGroups.Set(float64(len(b.groups)))
	return true
}

// Len returns the number of live groups.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.groups)
}

// HasSymbol reports whether a live group trades symbol.
func (b *Book) HasSymbol(symbol string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, g := range b.groups {
		if strings.EqualFold(g.Symbol, symbol) {
			return true
		}
	}
	return false
}

// Snapshot returns copies of the live groups in insertion order.
func (b *Book) Snapshot() []models.BracketGroup {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]models.BracketGroup, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, copyGroup(b.groups[id]))
	}
	return out
}

// Get returns a copy of the group with id.
func (b *Book) Get(id string) (models.BracketGroup, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	g, ok := b.groups[id]
	if !ok {
		return models.BracketGroup{}, false
	}
	return copyGroup(g), true
}

// update runs fn over the live groups with the book locked, then drops
// groups fn left terminal and returns them.
func (b *Book) update(fn func(groups []*models.BracketGroup)) []*models.BracketGroup {
	b.mu.Lock()
	defer b.mu.Unlock()

	live := make([]*models.BracketGroup, 0, len(b.order))
	for _, id := range b.order {
		live = append(live, b.groups[id])
	}

	fn(live)

	var pruned []*models.BracketGroup
	kept := b.order[:0]
	for _, id := range b.order {
		g := b.groups[id]
		if g.Terminal() {
			pruned = append(pruned, g)
			delete(b.groups, id)
			continue
		}
		kept = append(kept, id)
	}
	b.order = kept
	metrics.LiveGroups.Set(float64(len(b.groups)))

	return pruned
}

func copyGroup(g *models.BracketGroup) models.BracketGroup {
	c := *g
	c.Entry = copyLeg(g.Entry)
	c.StopLoss = copyLeg(g.StopLoss)
	c.Target = copyLeg(g.Target)
	return c
}

func copyLeg(l *models.OrderLeg) *models.OrderLeg {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}
