package trader

import (
	"fmt"
	"sort"
	"sync"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// book is the trader's position map. Every check-then-act runs under mu.
// A reservation holds a key between the dedup check and order acceptance.
type book struct {
	mu        sync.Mutex
	positions map[string]*domain.Position
	reserved  map[domain.PositionKey]struct{}
}

func newBook() *book {
	return &book{
		positions: make(map[string]*domain.Position),
		reserved:  make(map[domain.PositionKey]struct{}),
	}
}

// activeLocked reports whether key is reserved or held by a non-terminal
// position. Caller holds mu.
func (b *book) activeLocked(key domain.PositionKey) bool {
	if _, ok := b.reserved[key]; ok {
		return true
	}
	for _, p := range b.positions {
		if p.Key() == key && !p.State.Terminal() {
			return true
		}
	}
	return false
}

func (b *book) active(key domain.PositionKey) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.activeLocked(key)
}

// reserve claims key for an order about to be placed.
func (b *book) reserve(key domain.PositionKey) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.activeLocked(key) {
		return fmt.Errorf("%w: %s", domain.ErrActivePosition, key)
	}
	b.reserved[key] = struct{}{}
	return nil
}

func (b *book) release(key domain.PositionKey) {
	b.mu.Lock()
	delete(b.reserved, key)
	b.mu.Unlock()
}

// commit turns a reservation into a tracked position.
func (b *book) commit(p domain.Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.reserved, p.Key())
	b.positions[p.ID] = &p
}

// restore adds a position loaded from the journal unless its key is taken.
func (b *book) restore(p domain.Position) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.positions[p.ID]; ok {
		return false
	}
	if !p.State.Terminal() && b.activeLocked(p.Key()) {
		return false
	}
	b.positions[p.ID] = &p
	return true
}

// list returns copies of every position, oldest first.
func (b *book) list() []domain.Position {
	b.mu.Lock()
	out := make([]domain.Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, *p)
	}
	b.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// open returns copies of the non-terminal positions, oldest first.
func (b *book) open() []domain.Position {
	all := b.list()
	out := all[:0]
	for _, p := range all {
		if !p.State.Terminal() {
			out = append(out, p)
		}
	}
	return out
}

// apply runs fn on the live position only if it is unchanged since seen was
// observed. It returns the updated copy and whether fn ran.
func (b *book) apply(seen domain.Position, fn func(p *domain.Position) error) (domain.Position, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.positions[seen.ID]
	if !ok || p.State != seen.State || !p.UpdatedAt.Equal(seen.UpdatedAt) {
		return domain.Position{}, false, nil
	}
	next := *p
	if err := fn(&next); err != nil {
		return *p, false, err
	}
	*p = next
	return next, true, nil
}

// purge removes terminal positions from periods before current.
func (b *book) purge(current int64) []domain.Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.Position
	for id, p := range b.positions {
		if p.State.Terminal() && p.PeriodTimestamp < current {
			out = append(out, *p)
			delete(b.positions, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
