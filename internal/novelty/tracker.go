// Package novelty keeps the per-kind bookkeeping that separates events we
// already notified about from not-yet-seen ones.
//
// Id-bearing kinds (reviews, questions) are tracked by a seen-id registry;
// window-only kinds (aggregate sales) by a monotonic time cursor. State is
// in-memory only: after a restart all cursors reset to "unknown" and at most
// one duplicate burst is tolerated.
package novelty

import (
	"sync"
	"time"

	"sellerbot/internal/marketplace"
)

// retention bounds how long an id stays in the registry after it was last
// observed in a fetch. Unanswered reviews disappear from the feed once
// answered, so anything not observed for this long is safe to forget.
const retention = 48 * time.Hour

type Tracker struct {
	mu sync.Mutex

	// seen maps kind -> id -> last time the id was observed in a fetch.
	seen map[marketplace.Kind]map[string]time.Time

	// cursors maps window-only kinds to the end of the last covered window.
	cursors map[marketplace.Kind]time.Time

	// last holds the most recent id observed per kind, for logging.
	last map[marketplace.Kind]string

	now func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		seen:    map[marketplace.Kind]map[string]time.Time{},
		cursors: map[marketplace.Kind]time.Time{},
		last:    map[marketplace.Kind]string{},
		now:     time.Now,
	}
}

// FilterNew classifies the fetched ids of one polling cycle. It returns the
// ids never observed before, preserving remote order, and marks every input
// id as observed. Calling it twice with the same ids returns nothing the
// second time; an empty input changes nothing.
func (t *Tracker) FilterNew(kind marketplace.Kind, ids []string) []string {
	if len(ids) == 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	reg := t.seen[kind]
	if reg == nil {
		reg = map[string]time.Time{}
		t.seen[kind] = reg
	}

	now := t.now()
	var fresh []string
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := reg[id]; !ok {
			fresh = append(fresh, id)
		}
		reg[id] = now
		t.last[kind] = id
	}

	t.pruneLocked(kind, now)
	return fresh
}

// Window returns the cursor for a window-only kind and whether it is set.
func (t *Tracker) Window(kind marketplace.Kind) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.cursors[kind]
	return c, ok
}

// AdvanceWindow moves the cursor forward. It never rewinds: an earlier
// timestamp is ignored, so a failed or empty cycle cannot regress state.
func (t *Tracker) AdvanceWindow(kind marketplace.Kind, to time.Time) {
	if to.IsZero() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.cursors[kind]; ok && !to.After(cur) {
		return
	}
	t.cursors[kind] = to
}

// LastSeen returns the most recently observed id for a kind ("" if none).
func (t *Tracker) LastSeen(kind marketplace.Kind) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last[kind]
}

func (t *Tracker) pruneLocked(kind marketplace.Kind, now time.Time) {
	reg := t.seen[kind]
	for id, at := range reg {
		if now.Sub(at) > retention {
			delete(reg, id)
		}
	}
}
