// Package status keeps a live view of every worker in a run for the status
// server.
package status

import (
	"sync"
	"time"

	"github.com/example/recsched/internal/poller"
	"github.com/example/recsched/internal/reservation"
)

// Entry is the latest known state of one worker.
type Entry struct {
	Location  string             `json:"location"`
	Kind      reservation.Kind   `json:"kind"`
	State     string             `json:"state"`
	Iteration int                `json:"iteration"`
	Status    reservation.Status `json:"status,omitempty"`
	Reason    string             `json:"reason,omitempty"`
	Updated   time.Time          `json:"updated"`
}

// Board is safe for concurrent use. A nil *Board ignores every update.
type Board struct {
	mu      sync.RWMutex
	entries []Entry
	now     func() time.Time
}

func NewBoard(locs []reservation.LocationSpec) *Board {
	b := &Board{entries: make([]Entry, len(locs)), now: time.Now}
	for i, l := range locs {
		b.entries[i] = Entry{
			Location: l.Name(),
			Kind:     l.Kind,
			State:    poller.StateStart.String(),
			Updated:  b.now(),
		}
	}
	return b
}

// Observe returns the engine callback for worker i.
func (b *Board) Observe(i int) func(poller.State, int) {
	if b == nil {
		return nil
	}
	return func(s poller.State, iteration int) {
		b.update(i, func(e *Entry) {
			e.State = s.String()
			e.Iteration = iteration
		})
	}
}

// Finish records the terminal result of worker i.
func (b *Board) Finish(i int, res reservation.Result) {
	if b == nil {
		return
	}
	b.update(i, func(e *Entry) {
		e.State = poller.StateTerminal.String()
		e.Iteration = res.Iterations
		e.Status = res.Status
		e.Reason = res.Reason
	})
}

func (b *Board) update(i int, fn func(*Entry)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i < 0 || i >= len(b.entries) {
		return
	}
	fn(&b.entries[i])
	b.entries[i].Updated = b.now()
}

// Snapshot returns a copy of all entries in target order.
func (b *Board) Snapshot() []Entry {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Entry(nil), b.entries...)
}

// Done reports whether every worker reached a terminal state.
func (b *Board) Done() bool {
	for _, e := range b.Snapshot() {
		if e.Status == "" {
			return false
		}
	}
	return true
}
