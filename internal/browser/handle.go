// Package browser is the automation surface the reservation flows drive. A
// Handle is exclusively owned by one worker.
package browser

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInteraction wraps any failure to talk to the page.
	ErrInteraction = errors.New("browser interaction failed")
	// ErrNoElement is returned by helpers that need exactly one element.
	ErrNoElement = errors.New("element not found")
	ErrClosed    = errors.New("browser handle closed")
)

// Keys understood by Type when appended to the text.
const (
	KeyEnter = "\r"
	KeyTab   = "\t"
)

// Element is an opaque reference to a node found through a Handle. It is
// only valid on the Handle that returned it.
type Element interface {
	Describe() string
}

// Condition is polled by WaitUntil.
type Condition func(ctx context.Context) (bool, error)

type Handle interface {
	Navigate(ctx context.Context, url string) error
	// Find returns every element matching the CSS selector, possibly none.
	Find(ctx context.Context, selector string) ([]Element, error)
	FindWithin(ctx context.Context, parent Element, selector string) ([]Element, error)
	// Read returns the visible text when attr is empty, otherwise the named
	// attribute. ok is false when the attribute is absent.
	Read(ctx context.Context, el Element, attr string) (value string, ok bool, err error)
	Click(ctx context.Context, el Element) error
	// Type replaces the field's value with text. KeyEnter and KeyTab may be
	// appended.
	Type(ctx context.Context, el Element, text string) error
	WaitUntil(ctx context.Context, cond Condition, timeout time.Duration) (bool, error)
	// RunScript calls a JavaScript function declaration with the elements
	// as arguments; the first one is also bound to this.
	RunScript(ctx context.Context, script string, args ...Element) error
	Close() error
}

const pollInterval = 100 * time.Millisecond

// Poll evaluates cond until it reports true, the timeout elapses or ctx is
// done. Condition errors are treated as "not yet".
func Poll(ctx context.Context, cond Condition, timeout, interval time.Duration) (bool, error) {
	if interval <= 0 {
		interval = pollInterval
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		if ok, err := cond(ctx); err == nil && ok {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-deadline.C:
			return false, nil
		case <-tick.C:
		}
	}
}
