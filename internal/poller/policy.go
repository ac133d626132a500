package poller

import (
	"fmt"
	"time"
)

// ExitPolicy decides whether another iteration may start. Exactly one
// policy governs a run and it is shared read-only by every worker.
type ExitPolicy interface {
	// Delay is how long to wait before the first iteration.
	Delay(now time.Time) time.Duration
	// Continue is asked at each iteration boundary with the number of
	// iterations completed so far.
	Continue(completed int, now time.Time) bool
	// Bound is the window end, zero for count policies.
	Bound() time.Time
	String() string
}

// CountPolicy allows exactly Max iterations.
type CountPolicy struct {
	Max int
}

func (p CountPolicy) Delay(time.Time) time.Duration            { return 0 }
func (p CountPolicy) Continue(completed int, _ time.Time) bool { return completed < p.Max }
func (p CountPolicy) Bound() time.Time                         { return time.Time{} }
func (p CountPolicy) String() string                           { return fmt.Sprintf("%d iterations", p.Max) }

// WindowPolicy polls between Start and End. An iteration that starts before
// End runs to completion.
type WindowPolicy struct {
	Start time.Time
	End   time.Time
}

func (p WindowPolicy) Delay(now time.Time) time.Duration {
	if now.Before(p.Start) {
		return p.Start.Sub(now)
	}
	return 0
}

func (p WindowPolicy) Continue(_ int, now time.Time) bool { return now.Before(p.End) }
func (p WindowPolicy) Bound() time.Time                   { return p.End }

func (p WindowPolicy) String() string {
	return fmt.Sprintf("window %s-%s", p.Start.Format("15:04:05"), p.End.Format("15:04:05"))
}
