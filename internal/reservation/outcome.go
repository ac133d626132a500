package reservation

import (
	"fmt"
	"strings"
	"time"
)

// OutcomeKind tags the result of one polling iteration.
type OutcomeKind int

const (
	OutcomeNoMatch OutcomeKind = iota
	OutcomeBooked
	OutcomeTransient
	OutcomeAbort
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeNoMatch:
		return "no_match"
	case OutcomeBooked:
		return "booked"
	case OutcomeTransient:
		return "transient"
	case OutcomeAbort:
		return "abort"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is what an iteration produced. Candidate is set for
// OutcomeBooked, Reason for OutcomeTransient and OutcomeAbort.
type Outcome struct {
	Kind      OutcomeKind
	Candidate Candidate
	Reason    string
}

func Booked(c Candidate) Outcome      { return Outcome{Kind: OutcomeBooked, Candidate: c} }
func NoMatch() Outcome                { return Outcome{Kind: OutcomeNoMatch} }
func Transient(reason string) Outcome { return Outcome{Kind: OutcomeTransient, Reason: reason} }
func Abort(reason string) Outcome     { return Outcome{Kind: OutcomeAbort, Reason: reason} }

type Status string

const (
	StatusBooked        Status = "booked"
	StatusAwaitingHuman Status = "awaiting_human"
	StatusExhausted     Status = "exhausted"
	StatusAborted       Status = "aborted"
	StatusFatal         Status = "fatal"
)

// Result is the terminal report of one location.
type Result struct {
	Location   LocationSpec
	Status     Status
	Candidate  *Candidate
	Iterations int
	WindowEnd  time.Time
	Reason     string
}

// Success reports whether the location reached checkout while authenticated.
func (r Result) Success() bool {
	return r.Status == StatusBooked || r.Status == StatusAwaitingHuman
}

func (r Result) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", r.Location.Name(), r.Status)
	switch r.Status {
	case StatusBooked, StatusAwaitingHuman:
		if r.Candidate != nil {
			fmt.Fprintf(&b, ", %s for %s", r.Candidate.Unit, r.Candidate.Dates())
		}
	case StatusExhausted:
		fmt.Fprintf(&b, ", tried %d times", r.Iterations)
		if !r.WindowEnd.IsZero() {
			fmt.Fprintf(&b, ", reached timeout %s", r.WindowEnd.Format("15:04:05"))
		}
	}
	if r.Reason != "" {
		fmt.Fprintf(&b, " (%s)", r.Reason)
	}
	return b.String()
}
