package reservation

import (
	"errors"
	"fmt"
	"time"
)

type Kind string

const (
	KindCamping Kind = "camping"
	KindPermit  Kind = "permit"
)

// ErrPolicyAbort marks a configuration the site will never accept for this
// run (for example a commercial trip). It ends the run without retrying.
var ErrPolicyAbort = errors.New("policy abort")

// Criteria is what a worker searches for. Values are copied into each worker
// and never mutated; WithResolvedDate returns a new value.
type Criteria struct {
	Guests int

	// Start is the first night (camping) or the entry date (permit).
	// End is the check-out day and is only used by camping.
	Start time.Time
	End   time.Time

	// NextAvailable is set when no usable date was configured. The first
	// iteration asks the site for its next available date.
	NextAvailable bool

	TripType   []string
	SiteTypes  []string
	Equipment  []string
	Commercial bool
}

// WithResolvedDate concretizes a next-available search. end may be zero.
func (c Criteria) WithResolvedDate(start, end time.Time) Criteria {
	c.Start = CivilDate(start)
	if end.IsZero() {
		c.End = time.Time{}
	} else {
		c.End = CivilDate(end)
	}
	c.NextAvailable = false
	c.TripType = cloneStrings(c.TripType)
	c.SiteTypes = cloneStrings(c.SiteTypes)
	c.Equipment = cloneStrings(c.Equipment)
	return c
}

// Nights is the length of a camping stay. A criteria without an end date
// stays one night.
func (c Criteria) Nights() int {
	if c.Start.IsZero() || c.End.IsZero() || !c.End.After(c.Start) {
		return 1
	}
	return DaysBetween(c.Start, c.End)
}

func (c Criteria) Validate(kind Kind) error {
	if c.Guests < 1 {
		return fmt.Errorf("guests must be at least 1, got %d", c.Guests)
	}
	if c.NextAvailable {
		return nil
	}
	if c.Start.IsZero() {
		return fmt.Errorf("start date is required unless searching next available")
	}
	if kind == KindCamping && !c.End.IsZero() && !c.End.After(c.Start) {
		return fmt.Errorf("end date %s must be after start date %s", NumericDate(c.End), NumericDate(c.Start))
	}
	return nil
}

// Candidate identifies a bookable unit found by a scan, by position in the
// scanned surface.
type Candidate struct {
	Unit   string
	Row    int
	Column int
	Start  time.Time
	End    time.Time
}

// Dates renders the candidate's dates the way the site prints them.
func (c Candidate) Dates() string {
	if c.End.IsZero() {
		return NumericDate(c.Start)
	}
	return NumericDate(c.Start) + "-" + NumericDate(c.End)
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
