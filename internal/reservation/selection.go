package reservation

import (
	"strconv"
	"strings"
	"time"
)

// Grid is a rendered camping availability table. Cells hold the raw text of
// every cell in a row, including non-date columns, so that column indexes
// line up with the header. AnchorIndex is the first date column and
// AnchorDate its date.
type Grid struct {
	AnchorIndex int
	AnchorDate  time.Time
	Rows        []GridRow
}

type GridRow struct {
	Site  string
	Cells []string
}

// SelectSite returns the first cell, scanning rows in order and columns left
// to right from the anchor, whose capacity covers the party. Rows for sites
// outside want are skipped; an empty want accepts every site.
func SelectSite(g Grid, c Criteria, want []string) (Candidate, bool) {
	if g.AnchorIndex < 0 || g.AnchorDate.IsZero() {
		return Candidate{}, false
	}
	for r, row := range g.Rows {
		if !matchUnit(want, row.Site) {
			continue
		}
		for k := g.AnchorIndex; k < len(row.Cells); k++ {
			capacity, ok := ParseCapacity(row.Cells[k])
			if !ok || capacity == 0 || capacity < c.Guests {
				continue
			}
			start := ColumnDate(g.AnchorDate, g.AnchorIndex, k)
			return Candidate{
				Unit:   row.Site,
				Row:    r,
				Column: k,
				Start:  start,
				End:    start.AddDate(0, 0, c.Nights()),
			}, true
		}
	}
	return Candidate{}, false
}

// DateButton is one permit availability button. Date is set when the label
// carries a full date; otherwise Day holds the day of month.
type DateButton struct {
	Date     time.Time
	Day      int
	Capacity int
}

// SelectPermitDate returns the first button for the criteria's start day
// whose capacity covers the party.
func SelectPermitDate(buttons []DateButton, c Criteria, entryPoint string) (Candidate, bool) {
	if c.Start.IsZero() {
		return Candidate{}, false
	}
	target := CivilDate(c.Start)
	for i, b := range buttons {
		if b.Capacity == 0 || b.Capacity < c.Guests {
			continue
		}
		if !b.Date.IsZero() {
			if !CivilDate(b.Date).Equal(target) {
				continue
			}
		} else if b.Day != target.Day() {
			continue
		}
		return Candidate{Unit: entryPoint, Column: i, Start: target}, true
	}
	return Candidate{}, false
}

// matchUnit compares site identities loosely: case and surrounding space are
// ignored, and numeric identities compare by value so "012" matches "12".
func matchUnit(want []string, got string) bool {
	if len(want) == 0 {
		return true
	}
	got = strings.TrimSpace(got)
	gn, gerr := strconv.Atoi(got)
	for _, w := range want {
		w = strings.TrimSpace(w)
		if strings.EqualFold(w, got) {
			return true
		}
		if wn, err := strconv.Atoi(w); err == nil && gerr == nil && wn == gn {
			return true
		}
	}
	return false
}
