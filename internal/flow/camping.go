package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/recsched/internal/browser"
	"github.com/example/recsched/internal/reservation"
)

const (
	selCampModalClose = `button[aria-label="Close modal"]`
	selCampTable      = ".rec-slider-container"
	selSiteTypes      = "#filter-menu-site-types"
	selEquipment      = "#filter-menu-equipment"
	selFilterItem     = ".filter-menu-checkbox-item"
	selCampStart      = "#campground-start-date-calendar"
	selCampEnd        = "#campground-end-date-calendar"
	selGridHeader     = "#availability-table thead th"
	selGridRows       = "#availability-table tbody tr"
	selGridStart      = "#availability-table .start"
	selGridEnd        = "#availability-table .end"

	scrollIntoView = "function() { this.scrollIntoView(); }"
)

var errRangeMismatch = errors.New("selected range does not match candidate")

// Camping books a stay at one campground.
type Camping struct {
	site *Site
	loc  reservation.LocationSpec
	log  *zap.Logger

	// cells of the last scanned grid, by row and column.
	cells [][]browser.Element
}

func NewCamping(site *Site, loc reservation.LocationSpec) *Camping {
	return &Camping{
		site: site,
		loc:  loc,
		log:  site.logger().Named("camping").With(zap.String("location", loc.Name())),
	}
}

func (c *Camping) Open(ctx context.Context) error  { return c.site.Open(ctx) }
func (c *Camping) LogIn(ctx context.Context) error { return c.site.LogIn(ctx) }

func (c *Camping) Locate(ctx context.Context) error {
	url, err := c.site.locate(ctx, "Camping & Lodging", c.loc.Campground, "/camping/campgrounds/")
	if err != nil {
		return err
	}
	if err := c.site.Handle.Navigate(ctx, url); err != nil {
		return err
	}

	// The campground page sometimes opens with an announcement modal.
	if err := c.site.clickOne(ctx, selCampModalClose); err != nil {
		c.log.Debug("no campground modal", zap.Error(err))
	}
	table, err := c.site.one(ctx, selCampTable)
	if err != nil {
		return err
	}
	if err := c.site.Handle.RunScript(ctx, scrollIntoView, table); err != nil {
		return err
	}
	return c.site.pause(ctx, c.site.Timing.Wait)
}

func (c *Camping) Configure(ctx context.Context, crit reservation.Criteria) (reservation.Criteria, error) {
	if err := c.filter(ctx, selSiteTypes, crit.SiteTypes); err != nil {
		return crit, fmt.Errorf("site types: %w", err)
	}
	if err := c.filter(ctx, selEquipment, crit.Equipment); err != nil {
		return crit, fmt.Errorf("equipment: %w", err)
	}

	if crit.NextAvailable {
		if err := c.site.clickText(ctx, "button", textNextAvailable); err != nil {
			return crit, err
		}
		if err := c.site.pause(ctx, c.site.Timing.Wait); err != nil {
			return crit, err
		}
		start, err := c.readDate(ctx, selCampStart)
		if err != nil {
			return crit, err
		}
		end, err := c.readDate(ctx, selCampEnd)
		if err != nil || !end.After(start) {
			end = start.AddDate(0, 0, 1)
		}
		crit = crit.WithResolvedDate(start, end)
	} else {
		end := crit.End
		if end.IsZero() {
			end = crit.Start.AddDate(0, 0, 1)
		}
		if err := c.site.typeInto(ctx, selCampStart, reservation.NumericDate(crit.Start)+browser.KeyTab); err != nil {
			return crit, err
		}
		if err := c.site.typeInto(ctx, selCampEnd, reservation.NumericDate(end)+browser.KeyTab); err != nil {
			return crit, err
		}
	}

	if err := c.site.clickText(ctx, "button", "Refresh Table"); err != nil {
		return crit, err
	}
	return crit, c.site.pause(ctx, c.site.Timing.Wait)
}

// filter ticks the options of a filter menu whose first word appears in
// wanted. Options are looked up in the menu's own container so menus never
// tick each other's boxes. Nothing is touched when wanted is empty or the
// menu is absent.
func (c *Camping) filter(ctx context.Context, menu string, wanted []string) error {
	if len(wanted) == 0 {
		return nil
	}
	toggles, err := c.site.Handle.Find(ctx, menu)
	if err != nil || len(toggles) == 0 {
		return err
	}
	if err := c.site.Handle.Click(ctx, toggles[0]); err != nil {
		return err
	}
	// Ancestors match in document order, so the last one is the direct parent.
	parents, err := c.site.Handle.Find(ctx, ":has("+menu+")")
	if err != nil {
		return err
	}
	if len(parents) == 0 {
		return fmt.Errorf("%w: container of %s", browser.ErrNoElement, menu)
	}
	container := parents[len(parents)-1]

	want := strings.ToLower(strings.Join(wanted, ", "))
	items, err := c.site.Handle.FindWithin(ctx, container, selFilterItem)
	if err != nil {
		return err
	}
	for _, item := range items {
		text, _, err := c.site.Handle.Read(ctx, item, "")
		if err != nil {
			return err
		}
		words := strings.Fields(strings.ToLower(text))
		if len(words) == 0 || !strings.Contains(want, words[0]) {
			continue
		}
		boxes, err := c.site.Handle.FindWithin(ctx, item, "input")
		if err != nil {
			return err
		}
		if len(boxes) == 0 {
			c.log.Debug("filter option without a checkbox", zap.String("option", text))
			continue
		}
		if _, checked, err := c.site.Handle.Read(ctx, boxes[0], "checked"); err != nil {
			return err
		} else if checked {
			continue
		}
		if err := c.site.Handle.Click(ctx, boxes[0]); err != nil {
			return err
		}
	}
	return c.site.clickTextWithin(ctx, container, "button", "Apply")
}

func (c *Camping) readDate(ctx context.Context, selector string) (time.Time, error) {
	v, err := c.site.readValue(ctx, selector)
	if err != nil {
		return time.Time{}, err
	}
	return reservation.ParseNumericDate(v)
}

func (c *Camping) Scan(ctx context.Context, crit reservation.Criteria) (reservation.Candidate, bool, error) {
	if err := c.site.clickIfPresent(ctx, "Clear selection"); err != nil {
		return reservation.Candidate{}, false, err
	}
	grid, err := c.readGrid(ctx)
	if err != nil {
		return reservation.Candidate{}, false, err
	}
	cand, ok := reservation.SelectSite(grid, crit, c.loc.Sites)
	return cand, ok, nil
}

// readGrid captures the availability table. The anchor is the first header
// cell whose label parses as a date.
func (c *Camping) readGrid(ctx context.Context) (reservation.Grid, error) {
	h := c.site.Handle
	grid := reservation.Grid{AnchorIndex: -1}
	c.cells = nil

	headers, err := h.Find(ctx, selGridHeader)
	if err != nil {
		return grid, err
	}
	for i, th := range headers {
		label, err := c.site.label(ctx, th)
		if err != nil {
			return grid, err
		}
		if label == "" {
			if label, _, err = h.Read(ctx, th, ""); err != nil {
				return grid, err
			}
		}
		if d, err := reservation.ParseShortDate(label); err == nil {
			grid.AnchorIndex, grid.AnchorDate = i, d
			break
		}
	}
	if grid.AnchorIndex < 0 {
		c.log.Debug("availability table has no dated column")
		return grid, nil
	}

	rows, err := h.Find(ctx, selGridRows)
	if err != nil {
		return grid, err
	}
	for _, tr := range rows {
		cells, err := h.FindWithin(ctx, tr, "th, td")
		if err != nil {
			return grid, err
		}
		if len(cells) == 0 {
			continue
		}
		texts := make([]string, len(cells))
		for i, cell := range cells {
			if texts[i], _, err = h.Read(ctx, cell, ""); err != nil {
				return grid, err
			}
		}
		grid.Rows = append(grid.Rows, reservation.GridRow{Site: texts[0], Cells: texts})
		c.cells = append(c.cells, cells)
	}
	return grid, nil
}

func (c *Camping) Book(ctx context.Context, cand reservation.Candidate) error {
	if cand.Row < 0 || cand.Row >= len(c.cells) || cand.Column >= len(c.cells[cand.Row]) {
		return fmt.Errorf("candidate %s is not on the scanned grid", cand.Unit)
	}
	row := c.cells[cand.Row]
	endCol := cand.Column + reservation.DaysBetween(cand.Start, cand.End)
	if endCol <= cand.Column || endCol >= len(row) {
		return fmt.Errorf("stay %s runs past the rendered grid", cand.Dates())
	}

	for _, col := range []int{cand.Column, endCol} {
		if err := c.site.Handle.Click(ctx, row[col]); err != nil {
			return err
		}
		if err := c.site.pause(ctx, c.site.Timing.Wait); err != nil {
			return err
		}
	}
	if err := c.verifyRange(ctx, cand); err != nil {
		return err
	}
	return c.site.checkout(ctx, "Add to Cart")
}

// verifyRange re-reads the highlighted start and end cells. A missing
// highlight usually means the page had not finished rendering; a highlight
// on other dates points at a column to date mapping problem.
func (c *Camping) verifyRange(ctx context.Context, cand reservation.Candidate) error {
	starts, err := c.site.Handle.Find(ctx, selGridStart)
	if err != nil {
		return err
	}
	ends, err := c.site.Handle.Find(ctx, selGridEnd)
	if err != nil {
		return err
	}
	if len(starts) == 0 || len(ends) == 0 {
		c.log.Warn("range highlight missing",
			zap.String("mismatch", "render_race"),
			zap.Int("start_cells", len(starts)), zap.Int("end_cells", len(ends)))
		return fmt.Errorf("%w: highlight missing", errRangeMismatch)
	}

	startLabel, err := c.site.label(ctx, starts[0])
	if err != nil {
		return err
	}
	endLabel, err := c.site.label(ctx, ends[0])
	if err != nil {
		return err
	}
	wantStart, wantEnd := reservation.ShortDate(cand.Start), reservation.ShortDate(cand.End)
	if !containsFold(startLabel, wantStart) || !containsFold(endLabel, wantEnd) {
		c.log.Warn("range highlight on unexpected dates",
			zap.String("mismatch", "wrong_date"),
			zap.String("want_start", wantStart), zap.String("got_start", startLabel),
			zap.String("want_end", wantEnd), zap.String("got_end", endLabel))
		return fmt.Errorf("%w: got %q to %q", errRangeMismatch, startLabel, endLabel)
	}
	return nil
}

func (c *Camping) Authenticated(ctx context.Context) (bool, error) { return c.site.Authenticated(ctx) }
func (c *Camping) DismissLogin(ctx context.Context) error          { return c.site.DismissLogin(ctx) }
