package flow

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/recsched/internal/browser"
	"github.com/example/recsched/internal/reservation"
)

const (
	selPermitType      = "#permit-type"
	selCommercialYes   = "#prompt-answer-yes1"
	selCommercialNo    = "#prompt-answer-no1"
	selGuestCount      = "#guest-counter"
	selPermitDate      = "#SingleDatePicker1"
	selDivisionSearch  = "#division-search-input"
	selPermitRows      = ".rec-grid-row"
	selPermitAvailable = ".rec-grid-grid-cell.available button"

	selectOption = "function(select, option) { select.value = option.value; select.dispatchEvent(new Event('change', {bubbles: true})); }"
)

// Add-guest buttons differ between permit page layouts.
var addGuestSelectors = []string{
	`button[aria-label="Add guests"]`,
	`button[aria-label="Add group members"]`,
}

// Permit books an entry date for one permit area.
type Permit struct {
	site *Site
	loc  reservation.LocationSpec
	log  *zap.Logger
	url  string

	buttons []browser.Element
}

func NewPermit(site *Site, loc reservation.LocationSpec) *Permit {
	return &Permit{
		site: site,
		loc:  loc,
		log:  site.logger().Named("permit").With(zap.String("location", loc.Name())),
	}
}

func (p *Permit) Open(ctx context.Context) error  { return p.site.Open(ctx) }
func (p *Permit) LogIn(ctx context.Context) error { return p.site.LogIn(ctx) }

func (p *Permit) Locate(ctx context.Context) error {
	url, err := p.site.locate(ctx, "Permits", p.loc.Park, "/permits/")
	if err != nil {
		return err
	}
	p.url = url + "/registration/detailed-availability"
	return p.site.Handle.Navigate(ctx, p.url)
}

// Configure reloads the availability page and fills in the scheduling
// details from scratch.
func (p *Permit) Configure(ctx context.Context, crit reservation.Criteria) (reservation.Criteria, error) {
	if err := p.site.Handle.Navigate(ctx, p.url); err != nil {
		return crit, err
	}
	if err := p.tripType(ctx, crit.TripType); err != nil {
		return crit, fmt.Errorf("permit type: %w", err)
	}
	if err := p.commercial(ctx, crit.Commercial); err != nil {
		return crit, err
	}
	if err := p.guests(ctx, crit.Guests); err != nil {
		return crit, fmt.Errorf("guests: %w", err)
	}

	if !crit.NextAvailable {
		if err := p.site.typeInto(ctx, selPermitDate, reservation.NumericDate(crit.Start)+browser.KeyTab); err != nil {
			return crit, err
		}
		return crit, p.site.pause(ctx, p.site.Timing.Wait)
	}

	if err := p.site.clickText(ctx, "button", textNextAvailable); err != nil {
		return crit, err
	}
	if err := p.site.pause(ctx, p.site.Timing.Wait); err != nil {
		return crit, err
	}
	v, err := p.site.readValue(ctx, selPermitDate)
	if err != nil {
		return crit, err
	}
	start, err := reservation.ParseNumericDate(v)
	if err != nil {
		return crit, fmt.Errorf("next available date: %w", err)
	}
	return crit.WithResolvedDate(start, time.Time{}), nil
}

func (p *Permit) tripType(ctx context.Context, wanted []string) error {
	selects, err := p.site.Handle.Find(ctx, selPermitType)
	if err != nil || len(selects) == 0 {
		return err
	}
	options, err := p.site.Handle.FindWithin(ctx, selects[0], "option")
	if err != nil {
		return err
	}
	texts := make([]string, len(options))
	for i, o := range options {
		if texts[i], _, err = p.site.Handle.Read(ctx, o, ""); err != nil {
			return err
		}
	}
	i := pickTripType(texts, wanted)
	if i < 0 {
		return nil
	}
	return p.site.Handle.RunScript(ctx, selectOption, selects[0], options[i])
}

// pickTripType returns the option whose text appears in the wanted types.
// Overnight is the default. Mt Whitney pages list an "Overnight" option
// alongside the specific ones, so it is skipped when Whitney is wanted.
func pickTripType(options, wanted []string) int {
	want := strings.ToLower(strings.Join(wanted, ", "))
	if want == "" {
		want = "overnight"
	}
	whitney := strings.Contains(want, "mt whitney")
	for i, o := range options {
		o = strings.ToLower(strings.TrimSpace(o))
		if o == "" || !strings.Contains(want, o) {
			continue
		}
		if whitney && o == "overnight" {
			continue
		}
		return i
	}
	return -1
}

func (p *Permit) commercial(ctx context.Context, commercial bool) error {
	sel := selCommercialNo
	if commercial {
		sel = selCommercialYes
	}
	radios, err := p.site.Handle.Find(ctx, sel)
	if err != nil {
		return err
	}
	if len(radios) > 0 {
		if err := p.site.Handle.Click(ctx, radios[0]); err != nil {
			return err
		}
	}
	if commercial {
		return fmt.Errorf("%w: %s is configured as a commercial trip", reservation.ErrPolicyAbort, p.loc.Name())
	}
	return nil
}

// guests raises the group size to n with the add buttons. The current count
// is read back first so that reapplying is a no-op.
func (p *Permit) guests(ctx context.Context, n int) error {
	current := 0
	if v, err := p.site.readValue(ctx, selGuestCount); err == nil {
		if c, err := strconv.Atoi(v); err == nil {
			current = c
		}
	}
	for _, sel := range addGuestSelectors {
		buttons, err := p.site.Handle.Find(ctx, sel)
		if err != nil {
			return err
		}
		if len(buttons) == 0 {
			continue
		}
		for i := current; i < n; i++ {
			if err := p.site.Handle.Click(ctx, buttons[0]); err != nil {
				return err
			}
		}
		return nil
	}
	return nil
}

// Scan looks for an available date for each wanted entry point in order.
// Without entry points the whole grid is considered.
func (p *Permit) Scan(ctx context.Context, crit reservation.Criteria) (reservation.Candidate, bool, error) {
	p.buttons = nil
	entries := p.loc.EntryPoints
	if len(entries) == 0 {
		entries = []string{""}
	}
	for _, entry := range entries {
		if entry != "" {
			if err := p.searchEntry(ctx, entry); err != nil {
				return reservation.Candidate{}, false, err
			}
		}
		if err := p.site.clickIfPresent(ctx, "Clear Dates"); err != nil {
			return reservation.Candidate{}, false, err
		}
		buttons, elements, err := p.readButtons(ctx, entry, crit)
		if err != nil {
			return reservation.Candidate{}, false, err
		}
		p.log.Debug("scanned entry point", zap.String("entry", entry), zap.Int("available", len(buttons)))
		if cand, ok := reservation.SelectPermitDate(buttons, crit, entry); ok {
			p.buttons = elements
			return cand, true, nil
		}
	}
	return reservation.Candidate{}, false, nil
}

func (p *Permit) searchEntry(ctx context.Context, entry string) error {
	inputs, err := p.site.Handle.Find(ctx, selDivisionSearch)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		if err := p.site.clickText(ctx, "button", "Filters"); err != nil {
			return err
		}
	}
	if err := p.site.typeInto(ctx, selDivisionSearch, entry+browser.KeyEnter); err != nil {
		return err
	}
	return p.site.pause(ctx, p.site.Timing.Wait)
}

func (p *Permit) readButtons(ctx context.Context, entry string, crit reservation.Criteria) ([]reservation.DateButton, []browser.Element, error) {
	h := p.site.Handle
	rows, err := h.Find(ctx, selPermitRows)
	if err != nil {
		return nil, nil, err
	}
	var (
		buttons  []reservation.DateButton
		elements []browser.Element
	)
	for _, row := range rows {
		if entry != "" {
			text, _, err := h.Read(ctx, row, "")
			if err != nil {
				return nil, nil, err
			}
			if !containsFold(text, entry) {
				continue
			}
		}
		found, err := h.FindWithin(ctx, row, selPermitAvailable)
		if err != nil {
			return nil, nil, err
		}
		for _, b := range found {
			label, ok, err := h.Read(ctx, b, "aria-label")
			if err != nil {
				return nil, nil, err
			}
			if !ok {
				if label, _, err = h.Read(ctx, b, ""); err != nil {
					return nil, nil, err
				}
			}
			day, capacity, ok := ParsePermitLabel(label)
			if !ok {
				continue
			}
			if day == 0 && !crit.Start.IsZero() {
				day = crit.Start.Day()
			}
			buttons = append(buttons, reservation.DateButton{Day: day, Capacity: capacity})
			elements = append(elements, b)
		}
	}
	return buttons, elements, nil
}

// ParsePermitLabel reads an availability button label such as
// "June 10\n3 out of 10". A bare count, as rendered on some pages, yields
// day 0.
func ParsePermitLabel(label string) (day, capacity int, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(label), "\n", 2)
	if len(parts) == 1 {
		capacity, ok = reservation.ParseCapacity(parts[0])
		return 0, capacity, ok
	}
	day = firstDayOfMonth(parts[0])
	capacity, ok = reservation.ParseCapacity(strings.SplitN(parts[1], "out of", 2)[0])
	if day == 0 {
		return 0, 0, false
	}
	return day, capacity, ok
}

func firstDayOfMonth(s string) int {
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return r < '0' || r > '9' }) {
		if n, err := strconv.Atoi(f); err == nil && n >= 1 && n <= 31 {
			return n
		}
	}
	return 0
}

func (p *Permit) Book(ctx context.Context, cand reservation.Candidate) error {
	if cand.Column < 0 || cand.Column >= len(p.buttons) {
		return fmt.Errorf("candidate %s is not on the scanned grid", cand.Unit)
	}
	if err := p.site.Handle.Click(ctx, p.buttons[cand.Column]); err != nil {
		return err
	}
	if err := p.site.pause(ctx, p.site.Timing.Wait); err != nil {
		return err
	}
	return p.site.checkout(ctx, "Book Now")
}

func (p *Permit) Authenticated(ctx context.Context) (bool, error) { return p.site.Authenticated(ctx) }
func (p *Permit) DismissLogin(ctx context.Context) error          { return p.site.DismissLogin(ctx) }
