package flow

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/example/recsched/internal/browser"
	"github.com/example/recsched/internal/secrets"
)

const (
	baseURL       = "https://www.recreation.gov/"
	campgroundURL = "https://www.recreation.gov/camping/campgrounds/232447"
	permitURL     = "https://www.recreation.gov/permits/233273/registration/detailed-availability"
)

const homePage = `<html><body>
<a id="ga-global-nav-log-in-link" href="#">Log In</a>
<form class="sign-in">
  <input id="email"><input id="rec-acct-sign-in-password" type="password">
  <button class="rec-acct-sign-in-btn" type="submit">Log In</button>
</form>
<button><h3 data-component="Heading" class="h3">Camping &amp; Lodging</h3></button>
<button><h3 data-component="Heading" class="h3">Permits</h3></button>
<input placeholder="Where to?" id="hero-search-input">
<a href="/camping/campgrounds/232447" title="Upper Pines">Upper Pines</a>
<a href="/permits/233273" title="Enchantment Permit Area">Enchantments</a>
</body></html>`

// campgroundPage renders an availability table starting Jun 10, 2025 with
// three descriptive columns before the dates.
func campgroundPage(rows map[string][]string, order ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body>
<button aria-label="Close modal">x</button>
<div class="filters">
  <button id="filter-menu-site-types">Site type</button>
  <label class="filter-menu-checkbox-item">Standard Nonelectric<input type="checkbox"></label>
  <label class="filter-menu-checkbox-item">Group Standard<input type="checkbox"></label>
  <button><span>Apply</span></button>
</div>
<input id="campground-start-date-calendar" value="">
<input id="campground-end-date-calendar" value="">
<button><span>Next Available</span></button>
<button><span>Refresh Table</span></button>
<button><span>Clear selection</span></button>
<div class="rec-slider-container">
<table id="availability-table"><thead><tr><th>Site</th><th>Loop</th><th>Type</th>`)
	for d := 10; d <= 15; d++ {
		fmt.Fprintf(&b, `<th aria-label="Jun %d, 2025">%d</th>`, d, d)
	}
	b.WriteString(`</tr></thead><tbody>`)
	for _, site := range order {
		fmt.Fprintf(&b, `<tr><th>%s</th><td>Loop A</td><td>Tent</td>`, site)
		for i, c := range rows[site] {
			fmt.Fprintf(&b, `<td class="rec-availability-date" aria-label="Jun %d, 2025 - Site %s">%s</td>`, 10+i, site, c)
		}
		b.WriteString(`</tr>`)
	}
	b.WriteString(`</tbody></table></div>
<button><span>Add to Cart</span></button>
</body></html>`)
	return b.String()
}

const permitPage = `<html><body>
<select id="permit-type">
  <option value="day">Day Use</option>
  <option value="overnight">Overnight</option>
</select>
<input type="radio" id="prompt-answer-yes1"><input type="radio" id="prompt-answer-no1">
<input id="guest-counter" value="0">
<button aria-label="Add guests">+</button>
<input id="SingleDatePicker1" value="">
<button><span>Next Available</span></button>
<button><span>Filters</span></button>
<button><span>Clear Dates</span></button>
<div class="rec-grid-row"><div class="rec-grid-cell">Colchuck Zone</div>
  <div class="rec-grid-grid-cell available"><button aria-label="July 3
9 out of 10">9</button></div>
  <div class="rec-grid-grid-cell available"><button aria-label="July 4
1 out of 10">1</button></div>
</div>
<div class="rec-grid-row"><div class="rec-grid-cell">Core Enchantment Zone</div>
  <div class="rec-grid-grid-cell available"><button aria-label="July 4
4 out of 5">4</button></div>
</div>
<button><span>Book Now</span></button>
</body></html>`

// wireSite installs the behaviour of the live site on a static handle:
// logging in, range highlighting and the checkout login prompt.
func wireSite(h *browser.Static, loggedIn *bool) {
	h.OnClick("button.rec-acct-sign-in-btn", func(doc *goquery.Document, _ *goquery.Selection) {
		doc.Find("#ga-global-nav-log-in-link").Remove()
		*loggedIn = true
	})
	h.OnClick("td", func(doc *goquery.Document, el *goquery.Selection) {
		if doc.Find("#availability-table .start").Length() == 0 {
			el.AddClass("start")
			return
		}
		el.AddClass("end")
	})
	h.OnClick("button", func(doc *goquery.Document, el *goquery.Selection) {
		switch strings.TrimSpace(el.Text()) {
		case "Clear selection":
			doc.Find(".start").RemoveClass("start")
			doc.Find(".end").RemoveClass("end")
		case "Add to Cart", "Book Now":
			if *loggedIn {
				doc.Find("body").AppendHtml(`<div id="cart-checkout">Order details</div>`)
				return
			}
			doc.Find("body").AppendHtml(`<button id="login-prompt"><span>Close Log In</span></button>`)
		case "Close Log In":
			el.Remove()
		}
	})
}

func newSite(t *testing.T, h browser.Handle, login bool, logger *zap.Logger) *Site {
	t.Helper()
	return &Site{
		Handle:      h,
		BaseURL:     baseURL,
		Login:       login,
		Credentials: secrets.Credentials{Username: "camper@example.com", Password: "pw"},
		Timing:      Timing{Wait: time.Millisecond, LongDelay: 200 * time.Millisecond},
		Logger:      logger,
		Sleep:       func(ctx context.Context, _ time.Duration) error { return ctx.Err() },
	}
}
