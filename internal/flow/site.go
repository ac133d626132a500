// Package flow holds the recreation.gov page flows for camping and permit
// reservations. Selectors live here and nowhere else.
package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/recsched/internal/browser"
	"github.com/example/recsched/internal/secrets"
)

const (
	selLoginLink      = "#ga-global-nav-log-in-link"
	selEmail          = "#email"
	selPassword       = "#rec-acct-sign-in-password"
	selSignIn         = "button.rec-acct-sign-in-btn[type=submit]"
	selSearch         = `input[placeholder*="Where to"]`
	selCheckout       = `[data-component="Checkout"], #cart-checkout`
	textCloseLogIn    = "Close Log In"
	textNextAvailable = "Next Available"
)

type Timing struct {
	// Wait is the settle pause after an interaction.
	Wait time.Duration
	// LongDelay bounds page transitions such as login and checkout.
	LongDelay time.Duration
}

// Site is the session state shared by both flows: one handle, one account.
type Site struct {
	Handle      browser.Handle
	BaseURL     string
	Login       bool
	Credentials secrets.Credentials
	Timing      Timing
	Logger      *zap.Logger
	// Sleep replaces the settle pauses in tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (s *Site) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *Site) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if s.Sleep != nil {
		return s.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Site) Open(ctx context.Context) error {
	if err := s.Handle.Navigate(ctx, s.BaseURL); err != nil {
		return fmt.Errorf("open %s: %w", s.BaseURL, err)
	}
	return nil
}

func (s *Site) LogIn(ctx context.Context) error {
	if !s.Login {
		s.logger().Info("browsing without an account; checkouts will be reported, not held")
		return nil
	}
	if s.Credentials.Empty() {
		return errors.New("login requested without credentials")
	}
	if err := s.clickOne(ctx, selLoginLink); err != nil {
		return err
	}
	if err := s.typeInto(ctx, selEmail, s.Credentials.Username); err != nil {
		return err
	}
	if err := s.typeInto(ctx, selPassword, s.Credentials.Password); err != nil {
		return err
	}
	if err := s.clickOne(ctx, selSignIn); err != nil {
		return err
	}
	done, err := s.Handle.WaitUntil(ctx, func(ctx context.Context) (bool, error) {
		links, err := s.Handle.Find(ctx, selLoginLink)
		return len(links) == 0, err
	}, s.Timing.LongDelay)
	if err != nil {
		return err
	}
	if !done {
		return errors.New("login did not complete")
	}
	return s.pause(ctx, s.Timing.Wait)
}

// locate switches the home page to the heading's tab, searches for query and
// returns the absolute URL of the first result link under hrefPart.
func (s *Site) locate(ctx context.Context, heading, query, hrefPart string) (string, error) {
	if err := s.clickText(ctx, "button", heading); err != nil {
		return "", fmt.Errorf("heading %q: %w", heading, err)
	}
	if err := s.typeInto(ctx, selSearch, query+browser.KeyEnter); err != nil {
		return "", fmt.Errorf("search %q: %w", query, err)
	}
	if err := s.pause(ctx, s.Timing.Wait); err != nil {
		return "", err
	}

	links, err := s.Handle.Find(ctx, fmt.Sprintf(`a[href*=%q]`, hrefPart))
	if err != nil {
		return "", err
	}
	for _, l := range links {
		title, _, err := s.Handle.Read(ctx, l, "title")
		if err != nil {
			return "", err
		}
		if !containsFold(title, query) {
			continue
		}
		href, ok, err := s.Handle.Read(ctx, l, "href")
		if err != nil {
			return "", err
		}
		if ok && href != "" {
			return s.absolute(href), nil
		}
	}
	return "", fmt.Errorf("%w: no %s link titled %q", browser.ErrNoElement, hrefPart, query)
}

func (s *Site) absolute(href string) string {
	if strings.HasPrefix(href, "/") {
		return strings.TrimRight(s.BaseURL, "/") + href
	}
	return href
}

// Authenticated reports whether checkout was reached with a signed-in
// account. A login prompt over the checkout means it was not.
func (s *Site) Authenticated(ctx context.Context) (bool, error) {
	if !s.Login {
		return false, nil
	}
	if _, err := s.withText(ctx, "button", textCloseLogIn); err == nil {
		return false, nil
	} else if !errors.Is(err, browser.ErrNoElement) {
		return false, err
	}
	links, err := s.Handle.Find(ctx, selLoginLink)
	if err != nil {
		return false, err
	}
	return len(links) == 0, nil
}

func (s *Site) DismissLogin(ctx context.Context) error {
	return s.clickText(ctx, "button", textCloseLogIn)
}

// checkout presses the booking button and waits for either the checkout
// page or the login prompt that guards it.
func (s *Site) checkout(ctx context.Context, buttonText string) error {
	if err := s.clickText(ctx, "button", buttonText); err != nil {
		return err
	}
	reached, err := s.Handle.WaitUntil(ctx, func(ctx context.Context) (bool, error) {
		if els, err := s.Handle.Find(ctx, selCheckout); err != nil || len(els) > 0 {
			return len(els) > 0, err
		}
		_, err := s.withText(ctx, "button", textCloseLogIn)
		return err == nil, nil
	}, s.Timing.LongDelay)
	if err != nil {
		return err
	}
	if !reached {
		return fmt.Errorf("checkout not reached after %q", buttonText)
	}
	return nil
}

func (s *Site) one(ctx context.Context, selector string) (browser.Element, error) {
	els, err := s.Handle.Find(ctx, selector)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, fmt.Errorf("%w: %s", browser.ErrNoElement, selector)
	}
	return els[0], nil
}

// withText returns the first element matching selector whose visible text
// contains text, ignoring case.
func (s *Site) withText(ctx context.Context, selector, text string) (browser.Element, error) {
	els, err := s.Handle.Find(ctx, selector)
	if err != nil {
		return nil, err
	}
	return s.firstWithText(ctx, els, selector, text)
}

// clickTextWithin clicks the first element under parent matching selector
// whose text contains text.
func (s *Site) clickTextWithin(ctx context.Context, parent browser.Element, selector, text string) error {
	els, err := s.Handle.FindWithin(ctx, parent, selector)
	if err != nil {
		return err
	}
	el, err := s.firstWithText(ctx, els, selector, text)
	if err != nil {
		return err
	}
	return s.Handle.Click(ctx, el)
}

func (s *Site) firstWithText(ctx context.Context, els []browser.Element, selector, text string) (browser.Element, error) {
	for _, el := range els {
		got, _, err := s.Handle.Read(ctx, el, "")
		if err != nil {
			return nil, err
		}
		if containsFold(got, text) {
			return el, nil
		}
	}
	return nil, fmt.Errorf("%w: %s containing %q", browser.ErrNoElement, selector, text)
}

func (s *Site) clickOne(ctx context.Context, selector string) error {
	el, err := s.one(ctx, selector)
	if err != nil {
		return err
	}
	return s.Handle.Click(ctx, el)
}

func (s *Site) clickText(ctx context.Context, selector, text string) error {
	el, err := s.withText(ctx, selector, text)
	if err != nil {
		return err
	}
	return s.Handle.Click(ctx, el)
}

// clickIfPresent clicks the labelled button when the page shows it.
func (s *Site) clickIfPresent(ctx context.Context, text string) error {
	err := s.clickText(ctx, "button", text)
	if errors.Is(err, browser.ErrNoElement) {
		return nil
	}
	return err
}

func (s *Site) typeInto(ctx context.Context, selector, text string) error {
	el, err := s.one(ctx, selector)
	if err != nil {
		return err
	}
	return s.Handle.Type(ctx, el, text)
}

func (s *Site) readValue(ctx context.Context, selector string) (string, error) {
	el, err := s.one(ctx, selector)
	if err != nil {
		return "", err
	}
	v, _, err := s.Handle.Read(ctx, el, "value")
	return strings.TrimSpace(v), err
}

// label returns an element's aria-label, falling back to the first labelled
// descendant.
func (s *Site) label(ctx context.Context, el browser.Element) (string, error) {
	v, ok, err := s.Handle.Read(ctx, el, "aria-label")
	if err != nil || ok {
		return v, err
	}
	inner, err := s.Handle.FindWithin(ctx, el, "[aria-label]")
	if err != nil || len(inner) == 0 {
		return "", err
	}
	v, _, err = s.Handle.Read(ctx, inner[0], "aria-label")
	return v, err
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
