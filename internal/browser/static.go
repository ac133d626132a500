package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Static serves saved HTML pages through the Handle interface. Interactions
// mutate the in-memory document and can be scripted with OnClick and OnType
// so a page can react the way the live site would. It is used to replay
// captured pages offline.
type Static struct {
	mu      sync.Mutex
	pages   map[string]string
	doc     *goquery.Document
	url     string
	gen     int
	clicks  []clickHook
	types   []typeHook
	scripts []string
	closed  bool
}

type clickHook struct {
	selector string
	fn       func(doc *goquery.Document, el *goquery.Selection)
}

type typeHook struct {
	selector string
	fn       func(doc *goquery.Document, el *goquery.Selection, text string)
}

type staticNode struct {
	sel *goquery.Selection
	gen int
}

func (n staticNode) Describe() string {
	name := goquery.NodeName(n.sel)
	if id, ok := n.sel.Attr("id"); ok {
		return name + "#" + id
	}
	return name
}

// NewStatic returns a handle serving pages keyed by URL.
func NewStatic(pages map[string]string) *Static {
	p := make(map[string]string, len(pages))
	for k, v := range pages {
		p[k] = v
	}
	return &Static{pages: p}
}

// StaticHTML returns a handle already showing html.
func StaticHTML(html string) (*Static, error) {
	s := NewStatic(nil)
	if err := s.Load(html); err != nil {
		return nil, err
	}
	return s, nil
}

// Load replaces the current document. Elements found before are stale.
func (s *Static) Load(html string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("parse page: %w", err)
	}
	s.mu.Lock()
	s.doc = doc
	s.gen++
	s.mu.Unlock()
	return nil
}

// OnClick registers fn to run when an element matching selector is clicked.
func (s *Static) OnClick(selector string, fn func(doc *goquery.Document, el *goquery.Selection)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clicks = append(s.clicks, clickHook{selector: selector, fn: fn})
}

// OnType registers fn to run when text is typed into an element matching
// selector. text includes any trailing KeyEnter or KeyTab.
func (s *Static) OnType(selector string, fn func(doc *goquery.Document, el *goquery.Selection, text string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.types = append(s.types, typeHook{selector: selector, fn: fn})
}

// Document exposes the live document for assertions.
func (s *Static) Document() *goquery.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

func (s *Static) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

func (s *Static) Scripts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.scripts...)
}

func (s *Static) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Static) Navigate(ctx context.Context, url string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	html, ok := s.pages[url]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: no page for %s", ErrInteraction, url)
	}
	if err := s.Load(html); err != nil {
		return fmt.Errorf("%w: %v", ErrInteraction, err)
	}
	s.mu.Lock()
	s.url = url
	s.mu.Unlock()
	return nil
}

func (s *Static) Find(ctx context.Context, selector string) ([]Element, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return nil, fmt.Errorf("%w: no page loaded", ErrInteraction)
	}
	return s.wrap(s.doc.Find(selector)), nil
}

func (s *Static) FindWithin(ctx context.Context, parent Element, selector string) ([]Element, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.node(parent)
	if err != nil {
		return nil, err
	}
	return s.wrap(p.Find(selector)), nil
}

func (s *Static) Read(ctx context.Context, el Element, attr string) (string, bool, error) {
	if err := s.check(ctx); err != nil {
		return "", false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.node(el)
	if err != nil {
		return "", false, err
	}
	if attr == "" {
		return strings.TrimSpace(n.Text()), true, nil
	}
	v, ok := n.Attr(attr)
	return v, ok, nil
}

func (s *Static) Click(ctx context.Context, el Element) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	n, err := s.node(el)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if _, disabled := n.Attr("disabled"); disabled {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s is disabled", ErrInteraction, staticNode{sel: n}.Describe())
	}
	if n.Is("input[type=radio], input[type=checkbox]") {
		n.SetAttr("checked", "checked")
	}
	doc := s.doc
	var hooks []clickHook
	for _, h := range s.clicks {
		if n.Is(h.selector) {
			hooks = append(hooks, h)
		}
	}
	s.mu.Unlock()

	for _, h := range hooks {
		h.fn(doc, n)
	}
	return nil
}

func (s *Static) Type(ctx context.Context, el Element, text string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	n, err := s.node(el)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	n.SetAttr("value", strings.TrimRight(text, KeyEnter+KeyTab))
	doc := s.doc
	var hooks []typeHook
	for _, h := range s.types {
		if n.Is(h.selector) {
			hooks = append(hooks, h)
		}
	}
	s.mu.Unlock()

	for _, h := range hooks {
		h.fn(doc, n, text)
	}
	return nil
}

func (s *Static) WaitUntil(ctx context.Context, cond Condition, timeout time.Duration) (bool, error) {
	return Poll(ctx, cond, timeout, 5*time.Millisecond)
}

func (s *Static) RunScript(ctx context.Context, script string, args ...Element) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range args {
		if _, err := s.node(a); err != nil {
			return err
		}
	}
	s.scripts = append(s.scripts, script)
	return nil
}

func (s *Static) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Static) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// node must be called with s.mu held.
func (s *Static) node(el Element) (*goquery.Selection, error) {
	n, ok := el.(staticNode)
	if !ok || n.sel == nil {
		return nil, fmt.Errorf("%w: foreign element %T", ErrInteraction, el)
	}
	if n.gen != s.gen {
		return nil, fmt.Errorf("%w: stale element %s", ErrInteraction, n.Describe())
	}
	return n.sel, nil
}

// wrap must be called with s.mu held.
func (s *Static) wrap(sel *goquery.Selection) []Element {
	out := make([]Element, 0, sel.Length())
	sel.Each(func(_ int, e *goquery.Selection) {
		out = append(out, staticNode{sel: e, gen: s.gen})
	})
	return out
}
