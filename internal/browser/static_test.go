package browser

import (
	"context"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<html><body>
<div id="list">
  <button class="item" aria-label="first">One</button>
  <button class="item" disabled>Two</button>
</div>
<input id="q" value="old">
<p id="status">idle</p>
</body></html>`

func TestStaticFindAndRead(t *testing.T) {
	ctx := context.Background()
	h, err := StaticHTML(page)
	require.NoError(t, err)

	items, err := h.Find(ctx, "#list .item")
	require.NoError(t, err)
	require.Len(t, items, 2)

	text, ok, err := h.Read(ctx, items[0], "")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "One", text)

	label, ok, err := h.Read(ctx, items[0], "aria-label")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "first", label)

	_, ok, err = h.Read(ctx, items[1], "aria-label")
	require.NoError(t, err)
	assert.False(t, ok, "absent attribute is not an error")

	lists, err := h.Find(ctx, "#list")
	require.NoError(t, err)
	inner, err := h.FindWithin(ctx, lists[0], "button")
	require.NoError(t, err)
	assert.Len(t, inner, 2)

	none, err := h.Find(ctx, ".missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStaticClickAndTypeHooks(t *testing.T) {
	ctx := context.Background()
	h, err := StaticHTML(page)
	require.NoError(t, err)

	h.OnClick(".item", func(doc *goquery.Document, el *goquery.Selection) {
		doc.Find("#status").SetText("clicked " + el.Text())
	})
	var typed string
	h.OnType("#q", func(_ *goquery.Document, _ *goquery.Selection, text string) {
		typed = text
	})

	items, err := h.Find(ctx, ".item")
	require.NoError(t, err)
	require.NoError(t, h.Click(ctx, items[0]))
	assert.ErrorIs(t, h.Click(ctx, items[1]), ErrInteraction, "disabled button")
	assert.Equal(t, "clicked One", h.Document().Find("#status").Text())

	q, err := h.Find(ctx, "#q")
	require.NoError(t, err)
	require.NoError(t, h.Type(ctx, q[0], "trail"+KeyEnter))
	v, _, err := h.Read(ctx, q[0], "value")
	require.NoError(t, err)
	assert.Equal(t, "trail", v)
	assert.Equal(t, "trail\r", typed)
}

func TestStaticStaleAndClosed(t *testing.T) {
	ctx := context.Background()
	h := NewStatic(map[string]string{"https://a/": page, "https://b/": "<p>b</p>"})
	require.NoError(t, h.Navigate(ctx, "https://a/"))

	items, err := h.Find(ctx, ".item")
	require.NoError(t, err)
	require.NoError(t, h.Navigate(ctx, "https://b/"))
	assert.Equal(t, "https://b/", h.URL())
	assert.ErrorIs(t, h.Click(ctx, items[0]), ErrInteraction)

	assert.ErrorIs(t, h.Navigate(ctx, "https://nowhere/"), ErrInteraction)

	require.NoError(t, h.Close())
	assert.True(t, h.Closed())
	_, err = h.Find(ctx, "p")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPoll(t *testing.T) {
	ctx := context.Background()
	calls := 0
	ok, err := Poll(ctx, func(context.Context) (bool, error) {
		calls++
		return calls == 3, nil
	}, time.Second, time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Poll(ctx, func(context.Context) (bool, error) { return false, nil }, 10*time.Millisecond, time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = Poll(cancelled, func(context.Context) (bool, error) { return false, nil }, time.Second, time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
}
