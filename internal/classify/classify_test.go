package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartsignal/checkout-agent/internal/models"
)

const cartSnapshot = `<html><body>
	<p>Proceed to checkout when ready.</p>
	<button>Pay Now</button>
	<form action="/pay"></form>
</body></html>`

func TestRunURLDecision(t *testing.T) {
	page := NewPage(nil)
	out := page.Run(PageInfo{
		URL:   "https://shop.example.com/checkout?step=2",
		Title: "Checkout",
		HTML:  cartSnapshot,
	})

	require.True(t, out.Ran)
	assert.True(t, out.URLMatch)
	assert.False(t, out.DOMMatch, "DOM decision must stay false when the URL already matched")
	assert.True(t, out.Detected)

	// Evidence still rides along even though the URL decided.
	assert.NotEmpty(t, out.Signals.TextMentions)
	require.NotNil(t, out.Notify)
	assert.Equal(t, models.EventCheckoutDetected, out.Notify.Type)
	assert.Equal(t, "https://shop.example.com/checkout?step=2", out.Notify.URL)
	assert.Equal(t, "Checkout", out.Notify.Title)
	assert.Equal(t, out.Signals, out.Notify.Signals)
	assert.True(t, out.MountOverlay)
}

func TestRunDOMFallback(t *testing.T) {
	page := NewPage(nil)
	out := page.Run(PageInfo{
		URL:   "https://shop.example.com/cart",
		Title: "Your cart",
		HTML:  cartSnapshot,
	})

	require.True(t, out.Ran)
	assert.False(t, out.URLMatch)
	assert.True(t, out.DOMMatch)
	assert.True(t, out.Detected)
	require.NotNil(t, out.Notify)
	assert.True(t, out.MountOverlay)
}

func TestRunNegativeIsSilent(t *testing.T) {
	page := NewPage(nil)
	out := page.Run(PageInfo{
		URL:   "https://shop.example.com/about",
		Title: "About us",
		HTML:  `<html><body><p>We sell things.</p></body></html>`,
	})

	require.True(t, out.Ran)
	assert.False(t, out.Detected)
	assert.Nil(t, out.Notify)
	assert.False(t, out.MountOverlay)
}

func TestRunEmptyDOMWithCheckoutURL(t *testing.T) {
	page := NewPage(nil)
	out := page.Run(PageInfo{
		URL:  "https://shop.example.com/checkout",
		HTML: "",
	})

	require.True(t, out.Ran)
	assert.True(t, out.Detected, "URL decision alone must carry a broken DOM")
	assert.True(t, out.Signals.Empty())
}

func TestRunIdempotent(t *testing.T) {
	page := NewPage(nil)

	first := page.Run(PageInfo{URL: "https://shop.example.com/checkout", HTML: cartSnapshot})
	require.True(t, first.Ran)
	require.True(t, first.Detected)

	second := page.Run(PageInfo{URL: "https://shop.example.com/checkout", HTML: cartSnapshot})
	assert.False(t, second.Ran)
	assert.False(t, second.Detected)
	assert.Nil(t, second.Notify)
	assert.False(t, second.MountOverlay)
}
