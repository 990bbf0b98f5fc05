package headless

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/icon-harvester/internal/icons"
)

func TestNewChromedpDefaults(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1})
	require.Error(t, err)

	fetcher, err := NewChromedp(Config{MaxParallel: 2})
	require.NoError(t, err)
	t.Cleanup(fetcher.Close)
	assert.Equal(t, 2, cap(fetcher.limiter))
	assert.Equal(t, defaultNavTimeout, fetcher.cfg.NavigationTimeout)
	assert.Equal(t, defaultWaitSelector, fetcher.cfg.WaitSelector)
	assert.Equal(t, defaultSettleDelay, fetcher.cfg.SettleDelay)

	custom, err := NewChromedp(Config{NavigationTimeout: time.Second, WaitSelector: "img", SettleDelay: time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(custom.Close)
	assert.Nil(t, custom.limiter)
	assert.Equal(t, time.Second, custom.cfg.NavigationTimeout)
	assert.Equal(t, "img", custom.cfg.WaitSelector)
}

func TestLimiterAcquireRelease(t *testing.T) {
	t.Parallel()

	f := &Fetcher{limiter: make(chan struct{}, 1)}
	require.NoError(t, f.acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, f.acquire(ctx), context.DeadlineExceeded)

	f.release()
	require.NoError(t, f.acquire(context.Background()))
	f.release()

	unlimited := &Fetcher{}
	require.NoError(t, unlimited.acquire(context.Background()))
	unlimited.release()
}

func TestNetworkHeaderConversion(t *testing.T) {
	t.Parallel()

	src := http.Header{"X-Test": {"a", "b"}, "X-One": {"1"}, "X-Empty": {}}
	netHeaders := toNetworkHeaders(src)
	assert.Equal(t, "a, b", netHeaders["X-Test"])
	assert.Equal(t, "1", netHeaders["X-One"])
	assert.NotContains(t, netHeaders, "X-Empty")

	back := fromNetworkHeaders(network.Headers{
		"Content-Type": "text/html",
		"Set-Cookie":   "a=1\nb=2",
		"X-Count":      3,
	})
	assert.Equal(t, "text/html", back.Get("Content-Type"))
	assert.Equal(t, []string{"a=1", "b=2"}, back.Values("Set-Cookie"))
	assert.Equal(t, "3", back.Get("X-Count"))
}

func TestDocumentWatcherKeepsLastDocument(t *testing.T) {
	t.Parallel()

	var w documentWatcher
	w.observe(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 301, URL: "https://icons.test/old"},
	})
	w.observe(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  203,
			URL:     "https://icons.test/rendered",
			Headers: network.Headers{"X-Request-ID": "abc"},
		},
	})
	// Sub-resources and unrelated events are ignored.
	w.observe(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 404, URL: "https://icons.test/a.png"},
	})
	w.observe("unrelated")

	doc := w.result("https://req", "https://final")
	assert.Equal(t, 203, doc.status)
	assert.Equal(t, "abc", doc.headers.Get("X-Request-ID"))
	assert.Equal(t, "https://icons.test/rendered", doc.url)
}

func TestDocumentWatcherFallbacks(t *testing.T) {
	t.Parallel()

	var w documentWatcher
	doc := w.result("https://req", "https://final")
	assert.Equal(t, http.StatusOK, doc.status)
	assert.NotNil(t, doc.headers)
	assert.Equal(t, "https://final", doc.url)

	assert.Equal(t, "https://req", w.result("https://req", "").url)
}

func TestNoop(t *testing.T) {
	t.Parallel()

	_, err := NewNoop().Fetch(context.Background(), icons.FetchRequest{URL: "https://icons.test"})
	assert.ErrorIs(t, err, ErrDisabled)
}
