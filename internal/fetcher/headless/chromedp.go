// Package headless renders script-driven search pages in headless Chrome.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/icon-harvester/internal/icons"
)

const (
	defaultNavTimeout   = 45 * time.Second
	defaultSettleDelay  = 500 * time.Millisecond
	defaultWaitSelector = "body"
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	// MaxParallel caps concurrent browser tabs. Zero means unlimited.
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// WaitSelector is the CSS selector that must be ready before the DOM is
	// captured.
	WaitSelector string
	// SettleDelay gives client-side rendering time to inject images.
	SettleDelay time.Duration
}

// Fetcher implements icons.Fetcher using chromedp and headless Chrome.
type Fetcher struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates a headless fetcher backed by chromedp. Chrome is only
// launched on the first Fetch.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, errors.New("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavTimeout
	}
	if cfg.WaitSelector == "" {
		cfg.WaitSelector = defaultWaitSelector
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close shuts down the browser allocator.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Fetch renders the page and returns the resulting DOM as the body.
func (f *Fetcher) Fetch(ctx context.Context, request icons.FetchRequest) (icons.FetchResponse, error) {
	if err := f.acquire(ctx); err != nil {
		return icons.FetchResponse{}, err
	}
	defer f.release()

	taskCtx, taskCancel := chromedp.NewContext(f.allocator)
	defer taskCancel()
	taskCtx, cancel := context.WithTimeout(taskCtx, f.cfg.NavigationTimeout)
	defer cancel()
	// Propagate caller cancellation into the browser tab.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var watcher documentWatcher
	chromedp.ListenTarget(taskCtx, watcher.observe)

	start := time.Now()
	html, finalURL, err := f.render(taskCtx, request)
	if err != nil {
		return icons.FetchResponse{}, err
	}

	doc := watcher.result(request.URL, finalURL)
	if doc.status >= http.StatusBadRequest {
		return icons.FetchResponse{}, fmt.Errorf("headless render %s: status %d", doc.url, doc.status)
	}
	return icons.FetchResponse{
		URL:          doc.url,
		StatusCode:   doc.status,
		Headers:      doc.headers,
		Body:         []byte(html),
		Duration:     time.Since(start),
		UsedHeadless: true,
	}, nil
}

func (f *Fetcher) render(ctx context.Context, request icons.FetchRequest) (string, string, error) {
	var (
		html     string
		finalURL string
	)
	actions := []chromedp.Action{
		f.networkSetupAction(request.Headers),
		chromedp.Navigate(request.URL),
		chromedp.WaitReady(f.cfg.WaitSelector, chromedp.ByQuery),
		chromedp.Sleep(f.cfg.SettleDelay),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, finalURL, nil
}

func (f *Fetcher) networkSetupAction(headers http.Header) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	<-f.limiter
}

// documentWatcher remembers the last main-document response seen by a tab.
// Redirects produce several; the final one wins.
type documentWatcher struct {
	mu   sync.Mutex
	seen documentResponse
}

type documentResponse struct {
	status  int
	url     string
	headers http.Header
}

func (d *documentWatcher) observe(ev any) {
	event, ok := ev.(*network.EventResponseReceived)
	if !ok || event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	resp := documentResponse{
		status:  int(event.Response.Status),
		url:     event.Response.URL,
		headers: fromNetworkHeaders(event.Response.Headers),
	}
	d.mu.Lock()
	d.seen = resp
	d.mu.Unlock()
}

// result fills gaps left by tabs that never reported a document response,
// for example pages served from cache.
func (d *documentWatcher) result(requestURL, finalURL string) documentResponse {
	d.mu.Lock()
	resp := d.seen
	d.mu.Unlock()

	if resp.url == "" {
		resp.url = finalURL
	}
	if resp.url == "" {
		resp.url = requestURL
	}
	if resp.status == 0 {
		resp.status = http.StatusOK
	}
	if resp.headers == nil {
		resp.headers = http.Header{}
	}
	return resp
}

// fromNetworkHeaders splits CDP header values, which join repeated headers
// with newlines.
func fromNetworkHeaders(src network.Headers) http.Header {
	out := make(http.Header, len(src))
	for key, value := range src {
		raw, ok := value.(string)
		if !ok {
			raw = fmt.Sprint(value)
		}
		for _, v := range strings.Split(raw, "\n") {
			out.Add(key, v)
		}
	}
	return out
}

func toNetworkHeaders(h http.Header) network.Headers {
	out := make(network.Headers, len(h))
	for key, values := range h {
		if len(values) > 0 {
			out[key] = strings.Join(values, ", ")
		}
	}
	return out
}
