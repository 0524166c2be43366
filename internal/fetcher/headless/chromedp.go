// Package headless renders pages in headless Chrome so that client-side
// rendered content is present before extraction.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/JakeFAU/site-ingest/internal/crawler"
	"github.com/JakeFAU/site-ingest/internal/dom"
	"github.com/JakeFAU/site-ingest/internal/metrics"
	"github.com/JakeFAU/site-ingest/internal/telemetry"
)

const (
	defaultNavigationTimeout = 30 * time.Second
	defaultViewportWidth     = 1280
	defaultViewportHeight    = 720
	networkIdleEvent         = "networkIdle"
)

// Config controls the behavior of the headless renderer.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	ViewportWidth     int
	ViewportHeight    int
}

// Renderer implements crawler.Renderer using chromedp. Each render gets its
// own browser context.
type Renderer struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
	tracer      trace.Tracer
}

var _ crawler.Renderer = (*Renderer)(nil)

// NewChromedp creates a headless renderer backed by chromedp.
func NewChromedp(cfg Config) (*Renderer, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.ViewportWidth <= 0 || cfg.ViewportHeight <= 0 {
		cfg.ViewportWidth, cfg.ViewportHeight = defaultViewportWidth, defaultViewportHeight
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
		chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Renderer{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		tracer:      telemetry.Tracer("headless"),
	}, nil
}

// Close cancels the allocator context, shutting the browser down.
func (r *Renderer) Close() {
	r.allocCancel()
}

// Render navigates to request.URL, waits until the network goes idle and
// returns the rendered DOM. The timeout covers navigation and the idle wait.
func (r *Renderer) Render(ctx context.Context, request crawler.RenderRequest) (crawler.Rendered, error) {
	ctx, span := r.tracer.Start(ctx, "headless.Render", trace.WithAttributes(attribute.String("url", request.URL)))
	defer span.End()

	if err := r.acquire(ctx); err != nil {
		return crawler.Rendered{}, err
	}
	defer r.release()

	taskCtx, taskCancel := chromedp.NewContext(r.allocator)
	defer taskCancel()
	// Tie the tab to the caller so shutdown aborts navigation.
	stop := context.AfterFunc(ctx, taskCancel)
	defer stop()

	taskCtx, cancel := context.WithTimeout(taskCtx, r.navTimeout(request.Timeout))
	defer cancel()

	meta := newResponseMeta()
	watcher := newIdleWatcher()
	chromedp.ListenTarget(taskCtx, func(ev any) {
		meta.captureEvent(ev)
		watcher.handle(ev)
	})

	start := time.Now()
	html, finalURL, err := r.runHeadless(taskCtx, request.URL, watcher)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "render failed")
		return crawler.Rendered{}, err
	}
	metrics.ObserveRender(metrics.RendererHeadless)

	doc, err := dom.Parse([]byte(html))
	if err != nil {
		return crawler.Rendered{}, err
	}
	status, responseURL := meta.snapshotWithFallbacks(request.URL, finalURL)
	span.SetAttributes(attribute.Int("http.status_code", status))

	return crawler.Rendered{
		URL:          request.URL,
		FinalURL:     responseURL,
		StatusCode:   status,
		HTML:         []byte(html),
		Document:     doc,
		Duration:     time.Since(start),
		UsedHeadless: true,
	}, nil
}

func (r *Renderer) runHeadless(ctx context.Context, url string, watcher *idleWatcher) (string, string, error) {
	var (
		html     string
		finalURL string
	)
	actions := []chromedp.Action{
		r.setupAction(),
		chromedp.Navigate(url),
		watcher.wait(),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", "", fmt.Errorf("chromedp run %s: %w", url, err)
	}
	return html, finalURL, nil
}

func (r *Renderer) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if err := page.SetLifecycleEventsEnabled(true).Do(ctx); err != nil {
			return fmt.Errorf("enable lifecycle events: %w", err)
		}
		if err := emulation.SetDeviceMetricsOverride(
			int64(r.cfg.ViewportWidth), int64(r.cfg.ViewportHeight), 1, false,
		).Do(ctx); err != nil {
			return fmt.Errorf("set viewport: %w", err)
		}
		if r.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(r.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (r *Renderer) acquire(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	select {
	case r.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (r *Renderer) release() {
	if r.limiter == nil {
		return
	}
	select {
	case <-r.limiter:
	default:
	}
}

func (r *Renderer) navTimeout(requested time.Duration) time.Duration {
	if requested > 0 {
		return requested
	}
	if r.cfg.NavigationTimeout > 0 {
		return r.cfg.NavigationTimeout
	}
	return defaultNavigationTimeout
}

// idleWatcher fires once the main frame's current document reports
// networkIdle. Lifecycle events from the initial about:blank are ignored.
type idleWatcher struct {
	mu       sync.Mutex
	loaderID cdp.LoaderID
	idle     chan struct{}
	once     sync.Once
}

func newIdleWatcher() *idleWatcher {
	return &idleWatcher{idle: make(chan struct{})}
}

func (w *idleWatcher) handle(ev any) {
	switch e := ev.(type) {
	case *page.EventFrameNavigated:
		if e.Frame == nil || e.Frame.ParentID != "" || e.Frame.URL == "about:blank" {
			return
		}
		w.mu.Lock()
		w.loaderID = e.Frame.LoaderID
		w.mu.Unlock()
	case *page.EventLifecycleEvent:
		if e.Name != networkIdleEvent {
			return
		}
		w.mu.Lock()
		match := w.loaderID != "" && e.LoaderID == w.loaderID
		w.mu.Unlock()
		if match {
			w.once.Do(func() { close(w.idle) })
		}
	}
}

func (w *idleWatcher) wait() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		select {
		case <-w.idle:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("wait for network idle: %w", ctx.Err())
		}
	})
}

// responseMeta records the first document response of a navigation, which
// belongs to the main frame.
type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != 0 {
		return
	}
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
}

func (m *responseMeta) snapshot() (int, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, m.url
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, string) {
	status, url := m.snapshot()
	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}

	if status == 0 {
		status = http.StatusOK
	}
	return status, url
}
