// Package collyfetcher renders server-side pages with a plain HTTP GET via
// gocolly. JavaScript is not executed.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/site-ingest/internal/crawler"
	"github.com/JakeFAU/site-ingest/internal/dom"
	"github.com/JakeFAU/site-ingest/internal/metrics"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Renderer implements crawler.Renderer using the Colly collector.
type Renderer struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
}

var _ crawler.Renderer = (*Renderer)(nil)

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Renderer.
func New(cfg Config) *Renderer {
	c := colly.NewCollector(colly.Async(false))
	transport := newHTTPTransport()
	c.WithTransport(transport)

	return &Renderer{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
	}
}

// Render executes a single HTTP GET and parses the body. Error statuses are
// returned as a normal result so callers can inspect StatusCode.
func (r *Renderer) Render(ctx context.Context, request crawler.RenderRequest) (crawler.Rendered, error) {
	var (
		result   crawler.Rendered
		fetchErr error
	)
	start := time.Now()
	collector := r.buildCollector(request, start, &result, &fetchErr)

	if err := r.runCollector(ctx, collector, request.URL, &fetchErr); err != nil {
		return crawler.Rendered{}, err
	}
	doc, err := dom.Parse(result.HTML)
	if err != nil {
		return crawler.Rendered{}, err
	}
	result.Document = doc
	metrics.ObserveRender(metrics.RendererStatic)
	return result, nil
}

func (r *Renderer) buildCollector(
	request crawler.RenderRequest,
	start time.Time,
	result *crawler.Rendered,
	fetchErr *error,
) *colly.Collector {
	collector := r.baseCollector.Clone()
	if r.cfg.UserAgent != "" {
		collector.UserAgent = r.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = true
	collector.AllowURLRevisit = true
	collector.ParseHTTPErrorResponse = true
	collector.DetectCharset = true

	timeout := request.Timeout
	if timeout <= 0 {
		timeout = r.cfg.Timeout
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	collector.SetRequestTimeout(timeout)

	transport := r.transport
	if transport == nil {
		transport = newHTTPTransport()
	}
	collector.WithTransport(transport)

	r.configureCollectorHooks(collector, request, start, result, fetchErr)
	return collector
}

func (r *Renderer) configureCollectorHooks(
	hooks collectorHooks,
	request crawler.RenderRequest,
	start time.Time,
	result *crawler.Rendered,
	fetchErr *error,
) {
	hooks.OnRequest(func(req *colly.Request) {
		req.Headers.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	})

	hooks.OnResponse(func(resp *colly.Response) {
		*result = crawler.Rendered{
			URL:          request.URL,
			FinalURL:     resp.Request.URL.String(),
			StatusCode:   resp.StatusCode,
			HTML:         append([]byte(nil), resp.Body...),
			Duration:     time.Since(start),
			UsedHeadless: false,
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (r *Renderer) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
