// Package engine implements the page fetch and extraction engine: it renders
// a site's root page, discovers its navigation links and extracts sections
// from every sub-page that holds real, non-duplicate content.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/purell"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-ingest/internal/crawler"
	"github.com/JakeFAU/site-ingest/internal/extract"
	"github.com/JakeFAU/site-ingest/internal/metrics"
	"github.com/JakeFAU/site-ingest/internal/telemetry"
)

// RootPath is the URL recorded for a site's homepage.
const RootPath = "/"

const (
	defaultRootTimeout = 30 * time.Second
	defaultPageTimeout = 20 * time.Second
)

// Config controls Engine behavior.
type Config struct {
	RootTimeout time.Duration
	PageTimeout time.Duration
}

// Engine crawls one site per call. It keeps no state between calls.
type Engine struct {
	renderer crawler.Renderer
	cfg      Config
	logger   *zap.Logger
	tracer   trace.Tracer
}

var _ crawler.Extractor = (*Engine)(nil)

// New constructs an Engine over renderer.
func New(renderer crawler.Renderer, cfg Config, logger *zap.Logger) *Engine {
	if cfg.RootTimeout <= 0 {
		cfg.RootTimeout = defaultRootTimeout
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = defaultPageTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		renderer: renderer,
		cfg:      cfg,
		logger:   logger,
		tracer:   telemetry.Tracer("engine"),
	}
}

// NormalizeRoot canonicalizes a site root URL and strips its trailing slash.
func NormalizeRoot(rootURL string) (string, *url.URL, error) {
	normalized, err := purell.NormalizeURLString(
		strings.TrimSpace(rootURL),
		purell.FlagsSafe|purell.FlagRemoveFragment|purell.FlagRemoveTrailingSlash,
	)
	if err != nil {
		return "", nil, fmt.Errorf("normalize root url: %w", err)
	}
	normalized = strings.TrimRight(normalized, "/")
	u, err := url.Parse(normalized)
	if err != nil {
		return "", nil, fmt.Errorf("parse root url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", nil, fmt.Errorf("root url %q must be absolute http(s)", rootURL)
	}
	return normalized, u, nil
}

// Crawl renders rootURL and up to maxPages of the pages its navigation links
// to. The homepage comes first (when it has sections), then sub-pages in
// discovery order. Per-page failures are skipped; only an unreachable root
// page is an error, wrapping crawler.ErrRootUnavailable.
func (e *Engine) Crawl(ctx context.Context, rootURL string, maxPages int) ([]crawler.RawExtraction, error) {
	root, origin, err := NormalizeRoot(rootURL)
	if err != nil {
		return nil, errors.Join(crawler.ErrRootUnavailable, err)
	}
	ctx, span := e.tracer.Start(ctx, "engine.Crawl", trace.WithAttributes(
		attribute.String("site.url", root),
		attribute.Int("crawl.max_pages", maxPages),
	))
	defer span.End()

	logger := e.logger.With(zap.String("site", root))
	start := time.Now()

	home, err := e.renderer.Render(ctx, crawler.RenderRequest{URL: root, Timeout: e.cfg.RootTimeout})
	if err != nil {
		metrics.ObservePage(root, metrics.PageRootFailed)
		logger.Error("failed to load homepage", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "root unavailable")
		return nil, fmt.Errorf("%w: %s: %w", crawler.ErrRootUnavailable, root, err)
	}

	var pages []crawler.RawExtraction
	homeFingerprint := ""
	homePage, tier := extract.Page(home.Document, RootPath)
	if len(homePage.Sections) > 0 {
		homePage.Snapshot = home.HTML
		pages = append(pages, homePage)
		homeFingerprint = extract.Fingerprint(homePage.Sections)
		metrics.ObservePage(root, metrics.PageExtracted)
		metrics.ObserveSections(string(tier), len(homePage.Sections))
	} else {
		metrics.ObservePage(root, metrics.PageNoSections)
		logger.Info("homepage has no sections")
	}

	origin = pageOrigin(home.FinalURL, origin)
	links := extract.NavLinks(home.Document, origin)
	if maxPages >= 0 && len(links) > maxPages {
		links = links[:maxPages]
	}
	logger.Debug("discovered navigation links", zap.Int("count", len(links)))

	visited := map[string]struct{}{RootPath: {}}
	for _, link := range links {
		if ctx.Err() != nil {
			break
		}
		if _, seen := visited[link]; seen {
			continue
		}
		visited[link] = struct{}{}

		page, ok := e.visit(ctx, logger, origin, link, homeFingerprint)
		if ok {
			pages = append(pages, page)
		}
	}

	span.SetAttributes(attribute.Int("crawl.pages", len(pages)))
	logger.Info("crawled site",
		zap.Int("pages", len(pages)),
		zap.Int("links", len(links)),
		zap.Duration("duration", time.Since(start)),
	)
	return pages, nil
}

// pageOrigin returns the origin the homepage was served from after
// redirects, or fallback when finalURL is not an absolute http(s) URL.
func pageOrigin(finalURL string, fallback *url.URL) *url.URL {
	u, err := url.Parse(finalURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fallback
	}
	return &url.URL{Scheme: u.Scheme, Host: u.Host}
}

// visit renders one sub-page and applies the skip rules in order: navigation
// error, HTTP status >= 400, soft-404, no sections, homepage duplicate.
func (e *Engine) visit(
	ctx context.Context,
	logger *zap.Logger,
	origin *url.URL,
	path string,
	homeFingerprint string,
) (crawler.RawExtraction, bool) {
	target := origin.Scheme + "://" + origin.Host + path
	logger = logger.With(zap.String("url", target))

	rendered, err := e.renderer.Render(ctx, crawler.RenderRequest{URL: target, Timeout: e.cfg.PageTimeout})
	if err != nil {
		metrics.ObservePage(target, metrics.PageNavError)
		logger.Warn("failed to load page", zap.Error(err))
		return crawler.RawExtraction{}, false
	}
	if rendered.StatusCode >= 400 {
		metrics.ObservePage(target, metrics.PageHTTPError)
		logger.Info("skipping page", zap.String("reason", "http status"), zap.Int("status", rendered.StatusCode))
		return crawler.RawExtraction{}, false
	}
	if extract.SoftNotFound(rendered.Document) {
		metrics.ObservePage(target, metrics.PageSoftNotFound)
		logger.Info("skipping page", zap.String("reason", "no meaningful content"))
		return crawler.RawExtraction{}, false
	}

	page, tier := extract.Page(rendered.Document, path)
	if len(page.Sections) == 0 {
		metrics.ObservePage(target, metrics.PageNoSections)
		logger.Info("skipping page", zap.String("reason", "no sections"))
		return crawler.RawExtraction{}, false
	}
	if homeFingerprint != "" && extract.Fingerprint(page.Sections) == homeFingerprint {
		metrics.ObservePage(target, metrics.PageDuplicate)
		logger.Info("skipping page", zap.String("reason", "duplicate of homepage"))
		return crawler.RawExtraction{}, false
	}

	page.Snapshot = rendered.HTML
	metrics.ObservePage(target, metrics.PageExtracted)
	metrics.ObserveSections(string(tier), len(page.Sections))
	logger.Debug("extracted page", zap.Int("sections", len(page.Sections)), zap.String("tier", string(tier)))
	return page, true
}
