// Package orchestrator runs the site crawl state machine: it accepts crawl
// requests, executes queued crawls and serves the resulting site maps.
package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-ingest/internal/crawler"
	"github.com/JakeFAU/site-ingest/internal/engine"
	"github.com/JakeFAU/site-ingest/internal/metrics"
	"github.com/JakeFAU/site-ingest/internal/slug"
	"github.com/JakeFAU/site-ingest/internal/summarizer"
	"github.com/JakeFAU/site-ingest/internal/telemetry"
	"github.com/JakeFAU/site-ingest/internal/textutil"
)

const (
	defaultMaxPages      = 50
	defaultFallbackChars = 500
	defaultStatusTimeout = 10 * time.Second
	defaultContentType   = "text/html; charset=utf-8"
)

// ErrInvalidSite signals a site registration with a missing name or a
// non-http(s) URL.
var ErrInvalidSite = errors.New("invalid site")

// ErrInvalidSection signals a section edit that would blank its anchor.
var ErrInvalidSection = errors.New("invalid section update")

// Config controls Orchestrator behavior.
type Config struct {
	MaxPages       int
	FallbackChars  int
	SnapshotPrefix string
	ContentType    string
	// StatusTimeout bounds terminal status writes made after the run context ended.
	StatusTimeout time.Duration
}

// Orchestrator owns every crawl status transition of a site.
type Orchestrator struct {
	store      crawler.SiteStore
	extractor  crawler.Extractor
	summarizer crawler.Summarizer
	blobStore  crawler.BlobStore
	hasher     crawler.Hasher
	clock      crawler.Clock
	ids        crawler.IDGenerator
	cfg        Config
	logger     *zap.Logger
	tracer     trace.Tracer
}

// New constructs an Orchestrator. blobStore may be nil to disable snapshots;
// a nil summarizer always takes the raw-text fallback.
func New(
	store crawler.SiteStore,
	extractor crawler.Extractor,
	sum crawler.Summarizer,
	blobStore crawler.BlobStore,
	hasher crawler.Hasher,
	clock crawler.Clock,
	ids crawler.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	if cfg.FallbackChars <= 0 {
		cfg.FallbackChars = defaultFallbackChars
	}
	if cfg.StatusTimeout <= 0 {
		cfg.StatusTimeout = defaultStatusTimeout
	}
	if cfg.ContentType == "" {
		cfg.ContentType = defaultContentType
	}
	if sum == nil {
		sum = summarizer.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		store:      store,
		extractor:  extractor,
		summarizer: sum,
		blobStore:  blobStore,
		hasher:     hasher,
		clock:      clock,
		ids:        ids,
		cfg:        cfg,
		logger:     logger,
		tracer:     telemetry.Tracer("orchestrator"),
	}
}

// CreateSite registers a site. New sites start pending, so the poller crawls
// them without an explicit trigger.
func (o *Orchestrator) CreateSite(ctx context.Context, name, rawURL string) (crawler.Site, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return crawler.Site{}, fmt.Errorf("%w: name is required", ErrInvalidSite)
	}
	root, _, err := engine.NormalizeRoot(rawURL)
	if err != nil {
		return crawler.Site{}, fmt.Errorf("%w: %w", ErrInvalidSite, err)
	}
	id, err := o.ids.NewID()
	if err != nil {
		return crawler.Site{}, fmt.Errorf("generate site id: %w", err)
	}
	site := crawler.Site{
		ID:        id,
		Name:      name,
		URL:       root,
		Status:    crawler.CrawlStatusPending,
		CreatedAt: o.clock.Now().UTC(),
	}
	if err := o.store.CreateSite(ctx, site); err != nil {
		return crawler.Site{}, fmt.Errorf("create site: %w", err)
	}
	o.logger.Info("site registered", zap.String("site_id", id), zap.String("url", root))
	return site, nil
}

// GetSite loads a site.
func (o *Orchestrator) GetSite(ctx context.Context, siteID string) (crawler.Site, error) {
	site, err := o.store.GetSite(ctx, siteID)
	if err != nil {
		return crawler.Site{}, fmt.Errorf("get site: %w", err)
	}
	return site, nil
}

// ListSites returns every registered site, newest first.
func (o *Orchestrator) ListSites(ctx context.Context) ([]crawler.Site, error) {
	sites, err := o.store.ListSites(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	return sites, nil
}

// DeleteSite removes a site and its whole page graph. A crawl still running
// for the site ends failed when it tries to store its result.
func (o *Orchestrator) DeleteSite(ctx context.Context, siteID string) error {
	if err := o.store.DeleteSite(ctx, siteID); err != nil {
		return fmt.Errorf("delete site: %w", err)
	}
	o.logger.Info("site deleted", zap.String("site_id", siteID))
	return nil
}

// UpdateSection applies a manual edit to one section of a site's map. The
// edit lasts until the next crawl replaces the site's content.
func (o *Orchestrator) UpdateSection(
	ctx context.Context,
	siteID, sectionID string,
	update crawler.SectionUpdate,
) (crawler.Section, error) {
	if update.SectionID != nil {
		anchor := strings.TrimSpace(*update.SectionID)
		if anchor == "" || anchor == "#" {
			return crawler.Section{}, fmt.Errorf("%w: section_id must not be empty", ErrInvalidSection)
		}
		if !strings.HasPrefix(anchor, "#") {
			anchor = "#" + anchor
		}
		update.SectionID = &anchor
	}
	sec, err := o.store.UpdateSection(ctx, siteID, sectionID, update)
	if err != nil {
		return crawler.Section{}, fmt.Errorf("update section: %w", err)
	}
	o.logger.Info("section updated", zap.String("site_id", siteID), zap.String("section", sectionID))
	return sec, nil
}

// RequestCrawl queues a new crawl by resetting the site to pending. It fails
// with crawler.ErrConflict while a crawl is running and leaves the status as is.
func (o *Orchestrator) RequestCrawl(ctx context.Context, siteID string) error {
	if err := o.store.ResetToPending(ctx, siteID); err != nil {
		return fmt.Errorf("request crawl: %w", err)
	}
	o.logger.Info("crawl requested", zap.String("site_id", siteID))
	return nil
}

// CrawlStatus returns the site's current status and page count.
func (o *Orchestrator) CrawlStatus(ctx context.Context, siteID string) (crawler.CrawlReport, error) {
	site, err := o.store.GetSite(ctx, siteID)
	if err != nil {
		return crawler.CrawlReport{}, fmt.Errorf("get site: %w", err)
	}
	count, err := o.store.CountPages(ctx, siteID)
	if err != nil {
		return crawler.CrawlReport{}, fmt.Errorf("count pages: %w", err)
	}
	return crawler.CrawlReport{
		SiteID:        site.ID,
		Status:        site.Status,
		PageCount:     count,
		LastCrawledAt: site.LastCrawledAt,
	}, nil
}

// SiteMap assembles the persisted page/section graph of a site.
func (o *Orchestrator) SiteMap(ctx context.Context, siteID string) (crawler.SiteMap, error) {
	site, err := o.store.GetSite(ctx, siteID)
	if err != nil {
		return crawler.SiteMap{}, fmt.Errorf("get site: %w", err)
	}
	pages, err := o.store.ListPages(ctx, siteID)
	if err != nil {
		return crawler.SiteMap{}, fmt.Errorf("list pages: %w", err)
	}
	out := crawler.SiteMap{
		SiteName: site.Name,
		SiteURL:  site.URL,
		Pages:    make([]crawler.SiteMapPage, 0, len(pages)),
	}
	for _, p := range pages {
		mp := crawler.SiteMapPage{
			ID:              p.ID,
			URL:             p.URL,
			Title:           p.Title,
			MetaDescription: p.MetaDescription,
			Sections:        make([]crawler.SiteMapSection, 0, len(p.Sections)),
		}
		for _, s := range p.Sections {
			mp.Sections = append(mp.Sections, crawler.SiteMapSection{
				ID:             s.ID,
				SectionID:      s.SectionID,
				Heading:        s.Heading,
				ContentSummary: s.ContentSummary,
				ContentRaw:     s.ContentRaw,
				Order:          s.Order,
			})
		}
		out.Pages = append(out.Pages, mp)
	}
	return out, nil
}

// RunCrawl executes one crawl of siteID. Crawl failures are recorded as the
// failed status and not returned; an error means no transition happened
// (unknown site, lost claim, or the status write itself failed).
func (o *Orchestrator) RunCrawl(ctx context.Context, siteID string) (err error) {
	logger := o.logger.With(zap.String("site_id", siteID))
	site, err := o.store.GetSite(ctx, siteID)
	if err != nil {
		logger.Error("site lookup failed", zap.Error(err))
		return fmt.Errorf("get site: %w", err)
	}
	claimed, err := o.store.ClaimSite(ctx, siteID)
	if err != nil {
		logger.Error("claim site failed", zap.Error(err))
		return fmt.Errorf("claim site: %w", err)
	}
	if !claimed {
		logger.Warn("site no longer pending, skipping")
		return crawler.ErrClaimLost
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.RunCrawl", trace.WithAttributes(
		attribute.String("site.id", site.ID),
		attribute.String("site.url", site.URL),
	))
	defer span.End()

	start := time.Now()
	logger = logger.With(zap.String("url", site.URL))
	logger.Info("crawl started")

	defer func() {
		if r := recover(); r != nil {
			logger.Error("crawl panicked", zap.Any("panic", r), zap.Stack("stack"))
			span.SetStatus(codes.Error, "panic")
			err = o.fail(ctx, logger, siteID, start)
		}
	}()

	pages, runErr := o.crawl(ctx, logger, site)
	if runErr == nil {
		runErr = o.store.ReplaceContent(ctx, siteID, pages, o.clock.Now().UTC())
		if runErr != nil {
			runErr = fmt.Errorf("replace content: %w", runErr)
		}
	}
	if runErr != nil {
		logger.Error("crawl failed", zap.Error(runErr))
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "crawl failed")
		return o.fail(ctx, logger, siteID, start)
	}

	metrics.ObserveCrawlRun(string(crawler.CrawlStatusCompleted), time.Since(start))
	span.SetAttributes(attribute.Int("crawl.pages", len(pages)))
	logger.Info("crawl completed", zap.Int("pages", len(pages)), zap.Duration("duration", time.Since(start)))
	return nil
}

// fail records the failed status even when ctx is already canceled.
func (o *Orchestrator) fail(ctx context.Context, logger *zap.Logger, siteID string, start time.Time) error {
	metrics.ObserveCrawlRun(string(crawler.CrawlStatusFailed), time.Since(start))
	statusCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.StatusTimeout)
	defer cancel()
	if err := o.store.SetStatus(statusCtx, siteID, crawler.CrawlStatusFailed); err != nil {
		logger.Error("mark site failed", zap.Error(err))
		return fmt.Errorf("mark site failed: %w", err)
	}
	return nil
}

// crawl extracts the site and builds its complete new page graph in memory.
func (o *Orchestrator) crawl(ctx context.Context, logger *zap.Logger, site crawler.Site) ([]crawler.Page, error) {
	raw, err := o.extractor.Crawl(ctx, site.URL, o.cfg.MaxPages)
	if err != nil {
		return nil, fmt.Errorf("extract site: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("crawl interrupted: %w", err)
	}
	crawledAt := o.clock.Now().UTC()
	pages := make([]crawler.Page, 0, len(raw))
	for i, extraction := range raw {
		page, err := o.buildPage(ctx, logger, site.ID, i, extraction, crawledAt)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	return pages, nil
}

func (o *Orchestrator) buildPage(
	ctx context.Context,
	logger *zap.Logger,
	siteID string,
	order int,
	raw crawler.RawExtraction,
	crawledAt time.Time,
) (crawler.Page, error) {
	pageID, err := o.ids.NewID()
	if err != nil {
		return crawler.Page{}, fmt.Errorf("generate page id: %w", err)
	}
	page := crawler.Page{
		ID:              pageID,
		SiteID:          siteID,
		URL:             raw.URL,
		Title:           raw.Title,
		MetaDescription: raw.MetaDescription,
		Order:           order,
		CrawledAt:       crawledAt,
		Sections:        make([]crawler.Section, 0, len(raw.Sections)),
	}
	for idx, rs := range raw.Sections {
		sectionID, err := o.ids.NewID()
		if err != nil {
			return crawler.Page{}, fmt.Errorf("generate section id: %w", err)
		}
		page.Sections = append(page.Sections, crawler.Section{
			ID:             sectionID,
			PageID:         pageID,
			SectionID:      slug.Anchor(rs.ID, rs.Heading, idx),
			Heading:        rs.Heading,
			ContentRaw:     rs.Content,
			ContentSummary: o.summarize(ctx, logger, raw.URL, rs.Content),
			Order:          idx,
		})
	}
	o.storeSnapshot(ctx, logger, siteID, raw)
	return page, nil
}

// summarize never fails: any summarizer error falls back to the head of the
// raw content.
func (o *Orchestrator) summarize(ctx context.Context, logger *zap.Logger, pageURL, content string) string {
	summary, err := o.summarizer.Summarize(ctx, content)
	if err == nil {
		metrics.ObserveSummary(metrics.SummaryOK)
		return summary
	}
	metrics.ObserveSummary(metrics.SummaryFallback)
	if !errors.Is(err, summarizer.ErrNotConfigured) {
		logger.Warn("summarization failed, using raw content", zap.String("page", pageURL), zap.Error(err))
	}
	return textutil.Truncate(content, o.cfg.FallbackChars)
}

func (o *Orchestrator) storeSnapshot(ctx context.Context, logger *zap.Logger, siteID string, raw crawler.RawExtraction) {
	if o.blobStore == nil || o.hasher == nil || len(raw.Snapshot) == 0 {
		return
	}
	key, err := o.hasher.Hash([]byte(raw.URL))
	if err != nil {
		logger.Warn("hash snapshot key", zap.String("page", raw.URL), zap.Error(err))
		return
	}
	uri, err := o.blobStore.PutObject(ctx, o.snapshotPath(siteID, key), o.cfg.ContentType, bytes.NewReader(raw.Snapshot))
	if err != nil {
		logger.Warn("store snapshot", zap.String("page", raw.URL), zap.Error(err))
		return
	}
	logger.Debug("stored snapshot", zap.String("page", raw.URL), zap.String("uri", uri))
}

func (o *Orchestrator) snapshotPath(siteID, key string) string {
	prefix := strings.Trim(o.cfg.SnapshotPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.html", siteID, key)
	}
	return fmt.Sprintf("%s/%s/%s.html", prefix, siteID, key)
}
