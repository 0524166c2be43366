package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-ingest/internal/crawler"
	"github.com/JakeFAU/site-ingest/internal/dom"
	"github.com/JakeFAU/site-ingest/internal/engine"
	"github.com/JakeFAU/site-ingest/internal/storage/memory"
)

// staticSite serves fixed HTML per URL.
type staticSite map[string]string

func (s staticSite) Render(_ context.Context, req crawler.RenderRequest) (crawler.Rendered, error) {
	html, ok := s[req.URL]
	if !ok {
		return crawler.Rendered{}, errors.New("net::ERR_NAME_NOT_RESOLVED")
	}
	doc, err := dom.Parse([]byte(html))
	if err != nil {
		return crawler.Rendered{}, err
	}
	return crawler.Rendered{URL: req.URL, FinalURL: req.URL, StatusCode: 200, HTML: []byte(html), Document: doc}, nil
}

func newPipeline(t *testing.T, site staticSite) (*Orchestrator, *memory.SiteStore) {
	t.Helper()
	store := memory.NewSiteStore()
	eng := engine.New(site, engine.Config{}, nil)
	orch := New(store, eng, fakeSummarizer{summary: "cheap plans"}, nil, nil,
		fixedClock{time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}, &seqIDs{}, Config{}, nil)
	return orch, store
}

// The 18-character pricing text sits below the structured-section floor and
// the whole-page floor, so the crawl completes with no pages.
func TestPipelineShortPricingSectionCompletesEmpty(t *testing.T) {
	t.Parallel()

	orch, _ := newPipeline(t, staticSite{
		"https://x.test": `<html><body><section id="pricing">Plans start at $10</section></body></html>`,
	})
	ctx := context.Background()
	site, err := orch.CreateSite(ctx, "Acme", "https://x.test")
	require.NoError(t, err)

	require.NoError(t, orch.RunCrawl(ctx, site.ID))
	report, err := orch.CrawlStatus(ctx, site.ID)
	require.NoError(t, err)
	require.Equal(t, crawler.CrawlStatusCompleted, report.Status)
	require.Zero(t, report.PageCount)
}

func TestPipelinePricingSection(t *testing.T) {
	t.Parallel()

	orch, _ := newPipeline(t, staticSite{
		"https://x.test": `<html><head><title>Acme</title></head><body>` +
			`<section id="pricing">Plans start at $10 per month</section></body></html>`,
	})
	ctx := context.Background()
	site, err := orch.CreateSite(ctx, "Acme", "https://x.test")
	require.NoError(t, err)

	require.NoError(t, orch.RunCrawl(ctx, site.ID))
	sm, err := orch.SiteMap(ctx, site.ID)
	require.NoError(t, err)
	require.Len(t, sm.Pages, 1)
	require.Equal(t, "/", sm.Pages[0].URL)
	require.Len(t, sm.Pages[0].Sections, 1)
	sec := sm.Pages[0].Sections[0]
	require.Equal(t, "#pricing", sec.SectionID)
	require.Empty(t, sec.Heading)
	require.Equal(t, "cheap plans", sec.ContentSummary)
	require.Zero(t, sec.Order)

	report, err := orch.CrawlStatus(ctx, site.ID)
	require.NoError(t, err)
	require.Equal(t, crawler.CrawlStatusCompleted, report.Status)
	require.NotNil(t, report.LastCrawledAt)
}

func TestPipelineRepeatedCrawlIsStable(t *testing.T) {
	t.Parallel()

	body := func(heading string) string {
		return `<h2>` + heading + `</h2><p>Everything you need to know about ` + heading + ` at Acme, in one place.</p>`
	}
	orch, _ := newPipeline(t, staticSite{
		"https://x.test": `<html><head><title>Acme</title></head><body>
<nav><a href="/about">About</a><a href="/pricing">Pricing</a></nav>
<main><section id="welcome">` + body("Welcome") + `</section><section>` + body("Services") + `</section></main></body></html>`,
		"https://x.test/about":   `<html><body><main><section id="story">` + body("Story") + `</section></main></body></html>`,
		"https://x.test/pricing": `<html><body><main><section id="plans">` + body("Plans") + `</section></main></body></html>`,
	})
	ctx := context.Background()
	site, err := orch.CreateSite(ctx, "Acme", "https://x.test")
	require.NoError(t, err)

	outline := func() []string {
		t.Helper()
		sm, err := orch.SiteMap(ctx, site.ID)
		require.NoError(t, err)
		var out []string
		for _, p := range sm.Pages {
			for _, s := range p.Sections {
				out = append(out, p.URL+"|"+s.SectionID+"|"+s.Heading)
			}
		}
		return out
	}

	require.NoError(t, orch.RunCrawl(ctx, site.ID))
	first := outline()
	require.Equal(t, []string{
		"/|#welcome|Welcome",
		"/|#section-services|Services",
		"/about|#story|Story",
		"/pricing|#plans|Plans",
	}, first)

	require.NoError(t, orch.RequestCrawl(ctx, site.ID))
	require.NoError(t, orch.RunCrawl(ctx, site.ID))
	require.Equal(t, first, outline())
}
