package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-ingest/internal/crawler"
)

func newSite(id string, status crawler.CrawlStatus, created time.Time) crawler.Site {
	return crawler.Site{ID: id, Name: "Acme", URL: "https://x.test", Status: status, CreatedAt: created}
}

func TestSiteStoreLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSiteStore()
	site := newSite("site-1", crawler.CrawlStatusPending, time.Unix(100, 0))
	require.NoError(t, store.CreateSite(ctx, site))
	require.Error(t, store.CreateSite(ctx, site))

	found, err := store.FindPendingSite(ctx)
	require.NoError(t, err)
	require.Equal(t, "site-1", found.ID)

	claimed, err := store.ClaimSite(ctx, "site-1")
	require.NoError(t, err)
	require.True(t, claimed)
	claimed, err = store.ClaimSite(ctx, "site-1")
	require.NoError(t, err)
	require.False(t, claimed)

	_, err = store.FindPendingSite(ctx)
	require.ErrorIs(t, err, crawler.ErrNotFound)
	require.ErrorIs(t, store.ResetToPending(ctx, "site-1"), crawler.ErrConflict)

	meta := "About us"
	crawledAt := time.Unix(200, 0).UTC()
	pages := []crawler.Page{
		{ID: "p2", SiteID: "site-1", URL: "/about", Order: 1, MetaDescription: &meta},
		{ID: "p1", SiteID: "site-1", URL: "/", Order: 0, Sections: []crawler.Section{{ID: "s1", SectionID: "#pricing"}}},
	}
	require.NoError(t, store.ReplaceContent(ctx, "site-1", pages, crawledAt))

	got, err := store.GetSite(ctx, "site-1")
	require.NoError(t, err)
	require.Equal(t, crawler.CrawlStatusCompleted, got.Status)
	require.NotNil(t, got.LastCrawledAt)
	require.True(t, got.LastCrawledAt.Equal(crawledAt))

	count, err := store.CountPages(ctx, "site-1")
	require.NoError(t, err)
	require.Equal(t, 2, count)

	listed, err := store.ListPages(ctx, "site-1")
	require.NoError(t, err)
	require.Equal(t, "/", listed[0].URL)
	require.Equal(t, "/about", listed[1].URL)

	// Returned pages are copies.
	listed[0].Sections[0].SectionID = "#mutated"
	*listed[1].MetaDescription = "mutated"
	again, err := store.ListPages(ctx, "site-1")
	require.NoError(t, err)
	require.Equal(t, "#pricing", again[0].Sections[0].SectionID)
	require.Equal(t, "About us", *again[1].MetaDescription)

	require.NoError(t, store.ResetToPending(ctx, "site-1"))
	require.NoError(t, store.ReplaceContent(ctx, "site-1", nil, crawledAt.Add(time.Hour)))
	count, err = store.CountPages(ctx, "site-1")
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestSiteStoreFindPendingOldestFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSiteStore()
	require.NoError(t, store.CreateSite(ctx, newSite("new", crawler.CrawlStatusPending, time.Unix(300, 0))))
	require.NoError(t, store.CreateSite(ctx, newSite("old", crawler.CrawlStatusPending, time.Unix(100, 0))))
	require.NoError(t, store.CreateSite(ctx, newSite("done", crawler.CrawlStatusCompleted, time.Unix(50, 0))))

	found, err := store.FindPendingSite(ctx)
	require.NoError(t, err)
	require.Equal(t, "old", found.ID)
}

func TestSiteStoreUnknownSite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSiteStore()
	_, err := store.GetSite(ctx, "missing")
	require.ErrorIs(t, err, crawler.ErrNotFound)
	require.ErrorIs(t, store.ResetToPending(ctx, "missing"), crawler.ErrNotFound)
	require.ErrorIs(t, store.SetStatus(ctx, "missing", crawler.CrawlStatusFailed), crawler.ErrNotFound)
	_, err = store.ClaimSite(ctx, "missing")
	require.ErrorIs(t, err, crawler.ErrNotFound)
	_, err = store.ListPages(ctx, "missing")
	require.ErrorIs(t, err, crawler.ErrNotFound)
	require.Error(t, store.SetStatus(ctx, "missing", "bogus"))
}

func TestSiteStoreListAndDeleteSites(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSiteStore()
	require.NoError(t, store.CreateSite(ctx, newSite("old", crawler.CrawlStatusCompleted, time.Unix(100, 0))))
	require.NoError(t, store.CreateSite(ctx, newSite("new", crawler.CrawlStatusPending, time.Unix(300, 0))))
	require.NoError(t, store.ReplaceContent(ctx, "old", []crawler.Page{{ID: "p1", URL: "/"}}, time.Unix(200, 0)))

	sites, err := store.ListSites(ctx)
	require.NoError(t, err)
	require.Len(t, sites, 2)
	require.Equal(t, "new", sites[0].ID)
	require.Equal(t, "old", sites[1].ID)

	require.NoError(t, store.DeleteSite(ctx, "old"))
	require.ErrorIs(t, store.DeleteSite(ctx, "old"), crawler.ErrNotFound)
	_, err = store.GetSite(ctx, "old")
	require.ErrorIs(t, err, crawler.ErrNotFound)
	_, err = store.ListPages(ctx, "old")
	require.ErrorIs(t, err, crawler.ErrNotFound)

	sites, err = store.ListSites(ctx)
	require.NoError(t, err)
	require.Len(t, sites, 1)
}

func TestSiteStoreUpdateSection(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSiteStore()
	require.NoError(t, store.CreateSite(ctx, newSite("a", crawler.CrawlStatusPending, time.Unix(100, 0))))
	require.NoError(t, store.CreateSite(ctx, newSite("b", crawler.CrawlStatusPending, time.Unix(100, 0))))
	require.NoError(t, store.ReplaceContent(ctx, "a", []crawler.Page{{
		ID: "p1", URL: "/",
		Sections: []crawler.Section{{ID: "s1", PageID: "p1", SectionID: "#pricing", Heading: "Pricing", ContentSummary: "old"}},
	}}, time.Unix(200, 0)))

	summary := "Plans and prices"
	sec, err := store.UpdateSection(ctx, "a", "s1", crawler.SectionUpdate{ContentSummary: &summary})
	require.NoError(t, err)
	require.Equal(t, "Pricing", sec.Heading)
	require.Equal(t, summary, sec.ContentSummary)

	pages, err := store.ListPages(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, summary, pages[0].Sections[0].ContentSummary)
	require.Equal(t, "#pricing", pages[0].Sections[0].SectionID)

	_, err = store.UpdateSection(ctx, "b", "s1", crawler.SectionUpdate{ContentSummary: &summary})
	require.ErrorIs(t, err, crawler.ErrSectionNotFound)
	_, err = store.UpdateSection(ctx, "missing", "s1", crawler.SectionUpdate{})
	require.ErrorIs(t, err, crawler.ErrNotFound)
}
