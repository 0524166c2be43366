// Package memory provides in-process stores for development, the one-shot
// crawl command and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/site-ingest/internal/crawler"
)

// SiteStore keeps sites and their page graphs in memory. Every method locks
// the whole store, so ReplaceContent is atomic with respect to readers.
type SiteStore struct {
	mu    sync.RWMutex
	sites map[string]crawler.Site
	pages map[string][]crawler.Page
}

var _ crawler.SiteStore = (*SiteStore)(nil)

// NewSiteStore constructs a SiteStore.
func NewSiteStore() *SiteStore {
	return &SiteStore{
		sites: make(map[string]crawler.Site),
		pages: make(map[string][]crawler.Page),
	}
}

// CreateSite stores a new site.
func (s *SiteStore) CreateSite(_ context.Context, site crawler.Site) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sites[site.ID]; exists {
		return fmt.Errorf("site %s already exists", site.ID)
	}
	s.sites[site.ID] = cloneSite(site)
	return nil
}

// GetSite fetches a site by ID.
func (s *SiteStore) GetSite(_ context.Context, siteID string) (crawler.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	site, ok := s.sites[siteID]
	if !ok {
		return crawler.Site{}, crawler.ErrNotFound
	}
	return cloneSite(site), nil
}

// ListSites returns all sites, newest first.
func (s *SiteStore) ListSites(_ context.Context) ([]crawler.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sites := make([]crawler.Site, 0, len(s.sites))
	for _, site := range s.sites {
		sites = append(sites, cloneSite(site))
	}
	sort.Slice(sites, func(i, j int) bool {
		if sites[i].CreatedAt.Equal(sites[j].CreatedAt) {
			return sites[i].ID < sites[j].ID
		}
		return sites[i].CreatedAt.After(sites[j].CreatedAt)
	})
	return sites, nil
}

// DeleteSite drops a site and its pages.
func (s *SiteStore) DeleteSite(_ context.Context, siteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sites[siteID]; !ok {
		return crawler.ErrNotFound
	}
	delete(s.sites, siteID)
	delete(s.pages, siteID)
	return nil
}

// FindPendingSite returns the oldest pending site.
func (s *SiteStore) FindPendingSite(_ context.Context) (crawler.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var pending []crawler.Site
	for _, site := range s.sites {
		if site.Status == crawler.CrawlStatusPending {
			pending = append(pending, site)
		}
	}
	if len(pending) == 0 {
		return crawler.Site{}, crawler.ErrNotFound
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].ID < pending[j].ID
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return cloneSite(pending[0]), nil
}

// ResetToPending marks a site pending unless it is crawling.
func (s *SiteStore) ResetToPending(_ context.Context, siteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	site, ok := s.sites[siteID]
	if !ok {
		return crawler.ErrNotFound
	}
	if site.Status == crawler.CrawlStatusCrawling {
		return crawler.ErrConflict
	}
	site.Status = crawler.CrawlStatusPending
	s.sites[siteID] = site
	return nil
}

// ClaimSite moves a pending site to crawling.
func (s *SiteStore) ClaimSite(_ context.Context, siteID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	site, ok := s.sites[siteID]
	if !ok {
		return false, crawler.ErrNotFound
	}
	if site.Status != crawler.CrawlStatusPending {
		return false, nil
	}
	site.Status = crawler.CrawlStatusCrawling
	s.sites[siteID] = site
	return true, nil
}

// SetStatus overwrites the crawl status of a site.
func (s *SiteStore) SetStatus(_ context.Context, siteID string, status crawler.CrawlStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid crawl status %q", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	site, ok := s.sites[siteID]
	if !ok {
		return crawler.ErrNotFound
	}
	site.Status = status
	s.sites[siteID] = site
	return nil
}

// ReplaceContent swaps the site's pages for pages and marks it completed.
func (s *SiteStore) ReplaceContent(_ context.Context, siteID string, pages []crawler.Page, crawledAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	site, ok := s.sites[siteID]
	if !ok {
		return crawler.ErrNotFound
	}
	s.pages[siteID] = clonePages(pages)
	at := crawledAt
	site.Status = crawler.CrawlStatusCompleted
	site.LastCrawledAt = &at
	s.sites[siteID] = site
	return nil
}

// CountPages returns the number of stored pages of a site.
func (s *SiteStore) CountPages(_ context.Context, siteID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sites[siteID]; !ok {
		return 0, crawler.ErrNotFound
	}
	return len(s.pages[siteID]), nil
}

// ListPages returns copies of a site's pages ordered by Order.
func (s *SiteStore) ListPages(_ context.Context, siteID string) ([]crawler.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sites[siteID]; !ok {
		return nil, crawler.ErrNotFound
	}
	pages := clonePages(s.pages[siteID])
	sort.SliceStable(pages, func(i, j int) bool { return pages[i].Order < pages[j].Order })
	return pages, nil
}

// UpdateSection edits a section of one of the site's pages in place.
func (s *SiteStore) UpdateSection(
	_ context.Context,
	siteID, sectionID string,
	update crawler.SectionUpdate,
) (crawler.Section, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sites[siteID]; !ok {
		return crawler.Section{}, crawler.ErrNotFound
	}
	pages := s.pages[siteID]
	for i := range pages {
		for j := range pages[i].Sections {
			sec := &pages[i].Sections[j]
			if sec.ID != sectionID {
				continue
			}
			if update.Heading != nil {
				sec.Heading = *update.Heading
			}
			if update.ContentSummary != nil {
				sec.ContentSummary = *update.ContentSummary
			}
			if update.SectionID != nil {
				sec.SectionID = *update.SectionID
			}
			return *sec, nil
		}
	}
	return crawler.Section{}, crawler.ErrSectionNotFound
}

func cloneSite(site crawler.Site) crawler.Site {
	if site.LastCrawledAt != nil {
		at := *site.LastCrawledAt
		site.LastCrawledAt = &at
	}
	return site
}

func clonePages(pages []crawler.Page) []crawler.Page {
	out := make([]crawler.Page, len(pages))
	for i, p := range pages {
		if p.MetaDescription != nil {
			meta := *p.MetaDescription
			p.MetaDescription = &meta
		}
		p.Sections = append([]crawler.Section(nil), p.Sections...)
		out[i] = p
	}
	return out
}
