package crawler

import (
	"context"
	"io"
	"time"
)

// SiteStore persists sites and their page/section graph.
type SiteStore interface {
	CreateSite(ctx context.Context, site Site) error
	GetSite(ctx context.Context, siteID string) (Site, error)
	// ListSites returns every site, newest first.
	ListSites(ctx context.Context) ([]Site, error)
	// DeleteSite removes the site together with its pages and sections.
	DeleteSite(ctx context.Context, siteID string) error
	// FindPendingSite returns the oldest pending site or ErrNotFound.
	FindPendingSite(ctx context.Context) (Site, error)
	// ResetToPending sets pending unless the site is crawling (ErrConflict).
	ResetToPending(ctx context.Context, siteID string) error
	// ClaimSite moves the site from pending to crawling; false means another
	// runner got there first.
	ClaimSite(ctx context.Context, siteID string) (bool, error)
	SetStatus(ctx context.Context, siteID string, status CrawlStatus) error
	// ReplaceContent deletes every page of the site, inserts pages and marks
	// the site completed at crawledAt, all in one unit of work.
	ReplaceContent(ctx context.Context, siteID string, pages []Page, crawledAt time.Time) error
	CountPages(ctx context.Context, siteID string) (int, error)
	ListPages(ctx context.Context, siteID string) ([]Page, error)
	// UpdateSection edits one section of the site's map. It returns
	// ErrNotFound for an unknown site and ErrSectionNotFound when the section
	// is not part of that site.
	UpdateSection(ctx context.Context, siteID, sectionID string, update SectionUpdate) (Section, error)
}

// Renderer loads a URL and returns the rendered document.
type Renderer interface {
	Render(ctx context.Context, request RenderRequest) (Rendered, error)
}

// HeadlessDetector decides whether a headless render is warranted.
type HeadlessDetector interface {
	ShouldPromote(page Rendered) bool
}

// Extractor crawls a site from its root and returns extracted pages.
type Extractor interface {
	Crawl(ctx context.Context, rootURL string, maxPages int) ([]RawExtraction, error)
}

// Summarizer condenses section text. It may fail.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Hasher computes digests for object keys.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
