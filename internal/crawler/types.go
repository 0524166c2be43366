package crawler

import (
	"errors"
	"time"

	"github.com/JakeFAU/site-ingest/internal/dom"
)

// CrawlStatus represents the lifecycle state of a site's crawl.
type CrawlStatus string

// Crawl status values persisted in the site store.
const (
	CrawlStatusPending   CrawlStatus = "pending"
	CrawlStatusCrawling  CrawlStatus = "crawling"
	CrawlStatusCompleted CrawlStatus = "completed"
	CrawlStatusFailed    CrawlStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s CrawlStatus) Valid() bool {
	switch s {
	case CrawlStatusPending, CrawlStatusCrawling, CrawlStatusCompleted, CrawlStatusFailed:
		return true
	default:
		return false
	}
}

var (
	// ErrNotFound signals that the requested site does not exist.
	ErrNotFound = errors.New("site not found")
	// ErrConflict signals that a crawl is already in progress for the site.
	ErrConflict = errors.New("crawl already in progress")
	// ErrRootUnavailable signals that the root page of a site could not be loaded.
	ErrRootUnavailable = errors.New("root page unavailable")
	// ErrSectionNotFound signals that the section does not belong to the site's map.
	ErrSectionNotFound = errors.New("section not found")
	// ErrClaimLost signals that another runner moved the site out of pending first.
	ErrClaimLost = errors.New("crawl claim lost")
)

// Site is a third-party website registered for ingestion.
type Site struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	URL           string      `json:"url"`
	Status        CrawlStatus `json:"crawl_status"`
	LastCrawledAt *time.Time  `json:"last_crawled_at,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// Page is one persisted page of a site. Sections are ordered by Order.
type Page struct {
	ID              string    `json:"id"`
	SiteID          string    `json:"site_id"`
	URL             string    `json:"url"`
	Title           string    `json:"title"`
	MetaDescription *string   `json:"meta_description,omitempty"`
	Order           int       `json:"order"`
	CrawledAt       time.Time `json:"crawled_at"`
	Sections        []Section `json:"sections"`
}

// Section is a navigable chunk of a page.
type Section struct {
	ID             string `json:"id"`
	PageID         string `json:"page_id"`
	SectionID      string `json:"section_id"`
	Heading        string `json:"heading"`
	ContentRaw     string `json:"content_raw"`
	ContentSummary string `json:"content_summary"`
	Order          int    `json:"order"`
}

// SectionUpdate carries an edit of a stored section. Nil fields keep their
// current value.
type SectionUpdate struct {
	Heading        *string `json:"heading,omitempty"`
	ContentSummary *string `json:"content_summary,omitempty"`
	SectionID      *string `json:"section_id,omitempty"`
}

// Empty reports whether u changes nothing.
func (u SectionUpdate) Empty() bool {
	return u.Heading == nil && u.ContentSummary == nil && u.SectionID == nil
}

// RawSection is a section as extracted from the DOM, before summarization.
// ID is empty when the element carried no anchor.
type RawSection struct {
	ID      string `json:"id,omitempty"`
	Heading string `json:"heading"`
	Content string `json:"content"`
}

// RawExtraction is the unpersisted result of extracting one page.
type RawExtraction struct {
	URL             string       `json:"url"`
	Title           string       `json:"title"`
	MetaDescription *string      `json:"meta_description,omitempty"`
	Sections        []RawSection `json:"sections"`
	// Snapshot holds the rendered HTML the sections were extracted from.
	Snapshot []byte `json:"-"`
}

// CrawlReport is the read-only crawl status snapshot for a site.
type CrawlReport struct {
	SiteID        string      `json:"site_id"`
	Status        CrawlStatus `json:"status"`
	PageCount     int         `json:"page_count"`
	LastCrawledAt *time.Time  `json:"last_crawled_at,omitempty"`
}

// SiteMap is the ingestion artifact consumed by the conversational engine.
type SiteMap struct {
	SiteName string        `json:"site_name"`
	SiteURL  string        `json:"site_url"`
	Pages    []SiteMapPage `json:"pages"`
}

// SiteMapPage is one page of a SiteMap.
type SiteMapPage struct {
	ID              string           `json:"id"`
	URL             string           `json:"url"`
	Title           string           `json:"title"`
	MetaDescription *string          `json:"meta_description,omitempty"`
	Sections        []SiteMapSection `json:"sections"`
}

// SiteMapSection is one section of a SiteMapPage.
type SiteMapSection struct {
	ID             string `json:"id"`
	SectionID      string `json:"section_id"`
	Heading        string `json:"heading"`
	ContentSummary string `json:"content_summary"`
	ContentRaw     string `json:"content_raw"`
	Order          int    `json:"order"`
}

// RenderRequest captures everything needed to load a page.
type RenderRequest struct {
	URL     string
	Timeout time.Duration
}

// Rendered is the result returned by a Renderer implementation.
type Rendered struct {
	URL          string
	FinalURL     string
	StatusCode   int
	HTML         []byte
	Document     *dom.Document
	Duration     time.Duration
	UsedHeadless bool
}
