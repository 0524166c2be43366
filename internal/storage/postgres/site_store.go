// Package postgres provides the Postgres-backed SiteStore.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/site-ingest/internal/crawler"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Pool is the subset of *pgxpool.Pool the store relies on.
type Pool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// SiteStore persists sites, pages and sections in Postgres.
type SiteStore struct {
	pool Pool
}

var _ crawler.SiteStore = (*SiteStore)(nil)

// Connect opens a pool using cfg.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// NewSiteStore connects to Postgres and returns a store that owns the pool.
func NewSiteStore(ctx context.Context, cfg Config) (*SiteStore, error) {
	pool, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &SiteStore{pool: pool}, nil
}

// NewSiteStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewSiteStoreWithPool(pool Pool) (*SiteStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &SiteStore{pool: pool}, nil
}

// Close releases the pool.
func (s *SiteStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const siteColumns = `id, name, url, crawl_status, last_crawled_at, created_at`

// CreateSite inserts a new site row.
func (s *SiteStore) CreateSite(ctx context.Context, site crawler.Site) error {
	if _, err := uuid.Parse(site.ID); err != nil {
		return fmt.Errorf("invalid site id %q: %w", site.ID, err)
	}
	status := site.Status
	if status == "" {
		status = crawler.CrawlStatusPending
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sites (`+siteColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		site.ID, site.Name, site.URL, string(status), site.LastCrawledAt, site.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert site: %w", err)
	}
	return nil
}

// GetSite loads a site by ID.
func (s *SiteStore) GetSite(ctx context.Context, siteID string) (crawler.Site, error) {
	if !validID(siteID) {
		return crawler.Site{}, crawler.ErrNotFound
	}
	row := s.pool.QueryRow(ctx, `SELECT `+siteColumns+` FROM sites WHERE id = $1`, siteID)
	return scanSite(row)
}

// ListSites returns every site, newest first.
func (s *SiteStore) ListSites(ctx context.Context) ([]crawler.Site, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+siteColumns+` FROM sites ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("query sites: %w", err)
	}
	defer rows.Close()
	sites := make([]crawler.Site, 0)
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sites: %w", err)
	}
	return sites, nil
}

// DeleteSite removes the site row; pages and sections cascade.
func (s *SiteStore) DeleteSite(ctx context.Context, siteID string) error {
	if !validID(siteID) {
		return crawler.ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM sites WHERE id = $1`, siteID)
	if err != nil {
		return fmt.Errorf("delete site: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return crawler.ErrNotFound
	}
	return nil
}

// FindPendingSite returns the oldest pending site.
func (s *SiteStore) FindPendingSite(ctx context.Context) (crawler.Site, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+siteColumns+` FROM sites WHERE crawl_status = 'pending' ORDER BY created_at, id LIMIT 1`)
	return scanSite(row)
}

// ResetToPending marks the site pending unless a crawl is running.
func (s *SiteStore) ResetToPending(ctx context.Context, siteID string) error {
	if !validID(siteID) {
		return crawler.ErrNotFound
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE sites SET crawl_status = 'pending' WHERE id = $1 AND crawl_status <> 'crawling'`, siteID)
	if err != nil {
		return fmt.Errorf("reset site status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	exists, err := s.exists(ctx, siteID)
	if err != nil {
		return err
	}
	if !exists {
		return crawler.ErrNotFound
	}
	return crawler.ErrConflict
}

// ClaimSite atomically moves a pending site to crawling.
func (s *SiteStore) ClaimSite(ctx context.Context, siteID string) (bool, error) {
	if !validID(siteID) {
		return false, crawler.ErrNotFound
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE sites SET crawl_status = 'crawling' WHERE id = $1 AND crawl_status = 'pending'`, siteID)
	if err != nil {
		return false, fmt.Errorf("claim site: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	exists, err := s.exists(ctx, siteID)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, crawler.ErrNotFound
	}
	return false, nil
}

// SetStatus overwrites the crawl status.
func (s *SiteStore) SetStatus(ctx context.Context, siteID string, status crawler.CrawlStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid crawl status %q", status)
	}
	if !validID(siteID) {
		return crawler.ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `UPDATE sites SET crawl_status = $2 WHERE id = $1`, siteID, string(status))
	if err != nil {
		return fmt.Errorf("set site status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return crawler.ErrNotFound
	}
	return nil
}

// ReplaceContent swaps the site's pages for pages and marks it completed in
// one transaction. Cascading foreign keys remove the old sections.
func (s *SiteStore) ReplaceContent(ctx context.Context, siteID string, pages []crawler.Page, crawledAt time.Time) error {
	if !validID(siteID) {
		return crawler.ErrNotFound
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace content: %w", err)
	}
	if err := replaceContent(ctx, tx, siteID, pages, crawledAt); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace content: %w", err)
	}
	return nil
}

func replaceContent(ctx context.Context, tx pgx.Tx, siteID string, pages []crawler.Page, crawledAt time.Time) error {
	if _, err := tx.Exec(ctx, `DELETE FROM pages WHERE site_id = $1`, siteID); err != nil {
		return fmt.Errorf("delete pages: %w", err)
	}
	for _, page := range pages {
		if _, err := tx.Exec(ctx,
			`INSERT INTO pages (id, site_id, url, title, meta_description, position, crawled_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			page.ID, siteID, page.URL, page.Title, page.MetaDescription, page.Order, page.CrawledAt,
		); err != nil {
			return fmt.Errorf("insert page %s: %w", page.URL, err)
		}
		for _, sec := range page.Sections {
			if _, err := tx.Exec(ctx,
				`INSERT INTO sections (id, page_id, section_id, heading, content_raw, content_summary, position)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				sec.ID, page.ID, sec.SectionID, sec.Heading, sec.ContentRaw, sec.ContentSummary, sec.Order,
			); err != nil {
				return fmt.Errorf("insert section %s%s: %w", page.URL, sec.SectionID, err)
			}
		}
	}
	tag, err := tx.Exec(ctx,
		`UPDATE sites SET crawl_status = 'completed', last_crawled_at = $2 WHERE id = $1`, siteID, crawledAt)
	if err != nil {
		return fmt.Errorf("mark site completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return crawler.ErrNotFound
	}
	return nil
}

// CountPages returns how many pages the site currently has.
func (s *SiteStore) CountPages(ctx context.Context, siteID string) (int, error) {
	if !validID(siteID) {
		return 0, crawler.ErrNotFound
	}
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM pages WHERE site_id = $1`, siteID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return n, nil
}

// ListPages returns the site's pages with their sections, both in order.
func (s *SiteStore) ListPages(ctx context.Context, siteID string) ([]crawler.Page, error) {
	if !validID(siteID) {
		return nil, crawler.ErrNotFound
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, site_id, url, title, meta_description, position, crawled_at
		 FROM pages WHERE site_id = $1 ORDER BY position`, siteID)
	if err != nil {
		return nil, fmt.Errorf("query pages: %w", err)
	}
	pages := make([]crawler.Page, 0)
	index := make(map[string]int)
	for rows.Next() {
		var p crawler.Page
		if err := rows.Scan(&p.ID, &p.SiteID, &p.URL, &p.Title, &p.MetaDescription, &p.Order, &p.CrawledAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan page: %w", err)
		}
		p.Sections = make([]crawler.Section, 0)
		index[p.ID] = len(pages)
		pages = append(pages, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	if len(pages) == 0 {
		return pages, nil
	}

	rows, err = s.pool.Query(ctx,
		`SELECT s.id, s.page_id, s.section_id, s.heading, s.content_raw, s.content_summary, s.position
		 FROM sections s JOIN pages p ON p.id = s.page_id
		 WHERE p.site_id = $1 ORDER BY p.position, s.position`, siteID)
	if err != nil {
		return nil, fmt.Errorf("query sections: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sec crawler.Section
		if err := rows.Scan(&sec.ID, &sec.PageID, &sec.SectionID, &sec.Heading,
			&sec.ContentRaw, &sec.ContentSummary, &sec.Order); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		i, ok := index[sec.PageID]
		if !ok {
			continue
		}
		pages[i].Sections = append(pages[i].Sections, sec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sections: %w", err)
	}
	return pages, nil
}

// UpdateSection edits one section of the site. Nil update fields keep the
// stored value.
func (s *SiteStore) UpdateSection(
	ctx context.Context,
	siteID, sectionID string,
	update crawler.SectionUpdate,
) (crawler.Section, error) {
	if !validID(siteID) {
		return crawler.Section{}, crawler.ErrNotFound
	}
	if !validID(sectionID) {
		return s.missingSection(ctx, siteID)
	}
	var sec crawler.Section
	err := s.pool.QueryRow(ctx,
		`UPDATE sections s SET
		   heading = COALESCE($3, s.heading),
		   content_summary = COALESCE($4, s.content_summary),
		   section_id = COALESCE($5, s.section_id)
		 FROM pages p
		 WHERE s.id = $2 AND s.page_id = p.id AND p.site_id = $1
		 RETURNING s.id, s.page_id, s.section_id, s.heading, s.content_raw, s.content_summary, s.position`,
		siteID, sectionID, update.Heading, update.ContentSummary, update.SectionID,
	).Scan(&sec.ID, &sec.PageID, &sec.SectionID, &sec.Heading, &sec.ContentRaw, &sec.ContentSummary, &sec.Order)
	if errors.Is(err, pgx.ErrNoRows) {
		return s.missingSection(ctx, siteID)
	}
	if err != nil {
		return crawler.Section{}, fmt.Errorf("update section: %w", err)
	}
	return sec, nil
}

// missingSection tells an unknown site apart from a section outside it.
func (s *SiteStore) missingSection(ctx context.Context, siteID string) (crawler.Section, error) {
	exists, err := s.exists(ctx, siteID)
	if err != nil {
		return crawler.Section{}, err
	}
	if !exists {
		return crawler.Section{}, crawler.ErrNotFound
	}
	return crawler.Section{}, crawler.ErrSectionNotFound
}

func (s *SiteStore) exists(ctx context.Context, siteID string) (bool, error) {
	var ok bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sites WHERE id = $1)`, siteID).Scan(&ok); err != nil {
		return false, fmt.Errorf("check site exists: %w", err)
	}
	return ok, nil
}

func scanSite(row pgx.Row) (crawler.Site, error) {
	var (
		site   crawler.Site
		status string
	)
	err := row.Scan(&site.ID, &site.Name, &site.URL, &status, &site.LastCrawledAt, &site.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.Site{}, crawler.ErrNotFound
	}
	if err != nil {
		return crawler.Site{}, fmt.Errorf("scan site: %w", err)
	}
	site.Status = crawler.CrawlStatus(status)
	return site, nil
}

// validID filters IDs Postgres would reject as uuid input; such IDs can never exist.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
