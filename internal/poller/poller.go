// Package poller runs queued crawls one at a time on a fixed interval.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-ingest/internal/crawler"
)

const defaultInterval = 5 * time.Second

// Runner executes one crawl for a site.
type Runner interface {
	RunCrawl(ctx context.Context, siteID string) error
}

// Config controls Poller behavior.
type Config struct {
	Interval time.Duration
}

// Poller looks up at most one pending site per wake-up and runs its crawl to
// completion before sleeping again.
type Poller struct {
	store    crawler.SiteStore
	runner   Runner
	interval time.Duration
	logger   *zap.Logger
}

// New creates a Poller.
func New(store crawler.SiteStore, runner Runner, cfg Config, logger *zap.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		store:    store,
		runner:   runner,
		interval: cfg.Interval,
		logger:   logger,
	}
}

// Run blocks, polling until the context finishes. Poll errors are logged and
// never stop the loop.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("poller started", zap.Duration("interval", p.interval))
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped")
			return
		case <-timer.C:
		}
		if _, err := p.Poll(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error("poll failed", zap.Error(err))
		}
		timer.Reset(p.interval)
	}
}

// Poll runs the crawl of the oldest pending site, if any, and reports whether
// one was found.
func (p *Poller) Poll(ctx context.Context) (bool, error) {
	site, err := p.store.FindPendingSite(ctx)
	if errors.Is(err, crawler.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find pending site: %w", err)
	}
	p.logger.Info("found pending crawl", zap.String("site_id", site.ID), zap.String("url", site.URL))
	if err := p.runner.RunCrawl(ctx, site.ID); err != nil {
		if errors.Is(err, crawler.ErrClaimLost) {
			p.logger.Info("crawl claimed elsewhere", zap.String("site_id", site.ID))
			return true, nil
		}
		return true, fmt.Errorf("run crawl %s: %w", site.ID, err)
	}
	return true, nil
}
