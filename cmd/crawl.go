package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-ingest/internal/crawler"
	"github.com/JakeFAU/site-ingest/internal/server"
)

func newCrawlCmd(load configLoader) *cobra.Command {
	var (
		name     string
		maxPages int
	)
	cmd := &cobra.Command{
		Use:   "crawl <url>",
		Short: "Crawl one site in memory and print its site map as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if maxPages > 0 {
				cfg.Crawl.MaxPages = maxPages
			}
			app, err := server.Build(cmd.Context(), cfg, server.WithMemoryStore())
			if err != nil {
				return fmt.Errorf("build application: %w", err)
			}
			defer app.Close(context.WithoutCancel(cmd.Context()))

			if name == "" {
				name = hostOf(args[0])
			}
			sm, err := crawlOnce(cmd.Context(), app, name, args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(sm); err != nil {
				return fmt.Errorf("encode site map: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "site name (defaults to the URL host)")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "override crawl.max_pages")
	return cmd
}

func crawlOnce(ctx context.Context, app *server.App, name, rawURL string) (crawler.SiteMap, error) {
	orch := app.Orchestrator()
	site, err := orch.CreateSite(ctx, name, rawURL)
	if err != nil {
		return crawler.SiteMap{}, fmt.Errorf("register site: %w", err)
	}
	if err := orch.RunCrawl(ctx, site.ID); err != nil {
		return crawler.SiteMap{}, fmt.Errorf("run crawl: %w", err)
	}
	report, err := orch.CrawlStatus(ctx, site.ID)
	if err != nil {
		return crawler.SiteMap{}, fmt.Errorf("crawl status: %w", err)
	}
	if report.Status != crawler.CrawlStatusCompleted {
		return crawler.SiteMap{}, fmt.Errorf("crawl of %s ended %s", site.URL, report.Status)
	}
	app.Logger().Info("crawl finished", zap.String("url", site.URL), zap.Int("pages", report.PageCount))
	sm, err := orch.SiteMap(ctx, site.ID)
	if err != nil {
		return crawler.SiteMap{}, fmt.Errorf("site map: %w", err)
	}
	return sm, nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return rawURL
	}
	return u.Hostname()
}
