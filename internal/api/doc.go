// Package api hosts the HTTP server, middleware, and REST handlers. Notable
// routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/sites and GET /v1/sites/{site_id} for site registration.
//   - POST /v1/sites/{site_id}/crawl to queue a crawl (202, 404 or 409).
//   - GET /v1/sites/{site_id}/crawl/status and /sitemap for crawl results.
package api
