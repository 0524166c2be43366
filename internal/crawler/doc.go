// Package crawler holds the domain model of site ingestion (sites, pages,
// sections, crawl statuses and site maps) together with the narrow interfaces
// the engine, orchestrator and stores use to talk to each other.
package crawler
