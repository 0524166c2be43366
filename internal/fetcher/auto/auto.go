// Package auto chooses between a cheap static fetch and a headless render
// per page.
package auto

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-ingest/internal/crawler"
	"github.com/JakeFAU/site-ingest/internal/metrics"
)

// Renderer probes every URL with the static renderer and re-renders it
// headlessly when the detector says the probe is a client-side shell.
type Renderer struct {
	probe    crawler.Renderer
	headless crawler.Renderer
	detector crawler.HeadlessDetector
	logger   *zap.Logger
}

var _ crawler.Renderer = (*Renderer)(nil)

// New constructs an auto Renderer.
func New(probe, headless crawler.Renderer, detector crawler.HeadlessDetector, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{probe: probe, headless: headless, detector: detector, logger: logger}
}

// Render returns the static result unless promotion is warranted. A failed
// probe falls through to the headless renderer, which is treated as
// authoritative.
func (r *Renderer) Render(ctx context.Context, request crawler.RenderRequest) (crawler.Rendered, error) {
	probe, err := r.probe.Render(ctx, request)
	if err == nil && (r.detector == nil || !r.detector.ShouldPromote(probe)) {
		return probe, nil
	}
	if err != nil {
		r.logger.Debug("static probe failed; rendering headless", zap.String("url", request.URL), zap.Error(err))
	} else {
		r.logger.Debug("promoting to headless", zap.String("url", request.URL))
	}
	metrics.ObserveRender(metrics.RendererPromotion)
	return r.headless.Render(ctx, request)
}
