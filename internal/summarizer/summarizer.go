// Package summarizer condenses extracted section text with an LLM.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/JakeFAU/site-ingest/internal/crawler"
	"github.com/JakeFAU/site-ingest/internal/textutil"
)

const (
	defaultModel         = "gemini-2.0-flash"
	defaultMaxInputChars = 3000
	defaultRPS           = 2

	promptPrefix = "Summarize the following website section content in 2-3 concise sentences. " +
		"Focus on what the section is about and what information it provides to visitors:\n\n"
)

// ErrNotConfigured is returned by Noop.
var ErrNotConfigured = errors.New("summarizer not configured")

// ErrEmptySummary is returned when the model answers with no text.
var ErrEmptySummary = errors.New("empty summary")

// Config controls the Gemini summarizer.
type Config struct {
	Model             string
	MaxInputChars     int
	RequestsPerSecond float64
}

type generator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Gemini summarizes with Google's Gemini API.
type Gemini struct {
	models  generator
	cfg     Config
	limiter *rate.Limiter
}

var _ crawler.Summarizer = (*Gemini)(nil)

// NewGemini builds a Gemini API client for apiKey.
func NewGemini(ctx context.Context, apiKey string, cfg Config) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return newGemini(client.Models, cfg), nil
}

func newGemini(models generator, cfg Config) *Gemini {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxInputChars <= 0 {
		cfg.MaxInputChars = defaultMaxInputChars
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaultRPS
	}
	return &Gemini{
		models:  models,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}
}

// Summarize asks the model for a short description of text. Input beyond
// MaxInputChars is dropped.
func (g *Gemini) Summarize(ctx context.Context, text string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("summarizer rate limit: %w", err)
	}
	prompt := promptPrefix + textutil.Truncate(text, g.cfg.MaxInputChars)
	resp, err := g.models.GenerateContent(ctx, g.cfg.Model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	summary := strings.TrimSpace(resp.Text())
	if summary == "" {
		return "", ErrEmptySummary
	}
	return summary, nil
}

// Noop never summarizes, so callers always take their fallback.
type Noop struct{}

// Summarize returns ErrNotConfigured.
func (Noop) Summarize(context.Context, string) (string, error) {
	return "", ErrNotConfigured
}
