package summarizer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeModels struct {
	reply  string
	err    error
	model  string
	prompt string
}

func (f *fakeModels) GenerateContent(
	_ context.Context,
	model string,
	contents []*genai.Content,
	_ *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	f.model = model
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.prompt = contents[0].Parts[0].Text
	}
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: f.reply}}},
		}},
	}, nil
}

func TestGeminiSummarize(t *testing.T) {
	t.Parallel()

	models := &fakeModels{reply: "  cheap plans \n"}
	g := newGemini(models, Config{MaxInputChars: 10, RequestsPerSecond: 100})

	summary, err := g.Summarize(context.Background(), "Plans start at $10 per month")
	require.NoError(t, err)
	require.Equal(t, "cheap plans", summary)
	require.Equal(t, defaultModel, models.model)
	require.True(t, strings.HasPrefix(models.prompt, promptPrefix))
	require.Equal(t, "Plans star", strings.TrimPrefix(models.prompt, promptPrefix))
}

func TestGeminiSummarize_Errors(t *testing.T) {
	t.Parallel()

	g := newGemini(&fakeModels{err: errors.New("quota exceeded")}, Config{RequestsPerSecond: 100})
	_, err := g.Summarize(context.Background(), "text")
	require.ErrorContains(t, err, "quota exceeded")

	g = newGemini(&fakeModels{reply: "   "}, Config{RequestsPerSecond: 100})
	_, err = g.Summarize(context.Background(), "text")
	require.ErrorIs(t, err, ErrEmptySummary)
}

func TestGeminiSummarize_CanceledWhileThrottled(t *testing.T) {
	t.Parallel()

	g := newGemini(&fakeModels{reply: "ok"}, Config{RequestsPerSecond: 0.001})
	_, err := g.Summarize(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Summarize(ctx, "second")
	require.Error(t, err)
}

func TestNewGeminiRequiresKey(t *testing.T) {
	t.Parallel()

	_, err := NewGemini(context.Background(), "", Config{})
	require.Error(t, err)
}

func TestNoop(t *testing.T) {
	t.Parallel()

	_, err := Noop{}.Summarize(context.Background(), "text")
	require.ErrorIs(t, err, ErrNotConfigured)
}
