package detector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-ingest/internal/crawler"
	"github.com/JakeFAU/site-ingest/internal/dom"
)

func rendered(t *testing.T, status int, html string) crawler.Rendered {
	t.Helper()
	doc, err := dom.Parse([]byte(html))
	require.NoError(t, err)
	return crawler.Rendered{StatusCode: status, HTML: []byte(html), Document: doc}
}

func TestHeuristic_ShouldPromote_EmptyBody(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	require.True(t, h.ShouldPromote(crawler.Rendered{StatusCode: 200}))
}

func TestHeuristic_ShouldPromote_SPAMarkers(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	require.True(t, h.ShouldPromote(rendered(t, 200, `<div id="__next"></div>`)))
}

func TestHeuristic_ShouldPromote_ScriptDensity(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(1000)
	require.True(t, h.ShouldPromote(crawler.Rendered{
		StatusCode: 200,
		HTML:       []byte(`<html><script>var a=1;</script><p>t</p></html>`),
	}))
}

func TestHeuristic_ShouldPromote_LittleVisibleText(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(10)
	require.True(t, h.ShouldPromote(rendered(t, 200, `<html><body><p>Loading…</p></body></html>`)))
}

func TestHeuristic_ShouldPromote_ServerRendered(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	html := `<html><body><main><h1>Pricing</h1><p>` + strings.Repeat("Plans for every team. ", 10) + `</p></main></body></html>`
	require.False(t, h.ShouldPromote(rendered(t, 200, html)))
}

func TestHeuristic_ShouldPromote_DisabledForNon200(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	require.False(t, h.ShouldPromote(crawler.Rendered{StatusCode: 404, HTML: []byte("not found")}))
}

func TestScriptPercent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "no scripts", body: `<p>plain text</p>`, want: 0},
		{name: "half script", body: `<script>x</script>0123456789abcdefgh`, want: 50},
		{name: "unclosed script", body: `<p>hi</p><script>var app = {}`, want: 68},
		{name: "mixed case tags", body: `<SCRIPT>x</SCRIPT>0123456789abcdefgh`, want: 50},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, scriptPercent([]byte(tt.body)), tt.name)
	}
}

func TestHeuristic_ShouldPromote_ScriptsInLargeDocumentIgnored(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(40)
	html := `<html><body><script>var a=1;</script>` + strings.Repeat("Plans for every team. ", 5) + `</body></html>`
	require.False(t, h.ShouldPromote(rendered(t, 200, html)))
}
