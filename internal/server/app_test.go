package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-ingest/internal/config"
	"github.com/JakeFAU/site-ingest/internal/storage/local"
	"github.com/JakeFAU/site-ingest/internal/storage/memory"
	"github.com/JakeFAU/site-ingest/internal/summarizer"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Renderer.Mode = config.RendererStatic
	cfg.Logging.Development = false
	cfg.Logging.Level = "error"
	return &cfg
}

func TestBuildInMemoryStack(t *testing.T) {
	t.Parallel()

	app, err := Build(context.Background(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { app.Close(context.Background()) })

	require.IsType(t, &memory.SiteStore{}, app.store)
	require.NotNil(t, app.Orchestrator())
	require.NotNil(t, app.Logger())

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"name":"Acme","url":"https://x.test"}`)
	app.apiServer.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/sites", body))
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestBuildLocalSnapshots(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Snapshots.Backend = config.SnapshotsLocal
	cfg.Snapshots.Dir = filepath.Join(t.TempDir(), "snaps")

	app, err := Build(context.Background(), cfg, WithMemoryStore())
	require.NoError(t, err)
	t.Cleanup(func() { app.Close(context.Background()) })

	blobs, err := setupSnapshots(context.Background(), app)
	require.NoError(t, err)
	require.IsType(t, &local.BlobStore{}, blobs)
}

func TestSetupSummarizerDefaultsToNoop(t *testing.T) {
	t.Parallel()

	app := &App{cfg: testConfig(t), logger: testLogger(t)}
	sum, err := setupSummarizer(context.Background(), app)
	require.NoError(t, err)
	require.IsType(t, summarizer.Noop{}, sum)
}

func TestSetupSnapshotsDisabled(t *testing.T) {
	t.Parallel()

	app := &App{cfg: testConfig(t), logger: testLogger(t)}
	blobs, err := setupSnapshots(context.Background(), app)
	require.NoError(t, err)
	require.Nil(t, blobs)
}

func TestCloseRunsClosersNewestFirst(t *testing.T) {
	t.Parallel()

	app := &App{cfg: testConfig(t), logger: testLogger(t)}
	var order []int
	app.addCloser(func(context.Context) error { order = append(order, 1); return nil })
	app.addCloser(func(context.Context) error { order = append(order, 2); return nil })
	app.Close(context.Background())
	require.Equal(t, []int{2, 1}, order)

	app.Close(context.Background())
	require.Equal(t, []int{2, 1}, order)
}

func testLogger(t *testing.T) *zap.Logger {
	t.Helper()
	return zap.NewNop()
}
