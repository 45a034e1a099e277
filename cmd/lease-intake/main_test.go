package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/lease-intake/internal/common"
	"github.com/joseph-ayodele/lease-intake/internal/staging"
)

func TestAppCommands(t *testing.T) {
	app := newApp()
	var names []string
	for _, c := range app.Commands {
		names = append(names, c.Name)
	}
	assert.ElementsMatch(t, []string{"serve", "watch", "upload", "finalize", "search", "export", "extract"}, names)
}

func TestInvalidLogLevel(t *testing.T) {
	t.Chdir(t.TempDir())
	app := newApp()
	err := app.Run([]string{"lease-intake", "--log-level", "loud", "search"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestUploadRequiresFlags(t *testing.T) {
	t.Chdir(t.TempDir())
	app := newApp()
	err := app.Run([]string{"lease-intake", "upload", "--file", "a.pdf"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "type")
}

func TestUploadArityMismatch(t *testing.T) {
	t.Chdir(t.TempDir())
	app := newApp()
	err := app.Run([]string{"lease-intake", "upload", "--file", "a.pdf", "--file", "b.pdf", "--type", "Residential"})
	require.Error(t, err)
	assert.Equal(t, "Number of files and doc types do not match", err.Error())
}

func testConfig(t *testing.T) *common.Config {
	t.Helper()
	root := t.TempDir()
	cfg := common.DefaultConfig()
	cfg.Storage.DraftDir = filepath.Join(root, "drafts")
	cfg.Storage.FinalDir = filepath.Join(root, "finalized")
	cfg.Index.Path = filepath.Join(root, "db")
	cfg.Pipeline.UploadDir = filepath.Join(root, "uploads")
	cfg.Pipeline.TempDir = filepath.Join(root, "temp")
	return cfg
}

func TestBuildStoreOnly(t *testing.T) {
	for _, backend := range []string{"badger", "sql"} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Index.Backend = backend

			comps, err := build(context.Background(), cfg, false, slog.Default())
			require.NoError(t, err)
			defer comps.Close()
			assert.Nil(t, comps.orchestrator)

			ctx := context.Background()
			_, err = comps.store.Finalize(ctx, []staging.FinalEntry{{Filename: "lease.pdf", Fields: []byte(`{"tenant":"Acme"}`)}})
			require.NoError(t, err)

			hits, err := comps.store.Search(ctx, "acme", 5)
			require.NoError(t, err)
			require.Len(t, hits, 1)
			assert.Equal(t, "lease.pdf", hits[0].ID)

			_, err = os.Stat(filepath.Join(cfg.Storage.FinalDir, "lease.pdf.json"))
			assert.NoError(t, err)
		})
	}
}

func TestBuildPipelineRequiresKnownProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.Provider = "carrier-pigeon"
	_, err := build(context.Background(), cfg, true, slog.Default())
	require.Error(t, err)
}

func TestBuildPipeline(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.APIKey = "test-key"
	cfg.LLM.RateLimit = 2

	comps, err := build(context.Background(), cfg, true, slog.Default())
	require.NoError(t, err)
	defer comps.Close()
	assert.NotNil(t, comps.orchestrator)
	assert.NotNil(t, comps.processor)
}

func TestExtractCommandPlainText(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	p := filepath.Join(dir, "note.txt")
	require.NoError(t, os.WriteFile(p, []byte("Monthly rent: $1,200"), 0o644))

	app := newApp()
	var out bytes.Buffer
	app.Writer = &out
	require.NoError(t, app.Run([]string{"lease-intake", "extract", "--file", p}))
	assert.Contains(t, out.String(), "Monthly rent: $1,200")
}
