package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, 128, cfg.Pipeline.MaxNameLen)
	assert.Equal(t, "finalized_jsons", cfg.Index.Collection)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pipeline:
  workers: 8
  task_timeout: 2m
storage:
  backend: minio
  bucket: leases
llm:
  provider: vertex
  project_id: demo
`), 0o644))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("MAX_FILE_PROCESSING_THREADS", "6")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Pipeline.Workers, "env overrides file")
	assert.Equal(t, 2*time.Minute, cfg.Pipeline.TaskTimeout)
	assert.Equal(t, "minio", cfg.Storage.Backend)
	assert.Equal(t, "leases", cfg.Storage.Bucket)
	assert.Equal(t, "drafts", cfg.Storage.DraftDir, "defaults survive partial files")
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.APIKey = "k"
	require.NoError(t, cfg.Validate())

	bad := *cfg
	bad.Pipeline.Workers = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidInput)

	bad = *cfg
	bad.Storage.Backend = "s3"
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Storage.Backend = "gcs"
	assert.Error(t, bad.Validate(), "bucket required")

	bad = *cfg
	bad.LLM.APIKey = ""
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.OCR.Strategy = "slow"
	assert.Error(t, bad.Validate())
}
