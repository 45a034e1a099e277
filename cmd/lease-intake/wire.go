package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/lease-intake/internal/batch"
	"github.com/joseph-ayodele/lease-intake/internal/blob"
	"github.com/joseph-ayodele/lease-intake/internal/common"
	"github.com/joseph-ayodele/lease-intake/internal/export"
	"github.com/joseph-ayodele/lease-intake/internal/extract"
	"github.com/joseph-ayodele/lease-intake/internal/index"
	"github.com/joseph-ayodele/lease-intake/internal/llm"
	"github.com/joseph-ayodele/lease-intake/internal/llm/langchain"
	"github.com/joseph-ayodele/lease-intake/internal/llm/openai"
	"github.com/joseph-ayodele/lease-intake/internal/llm/vertex"
	"github.com/joseph-ayodele/lease-intake/internal/ocr"
	"github.com/joseph-ayodele/lease-intake/internal/pipeline"
	"github.com/joseph-ayodele/lease-intake/internal/repository"
	"github.com/joseph-ayodele/lease-intake/internal/staging"
)

// components is everything a command may need, built from one Config.
type components struct {
	cfg          *common.Config
	store        *staging.Store
	exporter     *export.Service
	processor    *pipeline.Processor
	orchestrator *batch.Orchestrator

	closers []func() error
	logger  *slog.Logger
}

func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.logger.Warn("shutdown.close.failed", "error", err)
		}
	}
}

// build wires the staging store and, when withPipeline is set, the
// extraction and structuring pipeline.
func build(ctx context.Context, cfg *common.Config, withPipeline bool, logger *slog.Logger) (_ *components, err error) {
	c := &components{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	drafts, finals, err := buildBlobStores(ctx, cfg, c, logger)
	if err != nil {
		return nil, err
	}
	idx, err := buildIndex(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, idx.Close)

	c.store = staging.NewStore(drafts, finals, idx, logger.With("component", "staging"))
	c.exporter = export.NewService(c.store, logger.With("component", "export"))
	if !withPipeline {
		return c, nil
	}

	structurer, err := buildStructurer(ctx, cfg, c, logger)
	if err != nil {
		return nil, err
	}
	c.processor = pipeline.NewProcessor(
		pipeline.Config{
			UploadDir:   cfg.Pipeline.UploadDir,
			MaxNameLen:  cfg.Pipeline.MaxNameLen,
			TaskTimeout: cfg.Pipeline.TaskTimeout,
		},
		extract.NewClient(buildTextExtractor(cfg, logger), cfg.Pipeline.TempDir, logger.With("component", "extract")),
		structurer,
		c.store,
		logger.With("component", "pipeline"),
	)
	c.orchestrator = batch.NewOrchestrator(c.processor,
		batch.WithWorkers(cfg.Pipeline.Workers),
		batch.WithLogger(logger.With("component", "batch")),
	)
	return c, nil
}

func buildTextExtractor(cfg *common.Config, logger *slog.Logger) extract.TextExtractor {
	engine := ocr.NewExtractor(ocr.Config{
		Strategy:      ocr.Strategy(cfg.OCR.Strategy),
		InferTables:   cfg.OCR.InferTables,
		TesseractLang: cfg.OCR.Lang,
		DPI:           cfg.OCR.DPI,
		MaxPages:      cfg.OCR.MaxPages,
		PageWorkers:   cfg.OCR.PageWorkers,
		TessdataDir:   cfg.OCR.TessdataDir,
		HeicConverter: cfg.OCR.HeicConverter,
	}, logger.With("component", "ocr"))
	return extract.NewOCRAdapter(engine, logger)
}

func buildBlobStores(ctx context.Context, cfg *common.Config, c *components, logger *slog.Logger) (blob.Store, blob.Store, error) {
	l := logger.With("component", "blob", "backend", cfg.Storage.Backend)
	switch cfg.Storage.Backend {
	case "fs":
		drafts, err := blob.NewFSStore(cfg.Storage.DraftDir, l)
		if err != nil {
			return nil, nil, err
		}
		finals, err := blob.NewFSStore(cfg.Storage.FinalDir, l)
		if err != nil {
			return nil, nil, err
		}
		return drafts, finals, nil
	case "minio":
		mc := blob.MinioConfig{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			UseSSL:    cfg.Storage.UseSSL,
		}
		mc.Prefix = prefixOf(cfg.Storage.DraftDir)
		drafts, err := blob.NewMinioStore(ctx, mc, l)
		if err != nil {
			return nil, nil, err
		}
		mc.Prefix = prefixOf(cfg.Storage.FinalDir)
		finals, err := blob.NewMinioStore(ctx, mc, l)
		if err != nil {
			return nil, nil, err
		}
		return drafts, finals, nil
	case "gcs":
		drafts, err := blob.NewGCSStore(ctx, cfg.Storage.Bucket, prefixOf(cfg.Storage.DraftDir), l)
		if err != nil {
			return nil, nil, err
		}
		c.closers = append(c.closers, drafts.Close)
		finals, err := blob.NewGCSStore(ctx, cfg.Storage.Bucket, prefixOf(cfg.Storage.FinalDir), l)
		if err != nil {
			return nil, nil, err
		}
		c.closers = append(c.closers, finals.Close)
		return drafts, finals, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

func prefixOf(dir string) string {
	return filepath.ToSlash(filepath.Clean(dir)) + "/"
}

func buildIndex(ctx context.Context, cfg *common.Config, logger *slog.Logger) (index.Index, error) {
	l := logger.With("component", "index", "backend", cfg.Index.Backend)
	switch cfg.Index.Backend {
	case "badger":
		var opts []index.BadgerOption
		if cfg.LLM.EmbeddingModel != "" {
			emb, err := index.NewOpenAIEmbedder(index.EmbedderConfig{
				BaseURL: cfg.LLM.BaseURL,
				APIKey:  cfg.LLM.APIKey,
				Model:   cfg.LLM.EmbeddingModel,
			})
			if err != nil {
				return nil, fmt.Errorf("embedder: %w", err)
			}
			opts = append(opts, index.WithEmbedder(emb))
		}
		return index.OpenBadger(cfg.Index.Path, false, l, opts...)
	case "sql":
		if cfg.Index.DSN == "" && cfg.Index.Driver == repository.DriverSQLite {
			if err := os.MkdirAll(cfg.Index.Path, 0o755); err != nil {
				return nil, err
			}
		}
		db, err := repository.Open(ctx, repository.Config{
			Driver:          cfg.Index.Driver,
			DSN:             sqlDSN(cfg),
			MaxConns:        cfg.Index.MaxConns,
			MinConns:        cfg.Index.MinConns,
			MaxConnLifetime: cfg.Index.MaxConnLifetime,
			DialTimeout:     cfg.Index.DialTimeout,
		}, l)
		if err != nil {
			return nil, err
		}
		repo, err := repository.NewFinalizedRepository(ctx, db, l)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return repo, nil
	case "firestore":
		return index.NewFirestoreIndex(ctx, cfg.Index.ProjectID, cfg.Index.Collection, l)
	}
	return nil, fmt.Errorf("unknown index backend %q", cfg.Index.Backend)
}

func sqlDSN(cfg *common.Config) string {
	if cfg.Index.DSN == "" && cfg.Index.Driver == repository.DriverSQLite {
		return filepath.Join(cfg.Index.Path, "finalized.sqlite")
	}
	return cfg.Index.DSN
}

func buildStructurer(ctx context.Context, cfg *common.Config, c *components, logger *slog.Logger) (llm.Structurer, error) {
	l := logger.With("component", "llm", "provider", cfg.LLM.Provider)
	var s llm.Structurer
	switch cfg.LLM.Provider {
	case "openai":
		s = openai.NewClient(openai.Config{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
		}, l)
	case "langchain":
		lc, err := langchain.New(langchain.Config{
			BaseURL:     cfg.LLM.BaseURL,
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			Temperature: float64(cfg.LLM.Temperature),
		}, l)
		if err != nil {
			return nil, err
		}
		s = lc
	case "vertex":
		vx, err := vertex.New(ctx, vertex.Config{
			ProjectID: cfg.LLM.ProjectID,
			Region:    cfg.LLM.Region,
			Model:     vertexModel(cfg.LLM.Model),
		}, l)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, vx.Close)
		s = vx
	default:
		return nil, errors.New("unknown llm provider " + cfg.LLM.Provider)
	}
	return llm.RateLimited(s, llm.NewLimiter(cfg.LLM.RateLimit, cfg.LLM.RateBurst)), nil
}

// vertexModel drops OpenAI model names left over from the default config.
func vertexModel(m string) string {
	if m == common.DefaultConfig().LLM.Model {
		return ""
	}
	return m
}
