// Package server exposes the intake pipeline and staging store over HTTP,
// with a gRPC health side-car.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/lease-intake/internal/batch"
	"github.com/joseph-ayodele/lease-intake/internal/common"
	"github.com/joseph-ayodele/lease-intake/internal/index"
	"github.com/joseph-ayodele/lease-intake/internal/staging"
)

const requestIDHeader = "X-Request-ID"

// BatchRunner runs an upload batch.
type BatchRunner interface {
	RunBatch(ctx context.Context, reqs []batch.Request) ([]batch.Result, error)
}

// RecordStore is the staging store surface the HTTP layer needs.
type RecordStore interface {
	Finalize(ctx context.Context, entries []staging.FinalEntry) ([]staging.FinalizeStatus, error)
	GetDraft(ctx context.Context, id string) (staging.DraftRecord, error)
	ListDrafts(ctx context.Context) ([]staging.DraftRecord, error)
	DeleteDraft(ctx context.Context, id string) error
	GetFinal(ctx context.Context, filename string) (staging.FinalRecord, error)
	Search(ctx context.Context, text string, limit int) ([]index.Hit, error)
}

type Exporter interface {
	ExportFinalizedXLSX(ctx context.Context) ([]byte, error)
}

type Config struct {
	MaxUploadMB int // cap on a whole /upload request body
}

type Server struct {
	cfg      Config
	batches  BatchRunner
	records  RecordStore
	exporter Exporter
	logger   *slog.Logger
}

func New(cfg Config, batches BatchRunner, records RecordStore, exporter Exporter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 64
	}
	return &Server{cfg: cfg, batches: batches, records: records, exporter: exporter, logger: logger}
}

func (s *Server) maxUploadBytes() int64 {
	return int64(s.cfg.MaxUploadMB) << 20
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = min(s.maxUploadBytes(), 32<<20)
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Partner PDF Parser")
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/upload", s.Upload)
	r.POST("/finalize", s.Finalize)

	r.GET("/drafts", s.ListDrafts)
	r.GET("/drafts/:id", s.GetDraft)
	r.DELETE("/drafts/:id", s.DeleteDraft)
	r.GET("/finals/:filename", s.GetFinal)
	r.GET("/search", s.Search)
	r.GET("/export.xlsx", s.Export)
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header(requestIDHeader, reqID)
		c.Request = c.Request.WithContext(common.WithRequestID(c.Request.Context(), reqID))

		c.Next()

		s.logger.Info("http.request",
			"req_id", reqID,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"client_ip", c.ClientIP(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
}

// Serve runs the HTTP server until ctx is done, then shuts it down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http.serve", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	s.logger.Info("http.shutdown")
	return srv.Shutdown(shutdownCtx)
}
