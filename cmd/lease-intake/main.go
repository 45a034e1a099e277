package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/lease-intake/internal/async"
	"github.com/joseph-ayodele/lease-intake/internal/batch"
	"github.com/joseph-ayodele/lease-intake/internal/common"
	"github.com/joseph-ayodele/lease-intake/internal/ingest"
	"github.com/joseph-ayodele/lease-intake/internal/pipeline"
	"github.com/joseph-ayodele/lease-intake/internal/server"
	"github.com/joseph-ayodele/lease-intake/internal/staging"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "lease-intake",
		Usage: "Extract, structure and stage lease documents for review",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log output format (text, json)",
				Value: "text",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file; environment variables override it",
				EnvVars: []string{"CONFIG_FILE"},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API and the gRPC health service",
				Action: serveCommand,
			},
			{
				Name:   "watch",
				Usage:  "Process files dropped under <dir>/<doc type>/",
				Action: watchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "dir",
						Aliases:  []string{"d"},
						Usage:    "Drop folder root",
						Required: true,
					},
					&cli.DurationFlag{
						Name:  "debounce",
						Usage: "Coalesce bursts of file events",
						Value: 500 * time.Millisecond,
					},
				},
			},
			{
				Name:   "upload",
				Usage:  "Run one batch from local files",
				Action: uploadCommand,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Document path (repeatable)",
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:     "type",
						Aliases:  []string{"t"},
						Usage:    "Doc type for the file at the same position (repeatable)",
						Required: true,
					},
				},
			},
			{
				Name:   "finalize",
				Usage:  "Commit reviewed records from a JSON file",
				Action: finalizeCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "json",
						Usage:    "Path to a JSON array of {filename: fields} objects",
						Required: true,
					},
				},
			},
			{
				Name:   "search",
				Usage:  "Query finalized records",
				Action: searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "query",
						Aliases: []string{"q"},
						Usage:   "Search text",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of hits",
						Value: 10,
					},
				},
			},
			{
				Name:   "export",
				Usage:  "Write finalized records to an XLSX workbook",
				Action: exportCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "out",
						Usage: "Output path",
						Value: "finalized.xlsx",
					},
				},
			},
			{
				Name:   "extract",
				Usage:  "Print the text extracted from a document",
				Action: extractCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Document path",
						Required: true,
					},
				},
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	// a missing .env is fine
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	if path := c.String("config"); path != "" {
		if err := os.Setenv("CONFIG_FILE", path); err != nil {
			return err
		}
	}

	levelStr := strings.ToLower(c.String("log-level"))
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(c.String("log-format")) {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("invalid log format %q: must be text or json", c.String("log-format"))
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

func loadConfig(validate bool) (*common.Config, error) {
	cfg, err := common.LoadConfig()
	if err != nil {
		return nil, err
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

func serveCommand(c *cli.Context) error {
	ctx, stop := signalContext(c)
	defer stop()
	logger := slog.Default()

	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	comps, err := build(ctx, cfg, true, logger)
	if err != nil {
		return err
	}
	defer comps.Close()

	api := server.New(server.Config{MaxUploadMB: cfg.Server.MaxUploadMB},
		comps.orchestrator, comps.store, comps.exporter, logger.With("component", "http"))
	health := server.NewHealthServer(logger.With("component", "grpc"))

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.GRPCAddr, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return api.Serve(gctx, cfg.Server.HTTPAddr) })
	g.Go(func() error { return health.Serve(lis) })
	g.Go(func() error {
		<-gctx.Done()
		health.Stop()
		return nil
	})
	return g.Wait()
}

func watchCommand(c *cli.Context) error {
	ctx, stop := signalContext(c)
	defer stop()
	logger := slog.Default()

	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	comps, err := build(ctx, cfg, true, logger)
	if err != nil {
		return err
	}
	defer comps.Close()

	queue := async.NewProcessorQueue(comps.processor, logger.With("component", "queue"),
		async.WithWorkers(cfg.Pipeline.Workers),
		async.WithQueueSize(cfg.Pipeline.QueueSize),
		async.WithProcessTimeout(cfg.Pipeline.TaskTimeout),
	)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		queue.Shutdown(shutdownCtx)
	}()

	drop, err := ingest.NewDropFolder(c.String("dir"), queue, logger.With("component", "ingest"))
	if err != nil {
		return err
	}
	if err := drop.Watch(ctx, c.Duration("debounce")); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func uploadCommand(c *cli.Context) error {
	ctx, stop := signalContext(c)
	defer stop()

	files, types := c.StringSlice("file"), c.StringSlice("type")
	if len(files) != len(types) {
		return errors.New("Number of files and doc types do not match")
	}

	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	comps, err := build(ctx, cfg, true, slog.Default())
	if err != nil {
		return err
	}
	defer comps.Close()

	reqs := make([]batch.Request, len(files))
	for i, f := range files {
		reqs[i] = batch.Request{Name: filepath.Base(f), DocType: types[i], Blob: pipeline.FileBlob(f)}
	}
	results, err := comps.orchestrator.RunBatch(ctx, reqs)
	if err != nil {
		return fmt.Errorf("%d: %s", common.StatusOf(err), common.MessageOf(err))
	}
	return printJSON(c, results)
}

func finalizeCommand(c *cli.Context) error {
	ctx, stop := signalContext(c)
	defer stop()

	raw, err := os.ReadFile(c.String("json"))
	if err != nil {
		return err
	}
	entries, err := staging.ParseFinalizeRequest(raw)
	if err != nil {
		return errors.New(common.MessageOf(err))
	}

	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	comps, err := build(ctx, cfg, false, slog.Default())
	if err != nil {
		return err
	}
	defer comps.Close()

	statuses, err := comps.store.Finalize(ctx, entries)
	if err != nil {
		return errors.New(common.MessageOf(err))
	}
	return printJSON(c, statuses)
}

func searchCommand(c *cli.Context) error {
	ctx, stop := signalContext(c)
	defer stop()

	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	comps, err := build(ctx, cfg, false, slog.Default())
	if err != nil {
		return err
	}
	defer comps.Close()

	hits, err := comps.store.Search(ctx, c.String("query"), c.Int("limit"))
	if err != nil {
		return err
	}
	for _, h := range hits {
		fmt.Fprintf(c.App.Writer, "%.3f\t%s\t%s\n", h.Score, h.ID, h.Content)
	}
	return nil
}

func exportCommand(c *cli.Context) error {
	ctx, stop := signalContext(c)
	defer stop()

	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	comps, err := build(ctx, cfg, false, slog.Default())
	if err != nil {
		return err
	}
	defer comps.Close()

	b, err := comps.exporter.ExportFinalizedXLSX(ctx)
	if err != nil {
		return err
	}
	out := c.String("out")
	if err := os.WriteFile(out, b, 0o644); err != nil {
		return err
	}
	slog.Info("export.written", "path", out, "bytes", len(b))
	return nil
}

func extractCommand(c *cli.Context) error {
	ctx, stop := signalContext(c)
	defer stop()

	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	res, err := buildTextExtractor(cfg, slog.Default()).Extract(ctx, c.String("file"))
	if err != nil {
		return err
	}
	slog.Info("extract.ok", "method", res.Method, "pages", res.Pages, "chars", len(res.Text), "warnings", res.Warnings)
	fmt.Fprintln(c.App.Writer, res.Text)
	return nil
}

func printJSON(c *cli.Context, v any) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
