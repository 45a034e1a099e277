package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/joseph-ayodele/lease-intake/constants"
)

// Strategy controls how PDFs are turned into text.
type Strategy string

const (
	// StrategyAuto uses the PDF text layer and falls back to OCR when it is empty.
	StrategyAuto Strategy = "auto"
	// StrategyFast only reads the embedded text layer.
	StrategyFast Strategy = "fast"
	// StrategyHiRes rasterizes every page and OCRs it.
	StrategyHiRes Strategy = "hi_res"
)

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	Strategy      Strategy
	InferTables   bool
	TesseractLang string // default "eng"
	DPI           int    // rasterization DPI for scanned PDFs, default 300
	MaxPages      int    // 0 = no limit
	PageWorkers   int    // concurrent tesseract runs for hi_res, default 2

	TessdataDir   string
	HeicConverter string // heif-convert | magick | sips
}

type ExtractionResult struct {
	Text       string
	Pages      int
	SourceType constants.FileFormat
	Method     string // "pdf-text" | "pdf-ocr" | "image-ocr" | "plain-text"
	Language   string
	Duration   time.Duration
	Warnings   []string
}

// PageCounter reports the number of pages in a PDF.
type PageCounter func(path string) (int, error)

type Extractor struct {
	cfg       Config
	runner    Runner
	pageCount PageCounter
	logger    *slog.Logger
}

type Option func(*Extractor)

// WithRunner replaces the exec runner, mainly for tests.
func WithRunner(r Runner) Option {
	return func(e *Extractor) {
		if r != nil {
			e.runner = r
		}
	}
}

func WithPageCounter(pc PageCounter) Option {
	return func(e *Extractor) {
		if pc != nil {
			e.pageCount = pc
		}
	}
}

func NewExtractor(cfg Config, logger *slog.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyAuto
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.PageWorkers <= 0 {
		cfg.PageWorkers = 2
	}
	e := &Extractor{
		cfg:       cfg,
		runner:    execRunner{logger: logger},
		pageCount: api.PageCountFile,
		logger:    logger,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract picks a strategy based on file extension.
func (e *Extractor) Extract(ctx context.Context, path string) (ExtractionResult, error) {
	start := time.Now()
	ext := constants.NormalizeExt(filepath.Ext(path))
	e.logger.Debug("starting text extraction", "path", path, "strategy", e.cfg.Strategy, "ext", ext)

	var (
		res ExtractionResult
		err error
	)
	switch constants.MapExtToFormat(ext) {
	case constants.PDF:
		res, err = e.extractPDF(ctx, path)
	case constants.IMAGE:
		res, err = e.extractImageFile(ctx, path, ext)
	case constants.TEXT:
		res, err = e.extractPlain(path)
	default:
		e.logger.Error("unsupported extension", "extension", ext)
		return ExtractionResult{}, fmt.Errorf("unsupported extension: %q", ext)
	}
	res.Duration = time.Since(start)
	if err != nil {
		return res, err
	}

	if e.cfg.InferTables {
		res.Text = FlattenTables(res.Text)
	}
	res.Text = Normalize(res.Text)

	e.logger.Info("ocr.extract.ok",
		"path", path,
		"method", res.Method,
		"pages", res.Pages,
		"chars", len(res.Text),
		"warnings", len(res.Warnings),
		"elapsed_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

func (e *Extractor) extractPDF(ctx context.Context, path string) (ExtractionResult, error) {
	res := ExtractionResult{SourceType: constants.PDF, Language: e.cfg.TesseractLang}

	pages, err := e.pageCount(path)
	if err != nil {
		// pdftotext/pdftoppm are more forgiving than the pdfcpu parser
		res.Warnings = append(res.Warnings, "page count: "+err.Error())
		pages = 0
	}
	if e.cfg.MaxPages > 0 && pages > e.cfg.MaxPages {
		res.Warnings = append(res.Warnings, fmt.Sprintf("truncated to %d of %d pages", e.cfg.MaxPages, pages))
		pages = e.cfg.MaxPages
	}

	if e.cfg.Strategy != StrategyHiRes {
		txt, n, warns, err := e.pdfToText(ctx, path)
		res.Warnings = append(res.Warnings, warns...)
		if err != nil && e.cfg.Strategy == StrategyFast {
			return res, fmt.Errorf("pdftotext: %w", err)
		}
		if err == nil && strings.TrimSpace(txt) != "" {
			res.Text, res.Pages, res.Method = txt, n, "pdf-text"
			return res, nil
		}
		if e.cfg.Strategy == StrategyFast {
			res.Method = "pdf-text"
			return res, nil
		}
		e.logger.Info("pdf text layer empty; falling back to ocr", "path", path)
		res.Warnings = append(res.Warnings, "empty text layer; used hi_res")
	}

	txt, n, warns, err := e.pdfToOCR(ctx, path, pages)
	res.Warnings = append(res.Warnings, warns...)
	if err != nil {
		return res, err
	}
	res.Text, res.Pages, res.Method = txt, n, "pdf-ocr"
	return res, nil
}

func (e *Extractor) extractImageFile(ctx context.Context, path, ext string) (ExtractionResult, error) {
	var warns []string
	if constants.IsHEICExt(ext) {
		out, w, cleanup, err := convertHEICtoPNG(ctx, e.runner, e.cfg.HeicConverter, path)
		if cleanup != nil {
			defer cleanup()
		}
		warns = append(warns, w...)
		if err != nil {
			e.logger.Error("heic conversion failed", "path", path, "error", err)
			return ExtractionResult{SourceType: constants.IMAGE, Warnings: warns}, err
		}
		path = out
	}
	res, err := e.extractImage(ctx, path)
	res.Warnings = append(res.Warnings, warns...)
	return res, err
}

func (e *Extractor) extractPlain(path string) (ExtractionResult, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return ExtractionResult{SourceType: constants.TEXT}, err
	}
	return ExtractionResult{
		Text:       string(b),
		Pages:      1,
		SourceType: constants.TEXT,
		Method:     "plain-text",
	}, nil
}
