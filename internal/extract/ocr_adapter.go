package extract

import (
	"context"
	"log/slog"

	"github.com/joseph-ayodele/lease-intake/internal/ocr"
)

// OCRAdapter exposes the ocr engine as a TextExtractor.
type OCRAdapter struct {
	extractor *ocr.Extractor
	logger    *slog.Logger
}

func NewOCRAdapter(e *ocr.Extractor, logger *slog.Logger) *OCRAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &OCRAdapter{extractor: e, logger: logger}
}

func (a *OCRAdapter) Extract(ctx context.Context, path string) (TextExtractionResult, error) {
	r, err := a.extractor.Extract(ctx, path)
	if err != nil {
		a.logger.Debug("ocr adapter: extraction failed", "path", path, "warnings", r.Warnings, "error", err)
		return TextExtractionResult{}, err
	}
	return TextExtractionResult{
		Text:       r.Text,
		Pages:      r.Pages,
		SourceType: string(r.SourceType),
		Method:     r.Method,
		Language:   r.Language,
		Duration:   r.Duration,
		Warnings:   r.Warnings,
	}, nil
}
