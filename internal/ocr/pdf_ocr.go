package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

func (e *Extractor) pdfToText(ctx context.Context, path string) (text string, pages int, warnings []string, err error) {
	// pdftotext -layout -enc UTF-8 -eol unix [-l N] <path> -
	args := []string{"-layout", "-enc", "UTF-8", "-eol", "unix"}
	if e.cfg.MaxPages > 0 {
		args = append(args, "-l", strconv.Itoa(e.cfg.MaxPages))
	}
	args = append(args, path, "-")
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, args...)
	if err != nil {
		return "", 0, []string{string(errb)}, err
	}
	text = strings.TrimRight(string(out), "\f")
	// A form-feed \f is used as page separator by default
	pages = 1 + strings.Count(text, "\f")
	return text, pages, nil, nil
}

// pdfToOCR rasterizes the document and runs tesseract on every page,
// PageWorkers at a time. Page order is kept in the output.
func (e *Extractor) pdfToOCR(ctx context.Context, path string, maxPages int) (text string, pages int, warnings []string, err error) {
	tmpDir, err := os.MkdirTemp("", "li-pp-*")
	if err != nil {
		return "", 0, nil, err
	}
	defer func(path string) {
		if err := os.RemoveAll(path); err != nil {
			e.logger.Warn("failed to remove temp dir", "path", path, "error", err)
		}
	}(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 300 -png [-l N] <in.pdf> <tmp/page>
	args := []string{"-r", strconv.Itoa(e.cfg.DPI), "-png"}
	if maxPages > 0 {
		args = append(args, "-l", strconv.Itoa(maxPages))
	}
	args = append(args, path, prefix)
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm, args...)
	if err != nil {
		return "", 0, []string{string(errb)}, err
	}

	// prefix-1.png ... or prefix-01.png; pdftoppm pads to a fixed width so a lexical sort is page order
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if e.cfg.MaxPages > 0 && len(matches) > e.cfg.MaxPages {
		matches = matches[:e.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return "", 0, []string{"pdftoppm produced no images"}, fmt.Errorf("no pages rendered")
	}

	texts := make([]string, len(matches))
	pageWarns := make([][]string, len(matches))
	failed := make([]bool, len(matches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.PageWorkers)
	for i, img := range matches {
		g.Go(func() error {
			txt, w, err := e.tesseractOCR(gctx, img)
			if err != nil {
				// one unreadable page should not sink the document
				pageWarns[i] = append(w, fmt.Sprintf("page %d: %v", i+1, err))
				failed[i] = true
				return nil
			}
			texts[i] = txt
			pageWarns[i] = w
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", 0, nil, err
	}

	var b strings.Builder
	nFailed := 0
	for i, txt := range texts {
		warnings = append(warnings, pageWarns[i]...)
		if failed[i] {
			nFailed++
		}
		if strings.TrimSpace(txt) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(txt)
	}
	if nFailed == len(matches) {
		return "", len(matches), warnings, fmt.Errorf("ocr failed on all %d pages", len(matches))
	}
	return b.String(), len(matches), warnings, nil
}
