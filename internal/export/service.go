package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/lease-intake/internal/staging"
)

const sheet = "Finalized"

// FinalsReader is the read side of the staging store.
type FinalsReader interface {
	ListFinals(ctx context.Context) ([]string, error)
	GetFinal(ctx context.Context, filename string) (staging.FinalRecord, error)
}

// Service produces XLSX bytes for exports.
type Service struct {
	finals FinalsReader
	logger *slog.Logger
}

func NewService(finals FinalsReader, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{finals: finals, logger: logger}
}

type row struct {
	filename string
	fields   map[string]any
}

// ExportFinalizedXLSX returns one row per finalized record. The first column is
// the filename; the rest are the union of field names, sorted.
func (s *Service) ExportFinalizedXLSX(ctx context.Context) ([]byte, error) {
	start := time.Now()

	names, err := s.finals.ListFinals(ctx)
	if err != nil {
		return nil, fmt.Errorf("list finals: %w", err)
	}

	rows := make([]row, 0, len(names))
	keys := map[string]struct{}{}
	for _, name := range names {
		rec, err := s.finals.GetFinal(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("read final %s: %w", name, err)
		}
		fields := map[string]any{}
		dec := json.NewDecoder(bytes.NewReader(rec.Fields))
		dec.UseNumber()
		if err := dec.Decode(&fields); err != nil {
			s.logger.Warn("export.record.skipped", "filename", name, "error", err)
			continue
		}
		for k := range fields {
			keys[k] = struct{}{}
		}
		rows = append(rows, row{filename: rec.Filename, fields: fields})
	}

	headers := make([]string, 0, len(keys))
	for k := range keys {
		headers = append(headers, k)
	}
	sort.Strings(headers)

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	write := func(col, r int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, r)
		_ = f.SetCellValue(sheet, cell, v)
	}

	write(1, 1, "Filename")
	for i, h := range headers {
		write(i+2, 1, h)
	}
	for ri, r := range rows {
		write(1, ri+2, r.filename)
		for ci, h := range headers {
			write(ci+2, ri+2, cellValue(r.fields[h]))
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 40)
	if len(headers) > 0 {
		last, _ := excelize.ColumnNumberToName(len(headers) + 1)
		_ = f.SetColWidth(sheet, "B", last, 22)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(rows),
		"columns", len(headers)+1,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func cellValue(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case string, bool:
		return t
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return truncate(string(b), 32767)
	}
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
