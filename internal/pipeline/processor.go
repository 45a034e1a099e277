// Package pipeline runs one uploaded document through
// save, extract, structure, normalize and stage.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/lease-intake/constants"
	"github.com/joseph-ayodele/lease-intake/internal/common"
	"github.com/joseph-ayodele/lease-intake/internal/extract"
	"github.com/joseph-ayodele/lease-intake/internal/llm"
	"github.com/joseph-ayodele/lease-intake/internal/staging"
	"github.com/joseph-ayodele/lease-intake/internal/utils"
)

// TextExtractor parks the text of a saved document in the transient area.
type TextExtractor interface {
	Extract(ctx context.Context, id, docPath string) (*extract.Transcript, error)
}

// DraftStager persists draft records.
type DraftStager interface {
	StageDraft(ctx context.Context, rec staging.DraftRecord) error
}

type Config struct {
	UploadDir   string
	MaxNameLen  int
	TaskTimeout time.Duration // 0 = none
}

// Processor runs the per-document state machine. It is safe for concurrent use.
type Processor struct {
	cfg        Config
	extractor  TextExtractor
	structurer llm.Structurer
	drafts     DraftStager
	logger     *slog.Logger
	newID      func() string
}

func NewProcessor(cfg Config, extractor TextExtractor, structurer llm.Structurer, drafts DraftStager, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = "uploads"
	}
	if cfg.MaxNameLen <= 0 {
		cfg.MaxNameLen = 128
	}
	return &Processor{
		cfg:        cfg,
		extractor:  extractor,
		structurer: structurer,
		drafts:     drafts,
		logger:     logger,
		newID:      uuid.NewString,
	}
}

// Process never panics on task failure; the failure is carried in Outcome.Err.
func (p *Processor) Process(ctx context.Context, task DocumentTask) Outcome {
	if p.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.TaskTimeout)
		defer cancel()
	}

	start := time.Now()
	out := Outcome{Index: task.Index, Name: task.Name, UniqueID: p.newID(), State: constants.TaskReceived}
	log := common.LoggerWithContext(ctx, p.logger).With(
		"task_index", task.Index,
		"unique_id", out.UniqueID,
		"file", task.Name,
	)
	log.Info("pipeline.task.received", "doc_type", task.DocType)

	fail := func(err error) Outcome {
		log.Error("pipeline.task.failed",
			"state", out.State,
			"status", common.StatusOf(err),
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		out.State = constants.TaskFailed
		out.Err = err
		return out
	}
	advance := func(s constants.TaskState, attrs ...any) {
		out.State = s
		log.Info("pipeline.task."+strings.ToLower(string(s)), attrs...)
	}

	stored := utils.StoredName(out.UniqueID, task.Name, p.cfg.MaxNameLen)
	kind := KindOf(utils.SanitizeFilename(task.Name))

	docPath, err := p.save(task, stored)
	if err != nil {
		return fail(common.StorageErr(fmt.Sprintf("Error saving file %s: %v", task.Name, err), err))
	}
	advance(constants.TaskSaved, "path", docPath, "kind", kind)

	tr, err := p.extractor.Extract(ctx, out.UniqueID, docPath)
	defer tr.Release()
	if err != nil {
		if kind == llm.Portfolio {
			return fail(common.ExtractionErr("Text extraction failed: "+task.Name, err))
		}
		return fail(common.ExtractionErr(unableToExtract(task.Name), err))
	}
	advance(constants.TaskExtracted, "method", tr.Method, "pages", tr.Pages, "chars", len(tr.Text))

	payload, err := p.structurer.Structure(ctx, task.DocType, tr.Text, kind)
	if err != nil {
		if kind == llm.Portfolio {
			return fail(common.StructuringErr(http.StatusInternalServerError,
				fmt.Sprintf("GPT portfolio parsing failed: %v", err), err))
		}
		return fail(common.StructuringErr(http.StatusBadRequest, unableToExtract(task.Name), err))
	}
	advance(constants.TaskStructured, "records", len(payload.Objects()))

	payload = NormalizePayload(payload)
	out.Payload = payload
	advance(constants.TaskNormalized)

	fields, err := json.Marshal(payload)
	if err != nil {
		return fail(common.StorageErr(fmt.Sprintf("Error saving file %s: %v", task.Name, err), err))
	}
	rec := staging.DraftRecord{
		UniqueID:   out.UniqueID,
		DocType:    task.DocType,
		SourceName: task.Name,
		Portfolio:  payload.IsPortfolio(),
		Fields:     fields,
	}
	if err := p.drafts.StageDraft(ctx, rec); err != nil {
		var pe *common.PipelineError
		if errors.As(err, &pe) {
			return fail(err)
		}
		return fail(common.StorageErr(fmt.Sprintf("Error saving file %s: %v", task.Name, err), err))
	}
	advance(constants.TaskStaged)

	advance(constants.TaskSucceeded, "elapsed_ms", time.Since(start).Milliseconds())
	return out
}

func (p *Processor) save(task DocumentTask, stored string) (string, error) {
	if task.Blob == nil {
		return "", errors.New("no document content")
	}
	if err := os.MkdirAll(p.cfg.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	src, err := task.Blob()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	dst := filepath.Join(p.cfg.UploadDir, stored)
	f, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, src); err != nil {
		_ = f.Close()
		_ = os.Remove(dst)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return dst, nil
}

func unableToExtract(name string) string {
	return "Unable to extract text from: " + name
}
