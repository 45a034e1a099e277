// Package staging persists machine drafts and human-reviewed final records.
package staging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/lease-intake/constants"
	"github.com/joseph-ayodele/lease-intake/internal/blob"
	"github.com/joseph-ayodele/lease-intake/internal/common"
	"github.com/joseph-ayodele/lease-intake/internal/index"
)

const (
	recordExt     = ".json"
	maxDocTypeLen = 128
)

// DraftRecord is the unreviewed output of one pipeline task.
// Fields is a JSON object, or an array of objects for portfolio documents.
type DraftRecord struct {
	UniqueID   string          `json:"unique_id"`
	DocType    string          `json:"doc_type"`
	SourceName string          `json:"source_name"`
	Portfolio  bool            `json:"portfolio"`
	Fields     json.RawMessage `json:"draft_json"`
	CreatedAt  time.Time       `json:"created_at"`
}

// FinalRecord is a committed, reviewed field mapping.
type FinalRecord struct {
	Filename string          `json:"filename"`
	Fields   json.RawMessage `json:"fields"`
}

// Store holds drafts and finals in separate areas and projects finals into the index.
type Store struct {
	drafts blob.Store
	finals blob.Store
	index  index.Index
	logger *slog.Logger
}

func NewStore(drafts, finals blob.Store, idx index.Index, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{drafts: drafts, finals: finals, index: idx, logger: logger}
}

// StageDraft writes rec under its unique id. A repeated id overwrites silently.
func (s *Store) StageDraft(ctx context.Context, rec DraftRecord) error {
	v := common.NewValidator().
		Field("unique_id", rec.UniqueID, common.Required, common.UUID).
		Field("doc_type", rec.DocType, common.Required, common.MaxLen(maxDocTypeLen))
	if err := common.ValidateAndReturnError(v); err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode draft %s: %w", rec.UniqueID, err)
	}
	if err := s.drafts.Put(ctx, rec.UniqueID+recordExt, b); err != nil {
		s.logger.Error("staging.draft.failed", "unique_id", rec.UniqueID, "error", err)
		return fmt.Errorf("%w: draft %s: %w", common.ErrStorage, rec.UniqueID, err)
	}
	s.logger.Info("staging.draft.ok", "unique_id", rec.UniqueID, "bytes", len(b), "portfolio", rec.Portfolio)
	return nil
}

func (s *Store) GetDraft(ctx context.Context, id string) (DraftRecord, error) {
	var rec DraftRecord
	if err := checkID(id); err != nil {
		return rec, err
	}
	b, err := s.drafts.Get(ctx, id+recordExt)
	if err != nil {
		return rec, common.WrapError(err, "draft "+id)
	}
	if err := json.Unmarshal(b, &rec); err != nil {
		return rec, fmt.Errorf("decode draft %s: %w", id, err)
	}
	return rec, nil
}

func (s *Store) DeleteDraft(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	if err := s.drafts.Delete(ctx, id+recordExt); err != nil {
		return common.WrapError(err, "draft "+id)
	}
	s.logger.Info("staging.draft.deleted", "unique_id", id)
	return nil
}

// ListDrafts returns every stored draft ordered by unique id.
func (s *Store) ListDrafts(ctx context.Context) ([]DraftRecord, error) {
	keys, err := s.drafts.List(ctx, "")
	if err != nil {
		return nil, err
	}
	out := make([]DraftRecord, 0, len(keys))
	for _, k := range keys {
		if !strings.HasSuffix(k, recordExt) {
			continue
		}
		b, err := s.drafts.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		var rec DraftRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			s.logger.Warn("staging.draft.unreadable", "key", k, "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// GetFinal reads a final record by its (unsanitized or sanitized) filename.
func (s *Store) GetFinal(ctx context.Context, filename string) (FinalRecord, error) {
	key, err := finalKey(filename)
	if err != nil {
		return FinalRecord{}, err
	}
	b, err := s.finals.Get(ctx, key)
	if err != nil {
		return FinalRecord{}, common.WrapError(err, "final record "+filename)
	}
	return FinalRecord{Filename: strings.TrimSuffix(key, recordExt), Fields: b}, nil
}

// ListFinals returns the sanitized filenames of all final records.
func (s *Store) ListFinals(ctx context.Context) ([]string, error) {
	keys, err := s.finals.List(ctx, "")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		if strings.HasSuffix(k, recordExt) {
			names = append(names, strings.TrimSuffix(k, recordExt))
		}
	}
	return names, nil
}

// Search queries finalized records in the index.
func (s *Store) Search(ctx context.Context, text string, limit int) ([]index.Hit, error) {
	hits, err := s.index.Query(ctx, index.Query{
		Text:  text,
		Limit: limit,
		Where: map[string]string{constants.FinalizedMetadataKey: constants.FinalizedMarker},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", common.ErrStorage, err)
	}
	return hits, nil
}

func checkID(id string) error {
	return common.ValidateAndReturnError(common.NewValidator().Field("unique_id", id, common.UUID))
}
