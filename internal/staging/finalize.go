package staging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/joseph-ayodele/lease-intake/constants"
	"github.com/joseph-ayodele/lease-intake/internal/common"
	"github.com/joseph-ayodele/lease-intake/internal/index"
	"github.com/joseph-ayodele/lease-intake/internal/utils"
)

const (
	msgNotAList        = "Request expects a list of JSON objects"
	msgBadEntry        = "Final JSON is not properly formatted or there is more than one filename present"
	msgBadFieldsFormat = "JSON of %s is not properly formatted"
)

// FinalEntry is one {filename: fields} item of a finalize request.
// Fields keeps the caller's bytes so key order survives.
type FinalEntry struct {
	Filename string
	Fields   json.RawMessage
}

type FinalizeStatus struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
}

// ParseFinalizeRequest validates a finalize body. Any malformed entry rejects the whole request.
func ParseFinalizeRequest(raw []byte) ([]FinalEntry, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || !isJSONArray(raw) {
		return nil, common.ValidationErr(msgNotAList)
	}

	entries := make([]FinalEntry, 0, len(items))
	for _, item := range items {
		var obj map[string]json.RawMessage
		if !isJSONObject(item) || json.Unmarshal(item, &obj) != nil || len(obj) != 1 {
			return nil, common.ValidationErr(msgBadEntry)
		}
		for filename, fields := range obj {
			if !isJSONObject(fields) {
				return nil, common.ValidationErr(fmt.Sprintf(msgBadFieldsFormat, filename))
			}
			var compact bytes.Buffer
			if err := json.Compact(&compact, fields); err != nil {
				return nil, common.ValidationErr(fmt.Sprintf(msgBadFieldsFormat, filename))
			}
			entries = append(entries, FinalEntry{Filename: filename, Fields: compact.Bytes()})
		}
	}
	return entries, nil
}

// Finalize persists each entry as a final record and indexes it with the
// finalized marker. Entries are all validated before anything is written.
// A failure part way leaves earlier entries committed.
func (s *Store) Finalize(ctx context.Context, entries []FinalEntry) ([]FinalizeStatus, error) {
	keys := make([]string, len(entries))
	for i, e := range entries {
		if !isJSONObject(e.Fields) {
			return nil, common.ValidationErr(fmt.Sprintf(msgBadFieldsFormat, e.Filename))
		}
		key, err := finalKey(e.Filename)
		if err != nil {
			return nil, err
		}
		keys[i] = key
	}

	out := make([]FinalizeStatus, 0, len(entries))
	for i, e := range entries {
		if err := s.finals.Put(ctx, keys[i], e.Fields); err != nil {
			s.logger.Error("staging.finalize.write_failed", "filename", e.Filename, "error", err)
			return nil, common.StorageErr(fmt.Sprintf("Error saving %s", e.Filename), err)
		}
		err := s.index.Upsert(ctx, index.Document{
			ID:       e.Filename,
			Content:  string(e.Fields),
			Metadata: map[string]string{constants.FinalizedMetadataKey: constants.FinalizedMarker},
		})
		if err != nil {
			s.logger.Error("staging.finalize.index_failed", "filename", e.Filename, "error", err)
			return nil, common.StorageErr(fmt.Sprintf("Error saving %s to database", e.Filename), err)
		}
		s.logger.Info("staging.finalize.ok", "filename", e.Filename, "key", keys[i])
		out = append(out, FinalizeStatus{Filename: e.Filename, Status: constants.FinalizedStatus})
	}
	return out, nil
}

func finalKey(filename string) (string, error) {
	clean := utils.SanitizeFilename(filename)
	if clean == "" {
		return "", common.ValidationErr(fmt.Sprintf("Invalid filename: %q", filename))
	}
	return clean + recordExt, nil
}

func isJSONObject(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 0 && b[0] == '{' && json.Valid(b)
}

func isJSONArray(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 0 && b[0] == '['
}
