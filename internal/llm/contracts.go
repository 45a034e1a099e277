package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// DocKind decides how many records the structuring service should return.
type DocKind int

const (
	// Single documents describe one record.
	Single DocKind = iota
	// Portfolio documents describe several records (one per property).
	Portfolio
)

func (k DocKind) String() string {
	if k == Portfolio {
		return "portfolio"
	}
	return "single"
}

var (
	ErrEmptyText        = errors.New("llm: empty input text")
	ErrNotConfigured    = errors.New("llm: structurer not configured")
	ErrMalformedPayload = errors.New("llm: malformed payload")
)

// Structurer turns raw document text into structured field data.
// Implementations hold no state between calls.
type Structurer interface {
	Structure(ctx context.Context, docType, rawText string, kind DocKind) (Payload, error)
}

// Payload is either one field object or, for portfolio documents, an ordered
// list of field objects.
type Payload struct {
	Kind    DocKind
	Single  map[string]any
	Records []map[string]any
}

func (p Payload) IsPortfolio() bool { return p.Kind == Portfolio }

// Objects returns every field object in order.
func (p Payload) Objects() []map[string]any {
	if p.IsPortfolio() {
		return p.Records
	}
	if p.Single == nil {
		return nil
	}
	return []map[string]any{p.Single}
}

// MarshalJSON writes an object for single payloads and an array for portfolios.
func (p Payload) MarshalJSON() ([]byte, error) {
	if p.IsPortfolio() {
		recs := p.Records
		if recs == nil {
			recs = []map[string]any{}
		}
		return json.Marshal(recs)
	}
	if p.Single == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p.Single)
}
