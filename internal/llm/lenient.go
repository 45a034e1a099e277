package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// StripCodeFences removes a markdown ```json fence some models wrap around output.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ParsePayload decodes a structuring response into a Payload of the given kind.
// Portfolio output may be a bare array or an object wrapping one array.
func ParsePayload(kind DocKind, raw []byte) (Payload, error) {
	text := StripCodeFences(string(raw))
	if text == "" {
		return Payload{}, fmt.Errorf("%w: empty response", ErrMalformedPayload)
	}

	v, err := decodeJSON([]byte(text))
	if err != nil {
		repaired := repairJSON(text)
		if repaired == text {
			return Payload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		if v, err = decodeJSON([]byte(repaired)); err != nil {
			return Payload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
	}

	if kind == Portfolio {
		v = unwrapRecords(v)
	}
	if err := ValidateShape(kind, v); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if kind == Single {
		return Payload{Kind: Single, Single: v.(map[string]any)}, nil
	}
	items := v.([]any)
	recs := make([]map[string]any, 0, len(items))
	for _, it := range items {
		recs = append(recs, it.(map[string]any))
	}
	return Payload{Kind: Portfolio, Records: recs}, nil
}

// unwrapRecords accepts {"properties": [...]} and similar single-key wrappers.
func unwrapRecords(v any) any {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return v
	}
	for _, inner := range m {
		if arr, ok := inner.([]any); ok {
			return arr
		}
	}
	return v
}

func decodeJSON(b []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after json value")
	}
	return v, nil
}

// repairJSON fixes keys that lost their opening quote, e.g. `, type":` -> `, "type":`.
func repairJSON(s string) string {
	in := []rune(s)
	out := make([]rune, 0, len(in)+16)

	for i := 0; i < len(in); {
		ch := in[i]
		out = append(out, ch)
		i++
		if ch != '{' && ch != ',' {
			continue
		}
		for i < len(in) && (in[i] == ' ' || in[i] == '\n' || in[i] == '\t' || in[i] == '\r') {
			out = append(out, in[i])
			i++
		}
		if i >= len(in) || !isKeyStart(in[i]) {
			continue
		}
		start := i
		for i < len(in) && isKeyRune(in[i]) {
			i++
		}
		if i+1 < len(in) && in[i] == '"' && in[i+1] == ':' {
			out = append(out, '"')
		}
		out = append(out, in[start:i]...)
	}
	return string(out)
}

func isKeyStart(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isKeyRune(r rune) bool {
	return isKeyStart(r) || (r >= '0' && r <= '9') || r == '_'
}
