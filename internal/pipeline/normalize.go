package pipeline

import (
	"strings"

	"github.com/joseph-ayodele/lease-intake/internal/llm"
)

// KindOf decides the document kind from its sanitized name.
func KindOf(sanitizedName string) llm.DocKind {
	if strings.Contains(strings.ToLower(sanitizedName), "portfolio") {
		return llm.Portfolio
	}
	return llm.Single
}

// NormalizeFields replaces top-level empty strings with nil. Nested values are untouched.
func NormalizeFields(m map[string]any) map[string]any {
	for k, v := range m {
		if s, ok := v.(string); ok && s == "" {
			m[k] = nil
		}
	}
	return m
}

// NormalizePayload applies NormalizeFields to every object of p.
func NormalizePayload(p llm.Payload) llm.Payload {
	for _, obj := range p.Objects() {
		NormalizeFields(obj)
	}
	return p
}
