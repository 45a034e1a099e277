package llm

// Shape schemas only pin the top-level structure; field contents are free-form.

func singleShapeSchema() map[string]any {
	return map[string]any{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type":    "object",
	}
}

func portfolioShapeSchema() map[string]any {
	return map[string]any{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type":    "array",
		"items":   map[string]any{"type": "object"},
	}
}
