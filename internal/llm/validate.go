package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	shapeOnce    sync.Once
	shapeSchemas map[DocKind]*jsonschema.Schema
	shapeErr     error
)

// compileSchema compiles a schema given as a generic map.
func compileSchema(name string, schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// ValidateShape checks that a decoded value has the top-level shape for kind.
func ValidateShape(kind DocKind, v any) error {
	shapeOnce.Do(func() {
		single, err := compileSchema("single.json", singleShapeSchema())
		if err != nil {
			shapeErr = err
			return
		}
		portfolio, err := compileSchema("portfolio.json", portfolioShapeSchema())
		if err != nil {
			shapeErr = err
			return
		}
		shapeSchemas = map[DocKind]*jsonschema.Schema{Single: single, Portfolio: portfolio}
	})
	if shapeErr != nil {
		return shapeErr
	}
	if err := shapeSchemas[kind].Validate(v); err != nil {
		return fmt.Errorf("json does not match %s shape: %w", kind, err)
	}
	return nil
}
