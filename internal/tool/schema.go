package tool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaValidator compiles and caches each tool's JSON Schema so repeated
// calls to the same tool don't recompile it, and validates a tool's raw
// input against that schema before the Tool Executor invokes it (spec
// dispatch is gated on this passing).
type SchemaValidator struct {
	mu     sync.Mutex
	cached map[string]*jsonschema.Schema
}

// NewSchemaValidator creates an empty validator cache.
func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{cached: make(map[string]*jsonschema.Schema)}
}

// Validate compiles (or reuses the cached compilation of) toolID's
// parameters schema and checks input against it. A tool with an empty or
// unparseable schema is treated as unconstrained and always passes —
// schema validation narrows well-formed schemas, it doesn't invent them.
func (v *SchemaValidator) Validate(toolID string, schemaJSON, input json.RawMessage) error {
	if len(schemaJSON) == 0 {
		return nil
	}

	compiled, err := v.compile(toolID, schemaJSON)
	if err != nil {
		// A tool shipping a malformed schema shouldn't block every call to
		// it; surface nothing and let the tool's own input handling fail
		// loudly instead.
		return nil
	}

	var doc any
	if err := json.Unmarshal(input, &doc); err != nil {
		return fmt.Errorf("tool input is not valid JSON: %w", err)
	}

	if err := compiled.Validate(doc); err != nil {
		return fmt.Errorf("tool input failed schema validation: %w", err)
	}
	return nil
}

func (v *SchemaValidator) compile(toolID string, schemaJSON json.RawMessage) (*jsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if s, ok := v.cached[toolID]; ok {
		return s, nil
	}

	url := "mem://tool/" + toolID
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, err
	}
	v.cached[toolID] = compiled
	return compiled, nil
}
