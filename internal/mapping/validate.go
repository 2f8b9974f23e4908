package mapping

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/control-mapper/internal/common"
)

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func outputSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = compileSchema(OutputSchema())
	})
	return compiledSchema, schemaErr
}

func compileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("mapping.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("mapping.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// Validate checks raw against OutputSchema and decodes it.
func Validate(raw map[string]any) (*Output, error) {
	schema, err := outputSchema()
	if err != nil {
		return nil, common.WrapError(err, "output schema")
	}

	// Round-trip so the validator only ever sees decoded JSON types.
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, invalid(err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, invalid(err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, invalid(err)
	}

	var out Output
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, invalid(err)
	}
	return &out, nil
}

func invalid(err error) error {
	return common.NewAppError("VALIDATION_ERROR", "Output validation failed: "+err.Error(), common.ErrValidation)
}
