package schema

import (
	_ "embed"
	"fmt"

	"github.com/kaptinlin/jsonschema"
)

var (
	//go:embed ingest.schema.json
	ingestSchemaJSON []byte
	//go:embed create.schema.json
	createSchemaJSON []byte
)

// Validator holds the compiled request schemas.
type Validator struct {
	ingest *jsonschema.Schema
	create *jsonschema.Schema
}

// NewValidator compiles the embedded schemas.
func NewValidator() (*Validator, error) {
	ingest, err := compile(ingestSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("ingest schema: %w", err)
	}
	create, err := compile(createSchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Validator{ingest: ingest, create: create}, nil
}

// ValidateIngest checks an IngestProvider request body.
func (v *Validator) ValidateIngest(data []byte) error { return validateJSON(v.ingest, data) }

// ValidateCreate checks a CreateSession request body.
func (v *Validator) ValidateCreate(data []byte) error { return validateJSON(v.create, data) }

func compile(data []byte) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	schema, err := compiler.Compile(data)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

func validateJSON(schema *jsonschema.Schema, data []byte) error {
	result := schema.ValidateJSON(data)
	if result.IsValid() {
		return nil
	}
	return fmt.Errorf("schema validation failed: %v", result.Errors)
}
