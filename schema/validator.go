// Package schema validates tool arguments and outputs against JSON Schema
// documents, and applies a security pre-pass (size/depth/complexity caps and
// injection-pattern detection) that a plain schema validator does not cover.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validator compiles JSON Schema documents and validates arbitrary JSON
// values against them. Compiled schemas are not cached: each call compiles
// its schema document with a fresh compiler.
type Validator struct {
	compiler *jsonschema.Compiler
}

// NewValidator returns a Validator with a fresh schema compiler.
func NewValidator() *Validator {
	return &Validator{compiler: jsonschema.NewCompiler()}
}

// ValidationError reports a schema mismatch at a specific JSON pointer path.
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validate checks data against the given schema document. schema is a
// decoded JSON Schema (map[string]interface{} or equivalent); data is the
// decoded value being checked.
func (v *Validator) Validate(schemaDoc map[string]interface{}, data interface{}) error {
	c := jsonschema.NewCompiler()
	resourceName := fmt.Sprintf("schema-%p.json", schemaDoc)
	if err := c.AddResource(resourceName, schemaDoc); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile(resourceName)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	if err := compiled.Validate(data); err != nil {
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			return &ValidationError{Path: "/" + strings.Join(ve.InstanceLocation, "/"), Message: ve.Error()}
		}
		return &ValidationError{Message: err.Error()}
	}
	return nil
}

// ValidateJSON is a convenience wrapper taking raw JSON bytes for both the
// schema document and the data to check.
func (v *Validator) ValidateJSON(schemaJSON, dataJSON []byte) error {
	var schemaDoc map[string]interface{}
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return fmt.Errorf("unmarshal schema: %w", err)
	}
	var data interface{}
	if err := json.Unmarshal(dataJSON, &data); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	return v.Validate(schemaDoc, data)
}

// ValidateSchemaDocument checks that a tool's input/output schema is itself
// a well-formed JSON Schema object, independent of any instance data.
func (v *Validator) ValidateSchemaDocument(schemaDoc map[string]interface{}) error {
	resourceName := fmt.Sprintf("schema-doc-%p.json", schemaDoc)
	c := jsonschema.NewCompiler()
	if err := c.AddResource(resourceName, schemaDoc); err != nil {
		return fmt.Errorf("invalid schema document: %w", err)
	}
	if _, err := c.Compile(resourceName); err != nil {
		return fmt.Errorf("invalid schema document: %w", err)
	}
	return nil
}
