// Package schema compiles JSON Schemas and validates payloads against them.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator validates JSON-shaped data against one compiled schema.
type Validator struct {
	name   string
	schema *jsonschema.Schema
}

// NewValidator compiles schemaJSON under the resource name (e.g. "dashboard.json").
func NewValidator(name string, schemaJSON []byte) (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource %s: %w", name, err)
	}

	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	return &Validator{name: name, schema: schema}, nil
}

// Validate validates any value that can be marshaled to JSON.
func (v *Validator) Validate(data interface{}) error {
	// The schema expects plain JSON-like objects, not Go structs.
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s data to JSON for validation: %w", v.name, err)
	}
	return v.ValidateJSON(jsonData)
}

// ValidateJSON validates a raw JSON document.
func (v *Validator) ValidateJSON(raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var dataToValidate interface{}
	if err := dec.Decode(&dataToValidate); err != nil {
		return fmt.Errorf("failed to decode JSON for validation: %w", err)
	}

	if err := v.schema.Validate(dataToValidate); err != nil {
		if validationErr, ok := err.(*jsonschema.ValidationError); ok {
			var errorMessages []string
			collectErrors(validationErr, &errorMessages)
			return fmt.Errorf("%s schema validation failed:\n%s", v.name, strings.Join(errorMessages, "\n"))
		}
		return fmt.Errorf("%s schema validation failed: %w", v.name, err)
	}

	return nil
}

// collectErrors recursively collects all validation errors into a slice
func collectErrors(err *jsonschema.ValidationError, messages *[]string) {
	if err.InstanceLocation != "" || len(err.Causes) == 0 {
		loc := err.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		*messages = append(*messages, fmt.Sprintf("- %s: %s", loc, err.Message))
	}
	for _, cause := range err.Causes {
		collectErrors(cause, messages)
	}
}
