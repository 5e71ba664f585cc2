package config

import (
	"encoding/json"
	"sync"

	"github.com/grovetools/livesync/schema"
	"github.com/invopop/jsonschema"
)

// GenerateSchema generates the JSON Schema for livesync.toml / livesync.yml.
// Unknown top-level keys are allowed; they become extensions.
func GenerateSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: true,
		// Expand struct references instead of using $ref for cleaner base schema.
		ExpandedStruct: true,
		// Use YAML field names for property names
		FieldNameTag: "yaml",
	}

	s := r.Reflect(&Config{})
	s.Title = "livesync Configuration"
	s.Description = "Schema for livesync.toml and livesync.yml."
	s.Version = "http://json-schema.org/draft-07/schema#"

	return json.MarshalIndent(s, "", "  ")
}

var (
	validatorOnce sync.Once
	validator     *schema.Validator
	validatorErr  error
)

// validateRaw checks a decoded config document against the generated schema.
func validateRaw(raw map[string]interface{}) error {
	validatorOnce.Do(func() {
		var data []byte
		data, validatorErr = GenerateSchema()
		if validatorErr != nil {
			return
		}
		validator, validatorErr = schema.NewValidator("livesync.schema.json", data)
	})
	if validatorErr != nil {
		return validatorErr
	}
	return validator.Validate(raw)
}
