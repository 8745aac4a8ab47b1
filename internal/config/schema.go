// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package config

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

var (
	schemaOnce  sync.Once
	schemaCache *jschema.Schema
	schemaErr   error
)

// SchemaID is the $id embedded in the generated config schema.
const SchemaID = "https://keyward.dev/schemas/config.schema.json"

// GenerateSchema generates a JSON Schema for the Config struct.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference: true,
	}
	schema := r.Reflect(&Config{})

	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "Keyward Configuration"
	schema.Description = "Schema for keyward config.yaml files"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return data, nil
}

// ValidateSchema validates YAML config data against the generated schema.
func ValidateSchema(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("config data is empty")
	}

	var yamlData any
	if err := yaml.Unmarshal(data, &yamlData); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}

	sch, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("failed to compile schema: %w", err)
	}

	if err := sch.Validate(toJSONTypes(yamlData)); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// compiledSchema compiles the schema once; the Config struct is fixed at
// build time so the result never changes.
func compiledSchema() (*jschema.Schema, error) {
	schemaOnce.Do(func() {
		var schemaBytes []byte
		schemaBytes, schemaErr = GenerateSchema()
		if schemaErr != nil {
			return
		}

		var schemaData any
		if schemaErr = json.Unmarshal(schemaBytes, &schemaData); schemaErr != nil {
			schemaErr = fmt.Errorf("failed to parse schema JSON: %w", schemaErr)
			return
		}

		c := jschema.NewCompiler()
		if schemaErr = c.AddResource("schema.json", schemaData); schemaErr != nil {
			schemaErr = fmt.Errorf("failed to add schema resource: %w", schemaErr)
			return
		}
		schemaCache, schemaErr = c.Compile("schema.json")
	})
	return schemaCache, schemaErr
}

// toJSONTypes converts YAML-parsed values to JSON-compatible types for the
// validator, recursing into maps and sequences.
func toJSONTypes(v any) any {
	switch val := v.(type) {
	case map[string]any:
		result := make(map[string]any, len(val))
		for k, item := range val {
			result[k] = toJSONTypes(item)
		}
		return result
	case []any:
		result := make([]any, len(val))
		for i, item := range val {
			result[i] = toJSONTypes(item)
		}
		return result
	default:
		return val
	}
}
