package llm

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// generatedSchemaJSON is the contract a generation response must satisfy
// before any repair logic runs.
const generatedSchemaJSON = `{
	"type": "object",
	"required": ["questions"],
	"properties": {
		"questions": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["text", "choices"],
				"properties": {
					"text": {"type": "string", "minLength": 1},
					"choices": {
						"type": "array",
						"minItems": 2,
						"items": {
							"type": "object",
							"required": ["text"],
							"properties": {
								"text": {"type": "string"},
								"is_correct": {"type": "boolean"}
							}
						}
					},
					"course_year": {"type": "integer"},
					"mark": {"type": "integer"}
				}
			}
		}
	}
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

// validateGenerated checks raw LLM output against the generation schema.
func validateGenerated(raw []byte) error {
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("invalid JSON from LLM: %w", err)
	}

	schemaOnce.Do(func() {
		var def any
		if err := json.Unmarshal([]byte(generatedSchemaJSON), &def); err != nil {
			schemaErr = fmt.Errorf("parse schema definition: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("schema://generated-questions.json", def); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile("schema://generated-questions.json")
	})
	if schemaErr != nil {
		return schemaErr
	}

	if err := compiledSchema.Validate(parsed); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}
