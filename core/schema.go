package core

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// FieldSpec documents one structured argument of a capability.
// Type uses JSON Schema type names ("string", "number", "integer",
// "boolean", "array", "object").
type FieldSpec struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Example     string `json:"example,omitempty"`
}

// Schema is the explicit structural description of a capability's expected
// arguments. It is supplied at registration time; the framework never infers
// it from a function signature at invocation time.
type Schema struct {
	RequiredFields []FieldSpec `json:"required_fields,omitempty"`
	OptionalFields []FieldSpec `json:"optional_fields,omitempty"`

	// Compiled lazily on first validation; descriptors stay read-only
	// from the caller's point of view.
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
}

// Empty reports whether the schema declares no fields
func (s *Schema) Empty() bool {
	return s == nil || (len(s.RequiredFields) == 0 && len(s.OptionalFields) == 0)
}

// Document generates a JSON Schema draft-07 document from the field specs.
// Agents fetch this through the schema endpoint to validate payloads before
// dispatching an invocation.
func (s *Schema) Document(title, description string) map[string]interface{} {
	doc := map[string]interface{}{
		"$schema":     "http://json-schema.org/draft-07/schema#",
		"type":        "object",
		"title":       title,
		"description": description,
	}

	if s.Empty() {
		return doc
	}

	properties := make(map[string]interface{})
	required := []string{}

	for _, field := range s.RequiredFields {
		properties[field.Name] = fieldToProperty(field)
		required = append(required, field.Name)
	}
	for _, field := range s.OptionalFields {
		properties[field.Name] = fieldToProperty(field)
	}

	doc["properties"] = properties
	if len(required) > 0 {
		doc["required"] = required
	}
	doc["additionalProperties"] = false

	return doc
}

// fieldToProperty converts a FieldSpec to a JSON Schema property definition
func fieldToProperty(field FieldSpec) map[string]interface{} {
	prop := map[string]interface{}{
		"type": field.Type,
	}
	if field.Description != "" {
		prop["description"] = field.Description
	}
	if field.Example != "" {
		prop["examples"] = []string{field.Example}
	}
	return prop
}

// compile builds the validator once per schema
func (s *Schema) compile(title string) (*jsonschema.Schema, error) {
	s.compileOnce.Do(func() {
		data, err := json.Marshal(s.Document(title, ""))
		if err != nil {
			s.compileErr = fmt.Errorf("failed to marshal schema document for %s: %w", title, err)
			return
		}
		s.compiled, s.compileErr = jsonschema.CompileString(title+".schema.json", string(data))
	})
	return s.compiled, s.compileErr
}

// ValidateArgs checks structured arguments against the declared schema.
// A validation miss is reported as a *RecoverableError with category
// INPUT_ERROR so the capability's error policy applies uniformly; a schema
// that cannot compile is a configuration fault and propagates as fatal.
func (s *Schema) ValidateArgs(title string, args map[string]interface{}) error {
	if s.Empty() {
		return nil
	}

	validator, err := s.compile(title)
	if err != nil {
		return err
	}

	// The validator expects decoded JSON values; round-trip through JSON
	// so typed values (int, custom types) normalize the way a wire payload
	// would.
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to marshal arguments for %s: %w", title, err)
	}
	var decoded interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("failed to decode arguments for %s: %w", title, err)
	}

	if err := validator.Validate(decoded); err != nil {
		return &RecoverableError{
			Code:      "SCHEMA_VALIDATION_FAILED",
			Message:   fmt.Sprintf("input does not match the declared schema: %v", err),
			Category:  CategoryInputError,
			Retryable: true,
			Details: map[string]string{
				"capability": title,
				"hint":       "correct the arguments to match the schema endpoint document",
			},
		}
	}

	return nil
}
