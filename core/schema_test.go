package core

import (
	"errors"
	"testing"
)

func TestSchemaDocument(t *testing.T) {
	schema := &Schema{
		RequiredFields: []FieldSpec{
			{Name: "city", Type: "string", Description: "City name", Example: "Oslo"},
		},
		OptionalFields: []FieldSpec{
			{Name: "units", Type: "string"},
		},
	}

	doc := schema.Document("weather", "looks up weather")

	if doc["$schema"] != "http://json-schema.org/draft-07/schema#" {
		t.Errorf("$schema = %v, want draft-07", doc["$schema"])
	}
	if doc["title"] != "weather" {
		t.Errorf("title = %v, want %q", doc["title"], "weather")
	}
	if doc["additionalProperties"] != false {
		t.Error("additionalProperties missing or not false")
	}

	props, ok := doc["properties"].(map[string]interface{})
	if !ok {
		t.Fatalf("properties = %T, want map", doc["properties"])
	}
	city, ok := props["city"].(map[string]interface{})
	if !ok {
		t.Fatal("city property missing")
	}
	if city["type"] != "string" || city["description"] != "City name" {
		t.Errorf("city property = %v", city)
	}

	required, ok := doc["required"].([]string)
	if !ok || len(required) != 1 || required[0] != "city" {
		t.Errorf("required = %v, want [city]", doc["required"])
	}
}

func TestSchemaDocumentEmpty(t *testing.T) {
	schema := &Schema{}
	doc := schema.Document("bare", "")
	if _, ok := doc["properties"]; ok {
		t.Error("empty schema should not emit properties")
	}
}

func TestSchemaValidateArgs(t *testing.T) {
	schema := &Schema{
		RequiredFields: []FieldSpec{
			{Name: "count", Type: "integer"},
		},
	}

	if err := schema.ValidateArgs("counter", map[string]interface{}{"count": 3}); err != nil {
		t.Errorf("ValidateArgs(valid) error = %v", err)
	}

	err := schema.ValidateArgs("counter", map[string]interface{}{"count": "three"})
	signal, ok := AsRecoverable(err)
	if !ok {
		t.Fatalf("ValidateArgs(invalid) error = %v, want *RecoverableError", err)
	}
	if signal.Code != "SCHEMA_VALIDATION_FAILED" {
		t.Errorf("signal.Code = %q", signal.Code)
	}
	if !signal.Retryable {
		t.Error("validation failures should be retryable with corrected input")
	}
}

func TestSchemaValidateArgsEmptySchema(t *testing.T) {
	var schema *Schema
	if err := schema.ValidateArgs("anything", map[string]interface{}{"x": 1}); err != nil {
		t.Errorf("nil schema ValidateArgs() error = %v, want nil", err)
	}
}

func TestSchemaFromStruct(t *testing.T) {
	type WeatherQuery struct {
		City  string `json:"city" jsonschema:"description=City and country"`
		Units string `json:"units,omitempty" jsonschema:"description=metric or imperial"`
	}

	schema, err := SchemaFromStruct(WeatherQuery{})
	if err != nil {
		t.Fatalf("SchemaFromStruct() error = %v", err)
	}

	if len(schema.RequiredFields) != 1 || schema.RequiredFields[0].Name != "city" {
		t.Errorf("RequiredFields = %+v, want [city]", schema.RequiredFields)
	}
	if schema.RequiredFields[0].Description != "City and country" {
		t.Errorf("city description = %q", schema.RequiredFields[0].Description)
	}
	if len(schema.OptionalFields) != 1 || schema.OptionalFields[0].Name != "units" {
		t.Errorf("OptionalFields = %+v, want [units]", schema.OptionalFields)
	}

	// The derived schema validates like a hand-written one
	if err := schema.ValidateArgs("weather", map[string]interface{}{"city": "Oslo"}); err != nil {
		t.Errorf("ValidateArgs(valid) error = %v", err)
	}
	if err := schema.ValidateArgs("weather", map[string]interface{}{"units": "metric"}); err == nil {
		t.Error("ValidateArgs(missing city) error = nil, want validation failure")
	}
}

func TestSchemaFromStructRejectsNonStruct(t *testing.T) {
	tests := []struct {
		name string
		v    interface{}
	}{
		{"nil", nil},
		{"string", "hello"},
		{"map", map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SchemaFromStruct(tt.v)
			if !errors.Is(err, ErrSchemaInference) {
				t.Errorf("SchemaFromStruct(%v) error = %v, want ErrSchemaInference", tt.v, err)
			}
		})
	}
}
