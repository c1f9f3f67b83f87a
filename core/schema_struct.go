package core

import (
	"fmt"
	"reflect"

	invopop "github.com/invopop/jsonschema"
)

// SchemaFromStruct derives a Schema from a tagged Go struct. Field names
// follow the json tags, descriptions the jsonschema tags understood by
// invopop/jsonschema:
//
//	type WeatherQuery struct {
//	    City  string `json:"city" jsonschema:"description=City and country"`
//	    Units string `json:"units,omitempty" jsonschema:"description=metric or imperial"`
//	}
//
// This is a registration-time builder step; nothing is reflected during
// invocation. Fails with ErrSchemaInference when v is not a struct or
// produces no object schema.
func SchemaFromStruct(v interface{}) (*Schema, error) {
	if v == nil {
		return nil, fmt.Errorf("nil value: %w", ErrSchemaInference)
	}

	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%T is not a struct: %w", v, ErrSchemaInference)
	}

	reflector := &invopop.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	generated := reflector.Reflect(v)
	if generated == nil || generated.Properties == nil || generated.Properties.Len() == 0 {
		return nil, fmt.Errorf("%T declares no schema properties: %w", v, ErrSchemaInference)
	}

	required := make(map[string]bool, len(generated.Required))
	for _, name := range generated.Required {
		required[name] = true
	}

	schema := &Schema{}
	for pair := generated.Properties.Oldest(); pair != nil; pair = pair.Next() {
		prop := pair.Value
		field := FieldSpec{
			Name:        pair.Key,
			Type:        prop.Type,
			Description: prop.Description,
		}
		if len(prop.Examples) > 0 {
			field.Example = fmt.Sprintf("%v", prop.Examples[0])
		}
		if required[pair.Key] {
			schema.RequiredFields = append(schema.RequiredFields, field)
		} else {
			schema.OptionalFields = append(schema.OptionalFields, field)
		}
	}

	return schema, nil
}
