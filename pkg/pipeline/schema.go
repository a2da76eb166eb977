package pipeline

import (
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

// ValidateAgainstSchema checks a raw input object against a declared schema.
// A nil schema accepts anything. Failures are reported as ValidationError so
// callers can reject input before any run record exists.
func ValidateAgainstSchema(schema *openapi3.Schema, input map[string]any) error {
	if schema == nil {
		return nil
	}

	// VisitJSON expects the plain decoded JSON value
	value := any(input)
	if input == nil {
		value = map[string]any{}
	}

	if err := schema.VisitJSON(value); err != nil {
		return &ValidationError{Message: fmt.Sprintf("validation failed: %v", err)}
	}
	return nil
}

// ObjectSchema builds an object schema from named property schemas, marking
// the given properties required. Pipelines use this to declare their input
// and output records at registration time.
func ObjectSchema(props map[string]*openapi3.Schema, required ...string) *openapi3.Schema {
	schema := openapi3.NewObjectSchema()
	for name, prop := range props {
		schema.WithProperty(name, prop)
	}
	schema.Required = required
	return schema
}
