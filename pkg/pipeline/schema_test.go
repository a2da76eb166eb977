package pipeline

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
)

func TestValidateAgainstSchema(t *testing.T) {
	schema := ObjectSchema(map[string]*openapi3.Schema{
		"recipient": openapi3.NewStringSchema(),
		"count":     openapi3.NewIntegerSchema(),
	}, "recipient")

	tests := []struct {
		name    string
		schema  *openapi3.Schema
		input   map[string]any
		wantErr bool
	}{
		{
			name:    "nil schema accepts anything",
			schema:  nil,
			input:   map[string]any{"whatever": true},
			wantErr: false,
		},
		{
			name:    "valid input",
			schema:  schema,
			input:   map[string]any{"recipient": "ops@example.com", "count": float64(3)},
			wantErr: false,
		},
		{
			name:    "missing required property",
			schema:  schema,
			input:   map[string]any{"count": float64(3)},
			wantErr: true,
		},
		{
			name:    "wrong type",
			schema:  schema,
			input:   map[string]any{"recipient": 42},
			wantErr: true,
		},
		{
			name:    "nil input against required schema",
			schema:  schema,
			input:   nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAgainstSchema(tt.schema, tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAgainstSchema() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !IsValidation(err) {
				t.Errorf("expected ValidationError, got %T: %v", err, err)
			}
		})
	}
}

func TestValidateAgainstSchema_JSONRoundTrip(t *testing.T) {
	schema := ObjectSchema(map[string]*openapi3.Schema{
		"recipient": openapi3.NewStringSchema(),
		"count":     openapi3.NewIntegerSchema(),
		"dry_run":   openapi3.NewBoolSchema(),
	}, "recipient")

	// Valid input must survive a trip through the wire encoding: what a
	// client sends and what a handler decodes validate identically
	original := map[string]any{
		"recipient": "ops@example.com",
		"count":     float64(3),
		"dry_run":   true,
	}
	if err := ValidateAgainstSchema(schema, original); err != nil {
		t.Fatalf("ValidateAgainstSchema(original) error = %v", err)
	}

	encoded, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if err := ValidateAgainstSchema(schema, decoded); err != nil {
		t.Errorf("ValidateAgainstSchema(decoded) error = %v", err)
	}
	if !reflect.DeepEqual(decoded, original) {
		t.Errorf("round-trip changed the input:\n got %#v\nwant %#v", decoded, original)
	}
}

func TestResult_WithMeta(t *testing.T) {
	original := Ok(map[string]any{"n": 1})
	tagged := original.WithMeta("run_id", "abc")

	if original.Metadata != nil {
		t.Error("WithMeta() mutated the original result")
	}
	id, ok := tagged.RunID()
	if !ok || id != "abc" {
		t.Errorf("RunID() = %q, %v; want abc, true", id, ok)
	}

	if _, ok := original.RunID(); ok {
		t.Error("RunID() = true on untagged result")
	}
}
