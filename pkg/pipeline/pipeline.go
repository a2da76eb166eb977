package pipeline

import (
	"context"

	"github.com/getkin/kin-openapi/openapi3"
)

// TriggerSource identifies how an execution was initiated.
type TriggerSource string

const (
	SourceAPI     TriggerSource = "api"
	SourceWebhook TriggerSource = "webhook"
	SourceAgent   TriggerSource = "agent"
	SourceCron    TriggerSource = "cron"
	SourceManual  TriggerSource = "manual"
)

// KnownSources lists every valid trigger source.
var KnownSources = []TriggerSource{SourceAPI, SourceWebhook, SourceAgent, SourceCron, SourceManual}

// Descriptor declares a pipeline's identity and typed schemas. Schemas are
// supplied directly at registration; there is no runtime type introspection.
type Descriptor struct {
	Name         string
	Description  string
	Tags         []string
	Area         string
	InputSchema  *openapi3.Schema
	OutputSchema *openapi3.Schema

	// Slug is a URL-safe form of Name, derived by the registry.
	Slug string
}

// HasTag reports whether the descriptor carries the given tag.
func (d Descriptor) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Pipeline represents a schedulable unit of work that can be executed by the
// coordinator. Implementations must be safe for reuse across calls: any
// per-call state belongs in local variables inside Execute, never on the
// instance.
type Pipeline interface {
	// Descriptor returns the pipeline's declared identity and schemas
	Descriptor() Descriptor

	// Execute runs the pipeline with validated input. Faults are reported
	// through the Result; the coordinator additionally recovers panics.
	Execute(ctx context.Context, input map[string]any, ec ExecutionContext) Result
}

// InputValidator is an optional extension for invariants beyond schema shape.
// Pipelines that do not implement it accept any schema-valid input.
type InputValidator interface {
	ValidateInput(input map[string]any) bool
}
