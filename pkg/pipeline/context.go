package pipeline

import "github.com/google/uuid"

// ExecutionContext carries per-invocation metadata. It is constructed by the
// caller, owned exclusively for the duration of one call, and never persisted.
type ExecutionContext struct {
	Source   TriggerSource
	UserID   *uuid.UUID
	Metadata map[string]any
}

// NewExecutionContext builds a context for the given trigger source.
func NewExecutionContext(source TriggerSource) ExecutionContext {
	return ExecutionContext{
		Source:   source,
		Metadata: make(map[string]any),
	}
}

// WithUser attaches the invoking user's id.
func (ec ExecutionContext) WithUser(userID uuid.UUID) ExecutionContext {
	ec.UserID = &userID
	return ec
}

// WithMeta attaches one metadata entry.
func (ec ExecutionContext) WithMeta(key string, value any) ExecutionContext {
	if ec.Metadata == nil {
		ec.Metadata = make(map[string]any)
	}
	ec.Metadata[key] = value
	return ec
}
