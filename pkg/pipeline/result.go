package pipeline

import "fmt"

// Result is the outcome of one pipeline invocation. It is produced once and
// never mutated afterward.
type Result struct {
	Success  bool           `json:"success"`
	Output   map[string]any `json:"output,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Ok returns a successful result carrying the given output.
func Ok(output map[string]any) Result {
	return Result{Success: true, Output: output}
}

// Fail returns a failed result with the given error message.
func Fail(message string) Result {
	return Result{Success: false, Error: message}
}

// Failf returns a failed result with a formatted error message.
func Failf(format string, args ...any) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// WithMeta returns a copy of the result with one metadata entry added.
func (r Result) WithMeta(key string, value any) Result {
	meta := make(map[string]any, len(r.Metadata)+1)
	for k, v := range r.Metadata {
		meta[k] = v
	}
	meta[key] = value
	r.Metadata = meta
	return r
}

// RunID extracts the tracked run id from result metadata, if a run record was
// opened for this invocation.
func (r Result) RunID() (string, bool) {
	if r.Metadata == nil {
		return "", false
	}
	id, ok := r.Metadata["run_id"].(string)
	return id, ok
}
