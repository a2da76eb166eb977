// Package respond centralizes JSON envelopes and the mapping from the error
// taxonomy to HTTP status codes.
package respond

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/autoflow-hq/core/pkg/models/api"
	"github.com/autoflow-hq/core/pkg/pipeline"
)

// JSON writes a success envelope.
func JSON(w http.ResponseWriter, status int, data interface{}, meta interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(api.Response{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

// Message writes a success envelope carrying only a message.
func Message(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(api.Response{
		Success: true,
		Message: message,
	})
}

// Error maps a domain error to a structured response. Unknown errors are
// reported as internal without leaking detail.
func Error(w http.ResponseWriter, err error) {
	kind := "internal"
	status := http.StatusInternalServerError
	message := "internal error"

	var (
		notFound   *pipeline.NotFoundError
		validation *pipeline.ValidationError
		duplicate  *pipeline.DuplicateNameError
	)
	switch {
	case errors.As(err, &notFound):
		kind = "not_found"
		status = http.StatusNotFound
		message = err.Error()
	case errors.As(err, &validation):
		kind = "validation"
		status = http.StatusBadRequest
		message = err.Error()
	case errors.As(err, &duplicate):
		kind = "duplicate_name"
		status = http.StatusConflict
		message = err.Error()
	}

	ErrorKind(w, status, kind, message)
}

// ErrorKind writes a structured error with an explicit kind.
func ErrorKind(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{
		Success: false,
		Error:   api.Error{Kind: kind, Message: message},
	})
}
