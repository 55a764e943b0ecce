package collect

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Error kinds rendered as the "type" tag on the wire.
const (
	KindMissingUploadFile  = "MissingUploadFileError"
	KindInvalidMediaFormat = "InvalidMediaFormatError"
	KindMissingParameter   = "MissingParameterError"
	KindPersistence        = "PersistenceError"
	KindUnexpected         = "UnexpectedError"
)

// Error is the failure value shared by every component of the ingestion
// pipeline. Both transports translate it into their wire shape through
// HTTPBody and EventBody so the payload fields can never drift.
type Error struct {
	Kind    string
	Message string
	Status  int
	cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Label returns the short human-readable error name for the wire payload.
func (e *Error) Label() string {
	switch e.Kind {
	case KindPersistence:
		return "Client Side Error"
	case KindUnexpected:
		return "Client Error"
	default:
		return http.StatusText(e.Status)
	}
}

// NewMissingUploadFile reports an absent file part or an empty filename.
func NewMissingUploadFile() *Error {
	return &Error{
		Kind:    KindMissingUploadFile,
		Message: "no file was uploaded",
		Status:  http.StatusBadRequest,
	}
}

// NewInvalidMediaFormat reports a file extension outside the allow-set.
func NewInvalidMediaFormat() *Error {
	return &Error{
		Kind:    KindInvalidMediaFormat,
		Message: "only PNG and JPG files are supported",
		Status:  http.StatusUnsupportedMediaType,
	}
}

// NewMissingParameter enumerates absent required fields in sorted order.
func NewMissingParameter(missing []string) *Error {
	names := append([]string(nil), missing...)
	sort.Strings(names)
	return &Error{
		Kind:    KindMissingParameter,
		Message: fmt.Sprintf("missing parameter(s): %s", strings.Join(names, ", ")),
		Status:  http.StatusBadRequest,
	}
}

// NewRequired reports a single absent field by name.
func NewRequired(field string) *Error {
	return &Error{
		Kind:    KindMissingParameter,
		Message: fmt.Sprintf("%s is required", field),
		Status:  http.StatusBadRequest,
	}
}

// NewPersistence wraps a storage failure. The boundary reports storage
// failures with client-error status rather than 5xx; see DESIGN.md.
func NewPersistence(cause error) *Error {
	return &Error{
		Kind:    KindPersistence,
		Message: cause.Error(),
		Status:  http.StatusBadRequest,
		cause:   cause,
	}
}

// NewUnexpected wraps any failure outside the taxonomy.
func NewUnexpected(cause error) *Error {
	return &Error{
		Kind:    KindUnexpected,
		Message: cause.Error(),
		Status:  http.StatusBadRequest,
		cause:   cause,
	}
}

// Normalize coerces any error into a taxonomy Error.
func Normalize(err error) *Error {
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	return NewUnexpected(err)
}

// HTTPBody renders an error as the HTTP JSON response body.
func HTTPBody(err error) map[string]any {
	typed := Normalize(err)
	return map[string]any{
		"error":       typed.Label(),
		"message":     typed.Message,
		"status_code": typed.Status,
	}
}

// EventBody renders an error as the payload of a stream "error" event.
func EventBody(err error) map[string]any {
	typed := Normalize(err)
	return map[string]any{
		"error":   typed.Label(),
		"message": typed.Message,
		"type":    typed.Kind,
		"status":  typed.Status,
	}
}
