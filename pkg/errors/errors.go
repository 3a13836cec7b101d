package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies failures so callers can decide between retrying, buffering and surfacing.
type Kind string

const (
	KindSchemaRejection    Kind = "SCHEMA_REJECTION"
	KindNetworkUnavailable Kind = "NETWORK_UNAVAILABLE"
	KindValidation         Kind = "VALIDATION_FAILURE"
	KindUniqueConflict     Kind = "UNIQUE_CONSTRAINT_CONFLICT"
	KindNotFound           Kind = "NOT_FOUND"
	KindInvalidTransition  Kind = "INVALID_TRANSITION"
	KindUnauthorized       Kind = "UNAUTHORIZED"
	KindInternal           Kind = "INTERNAL_ERROR"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Kind    Kind   `json:"-"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors of the same kind and code so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// New creates a new Error instance.
func New(kind Kind, status int, message string) *Error {
	return &Error{Code: string(kind), Kind: kind, Status: status, Message: message}
}

// Wrap attaches context to an existing error, keeping the kind of the template.
func Wrap(err error, template *Error, message string) *Error {
	clone := Clone(template, message)
	clone.Err = err
	return clone
}

var (
	ErrSchemaRejection    = New(KindSchemaRejection, http.StatusUnprocessableEntity, "remote schema rejected the record")
	ErrNetworkUnavailable = New(KindNetworkUnavailable, http.StatusServiceUnavailable, "remote store unreachable")
	ErrValidation         = New(KindValidation, http.StatusBadRequest, "validation failed")
	ErrConflict           = New(KindUniqueConflict, http.StatusConflict, "already exists")
	ErrNotFound           = New(KindNotFound, http.StatusNotFound, "resource not found")
	ErrInvalidTransition  = New(KindInvalidTransition, http.StatusConflict, "invalid status transition")
	ErrUnauthorized       = New(KindUnauthorized, http.StatusUnauthorized, "unauthorized")
	ErrInternal           = New(KindInternal, http.StatusInternalServerError, "internal server error")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// KindOf reports the kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Kind != "" {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// RemoteError mirrors the error object returned by a remote store or API.
// Fields are optional; HumanMessage picks the first meaningful one.
type RemoteError struct {
	Message string `json:"message,omitempty"`
	Hint    string `json:"hint,omitempty"`
	Details string `json:"details,omitempty"`
	Code    string `json:"code,omitempty"`
}

// Error implements error.
func (r *RemoteError) Error() string {
	return HumanMessage(r)
}

// HumanMessage derives a single user-facing message from a remote failure.
// Priority: message, hint, details, "Error <code>", then a JSON dump of the object.
func HumanMessage(err error) string {
	if err == nil {
		return ""
	}
	var remote *RemoteError
	if errors.As(err, &remote) && remote != nil {
		switch {
		case strings.TrimSpace(remote.Message) != "":
			return remote.Message
		case strings.TrimSpace(remote.Hint) != "":
			return remote.Hint
		case strings.TrimSpace(remote.Details) != "":
			return remote.Details
		case strings.TrimSpace(remote.Code) != "":
			return "Error " + remote.Code
		}
		raw, _ := json.Marshal(remote)
		return string(raw)
	}
	var typed *Error
	if errors.As(err, &typed) && typed.Message != "" {
		return typed.Message
	}
	return err.Error()
}
