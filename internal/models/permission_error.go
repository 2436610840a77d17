package models

import (
	"errors"
	"fmt"
)

// ErrPermissionDenied is returned by the document store when access rules reject
// an operation. PermissionError matches it with errors.Is.
var ErrPermissionDenied = errors.New("permission denied")

// ErrNotFound indicates a record does not exist.
var ErrNotFound = errors.New("record not found")

// Operation is the kind of store access that was denied.
type Operation string

const (
	OpReadOne  Operation = "read-one"
	OpReadMany Operation = "read-many"
	OpCreate   Operation = "create"
	OpUpdate   Operation = "update"
	OpDelete   Operation = "delete"
	OpWrite    Operation = "write"
)

// PermissionError describes a denied store operation. It is never mutated after
// construction.
type PermissionError struct {
	path           string
	operation      Operation
	requestPayload map[string]any
}

// PermissionContext is the serializable form of a PermissionError.
type PermissionContext struct {
	Message        string         `json:"message"`
	Path           string         `json:"path"`
	Operation      Operation      `json:"operation"`
	RequestPayload map[string]any `json:"requestPayload,omitempty"`
}

func NewPermissionError(path string, op Operation, payload map[string]any) *PermissionError {
	return &PermissionError{path: path, operation: op, requestPayload: payload}
}

func (e *PermissionError) Path() string { return e.path }

func (e *PermissionError) Operation() Operation { return e.operation }

// RequestPayload is the attempted write, nil for reads.
func (e *PermissionError) RequestPayload() map[string]any { return e.requestPayload }

func (e *PermissionError) Error() string {
	return fmt.Sprintf("insufficient permissions for %s on %s", e.operation, e.path)
}

// Is lets errors.Is(err, ErrPermissionDenied) match.
func (e *PermissionError) Is(target error) bool {
	return target == ErrPermissionDenied
}

// Context returns the serializable description sent to clients.
func (e *PermissionError) Context() PermissionContext {
	return PermissionContext{
		Message:        e.Error(),
		Path:           e.path,
		Operation:      e.operation,
		RequestPayload: e.requestPayload,
	}
}
