// Package errors defines the failure taxonomy shared by the services: input
// that cannot be applied (ValidationError) and a store that refused or failed
// a write (StorageError).
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
)

type ValidationError struct {
	Message string
	NodeID  string
	ItemID  *int64
	Field   string
}

func NewValidationError(msg string) *ValidationError {
	return &ValidationError{Message: msg}
}

func NewValidationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	path := []string{}
	if e.NodeID != "" {
		path = append(path, fmt.Sprintf("node '%s'", e.NodeID))
	}
	if e.ItemID != nil {
		path = append(path, fmt.Sprintf("mock data %d", *e.ItemID))
	}
	if e.Field != "" {
		path = append(path, fmt.Sprintf("field '%s'", e.Field))
	}

	if len(path) == 0 {
		return e.Message
	}

	return strings.Join(path, " -> ") + ": " + e.Message
}

func (e *ValidationError) AddNode(nodeID string) *ValidationError {
	e.NodeID = nodeID
	return e
}

func (e *ValidationError) AddItem(id int64) *ValidationError {
	e.ItemID = &id
	return e
}

func (e *ValidationError) AddField(field string) *ValidationError {
	e.Field = field
	return e
}

func (e *ValidationError) ToHTTPError() *httperror.HTTPError {
	herr := httperror.NewHTTPError(http.StatusBadRequest, e.Error())
	if e.NodeID != "" {
		herr = herr.AddMetaValue("node_id", e.NodeID)
	}
	if e.ItemID != nil {
		herr = herr.AddMetaValue("mock_data_id", *e.ItemID)
	}
	if e.Field != "" {
		herr = herr.AddMetaValue("field", e.Field)
	}
	return herr
}

// StorageError reports a failed read or write. Op names the phase that failed
// (for example "bulk_update"); the cause is kept for errors.Is / errors.As but
// is not exposed to callers over HTTP.
type StorageError struct {
	Op    string
	Cause error
}

func NewStorageError(op string, cause error) *StorageError {
	return &StorageError{Op: op, Cause: cause}
}

func (e *StorageError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("storage %s failed", e.Op)
	}
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Cause)
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}

func (e *StorageError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to %s", strings.ReplaceAll(e.Op, "_", " ")))
}

func IsValidationError(err error) bool {
	var v *ValidationError
	return stderrors.As(err, &v)
}

func IsStorageError(err error) bool {
	var s *StorageError
	return stderrors.As(err, &s)
}

// ToHTTPError maps the taxonomy onto HTTP errors. Errors that are already
// HTTP errors pass through; anything else becomes a 500.
func ToHTTPError(err error) error {
	if err == nil {
		return nil
	}

	var v *ValidationError
	if stderrors.As(err, &v) {
		return v.ToHTTPError()
	}

	var s *StorageError
	if stderrors.As(err, &s) {
		return s.ToHTTPError()
	}

	if httperror.IsHTTPError(err) {
		return err
	}

	return httperror.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
