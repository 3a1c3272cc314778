// Package fserr defines the error kinds returned by the file management core.
//
// Operations wrap one of the sentinel errors below with context, so callers
// classify failures with errors.Is. Errors that wrap none of them are plain
// I/O failures and must be reported as such.
package fserr

import (
	"errors"
	"net/http"
)

var (
	// ErrUnknownFolderType is returned when a folder type keyword has no configured root.
	ErrUnknownFolderType = errors.New("unknown folder type")

	// ErrPathTraversal is returned when a decoded path contains a parent
	// reference or resolves outside its root.
	ErrPathTraversal = errors.New("path traversal rejected")

	// ErrNotFound is returned when the target path does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotADirectory is returned when a directory was required but the target is a file.
	ErrNotADirectory = errors.New("not a directory")

	// ErrIsADirectory is returned when a file was required but the target is a directory.
	ErrIsADirectory = errors.New("is a directory")

	// ErrValidation is returned for missing or malformed request fields.
	ErrValidation = errors.New("invalid request")

	// ErrConflict is returned when a rename target already exists.
	ErrConflict = errors.New("already exists")
)

// HTTPStatus maps an error onto the status code the API reports for it.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrNotADirectory),
		errors.Is(err, ErrIsADirectory),
		errors.Is(err, ErrUnknownFolderType):
		return http.StatusNotFound
	case errors.Is(err, ErrPathTraversal), errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Reason returns a short metric label for err.
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnknownFolderType):
		return "unknown_folder_type"
	case errors.Is(err, ErrPathTraversal):
		return "traversal"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNotADirectory):
		return "not_a_directory"
	case errors.Is(err, ErrIsADirectory):
		return "is_a_directory"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "io"
	}
}
