// Package ragerr defines the error taxonomy shared across the service.
//
// Every error that crosses the service boundary carries a stable
// machine-readable code plus a human-readable message. Internal callers
// classify errors with CodeOf and errors.Is; the HTTP layer maps codes to
// status codes with HTTPStatus.
package ragerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable machine-readable error code.
type Code string

const (
	// CodeAPIKeyMissing indicates a missing or empty caller credential.
	CodeAPIKeyMissing Code = "API_KEY_MISSING"

	// CodeUnsupportedType indicates an unknown document source type.
	CodeUnsupportedType Code = "UNSUPPORTED_TYPE"

	// CodeInvalidURL indicates a malformed or non-HTTP source URL.
	CodeInvalidURL Code = "INVALID_URL"

	// CodeInvalidRequest indicates a malformed or incomplete request.
	CodeInvalidRequest Code = "INVALID_REQUEST"

	// CodeFileNotFound indicates a missing local source file.
	CodeFileNotFound Code = "FILE_NOT_FOUND"

	// CodeEmptyContent indicates extraction produced no chunkable text.
	CodeEmptyContent Code = "EMPTY_CONTENT"

	// CodeExtractionFailed indicates a content loader failure.
	CodeExtractionFailed Code = "EXTRACTION_FAILED"

	// CodeEmbeddingFailed indicates an embedding provider failure.
	CodeEmbeddingFailed Code = "EMBEDDING_FAILED"

	// CodeStoreError indicates a vector store failure.
	CodeStoreError Code = "STORE_ERROR"

	// CodeNotFound indicates an absent document or point.
	CodeNotFound Code = "NOT_FOUND"

	// CodeNoContextFound indicates retrieval returned zero chunks.
	CodeNoContextFound Code = "NO_CONTEXT_FOUND"

	// CodeGenerationFailed indicates a completion provider failure.
	CodeGenerationFailed Code = "GENERATION_FAILED"

	// CodeInternal is the fallback for unclassified errors.
	CodeInternal Code = "INTERNAL"
)

// Error is a classified error with an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	err     error
}

// New creates an Error without a cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an Error that preserves the original cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, err: err}
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.err
}

// Is matches two Errors by code, so sentinel comparison with errors.Is
// works regardless of message and cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// CodeOf extracts the code from err, or CodeInternal if err carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// HTTPStatus maps a code to the HTTP status returned at the boundary.
func HTTPStatus(code Code) int {
	switch code {
	case CodeAPIKeyMissing:
		return http.StatusUnauthorized
	case CodeUnsupportedType, CodeInvalidURL, CodeInvalidRequest, CodeFileNotFound, CodeEmptyContent:
		return http.StatusBadRequest
	case CodeNotFound, CodeNoContextFound:
		return http.StatusNotFound
	case CodeExtractionFailed, CodeEmbeddingFailed, CodeStoreError, CodeGenerationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
