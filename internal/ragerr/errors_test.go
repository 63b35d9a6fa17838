package ragerr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "without cause",
			err:  New(CodeEmptyContent, "document produced no text"),
			want: "EMPTY_CONTENT: document produced no text",
		},
		{
			name: "with cause",
			err:  Wrap(CodeStoreError, "upsert failed", errors.New("connection refused")),
			want: "STORE_ERROR: upsert failed: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestUnwrapPreservesCause(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := Wrap(CodeStoreError, "search failed", cause)

	require.ErrorIs(t, err, cause)
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("ingesting: %w", Wrap(CodeEmbeddingFailed, "batch 2 failed", errors.New("429")))

	assert.True(t, errors.Is(err, New(CodeEmbeddingFailed, "")))
	assert.False(t, errors.Is(err, New(CodeStoreError, "")))
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{
			name: "direct",
			err:  New(CodeInvalidURL, "bad scheme"),
			want: CodeInvalidURL,
		},
		{
			name: "wrapped",
			err:  fmt.Errorf("handling request: %w", New(CodeNotFound, "no such document")),
			want: CodeNotFound,
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
			want: CodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeAPIKeyMissing, http.StatusUnauthorized},
		{CodeUnsupportedType, http.StatusBadRequest},
		{CodeInvalidURL, http.StatusBadRequest},
		{CodeInvalidRequest, http.StatusBadRequest},
		{CodeFileNotFound, http.StatusBadRequest},
		{CodeEmptyContent, http.StatusBadRequest},
		{CodeNotFound, http.StatusNotFound},
		{CodeNoContextFound, http.StatusNotFound},
		{CodeEmbeddingFailed, http.StatusBadGateway},
		{CodeStoreError, http.StatusBadGateway},
		{CodeInternal, http.StatusInternalServerError},
		{Code("SOMETHING_ELSE"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.code))
		})
	}
}
