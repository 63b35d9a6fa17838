package vectorstore

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestQdrantConfigDefaults(t *testing.T) {
	cfg := QdrantConfig{}
	cfg.ApplyDefaults()

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 6334, cfg.Port)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.RetryBackoff)
	assert.Equal(t, 15*time.Second, cfg.Timeout)
	assert.Equal(t, 50*1024*1024, cfg.MaxMessageSize)
}

func TestQdrantConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     QdrantConfig
		wantErr bool
	}{
		{name: "valid", cfg: QdrantConfig{Host: "localhost", Port: 6334}},
		{name: "missing host", cfg: QdrantConfig{Port: 6334}, wantErr: true},
		{name: "zero port", cfg: QdrantConfig{Host: "localhost"}, wantErr: true},
		{name: "port out of range", cfg: QdrantConfig{Host: "localhost", Port: 70000}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestValidateCollectionName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "valid", input: "rag_chunks"},
		{name: "valid with digits", input: "rag_chunks_v2"},
		{name: "empty", input: "", wantErr: true},
		{name: "uppercase", input: "RagChunks", wantErr: true},
		{name: "path traversal", input: "../etc", wantErr: true},
		{name: "spaces", input: "rag chunks", wantErr: true},
		{name: "too long", input: string(make([]byte, 65)), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCollectionName(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidCollectionName)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "unavailable", err: status.Error(grpccodes.Unavailable, "down"), want: true},
		{name: "deadline exceeded", err: status.Error(grpccodes.DeadlineExceeded, "slow"), want: true},
		{name: "aborted", err: status.Error(grpccodes.Aborted, "conflict"), want: true},
		{name: "resource exhausted", err: status.Error(grpccodes.ResourceExhausted, "quota"), want: true},
		{name: "invalid argument", err: status.Error(grpccodes.InvalidArgument, "bad filter"), want: false},
		{name: "not found", err: status.Error(grpccodes.NotFound, "missing"), want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransientError(tt.err))
		})
	}
}

func TestFilterRejectionClassification(t *testing.T) {
	assert.True(t, isFilterRejected(status.Error(grpccodes.InvalidArgument, "unsupported filter")))
	assert.False(t, isFilterRejected(status.Error(grpccodes.Unavailable, "down")))
	assert.False(t, isFilterRejected(errors.New("boom")))

	assert.True(t, isAlreadyExists(status.Error(grpccodes.AlreadyExists, "collection exists")))
	assert.True(t, isNotFound(status.Error(grpccodes.NotFound, "no collection")))
}
