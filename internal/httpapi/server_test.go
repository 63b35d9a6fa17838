package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/document"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/lifecycle"
	"github.com/fyrsmithlabs/ragd/internal/ragerr"
)

type fakeIngestor struct {
	lastReq   ingest.Request
	result    *ingest.Result
	ingestErr error
	deleteErr error
	docs      []document.Metadata
	listErr   error
}

func (f *fakeIngestor) Ingest(_ context.Context, req ingest.Request) (*ingest.Result, error) {
	f.lastReq = req
	if f.ingestErr != nil {
		return nil, f.ingestErr
	}
	return f.result, nil
}

func (f *fakeIngestor) Delete(_ context.Context, _ string) error { return f.deleteErr }

func (f *fakeIngestor) List(_ context.Context, _ string) ([]document.Metadata, error) {
	return f.docs, f.listErr
}

type fakeAnswerer struct {
	answer string
	err    error
	query  string
	docID  string
	cred   string
}

func (f *fakeAnswerer) Answer(_ context.Context, query, documentID, credential string) (string, error) {
	f.query, f.docID, f.cred = query, documentID, credential
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type fakeSweeper struct {
	report *lifecycle.Report
	err    error
}

func (f *fakeSweeper) Sweep(context.Context) (*lifecycle.Report, error) {
	return f.report, f.err
}

func newTestServer(t *testing.T, ing *fakeIngestor, ans *fakeAnswerer, sw *fakeSweeper) *Server {
	t.Helper()
	if ing == nil {
		ing = &fakeIngestor{result: &ingest.Result{DocumentID: "doc-1", ChunkCount: 1}}
	}
	if ans == nil {
		ans = &fakeAnswerer{answer: "ok"}
	}
	if sw == nil {
		sw = &fakeSweeper{report: &lifecycle.Report{}}
	}
	srv, err := NewServer(ing, ans, sw, zap.NewNop(), &Config{Host: "localhost", Port: 0})
	require.NoError(t, err)
	return srv
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestIngestURL(t *testing.T) {
	ing := &fakeIngestor{result: &ingest.Result{DocumentID: "doc-1", ChunkCount: 4}}
	srv := newTestServer(t, ing, nil, nil)

	body := strings.NewReader(`{"url":"https://example.com/page"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set(echo.HeaderContentType, "application/json")
	req.Header.Set(headerAPIKey, "key-1")
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "https://example.com/page", ing.lastReq.Source)
	assert.Equal(t, document.SourceURL, ing.lastReq.Type)
	assert.Equal(t, "key-1", ing.lastReq.Credential)

	var resp IngestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "doc-1", resp.DocumentID)
	assert.Equal(t, 4, resp.ChunkCount)
}

func TestIngestDuplicateReturnsOK(t *testing.T) {
	ing := &fakeIngestor{result: &ingest.Result{DocumentID: "doc-1", Duplicate: true}}
	srv := newTestServer(t, ing, nil, nil)

	body := strings.NewReader(`{"url":"https://example.com/page"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set(echo.HeaderContentType, "application/json")
	req.Header.Set(headerAPIKey, "key-1")
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIngestMultipart(t *testing.T) {
	ing := &fakeIngestor{result: &ingest.Result{DocumentID: "doc-2", ChunkCount: 2}}
	srv := newTestServer(t, ing, nil, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "report.pdf")
	require.NoError(t, err)
	_, err = fw.Write([]byte("%PDF-1.4 fake"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &buf)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	req.Header.Set(headerAPIKey, "key-1")
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, document.SourcePDF, ing.lastReq.Type)
	assert.Equal(t, "report.pdf", ing.lastReq.OriginalName)
	assert.True(t, ing.lastReq.RemoveSource)
	assert.NotEmpty(t, ing.lastReq.Source)
}

func TestIngestMissingBody(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, "application/json")
	req.Header.Set(headerAPIKey, "key-1")
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(ragerr.CodeInvalidURL), body.Error.Code)
}

func TestErrorEnvelope(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing credential",
			err:        ragerr.New(ragerr.CodeAPIKeyMissing, "caller credential is required"),
			wantStatus: http.StatusUnauthorized,
			wantCode:   "API_KEY_MISSING",
		},
		{
			name:       "embedding failure",
			err:        ragerr.Wrap(ragerr.CodeEmbeddingFailed, "embedding query", fmt.Errorf("x")),
			wantStatus: http.StatusBadGateway,
			wantCode:   "EMBEDDING_FAILED",
		},
		{
			name:       "unclassified",
			err:        fmt.Errorf("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &fakeIngestor{ingestErr: tt.err}, nil, nil)

			body := strings.NewReader(`{"url":"https://example.com"}`)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
			req.Header.Set(echo.HeaderContentType, "application/json")
			rec := httptest.NewRecorder()
			srv.echo.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var envelope ErrorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
			assert.Equal(t, tt.wantCode, envelope.Error.Code)
			assert.Empty(t, envelope.Error.Cause)
		})
	}
}

func TestErrorCauseInDevMode(t *testing.T) {
	ing := &fakeIngestor{ingestErr: ragerr.Wrap(ragerr.CodeStoreError, "persisting", fmt.Errorf("connection refused"))}
	srv, err := NewServer(ing, &fakeAnswerer{}, &fakeSweeper{}, zap.NewNop(), &Config{DevMode: true})
	require.NoError(t, err)

	body := strings.NewReader(`{"url":"https://example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set(echo.HeaderContentType, "application/json")
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	var envelope ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Contains(t, envelope.Error.Cause, "connection refused")
}

func TestQuery(t *testing.T) {
	ans := &fakeAnswerer{answer: "the topic is alpha"}
	srv := newTestServer(t, nil, ans, nil)

	body := strings.NewReader(`{"query":"what is the topic?"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/doc-1/query", body)
	req.Header.Set(echo.HeaderContentType, "application/json")
	req.Header.Set(headerAPIKey, "key-1")
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "what is the topic?", ans.query)
	assert.Equal(t, "doc-1", ans.docID)
	assert.Equal(t, "key-1", ans.cred)

	var resp QueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "the topic is alpha", resp.Answer)
}

func TestQueryNoContext(t *testing.T) {
	ans := &fakeAnswerer{err: ragerr.New(ragerr.CodeNoContextFound, "no chunks")}
	srv := newTestServer(t, nil, ans, nil)

	body := strings.NewReader(`{"query":"q"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/doc-1/query", body)
	req.Header.Set(echo.HeaderContentType, "application/json")
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQueryMissingField(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/doc-1/query", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, "application/json")
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(ragerr.CodeInvalidRequest), body.Error.Code)
	assert.Equal(t, "query field is required", body.Error.Message)
}

func TestDelete(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/documents/doc-1", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestDeleteNotFound(t *testing.T) {
	ing := &fakeIngestor{deleteErr: ragerr.New(ragerr.CodeNotFound, "document doc-x not found")}
	srv := newTestServer(t, ing, nil, nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/documents/doc-x", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestList(t *testing.T) {
	now := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	ing := &fakeIngestor{docs: []document.Metadata{
		{
			DocumentID:     "doc-1",
			OriginalName:   "report.pdf",
			SourceType:     document.SourcePDF,
			UploadedAt:     now,
			LastAccessedAt: now,
		},
	}}
	srv := newTestServer(t, ing, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)
	req.Header.Set(headerAPIKey, "key-1")
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp ListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Documents, 1)
	assert.Equal(t, "report.pdf", resp.Documents[0].OriginalName)
	assert.Equal(t, "pdf", resp.Documents[0].SourceType)
}

func TestSweepEndpoint(t *testing.T) {
	sw := &fakeSweeper{report: &lifecycle.Report{Evicted: 2, EvictedIDs: []string{"a", "b"}}}
	srv := newTestServer(t, nil, nil, sw)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/sweep", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var report lifecycle.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 2, report.Evicted)
}
