package httpapi

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/document"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/ragerr"
)

// ErrorBody is the error envelope returned by every failing endpoint.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail identifies the failure.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	// Cause carries the underlying error text, only in dev mode.
	Cause string `json:"cause,omitempty"`
}

// writeError maps a service error onto the HTTP envelope.
func (s *Server) writeError(c echo.Context, err error) error {
	code := ragerr.CodeOf(err)
	status := ragerr.HTTPStatus(code)

	detail := ErrorDetail{Code: string(code)}
	var typed *ragerr.Error
	if errors.As(err, &typed) {
		detail.Message = typed.Message
	} else {
		detail.Message = "internal error"
	}
	if s.config.DevMode {
		detail.Cause = err.Error()
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("code", string(code)), zap.Error(err))
	} else {
		s.logger.Warn("request rejected", zap.String("code", string(code)), zap.Error(err))
	}
	return c.JSON(status, ErrorBody{Error: detail})
}

// IngestURLRequest is the JSON body for URL ingestion.
type IngestURLRequest struct {
	URL string `json:"url"`
}

// IngestResponse is the response body for POST /api/v1/documents.
type IngestResponse struct {
	DocumentID string `json:"document_id"`
	ChunkCount int    `json:"chunk_count"`
	Duplicate  bool   `json:"duplicate"`
}

// handleIngest accepts either a multipart upload (field "file", PDF) or a
// JSON body with a URL. Uploaded bytes are staged to a temp file that the
// ingestion pipeline removes when done.
func (s *Server) handleIngest(c echo.Context) error {
	credential := c.Request().Header.Get(headerAPIKey)

	req := ingest.Request{Credential: credential}

	if file, err := c.FormFile("file"); err == nil {
		staged, err := s.stageUpload(file)
		if err != nil {
			return s.writeError(c, ragerr.Wrap(ragerr.CodeInternal, "staging upload", err))
		}
		req.Source = staged
		req.Type = document.SourcePDF
		req.OriginalName = file.Filename
		req.RemoveSource = true
	} else {
		var body IngestURLRequest
		if err := c.Bind(&body); err != nil || body.URL == "" {
			return s.writeError(c, ragerr.New(ragerr.CodeInvalidURL,
				"request must carry a multipart 'file' or a JSON body with 'url'"))
		}
		req.Source = body.URL
		req.Type = document.SourceURL
		req.OriginalName = body.URL
	}

	result, err := s.ingestor.Ingest(c.Request().Context(), req)
	if err != nil {
		return s.writeError(c, err)
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	return c.JSON(status, IngestResponse{
		DocumentID: result.DocumentID,
		ChunkCount: result.ChunkCount,
		Duplicate:  result.Duplicate,
	})
}

// stageUpload copies multipart bytes to a temp file and returns its path.
func (s *Server) stageUpload(file *multipart.FileHeader) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.CreateTemp("", "ragd-upload-*"+filepath.Ext(file.Filename))
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

// QueryRequest is the JSON body for POST /api/v1/documents/:id/query.
type QueryRequest struct {
	Query string `json:"query"`
}

// QueryResponse is the response body for a query.
type QueryResponse struct {
	DocumentID string `json:"document_id"`
	Answer     string `json:"answer"`
}

func (s *Server) handleQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil || req.Query == "" {
		return s.writeError(c, ragerr.New(ragerr.CodeInvalidRequest, "query field is required"))
	}

	docID := c.Param("id")
	credential := c.Request().Header.Get(headerAPIKey)

	answer, err := s.answerer.Answer(c.Request().Context(), req.Query, docID, credential)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, QueryResponse{DocumentID: docID, Answer: answer})
}

func (s *Server) handleDelete(c echo.Context) error {
	if err := s.ingestor.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return s.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DocumentSummary is one entry in the listing response.
type DocumentSummary struct {
	DocumentID     string    `json:"document_id"`
	OriginalName   string    `json:"original_name"`
	SourceType     string    `json:"source_type"`
	UploadedAt     time.Time `json:"uploaded_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

// ListResponse is the response body for GET /api/v1/documents.
type ListResponse struct {
	Documents []DocumentSummary `json:"documents"`
}

func (s *Server) handleList(c echo.Context) error {
	credential := c.Request().Header.Get(headerAPIKey)

	docs, err := s.ingestor.List(c.Request().Context(), credential)
	if err != nil {
		return s.writeError(c, err)
	}

	out := make([]DocumentSummary, 0, len(docs))
	for _, d := range docs {
		out = append(out, DocumentSummary{
			DocumentID:     d.DocumentID,
			OriginalName:   d.OriginalName,
			SourceType:     string(d.SourceType),
			UploadedAt:     d.UploadedAt,
			LastAccessedAt: d.LastAccessedAt,
		})
	}
	return c.JSON(http.StatusOK, ListResponse{Documents: out})
}

func (s *Server) handleSweep(c echo.Context) error {
	report, err := s.sweeper.Sweep(c.Request().Context())
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}
