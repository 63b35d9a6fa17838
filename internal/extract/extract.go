// Package extract loads document text from local PDF files and web pages.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/tmc/langchaingo/documentloaders"
	"go.uber.org/zap"
)

var (
	// ErrFileNotFound indicates a missing local source file.
	ErrFileNotFound = errors.New("source file not found")

	// ErrFetchFailed indicates a URL fetch failure.
	ErrFetchFailed = errors.New("failed to fetch url")

	// ErrParseFailed indicates content that could not be parsed into text.
	ErrParseFailed = errors.New("failed to parse content")
)

// maxFetchBytes caps the response body read for URL sources.
const maxFetchBytes = 10 * 1024 * 1024

// Loader extracts plain text from document sources.
type Loader struct {
	client  *http.Client
	logger  *zap.Logger
	timeout time.Duration
}

// NewLoader creates a content loader.
func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := 30 * time.Second
	return &Loader{
		client:  &http.Client{Timeout: timeout},
		logger:  logger.Named("extract"),
		timeout: timeout,
	}
}

// LoadPDF extracts the plain text of a local PDF file.
func (l *Loader) LoadPDF(_ context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: opening pdf: %v", ErrParseFailed, err)
	}
	defer f.Close()

	text, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: extracting pdf text: %v", ErrParseFailed, err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(text); err != nil {
		return "", fmt.Errorf("%w: reading pdf text: %v", ErrParseFailed, err)
	}

	l.logger.Debug("extracted pdf",
		zap.String("path", path),
		zap.Int("chars", buf.Len()))
	return buf.String(), nil
}

// LoadURL fetches a web page and strips its markup down to plain text.
func (l *Loader) LoadURL(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	req.Header.Set("User-Agent", "ragd/1.0")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d from %s", ErrFetchFailed, resp.StatusCode, url)
	}

	docs, err := documentloaders.NewHTML(io.LimitReader(resp.Body, maxFetchBytes)).Load(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: parsing html: %v", ErrParseFailed, err)
	}

	var buf strings.Builder
	for i, doc := range docs {
		if i > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(doc.PageContent)
	}

	text := buf.String()
	l.logger.Debug("extracted url",
		zap.String("url", url),
		zap.Int("chars", len(text)))
	return text, nil
}
