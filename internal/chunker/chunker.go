// Package chunker splits document text into overlapping fixed-size windows.
package chunker

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig indicates invalid window parameters.
var ErrInvalidConfig = errors.New("invalid chunker configuration")

// Chunk is one window of document text.
type Chunk struct {
	// Index is the zero-based position within the document's chunk sequence.
	Index int

	// Text is the window content.
	Text string
}

// Chunker produces overlapping fixed-size windows from text.
//
// The window slides forward by windowSize-overlap runes each step, starting
// at offset 0, until the window start reaches the text length. Split is pure
// and safe for concurrent use.
type Chunker struct {
	windowSize int
	overlap    int
}

// New creates a Chunker. Overlap must be non-negative and strictly smaller
// than the window size.
func New(windowSize, overlap int) (*Chunker, error) {
	if windowSize <= 0 {
		return nil, fmt.Errorf("%w: window size must be positive, got %d", ErrInvalidConfig, windowSize)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: overlap must be non-negative, got %d", ErrInvalidConfig, overlap)
	}
	if overlap >= windowSize {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than window size %d", ErrInvalidConfig, overlap, windowSize)
	}
	return &Chunker{windowSize: windowSize, overlap: overlap}, nil
}

// Split returns the ordered chunk sequence for text. Empty input yields nil.
// Windows are measured in runes so multi-byte text never splits mid-character.
func (c *Chunker) Split(text string) []Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := c.windowSize - c.overlap
	var chunks []Chunk

	for start := 0; start < len(runes); start += step {
		end := start + c.windowSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Text:  string(runes[start:end]),
		})
	}

	return chunks
}
