// Package chunker splits extracted document text into fixed-size overlapping
// windows. Chunking is deterministic: the same text and configuration always
// produce the same pieces, so chunk identifiers stay stable across re-ingests.
package chunker

import (
	"errors"
	"fmt"
	"strings"
)

// Defaults tuned for contract prose: large enough to hold a full clause,
// with enough overlap that a clause straddling a boundary still appears
// whole in one of the two windows.
const (
	DefaultSize    = 900
	DefaultOverlap = 120
)

// ErrInvalidConfig is returned when the size/overlap pair cannot produce a
// terminating sequence of windows.
var ErrInvalidConfig = errors.New("chunker: overlap must be non-negative and smaller than size")

// Piece is one window of the input text with its byte offsets.
type Piece struct {
	// Text is the window's content.
	Text string

	// Index is the zero-based position of this piece in the sequence.
	Index int

	// Start and End are byte offsets within the input text ([Start, End)).
	Start int
	End   int
}

// Chunker produces overlapping fixed-size windows over text.
type Chunker struct {
	size    int
	overlap int
}

// New constructs a Chunker. size is the window length in bytes and overlap
// the number of bytes shared between consecutive windows; overlap must be
// smaller than size or the window sequence would never advance.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidConfig, size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Split divides text into windows of up to size bytes, each starting
// size-overlap bytes after the previous one. Every byte of the input falls
// in at least one window; the final window may be shorter. Whitespace-only
// input yields no pieces.
func (c *Chunker) Split(text string) []Piece {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	stride := c.size - c.overlap
	var pieces []Piece
	for start := 0; start < len(text); start += stride {
		end := start + c.size
		if end > len(text) {
			end = len(text)
		}
		pieces = append(pieces, Piece{
			Text:  text[start:end],
			Index: len(pieces),
			Start: start,
			End:   end,
		})
		if end == len(text) {
			break
		}
	}
	return pieces
}

// Size returns the configured window length.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured window overlap.
func (c *Chunker) Overlap() int { return c.overlap }
