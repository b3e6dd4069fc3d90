// Package chunker splits document text into fixed-size overlapping
// segments for embedding.
//
// The splitter is a pure function of its inputs: the same text and
// parameters always produce the same chunks, so re-ingesting a document
// is deterministic.
package chunker

import (
	"errors"
	"fmt"
)

// ErrInvalidChunking indicates the size/overlap combination is invalid.
// Check with errors.Is.
var ErrInvalidChunking = errors.New("invalid chunking parameters")

// Split walks text in a sliding window of length size, advancing by
// size-overlap each step. A window is emitted if it is longer than the
// overlap, or if it is the first window, which guarantees at least one
// chunk for any non-empty input, however short.
//
// Consecutive chunks share exactly overlap characters, except possibly
// the final chunk, which may be shorter than size.
//
// Preconditions: size > 0 and 0 <= overlap < size. Violations return
// ErrInvalidChunking.
func Split(text string, size, overlap int) ([]string, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", ErrInvalidChunking, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap must be in [0, size), got overlap=%d size=%d", ErrInvalidChunking, overlap, size)
	}

	if text == "" {
		return nil, nil
	}

	// Walk runes, not bytes: a byte window could split a multi-byte
	// character and emit invalid UTF-8.
	runes := []rune(text)

	var chunks []string
	for start := 0; start < len(runes); start += size - overlap {
		end := min(start+size, len(runes))
		chunk := runes[start:end]

		// Drop trailing slivers that are fully contained in the
		// previous chunk's overlap region.
		if len(chunk) > overlap || start == 0 {
			chunks = append(chunks, string(chunk))
		}
	}

	return chunks, nil
}
