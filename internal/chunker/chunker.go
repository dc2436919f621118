package chunker

import (
	"strings"
)

const (
	DefaultMaxTokens = 400
	DefaultOverlap   = 80
)

// Options controls how text is chunked.
type Options struct {
	MaxTokens int
	Overlap   int
	// Page is stamped on every chunk; 0 for sources without pages.
	Page int
}

// Chunk represents a slice of the document text.
type Chunk struct {
	Index      int
	Page       int
	Text       string
	TokenCount int
}

// ChunkText performs a word-window split with overlap.
// Tokens are approximated by whitespace-delimited words.
func ChunkText(text string, opts Options) []Chunk {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.Overlap < 0 || opts.Overlap >= opts.MaxTokens {
		opts.Overlap = 0
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	step := opts.MaxTokens - opts.Overlap
	chunks := make([]Chunk, 0, len(words)/step+1)
	for start := 0; start < len(words); start += step {
		end := min(start+opts.MaxTokens, len(words))
		chunks = append(chunks, Chunk{
			Index:      len(chunks),
			Page:       opts.Page,
			Text:       strings.Join(words[start:end], " "),
			TokenCount: end - start,
		})
		if end == len(words) {
			break
		}
	}
	return chunks
}
