package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkTextOverlap(t *testing.T) {
	text := "one two three four five six seven eight nine ten"
	chunks := ChunkText(text, Options{MaxTokens: 4, Overlap: 1})

	require.Len(t, chunks, 3)
	assert.Equal(t, "one two three four", chunks[0].Text)
	assert.Equal(t, "four five six seven", chunks[1].Text)
	assert.Equal(t, "seven eight nine ten", chunks[2].Text)
	assert.Equal(t, 4, chunks[0].TokenCount)
}

func TestChunkTextEmptyInput(t *testing.T) {
	assert.Empty(t, ChunkText("", Options{MaxTokens: 10}))
	assert.Empty(t, ChunkText("  \n\t ", Options{MaxTokens: 10}))
}

func TestChunkTextNoOverlap(t *testing.T) {
	chunks := ChunkText("one two three four five six", Options{MaxTokens: 3})

	require.Len(t, chunks, 2)
	assert.Equal(t, "one two three", chunks[0].Text)
	assert.Equal(t, "four five six", chunks[1].Text)
	assert.Equal(t, 1, chunks[1].Index)
}

func TestChunkTextOverlapNotSmallerThanWindow(t *testing.T) {
	chunks := ChunkText("a b c d e", Options{MaxTokens: 2, Overlap: 2})

	require.Len(t, chunks, 3)
	assert.Equal(t, "e", chunks[2].Text)
}

func TestChunkTextStampsPage(t *testing.T) {
	chunks := ChunkText("alpha beta gamma", Options{MaxTokens: 2, Page: 7})

	require.Len(t, chunks, 2)
	for _, c := range chunks {
		assert.Equal(t, 7, c.Page)
	}
}

func TestChunkTextDefaults(t *testing.T) {
	text := "word " + strings.Repeat("test ", 500)
	chunks := ChunkText(text, Options{})

	require.Len(t, chunks, 2)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, chunk.TokenCount, DefaultMaxTokens)
	}
}
