package indexer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkContentProducesOverlappingWindows(t *testing.T) {
	content := strings.Repeat("a", 2500)
	chunks := chunkContent(content, 2000, 200)

	require.Len(t, chunks, 2)
	assert.Equal(t, 2000, len([]rune(chunks[0].Content)))
	assert.Equal(t, 700, len([]rune(chunks[1].Content)))
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 1, chunks[1].Index)
}

func TestChunkContentDiscardsEmptyChunks(t *testing.T) {
	// One full stride (1800) of real content, then 400 chars of pure
	// whitespace: the second overlapping window falls entirely inside
	// the whitespace tail and must be discarded.
	content := strings.Repeat("x", 1800) + strings.Repeat(" ", 400)
	chunks := chunkContent(content, 2000, 200)

	require.Len(t, chunks, 1)
}

func TestChunkContentEmptyInputReturnsNoChunks(t *testing.T) {
	assert.Empty(t, chunkContent("", 2000, 200))
	assert.Empty(t, chunkContent("   \n\t  ", 2000, 200))
}

func TestChunkContentFallsBackToDefaultsOnInvalidSizing(t *testing.T) {
	content := strings.Repeat("a", 100)
	chunks := chunkContent(content, 0, -5)
	require.Len(t, chunks, 1)
	assert.Equal(t, content, chunks[0].Content)
}
