package indexer

import "strings"

const (
	defaultChunkSizeChars    = 2000
	defaultChunkOverlapChars = 200
)

// rawChunk is one windowed slice of a file's content before redaction
// and embedding.
type rawChunk struct {
	Index   int
	Content string
}

// chunkContent splits content into fixed-size, overlapping windows.
// Empty and whitespace-only windows are discarded and do not consume a
// chunk index, so ChunkIndex values stay dense.
func chunkContent(content string, size, overlap int) []rawChunk {
	if size <= 0 {
		size = defaultChunkSizeChars
	}
	if overlap < 0 || overlap >= size {
		overlap = defaultChunkOverlapChars
	}

	runes := []rune(content)
	if len(runes) == 0 {
		return nil
	}

	var chunks []rawChunk
	stride := size - overlap
	for start := 0; start < len(runes); start += stride {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		text := string(runes[start:end])
		if strings.TrimSpace(text) != "" {
			chunks = append(chunks, rawChunk{Index: len(chunks), Content: text})
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}
