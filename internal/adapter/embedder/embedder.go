// Package embedder implements the embedder port (C2): producing a
// fixed-dimension floating-point vector for a text chunk via an
// external embedding service. The knowledge store (C3) and constraint
// store (C4) both depend on this port and otherwise treat embeddings
// as opaque float arrays.
package embedder

import (
	"context"
	stderrors "errors"
)

// ErrDimensionMismatch is returned when a provider's response carries
// a vector of a different length than the embedder was configured for.
var ErrDimensionMismatch = stderrors.New("embedder: returned vector dimension does not match configured dimension")

// Embedder produces embeddings for one or more text chunks in a single
// round trip, batching where the provider allows it.
type Embedder interface {
	// Embed returns one vector per input text, in the same order.
	// A per-chunk failure inside a batch is reported in err; callers
	// (the indexer's Embed stage) skip and count the affected chunk
	// rather than failing the whole job.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions reports the fixed vector length this embedder produces.
	Dimensions() int
}

// MaxQueryChars bounds how much text is sent to the embedder for a
// single query embed (e.g. RAG retrieval, constraint matching), per
// spec.md's "trimmed to an embedder-safe length" guidance.
const MaxQueryChars = 2000

// TrimForQuery truncates text to MaxQueryChars runes, safe for use as
// an embedding query (as opposed to bulk chunk indexing, which sends
// full chunks).
func TrimForQuery(text string) string {
	runes := []rune(text)
	if len(runes) <= MaxQueryChars {
		return text
	}
	return string(runes[:MaxQueryChars])
}
