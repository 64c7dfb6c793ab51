package embedder

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrimForQueryLeavesShortTextUnchanged(t *testing.T) {
	assert.Equal(t, "short text", TrimForQuery("short text"))
}

func TestTrimForQueryTruncatesLongText(t *testing.T) {
	long := strings.Repeat("a", MaxQueryChars+500)
	trimmed := TrimForQuery(long)
	assert.Len(t, []rune(trimmed), MaxQueryChars)
}
