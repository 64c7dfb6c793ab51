package logging

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithTraceOmitsEmptyFields(t *testing.T) {
	f := WithTrace("", "")
	assert.Empty(t, f)

	f = WithTrace("trace-1", "task-1")
	assert.Equal(t, "trace-1", f["trace_id"])
	assert.Equal(t, "task-1", f["task_id"])
}

func TestTruncateLeavesShortStringsAlone(t *testing.T) {
	s := "short diff body"
	assert.Equal(t, s, Truncate(s))
}

func TestTruncateShortensLongStrings(t *testing.T) {
	s := strings.Repeat("a", MaxLoggedPayloadLength+50)
	truncated := Truncate(s)
	assert.Less(t, len(truncated), len(s))
	assert.Contains(t, truncated, "truncated")
}

func TestStdLoggerSuppressesBelowConfiguredLevel(t *testing.T) {
	l := New(LevelError, FormatHuman)
	// Debug/Info below LevelError are no-ops; this exercises the level
	// gate without requiring log output capture.
	l.Debug("should be suppressed", nil)
	l.Info("should be suppressed", nil)
	l.Error("visible", nil, WithTrace("t1", "k1"))
}
