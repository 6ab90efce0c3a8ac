package log

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func capture(t *testing.T, level Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(level)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(LevelInfo)
	})
	return &buf
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t, LevelWarn)
	Debug("hidden")
	Info("hidden too")
	Warn("shown", "id", "event-1")
	Error("failed", errors.New("boom"), "key", "calendar events")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown id=event-1")
	assert.Contains(t, out, `[ERROR] failed err=boom key="calendar events"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}

func TestOddKeyValuesIgnored(t *testing.T) {
	buf := capture(t, LevelDebug)
	Debug("pairs", "a", 1, "dangling")
	assert.Contains(t, buf.String(), "pairs a=1")
	assert.NotContains(t, buf.String(), "dangling")
}
