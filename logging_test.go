package taskloop

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoOpLogger_DiscardsEverything(t *testing.T) {
	l := NewNoOpLogger()
	assert.False(t, l.IsEnabled(LevelDebug))
	assert.False(t, l.IsEnabled(LevelError))
	l.Log(LogEntry{Level: LevelError, Message: "should be discarded"})
}

func TestWriterLogger_FiltersBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(LevelWarn, &buf)

	assert.False(t, l.IsEnabled(LevelInfo))
	assert.True(t, l.IsEnabled(LevelWarn))
	assert.True(t, l.IsEnabled(LevelError))

	l.Log(LogEntry{Level: LevelInfo, Message: "filtered out"})
	assert.Empty(t, buf.String())

	l.Log(LogEntry{Level: LevelWarn, Category: "poll", Message: "busy wait"})
	out := buf.String()
	assert.Contains(t, out, "WARN")
	assert.Contains(t, out, "poll")
	assert.Contains(t, out, "busy wait")
}

func TestWriterLogger_IncludesTaskIDAndError(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(LevelDebug, &buf)
	cause := errors.New("boom")

	l.Log(LogEntry{Level: LevelError, Category: "task", TaskID: 42, Message: "panicked", Err: cause})
	out := buf.String()
	assert.True(t, strings.Contains(out, "task=42"))
	assert.True(t, strings.Contains(out, "err=boom"))
}

func TestLogLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Contains(t, LogLevel(99).String(), "UNKNOWN")
}

func TestNewDefaultLogger_IsWriterLoggerAtGivenLevel(t *testing.T) {
	l := NewDefaultLogger(LevelWarn)
	assert.False(t, l.IsEnabled(LevelInfo))
	assert.True(t, l.IsEnabled(LevelWarn))
}
