package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel(""))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}

func TestLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelWarn, false)

	log.Info("SYSTEM", "hidden")
	log.Warn("SYSTEM", "shown")
	log.LogPayment("SETTLE", "pay-1", "hidden too")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] [SYSTEM] shown")
}

func TestLoggerCategoryFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelDebug, false)

	log.LogPayment("SETTLE", "pay-1", "payment settled")
	log.LogSession("OPEN", "sess-1", "session opened")

	assert.Contains(t, buf.String(), "[PAYMENT] [SETTLE] pay-1: payment settled")
	assert.Contains(t, buf.String(), "[SESSION] [OPEN] sess-1: session opened")
}

func TestFatalCallsExit(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelInfo, false)
	code := -1
	log.exit = func(c int) { code = c }

	log.Fatal("STARTUP", "boom")

	assert.Equal(t, 1, code)
	assert.Contains(t, buf.String(), "[FATAL] [STARTUP] boom")
}
