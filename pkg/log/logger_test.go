package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestSecurityEvent(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(&Config{Level: "info"}, &buf)
	l.Security(context.Background(), "cross-session delete attempt", "document_id", "d1")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "security", rec["log_type"])
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "d1", rec["document_id"])
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(&Config{Format: "text"}, &buf)
	l.Component("chunker").Info("hello")
	assert.Contains(t, buf.String(), "component=chunker")
}
