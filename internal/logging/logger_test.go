package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bufferLogger(buf *bytes.Buffer) *Logger {
	return &Logger{Logger: slog.New(slog.NewJSONHandler(buf, nil))}
}

func TestNewLoggerLevels(t *testing.T) {
	logger := NewLogger(Config{Level: "warn", Format: "json"})
	ctx := context.Background()
	assert.True(t, logger.Enabled(ctx, slog.LevelWarn))
	assert.False(t, logger.Enabled(ctx, slog.LevelDebug))

	// Unknown levels fall back to info.
	fallback := NewLogger(Config{Level: "nonsense"})
	assert.True(t, fallback.Enabled(ctx, slog.LevelInfo))
	assert.False(t, fallback.Enabled(ctx, slog.LevelDebug))
}

func TestWithRequestIDAttachesField(t *testing.T) {
	var buf bytes.Buffer
	bufferLogger(&buf).WithRequestID("req-42").Info("hello")
	assert.Contains(t, buf.String(), `"request_id":"req-42"`)
}

func TestWithFieldsAttachesFields(t *testing.T) {
	var buf bytes.Buffer
	bufferLogger(&buf).WithFields(slog.String("root", "parents")).Info("hello")
	assert.Contains(t, buf.String(), `"root":"parents"`)
}

func TestLoggerContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	logger := bufferLogger(&buf)

	ctx := WithLogger(context.Background(), logger)
	assert.Equal(t, logger, FromContext(ctx))

	// Without a logger in context, a usable default is returned.
	require.NotNil(t, FromContext(context.Background()))
}

func TestRequestIDContextRoundTrip(t *testing.T) {
	ctx := WithRequestIDContext(context.Background(), "req-7")
	assert.Equal(t, "req-7", GetRequestID(ctx))
	assert.Equal(t, "", GetRequestID(context.Background()))
}
