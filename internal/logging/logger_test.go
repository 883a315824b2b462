package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"minigolf/engine/internal/config"
)

func TestLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithSyncer(zapcore.AddSync(&buf), zapcore.InfoLevel).With(String("session", "abc"))
	logger.Debug("hidden")
	logger.Info("shot started", Float64("power", 0.5), Int("shot", 2))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &payload))
	assert.Equal(t, "shot started", payload["message"])
	assert.Equal(t, "info", payload["level"])
	assert.Equal(t, "abc", payload["session"])
	assert.Equal(t, 0.5, payload["power"])
	assert.Contains(t, payload, "timestamp")
}

func TestContextLoggerFallsBackToGlobal(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	previous := L()
	ReplaceGlobals(NewFromZap(zap.New(core)))
	t.Cleanup(func() { ReplaceGlobals(previous) })

	LoggerFromContext(context.Background()).Info("global")
	ctx, _, traceID := WithTrace(context.Background(), nil, "")
	LoggerFromContext(ctx).Info("traced")

	require.Equal(t, 2, logs.Len())
	entries := logs.All()
	assert.Equal(t, "global", entries[0].Message)
	assert.Equal(t, traceID, entries[1].ContextMap()[TraceIDField])
	assert.Equal(t, traceID, TraceIDFromContext(ctx))
	assert.Len(t, traceID, 32)
}

func TestHTTPTraceMiddlewarePropagatesHeader(t *testing.T) {
	var seen string
	handler := HTTPTraceMiddleware(NewTestLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceIDFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	req.Header.Set(TraceIDHeader, "trace-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "trace-123", seen)
	assert.Equal(t, "trace-123", rec.Header().Get(TraceIDHeader))
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "info"})
	assert.Error(t, err)
	_, err = New(config.LoggingConfig{Level: "loud", Path: filepath.Join(t.TempDir(), "x.log"), MaxSizeMB: 1})
	assert.Error(t, err)
}

func TestRotatingWriterRotatesAndPrunes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "golf.log")
	writer, err := newRotatingWriter(config.LoggingConfig{Path: path, MaxSizeMB: 1, MaxBackups: 2, Compress: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })

	//1.- Two chunks fit in a megabyte, so ten chunks force four rotations. Backup names
	// carry millisecond timestamps, so rotations must not share a millisecond.
	chunk := []byte(strings.Repeat("x", 400*1024-1) + "\n")
	for i := 0; i < 10; i++ {
		_, err := writer.Write(chunk)
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}

	//2.- Compression and pruning run in the background after each rotation.
	require.Eventually(t, func() bool {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return false
		}
		var backups int
		for _, entry := range entries {
			if entry.Name() == "golf.log" {
				continue
			}
			if !strings.HasSuffix(entry.Name(), ".gz") {
				return false
			}
			backups++
		}
		return backups == 2
	}, 5*time.Second, 20*time.Millisecond)
}

func TestRotatingWriterRejectsBadLimits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "golf.log")
	_, err := newRotatingWriter(config.LoggingConfig{Path: path, MaxSizeMB: 0})
	assert.Error(t, err)
	_, err = newRotatingWriter(config.LoggingConfig{Path: path, MaxSizeMB: 1, MaxBackups: -1})
	assert.Error(t, err)
}
