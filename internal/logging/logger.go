package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"minigolf/engine/internal/config"
)

// TraceIDHeader is the HTTP header used to propagate trace IDs.
const TraceIDHeader = "X-Trace-ID"

// TraceIDField is the structured logging field for trace identifiers.
const TraceIDField = "trace_id"

type contextKey string

var (
	loggerContextKey = contextKey("golf-logger")
	traceContextKey  = contextKey("golf-trace-id")

	globalMu     sync.RWMutex
	globalLogger = NewTestLogger()
)

// Field is a structured logging attribute.
type Field = zap.Field

// String returns a string field.
func String(key, value string) Field { return zap.String(key, value) }

// Strings returns a string slice field.
func Strings(key string, values []string) Field { return zap.Strings(key, values) }

// Int returns an int field.
func Int(key string, value int) Field { return zap.Int(key, value) }

// Int64 returns an int64 field.
func Int64(key string, value int64) Field { return zap.Int64(key, value) }

// Uint64 returns a uint64 field.
func Uint64(key string, value uint64) Field { return zap.Uint64(key, value) }

// Float64 returns a float64 field.
func Float64(key string, value float64) Field { return zap.Float64(key, value) }

// Bool returns a bool field.
func Bool(key string, value bool) Field { return zap.Bool(key, value) }

// Duration returns a duration field.
func Duration(key string, value time.Duration) Field { return zap.Duration(key, value) }

// Any returns a field for arbitrary values such as vectors.
func Any(key string, value any) Field { return zap.Any(key, value) }

// Error returns an error field.
func Error(err error) Field { return zap.Error(err) }

// Logger emits JSON structured logs.
type Logger struct {
	zl *zap.Logger
}

// New builds a logger writing JSON to a rotating file and to stdout, and installs it as
// the global fallback.
func New(cfg config.LoggingConfig) (*Logger, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("logging path must be specified")
	}
	level, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil {
		return nil, fmt.Errorf("unknown log level %q", cfg.Level)
	}
	file, err := newRotatingWriter(cfg)
	if err != nil {
		return nil, err
	}
	sink := zapcore.NewMultiWriteSyncer(zapcore.AddSync(file), zapcore.Lock(os.Stdout))
	logger := NewWithSyncer(sink, level).With(String("service", "golfsim"))
	ReplaceGlobals(logger)
	return logger, nil
}

// NewWithSyncer builds a JSON logger over an arbitrary sink.
func NewWithSyncer(sink zapcore.WriteSyncer, level zapcore.Level) *Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.MessageKey = "message"
	encoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), sink, level)
	return &Logger{zl: zap.New(core)}
}

// NewFromZap wraps an existing zap logger, which is how tests attach observers.
func NewFromZap(zl *zap.Logger) *Logger {
	if zl == nil {
		zl = zap.NewNop()
	}
	return &Logger{zl: zl}
}

// NewTestLogger returns a logger that discards output.
func NewTestLogger() *Logger {
	return &Logger{zl: zap.NewNop()}
}

// ReplaceGlobals swaps the fallback logger used when no context logger is present.
func ReplaceGlobals(logger *Logger) {
	if logger == nil {
		return
	}
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// L returns the current global logger.
func L() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// With returns a child logger carrying the extra fields.
func (l *Logger) With(fields ...Field) *Logger {
	if l == nil {
		return L().With(fields...)
	}
	return &Logger{zl: l.zl.With(fields...)}
}

// Zap exposes the underlying zap logger for libraries that accept one.
func (l *Logger) Zap() *zap.Logger {
	if l == nil {
		return L().zl
	}
	return l.zl
}

// Sync flushes buffered output.
func (l *Logger) Sync() error {
	if l == nil {
		return nil
	}
	return l.zl.Sync()
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, fields ...Field) { l.Zap().Debug(message, fields...) }

// Info logs an informational message.
func (l *Logger) Info(message string, fields ...Field) { l.Zap().Info(message, fields...) }

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields ...Field) { l.Zap().Warn(message, fields...) }

// Error logs an error message.
func (l *Logger) Error(message string, fields ...Field) { l.Zap().Error(message, fields...) }

// Fatal logs a fatal message and exits the process.
func (l *Logger) Fatal(message string, fields ...Field) { l.Zap().Fatal(message, fields...) }

// ContextWithLogger stores a logger in the provided context.
func ContextWithLogger(ctx context.Context, logger *Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerContextKey, logger)
}

// LoggerFromContext retrieves a logger from context or falls back to the global logger.
func LoggerFromContext(ctx context.Context) *Logger {
	if ctx == nil {
		return L()
	}
	if logger, ok := ctx.Value(loggerContextKey).(*Logger); ok && logger != nil {
		return logger
	}
	return L()
}

// ContextWithTraceID stores a trace identifier in context.
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, traceContextKey, traceID)
}

// TraceIDFromContext extracts a trace identifier from context.
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if traceID, ok := ctx.Value(traceContextKey).(string); ok {
		return traceID
	}
	return ""
}

// GenerateTraceID creates a random 16-byte trace identifier represented as hex.
func GenerateTraceID() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err == nil {
		return hex.EncodeToString(buf[:])
	}
	return fmt.Sprintf("%x", time.Now().UnixNano())
}

// WithTrace enriches the context with a trace ID and returns the derived logger.
func WithTrace(ctx context.Context, base *Logger, traceID string) (context.Context, *Logger, string) {
	tid := strings.TrimSpace(traceID)
	if tid == "" {
		tid = GenerateTraceID()
	}
	if base == nil {
		base = L()
	}
	derived := base.With(String(TraceIDField, tid))
	ctx = ContextWithTraceID(ctx, tid)
	ctx = ContextWithLogger(ctx, derived)
	return ctx, derived, tid
}

// HTTPTraceMiddleware gives every request a trace identifier in its context and response headers.
func HTTPTraceMiddleware(base *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			incoming := strings.TrimSpace(r.Header.Get(TraceIDHeader))
			ctx, logger, traceID := WithTrace(r.Context(), base, incoming)
			r = r.WithContext(ctx)
			w.Header().Set(TraceIDHeader, traceID)
			logger.Debug("request received", String("method", r.Method), String("path", r.URL.Path))
			next.ServeHTTP(w, r)
		})
	}
}
