// Package logging wraps zap with the request-scoped logger used across the
// web, api and engine services.
package logging

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type requestIDKey struct{}

var (
	mu   sync.RWMutex
	base = zap.NewNop()
)

// Init builds the process-wide zap logger. Development mode uses the
// console encoder; everything else logs JSON.
func Init(level string, development bool) (*zap.Logger, error) {
	var zcfg zap.Config
	if development {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zcfg.Level = zap.NewAtomicLevelAt(parseLevel(level))

	z, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	SetBase(z)
	return z, nil
}

// SetBase replaces the process logger. Tests use it with zaptest/observer.
func SetBase(z *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = z
}

// Base returns the process logger.
func Base() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// WithRequestID stores the request id for loggers built from ctx.
func WithRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, rid)
}

// RequestID extracts the request id from ctx, or "" if none was set.
func RequestID(ctx context.Context) string {
	if rid, ok := ctx.Value(requestIDKey{}).(string); ok {
		return rid
	}
	return ""
}

// Logger provides structured logging for services
type Logger struct {
	z *zap.Logger
}

// NewLogger creates a logger with request context
func NewLogger(ctx context.Context) *Logger {
	requestID := "unknown"
	if rid := RequestID(ctx); rid != "" {
		requestID = rid
	}
	return &Logger{z: Base().With(zap.String("request_id", requestID))}
}

// LogError logs an error with context
func (l *Logger) LogError(operation string, err error) {
	l.z.Error("operation failed", zap.String("operation", operation), zap.Error(err))
}

// LogErrorf logs a formatted error with context
func (l *Logger) LogErrorf(operation string, format string, args ...any) {
	l.z.Error(fmt.Sprintf(format, args...), zap.String("operation", operation))
}

// LogInfof logs a formatted info message with context
func (l *Logger) LogInfof(operation string, format string, args ...any) {
	l.z.Info(fmt.Sprintf(format, args...), zap.String("operation", operation))
}

// LogWarnf logs a formatted warning with context
func (l *Logger) LogWarnf(operation string, format string, args ...any) {
	l.z.Warn(fmt.Sprintf(format, args...), zap.String("operation", operation))
}

// LogDebugf logs a formatted debug message with context
func (l *Logger) LogDebugf(operation string, format string, args ...any) {
	l.z.Debug(fmt.Sprintf(format, args...), zap.String("operation", operation))
}
