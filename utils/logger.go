// Package utils carries the small cross-cutting helpers of the engine,
// chiefly the logging facade.
package utils

import (
	"context"
	"log/slog"
	"os"
)

// Logger is the logging facade used across the engine. The ...Ctx
// variants additionally emit any args attached to the context with
// WithDefaultArgs, so deep call sites log the tenant and operation
// without threading them through every signature.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	DebugCtx(ctx context.Context, msg string, args ...any)
	InfoCtx(ctx context.Context, msg string, args ...any)
	WarnCtx(ctx context.Context, msg string, args ...any)
	ErrorCtx(ctx context.Context, msg string, args ...any)
}

const prefix = "[zieook] "

// DefaultLogger logs through slog with a fixed message prefix.
type DefaultLogger struct {
	logger *slog.Logger
}

func NewDefaultLogger(level slog.Level) *DefaultLogger {
	return &DefaultLogger{logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))}
}

// NewLogger wraps an existing slog logger, for callers that configure
// their own handler.
func NewLogger(logger *slog.Logger) *DefaultLogger {
	return &DefaultLogger{logger: logger}
}

type ctxArgsKey struct{}

func ctxArgs(ctx context.Context) []any {
	args, _ := ctx.Value(ctxArgsKey{}).([]any)
	return args
}

// WithDefaultArgs attaches args that every ...Ctx call on the context
// will carry, typically the tenant and the operation name. Nested calls
// accumulate.
func WithDefaultArgs(ctx context.Context, args ...any) context.Context {
	merged := append(append([]any(nil), ctxArgs(ctx)...), args...)
	return context.WithValue(ctx, ctxArgsKey{}, merged)
}

func (d *DefaultLogger) log(level slog.Level, msg string, args []any) {
	d.logger.Log(context.Background(), level, prefix+msg, args...)
}

func (d *DefaultLogger) Debug(msg string, args ...any) { d.log(slog.LevelDebug, msg, args) }
func (d *DefaultLogger) Info(msg string, args ...any)  { d.log(slog.LevelInfo, msg, args) }
func (d *DefaultLogger) Warn(msg string, args ...any)  { d.log(slog.LevelWarn, msg, args) }
func (d *DefaultLogger) Error(msg string, args ...any) { d.log(slog.LevelError, msg, args) }

func (d *DefaultLogger) logCtx(ctx context.Context, level slog.Level, msg string, args []any) {
	d.logger.Log(ctx, level, prefix+msg, append(args, ctxArgs(ctx)...)...)
}

func (d *DefaultLogger) DebugCtx(ctx context.Context, msg string, args ...any) {
	d.logCtx(ctx, slog.LevelDebug, msg, args)
}

func (d *DefaultLogger) InfoCtx(ctx context.Context, msg string, args ...any) {
	d.logCtx(ctx, slog.LevelInfo, msg, args)
}

func (d *DefaultLogger) WarnCtx(ctx context.Context, msg string, args ...any) {
	d.logCtx(ctx, slog.LevelWarn, msg, args)
}

func (d *DefaultLogger) ErrorCtx(ctx context.Context, msg string, args ...any) {
	d.logCtx(ctx, slog.LevelError, msg, args)
}
