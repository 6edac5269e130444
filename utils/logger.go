package utils

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pkg/errors"
)

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

// DefaultLogger is a slog text logger that prefixes every message
// with its component name, e.g. "[rtcdoc/rooms] room loaded".
type DefaultLogger struct {
	logger *slog.Logger
	name   string
	prefix string
}

func NewDefaultLogger(level slog.Level) *DefaultLogger {
	return NewLogger(os.Stderr, level, "rtcdoc")
}

func NewLogger(w io.Writer, level slog.Level, name string) *DefaultLogger {
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
	return &DefaultLogger{logger: logger, name: name, prefix: "[" + name + "] "}
}

// Named is a logger for a sub-component, same sink and level.
func (d *DefaultLogger) Named(sub string) *DefaultLogger {
	name := d.name + "/" + sub
	return &DefaultLogger{logger: d.logger, name: name, prefix: "[" + name + "] "}
}

// ParseLevel reads debug, info, warn or error (any case).
func ParseLevel(s string) (level slog.Level, err error) {
	if err = level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, errors.Wrapf(err, "log level %q", s)
	}
	return level, nil
}

func (d *DefaultLogger) Debug(msg string, args ...any) {
	d.logger.Debug(d.prefix+msg, args...)
}

func (d *DefaultLogger) Info(msg string, args ...any) {
	d.logger.Info(d.prefix+msg, args...)
}

func (d *DefaultLogger) Warn(msg string, args ...any) {
	d.logger.Warn(d.prefix+msg, args...)
}

func (d *DefaultLogger) Error(msg string, args ...any) {
	d.logger.Error(d.prefix+msg, args...)
}

type ctxArgsKey struct{}

func contextArgs(ctx context.Context) []any {
	args, _ := ctx.Value(ctxArgsKey{}).([]any)
	return args
}

// WithDefaultArgs attaches key-value pairs that every *Ctx call made
// with the returned context appends to its own args.
func WithDefaultArgs(ctx context.Context, args ...any) context.Context {
	prev := contextArgs(ctx)
	joined := make([]any, 0, len(prev)+len(args))
	joined = append(joined, prev...)
	joined = append(joined, args...)
	return context.WithValue(ctx, ctxArgsKey{}, joined)
}

func (d *DefaultLogger) DebugCtx(ctx context.Context, msg string, args ...any) {
	d.logger.DebugContext(ctx, d.prefix+msg, append(args, contextArgs(ctx)...)...)
}

func (d *DefaultLogger) InfoCtx(ctx context.Context, msg string, args ...any) {
	d.logger.InfoContext(ctx, d.prefix+msg, append(args, contextArgs(ctx)...)...)
}

func (d *DefaultLogger) WarnCtx(ctx context.Context, msg string, args ...any) {
	d.logger.WarnContext(ctx, d.prefix+msg, append(args, contextArgs(ctx)...)...)
}

func (d *DefaultLogger) ErrorCtx(ctx context.Context, msg string, args ...any) {
	d.logger.ErrorContext(ctx, d.prefix+msg, append(args, contextArgs(ctx)...)...)
}
