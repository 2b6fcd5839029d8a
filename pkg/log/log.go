// Package log wraps log/slog with the small surface the template engine and
// its tools use: a Trace level below Debug, attribute-only logging helpers,
// and a zero value that discards everything.
package log

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"time"
)

// Logger is a value-type structured logger. The zero Logger is valid and
// silently drops all records, so components can hold one unconditionally.
type Logger struct {
	*slog.Logger
	settings
}

// Make creates a Logger writing to w. With no options it logs at
// [DefaultLevel] in [DefaultFormat].
func Make(w io.Writer, opts ...Option) Logger {
	s := makeSettings(w, opts...)
	return Logger{Logger: slog.New(s.handler()), settings: s}
}

// Discard returns the zero Logger.
func Discard() Logger { return Logger{} }

// Enabled reports whether records at level would be written.
func (l Logger) Enabled(level Level) bool {
	if l.Logger == nil {
		return false
	}
	return l.Logger.Enabled(context.Background(), slog.Level(level))
}

// Wrap returns a copy of l reconfigured by opts. Attributes added with With
// are not carried over.
func (l Logger) Wrap(opts ...Option) Logger {
	if l.Logger == nil {
		return l
	}
	s := l.settings.apply(opts...)
	return Logger{Logger: slog.New(s.handler()), settings: s}
}

// With returns a Logger that adds attrs to every record.
func (l Logger) With(attrs ...slog.Attr) Logger {
	if l.Logger == nil {
		return l
	}
	return Logger{Logger: slog.New(l.Handler().WithAttrs(attrs)), settings: l.settings}
}

// WithGroup returns a Logger that nests subsequent attributes under name.
func (l Logger) WithGroup(name string) Logger {
	if l.Logger == nil {
		return l
	}
	return Logger{Logger: slog.New(l.Handler().WithGroup(name)), settings: l.settings}
}

// Level returns the minimum level.
func (l Logger) Level() Level {
	if l.Logger == nil {
		return DefaultLevel
	}
	return l.level
}

// TraceContext logs at Trace level.
func (l Logger) TraceContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.log(ctx, LevelTrace, msg, attrs)
}

// Trace logs at Trace level.
func (l Logger) Trace(msg string, attrs ...slog.Attr) {
	l.log(context.Background(), LevelTrace, msg, attrs)
}

// DebugContext logs at Debug level.
func (l Logger) DebugContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.log(ctx, LevelDebug, msg, attrs)
}

// Debug logs at Debug level.
func (l Logger) Debug(msg string, attrs ...slog.Attr) {
	l.log(context.Background(), LevelDebug, msg, attrs)
}

// InfoContext logs at Info level.
func (l Logger) InfoContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.log(ctx, LevelInfo, msg, attrs)
}

// Info logs at Info level.
func (l Logger) Info(msg string, attrs ...slog.Attr) {
	l.log(context.Background(), LevelInfo, msg, attrs)
}

// WarnContext logs at Warn level.
func (l Logger) WarnContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.log(ctx, LevelWarn, msg, attrs)
}

// Warn logs at Warn level.
func (l Logger) Warn(msg string, attrs ...slog.Attr) {
	l.log(context.Background(), LevelWarn, msg, attrs)
}

// ErrorContext logs at Error level.
func (l Logger) ErrorContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.log(ctx, LevelError, msg, attrs)
}

// Error logs at Error level.
func (l Logger) Error(msg string, attrs ...slog.Attr) {
	l.log(context.Background(), LevelError, msg, attrs)
}

func (l Logger) log(ctx context.Context, level Level, msg string, attrs []slog.Attr) {
	if l.Logger == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.Logger.Enabled(ctx, slog.Level(level)) {
		return
	}

	// 1=runtime.Callers, 2=log, 3=exported helper
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])

	r := slog.NewRecord(time.Now(), slog.Level(level), msg, pcs[0])
	r.AddAttrs(attrs...)
	_ = l.Handler().Handle(ctx, r)
}

// Err returns an attribute carrying err under the "error" key. A nil err
// yields an empty attribute, which slog drops.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}
