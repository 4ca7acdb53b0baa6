package kernel

import (
	"log/slog"

	"go.uber.org/zap"
)

// Logger is the structured logging interface every service receives,
// consumed rather than owned — implementations are free to route output
// anywhere. The kernel calls Fatal only for unrecoverable wiring errors
// and never relies on Fatal to terminate the process itself (that decision
// belongs to the caller of Bootstrap, which receives the error).
type Logger interface {
	Trace(msg string, args ...any)
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Fatal(msg string, args ...any)
}

// zapLogger adapts a *zap.SugaredLogger to the Logger interface. This is
// the boilerplate module's default logger. zap has no native trace level,
// so Trace is emitted at Debug with an explicit level field; Fatal logs at
// Error with fatal=true rather than calling zap's own Fatal (which would
// os.Exit out from under the kernel before it gets to decide anything).
type zapLogger struct {
	base *zap.SugaredLogger
	tag  string
}

// NewZapLogger wraps base, a production zap.Logger built by the caller
// (typically zap.NewProduction() or zap.NewDevelopment()).
func NewZapLogger(base *zap.Logger) Logger {
	return &zapLogger{base: base.Sugar()}
}

func (l *zapLogger) with(msg string, args []any) (string, []any) {
	if l.tag == "" {
		return msg, args
	}
	return msg, append([]any{"context", l.tag}, args...)
}

func (l *zapLogger) Trace(msg string, args ...any) {
	msg, args = l.with(msg, args)
	l.base.Debugw(msg, append(args, "level", "trace")...)
}
func (l *zapLogger) Debug(msg string, args ...any) {
	msg, args = l.with(msg, args)
	l.base.Debugw(msg, args...)
}
func (l *zapLogger) Info(msg string, args ...any) {
	msg, args = l.with(msg, args)
	l.base.Infow(msg, args...)
}
func (l *zapLogger) Warn(msg string, args ...any) {
	msg, args = l.with(msg, args)
	l.base.Warnw(msg, args...)
}
func (l *zapLogger) Error(msg string, args ...any) {
	msg, args = l.with(msg, args)
	l.base.Errorw(msg, args...)
}
func (l *zapLogger) Fatal(msg string, args ...any) {
	msg, args = l.with(msg, args)
	l.base.Errorw(msg, append(args, "fatal", true)...)
}

// Tagged returns a copy of l pre-tagged with context, used by the
// Container when building a service's ServiceParams.Logger.
func (l *zapLogger) Tagged(context string) Logger {
	return &zapLogger{base: l.base, tag: context}
}

// slogLogger adapts the standard library's log/slog to the Logger
// interface, for embedders who don't want the zap dependency pulled into
// their own binary's output path.
type slogLogger struct {
	base *slog.Logger
}

// NewSlogLogger wraps base.
func NewSlogLogger(base *slog.Logger) Logger {
	return &slogLogger{base: base}
}

func (l *slogLogger) Trace(msg string, args ...any) { l.base.Debug(msg, append(args, "level", "trace")...) }
func (l *slogLogger) Debug(msg string, args ...any) { l.base.Debug(msg, args...) }
func (l *slogLogger) Info(msg string, args ...any)  { l.base.Info(msg, args...) }
func (l *slogLogger) Warn(msg string, args ...any)  { l.base.Warn(msg, args...) }
func (l *slogLogger) Error(msg string, args ...any) { l.base.Error(msg, args...) }
func (l *slogLogger) Fatal(msg string, args ...any) { l.base.Error(msg, append(args, "fatal", true)...) }

// Tagged returns a child logger with context attached to every record.
func (l *slogLogger) Tagged(context string) Logger {
	return &slogLogger{base: l.base.With("context", context)}
}

// taggedLogger is implemented by Logger backends that support per-service
// context tagging. The Container falls back to the untagged logger when a
// caller-supplied implementation doesn't support it.
type taggedLogger interface {
	Tagged(context string) Logger
}

func taggedOrSelf(l Logger, context string) Logger {
	if tl, ok := l.(taggedLogger); ok {
		return tl.Tagged(context)
	}
	return l
}
