package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/algohub/algohub/internal/model"
	"gopkg.in/natefinch/lumberjack.v2"
)

type slogKeyT struct{}

var slogKey slogKeyT

// ContextHandler adds the attributes stored by ContextAttrs to every record
type ContextHandler struct {
	slog.Handler
}

func NewContextHandler(handler slog.Handler) ContextHandler {
	return ContextHandler{
		Handler: handler,
	}
}

func (h ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if a, ok := ctx.Value(slogKey).([]slog.Attr); ok {
		r.AddAttrs(a...)
	}

	return h.Handler.Handle(ctx, r)
}

func (h ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return ContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h ContextHandler) WithGroup(name string) slog.Handler {
	return ContextHandler{Handler: h.Handler.WithGroup(name)}
}

// ContextAttrs returns a child context carrying attrs on top of the
// attributes of a parent. Siblings never see each other's attributes.
func ContextAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	a, _ := ctx.Value(slogKey).([]slog.Attr)
	a = append(slices.Clip(a), attrs...)
	return context.WithValue(ctx, slogKey, a)
}

// New returns a JSON logger writing into the sink, which is one of
// model.LogStderr, model.LogStdout, model.LogDiscard or a path to a
// rotated log file. The returned closer must be closed on exit.
func New(verbose bool, sink string) (*slog.Logger, io.Closer) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	w, closer := writer(sink)
	base := slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource: false,
		Level:     level,
	})
	ctxHandler := NewContextHandler(base)
	return slog.New(ctxHandler), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func writer(sink string) (io.Writer, io.Closer) {
	switch sink {
	case "", model.LogStderr:
		return os.Stderr, nopCloser{}
	case model.LogStdout:
		return os.Stdout, nopCloser{}
	case model.LogDiscard:
		return io.Discard, nopCloser{}
	default:
		lj := &lumberjack.Logger{
			Filename:   sink,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		return lj, lj
	}
}
