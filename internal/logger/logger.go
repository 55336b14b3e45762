package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

type logger struct {
	log *slog.Logger
}

func (l logger) Debug(ctx context.Context, msg string, meta map[string]string) {
	l.log.DebugContext(ctx, msg, "meta", meta)
}

func (l logger) Info(ctx context.Context, msg string, meta map[string]string) {
	l.log.InfoContext(ctx, msg, "meta", meta)
}

func (l logger) Error(ctx context.Context, err error) {
	l.log.ErrorContext(ctx, err.Error())
}

// New returns a JSON logger writing to w, or to stdout when w is nil.
func New(w io.Writer) *logger {
	if w == nil {
		w = os.Stdout
	}

	// LevelDebug is set by default as debug output is gated by the workflow's debug mode.
	opts := slog.HandlerOptions{
		Level: slog.LevelDebug,
	}
	sl := slog.New(slog.NewJSONHandler(w, &opts))
	return &logger{
		log: sl,
	}
}
