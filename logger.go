package stepflow

import "context"

type Logger interface {
	// Debug will be used by the engine for debug logs when in debug mode.
	Debug(ctx context.Context, msg string, meta MKV)
	// Info is used for progress of steps and compensation.
	Info(ctx context.Context, msg string, meta MKV)
	// Error is used when writing errors to the logs.
	Error(ctx context.Context, err error)
}

// MKV is a multiple key value store for the logger to format into its output.
type MKV = map[string]string

// logger gates debug output behind debug mode and forwards everything else.
type logger struct {
	debugMode bool
	inner     Logger
}

func (l *logger) Debug(ctx context.Context, msg string, meta MKV) {
	if !l.debugMode {
		return
	}

	l.inner.Debug(ctx, msg, meta)
}

func (l *logger) Info(ctx context.Context, msg string, meta MKV) {
	l.inner.Info(ctx, msg, meta)
}

func (l *logger) Error(ctx context.Context, err error) {
	l.inner.Error(ctx, err)
}

var _ Logger = (*logger)(nil)
