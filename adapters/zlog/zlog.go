// Package zlog adapts a zerolog logger to stepflow.Logger.
package zlog

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/andrewwormald/stepflow"
)

func New(l zerolog.Logger) *logger {
	return &logger{log: l}
}

type logger struct {
	log zerolog.Logger
}

func (l *logger) Debug(ctx context.Context, msg string, meta map[string]string) {
	l.log.Debug().Ctx(ctx).Fields(fields(meta)).Msg(msg)
}

func (l *logger) Info(ctx context.Context, msg string, meta map[string]string) {
	l.log.Info().Ctx(ctx).Fields(fields(meta)).Msg(msg)
}

func (l *logger) Error(ctx context.Context, err error) {
	l.log.Error().Ctx(ctx).Err(err).Send()
}

func fields(meta map[string]string) map[string]any {
	f := make(map[string]any, len(meta))
	for k, v := range meta {
		f[k] = v
	}

	return f
}

var _ stepflow.Logger = (*logger)(nil)
