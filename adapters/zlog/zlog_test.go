package zlog_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/luno/jettison/jtest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/andrewwormald/stepflow/adapters/zlog"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	var line map[string]any
	err := json.Unmarshal(buf.Bytes(), &line)
	jtest.RequireNil(t, err)
	return line
}

func TestDebug(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	l := zlog.New(zerolog.New(buf).Level(zerolog.DebugLevel))

	l.Debug(context.Background(), "stack submitted", map[string]string{"stack_id": "arn:stack/1"})

	line := decode(t, buf)
	require.Equal(t, "debug", line["level"])
	require.Equal(t, "stack submitted", line["message"])
	require.Equal(t, "arn:stack/1", line["stack_id"])
}

func TestInfo(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	l := zlog.New(zerolog.New(buf))

	l.Info(context.Background(), "gateway activated", map[string]string{"gateway_arn": "arn:gateway/1"})

	line := decode(t, buf)
	require.Equal(t, "info", line["level"])
	require.Equal(t, "gateway activated", line["message"])
	require.Equal(t, "arn:gateway/1", line["gateway_arn"])
}

func TestError(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	l := zlog.New(zerolog.New(buf))

	l.Error(context.Background(), errors.New("revoke ingress", j.C("ERR_1")))

	line := decode(t, buf)
	require.Equal(t, "error", line["level"])
	require.Contains(t, line["error"], "revoke ingress")
}

func TestDebugFilteredByLevel(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	l := zlog.New(zerolog.New(buf).Level(zerolog.InfoLevel))

	l.Debug(context.Background(), "stack submitted", nil)

	require.Empty(t, buf.String())
}
