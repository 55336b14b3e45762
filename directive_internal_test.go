package stepflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNextCheck(t *testing.T) {
	d := WaitDirective{IntervalSeconds: 20}

	now := time.Date(2023, time.April, 1, 10, 0, 0, 0, time.UTC)
	require.Equal(t, now.Add(20*time.Second), d.nextCheck(now))

	// Sub second precision is dropped.
	withNanos := now.Add(500 * time.Millisecond)
	require.Equal(t, now.Add(20*time.Second), d.nextCheck(withNanos))
}
