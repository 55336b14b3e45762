package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/luno/jettison/jtest"
	"github.com/stretchr/testify/require"

	"github.com/andrewwormald/stepflow/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	c, err := config.Load("")
	jtest.RequireNil(t, err)

	require.Equal(t, config.DriverMemory, c.Store.Driver)
	require.Equal(t, config.LoggerJSON, c.Log.Format)
	require.Equal(t, time.Second, c.Poller.PollingFrequency)
	require.Equal(t, 100, c.Poller.BatchSize)
	require.Equal(t, 5*time.Minute, c.Poller.InvocationLease)
	require.Equal(t, 20, c.Provision.StackPollIntervalSeconds)
	require.Equal(t, 60, c.Provision.StackPollMaxAttempts)
	require.Equal(t, 5, c.Provision.GatewayPollIntervalSeconds)
	require.Equal(t, 5, c.Provision.GatewayPollMaxAttempts)
	require.Equal(t, int32(80), c.Provision.ActivationPort)
	require.Equal(t, "http://httpbin.org/get", c.Provision.EchoURL)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "provisioner.yaml")
	err := os.WriteFile(path, []byte(`
store:
  driver: sqlite
  dsn: file:provisioner.db
aws:
  region: eu-west-1
log:
  format: zerolog
  debug: true
poller:
  polling_frequency: 250ms
  batch_size: 10
provision:
  stack_poll_max_attempts: 90
users:
  u-1: alice
`), 0o600)
	jtest.RequireNil(t, err)

	c, err := config.Load(path)
	jtest.RequireNil(t, err)

	require.Equal(t, config.DriverSQLite, c.Store.Driver)
	require.Equal(t, "file:provisioner.db", c.Store.DSN)
	require.Equal(t, "eu-west-1", c.AWS.Region)
	require.Equal(t, config.LoggerZerolog, c.Log.Format)
	require.True(t, c.Log.Debug)
	require.Equal(t, 250*time.Millisecond, c.Poller.PollingFrequency)
	require.Equal(t, 10, c.Poller.BatchSize)
	require.Equal(t, 90, c.Provision.StackPollMaxAttempts)
	require.Equal(t, 20, c.Provision.StackPollIntervalSeconds)
	require.Equal(t, map[string]string{"u-1": "alice"}, c.Users)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "provisioner.yaml")
	err := os.WriteFile(path, []byte("store:\n  driver: memory\n"), 0o600)
	jtest.RequireNil(t, err)

	t.Setenv("PROVISIONER_STORE_DRIVER", "redis")
	t.Setenv("PROVISIONER_STORE_REDIS_ADDR", "redis:6379")
	t.Setenv("PROVISIONER_AWS_REGION", "af-south-1")

	c, err := config.Load(path)
	jtest.RequireNil(t, err)

	require.Equal(t, config.DriverRedis, c.Store.Driver)
	require.Equal(t, "redis:6379", c.Store.RedisAddr)
	require.Equal(t, "af-south-1", c.AWS.Region)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(c *config.Config)
		err    error
	}{
		{
			name:   "Defaults",
			mutate: func(c *config.Config) {},
		},
		{
			name: "Unknown driver",
			mutate: func(c *config.Config) {
				c.Store.Driver = "postgres"
			},
			err: config.ErrInvalidConfig,
		},
		{
			name: "SQL without dsn",
			mutate: func(c *config.Config) {
				c.Store.Driver = config.DriverMySQL
			},
			err: config.ErrInvalidConfig,
		},
		{
			name: "Unknown log format",
			mutate: func(c *config.Config) {
				c.Log.Format = "text"
			},
			err: config.ErrInvalidConfig,
		},
		{
			name: "Zero batch size",
			mutate: func(c *config.Config) {
				c.Poller.BatchSize = 0
			},
			err: config.ErrInvalidConfig,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := config.Load("")
			jtest.RequireNil(t, err)

			tc.mutate(c)
			jtest.Require(t, tc.err, c.Validate())
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
