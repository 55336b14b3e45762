// Package config loads the provisioner configuration from an optional yaml file overlaid with PROVISIONER_ prefixed
// environment variables, e.g. PROVISIONER_STORE_DRIVER=redis.
package config

import (
	"strings"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/spf13/viper"
)

const EnvPrefix = "PROVISIONER"

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
	DriverRedis  = "redis"
)

const (
	LoggerJSON     = "json"
	LoggerJettison = "jettison"
	LoggerZerolog  = "zerolog"
)

var ErrInvalidConfig = errors.New("invalid config", j.C("ERR_8f2a6c0d4e1b9357"))

type Config struct {
	Store     Store     `mapstructure:"store"`
	AWS       AWS       `mapstructure:"aws"`
	Log       Log       `mapstructure:"log"`
	Poller    Poller    `mapstructure:"poller"`
	Provision Provision `mapstructure:"provision"`
	HTTP      HTTP      `mapstructure:"http"`

	// Users maps principal uids to usernames. Keys are lower cased when loaded.
	Users map[string]string `mapstructure:"users"`
}

type Store struct {
	Driver string `mapstructure:"driver"`
	// DSN is the database/sql data source for sqlite and mysql.
	DSN       string `mapstructure:"dsn"`
	RedisAddr string `mapstructure:"redis_addr"`
	// RecordTable is the DynamoDB table for gateway records. When empty records are kept in the execution store.
	RecordTable string `mapstructure:"record_table"`
}

type AWS struct {
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token"`
}

type Log struct {
	Format string `mapstructure:"format"`
	Debug  bool   `mapstructure:"debug"`
}

type Poller struct {
	PollingFrequency time.Duration `mapstructure:"polling_frequency"`
	ErrBackOff       time.Duration `mapstructure:"err_back_off"`
	BatchSize        int           `mapstructure:"batch_size"`
	LagAlert         time.Duration `mapstructure:"lag_alert"`
	// InvocationLease is how long one invocation holds an execution before another host may take it over.
	InvocationLease time.Duration `mapstructure:"invocation_lease"`
}

type Provision struct {
	StackPollIntervalSeconds   int           `mapstructure:"stack_poll_interval_seconds"`
	StackPollMaxAttempts       int           `mapstructure:"stack_poll_max_attempts"`
	GatewayPollIntervalSeconds int           `mapstructure:"gateway_poll_interval_seconds"`
	GatewayPollMaxAttempts     int           `mapstructure:"gateway_poll_max_attempts"`
	ActivationPort             int32         `mapstructure:"activation_port"`
	EchoURL                    string        `mapstructure:"echo_url"`
	HTTPTimeout                time.Duration `mapstructure:"http_timeout"`
}

type HTTP struct {
	// Addr serves metrics and health checks while running. Empty disables the listener.
	Addr string `mapstructure:"addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.record_table", "")

	v.SetDefault("aws.region", "")
	v.SetDefault("aws.access_key_id", "")
	v.SetDefault("aws.secret_access_key", "")
	v.SetDefault("aws.session_token", "")

	v.SetDefault("log.format", LoggerJSON)
	v.SetDefault("log.debug", false)

	v.SetDefault("poller.polling_frequency", time.Second)
	v.SetDefault("poller.err_back_off", 5*time.Second)
	v.SetDefault("poller.batch_size", 100)
	v.SetDefault("poller.lag_alert", 5*time.Minute)
	v.SetDefault("poller.invocation_lease", 5*time.Minute)

	v.SetDefault("provision.stack_poll_interval_seconds", 20)
	v.SetDefault("provision.stack_poll_max_attempts", 60)
	v.SetDefault("provision.gateway_poll_interval_seconds", 5)
	v.SetDefault("provision.gateway_poll_max_attempts", 5)
	v.SetDefault("provision.activation_port", 80)
	v.SetDefault("provision.echo_url", "http://httpbin.org/get")
	v.SetDefault("provision.http_timeout", 30*time.Second)

	v.SetDefault("http.addr", "")
}

// Load reads path when it is not empty and applies environment overrides on top.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		err := v.ReadInConfig()
		if err != nil {
			return nil, errors.Wrap(err, "read config", j.KV("path", path))
		}
	}

	var c Config
	err := v.Unmarshal(&c)
	if err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	err = c.Validate()
	if err != nil {
		return nil, err
	}

	return &c, nil
}

func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverRedis:
	case DriverSQLite, DriverMySQL:
		if c.Store.DSN == "" {
			return errors.Wrap(ErrInvalidConfig, "store dsn required", j.KV("driver", c.Store.Driver))
		}
	default:
		return errors.Wrap(ErrInvalidConfig, "unknown store driver", j.KV("driver", c.Store.Driver))
	}

	switch c.Log.Format {
	case LoggerJSON, LoggerJettison, LoggerZerolog:
	default:
		return errors.Wrap(ErrInvalidConfig, "unknown log format", j.KV("format", c.Log.Format))
	}

	if c.Poller.BatchSize < 1 {
		return errors.Wrap(ErrInvalidConfig, "batch size must be positive")
	}

	return nil
}
