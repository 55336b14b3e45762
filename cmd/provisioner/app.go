package main

import (
	"context"
	"database/sql"
	"io"
	"os"

	_ "github.com/go-sql-driver/mysql"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/andrewwormald/stepflow"
	"github.com/andrewwormald/stepflow/adapters/awsprovider"
	"github.com/andrewwormald/stepflow/adapters/gatewayhttp"
	"github.com/andrewwormald/stepflow/adapters/jlog"
	"github.com/andrewwormald/stepflow/adapters/memrolescheduler"
	"github.com/andrewwormald/stepflow/adapters/memstore"
	redisstore "github.com/andrewwormald/stepflow/adapters/redis"
	"github.com/andrewwormald/stepflow/adapters/sqlite"
	"github.com/andrewwormald/stepflow/adapters/sqlstore"
	"github.com/andrewwormald/stepflow/adapters/zlog"
	"github.com/andrewwormald/stepflow/internal/config"
	"github.com/andrewwormald/stepflow/internal/logger"
	"github.com/andrewwormald/stepflow/provision"
	"github.com/andrewwormald/stepflow/provision/templates"
)

type stores struct {
	executions stepflow.ExecutionStore
	records    provision.RecordStore
	scheduler  stepflow.RoleScheduler
	close      func() error
}

func noopClose() error { return nil }

// openStores connects the configured backend. The SQL role schedulers only coordinate pollers within one process;
// across processes each invocation claims its execution in the store before running.
func openStores(c config.Store) (*stores, error) {
	switch c.Driver {
	case config.DriverMemory:
		return &stores{
			executions: memstore.New(),
			records:    memstore.NewGatewayStore(),
			scheduler:  memrolescheduler.New(),
			close:      noopClose,
		}, nil

	case config.DriverSQLite:
		db, err := sqlite.Open(c.DSN)
		if err != nil {
			return nil, err
		}

		err = sqlite.InitSchema(db)
		if err != nil {
			db.Close()
			return nil, err
		}

		return &stores{
			executions: sqlite.NewExecutionStore(db),
			records:    sqlite.NewGatewayStore(db),
			scheduler:  memrolescheduler.New(),
			close:      db.Close,
		}, nil

	case config.DriverMySQL:
		db, err := sql.Open("mysql", c.DSN)
		if err != nil {
			return nil, errors.Wrap(err, "open mysql")
		}

		return &stores{
			executions: sqlstore.New(db, db, sqlstore.ExecutionTable),
			records:    sqlstore.NewGatewayStore(db, db, sqlstore.GatewayTable),
			scheduler:  memrolescheduler.New(),
			close:      db.Close,
		}, nil

	case config.DriverRedis:
		client := goredis.NewClient(&goredis.Options{Addr: c.RedisAddr})
		return &stores{
			executions: redisstore.New(client),
			records:    redisstore.NewGatewayStore(client),
			scheduler:  redisstore.NewRoleScheduler(client),
			close:      client.Close,
		}, nil

	default:
		return nil, errors.Wrap(config.ErrInvalidConfig, "unknown store driver", j.KV("driver", c.Driver))
	}
}

func newLogger(c config.Log, w io.Writer) stepflow.Logger {
	switch c.Format {
	case config.LoggerJettison:
		return jlog.New()
	case config.LoggerZerolog:
		level := zerolog.InfoLevel
		if c.Debug {
			level = zerolog.DebugLevel
		}

		return zlog.New(zerolog.New(w).Level(level).With().Timestamp().Logger())
	default:
		return logger.New(w)
	}
}

func provisionConfig(c config.Provision) provision.Config {
	pc := provision.DefaultConfig()
	pc.StackPoll = provision.Poll{
		IntervalSeconds: c.StackPollIntervalSeconds,
		MaxAttempts:     c.StackPollMaxAttempts,
	}
	pc.GatewayPoll = provision.Poll{
		IntervalSeconds: c.GatewayPollIntervalSeconds,
		MaxAttempts:     c.GatewayPollMaxAttempts,
	}
	pc.ActivationPort = c.ActivationPort
	return pc
}

func buildOptions(c *config.Config, l stepflow.Logger, rs stepflow.RoleScheduler) []stepflow.BuildOption {
	opts := []stepflow.BuildOption{
		stepflow.WithLogger(l),
		stepflow.WithRoleScheduler(rs),
		stepflow.WithPollingFrequency(c.Poller.PollingFrequency),
		stepflow.WithErrBackOff(c.Poller.ErrBackOff),
		stepflow.WithBatchSize(c.Poller.BatchSize),
		stepflow.WithLagAlert(c.Poller.LagAlert),
		stepflow.WithInvocationLease(c.Poller.InvocationLease),
	}

	if c.Log.Debug {
		opts = append(opts, stepflow.WithDebugMode())
	}

	return opts
}

type app struct {
	workflow *stepflow.Workflow
	stores   *stores
	logger   stepflow.Logger
}

func newApp(ctx context.Context, c *config.Config) (*app, error) {
	st, err := openStores(c.Store)
	if err != nil {
		return nil, err
	}

	awsConfig, err := awsprovider.LoadConfig(ctx, awsprovider.Config{
		Region:          c.AWS.Region,
		AccessKeyID:     c.AWS.AccessKeyID,
		SecretAccessKey: c.AWS.SecretAccessKey,
		SessionToken:    c.AWS.SessionToken,
	})
	if err != nil {
		st.close()
		return nil, err
	}

	cloud := awsprovider.New(awsConfig, c.Store.RecordTable)

	records := st.records
	if c.Store.RecordTable != "" {
		records = cloud.Records
	}

	l := newLogger(c.Log, os.Stdout)

	deps := provision.Deps{
		Parameters:  cloud.Parameters,
		Deployments: cloud.Deployments,
		Gateways:    cloud.Gateways,
		Compute:     cloud.Compute,
		Users:       provision.StaticUsers(c.Users),
		Templates:   templates.New(),
		Addresses: gatewayhttp.NewAddressResolver(
			gatewayhttp.WithEchoURL(c.Provision.EchoURL),
			gatewayhttp.WithTimeout(c.Provision.HTTPTimeout),
		),
		Activation: gatewayhttp.NewActivationKeyFetcher(gatewayhttp.WithTimeout(c.Provision.HTTPTimeout)),
		Records:    records,
		Logger:     l,
	}

	w := provision.NewWorkflow(deps, provisionConfig(c.Provision), st.executions, buildOptions(c, l, st.scheduler)...)

	return &app{
		workflow: w,
		stores:   st,
		logger:   l,
	}, nil
}

func (a *app) Close() error {
	a.workflow.Stop()
	return a.stores.close()
}
