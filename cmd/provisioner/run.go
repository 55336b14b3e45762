package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/andrewwormald/stepflow"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the poller that advances due executions until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, c)
		if err != nil {
			return err
		}
		defer a.Close()

		serverErrors := make(chan error, 1)
		var srv *http.Server
		if c.HTTP.Addr != "" {
			srv = &http.Server{
				Addr:              c.HTTP.Addr,
				Handler:           newRouter(a.workflow),
				ReadHeaderTimeout: 5 * time.Second,
			}

			go func() {
				err := srv.ListenAndServe()
				if !errors.Is(err, http.ErrServerClosed) {
					serverErrors <- err
				}
			}()
		}

		a.workflow.Run(ctx)
		a.logger.Info(ctx, "poller started", stepflow.MKV{
			"workflow_name": a.workflow.Name(),
			"http_addr":     c.HTTP.Addr,
		})

		select {
		case <-ctx.Done():
		case err = <-serverErrors:
		}

		if srv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
				a.logger.Error(shutdownCtx, shutdownErr)
			}
		}

		return err
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
