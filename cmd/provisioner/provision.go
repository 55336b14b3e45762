package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/andrewwormald/stepflow"
)

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Start a provisioning execution and advance it in this process until it finishes",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		rc, payload, err := startArgs(cmd)
		if err != nil {
			return err
		}

		timeout, err := cmd.Flags().GetDuration("timeout")
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		a, err := newApp(ctx, c)
		if err != nil {
			return err
		}
		defer a.Close()

		a.workflow.Run(ctx)

		id, err := a.workflow.Start(ctx, rc, payload)
		if err != nil {
			return err
		}

		a.logger.Info(ctx, "provisioning started", stepflow.MKV{
			"execution_id": id,
			"uid":          rc.PrincipalIdentifier.UID,
		})

		e, err := a.workflow.Await(ctx, id)
		if err != nil {
			return err
		}

		err = printExecution(cmd.OutOrStdout(), e)
		if err != nil {
			return err
		}

		return e.Failure()
	},
}

func init() {
	addStartFlags(provisionCmd)
	provisionCmd.Flags().Duration("timeout", 30*time.Minute, "Give up waiting after this long, the execution stays durable")
	rootCmd.AddCommand(provisionCmd)
}
