package main

import (
	"encoding/json"
	"fmt"

	"github.com/luno/jettison/errors"
	"github.com/spf13/cobra"

	"github.com/andrewwormald/stepflow"
)

func addStartFlags(cmd *cobra.Command) {
	cmd.Flags().String("uid", "", "Principal uid the gateway is provisioned for")
	cmd.Flags().String("ns", "", "Principal namespace")
	cmd.Flags().String("payload", "", "Additional JSON object stored as the execution payload")
	_ = cmd.MarkFlagRequired("uid")
}

func startArgs(cmd *cobra.Command) (stepflow.RequestContext, map[string]any, error) {
	uid, err := cmd.Flags().GetString("uid")
	if err != nil {
		return stepflow.RequestContext{}, nil, err
	}

	ns, err := cmd.Flags().GetString("ns")
	if err != nil {
		return stepflow.RequestContext{}, nil, err
	}

	raw, err := cmd.Flags().GetString("payload")
	if err != nil {
		return stepflow.RequestContext{}, nil, err
	}

	payload := make(map[string]any)
	if raw != "" {
		err = json.Unmarshal([]byte(raw), &payload)
		if err != nil {
			return stepflow.RequestContext{}, nil, errors.Wrap(err, "payload must be a JSON object")
		}
	}

	rc := stepflow.RequestContext{
		PrincipalIdentifier: stepflow.PrincipalIdentifier{UID: uid, NS: ns},
	}

	return rc, payload, nil
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a provisioning execution and print its id",
	Long:  `start only records the execution. A host started with "provisioner run" against the same store advances it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		rc, payload, err := startArgs(cmd)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := newApp(ctx, c)
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.workflow.Start(ctx, rc, payload)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

func init() {
	addStartFlags(startCmd)
	rootCmd.AddCommand(startCmd)
}
