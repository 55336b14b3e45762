package main

import (
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"github.com/spf13/cobra"

	"github.com/andrewwormald/stepflow"
	"github.com/andrewwormald/stepflow/provision"
)

type waitView struct {
	Predicate       string `json:"predicate"`
	Next            string `json:"next"`
	IntervalSeconds int    `json:"intervalSeconds"`
	MaxAttempts     int    `json:"maxAttempts"`
	Attempts        int    `json:"attempts"`
}

type executionView struct {
	ID              string          `json:"id"`
	Workflow        string          `json:"workflow"`
	Step            string          `json:"step"`
	Status          string          `json:"status"`
	Payload         stepflow.Values `json:"payload,omitempty"`
	State           stepflow.Values `json:"state,omitempty"`
	Wait            *waitView       `json:"wait,omitempty"`
	Result          json.RawMessage `json:"result,omitempty"`
	Err             string          `json:"error,omitempty"`
	CompensationErr string          `json:"compensationError,omitempty"`
	Compensated     bool            `json:"compensated,omitempty"`
	Version         int64           `json:"version"`
	DueAt           *time.Time      `json:"dueAt,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

func toView(e *stepflow.Execution) executionView {
	v := executionView{
		ID:              e.ID,
		Workflow:        e.WorkflowName,
		Step:            e.Step,
		Status:          e.Status.String(),
		Payload:         e.Payload,
		State:           e.State,
		Result:          e.Result,
		Err:             e.Err,
		CompensationErr: e.CompensationErr,
		Compensated:     e.Compensated,
		Version:         e.Version,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}

	if !e.DueAt.IsZero() {
		due := e.DueAt
		v.DueAt = &due
	}

	if e.Wait != nil {
		v.Wait = &waitView{
			Predicate:       e.Wait.Directive.Predicate,
			Next:            e.Wait.Directive.Next,
			IntervalSeconds: e.Wait.Directive.IntervalSeconds,
			MaxAttempts:     e.Wait.Directive.MaxAttempts,
			Attempts:        e.Wait.Attempts,
		}
	}

	return v
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printExecution(w io.Writer, e *stepflow.Execution) error {
	return printJSON(w, toView(e))
}

var statuses = []stepflow.Status{
	stepflow.StatusRunning,
	stepflow.StatusWaiting,
	stepflow.StatusSucceeded,
	stepflow.StatusFailed,
}

func parseStatus(s string) (stepflow.Status, error) {
	for _, status := range statuses {
		if strings.EqualFold(status.String(), s) {
			return status, nil
		}
	}

	return stepflow.StatusUnknown, errors.New("unknown status", j.KV("status", s))
}

var describeCmd = &cobra.Command{
	Use:   "describe [execution id]",
	Short: "Print an execution, or list executions when no id is given",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := newApp(ctx, c)
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 1 {
			e, err := a.workflow.Lookup(ctx, args[0])
			if err != nil {
				return err
			}

			return printExecution(cmd.OutOrStdout(), e)
		}

		var filters []stepflow.ExecutionFilter
		status, err := cmd.Flags().GetString("status")
		if err != nil {
			return err
		}

		if status != "" {
			s, err := parseStatus(status)
			if err != nil {
				return err
			}

			filters = append(filters, stepflow.FilterByStatus(s))
		}

		step, err := cmd.Flags().GetString("step")
		if err != nil {
			return err
		}

		if step != "" {
			filters = append(filters, stepflow.FilterByStep(step))
		}

		offset, err := cmd.Flags().GetInt("offset")
		if err != nil {
			return err
		}

		limit, err := cmd.Flags().GetInt("limit")
		if err != nil {
			return err
		}

		list, err := a.stores.executions.List(ctx, provision.WorkflowName, offset, limit, filters...)
		if err != nil {
			return err
		}

		views := make([]executionView, 0, len(list))
		for i := range list {
			views = append(views, toView(&list[i]))
		}

		return printJSON(cmd.OutOrStdout(), views)
	},
}

func init() {
	describeCmd.Flags().String("status", "", "Only list executions with this status")
	describeCmd.Flags().String("step", "", "Only list executions at this step")
	describeCmd.Flags().Int("offset", 0, "Number of executions to skip")
	describeCmd.Flags().Int("limit", 25, "Maximum number of executions to list")
	rootCmd.AddCommand(describeCmd)
}
