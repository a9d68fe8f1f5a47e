package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var delegateCmd = &cobra.Command{
	Use:   "delegate",
	Short: "Delegate a task to a peer node",
}

var (
	delegateDescription string
	delegatePriority    string
	delegateSkills      []string
	delegateAccessLevel int
	delegateContext     string
)

var delegateSubmitCmd = &cobra.Command{
	Use:   "submit <title>",
	Short: "Submit a task for the node's delegation engine to route to a peer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newNodeClient(nodeURL)
		var resp struct {
			TaskID string `json:"task_id"`
		}
		if err := c.do("POST", "/api/v1/delegation/delegate", map[string]any{
			"title":                 args[0],
			"description":           delegateDescription,
			"priority":              delegatePriority,
			"required_skill_ids":    delegateSkills,
			"required_access_level": delegateAccessLevel,
			"context":               delegateContext,
		}, &resp); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "delegated as local task %s\n", resp.TaskID)
		return nil
	},
}

var (
	deliverResult string
	deliverError  string
	deliverSecs   float64
)

var delegateDeliverCmd = &cobra.Command{
	Use:   "deliver <local-task-id> <status>",
	Short: "Deliver a result for a locally-tracked task (status: completed or failed)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newNodeClient(nodeURL)
		return c.do("POST", "/api/v1/delegation/deliver-result", map[string]any{
			"local_task_id":           args[0],
			"status":                  args[1],
			"result":                  deliverResult,
			"error":                   deliverError,
			"execution_time_seconds":  deliverSecs,
		}, nil)
	},
}

var delegateCapabilitiesCmd = &cobra.Command{
	Use:   "capabilities",
	Short: "Show a node's advertised capabilities",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newNodeClient(nodeURL)
		var resp map[string]any
		if err := c.do("GET", "/delegation/capabilities", nil, &resp); err != nil {
			return err
		}
		out, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	delegateSubmitCmd.Flags().StringVar(&delegateDescription, "description", "", "task description")
	delegateSubmitCmd.Flags().StringVar(&delegatePriority, "priority", "normal", "task priority")
	delegateSubmitCmd.Flags().StringSliceVar(&delegateSkills, "skills", nil, "required skill ids")
	delegateSubmitCmd.Flags().IntVar(&delegateAccessLevel, "access-level", 0, "required access level")
	delegateSubmitCmd.Flags().StringVar(&delegateContext, "context", "", "free-form task context")

	delegateDeliverCmd.Flags().StringVar(&deliverResult, "result", "", "result payload on success")
	delegateDeliverCmd.Flags().StringVar(&deliverError, "error", "", "error message on failure")
	delegateDeliverCmd.Flags().Float64Var(&deliverSecs, "seconds", 0, "execution time in seconds")

	delegateCmd.AddCommand(delegateSubmitCmd)
	delegateCmd.AddCommand(delegateDeliverCmd)
	delegateCmd.AddCommand(delegateCapabilitiesCmd)
}
