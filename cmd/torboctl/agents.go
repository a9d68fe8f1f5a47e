package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Manage agent personas on a node",
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all agent personas",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newNodeClient(nodeURL)
		var resp struct {
			Agents []map[string]any `json:"agents"`
		}
		if err := c.do("GET", "/api/v1/agents", nil, &resp); err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tROLE\tACCESS LEVEL")
		for _, a := range resp.Agents {
			fmt.Fprintf(w, "%v\t%v\t%v\t%v\n", a["id"], a["name"], a["role"], a["accessLevel"])
		}
		return w.Flush()
	},
}

var agentsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one agent persona as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newNodeClient(nodeURL)
		var resp map[string]any
		if err := c.do("GET", "/api/v1/agents/"+args[0], nil, &resp); err != nil {
			return err
		}
		out, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var agentsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an agent persona",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newNodeClient(nodeURL)
		if err := c.do("DELETE", "/api/v1/agents/"+args[0], nil, nil); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted agent %s\n", args[0])
		return nil
	},
}

func init() {
	agentsCmd.AddCommand(agentsListCmd)
	agentsCmd.AddCommand(agentsGetCmd)
	agentsCmd.AddCommand(agentsDeleteCmd)
}
