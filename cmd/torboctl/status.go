package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check that a node's gateway is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newNodeClient(nodeURL)
		var resp struct {
			Status string `json:"status"`
		}
		if err := c.do("GET", "/healthz", nil, &resp); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", nodeURL, resp.Status)
		return nil
	},
}
