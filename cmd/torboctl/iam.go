package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var iamCmd = &cobra.Command{
	Use:   "iam",
	Short: "Manage IAM registrations, grants, and checks",
}

var (
	iamOwner   string
	iamPurpose string
)

var iamRegisterCmd = &cobra.Command{
	Use:   "register <agent-id>",
	Short: "Register an agent identity with the IAM engine",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newNodeClient(nodeURL)
		return c.do("POST", "/api/v1/iam/register", map[string]any{
			"agent_id": args[0],
			"owner":    iamOwner,
			"purpose":  iamPurpose,
		}, nil)
	},
}

var (
	grantActions   []string
	grantGrantedBy string
)

var iamGrantCmd = &cobra.Command{
	Use:   "grant <agent-id> <resource>",
	Short: "Grant one or more actions on a resource to an agent",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newNodeClient(nodeURL)
		return c.do("POST", "/api/v1/iam/grant", map[string]any{
			"agent_id":   args[0],
			"resource":   args[1],
			"actions":    grantActions,
			"granted_by": grantGrantedBy,
		}, nil)
	},
}

var iamRevokeCmd = &cobra.Command{
	Use:   "revoke <agent-id> [resource]",
	Short: "Revoke a resource grant, or all grants when resource is omitted",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newNodeClient(nodeURL)
		resource := ""
		if len(args) == 2 {
			resource = args[1]
		}
		return c.do("POST", "/api/v1/iam/revoke", map[string]any{
			"agent_id": args[0],
			"resource": resource,
		}, nil)
	},
}

var checkToken string

var iamCheckCmd = &cobra.Command{
	Use:   "check <agent-id> <resource> <action>",
	Short: "Check whether an agent may perform an action on a resource",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newNodeClient(nodeURL)
		var resp struct {
			Allowed bool `json:"allowed"`
		}
		if err := c.doAuth("POST", "/api/v1/iam/check", map[string]any{
			"agent_id": args[0],
			"resource": args[1],
			"action":   args[2],
		}, &resp, checkToken); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), resp.Allowed)
		return nil
	},
}

var iamTokenCmd = &cobra.Command{
	Use:   "token <agent-id>",
	Short: "Mint a bearer token for an already-registered agent, for use with 'iam check --token'",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newNodeClient(nodeURL)
		var resp struct {
			Token string `json:"token"`
		}
		if err := c.do("POST", "/api/v1/iam/token", map[string]any{
			"agent_id": args[0],
		}, &resp); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), resp.Token)
		return nil
	},
}

var riskExplain bool

var iamRiskCmd = &cobra.Command{
	Use:   "risk <agent-id>",
	Short: "Show an agent's current risk score",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newNodeClient(nodeURL)
		path := "/api/v1/iam/agents/" + args[0] + "/risk"
		if riskExplain {
			path += "?explain=1"
		}
		var resp map[string]any
		if err := c.do("GET", path, nil, &resp); err != nil {
			return err
		}
		out, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	iamRegisterCmd.Flags().StringVar(&iamOwner, "owner", "", "owner of the agent being registered")
	iamRegisterCmd.Flags().StringVar(&iamPurpose, "purpose", "", "purpose of the agent being registered")

	iamGrantCmd.Flags().StringSliceVar(&grantActions, "actions", nil, "comma-separated list of actions to grant")
	iamGrantCmd.Flags().StringVar(&grantGrantedBy, "by", "", "identity of the granter")
	_ = iamGrantCmd.MarkFlagRequired("actions")

	iamRiskCmd.Flags().BoolVar(&riskExplain, "explain", false, "include the per-factor risk breakdown")

	iamCheckCmd.Flags().StringVar(&checkToken, "token", "", "bearer token identifying the checked agent (see 'iam token')")
	_ = iamCheckCmd.MarkFlagRequired("token")

	iamCmd.AddCommand(iamRegisterCmd)
	iamCmd.AddCommand(iamGrantCmd)
	iamCmd.AddCommand(iamRevokeCmd)
	iamCmd.AddCommand(iamCheckCmd)
	iamCmd.AddCommand(iamRiskCmd)
	iamCmd.AddCommand(iamTokenCmd)
}
