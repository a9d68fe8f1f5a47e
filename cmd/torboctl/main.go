// Command torboctl is the admin CLI for a running torbobase node: it
// exercises the gateway's HTTP surface (agent CRUD, IAM grant/revoke/check,
// delegation) the way nap sits alongside the teacher's registry server.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	nodeURL string
	cfgFile string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "torboctl",
	Short: "Admin CLI for a Torbo Base node",
	Long: `torboctl talks to a running torbobase node's HTTP gateway: manage agent
personas, grant and check IAM permissions, and delegate tasks to peer nodes.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.torboctl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if nodeURL == "" {
			nodeURL = viper.GetString("node_url")
		}
		if nodeURL == "" {
			nodeURL = "http://localhost:7800"
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.torboctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&nodeURL, "node", "", "torbobase node base URL (default http://localhost:7800)")

	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(iamCmd)
	rootCmd.AddCommand(delegateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the torboctl CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println("torboctl " + version)
	},
}

var version = "dev"
