package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("{{.Version}}\n")
	rootCmd.Long = fmt.Sprintf(`Surveyor %s

HCL-configured CLI for multi-agent research.

Define models, research budgets, and reports in HCL configuration files,
then run queries with simple commands.

Get started:
  surveyor verify <path>     Validate your configuration
  surveyor research <query>  Run a research query
  surveyor serve             Run the websocket research server
  surveyor report <name>     Run a configured report`, Version)
}
