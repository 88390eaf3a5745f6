package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"surveyor/config"
	"surveyor/store"
	"surveyor/streamers"
	"surveyor/streamers/cli"
)

var researchCmd = &cobra.Command{
	Use:   "research [query]",
	Short: "Run a research query",
	Long: `Execute a research query end to end. The query is decomposed into
sub-tasks, researched by parallel subagents, and synthesized into an essay.
Runs are recorded in the configured store.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		query := strings.Join(args, " ")
		ctx := context.Background()

		cfg, err := config.LoadAndValidate(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		stores, err := store.NewBundle(cfg.Storage)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
			os.Exit(1)
		}
		defer stores.Close()

		logger := newLogger()
		orch, err := buildOrchestrator(ctx, cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		orch.SetStore(stores)

		var handler streamers.ResearchHandler = cli.NewResearchHandler()
		if stores.Events != nil {
			handler = streamers.NewStoringResearchHandler(handler, stores.Events)
		}

		if _, err := orch.Run(ctx, query, handler); err != nil {
			fmt.Fprintf(os.Stderr, "\nResearch failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(researchCmd)
	researchCmd.Flags().StringVarP(&configPath, "config", "c", ".", "Path to config file or directory")
}
