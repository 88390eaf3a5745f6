package cmd

import (
	"fmt"
	"os"
	"strings"

	"surveyor/config"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Verify that the configuration is valid",
	Long:  `Verify parses and validates the HCL configuration files. Path can be a file or directory.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		configPath := args[0]
		cfg, err := config.LoadAndValidate(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		// Check for unset variables
		var warnings []string
		for _, v := range cfg.Variables {
			resolved, _ := config.ResolveVariableValue(&v)
			if resolved == "" && v.Default == "" {
				warnings = append(warnings, fmt.Sprintf("variable '%s' has no default and no value set", v.Name))
			}
		}

		fmt.Printf("Configuration is valid!\n")
		fmt.Printf("Found %d model(s)\n", len(cfg.Models))
		for _, m := range cfg.Models {
			fmt.Printf("  - %s (provider: %s, models: %v)\n", m.Name, m.Provider, m.AllowedModels)
		}
		fmt.Printf("Found %d variable(s)\n", len(cfg.Variables))
		for _, v := range cfg.Variables {
			resolved, _ := config.ResolveVariableValue(&v)
			if v.Secret {
				if resolved != "" {
					fmt.Printf("  - %s (secret, set)\n", v.Name)
				} else {
					fmt.Printf("  - %s (secret, not set)\n", v.Name)
				}
			} else {
				fmt.Printf("  - %s = %q\n", v.Name, resolved)
			}
		}

		r := cfg.Research
		fmt.Printf("Research settings:\n")
		fmt.Printf("  - planner_model: %s\n", orDefault(r.PlannerModel))
		fmt.Printf("  - synthesis_model: %s\n", orDefault(r.SynthesisModel))
		fmt.Printf("  - max_subagents: %d, max_searches_per_agent: %d, max_rounds: %d\n",
			r.MaxSubagents, r.MaxSearchesPerAgent, r.MaxRounds)
		if r.Tiers != nil {
			fmt.Printf("  - tiers: light=%s medium=%s heavy=%s\n",
				orDefault(r.Tiers.Light), orDefault(r.Tiers.Medium), orDefault(r.Tiers.Heavy))
		}

		fmt.Printf("Storage: %s", cfg.Storage.Backend)
		if cfg.Storage.Backend == "sqlite" {
			fmt.Printf(" (%s)", cfg.Storage.Path)
		}
		fmt.Println()

		registry, _ := newToolsetBuilder(cfg.Search)()
		fmt.Printf("Subagent tools: %s\n", strings.Join(registry.SortedNames(), ", "))

		fmt.Printf("Found %d report(s)\n", len(cfg.Reports))
		for _, rep := range cfg.Reports {
			delivery := "stored only"
			if len(rep.Recipients) > 0 {
				delivery = fmt.Sprintf("mailed to %d recipient(s)", len(rep.Recipients))
			}
			fmt.Printf("  - %s (%d queries, %s)\n", rep.Name, len(rep.Queries), delivery)
		}

		if cfg.Server != nil {
			fmt.Printf("Server: %s\n", cfg.Server.ListenAddr())
		}

		if len(warnings) > 0 {
			fmt.Printf("\nWarnings:\n")
			for _, w := range warnings {
				fmt.Printf("  - %s\n", w)
			}
		}
	},
}

func orDefault(s string) string {
	if s == "" {
		return "(default)"
	}
	return s
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
