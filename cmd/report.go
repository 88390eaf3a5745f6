package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"surveyor/config"
	"surveyor/report"
	"surveyor/store"
)

var reportPrintHTML bool

var reportCmd = &cobra.Command{
	Use:   "report [report_name]",
	Short: "Run a configured report",
	Long: `Execute a report by name. Each query in the report block is
researched in turn, the essays are rendered into an HTML digest, and the
digest is mailed to the configured recipients.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		reportName := args[0]
		ctx := context.Background()

		cfg, err := config.LoadAndValidate(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		var reportCfg *config.ReportConfig
		for i := range cfg.Reports {
			if cfg.Reports[i].Name == reportName {
				reportCfg = &cfg.Reports[i]
				break
			}
		}
		if reportCfg == nil {
			fmt.Fprintf(os.Stderr, "Error: report '%s' not found in config\n", reportName)
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

		var mailer report.Mailer
		if reportCfg.SMTP != nil {
			mailer = report.NewSMTPMailer(reportCfg.SMTP)
		}

		runner := report.NewRunner(orch, stores.Reports, mailer, logger.Named("report"))
		rec, err := runner.Execute(ctx, reportCfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "\nReport failed: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Report '%s' complete (%d runs, id: %s)\n", reportName, len(rec.RunIDs), rec.ID)
		if reportPrintHTML {
			fmt.Println(rec.HTML)
		}
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringVarP(&configPath, "config", "c", ".", "Path to config file or directory")
	reportCmd.Flags().BoolVar(&reportPrintHTML, "html", false, "Print the rendered HTML to stdout")
}
