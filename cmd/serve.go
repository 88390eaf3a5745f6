package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"surveyor/config"
	"surveyor/store"
	"surveyor/wsbridge"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the websocket research server",
	Long: `Start a long-running server that accepts research requests over
WebSocket. Connected clients can launch runs, watch progress events live,
and query run history.`,
	Run: func(cmd *cobra.Command, args []string) {
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

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		orch, err := buildOrchestrator(ctx, cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		orch.SetStore(stores)

		addr := cfg.Server.ListenAddr()
		server := wsbridge.NewServer(addr, stores, orch)

		// Graceful shutdown
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-stop
			fmt.Println("\nShutting down...")
			cancel()
		}()

		fmt.Printf("Listening on ws://%s/ws\n", addr)
		if err := server.ListenAndServe(ctx); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&configPath, "config", "c", ".", "Path to config file or directory")
}
