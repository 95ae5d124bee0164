package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-douban/server"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the scrape API over HTTP",
		Long: `Serve exposes POST /api/douban/scrape, GET /metrics and GET /healthz.

The request body is {"cookies": "...", "method": "http"|"browser"}.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.ListenAddr = listen
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return server.New(cfg).ListenAndServe(ctx, cfg.ListenAddr)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", ":8080", "HTTP listen address")
	return cmd
}
