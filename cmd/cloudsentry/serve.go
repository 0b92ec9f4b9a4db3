package main

import (
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/skywardsec/cloudsentry/pkg/events"
	"github.com/skywardsec/cloudsentry/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard backend over the persisted tables",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		hub := events.NewHub(logger)
		go hub.Run(ctx)

		srv := server.New(cfg, logger, hub)
		err := srv.ListenAndServe(ctx)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		logger.Info().Msg("dashboard backend stopped")
		return nil
	},
}
