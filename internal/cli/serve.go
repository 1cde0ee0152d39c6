package cli

import (
	"os"
	"os/signal"
	"syscall"

	"route-pipeline/internal/api"
	"route-pipeline/internal/api/handler"
	"route-pipeline/pkg/router"

	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the status API, metrics and swagger UI",
	Long: `Serve the read-only status API under /api/v1, Prometheus metrics under
/metrics and the API documentation under /swagger/. POST /api/v1/collect
starts a run in the background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		r := router.New(logger)
		h := handler.New(ctx, db, orch, logger)
		api.RegisterRoutes(r, h, orch.Metrics().HTTPHandler())

		logger.Info("swagger UI available", "url", "http://localhost"+serveAddr+"/swagger/index.html")
		return r.Start(ctx, serveAddr)
	},
}

func init() {
	addr := os.Getenv("ROUTEPIPE_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	serveCmd.Flags().StringVar(&serveAddr, "addr", addr, "listen address (env ROUTEPIPE_ADDR)")
}
