package cli

import (
	"github.com/spf13/cobra"

	"github.com/esprit-sec/esprit/internal/config"
	"github.com/esprit-sec/esprit/internal/dashboard"
	"github.com/esprit-sec/esprit/internal/logging"
	"github.com/esprit-sec/esprit/internal/pricing"
	"github.com/esprit-sec/esprit/internal/tracer"
)

var (
	servePort    int
	serveRunName string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the live scan dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		port := servePort
		if port == 0 {
			port = config.Get().Dashboard.Port
		}

		logger := logging.FromContext(cmd.Context())
		tr := tracer.New(serveRunName)
		bridge := dashboard.NewBridge(tr, pricing.New(logger), logger)
		srv := dashboard.NewServer(bridge, port, logger)

		if !quiet {
			out("Dashboard: %s\n", srv.URL())
		}
		return srv.Start(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (defaults to the configured dashboard port)")
	serveCmd.Flags().StringVar(&serveRunName, "run-name", "esprit", "Run name shown in the dashboard")
}
