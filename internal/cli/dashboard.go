package cli

import (
	"Overlord/internal/di"
	applogger "Overlord/pkg/logger"

	"github.com/spf13/cobra"
)

var dashboardMode string

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Serve the polling and/or streaming dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		if dashboardMode != "" {
			appConfig.Dashboard.Mode = dashboardMode
			if err := appConfig.Validate(); err != nil {
				return err
			}
		}

		app, err := di.InitializeDashboardApp(appConfig, appLogger)
		if err != nil {
			return err
		}
		appLogger.Info("starting dashboards",
			applogger.String("mode", appConfig.Dashboard.Mode),
			applogger.String("backend", appConfig.Dashboard.BackendURL),
		)
		return app.Run(cmd.Context())
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardMode, "mode", "", "polling, streaming or both (overrides dashboard.mode)")
}
