package cli

import (
	"Overlord/internal/di"
	applogger "Overlord/pkg/logger"

	"github.com/spf13/cobra"
)

var feedBackend string

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Serve the webhook feed API the polling dashboard reads",
	RunE: func(cmd *cobra.Command, args []string) error {
		if feedBackend != "" {
			appConfig.Feed.Backend = feedBackend
			if err := appConfig.Validate(); err != nil {
				return err
			}
		}

		app, cleanup, err := di.InitializeFeedApp(appConfig, appLogger)
		if err != nil {
			return err
		}
		defer cleanup()

		appLogger.Info("starting feed api",
			applogger.String("backend", appConfig.Feed.Backend),
			applogger.String("cache", appConfig.Feed.Store.Cache),
		)
		return app.Run(cmd.Context())
	},
}

func init() {
	feedCmd.Flags().StringVar(&feedBackend, "backend", "", "direct, kafka or redis (overrides feed.backend)")
}
