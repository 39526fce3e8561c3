package cli

import (
	"time"

	"Overlord/internal/di"
	applogger "Overlord/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	simulateURL      string
	simulateInterval time.Duration
	simulateOnce     bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Post simulated market data to a running feed API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateURL != "" {
			appConfig.Simulator.FeedURL = simulateURL
		}
		if simulateInterval > 0 {
			appConfig.Simulator.Interval = simulateInterval
		}
		if err := appConfig.Validate(); err != nil {
			return err
		}

		if simulateOnce {
			sim := di.ProvideSimulator(appConfig, di.ProvideFeedClient(appConfig), appLogger)
			return sim.Tick(cmd.Context())
		}

		app, err := di.InitializeSimulatorApp(appConfig, appLogger)
		if err != nil {
			return err
		}
		appLogger.Info("starting simulator",
			applogger.String("feed", appConfig.Simulator.FeedURL),
			applogger.Duration("interval", appConfig.Simulator.Interval),
		)
		return app.Run(cmd.Context())
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateURL, "url", "", "Feed API base URL (overrides simulator.feed_url)")
	simulateCmd.Flags().DurationVar(&simulateInterval, "interval", 0, "Time between updates (overrides simulator.interval)")
	simulateCmd.Flags().BoolVar(&simulateOnce, "once", false, "Send a single update and exit")
}
