package main

import (
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"

	"castcal/internal/config"
	appLog "castcal/internal/log"

	_ "time/tzdata"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "0.0.1-dev"

// app holds values shared by every subcommand.
type app struct {
	configPath string
	logLevel   string
}

func main() {
	defer appLog.Sync()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "castcal",
		Short: "Render ICS calendars into a multi-day image for a networked screen.",
		Long: `castcal fetches ICS subscriptions, lays the events of the next few days
out as rectangles on a day-column grid and renders the result to PNG.

The run command keeps doing that on a cron schedule and serves the latest
image over HTTP; render does a single pass; discover lists cast-capable
screens on the local network.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "/etc/castcal/config.yaml", "path to config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info or error (overrides config)")

	root.AddCommand(
		newRunCmd(a),
		newRenderCmd(a),
		newDiscoverCmd(a),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information.",
			Run: func(cmd *cobra.Command, _ []string) {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "castcal", version)
			},
		},
	)

	return root
}

// load reads the config file and applies the effective log level.
func (a *app) load() (*config.Config, error) {
	conf, err := config.Load(a.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", a.configPath)
		return nil, err
	}

	a.applyLogLevel(conf)

	appLog.Info("effective config",
		"config_path", a.configPath,
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"num_days", conf.NumDays,
		"day_start", conf.DayStart,
		"day_duration", conf.DayDuration,
		"ics_count", len(conf.ICS),
	)
	return conf, nil
}

func (a *app) applyLogLevel(conf *config.Config) {
	name := conf.LogLevel
	if a.logLevel != "" {
		name = a.logLevel
	}
	level, ok := appLog.ParseLevel(name)
	if !ok {
		appLog.Error("unknown log level; using info", fmt.Errorf("level %q", name))
	}
	appLog.SetLevel(level)
}
