package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"castcal/internal/discovery"
	appLog "castcal/internal/log"
)

func newDiscoverCmd(a *app) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List cast-capable screens on the local network.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := a.load()
			if err != nil {
				return err
			}
			if timeout <= 0 {
				timeout = conf.DiscoveryTimeout
			}

			devices, err := discovery.ScanOnce(cmd.Context(), timeout)
			if err != nil {
				appLog.Error("device scan failed", err)
				return err
			}

			appLog.Info("device scan completed", "found", len(devices), "timeout", timeout)
			for _, d := range devices {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", d.Addr, d.Name, d.Hostname)
			}
			return nil
		},
	}

	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "how long to browse (default from config)")

	return cmd
}
