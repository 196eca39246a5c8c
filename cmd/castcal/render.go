package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	appLog "castcal/internal/log"
	"castcal/internal/pipeline"
)

func newRenderCmd(a *app) *cobra.Command {
	var (
		out     string
		dumpDir string
		date    string
		demo    bool
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Run one fetch, layout and render pass and exit.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := a.load()
			if err != nil {
				return err
			}
			if out != "" {
				conf.Output = out
			}
			if date != "" {
				conf.StartDate = date
				if err := conf.Validate(); err != nil {
					return err
				}
			}

			var pipe *pipeline.Pipeline
			if demo {
				// Sample events go on the first rendered day, pinned or not.
				lc, err := conf.LayoutConfig(time.Now())
				if err != nil {
					return err
				}
				pipe = pipeline.New(conf, pipeline.DemoEvents(lc.StartDate, lc.Location))
			} else {
				pipe, err = pipeline.FromConfig(conf)
				if err != nil {
					return err
				}
			}

			res, err := pipe.Run(cmd.Context())
			if err != nil {
				appLog.Error("render failed", err)
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d events\t%d drawings\n",
				res.Window, len(res.Events), len(res.Drawings))

			if dumpDir != "" {
				if err := pipeline.Dump(dumpDir, res); err != nil {
					appLog.Error("dump failed", err, "dir", dumpDir)
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "PNG output path (overrides config)")
	cmd.Flags().StringVar(&dumpDir, "dump", "", "also write black.bin and red.bin ink planes into this directory")
	cmd.Flags().StringVar(&date, "date", "", "first day to show, YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&demo, "demo", false, "render sample events instead of the configured feeds")

	return cmd
}
