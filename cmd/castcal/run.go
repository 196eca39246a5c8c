package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"castcal/internal/config"
	appLog "castcal/internal/log"
	"castcal/internal/pipeline"
	"castcal/internal/web"
)

func newRunCmd(a *app) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Refresh on the configured schedule and serve the latest image over HTTP.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			conf, err := a.load()
			if err != nil {
				return err
			}
			return a.serve(ctx, conf, watch)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", true, "reload the config file when it changes")

	return cmd
}

func (a *app) serve(ctx context.Context, conf *config.Config, watch bool) error {
	appLog.Info("castcal starting", "version", version)

	pipe, err := pipeline.FromConfig(conf)
	if err != nil {
		return err
	}

	current := &livePipeline{}
	current.p.Store(pipe)

	sched := &scheduler{target: current}
	if err := sched.reset(conf); err != nil {
		return err
	}
	defer sched.stop()

	srv := web.NewServer(conf, current, nil)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.ListenAndServe(gCtx)
	})

	// First render right away rather than waiting for the first tick.
	g.Go(func() error {
		current.refresh(gCtx, "startup")
		return nil
	})

	if watch {
		g.Go(func() error {
			// Only the watcher goroutine touches applied.
			applied := conf
			return config.Watch(gCtx, a.configPath, func(next *config.Config) {
				if a.reload(gCtx, applied, next, current, sched, srv) {
					applied = next
				}
			})
		})
	}

	if err := g.Wait(); err != nil {
		appLog.Error("castcal stopped with error", err)
		return err
	}

	appLog.Info("castcal exiting")
	return nil
}

// reload swaps in a pipeline, schedule and HTTP settings built from next
// and reports whether next was applied. The HTTP listener is not rebound.
func (a *app) reload(ctx context.Context, prev, next *config.Config, current *livePipeline, sched *scheduler, srv *web.Server) bool {
	a.applyLogLevel(next)

	if next.Listen != prev.Listen {
		appLog.Info("listen address changed; restart to apply", "listen", prev.Listen, "configured", next.Listen)
	}

	pipe, err := pipeline.FromConfig(next)
	if err != nil {
		appLog.Error("config reload: pipeline rejected", err)
		return false
	}
	if err := sched.reset(next); err != nil {
		appLog.Error("config reload: schedule rejected", err)
		return false
	}

	srv.SetConfig(next)
	appLog.Info("http settings updated",
		"basic_auth", web.BasicAuthEnabled(next),
		"discovery_timeout", next.DiscoveryTimeout,
	)

	current.p.Store(pipe)
	current.refresh(ctx, "config reload")
	return true
}

// livePipeline forwards to whichever pipeline the latest config produced.
type livePipeline struct {
	p atomic.Pointer[pipeline.Pipeline]
}

func (l *livePipeline) Run(ctx context.Context) (*pipeline.Result, error) {
	return l.p.Load().Run(ctx)
}

func (l *livePipeline) Last() (*pipeline.Result, error) {
	return l.p.Load().Last()
}

func (l *livePipeline) refresh(ctx context.Context, reason string) {
	if _, err := l.Run(ctx); err != nil {
		appLog.Error("refresh failed", err, "reason", reason)
	}
}

// scheduler owns the cron instance driving periodic refreshes.
type scheduler struct {
	target *livePipeline

	mu   sync.Mutex
	cron *cron.Cron
}

// reset replaces the running schedule with one for conf.
func (s *scheduler) reset(conf *config.Config) error {
	loc, err := conf.Location()
	if err != nil {
		return err
	}

	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cronLogger{}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{})),
	)
	if _, err := c.AddFunc(conf.RefreshCron, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		s.target.refresh(ctx, "schedule")
	}); err != nil {
		return fmt.Errorf("refresh schedule %q: %w", conf.RefreshCron, err)
	}

	s.mu.Lock()
	old := s.cron
	s.cron = c
	s.mu.Unlock()

	if old != nil {
		<-old.Stop().Done()
	}
	c.Start()

	if entries := c.Entries(); len(entries) > 0 {
		appLog.Info("refresh scheduled", "spec", conf.RefreshCron, "next", entries[0].Next.Format(time.RFC3339))
	}
	return nil
}

func (s *scheduler) stop() {
	s.mu.Lock()
	c := s.cron
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// cronLogger routes cron's own logging into the application log.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
