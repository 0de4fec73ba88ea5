package main

import (
	"context"
	"time"

	"github.com/arkilian/spacemeta/internal/advisor"
	"github.com/arkilian/spacemeta/internal/observability"
	"github.com/arkilian/spacemeta/internal/planner"
	"github.com/arkilian/spacemeta/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	var (
		addr            string
		shutdownTimeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve resolution, metrics and the index advisor over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			if addr != "" {
				e.cfg.Metrics.Addr = addr
			}
			return serve(cmd.Context(), e, shutdownTimeout)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (default from config)")
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second, "maximum time for graceful shutdown")
	return cmd
}

// serve runs until a signal arrives. The environment is closed by the
// shutdown manager.
func serve(ctx context.Context, e *env, shutdownTimeout time.Duration) error {
	cfg := e.cfg
	logger := e.logger

	sm := server.NewShutdownManager(server.ShutdownConfig{
		ShutdownTimeout: shutdownTimeout,
	}, logger)
	sm.RegisterCloser(e)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := observability.Register(reg); err != nil {
		sm.Shutdown(context.Background(), "metrics registration failed")
		return err
	}

	stats := observability.NewQueryStats(cfg.Advisor.StatsWindow)
	resolver, err := planner.NewResolver(e.schema, cfg.Resolver.CacheSize,
		planner.WithStats(stats), planner.WithLogger(logger))
	if err != nil {
		sm.Shutdown(context.Background(), "resolver setup failed")
		return err
	}
	adv := advisor.New(e.schema, stats, cfg.Advisor, logger)

	handler := server.NewHandler(server.Deps{
		Schema:   e.schema,
		Resolver: resolver,
		Advisor:  adv,
		Gatherer: reg,
		Logger:   logger,
	}, sm)
	httpServer := server.NewHTTPServer(cfg.Metrics.Addr, handler, sm)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	// Stop background loops before the catalog is closed.
	sm.RegisterCloser(server.CloserFunc(func() error {
		cancel()
		return nil
	}))
	g, gctx := errgroup.WithContext(runCtx)

	if cfg.Metrics.Addr != "" {
		g.Go(func() error {
			logger.Info("http server listening", zap.String("addr", cfg.Metrics.Addr))
			return httpServer.ListenAndServe()
		})
	}
	changes := e.changes.Subscribe("resolver")
	g.Go(func() error {
		resolver.Watch(gctx, changes.Ch)
		return nil
	})
	g.Go(func() error {
		logger.Info("index advisor started",
			zap.Int64("threshold", cfg.Advisor.Threshold),
			zap.Duration("interval", cfg.Advisor.Interval),
			zap.Bool("auto_create", cfg.Advisor.AutoCreate))
		adv.Run(gctx)
		return nil
	})
	g.Go(func() error {
		// Keep the space cache in step with changes made by other processes.
		ticker := time.NewTicker(cfg.Advisor.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				stale, err := e.schema.Stale(gctx)
				if err != nil {
					logger.Warn("staleness check failed", zap.Error(err))
					continue
				}
				if stale {
					if err := e.schema.Refresh(gctx); err != nil {
						logger.Warn("schema refresh failed", zap.Error(err))
					}
				}
			}
		}
	})
	g.Go(func() error {
		err := sm.ListenForSignals(gctx)
		cancel()
		return err
	})

	return g.Wait()
}
