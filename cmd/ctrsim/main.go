package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/app"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/infrastructure/server"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/logging"
	"github.com/GriffinCanCode/AgentOS/ctrkit/internal/simkernel"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// Flags override the environment
	flag.StringVar(&cfg.Kernel.LayoutFile, "layout", cfg.Kernel.LayoutFile, "Memory layout file (.yaml or .toml)")
	flag.StringVar(&cfg.Debug.Addr, "addr", cfg.Debug.Addr, "Debug server address")
	flag.BoolVar(&cfg.Logging.Development, "dev", cfg.Logging.Development, "Development logging")
	flag.BoolVar(&cfg.Demo.Enabled, "demo", cfg.Demo.Enabled, "Launch the demo application")
	flag.IntVar(&cfg.Demo.Rounds, "rounds", cfg.Demo.Rounds, "Demo rounds, 0 runs until shutdown")
	flag.Parse()

	if err := run(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig) (*logging.Logger, error) {
	if cfg.Development {
		return logging.New(logging.DevelopmentConfig())
	}
	lc := logging.DefaultConfig()
	lc.Level = cfg.Level
	return logging.New(lc)
}

func run(cfg *config.Config) error {
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	layout := simkernel.DefaultLayout()
	if cfg.Kernel.LayoutFile != "" {
		if layout, err = simkernel.LoadLayout(cfg.Kernel.LayoutFile); err != nil {
			return err
		}
		logger.Info("layout loaded", zap.String("file", cfg.Kernel.LayoutFile))
	}

	k, err := simkernel.New(
		simkernel.WithLogger(logger.Kernel()),
		simkernel.WithLayout(layout),
		simkernel.WithPoolSize(cfg.Kernel.PoolSize),
	)
	if err != nil {
		return fmt.Errorf("start kernel: %w", err)
	}
	defer k.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var metrics *monitoring.Metrics
	appOpts := []app.Option{app.WithLogger(logger.Named("app"))}
	if cfg.Debug.Metrics {
		metrics = monitoring.NewMetrics(reg)
		appOpts = append(appOpts, app.WithObserver(metrics))
	}
	apps := app.NewManager(k, appOpts...)
	defer apps.StopAll()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	if metrics != nil {
		g.Go(func() error {
			metrics.Run(ctx, k, time.Second)
			return nil
		})
	}

	if cfg.Debug.Enabled {
		srv := server.New(server.Config{
			Kernel:   k,
			Apps:     apps,
			Metrics:  metrics,
			Gatherer: reg,
			Logger:   logger.HTTP(),
			Release:  !cfg.Logging.Development,
		})
		g.Go(func() error { return srv.Run(ctx, cfg.Debug.Addr) })
	}

	if cfg.Demo.Enabled {
		demo := app.DefaultConfig()
		demo.Interval = cfg.Demo.Interval
		demo.Rounds = cfg.Demo.Rounds
		demo.WindowStart = cfg.SharedMem.WindowStart
		demo.WindowEnd = cfg.SharedMem.WindowEnd

		a, err := apps.Spawn("demo", demo)
		if err != nil {
			return err
		}
		// Without a debug server there is nothing left to serve once the
		// demo finishes.
		if !cfg.Debug.Enabled {
			g.Go(func() error {
				select {
				case <-a.Done():
					if info := a.Info(); info.State == app.StateFailed {
						return fmt.Errorf("demo failed: %s", info.LastError)
					}
				case <-ctx.Done():
				}
				stop()
				return nil
			})
		}
	}

	logger.Info("simulator running",
		zap.Bool("debug_server", cfg.Debug.Enabled),
		zap.Bool("metrics", cfg.Debug.Metrics),
		zap.Bool("demo", cfg.Demo.Enabled))

	<-ctx.Done()
	logger.Info("Shutting down gracefully...")
	return g.Wait()
}
