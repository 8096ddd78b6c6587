package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SteelMorgan/log-alert-monitor/internal/monitor"
	"github.com/SteelMorgan/log-alert-monitor/internal/observability"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var runOnce bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Monitor the configured log file until interrupted",
	RunE:  runMonitor,
}

func init() {
	runCmd.Flags().BoolVar(&runOnce, "once", false, "run a single poll cycle and exit")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	observability.InitLogger(cfg.Logging.Level, cfg.Logging.File)

	log.Info().
		Str("version", Version).
		Msg("Starting log alert monitor")

	shutdownTracer, err := observability.InitTracer(observability.TracerConfig{
		ServiceName:    "log-alert-monitor",
		ServiceVersion: Version,
		Endpoint:       cfg.Tracing.Endpoint,
		Protocol:       cfg.Tracing.Protocol,
		Enabled:        cfg.Tracing.Enabled,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize tracer")
	} else {
		defer shutdownTracer(context.Background())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics("logmon")
		metrics.Serve(cfg.Metrics.Listen, cfg.Metrics.Path)
		defer func() {
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelShutdown()
			metrics.Shutdown(shutdownCtx)
		}()
	}

	deps, closeDeps, err := buildDeps(ctx, cfg, metrics)
	if err != nil {
		return fmt.Errorf("failed to initialize monitor: %w", err)
	}
	defer closeDeps()

	engine, err := monitor.NewEngine(monitor.OptionsFromConfig(cfg), deps)
	if err != nil {
		return fmt.Errorf("failed to create monitor: %w", err)
	}

	if runOnce {
		stats, err := engine.PollOnce(ctx)
		if err != nil {
			return err
		}
		log.Info().
			Int("lines", stats.LinesRead).
			Int("matched", stats.Matched).
			Int("dispatch_failures", stats.DispatchFailures).
			Int64("offset", stats.Offset).
			Msg("Single poll cycle complete")
		return nil
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	return engine.Run(ctx)
}
