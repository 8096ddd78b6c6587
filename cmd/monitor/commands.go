package main

import (
	"context"
	"fmt"
	"time"

	"github.com/SteelMorgan/log-alert-monitor/internal/config"
	"github.com/SteelMorgan/log-alert-monitor/internal/domain"
	"github.com/SteelMorgan/log-alert-monitor/internal/observability"
	"github.com/SteelMorgan/log-alert-monitor/internal/offset"
	"github.com/spf13/cobra"
)

var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write a starter configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = "config.yaml"
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Printf("Created default configuration file at %s\n", path)
		return nil
	},
}

var offsetCmd = &cobra.Command{
	Use:   "offset",
	Short: "Inspect or reset the saved read offset",
}

var offsetShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the saved offset of the monitored file",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, cfg *config.Config, store offset.OffsetStore) error {
			off, err := store.Get(ctx, cfg.Monitoring.LogFile)
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%d\n", cfg.Monitoring.LogFile, off)
			return nil
		})
	},
}

var offsetResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget the saved offset so the next run reads the file from the start",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, cfg *config.Config, store offset.OffsetStore) error {
			if err := store.Delete(ctx, cfg.Monitoring.LogFile); err != nil {
				return err
			}
			fmt.Printf("Offset for %s reset\n", cfg.Monitoring.LogFile)
			return nil
		})
	},
}

var testAlertCmd = &cobra.Command{
	Use:   "test-alert",
	Short: "Send one test notification through the configured transport",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		observability.InitLogger(cfg.Logging.Level, cfg.Logging.File)

		dispatcher, err := buildDispatcher(cfg)
		if err != nil {
			return err
		}

		now := time.Now()
		line := domain.LogLine{Text: fmt.Sprintf("%s - CRITICAL ERROR - test alert from logmon", now.Format(time.RFC3339))}
		event := domain.NewAlertEvent(line, cfg.Monitoring.LogFile, now)

		_, err = dispatcher.Dispatch(context.Background(), event)
		return err
	},
}

func init() {
	offsetCmd.AddCommand(offsetShowCmd)
	offsetCmd.AddCommand(offsetResetCmd)
}

func withStore(fn func(ctx context.Context, cfg *config.Config, store offset.OffsetStore) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := offset.Open(cfg.Offset.Backend, cfg.Offset.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(context.Background(), cfg, store)
}
