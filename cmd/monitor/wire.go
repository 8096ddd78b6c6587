package main

import (
	"context"
	"fmt"

	"github.com/SteelMorgan/log-alert-monitor/internal/clickhouse"
	"github.com/SteelMorgan/log-alert-monitor/internal/config"
	"github.com/SteelMorgan/log-alert-monitor/internal/history"
	"github.com/SteelMorgan/log-alert-monitor/internal/matcher"
	"github.com/SteelMorgan/log-alert-monitor/internal/monitor"
	"github.com/SteelMorgan/log-alert-monitor/internal/notify"
	"github.com/SteelMorgan/log-alert-monitor/internal/observability"
	"github.com/SteelMorgan/log-alert-monitor/internal/offset"
	"github.com/SteelMorgan/log-alert-monitor/internal/tailer"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.New(), cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func buildTransport(cfg *config.Config) (notify.Transport, error) {
	t := cfg.Transport
	switch t.Kind {
	case config.TransportTelegram:
		return notify.NewTelegramTransport(t.Endpoint, t.Token, t.ChatID, cfg.TransportTimeout())
	default:
		return notify.NewSMTPTransport(notify.SMTPConfig{
			Endpoint: t.Endpoint,
			Username: t.Username,
			Password: t.Password,
			From:     t.From,
			To:       t.To,
			TLS:      t.TLS,
			Timeout:  cfg.TransportTimeout(),
		})
	}
}

func buildDispatcher(cfg *config.Config) (*notify.Dispatcher, error) {
	transport, err := buildTransport(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid transport settings: %w", err)
	}
	return notify.NewDispatcher(transport, cfg.Transport.Subject, cfg.TransportTimeout()), nil
}

// buildRecorder connects the optional ClickHouse history mirror
// An unreachable ClickHouse disables history instead of blocking the monitor
func buildRecorder(ctx context.Context, cfg *config.Config) (history.Recorder, func()) {
	if !cfg.History.Enabled {
		return history.NopRecorder{}, func() {}
	}

	client, err := clickhouse.NewClient(ctx, clickhouse.Options{
		Host:     cfg.History.ClickHouseHost,
		Port:     cfg.History.ClickHousePort,
		Database: cfg.History.ClickHouseDB,
		Username: cfg.History.ClickHouseUser,
		Password: cfg.History.ClickHousePassword,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Alert history disabled")
		return history.NopRecorder{}, func() {}
	}

	recorder, err := history.NewClickHouseRecorder(ctx, client)
	if err != nil {
		log.Warn().Err(err).Msg("Alert history disabled")
		client.Close()
		return history.NopRecorder{}, func() {}
	}

	return recorder, func() {
		recorder.Close()
		client.Close()
	}
}

// buildDeps wires the engine collaborators; the returned func releases them
func buildDeps(ctx context.Context, cfg *config.Config, metrics *observability.Metrics) (monitor.Deps, func(), error) {
	m, err := matcher.New(cfg.Monitoring.MatchMode, cfg.Monitoring.AlertMarker, cfg.Monitoring.CaseInsensitive)
	if err != nil {
		return monitor.Deps{}, nil, err
	}

	dispatcher, err := buildDispatcher(cfg)
	if err != nil {
		return monitor.Deps{}, nil, err
	}

	store, err := offset.Open(cfg.Offset.Backend, cfg.Offset.Path)
	if err != nil {
		return monitor.Deps{}, nil, err
	}

	recorder, closeRecorder := buildRecorder(ctx, cfg)

	deps := monitor.Deps{
		Store:      store,
		Reader:     tailer.NewReader(cfg.Monitoring.MaxReadBytes),
		Matcher:    m,
		Dispatcher: dispatcher,
		Recorder:   recorder,
		Metrics:    metrics,
	}

	closeAll := func() {
		closeRecorder()
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close offset store")
		}
	}

	return deps, closeAll, nil
}
