package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/SteelMorgan/log-alert-monitor/internal/config"
	"github.com/SteelMorgan/log-alert-monitor/internal/history"
	"github.com/SteelMorgan/log-alert-monitor/internal/monitor"
	"github.com/SteelMorgan/log-alert-monitor/internal/notify"
	"github.com/SteelMorgan/log-alert-monitor/internal/offset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Monitoring.LogFile = filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, cfg.Validate())
	return &cfg
}

func TestBuildTransport(t *testing.T) {
	cfg := testConfig(t)

	tr, err := buildTransport(cfg)
	require.NoError(t, err)
	assert.IsType(t, &notify.SMTPTransport{}, tr)

	cfg.Transport.Kind = config.TransportTelegram
	cfg.Transport.Token = "token"
	cfg.Transport.ChatID = "1"
	tr, err = buildTransport(cfg)
	require.NoError(t, err)
	assert.IsType(t, &notify.TelegramTransport{}, tr)
}

func TestBuildDeps(t *testing.T) {
	cfg := testConfig(t)

	deps, closeDeps, err := buildDeps(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer closeDeps()

	assert.IsType(t, &offset.FileStore{}, deps.Store)
	assert.IsType(t, history.NopRecorder{}, deps.Recorder)
	assert.True(t, deps.Matcher.Match("x CRITICAL ERROR y"))

	_, err = monitor.NewEngine(monitor.OptionsFromConfig(cfg), deps)
	assert.NoError(t, err)
}

func TestBuildDeps_BoltBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Offset.Backend = offset.BackendBolt
	cfg.Offset.Path = filepath.Join(t.TempDir(), "offsets.db")

	deps, closeDeps, err := buildDeps(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer closeDeps()

	assert.IsType(t, &offset.BoltDBStore{}, deps.Store)
}
