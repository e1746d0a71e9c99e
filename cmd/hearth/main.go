// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command hearth runs the browsing supervision agent: it tracks browsing
// sessions, enforces the synced blocklist, and applies time restrictions.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"grimm.is/hearth/internal/agent"
	"grimm.is/hearth/internal/api"
	"grimm.is/hearth/internal/blocklist"
	"grimm.is/hearth/internal/broadcast"
	"grimm.is/hearth/internal/cloud"
	"grimm.is/hearth/internal/config"
	"grimm.is/hearth/internal/filter"
	"grimm.is/hearth/internal/host"
	"grimm.is/hearth/internal/logging"
	"grimm.is/hearth/internal/monitor"
	"grimm.is/hearth/internal/restrictions"
	"grimm.is/hearth/internal/session"
	"grimm.is/hearth/internal/state"
)

func main() {
	configPath := flag.String("config", "/etc/hearth/hearth.yaml", "Path to config file")
	stateDir := flag.String("state-dir", "/var/lib/hearth", "Directory for durable state")
	flag.Parse()

	if err := run(*configPath, *stateDir); err != nil {
		fmt.Fprintf(os.Stderr, "hearth: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, stateDir string) error {
	cfg, err := config.Load(configPath, stateDir)
	if err != nil {
		return err
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.StatePath), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	store, err := state.Open(cfg.Storage.StatePath)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer store.Close()

	installer, err := filter.NewFileInstaller(cfg.Storage.RulesPath, logger)
	if err != nil {
		return fmt.Errorf("open rule file: %w", err)
	}

	client := cloud.NewClient(cfg.Cloud.BaseURL, cfg.Cloud.Token, cfg.Cloud.DeviceID, logger)

	hub := broadcast.NewHub(logger)
	tracker := session.NewTracker(store, client, logger)
	tracker.SetAuthenticated(cfg.Cloud.Token != "")
	bl := blocklist.NewService(installer, store, logger)
	rc := restrictions.NewController(store, hub, tracker.SessionStart, logger)

	a := agent.New(agent.Deps{
		Tracker:       tracker,
		Blocklist:     bl,
		Restrictions:  rc,
		Client:        client,
		Source:        host.NewStdioSource(os.Stdin, logger),
		Logger:        logger,
		FlushInterval: cfg.FlushInterval,
		SyncInterval:  cfg.SyncInterval,
	})

	server := api.NewServer(cfg.API.Listen, tracker, bl, rc, hub, logger)
	server.OnConnectivityRestored = a.ConnectivityRestored

	mon := monitor.NewService(client, 30*time.Second, logger)
	mon.OnRestored = a.ConnectivityRestored

	a.Start()
	mon.Start()
	server.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutting down", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		logger.WithError(err).Warn("API shutdown incomplete")
	}
	mon.Stop()
	a.Stop()
	hub.Close()
	return nil
}
