// Command colab is the CLI surface for the Runtime Session Core
// (component 4.Q): run, status, history, auth.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/colabcli/colab/internal/auth/google"
	"github.com/colabcli/colab/internal/colabapi"
	"github.com/colabcli/colab/internal/config"
	"github.com/colabcli/colab/internal/drive"
	"github.com/colabcli/colab/internal/history"
	"github.com/colabcli/colab/internal/logging"
	"github.com/colabcli/colab/internal/runtime"
)

// Exit codes per spec.md §4.Q: a slightly finer split than "0/non-zero".
const (
	exitOK        = 0
	exitExecution = 1
	exitUsage     = 2
	exitTransport = 3
)

// app bundles the bootstrapped collaborators every subcommand needs.
type app struct {
	cfg     *config.Config
	log     *logrus.Entry
	tokens  *google.TokenSource
	manager *runtime.Manager
	drive   *drive.Client
	client  *colabapi.Client
	watcher *config.Watcher
}

// bootstrap loads config, builds the logger, the Google token source, the
// runtime façade, and the Drive client, and wires the optional history
// export sinks named in cfg.HistorySinks.
func bootstrap(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(logging.FileConfig{})
	entry := logging.WithComponent(logger, "cli")

	clientID := os.Getenv("COLAB_CLIENT_ID")
	clientSecret := os.Getenv("COLAB_CLIENT_SECRET")
	tokens := google.New(clientID, clientSecret, cfg.AuthDir, entry)

	manager, err := runtime.New(cfg, tokens, cfg.HistoryPath, entry)
	if err != nil {
		return nil, fmt.Errorf("failed to build runtime manager: %w", err)
	}

	driveClient, err := drive.New(cfg, tokens)
	if err != nil {
		return nil, fmt.Errorf("failed to build drive client: %w", err)
	}

	client, err := colabapi.New(cfg, tokens)
	if err != nil {
		return nil, fmt.Errorf("failed to build colab api client: %w", err)
	}

	wireHistorySinks(cfg, manager, entry)
	watcher := watchConfig(configPath, cfg, entry)

	return &app{cfg: cfg, log: entry, tokens: tokens, manager: manager, drive: driveClient, client: client, watcher: watcher}, nil
}

// watchConfig starts hot-reloading the mutable sections of cfg (timeouts,
// keep-alive, proxy, history sinks) from configPath, in place. Only code
// that reads cfg after a reload sees the new values: kernel sessions
// connected afterwards pick up the WebSocket timeout and keep-alive
// settings. The HTTP transports keep the timeout, proxy and request-log
// settings they were built with, and the history sinks are wired once in
// bootstrap, so changes to those take effect on restart. HistoryPath/AuthDir never change underneath live
// collaborators (config.Watcher's own contract). Returns nil, logging at
// debug level, when configPath doesn't exist yet (fresh installs with only
// defaults) — hot-reload is a convenience, not a requirement to run.
func watchConfig(configPath string, cfg *config.Config, log *logrus.Entry) *config.Watcher {
	w, err := config.NewWatcher(configPath, cfg)
	if err != nil {
		log.Debugf("cli: config hot-reload disabled: %v", err)
		return nil
	}
	w.Subscribe(func(next *config.Config) {
		cfg.Timeouts = next.Timeouts
		cfg.KeepAlive = next.KeepAlive
		cfg.HistorySinks = next.HistorySinks
		cfg.ProxyURL = next.ProxyURL
		cfg.ProxyServices = next.ProxyServices
		cfg.RequestLog = next.RequestLog
	})
	return w
}

// wireHistorySinks starts the optional, best-effort history mirrors
// (component 4.O) when configured. Failures to build a sink are logged,
// never fatal: the append-only log on disk remains the source of truth.
func wireHistorySinks(cfg *config.Config, manager *runtime.Manager, log *logrus.Entry) {
	if cfg.HistorySinks.PostgresDSN != "" {
		pg, err := history.NewPostgresSink(context.Background(), cfg.HistorySinks.PostgresDSN, log)
		if err != nil {
			log.Warnf("cli: postgres history sink disabled: %v", err)
		} else {
			manager.SetHistoryMirror(func(entry history.Entry) {
				pg.Mirror(context.Background(), entry)
			})
		}
	}
	if cfg.HistorySinks.S3Bucket != "" {
		sink, err := history.NewS3Sink(
			cfg.HistorySinks.S3Endpoint,
			cfg.HistorySinks.S3AccessKeyID,
			cfg.HistorySinks.S3SecretAccessKey,
			cfg.HistorySinks.S3Bucket,
			cfg.HistorySinks.S3UseSSL,
			cfg.HistorySinks.BackupIntervalSec,
			manager.History(),
			log,
		)
		if err != nil {
			log.Warnf("cli: s3 history backup disabled: %v", err)
			return
		}
		go sink.Run(context.Background())
	}
}
