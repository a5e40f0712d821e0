package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/urbanflow/internal/config"
	"github.com/user/urbanflow/internal/gateway"
	"github.com/user/urbanflow/internal/monitor"
	"github.com/user/urbanflow/internal/orchestrator"
	"github.com/user/urbanflow/internal/server"
	"github.com/user/urbanflow/internal/state"
	"github.com/user/urbanflow/internal/telegram"
	"github.com/user/urbanflow/internal/workspace"
	"github.com/user/urbanflow/pkg/agent"
	"github.com/user/urbanflow/pkg/agent/rest"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the urbanflow daemon",
	RunE:  runServe,
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, "urbanflow.pid")
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

// newProvider builds the REST backend client from config. An empty backend
// URL yields nil, which the gateway treats as demo mode.
func newProvider(cfg *config.Config) agent.Provider {
	if !cfg.Configured() {
		return nil
	}
	return rest.New(&agent.Config{
		BaseURL: cfg.Backend.BaseURL,
		APIKey:  cfg.Backend.APIKey,
		Timeout: time.Duration(cfg.Backend.TimeoutSecs) * time.Second,
	})
}

func newGateway(cfg *config.Config) *gateway.Gateway {
	return gateway.New(newProvider(cfg), gateway.WithTimeout(time.Duration(cfg.Backend.TimeoutSecs)*time.Second))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	// Stores
	sessions := state.NewSessionStore(cfg.DataDir)
	transcripts := state.NewTranscriptStore(cfg.DataDir)
	reports := state.NewReportStore(cfg.DataDir)

	gw := newGateway(cfg)

	registry := workspace.NewRegistry(gw, sessions, transcripts,
		orchestrator.WithTranscriptBudget(cfg.Chat.TranscriptTokens))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := workspace.NewQueue(int64(cfg.MaxConcurrent))
	queue.Start(ctx)
	defer queue.Stop()

	poller := workspace.NewPoller(registry, queue,
		time.Duration(cfg.Simulation.PollIntervalSecs)*time.Second)
	go poller.Run(ctx)

	// Backend health monitor
	mon := monitor.New(gw, cfg.Health.Schedule)
	if err := mon.Start(); err != nil {
		return fmt.Errorf("start health monitor: %w", err)
	}
	defer mon.Stop()

	mode := "demo"
	if cfg.Configured() {
		mode = "live"
	}
	slog.Info("urbanflow started",
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"max_concurrent", cfg.MaxConcurrent,
		"mode", mode,
		"pid_file", pidPath,
	)

	// Telegram adapter
	if cfg.Telegram.Token != "" {
		adapter, err := telegram.New(cfg.Telegram.Token, registry, queue)
		if err != nil {
			return fmt.Errorf("create telegram adapter: %w", err)
		}
		go adapter.Start(ctx)
		slog.Info("telegram adapter started")
	} else {
		slog.Warn("telegram adapter disabled (no token)")
	}

	// HTTP API
	srv := server.NewServer(registry, queue, sessions, transcripts, reports, mon)
	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv,
	}
	go func() {
		slog.Info("api server started", "listen", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("api server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		httpServer.Close()
	}()

	// Hot-apply config edits: log level and the backend endpoint take effect
	// without a restart, so editing backend.base_url switches a running
	// daemon between demo and live. Listen address changes still need one.
	watcher := config.NewWatcher(cfgPath, slog.Default(), func(fresh *config.Config) {
		setupLogging(fresh)
		gw.SetProvider(newProvider(fresh))
		mon.Refresh()
	})
	if err := watcher.Start(ctx); err != nil {
		slog.Warn("config watcher disabled", "error", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			slog.Info("received SIGHUP, restarting")
			execPath, err := os.Executable()
			if err != nil {
				slog.Error("failed to get executable path", "error", err)
				continue
			}
			// Clean up PID file before re-exec
			os.Remove(pidPath)
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				slog.Error("failed to re-exec", "error", err)
				// Re-write PID file since we failed to re-exec
				if _, writeErr := writePIDFile(cfg.DataDir); writeErr != nil {
					slog.Error("failed to re-write PID file", "error", writeErr)
				}
				continue
			}
		}
		// SIGINT or SIGTERM
		slog.Info("shutting down", "signal", sig)
		return nil
	}
}
