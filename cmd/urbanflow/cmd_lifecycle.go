package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/urbanflow/internal/state"
)

func init() {
	rootCmd.AddCommand(stopCmd, restartCmd)
}

// readPID reads the daemon PID recorded under dataDir and validates the
// process is alive by sending signal 0.
func readPID(dataDir string) (int, error) {
	pidPath := filepath.Join(dataDir, "urbanflow.pid")

	data, err := os.ReadFile(pidPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("no running daemon (PID file not found in %s)", dataDir)
		}
		return 0, fmt.Errorf("read PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file content: %w", err)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return 0, fmt.Errorf("no running daemon (process %d not found)", pid)
	}

	return pid, nil
}

// archiveSummary describes what survives a shutdown: the session archive is
// on disk, so stopping the daemon loses nothing but in-flight runs.
func archiveSummary(dataDir string) string {
	sessions, err := state.NewSessionStore(dataDir).List(context.Background())
	if err != nil || len(sessions) == 0 {
		return "no archived sessions"
	}
	var messages int64
	for _, sess := range sessions {
		messages += sess.MessageCount
	}
	noun := "sessions"
	if len(sessions) == 1 {
		noun = "session"
	}
	return fmt.Sprintf("%d archived %s (%d messages) kept in %s",
		len(sessions), noun, messages, filepath.Join(dataDir, "sessions"))
}

// waitForExit polls the process until it is gone or the deadline passes.
func waitForExit(pid int, deadline time.Duration) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return true
	}
	until := time.Now().Add(deadline)
	for time.Now().Before(until) {
		if err := proc.Signal(syscall.Signal(0)); err != nil {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return false
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon, keeping the session archive",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		pid, err := readPID(cfg.DataDir)
		if err != nil {
			return err
		}

		proc, err := os.FindProcess(pid)
		if err != nil {
			return fmt.Errorf("find process: %w", err)
		}
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			return fmt.Errorf("send SIGTERM: %w", err)
		}

		if waitForExit(pid, 5*time.Second) {
			fmt.Fprintf(cmd.OutOrStdout(), "Daemon (PID %d) stopped; %s.\n", pid, archiveSummary(cfg.DataDir))
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Sent SIGTERM to daemon (PID %d); still shutting down.\n", pid)
		}
		return nil
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the running daemon in place",
	Long: `Restart asks the daemon to re-exec itself via SIGHUP. The on-disk session
archive is preserved across the restart; in-flight simulation runs are
abandoned.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		pid, err := readPID(cfg.DataDir)
		if err != nil {
			return err
		}

		proc, err := os.FindProcess(pid)
		if err != nil {
			return fmt.Errorf("find process: %w", err)
		}
		if err := proc.Signal(syscall.SIGHUP); err != nil {
			return fmt.Errorf("send SIGHUP: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Asked daemon (PID %d) to restart; %s.\n", pid, archiveSummary(cfg.DataDir))
		return nil
	},
}
