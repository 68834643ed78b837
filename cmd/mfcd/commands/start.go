package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/marmos91/mfcd/internal/logger"
	"github.com/marmos91/mfcd/pkg/config"
	"github.com/marmos91/mfcd/pkg/controlplane"
	"github.com/marmos91/mfcd/pkg/controlplane/ipc"
	"github.com/marmos91/mfcd/pkg/mrt"
)

var (
	foreground bool
	pidFile    string
	logFile    string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the mfcd multicast forwarding daemon",
	Long: `Start mfcd, which opens the kernel's IPv4 Multicast Forwarding Cache and
exposes a declarative rule API over a local Unix socket.

By default, the daemon runs in the background. Use --foreground to run in
the foreground for debugging or when managed by a process supervisor.

mfcd requires CAP_NET_ADMIN (typically root) and exits nonzero if launched
unprivileged.

Examples:
  # Start in background (default)
  mfcd start

  # Start in foreground
  mfcd start --foreground

  # Start with a custom config file
  mfcd start --config /etc/mfcd/mfcd.conf`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (default: background/daemon mode)")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: "+GetDefaultPidFile()+")")
	startCmd.Flags().StringVar(&logFile, "log-file", "", "Path to log file for daemon mode (default: "+GetDefaultLogFile()+")")
}

func runStart(cmd *cobra.Command, args []string) error {
	if !foreground {
		return startDaemon()
	}

	if err := requireNetAdmin(); err != nil {
		return err
	}

	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("mfcd starting",
		logger.SocketPath(cfg.SocketPath),
		logger.StateFile(cfg.StateFile),
		slog.String("config_source", getConfigSource(GetConfigFile())),
	)

	engine := &mrt.Engine{}
	if err := engine.Open(); err != nil {
		return fmt.Errorf("failed to initialize kernel multicast engine: %w", err)
	}

	ctrl := controlplane.New(engine)
	ipc.Bootstrap(cfg.StateFile, ctrl)

	srv := ipc.New(cfg.SocketPath, cfg.SocketGroup, cfg.StateFile, ctrl)

	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("mfcd is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, initiating graceful shutdown")
		cancel()
		if err := <-serverDone; err != nil {
			logger.Error("control plane server shutdown error", logger.Err(err))
			return err
		}
		logger.Info("mfcd stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("control plane server error", logger.Err(err))
			return err
		}
		logger.Info("mfcd stopped")
	}

	return nil
}

// requireNetAdmin exits nonzero when mfcd is launched unprivileged.
// CAP_NET_ADMIN is normally only held by root, so an effective UID check is
// the practical proxy used at startup; the real gate is MRT_INIT returning
// EPERM, which engine.Open surfaces regardless.
func requireNetAdmin() error {
	if unix.Geteuid() != 0 {
		return fmt.Errorf("mfcd requires CAP_NET_ADMIN (run as root)")
	}
	return nil
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if _, err := os.Stat(config.DefaultConfigPath()); err == nil {
		return config.DefaultConfigPath()
	}
	return "defaults"
}
