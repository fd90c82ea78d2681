// Package daemon implements the daemon process lifecycle.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"icc.tech/netscope/internal/capture"
	"icc.tech/netscope/internal/command"
	"icc.tech/netscope/internal/config"
	logpkg "icc.tech/netscope/internal/log"
	"icc.tech/netscope/internal/metrics"
)

// Daemon manages the netscope daemon process lifecycle.
type Daemon struct {
	config     *config.Config
	configPath string
	socketPath string
	pidFile    string

	controller    *capture.Controller
	cmdHandler    *command.Handler
	udsServer     *command.UDSServer
	metricsServer *metrics.Server // nil if metrics disabled

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownChan chan struct{}
	sigChan      chan os.Signal
}

// New creates a new Daemon instance. configPath may be empty, in which case
// built-in defaults apply. socketPath and pidFile override the config when
// non-empty.
func New(configPath, socketPath, pidFile string) (*Daemon, error) {
	var cfg *config.Config
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	if socketPath == "" {
		socketPath = cfg.Control.Socket
	}
	if pidFile == "" {
		pidFile = cfg.Control.PIDFile
	}

	d := &Daemon{
		config:       cfg,
		configPath:   configPath,
		socketPath:   socketPath,
		pidFile:      pidFile,
		shutdownChan: make(chan struct{}),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())

	return d, nil
}

// Start initializes and starts all daemon components.
func (d *Daemon) Start() error {
	// 1. Initialize logging system
	if err := logpkg.Init(d.config.Log); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	slog.Info("starting netscope daemon",
		"version", command.Version,
		"config", d.configPath,
		"socket", d.socketPath,
	)

	// 2. Write PID file
	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	// 3. Start metrics server
	if err := d.startMetrics(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// 4. Create the capture controller
	d.controller = capture.New(capture.Config{
		HandleKind:  d.config.Capture.Handle,
		SnapLen:     d.config.Capture.SnapLen,
		Promiscuous: d.config.Capture.Promiscuous,
		ReadTimeout: d.config.Capture.ReadTimeoutDuration(),
	})

	// 5. Create command handler and wire the shutdown callback
	d.cmdHandler = command.NewHandler(d.controller, d.config.Delivery.Capacity)
	d.cmdHandler.SetShutdownFunc(func() {
		slog.Info("shutdown triggered via daemon_shutdown command")
		close(d.shutdownChan)
	})

	// 6. Start UDS server for CLI control
	d.udsServer = command.NewUDSServer(d.socketPath, d.cmdHandler)
	go func() {
		if err := d.udsServer.Start(d.ctx); err != nil && err != context.Canceled {
			slog.Error("uds server failed", "error", err)
		}
	}()

	slog.Info("daemon started successfully")
	return nil
}

// Stop performs graceful shutdown of all daemon components.
func (d *Daemon) Stop() {
	slog.Info("initiating graceful shutdown")

	// 1. Stop the active capture session, joining the capture goroutine.
	if err := d.controller.Stop(); err != nil {
		slog.Error("error stopping capture", "error", err)
	}

	// 2. Stop UDS server (no new CLI commands)
	slog.Info("stopping uds server")
	d.udsServer.Stop()

	// 3. Stop metrics server
	if d.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.metricsServer.Stop(shutdownCtx); err != nil {
			slog.Error("error stopping metrics server", "error", err)
		}
	}

	// 4. Cancel context to signal all goroutines
	d.cancel()

	// 5. Unregister signal handler
	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}

	// 6. Remove PID file
	if err := d.removePIDFile(); err != nil {
		slog.Error("error removing PID file", "error", err)
	}

	slog.Info("daemon stopped gracefully")
}

// Run runs the daemon main loop, blocking until shutdown is triggered by an
// OS signal or the daemon_shutdown command. SIGHUP reloads the log
// configuration.
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	slog.Info("daemon running, waiting for signals or commands")

	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				slog.Info("received shutdown signal", "signal", sig.String())
				d.Stop()
				return nil

			case syscall.SIGHUP:
				slog.Info("received reload signal")
				if err := d.Reload(); err != nil {
					slog.Error("failed to reload config", "error", err)
				}
			}

		case <-d.shutdownChan:
			slog.Info("shutdown triggered by command")
			d.Stop()
			return nil

		case <-d.ctx.Done():
			slog.Info("context cancelled", "error", d.ctx.Err())
			d.Stop()
			return d.ctx.Err()
		}
	}
}

// Reload re-reads the configuration file and re-applies the hot-reloadable
// parts. Only log level and format take effect without a restart; capture,
// delivery, and listen settings stay as loaded at startup.
func (d *Daemon) Reload() error {
	if d.configPath == "" {
		slog.Info("no config file, nothing to reload")
		return nil
	}

	newConfig, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}

	oldLog := d.config.Log
	d.config.Log = newConfig.Log
	if err := logpkg.Init(d.config.Log); err != nil {
		d.config.Log = oldLog
		return fmt.Errorf("failed to reinitialize logging: %w", err)
	}

	requiresRestart := []string{}
	if newConfig.Capture != d.config.Capture {
		requiresRestart = append(requiresRestart, "capture")
	}
	if newConfig.Control.Socket != d.socketPath {
		requiresRestart = append(requiresRestart, "control.socket")
	}
	if newConfig.Metrics.Listen != d.config.Metrics.Listen {
		requiresRestart = append(requiresRestart, "metrics.listen")
	}

	slog.Info("configuration reloaded",
		"hot_reloaded", []string{"log"},
		"requires_restart", requiresRestart,
	)
	return nil
}

// startMetrics starts the metrics HTTP server if enabled.
func (d *Daemon) startMetrics() error {
	if !d.config.Metrics.Enabled {
		slog.Info("metrics server disabled")
		return nil
	}

	d.metricsServer = metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path)
	if err := d.metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	return nil
}

// writePIDFile writes the current process ID to the PID file.
func (d *Daemon) writePIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	pid := os.Getpid()
	data := []byte(strconv.Itoa(pid) + "\n")

	if err := os.WriteFile(d.pidFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", d.pidFile, err)
	}

	slog.Debug("PID file written", "path", d.pidFile, "pid", pid)
	return nil
}

// removePIDFile removes the PID file.
func (d *Daemon) removePIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file %s: %w", d.pidFile, err)
	}
	return nil
}
