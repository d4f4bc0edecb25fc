// Package daemon implements the daemon lifecycle manager.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"reflect"
	"strconv"
	"sync"
	"syscall"
	"time"

	"firestige.xyz/arpfuzzer/internal/command"
	"firestige.xyz/arpfuzzer/internal/config"
	"firestige.xyz/arpfuzzer/internal/core"
	"firestige.xyz/arpfuzzer/internal/fuzzer"
	logpkg "firestige.xyz/arpfuzzer/internal/log"
	"firestige.xyz/arpfuzzer/internal/metrics"
)

// Daemon manages the arpfuzzer daemon process lifecycle.
type Daemon struct {
	// Configuration
	config     *config.Config
	configPath string // Empty = built-in defaults, reload disabled
	openLink   LinkOpener

	// Core components
	fuzzer        *fuzzer.Fuzzer
	cmdHandler    *command.CommandHandler
	udsServer     *command.UDSServer
	metricsServer *metrics.Server // nil if metrics disabled

	// Lifecycle management
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	stopOnce     sync.Once
	sigChan      chan os.Signal // promoted from Run() local for cleanup in Stop()
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithLinkOpener replaces the raw socket opener.
func WithLinkOpener(open LinkOpener) Option {
	return func(d *Daemon) { d.openLink = open }
}

// New creates a new Daemon instance from a loaded configuration.
func New(cfg *config.Config, configPath string, opts ...Option) *Daemon {
	d := &Daemon{
		config:       cfg,
		configPath:   configPath,
		openLink:     OpenLink,
		shutdownChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d
}

// Start initializes and starts all daemon components.
func (d *Daemon) Start() error {
	// 1. Initialize logging system
	if err := d.initLogging(); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	slog.Info("starting arpfuzzer daemon",
		"interface", d.config.Interface,
		"config", d.configPath,
		"socket", d.config.Control.Socket,
	)

	// 2. Write PID file
	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	// 3. Start metrics server
	if err := d.startMetrics(); err != nil {
		d.cleanup()
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// 4. Open the link and build the fuzzer
	f, err := NewFuzzer(d.config, d.openLink)
	if err != nil {
		d.cleanup()
		return err
	}
	d.fuzzer = f

	// 5. Start capture if configured
	if d.config.Capture.Enabled {
		if err := d.fuzzer.StartCapture(); err != nil {
			d.cleanup()
			return fmt.Errorf("failed to start capture: %w", err)
		}
		go d.watchCapture(d.fuzzer.CaptureDone())
	}

	// 6. Command handler; daemon_shutdown triggers a graceful stop
	d.cmdHandler = command.NewCommandHandler(d.fuzzer)
	d.cmdHandler.SetShutdownFunc(func() {
		slog.Info("shutdown triggered via daemon_shutdown command")
		d.TriggerShutdown()
	})

	// 7. Control socket. Bind synchronously so a busy path fails Start.
	d.udsServer = command.NewUDSServer(d.config.Control.Socket, d.cmdHandler)
	if err := d.udsServer.Listen(); err != nil {
		d.cleanup()
		return fmt.Errorf("failed to start control socket: %w", err)
	}
	go func() {
		if err := d.udsServer.Serve(d.ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("control socket failed", "error", err)
		}
	}()

	slog.Info("daemon started successfully")
	return nil
}

// watchCapture logs when a capture pipeline ends on its own.
func (d *Daemon) watchCapture(done <-chan struct{}) {
	select {
	case <-done:
	case <-d.ctx.Done():
		return
	}
	if st := d.fuzzer.CaptureStatus(); st.Error != "" {
		slog.Error("capture stopped, restart it with capture_start", "error", st.Error)
	}
}

// Stop performs graceful shutdown of all daemon components. Safe to call more than once.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() {
		slog.Info("initiating graceful shutdown")

		// 1. Stop control socket (no new commands)
		if d.udsServer != nil {
			slog.Info("stopping control socket")
			d.udsServer.Stop()
		}
		d.cleanup()

		// Unregister signal handler to prevent goroutine leak
		if d.sigChan != nil {
			signal.Stop(d.sigChan)
		}
		slog.Info("daemon stopped gracefully")
	})
}

// cleanup releases everything Start may have created except the control socket.
func (d *Daemon) cleanup() {
	// Stop capture, discard the queue and close the link
	if d.fuzzer != nil {
		if err := d.fuzzer.Close(); err != nil {
			slog.Error("error closing link", "error", err)
		}
	}

	if d.metricsServer != nil {
		slog.Info("stopping metrics server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.metricsServer.Stop(shutdownCtx); err != nil {
			slog.Error("error stopping metrics server", "error", err)
		}
		d.metricsServer = nil
	}

	// Cancel context to signal all goroutines
	d.cancel()

	if err := d.removePIDFile(); err != nil {
		slog.Error("error removing PID file", "error", err)
	}
}

// Run runs the daemon main loop, blocking until shutdown is triggered.
// Shutdown can be triggered by:
//  1. OS signals (SIGTERM, SIGINT)
//  2. daemon_shutdown command via the control socket
//
// SIGHUP triggers config reload.
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	slog.Info("daemon running, waiting for signals or commands")

	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				slog.Info("received shutdown signal", "signal", sig)
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

// Reload re-reads the config file.
// Hot-reloadable: log level/format, capture filters while capture is not running.
// Cold (requires restart): interface, frame template, control socket, metrics listen address.
func (d *Daemon) Reload() error {
	if d.configPath == "" {
		return fmt.Errorf("%w: no config file to reload", core.ErrConfigInvalid)
	}
	slog.Info("reloading configuration", "path", d.configPath)

	newConfig, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}
	// A command-line interface override outlives reloads.
	newConfig.Interface = d.config.Interface

	hotReloaded := []string{}
	requiresRestart := []string{}
	old := d.config

	if newConfig.Log != old.Log {
		d.config = newConfig
		if err := d.initLogging(); err != nil {
			slog.Error("failed to reinitialize logging", "error", err)
		} else {
			hotReloaded = append(hotReloaded, "log")
		}
	}

	if d.fuzzer != nil && !maps.Equal(normalize(newConfig.Filter), normalize(old.Filter)) {
		engine, err := newConfig.Filters()
		if err != nil {
			return err
		}
		if err := d.fuzzer.SetFilter(engine); err != nil {
			requiresRestart = append(requiresRestart, "filters")
		} else {
			hotReloaded = append(hotReloaded, "filters")
		}
	}

	// A new template replaces fields set over the control socket.
	if d.fuzzer != nil && !reflect.DeepEqual(newConfig.Frame, old.Frame) {
		d.fuzzer.SetFrame(frameTemplate(newConfig))
		hotReloaded = append(hotReloaded, "frame")
	}
	if newConfig.Control.Socket != old.Control.Socket {
		requiresRestart = append(requiresRestart, "control.socket")
	}
	if newConfig.Metrics != old.Metrics {
		requiresRestart = append(requiresRestart, "metrics")
	}

	d.config = newConfig
	slog.Info("configuration reloaded",
		"hot_reloaded", hotReloaded,
		"requires_restart", requiresRestart,
	)
	return nil
}

// normalize renders filter values as text so YAML scalar types compare equal.
func normalize(m map[string]any) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = fmt.Sprint(v)
	}
	return out
}

// TriggerShutdown triggers graceful shutdown from an external caller.
func (d *Daemon) TriggerShutdown() {
	d.shutdownOnce.Do(func() { close(d.shutdownChan) })
}

// Fuzzer returns the fuzzer owned by the daemon, or nil before Start.
func (d *Daemon) Fuzzer() *fuzzer.Fuzzer {
	return d.fuzzer
}

// initLogging initializes the logging system from config.
func (d *Daemon) initLogging() error {
	if err := logpkg.Init(d.config.Log); err != nil {
		return err
	}
	slog.Debug("logging initialized",
		"level", d.config.Log.Level,
		"format", d.config.Log.Format,
	)
	return nil
}

// startMetrics starts the metrics HTTP server if enabled.
func (d *Daemon) startMetrics() error {
	if !d.config.Metrics.Enabled {
		slog.Info("metrics server disabled")
		return nil
	}

	server := metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path)
	if err := server.Start(d.ctx); err != nil {
		return err
	}
	d.metricsServer = server

	slog.Info("metrics server started",
		"addr", server.Addr(),
		"path", d.config.Metrics.Path,
	)
	return nil
}

// writePIDFile writes the current process ID to the PID file.
func (d *Daemon) writePIDFile() error {
	path := d.config.Control.PIDFile
	if path == "" {
		return nil
	}

	pid := os.Getpid()
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", path, err)
	}

	slog.Debug("PID file written", "path", path, "pid", pid)
	return nil
}

// removePIDFile removes the PID file.
func (d *Daemon) removePIDFile() error {
	path := d.config.Control.PIDFile
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file %s: %w", path, err)
	}
	slog.Debug("PID file removed", "path", path)
	return nil
}
