package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blecon/internal/codec"
	"github.com/srg/blecon/internal/console"
	goble "github.com/srg/blecon/internal/device/go-ble"
	"github.com/srg/blecon/internal/engine"
	"github.com/srg/blecon/internal/groutine"
	"github.com/srg/blecon/internal/retrylog"
	"github.com/srg/blecon/internal/session"
	"github.com/srg/blecon/pkg/config"
	"github.com/srg/blecon/scanner"
	"golang.org/x/term"
)

const shutdownTimeout = 5 * time.Second

// loadConfig reads the config file and applies the command line overrides.
// The default config file is optional, one named with --config is not.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	optional := path == ""
	if optional {
		path = config.DefaultPath()
	}

	cfg, err := config.Load(path, optional)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("timeout") {
		sec, _ := cmd.Flags().GetUint("timeout")
		cfg.Timeout = time.Duration(sec) * time.Second
	}
	if format, _ := cmd.Flags().GetString("format"); format != "" {
		cfg.Format = format
	}
	if dir, _ := cmd.Flags().GetString("log-dir"); dir != "" {
		cfg.LogDir = dir
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runConsole(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, "verbose", cfg.LogLevel)
	if err != nil {
		return err
	}
	format, _ := codec.ParseFormat(cfg.Format)

	redirected := !term.IsTerminal(int(os.Stdin.Fd()))
	var (
		in     console.LineReader
		stdout io.Writer = os.Stdout
		stderr io.Writer = os.Stderr
	)
	if redirected {
		in = console.NewScriptReader(os.Stdin)
	} else {
		rl, err := console.NewPrompt()
		if err != nil {
			return fmt.Errorf("failed to start prompt: %w", err)
		}
		in = rl
		stdout, stderr = rl.Stdout(), rl.Stderr()
		logger.SetOutput(stderr)
	}
	out := console.NewOutput(stdout, stderr, redirected)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	adapter := goble.NewAdapter(logger)
	discovery := scanner.NewScanner(adapter, &scanner.ScanOptions{
		DuplicateFilter: !cfg.Scan.AllowDuplicates,
		AllowList:       cfg.Scan.AllowList,
		BlockList:       cfg.Scan.BlockList,
		RestartDelay:    cfg.Scan.RestartDelay,
	}, logger)
	discovery.Start(ctx)
	logDiscovery(ctx, discovery, logger)

	sess := session.New(format)
	if err := sess.SetTimeout(cfg.Timeout); err != nil {
		return err
	}

	retries := retrylog.New(cfg.LogDir, time.Now(), logger)
	defer func() {
		if err := retries.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close retry log")
		}
	}()

	eng := engine.New(sess, discovery, adapter, retries, out, &engine.Options{
		RetryInterval: cfg.RetryInterval,
		NotifyBuffer:  cfg.NotifyBuffer,
	}, logger)
	eng.Start(ctx)

	con := console.New(eng, sess, discovery, in, out, &console.Options{
		SettleDelay: cfg.SettleDelay,
		Version:     formatVersion(version),
	}, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	groutine.Go(ctx, "interrupt-watcher", func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigCh:
				if sig == syscall.SIGTERM {
					logger.Info("Received termination signal, shutting down...")
					cancel()
					return
				}
				con.Interrupt()
			}
		}
	})

	runErr := con.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := eng.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Failed to close device on exit")
	}
	cancel()

	if runErr != nil {
		return runErr
	}
	if code := sess.ExitCode(); code != 0 {
		logger.WithFields(logrus.Fields{
			"errors":    sess.Errors(),
			"exit_code": code,
		}).Debug("Console finished with errors")
		return &ExitCodeError{Code: code}
	}
	return nil
}

// logDiscovery drains scanner events into the debug log until the scanner
// stops.
func logDiscovery(ctx context.Context, s *scanner.Scanner, logger *logrus.Logger) {
	groutine.Go(ctx, "discovery-log", func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-s.Events():
				if !ok {
					return
				}
				if ev.Type != scanner.EventNew {
					continue
				}
				logger.WithFields(logrus.Fields{
					"device":  ev.DeviceInfo.Name,
					"address": ev.DeviceInfo.Address,
					"rssi":    ev.DeviceInfo.RSSI,
				}).Debug("Device available")
			}
		}
	})
}
