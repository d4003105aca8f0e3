// Command nflows runs a NUMA-aware DAG workflow against a topology
// and cost model described by a configuration document, either on
// real hardware or in simulation, and emits a trace report.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/DonAurelio/nflows/internal/orchestrator"
	"github.com/DonAurelio/nflows/internal/telemetry"
)

var (
	configPath string
	watch      bool
	verbose    bool
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nflows",
		Short: "Run a NUMA-aware DAG workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "nflows.yaml", "path to the run configuration document")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-run whenever the config file changes")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")

	return cmd
}

func run() error {
	log := newLogger()

	if !watch {
		srv, err := orchestrator.Run(configPath, log)
		if err != nil {
			return err
		}
		return waitForReportServer(srv, log)
	}

	return runWatched(log)
}

// waitForReportServer blocks until interrupted when a report server is
// active, since the served report is only reachable for as long as the
// process stays up. With no server it returns immediately.
func waitForReportServer(srv *telemetry.Server, log zerolog.Logger) error {
	if srv == nil {
		return nil
	}
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	log.Info().Msg("report available, press Ctrl+C to stop serving")
	<-sigs
	return srv.Close()
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Logger()
}

// runWatched runs once immediately, then re-runs every time configPath
// changes on disk, until the watcher's channels close or the process is
// killed. Watcher errors are logged and watching continues.
// Each re-run closes the previous run's report server before starting
// the next one, since only one report is ever current.
func runWatched(log zerolog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("cannot create config watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(configPath); err != nil {
		return fmt.Errorf("cannot watch config file %q: %w", configPath, err)
	}

	var current *telemetry.Server
	rerun := func() {
		if current != nil {
			_ = current.Close()
			current = nil
		}
		srv, err := orchestrator.Run(configPath, log)
		if err != nil {
			log.Error().Err(err).Msg("run failed")
			return
		}
		current = srv
	}
	defer func() {
		if current != nil {
			_ = current.Close()
		}
	}()

	rerun()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			log.Info().Str("config", configPath).Msg("config changed, re-running")
			rerun()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("config watcher error")
		}
	}
}
