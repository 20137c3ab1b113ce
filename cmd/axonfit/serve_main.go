package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/axonlabs/axonfit/internal/application"
	monitor "github.com/axonlabs/axonfit/internal/interfaces/http"
)

// buildMonitor assembles the monitor server around a runner's stores.
func buildMonitor(cfg application.Config, runner *application.Runner) (*monitor.Server, *monitor.Metrics, *monitor.ProgressHub, error) {
	metrics := monitor.NewMetrics()
	hub := monitor.NewProgressHub(zlog.Logger)
	handlers := monitor.NewHandlers(runner.Files(), runner.Bundles(), version, zlog.Logger)

	server, err := monitor.NewServer(cfg.Monitor.Server, handlers, metrics, hub, zlog.Logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return server, metrics, hub, nil
}

// monitorSession runs the monitor in the background for the duration of a
// training command started with --monitor.
type monitorSession struct {
	server  *monitor.Server
	metrics *monitor.Metrics
	hub     *monitor.ProgressHub
}

func startMonitorSession(cfg application.Config, runner *application.Runner) (*monitorSession, error) {
	server, metrics, hub, err := buildMonitor(cfg, runner)
	if err != nil {
		return nil, err
	}

	go func() {
		if err := server.Start(); err != nil {
			zlog.Error().Err(err).Msg("monitor server failed")
		}
	}()
	zlog.Info().
		Str("health", fmt.Sprintf("http://%s/health", server.Address())).
		Str("progress", fmt.Sprintf("ws://%s/ws/progress", server.Address())).
		Msg("Monitor attached to run")

	return &monitorSession{server: server, metrics: metrics, hub: hub}, nil
}

// handleRound feeds one completed round into metrics and the websocket hub.
func (s *monitorSession) handleRound(ev application.RoundEvent) {
	s.metrics.ObserveRound(ev.Function, ev.Trainer, ev.Elapsed, ev.RelativeError)
	if ev.Evaluations > 0 {
		s.metrics.RecordEvaluations(ev.Function, ev.Evaluations)
	}
	s.hub.Broadcast(monitor.ProgressEvent{
		RunID:         ev.RunID,
		Function:      ev.Function,
		Trainer:       ev.Trainer,
		Round:         ev.Round,
		Total:         ev.Total,
		RelativeError: ev.RelativeError,
		Evaluations:   ev.Evaluations,
		Timestamp:     time.Now().UTC(),
	})
}

func (s *monitorSession) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		zlog.Warn().Err(err).Msg("monitor shutdown error")
	}
}

// runServe starts the monitoring HTTP server in the foreground.
func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Monitor.Server.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Monitor.Server.Port = port
	}

	runner, err := application.NewRunner(context.Background(), cfg, zlog.Logger)
	if err != nil {
		return err
	}
	defer runner.Close()

	server, _, _, err := buildMonitor(cfg, runner)
	if err != nil {
		return err
	}

	addr := server.Address()
	zlog.Info().Str("addr", addr).Msg("Starting axonfit monitoring server")

	serverErr := make(chan error, 1)
	go func() {
		zlog.Info().
			Str("health", fmt.Sprintf("http://%s/health", addr)).
			Str("metrics", fmt.Sprintf("http://%s/metrics", addr)).
			Str("functions", fmt.Sprintf("http://%s/api/v1/functions", addr)).
			Str("results", fmt.Sprintf("http://%s/api/v1/results/{function}", addr)).
			Str("predict", fmt.Sprintf("http://%s/api/v1/predict", addr)).
			Str("progress", fmt.Sprintf("ws://%s/ws/progress", addr)).
			Msg("Monitor endpoints available")

		if err := server.Start(); err != nil {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		zlog.Info().Msg("Shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Err(err).Msg("Server shutdown error")
		return err
	}

	zlog.Info().Msg("Monitor server shutdown complete")
	return nil
}
