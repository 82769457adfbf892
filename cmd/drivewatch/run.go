package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/drivewatch/drivewatch/internal/api"
	"github.com/drivewatch/drivewatch/internal/channel"
	"github.com/drivewatch/drivewatch/internal/config"
	"github.com/drivewatch/drivewatch/internal/monitor"
	"github.com/drivewatch/drivewatch/internal/predict"
	"github.com/drivewatch/drivewatch/internal/probe"
	"github.com/drivewatch/drivewatch/internal/telemetry"
	"github.com/drivewatch/drivewatch/internal/ws"
)

const (
	wsInterval    = time.Second
	probeInterval = 5 * time.Second
	shutdownGrace = 10 * time.Second
)

func newRunCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start monitoring and serve the API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, g.configPath)
		},
	}
}

// serve runs the pipeline and its HTTP and gRPC surfaces until ctx is done.
func serve(ctx context.Context, configPath string) error {
	slog.Info("drivewatch starting", "config", configPath)

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		slog.Warn("config unavailable, using defaults", "path", configPath, "err", err)
	}
	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"grpc_port", cfg.Server.GRPCPort,
		"telemetry", cfg.Telemetry.Source,
		"mobile_alerts", cfg.Notifications.EnableMobileAlerts,
	)

	devices, err := channel.OpenDirectory(cfg.DevicesFile)
	if err != nil {
		return fmt.Errorf("open devices: %w", err)
	}

	go func() {
		if err := devices.Watch(ctx); err != nil {
			slog.Error("devices watcher stopped", "err", err)
		}
	}()

	channels, err := channel.Build(cfg.Channels, devices)
	if err != nil {
		slog.Error("some channels could not be built", "err", err)
	}
	defer channels.Close() //nolint:errcheck

	source, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	mon, err := monitor.New(monitor.Options{
		Config:     cfg,
		Source:     source,
		Predictors: predict.DefaultRegistry(),
		Channels:   channels.Channels,
		Registerer: prometheus.DefaultRegisterer,
	})
	if err != nil {
		return fmt.Errorf("monitor: %w", err)
	}

	go func() {
		if err := config.Watch(ctx, configPath, func(updated *config.Config) {
			if err := mon.UpdateConfig(updated); err != nil {
				slog.Error("config reload rejected", "err", err)
				return
			}
			slog.Info("config hot-reloaded")
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	mon.Start(ctx)
	defer mon.Stop()

	// gRPC health probe.
	health := probe.New(mon, cfg.Server.Auth)
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	go health.Track(ctx, probeInterval)
	go func() {
		if err := health.Serve(lis); err != nil {
			slog.Error("gRPC server stopped", "err", err)
		}
	}()

	// REST API, alert stream and metrics share the HTTP port.
	hub := ws.New(mon, wsInterval)
	go hub.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/api/", api.New(api.Options{
		Pipeline:   mon,
		Devices:    devices,
		ConfigPath: configPath,
		Auth:       cfg.Server.Auth,
	}))
	mux.Handle("/ws/alerts", hub)
	mux.Handle("/metrics", promhttp.Handler())

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		health.Stop()
		return fmt.Errorf("http server: %w", err)
	}

	slog.Info("drivewatch shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	health.Stop()
	return httpSrv.Shutdown(shutdownCtx)
}
