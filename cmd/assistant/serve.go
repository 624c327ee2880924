package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/lexiqai/session-assistant/internal/bus"
	"github.com/lexiqai/session-assistant/internal/config"
	"github.com/lexiqai/session-assistant/internal/gateway"
	"github.com/lexiqai/session-assistant/internal/observability"
	"github.com/lexiqai/session-assistant/internal/orchestrator"
	"github.com/lexiqai/session-assistant/internal/store"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the session assistant service",
		Long:  "Serves the shell WebSocket at /ws, health and readiness probes, Prometheus metrics and a gRPC health service.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("grpc_health_port", cfg.GRPCHealthPort).
		Str("database", cfg.DatabasePath).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Session assistant starting")

	records, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer records.Close()

	factory, err := orchestrator.NewFactory(cfg, observability.Component("agents"))
	if err != nil {
		return err
	}

	eventBus := bus.New(cfg.BusQueueSize, logger)
	defer eventBus.Close()

	orch := orchestrator.New(factory, eventBus, records, orchestrator.Options{
		DefaultLanguage: cfg.DefaultLanguage,
		MetricsThrottle: cfg.MetricsThrottle(),
		StopTimeout:     cfg.StopTimeout(),
		AgentQueueSize:  cfg.AgentQueueSize,
	}, logger)
	if _, err := orch.Attach(eventBus); err != nil {
		return fmt.Errorf("attach orchestrator: %w", err)
	}

	hub, err := gateway.NewHub(eventBus, orch, logger)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}
	defer hub.Close()

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.HandleFunc("/health", observability.HealthCheckHandler())
	checks := map[string]observability.HealthCheckFunc{
		"database": func(ctx context.Context) (bool, error) {
			if err := records.Ping(ctx); err != nil {
				return false, err
			}
			return true, nil
		},
		"deepgram": func(ctx context.Context) (bool, error) {
			if cfg.DeepgramAPIKey == "" {
				return false, errors.New("DEEPGRAM_API_KEY is not set")
			}
			return true, nil
		},
	}
	for name, cb := range factory.Breakers() {
		checks[name+"_circuit"] = cb.HealthCheck
	}
	mux.HandleFunc("/ready", observability.ReadinessHandler(checks))
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCHealthPort))
	if err != nil {
		return fmt.Errorf("listen grpc health: %w", err)
	}
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	errCh := make(chan error, 2)
	go func() {
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc health server: %w", err)
		}
	}()
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("ws://localhost:%s/ws", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutting down server...")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("Server failed")
	}

	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := orch.Stop(shutdownCtx, "service shutdown"); err != nil {
		logger.Warn().Err(err).Msg("Active session could not be stopped cleanly")
	}
	orch.EmergencyStop()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	grpcServer.GracefulStop()

	logger.Info().Msg("Server exited gracefully")
	return runErr
}
