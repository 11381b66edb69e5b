package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"acm-chatbot/backend/internal/models"
	"acm-chatbot/backend/pkg/config"
	"acm-chatbot/backend/pkg/di"
	"acm-chatbot/backend/pkg/logger"
	"acm-chatbot/backend/pkg/observability"
	"acm-chatbot/backend/pkg/router"
	"acm-chatbot/backend/pkg/secrets"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	cfg := config.New()

	// Initialize structured logger
	logConfig := logger.DefaultConfig()
	logConfig.Level = cfg.Logging.Level
	logConfig.JSON = cfg.Logging.Format != "text"

	log := logger.New(logConfig)
	logger.SetGlobal(log)

	log.Info("Starting application", "version", os.Getenv("APP_VERSION"), "env", cfg.Server.Env)

	// Pull credentials from Vault when enabled, falling back to the environment
	manager, err := secrets.Init(cfg, log)
	if err != nil {
		log.LogError(err, "Failed to initialize secrets manager")
		os.Exit(1)
	}
	secrets.ApplyToConfig(context.Background(), manager, cfg)

	obs, err := observability.Setup(observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: os.Getenv("APP_VERSION"),
		EnableTracing:  cfg.Observability.EnableTracing,
		SetGlobal:      true,
	})
	if err != nil {
		log.LogError(err, "Failed to initialize observability")
		os.Exit(1)
	}

	// Initialize database
	db, err := config.NewDB(cfg)
	if err != nil {
		log.LogError(err, "Failed to initialize database")
		os.Exit(1)
	}

	if cfg.Database.Migrate {
		if cfg.Retrieval.VectorBackend == di.BackendPgvector {
			if err := config.EnableVectorExtension(db); err != nil {
				log.LogError(err, "Failed to enable vector extension")
				os.Exit(1)
			}
		}
		if err := models.Migrate(db); err != nil {
			log.LogError(err, "Failed to migrate database")
			os.Exit(1)
		}
	}

	container, err := di.New(db, cfg, log, di.Options{Observability: obs})
	if err != nil {
		log.LogError(err, "Failed to initialize dependency container")
		os.Exit(1)
	}

	r, err := router.New(container)
	if err != nil {
		log.LogError(err, "Failed to initialize router")
		os.Exit(1)
	}
	if err := r.SetupRoutes(); err != nil {
		log.LogError(err, "Failed to register routes")
		os.Exit(1)
	}

	var grpcServer *grpc.Server
	if cfg.GRPC.Enabled {
		grpcServer = startGRPCHealth(cfg.GRPC.Port, container, log)
	}
	container.Health.Start()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.Timeout,
	}

	// Start the server in a goroutine
	go func() {
		log.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.LogError(err, "Server failed to start")
			os.Exit(1)
		}
	}()

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Block until we receive a signal
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.LogError(err, "Server forced to shutdown")
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}

	r.Close()
	if err := container.Close(); err != nil {
		log.LogError(err, "Failed to release resources")
	}
	if err := obs.Shutdown(ctx); err != nil {
		log.LogError(err, "Failed to flush telemetry")
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	log.Info("Server exited gracefully")
}

// startGRPCHealth serves the standard gRPC health protocol, mirroring the
// HTTP health checker.
func startGRPCHealth(port string, container *di.Container, log *logger.Logger) *grpc.Server {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		log.LogError(err, "Failed to listen for gRPC", "port", port)
		os.Exit(1)
	}

	grpcServer := grpc.NewServer()
	healthServer := grpchealth.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	container.Health.AttachGRPC(healthServer)

	go func() {
		log.Info("gRPC health server listening", "port", port)
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.LogError(err, "gRPC server stopped")
		}
	}()
	return grpcServer
}
