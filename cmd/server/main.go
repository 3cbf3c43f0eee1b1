package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/pesio-ai/be-permits-portal/internal/client"
	"github.com/pesio-ai/be-permits-portal/internal/config"
	"github.com/pesio-ai/be-permits-portal/internal/handler"
	"github.com/pesio-ai/be-permits-portal/internal/platform/auth"
	"github.com/pesio-ai/be-permits-portal/internal/platform/database"
	"github.com/pesio-ai/be-permits-portal/internal/platform/logger"
	"github.com/pesio-ai/be-permits-portal/internal/repository"
	"github.com/pesio-ai/be-permits-portal/internal/service"
	"github.com/pesio-ai/be-permits-portal/internal/submission"
	"github.com/pesio-ai/be-permits-portal/internal/workflow"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "permits-portal",
		Short:         "Permit and certificate application portal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(serveCmd(), migrateCmd(), catalogCmd(), tokenCmd(), appCmd(), versionCmd())
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", cfg.Service.Name, cfg.Service.Version)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return serve(cfg)
		},
	}
}

func newLogger(cfg *config.Config) *logger.Logger {
	return logger.New(logger.Config{
		Level:       cfg.Service.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})
}

func databaseConfig(c config.DatabaseConfig) database.Config {
	return database.Config{
		Host:        c.Host,
		Port:        c.Port,
		User:        c.User,
		Password:    c.Password,
		Database:    c.Database,
		SSLMode:     c.SSLMode,
		MaxConns:    c.MaxConns,
		MinConns:    c.MinConns,
		MaxConnTime: c.MaxConnTime,
		MaxIdleTime: c.MaxIdleTime,
		HealthCheck: c.HealthCheck,
	}
}

func blobStore(cfg config.StorageConfig) (submission.BlobStore, error) {
	if cfg.SupabaseURL != "" {
		return client.NewSupabaseStorage(cfg.SupabaseURL, cfg.ServiceKey, cfg.Bucket), nil
	}
	return client.NewFSBlobStore(cfg.LocalDir)
}

func serve(cfg *config.Config) error {
	log := newLogger(cfg)

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Permits Portal")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, databaseConfig(cfg.Database))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	appRepo := repository.NewApplicationRepository(db)
	docRepo := repository.NewDocumentRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)

	blobs, err := blobStore(cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize document storage")
	}

	var conn client.Publisher
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name(cfg.Service.Name))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer nc.Drain()
		conn = nc
		log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")
	} else {
		log.Warn().Msg("NATS_URL not set, notifications disabled")
	}
	notifier := client.NewNotificationPublisher(conn, log.With().Str("component", "notifications").Logger())

	policy, _ := workflow.ParseRejectionPolicy(cfg.Workflow.RejectionTimeline)
	verifier := client.NewIdentityClient(cfg.Auth.JWTSecret, cfg.Auth.Audience)

	appService := service.NewApplicationService(appRepo, docRepo, catalogRepo, blobs, notifier,
		service.Options{AdminRole: cfg.Auth.AdminRole, RejectionTimeline: policy},
		log.Component("applications"))

	httpHandler := handler.NewHTTPHandler(appService, os.TempDir(), db.Ping, log)
	router := handler.NewRouter(httpHandler, verifier, handler.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(
		auth.UnaryServerInterceptor(verifier, healthpb.Health_Check_FullMethodName),
	))
	handler.RegisterApplicationServiceServer(grpcServer, handler.NewGRPCHandler(appService, log.Logger))
	healthServer := health.NewServer()
	healthServer.SetServingStatus(handler.ApplicationServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPC.Port))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create gRPC listener")
	}

	go func() {
		log.Info().Int("port", cfg.GRPC.Port).Msg("Starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Error().Err(err).Msg("gRPC server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	healthServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	grpcServer.GracefulStop()

	log.Info().Msg("Server stopped")
	return nil
}
