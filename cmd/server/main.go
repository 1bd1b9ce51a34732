// Package main initializes and starts the sync server, setting up
// configuration, logging, the database connection, repositories, services,
// handlers and routing.
package main

import (
	"cmp"
	"context"
	"fmt"
	"time"

	nethttp "net/http"

	"go.uber.org/zap"

	"github.com/paperkeep/paperkeep/internal/config"
	"github.com/paperkeep/paperkeep/internal/db"
	"github.com/paperkeep/paperkeep/internal/logger"
	"github.com/paperkeep/paperkeep/internal/repository"
	"github.com/paperkeep/paperkeep/internal/server/handler/http"
	"github.com/paperkeep/paperkeep/internal/service"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	// Parse command-line and environment configuration.
	options := config.Parse()

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init("Info"); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	zapLogger := log.Log

	if options.JWTSecret == "" {
		zapLogger.Fatal("JWT secret is required (-s flag or JWT_SECRET)")
	}

	// Initialize the authoritative PostgreSQL store.
	postgresDB, err := db.InitPostgres(options.DatabaseDSN)
	if err != nil {
		zapLogger.Fatal("cannot init database", zap.Error(err))
	}

	// Purge soft-deleted records past retention.
	db.StartSoftDeleteCleaner(context.Background(), postgresDB,
		time.Hour,       // interval
		30*24*time.Hour, // retention: 30 days
		zapLogger,
	)

	// Repositories for authentication and reconciliation.
	authRepo := repository.NewPostgresAuthRepository(postgresDB)
	reconcileRepo := repository.NewPostgresReconcileRepository(postgresDB)

	// Business-logic services.
	authService := service.NewAuthService(authRepo, options.JWTSecret)
	syncService := service.NewSyncService(reconcileRepo)

	// HTTP handlers for auth and batch sync endpoints.
	authHandler := &http.AuthHandler{AuthService: authService}
	syncHandler := &http.SyncHandler{SyncService: syncService}

	// Build the router with middleware and routes.
	router := http.NewRouter(authHandler, syncHandler, zapLogger, options.JWTSecret)

	server := &nethttp.Server{
		Addr:    options.Port,
		Handler: router,
	}

	zapLogger.Info("starting HTTP server", zap.String("addr", options.Port))
	if err := server.ListenAndServe(); err != nil {
		zapLogger.Fatal("failed to start HTTP server", zap.Error(err))
	}
}
