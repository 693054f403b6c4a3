// @title           Organization Management Service API
// @version         1.0.0
// @description     Multi-tenant organization management: organizations, their admins, and per-tenant collections.
// @license.name    Apache-2.0
// @basePath        /
// @schemes         http https
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @description                 Type "Bearer" followed by a space and the access token.
//
// @tag.name         System
// @tag.description  Banner, health and readiness endpoints. Prometheus metrics are served on a separate port (OMS_TELEMETRY_METRICS_PROMETHEUS_PORT) at GET /metrics and are not part of this document.

// Package main is the entry point for the organization management server
// binary. Subcommands are dispatched with a switch on os.Args:
//
//	serve                  run the HTTP API (default)
//	migrate <up|down>      apply or roll back the postgres master schema
//	hash-password [pw]     print a bcrypt hash (reads stdin when pw is omitted)
//	generate-secret        print a random token signing secret
//	reconcile              compare organizations with tenant collections once and print the report
//	version                print the service version
//
// serve applies pending postgres migrations on startup, so a fresh deployment
// needs no separate migration step.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/org-management/org-service/internal/api"
	"github.com/org-management/org-service/internal/auth"
	"github.com/org-management/org-service/internal/config"
	"github.com/org-management/org-service/internal/db"
	"github.com/org-management/org-service/internal/jobs"
	"github.com/org-management/org-service/internal/safego"
	"github.com/org-management/org-service/internal/store"
	"github.com/org-management/org-service/internal/telemetry"

	// Register store backends
	_ "github.com/org-management/org-service/internal/store/memory"
	_ "github.com/org-management/org-service/internal/store/mongodb"
	_ "github.com/org-management/org-service/internal/store/postgres"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch command {
	case "serve":
		return serve(cfg, configPath)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2])
	case "hash-password":
		return hashPassword(cfg, os.Args[2:])
	case "generate-secret":
		secret, err := auth.GenerateSecret()
		if err != nil {
			return err
		}
		fmt.Println(secret)
		return nil
	case "reconcile":
		return reconcileOnce(cfg)
	case "version":
		fmt.Printf("%s v%s\n", cfg.App.Name, cfg.App.Version)
		return nil
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, hash-password, generate-secret, reconcile, version", command)
	}
}

func serve(cfg *config.Config, configPath string) error {
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	if cfg.Server.Debug || cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := config.Watch(configPath, func(updated *config.Config) {
		telemetry.SetLogLevel(updated.Logging.Level)
	}); err != nil {
		slog.Warn("config hot reload disabled", "error", err)
	}

	tokens, err := auth.NewTokenService(cfg.Auth.JWT)
	if err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := store.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Database.Driver, err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			slog.Warn("failed to close store", "error", err)
		}
	}()
	slog.Info("store ready", "driver", cfg.Database.Driver)

	var metricsServer *http.Server
	if cfg.Telemetry.Metrics.Enabled {
		metricsServer = startMetricsServer(cfg.Telemetry.Metrics.PrometheusPort)
	}

	var reconcilerDone <-chan struct{}
	if cfg.Reconciler.Enabled {
		reconciler := jobs.NewTenantReconciler(backend, backend, cfg.Reconciler.Interval)
		reconcilerDone = safego.Go("tenant-reconciler", func() { reconciler.Start(ctx) })
		defer reconciler.Stop()
	}

	router, bgServices := api.NewRouter(cfg, backend, tokens)

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	safego.Go("http-server", func() {
		slog.Info("starting server", "addr", server.Addr, "tls", cfg.Security.TLS.Enabled,
			"driver", cfg.Database.Driver, "version", cfg.App.Version)

		var err error
		if cfg.Security.TLS.Enabled {
			err = server.ListenAndServeTLS(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	})

	var runErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down server")
	case err := <-serveErr:
		runErr = fmt.Errorf("failed to start server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("server forced to shutdown: %w", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("metrics server shutdown", "error", err)
		}
	}

	bgServices.Shutdown()
	if reconcilerDone != nil {
		stop()
		<-reconcilerDone
	}

	if runErr == nil {
		slog.Info("server stopped gracefully")
	}
	return runErr
}

// startMetricsServer serves /metrics on its own port so the scrape path is
// not reachable through the public API listener.
func startMetricsServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	safego.Go("metrics-server", func() {
		slog.Info("starting Prometheus metrics server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", "error", err)
		}
	})
	return srv
}

func runMigrations(cfg *config.Config, direction string) error {
	if cfg.Database.Driver != config.DriverPostgres {
		return fmt.Errorf("migrate applies to the %s driver only (configured: %s)", config.DriverPostgres, cfg.Database.Driver)
	}

	database, err := db.Connect(context.Background(), cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	log.Printf("Running migrations: %s", direction)

	if err := db.RunMigrations(database, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	log.Printf("Migration completed successfully. Current version: %d (dirty: %v)", version, dirty)
	return nil
}

// reconcileOnce runs a single tenant reconciliation against the configured
// store and prints the report as JSON. It exits non-zero when the store is
// inconsistent.
func reconcileOnce(cfg *config.Config) error {
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	ctx := context.Background()
	backend, err := store.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Database.Driver, err)
	}
	defer backend.Close()

	report, err := jobs.NewTenantReconciler(backend, backend, 0).RunOnce(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	if !report.Consistent() {
		return fmt.Errorf("found %d orphaned and %d missing tenant collections", len(report.Orphaned), len(report.Missing))
	}
	return nil
}

// hashPassword prints a bcrypt hash at the configured cost, for seeding admin
// rows by hand.
func hashPassword(cfg *config.Config, args []string) error {
	var password string
	if len(args) > 0 {
		password = args[0]
	} else {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read password from stdin: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return errors.New("password must not be empty")
	}

	hash, err := auth.NewPasswordHasher(cfg.Auth.BcryptCost).Hash(password)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}
