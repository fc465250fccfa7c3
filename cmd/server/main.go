package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DukeRupert/stateless/internal"
	"github.com/DukeRupert/stateless/internal/crypto"
	"github.com/DukeRupert/stateless/internal/repository"
	"github.com/DukeRupert/stateless/internal/server"
	"github.com/DukeRupert/stateless/internal/service"
	"github.com/DukeRupert/stateless/internal/token"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
)

// Version information set at build time.
var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "stateless",
		Short: "Stateless cookie authentication service",
		Long: `stateless issues encrypted auth cookies on login and checks them
on every protected request. No session state is kept on the server.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		migrateCmd(),
		usersCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// app holds what every command needs after startup.
type app struct {
	cfg    *internal.Config
	logger *slog.Logger
	db     *sql.DB
}

// setup loads configuration and opens the database.
func setup(ctx context.Context) (*app, error) {
	cfg, err := internal.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("config initialization failed: %w", err)
	}

	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	return &app{cfg: cfg, logger: logger, db: db}, nil
}

func serveCmd() *cobra.Command {
	var skipMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), skipMigrations)
		},
	}

	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "Do not apply pending migrations on startup")

	return cmd
}

func runServer(ctx context.Context, skipMigrations bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.db.Close()

	cfg, logger := a.cfg, a.logger

	tp, err := internal.NewTracerProvider(os.Stdout, cfg.TraceExporter, cfg.Env)
	if err != nil {
		return fmt.Errorf("tracing setup failed: %w", err)
	}
	otel.SetTracerProvider(tp)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Tracer shutdown error", "error", err)
		}
	}()
	logger.Info("Tracing ready", "exporter", cfg.TraceExporter)

	if !skipMigrations {
		if err := internal.RunMigrations(ctx, a.db, logger); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	logger.Info("Database ready")

	// Initialize repository
	repo := repository.New(a.db)

	// Initialize services
	userService := service.NewUserService(repo, logger)

	aead, err := crypto.NewAEAD(cfg.CookieSecret)
	if err != nil {
		return fmt.Errorf("cookie encryption setup failed: %w", err)
	}
	codec := token.NewCodec(aead, token.WithSecure(cfg.SecureCookie))

	srv := server.New(server.Config{
		CookieMaxAge:    cfg.CookieMaxAge,
		SecureCookie:    cfg.SecureCookie,
		LoginRateLimit:  cfg.LoginRateLimit,
		LoginRateWindow: cfg.LoginRateWindow,
		MetricsUsername: cfg.MetricsUsername,
		MetricsPassword: cfg.MetricsPassword,
		TracerProvider:  tp,
	}, userService, codec, logger)
	defer srv.Close()

	// ==========================================================================
	// Start server
	// ==========================================================================

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)

	// Start server in goroutine
	go func() {
		logger.Info("Server started", "address", httpServer.Addr, "env", cfg.Env, "secure_cookie", cfg.SecureCookie)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal or a failed listener
	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, initiating graceful shutdown...")
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.db.Close()

			return internal.RunMigrations(cmd.Context(), a.db, a.logger)
		},
	}
}
