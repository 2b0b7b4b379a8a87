package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lumenchat/lumen/db"
	"github.com/lumenchat/lumen/internal/api"
	"github.com/lumenchat/lumen/internal/auth"
	"github.com/lumenchat/lumen/internal/chat"
	"github.com/lumenchat/lumen/internal/completion"
	"github.com/lumenchat/lumen/internal/config"
	"github.com/lumenchat/lumen/internal/database"
	"github.com/lumenchat/lumen/internal/log"
	"github.com/lumenchat/lumen/internal/session"
)

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 2 * time.Minute // model calls can be slow
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

var serveTrustProxy bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveTrustProxy, "trust-proxy", false,
		"trust X-Real-IP/X-Forwarded-For headers (behind a reverse proxy)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateServe(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	logger := newLogger(cfg)
	logger.Info("starting lumen", "version", Version, "environment", cfg.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	manager := session.NewManager(store, logger)

	g := completion.Init(ctx)
	completer := completion.New(g, cfg.ModelName, logger)

	chatService, err := chat.NewService(chat.Config{
		Manager:       manager,
		Completer:     completer,
		Logger:        logger,
		ContextWindow: cfg.MaxContextMessages,
	})
	if err != nil {
		return fmt.Errorf("creating chat service: %w", err)
	}

	verifier, err := auth.NewGoogleVerifier(cfg.GoogleClientID)
	if err != nil {
		return fmt.Errorf("creating google verifier: %w", err)
	}
	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token issuer: %w", err)
	}

	apiServer, err := api.NewServer(api.ServerConfig{
		Logger:      logger,
		ChatService: chatService,
		Sessions:    manager,
		Verifier:    verifier,
		Tokens:      tokens,
		Environment: cfg.Environment,
		CORSOrigins: cfg.CORSOrigins,
		TrustProxy:  serveTrustProxy,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("HTTP server ready",
		"addr", addr,
		"model", cfg.ModelName,
		"store", cfg.Store,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}

// newLogger builds the process logger: JSON in production, text with debug
// level in development.
func newLogger(cfg *config.Config) log.Logger {
	logCfg := log.Config{Level: slog.LevelInfo, JSON: true}
	if cfg.IsDevelopment() {
		logCfg = log.Config{Level: slog.LevelDebug}
	}
	return log.New(logCfg)
}

// buildStore creates the configured session store. For postgres it applies
// migrations first and returns a close function for the pool.
func buildStore(ctx context.Context, cfg *config.Config, logger log.Logger) (session.Store, func(), error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("using in-memory session store, history is lost on restart")
		return session.NewMemoryStore(), func() {}, nil
	}

	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, nil, fmt.Errorf("migrating database: %w", err)
	}

	pool, err := database.Connect(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}

	return session.NewPostgresStore(pool, logger), pool.Close, nil
}
