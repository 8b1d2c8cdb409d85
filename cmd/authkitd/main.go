// Command authkitd runs the authentication API server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/teamdeck/authkit"
	"github.com/teamdeck/authkit/httpapi"
	"github.com/teamdeck/authkit/storage/postgres"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, envOr("DATABASE_URL", "postgres://localhost:5432/authkit"))
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     envOr("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return err
	}

	cfg := authkit.DefaultConfig()
	cfg.JWT.Secret = []byte(os.Getenv("JWT_SECRET"))
	cfg.JWT.Issuer = envOr("JWT_ISSUER", "teamdeck")
	cfg.TOTP.Issuer = envOr("TOTP_ISSUER", "Teamdeck")
	cfg.Security.ProductionMode = envBool("PRODUCTION_MODE")
	cfg.Security.CookieDomain = os.Getenv("COOKIE_DOMAIN")

	engine, err := authkit.New().
		WithConfig(cfg).
		WithStore(postgres.New(pool)).
		WithRedis(rdb).
		WithCodeSender(logCodeSender{logger: logger}).
		WithResetSender(logResetSender{logger: logger}).
		WithAuditSink(authkit.NewJSONWriterSink(os.Stdout)).
		WithLogger(logger).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	handler := httpapi.NewHandler(engine, httpapi.Config{
		ProductionMode: cfg.Security.ProductionMode,
		CookieDomain:   cfg.Security.CookieDomain,
		SessionTTL:     cfg.JWT.SessionTTL,
		RefreshTTL:     cfg.Refresh.TTL,
	})

	srv := &http.Server{
		Addr:              envOr("LISTEN_ADDR", ":8080"),
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("shutdown complete", "audit_dropped", engine.AuditDropped())
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	v, _ := strconv.ParseBool(os.Getenv(key))
	return v
}

func logLevel() slog.Level {
	switch envOr("LOG_LEVEL", "info") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
