// Command authd serves the authentication engine over HTTP, backed by
// SQLite for principals and audit history and Redis for sessions and
// verification tokens.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/staynest/authengine"
	"github.com/staynest/authengine/httpapi"
	"github.com/staynest/authengine/sqlitestore"
)

func main() {
	configPath := flag.String("config", "authd.yaml", "path to the YAML configuration file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(*configPath, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, logger *slog.Logger) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlitestore.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return err
	}

	engineConfig := authengine.DefaultConfig()
	engineConfig.Session.SigningKey = []byte(cfg.SigningKey)
	if cfg.Lockout.Threshold > 0 {
		engineConfig.Lockout.Threshold = cfg.Lockout.Threshold
	}
	if cfg.Lockout.WindowMinutes > 0 {
		engineConfig.Lockout.Window = time.Duration(cfg.Lockout.WindowMinutes) * time.Minute
	}
	if cfg.Session.AccessTTLMinutes > 0 {
		engineConfig.Session.AccessTTL = time.Duration(cfg.Session.AccessTTLMinutes) * time.Minute
	}
	if cfg.Session.RefreshTTLDays > 0 {
		engineConfig.Session.RefreshTTL = time.Duration(cfg.Session.RefreshTTLDays) * 24 * time.Hour
	}
	if cfg.Session.RememberTTLDays > 0 {
		engineConfig.Session.RememberTTL = time.Duration(cfg.Session.RememberTTLDays) * 24 * time.Hour
	}

	auditSink := sqlitestore.NewAuditSink(db, func(err error) {
		logger.Warn("audit write failed", "error", err)
	})

	engine, err := authengine.New().
		WithConfig(engineConfig).
		WithCredentialStore(sqlitestore.NewStore(db)).
		WithRedis(redisClient, cfg.Redis.Prefix).
		WithAuditSink(auditSink).
		WithLogger(logger).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	// Reset delivery is logged only; real email/SMS transport is an
	// external service this daemon does not ship.
	notifier := httpapi.NotifierFunc(func(ctx context.Context, d authengine.ResetDelivery) error {
		logger.InfoContext(ctx, "reset credential issued",
			"principal", d.PrincipalID, "channel", d.Channel)
		return nil
	})

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           httpapi.NewServer(engine, notifier, logger).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Listen)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.shutdownGrace())
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}
