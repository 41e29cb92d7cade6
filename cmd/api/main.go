package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/FilipeAphrody/sentinel-accounts/internal/config"
	delivery "github.com/FilipeAphrody/sentinel-accounts/internal/delivery/http"
	"github.com/FilipeAphrody/sentinel-accounts/internal/domain"
	"github.com/FilipeAphrody/sentinel-accounts/internal/logging"
	"github.com/FilipeAphrody/sentinel-accounts/internal/repository"
	"github.com/FilipeAphrody/sentinel-accounts/internal/repository/memory"
	"github.com/FilipeAphrody/sentinel-accounts/internal/usecase"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", os.Getenv("SENTINEL_CONFIG"), "path to a YAML or JSON config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("sentinel exited", "err", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// 1. Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Initialize infrastructure (persistence)
	accounts, audits, closeStore, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	handshakes, sessions, closeTokens, err := openTokenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeTokens()

	// 3. Initialize business logic (usecases)
	audit := usecase.NewAuditLog(audits, cfg.Audit.SealKey, logger)
	vault := usecase.NewSecretVault(accounts, cfg.TOTP.Issuer)
	store := usecase.NewAccountStore(accounts, vault, audit, usecase.AccountStoreConfig{
		Lockout:        usecase.LockoutPolicy{Threshold: cfg.Lockout.Threshold, Duration: cfg.Lockout.Duration},
		MaxPasswordAge: cfg.Password.MaxAge,
	}, logger)
	login := usecase.NewLoginHandshake(store, vault, handshakes, sessions, audit, usecase.HandshakeConfig{
		JWTSecret:    cfg.JWT.Secret,
		SessionTTL:   cfg.Session.TTL,
		HandshakeTTL: cfg.Handshake.TTL,
	}, logger)

	if _, err := store.SeedDefaultAdmin(ctx, usecase.NewAccount{
		Handle:      cfg.Admin.Handle,
		Password:    cfg.Admin.Password,
		DisplayName: cfg.Admin.DisplayName,
		Contact:     cfg.Admin.Contact,
		Role:        "admin",
	}); err != nil {
		return err
	}

	// 4. Register delivery handlers (routes)
	e := delivery.NewRouter(delivery.RouterConfig{
		Store:          store,
		Login:          login,
		Audit:          audit,
		JWTSecret:      cfg.JWT.Secret,
		HandshakeTTL:   cfg.Handshake.TTL,
		LoginPerMinute: cfg.RateLimit.LoginPerMinute,
		Version:        version,
		Logger:         logger,
	})

	// 5. Start server with graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting sentinel accounts server",
			"addr", cfg.HTTP.Addr, "storage", cfg.Storage.Driver, "tokens", cfg.Tokens.Driver)
		if err := e.Start(cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func openStorage(ctx context.Context, cfg *config.Config) (domain.AccountRepository, domain.AuditRepository, func(), error) {
	var (
		db  *sql.DB
		err error
	)
	switch cfg.Storage.Driver {
	case "memory":
		return memory.NewAccountRepo(), memory.NewAuditRepo(), func() {}, nil
	case "sqlite":
		if db, err = repository.OpenSQLite(ctx, cfg.SQLite.Path); err != nil {
			return nil, nil, nil, err
		}
		return repository.NewSQLiteAccountRepo(db), repository.NewSQLiteAuditRepo(db), func() { db.Close() }, nil
	default:
		if db, err = repository.OpenPostgres(ctx, cfg.Database.URL); err != nil {
			return nil, nil, nil, err
		}
		return repository.NewPostgresAccountRepo(db), repository.NewPostgresAuditRepo(db), func() { db.Close() }, nil
	}
}

func openTokenStore(ctx context.Context, cfg *config.Config) (domain.HandshakeRepository, domain.SessionRepository, func(), error) {
	if cfg.Tokens.Driver == "memory" {
		return memory.NewHandshakeRepo(), memory.NewSessionRepo(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, nil, nil, err
	}
	return repository.NewRedisHandshakeRepo(rdb), repository.NewRedisSessionRepo(rdb), func() { rdb.Close() }, nil
}
