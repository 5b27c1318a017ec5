package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/mossy-p/p2pchat-signaling/config"
	"github.com/mossy-p/p2pchat-signaling/internal/handlers"
	"github.com/mossy-p/p2pchat-signaling/internal/lib/logger/sl"
	"github.com/mossy-p/p2pchat-signaling/internal/metrics"
	"github.com/mossy-p/p2pchat-signaling/internal/redis"
	"github.com/mossy-p/p2pchat-signaling/internal/repository"
	"github.com/mossy-p/p2pchat-signaling/internal/signaling"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := setupLogger(cfg.Environment, cfg.LogLevel)
	if err := run(cfg, log); err != nil {
		log.Error("server stopped", sl.Err(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.close()

	if err := repository.SeedDefaultRooms(ctx, store.rooms); err != nil {
		return fmt.Errorf("failed to seed rooms: %w", err)
	}

	m := metrics.New()
	hubOpts := []signaling.Option{
		signaling.WithLogger(log),
		signaling.WithMetrics(m),
	}

	workers, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	presenceDone := make(chan struct{})
	if store.presence != nil {
		if err := store.presence.Reset(ctx); err != nil {
			log.Warn("failed to clear stale presence", sl.Err(err))
		}
		hubOpts = append(hubOpts, signaling.WithPresence(store.presence))
		go func() {
			store.presence.Run(workers)
			close(presenceDone)
		}()
	} else {
		close(presenceDone)
	}

	hub := signaling.NewHub(hubOpts...)
	hubDone := make(chan struct{})
	go func() {
		hub.Run(workers)
		close(hubDone)
	}()

	var online handlers.OnlineCounter
	if store.presence != nil {
		online = store.presence
	}

	if cfg.Environment == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handlers.SetupRouter(handlers.Dependencies{
		Config:   cfg,
		Hub:      hub,
		Rooms:    store.rooms,
		Messages: store.messages,
		Nonces:   store.nonces,
		Online:   online,
		Metrics:  m.Handler(),
		Log:      log,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting signaling server",
			slog.String("addr", srv.Addr),
			slog.String("env", cfg.Environment),
			slog.String("storage", cfg.StorageDriver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked websockets are not tracked by Shutdown; stopping the hub
	// closes them.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown incomplete", sl.Err(err))
	}
	cancelWorkers()
	<-hubDone
	<-presenceDone

	log.Info("server stopped")
	return nil
}

type storage struct {
	rooms    repository.RoomRepository
	messages repository.MessageRepository
	nonces   repository.NonceStore
	presence *redis.Presence
	close    func()
}

func openStorage(ctx context.Context, cfg *config.Config, log *slog.Logger) (*storage, error) {
	switch cfg.StorageDriver {
	case config.StorageRedis:
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		log.Info("redis connection established", slog.String("host", cfg.Redis.Host))
		return &storage{
			rooms:    repository.NewRedisRoomRepository(client),
			messages: repository.NewRedisMessageRepository(client),
			nonces:   repository.NewRedisNonceStore(client),
			presence: redis.NewPresence(client, log),
			close:    closeRedis(client, log),
		}, nil

	case config.StoragePostgres:
		db, err := connectDatabase(cfg.Database)
		if err != nil {
			return nil, err
		}
		log.Info("postgres connection established")
		return &storage{
			rooms:    repository.NewPostgresRoomRepository(db),
			messages: repository.NewPostgresMessageRepository(db),
			nonces:   repository.NewInMemoryNonceStore(),
			close: func() {
				if sqlDB, err := db.DB(); err == nil {
					_ = sqlDB.Close()
				}
			},
		}, nil

	default:
		return &storage{
			rooms:    repository.NewInMemoryRoomRepository(),
			messages: repository.NewInMemoryMessageRepository(),
			nonces:   repository.NewInMemoryNonceStore(),
			close:    func() {},
		}, nil
	}
}

func closeRedis(client *goredis.Client, log *slog.Logger) func() {
	return func() {
		if err := client.Close(); err != nil {
			log.Warn("failed to close redis", sl.Err(err))
		}
	}
}

func connectDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database dsn is empty")
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := repository.MigratePostgres(db); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

func setupLogger(env, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	if env == config.EnvProduction {
		opts.Level = slog.LevelInfo
	}
	if level != "" {
		var l slog.Level
		if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err == nil {
			opts.Level = l
		}
	}

	var log *slog.Logger
	switch env {
	case config.EnvLocal:
		log = slog.New(slog.NewTextHandler(os.Stdout, opts))
	default:
		log = slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}

	return log
}
