// Emoji Rooms - chat rooms with an emoji movie game and random pairing
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/ashureev/emojirooms/internal/api"
	"github.com/ashureev/emojirooms/internal/config"
	"github.com/ashureev/emojirooms/internal/directory"
	"github.com/ashureev/emojirooms/internal/health"
	"github.com/ashureev/emojirooms/internal/identity"
	"github.com/ashureev/emojirooms/internal/matchmaking"
	"github.com/ashureev/emojirooms/internal/middleware"
	"github.com/ashureev/emojirooms/internal/room"
	"github.com/ashureev/emojirooms/internal/store"
	"github.com/ashureev/emojirooms/internal/ws"
)

const (
	shutdownTimeout     = 10 * time.Second
	healthWatchInterval = 30 * time.Second
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		return err
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	checks := []api.Check{{Name: "database", Pinger: repo}}
	healthChecks := []health.Checker{repo}

	// Pair records live in Redis when configured; SQLite keeps them otherwise
	// and the TTL worker sweeps the expired ones.
	var (
		pairs   store.PairStore              = repo
		sweeper directory.ExpiredPairSweeper = repo
	)
	if cfg.Redis.Addr != "" {
		redisPairs, err := store.NewRedisPairStore(ctx, store.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := redisPairs.Close(); closeErr != nil {
				slog.Error("Failed to close redis", "error", closeErr)
			}
		}()
		pairs, sweeper = redisPairs, nil
		checks = append(checks, api.Check{Name: "pairs", Pinger: redisPairs})
		healthChecks = append(healthChecks, redisPairs)
		slog.Info("Pair records stored in redis", "addr", cfg.Redis.Addr)
	} else {
		slog.Info("Pair records stored in sqlite (REDIS_ADDR not set)")
	}

	dir := directory.New(repo, pairs, directory.Options{
		Room: room.Options{
			NextRoundDelay: cfg.Room.NextRoundDelay,
			PersistTimeout: cfg.Room.PersistTimeout,
			MailboxSize:    cfg.Room.MailboxSize,
		},
		Matchmaking: matchmaking.Options{
			PairingInterval: cfg.Matchmaking.PairingInterval,
			PairTTL:         cfg.Matchmaking.PairRecordTTL,
			MailboxSize:     cfg.Room.MailboxSize,
		},
		Logger: logger,
	})
	defer dir.Close()
	dir.Matchmaker().Start()

	// Initialize handlers.
	apiHandler := api.NewHandler(dir, pairs, logger, checks...)
	wsHandler := ws.NewHandler(dir, ws.Options{
		AllowedOrigin:     cfg.FrontendURL,
		IsDev:             cfg.IsDevelopment(),
		SendQueue:         cfg.WebSocket.SendQueue,
		WriteTimeout:      cfg.WebSocket.WriteTimeout,
		MaxMessageBytes:   cfg.WebSocket.MaxMessageBytes,
		MessagesPerSecond: cfg.WebSocket.MessagesPerSecond,
		Burst:             cfg.WebSocket.Burst,
		Logger:            logger,
	})

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(allowedOrigins(cfg)))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	// WebSocket endpoints.
	r.Get("/api/chat/room/{roomId}/websocket", wsHandler.ServeRoom)
	r.Get("/api/waiting-room/websocket", wsHandler.ServeWaitingRoom)

	apiHandler.RegisterRoutes(r)

	// WebSocket connections are long-lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	// Optional gRPC health service.
	var (
		grpcHealth *health.Server
		grpcLis    net.Listener
	)
	if cfg.GRPCPort != "" {
		grpcLis, err = net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			return err
		}
		grpcHealth = health.NewServer(logger, healthChecks...)
	}

	directory.StartTTLWorker(ctx, dir, sweeper, cfg.Sweep.Interval, cfg.Sweep.RoomIdleTTL)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if grpcHealth != nil {
		g.Go(func() error { return grpcHealth.Serve(grpcLis) })
		g.Go(func() error {
			grpcHealth.Watch(gctx, healthWatchInterval)
			return nil
		})
	}

	// Wait for a shutdown signal or a listener failure.
	g.Go(func() error {
		<-gctx.Done()
		stop()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if grpcHealth != nil {
			grpcHealth.Shutdown(shutdownCtx)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server forced to shutdown", "error", err)
			return err
		}
		return nil
	})

	return g.Wait()
}

// allowedOrigins returns the CORS origins: the configured frontend, or any
// origin in development.
func allowedOrigins(cfg *config.Config) []string {
	if cfg.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{cfg.FrontendURL}
}
