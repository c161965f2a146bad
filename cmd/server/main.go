package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/atmx/nft-marketplace/internal/api"
	"github.com/atmx/nft-marketplace/internal/chain"
	"github.com/atmx/nft-marketplace/internal/clock"
	"github.com/atmx/nft-marketplace/internal/config"
	"github.com/atmx/nft-marketplace/internal/events"
	"github.com/atmx/nft-marketplace/internal/hooks"
	"github.com/atmx/nft-marketplace/internal/market"
	"github.com/atmx/nft-marketplace/internal/metrics"
	"github.com/atmx/nft-marketplace/internal/model"
	"github.com/atmx/nft-marketplace/internal/store"
	"github.com/atmx/nft-marketplace/migrations"
)

func main() {
	configPath := flag.String("config", os.Getenv("MARKET_CONFIG"), "path to TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("nft-marketplace exited", "err", err)
		os.Exit(1)
	}
	fmt.Println("nft-marketplace stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	var cleanup []func()
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	// --- Order store ---
	var st store.Store
	switch cfg.Store.Driver {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return fmt.Errorf("database connection: %w", err)
		}
		cleanup = append(cleanup, pool.Close)
		if cfg.Store.RunMigrations {
			if err := migrations.Apply(ctx, pool); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
		}
		st = store.NewPostgresStore(pool)
		logger.Info("connected to PostgreSQL")
	case "pebble":
		ps, err := store.OpenPebbleStore(cfg.Store.PebbleDir)
		if err != nil {
			return fmt.Errorf("open pebble store: %w", err)
		}
		cleanup = append(cleanup, func() { ps.Close() })
		st = ps
		logger.Info("opened Pebble store", "dir", cfg.Store.PebbleDir)
	default:
		logger.Warn("using in-memory store (orders will not persist)")
		st = store.NewMemoryStore()
	}

	// --- Redis ---
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		opt, err := redisOptions(cfg.Redis)
		if err != nil {
			return fmt.Errorf("invalid redis address: %w", err)
		}
		rdb = redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		logger.Info("Redis enabled", "addr", opt.Addr)
	}

	// --- Token and collection registry ---
	var (
		tokens      chain.Tokens
		collections chain.Collections
		owners      market.OwnershipApplier
	)
	if cfg.Registry.BaseURL != "" {
		client := chain.NewClient(cfg.Registry.BaseURL, cfg.Registry.Timeout.Duration)
		tokens, collections = client, client
		logger.Info("using registry service", "base_url", cfg.Registry.BaseURL)
	} else {
		reg := chain.NewRegistry()
		reg.Seed(cfg.Registry)
		tokens, collections, owners = reg, reg, reg
		logger.Warn("using in-memory token registry",
			"tokens", len(cfg.Registry.Tokens),
			"collections", len(cfg.Registry.Collections),
		)
		if len(cfg.Registry.Tokens) == 0 {
			logger.Warn("in-memory registry has no tokens; add [[registry.tokens]] entries to list anything")
		}
	}
	if rdb != nil {
		collections = chain.NewCachedCollections(collections, rdb, cfg.Redis.CollectionCacheTTL.Duration)
	}

	// --- Hooks ---
	var hookRegistry hooks.Registry = hooks.NewMemoryRegistry()
	if rdb != nil {
		hookRegistry = hooks.NewRedisRegistry(rdb, "nftmkt:")
	}
	for kind, addrs := range map[model.HookKind][]string{
		model.HookAsk:  cfg.Hooks.Ask,
		model.HookBid:  cfg.Hooks.Bid,
		model.HookSale: cfg.Hooks.Sale,
	} {
		if err := hooks.Seed(ctx, hookRegistry, kind, addrs); err != nil {
			return fmt.Errorf("seed %s hooks: %w", kind, err)
		}
	}

	// --- Event sink ---
	var sink events.Sink = events.NewLogSink(logger)
	if len(cfg.Kafka.Brokers) > 0 {
		sink = events.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		logger.Info("publishing events to Kafka", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}
	cleanup = append(cleanup, func() { sink.Close() })

	// --- Engine and API ---
	engine := market.NewEngine(st, tokens, collections, hooks.NewDispatcher(hookRegistry), cfg.Market, clock.NewSystem(), logger)
	if owners != nil {
		engine.WithOwnershipApplier(owners)
	}
	hub := api.NewWSHub(logger)
	svc := api.NewService(engine, hooks.NewDeliverer(cfg.Hooks.DeliveryTimeout.Duration, logger), sink, hub, logger)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"nft-marketplace"}`))
	})
	r.Handle("/metrics", metrics.Handler())
	r.Route("/api/v1", svc.Routes)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return hub.Run(ctx)
	})
	g.Go(func() error {
		logger.Info("nft-marketplace listening", "port", cfg.Server.Port, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down nft-marketplace...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func redisOptions(cfg config.RedisConfig) (*redis.Options, error) {
	if strings.Contains(cfg.Addr, "://") {
		return redis.ParseURL(cfg.Addr)
	}
	return &redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}, nil
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
