package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"GoMarketplace/internal/cart"
	"GoMarketplace/internal/config"
	"GoMarketplace/internal/storage"
	"GoMarketplace/pkg/kit"
)

func main() {
	service := "cartd"
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		kit.NewLogger(service, "info").Fatal("load config failed", zap.Error(err))
	}

	log := kit.NewLogger(service, cfg.LogLevel).With(zap.String("session_id", uuid.NewString()))
	defer func() { _ = log.Sync() }()

	ctx := context.Background()

	kv, closer, err := openStorage(ctx, cfg.Storage, log)
	if err != nil {
		log.Fatal("open storage failed", zap.Error(err), zap.String("backend", cfg.Storage.Backend))
	}
	defer func() { _ = closer.Close() }()

	policy, _ := cart.ParseDuplicatePolicy(cfg.DuplicatePolicy)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	store := cart.Open(ctx, kv,
		cart.WithKey(cfg.Storage.Key),
		cart.WithLogger(log),
		cart.WithMetrics(cart.NewMetrics(reg)),
		cart.WithDuplicatePolicy(policy),
	)
	log.Info("cart ready",
		zap.String("backend", cfg.Storage.Backend),
		zap.String("key", store.Key()),
		zap.Int("lines", len(store.Items())),
		zap.Stringer("duplicate_policy", policy),
	)

	changes, unsubscribe := store.Subscribe()
	defer unsubscribe()
	go func() {
		for c := range changes {
			log.Debug("cart changed", zap.Int("lines", len(c)), zap.Int("units", c.Units()))
		}
	}()

	h := cart.NewHandler(&cart.Server{Store: store, Log: log}, cart.HTTPDeps{
		Log:             log,
		Service:         service,
		Registry:        reg,
		MetricsEnabled:  cfg.MetricsEnabled,
		MetricsToken:    cfg.MetricsToken,
		RateLimitPerMin: cfg.RateLimitPerMin,
	})

	if err := kit.RunHTTPServer(ctx, cfg.Addr, h, log); err != nil {
		log.Fatal("http server stopped", zap.Error(err))
	}
}

type closeFunc func() error

func (f closeFunc) Close() error { return f() }

func openStorage(ctx context.Context, st config.StorageConfig, log *zap.Logger) (storage.KV, io.Closer, error) {
	var (
		kv     storage.KV
		closer io.Closer = closeFunc(func() error { return nil })
	)

	switch st.Backend {
	case config.BackendMemory:
		kv = storage.NewMemStore()
	case config.BackendSQLite:
		s, err := storage.OpenSQLite(ctx, st.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		kv, closer = s, s
	case config.BackendPostgres:
		s, err := storage.OpenPostgres(ctx, st.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		kv, closer = s, s
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     st.RedisAddr,
			Password: st.RedisPassword,
			DB:       st.RedisDB,
		})
		kv, closer = storage.NewRedisStore(client, st.RedisTTL), client
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", st.Backend)
	}

	if st.BreakerEnabled {
		kv = storage.WithBreaker(kv, storage.BreakerSettings{
			Name:     "cart-" + st.Backend,
			Failures: st.BreakerFailures,
			Cooldown: st.BreakerCooldown,
		}, log)
	}

	if err := kv.Ping(ctx); err != nil {
		// hydration copes with an unreachable slot; keep serving from memory
		log.Warn("storage ping failed", zap.Error(err), zap.String("backend", st.Backend))
	}
	return kv, closer, nil
}
