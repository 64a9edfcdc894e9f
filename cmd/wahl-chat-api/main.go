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
	"syscall"
	"time"

	"github.com/wahl-chat/wahl-chat-backend/backend"
	"github.com/wahl-chat/wahl-chat-backend/backend/openaicompat"
	"github.com/wahl-chat/wahl-chat-backend/cache"
	"github.com/wahl-chat/wahl-chat-backend/chat"
	"github.com/wahl-chat/wahl-chat-backend/config"
	"github.com/wahl-chat/wahl-chat-backend/obs"
	"github.com/wahl-chat/wahl-chat-backend/prompts"
	"github.com/wahl-chat/wahl-chat-backend/retrieval"
	"github.com/wahl-chat/wahl-chat-backend/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML configuration")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	config.LoadEnv()
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownObs, err := obs.Init(ctx, obs.Options{
		ServiceName: cfg.Obs.ServiceName,
		Exporter:    cfg.Obs.Exporter,
		Endpoint:    cfg.Obs.Endpoint,
		SampleRatio: cfg.Obs.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer func() { _ = shutdownObs(context.Background()) }()

	chatPool, utilityPool := buildPools(cfg)

	routerOpts := []backend.RouterOption{backend.WithLogger(logger)}
	var store cache.Store
	if cfg.Redis.Addr != "" {
		redisStore, err := cache.NewRedisStore(cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password(),
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisStore.Close()
		store = redisStore
		routerOpts = append(routerOpts, backend.WithStatusSignal(cache.NewStatusWriter(redisStore, time.Minute)))
	} else {
		logger.Warn("no redis configured, using in-memory answer cache")
		store = cache.NewMemoryStore()
	}
	router := backend.NewRouter(routerOpts...)

	registry, err := prompts.Default()
	if err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}

	searcher := retrieval.NewClient(cfg.Retrieval.BaseURL, retrieval.WithAPIKey(cfg.Retrieval.APIKey()))
	resolverOpts := []retrieval.ResolverOption{
		retrieval.WithResolverLogger(logger),
		retrieval.WithLimits(cfg.Retrieval.TopK, cfg.Retrieval.MinScore, cfg.Retrieval.MaxDocs),
	}
	if cfg.Retrieval.Rerank {
		resolverOpts = append(resolverOpts, retrieval.WithReranker(
			retrieval.NewLLMReranker(router, utilityPool, registry),
		))
	}
	resolver := retrieval.NewResolver(searcher, resolverOpts...)

	directory := chat.NewStaticDirectory(cfg.Parties, cfg.Questions)
	orchestrator := chat.NewOrchestrator(
		directory, router, chatPool, utilityPool, resolver, registry,
		chat.WithCacheStore(store),
		chat.WithLogger(logger),
		chat.WithSettings(chatSettings(cfg.Chat)),
	)

	wsServer := ws.NewServer(orchestrator, ws.WithLogger(logger))

	mux := http.NewServeMux()
	mux.Handle("/ws", wsServer)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","connections":%d}`, wsServer.ConnectionCount())
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

// buildPools turns backend configuration into the chat pool and the utility
// pool for classification and rewriting.
func buildPools(cfg *config.Config) (*backend.Pool, *backend.Pool) {
	var chatBackends, utilityBackends []*backend.Descriptor
	for _, b := range cfg.Backends {
		opts := []openaicompat.Option{
			openaicompat.WithBaseURL(b.BaseURL),
			openaicompat.WithAPIKey(b.APIKey()),
			openaicompat.WithModel(b.Model),
		}
		if b.Temperature != nil {
			opts = append(opts, openaicompat.WithTemperature(*b.Temperature))
		}
		for k, v := range b.Headers {
			opts = append(opts, openaicompat.WithHeader(k, v))
		}
		for k, v := range b.Query {
			opts = append(opts, openaicompat.WithQueryParam(k, v))
		}
		client := openaicompat.New(opts...)

		sizes := make([]backend.Size, 0, len(b.Sizes))
		for _, size := range b.Sizes {
			sizes = append(sizes, backend.Size(size))
		}
		descriptor := &backend.Descriptor{
			Name:              b.Name,
			Client:            client,
			Sizes:             sizes,
			Priority:          b.Priority,
			CapacityPerMinute: b.Capacity,
			PremiumOnly:       b.PremiumOnly,
			BackupOnly:        b.BackupOnly,
		}
		if b.Utility {
			utilityBackends = append(utilityBackends, descriptor)
		} else {
			chatBackends = append(chatBackends, descriptor)
		}
	}
	if len(utilityBackends) == 0 {
		utilityBackends = chatBackends
	}
	return backend.NewPool(chatBackends...), backend.NewPool(utilityBackends...)
}

func chatSettings(cfg config.ChatConfig) chat.Settings {
	settings := chat.DefaultSettings()
	if cfg.TurnTimeout > 0 {
		settings.TurnTimeout = cfg.TurnTimeout
	}
	if cfg.ComparisonTimeout > 0 {
		settings.ComparisonTimeout = cfg.ComparisonTimeout
	}
	if cfg.MaxChunkLen > 0 {
		settings.MaxChunkLen = cfg.MaxChunkLen
	}
	if cfg.ChunkDelay > 0 {
		settings.ChunkDelay = cfg.ChunkDelay
	}
	if cfg.MaxAutoParties > 0 {
		settings.MaxAutoParties = cfg.MaxAutoParties
	}
	if cfg.CachedAnswerLimit > 0 {
		settings.CachedAnswerLimit = cfg.CachedAnswerLimit
	}
	return settings
}
