package cli

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"refcite/internal/chunker"
	"refcite/internal/config"
	"refcite/internal/embedding"
	"refcite/internal/embedding/cache"
	"refcite/internal/embedding/openai"
	"refcite/internal/embedding/tfidf"
	"refcite/internal/service"
	"refcite/internal/vectorstore"
	"refcite/internal/vectorstore/memory"
	"refcite/internal/vectorstore/qdrant"
	"refcite/internal/vectorstore/sqlite"
)

// components are the per-invocation building blocks selected by config.
type components struct {
	service *service.CitationService
	closers []func() error
}

func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i]()
	}
}

func buildComponents(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*components, error) {
	c := &components{}
	newEmbedder, err := c.embedderFactory(ctx, cfg, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	newStorage, err := storageFactory(cfg)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.service = service.NewCitationService(
		chunker.NewSentenceChunker(cfg.Chunker.MaxChunkWords, cfg.Chunker.OverlapWords),
		newEmbedder,
		newStorage,
		service.Options{
			TopK:                cfg.Matcher.TopK,
			SimilarityThreshold: cfg.Matcher.SimilarityThreshold,
			MaxReuseDistance:    cfg.Matcher.MaxReuseDistance,
			Workers:             cfg.Index.Workers,
		},
		logger,
	)
	return c, nil
}

func (c *components) embedderFactory(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (service.EmbedderFactory, error) {
	switch cfg.Embedder.Type {
	case "tfidf", "":
		// vocabulary is corpus specific, so neither caching nor sharing applies
		return func() (embedding.Embedder, error) { return tfidf.NewEmbedder(), nil }, nil
	case "openai":
		oc := cfg.Embedder.OpenAI
		client, err := openai.NewClient(openai.Config{
			BaseURL:           oc.BaseURL,
			APIKeyEnv:         oc.APIKeyEnv,
			Model:             oc.Model,
			Timeout:           time.Duration(oc.TimeoutSecs) * time.Second,
			BatchSize:         oc.BatchSize,
			RequestsPerSecond: oc.RequestsPerSecond,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		var emb embedding.Embedder = client
		ec, err := c.embeddingCache(ctx, cfg.Cache, logger)
		if err != nil {
			return nil, err
		}
		if ec != nil {
			emb = cache.NewEmbedder(client, ec, time.Duration(cfg.Cache.TTLSecs)*time.Second)
		}
		return func() (embedding.Embedder, error) { return emb, nil }, nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
}

func (c *components) embeddingCache(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger) (cache.Cache, error) {
	switch cfg.Type {
	case "none", "":
		return nil, nil
	case "lru":
		return cache.NewLocalLRU(cfg.LRUSize), nil
	case "redis":
		rc, err := cache.NewRedisCache(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("connect redis cache at %s: %w", cfg.RedisAddr, err)
		}
		c.closers = append(c.closers, rc.Close)
		logger.Debug("embedding cache connected", zap.String("addr", cfg.RedisAddr))
		return rc, nil
	default:
		return nil, fmt.Errorf("unknown cache: %s", cfg.Type)
	}
}

func storageFactory(cfg *config.AppConfig) (service.StorageFactory, error) {
	vs := cfg.VectorStore
	switch vs.Type {
	case "memory", "":
		return func() (vectorstore.Storage, error) { return memory.NewStorage(), nil }, nil
	case "sqlite":
		return func() (vectorstore.Storage, error) { return sqlite.Open(vs.SQLite.DSN) }, nil
	case "qdrant":
		return func() (vectorstore.Storage, error) {
			return qdrant.NewStorage(qdrant.Config{
				URL:        vs.Qdrant.URL,
				APIKey:     vs.Qdrant.APIKey,
				Collection: vs.Qdrant.Collection,
				Timeout:    time.Duration(vs.Qdrant.TimeoutSecs) * time.Second,
			}), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", vs.Type)
	}
}
