package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"refcite/internal/citation"
)

// EnvPrefix prefixes environment overrides, e.g. REFCITE_MATCHER_TOP_K.
const EnvPrefix = "REFCITE"

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL           string  `mapstructure:"base_url" yaml:"base_url"`
	APIKeyEnv         string  `mapstructure:"api_key_env" yaml:"api_key_env"`
	Model             string  `mapstructure:"model" yaml:"model"`
	TimeoutSecs       int     `mapstructure:"timeout_secs" yaml:"timeout_secs"`
	BatchSize         int     `mapstructure:"batch_size" yaml:"batch_size"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string               `mapstructure:"type" yaml:"type"`
	OpenAI OpenAIEmbedderConfig `mapstructure:"openai" yaml:"openai"`
}

// CacheConfig configures the embedding cache in front of remote embedders.
type CacheConfig struct {
	Type      string `mapstructure:"type" yaml:"type"`
	LRUSize   int    `mapstructure:"lru_size" yaml:"lru_size"`
	RedisAddr string `mapstructure:"redis_addr" yaml:"redis_addr"`
	TTLSecs   int    `mapstructure:"ttl_secs" yaml:"ttl_secs"`
}

// ChunkerConfig configures how reference texts are split into chunks.
type ChunkerConfig struct {
	MaxChunkWords int `mapstructure:"max_chunk_words" yaml:"max_chunk_words"`
	OverlapWords  int `mapstructure:"overlap_words" yaml:"overlap_words"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string       `mapstructure:"type" yaml:"type"`
	SQLite SQLiteConfig `mapstructure:"sqlite" yaml:"sqlite"`
	Qdrant QdrantConfig `mapstructure:"qdrant" yaml:"qdrant"`
}

type SQLiteConfig struct {
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `mapstructure:"url" yaml:"url"`
	APIKey      string `mapstructure:"api_key" yaml:"api_key"`
	Collection  string `mapstructure:"collection" yaml:"collection"`
	TimeoutSecs int    `mapstructure:"timeout_secs" yaml:"timeout_secs"`
}

// MatcherConfig holds the citation quality controls.
type MatcherConfig struct {
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" yaml:"similarity_threshold"`
	TopK                int     `mapstructure:"top_k" yaml:"top_k"`
	MaxReuseDistance    int     `mapstructure:"max_reuse_distance" yaml:"max_reuse_distance"`
}

type IndexConfig struct {
	Workers int `mapstructure:"workers" yaml:"workers"`
}

type CitationConfig struct {
	Style string `mapstructure:"style" yaml:"style"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder    EmbedderConfig    `mapstructure:"embedder" yaml:"embedder"`
	Cache       CacheConfig       `mapstructure:"cache" yaml:"cache"`
	Chunker     ChunkerConfig     `mapstructure:"chunker" yaml:"chunker"`
	VectorStore VectorStoreConfig `mapstructure:"vector_store" yaml:"vector_store"`
	Matcher     MatcherConfig     `mapstructure:"matcher" yaml:"matcher"`
	Index       IndexConfig       `mapstructure:"index" yaml:"index"`
	Citation    CitationConfig    `mapstructure:"citation" yaml:"citation"`
	Log         LogConfig         `mapstructure:"log" yaml:"log"`
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	return &AppConfig{
		Embedder: EmbedderConfig{
			Type: "tfidf",
			OpenAI: OpenAIEmbedderConfig{
				BaseURL:     "https://api.openai.com/v1",
				APIKeyEnv:   "OPENAI_API_KEY",
				Model:       "text-embedding-3-small",
				TimeoutSecs: 30,
				BatchSize:   32,
			},
		},
		Cache:       CacheConfig{Type: "none", LRUSize: 4096, RedisAddr: "localhost:6379", TTLSecs: 86400},
		Chunker:     ChunkerConfig{MaxChunkWords: 150, OverlapWords: 30},
		VectorStore: VectorStoreConfig{Type: "memory", Qdrant: QdrantConfig{URL: "http://localhost:6333", Collection: "refcite_chunks", TimeoutSecs: 15}},
		Matcher:     MatcherConfig{SimilarityThreshold: 0.75, TopK: 5, MaxReuseDistance: 1},
		Index:       IndexConfig{Workers: 4},
		Citation:    CitationConfig{Style: "APA"},
		Log:         LogConfig{Level: "info", Format: "console"},
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	d := Default()
	v.SetDefault("embedder.type", d.Embedder.Type)
	v.SetDefault("embedder.openai.base_url", d.Embedder.OpenAI.BaseURL)
	v.SetDefault("embedder.openai.api_key_env", d.Embedder.OpenAI.APIKeyEnv)
	v.SetDefault("embedder.openai.model", d.Embedder.OpenAI.Model)
	v.SetDefault("embedder.openai.timeout_secs", d.Embedder.OpenAI.TimeoutSecs)
	v.SetDefault("embedder.openai.batch_size", d.Embedder.OpenAI.BatchSize)
	v.SetDefault("embedder.openai.requests_per_second", d.Embedder.OpenAI.RequestsPerSecond)
	v.SetDefault("cache.type", d.Cache.Type)
	v.SetDefault("cache.lru_size", d.Cache.LRUSize)
	v.SetDefault("cache.redis_addr", d.Cache.RedisAddr)
	v.SetDefault("cache.ttl_secs", d.Cache.TTLSecs)
	v.SetDefault("chunker.max_chunk_words", d.Chunker.MaxChunkWords)
	v.SetDefault("chunker.overlap_words", d.Chunker.OverlapWords)
	v.SetDefault("vector_store.type", d.VectorStore.Type)
	v.SetDefault("vector_store.sqlite.dsn", d.VectorStore.SQLite.DSN)
	v.SetDefault("vector_store.qdrant.url", d.VectorStore.Qdrant.URL)
	v.SetDefault("vector_store.qdrant.api_key", d.VectorStore.Qdrant.APIKey)
	v.SetDefault("vector_store.qdrant.collection", d.VectorStore.Qdrant.Collection)
	v.SetDefault("vector_store.qdrant.timeout_secs", d.VectorStore.Qdrant.TimeoutSecs)
	v.SetDefault("matcher.similarity_threshold", d.Matcher.SimilarityThreshold)
	v.SetDefault("matcher.top_k", d.Matcher.TopK)
	v.SetDefault("matcher.max_reuse_distance", d.Matcher.MaxReuseDistance)
	v.SetDefault("index.workers", d.Index.Workers)
	v.SetDefault("citation.style", d.Citation.Style)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads a config from path, layering REFCITE_* environment variables
// on top. If the file does not exist, defaults (plus environment) are used.
func Load(path string) (*AppConfig, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if filepath.Ext(path) == "" {
			v.SetConfigType("yaml")
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}
	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// LoadDefault tries ./refcite.yaml first, then ~/.config/refcite/config.yaml.
// If neither exists, it writes defaults to ~/.config/refcite/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "refcite.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := DefaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	if err := Save(userPath, Default()); err != nil {
		return nil, "", err
	}
	cfg, err := Load(userPath)
	return cfg, userPath, err
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// DefaultUserConfigPath is ~/.config/refcite/config.yaml.
func DefaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "refcite", "config.yaml"), nil
}

// Validate reports every out-of-range or unknown setting.
func (c *AppConfig) Validate() error {
	var errs []error
	switch c.Embedder.Type {
	case "tfidf":
	case "openai":
		if c.Embedder.OpenAI.Model == "" {
			errs = append(errs, errors.New("embedder.openai.model is required"))
		}
		if c.Embedder.OpenAI.RequestsPerSecond < 0 {
			errs = append(errs, errors.New("embedder.openai.requests_per_second must be >= 0"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown embedder.type %q", c.Embedder.Type))
	}
	switch c.Cache.Type {
	case "none", "lru", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown cache.type %q", c.Cache.Type))
	}
	switch c.VectorStore.Type {
	case "memory", "sqlite":
	case "qdrant":
		if c.VectorStore.Qdrant.URL == "" {
			errs = append(errs, errors.New("vector_store.qdrant.url is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown vector_store.type %q", c.VectorStore.Type))
	}
	if c.Chunker.MaxChunkWords <= 0 {
		errs = append(errs, errors.New("chunker.max_chunk_words must be > 0"))
	}
	if c.Chunker.OverlapWords < 0 || c.Chunker.OverlapWords >= c.Chunker.MaxChunkWords {
		errs = append(errs, errors.New("chunker.overlap_words must be in [0, max_chunk_words)"))
	}
	if c.Matcher.SimilarityThreshold < -1 || c.Matcher.SimilarityThreshold > 1 {
		errs = append(errs, errors.New("matcher.similarity_threshold must be in [-1, 1]"))
	}
	if c.Matcher.TopK <= 0 {
		errs = append(errs, errors.New("matcher.top_k must be > 0"))
	}
	if c.Matcher.MaxReuseDistance < 0 {
		errs = append(errs, errors.New("matcher.max_reuse_distance must be >= 0"))
	}
	if c.Index.Workers <= 0 {
		errs = append(errs, errors.New("index.workers must be > 0"))
	}
	if _, err := citation.ParseStyle(c.Citation.Style); err != nil {
		errs = append(errs, err)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
