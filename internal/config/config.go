package config

import (
	"context"
	"time"
)

// ListenerConfig holds the network settings for the HTTP listener.
type ListenerConfig struct {
	Port              int
	ReadHeaderTimeout time.Duration
}

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

const (
	ModeProd    = "prod"
	ModeTesting = "testing"
)

// Config holds all configuration for the memory service.
type Config struct {
	// Mode is "prod" (default) or "testing". No component reads it: auth
	// behaves the same in both modes, and no X-Client-ID header is accepted
	// in place of a credential.
	Mode string

	// RegionPath is the filesystem path of the bbolt-backed stable region.
	RegionPath string

	// VectorDimension is the fixed embedding width the vector store is
	// configured for. 0 picks vectorstore.DefaultConfig()'s dimension.
	VectorDimension int

	// MaintenanceInterval controls how often Core.RunMaintenance sweeps
	// expired access tokens and stale suggestion state.
	MaintenanceInterval time.Duration

	// RedisURL, if set, backs internal/suggestcache's read-through cache
	// in front of C6. Left empty, suggestions are served uncached.
	RedisURL string

	// OIDC
	OIDCIssuer       string
	OIDCDiscoveryURL string // internal discovery URL, when the issuer URL isn't reachable from this process

	// APIKeys maps a static API key value to a human label, used to seed
	// internal/authn's APIKeyAuthN.
	APIKeys map[string]string

	// Default embedding provider settings. No component reads them: a
	// principal without its own POST /config gets no embeddings, and
	// internal/embed uses OpenAI and its own built-in model when a
	// principal's config leaves provider or model empty.
	DefaultProvider       string
	DefaultEmbeddingModel string

	// Prometheus. MetricsLabels is not read: internal/obs registers its
	// metrics without constant labels.
	MetricsLabels string

	// Server. CORSEnabled is not read: httpapi.Mount applies its CORS
	// headers whether or not it is set.
	Listener    ListenerConfig
	CORSEnabled bool

	// Body size limit (bytes)
	MaxBodySize int64

	// Graceful shutdown drain timeout (seconds)
	DrainTimeout int

	// Per-owner memory count ceiling. No component reads it: C10's UserQuota
	// check enforces the fixed validate.MaxMemoriesPerUser (10,000) whatever
	// this holds.
	MaxMemoriesPerUser int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Mode:                  ModeProd,
		RegionPath:            "openmemory.db",
		MaintenanceInterval:   5 * time.Minute,
		DefaultProvider:       "openai",
		DefaultEmbeddingModel: "text-embedding-3-small",
		Listener: ListenerConfig{
			Port:              8080,
			ReadHeaderTimeout: 5 * time.Second,
		},
		CORSEnabled:        true,
		MaxBodySize:        2 * 1024 * 1024, // 2 MB: generous for a single memory's content+metadata
		DrainTimeout:       30,
		MaxMemoriesPerUser: 100_000,
	}
}
