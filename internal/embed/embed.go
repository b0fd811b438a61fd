// Package embed wraps the embedding providers a principal can configure
// (C9's external call). Each provider request goes through a per-provider
// circuit breaker so a flapping upstream degrades to fast failures instead
// of stacking up retries across concurrent writes.
package embed

import (
	"context"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/chirino/memory-service/internal/errs"
	"github.com/chirino/memory-service/internal/model"
	registryembed "github.com/chirino/memory-service/internal/registry/embed"
)

const (
	openAIURL     = "https://api.openai.com/v1/embeddings"
	openRouterURL = "https://openrouter.ai/api/v1/embeddings"
	defaultModel  = "text-embedding-ada-002"
	maxTextLen    = 8192
)

// Factory builds an Embedder for a principal's configured provider,
// keeping one circuit breaker per provider name, shared by every user of that
// provider. Any failed request counts toward tripping it, including one
// rejected for a single user's bad key.
type Factory struct {
	breakers map[string]*gobreaker.CircuitBreaker
}

func NewFactory() *Factory {
	return &Factory{breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

// ForUser returns an Embedder configured from cfg, or a validation error if
// cfg has no usable key for its selected provider.
func (f *Factory) ForUser(cfg *model.UserConfig) (registryembed.Embedder, error) {
	modelName := cfg.EmbeddingModel
	if modelName == "" {
		modelName = defaultModel
	}
	switch cfg.Provider {
	case model.ProviderOpenRouter:
		if cfg.OpenRouterKey == "" {
			return nil, errs.Validation("openrouter_api_key", "OpenRouter API key not configured")
		}
		return &httpEmbedder{
			apiKey:  cfg.OpenRouterKey,
			url:     openRouterURL,
			model:   modelName,
			extra:   openRouterHeaders,
			breaker: f.breakerFor("openrouter"),
		}, nil
	default:
		if cfg.OpenAIKey == "" {
			return nil, errs.Validation("openai_api_key", "OpenAI API key not configured")
		}
		return &httpEmbedder{
			apiKey:  cfg.OpenAIKey,
			url:     openAIURL,
			model:   modelName,
			breaker: f.breakerFor("openai"),
		}, nil
	}
}

func (f *Factory) breakerFor(provider string) *gobreaker.CircuitBreaker {
	if b, ok := f.breakers[provider]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "embed-" + provider,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	f.breakers[provider] = b
	return b
}

func openRouterHeaders(req headerSetter) {
	req.Set("HTTP-Referer", "https://openmemory.example")
	req.Set("X-Title", "OpenMemory")
}

// EmbedMemoryText is the C9 convenience entry point: embed a single piece
// of memory content, trimming and validating it first.
func EmbedMemoryText(ctx context.Context, e registryembed.Embedder, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errs.Validation("content", "text must not be empty")
	}
	if len(text) > maxTextLen {
		text = text[:maxTextLen]
	}
	vecs, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, errs.External(0, "no embedding data received")
	}
	return vecs[0], nil
}
