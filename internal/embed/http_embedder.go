package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/chirino/memory-service/internal/errs"
)

// headerSetter is the subset of http.Header mutation a provider-specific
// header hook needs.
type headerSetter interface {
	Set(key, value string)
}

type embeddingRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	EncodingFormat string `json:"encoding_format"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// httpEmbedder calls a single OpenAI-compatible /embeddings endpoint
// through a shared circuit breaker.
type httpEmbedder struct {
	apiKey  string
	url     string
	model   string
	extra   func(headerSetter)
	breaker *gobreaker.CircuitBreaker
}

func (e *httpEmbedder) ModelName() string { return e.model }

func (e *httpEmbedder) Dimension() int { return 0 }

func (e *httpEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.embedOne(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *httpEmbedder) embedOne(ctx context.Context, text string) ([]float32, error) {
	result, err := e.breaker.Execute(func() (interface{}, error) {
		return e.doRequest(ctx, text)
	})
	if err != nil {
		return nil, errs.Network(e.url, err)
	}
	return result.([]float32), nil
}

func (e *httpEmbedder) doRequest(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: e.model, Input: text, EncodingFormat: "float"})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	if e.extra != nil {
		e.extra(req.Header)
	}

	client := http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding API error (%d): %s", resp.StatusCode, string(raw))
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, err
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("embedding API error: %s", parsed.Error.Message)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("no embedding data received")
	}
	return parsed.Data[0].Embedding, nil
}
