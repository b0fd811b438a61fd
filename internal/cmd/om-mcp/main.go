// om-mcp exposes OpenMemory as an MCP stdio server: add_memory,
// search_memories and suggest, each a thin adapter over a core.Core.
//
// Environment variables:
//
//	OPENMEMORY_REGION_PATH — bbolt-backed stable region file (default: ./data/region.db)
//	OPENMEMORY_REDIS_URL    — optional Redis URL for a suggestion read-through cache
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/chirino/memory-service/internal/core"
	"github.com/chirino/memory-service/internal/embed"
	"github.com/chirino/memory-service/internal/model"
	"github.com/chirino/memory-service/internal/search"
	"github.com/chirino/memory-service/internal/writepipeline"
)

func main() {
	regionPath := os.Getenv("OPENMEMORY_REGION_PATH")
	if regionPath == "" {
		regionPath = "./data/region.db"
	}

	c, err := core.New(core.Options{
		RegionPath: regionPath,
		RedisURL:   os.Getenv("OPENMEMORY_REDIS_URL"),
		Log:        charmlog.Default(),
	})
	if err != nil {
		charmlog.Fatalf("om-mcp: core init: %v", err)
	}
	defer c.Close()

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "om-mcp",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_memory",
		Description: "Store a new memory for a user. Returns the memory ID.",
	}, addMemoryHandler(c))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_memories",
		Description: "Search a user's memories by semantic similarity, falling back to keyword overlap when no embedding provider is configured.",
	}, searchMemoriesHandler(c))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "suggest",
		Description: "Autocomplete a partial query against a user's recent searches, tags and indexed keywords.",
	}, suggestHandler(c))

	if err := server.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		charmlog.Fatalf("om-mcp: %v", err)
	}
}

// --- Input types ---

type addMemoryInput struct {
	UserID   string            `json:"user_id"             jsonschema:"Identity string the memory is scoped to"`
	Content  string            `json:"content"              jsonschema:"Memory text"`
	Tags     []string          `json:"tags,omitempty"       jsonschema:"Optional tags"`
	Metadata map[string]string `json:"metadata,omitempty"   jsonschema:"Optional free-form metadata"`
}

type searchMemoriesInput struct {
	UserID string   `json:"user_id"          jsonschema:"Identity string the search is scoped to"`
	Query  string   `json:"query"            jsonschema:"Search query"`
	Limit  int      `json:"limit,omitempty"  jsonschema:"Max results to return (default 20)"`
	Tags   []string `json:"tags,omitempty"   jsonschema:"Filter to memories with a tag containing any of these tags (case-insensitive)"`
}

type suggestInput struct {
	UserID  string `json:"user_id"          jsonschema:"Identity string the suggestions are scoped to"`
	Partial string `json:"partial,omitempty" jsonschema:"Partial query text typed so far"`
	Limit   int    `json:"limit,omitempty"  jsonschema:"Max suggestions to return (default 10)"`
}

// --- Handlers ---

func addMemoryHandler(c *core.Core) func(context.Context, *mcp.CallToolRequest, addMemoryInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input addMemoryInput) (*mcp.CallToolResult, any, error) {
		owner := model.PrincipalFromIdentity(input.UserID)
		m, err := c.Pipeline.AddMemory(ctx, owner, writepipeline.AddMemoryRequest{
			Content:   input.Content,
			Tags:      input.Tags,
			Metadata:  input.Metadata,
			EmbedMode: writepipeline.EmbedLenient,
		})
		if err != nil {
			return textResult(fmt.Sprintf("error: %v", err)), nil, nil
		}
		if c.SuggestCache != nil {
			_ = c.SuggestCache.Invalidate(ctx, owner)
		}
		return textResult(fmt.Sprintf(`{"memory_id": %q, "status": "stored"}`, m.ID)), nil, nil
	}
}

func searchMemoriesHandler(c *core.Core) func(context.Context, *mcp.CallToolRequest, searchMemoriesInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input searchMemoriesInput) (*mcp.CallToolResult, any, error) {
		owner := model.PrincipalFromIdentity(input.UserID)
		limit := input.Limit
		if limit <= 0 {
			limit = 20
		}
		if limit > 100 {
			limit = 100
		}
		filters := search.Filters{Tags: input.Tags, MinScore: c.Search.Threshold()}

		results, err := func() ([]search.Result, error) {
			cfg, cfgErr := c.Store.GetUserConfig(ctx, owner)
			if cfgErr == nil {
				if embedder, embedErr := c.Embed.ForUser(cfg); embedErr == nil {
					if vec, vecErr := embed.EmbedMemoryText(ctx, embedder, input.Query); vecErr == nil {
						return c.Search.Query(ctx, owner, vec, input.Query, limit, filters)
					}
				}
			}
			return c.Search.Keyword(ctx, owner, input.Query, limit, filters)
		}()
		if err != nil {
			return textResult(fmt.Sprintf("error: %v", err)), nil, nil
		}

		out := make([]map[string]any, len(results))
		for i, r := range results {
			out[i] = map[string]any{
				"id":      r.Memory.ID,
				"content": r.Memory.Content,
				"tags":    r.Memory.Tags,
				"score":   r.Score,
			}
		}
		return textResult(jsonString(out)), nil, nil
	}
}

func suggestHandler(c *core.Core) func(context.Context, *mcp.CallToolRequest, suggestInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input suggestInput) (*mcp.CallToolResult, any, error) {
		owner := model.PrincipalFromIdentity(input.UserID)
		limit := input.Limit
		if limit <= 0 {
			limit = 10
		}
		var results []any
		if c.SuggestCache != nil {
			for _, s := range c.SuggestCache.Suggest(ctx, owner, input.Partial, limit) {
				results = append(results, map[string]any{"text": s.Text, "score": s.Score, "type": s.Type})
			}
		} else {
			for _, s := range c.Suggest.Suggest(owner, input.Partial, limit) {
				results = append(results, map[string]any{"text": s.Text, "score": s.Score, "type": s.Type})
			}
		}
		return textResult(jsonString(results)), nil, nil
	}
}

// --- Helpers ---

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func jsonString(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": "marshal: %v"}`, err)
	}
	return string(data)
}
