package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chirino/memory-service/internal/core"
	"github.com/chirino/memory-service/internal/embed"
	"github.com/chirino/memory-service/internal/errs"
	"github.com/chirino/memory-service/internal/model"
	"github.com/chirino/memory-service/internal/obs"
	"github.com/chirino/memory-service/internal/search"
	"github.com/chirino/memory-service/internal/validate"
	"github.com/chirino/memory-service/internal/writepipeline"
)

func mountMemoryRoutes(r *gin.Engine, c *core.Core, auth gin.HandlerFunc) {
	g := r.Group("/memories", auth)
	g.GET("", func(ctx *gin.Context) { listMemories(ctx, c) })
	g.GET("/:id", func(ctx *gin.Context) { getMemory(ctx, c) })
	g.POST("", func(ctx *gin.Context) { createMemory(ctx, c) })
	g.POST("/search", func(ctx *gin.Context) { searchMemories(ctx, c) })
	g.DELETE("/:id", func(ctx *gin.Context) { deleteMemory(ctx, c) })
}

func listMemories(c *gin.Context, co *core.Core) {
	owner := ownerOf(c)
	limit, offset, err := validate.Pagination(queryInt(c, "limit", 20), queryInt(c, "offset", 0))
	if err != nil {
		writeError(c, err)
		return
	}
	memories, total, err := co.Store.ListMemories(c.Request.Context(), owner, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"memories": memories, "total_count": total})
}

func getMemory(c *gin.Context, co *core.Core) {
	owner := ownerOf(c)
	m, err := co.Store.GetMemory(c.Request.Context(), owner, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

type createMemoryRequest struct {
	Content  string            `json:"content"`
	Tags     []string          `json:"tags"`
	Metadata map[string]string `json:"metadata"`
}

func createMemory(c *gin.Context, co *core.Core) {
	if !requirePermission(c, co, model.PermissionWrite) {
		return
	}
	owner := ownerOf(c)
	var req createMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errs.Validation("body", "malformed request body"))
		return
	}
	start := time.Now()
	m, err := co.Pipeline.AddMemory(c.Request.Context(), owner, writepipeline.AddMemoryRequest{
		Content:   req.Content,
		Tags:      req.Tags,
		Metadata:  req.Metadata,
		EmbedMode: writepipeline.EmbedLenient,
	})
	obs.ObserveWrite("add_memory", time.Since(start))
	if err != nil {
		writeError(c, err)
		return
	}
	if co.SuggestCache != nil {
		_ = co.SuggestCache.Invalidate(c.Request.Context(), owner)
	}
	c.JSON(http.StatusCreated, gin.H{"id": m.ID, "created_at": m.CreatedAt})
}

func deleteMemory(c *gin.Context, co *core.Core) {
	if !requirePermission(c, co, model.PermissionDelete) {
		return
	}
	owner := ownerOf(c)
	start := time.Now()
	err := co.Pipeline.DeleteMemory(c.Request.Context(), owner, c.Param("id"))
	obs.ObserveWrite("delete_memory", time.Since(start))
	if err != nil {
		writeError(c, err)
		return
	}
	if co.SuggestCache != nil {
		_ = co.SuggestCache.Invalidate(c.Request.Context(), owner)
	}
	c.Status(http.StatusOK)
}

type searchMemoriesRequest struct {
	Query    string   `json:"query"`
	Limit    int      `json:"limit"`
	Tags     []string `json:"tags"`
	MinScore float32  `json:"min_score"`
}

func searchMemories(c *gin.Context, co *core.Core) {
	owner := ownerOf(c)
	var req searchMemoriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errs.Validation("body", "malformed request body"))
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	minScore := req.MinScore
	if minScore <= 0 {
		minScore = co.Search.Threshold()
	}
	filters := search.Filters{Tags: req.Tags, MinScore: minScore}

	start := time.Now()
	results, err := runSearch(c, co, owner, req.Query, limit, filters)
	if err != nil {
		writeError(c, err)
		return
	}
	elapsed := time.Since(start)

	c.JSON(http.StatusOK, gin.H{
		"results":       results,
		"total_count":   len(results),
		"query_time_ms": elapsed.Milliseconds(),
	})
}

// runSearch embeds query through the caller's configured provider and runs
// a vector search when a provider is configured, falling back to the
// token-overlap keyword search otherwise: an unavailable or failing
// embedder degrades search rather than failing the request outright.
func runSearch(c *gin.Context, co *core.Core, owner model.Principal, query string, limit int, filters search.Filters) ([]search.Result, error) {
	cfg, err := co.Store.GetUserConfig(c.Request.Context(), owner)
	if err == nil {
		if embedder, embedErr := co.Embed.ForUser(cfg); embedErr == nil {
			if vec, vecErr := embed.EmbedMemoryText(c.Request.Context(), embedder, query); vecErr == nil {
				start := time.Now()
				results, err := co.Search.Query(c.Request.Context(), owner, vec, query, limit, filters)
				obs.ObserveSearch("vector", time.Since(start))
				return results, err
			}
		}
	}
	start := time.Now()
	results, err := co.Search.Keyword(c.Request.Context(), owner, query, limit, filters)
	obs.ObserveSearch("keyword", time.Since(start))
	return results, err
}

func queryInt(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, ok := parsePositiveInt(v)
	if !ok {
		return def
	}
	return n
}

func parsePositiveInt(s string) (int, bool) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}
