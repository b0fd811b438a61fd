package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chirino/memory-service/internal/core"
	"github.com/chirino/memory-service/internal/errs"
	"github.com/chirino/memory-service/internal/model"
)

func mountConfigRoutes(r *gin.Engine, c *core.Core, auth gin.HandlerFunc) {
	g := r.Group("/config", auth)
	g.GET("", func(ctx *gin.Context) { getConfig(ctx, c) })
	g.POST("", func(ctx *gin.Context) { putConfig(ctx, c) })
}

type putConfigRequest struct {
	OpenAIKey      string `json:"openai_api_key"`
	OpenRouterKey  string `json:"openrouter_api_key"`
	Provider       string `json:"api_provider"`
	EmbeddingModel string `json:"embedding_model"`
}

func putConfig(c *gin.Context, co *core.Core) {
	if !requirePermission(c, co, model.PermissionManageConfig) {
		return
	}
	owner := ownerOf(c)
	var req putConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errs.Validation("body", "malformed request body"))
		return
	}
	_, err := co.Store.PutUserConfig(c.Request.Context(), owner, model.UserConfig{
		OpenAIKey:      req.OpenAIKey,
		OpenRouterKey:  req.OpenRouterKey,
		Provider:       model.Provider(req.Provider),
		EmbeddingModel: req.EmbeddingModel,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func getConfig(c *gin.Context, co *core.Core) {
	owner := ownerOf(c)
	cfg, err := co.Store.GetUserConfig(c.Request.Context(), owner)
	if err != nil {
		if errs.Is(err, errs.KindNotFound) {
			c.JSON(http.StatusOK, gin.H{"provider": "", "embedding_model": ""})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"provider":           cfg.Provider,
		"embedding_model":    cfg.EmbeddingModel,
		"openai_api_key":     model.KeyPreview(cfg.OpenAIKey),
		"openrouter_api_key": model.KeyPreview(cfg.OpenRouterKey),
		"created_at":         cfg.CreatedAt,
		"updated_at":         cfg.UpdatedAt,
	})
}
