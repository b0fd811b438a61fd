package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chirino/memory-service/internal/core"
	"github.com/chirino/memory-service/internal/suggest"
)

func mountSuggestionRoutes(r *gin.Engine, c *core.Core, auth gin.HandlerFunc) {
	g := r.Group("/suggestions", auth)
	g.GET("", func(ctx *gin.Context) { suggestions(ctx, c) })
	g.GET("/trending", func(ctx *gin.Context) { trending(ctx, c) })
}

func suggestions(c *gin.Context, co *core.Core) {
	owner := ownerOf(c)
	partial := c.Query("q")
	limit := queryInt(c, "limit", 10)
	var results []suggest.Suggestion
	if co.SuggestCache != nil {
		results = co.SuggestCache.Suggest(c.Request.Context(), owner, partial, limit)
	} else {
		results = co.Suggest.Suggest(owner, partial, limit)
	}
	c.JSON(http.StatusOK, gin.H{
		"suggestions":   results,
		"context":       partial,
		"user_provided": partial != "",
	})
}

func trending(c *gin.Context, co *core.Core) {
	limit := queryInt(c, "limit", 10)
	c.JSON(http.StatusOK, gin.H{"suggestions": co.Suggest.Trending(limit)})
}
