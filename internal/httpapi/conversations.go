package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chirino/memory-service/internal/core"
	"github.com/chirino/memory-service/internal/errs"
	"github.com/chirino/memory-service/internal/model"
	"github.com/chirino/memory-service/internal/validate"
)

func mountConversationRoutes(r *gin.Engine, c *core.Core, auth gin.HandlerFunc) {
	g := r.Group("/conversations", auth)
	g.GET("", func(ctx *gin.Context) { listConversations(ctx, c) })
	g.POST("", func(ctx *gin.Context) { createConversation(ctx, c) })
}

func listConversations(c *gin.Context, co *core.Core) {
	owner := ownerOf(c)
	limit, offset, err := validate.Pagination(queryInt(c, "limit", 20), queryInt(c, "offset", 0))
	if err != nil {
		writeError(c, err)
		return
	}
	conversations, total, err := co.Store.ListConversations(c.Request.Context(), owner, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations, "total_count": total})
}

type createConversationRequest struct {
	Title    string            `json:"title"`
	Content  string            `json:"content"`
	Source   string            `json:"source"`
	Metadata map[string]string `json:"metadata"`
}

func createConversation(c *gin.Context, co *core.Core) {
	if !requirePermission(c, co, model.PermissionWrite) {
		return
	}
	owner := ownerOf(c)
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errs.Validation("body", "malformed request body"))
		return
	}
	if err := validate.Conversation(validate.ConversationRequest{
		Title: req.Title, Content: req.Content, Source: req.Source, Metadata: req.Metadata,
	}); err != nil {
		writeError(c, err)
		return
	}
	conv, err := co.Store.CreateConversation(c.Request.Context(), owner, req.Title, req.Content, req.Source, req.Metadata)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}
