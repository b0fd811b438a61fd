package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chirino/memory-service/internal/core"
	"github.com/chirino/memory-service/internal/errs"
	"github.com/chirino/memory-service/internal/model"
	"github.com/chirino/memory-service/internal/validate"
)

func mountTokenRoutes(r *gin.Engine, c *core.Core, auth gin.HandlerFunc) {
	g := r.Group("/auth/tokens", auth)
	g.GET("", func(ctx *gin.Context) { listTokens(ctx, c) })
	g.POST("", func(ctx *gin.Context) { issueToken(ctx, c) })
	g.DELETE("/:token", func(ctx *gin.Context) { revokeToken(ctx, c) })
}

type issueTokenRequest struct {
	Description   string   `json:"description"`
	Permissions   []string `json:"permissions"`
	ExpiresInDays int      `json:"expires_in_days"`
}

func issueToken(c *gin.Context, co *core.Core) {
	owner := ownerOf(c)
	var req issueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errs.Validation("body", "malformed request body"))
		return
	}
	expiresInDays := req.ExpiresInDays
	if expiresInDays == 0 {
		expiresInDays = 30
	}
	if err := validate.CreateToken(validate.CreateTokenRequest{Label: req.Description, ExpiresInDays: expiresInDays}); err != nil {
		writeError(c, err)
		return
	}
	perms := parsePermissions(req.Permissions)
	t, err := co.Tokens.Issue(c.Request.Context(), owner, req.Description, perms, expiresInDays)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"token":       t.Token,
		"expires_at":  t.ExpiresAt,
		"permissions": t.PermissionList(),
	})
}

// tokenSummary is the list-endpoint shape: everything about an
// AccessToken except its raw bearer value, which is shown only once at
// creation time.
type tokenSummary struct {
	Label       string             `json:"label,omitempty"`
	Permissions []model.Permission `json:"permissions"`
	ExpiresAt   interface{}        `json:"expires_at"`
	CreatedAt   interface{}        `json:"created_at"`
	LastUsedAt  interface{}        `json:"last_used_at,omitempty"`
}

func listTokens(c *gin.Context, co *core.Core) {
	owner := ownerOf(c)
	tokens, err := co.Tokens.List(c.Request.Context(), owner)
	if err != nil {
		writeError(c, err)
		return
	}
	summaries := make([]tokenSummary, 0, len(tokens))
	for _, t := range tokens {
		s := tokenSummary{
			Label:       t.Label,
			Permissions: t.PermissionList(),
			ExpiresAt:   t.ExpiresAt,
			CreatedAt:   t.CreatedAt,
		}
		if t.LastUsedAt != nil {
			s.LastUsedAt = *t.LastUsedAt
		}
		summaries = append(summaries, s)
	}
	c.JSON(http.StatusOK, gin.H{"tokens": summaries})
}

func revokeToken(c *gin.Context, co *core.Core) {
	owner := ownerOf(c)
	if err := co.Tokens.Revoke(c.Request.Context(), owner, c.Param("token")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func parsePermissions(raw []string) []model.Permission {
	if len(raw) == 0 {
		return []model.Permission{model.PermissionRead}
	}
	out := make([]model.Permission, 0, len(raw))
	for _, p := range raw {
		out = append(out, model.Permission(p))
	}
	return out
}
