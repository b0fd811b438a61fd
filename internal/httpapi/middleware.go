// Package httpapi mounts the external HTTP interface on a gin.Engine: every
// route is a thin adapter translating JSON requests into calls against a
// core.Core, registered through a route-plugin registry that tags routes as
// management or main; Mount serves both kinds from one gin.Engine.
package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/chirino/memory-service/internal/authn"
	"github.com/chirino/memory-service/internal/core"
	"github.com/chirino/memory-service/internal/errs"
	"github.com/chirino/memory-service/internal/model"
)

const (
	ctxKeyOwner = "owner"
	ctxKeyToken = "accessToken"
)

// CORS applies a wildcard origin, the listed methods/headers, a one-day
// preflight cache, and a bare 204 on OPTIONS.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, X-Requested-With")
		c.Header("Access-Control-Max-Age", "86400")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RequireAuth resolves the caller's credential — a bearer om_token_ access
// token, or an Authorization/X-Api-Key value handed to authnChain (OIDC ID
// token or static API key) — into the owning Principal. An access token
// additionally carries its raw value forward so route handlers needing an
// elevated permission (write/delete/manage_config) can check it with
// requirePermission.
func RequireAuth(c *core.Core, chain authn.AuthN) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		credential := bearerValue(ctx)
		if credential == "" {
			credential = strings.TrimSpace(ctx.GetHeader("X-Api-Key"))
		}
		if credential == "" {
			writeError(ctx, errs.InvalidAuth("missing credentials"))
			ctx.Abort()
			return
		}

		if strings.HasPrefix(credential, model.AccessTokenPrefix) {
			owner, err := c.Tokens.Verify(ctx.Request.Context(), credential)
			if err != nil {
				writeError(ctx, err)
				ctx.Abort()
				return
			}
			ctx.Set(ctxKeyOwner, owner)
			ctx.Set(ctxKeyToken, credential)
			ctx.Next()
			return
		}

		owner, err := chain.Resolve(ctx.Request.Context(), credential)
		if err != nil {
			writeError(ctx, errs.InvalidAuth("invalid credentials"))
			ctx.Abort()
			return
		}
		ctx.Set(ctxKeyOwner, owner)
		ctx.Next()
	}
}

func bearerValue(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		return ""
	}
	trimmed := strings.TrimPrefix(header, "Bearer ")
	if trimmed == header {
		return ""
	}
	return strings.TrimSpace(trimmed)
}

func ownerOf(c *gin.Context) model.Principal {
	v, _ := c.Get(ctxKeyOwner)
	p, _ := v.(model.Principal)
	return p
}

// requirePermission checks perm against the caller's access token, if the
// request authenticated with one — RequireAuth already verified the token
// itself (expiry, LastUsedAt), so this only checks the permission bit.
// Non-token credentials (OIDC, API key) are first-party and imply every
// permission.
func requirePermission(c *gin.Context, core *core.Core, perm model.Permission) bool {
	v, ok := c.Get(ctxKeyToken)
	if !ok {
		return true
	}
	token := v.(string)
	granted, err := core.Tokens.HasPermission(c.Request.Context(), token, perm)
	if err != nil {
		writeError(c, err)
		return false
	}
	if !granted {
		writeError(c, errs.InvalidAuth("token lacks required permission"))
		return false
	}
	return true
}
