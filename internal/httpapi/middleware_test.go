package httpapi

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/chirino/memory-service/internal/authn"
	"github.com/chirino/memory-service/internal/core"
	"github.com/chirino/memory-service/internal/model"
)

func newTestRouter(t *testing.T) (*gin.Engine, *core.Core) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	c, err := core.New(core.Options{RegionPath: filepath.Join(t.TempDir(), "region.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	r := gin.New()
	auth := RequireAuth(c, authn.NewAPIKeyAuthN(nil))
	mountMemoryRoutes(r, c, auth)
	return r, c
}

// TestRequireAuth_WriteOnlyTokenCanWriteButNotDelete is the regression test
// for the RequireAuth fix: a token issued with only write permission must
// still authenticate (no hardcoded read check in the middleware) and is
// then gated per-route by its actual permission set.
func TestRequireAuth_WriteOnlyTokenCanWriteButNotDelete(t *testing.T) {
	r, c := newTestRouter(t)
	ctx := t.Context()
	owner := model.PrincipalFromIdentity("middleware-test-owner")

	tok, err := c.Tokens.Issue(ctx, owner, "write-only", []model.Permission{model.PermissionWrite}, 30)
	require.NoError(t, err)

	body := strings.NewReader(`{"content":"hello world","tags":[]}`)
	req := httptest.NewRequest(http.MethodPost, "/memories", body)
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	delReq := httptest.NewRequest(http.MethodDelete, "/memories/does-not-exist", nil)
	delReq.Header.Set("Authorization", "Bearer "+tok.Token)
	delW := httptest.NewRecorder()
	r.ServeHTTP(delW, delReq)
	require.Equal(t, http.StatusUnauthorized, delW.Code)
}

// TestRequireAuth_MissingCredentialsRejected confirms a request with no
// bearer token and no API key never reaches a route handler.
func TestRequireAuth_MissingCredentialsRejected(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/memories", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
