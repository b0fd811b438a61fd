package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/chirino/memory-service/internal/authn"
	"github.com/chirino/memory-service/internal/core"
	"github.com/chirino/memory-service/internal/obs"
	registryroute "github.com/chirino/memory-service/internal/registry/route"
)

// Mount registers every route on r, gating all but the CORS preflight and
// /metrics behind RequireAuth. System routes (health/stats/metrics) are
// registered as RouteTypeManagement plugins and everything else as
// RouteTypeMain; Mount loads both kinds onto the same engine r.
func Mount(r *gin.Engine, c *core.Core, chain authn.AuthN) {
	obs.Init()
	r.Use(CORS())
	r.Use(obs.Middleware())
	auth := RequireAuth(c, chain)

	registryroute.Register(registryroute.Plugin{
		Order: 0,
		Type:  registryroute.RouteTypeManagement,
		Loader: func(r *gin.Engine) error {
			mountSystemRoutes(r, c, auth)
			return nil
		},
	})
	registryroute.Register(registryroute.Plugin{
		Order: 10,
		Type:  registryroute.RouteTypeMain,
		Loader: func(r *gin.Engine) error {
			mountMemoryRoutes(r, c, auth)
			mountConversationRoutes(r, c, auth)
			mountClusterRoutes(r, c, auth)
			mountSuggestionRoutes(r, c, auth)
			mountTokenRoutes(r, c, auth)
			mountConfigRoutes(r, c, auth)
			return nil
		},
	})

	for _, loader := range registryroute.ManagementRouteLoaders() {
		_ = loader(r)
	}
	for _, loader := range registryroute.MainRouteLoaders() {
		_ = loader(r)
	}
}
