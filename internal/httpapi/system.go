package httpapi

import (
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chirino/memory-service/internal/core"
)

var startedAt = time.Now()

const version = "0.1.0"

func mountSystemRoutes(r *gin.Engine, c *core.Core, auth gin.HandlerFunc) {
	r.GET("/health", auth, func(ctx *gin.Context) { health(ctx, c) })
	r.GET("/stats", auth, func(ctx *gin.Context) { stats(ctx, c) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func health(c *gin.Context, co *core.Core) {
	owner := ownerOf(c)
	count, err := co.Store.CountMemories(c.Request.Context(), owner)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"timestamp":    time.Now().UTC(),
		"version":      version,
		"memory_count": count,
	})
}

func stats(c *gin.Context, co *core.Core) {
	total, users, avgSize, err := co.Store.GlobalStats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total_memories":  total,
		"total_users":     users,
		"avg_memory_size": humanize.Bytes(uint64(avgSize)),
		"uptime_seconds":  int(time.Since(startedAt).Seconds()),
	})
}
