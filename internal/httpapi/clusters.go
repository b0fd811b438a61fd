package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chirino/memory-service/internal/cluster"
	"github.com/chirino/memory-service/internal/core"
	"github.com/chirino/memory-service/internal/errs"
	"github.com/chirino/memory-service/internal/obs"
)

func mountClusterRoutes(r *gin.Engine, c *core.Core, auth gin.HandlerFunc) {
	g := r.Group("/clusters", auth)
	g.POST("", func(ctx *gin.Context) { createClusters(ctx, c) })
	g.GET("/categories", func(ctx *gin.Context) { listCategories(ctx, c) })
}

type createClustersRequest struct {
	MemoryIDs  []string `json:"memory_ids"`
	Method     string   `json:"method"`
	K          int      `json:"k"`
	TimePeriod string   `json:"time_period"`
}

func createClusters(c *gin.Context, co *core.Core) {
	owner := ownerOf(c)
	var req createClustersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errs.Validation("body", "malformed request body"))
		return
	}

	var (
		result *cluster.Result
		err    error
	)
	start := time.Now()
	switch req.Method {
	case "kmeans":
		k := req.K
		if k <= 0 {
			k = 3
		}
		result, err = co.Cluster.KMeans(c.Request.Context(), owner, req.MemoryIDs, k)
	case "content":
		result, err = co.Cluster.ByContent(c.Request.Context(), owner, req.MemoryIDs)
	case "tags":
		result, err = co.Cluster.ByTag(c.Request.Context(), owner, req.MemoryIDs)
	case "time":
		period := cluster.TimePeriod(req.TimePeriod)
		if period == "" {
			period = cluster.PeriodDay
		}
		result, err = co.Cluster.ByTime(c.Request.Context(), owner, req.MemoryIDs, period)
	default:
		writeError(c, errs.Validation("method", "method must be one of kmeans, content, tags, time"))
		return
	}
	obs.ObserveCluster(req.Method, time.Since(start))
	if err != nil {
		writeError(c, err)
		return
	}

	for _, cl := range result.Clusters {
		if err := co.Cluster.Store(c.Request.Context(), cl); err != nil {
			writeError(c, err)
			return
		}
	}

	c.JSON(http.StatusCreated, gin.H{
		"clusters":             result.Clusters,
		"unclustered_memories": result.UnclusteredMemoryIDs,
		"clustering_score":     result.Score,
		"method_used":          result.Method,
	})
}

func listCategories(c *gin.Context, co *core.Core) {
	_ = co
	c.JSON(http.StatusOK, gin.H{"categories": cluster.Categories()})
}
