// Package core wires together every component (C1-C9) into a single Core
// value, the one object the HTTP surface (internal/httpapi) and the CLI
// (cmd/om-core) hold. A single Core is hand-assembled at startup by New;
// there is exactly one construction site in the whole program, which is
// why this system reaches for no dependency-injection codegen.
package core

import (
	"context"
	"time"

	charmlog "github.com/charmbracelet/log"

	"github.com/chirino/memory-service/internal/authtoken"
	"github.com/chirino/memory-service/internal/cluster"
	"github.com/chirino/memory-service/internal/embed"
	"github.com/chirino/memory-service/internal/model"
	"github.com/chirino/memory-service/internal/search"
	"github.com/chirino/memory-service/internal/stableregion"
	"github.com/chirino/memory-service/internal/store"
	"github.com/chirino/memory-service/internal/suggest"
	"github.com/chirino/memory-service/internal/suggestcache"
	"github.com/chirino/memory-service/internal/vectorstore"
	"github.com/chirino/memory-service/internal/writepipeline"
)

// Core owns every component and is the sole surface the HTTP layer and CLI
// call into.
type Core struct {
	Region   *stableregion.Region
	Store    *store.Store
	Vectors  *vectorstore.Store
	Search   *search.Engine
	Suggest  *suggest.Engine
	Cluster  *cluster.Engine
	Tokens   *authtoken.Authority
	Embed    *embed.Factory
	Pipeline *writepipeline.Pipeline
	// SuggestCache is nil unless Options.RedisURL was set; callers should
	// fall back to Suggest.Suggest directly when it's nil.
	SuggestCache *suggestcache.Cache
	log          *charmlog.Logger
}

// Options configures New.
type Options struct {
	// RegionPath is the filesystem path of the bbolt-backed stable region.
	RegionPath string
	// VectorConfig overrides vectorstore.DefaultConfig() when non-zero.
	VectorConfig vectorstore.Config
	// RedisURL, if set, puts a read-through cache in front of the
	// suggestion engine. Left empty, suggestions are served uncached.
	RedisURL string
	Log      *charmlog.Logger
}

// New opens the stable region at opts.RegionPath and assembles every
// component against it.
func New(opts Options) (*Core, error) {
	log := opts.Log
	if log == nil {
		log = charmlog.Default()
	}

	region, err := stableregion.Open(opts.RegionPath)
	if err != nil {
		return nil, err
	}

	st := store.New(region)

	vecCfg := opts.VectorConfig
	if vecCfg.Dimension == 0 {
		vecCfg = vectorstore.DefaultConfig()
	}
	vectors, err := vectorstore.New(region, vecCfg)
	if err != nil {
		return nil, err
	}

	searchEngine := search.New(st, vectors, vecCfg.IndexThreshold)
	clusterEngine := cluster.New(st, region)
	tokens := authtoken.New(st)
	embedFactory := embed.NewFactory()

	// st.TagCount is backed by an index built once from a full scan and
	// kept current incrementally on every create/update/delete, so this
	// closure stays O(1) per suggestion call despite counting across every
	// owner's memories.
	suggestEngine := suggest.New(st.TagCount)

	pipeline := writepipeline.New(st, vectors, embedFactory, suggestEngine, log)

	var cache *suggestcache.Cache
	if opts.RedisURL != "" {
		cache, err = suggestcache.New(context.Background(), suggestEngine, opts.RedisURL)
		if err != nil {
			log.Warn("suggestion cache unavailable, serving uncached", "error", err)
			cache = nil
		}
	}

	return &Core{
		Region:       region,
		Store:        st,
		Vectors:      vectors,
		Search:       searchEngine,
		Suggest:      suggestEngine,
		Cluster:      clusterEngine,
		Tokens:       tokens,
		Embed:        embedFactory,
		Pipeline:     pipeline,
		SuggestCache: cache,
		log:          log,
	}, nil
}

// Close releases the stable region's file handle and, if present, the
// suggestion cache's Redis connection.
func (c *Core) Close() error {
	if c.SuggestCache != nil {
		_ = c.SuggestCache.Close()
	}
	return c.Region.Close()
}

// RunMaintenance runs the periodic sweep (expired access tokens, stale
// suggestion state) every interval until ctx is cancelled.
func (c *Core) RunMaintenance(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweepOnce(ctx)
		}
	}
}

func (c *Core) sweepOnce(ctx context.Context) {
	n, err := c.Tokens.SweepExpired(ctx)
	if err != nil {
		c.log.Error("token sweep failed", "error", err)
		return
	}
	if n > 0 {
		c.log.Info("swept expired access tokens", "count", n)
	}
	c.Suggest.CleanupOldData()
}

// RebuildVectorIndex reloads the vector store from the entity store,
// fixing any lag left by a Storage error on a prior downstream index
// update: a vector-store write failure never rolls back the entity store,
// only the next rebuild corrects it.
func (c *Core) RebuildVectorIndex(ctx context.Context, owners []model.Principal) error {
	for _, owner := range owners {
		memories, _, err := c.Store.ListMemories(ctx, owner, 10_000, 0)
		if err != nil {
			return err
		}
		for _, m := range memories {
			if !m.HasEmbedding() {
				continue
			}
			if err := c.Vectors.Upsert(m.ID, m.Embedding); err != nil {
				return err
			}
		}
	}
	return nil
}
