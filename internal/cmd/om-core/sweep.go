package omcore

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/chirino/memory-service/internal/config"
	"github.com/chirino/memory-service/internal/core"
	"github.com/chirino/memory-service/internal/vectorstore"
)

// SweepCommand returns the sweep sub-command: a one-shot run of the
// maintenance pass (expired access-token eviction, then a vector-index
// rebuild from the entity store) without starting the HTTP server. Intended
// for a cron job alongside a long-running serve process, or for repairing
// a vector index after a prior embedding-provider outage.
func SweepCommand() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:  "sweep",
		Usage: "Run one maintenance pass: evict expired access tokens and rebuild the vector index",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "region-path",
				Sources:     cli.EnvVars("OPENMEMORY_REGION_PATH"),
				Destination: &cfg.RegionPath,
				Value:       cfg.RegionPath,
				Usage:       "Path to the bbolt-backed stable region file",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := cfg.ApplyEnv(); err != nil {
				return err
			}
			return runSweep(ctx, cfg)
		},
	}
}

func runSweep(ctx context.Context, cfg config.Config) error {
	opts := core.Options{RegionPath: cfg.RegionPath, Log: log.Default()}
	if cfg.VectorDimension > 0 {
		opts.VectorConfig = vectorstore.DefaultConfig()
		opts.VectorConfig.Dimension = cfg.VectorDimension
	}
	c, err := core.New(opts)
	if err != nil {
		return fmt.Errorf("open stable region: %w", err)
	}
	defer c.Close()

	n, err := c.Tokens.SweepExpired(ctx)
	if err != nil {
		return fmt.Errorf("sweep expired tokens: %w", err)
	}
	log.Info("swept expired access tokens", "count", n)

	owners, err := c.Store.ListOwners(ctx)
	if err != nil {
		return fmt.Errorf("list owners: %w", err)
	}
	if err := c.RebuildVectorIndex(ctx, owners); err != nil {
		return fmt.Errorf("rebuild vector index: %w", err)
	}
	log.Info("rebuilt vector index", "owners", len(owners))
	return nil
}
