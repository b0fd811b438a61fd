// Package omcore provides the om-core CLI's serve and sweep sub-commands.
package omcore

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"

	"github.com/chirino/memory-service/internal/authn"
	"github.com/chirino/memory-service/internal/config"
	"github.com/chirino/memory-service/internal/core"
	"github.com/chirino/memory-service/internal/httpapi"
	"github.com/chirino/memory-service/internal/vectorstore"
)

// ServeCommand returns the serve sub-command: mounts the HTTP surface and
// runs it until the process receives a shutdown signal.
func ServeCommand() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the OpenMemory HTTP server",
		CustomHelpTemplate: cli.CommandHelpTemplate + `NOTES:
   API key authentication is configured via environment variables — one per
   label:
   OPENMEMORY_API_KEYS_<LABEL>=key1,key2,...

   Example:
   OPENMEMORY_API_KEYS_AGENT_A=secret-key-1
   OPENMEMORY_API_KEYS_AGENT_B=key-one,key-two
`,
		Flags: flags(&cfg),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := cfg.ApplyEnv(); err != nil {
				return err
			}
			return runServe(config.WithContext(ctx, &cfg), cfg)
		},
	}
}

func flags(cfg *config.Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "region-path",
			Category:    "Storage:",
			Sources:     cli.EnvVars("OPENMEMORY_REGION_PATH"),
			Destination: &cfg.RegionPath,
			Value:       cfg.RegionPath,
			Usage:       "Path to the bbolt-backed stable region file",
		},
		&cli.IntFlag{
			Name:        "vector-dimension",
			Category:    "Storage:",
			Sources:     cli.EnvVars("OPENMEMORY_VECTOR_DIMENSION"),
			Destination: &cfg.VectorDimension,
			Value:       cfg.VectorDimension,
			Usage:       "Embedding vector dimension (0 uses the built-in default)",
		},
		&cli.DurationFlag{
			Name:        "maintenance-interval",
			Category:    "Storage:",
			Sources:     cli.EnvVars("OPENMEMORY_MAINTENANCE_INTERVAL"),
			Destination: &cfg.MaintenanceInterval,
			Value:       cfg.MaintenanceInterval,
			Usage:       "Interval between background sweeps of expired access tokens",
		},
		&cli.StringFlag{
			Name:        "redis-url",
			Category:    "Cache:",
			Sources:     cli.EnvVars("OPENMEMORY_REDIS_URL"),
			Destination: &cfg.RedisURL,
			Usage:       "Redis URL for the suggestion cache; left unset, suggestions are served uncached",
		},
		&cli.IntFlag{
			Name:        "port",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("OPENMEMORY_PORT"),
			Destination: &cfg.Listener.Port,
			Value:       cfg.Listener.Port,
			Usage:       "HTTP server port",
		},
		&cli.DurationFlag{
			Name:        "read-header-timeout",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("OPENMEMORY_READ_HEADER_TIMEOUT"),
			Destination: &cfg.Listener.ReadHeaderTimeout,
			Value:       cfg.Listener.ReadHeaderTimeout,
			Usage:       "HTTP read header timeout",
		},
		&cli.BoolFlag{
			Name:        "cors",
			Category:    "Network Listener:",
			Sources:     cli.EnvVars("OPENMEMORY_CORS_ENABLED"),
			Destination: &cfg.CORSEnabled,
			Value:       cfg.CORSEnabled,
			Usage:       "Accepted but not consulted; permissive CORS headers are always sent",
		},
		&cli.StringFlag{
			Name:        "oidc-issuer",
			Category:    "Authorization:",
			Sources:     cli.EnvVars("OPENMEMORY_OIDC_ISSUER"),
			Destination: &cfg.OIDCIssuer,
			Usage:       "OIDC issuer URL (enables OIDC auth)",
		},
		&cli.StringFlag{
			Name:        "oidc-discovery-url",
			Category:    "Authorization:",
			Sources:     cli.EnvVars("OPENMEMORY_OIDC_DISCOVERY_URL"),
			Destination: &cfg.OIDCDiscoveryURL,
			Usage:       "OIDC discovery URL, when the issuer isn't directly reachable for discovery",
		},
		&cli.StringFlag{
			Name:        "default-provider",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("OPENMEMORY_DEFAULT_PROVIDER"),
			Destination: &cfg.DefaultProvider,
			Value:       cfg.DefaultProvider,
			Usage:       "Accepted but not consulted; a user without their own config gets no embeddings",
		},
		&cli.StringFlag{
			Name:        "default-embedding-model",
			Category:    "Embedding:",
			Sources:     cli.EnvVars("OPENMEMORY_DEFAULT_EMBEDDING_MODEL"),
			Destination: &cfg.DefaultEmbeddingModel,
			Value:       cfg.DefaultEmbeddingModel,
			Usage:       "Accepted but not consulted; a user config with no model uses the embedder's built-in default",
		},
		&cli.StringFlag{
			Name:        "metrics-labels",
			Category:    "Monitoring:",
			Sources:     cli.EnvVars("OPENMEMORY_METRICS_LABELS"),
			Destination: &cfg.MetricsLabels,
			Value:       "service=openmemory",
			Usage:       "Comma-separated key=value pairs; accepted but not consulted, metrics carry no constant labels",
		},
		&cli.IntFlag{
			Name:        "max-memories-per-user",
			Category:    "Limits:",
			Sources:     cli.EnvVars("OPENMEMORY_MAX_MEMORIES_PER_USER"),
			Destination: &cfg.MaxMemoriesPerUser,
			Value:       cfg.MaxMemoriesPerUser,
			Usage:       "Accepted but not consulted; the per-owner quota is fixed at 10,000 memories",
		},
	}
}

func runServe(ctx context.Context, cfg config.Config) error {
	log.Info("starting openmemory",
		"port", cfg.Listener.Port,
		"region", cfg.RegionPath,
		"redis", cfg.RedisURL != "",
	)

	opts := core.Options{
		RegionPath: cfg.RegionPath,
		RedisURL:   cfg.RedisURL,
		Log:        log.Default(),
	}
	if cfg.VectorDimension > 0 {
		opts.VectorConfig = vectorstore.DefaultConfig()
		opts.VectorConfig.Dimension = cfg.VectorDimension
	}
	c, err := core.New(opts)
	if err != nil {
		return fmt.Errorf("open stable region: %w", err)
	}
	defer c.Close()

	chain, err := buildAuthChain(ctx, cfg)
	if err != nil {
		return fmt.Errorf("configure authentication: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.MaxBodySize > 0 {
		router.Use(func(gc *gin.Context) {
			gc.Request.Body = http.MaxBytesReader(gc.Writer, gc.Request.Body, cfg.MaxBodySize)
			gc.Next()
		})
	}
	httpapi.Mount(router, c, chain)

	maintCtx, cancelMaint := context.WithCancel(ctx)
	defer cancelMaint()
	go c.RunMaintenance(maintCtx, cfg.MaintenanceInterval)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Listener.Port),
		Handler:           router,
		ReadHeaderTimeout: cfg.Listener.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	log.Info("server listening", "addr", srv.Addr)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	log.Info("shutting down...")
	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Duration(cfg.DrainTimeout)*time.Second)
	defer drainCancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		log.Error("shutdown error", "err", err)
	}
	log.Info("server stopped")
	return nil
}

// buildAuthChain wires OIDC verification ahead of the static API-key map,
// as authn.Chain tries each implementation in order and falls through on
// ErrUnrecognized.
func buildAuthChain(ctx context.Context, cfg config.Config) (authn.Chain, error) {
	var chain authn.Chain
	if cfg.OIDCIssuer != "" {
		oidcAuthN, err := authn.NewOIDCAuthN(ctx, cfg.OIDCIssuer, cfg.OIDCDiscoveryURL)
		if err != nil {
			return nil, err
		}
		chain = append(chain, oidcAuthN)
	}
	chain = append(chain, authn.NewAPIKeyAuthN(cfg.APIKeys))
	return chain, nil
}
