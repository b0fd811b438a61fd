package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnv overlays environment variables onto c using the
// applyStringEnv/applyDurationEnv/applyBoolEnv helpers, scoped to this
// system's own OPENMEMORY_* variables.
func (c *Config) ApplyEnv() error {
	if c == nil {
		return nil
	}

	var err error
	applyStringEnv("OPENMEMORY_MODE", &c.Mode)
	applyStringEnv("OPENMEMORY_REGION_PATH", &c.RegionPath)
	if err = applyIntEnv("OPENMEMORY_VECTOR_DIMENSION", &c.VectorDimension); err != nil {
		return err
	}
	if err = applyDurationEnv("OPENMEMORY_MAINTENANCE_INTERVAL", &c.MaintenanceInterval); err != nil {
		return err
	}
	applyStringEnv("OPENMEMORY_REDIS_URL", &c.RedisURL)
	applyStringEnv("OPENMEMORY_OIDC_ISSUER", &c.OIDCIssuer)
	applyStringEnv("OPENMEMORY_OIDC_DISCOVERY_URL", &c.OIDCDiscoveryURL)
	applyStringEnv("OPENMEMORY_DEFAULT_PROVIDER", &c.DefaultProvider)
	applyStringEnv("OPENMEMORY_DEFAULT_EMBEDDING_MODEL", &c.DefaultEmbeddingModel)
	applyStringEnv("OPENMEMORY_METRICS_LABELS", &c.MetricsLabels)
	if err = applyIntEnv("OPENMEMORY_PORT", &c.Listener.Port); err != nil {
		return err
	}
	if err = applyBoolEnv("OPENMEMORY_CORS_ENABLED", &c.CORSEnabled); err != nil {
		return err
	}
	if raw := strings.TrimSpace(os.Getenv("OPENMEMORY_MAX_BODY_SIZE")); raw != "" {
		size, parseErr := parseMemorySize(raw)
		if parseErr != nil {
			return fmt.Errorf("invalid OPENMEMORY_MAX_BODY_SIZE: %w", parseErr)
		}
		c.MaxBodySize = size
	}
	if err = applyIntEnv("OPENMEMORY_MAX_MEMORIES_PER_USER", &c.MaxMemoriesPerUser); err != nil {
		return err
	}

	c.APIKeys = loadAPIKeysFromEnv()

	return nil
}

// loadAPIKeysFromEnv scans OPENMEMORY_API_KEYS_<LABEL>=<key>[,<key>...] and
// returns a map from key value to label, supporting comma-separated
// multi-key values per label.
func loadAPIKeysFromEnv() map[string]string {
	const prefix = "OPENMEMORY_API_KEYS_"
	result := map[string]string{}
	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, prefix) {
			continue
		}
		eqIdx := strings.IndexByte(env, '=')
		if eqIdx < 0 {
			continue
		}
		label := strings.ToLower(strings.TrimSpace(env[len(prefix):eqIdx]))
		if label == "" {
			continue
		}
		for _, key := range strings.Split(env[eqIdx+1:], ",") {
			keyValue := strings.TrimSpace(key)
			if keyValue == "" {
				continue
			}
			result[keyValue] = label
		}
	}
	return result
}

func applyStringEnv(key string, dest *string) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	*dest = raw
}

func applyIntEnv(key string, dest *int) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dest = v
	return nil
}

func applyBoolEnv(key string, dest *bool) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dest = v
	return nil
}

func applyDurationEnv(key string, dest *time.Duration) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dest = v
	return nil
}

func parseMemorySize(raw string) (int64, error) {
	v := strings.TrimSpace(strings.ToUpper(raw))
	if v == "" {
		return 0, fmt.Errorf("empty size")
	}
	multiplier := int64(1)
	switch {
	case strings.HasSuffix(v, "KB"), strings.HasSuffix(v, "K"):
		multiplier = 1024
		v = strings.TrimSuffix(strings.TrimSuffix(v, "KB"), "K")
	case strings.HasSuffix(v, "MB"), strings.HasSuffix(v, "M"):
		multiplier = 1024 * 1024
		v = strings.TrimSuffix(strings.TrimSuffix(v, "MB"), "M")
	case strings.HasSuffix(v, "GB"), strings.HasSuffix(v, "G"):
		multiplier = 1024 * 1024 * 1024
		v = strings.TrimSuffix(strings.TrimSuffix(v, "GB"), "G")
	case strings.HasSuffix(v, "B"):
		v = strings.TrimSuffix(v, "B")
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid size %q", raw)
	}
	return n * multiplier, nil
}
