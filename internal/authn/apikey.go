package authn

import (
	"context"
	"strings"
	"sync"

	"github.com/chirino/memory-service/internal/model"
)

// APIKeyAuthN resolves a static, configured API key straight to the
// Principal derived from its configured label, rather than to an
// intermediate client-ID string, since this system has no separate
// client/role model.
type APIKeyAuthN struct {
	mu   sync.RWMutex
	keys map[string]model.Principal
}

// NewAPIKeyAuthN builds an APIKeyAuthN from a map of API key value to
// owner label (e.g. loaded from config as
// OPENMEMORY_API_KEYS_<LABEL>=<key>); each label is hashed once into
// its Principal via model.PrincipalFromIdentity.
func NewAPIKeyAuthN(keyToLabel map[string]string) *APIKeyAuthN {
	keys := make(map[string]model.Principal, len(keyToLabel))
	for key, label := range keyToLabel {
		keys[key] = model.PrincipalFromIdentity(label)
	}
	return &APIKeyAuthN{keys: keys}
}

// Set adds or replaces a single key at runtime (used by admin tooling
// without requiring a process restart).
func (a *APIKeyAuthN) Set(key, label string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys[key] = model.PrincipalFromIdentity(label)
}

func (a *APIKeyAuthN) Resolve(_ context.Context, bearerToken string) (model.Principal, error) {
	key := strings.TrimSpace(bearerToken)
	a.mu.RLock()
	defer a.mu.RUnlock()
	p, ok := a.keys[key]
	if !ok {
		return model.Principal{}, ErrUnrecognized
	}
	return p, nil
}
