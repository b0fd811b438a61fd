// Package authn resolves the bearer credential on an incoming request to
// the owning Principal, for the one call path C8's access tokens don't
// cover: callers authenticating with an externally-issued identity (an
// OIDC ID token, or a statically configured API key) rather than an
// om_token_-prefixed access token. The two live side by side behind the
// AuthN interface, OIDC verification layered over a static API-key map.
package authn

import (
	"context"
	"errors"

	"github.com/chirino/memory-service/internal/model"
)

// AuthN resolves a bearer credential to the Principal that owns it.
// Implementations never need to know the origin of a request; Resolve is
// the entire capability.
type AuthN interface {
	Resolve(ctx context.Context, bearerToken string) (model.Principal, error)
}

// ErrUnrecognized is returned when a credential isn't recognized by this
// implementation; callers chaining multiple AuthN implementations should
// try the next one on this error rather than fail the request outright.
var ErrUnrecognized = errors.New("authn: credential not recognized")

// Chain tries each AuthN in order, returning the first successful
// resolution. It fails with the last implementation's error if every one
// returns ErrUnrecognized, or immediately on any other error.
type Chain []AuthN

func (c Chain) Resolve(ctx context.Context, bearerToken string) (model.Principal, error) {
	var lastErr error = ErrUnrecognized
	for _, a := range c {
		p, err := a.Resolve(ctx, bearerToken)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrUnrecognized) {
			return model.Principal{}, err
		}
		lastErr = err
	}
	return model.Principal{}, lastErr
}
