// Package authtoken implements C8: issuing, verifying, listing, and
// revoking access tokens layered on top of the entity store's AccessToken
// persistence (C2). Verification is write-on-read: every successful Verify
// or Authorize call updates LastUsedAt, and any lookup that finds the token
// expired evicts it, mirroring the original canister's
// is_token_expired check performed at the point of use rather than on a
// timer.
package authtoken

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"strings"
	"time"

	"github.com/chirino/memory-service/internal/errs"
	"github.com/chirino/memory-service/internal/model"
	"github.com/chirino/memory-service/internal/store"
)

const tokenRandomBytes = 24

// Authority issues and verifies access tokens for one principal at a time.
type Authority struct {
	store *store.Store
}

func New(st *store.Store) *Authority {
	return &Authority{store: st}
}

// Issue creates a new token owned by owner, granting perms, expiring after
// expiresInDays days.
func (a *Authority) Issue(ctx context.Context, owner model.Principal, label string, perms []model.Permission, expiresInDays int) (*model.AccessToken, error) {
	raw, err := randomToken()
	if err != nil {
		return nil, errs.Internal("generate_token", err)
	}
	now := time.Now().UTC()
	permSet := make(map[model.Permission]bool, len(perms))
	for _, p := range perms {
		permSet[p] = true
	}
	t := &model.AccessToken{
		Token:       model.AccessTokenPrefix + raw,
		Owner:       owner,
		Label:       label,
		Permissions: permSet,
		ExpiresAt:   now.AddDate(0, 0, expiresInDays),
		CreatedAt:   now,
	}
	if err := a.store.PutAccessToken(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// lookup resolves token to its AccessToken, failing on a malformed token,
// an unknown token, or one that has expired (evicting it lazily in that
// case). It does not check any specific permission and does not touch
// LastUsedAt — callers do that once they know the call succeeds.
func (a *Authority) lookup(ctx context.Context, token string) (*model.AccessToken, error) {
	if !strings.HasPrefix(token, model.AccessTokenPrefix) {
		return nil, errs.InvalidAuth("malformed token")
	}
	t, err := a.store.GetAccessToken(ctx, token)
	if err != nil {
		return nil, errs.InvalidAuth("unknown token")
	}
	if !t.ExpiresAt.After(time.Now().UTC()) {
		_ = a.store.RevokeAccessToken(ctx, t.Owner, token)
		return nil, errs.Expired()
	}
	return t, nil
}

// Verify resolves token to its owning Principal, independent of any
// specific permission, touching LastUsedAt on success. This is the
// permission-agnostic check RequireAuth runs for every request bearing an
// access token; the specific permission a route needs is checked
// separately via HasPermission.
func (a *Authority) Verify(ctx context.Context, token string) (model.Principal, error) {
	t, err := a.lookup(ctx, token)
	if err != nil {
		return model.Principal{}, err
	}
	if err := a.store.TouchAccessToken(ctx, token); err != nil {
		return model.Principal{}, err
	}
	return t.Owner, nil
}

// Authorize verifies token grants perm, touching LastUsedAt on success and
// lazily evicting the token if it has expired. Kept as a single-call
// verify-and-check entry point for callers (the CLI, tests) that don't go
// through the RequireAuth/HasPermission split.
func (a *Authority) Authorize(ctx context.Context, token string, perm model.Permission) (model.Principal, error) {
	t, err := a.lookup(ctx, token)
	if err != nil {
		return model.Principal{}, err
	}
	if !t.HasPermission(perm) {
		return model.Principal{}, errs.InvalidAuth("token lacks required permission")
	}
	if err := a.store.TouchAccessToken(ctx, token); err != nil {
		return model.Principal{}, err
	}
	return t.Owner, nil
}

// HasPermission reports whether token — already verified by Verify earlier
// in the same request — carries perm. It does not re-touch LastUsedAt. It
// looks the token up again, so a token that has expired since Verify fails
// here and is evicted.
func (a *Authority) HasPermission(ctx context.Context, token string, perm model.Permission) (bool, error) {
	t, err := a.lookup(ctx, token)
	if err != nil {
		return false, err
	}
	return t.HasPermission(perm), nil
}

// Revoke deletes a token, checking owner matches before deleting.
func (a *Authority) Revoke(ctx context.Context, owner model.Principal, token string) error {
	return a.store.RevokeAccessToken(ctx, owner, token)
}

// List returns every live token owned by owner.
func (a *Authority) List(ctx context.Context, owner model.Principal) ([]*model.AccessToken, error) {
	return a.store.ListAccessTokens(ctx, owner)
}

// SweepExpired deletes every token past its expiry, returning the count
// removed. Intended for periodic invocation (cmd/om-core sweep).
func (a *Authority) SweepExpired(ctx context.Context) (int, error) {
	return a.store.SweepExpiredTokens(ctx)
}

func randomToken() (string, error) {
	buf := make([]byte, tokenRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf)), nil
}
