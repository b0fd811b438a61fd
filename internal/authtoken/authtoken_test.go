package authtoken

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chirino/memory-service/internal/errs"
	"github.com/chirino/memory-service/internal/model"
	"github.com/chirino/memory-service/internal/stableregion"
	"github.com/chirino/memory-service/internal/store"
)

func newTestAuthority(t *testing.T) *Authority {
	t.Helper()
	region, err := stableregion.Open(filepath.Join(t.TempDir(), "region.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = region.Close() })
	return New(store.New(region))
}

// TestVerify_ExpiredTokenReturnsExpiredAndIsDelisted reproduces the S3
// scenario: a token issued already expired fails Verify with an Expired
// auth error and is absent from a subsequent List.
func TestVerify_ExpiredTokenReturnsExpiredAndIsDelisted(t *testing.T) {
	a := newTestAuthority(t)
	ctx := t.Context()
	owner := model.PrincipalFromIdentity("expiry-owner")

	tok, err := a.Issue(ctx, owner, "short-lived", []model.Permission{model.PermissionRead}, -1)
	require.NoError(t, err)

	_, err = a.Verify(ctx, tok.Token)
	require.Error(t, err)
	authErr, ok := err.(*errs.Error)
	require.True(t, ok)
	require.Equal(t, errs.KindAuth, authErr.Kind)
	require.Equal(t, errs.AuthExpired, authErr.AuthReason)

	tokens, err := a.List(ctx, owner)
	require.NoError(t, err)
	require.Empty(t, tokens)
}

// TestVerify_PermissionAgnostic proves the RequireAuth regression fix: a
// token issued with only write permission still authenticates via Verify,
// and HasPermission then correctly distinguishes write from read.
func TestVerify_PermissionAgnostic(t *testing.T) {
	a := newTestAuthority(t)
	ctx := t.Context()
	owner := model.PrincipalFromIdentity("write-only-owner")

	tok, err := a.Issue(ctx, owner, "write-only", []model.Permission{model.PermissionWrite}, 30)
	require.NoError(t, err)

	resolved, err := a.Verify(ctx, tok.Token)
	require.NoError(t, err)
	require.Equal(t, owner, resolved)

	canWrite, err := a.HasPermission(ctx, tok.Token, model.PermissionWrite)
	require.NoError(t, err)
	require.True(t, canWrite)

	canRead, err := a.HasPermission(ctx, tok.Token, model.PermissionRead)
	require.NoError(t, err)
	require.False(t, canRead)
}

// TestAuthorize_RejectsMissingPermission keeps the single-call Authorize
// entry point working for non-HTTP callers.
func TestAuthorize_RejectsMissingPermission(t *testing.T) {
	a := newTestAuthority(t)
	ctx := t.Context()
	owner := model.PrincipalFromIdentity("single-call-owner")

	tok, err := a.Issue(ctx, owner, "read-only", []model.Permission{model.PermissionRead}, 30)
	require.NoError(t, err)

	_, err = a.Authorize(ctx, tok.Token, model.PermissionRead)
	require.NoError(t, err)

	_, err = a.Authorize(ctx, tok.Token, model.PermissionDelete)
	require.Error(t, err)
}

// TestVerify_TouchesLastUsedAt confirms LastUsedAt is set after a successful
// Verify, matching C8's verify(token) -> Principal contract.
func TestVerify_TouchesLastUsedAt(t *testing.T) {
	a := newTestAuthority(t)
	ctx := t.Context()
	owner := model.PrincipalFromIdentity("touch-owner")

	tok, err := a.Issue(ctx, owner, "touch", []model.Permission{model.PermissionRead}, 30)
	require.NoError(t, err)
	require.Nil(t, tok.LastUsedAt)

	_, err = a.Verify(ctx, tok.Token)
	require.NoError(t, err)

	stored, err := a.store.GetAccessToken(ctx, tok.Token)
	require.NoError(t, err)
	require.NotNil(t, stored.LastUsedAt)
}
