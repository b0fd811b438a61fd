package search

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chirino/memory-service/internal/model"
	"github.com/chirino/memory-service/internal/stableregion"
	"github.com/chirino/memory-service/internal/store"
	"github.com/chirino/memory-service/internal/vectorstore"
)

func newTestEngine(t *testing.T, threshold float32) (*Engine, *store.Store, *vectorstore.Store) {
	t.Helper()
	region, err := stableregion.Open(filepath.Join(t.TempDir(), "region.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = region.Close() })

	st := store.New(region)
	vec, err := vectorstore.New(region, vectorstore.Config{
		Dimension:         2,
		DefaultSimilarity: vectorstore.SimilarityCosine,
		IndexThreshold:    threshold,
	})
	require.NoError(t, err)
	return New(st, vec, threshold), st, vec
}

func owner(t *testing.T) model.Principal {
	t.Helper()
	return model.PrincipalFromIdentity("search-test-owner")
}

// TestQuery_AppliesSimilarityThreshold reproduces the S1 scenario: a query
// against two memories where cos(M1,q)=0.82 and cos(M2,q)=0.41 against a
// threshold of 0.7 returns only M1.
func TestQuery_AppliesSimilarityThreshold(t *testing.T) {
	engine, st, vec := newTestEngine(t, 0.7)
	ow := owner(t)
	ctx := t.Context()

	query := []float32{1, 0}
	// Unit vectors whose first component is the query-cosine the scenario
	// calls for: with query=[1,0], cos(v, query) == v[0].
	m1Vec := []float32{0.82, f32Sqrt(1 - 0.82*0.82)}
	m2Vec := []float32{0.41, f32Sqrt(1 - 0.41*0.41)}

	m1, err := st.CreateMemory(ctx, ow, "memory one", nil, nil)
	require.NoError(t, err)
	require.NoError(t, st.SetEmbedding(ctx, ow, m1.ID, m1Vec))
	require.NoError(t, vec.Upsert(m1.ID, m1Vec))

	m2, err := st.CreateMemory(ctx, ow, "memory two", nil, nil)
	require.NoError(t, err)
	require.NoError(t, st.SetEmbedding(ctx, ow, m2.ID, m2Vec))
	require.NoError(t, vec.Upsert(m2.ID, m2Vec))

	results, err := engine.Query(ctx, ow, query, "", 10, Filters{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, m1.ID, results[0].Memory.ID)
}

// TestQuery_OrdersByScoreDescending checks the quantified law that among
// results returned by Query, a higher raw similarity always sorts first.
func TestQuery_OrdersByScoreDescending(t *testing.T) {
	engine, st, vec := newTestEngine(t, 0)
	ow := owner(t)
	ctx := t.Context()

	query := []float32{1, 0}
	high := []float32{0.95, f32Sqrt(1 - 0.95*0.95)}
	low := []float32{0.3, f32Sqrt(1 - 0.3*0.3)}

	mLow, err := st.CreateMemory(ctx, ow, "low", nil, nil)
	require.NoError(t, err)
	require.NoError(t, vec.Upsert(mLow.ID, low))

	mHigh, err := st.CreateMemory(ctx, ow, "high", nil, nil)
	require.NoError(t, err)
	require.NoError(t, vec.Upsert(mHigh.ID, high))

	results, err := engine.Query(ctx, ow, query, "", 10, Filters{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, mHigh.ID, results[0].Memory.ID)
	require.Equal(t, mLow.ID, results[1].Memory.ID)
	require.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

// TestQuery_ScopesToOwner confirms one owner's search never surfaces
// another owner's memories, matching the cross-tenant isolation invariant.
func TestQuery_ScopesToOwner(t *testing.T) {
	engine, st, vec := newTestEngine(t, 0)
	ctx := t.Context()
	alice := model.PrincipalFromIdentity("alice")
	bob := model.PrincipalFromIdentity("bob")

	query := []float32{1, 0}
	bobVec := []float32{0.99, f32Sqrt(1 - 0.99*0.99)}

	bobMem, err := st.CreateMemory(ctx, bob, "bob's memory", nil, nil)
	require.NoError(t, err)
	require.NoError(t, vec.Upsert(bobMem.ID, bobVec))

	results, err := engine.Query(ctx, alice, query, "", 10, Filters{})
	require.NoError(t, err)
	require.Empty(t, results)
}

func f32Sqrt(x float32) float32 {
	return float32(math.Sqrt(float64(x)))
}
