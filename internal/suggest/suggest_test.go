package suggest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chirino/memory-service/internal/model"
	"github.com/chirino/memory-service/internal/stableregion"
	"github.com/chirino/memory-service/internal/store"
)

// TestSuggest_PopularQueryOrdering reproduces the S5 scenario: "typescript"
// searched twice with 3 results each outranks "typing fast" searched once
// with 1 result, for the shared prefix "typ".
func TestSuggest_PopularQueryOrdering(t *testing.T) {
	e := New(nil)
	owner := model.PrincipalFromIdentity("suggest-test-owner")

	e.RecordSearch(owner, "typescript", 3)
	e.RecordSearch(owner, "typescript", 3)
	e.RecordSearch(owner, "typing fast", 1)

	results := e.Suggest(model.AnonymousPrincipal, "typ", 5)

	var typescriptIdx, typingFastIdx = -1, -1
	for i, s := range results {
		switch s.Text {
		case "typescript":
			typescriptIdx = i
		case "typing fast":
			typingFastIdx = i
		}
	}
	require.GreaterOrEqual(t, typescriptIdx, 0, "typescript missing from suggestions")
	require.GreaterOrEqual(t, typingFastIdx, 0, "typing fast missing from suggestions")
	require.Less(t, typescriptIdx, typingFastIdx)
}

// TestSuggest_TagScoreVariesWithCorpusPopularity proves the tagCount closure
// is no longer a disguised no-op: a tag carried by more memories scores
// higher than one carried by fewer, wired through a real store.Store.
func TestSuggest_TagScoreVariesWithCorpusPopularity(t *testing.T) {
	region, err := stableregion.Open(filepath.Join(t.TempDir(), "region.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = region.Close() })

	st := store.New(region)
	ctx := t.Context()
	owner := model.PrincipalFromIdentity("tag-popularity-owner")

	for i := 0; i < 9; i++ {
		_, err := st.CreateMemory(ctx, owner, "popular tag memory", nil, []string{"golang"})
		require.NoError(t, err)
	}
	_, err = st.CreateMemory(ctx, owner, "rare tag memory", nil, []string{"gopher"})
	require.NoError(t, err)

	e := New(st.TagCount)
	e.IndexMemory(&model.Memory{Tags: []string{"golang"}})
	e.IndexMemory(&model.Memory{Tags: []string{"gopher"}})

	golangScore := scoreFor(e.Suggest(model.AnonymousPrincipal, "go", 10), "tag:golang")
	gopherScore := scoreFor(e.Suggest(model.AnonymousPrincipal, "go", 10), "tag:gopher")
	require.Greater(t, golangScore, gopherScore)
}

func scoreFor(suggestions []Suggestion, text string) float32 {
	for _, s := range suggestions {
		if s.Text == text {
			return s.Score
		}
	}
	return -1
}
