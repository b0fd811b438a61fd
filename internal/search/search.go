// Package search implements C5: the semantic search pipeline. It combines
// embedding similarity from the vector store (C4) with a relevance rescore
// (metadata/tag hits, recency) and falls back to token-overlap keyword
// search when the caller has no query embedding (e.g. the embedder is
// unavailable).
package search

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/chirino/memory-service/internal/model"
	"github.com/chirino/memory-service/internal/store"
	"github.com/chirino/memory-service/internal/vectorstore"
)

const recencyWindow = 30 * 24 * time.Hour

// Filters narrows a search to a subset of a principal's memories.
type Filters struct {
	Tags      []string
	Metadata  map[string]string
	StartTime *time.Time
	EndTime   *time.Time
	MinScore  float32
}

// Result is one scored memory returned from Query or Keyword.
type Result struct {
	Memory *model.Memory
	Score  float32
}

// Engine wires the entity store and vector store together to serve search
// requests scoped to one principal's memories.
type Engine struct {
	store     *store.Store
	vector    *vectorstore.Store
	threshold float32
}

// New wires st and vec together. threshold is the minimum cosine score (or
// whichever similarity vec defaults to) a raw vector match must clear
// before it is even considered, and doubles as the default Filters.MinScore
// callers should apply to their own requests via Threshold.
func New(st *store.Store, vec *vectorstore.Store, threshold float32) *Engine {
	return &Engine{store: st, vector: vec, threshold: threshold}
}

// Threshold returns the configured similarity cutoff, for callers that
// need to default an unset Filters.MinScore before calling Query or
// Keyword.
func (e *Engine) Threshold() float32 {
	return e.threshold
}

// Query performs embedding similarity search for owner, rescoring each hit
// and applying filters, returning the top limit results.
func (e *Engine) Query(ctx context.Context, owner model.Principal, queryEmbedding []float32, queryText string, limit int, filters Filters) ([]Result, error) {
	ids, err := e.ownerMemoryIDs(ctx, owner)
	if err != nil {
		return nil, err
	}
	matches, err := e.vector.Search(queryEmbedding, vectorstore.SimilarityCosine, e.threshold, limit*2, ids)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(matches))
	for _, match := range matches {
		m, err := e.store.GetMemory(ctx, owner, match.ID)
		if err != nil {
			continue
		}
		if !passesFilters(m, filters) {
			continue
		}
		score := relevanceScore(m, queryText, match.Score)
		if score < filters.MinScore {
			continue
		}
		results = append(results, Result{Memory: m, Score: score})
		if len(results) >= limit {
			break
		}
	}
	sortResults(results)
	return results, nil
}

// Keyword performs token-overlap search over owner's memories, used when no
// query embedding is available (embedder down, or a plain-text fallback
// request). It scores by fraction of query tokens present in the memory's
// content, tags, and metadata values.
func (e *Engine) Keyword(ctx context.Context, owner model.Principal, query string, limit int, filters Filters) ([]Result, error) {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	memories, _, err := e.store.ListMemories(ctx, owner, 1_000_000, 0)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, limit)
	for _, m := range memories {
		if !passesFilters(m, filters) {
			continue
		}
		score := tokenOverlapScore(tokens, m)
		if score <= 0 || score < filters.MinScore {
			continue
		}
		score = relevanceScore(m, query, score)
		results = append(results, Result{Memory: m, Score: score})
	}
	sortResults(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (e *Engine) ownerMemoryIDs(ctx context.Context, owner model.Principal) (map[string]bool, error) {
	memories, _, err := e.store.ListMemories(ctx, owner, 1_000_000, 0)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(memories))
	for _, m := range memories {
		ids[m.ID] = true
	}
	return ids, nil
}

func sortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Memory.ID < results[j].Memory.ID
	})
}

func passesFilters(m *model.Memory, f Filters) bool {
	if len(f.Tags) > 0 && !hasAnyTag(m, f.Tags) {
		return false
	}
	for k, v := range f.Metadata {
		mv, ok := m.Metadata[k]
		if !ok || !strings.Contains(strings.ToLower(mv), strings.ToLower(v)) {
			return false
		}
	}
	if f.StartTime != nil && m.CreatedAt.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && m.CreatedAt.After(*f.EndTime) {
		return false
	}
	return true
}

func hasAnyTag(m *model.Memory, required []string) bool {
	for _, req := range required {
		reqLower := strings.ToLower(req)
		for _, tag := range m.Tags {
			if strings.Contains(strings.ToLower(tag), reqLower) {
				return true
			}
		}
	}
	return false
}

// relevanceScore boosts a base similarity score by metadata/tag hits against
// query, then applies a recency multiplier, matching the rescore formula
// used by the system this was distilled from.
func relevanceScore(m *model.Memory, query string, base float32) float32 {
	score := base
	queryLower := strings.ToLower(query)
	if queryLower != "" {
		for k, v := range m.Metadata {
			if strings.Contains(strings.ToLower(k), queryLower) || strings.Contains(strings.ToLower(v), queryLower) {
				score += 0.1
			}
		}
		for _, tag := range m.Tags {
			if strings.Contains(strings.ToLower(tag), queryLower) {
				score += 0.2
			}
		}
	}
	score *= recencyFactor(m.CreatedAt)
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// recencyFactor gives up to a 10% boost to memories created within the last
// 30 days, decaying linearly to no boost at the window edge.
func recencyFactor(createdAt time.Time) float32 {
	age := time.Since(createdAt)
	if age < 0 {
		age = 0
	}
	if age > recencyWindow {
		return 1.0
	}
	return 1.0 + 0.1*(1.0-float32(age)/float32(recencyWindow))
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	return fields
}

func tokenOverlapScore(queryTokens []string, m *model.Memory) float32 {
	haystack := tokenSet(tokenize(m.Content))
	for _, tag := range m.Tags {
		for _, t := range tokenize(tag) {
			haystack[t] = true
		}
	}
	for _, v := range m.Metadata {
		for _, t := range tokenize(v) {
			haystack[t] = true
		}
	}
	hits := 0
	for _, qt := range queryTokens {
		if haystack[qt] {
			hits++
		}
	}
	if hits == 0 {
		return 0
	}
	return float32(hits) / float32(len(queryTokens))
}

func tokenSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}
