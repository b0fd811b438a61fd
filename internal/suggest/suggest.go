// Package suggest implements C6: real-time search suggestions. State here
// is a bounded in-memory cache, not persisted through the stable region —
// mirroring the original canister, which kept search history in a plain
// HashMap rather than stable memory. Losing it across a restart only
// degrades suggestion quality; it never affects correctness of the entity
// store.
package suggest

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chirino/memory-service/internal/model"
)

const (
	maxHistoryPerUser  = 100
	maxPopularQueries  = 100
	popularQueryWindow = 50
	minKeywordLength   = 3
	minKeywordFreq     = 2
)

// Type distinguishes the source of a single suggestion.
type Type string

const (
	TypeRecentSearch  Type = "recent_search"
	TypePopularQuery  Type = "popular_query"
	TypeTagSuggestion Type = "tag_suggestion"
	TypeKeyword       Type = "content_keyword"
	TypeAutoComplete  Type = "auto_complete"
)

// Suggestion is a single scored completion for a partial query.
type Suggestion struct {
	Text     string
	Type     Type
	Score    float32
	Metadata map[string]string
}

type searchQuery struct {
	query          string
	at             time.Time
	resultCount    int
	clickedResults []string
}

type popularQuery struct {
	query          string
	searchCount    int
	avgResultCount float32
	lastSearched   time.Time
}

// Engine tracks per-principal search history, a global popular-query list,
// and inverted tag/keyword indices, and scores five suggestion sources.
type Engine struct {
	mu       sync.Mutex
	history  map[model.Principal][]searchQuery
	popular  []popularQuery
	tags     map[string]bool
	keywords map[string]int
	tagCount func(tag string) int
}

// New constructs an Engine. tagCount, if non-nil, is used to weight tag
// suggestions by how many memories currently carry that tag; a nil tagCount
// disables that weighting (tag popularity contributes 0).
func New(tagCount func(tag string) int) *Engine {
	return &Engine{
		history:  make(map[model.Principal][]searchQuery),
		tags:     make(map[string]bool),
		keywords: make(map[string]int),
		tagCount: tagCount,
	}
}

// RecordSearch logs a query against owner's history, updates the popular
// query list, and indexes its words as keyword candidates.
func (e *Engine) RecordSearch(owner model.Principal, query string, resultCount int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	q := searchQuery{query: query, at: time.Now(), resultCount: resultCount}
	hist := append(e.history[owner], q)
	if len(hist) > maxHistoryPerUser {
		hist = hist[len(hist)-maxHistoryPerUser:]
	}
	e.history[owner] = hist

	e.updatePopular(query, resultCount)
	e.indexKeywords(query, minKeywordLength)
}

// RecordClick attaches memoryID to the most recent matching query in
// owner's history, used to compute that query's future success score.
func (e *Engine) RecordClick(owner model.Principal, query, memoryID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	hist := e.history[owner]
	for i := len(hist) - 1; i >= 0; i-- {
		if hist[i].query == query {
			hist[i].clickedResults = append(hist[i].clickedResults, memoryID)
			return
		}
	}
}

// IndexMemory folds a newly written memory's tags and content words into
// the suggestion indices.
func (e *Engine) IndexMemory(m *model.Memory) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, tag := range m.Tags {
		e.tags[tag] = true
	}
	e.indexKeywords(m.Content, 4)
}

// Suggest returns up to limit suggestions for partial, combining five
// sources: recent searches (if owner is non-anonymous), popular queries,
// tag suggestions, content keywords, and auto-complete patterns.
func (e *Engine) Suggest(owner model.Principal, partial string, limit int) []Suggestion {
	partialLower := strings.ToLower(partial)

	e.mu.Lock()
	defer e.mu.Unlock()

	var out []Suggestion
	if !owner.IsAnonymous() {
		out = append(out, e.recentSuggestions(owner, partialLower, 3)...)
	}
	out = append(out, e.popularSuggestions(partialLower, 3)...)
	out = append(out, e.tagSuggestions(partialLower, 3)...)
	out = append(out, e.keywordSuggestions(partialLower, 3)...)
	out = append(out, autocompleteSuggestions(partialLower, 3)...)

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Trending returns the popular queries with the highest recent-activity
// rate among those searched within the last day.
func (e *Engine) Trending(limit int) []Suggestion {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	dayAgo := now.Add(-24 * time.Hour)
	candidates := make([]popularQuery, 0, len(e.popular))
	for _, p := range e.popular {
		if p.lastSearched.After(dayAgo) {
			candidates = append(candidates, p)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return trendScore(candidates[i], now) > trendScore(candidates[j], now)
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]Suggestion, 0, len(candidates))
	for _, p := range candidates {
		out = append(out, Suggestion{
			Text:  p.query,
			Type:  TypePopularQuery,
			Score: trendScore(p, now),
			Metadata: map[string]string{
				"search_count": strconv.Itoa(p.searchCount),
			},
		})
	}
	return out
}

// CleanupOldData drops search history and popular queries older than 30
// days. Intended to be called periodically alongside token sweeping.
func (e *Engine) CleanupOldData() {
	e.mu.Lock()
	defer e.mu.Unlock()
	cutoff := time.Now().Add(-30 * 24 * time.Hour)
	for owner, hist := range e.history {
		kept := hist[:0]
		for _, q := range hist {
			if q.at.After(cutoff) {
				kept = append(kept, q)
			}
		}
		if len(kept) == 0 {
			delete(e.history, owner)
		} else {
			e.history[owner] = kept
		}
	}
	kept := e.popular[:0]
	for _, p := range e.popular {
		if p.lastSearched.After(cutoff) {
			kept = append(kept, p)
		}
	}
	e.popular = kept
}

func trendScore(p popularQuery, now time.Time) float32 {
	ageSeconds := now.Sub(p.lastSearched).Seconds()
	if ageSeconds < 1 {
		ageSeconds = 1
	}
	return float32(p.searchCount) / float32(ageSeconds)
}

func (e *Engine) updatePopular(query string, resultCount int) {
	for i := range e.popular {
		if e.popular[i].query == query {
			p := &e.popular[i]
			p.searchCount++
			p.avgResultCount = (p.avgResultCount*float32(p.searchCount-1) + float32(resultCount)) / float32(p.searchCount)
			p.lastSearched = time.Now()
			e.sortAndTrimPopular()
			return
		}
	}
	e.popular = append(e.popular, popularQuery{
		query:          query,
		searchCount:    1,
		avgResultCount: float32(resultCount),
		lastSearched:   time.Now(),
	})
	e.sortAndTrimPopular()
}

func (e *Engine) sortAndTrimPopular() {
	sort.Slice(e.popular, func(i, j int) bool { return e.popular[i].searchCount > e.popular[j].searchCount })
	if len(e.popular) > maxPopularQueries {
		e.popular = e.popular[:maxPopularQueries]
	}
}

func (e *Engine) indexKeywords(text string, minLen int) {
	for _, word := range strings.Fields(text) {
		if len(word) <= minLen {
			continue
		}
		e.keywords[strings.ToLower(word)]++
	}
}

func (e *Engine) recentSuggestions(owner model.Principal, partial string, limit int) []Suggestion {
	hist := e.history[owner]
	var out []Suggestion
	start := len(hist) - 1
	end := start - 20
	if end < -1 {
		end = -1
	}
	for i := start; i > end; i-- {
		q := hist[i]
		if !strings.Contains(strings.ToLower(q.query), partial) || len(q.query) <= len(partial) {
			continue
		}
		score := recencyScore(q.at) + successScore(q.resultCount, q.clickedResults)
		out = append(out, Suggestion{
			Text:  q.query,
			Type:  TypeRecentSearch,
			Score: score,
			Metadata: map[string]string{
				"result_count": strconv.Itoa(q.resultCount),
			},
		})
		if len(out) >= limit {
			break
		}
	}
	return out
}

func (e *Engine) popularSuggestions(partial string, limit int) []Suggestion {
	var out []Suggestion
	n := len(e.popular)
	if n > popularQueryWindow {
		n = popularQueryWindow
	}
	for _, p := range e.popular[:n] {
		if !strings.Contains(strings.ToLower(p.query), partial) || len(p.query) <= len(partial) {
			continue
		}
		score := float32(math.Log10(float64(p.searchCount))) + p.avgResultCount/10.0
		out = append(out, Suggestion{
			Text:  p.query,
			Type:  TypePopularQuery,
			Score: score,
			Metadata: map[string]string{
				"search_count": strconv.Itoa(p.searchCount),
			},
		})
		if len(out) >= limit {
			break
		}
	}
	return out
}

func (e *Engine) tagSuggestions(partial string, limit int) []Suggestion {
	var out []Suggestion
	for tag := range e.tags {
		if !strings.Contains(strings.ToLower(tag), partial) || len(tag) <= len(partial) {
			continue
		}
		score := float32(2.0) + e.tagPopularity(tag)
		out = append(out, Suggestion{
			Text:     "tag:" + tag,
			Type:     TypeTagSuggestion,
			Score:    score,
			Metadata: map[string]string{"type": "tag"},
		})
		if len(out) >= limit {
			break
		}
	}
	return out
}

func (e *Engine) tagPopularity(tag string) float32 {
	if e.tagCount == nil {
		return 0
	}
	count := e.tagCount(tag)
	score := float32(math.Log10(float64(count)))
	if score > 2.0 {
		return 2.0
	}
	if score < 0 {
		return 0
	}
	return score
}

func (e *Engine) keywordSuggestions(partial string, limit int) []Suggestion {
	var out []Suggestion
	for keyword, freq := range e.keywords {
		if freq <= minKeywordFreq {
			continue
		}
		if !strings.Contains(strings.ToLower(keyword), partial) || len(keyword) <= len(partial) {
			continue
		}
		score := float32(math.Log10(float64(freq))) + 1.0
		out = append(out, Suggestion{
			Text:     keyword,
			Type:     TypeKeyword,
			Score:    score,
			Metadata: map[string]string{"frequency": strconv.Itoa(freq)},
		})
		if len(out) >= limit {
			break
		}
	}
	return out
}

var autocompletePatterns = []struct {
	prefix, completion, category string
}{
	{"how to", "how to use", "tutorial"},
	{"what is", "what is the purpose of", "definition"},
	{"when", "when should I", "timing"},
	{"why", "why does", "explanation"},
	{"where", "where can I find", "location"},
}

func autocompleteSuggestions(partial string, limit int) []Suggestion {
	if len(partial) < 2 {
		return nil
	}
	var out []Suggestion
	for _, p := range autocompletePatterns {
		if !strings.HasPrefix(p.prefix, partial) || len(p.prefix) <= len(partial) {
			continue
		}
		out = append(out, Suggestion{
			Text:     p.completion,
			Type:     TypeAutoComplete,
			Score:    1.5,
			Metadata: map[string]string{"category": p.category},
		})
		if len(out) >= limit {
			break
		}
	}
	return out
}

func recencyScore(at time.Time) float32 {
	ageHours := time.Since(at).Hours()
	if ageHours < 1 {
		return 5.0
	}
	divisor := math.Log10(ageHours)
	if divisor < 1 {
		divisor = 1
	}
	return float32(5.0 / divisor)
}

func successScore(resultCount int, clicked []string) float32 {
	var clickRate float32
	if resultCount > 0 {
		clickRate = float32(len(clicked)) / float32(resultCount)
	}
	logTerm := float32(math.Log10(float64(resultCount)))
	if logTerm > 2.0 {
		logTerm = 2.0
	}
	if logTerm < 0 {
		logTerm = 0
	}
	return clickRate*2.0 + logTerm
}
