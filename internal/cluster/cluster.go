// Package cluster implements C7: four clustering strategies over a
// principal's memories. A MemoryCluster is always derivable from the
// current corpus — nothing else in the system depends on its persisted
// state being correct, so clustering can be re-run at any time with no
// coordination.
package cluster

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/chirino/memory-service/internal/errs"
	"github.com/chirino/memory-service/internal/model"
	"github.com/chirino/memory-service/internal/stableregion"
	"github.com/chirino/memory-service/internal/store"
)

const kmeansIterations = 10

// TimePeriod selects the bucket width for temporal clustering.
type TimePeriod string

const (
	PeriodDay   TimePeriod = "day"
	PeriodWeek  TimePeriod = "week"
	PeriodMonth TimePeriod = "month"
	PeriodYear  TimePeriod = "year"
)

// Result is the outcome of one clustering run.
type Result struct {
	Clusters             []*model.MemoryCluster
	UnclusteredMemoryIDs []string
	Score                float32
	Method               string
}

// Engine runs clustering strategies over memories fetched from the entity
// store and persists the resulting clusters to the stable region.
type Engine struct {
	store  *store.Store
	region *stableregion.Region
	policy *ClassifyPolicy
}

func New(st *store.Store, region *stableregion.Region) *Engine {
	return &Engine{store: st, region: region}
}

// SetClassifyPolicy installs an optional OPA policy consulted before the
// fixed keyword categories on every ByContent call. Pass nil to remove it.
func (e *Engine) SetClassifyPolicy(p *ClassifyPolicy) {
	e.policy = p
}

// KMeans partitions owner's memories that carry embeddings into k clusters
// using a deterministic stride-sampled initial centroid pick (no
// randomness, so the same input always produces the same clusters).
func (e *Engine) KMeans(ctx context.Context, owner model.Principal, memoryIDs []string, k int) (*Result, error) {
	if len(memoryIDs) < k {
		return nil, errs.Validation("k", "not enough memories for clustering")
	}
	var embeddings [][]float32
	var validIDs []string
	for _, id := range memoryIDs {
		m, err := e.store.GetMemory(ctx, owner, id)
		if err != nil {
			continue
		}
		if m.HasEmbedding() {
			embeddings = append(embeddings, m.Embedding)
			validIDs = append(validIDs, id)
		}
	}
	if len(embeddings) == 0 {
		return nil, errs.Validation("memory_ids", "no memories with embeddings found")
	}
	if k > len(embeddings) {
		k = len(embeddings)
	}

	assignments, centroids := kmeans(embeddings, k)

	now := time.Now().UTC()
	var clusters []*model.MemoryCluster
	for j, centroid := range centroids {
		var memberIDs []string
		tags := make(map[string]bool)
		for i, assignment := range assignments {
			if assignment != j {
				continue
			}
			memberIDs = append(memberIDs, validIDs[i])
			if m, err := e.store.GetMemory(ctx, owner, validIDs[i]); err == nil {
				for _, t := range m.Tags {
					tags[t] = true
				}
			}
		}
		if len(memberIDs) == 0 {
			continue
		}
		clusters = append(clusters, &model.MemoryCluster{
			ID:          fmt.Sprintf("cluster_%s_%d", owner.String(), j),
			Name:        fmt.Sprintf("Cluster %d", j+1),
			Description: fmt.Sprintf("Automatically generated cluster with %d memories", len(memberIDs)),
			MemoryIDs:   memberIDs,
			Centroid:    centroid,
			Tags:        tags,
			Owner:       owner,
			Type:        model.ClusterTypeAuto,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	score := clusteringScore(embeddings, assignments, centroids)
	return &Result{Clusters: clusters, Score: score, Method: "kmeans"}, nil
}

// ByContent classifies owner's memories into the fixed category registry by
// keyword and tag overlap, scoring each category and assigning the first
// one that clears its confidence threshold. If a ClassifyPolicy is
// installed via SetClassifyPolicy, it's consulted first; the fixed
// registry only runs when the policy declines to classify a memory.
func (e *Engine) ByContent(ctx context.Context, owner model.Principal, memoryIDs []string) (*Result, error) {
	grouped := make(map[string][]string)
	var unclustered []string

	for _, id := range memoryIDs {
		m, err := e.store.GetMemory(ctx, owner, id)
		if err != nil {
			continue
		}
		categoryID, ok := "", false
		if e.policy != nil {
			categoryID, ok = e.policy.Classify(ctx, m.Content, m.Tags)
		}
		if !ok {
			categoryID, ok = classify(m)
		}
		if !ok {
			unclustered = append(unclustered, id)
			continue
		}
		grouped[categoryID] = append(grouped[categoryID], id)
	}

	now := time.Now().UTC()
	byID := make(map[string]model.Category, len(defaultCategories))
	for _, c := range defaultCategories {
		byID[c.ID] = c
	}

	var clusters []*model.MemoryCluster
	for categoryID, ids := range grouped {
		cat, known := byID[categoryID]
		if !known {
			cat = model.Category{ID: categoryID, Name: categoryID, Description: "Policy-classified category"}
		}
		tags := make(map[string]bool, len(cat.Keywords))
		for _, kw := range cat.Keywords {
			tags[kw] = true
		}
		clusters = append(clusters, &model.MemoryCluster{
			ID:          fmt.Sprintf("content_%s_%s", owner.String(), categoryID),
			Name:        cat.Name,
			Description: cat.Description,
			MemoryIDs:   ids,
			Centroid:    e.contentCentroid(ctx, owner, ids),
			Tags:        tags,
			Owner:       owner,
			Type:        model.ClusterTypeCategory,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	sortClustersByID(clusters)
	return &Result{Clusters: clusters, UnclusteredMemoryIDs: unclustered, Score: 0.8, Method: "content_based"}, nil
}

// ByTag groups owner's memories by their first tag. Memories without tags
// are reported unclustered.
func (e *Engine) ByTag(ctx context.Context, owner model.Principal, memoryIDs []string) (*Result, error) {
	grouped := make(map[string][]string)
	var unclustered []string

	for _, id := range memoryIDs {
		m, err := e.store.GetMemory(ctx, owner, id)
		if err != nil {
			continue
		}
		if len(m.Tags) == 0 {
			unclustered = append(unclustered, id)
			continue
		}
		primary := m.Tags[0]
		grouped[primary] = append(grouped[primary], id)
	}

	now := time.Now().UTC()
	var clusters []*model.MemoryCluster
	for tag, ids := range grouped {
		clusters = append(clusters, &model.MemoryCluster{
			ID:          fmt.Sprintf("tag_%s_%s", owner.String(), tag),
			Name:        "#" + tag,
			Description: fmt.Sprintf("Memories tagged with %q", tag),
			MemoryIDs:   ids,
			Centroid:    e.contentCentroid(ctx, owner, ids),
			Tags:        map[string]bool{tag: true},
			Owner:       owner,
			Type:        model.ClusterTypeSemantic,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	sortClustersByID(clusters)
	return &Result{Clusters: clusters, UnclusteredMemoryIDs: unclustered, Score: 0.9, Method: "tag_based"}, nil
}

// ByTime buckets owner's memories into fixed-width time windows.
func (e *Engine) ByTime(ctx context.Context, owner model.Principal, memoryIDs []string, period TimePeriod) (*Result, error) {
	grouped := make(map[string][]string)

	for _, id := range memoryIDs {
		m, err := e.store.GetMemory(ctx, owner, id)
		if err != nil {
			continue
		}
		key := timeClusterKey(m.CreatedAt, period)
		grouped[key] = append(grouped[key], id)
	}

	now := time.Now().UTC()
	var clusters []*model.MemoryCluster
	for key, ids := range grouped {
		clusters = append(clusters, &model.MemoryCluster{
			ID:          fmt.Sprintf("time_%s_%s", owner.String(), key),
			Name:        formatTimeClusterName(key, period),
			Description: fmt.Sprintf("Memories from %s", key),
			MemoryIDs:   ids,
			Centroid:    e.contentCentroid(ctx, owner, ids),
			Owner:       owner,
			Type:        model.ClusterTypeTemporal,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	sortClustersByID(clusters)
	return &Result{Clusters: clusters, Score: 1.0, Method: "temporal"}, nil
}

func (e *Engine) contentCentroid(ctx context.Context, owner model.Principal, memoryIDs []string) []float32 {
	var embeddings [][]float32
	for _, id := range memoryIDs {
		if m, err := e.store.GetMemory(ctx, owner, id); err == nil && m.HasEmbedding() {
			embeddings = append(embeddings, m.Embedding)
		}
	}
	return centroid(embeddings)
}

// Store persists cluster to the stable region's cluster sub-region, keyed
// by its ID.
func (e *Engine) Store(ctx context.Context, cluster *model.MemoryCluster) error {
	if err := e.region.Put(stableregion.SubClusters, []byte(cluster.ID), encodeCluster(cluster)); err != nil {
		return errs.Storage("store_cluster", err)
	}
	return nil
}

// ListForOwner returns every persisted cluster owned by owner.
func (e *Engine) ListForOwner(ctx context.Context, owner model.Principal) ([]*model.MemoryCluster, error) {
	var out []*model.MemoryCluster
	err := e.region.ForEach(stableregion.SubClusters, func(_, value []byte) (bool, error) {
		c, err := decodeCluster(value)
		if err != nil {
			return false, err
		}
		if c.Owner == owner {
			out = append(out, c)
		}
		return true, nil
	})
	if err != nil {
		return nil, errs.Storage("list_clusters", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func classify(m *model.Memory) (string, bool) {
	contentLower := strings.ToLower(m.Content)
	for _, cat := range defaultCategories {
		var score float32
		keywordCount := float32(len(cat.Keywords))
		if keywordCount == 0 {
			continue
		}
		for _, kw := range cat.Keywords {
			if strings.Contains(contentLower, strings.ToLower(kw)) {
				score += 1.0 / keywordCount
			}
		}
		for _, tag := range m.Tags {
			if containsFold(cat.Keywords, tag) {
				score += 0.5 / keywordCount
			}
		}
		if score >= cat.ConfidenceThreshold {
			return cat.ID, true
		}
	}
	return "", false
}

func containsFold(haystack []string, needle string) bool {
	needleLower := strings.ToLower(needle)
	for _, h := range haystack {
		if strings.ToLower(h) == needleLower {
			return true
		}
	}
	return false
}

func timeClusterKey(createdAt time.Time, period TimePeriod) string {
	seconds := createdAt.Unix()
	switch period {
	case PeriodWeek:
		return fmt.Sprintf("week_%d", seconds/604800)
	case PeriodMonth:
		return fmt.Sprintf("month_%d", seconds/2592000)
	case PeriodYear:
		return fmt.Sprintf("year_%d", seconds/31536000)
	default:
		return fmt.Sprintf("day_%d", seconds/86400)
	}
}

func formatTimeClusterName(key string, period TimePeriod) string {
	switch period {
	case PeriodWeek:
		return "Weekly memories: " + key
	case PeriodMonth:
		return "Monthly memories: " + key
	case PeriodYear:
		return "Yearly memories: " + key
	default:
		return "Daily memories: " + key
	}
}

func sortClustersByID(clusters []*model.MemoryCluster) {
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].ID < clusters[j].ID })
}

// --- k-means ---

func kmeans(embeddings [][]float32, k int) ([]int, [][]float32) {
	centroids := initialCentroids(embeddings, k)
	assignments := make([]int, len(embeddings))

	for iter := 0; iter < kmeansIterations; iter++ {
		for i, e := range embeddings {
			best, bestDist := 0, float32(math.MaxFloat32)
			for j, c := range centroids {
				d := euclideanDistance(e, c)
				if d < bestDist {
					bestDist, best = d, j
				}
			}
			assignments[i] = best
		}
		for j := range centroids {
			var members [][]float32
			for i, e := range embeddings {
				if assignments[i] == j {
					members = append(members, e)
				}
			}
			if len(members) > 0 {
				centroids[j] = centroid(members)
			}
		}
	}
	return assignments, centroids
}

// initialCentroids samples embeddings at a fixed stride so the same corpus
// always starts from the same centroids, with no randomness involved.
func initialCentroids(embeddings [][]float32, k int) [][]float32 {
	centroids := make([][]float32, 0, k)
	step := len(embeddings) / k
	if step == 0 {
		step = 1
	}
	for i := 0; i < k; i++ {
		idx := i * step
		if idx >= len(embeddings) {
			idx = len(embeddings) - 1
		}
		centroids = append(centroids, append([]float32(nil), embeddings[idx]...))
	}
	return centroids
}

func centroid(points [][]float32) []float32 {
	if len(points) == 0 {
		return nil
	}
	dim := len(points[0])
	out := make([]float32, dim)
	for _, p := range points {
		for i, v := range p {
			if i < dim {
				out[i] += v
			}
		}
	}
	count := float32(len(points))
	for i := range out {
		out[i] /= count
	}
	return out
}

func euclideanDistance(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return float32(math.Sqrt(float64(sum)))
}

func clusteringScore(embeddings [][]float32, assignments []int, centroids [][]float32) float32 {
	var totalDistance float32
	count := 0
	for i, e := range embeddings {
		c := assignments[i]
		if c < len(centroids) {
			totalDistance += euclideanDistance(e, centroids[c])
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return 1.0 / (1.0 + totalDistance/float32(count))
}
