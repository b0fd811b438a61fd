package model

import "time"

// VectorEntry is the vector-store record for a Memory: its embedding and
// precomputed L2 norm. Entries with an empty embedding are never inserted.
type VectorEntry struct {
	ID        string    `json:"id"`
	Vec       []float32 `json:"-"`
	Norm      float32   `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// ClusterType distinguishes how a MemoryCluster was produced.
type ClusterType string

const (
	ClusterTypeAuto     ClusterType = "auto"     // k-means
	ClusterTypeManual   ClusterType = "manual"
	ClusterTypeCategory ClusterType = "category" // content classification
	ClusterTypeTemporal ClusterType = "temporal"
	ClusterTypeSemantic ClusterType = "semantic" // tag-based
)

// MemoryCluster is a non-authoritative, observability-only grouping of
// memories. It is always derivable from the current corpus; nothing else
// depends on its persisted state being correct.
type MemoryCluster struct {
	ID          string
	Name        string
	Description string
	MemoryIDs   []string
	Centroid    []float32
	Tags        map[string]bool
	Owner       Principal
	Type        ClusterType
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Category is a fixed, registry-defined content classification bucket used
// by the content clustering strategy (C7).
type Category struct {
	ID                  string
	Name                string
	Description         string
	Keywords            []string
	ConfidenceThreshold float32
	ParentCategory      string
	Subcategories       []string
}
