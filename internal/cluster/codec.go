package cluster

import (
	"time"

	"github.com/chirino/memory-service/internal/model"
	"github.com/chirino/memory-service/internal/stableregion"
)

func encodeCluster(c *model.MemoryCluster) []byte {
	e := stableregion.NewEncoder()
	e.PutString(c.ID)
	e.PutString(c.Name)
	e.PutString(c.Description)
	e.PutStringSlice(c.MemoryIDs)
	e.PutFloat32Slice(c.Centroid)
	e.PutBoolSet(c.Tags)
	e.PutBytes(c.Owner[:])
	e.PutString(string(c.Type))
	e.PutInt64(c.CreatedAt.UnixNano())
	e.PutInt64(c.UpdatedAt.UnixNano())
	return e.Bytes()
}

func decodeCluster(b []byte) (*model.MemoryCluster, error) {
	d := stableregion.NewDecoder(b)
	c := &model.MemoryCluster{}
	c.ID = d.GetString()
	c.Name = d.GetString()
	c.Description = d.GetString()
	c.MemoryIDs = d.GetStringSlice()
	c.Centroid = d.GetFloat32Slice()
	c.Tags = d.GetBoolSet()
	owner := d.GetBytes()
	copy(c.Owner[:], owner)
	c.Type = model.ClusterType(d.GetString())
	c.CreatedAt = time.Unix(0, d.GetInt64()).UTC()
	c.UpdatedAt = time.Unix(0, d.GetInt64()).UTC()
	if d.Err() != nil {
		return nil, d.Err()
	}
	return c, nil
}
