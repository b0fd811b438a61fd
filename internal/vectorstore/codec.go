package vectorstore

import (
	"time"

	"github.com/chirino/memory-service/internal/model"
	"github.com/chirino/memory-service/internal/stableregion"
)

func encodeVectorEntry(e *model.VectorEntry) []byte {
	enc := stableregion.NewEncoder()
	enc.PutString(e.ID)
	enc.PutFloat32Slice(e.Vec)
	enc.PutFloat32(e.Norm)
	enc.PutInt64(e.CreatedAt.UnixNano())
	return enc.Bytes()
}

func decodeVectorEntry(b []byte) (*model.VectorEntry, error) {
	d := stableregion.NewDecoder(b)
	e := &model.VectorEntry{}
	e.ID = d.GetString()
	e.Vec = d.GetFloat32Slice()
	e.Norm = d.GetFloat32()
	e.CreatedAt = time.Unix(0, d.GetInt64()).UTC()
	if d.Err() != nil {
		return nil, d.Err()
	}
	return e, nil
}
