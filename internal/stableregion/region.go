// Package stableregion implements C1: the single byte-addressable persistent
// region every other component reads and writes through. It is backed by a
// single bbolt database file, opened exclusively by one process, with one
// top-level bucket per sub-region.
package stableregion

import (
	"context"
	"fmt"
	"time"

	"github.com/chirino/memory-service/internal/errs"
	"go.etcd.io/bbolt"
)

// SubRegion names one of the fixed top-level buckets the core partitions its
// state into. New sub-regions are appended to this list; existing values
// never change meaning.
type SubRegion string

const (
	SubMemories          SubRegion = "memories"
	SubUserMemories      SubRegion = "user_memories"
	SubConversations     SubRegion = "conversations"
	SubUserConversations SubRegion = "user_conversations"
	SubUserConfig        SubRegion = "user_config"
	SubAccessTokens      SubRegion = "access_tokens"
	SubVectors           SubRegion = "vectors"
	SubVectorIndex       SubRegion = "vector_buckets"
	SubClusters          SubRegion = "clusters"
	SubSearchHistory     SubRegion = "search_history"
	SubMeta              SubRegion = "meta"
)

// allSubRegions is the full set created on open, so a fresh database always
// has every bucket present before any component touches it.
var allSubRegions = []SubRegion{
	SubMemories, SubUserMemories, SubConversations, SubUserConversations,
	SubUserConfig, SubAccessTokens, SubVectors, SubVectorIndex, SubClusters,
	SubSearchHistory, SubMeta,
}

// Region is a handle to the stable region. It is safe for concurrent use:
// bbolt serializes writers internally and allows concurrent readers.
type Region struct {
	db *bbolt.DB
}

// Open opens (creating if absent) the stable region file at path.
func Open(path string) (*Region, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errs.Storage("open", err)
	}
	r := &Region{db: db}
	if err := r.db.Update(func(tx *bbolt.Tx) error {
		for _, sub := range allSubRegions {
			if _, err := tx.CreateBucketIfNotExists([]byte(sub)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, errs.Storage("init", err)
	}
	return r, nil
}

// Close releases the underlying file handle.
func (r *Region) Close() error {
	return r.db.Close()
}

// Put writes value under key in sub, replacing any existing entry.
func (r *Region) Put(sub SubRegion, key []byte, value []byte) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(sub)).Put(key, value)
	})
}

// Get reads the value stored under key in sub. It returns (nil, false) if
// absent. The returned slice is a copy and safe to retain.
func (r *Region) Get(sub SubRegion, key []byte) ([]byte, bool) {
	var out []byte
	_ = r.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(sub)).Get(key)
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, out != nil
}

// Delete removes key from sub. Deleting an absent key is a no-op.
func (r *Region) Delete(sub SubRegion, key []byte) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(sub)).Delete(key)
	})
}

// ForEach visits every key/value pair in sub, in ascending key order, until
// fn returns false or an error.
func (r *Region) ForEach(sub SubRegion, fn func(key, value []byte) (bool, error)) error {
	return r.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(sub)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			cont, err := fn(k, v)
			if err != nil {
				return err
			}
			if !cont {
				return nil
			}
		}
		return nil
	})
}

// PrefixScan visits every key/value pair in sub whose key starts with
// prefix, in ascending key order.
func (r *Region) PrefixScan(sub SubRegion, prefix []byte, fn func(key, value []byte) (bool, error)) error {
	return r.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(sub)).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			cont, err := fn(k, v)
			if err != nil {
				return err
			}
			if !cont {
				return nil
			}
		}
		return nil
	})
}

// Count returns the number of keys in sub.
func (r *Region) Count(sub SubRegion) int {
	n := 0
	_ = r.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket([]byte(sub)).Stats().KeyN
		return nil
	})
	return n
}

// Batch runs fn inside a single read-write transaction across potentially
// several sub-regions, so a multi-bucket update (e.g. writing a memory and
// its user index entry) is atomic with respect to process crashes.
func (r *Region) Batch(fn func(tx *Tx) error) error {
	return r.db.Update(func(btx *bbolt.Tx) error {
		return fn(&Tx{btx: btx})
	})
}

// Tx is a single read-write transaction spanning all sub-regions.
type Tx struct {
	btx *bbolt.Tx
}

func (t *Tx) Put(sub SubRegion, key, value []byte) error {
	return t.btx.Bucket([]byte(sub)).Put(key, value)
}

func (t *Tx) Get(sub SubRegion, key []byte) ([]byte, bool) {
	v := t.btx.Bucket([]byte(sub)).Get(key)
	if v == nil {
		return nil, false
	}
	return append([]byte(nil), v...), true
}

func (t *Tx) Delete(sub SubRegion, key []byte) error {
	return t.btx.Bucket([]byte(sub)).Delete(key)
}

func (t *Tx) ForEach(sub SubRegion, fn func(key, value []byte) (bool, error)) error {
	c := t.btx.Bucket([]byte(sub)).Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		cont, err := fn(k, v)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

// Snapshot writes a consistent point-in-time copy of the entire region to w,
// usable for backup or migration between processes.
func (r *Region) Snapshot(ctx context.Context, w interface {
	Write([]byte) (int, error)
}) error {
	return r.db.View(func(tx *bbolt.Tx) error {
		_, err := tx.WriteTo(w)
		return err
	})
}

func hasPrefix(key, prefix []byte) bool {
	if len(key) < len(prefix) {
		return false
	}
	for i := range prefix {
		if key[i] != prefix[i] {
			return false
		}
	}
	return true
}

// ErrNotOpen describes a region used after Close. No Region method returns
// it.
var ErrNotOpen = fmt.Errorf("stable region is not open")
