// Package store implements C2, the canonical entity store: memories,
// conversations, per-user config, and access tokens, each persisted through
// the stable region (C1) with an owner-scoped secondary index for listing.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chirino/memory-service/internal/errs"
	"github.com/chirino/memory-service/internal/model"
	"github.com/chirino/memory-service/internal/stableregion"
)

// Store is the entity store. All methods are safe for concurrent use; the
// stable region serializes writers.
type Store struct {
	region *stableregion.Region

	tagMu     sync.Mutex
	tagCounts map[string]int // lazily built, then kept current incrementally
}

func New(region *stableregion.Region) *Store {
	return &Store{region: region}
}

// ensureTagCounts builds tagCounts from a single full scan the first time
// any tag-count operation runs, so per-request suggestion scoring never
// pays that scan cost itself. Must be called with tagMu held.
func (s *Store) ensureTagCounts() error {
	if s.tagCounts != nil {
		return nil
	}
	counts := make(map[string]int)
	err := s.region.ForEach(stableregion.SubMemories, func(_, value []byte) (bool, error) {
		m, decodeErr := decodeMemory(value)
		if decodeErr != nil {
			return false, decodeErr
		}
		for _, tag := range m.Tags {
			counts[tag]++
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	s.tagCounts = counts
	return nil
}

// adjustTagCounts applies a +1/-1 delta to each tag in tags, building the
// index first if it hasn't been built yet.
func (s *Store) adjustTagCounts(tags []string, delta int) {
	s.tagMu.Lock()
	defer s.tagMu.Unlock()
	if err := s.ensureTagCounts(); err != nil {
		// Leave the index unbuilt; the next TagCount call retries the scan.
		s.tagCounts = nil
		return
	}
	for _, tag := range tags {
		s.tagCounts[tag] += delta
		if s.tagCounts[tag] <= 0 {
			delete(s.tagCounts, tag)
		}
	}
}

// TagCount returns how many memories across every owner currently carry
// tag, used by the suggestion engine (C6) to weight tag-suggestion scores
// by corpus-wide popularity.
func (s *Store) TagCount(tag string) int {
	s.tagMu.Lock()
	defer s.tagMu.Unlock()
	if err := s.ensureTagCounts(); err != nil {
		return 0
	}
	return s.tagCounts[tag]
}

func ownerIndexKey(owner model.Principal, id string) []byte {
	key := make([]byte, 0, model.PrincipalSize+1+len(id))
	key = append(key, owner[:]...)
	key = append(key, 0)
	key = append(key, id...)
	return key
}

// CreateMemory persists a new memory owned by owner and returns it. The
// embedding is populated later, out of band, by the write pipeline (C9).
func (s *Store) CreateMemory(ctx context.Context, owner model.Principal, content string, metadata map[string]string, tags []string) (*model.Memory, error) {
	now := time.Now().UTC()
	m := &model.Memory{
		ID:        uuid.NewString(),
		Owner:     owner,
		Content:   content,
		Metadata:  metadata,
		Tags:      tags,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.region.Batch(func(tx *stableregion.Tx) error {
		if err := tx.Put(stableregion.SubMemories, []byte(m.ID), encodeMemory(m)); err != nil {
			return err
		}
		return tx.Put(stableregion.SubUserMemories, ownerIndexKey(owner, m.ID), nil)
	})
	if err != nil {
		return nil, errs.Storage("create_memory", err)
	}
	s.adjustTagCounts(m.Tags, 1)
	return m, nil
}

// GetMemory returns the memory with id, failing with KindNotFound unless it
// is owned by owner.
func (s *Store) GetMemory(ctx context.Context, owner model.Principal, id string) (*model.Memory, error) {
	raw, ok := s.region.Get(stableregion.SubMemories, []byte(id))
	if !ok {
		return nil, errs.NotFound("memory", id)
	}
	m, err := decodeMemory(raw)
	if err != nil {
		return nil, errs.Storage("decode_memory", err)
	}
	if m.Owner != owner {
		return nil, errs.NotFound("memory", id)
	}
	return m, nil
}

// MemoryUpdate holds the optional fields an UpdateMemory call may change.
type MemoryUpdate struct {
	Content  *string
	Metadata map[string]string
	Tags     []string
}

// UpdateMemory applies patch to the memory, bumping UpdatedAt. When patch
// changes Content the embedding is cleared; the write pipeline's
// UpdateMemory re-embeds it in the same call.
func (s *Store) UpdateMemory(ctx context.Context, owner model.Principal, id string, patch MemoryUpdate) (*model.Memory, error) {
	m, err := s.GetMemory(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	oldTags := m.Tags
	if patch.Content != nil {
		m.Content = *patch.Content
		m.Embedding = nil
	}
	if patch.Metadata != nil {
		m.Metadata = patch.Metadata
	}
	if patch.Tags != nil {
		m.Tags = patch.Tags
	}
	m.UpdatedAt = time.Now().UTC()
	if err := s.region.Put(stableregion.SubMemories, []byte(m.ID), encodeMemory(m)); err != nil {
		return nil, errs.Storage("update_memory", err)
	}
	if patch.Tags != nil {
		s.adjustTagCounts(oldTags, -1)
		s.adjustTagCounts(m.Tags, 1)
	}
	return m, nil
}

// SetEmbedding stores the computed embedding for a memory. Called by the
// write pipeline (C9) once the external embedder returns.
func (s *Store) SetEmbedding(ctx context.Context, owner model.Principal, id string, embedding []float32) error {
	m, err := s.GetMemory(ctx, owner, id)
	if err != nil {
		return err
	}
	m.Embedding = embedding
	if err := s.region.Put(stableregion.SubMemories, []byte(m.ID), encodeMemory(m)); err != nil {
		return errs.Storage("set_embedding", err)
	}
	return nil
}

// DeleteMemory removes a memory and its owner-index entry.
func (s *Store) DeleteMemory(ctx context.Context, owner model.Principal, id string) error {
	m, err := s.GetMemory(ctx, owner, id)
	if err != nil {
		return err
	}
	batchErr := s.region.Batch(func(tx *stableregion.Tx) error {
		if err := tx.Delete(stableregion.SubMemories, []byte(id)); err != nil {
			return err
		}
		return tx.Delete(stableregion.SubUserMemories, ownerIndexKey(owner, id))
	})
	if batchErr != nil {
		return errs.Storage("delete_memory", batchErr)
	}
	s.adjustTagCounts(m.Tags, -1)
	return nil
}

// ListMemories returns owner's memories ordered newest-first, paginated by
// limit/offset, plus the total count owned by owner.
func (s *Store) ListMemories(ctx context.Context, owner model.Principal, limit, offset int) ([]*model.Memory, int, error) {
	ids, err := s.memoryIDsForOwner(owner)
	if err != nil {
		return nil, 0, err
	}
	all := make([]*model.Memory, 0, len(ids))
	for _, id := range ids {
		raw, ok := s.region.Get(stableregion.SubMemories, []byte(id))
		if !ok {
			continue
		}
		m, err := decodeMemory(raw)
		if err != nil {
			return nil, 0, errs.Storage("decode_memory", err)
		}
		all = append(all, m)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if offset >= total {
		return []*model.Memory{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

// CountMemories returns the number of memories owned by owner, used to
// enforce the per-user quota before a write.
func (s *Store) CountMemories(ctx context.Context, owner model.Principal) (int, error) {
	ids, err := s.memoryIDsForOwner(owner)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (s *Store) memoryIDsForOwner(owner model.Principal) ([]string, error) {
	prefix := append(append([]byte(nil), owner[:]...), 0)
	var ids []string
	err := s.region.PrefixScan(stableregion.SubUserMemories, prefix, func(key, _ []byte) (bool, error) {
		ids = append(ids, string(key[len(prefix):]))
		return true, nil
	})
	if err != nil {
		return nil, errs.Storage("scan_user_memories", err)
	}
	return ids, nil
}

// GlobalStats scans every stored memory once to report cross-tenant
// totals for the admin /stats endpoint: memory count, distinct owner
// count, and average content size in bytes.
func (s *Store) GlobalStats(ctx context.Context) (totalMemories, totalUsers int, avgContentSize float64, err error) {
	owners := make(map[model.Principal]bool)
	var totalBytes int
	scanErr := s.region.ForEach(stableregion.SubMemories, func(_, value []byte) (bool, error) {
		m, decodeErr := decodeMemory(value)
		if decodeErr != nil {
			return false, decodeErr
		}
		totalMemories++
		totalBytes += len(m.Content)
		owners[m.Owner] = true
		return true, nil
	})
	if scanErr != nil {
		return 0, 0, 0, errs.Storage("global_stats", scanErr)
	}
	totalUsers = len(owners)
	if totalMemories > 0 {
		avgContentSize = float64(totalBytes) / float64(totalMemories)
	}
	return totalMemories, totalUsers, avgContentSize, nil
}

// ListOwners returns every distinct principal holding at least one memory,
// scanning the same way GlobalStats does. Used by the maintenance sweep to
// decide which owners' vector indexes need rebuilding.
func (s *Store) ListOwners(ctx context.Context) ([]model.Principal, error) {
	owners := make(map[model.Principal]bool)
	err := s.region.ForEach(stableregion.SubMemories, func(_, value []byte) (bool, error) {
		m, decodeErr := decodeMemory(value)
		if decodeErr != nil {
			return false, decodeErr
		}
		owners[m.Owner] = true
		return true, nil
	})
	if err != nil {
		return nil, errs.Storage("list_owners", err)
	}
	out := make([]model.Principal, 0, len(owners))
	for o := range owners {
		out = append(out, o)
	}
	return out, nil
}

// --- Conversations ---

func (s *Store) CreateConversation(ctx context.Context, owner model.Principal, title, content, source string, metadata map[string]string) (*model.Conversation, error) {
	now := time.Now().UTC()
	c := &model.Conversation{
		ID:        uuid.NewString(),
		Owner:     owner,
		Title:     title,
		Content:   content,
		Source:    source,
		Metadata:  metadata,
		WordCount: countWords(content),
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.region.Batch(func(tx *stableregion.Tx) error {
		if err := tx.Put(stableregion.SubConversations, []byte(c.ID), encodeConversation(c)); err != nil {
			return err
		}
		return tx.Put(stableregion.SubUserConversations, ownerIndexKey(owner, c.ID), nil)
	})
	if err != nil {
		return nil, errs.Storage("create_conversation", err)
	}
	return c, nil
}

func (s *Store) GetConversation(ctx context.Context, owner model.Principal, id string) (*model.Conversation, error) {
	raw, ok := s.region.Get(stableregion.SubConversations, []byte(id))
	if !ok {
		return nil, errs.NotFound("conversation", id)
	}
	c, err := decodeConversation(raw)
	if err != nil {
		return nil, errs.Storage("decode_conversation", err)
	}
	if c.Owner != owner {
		return nil, errs.NotFound("conversation", id)
	}
	return c, nil
}

func (s *Store) DeleteConversation(ctx context.Context, owner model.Principal, id string) error {
	if _, err := s.GetConversation(ctx, owner, id); err != nil {
		return err
	}
	err := s.region.Batch(func(tx *stableregion.Tx) error {
		if err := tx.Delete(stableregion.SubConversations, []byte(id)); err != nil {
			return err
		}
		return tx.Delete(stableregion.SubUserConversations, ownerIndexKey(owner, id))
	})
	if err != nil {
		return errs.Storage("delete_conversation", err)
	}
	return nil
}

func (s *Store) ListConversations(ctx context.Context, owner model.Principal, limit, offset int) ([]*model.Conversation, int, error) {
	prefix := append(append([]byte(nil), owner[:]...), 0)
	var ids []string
	err := s.region.PrefixScan(stableregion.SubUserConversations, prefix, func(key, _ []byte) (bool, error) {
		ids = append(ids, string(key[len(prefix):]))
		return true, nil
	})
	if err != nil {
		return nil, 0, errs.Storage("scan_user_conversations", err)
	}
	all := make([]*model.Conversation, 0, len(ids))
	for _, id := range ids {
		raw, ok := s.region.Get(stableregion.SubConversations, []byte(id))
		if !ok {
			continue
		}
		c, err := decodeConversation(raw)
		if err != nil {
			return nil, 0, errs.Storage("decode_conversation", err)
		}
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if offset >= total {
		return []*model.Conversation{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func countWords(s string) int {
	n := 0
	inWord := false
	for _, r := range s {
		if r == ' ' || r == '\n' || r == '\t' || r == '\r' {
			inWord = false
			continue
		}
		if !inWord {
			n++
			inWord = true
		}
	}
	return n
}

// --- User config ---

func (s *Store) GetUserConfig(ctx context.Context, owner model.Principal) (*model.UserConfig, error) {
	raw, ok := s.region.Get(stableregion.SubUserConfig, owner[:])
	if !ok {
		return nil, errs.NotFound("user_config", owner.String())
	}
	c, err := decodeUserConfig(raw)
	if err != nil {
		return nil, errs.Storage("decode_user_config", err)
	}
	return c, nil
}

// PutUserConfig upserts owner's config, preserving whichever key the caller
// leaves empty in patch.
func (s *Store) PutUserConfig(ctx context.Context, owner model.Principal, patch model.UserConfig) (*model.UserConfig, error) {
	now := time.Now().UTC()
	existing, err := s.GetUserConfig(ctx, owner)
	if err != nil && !errs.Is(err, errs.KindNotFound) {
		return nil, err
	}
	c := &model.UserConfig{Owner: owner, CreatedAt: now}
	if existing != nil {
		c.OpenAIKey = existing.OpenAIKey
		c.OpenRouterKey = existing.OpenRouterKey
		c.Provider = existing.Provider
		c.EmbeddingModel = existing.EmbeddingModel
		c.CreatedAt = existing.CreatedAt
	}
	if patch.OpenAIKey != "" {
		c.OpenAIKey = patch.OpenAIKey
	}
	if patch.OpenRouterKey != "" {
		c.OpenRouterKey = patch.OpenRouterKey
	}
	if patch.Provider != "" {
		c.Provider = patch.Provider
	}
	if patch.EmbeddingModel != "" {
		c.EmbeddingModel = patch.EmbeddingModel
	}
	c.UpdatedAt = now
	if err := s.region.Put(stableregion.SubUserConfig, owner[:], encodeUserConfig(c)); err != nil {
		return nil, errs.Storage("put_user_config", err)
	}
	return c, nil
}

// --- Access tokens ---

func (s *Store) PutAccessToken(ctx context.Context, t *model.AccessToken) error {
	if err := s.region.Put(stableregion.SubAccessTokens, []byte(t.Token), encodeAccessToken(t)); err != nil {
		return errs.Storage("put_access_token", err)
	}
	return nil
}

func (s *Store) GetAccessToken(ctx context.Context, token string) (*model.AccessToken, error) {
	raw, ok := s.region.Get(stableregion.SubAccessTokens, []byte(token))
	if !ok {
		return nil, errs.NotFound("access_token", token)
	}
	t, err := decodeAccessToken(raw)
	if err != nil {
		return nil, errs.Storage("decode_access_token", err)
	}
	return t, nil
}

func (s *Store) TouchAccessToken(ctx context.Context, token string) error {
	t, err := s.GetAccessToken(ctx, token)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	t.LastUsedAt = &now
	if err := s.region.Put(stableregion.SubAccessTokens, []byte(token), encodeAccessToken(t)); err != nil {
		return errs.Storage("touch_access_token", err)
	}
	return nil
}

func (s *Store) RevokeAccessToken(ctx context.Context, owner model.Principal, token string) error {
	t, err := s.GetAccessToken(ctx, token)
	if err != nil {
		return err
	}
	if t.Owner != owner {
		return errs.NotOwner()
	}
	if err := s.region.Delete(stableregion.SubAccessTokens, []byte(token)); err != nil {
		return errs.Storage("revoke_access_token", err)
	}
	return nil
}

// ListAccessTokens returns every non-expired token owned by owner.
func (s *Store) ListAccessTokens(ctx context.Context, owner model.Principal) ([]*model.AccessToken, error) {
	var out []*model.AccessToken
	now := time.Now().UTC()
	err := s.region.ForEach(stableregion.SubAccessTokens, func(_, value []byte) (bool, error) {
		t, err := decodeAccessToken(value)
		if err != nil {
			return false, err
		}
		if t.Owner == owner && t.ExpiresAt.After(now) {
			out = append(out, t)
		}
		return true, nil
	})
	if err != nil {
		return nil, errs.Storage("list_access_tokens", err)
	}
	return out, nil
}

// SweepExpiredTokens deletes every token past its expiry and returns the
// count removed. Intended to be called periodically (cmd/om-core sweep).
func (s *Store) SweepExpiredTokens(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	var expired [][]byte
	err := s.region.ForEach(stableregion.SubAccessTokens, func(key, value []byte) (bool, error) {
		t, err := decodeAccessToken(value)
		if err != nil {
			return false, err
		}
		if !t.ExpiresAt.After(now) {
			expired = append(expired, append([]byte(nil), key...))
		}
		return true, nil
	})
	if err != nil {
		return 0, errs.Storage("sweep_scan", err)
	}
	for _, key := range expired {
		if err := s.region.Delete(stableregion.SubAccessTokens, key); err != nil {
			return 0, errs.Storage("sweep_delete", err)
		}
	}
	return len(expired), nil
}
