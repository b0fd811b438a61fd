// Package writepipeline implements C9: the orchestration a memory write
// goes through — validate, persist, embed out of band, then fold the
// result into the derived indexes (C4 vector store, C6 suggestions). Each
// principal writes through its own lock, so concurrent writers never race
// on the same user's quota check or index update, while different
// principals proceed fully in parallel.
package writepipeline

import (
	"context"
	"sync"

	charmlog "github.com/charmbracelet/log"

	"github.com/chirino/memory-service/internal/embed"
	"github.com/chirino/memory-service/internal/errs"
	"github.com/chirino/memory-service/internal/model"
	"github.com/chirino/memory-service/internal/store"
	"github.com/chirino/memory-service/internal/suggest"
	"github.com/chirino/memory-service/internal/validate"
	"github.com/chirino/memory-service/internal/vectorstore"
)

// EmbedMode controls how a write reacts to embedding failure.
type EmbedMode string

const (
	// EmbedLenient persists the memory without an embedding on failure; it
	// remains searchable only through the keyword fallback until a later
	// update succeeds.
	EmbedLenient EmbedMode = "lenient"
	// EmbedStrict fails the whole write if embedding fails.
	EmbedStrict EmbedMode = "strict"
)

// Pipeline wires together the entity store, vector store, embed factory,
// and suggestion engine for the add/update memory write path.
type Pipeline struct {
	store     *store.Store
	vectors   *vectorstore.Store
	embedder  *embed.Factory
	suggest   *suggest.Engine
	log       *charmlog.Logger
	mu        sync.Mutex
	perUserMu map[model.Principal]*sync.Mutex
}

func New(st *store.Store, vec *vectorstore.Store, embedder *embed.Factory, sg *suggest.Engine, log *charmlog.Logger) *Pipeline {
	return &Pipeline{
		store:     st,
		vectors:   vec,
		embedder:  embedder,
		suggest:   sg,
		log:       log,
		perUserMu: make(map[model.Principal]*sync.Mutex),
	}
}

func (p *Pipeline) lockFor(owner model.Principal) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.perUserMu[owner]
	if !ok {
		l = &sync.Mutex{}
		p.perUserMu[owner] = l
	}
	return l
}

// AddMemoryRequest is the input to AddMemory.
type AddMemoryRequest struct {
	Content   string
	Metadata  map[string]string
	Tags      []string
	EmbedMode EmbedMode
}

// AddMemory validates, persists, and (best-effort or required, per
// EmbedMode) embeds a new memory, then indexes it for suggestions.
func (p *Pipeline) AddMemory(ctx context.Context, owner model.Principal, req AddMemoryRequest) (*model.Memory, error) {
	lock := p.lockFor(owner)
	lock.Lock()
	defer lock.Unlock()

	if err := validate.Memory(validate.AddMemoryRequest{Content: req.Content, Metadata: req.Metadata, Tags: req.Tags}); err != nil {
		return nil, err
	}
	count, err := p.store.CountMemories(ctx, owner)
	if err != nil {
		return nil, err
	}
	if err := validate.UserQuota(count); err != nil {
		return nil, err
	}

	m, err := p.store.CreateMemory(ctx, owner, req.Content, req.Metadata, req.Tags)
	if err != nil {
		return nil, err
	}

	if err := p.embedAndIndex(ctx, owner, m, req.EmbedMode); err != nil {
		if req.EmbedMode == EmbedStrict {
			_ = p.store.DeleteMemory(ctx, owner, m.ID)
			return nil, err
		}
		p.log.Warn("embedding failed, memory stored without embedding", "memory_id", m.ID, "error", err)
	}

	p.suggest.IndexMemory(m)
	return m, nil
}

// UpdateMemoryRequest is the input to UpdateMemory.
type UpdateMemoryRequest struct {
	Content   *string
	Metadata  map[string]string
	Tags      []string
	EmbedMode EmbedMode
}

// UpdateMemory applies a patch and, if content changed, re-embeds.
func (p *Pipeline) UpdateMemory(ctx context.Context, owner model.Principal, id string, req UpdateMemoryRequest) (*model.Memory, error) {
	lock := p.lockFor(owner)
	lock.Lock()
	defer lock.Unlock()

	if req.Content != nil {
		if err := validate.Memory(validate.AddMemoryRequest{Content: *req.Content, Metadata: req.Metadata, Tags: req.Tags}); err != nil {
			return nil, err
		}
	}

	m, err := p.store.UpdateMemory(ctx, owner, id, store.MemoryUpdate{
		Content:  req.Content,
		Metadata: req.Metadata,
		Tags:     req.Tags,
	})
	if err != nil {
		return nil, err
	}

	if req.Content != nil {
		if err := p.embedAndIndex(ctx, owner, m, req.EmbedMode); err != nil {
			if req.EmbedMode == EmbedStrict {
				return nil, err
			}
			p.log.Warn("re-embedding failed after update", "memory_id", m.ID, "error", err)
		}
	}
	if req.Tags != nil {
		p.suggest.IndexMemory(m)
	}
	return m, nil
}

// DeleteMemory removes a memory and its vector entry.
func (p *Pipeline) DeleteMemory(ctx context.Context, owner model.Principal, id string) error {
	lock := p.lockFor(owner)
	lock.Lock()
	defer lock.Unlock()

	if err := p.store.DeleteMemory(ctx, owner, id); err != nil {
		return err
	}
	return p.vectors.Remove(id)
}

func (p *Pipeline) embedAndIndex(ctx context.Context, owner model.Principal, m *model.Memory, _ EmbedMode) error {
	cfg, err := p.store.GetUserConfig(ctx, owner)
	if err != nil {
		if errs.Is(err, errs.KindNotFound) {
			return errs.Validation("user_config", "no embedding provider configured")
		}
		return err
	}
	embedder, err := p.embedder.ForUser(cfg)
	if err != nil {
		return err
	}
	vec, err := embed.EmbedMemoryText(ctx, embedder, m.Content)
	if err != nil {
		return err
	}
	if err := p.store.SetEmbedding(ctx, owner, m.ID, vec); err != nil {
		return err
	}
	m.Embedding = vec
	if err := p.vectors.Upsert(m.ID, vec); err != nil {
		return err
	}
	return nil
}
