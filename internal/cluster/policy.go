package cluster

import (
	"context"
	"fmt"
	"sync"

	"github.com/open-policy-agent/opa/rego"
)

// defaultClassifyQuery is the result binding a policy module must expose.
const defaultClassifyQuery = "data.memories.classify.category"

// ClassifyPolicy evaluates a single Rego module to override or extend
// ByContent's fixed-keyword category matching — e.g. a deployment wanting
// domain-specific categories (legal, medical) without a code change. Nil
// by default; the fixed category registry stays authoritative until a
// caller registers one.
type ClassifyPolicy struct {
	mu    sync.RWMutex
	query *rego.PreparedEvalQuery
}

// NewClassifyPolicy compiles src, a Rego module defining
// `data.memories.classify.category`, which must evaluate to a category ID
// string (or undefined, to defer to the fixed registry).
func NewClassifyPolicy(ctx context.Context, src string) (*ClassifyPolicy, error) {
	r := rego.New(
		rego.Query(defaultClassifyQuery),
		rego.Module("classify.rego", src),
	)
	q, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("cluster: compile classify policy: %w", err)
	}
	return &ClassifyPolicy{query: &q}, nil
}

// Classify evaluates the policy against content and tags, returning a
// category ID and true on a match, or false if the policy declines to
// classify (undefined result) or errors.
func (p *ClassifyPolicy) Classify(ctx context.Context, content string, tags []string) (string, bool) {
	p.mu.RLock()
	q := *p.query
	p.mu.RUnlock()

	input := map[string]interface{}{
		"content": content,
		"tags":    tags,
	}
	results, err := q.Eval(ctx, rego.EvalInput(input))
	if err != nil || len(results) == 0 || len(results[0].Expressions) == 0 {
		return "", false
	}
	category, ok := results[0].Expressions[0].Value.(string)
	if !ok || category == "" {
		return "", false
	}
	return category, true
}
