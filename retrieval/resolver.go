package retrieval

import (
	"context"
	"log/slog"
	"sort"

	"github.com/wahl-chat/wahl-chat-backend/core"
)

const (
	// DefaultTopK is how many candidates the first-stage search returns.
	DefaultTopK = 20
	// DefaultMinScore filters out weakly related candidates.
	DefaultMinScore = 0.5
	// DefaultMaxDocs caps how many documents reach the answer prompt.
	DefaultMaxDocs = 5
)

// Resolver turns a search query into the evidence list an answer is grounded
// on. With a reranker configured it runs a two-stage pipeline: a broad
// similarity search followed by an LLM reordering of the hits. Reranking is
// best effort; on failure the similarity order stands.
type Resolver struct {
	searcher Searcher
	reranker Reranker
	logger   *slog.Logger

	topK     int
	minScore float64
	maxDocs  int
}

// ResolverOption customises the resolver.
type ResolverOption func(*Resolver)

// WithReranker enables the second reranking stage.
func WithReranker(reranker Reranker) ResolverOption {
	return func(r *Resolver) { r.reranker = reranker }
}

// WithResolverLogger sets the logger.
func WithResolverLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = logger }
}

// WithLimits overrides the search depth, score floor and result cap.
func WithLimits(topK int, minScore float64, maxDocs int) ResolverOption {
	return func(r *Resolver) {
		r.topK = topK
		r.minScore = minScore
		r.maxDocs = maxDocs
	}
}

// NewResolver constructs a resolver over the given searcher.
func NewResolver(searcher Searcher, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		searcher: searcher,
		logger:   slog.Default(),
		topK:     DefaultTopK,
		minScore: DefaultMinScore,
		maxDocs:  DefaultMaxDocs,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve fetches evidence for the query. An empty result is not an error:
// the caller renders the no-evidence marker instead.
func (r *Resolver) Resolve(ctx context.Context, query, namespace, history, userMessage string) ([]core.EvidenceItem, error) {
	docs, err := r.searcher.Search(ctx, query, namespace, r.topK, r.minScore)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	// Own the slice; callers reorder and annotate the result.
	docs = append([]core.EvidenceItem(nil), docs...)
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].Score > docs[j].Score })

	// Too few candidates to be worth a model round trip.
	if r.reranker == nil || len(docs) < r.maxDocs {
		return clip(docs, r.maxDocs), nil
	}

	indices, err := r.reranker.Rerank(ctx, history, userMessage, docs)
	if err != nil {
		r.logger.Warn("reranking failed, keeping similarity order",
			"namespace", namespace, "error", err)
		return clip(docs, r.maxDocs), nil
	}

	reordered := make([]core.EvidenceItem, 0, len(indices))
	for _, idx := range indices {
		reordered = append(reordered, docs[idx])
	}
	return clip(reordered, r.maxDocs), nil
}

func clip(docs []core.EvidenceItem, max int) []core.EvidenceItem {
	if len(docs) > max {
		return docs[:max]
	}
	return docs
}
