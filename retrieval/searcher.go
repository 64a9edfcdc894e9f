// Package retrieval finds the evidence snippets an answer is grounded on.
// A Searcher queries a vector store, a Reranker reorders its hits, and the
// Resolver combines both into the context block handed to the answer prompt.
package retrieval

import (
	"context"

	"github.com/wahl-chat/wahl-chat-backend/core"
)

// Searcher performs a similarity search over a document namespace. Results
// come back ordered by descending score with Content and Score populated.
type Searcher interface {
	Search(ctx context.Context, query, namespace string, topK int, minScore float64) ([]core.EvidenceItem, error)
}

// Reranker reorders search hits by usefulness for the given question. The
// returned slice holds indices into docs, most useful first.
type Reranker interface {
	Rerank(ctx context.Context, history, userMessage string, docs []core.EvidenceItem) ([]int, error)
}
