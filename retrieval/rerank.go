package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/wahl-chat/wahl-chat-backend/backend"
	"github.com/wahl-chat/wahl-chat-backend/core"
	"github.com/wahl-chat/wahl-chat-backend/prompts"
)

// LLMReranker asks a small utility model to reorder search hits by their
// usefulness for answering the user's question.
type LLMReranker struct {
	router   *backend.Router
	pool     *backend.Pool
	registry *prompts.Registry
}

// NewLLMReranker constructs a reranker backed by the utility pool.
func NewLLMReranker(router *backend.Router, pool *backend.Pool, registry *prompts.Registry) *LLMReranker {
	return &LLMReranker{router: router, pool: pool, registry: registry}
}

type rerankingOutput struct {
	RerankedDocIndices []int `json:"reranked_doc_indices"`
}

func (r *LLMReranker) Rerank(ctx context.Context, history, userMessage string, docs []core.EvidenceItem) ([]int, error) {
	system, err := r.registry.Render(prompts.Rerank, "", map[string]any{
		"Sources": numberedSources(docs),
	})
	if err != nil {
		return nil, err
	}
	user, err := r.registry.Render(prompts.RerankUser, "", map[string]any{
		"ConversationHistory": history,
		"UserMessage":         userMessage,
	})
	if err != nil {
		return nil, err
	}

	var out rerankingOutput
	messages := []core.Message{core.SystemMessage(system), core.UserMessage(user)}
	if err := r.router.GenerateObject(ctx, r.pool, messages, &out); err != nil {
		return nil, err
	}

	indices := make([]int, 0, len(out.RerankedDocIndices))
	for _, idx := range out.RerankedDocIndices {
		if idx >= 0 && idx < len(docs) {
			indices = append(indices, idx)
		}
	}
	if len(indices) == 0 {
		return nil, fmt.Errorf("reranking returned no usable indices")
	}
	return indices, nil
}

func numberedSources(docs []core.EvidenceItem) string {
	var b strings.Builder
	for i, doc := range docs {
		fmt.Fprintf(&b, "[%d] %s\n", i, doc.Content)
	}
	return b.String()
}
