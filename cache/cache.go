package cache

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/wahl-chat/wahl-chat-backend/core"
)

// CachedAnswer is one stored answer together with the evidence it cited.
type CachedAnswer struct {
	Content          string              `json:"content"`
	Sources          []core.EvidenceItem `json:"sources,omitempty"`
	RAGQueries       []string            `json:"rag_query,omitempty"`
	History          string              `json:"cached_conversation_history"`
	CreatedAt        time.Time           `json:"created_at"`
	Depth            int                 `json:"depth"`
	UserMessageDepth int                 `json:"user_message_depth"`
}

// Store persists cached answers per party and history fingerprint.
type Store interface {
	Get(ctx context.Context, partyID, key string) ([]CachedAnswer, error)
	Put(ctx context.Context, partyID, key string, answer CachedAnswer) error
}

// Picker decides between reusing a cached answer and generating a fresh one.
// Below Limit stored entries a fresh generation stays in the draw, so early
// conversations keep adding variety; at the cap an entry is always reused.
type Picker struct {
	Limit int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewPicker constructs a picker with the given entry cap per key.
func NewPicker(limit int) *Picker {
	if limit < 1 {
		limit = 1
	}
	return &Picker{
		Limit: limit,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Choose returns the cached answer to replay, or nil to generate fresh.
func (p *Picker) Choose(entries []CachedAnswer) *CachedAnswer {
	if len(entries) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	// Below the cap, "generate fresh" competes as one extra slot.
	n := len(entries)
	if n < p.Limit {
		n++
	}
	idx := p.rng.Intn(n)
	if idx >= len(entries) {
		return nil
	}
	return &entries[idx]
}
