// Package chat orchestrates one conversation turn: it classifies the user's
// message onto responding parties, fans out per-party retrieval and
// generation, and streams ordered events back over the delivery channel.
package chat

import (
	"fmt"

	"github.com/wahl-chat/wahl-chat-backend/core"
)

// Outbound event names. The transport forwards these verbatim.
const (
	EventSessionInitialized  = "session_initialized"
	EventRespondingProviders = "responding_providers"
	EventSourcesReady        = "sources_ready"
	EventResponseChunk       = "response_chunk"
	EventResponseComplete    = "response_complete"
	EventTitleAndSuggestions = "title_and_suggestions_ready"
	EventTurnComplete        = "turn_complete"
)

// Emitter pushes one event to the connected client. Implementations must be
// safe for concurrent use; provider tasks emit in parallel.
type Emitter interface {
	Emit(event string, payload any) error
}

type SessionInitializedPayload struct {
	SessionID string      `json:"session_id"`
	Status    core.Status `json:"status"`
}

type RespondingProvidersPayload struct {
	SessionID   string   `json:"session_id"`
	ProviderIDs []string `json:"provider_ids"`
}

type SourcesReadyPayload struct {
	SessionID        string              `json:"session_id"`
	ProviderID       string              `json:"provider_id,omitempty"`
	Evidence         []core.EvidenceItem `json:"evidence_list"`
	RetrievalQueries []string            `json:"retrieval_queries"`
}

type ResponseChunkPayload struct {
	SessionID  string `json:"session_id"`
	ProviderID string `json:"provider_id,omitempty"`
	ChunkIndex int    `json:"chunk_index"`
	Content    string `json:"content"`
	IsEnd      bool   `json:"is_end"`
}

type ResponseCompletePayload struct {
	SessionID   string      `json:"session_id"`
	ProviderID  string      `json:"provider_id,omitempty"`
	FullContent string      `json:"full_content"`
	Status      core.Status `json:"status"`
}

type TitleAndSuggestionsPayload struct {
	SessionID        string   `json:"session_id"`
	Title            string   `json:"title"`
	SuggestedReplies []string `json:"suggested_replies"`
}

type TurnCompletePayload struct {
	SessionID string      `json:"session_id"`
	Status    core.Status `json:"status"`
}

// InitSessionRequest starts or restores a session on this connection.
type InitSessionRequest struct {
	SessionID            string         `json:"session_id"`
	PriorHistory         []core.Message `json:"prior_history,omitempty"`
	Title                string         `json:"title,omitempty"`
	ResponseSize         string         `json:"response_size_preference,omitempty"`
	LastSuggestedReplies []string       `json:"last_suggested_replies,omitempty"`
	Cacheable            bool           `json:"cacheable_flag"`
}

func (r InitSessionRequest) Validate() error {
	if r.SessionID == "" {
		return core.NewError(core.ErrValidation, "session_id is required")
	}
	switch r.ResponseSize {
	case "", "small", "large":
	default:
		return core.NewError(core.ErrValidation, fmt.Sprintf("unknown response size preference %q", r.ResponseSize))
	}
	return nil
}

// UserMessageRequest asks for answers to one user message.
type UserMessageRequest struct {
	SessionID       string   `json:"session_id"`
	Text            string   `json:"text"`
	TargetProviders []string `json:"target_provider_ids,omitempty"`
	PremiumEligible bool     `json:"premium_eligible"`
}

func (r UserMessageRequest) Validate() error {
	if r.SessionID == "" {
		return core.NewError(core.ErrValidation, "session_id is required")
	}
	if r.Text == "" {
		return core.NewError(core.ErrValidation, "text is required")
	}
	return nil
}
