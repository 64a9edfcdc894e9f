package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/wahl-chat/wahl-chat-backend/cache"
	"github.com/wahl-chat/wahl-chat-backend/core"
	"github.com/wahl-chat/wahl-chat-backend/prompts"
)

// Degraded per-provider answers. The wording is user-facing and fixed.
const (
	answerRefusedMessage = "Diese Frage kann ich leider nicht beantworten."
	answerFailedMessage  = "Es tut mir Leid, leider ist ein Fehler aufgetreten. Bitte versuche es später erneut."
)

// providerTask is one party's pipeline for one user message: cache check,
// retrieval, streamed generation, history update. Tasks run concurrently and
// fail independently of their siblings.
type providerTask struct {
	orchestrator *Orchestrator
	session      *Session
	party        core.Party
	question     string
	historyStr   string
	premium      bool
	proposed     bool

	comparing        bool
	comparedParties  []core.Party
	evidenceByParty  map[string][]core.EvidenceItem
	retrievalQueries []string
}

func (t *providerTask) run(ctx context.Context, emitter Emitter) {
	defer func() {
		if r := recover(); r != nil {
			t.orchestrator.logger.Error("provider task panicked",
				"session_id", t.session.ID, "party_id", t.party.ID, "panic", r)
			if ctx.Err() == nil {
				t.emitFailure(emitter, fmt.Errorf("provider task panicked: %v", r))
			}
		}
	}()

	if err := t.execute(ctx, emitter); err != nil {
		if ctx.Err() != nil {
			// The turn deadline already fired and turn_complete reported the
			// error; an abandoned task stays silent.
			t.orchestrator.logger.Warn("provider task abandoned",
				"session_id", t.session.ID, "party_id", t.party.ID, "error", err)
			return
		}
		t.orchestrator.logger.Error("provider task failed",
			"session_id", t.session.ID, "party_id", t.party.ID, "error", err)
		t.emitFailure(emitter, err)
	}
}

func (t *providerTask) execute(ctx context.Context, emitter Emitter) error {
	o := t.orchestrator

	var cacheKey, cacheHistory string
	if !t.comparing && o.store != nil && (t.proposed || t.session.Cacheable()) {
		cacheHistory = core.HistoryString(t.session.History(), o.directory.Parties())
		if t.proposed {
			cacheKey = t.question
		} else {
			cacheKey = cache.Fingerprint(cacheHistory)
		}
		entries, err := o.store.Get(ctx, t.party.ID, cacheKey)
		if err != nil {
			o.logger.Warn("cache lookup failed", "party_id", t.party.ID, "error", err)
		} else if chosen := o.picker.Choose(entries); chosen != nil {
			o.logger.Info("replaying cached answer",
				"session_id", t.session.ID, "party_id", t.party.ID, "cache_key", cacheKey)
			return t.replayCached(ctx, emitter, chosen)
		}
	}

	var (
		docs       []core.EvidenceItem
		queries    []string
		ragContext string
	)
	if t.comparing {
		queries = t.retrievalQueries
		for _, party := range t.comparedParties {
			docs = append(docs, t.evidenceByParty[party.ID]...)
		}
		ragContext = core.ComparisonEvidenceContext(t.evidenceByParty, t.comparedParties)
	} else {
		query, err := o.rewriteQuery(ctx, t.party, t.historyStr, t.question)
		if err != nil {
			return err
		}
		docs, err = o.resolver.Resolve(ctx, query, t.party.ID, t.historyStr, t.question)
		if err != nil {
			return err
		}
		queries = []string{query}
		ragContext = core.EvidenceContext(docs)
	}

	if err := emitter.Emit(EventSourcesReady, SourcesReadyPayload{
		SessionID:        t.session.ID,
		ProviderID:       t.party.ID,
		Evidence:         docs,
		RetrievalQueries: queries,
	}); err != nil {
		return err
	}

	messages, err := t.buildMessages(ragContext)
	if err != nil {
		return err
	}
	stream, err := o.router.StreamText(ctx, o.chatPool, messages, t.session.SizePreference(), t.premium)
	if err != nil {
		return err
	}

	var full string
	chunkIndex := 0
	for event := range stream.Events() {
		if event.Type != core.EventTextDelta || event.TextDelta == "" {
			continue
		}
		full += event.TextDelta
		chunkIndex, err = t.emitChunks(ctx, emitter, event.TextDelta, chunkIndex)
		if err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil {
		return err
	}

	if err := emitter.Emit(EventResponseChunk, ResponseChunkPayload{
		SessionID:  t.session.ID,
		ProviderID: t.party.ID,
		ChunkIndex: chunkIndex,
		Content:    "",
		IsEnd:      true,
	}); err != nil {
		return err
	}

	full = core.SanitizeReferences(full)
	t.session.AppendAssistant(core.Message{
		Role:       core.RoleAssistant,
		Content:    full,
		PartyID:    t.party.ID,
		Sources:    docs,
		RAGQueries: queries,
	})

	if err := emitter.Emit(EventResponseComplete, ResponseCompletePayload{
		SessionID:   t.session.ID,
		ProviderID:  t.party.ID,
		FullContent: full,
		Status:      core.OK(),
	}); err != nil {
		return err
	}

	if cacheKey != "" {
		history := t.session.History()
		answer := cache.CachedAnswer{
			Content:          full,
			Sources:          docs,
			RAGQueries:       queries,
			History:          cacheHistory,
			CreatedAt:        time.Now(),
			Depth:            len(history),
			UserMessageDepth: core.CountUserMessages(history),
		}
		if err := o.store.Put(ctx, t.party.ID, cacheKey, answer); err != nil {
			o.logger.Warn("cache write failed", "party_id", t.party.ID, "error", err)
		}
	}
	return nil
}

// replayCached streams a stored answer with the same chunk contract as a
// fresh generation.
func (t *providerTask) replayCached(ctx context.Context, emitter Emitter, answer *cache.CachedAnswer) error {
	if err := emitter.Emit(EventSourcesReady, SourcesReadyPayload{
		SessionID:        t.session.ID,
		ProviderID:       t.party.ID,
		Evidence:         answer.Sources,
		RetrievalQueries: answer.RAGQueries,
	}); err != nil {
		return err
	}

	// Brief pause so the replay paces like a fresh generation.
	if d := t.orchestrator.settings.ChunkDelay; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	chunkIndex, err := t.emitChunks(ctx, emitter, answer.Content, 0)
	if err != nil {
		return err
	}
	if err := emitter.Emit(EventResponseChunk, ResponseChunkPayload{
		SessionID:  t.session.ID,
		ProviderID: t.party.ID,
		ChunkIndex: chunkIndex,
		Content:    "",
		IsEnd:      true,
	}); err != nil {
		return err
	}

	t.session.AppendAssistant(core.Message{
		Role:       core.RoleAssistant,
		Content:    answer.Content,
		PartyID:    t.party.ID,
		Sources:    answer.Sources,
		RAGQueries: answer.RAGQueries,
	})
	return emitter.Emit(EventResponseComplete, ResponseCompletePayload{
		SessionID:   t.session.ID,
		ProviderID:  t.party.ID,
		FullContent: answer.Content,
		Status:      core.OK(),
	})
}

// emitChunks splits text into rune-bounded chunks and emits them with a
// short delay between consecutive chunks, keeping the client-side typing
// rhythm steady. Returns the next chunk index.
func (t *providerTask) emitChunks(ctx context.Context, emitter Emitter, text string, chunkIndex int) (int, error) {
	runes := []rune(text)
	maxLen := t.orchestrator.settings.MaxChunkLen
	for i := 0; i < len(runes); i += maxLen {
		if i > 0 && t.orchestrator.settings.ChunkDelay > 0 {
			select {
			case <-time.After(t.orchestrator.settings.ChunkDelay):
			case <-ctx.Done():
				return chunkIndex, ctx.Err()
			}
		}
		end := i + maxLen
		if end > len(runes) {
			end = len(runes)
		}
		if err := emitter.Emit(EventResponseChunk, ResponseChunkPayload{
			SessionID:  t.session.ID,
			ProviderID: t.party.ID,
			ChunkIndex: chunkIndex,
			Content:    string(runes[i:end]),
			IsEnd:      false,
		}); err != nil {
			return chunkIndex, err
		}
		chunkIndex++
	}
	return chunkIndex, nil
}

func (t *providerTask) buildMessages(ragContext string) ([]core.Message, error) {
	o := t.orchestrator
	now := time.Now()
	date := now.Format("02.01.2006")
	clock := now.Format("15:04")

	var (
		system string
		err    error
	)
	switch {
	case t.comparing:
		system, err = o.registry.Render(prompts.ComparisonAnswer, "", map[string]any{
			"PartiesBeingCompared": partyNames(t.comparedParties),
			"Date":                 date,
			"Time":                 clock,
			"RAGContext":           ragContext,
		})
	case t.party.IsNeutral():
		system, err = o.registry.Render(prompts.NeutralAnswer, "", map[string]any{
			"AllPartiesList": partyPromptList(o.directory.Parties()),
			"Date":           date,
			"Time":           clock,
			"RAGContext":     ragContext,
		})
	default:
		system, err = o.registry.Render(prompts.PartyAnswer, "", map[string]any{
			"PartyName":        t.party.Name,
			"PartyLongName":    t.party.LongName,
			"PartyDescription": t.party.Description,
			"PartyCandidate":   t.party.Candidate,
			"PartyURL":         t.party.WebsiteURL,
			"Date":             date,
			"Time":             clock,
			"RAGContext":       ragContext,
		})
	}
	if err != nil {
		return nil, err
	}

	user, err := o.registry.Render(prompts.AnswerUser, "", map[string]any{
		"ConversationHistory": t.historyStr,
		"LastUserMessage":     t.question,
	})
	if err != nil {
		return nil, err
	}
	return []core.Message{core.SystemMessage(system), core.UserMessage(user)}, nil
}

// emitFailure reports a degraded completion for this provider only.
func (t *providerTask) emitFailure(emitter Emitter, err error) {
	message := answerFailedMessage
	if core.IsContentPolicy(err) {
		message = answerRefusedMessage
	}
	if emitErr := emitter.Emit(EventResponseComplete, ResponseCompletePayload{
		SessionID:   t.session.ID,
		ProviderID:  t.party.ID,
		FullContent: message,
		Status:      core.Failed(err.Error()),
	}); emitErr != nil {
		t.orchestrator.logger.Warn("emitting provider failure failed",
			"session_id", t.session.ID, "party_id", t.party.ID, "error", emitErr)
	}
}
