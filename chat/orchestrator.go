package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wahl-chat/wahl-chat-backend/backend"
	"github.com/wahl-chat/wahl-chat-backend/cache"
	"github.com/wahl-chat/wahl-chat-backend/core"
	"github.com/wahl-chat/wahl-chat-backend/obs"
	"github.com/wahl-chat/wahl-chat-backend/prompts"
	"github.com/wahl-chat/wahl-chat-backend/retrieval"
)

// Settings bound one turn's resource use.
type Settings struct {
	// TurnTimeout caps the whole provider fan-out for one user message.
	TurnTimeout time.Duration
	// ComparisonTimeout caps the evidence-gathering pre-pass in comparison
	// mode, so a stalled retrieval fails before generation starts.
	ComparisonTimeout time.Duration
	// MaxChunkLen re-chunks streamed text into at most this many runes.
	MaxChunkLen int
	// ChunkDelay paces consecutive sub-chunks of one model delta.
	ChunkDelay time.Duration
	// MaxAutoParties collapses a first-turn auto-selection larger than this
	// to the neutral assistant.
	MaxAutoParties int
	// CachedAnswerLimit is the per-key entry cap for answer reuse.
	CachedAnswerLimit int
}

// DefaultSettings returns the production defaults.
func DefaultSettings() Settings {
	return Settings{
		TurnTimeout:       40 * time.Second,
		ComparisonTimeout: 25 * time.Second,
		MaxChunkLen:       10,
		ChunkDelay:        25 * time.Millisecond,
		MaxAutoParties:    7,
		CachedAnswerLimit: 1,
	}
}

// Orchestrator drives conversation turns. It owns the session registry and
// wires classification, retrieval, generation and caching together.
type Orchestrator struct {
	directory   Directory
	router      *backend.Router
	chatPool    *backend.Pool
	utilityPool *backend.Pool
	resolver    *retrieval.Resolver
	store       cache.Store
	picker      *cache.Picker
	registry    *prompts.Registry
	sessions    *Registry
	logger      *slog.Logger
	settings    Settings
}

// OrchestratorOption customises the orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithSettings overrides the default limits.
func WithSettings(settings Settings) OrchestratorOption {
	return func(o *Orchestrator) { o.settings = settings }
}

// WithCacheStore enables answer caching.
func WithCacheStore(store cache.Store) OrchestratorOption {
	return func(o *Orchestrator) { o.store = store }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = logger }
}

// NewOrchestrator wires a turn pipeline.
func NewOrchestrator(
	directory Directory,
	router *backend.Router,
	chatPool, utilityPool *backend.Pool,
	resolver *retrieval.Resolver,
	registry *prompts.Registry,
	opts ...OrchestratorOption,
) *Orchestrator {
	o := &Orchestrator{
		directory:   directory,
		router:      router,
		chatPool:    chatPool,
		utilityPool: utilityPool,
		resolver:    resolver,
		registry:    registry,
		sessions:    NewRegistry(),
		logger:      slog.Default(),
		settings:    DefaultSettings(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.picker = cache.NewPicker(o.settings.CachedAnswerLimit)
	return o
}

// Sessions exposes the registry so the transport can drop sessions on
// disconnect.
func (o *Orchestrator) Sessions() *Registry { return o.sessions }

// InitSession registers the session and acknowledges it.
func (o *Orchestrator) InitSession(ctx context.Context, emitter Emitter, req InitSessionRequest) error {
	if err := req.Validate(); err != nil {
		return emitter.Emit(EventSessionInitialized, SessionInitializedPayload{
			SessionID: req.SessionID,
			Status:    core.Failed(err.Error()),
		})
	}
	o.sessions.Create(req)
	o.logger.Info("session initialized", "session_id", req.SessionID, "cacheable", req.Cacheable)
	return emitter.Emit(EventSessionInitialized, SessionInitializedPayload{
		SessionID: req.SessionID,
		Status:    core.OK(),
	})
}

// HandleUserMessage runs one full turn: classification, provider fan-out,
// title refresh and the terminal turn event. Provider failures are isolated;
// only turn-scoped errors (validation, classification, timeout) end the turn
// early.
func (o *Orchestrator) HandleUserMessage(ctx context.Context, emitter Emitter, req UserMessageRequest) error {
	ctx, recorder := obs.StartRequest(ctx, "chat.HandleUserMessage",
		attribute.String("chat.session_id", req.SessionID),
	)
	var turnErr error
	defer func() { recorder.End(turnErr) }()

	if err := req.Validate(); err != nil {
		turnErr = err
		return emitter.Emit(EventTurnComplete, TurnCompletePayload{
			SessionID: req.SessionID,
			Status:    core.Failed(err.Error()),
		})
	}
	session, ok := o.sessions.Get(req.SessionID)
	if !ok {
		turnErr = core.NewError(core.ErrValidation, "session has not been started")
		return emitter.Emit(EventTurnComplete, TurnCompletePayload{
			SessionID: req.SessionID,
			Status:    core.Failed("It seems like the chat session has not been started"),
		})
	}

	session.AppendUserIfNew(req.Text)
	history := session.History()
	firstTurn := len(history) == 1
	if !firstTurn && !contains(session.QuickReplies(), req.Text) {
		// Off-script replies make the conversation unique; stop caching.
		session.MarkUncacheable()
	}

	allParties := o.directory.Parties()
	preSelected := partiesByID(allParties, req.TargetProviders)
	historyStr := core.HistoryString(history[:len(history)-1], allParties)

	result, err := o.classifyMessage(ctx, req.Text, historyStr, preSelected)
	if err != nil {
		turnErr = err
		o.logger.Error("classification failed", "session_id", session.ID, "error", err)
		return o.emitClassificationFailure(emitter, session, err)
	}

	partyIDs := result.PartyIDs
	if len(partyIDs) == 0 {
		partyIDs = []string{core.NeutralParty.ID}
	} else if firstTurn && len(partyIDs) > o.settings.MaxAutoParties {
		// Too broad to auto-select; the neutral assistant asks the user to
		// narrow it down.
		partyIDs = []string{core.NeutralParty.ID}
	}
	responding := o.resolveParties(partyIDs)
	comparing := result.Comparing && len(responding) > 1

	announced := partyIDs
	if comparing {
		announced = []string{core.NeutralParty.ID}
	}
	if err := emitter.Emit(EventRespondingProviders, RespondingProvidersPayload{
		SessionID:   session.ID,
		ProviderIDs: announced,
	}); err != nil {
		turnErr = err
		return err
	}

	turnCtx, cancel := context.WithTimeout(ctx, o.settings.TurnTimeout)
	defer cancel()

	var tasks []*providerTask
	if comparing {
		session.MarkUncacheable()
		evidence, queries, err := o.gatherComparisonEvidence(turnCtx, responding, historyStr, result.Question)
		if err != nil {
			turnErr = err
			o.logger.Error("comparison evidence gathering failed", "session_id", session.ID, "error", err)
			return emitter.Emit(EventTurnComplete, TurnCompletePayload{
				SessionID: session.ID,
				Status:    core.Failed("Timeout while fetching the party documents"),
			})
		}
		tasks = append(tasks, &providerTask{
			orchestrator:     o,
			session:          session,
			party:            core.NeutralParty,
			question:         req.Text,
			historyStr:       historyStr,
			premium:          req.PremiumEligible,
			comparing:        true,
			comparedParties:  responding,
			evidenceByParty:  evidence,
			retrievalQueries: queries,
		})
	} else {
		for _, party := range responding {
			proposed := o.isProposedQuestion(party.ID, req.Text)
			if firstTurn && !proposed {
				session.MarkUncacheable()
			}
			tasks = append(tasks, &providerTask{
				orchestrator: o,
				session:      session,
				party:        party,
				question:     result.Question,
				historyStr:   historyStr,
				premium:      req.PremiumEligible,
				proposed:     proposed,
			})
		}
	}

	if !o.runTasks(turnCtx, emitter, tasks) {
		turnErr = core.NewError(core.ErrTimeout, "turn deadline exceeded")
		o.logger.Error("turn timed out", "session_id", session.ID, "parties", len(tasks))
		return emitter.Emit(EventTurnComplete, TurnCompletePayload{
			SessionID: session.ID,
			Status:    core.Failed("Timeout while fetching party responses"),
		})
	}

	o.finalizeTurn(ctx, emitter, session, preSelected, partyIDs)
	return nil
}

// runTasks fans the provider tasks out and waits for all of them or the turn
// deadline. Reports whether every task finished in time.
func (o *Orchestrator) runTasks(ctx context.Context, emitter Emitter, tasks []*providerTask) bool {
	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		go func(task *providerTask) {
			defer wg.Done()
			task.run(ctx, emitter)
		}(task)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		// Tasks see the cancelled context and wind down on their own.
		return false
	}
}

// gatherComparisonEvidence resolves retrieval for every compared party
// concurrently under the shorter comparison deadline. A single mutex guards
// the shared accumulators.
func (o *Orchestrator) gatherComparisonEvidence(ctx context.Context, parties []core.Party, historyStr, question string) (map[string][]core.EvidenceItem, []string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.settings.ComparisonTimeout)
	defer cancel()

	var (
		mu       sync.Mutex
		evidence = map[string][]core.EvidenceItem{}
		queries  []string
		wg       sync.WaitGroup
	)
	for _, party := range parties {
		wg.Add(1)
		go func(party core.Party) {
			defer wg.Done()
			query, err := o.rewriteQuery(ctx, party, historyStr, question)
			if err != nil {
				o.logger.Warn("query rewrite failed in comparison pre-pass",
					"party_id", party.ID, "error", err)
				query = question
			}
			docs, err := o.resolver.Resolve(ctx, query, party.ID, historyStr, question)
			if err != nil {
				o.logger.Warn("retrieval failed in comparison pre-pass",
					"party_id", party.ID, "error", err)
				docs = nil
			}
			// Comparison sources carry the owning party so the client can
			// attribute each document.
			for i := range docs {
				docs[i].PartyID = party.ID
			}
			mu.Lock()
			queries = append(queries, query)
			evidence[party.ID] = docs
			mu.Unlock()
		}(party)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return evidence, queries, nil
	case <-ctx.Done():
		return nil, nil, core.WrapError(ctx.Err(), core.ErrTimeout)
	}
}

// finalizeTurn refreshes title and suggested replies (best effort) and emits
// the terminal turn event.
func (o *Orchestrator) finalizeTurn(ctx context.Context, emitter Emitter, session *Session, preSelected []core.Party, respondedIDs []string) {
	allParties := o.directory.Parties()
	inChat := map[string]bool{}
	for _, party := range preSelected {
		inChat[party.ID] = true
	}
	for _, id := range respondedIDs {
		inChat[id] = true
	}
	var partiesInChat []core.Party
	for _, party := range allParties {
		if inChat[party.ID] {
			partiesInChat = append(partiesInChat, party)
		}
	}
	neutralOnly := len(respondedIDs) == 1 && respondedIDs[0] == core.NeutralParty.ID

	fullHistory := core.HistoryString(session.History(), allParties)
	title, replies, err := o.generateTitleAndReplies(ctx, fullHistory, partiesInChat, neutralOnly)
	if err != nil {
		// Losing the title refresh is not worth failing the turn.
		o.logger.Warn("title and reply generation failed", "session_id", session.ID, "error", err)
	} else {
		session.SetTitle(title)
		session.SetQuickReplies(replies)
		if err := emitter.Emit(EventTitleAndSuggestions, TitleAndSuggestionsPayload{
			SessionID:        session.ID,
			Title:            title,
			SuggestedReplies: replies,
		}); err != nil {
			o.logger.Warn("emitting title update failed", "session_id", session.ID, "error", err)
		}
	}

	if err := emitter.Emit(EventTurnComplete, TurnCompletePayload{
		SessionID: session.ID,
		Status:    core.OK(),
	}); err != nil {
		o.logger.Warn("emitting turn completion failed", "session_id", session.ID, "error", err)
	}
}

// emitClassificationFailure degrades the turn to a neutral inability answer.
func (o *Orchestrator) emitClassificationFailure(emitter Emitter, session *Session, err error) error {
	if emitErr := emitter.Emit(EventRespondingProviders, RespondingProvidersPayload{
		SessionID:   session.ID,
		ProviderIDs: []string{core.NeutralParty.ID},
	}); emitErr != nil {
		return emitErr
	}
	if emitErr := emitter.Emit(EventResponseComplete, ResponseCompletePayload{
		SessionID:   session.ID,
		ProviderID:  core.NeutralParty.ID,
		FullContent: answerRefusedMessage,
		Status:      core.OK(),
	}); emitErr != nil {
		return emitErr
	}
	return emitter.Emit(EventTurnComplete, TurnCompletePayload{
		SessionID: session.ID,
		Status:    core.Failed(err.Error()),
	})
}

func (o *Orchestrator) resolveParties(ids []string) []core.Party {
	out := make([]core.Party, 0, len(ids))
	for _, id := range ids {
		if party, ok := o.directory.PartyByID(id); ok {
			out = append(out, party)
		}
	}
	return out
}

func (o *Orchestrator) isProposedQuestion(partyID, text string) bool {
	return contains(o.directory.ProposedQuestions(partyID), text) ||
		contains(o.directory.ProposedQuestions(GroupQuestionsKey), text)
}

func partiesByID(parties []core.Party, ids []string) []core.Party {
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	out := make([]core.Party, 0, len(ids))
	for _, party := range parties {
		if want[party.ID] {
			out = append(out, party)
		}
	}
	return out
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
