package chat

import (
	"sync"

	"github.com/wahl-chat/wahl-chat-backend/backend"
	"github.com/wahl-chat/wahl-chat-backend/core"
)

// Session holds one conversation's mutable state. Only one turn is processed
// at a time per session; the mutex covers reads from concurrent provider
// tasks appending their answers.
type Session struct {
	ID string

	mu           sync.Mutex
	history      []core.Message
	title        string
	sizePref     backend.Size
	cacheable    bool
	quickReplies []string
}

func newSession(req InitSessionRequest) *Session {
	size := backend.SizeSmall
	if req.ResponseSize == "large" {
		size = backend.SizeLarge
	}
	history := make([]core.Message, len(req.PriorHistory))
	copy(history, req.PriorHistory)
	return &Session{
		ID:           req.SessionID,
		history:      history,
		title:        req.Title,
		sizePref:     size,
		cacheable:    req.Cacheable,
		quickReplies: req.LastSuggestedReplies,
	}
}

// AppendUserIfNew appends the user message unless it is content-identical to
// the last history entry. Reports whether the message was appended.
func (s *Session) AppendUserIfNew(content string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.history); n > 0 && s.history[n-1].Content == content {
		return false
	}
	s.history = append(s.history, core.UserMessage(content))
	return true
}

// AppendAssistant records a completed provider answer.
func (s *Session) AppendAssistant(msg core.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, msg)
}

// History returns a copy of the message list.
func (s *Session) History() []core.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Message, len(s.history))
	copy(out, s.history)
	return out
}

// MarkUncacheable permanently disables caching for this session. The flag
// never flips back.
func (s *Session) MarkUncacheable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cacheable = false
}

func (s *Session) Cacheable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cacheable
}

func (s *Session) SizePreference() backend.Size {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sizePref
}

func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

func (s *Session) SetTitle(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.title = title
}

func (s *Session) QuickReplies() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.quickReplies))
	copy(out, s.quickReplies)
	return out
}

func (s *Session) SetQuickReplies(replies []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quickReplies = replies
}

// Registry tracks live sessions by id. Sessions exist from init until the
// owning connection drops them.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry constructs an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: map[string]*Session{}}
}

// Create registers a session, replacing any previous one with the same id.
func (r *Registry) Create(req InitSessionRequest) *Session {
	session := newSession(req)
	r.mu.Lock()
	r.sessions[req.SessionID] = session
	r.mu.Unlock()
	return session
}

// Get looks up a live session.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	return session, ok
}

// Drop removes a session, typically on disconnect.
func (r *Registry) Drop(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}
