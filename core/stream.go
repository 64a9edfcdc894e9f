package core

import (
	"context"
	"errors"
	"sync"
)

// ErrStreamClosed indicates the stream has already been closed.
var ErrStreamClosed = errors.New("stream closed")

// EventType enumerates stream event types.
type EventType string

const (
	EventTextDelta EventType = "text.delta"
	EventFinish    EventType = "finish"
	EventError     EventType = "error"
)

// StreamEvent is a single event within a backend's answer stream.
type StreamEvent struct {
	Type         EventType `json:"type"`
	TextDelta    string    `json:"text,omitempty"`
	Model        string    `json:"model,omitempty"`
	Backend      string    `json:"backend,omitempty"`
	FinishReason string    `json:"finish_reason,omitempty"`
	Error        error     `json:"-"`
}

// StreamMeta captures final metadata recorded on the finish event.
type StreamMeta struct {
	Model   string
	Backend string
}

// Stream is a streaming answer from a backend. Producers Push events and
// Close or Fail; the consumer ranges over Events and checks Err afterwards.
type Stream struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	events chan StreamEvent
	err    error
	closed bool
	meta   StreamMeta
}

// NewStream constructs a Stream with the provided event buffer size.
func NewStream(ctx context.Context, buffer int) *Stream {
	if buffer <= 0 {
		buffer = 16
	}
	c, cancel := context.WithCancel(ctx)
	return &Stream{
		ctx:    c,
		cancel: cancel,
		events: make(chan StreamEvent, buffer),
	}
}

// Push appends an event to the stream. Safe for concurrent use.
func (s *Stream) Push(event StreamEvent) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return
	}

	if event.Type == EventFinish {
		s.mu.Lock()
		s.meta = StreamMeta{Model: event.Model, Backend: event.Backend}
		s.mu.Unlock()
	}

	select {
	case s.events <- event:
	case <-s.ctx.Done():
	}
}

// Close closes the stream channel and cancels its context.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	s.closed = true
	close(s.events)
	s.cancel()
	return nil
}

// Events returns the read-only event channel.
func (s *Stream) Events() <-chan StreamEvent {
	return s.events
}

// Err returns the terminal error, if any.
func (s *Stream) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Meta returns metadata recorded by the finish event.
func (s *Stream) Meta() StreamMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta
}

// Fail marks the stream as failed and closes it.
func (s *Stream) Fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	alreadyClosed := s.closed
	s.mu.Unlock()

	if err != nil {
		s.Push(StreamEvent{Type: EventError, Error: err})
	}
	if !alreadyClosed {
		_ = s.Close()
	}
}
