package service

import (
	"context"
	"encoding/json"
	"io"
	"sync"
)

type EventType string

const (
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Generation phases reported in progress events.
const (
	PhaseClassify       = "classify"
	PhaseBuild          = "build"
	PhaseBuilt          = "built"
	PhaseRemoved        = "removed"
	PhaseCategoryFailed = "category_failed"
)

// Event is one step of a generation run. Complete and error events are terminal.
type Event struct {
	Type         EventType
	Phase        string
	Message      string
	Current      int
	Total        int
	CategoryName string
	Detail       string
	ResultsCount int
}

func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventComplete:
		return json.Marshal(struct {
			Type         EventType `json:"type"`
			ResultsCount int       `json:"resultsCount"`
		}{e.Type, e.ResultsCount})
	case EventError:
		return json.Marshal(struct {
			Type    EventType `json:"type"`
			Message string    `json:"message"`
		}{e.Type, e.Message})
	}
	return json.Marshal(struct {
		Type         EventType `json:"type"`
		Phase        string    `json:"phase"`
		Message      string    `json:"message"`
		Current      int       `json:"current"`
		Total        int       `json:"total"`
		CategoryName string    `json:"categoryName,omitempty"`
		Detail       string    `json:"detail,omitempty"`
	}{e.Type, e.Phase, e.Message, e.Current, e.Total, e.CategoryName, e.Detail})
}

// Stream records the events of one run. Publishing never waits for readers, and a reader that
// attaches late still sees every event from the start.
type Stream struct {
	mu     sync.Mutex
	events []Event
	closed bool
	notify chan struct{}
}

func newStream() *Stream {
	return &Stream{notify: make(chan struct{})}
}

// publish appends e. Anything after the terminal event is dropped.
func (s *Stream) publish(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events = append(s.events, e)
	if e.Terminal() {
		s.closed = true
	}
	close(s.notify)
	s.notify = make(chan struct{})
}

// Events returns a copy of everything published so far.
func (s *Stream) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func (s *Stream) Reader() *StreamReader {
	return &StreamReader{stream: s}
}

type StreamReader struct {
	stream *Stream
	next   int
}

// Next blocks until the next event is available. It returns io.EOF once the terminal event has
// been read, or the context error if ctx ends first.
func (r *StreamReader) Next(ctx context.Context) (Event, error) {
	for {
		s := r.stream
		s.mu.Lock()
		if r.next < len(s.events) {
			e := s.events[r.next]
			r.next++
			s.mu.Unlock()
			return e, nil
		}
		if s.closed {
			s.mu.Unlock()
			return Event{}, io.EOF
		}
		wait := s.notify
		s.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}
