package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"adflow/internal/types"
)

// EventType names a pipeline lifecycle event.
type EventType string

const (
	EventStageStart       EventType = "stage_start"
	EventQuestionsReady   EventType = "questions_ready"
	EventArtifactApproved EventType = "artifact_approved"
	EventArtifactRevision EventType = "artifact_revision"
	EventPipelineComplete EventType = "pipeline_complete"
	EventPipelineError    EventType = "pipeline_error"
	EventStatusChanged    EventType = "status_changed"
)

// Event is one broadcast. Data carries the event-specific fields
// (stage, score, revision, feedback, questions, error, ...).
type Event struct {
	Type      EventType      `json:"type"`
	ProjectID string         `json:"project_id"`
	Status    types.Status   `json:"status,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	At        time.Time      `json:"at"`
}

// Ends reports whether no further events follow for the run that emitted e.
func (e Event) Ends() bool {
	return e.Type == EventPipelineComplete || e.Type == EventPipelineError
}

// Observer receives events. It must not block for long: it runs on the
// pipeline goroutine.
type Observer func(Event)

type subscription struct {
	id uint64
	fn Observer
}

// Emitter broadcasts events to observers synchronously, in registration
// order. A panicking observer is logged and skipped; the rest still run.
type Emitter struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID uint64
	log    *zap.Logger
}

func NewEmitter(log *zap.Logger) *Emitter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Emitter{log: log}
}

// Subscribe registers fn and returns a func that removes it.
func (e *Emitter) Subscribe(fn Observer) (unsubscribe func()) {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.subs = append(e.subs, subscription{id: id, fn: fn})
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			for i, s := range e.subs {
				if s.id == id {
					e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Emit stamps ev and calls every observer once.
func (e *Emitter) Emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	e.mu.RLock()
	subs := make([]subscription, len(e.subs))
	copy(subs, e.subs)
	e.mu.RUnlock()

	for _, s := range subs {
		e.deliver(s, ev)
	}
}

func (e *Emitter) deliver(s subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn("observer panicked",
				zap.Uint64("observer", s.id),
				zap.String("event", string(ev.Type)),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()
	s.fn(ev)
}

// StreamOptions tunes Stream.
type StreamOptions struct {
	// Buffer is the channel capacity. Events are dropped when it is full.
	Buffer int
	// UntilPause also ends the stream at questions_ready.
	UntilPause bool
}

// Closes reports whether a stream with opts ends after ev.
func (opts StreamOptions) Closes(ev Event) bool {
	return ev.Ends() || (opts.UntilPause && ev.Type == EventQuestionsReady)
}

// Stream returns the events of one project as a channel. The channel is
// closed after the run's final event, or when ctx is done.
func (e *Emitter) Stream(ctx context.Context, projectID string, opts StreamOptions) <-chan Event {
	ch, _ := e.Follow(ctx, projectID, opts)
	return ch
}

// Follow is Stream plus a stop func that closes the channel right away.
// Events already buffered stay readable after stop.
func (e *Emitter) Follow(ctx context.Context, projectID string, opts StreamOptions) (<-chan Event, func()) {
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	out := make(chan Event, opts.Buffer)
	done := make(chan struct{})
	var (
		mu     sync.Mutex
		closed bool
	)
	finish := func() {
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			close(out)
			close(done)
		}
	}

	unsubscribe := e.Subscribe(func(ev Event) {
		if ev.ProjectID != projectID {
			return
		}
		mu.Lock()
		if closed {
			mu.Unlock()
			return
		}
		select {
		case out <- ev:
		default:
			e.log.Warn("stream buffer full, event dropped",
				zap.String("project_id", projectID),
				zap.String("event", string(ev.Type)))
		}
		mu.Unlock()
		if opts.Closes(ev) {
			finish()
		}
	})

	go func() {
		select {
		case <-ctx.Done():
			finish()
		case <-done:
		}
		unsubscribe()
	}()
	return out, finish
}
