package tracing

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"darkroom/internal/logging"
)

// Status is a span's terminal outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// LogEntry is a timestamped free-form note attached to a span.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// Span is a single timed, taggable unit of traced work.
type Span struct {
	TraceID      string            `json:"trace_id"`
	SpanID       string            `json:"span_id"`
	ParentSpanID string            `json:"parent_span_id,omitempty"`
	Operation    string            `json:"operation"`
	StartTime    time.Time         `json:"start_time"`
	EndTime      time.Time         `json:"end_time"`
	Duration     time.Duration     `json:"duration"`
	Status       Status            `json:"status"`
	Tags         map[string]string `json:"tags,omitempty"`
	Logs         []LogEntry        `json:"logs,omitempty"`

	mu     sync.Mutex
	tracer *Tracer
	ended  bool
}

const defaultCompletedCap = 500

// Tracer creates and collects spans.
type Tracer struct {
	mu           sync.Mutex
	active       map[string]*Span
	completed    []*Span
	completedCap int
	persist      func(*Span) error
	logger       *slog.Logger
	wg           sync.WaitGroup
}

// Option configures optional Tracer behavior.
type Option func(*Tracer)

// WithCompletedCap bounds the completed-span ring buffer.
func WithCompletedCap(n int) Option {
	return func(t *Tracer) {
		if n > 0 {
			t.completedCap = n
		}
	}
}

// WithPersistFunc registers the callback ended spans are handed to.
func WithPersistFunc(fn func(*Span) error) Option {
	return func(t *Tracer) {
		t.persist = fn
	}
}

// NewTracer constructs a tracer.
func NewTracer(logger *slog.Logger, opts ...Option) *Tracer {
	t := &Tracer{
		active:       make(map[string]*Span),
		completedCap: defaultCompletedCap,
		logger:       logging.WithComponent(logger, "tracer"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StartSpan begins a root span under a fresh trace id.
func (t *Tracer) StartSpan(operation string, tags map[string]string) *Span {
	return t.start(operation, uuid.NewString(), "", tags)
}

// StartChild begins a child span sharing the parent's trace id.
func (t *Tracer) StartChild(operation string, parent *Span, tags map[string]string) *Span {
	if parent == nil {
		return t.StartSpan(operation, tags)
	}
	return t.start(operation, parent.TraceID, parent.SpanID, tags)
}

func (t *Tracer) start(operation, traceID, parentSpanID string, tags map[string]string) *Span {
	span := &Span{
		TraceID:      traceID,
		SpanID:       uuid.NewString(),
		ParentSpanID: parentSpanID,
		Operation:    operation,
		StartTime:    time.Now().UTC(),
		Tags:         copyTags(tags),
		tracer:       t,
	}
	t.mu.Lock()
	t.active[span.SpanID] = span
	t.mu.Unlock()
	return span
}

// SetTag adds or replaces a tag on an open span.
func (s *Span) SetTag(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	if s.Tags == nil {
		s.Tags = make(map[string]string)
	}
	s.Tags[key] = value
}

// Log appends a timestamped entry to the span.
func (s *Span) Log(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.Logs = append(s.Logs, LogEntry{Timestamp: time.Now().UTC(), Message: message})
}

// End closes the span exactly once, merging any extra tags, and moves it
// from the active set into the completed ring. Repeated calls are no-ops.
func (s *Span) End(status Status, extraTags map[string]string) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.EndTime = time.Now().UTC()
	s.Duration = s.EndTime.Sub(s.StartTime)
	s.Status = status
	for k, v := range extraTags {
		if s.Tags == nil {
			s.Tags = make(map[string]string)
		}
		s.Tags[k] = v
	}
	tracer := s.tracer
	s.mu.Unlock()

	if tracer != nil {
		tracer.complete(s)
	}
}

func (t *Tracer) complete(span *Span) {
	t.mu.Lock()
	delete(t.active, span.SpanID)
	t.completed = append(t.completed, span)
	if len(t.completed) > t.completedCap {
		t.completed = t.completed[len(t.completed)-t.completedCap:]
	}
	persist := t.persist
	t.mu.Unlock()

	if persist == nil {
		return
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if err := persist(span); err != nil {
			t.logger.Warn("span persistence failed",
				logging.String("operation", span.Operation),
				logging.String("trace_id", span.TraceID),
				logging.Error(err),
			)
		}
	}()
}

// Trace runs fn inside a fresh root span, closing it success on a nil
// return and error (with the message logged on the span) otherwise.
func (t *Tracer) Trace(operation string, tags map[string]string, fn func(*Span) error) error {
	span := t.StartSpan(operation, tags)
	return runTraced(span, fn)
}

// TraceChild runs fn inside a child of parent.
func (t *Tracer) TraceChild(operation string, parent *Span, tags map[string]string, fn func(*Span) error) error {
	span := t.StartChild(operation, parent, tags)
	return runTraced(span, fn)
}

func runTraced(span *Span, fn func(*Span) error) error {
	if err := fn(span); err != nil {
		span.Log(err.Error())
		span.End(StatusError, nil)
		return err
	}
	span.End(StatusSuccess, nil)
	return nil
}

// ActiveCount returns the number of open spans.
func (t *Tracer) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// Completed returns a copy of the completed-span ring, oldest first.
func (t *Tracer) Completed() []*Span {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Span{}, t.completed...)
}

// Wait blocks until in-flight persistence goroutines finish. Test and
// shutdown helper.
func (t *Tracer) Wait() {
	t.wg.Wait()
}

func copyTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}
