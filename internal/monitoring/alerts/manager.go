package alerts

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"darkroom/internal/logging"
)

// Severity ranks an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Snapshot is the health sample rules are evaluated against.
type Snapshot struct {
	Timestamp        time.Time
	DiskFreePercent  float64
	QueueDepth       int
	OldestPendingAge time.Duration
	ProcessedCount   int
	ErrorCount       int
	DeadLetterCount  int
	ActiveWorkers    int
	IdleWorkers      int
}

// ErrorRatePercent returns errors as a percentage of processed files,
// zero when nothing has been processed yet.
func (s Snapshot) ErrorRatePercent() float64 {
	if s.ProcessedCount == 0 {
		return 0
	}
	return float64(s.ErrorCount) / float64(s.ProcessedCount) * 100
}

// Rule describes one alert condition.
type Rule struct {
	ID        string
	Severity  Severity
	Cooldown  time.Duration
	Predicate func(Snapshot) bool
	Message   func(Snapshot) string
}

// Alert is a fired rule instance.
type Alert struct {
	ID        string
	RuleID    string
	Severity  Severity
	Message   string
	Timestamp time.Time
}

const defaultHistoryCap = 200

// Manager evaluates rules and tracks firing history.
type Manager struct {
	mu         sync.Mutex
	rules      []Rule
	lastFired  map[string]time.Time
	history    []Alert
	historyCap int
	onAlert    func(Alert)
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures optional Manager behavior.
type Option func(*Manager)

// WithHistoryCap bounds the in-memory alert history.
func WithHistoryCap(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.historyCap = n
		}
	}
}

// WithAlertFunc registers a callback invoked for every fired alert.
func WithAlertFunc(fn func(Alert)) Option {
	return func(m *Manager) {
		m.onAlert = fn
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager constructs a manager over the given rules.
func NewManager(logger *slog.Logger, rules []Rule, opts ...Option) *Manager {
	m := &Manager{
		rules:      rules,
		lastFired:  make(map[string]time.Time),
		historyCap: defaultHistoryCap,
		logger:     logging.WithComponent(logger, "alerts"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Check evaluates every rule against the snapshot and returns the alerts
// fired this pass. A rule inside its cooldown window is skipped. A
// panicking predicate disables only that rule for the pass.
func (m *Manager) Check(snapshot Snapshot) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var fired []Alert
	for _, rule := range m.rules {
		if last, ok := m.lastFired[rule.ID]; ok && now.Sub(last) < rule.Cooldown {
			continue
		}
		if !m.evaluate(rule, snapshot) {
			continue
		}
		alert := Alert{
			ID:        uuid.NewString(),
			RuleID:    rule.ID,
			Severity:  rule.Severity,
			Message:   rule.Message(snapshot),
			Timestamp: now,
		}
		m.lastFired[rule.ID] = now
		m.history = append(m.history, alert)
		if len(m.history) > m.historyCap {
			m.history = m.history[len(m.history)-m.historyCap:]
		}
		fired = append(fired, alert)
		m.logger.Warn("alert fired",
			logging.String("rule", alert.RuleID),
			logging.String("severity", string(alert.Severity)),
			logging.String("message", alert.Message),
		)
		if m.onAlert != nil {
			m.onAlert(alert)
		}
	}
	return fired
}

func (m *Manager) evaluate(rule Rule, snapshot Snapshot) (result bool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("alert predicate panicked",
				logging.String("rule", rule.ID),
				logging.Any("panic", r),
			)
			result = false
		}
	}()
	return rule.Predicate(snapshot)
}

// History returns a copy of the fired-alert history, oldest first.
func (m *Manager) History() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Alert{}, m.history...)
}

// Thresholds carries the tunable limits for the default rule set.
type Thresholds struct {
	DiskCriticalPercent float64
	DiskLowPercent      float64
	StuckQueueAge       time.Duration
	ErrorRatePercent    float64
	DeadLetterMax       int
	StarvationBacklog   int
}

// DefaultRules builds the standard pipeline health rules.
func DefaultRules(t Thresholds) []Rule {
	return []Rule{
		{
			ID:       "disk_space_critical",
			Severity: SeverityCritical,
			Cooldown: 5 * time.Minute,
			Predicate: func(s Snapshot) bool {
				return s.DiskFreePercent < t.DiskCriticalPercent
			},
			Message: func(s Snapshot) string {
				return fmt.Sprintf("archive disk critically low: %.1f%% free", s.DiskFreePercent)
			},
		},
		{
			ID:       "disk_space_low",
			Severity: SeverityWarning,
			Cooldown: 15 * time.Minute,
			Predicate: func(s Snapshot) bool {
				return s.DiskFreePercent >= t.DiskCriticalPercent && s.DiskFreePercent < t.DiskLowPercent
			},
			Message: func(s Snapshot) string {
				return fmt.Sprintf("archive disk low: %.1f%% free", s.DiskFreePercent)
			},
		},
		{
			ID:       "stuck_queue",
			Severity: SeverityWarning,
			Cooldown: 30 * time.Minute,
			Predicate: func(s Snapshot) bool {
				return s.QueueDepth > 0 && s.OldestPendingAge > t.StuckQueueAge
			},
			Message: func(s Snapshot) string {
				return fmt.Sprintf("oldest pending file waiting %s with %d queued", s.OldestPendingAge.Round(time.Minute), s.QueueDepth)
			},
		},
		{
			ID:       "high_error_rate",
			Severity: SeverityCritical,
			Cooldown: 10 * time.Minute,
			Predicate: func(s Snapshot) bool {
				return s.ProcessedCount >= 10 && s.ErrorRatePercent() > t.ErrorRatePercent
			},
			Message: func(s Snapshot) string {
				return fmt.Sprintf("error rate %.1f%% over %d processed files", s.ErrorRatePercent(), s.ProcessedCount)
			},
		},
		{
			ID:       "dead_letter_growth",
			Severity: SeverityWarning,
			Cooldown: 30 * time.Minute,
			Predicate: func(s Snapshot) bool {
				return s.DeadLetterCount > t.DeadLetterMax
			},
			Message: func(s Snapshot) string {
				return fmt.Sprintf("%d files parked after repeated failures", s.DeadLetterCount)
			},
		},
		{
			ID:       "worker_starvation",
			Severity: SeverityWarning,
			Cooldown: 10 * time.Minute,
			Predicate: func(s Snapshot) bool {
				return s.IdleWorkers == 0 && s.ActiveWorkers > 0 && s.QueueDepth > t.StarvationBacklog
			},
			Message: func(s Snapshot) string {
				return fmt.Sprintf("all workers busy with backlog of %d files", s.QueueDepth)
			},
		},
	}
}
