package monitoring

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"darkroom/internal/monitoring/alerts"
	"darkroom/internal/monitoring/metrics"
	"darkroom/internal/monitoring/tracing"
)

// Store persists observability data. It shares the session database
// connection so a single SQLite file backs the whole daemon.
type Store struct {
	db *sql.DB
}

const observabilitySchema = `
CREATE TABLE IF NOT EXISTS metric_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    kind TEXT NOT NULL,
    value REAL NOT NULL,
    tags_json TEXT,
    recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_metric_events_recorded_at ON metric_events(recorded_at);

CREATE TABLE IF NOT EXISTS trace_spans (
    span_id TEXT PRIMARY KEY,
    trace_id TEXT NOT NULL,
    parent_span_id TEXT,
    operation TEXT NOT NULL,
    status TEXT NOT NULL,
    start_time TEXT NOT NULL,
    end_time TEXT NOT NULL,
    duration_ms REAL NOT NULL,
    tags_json TEXT,
    logs_json TEXT
);
CREATE INDEX IF NOT EXISTS idx_trace_spans_trace_id ON trace_spans(trace_id);
CREATE INDEX IF NOT EXISTS idx_trace_spans_end_time ON trace_spans(end_time);

CREATE TABLE IF NOT EXISTS alert_history (
    id TEXT PRIMARY KEY,
    rule_id TEXT NOT NULL,
    severity TEXT NOT NULL,
    message TEXT NOT NULL,
    fired_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alert_history_fired_at ON alert_history(fired_at);
`

// NewStore applies the observability schema on the shared connection.
func NewStore(ctx context.Context, db *sql.DB) (*Store, error) {
	if _, err := db.ExecContext(ctx, observabilitySchema); err != nil {
		return nil, fmt.Errorf("apply observability schema: %w", err)
	}
	return &Store{db: db}, nil
}

// SaveMetrics writes a flushed event batch in one transaction.
func (s *Store) SaveMetrics(ctx context.Context, events []metrics.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin metrics tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO metric_events (name, kind, value, tags_json, recorded_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare metric insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, event := range events {
		tags, err := marshalJSON(event.Tags)
		if err != nil {
			return fmt.Errorf("encode metric tags: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			event.Name, string(event.Kind), event.Value, tags,
			event.Timestamp.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("insert metric event: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit metrics tx: %w", err)
	}
	return nil
}

// SaveSpan writes one completed span.
func (s *Store) SaveSpan(ctx context.Context, span *tracing.Span) error {
	tags, err := marshalJSON(span.Tags)
	if err != nil {
		return fmt.Errorf("encode span tags: %w", err)
	}
	logs, err := marshalJSON(span.Logs)
	if err != nil {
		return fmt.Errorf("encode span logs: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO trace_spans
		    (span_id, trace_id, parent_span_id, operation, status, start_time, end_time, duration_ms, tags_json, logs_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		span.SpanID, span.TraceID, nullableString(span.ParentSpanID),
		span.Operation, string(span.Status),
		span.StartTime.UTC().Format(time.RFC3339Nano),
		span.EndTime.UTC().Format(time.RFC3339Nano),
		float64(span.Duration)/float64(time.Millisecond),
		tags, logs,
	)
	if err != nil {
		return fmt.Errorf("insert span: %w", err)
	}
	return nil
}

// SaveAlert writes one fired alert.
func (s *Store) SaveAlert(ctx context.Context, alert alerts.Alert) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO alert_history (id, rule_id, severity, message, fired_at) VALUES (?, ?, ?, ?, ?)`,
		alert.ID, alert.RuleID, string(alert.Severity), alert.Message,
		alert.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// Retention holds per-table expiry windows.
type Retention struct {
	Metrics time.Duration
	Traces  time.Duration
	Alerts  time.Duration
}

// CleanupExpired deletes rows older than their retention window and
// returns the total rows removed.
func (s *Store) CleanupExpired(ctx context.Context, retention Retention, now time.Time) (int64, error) {
	var total int64
	targets := []struct {
		query  string
		maxAge time.Duration
	}{
		{"DELETE FROM metric_events WHERE recorded_at < ?", retention.Metrics},
		{"DELETE FROM trace_spans WHERE end_time < ?", retention.Traces},
		{"DELETE FROM alert_history WHERE fired_at < ?", retention.Alerts},
	}
	for _, target := range targets {
		if target.maxAge <= 0 {
			continue
		}
		cutoff := now.UTC().Add(-target.maxAge).Format(time.RFC3339Nano)
		res, err := s.db.ExecContext(ctx, target.query, cutoff)
		if err != nil {
			return total, fmt.Errorf("retention cleanup: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}
	return total, nil
}

// CountMetrics returns the stored metric event count. Test helper and
// status reporting.
func (s *Store) CountMetrics(ctx context.Context) (int, error) {
	return s.countRows(ctx, "metric_events")
}

// CountSpans returns the stored span count.
func (s *Store) CountSpans(ctx context.Context) (int, error) {
	return s.countRows(ctx, "trace_spans")
}

// CountAlerts returns the stored alert count.
func (s *Store) CountAlerts(ctx context.Context) (int, error) {
	return s.countRows(ctx, "alert_history")
}

// RecentAlerts returns up to limit alerts, newest first.
func (s *Store) RecentAlerts(ctx context.Context, limit int) ([]alerts.Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, rule_id, severity, message, fired_at FROM alert_history ORDER BY fired_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []alerts.Alert
	for rows.Next() {
		var alert alerts.Alert
		var severity, firedAt string
		if err := rows.Scan(&alert.ID, &alert.RuleID, &severity, &alert.Message, &firedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alert.Severity = alerts.Severity(severity)
		if ts, parseErr := time.Parse(time.RFC3339Nano, firedAt); parseErr == nil {
			alert.Timestamp = ts
		}
		out = append(out, alert)
	}
	return out, rows.Err()
}

func (s *Store) countRows(ctx context.Context, table string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func marshalJSON(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(data) == "null" {
		return nil, nil
	}
	return string(data), nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
