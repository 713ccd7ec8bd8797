package monitoring

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"darkroom/internal/config"
	"darkroom/internal/logging"
	"darkroom/internal/monitoring/alerts"
	"darkroom/internal/monitoring/metrics"
	"darkroom/internal/monitoring/tracing"
)

// SnapshotFunc produces the health sample alert rules evaluate.
type SnapshotFunc func(context.Context) (alerts.Snapshot, error)

// Service bundles the collector, tracer, and alert manager over one
// persistent store and drives the periodic flush and cleanup loops.
type Service struct {
	Metrics *metrics.Collector
	Tracer  *tracing.Tracer
	Alerts  *alerts.Manager

	store           *Store
	snapshot        SnapshotFunc
	flushInterval   time.Duration
	cleanupInterval time.Duration
	retention       Retention
	logger          *slog.Logger
}

// NewService wires a full observability stack against the shared
// database connection. snapshot may be nil, in which case alert checks
// are skipped.
func NewService(ctx context.Context, logger *slog.Logger, cfg *config.Config, db *sql.DB, snapshot SnapshotFunc) (*Service, error) {
	store, err := NewStore(ctx, db)
	if err != nil {
		return nil, err
	}

	svc := &Service{
		store:           store,
		snapshot:        snapshot,
		flushInterval:   time.Duration(cfg.Monitoring.FlushInterval) * time.Second,
		cleanupInterval: time.Duration(cfg.Monitoring.CleanupInterval) * time.Second,
		retention: Retention{
			Metrics: time.Duration(cfg.Monitoring.MetricsRetentionDays) * 24 * time.Hour,
			Traces:  time.Duration(cfg.Monitoring.TraceRetentionDays) * 24 * time.Hour,
			Alerts:  time.Duration(cfg.Monitoring.AlertRetentionDays) * 24 * time.Hour,
		},
		logger: logging.WithComponent(logger, "monitoring"),
	}

	svc.Metrics = metrics.NewCollector(logger, metrics.WithFlushFunc(func(events []metrics.Event) {
		if err := store.SaveMetrics(context.Background(), events); err != nil {
			svc.logger.Warn("metrics persistence failed", logging.Error(err))
		}
	}))
	svc.Tracer = tracing.NewTracer(logger, tracing.WithPersistFunc(func(span *tracing.Span) error {
		return store.SaveSpan(context.Background(), span)
	}))
	svc.Alerts = alerts.NewManager(logger, alerts.DefaultRules(alerts.Thresholds{
		DiskCriticalPercent: cfg.Alerts.DiskCriticalPercent,
		DiskLowPercent:      cfg.Alerts.DiskLowPercent,
		StuckQueueAge:       time.Duration(cfg.Alerts.StuckQueueMinutes) * time.Minute,
		ErrorRatePercent:    cfg.Alerts.ErrorRatePercent,
		DeadLetterMax:       cfg.Alerts.DeadLetterMax,
		StarvationBacklog:   cfg.Alerts.StarvationBacklog,
	}), alerts.WithAlertFunc(func(alert alerts.Alert) {
		if err := store.SaveAlert(context.Background(), alert); err != nil {
			svc.logger.Warn("alert persistence failed", logging.Error(err))
		}
	}))

	return svc, nil
}

// Store exposes the persistence layer for status reporting.
func (s *Service) Store() *Store {
	return s.store
}

// Run drives the flush, alert-check, and retention-cleanup tickers until
// the context is cancelled. A final flush runs on the way out.
func (s *Service) Run(ctx context.Context) {
	flush := time.NewTicker(s.flushInterval)
	defer flush.Stop()
	cleanup := time.NewTicker(s.cleanupInterval)
	defer cleanup.Stop()

	s.logger.Info("monitoring loops started",
		logging.Duration("flush_interval", s.flushInterval),
		logging.Duration("cleanup_interval", s.cleanupInterval),
	)

	for {
		select {
		case <-ctx.Done():
			s.Metrics.Flush()
			s.Tracer.Wait()
			s.logger.Info("monitoring loops stopped")
			return
		case <-flush.C:
			s.Metrics.Flush()
			s.CheckAlerts(ctx)
		case <-cleanup.C:
			removed, err := s.store.CleanupExpired(ctx, s.retention, time.Now())
			if err != nil {
				s.logger.Warn("retention cleanup failed", logging.Error(err))
				continue
			}
			if removed > 0 {
				s.logger.Info("retention cleanup complete", logging.Int64("rows_removed", removed))
			}
		}
	}
}

// CheckAlerts samples health and evaluates the rule set once.
func (s *Service) CheckAlerts(ctx context.Context) []alerts.Alert {
	if s.snapshot == nil {
		return nil
	}
	snapshot, err := s.snapshot(ctx)
	if err != nil {
		s.logger.Warn("health snapshot failed", logging.Error(err))
		return nil
	}
	s.Metrics.Gauge("jobs.queue.depth", float64(snapshot.QueueDepth), nil)
	s.Metrics.Gauge("workers.active", float64(snapshot.ActiveWorkers), nil)
	return s.Alerts.Check(snapshot)
}
