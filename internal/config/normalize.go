package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeImport()
	c.normalizeMonitoring()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.ArchiveRoot, err = expandPath(c.Paths.ArchiveRoot); err != nil {
		return fmt.Errorf("paths.archive_root: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.InboxDir) != "" {
		if c.Paths.InboxDir, err = expandPath(c.Paths.InboxDir); err != nil {
			return fmt.Errorf("paths.inbox_dir: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeImport() {
	if c.Import.FileTimeout <= 0 {
		c.Import.FileTimeout = defaultFileTimeoutSeconds
	}
	if len(c.Import.RetryDelays) == 0 {
		c.Import.RetryDelays = defaultRetryDelays()
	}
	if c.Import.NetworkAbortThreshold <= 0 {
		c.Import.NetworkAbortThreshold = defaultNetworkAbortThreshold
	}
}

func (c *Config) normalizeMonitoring() {
	if c.Monitoring.MetricsRetentionDays <= 0 {
		c.Monitoring.MetricsRetentionDays = defaultMetricsRetentionDays
	}
	if c.Monitoring.TraceRetentionDays <= 0 {
		c.Monitoring.TraceRetentionDays = defaultTraceRetentionDays
	}
	if c.Monitoring.AlertRetentionDays <= 0 {
		c.Monitoring.AlertRetentionDays = defaultAlertRetentionDays
	}
	if c.Monitoring.FlushInterval <= 0 {
		c.Monitoring.FlushInterval = defaultFlushIntervalSeconds
	}
	if c.Monitoring.CleanupInterval <= 0 {
		c.Monitoring.CleanupInterval = defaultCleanupIntervalSeconds
	}
}

func (c *Config) normalizeLogging() {
	if strings.TrimSpace(c.Logging.Format) == "" {
		c.Logging.Format = defaultLogFormat
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = defaultLogLevel
	}
}
