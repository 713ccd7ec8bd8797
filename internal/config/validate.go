package config

import (
	"errors"
	"fmt"

	"darkroom/internal/errdefs"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	for _, check := range []func() error{c.validatePaths, c.validateImport, c.validateAlerts} {
		if err := check(); err != nil {
			return errdefs.Wrap(errdefs.ErrConfiguration, "config", "validate", "", err)
		}
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.ArchiveRoot == "" {
		return errors.New("paths.archive_root must be set")
	}
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validateImport() error {
	for i, delay := range c.Import.RetryDelays {
		if delay <= 0 {
			return fmt.Errorf("import.retry_delays[%d] must be positive", i)
		}
	}
	if c.Import.NetworkAbortThreshold < len(c.Import.RetryDelays) {
		return fmt.Errorf(
			"import.network_abort_threshold (%d) must be at least the retry attempt count (%d)",
			c.Import.NetworkAbortThreshold, len(c.Import.RetryDelays),
		)
	}
	return nil
}

func (c *Config) validateAlerts() error {
	if c.Alerts.DiskCriticalPercent < 0 || c.Alerts.DiskCriticalPercent > 100 {
		return errors.New("alerts.disk_critical_percent must be between 0 and 100")
	}
	if c.Alerts.DiskLowPercent < 0 || c.Alerts.DiskLowPercent > 100 {
		return errors.New("alerts.disk_low_percent must be between 0 and 100")
	}
	if c.Alerts.DiskLowPercent < c.Alerts.DiskCriticalPercent {
		return errors.New("alerts.disk_low_percent must not be below alerts.disk_critical_percent")
	}
	return nil
}
