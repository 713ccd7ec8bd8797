package config

const (
	defaultArchiveRoot = "~/archive"
	defaultLogDir      = "~/.local/share/darkroom/logs"
	defaultStateDir    = "~/.local/share/darkroom"

	defaultFileTimeoutSeconds    = 300
	defaultNetworkAbortThreshold = 5

	defaultMetricsRetentionDays    = 7
	defaultTraceRetentionDays      = 3
	defaultAlertRetentionDays      = 30
	defaultFlushIntervalSeconds    = 30
	defaultCleanupIntervalSeconds  = 3600
	defaultDiskCriticalPercent     = 5
	defaultDiskLowPercent          = 10
	defaultStuckQueueMinutes       = 30
	defaultErrorRatePercent        = 10
	defaultDeadLetterMax           = 50
	defaultStarvationBacklog       = 100

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

func defaultRetryDelays() []int {
	return []int{1, 2, 4}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ArchiveRoot: defaultArchiveRoot,
			LogDir:      defaultLogDir,
			StateDir:    defaultStateDir,
		},
		Import: Import{
			FileTimeout:           defaultFileTimeoutSeconds,
			RetryDelays:           defaultRetryDelays(),
			NetworkAbortThreshold: defaultNetworkAbortThreshold,
			RollbackOnMismatch:    true,
		},
		Monitoring: Monitoring{
			MetricsRetentionDays: defaultMetricsRetentionDays,
			TraceRetentionDays:   defaultTraceRetentionDays,
			AlertRetentionDays:   defaultAlertRetentionDays,
			FlushInterval:        defaultFlushIntervalSeconds,
			CleanupInterval:      defaultCleanupIntervalSeconds,
		},
		Alerts: Alerts{
			DiskCriticalPercent: defaultDiskCriticalPercent,
			DiskLowPercent:      defaultDiskLowPercent,
			StuckQueueMinutes:   defaultStuckQueueMinutes,
			ErrorRatePercent:    defaultErrorRatePercent,
			DeadLetterMax:       defaultDeadLetterMax,
			StarvationBacklog:   defaultStarvationBacklog,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
