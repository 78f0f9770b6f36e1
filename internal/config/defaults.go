package config

const (
	defaultDataDir              = "~/.local/share/clearwatch"
	defaultOutputDir            = "~/clearwatch/barcodes"
	defaultLogDir               = "~/.local/share/clearwatch/logs"
	defaultQueryTimeout         = 30
	defaultMaxRetries           = 3
	defaultRetryBackoffMilli    = 2000
	defaultPortalTimeout        = 20
	defaultPortalUserAgent      = "clearwatch/0.1"
	defaultClearedStatus        = "Cleared"
	defaultOtherTransport       = "9"
	defaultSchedulerMode        = "manual"
	defaultSchedulerInterval    = 30
	defaultSchedulerDaysBack    = 3
	defaultCheckInterval        = 15
	defaultRetentionDays        = 30
	defaultNotifyTimeout        = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
		},
		Declarations: Declarations{
			QueryTimeout:      defaultQueryTimeout,
			MaxRetries:        defaultMaxRetries,
			RetryBackoffMilli: defaultRetryBackoffMilli,
		},
		Portal: Portal{
			RequestTimeout: defaultPortalTimeout,
			UserAgent:      defaultPortalUserAgent,
		},
		Filter: Filter{
			ClearedStatus:      defaultClearedStatus,
			OtherTransportCode: defaultOtherTransport,
			ManagementPrefixes: []string{"#&NKTC", "#&XKTC"},
		},
		Status: Status{
			ClearedKeywords:           []string{"cleared", "clearance granted"},
			TransferKeywords:          []string{"approved for transfer", "transfer"},
			BarcodeImagesImplyCleared: true,
		},
		Scheduler: Scheduler{
			Mode:            defaultSchedulerMode,
			IntervalMinutes: defaultSchedulerInterval,
			DaysBack:        defaultSchedulerDaysBack,
		},
		Tracking: Tracking{
			CheckIntervalMinutes: defaultCheckInterval,
			RetentionDays:        defaultRetentionDays,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
