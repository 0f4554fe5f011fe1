package config

const (
	defaultInboxDir         = "~/.local/share/waveline/inbox"
	defaultArtifactDir      = "~/.local/share/waveline/artifacts"
	defaultLogDir           = "~/.local/share/waveline/logs"
	defaultArtifactCacheDir = "~/.cache/waveline/artifacts"

	defaultAnalyzerBinary    = "streaming_extractor_music"
	defaultAnalyzerExtension = ".json"
	defaultAnalyzerTimeout   = 900

	defaultIngestRequestTimeout = 10

	defaultOutboxMaxAttempts    = 5
	defaultOutboxBackoffSeconds = 2

	defaultInboxPollInterval  = 5
	defaultErrorRetryInterval = 5

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			InboxDir:    defaultInboxDir,
			ArtifactDir: defaultArtifactDir,
			LogDir:      defaultLogDir,
		},
		Analyzer: Analyzer{
			Binary:          defaultAnalyzerBinary,
			OutputExtension: defaultAnalyzerExtension,
			TimeoutSeconds:  defaultAnalyzerTimeout,
		},
		Ingest: Ingest{
			RequestTimeout: defaultIngestRequestTimeout,
		},
		Outbox: Outbox{
			MaxAttempts:    defaultOutboxMaxAttempts,
			BackoffSeconds: defaultOutboxBackoffSeconds,
		},
		ArtifactCache: ArtifactCache{
			Dir: defaultArtifactCacheDir,
		},
		Workflow: Workflow{
			InboxPollInterval:  defaultInboxPollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
