package config

const (
	defaultIncomingDir = "~/.local/share/scribe/incoming"
	defaultWorkDir     = "~/.local/share/scribe/work"
	defaultLogDir      = "~/.local/share/scribe/logs"

	defaultTelegramRequestTimeout = 30

	defaultSTTBaseURL        = "https://api.openai.com/v1"
	defaultSTTModel          = "whisper-1"
	defaultSTTLanguage       = "en"
	defaultSTTTimeoutSeconds = 300
	defaultSTTMaxRetry       = 3
	defaultSTTWorkers        = 2
	defaultEnergyThreshold   = 300
	defaultPauseThreshold    = 0.8

	defaultDiarizationModel          = "pyannote/speaker-diarization-3.1"
	defaultDiarizationTimeoutSeconds = 1800

	defaultMinSilenceMillis   = 300
	defaultSilenceThresholdDB = -35.0
	defaultKeepSilenceMillis  = 200
	defaultMaxSegmentMillis   = 10000
	defaultTargetMillis       = 5000
	defaultMinChunkMillis     = 500

	defaultAgentBaseURL        = "https://openrouter.ai/api/v1/chat/completions"
	defaultAgentModel          = "google/gemini-2.5-flash"
	defaultAgentTemperature    = 0.7
	defaultAgentTimeoutSeconds = 60
	defaultAgentHistoryLimit   = 40

	defaultNotifyRequestTimeout = 10

	defaultQueuePollInterval      = 2
	defaultMaxConcurrentJobs      = 2
	defaultDownloadTimeout        = 300
	defaultSegmentFailureRatio    = 0.5

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			IncomingDir: defaultIncomingDir,
			WorkDir:     defaultWorkDir,
			LogDir:      defaultLogDir,
		},
		Telegram: Telegram{
			RequestTimeout: defaultTelegramRequestTimeout,
		},
		STT: STT{
			BaseURL:         defaultSTTBaseURL,
			Model:           defaultSTTModel,
			Language:        defaultSTTLanguage,
			TimeoutSeconds:  defaultSTTTimeoutSeconds,
			MaxRetry:        defaultSTTMaxRetry,
			Workers:         defaultSTTWorkers,
			EnergyThreshold: defaultEnergyThreshold,
			DynamicEnergy:   true,
			PauseThreshold:  defaultPauseThreshold,
		},
		Diarization: Diarization{
			Model:          defaultDiarizationModel,
			TimeoutSeconds: defaultDiarizationTimeoutSeconds,
		},
		Segmenter: Segmenter{
			MinSilenceMillis:   defaultMinSilenceMillis,
			SilenceThresholdDB: defaultSilenceThresholdDB,
			KeepSilenceMillis:  defaultKeepSilenceMillis,
			MaxSegmentMillis:   defaultMaxSegmentMillis,
			TargetMillis:       defaultTargetMillis,
			MinChunkMillis:     defaultMinChunkMillis,
		},
		Agent: Agent{
			BaseURL:        defaultAgentBaseURL,
			Model:          defaultAgentModel,
			Temperature:    defaultAgentTemperature,
			TimeoutSeconds: defaultAgentTimeoutSeconds,
			HistoryLimit:   defaultAgentHistoryLimit,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Completion:     true,
			Errors:         true,
		},
		Workflow: Workflow{
			QueuePollInterval:      defaultQueuePollInterval,
			MaxConcurrentJobs:      defaultMaxConcurrentJobs,
			DownloadTimeout:        defaultDownloadTimeout,
			MaxSegmentFailureRatio: defaultSegmentFailureRatio,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
