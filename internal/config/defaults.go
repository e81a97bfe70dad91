package config

const (
	defaultDataDir                = "~/.local/share/callscope"
	defaultLogDir                 = "~/.local/share/callscope/logs"
	defaultAPIBind                = "127.0.0.1:7390"
	defaultSampleRate             = 16000
	defaultTargetSegmentBytes     = 6_000_000
	defaultProviderLimitBytes     = 8 << 20
	defaultMinSegmentSeconds      = 30
	defaultMaxSegmentSeconds      = 600
	defaultFFmpegBinary           = "ffmpeg"
	defaultTranscriptionProvider  = ProviderGemini
	defaultTranscriptionTimeout   = 180
	defaultAnalysisTimeout        = 120
	defaultRetryMaxAttempts       = 3
	defaultRetryBaseDelayMillis   = 2000
	defaultStorageBackend         = StorageLocal
	defaultStorageTimeout         = 120
	defaultOwner                  = "local"
	defaultSettleSeconds          = 5
	defaultMaxUploadMiB           = 512
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultGeminiBaseURL          = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel            = "gemini-2.0-flash"
	defaultOpenAIBaseURL          = "https://api.openai.com/v1/chat/completions"
	defaultOpenAITranscribeModel  = "gpt-4o-audio-preview"
	defaultOpenAIAnalysisModel    = "gpt-4o-mini"
	defaultSupabaseSegmentsBucket = "call-segments"
)

// Provider names accepted by [transcription] and [analysis].
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Segment store backends accepted by [storage].
const (
	StorageLocal    = "local"
	StorageS3       = "s3"
	StorageSupabase = "supabase"
)

var defaultExtensions = []string{".wav", ".mp3", ".m4a", ".ogg", ".webm", ".flac"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Audio: Audio{
			SampleRate:         defaultSampleRate,
			TargetSegmentBytes: defaultTargetSegmentBytes,
			ProviderLimitBytes: defaultProviderLimitBytes,
			MinSegmentSeconds:  defaultMinSegmentSeconds,
			MaxSegmentSeconds:  defaultMaxSegmentSeconds,
			FFmpegBinary:       defaultFFmpegBinary,
		},
		Transcription: Transcription{
			Provider:       defaultTranscriptionProvider,
			TimeoutSeconds: defaultTranscriptionTimeout,
		},
		Analysis: Analysis{
			Provider:       defaultTranscriptionProvider,
			TimeoutSeconds: defaultAnalysisTimeout,
		},
		Retry: Retry{
			MaxAttempts:     defaultRetryMaxAttempts,
			BaseDelayMillis: defaultRetryBaseDelayMillis,
		},
		Storage: Storage{
			Backend:        defaultStorageBackend,
			TimeoutSeconds: defaultStorageTimeout,
		},
		Ingest: Ingest{
			DefaultOwner:  defaultOwner,
			Extensions:    append([]string(nil), defaultExtensions...),
			SettleSeconds: defaultSettleSeconds,
			MaxUploadMiB:  defaultMaxUploadMiB,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
