package config

const (
	defaultStateDir                 = "~/.local/share/podforge"
	defaultScratchDir               = "~/.local/share/podforge/scratch"
	defaultArtifactDir              = "~/.local/share/podforge/artifacts"
	defaultTemplatesDir             = "~/.config/podforge/templates"
	defaultLogDir                   = "~/.local/share/podforge/logs"
	defaultLockDir                  = "~/.local/share/podforge/locks"
	defaultStorageRegion            = "us-east-1"
	defaultStorageRetryAttempts     = 3
	defaultStorageRetryBaseMillis   = 200
	defaultWorkers                  = 2
	defaultQueuePollInterval        = 5
	defaultHeartbeatInterval        = 15
	defaultHeartbeatTimeout         = 120
	defaultMaxAttempts              = 2
	defaultScratchRetentionHours    = 24
	defaultBudgetBaseSeconds        = 600
	defaultBudgetPerMinuteSeconds   = 30
	defaultDownloadBaseSeconds      = 60
	defaultDownloadPerMinuteSeconds = 2
	defaultSynthesisBaseSeconds     = 30
	defaultEncodeBaseSeconds        = 60
	defaultEncodePerMinuteSeconds   = 6
	defaultSampleRate               = 44100
	defaultChannels                 = 2
	defaultMaxBufferMB              = 256
	defaultOutputFormat             = "wav"
	defaultDeclickMillis            = 5
	defaultSilenceThresholdMillis   = 450
	defaultNoteWindowSeconds        = 60
	defaultCurveExponent            = 0.7
	defaultMaxBoostDB               = 2.6
	defaultFloorDB                  = -60
	defaultCrossfadeMillis          = 15
	defaultSynthesisVoice           = "narrator"
	defaultLockingBackend           = "file"
	defaultLockTTLSeconds           = 300
	defaultAPIBind                  = "127.0.0.1:7491"
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
	defaultLogMaxSizeMB             = 50
	defaultLogMaxBackups            = 5
	defaultLogMaxAgeDays            = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:     defaultStateDir,
			ScratchDir:   defaultScratchDir,
			ArtifactDir:  defaultArtifactDir,
			TemplatesDir: defaultTemplatesDir,
			LogDir:       defaultLogDir,
			LockDir:      defaultLockDir,
		},
		Storage: Storage{
			Region:          defaultStorageRegion,
			UseSSL:          true,
			RetryAttempts:   defaultStorageRetryAttempts,
			RetryBaseMillis: defaultStorageRetryBaseMillis,
		},
		Workflow: Workflow{
			Workers:               defaultWorkers,
			QueuePollInterval:     defaultQueuePollInterval,
			HeartbeatInterval:     defaultHeartbeatInterval,
			HeartbeatTimeout:      defaultHeartbeatTimeout,
			MaxAttempts:           defaultMaxAttempts,
			DeleteSourceOnSuccess: true,
			ScratchRetentionHours: defaultScratchRetentionHours,
		},
		Budget: ScaledTimeout{
			BaseSeconds:           defaultBudgetBaseSeconds,
			PerAudioMinuteSeconds: defaultBudgetPerMinuteSeconds,
		},
		Timeouts: Timeouts{
			Download: ScaledTimeout{
				BaseSeconds:           defaultDownloadBaseSeconds,
				PerAudioMinuteSeconds: defaultDownloadPerMinuteSeconds,
			},
			Synthesis: ScaledTimeout{
				BaseSeconds: defaultSynthesisBaseSeconds,
			},
			Encode: ScaledTimeout{
				BaseSeconds:           defaultEncodeBaseSeconds,
				PerAudioMinuteSeconds: defaultEncodePerMinuteSeconds,
			},
		},
		Render: Render{
			SampleRate:    defaultSampleRate,
			Channels:      defaultChannels,
			MaxBufferMB:   defaultMaxBufferMB,
			OutputFormat:  defaultOutputFormat,
			DeclickMillis: defaultDeclickMillis,
		},
		VoiceCommands: VoiceCommands{
			SilenceThresholdMillis: defaultSilenceThresholdMillis,
			NoteWindowSeconds:      defaultNoteWindowSeconds,
			RollbackRestart: PhraseSet{
				Triggers: []string{"flubber", "flub"},
			},
			NoteRemoval: PhraseSet{
				Triggers:    []string{"intern", "note to editor"},
				StopPhrases: []string{"end note", "back to show"},
			},
		},
		Music: Music{
			CurveExponent:   defaultCurveExponent,
			MaxBoostDB:      defaultMaxBoostDB,
			FloorDB:         defaultFloorDB,
			CrossfadeMillis: defaultCrossfadeMillis,
		},
		Synthesis: Synthesis{
			DefaultVoice: defaultSynthesisVoice,
		},
		Locking: Locking{
			Backend:    defaultLockingBackend,
			TTLSeconds: defaultLockTTLSeconds,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Logging: Logging{
			Format:     defaultLogFormat,
			Level:      defaultLogLevel,
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogMaxBackups,
			MaxAgeDays: defaultLogMaxAgeDays,
			Compress:   true,
		},
	}
}
