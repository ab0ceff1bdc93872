package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStorage()
	c.normalizeRender()
	c.normalizeVoiceCommands()
	c.normalizeSynthesis()
	c.normalizeLocking()
	c.normalizeAPI()
	c.normalizeLogging()
	c.normalizePlans()
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		key   string
		value *string
		def   string
	}{
		{"paths.state_dir", &c.Paths.StateDir, defaultStateDir},
		{"paths.scratch_dir", &c.Paths.ScratchDir, defaultScratchDir},
		{"paths.artifact_dir", &c.Paths.ArtifactDir, defaultArtifactDir},
		{"paths.templates_dir", &c.Paths.TemplatesDir, defaultTemplatesDir},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
		{"paths.lock_dir", &c.Paths.LockDir, defaultLockDir},
	}
	for _, field := range fields {
		if strings.TrimSpace(*field.value) == "" {
			*field.value = field.def
		}
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.key, err)
		}
		*field.value = expanded
	}
	return nil
}

func (c *Config) normalizeStorage() {
	c.Storage.Endpoint = strings.TrimSpace(c.Storage.Endpoint)
	c.Storage.Region = strings.TrimSpace(c.Storage.Region)
	if c.Storage.Region == "" {
		c.Storage.Region = defaultStorageRegion
	}
	c.Storage.ArtifactBucket = strings.TrimSpace(c.Storage.ArtifactBucket)
	c.Storage.ArtifactPrefix = strings.Trim(strings.TrimSpace(c.Storage.ArtifactPrefix), "/")
	if value, ok := lookupEnv("PODFORGE_S3_ACCESS_KEY"); ok {
		c.Storage.AccessKey = value
	}
	if value, ok := lookupEnv("PODFORGE_S3_SECRET_KEY"); ok {
		c.Storage.SecretKey = value
	}
	c.Storage.AccessKey = strings.TrimSpace(c.Storage.AccessKey)
	c.Storage.SecretKey = strings.TrimSpace(c.Storage.SecretKey)
	if c.Storage.RetryAttempts <= 0 {
		c.Storage.RetryAttempts = defaultStorageRetryAttempts
	}
	if c.Storage.RetryBaseMillis <= 0 {
		c.Storage.RetryBaseMillis = defaultStorageRetryBaseMillis
	}
}

func (c *Config) normalizeRender() {
	c.Render.OutputFormat = strings.ToLower(strings.TrimSpace(c.Render.OutputFormat))
	if c.Render.OutputFormat == "" {
		c.Render.OutputFormat = defaultOutputFormat
	}
	if c.Render.DeclickMillis < 0 {
		c.Render.DeclickMillis = 0
	}
}

func (c *Config) normalizeVoiceCommands() {
	c.VoiceCommands.RollbackRestart.Triggers = cleanPhrases(c.VoiceCommands.RollbackRestart.Triggers)
	c.VoiceCommands.RollbackRestart.StopPhrases = cleanPhrases(c.VoiceCommands.RollbackRestart.StopPhrases)
	c.VoiceCommands.NoteRemoval.Triggers = cleanPhrases(c.VoiceCommands.NoteRemoval.Triggers)
	c.VoiceCommands.NoteRemoval.StopPhrases = cleanPhrases(c.VoiceCommands.NoteRemoval.StopPhrases)
}

func (c *Config) normalizeSynthesis() {
	c.Synthesis.Endpoint = strings.TrimSpace(c.Synthesis.Endpoint)
	if value, ok := lookupEnv("PODFORGE_SYNTHESIS_API_KEY"); ok {
		c.Synthesis.APIKey = value
	}
	c.Synthesis.APIKey = strings.TrimSpace(c.Synthesis.APIKey)
	c.Synthesis.DefaultVoice = strings.TrimSpace(c.Synthesis.DefaultVoice)
	if c.Synthesis.DefaultVoice == "" {
		c.Synthesis.DefaultVoice = defaultSynthesisVoice
	}
}

func (c *Config) normalizeLocking() {
	c.Locking.Backend = strings.ToLower(strings.TrimSpace(c.Locking.Backend))
	if c.Locking.Backend == "" {
		c.Locking.Backend = defaultLockingBackend
	}
	c.Locking.RedisAddr = strings.TrimSpace(c.Locking.RedisAddr)
	if value, ok := lookupEnv("PODFORGE_REDIS_PASSWORD"); ok {
		c.Locking.RedisPassword = value
	}
	if c.Locking.TTLSeconds <= 0 {
		c.Locking.TTLSeconds = defaultLockTTLSeconds
	}
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	if value, ok := lookupEnv("PODFORGE_API_TOKEN"); ok {
		c.API.Token = value
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = defaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups < 0 {
		c.Logging.MaxBackups = 0
	}
	if c.Logging.MaxAgeDays < 0 {
		c.Logging.MaxAgeDays = 0
	}
}

func (c *Config) normalizePlans() {
	if len(c.Plans) == 0 {
		return
	}
	plans := make(map[string]Plan, len(c.Plans))
	for name, plan := range c.Plans {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		plans[key] = plan
	}
	c.Plans = plans
}

func cleanPhrases(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		normalized := strings.Join(strings.Fields(strings.ToLower(value)), " ")
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}

func lookupEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}
