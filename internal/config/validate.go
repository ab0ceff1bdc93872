package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateBudget(); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validateVoiceCommands(); err != nil {
		return err
	}
	if err := c.validateMusic(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateLocking(); err != nil {
		return err
	}
	return c.validatePlans()
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.workers":             c.Workflow.Workers,
		"workflow.queue_poll_interval": c.Workflow.QueuePollInterval,
		"workflow.max_attempts":        c.Workflow.MaxAttempts,
	}); err != nil {
		return err
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		return errors.New("workflow.heartbeat_timeout must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	if c.Workflow.ScratchRetentionHours < 0 {
		return errors.New("workflow.scratch_retention_hours must be >= 0")
	}
	return nil
}

func (c *Config) validateBudget() error {
	policies := map[string]ScaledTimeout{
		"budget":             c.Budget,
		"timeouts.download":  c.Timeouts.Download,
		"timeouts.synthesis": c.Timeouts.Synthesis,
		"timeouts.encode":    c.Timeouts.Encode,
	}
	for key, policy := range policies {
		if err := validateScaled(key, policy); err != nil {
			return err
		}
	}
	return nil
}

func validateScaled(key string, policy ScaledTimeout) error {
	if policy.BaseSeconds <= 0 {
		return fmt.Errorf("%s.base_seconds must be positive", key)
	}
	if policy.PerAudioMinuteSeconds < 0 {
		return fmt.Errorf("%s.per_audio_minute_seconds must be >= 0", key)
	}
	if policy.MaxSeconds < 0 {
		return fmt.Errorf("%s.max_seconds must be >= 0", key)
	}
	if policy.MaxSeconds > 0 && policy.MaxSeconds < policy.BaseSeconds {
		return fmt.Errorf("%s.max_seconds must be >= base_seconds", key)
	}
	return nil
}

func (c *Config) validateRender() error {
	if c.Render.SampleRate < 8000 || c.Render.SampleRate > 192000 {
		return errors.New("render.sample_rate must be between 8000 and 192000")
	}
	if c.Render.Channels != 1 && c.Render.Channels != 2 {
		return errors.New("render.channels must be 1 or 2")
	}
	if c.Render.MaxBufferMB <= 0 {
		return errors.New("render.max_buffer_mb must be positive")
	}
	switch c.Render.OutputFormat {
	case "wav", "mp3", "m4a":
	default:
		return fmt.Errorf("render.output_format: unsupported value %q", c.Render.OutputFormat)
	}
	return nil
}

func (c *Config) validateVoiceCommands() error {
	if c.VoiceCommands.SilenceThresholdMillis <= 0 {
		return errors.New("voice_commands.silence_threshold_millis must be positive")
	}
	if c.VoiceCommands.NoteWindowSeconds <= 0 {
		return errors.New("voice_commands.note_window_seconds must be positive")
	}
	if len(c.VoiceCommands.NoteRemoval.Triggers) > 0 && len(c.VoiceCommands.NoteRemoval.StopPhrases) == 0 {
		return errors.New("voice_commands.note_removal.stop_phrases must be set when note_removal triggers are configured")
	}
	return nil
}

func (c *Config) validateMusic() error {
	if c.Music.CurveExponent <= 0 {
		return errors.New("music.curve_exponent must be positive")
	}
	if c.Music.MaxBoostDB < 0 || c.Music.MaxBoostDB > 12 {
		return errors.New("music.max_boost_db must be between 0 and 12")
	}
	if c.Music.FloorDB >= 0 {
		return errors.New("music.floor_db must be negative")
	}
	if c.Music.CrossfadeMillis < 0 {
		return errors.New("music.crossfade_millis must be >= 0")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if !c.RemoteStorageEnabled() {
		return nil
	}
	if c.Storage.AccessKey == "" || c.Storage.SecretKey == "" {
		return errors.New("storage.access_key and storage.secret_key must be set when storage.endpoint is configured (or set PODFORGE_S3_ACCESS_KEY/PODFORGE_S3_SECRET_KEY)")
	}
	return nil
}

func (c *Config) validateLocking() error {
	switch c.Locking.Backend {
	case "file":
		return nil
	case "redis":
		if strings.TrimSpace(c.Locking.RedisAddr) == "" {
			return errors.New("locking.redis_addr must be set when locking.backend is redis")
		}
		return nil
	default:
		return fmt.Errorf("locking.backend: unsupported value %q", c.Locking.Backend)
	}
}

func (c *Config) validatePlans() error {
	for name, plan := range c.Plans {
		if plan.BudgetBaseSeconds < 0 || plan.BudgetPerAudioMinuteSeconds < 0 || plan.BudgetMaxSeconds < 0 || plan.MaxBufferMB < 0 {
			return fmt.Errorf("plans.%s: values must be >= 0", name)
		}
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
