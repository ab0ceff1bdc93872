package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir     string `toml:"state_dir"`
	ScratchDir   string `toml:"scratch_dir"`
	ArtifactDir  string `toml:"artifact_dir"`
	TemplatesDir string `toml:"templates_dir"`
	LogDir       string `toml:"log_dir"`
	LockDir      string `toml:"lock_dir"`
}

// Storage contains remote object store settings. Endpoint empty means
// local-only operation.
type Storage struct {
	Endpoint        string `toml:"endpoint"`
	Region          string `toml:"region"`
	AccessKey       string `toml:"access_key"`
	SecretKey       string `toml:"secret_key"`
	UseSSL          bool   `toml:"use_ssl"`
	ArtifactBucket  string `toml:"artifact_bucket"`
	ArtifactPrefix  string `toml:"artifact_prefix"`
	RetryAttempts   int    `toml:"retry_attempts"`
	RetryBaseMillis int    `toml:"retry_base_millis"`
}

// Workflow contains configuration for worker timing and retry policy.
type Workflow struct {
	Workers               int  `toml:"workers"`
	QueuePollInterval     int  `toml:"queue_poll_interval"`
	HeartbeatInterval     int  `toml:"heartbeat_interval"`
	HeartbeatTimeout      int  `toml:"heartbeat_timeout"`
	MaxAttempts           int  `toml:"max_attempts"`
	DeleteSourceOnSuccess bool `toml:"delete_source_on_success"`
	ScratchRetentionHours int  `toml:"scratch_retention_hours"`
}

// ScaledTimeout is a wall-clock allowance that grows with source duration:
// base + per_audio_minute * minutes, optionally capped by max.
type ScaledTimeout struct {
	BaseSeconds           int     `toml:"base_seconds"`
	PerAudioMinuteSeconds float64 `toml:"per_audio_minute_seconds"`
	MaxSeconds            int     `toml:"max_seconds"`
}

// For returns the allowance for audio of the given length.
func (s ScaledTimeout) For(audio time.Duration) time.Duration {
	allowance := time.Duration(s.BaseSeconds)*time.Second +
		time.Duration(s.PerAudioMinuteSeconds*audio.Minutes()*float64(time.Second))
	if s.MaxSeconds > 0 {
		allowance = min(allowance, time.Duration(s.MaxSeconds)*time.Second)
	}
	return allowance
}

// Timeouts holds independent policies for each class of external call.
type Timeouts struct {
	Download  ScaledTimeout `toml:"download"`
	Synthesis ScaledTimeout `toml:"synthesis"`
	Encode    ScaledTimeout `toml:"encode"`
}

// Render contains configuration for the audio renderer.
type Render struct {
	SampleRate    int    `toml:"sample_rate"`
	Channels      int    `toml:"channels"`
	MaxBufferMB   int    `toml:"max_buffer_mb"`
	OutputFormat  string `toml:"output_format"`
	DeclickMillis int    `toml:"declick_millis"`
}

// PhraseSet lists trigger phrases for one directive kind and, optionally,
// the phrases that close its scope.
type PhraseSet struct {
	Triggers    []string `toml:"triggers"`
	StopPhrases []string `toml:"stop_phrases"`
}

// VoiceCommands configures the voice-command detector.
type VoiceCommands struct {
	SilenceThresholdMillis int       `toml:"silence_threshold_millis"`
	NoteWindowSeconds      int       `toml:"note_window_seconds"`
	RollbackRestart        PhraseSet `toml:"rollback_restart"`
	NoteRemoval            PhraseSet `toml:"note_removal"`
}

// Music contains the volume curve and crossfade parameters.
type Music struct {
	CurveExponent   float64 `toml:"curve_exponent"`
	MaxBoostDB      float64 `toml:"max_boost_db"`
	FloorDB         float64 `toml:"floor_db"`
	CrossfadeMillis int     `toml:"crossfade_millis"`
}

// Synthesis contains the speech-synthesis collaborator settings.
type Synthesis struct {
	Endpoint     string `toml:"endpoint"`
	APIKey       string `toml:"api_key"`
	DefaultVoice string `toml:"default_voice"`
}

// Locking selects the advisory lock backend.
type Locking struct {
	Backend       string `toml:"backend"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	TTLSeconds    int    `toml:"ttl_seconds"`
}

// API contains the status API bind address and optional bearer token.
type API struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format     string `toml:"format"`
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// Plan overrides wall-clock and memory ceilings for a subscription plan.
// Zero values inherit the global setting.
type Plan struct {
	BudgetBaseSeconds           int     `toml:"budget_base_seconds"`
	BudgetPerAudioMinuteSeconds float64 `toml:"budget_per_audio_minute_seconds"`
	BudgetMaxSeconds            int     `toml:"budget_max_seconds"`
	MaxBufferMB                 int     `toml:"max_buffer_mb"`
}

// Config encapsulates all configuration values for Podforge.
//
// Configuration sections by subsystem:
//   - Paths: state, scratch, artifact, template, log, and lock directories
//   - Storage: remote object store for blobs and artifacts
//   - Workflow: worker count, polling, heartbeats, retry cap
//   - Budget: job wall-clock allowance scaled by source duration
//   - Timeouts: per-call allowances for downloads, synthesis, and encode
//   - Render: canonical PCM format and memory ceiling
//   - VoiceCommands: trigger phrase sets and detector thresholds
//   - Music: volume curve and crossfade
//   - Synthesis: speech synthesis collaborator
//   - Locking: advisory lock backend
//   - API: status API
//   - Logging: log format, level, and rotation
//   - Plans: per-plan ceilings
type Config struct {
	Paths         Paths           `toml:"paths"`
	Storage       Storage         `toml:"storage"`
	Workflow      Workflow        `toml:"workflow"`
	Budget        ScaledTimeout   `toml:"budget"`
	Timeouts      Timeouts        `toml:"timeouts"`
	Render        Render          `toml:"render"`
	VoiceCommands VoiceCommands   `toml:"voice_commands"`
	Music         Music           `toml:"music"`
	Synthesis     Synthesis       `toml:"synthesis"`
	Locking       Locking         `toml:"locking"`
	API           API             `toml:"api"`
	Logging       Logging         `toml:"logging"`
	Plans         map[string]Plan `toml:"plans"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/podforge/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}
	loadDotEnv(resolvedPath)

	cfg, err := parse(resolvedPath, exists)
	if err != nil {
		return nil, "", false, err
	}
	return cfg, resolvedPath, exists, nil
}

func parse(path string, exists bool) (*Config, error) {
	cfg := Default()
	if exists {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadDotEnv reads credentials from .env files next to the config file and in
// the working directory. Variables already set in the environment win.
func loadDotEnv(configPath string) {
	candidates := []string{".env"}
	if configPath != "" {
		candidates = append([]string{filepath.Join(filepath.Dir(configPath), ".env")}, candidates...)
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err != nil || info.IsDir() {
			continue
		}
		_ = godotenv.Load(candidate)
	}
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("podforge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.StateDir, c.Paths.ScratchDir, c.Paths.ArtifactDir, c.Paths.LogDir, c.Paths.LockDir}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite job store location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "jobs.db")
}

// RemoteStorageEnabled reports whether an object store endpoint is configured.
func (c *Config) RemoteStorageEnabled() bool {
	return strings.TrimSpace(c.Storage.Endpoint) != ""
}

// BudgetFor returns the job wall-clock policy for plan, applying any
// per-plan overrides on top of the global budget.
func (c *Config) BudgetFor(plan string) ScaledTimeout {
	budget := c.Budget
	override, ok := c.Plans[strings.ToLower(strings.TrimSpace(plan))]
	if !ok {
		return budget
	}
	if override.BudgetBaseSeconds > 0 {
		budget.BaseSeconds = override.BudgetBaseSeconds
	}
	if override.BudgetPerAudioMinuteSeconds > 0 {
		budget.PerAudioMinuteSeconds = override.BudgetPerAudioMinuteSeconds
	}
	if override.BudgetMaxSeconds > 0 {
		budget.MaxSeconds = override.BudgetMaxSeconds
	}
	return budget
}

// MaxBufferMBFor returns the renderer memory ceiling for plan.
func (c *Config) MaxBufferMBFor(plan string) int {
	if override, ok := c.Plans[strings.ToLower(strings.TrimSpace(plan))]; ok && override.MaxBufferMB > 0 {
		return override.MaxBufferMB
	}
	return c.Render.MaxBufferMB
}

// FFmpegBinary returns the ffmpeg executable name used for transcoding and encoding.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

const redactedValue = "********"

// Redacted returns a copy of c with credentials masked, for display.
func (c *Config) Redacted() Config {
	out := *c
	for _, secret := range []*string{
		&out.Storage.AccessKey,
		&out.Storage.SecretKey,
		&out.Synthesis.APIKey,
		&out.Locking.RedisPassword,
		&out.API.Token,
	} {
		if *secret != "" {
			*secret = redactedValue
		}
	}
	return out
}
