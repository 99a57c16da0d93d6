// Package config loads mealscribe settings: built-in defaults, then an
// optional YAML file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hammamikhairi/mealscribe/internal/domain"
	"github.com/hammamikhairi/mealscribe/internal/photo"
)

// DefaultPath is read when no --config flag is given. Its absence is not
// an error.
const DefaultPath = "mealscribe.yaml"

// Store drivers.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Environment variables. The GPT names are shared with the other tools
// that talk to the same deployment.
const (
	EnvGPTKey       = "GPT_CHAT_KEY"
	EnvGPTEndpoint  = "GPT_CHAT_ENDPOINT"
	EnvGPTModel     = "GPT_CHAT_MODEL"
	EnvDataDir      = "MEALSCRIBE_DATA_DIR"
	EnvStoreDriver  = "MEALSCRIBE_STORE"
	EnvLogLevel     = "MEALSCRIBE_LOG_LEVEL"
	EnvStaleAfter   = "MEALSCRIBE_STALE_AFTER"
	EnvPhotoDriver  = "MEALSCRIBE_PHOTO_DRIVER"
	EnvS3Bucket     = "MEALSCRIBE_S3_BUCKET"
	EnvS3Region     = "MEALSCRIBE_S3_REGION"
	EnvS3Endpoint   = "MEALSCRIBE_S3_ENDPOINT"
	EnvS3PathStyle  = "MEALSCRIBE_S3_PATH_STYLE"
	EnvWhisperModel = "MEALSCRIBE_WHISPER_MODEL"
)

// Config is the full settings tree.
type Config struct {
	DataDir  string `yaml:"data_dir"`
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"` // "stderr" logs to the console

	Store      StoreConfig      `yaml:"store"`
	GPT        GPTConfig        `yaml:"gpt"`
	Generation GenerationConfig `yaml:"generation"`
	Photos     photo.Config     `yaml:"photos"`
	Voice      VoiceConfig      `yaml:"voice"`
}

// StoreConfig selects where recipes and checklists live.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// GPTConfig points at an OpenAI-compatible chat-completions endpoint.
type GPTConfig struct {
	Endpoint  string        `yaml:"endpoint"`
	Key       string        `yaml:"key"`
	Model     string        `yaml:"model"`
	Timeout   time.Duration `yaml:"timeout"`
	MaxTokens int           `yaml:"max_tokens"`
}

// GenerationConfig tunes the background lifecycle.
type GenerationConfig struct {
	StaleAfter    time.Duration `yaml:"stale_after"`
	RecoveryDelay time.Duration `yaml:"recovery_delay"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	WatchInterval time.Duration `yaml:"watch_interval"`
}

// VoiceConfig configures spoken prompt dictation.
type VoiceConfig struct {
	WhisperBin   string `yaml:"whisper_bin"`
	WhisperModel string `yaml:"whisper_model"`
	RecordSecs   int    `yaml:"record_secs"`
	TempDir      string `yaml:"temp_dir"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		DataDir:  ".mealscribe",
		LogLevel: "normal",
		Store:    StoreConfig{Driver: StoreSQLite},
		GPT: GPTConfig{
			Timeout:   90 * time.Second,
			MaxTokens: 1800,
		},
		Generation: GenerationConfig{
			StaleAfter:    5 * time.Minute,
			RecoveryDelay: 2 * time.Second,
			SweepInterval: 10 * time.Minute,
			WatchInterval: 30 * time.Second,
		},
		Photos: photo.Config{Driver: photo.DriverFS, Region: "us-east-1"},
		Voice: VoiceConfig{
			WhisperBin:   "whisper-cli",
			WhisperModel: "bin/ggml-small.bin",
			RecordSecs:   5,
		},
	}
}

// Load builds the effective configuration. path may be empty, in which
// case DefaultPath is tried. getenv is usually os.Getenv.
func Load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	if err := cfg.mergeFile(path); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}

	if err := cfg.mergeEnv(getenv); err != nil {
		return Config{}, err
	}
	cfg.fillPaths()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("%w: parsing config %s: %v", domain.ErrValidation, path, err)
	}
	return nil
}

func (c *Config) mergeEnv(getenv func(string) string) error {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	set(&c.GPT.Key, EnvGPTKey)
	set(&c.GPT.Endpoint, EnvGPTEndpoint)
	set(&c.GPT.Model, EnvGPTModel)
	set(&c.DataDir, EnvDataDir)
	set(&c.Store.Driver, EnvStoreDriver)
	set(&c.LogLevel, EnvLogLevel)
	set(&c.Photos.Driver, EnvPhotoDriver)
	set(&c.Photos.Bucket, EnvS3Bucket)
	set(&c.Photos.Region, EnvS3Region)
	set(&c.Photos.Endpoint, EnvS3Endpoint)
	set(&c.Voice.WhisperModel, EnvWhisperModel)

	if v := getenv(EnvStaleAfter); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", domain.ErrValidation, EnvStaleAfter, err)
		}
		c.Generation.StaleAfter = d
	}
	if v := getenv(EnvS3PathStyle); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", domain.ErrValidation, EnvS3PathStyle, err)
		}
		c.Photos.PathStyle = b
	}
	return nil
}

// fillPaths derives file locations from DataDir where none were given.
func (c *Config) fillPaths() {
	if c.Store.Path == "" {
		c.Store.Path = filepath.Join(c.DataDir, "mealscribe.db")
	}
	if c.Photos.Dir == "" {
		c.Photos.Dir = filepath.Join(c.DataDir, "photos")
	}
	if c.LogFile == "" {
		c.LogFile = filepath.Join(c.DataDir, "mealscribe.log")
	}
	if c.Voice.TempDir == "" {
		c.Voice.TempDir = filepath.Join(c.DataDir, "stt")
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case StoreMemory, StoreSQLite:
	default:
		return fmt.Errorf("%w: store.driver must be %q or %q, got %q", domain.ErrValidation, StoreMemory, StoreSQLite, c.Store.Driver)
	}
	switch strings.ToLower(c.Photos.Driver) {
	case "", photo.DriverNone, photo.DriverFS:
	case photo.DriverS3:
		if c.Photos.Bucket == "" {
			return fmt.Errorf("%w: photos.bucket required for the s3 driver", domain.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown photos.driver %q", domain.ErrValidation, c.Photos.Driver)
	}
	if c.Generation.StaleAfter <= 0 {
		return fmt.Errorf("%w: generation.stale_after must be positive", domain.ErrValidation)
	}
	if c.Generation.SweepInterval <= 0 {
		return fmt.Errorf("%w: generation.sweep_interval must be positive", domain.ErrValidation)
	}
	if c.Generation.WatchInterval <= 0 {
		return fmt.Errorf("%w: generation.watch_interval must be positive", domain.ErrValidation)
	}
	if c.Generation.RecoveryDelay < 0 {
		return fmt.Errorf("%w: generation.recovery_delay must not be negative", domain.ErrValidation)
	}
	if c.Voice.RecordSecs <= 0 {
		return fmt.Errorf("%w: voice.record_secs must be positive", domain.ErrValidation)
	}
	return nil
}

// GPTEnabled reports whether a model endpoint is configured.
func (c Config) GPTEnabled() bool {
	return c.GPT.Endpoint != "" && c.GPT.Key != ""
}
