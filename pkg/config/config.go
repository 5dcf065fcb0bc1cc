package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the working and home directories
const FileName = ".melscribe.yaml"

// Config represents the melscribe configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Recording   RecordingConfig   `yaml:"recording"`
	Spectrogram SpectrogramConfig `yaml:"spectrogram"`
	Logging     LoggingConfig     `yaml:"logging"`
	Monitor     MonitorConfig     `yaml:"monitor"`
}

// ServerConfig locates the transcription service
type ServerConfig struct {
	BaseURL  string        `yaml:"base_url"`
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
	APIToken string        `yaml:"api_token,omitempty"`
}

// RecordingConfig contains microphone capture settings
type RecordingConfig struct {
	Disabled        bool   `yaml:"disabled"`
	SampleRate      int    `yaml:"sample_rate"`
	Channels        int    `yaml:"channels"`
	FramesPerBuffer int    `yaml:"frames_per_buffer"`
	Container       string `yaml:"container"` // "webm", "ogg", "mp3" or "wav"
	FFmpegPath      string `yaml:"ffmpeg_path"`
}

// SpectrogramConfig controls how returned spectrograms are shown
type SpectrogramConfig struct {
	NoPreview bool   `yaml:"no_preview"`
	Width     int    `yaml:"width"`
	SaveDir   string `yaml:"save_dir,omitempty"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // text or json
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// MonitorConfig enables the websocket state feed when Addr is set
type MonitorConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return finish(&config)
}

// LoadDefault loads .env files, then .melscribe.yaml from the current
// directory or home, falling back to defaults. MELSCRIBE_* variables
// override file values.
func LoadDefault() (*Config, error) {
	LoadEnvFiles()

	if _, err := os.Stat(FileName); err == nil {
		return Load(FileName)
	}

	if home, err := os.UserHomeDir(); err == nil {
		homePath := filepath.Join(home, FileName)
		if _, err := os.Stat(homePath); err == nil {
			return Load(homePath)
		}
	}

	return finish(&Config{})
}

// LoadEnvFiles loads MELSCRIBE_ENV, ~/.melscribe.env and ./.env when present.
// Variables already set in the environment win.
func LoadEnvFiles() {
	var files []string
	if p := strings.TrimSpace(os.Getenv("MELSCRIBE_ENV")); p != "" {
		files = append(files, p)
	}
	if home, err := os.UserHomeDir(); err == nil {
		files = append(files, filepath.Join(home, ".melscribe.env"))
	}
	files = append(files, ".env")

	for _, f := range files {
		if fi, err := os.Stat(f); err != nil || fi.IsDir() {
			continue
		}
		_ = godotenv.Load(f)
	}
}

func finish(c *Config) (*Config, error) {
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	c.setDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// applyEnv overrides file values from MELSCRIBE_* variables
func (c *Config) applyEnv() error {
	if v := os.Getenv("MELSCRIBE_BASE_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("MELSCRIBE_API_TOKEN"); v != "" {
		c.Server.APIToken = v
	}
	if v := os.Getenv("MELSCRIBE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid MELSCRIBE_TIMEOUT: %w", err)
		}
		c.Server.Timeout = d
	}
	if v := os.Getenv("MELSCRIBE_CONTAINER"); v != "" {
		c.Recording.Container = v
	}
	if v := os.Getenv("MELSCRIBE_DISABLE_RECORDING"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid MELSCRIBE_DISABLE_RECORDING: %w", err)
		}
		c.Recording.Disabled = b
	}
	if v := os.Getenv("MELSCRIBE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("MELSCRIBE_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
	if v := os.Getenv("MELSCRIBE_MONITOR_ADDR"); v != "" {
		c.Monitor.Addr = v
	}
	return nil
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	// Server defaults
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = "http://localhost:8000"
	}
	if c.Server.Endpoint == "" {
		c.Server.Endpoint = "/transcribe"
	}
	if c.Server.Timeout == 0 {
		c.Server.Timeout = 2 * time.Minute
	}

	// Recording defaults (browser MediaRecorder produced webm)
	if c.Recording.SampleRate == 0 {
		c.Recording.SampleRate = 16000
	}
	if c.Recording.Channels == 0 {
		c.Recording.Channels = 1
	}
	if c.Recording.FramesPerBuffer == 0 {
		c.Recording.FramesPerBuffer = 1024
	}
	if c.Recording.Container == "" {
		c.Recording.Container = "webm"
	}
	c.Recording.Container = strings.ToLower(c.Recording.Container)
	if c.Recording.FFmpegPath == "" {
		c.Recording.FFmpegPath = "ffmpeg"
	}

	if c.Spectrogram.Width == 0 {
		c.Spectrogram.Width = 72
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 20
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 3
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("invalid server.base_url %q: must be an http(s) URL", c.Server.BaseURL))
	}
	if !strings.HasPrefix(c.Server.Endpoint, "/") {
		errs = append(errs, fmt.Errorf("invalid server.endpoint %q: must start with /", c.Server.Endpoint))
	}
	if c.Server.Timeout < 0 {
		errs = append(errs, fmt.Errorf("server.timeout must not be negative"))
	}

	switch c.Recording.Container {
	case "webm", "ogg", "mp3", "wav":
	default:
		errs = append(errs, fmt.Errorf("invalid recording.container %q (must be webm, ogg, mp3 or wav)", c.Recording.Container))
	}
	if c.Recording.SampleRate < 8000 || c.Recording.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("recording.sample_rate out of range: %d", c.Recording.SampleRate))
	}
	if c.Recording.Channels < 1 || c.Recording.Channels > 2 {
		errs = append(errs, fmt.Errorf("recording.channels must be 1 or 2, got %d", c.Recording.Channels))
	}

	if c.Spectrogram.Width < 0 {
		errs = append(errs, fmt.Errorf("spectrogram.width must not be negative"))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid logging.level %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid logging.format %q (must be text or json)", c.Logging.Format))
	}

	return errors.Join(errs...)
}
