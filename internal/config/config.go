// Package config loads meetbot's launch configuration.
//
// Sources are applied in order, later ones overriding earlier ones:
//  1. Default values
//  2. YAML file (--config, $MEETBOT_CONFIG or ~/.config/meetbot/config.yaml)
//  3. A .env file in the working directory (never overrides real env vars)
//  4. MEETBOT_* environment variables
//  5. Command line flags, applied by the caller
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/fentz26/meetbot/internal/models"
	"github.com/fentz26/meetbot/internal/platform"
)

// Defaults.
const (
	DefaultDisplayName       = "Meeting Bot"
	DefaultHeartbeatInterval = 5 * time.Second
	DefaultAPITimeout        = 10 * time.Second
	DefaultRecordingsDir     = "recordings"
	DefaultContainer         = "webm"
	DefaultStatusAddr        = "127.0.0.1:7467"
	DefaultConfigDir         = ".config/meetbot"
	DefaultConfigFile        = "config.yaml"
	EnvPrefix                = "MEETBOT_"
)

// BotConfig identifies the meeting and how to present the bot.
type BotConfig struct {
	ID          int64  `yaml:"id"`
	MeetingURL  string `yaml:"meeting_url"`
	Platform    string `yaml:"platform"`
	DisplayName string `yaml:"display_name"`
	// JoinTimeout of zero uses the platform default.
	JoinTimeout Duration `yaml:"join_timeout"`
	// EndTimeout caps the time spent in the call. Zero waits for the meeting to end.
	EndTimeout Duration `yaml:"end_timeout"`
}

// BrowserConfig controls the Chrome instance.
type BrowserConfig struct {
	// Headless defaults to false: meeting sites treat headless Chrome as a bot.
	Headless  bool   `yaml:"headless"`
	ExecPath  string `yaml:"exec_path"`
	Display   string `yaml:"display"`
	UserAgent string `yaml:"user_agent"`
}

// ControlPlaneConfig points at the control plane API.
type ControlPlaneConfig struct {
	URL               string   `yaml:"url"`
	APIKey            string   `yaml:"api_key"`
	Timeout           Duration `yaml:"timeout"`
	HeartbeatInterval Duration `yaml:"heartbeat_interval"`
}

// RecordingConfig controls the capture.
type RecordingConfig struct {
	Dir         string   `yaml:"dir"`
	Container   string   `yaml:"container"`
	FFmpegPath  string   `yaml:"ffmpeg_path"`
	AudioSource string   `yaml:"audio_source"`
	FrameRate   int      `yaml:"frame_rate"`
	StopGrace   Duration `yaml:"stop_grace"`
}

// Config is the complete launch configuration.
type Config struct {
	Bot          BotConfig          `yaml:"bot"`
	Browser      BrowserConfig      `yaml:"browser"`
	ControlPlane ControlPlaneConfig `yaml:"control_plane"`
	Recording    RecordingConfig    `yaml:"recording"`

	// StorePath is the SQLite run journal.
	StorePath string `yaml:"store_path"`
	// RedisURL enables the Redis event mirror when set.
	RedisURL string `yaml:"redis_url"`
	// StatusAddr is the local status server address. Empty disables it.
	StatusAddr string `yaml:"status_addr"`

	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Bot: BotConfig{
			DisplayName: DefaultDisplayName,
		},
		Browser: BrowserConfig{
			Display: os.Getenv("DISPLAY"),
		},
		ControlPlane: ControlPlaneConfig{
			Timeout:           Duration(DefaultAPITimeout),
			HeartbeatInterval: Duration(DefaultHeartbeatInterval),
		},
		Recording: RecordingConfig{
			Dir:       DefaultRecordingsDir,
			Container: DefaultContainer,
		},
		StorePath:  DefaultStorePath(),
		StatusAddr: DefaultStatusAddr,
		LogLevel:   "info",
	}
}

// ConfigDir returns $MEETBOT_CONFIG_DIR or ~/.config/meetbot.
func ConfigDir() (string, error) {
	if dir := os.Getenv(EnvPrefix + "CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, DefaultConfigDir), nil
}

// DefaultStorePath is the journal location inside the config directory.
func DefaultStorePath() string {
	dir, err := ConfigDir()
	if err != nil {
		return "meetbot.db"
	}
	return filepath.Join(dir, "meetbot.db")
}

// Load builds the configuration from defaults, the YAML file, .env and the
// environment. An empty path falls back to $MEETBOT_CONFIG and then the
// default location; only an explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvPrefix + "CONFIG")
		explicit = path != ""
	}
	if !explicit {
		if dir, err := ConfigDir(); err == nil {
			path = filepath.Join(dir, DefaultConfigFile)
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil || explicit {
			if err := loadFromFile(cfg, path); err != nil {
				return nil, fmt.Errorf("loading config file: %w", err)
			}
		}
	}

	// .env is optional; it never overrides variables already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// loadFromEnv overlays MEETBOT_* variables onto the configuration.
func loadFromEnv(cfg *Config) error {
	str := func(name string, dst *string) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	var errs []error
	boolean := func(name string, dst *bool) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}
	duration := func(name string, dst *Duration) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			d, err := ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = Duration(d)
		}
	}

	if v := os.Getenv(EnvPrefix + "BOT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sBOT_ID: %w", EnvPrefix, err))
		} else {
			cfg.Bot.ID = id
		}
	}
	str("MEETING_URL", &cfg.Bot.MeetingURL)
	str("PLATFORM", &cfg.Bot.Platform)
	str("DISPLAY_NAME", &cfg.Bot.DisplayName)
	duration("JOIN_TIMEOUT", &cfg.Bot.JoinTimeout)
	duration("END_TIMEOUT", &cfg.Bot.EndTimeout)

	boolean("HEADLESS", &cfg.Browser.Headless)
	str("CHROME_PATH", &cfg.Browser.ExecPath)
	str("DISPLAY", &cfg.Browser.Display)
	str("USER_AGENT", &cfg.Browser.UserAgent)

	str("API_URL", &cfg.ControlPlane.URL)
	str("API_KEY", &cfg.ControlPlane.APIKey)
	duration("API_TIMEOUT", &cfg.ControlPlane.Timeout)
	duration("HEARTBEAT_INTERVAL", &cfg.ControlPlane.HeartbeatInterval)

	str("RECORDINGS_DIR", &cfg.Recording.Dir)
	str("CONTAINER", &cfg.Recording.Container)
	str("FFMPEG_PATH", &cfg.Recording.FFmpegPath)
	str("AUDIO_SOURCE", &cfg.Recording.AudioSource)

	str("DB", &cfg.StorePath)
	str("REDIS_URL", &cfg.RedisURL)
	str("STATUS_ADDR", &cfg.StatusAddr)
	str("LOG_LEVEL", &cfg.LogLevel)
	boolean("LOG_JSON", &cfg.LogJSON)

	return errors.Join(errs...)
}

// ParseDuration accepts Go durations ("90s") and bare integers, which are
// milliseconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(s)
}

// Duration is a time.Duration that reads from YAML the same way ParseDuration
// reads the environment, so `join_timeout: 60000` means 60s.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML accepts "90s" style strings and bare integer milliseconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	parsed, err := ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes d in Go duration syntax.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// Platform parses the configured platform.
func (c *Config) Platform() (models.Platform, error) {
	return models.ParsePlatform(c.Bot.Platform)
}

// Identity returns the bot identity for this run.
func (c *Config) Identity() (models.BotIdentity, error) {
	p, err := c.Platform()
	if err != nil {
		return models.BotIdentity{}, err
	}
	return models.BotIdentity{ID: c.Bot.ID, Platform: p, MeetingURL: c.Bot.MeetingURL}, nil
}

// JoinTimeout returns the configured join timeout or the platform default.
func (c *Config) JoinTimeout() time.Duration {
	if c.Bot.JoinTimeout > 0 {
		return c.Bot.JoinTimeout.Std()
	}
	p, err := c.Platform()
	if err != nil {
		return 0
	}
	return platform.DefaultJoinTimeout(p)
}

// Validate checks the fields a run cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Bot.MeetingURL == "" {
		errs = append(errs, errors.New("meeting_url is required"))
	}
	if c.Bot.Platform == "" {
		errs = append(errs, errors.New("platform is required"))
	} else if _, err := c.Platform(); err != nil {
		errs = append(errs, err)
	}
	if c.Bot.ID < 0 {
		errs = append(errs, errors.New("bot id must not be negative"))
	}
	if c.ControlPlane.URL != "" && c.Bot.ID == 0 {
		errs = append(errs, errors.New("bot id is required when a control plane is configured"))
	}
	if c.Bot.JoinTimeout < 0 || c.Bot.EndTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	if c.ControlPlane.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("heartbeat_interval must be positive"))
	}
	if c.Recording.Dir == "" {
		errs = append(errs, errors.New("recording dir is required"))
	}
	return errors.Join(errs...)
}
