// internal/config/config.go
//
// This package handles configuration and the .unirun directory structure.
// The client keeps its config file, .env and logs in a .unirun/ folder inside
// the directory it was started from.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// Dir is the name of the directory we create in the working directory
	Dir = ".unirun"

	DefaultBaseURL        = "http://127.0.0.1:5000/api"
	DefaultTimeout        = 10 * time.Second
	DefaultPollInterval   = 3 * time.Second
	DefaultNoticeDuration = 2 * time.Second
	DefaultMockHost       = "127.0.0.1"
	DefaultMockPort       = 5000
	DefaultLogLevel       = "info"
)

const defaultConfigYAML = `# unirun client configuration
version: 1

api:
  base_url: http://127.0.0.1:5000/api
  # token: "1"
  timeout: 10s

# The signed-in user. The mock server accepts the user id as the token.
viewer:
  user_id: ""

polling:
  interval: 3s

notices:
  duration: 2s

mock:
  host: 127.0.0.1
  port: 5000
  seed_orders: 0

log:
  level: info
`

// APIConfig points the client at the order API.
type APIConfig struct {
	BaseURL string        `yaml:"base_url" env:"UNIRUN_API_URL"`
	Token   string        `yaml:"token,omitempty" env:"UNIRUN_TOKEN"`
	Timeout time.Duration `yaml:"timeout" env:"UNIRUN_API_TIMEOUT"`
}

// ViewerConfig identifies the signed-in user.
type ViewerConfig struct {
	UserID string `yaml:"user_id" env:"UNIRUN_USER_ID"`
}

// PollingConfig controls the detail-view refresh cadence.
type PollingConfig struct {
	Interval time.Duration `yaml:"interval" env:"UNIRUN_POLL_INTERVAL"`
}

// NoticeConfig controls transient notices.
type NoticeConfig struct {
	Duration time.Duration `yaml:"duration" env:"UNIRUN_NOTICE_DURATION"`
}

// MockConfig configures `unirun mock`.
type MockConfig struct {
	Host       string `yaml:"host" env:"UNIRUN_MOCK_HOST"`
	Port       int    `yaml:"port" env:"UNIRUN_MOCK_PORT"`
	SeedOrders int    `yaml:"seed_orders" env:"UNIRUN_MOCK_SEED_ORDERS"`
}

// LogConfig selects the zap level.
type LogConfig struct {
	Level string `yaml:"level" env:"UNIRUN_LOG_LEVEL"`
}

// FileConfig models .unirun/config.yaml.
type FileConfig struct {
	Version int           `yaml:"version"`
	API     APIConfig     `yaml:"api"`
	Viewer  ViewerConfig  `yaml:"viewer"`
	Polling PollingConfig `yaml:"polling"`
	Notices NoticeConfig  `yaml:"notices"`
	Mock    MockConfig    `yaml:"mock"`
	Log     LogConfig     `yaml:"log"`
}

// Config holds the runtime configuration.
type Config struct {
	// WorkDir is the directory where the user ran `unirun` from
	WorkDir string

	// StateDir is WorkDir/.unirun
	StateDir string

	File FileConfig
}

// InitDir creates the .unirun directory structure in the given directory.
//
// Structure created:
// .unirun/
// ├── config.yaml
// └── logs/
func InitDir(workDir string) error {
	dir := filepath.Join(workDir, Dir)
	if err := os.MkdirAll(filepath.Join(dir, "logs"), 0o755); err != nil {
		return err
	}
	return ensureConfigFile(filepath.Join(dir, "config.yaml"))
}

// Load reads .unirun/config.yaml, then .unirun/.env, then the process
// environment. Later sources win.
func Load(workDir string) (*Config, error) {
	cfg := &Config{
		WorkDir:  workDir,
		StateDir: filepath.Join(workDir, Dir),
		File:     defaultFileConfig(),
	}
	if err := cfg.loadFile(); err != nil {
		return nil, err
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	cfg.File.applyDefaults()
	cfg.File.normalize()
	if err := cfg.File.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Default returns a configuration that never touched the filesystem.
func Default() *Config {
	return &Config{File: defaultFileConfig()}
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.StateDir, "logs")
}

// ConfigPath returns the on-disk location for the config file.
func (c *Config) ConfigPath() string {
	return filepath.Join(c.StateDir, "config.yaml")
}

// EnvPath returns the optional dotenv file.
func (c *Config) EnvPath() string {
	return filepath.Join(c.StateDir, ".env")
}

// MockAddress is the host:port the mock server binds.
func (c *Config) MockAddress() string {
	return fmt.Sprintf("%s:%d", c.File.Mock.Host, c.File.Mock.Port)
}

// SetViewer records the signed-in user and token and persists them.
func (c *Config) SetViewer(userID, token string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("config: user id is required")
	}
	c.File.Viewer.UserID = userID
	if token = strings.TrimSpace(token); token != "" {
		c.File.API.Token = token
	}
	return c.save()
}

func (c *Config) loadFile() error {
	path := c.ConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	parsed := defaultFileConfig()
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	c.File = parsed
	return nil
}

func (c *Config) loadEnv() error {
	if err := godotenv.Load(c.EnvPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: load %s: %w", c.EnvPath(), err)
	}
	if err := env.Parse(&c.File); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}
	return nil
}

func defaultFileConfig() FileConfig {
	return FileConfig{
		Version: 1,
		API:     APIConfig{BaseURL: DefaultBaseURL, Timeout: DefaultTimeout},
		Polling: PollingConfig{Interval: DefaultPollInterval},
		Notices: NoticeConfig{Duration: DefaultNoticeDuration},
		Mock:    MockConfig{Host: DefaultMockHost, Port: DefaultMockPort},
		Log:     LogConfig{Level: DefaultLogLevel},
	}
}

func (fc *FileConfig) applyDefaults() {
	if fc.Version == 0 {
		fc.Version = 1
	}
	if fc.API.Timeout <= 0 {
		fc.API.Timeout = DefaultTimeout
	}
	if fc.Polling.Interval <= 0 {
		fc.Polling.Interval = DefaultPollInterval
	}
	if fc.Notices.Duration <= 0 {
		fc.Notices.Duration = DefaultNoticeDuration
	}
	if fc.Mock.Port <= 0 || fc.Mock.Port > 65535 {
		fc.Mock.Port = DefaultMockPort
	}
}

func (fc *FileConfig) normalize() {
	fc.API.BaseURL = strings.TrimRight(strings.TrimSpace(fc.API.BaseURL), "/")
	if fc.API.BaseURL == "" {
		fc.API.BaseURL = DefaultBaseURL
	}
	fc.API.Token = strings.TrimSpace(fc.API.Token)
	fc.Viewer.UserID = strings.TrimSpace(fc.Viewer.UserID)
	fc.Mock.Host = strings.TrimSpace(fc.Mock.Host)
	if fc.Mock.Host == "" {
		fc.Mock.Host = DefaultMockHost
	}
	fc.Log.Level = strings.ToLower(strings.TrimSpace(fc.Log.Level))
	if fc.Log.Level == "" {
		fc.Log.Level = DefaultLogLevel
	}
}

func (fc *FileConfig) validate() error {
	if fc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	parsed, err := url.Parse(fc.API.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("api.base_url %q is not an absolute URL", fc.API.BaseURL)
	}
	switch parsed.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("api.base_url must use http or https")
	}
	if fc.Polling.Interval < 100*time.Millisecond {
		return fmt.Errorf("polling.interval must be at least 100ms")
	}
	if fc.Mock.SeedOrders < 0 {
		return fmt.Errorf("mock.seed_orders must be >= 0")
	}
	switch fc.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	return nil
}

func ensureConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}

func (c *Config) save() error {
	if c == nil {
		return fmt.Errorf("config: nil receiver")
	}
	if c.StateDir == "" {
		return nil
	}
	c.File.applyDefaults()
	c.File.normalize()
	if err := c.File.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.MkdirAll(c.StateDir, 0o755); err != nil {
		return fmt.Errorf("config: ensure state dir: %w", err)
	}
	data, err := yaml.Marshal(c.File)
	if err != nil {
		return fmt.Errorf("config: encode config: %w", err)
	}
	if err := os.WriteFile(c.ConfigPath(), data, 0o644); err != nil {
		return fmt.Errorf("config: write config: %w", err)
	}
	return nil
}
