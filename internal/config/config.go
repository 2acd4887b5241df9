package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" json:"server"`
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
	Browser  BrowserConfig  `yaml:"browser" json:"browser"`
	Encoder  EncoderConfig  `yaml:"encoder" json:"encoder"`
	Capture  CaptureConfig  `yaml:"capture" json:"capture"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	Notify   NotifyConfig   `yaml:"notify" json:"notify"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host         string        `yaml:"host" json:"host" env:"SCROLLCAST_HOST"`
	Port         int           `yaml:"port" json:"port" env:"PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout" env:"SCROLLCAST_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" env:"SCROLLCAST_WRITE_TIMEOUT"`
	UIDir        string        `yaml:"ui_dir" json:"ui_dir" env:"SCROLLCAST_UI_DIR"`
	MediaRoute   string        `yaml:"media_route" json:"media_route" env:"SCROLLCAST_MEDIA_ROUTE"`
}

// StorageConfig controls where per-request workspaces live and how long they are kept
type StorageConfig struct {
	Dir             string        `yaml:"dir" json:"dir" env:"SCROLLCAST_STORAGE_DIR"`
	Retention       time.Duration `yaml:"retention" json:"retention" env:"SCROLLCAST_RETENTION"`
	JanitorInterval time.Duration `yaml:"janitor_interval" json:"janitor_interval" env:"SCROLLCAST_JANITOR_INTERVAL"`
}

// BrowserConfig controls how the headless browser is found and driven
type BrowserConfig struct {
	BinPath           string        `yaml:"bin_path" json:"bin_path" env:"SCROLLCAST_BROWSER_BIN"`
	FallbackPaths     []string      `yaml:"fallback_paths" json:"fallback_paths" env:"SCROLLCAST_BROWSER_FALLBACKS"`
	Headless          bool          `yaml:"headless" json:"headless" env:"SCROLLCAST_BROWSER_HEADLESS"`
	NoSandbox         bool          `yaml:"no_sandbox" json:"no_sandbox" env:"SCROLLCAST_BROWSER_NO_SANDBOX"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout" json:"navigation_timeout" env:"SCROLLCAST_NAVIGATION_TIMEOUT"`
	IdleWindow        time.Duration `yaml:"idle_window" json:"idle_window" env:"SCROLLCAST_IDLE_WINDOW"`
}

// EncoderConfig holds ffmpeg settings
type EncoderConfig struct {
	FFmpegPath string `yaml:"ffmpeg_path" json:"ffmpeg_path" env:"FFMPEG_PATH"`
	MP4CRF     int    `yaml:"mp4_crf" json:"mp4_crf" env:"SCROLLCAST_MP4_CRF"`
	GIFFPS     int    `yaml:"gif_fps" json:"gif_fps" env:"SCROLLCAST_GIF_FPS"`
	GIFWidth   int    `yaml:"gif_width" json:"gif_width" env:"SCROLLCAST_GIF_WIDTH"`
	Dither     string `yaml:"dither" json:"dither" env:"SCROLLCAST_GIF_DITHER"`
}

// CaptureConfig holds per-capture limits
type CaptureConfig struct {
	Timeout           time.Duration `yaml:"timeout" json:"timeout" env:"SCROLLCAST_CAPTURE_TIMEOUT"`
	ScreencastQuality int           `yaml:"screencast_quality" json:"screencast_quality" env:"SCROLLCAST_SCREENCAST_QUALITY"`
}

// DatabaseConfig holds the capture history database settings
type DatabaseConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" env:"SCROLLCAST_DB_ENABLED"`
	Type    string `yaml:"type" json:"type" env:"DATABASE_TYPE"`
	Path    string `yaml:"path" json:"path" env:"SQLITE_PATH"`
	DSN     string `yaml:"dsn" json:"-" env:"DATABASE_URL"`
}

// NotifyConfig controls completion events
type NotifyConfig struct {
	RedisURL string `yaml:"redis_url" json:"-" env:"REDIS_URL"`
	Channel  string `yaml:"channel" json:"channel" env:"SCROLLCAST_NOTIFY_CHANNEL"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" json:"format" env:"LOG_FORMAT"`
}

// ConfigManager manages application configuration with hot-reload support
type ConfigManager struct {
	config     *Config
	configPath string
	watchers   []ConfigWatcher
	mu         sync.RWMutex
}

// ConfigWatcher is called when configuration changes
type ConfigWatcher func(oldConfig, newConfig *Config)

// NewConfigManager creates a new configuration manager
func NewConfigManager() *ConfigManager {
	return &ConfigManager{
		config:   DefaultConfig(),
		watchers: make([]ConfigWatcher, 0),
	}
}

// DefaultConfig returns the default application configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 0, // captures stream for minutes
			UIDir:        "./public",
			MediaRoute:   "/videos",
		},
		Storage: StorageConfig{
			Dir:             "./data/captures",
			Retention:       24 * time.Hour,
			JanitorInterval: 30 * time.Minute,
		},
		Browser: BrowserConfig{
			FallbackPaths: []string{
				"/usr/bin/chromium",
				"/usr/bin/chromium-browser",
				"/usr/bin/google-chrome",
				"/usr/bin/google-chrome-stable",
			},
			Headless:          true,
			NoSandbox:         true,
			NavigationTimeout: 60 * time.Second,
			IdleWindow:        500 * time.Millisecond,
		},
		Encoder: EncoderConfig{
			FFmpegPath: "ffmpeg",
			MP4CRF:     18,
			GIFFPS:     12,
			GIFWidth:   800,
			Dither:     "sierra2_4a",
		},
		Capture: CaptureConfig{
			Timeout:           5 * time.Minute,
			ScreencastQuality: 90,
		},
		Database: DatabaseConfig{
			Enabled: true,
			Type:    "sqlite",
			Path:    "./data/scrollcast.db",
		},
		Notify: NotifyConfig{
			Channel: "scrollcast:captures",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func (cm *ConfigManager) LoadConfig(configPath string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	oldConfig := *cm.config
	cm.configPath = configPath

	newConfig := DefaultConfig()

	if configPath != "" && fileExists(configPath) {
		if err := loadFromFile(configPath, newConfig); err != nil {
			return fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := loadStructFromEnv(reflect.ValueOf(newConfig).Elem()); err != nil {
		return fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := newConfig.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	cm.config = newConfig

	for _, watcher := range cm.watchers {
		go watcher(&oldConfig, newConfig)
	}
	return nil
}

// Reload re-reads the configuration from the last loaded path
func (cm *ConfigManager) Reload() error {
	cm.mu.RLock()
	path := cm.configPath
	cm.mu.RUnlock()
	return cm.LoadConfig(path)
}

// Path returns the configuration file path last passed to LoadConfig
func (cm *ConfigManager) Path() string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.configPath
}

// GetConfig returns the current configuration (thread-safe)
func (cm *ConfigManager) GetConfig() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	configCopy := *cm.config
	configCopy.Browser.FallbackPaths = append([]string(nil), cm.config.Browser.FallbackPaths...)
	return &configCopy
}

// AddWatcher adds a configuration change watcher
func (cm *ConfigManager) AddWatcher(watcher ConfigWatcher) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.watchers = append(cm.watchers, watcher)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return &ValidationError{Field: "server.port", Message: "must be between 1 and 65535"}
	}
	if !strings.HasPrefix(c.Server.MediaRoute, "/") {
		return &ValidationError{Field: "server.media_route", Message: "must start with /"}
	}
	if c.Storage.Dir == "" {
		return &ValidationError{Field: "storage.dir", Message: "must not be empty"}
	}
	if c.Browser.NavigationTimeout <= 0 {
		return &ValidationError{Field: "browser.navigation_timeout", Message: "must be positive"}
	}
	if c.Encoder.MP4CRF < 0 || c.Encoder.MP4CRF > 51 {
		return &ValidationError{Field: "encoder.mp4_crf", Message: "must be between 0 and 51"}
	}
	if c.Encoder.GIFFPS < 1 || c.Encoder.GIFFPS > 60 {
		return &ValidationError{Field: "encoder.gif_fps", Message: "must be between 1 and 60"}
	}
	if c.Encoder.GIFWidth < 16 || c.Encoder.GIFWidth > 3840 {
		return &ValidationError{Field: "encoder.gif_width", Message: "must be between 16 and 3840"}
	}
	if c.Capture.ScreencastQuality < 1 || c.Capture.ScreencastQuality > 100 {
		return &ValidationError{Field: "capture.screencast_quality", Message: "must be between 1 and 100"}
	}
	switch c.Database.Type {
	case "sqlite", "postgres":
	default:
		return &ValidationError{Field: "database.type", Message: "must be sqlite or postgres"}
	}
	return nil
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "validation error in field '" + e.Field + "': " + e.Message
}

// Helper methods

func loadFromFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, config)
	case ".json":
		return json.Unmarshal(data, config)
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}
}

func loadStructFromEnv(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}

		envValue, ok := os.LookupEnv(envTag)
		if !ok || envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set field %s from %s: %w", fieldType.Name, envTag, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			duration, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(duration))
		} else {
			intVal, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(intVal)
		}
	case reflect.Bool:
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolVal)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type())
		}
		values := strings.Split(value, ",")
		for i, v := range values {
			values[i] = strings.TrimSpace(v)
		}
		field.Set(reflect.ValueOf(values))
	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
