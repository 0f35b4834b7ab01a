package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
	log "github.com/sirupsen/logrus"

	"github.com/spektr-org/storequery/engine"
	"github.com/spektr-org/storequery/translator"
)

// AppConfig is the full application configuration.
type AppConfig struct {
	Server   ServerConfig   `toml:"server"`
	Fallback FallbackConfig `toml:"fallback"`
	Engine   EngineConfig   `toml:"engine"`
	History  HistoryConfig  `toml:"history"`
	Log      LogConfig      `toml:"log"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `toml:"port"`
	AllowedOrigins []string `toml:"allowed_origins"`
	MaxUploadMB    int      `toml:"max_upload_mb"`
}

// FallbackConfig configures the model call for unmatched questions.
// An empty API key disables the fallback.
type FallbackConfig struct {
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	Endpoint       string `toml:"endpoint"`
	Mode           string `toml:"mode"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	Retries        int    `toml:"retries"`
	BackoffMillis  int    `toml:"backoff_millis"`
	SampleRows     int    `toml:"sample_rows"`
}

// EngineConfig configures rule computations.
type EngineConfig struct {
	DisplayUnit      string  `toml:"display_unit"`
	AnomalyThreshold float64 `toml:"anomaly_threshold"`
	DefaultLimit     int     `toml:"default_limit"`
}

// HistoryConfig bounds the session history.
type HistoryConfig struct {
	Size int `toml:"size"`
}

// LogConfig configures logrus.
type LogConfig struct {
	Level string `toml:"level"`
	JSON  bool   `toml:"json"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"*"},
			MaxUploadMB:    32,
		},
		Fallback: FallbackConfig{
			Model:          translator.DefaultModel,
			Endpoint:       translator.DefaultEndpoint,
			Mode:           string(translator.ModePlan),
			TimeoutSeconds: 30,
			Retries:        1,
			BackoffMillis:  500,
			SampleRows:     translator.DefaultSampleRows,
		},
		Engine: EngineConfig{
			DisplayUnit:      "INR",
			AnomalyThreshold: 3,
			DefaultLimit:     10,
		},
		History: HistoryConfig{Size: 10},
		Log:     LogConfig{Level: "info"},
	}
}

// GetExeDir returns the directory of the running executable.
func GetExeDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Dir(exe), nil
}

// LoadConfig reads path, or config.toml next to the executable when path
// is empty. A missing default file is not an error. Environment
// overrides apply last.
func LoadConfig(path string) (*AppConfig, error) {
	config := DefaultConfig()

	explicit := path != ""
	if !explicit {
		exeDir, err := GetExeDir()
		if err != nil {
			exeDir = "."
		}
		path = filepath.Join(exeDir, "config.toml")
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return nil, err
	}

	if err := applyEnv(config); err != nil {
		return nil, err
	}
	return config, nil
}

func applyEnv(config *AppConfig) error {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		config.Fallback.APIKey = v
	}
	if v := os.Getenv("STOREQUERY_MODEL"); v != "" {
		config.Fallback.Model = v
	}
	if v := os.Getenv("STOREQUERY_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("STOREQUERY_PORT: %w", err)
		}
		config.Server.Port = port
	}
	return nil
}

// SaveConfig writes config as TOML.
func SaveConfig(config *AppConfig, path string) error {
	data, err := toml.Marshal(config)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// FallbackEnabled reports whether an API key is configured.
func (c *AppConfig) FallbackEnabled() bool { return c.Fallback.APIKey != "" }

// TranslatorConfig converts the fallback section.
func (c *AppConfig) TranslatorConfig() translator.Config {
	f := c.Fallback
	return translator.Config{
		APIKey:     f.APIKey,
		Model:      f.Model,
		Endpoint:   f.Endpoint,
		Mode:       translator.Mode(f.Mode),
		Timeout:    time.Duration(f.TimeoutSeconds) * time.Second,
		Retries:    f.Retries,
		Backoff:    time.Duration(f.BackoffMillis) * time.Millisecond,
		SampleRows: f.SampleRows,
	}
}

// EngineOptions converts the engine section.
func (c *AppConfig) EngineOptions() []engine.Option {
	opts := []engine.Option{engine.WithDisplayUnit(c.Engine.DisplayUnit)}
	if c.Engine.AnomalyThreshold > 0 {
		opts = append(opts, engine.WithAnomalyThreshold(c.Engine.AnomalyThreshold))
	}
	if c.Engine.DefaultLimit > 0 {
		opts = append(opts, engine.WithDefaultLimit(c.Engine.DefaultLimit))
	}
	return opts
}

// ConfigureLogging applies the log section to the standard logrus logger.
func (c *AppConfig) ConfigureLogging() error {
	level, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return err
	}
	log.SetLevel(level)
	if c.Log.JSON {
		log.SetFormatter(&log.JSONFormatter{})
	}
	return nil
}
