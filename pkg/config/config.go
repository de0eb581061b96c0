package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Server ServerConfig `json:"server"`
	Web    WebConfig    `json:"web"`
	Log    LogConfig    `json:"log"`
	mu     sync.RWMutex
}

// ServerConfig points the widget at a Rasa REST server.
// The webhook path is fixed; only the base URL is configurable.
type ServerConfig struct {
	BaseURL        string `json:"base_url" env:"RASACHAT_SERVER_BASE_URL"`
	TimeoutSeconds int    `json:"timeout_seconds" env:"RASACHAT_SERVER_TIMEOUT_SECONDS"`
}

// WebConfig configures the self-hosted browser surface.
// Username and password are optional; when both are set the page
// requires a login before serving the chat UI.
type WebConfig struct {
	Host     string `json:"host" env:"RASACHAT_WEB_HOST"`
	Port     int    `json:"port" env:"RASACHAT_WEB_PORT"`
	Username string `json:"username" env:"RASACHAT_WEB_USERNAME"`
	Password string `json:"password" env:"RASACHAT_WEB_PASSWORD"`
}

type LogConfig struct {
	Level  string `json:"level" env:"RASACHAT_LOG_LEVEL"`
	Format string `json:"format" env:"RASACHAT_LOG_FORMAT"` // "console" or "json"
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:        "http://localhost:5005",
			TimeoutSeconds: 15,
		},
		Web: WebConfig{
			Host: "127.0.0.1",
			Port: 18800,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig reads the config file at path, falling back to defaults when the
// file does not exist, then applies RASACHAT_* environment overrides.
// A full config may also be supplied via RASACHAT_CONFIG_JSON, which takes
// precedence over the file (useful for containers).
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if cfgJSON := os.Getenv("RASACHAT_CONFIG_JSON"); cfgJSON != "" {
		if err := json.Unmarshal([]byte(cfgJSON), cfg); err != nil {
			return nil, fmt.Errorf("parsing RASACHAT_CONFIG_JSON: %w", err)
		}
		if err := env.Parse(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	data, err := os.ReadFile(expandHome(path))
	if err != nil {
		if os.IsNotExist(err) {
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	path = expandHome(path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultPath returns the default config file location (~/.rasachat/config.json).
func DefaultPath() string {
	return expandHome("~/.rasachat/config.json")
}

// DefaultLogPath returns where the terminal UI writes its log, since the
// terminal itself is taken over by the drawing loop.
func DefaultLogPath() string {
	path := expandHome("~/.rasachat/rasachat.log")
	os.MkdirAll(filepath.Dir(path), 0755)
	return path
}

func (c *Config) ServerBaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Server.BaseURL
}

func (c *Config) SetServerBaseURL(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Server.BaseURL = url
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
