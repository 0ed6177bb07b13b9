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
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Save      SaveConfig      `yaml:"save"`
	Inbox     InboxConfig     `yaml:"inbox"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Clipboard ClipboardConfig `yaml:"clipboard"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type SaveConfig struct {
	Dir string `yaml:"dir"`

	// AutoAccept skips the save prompt and writes under the suggested name.
	AutoAccept bool `yaml:"auto_accept"`
}

type InboxConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

type FetchConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	MaxBytes  int64         `yaml:"max_bytes"`
	UserAgent string        `yaml:"user_agent"`
}

type ClipboardConfig struct {
	Enabled bool `yaml:"enabled"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	saveDir := "imgdrop"
	if home, err := os.UserHomeDir(); err == nil {
		saveDir = filepath.Join(home, "Pictures", "imgdrop")
	}

	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8787,
		},
		Save: SaveConfig{
			Dir: saveDir,
		},
		Fetch: FetchConfig{
			Timeout:   30 * time.Second,
			MaxBytes:  50 << 20,
			UserAgent: "imgdrop/1.0",
		},
		Clipboard: ClipboardConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads and parses the configuration file on top of the defaults.
// An empty path skips the file. Environment overrides (optionally from a
// .env file in the working directory) are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}

	cfg.Save.Dir = expandHome(cfg.Save.Dir)
	cfg.Inbox.Dir = expandHome(cfg.Inbox.Dir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// expandHome replaces a leading "~/" with the user's home directory.
func expandHome(path string) string {
	rest, ok := strings.CutPrefix(path, "~/")
	if !ok {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, rest)
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("IMGDROP_SAVE_DIR"); v != "" {
		c.Save.Dir = v
	}
	if v := os.Getenv("IMGDROP_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("IMGDROP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("IMGDROP_PORT: %w", err)
		}
		c.Server.Port = port
	}
	return nil
}

// Validate checks if required configuration fields are set
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Save.Dir == "" {
		return fmt.Errorf("save.dir is required")
	}
	if c.Inbox.Enabled && c.Inbox.Dir == "" {
		return fmt.Errorf("inbox.dir is required when inbox is enabled")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be positive")
	}
	if c.Fetch.MaxBytes <= 0 {
		return fmt.Errorf("fetch.max_bytes must be positive")
	}
	return nil
}

// Addr returns the listen address of the window server
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
