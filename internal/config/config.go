package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type EventSeed struct {
	Name       string `json:"name"`
	TotalSlots int    `json:"totalSlots"`
}

type ServerConfig struct {
	Port int    `json:"port"`
	Host string `json:"host"`

	// MaxActiveUsers is how many connections may reserve at once.
	MaxActiveUsers int `json:"maxActiveUsers"`

	// Timeouts are in seconds.
	ChoiceTimeout       int `json:"choiceTimeout"`
	ConfirmationTimeout int `json:"confirmationTimeout"`
	CleanupInterval     int `json:"cleanupInterval"`

	SendBuffer int         `json:"sendBuffer"`
	Events     []EventSeed `json:"events"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s ServerConfig) ConfirmationTTL() time.Duration {
	return time.Duration(s.ConfirmationTimeout) * time.Second
}

func (s ServerConfig) CleanupEvery() time.Duration {
	return time.Duration(s.CleanupInterval) * time.Second
}

type ClientConfig struct {
	URL        string `json:"url"`
	SendBuffer int    `json:"sendBuffer"`
	Webhook    string `json:"webhook"`
}

type Config struct {
	LogDir    string       `json:"logDir"`
	LogLevel  string       `json:"logLevel"`
	LogFormat string       `json:"logFormat"` // "text" or "json"
	Server    ServerConfig `json:"server"`
	Client    ClientConfig `json:"client"`
}

func Defaults() Config {
	home, _ := os.UserHomeDir()
	return Config{
		LogDir:    filepath.Join(home, ".event-reserve", "logs"),
		LogLevel:  "info",
		LogFormat: "text",
		Server: ServerConfig{
			Port:                8080,
			Host:                "0.0.0.0",
			MaxActiveUsers:      3,
			ChoiceTimeout:       120,
			ConfirmationTimeout: 300,
			CleanupInterval:     30,
			SendBuffer:          64,
		},
		Client: ClientConfig{
			URL:        "ws://localhost:8080/ws",
			SendBuffer: 64,
		},
	}
}

func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".event-reserve", "config.json")
}

// Load reads path over Defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv loads .env from the working directory, if present, and overlays
// any RESERVE_* variables onto cfg. Variables already set in the process
// environment win over .env.
func ApplyEnv(cfg *Config) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	if v := os.Getenv("RESERVE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("RESERVE_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("RESERVE_LOG_DIR"); v != "" {
		cfg.LogDir = v
	}
	if v := os.Getenv("RESERVE_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("RESERVE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RESERVE_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("RESERVE_URL"); v != "" {
		cfg.Client.URL = v
	}
	if v := os.Getenv("RESERVE_WEBHOOK"); v != "" {
		cfg.Client.Webhook = v
	}
	return nil
}
