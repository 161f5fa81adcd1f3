package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"chatrelay/internal/directory"
	"chatrelay/internal/store"
	"chatrelay/pkg/history"
)

// Config is the system-wide settings tree. Store and directory sections are
// the configs of their packages so defaults live next to the code they tune.
type Config struct {
	HTTP      *HTTPConfig       `json:"http"`
	WebSocket *WebSocketConfig  `json:"websocket"`
	Store     *store.Config     `json:"store"`
	Directory *directory.Config `json:"directory"`
	History   *HistoryConfig    `json:"history"`
}

type HTTPConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
}

// HistoryConfig bounds the per-room buffer. Capacity doubles as the store
// fetch limit on room hydration.
type HistoryConfig struct {
	Capacity int `json:"capacity"`
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Store:     store.DefaultConfig(),
		Directory: directory.DefaultConfig(),
		History:   &HistoryConfig{Capacity: history.DefaultCapacity},
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.ReadTimeout <= 0 || c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket timeouts must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}

	if c.Store == nil {
		return fmt.Errorf("store configuration is required")
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}

	if c.Directory == nil {
		return fmt.Errorf("directory configuration is required")
	}
	if err := c.Directory.Validate(); err != nil {
		return err
	}

	if c.History == nil || c.History.Capacity <= 0 {
		return fmt.Errorf("history capacity must be positive")
	}

	return nil
}

// LoadFromEnv returns defaults overridden by CHATRELAY_* environment
// variables. Unparseable values fall back silently to the default.
func LoadFromEnv() *Config {
	cfg := DefaultConfig()

	if host := os.Getenv("CHATRELAY_HTTP_HOST"); host != "" {
		cfg.HTTP.Host = host
	}
	if port := os.Getenv("CHATRELAY_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.HTTP.Port = p
		}
	}
	if v := os.Getenv("CHATRELAY_HTTP_READ_TIMEOUT"); v != "" {
		if t, err := time.ParseDuration(v); err == nil {
			cfg.HTTP.ReadTimeout = t
		}
	}
	if v := os.Getenv("CHATRELAY_HTTP_WRITE_TIMEOUT"); v != "" {
		if t, err := time.ParseDuration(v); err == nil {
			cfg.HTTP.WriteTimeout = t
		}
	}

	if v := os.Getenv("CHATRELAY_WEBSOCKET_PING_INTERVAL"); v != "" {
		if t, err := time.ParseDuration(v); err == nil {
			cfg.WebSocket.PingInterval = t
		}
	}
	if v := os.Getenv("CHATRELAY_WEBSOCKET_READ_TIMEOUT"); v != "" {
		if t, err := time.ParseDuration(v); err == nil {
			cfg.WebSocket.ReadTimeout = t
		}
	}
	if v := os.Getenv("CHATRELAY_WEBSOCKET_WRITE_TIMEOUT"); v != "" {
		if t, err := time.ParseDuration(v); err == nil {
			cfg.WebSocket.WriteTimeout = t
		}
	}
	if v := os.Getenv("CHATRELAY_WEBSOCKET_BUFFER_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WebSocket.BufferSize = n
		}
	}

	if path := os.Getenv("CHATRELAY_STORE_PATH"); path != "" {
		cfg.Store.Path = path
	}
	if v := os.Getenv("CHATRELAY_STORE_WRITE_TIMEOUT"); v != "" {
		if t, err := time.ParseDuration(v); err == nil {
			cfg.Store.WriteTimeout = t
		}
	}

	if u := os.Getenv("CHATRELAY_DIRECTORY_URL"); u != "" {
		cfg.Directory.BaseURL = u
	}
	if v := os.Getenv("CHATRELAY_DIRECTORY_TIMEOUT"); v != "" {
		if t, err := time.ParseDuration(v); err == nil {
			cfg.Directory.Timeout = t
		}
	}

	return cfg
}

// configFile mirrors Config with string durations for JSON parsing.
type configFile struct {
	HTTP *struct {
		Host         string `json:"host"`
		Port         int    `json:"port"`
		ReadTimeout  string `json:"read_timeout"`
		WriteTimeout string `json:"write_timeout"`
	} `json:"http"`
	WebSocket *struct {
		PingInterval string `json:"ping_interval"`
		ReadTimeout  string `json:"read_timeout"`
		WriteTimeout string `json:"write_timeout"`
		BufferSize   int    `json:"buffer_size"`
	} `json:"websocket"`
	Store *struct {
		Path         string `json:"path"`
		WriteTimeout string `json:"write_timeout"`
	} `json:"store"`
	Directory *struct {
		BaseURL string `json:"base_url"`
		Timeout string `json:"timeout"`
	} `json:"directory"`
	History *struct {
		Capacity int `json:"capacity"`
	} `json:"history"`
}

// LoadFromFile reads a JSON config file layered over the defaults.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := applyFile(cfg, path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return cfg, nil
}

// applyFile layers the settings present in a JSON config file onto cfg,
// leaving absent fields untouched.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file configFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if file.HTTP != nil {
		if file.HTTP.Host != "" {
			cfg.HTTP.Host = file.HTTP.Host
		}
		if file.HTTP.Port > 0 {
			cfg.HTTP.Port = file.HTTP.Port
		}
		setDuration(&cfg.HTTP.ReadTimeout, file.HTTP.ReadTimeout)
		setDuration(&cfg.HTTP.WriteTimeout, file.HTTP.WriteTimeout)
	}
	if file.WebSocket != nil {
		setDuration(&cfg.WebSocket.PingInterval, file.WebSocket.PingInterval)
		setDuration(&cfg.WebSocket.ReadTimeout, file.WebSocket.ReadTimeout)
		setDuration(&cfg.WebSocket.WriteTimeout, file.WebSocket.WriteTimeout)
		if file.WebSocket.BufferSize > 0 {
			cfg.WebSocket.BufferSize = file.WebSocket.BufferSize
		}
	}
	if file.Store != nil {
		if file.Store.Path != "" {
			cfg.Store.Path = file.Store.Path
		}
		setDuration(&cfg.Store.WriteTimeout, file.Store.WriteTimeout)
	}
	if file.Directory != nil {
		if file.Directory.BaseURL != "" {
			cfg.Directory.BaseURL = file.Directory.BaseURL
		}
		setDuration(&cfg.Directory.Timeout, file.Directory.Timeout)
	}
	if file.History != nil && file.History.Capacity > 0 {
		cfg.History.Capacity = file.History.Capacity
	}

	return nil
}

// LoadWithPrecedence resolves configuration field-wise as file >
// environment > defaults: the file only overrides the settings it names,
// and environment values survive for the rest. An unreadable or invalid
// file is ignored so environment and defaults still work.
func LoadWithPrecedence(path string) *Config {
	if path != "" {
		cfg := LoadFromEnv()
		if applyFile(cfg, path) == nil && cfg.Validate() == nil {
			return cfg
		}
	}
	return LoadFromEnv()
}

func setDuration(dst *time.Duration, raw string) {
	if raw == "" {
		return
	}
	if d, err := time.ParseDuration(raw); err == nil {
		*dst = d
	}
}
