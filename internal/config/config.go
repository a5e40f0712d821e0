package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// ErrUnknownKey is returned by GetValue and SetValue for a dot-key that
// does not exist in the config schema.
var ErrUnknownKey = errors.New("unknown config key")

// Config is the workspace daemon configuration. Absence of a backend
// endpoint is not an error: it selects demo mode.
type Config struct {
	DataDir       string `json:"data_dir"`
	LogLevel      string `json:"log_level"`
	MaxConcurrent int    `json:"max_concurrent"`
	Backend       struct {
		BaseURL     string `json:"base_url"`
		APIKey      string `json:"api_key"`
		TimeoutSecs int    `json:"timeout_secs"`
	} `json:"backend"`
	Simulation struct {
		PollIntervalSecs int `json:"poll_interval_secs"`
	} `json:"simulation"`
	Chat struct {
		TranscriptTokens int `json:"transcript_tokens"`
	} `json:"chat"`
	Health struct {
		Schedule string `json:"schedule"`
	} `json:"health"`
	Server struct {
		Addr string `json:"addr"`
	} `json:"server"`
	Telegram struct {
		Token string `json:"token"`
	} `json:"telegram"`
}

// Configured reports whether a backend endpoint has been supplied.
func (c *Config) Configured() bool {
	return c.Backend.BaseURL != ""
}

func defaults() *Config {
	cfg := &Config{
		DataDir:       filepath.Join(os.Getenv("HOME"), ".urbanflow"),
		LogLevel:      "info",
		MaxConcurrent: 2,
	}
	cfg.Backend.TimeoutSecs = 30
	cfg.Simulation.PollIntervalSecs = 2
	cfg.Chat.TranscriptTokens = 8000
	cfg.Health.Schedule = "@every 30s"
	cfg.Server.Addr = ":8085"
	return cfg
}

// Load reads the config file at path, writing defaults first if it does not
// exist. A .env file in the working directory is loaded before env-var
// overrides (BACKEND_API_URL, BACKEND_API_KEY, TELEGRAM_BOT_TOKEN), which
// take highest precedence.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	// .env is optional; absence is not an error.
	godotenv.Load()

	if url := os.Getenv("BACKEND_API_URL"); url != "" {
		cfg.Backend.BaseURL = url
	}
	if key := os.Getenv("BACKEND_API_KEY"); key != "" {
		cfg.Backend.APIKey = key
	}
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		cfg.Telegram.Token = token
	}

	return cfg, nil
}

// Save writes the config atomically (temp file + rename).
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ListValues returns the config as a flat dot-keyed map, optionally with
// secrets masked.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var nested map[string]any
	if err := json.Unmarshal(data, &nested); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	flat := Flatten(nested)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue reads one dot-keyed value from the config file at path.
func GetValue(path, key string) (any, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	flat, err := ListValues(cfg, false)
	if err != nil {
		return nil, err
	}
	val, ok := flat[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return val, nil
}

// SetValue writes one dot-keyed value into the config file at path.
func SetValue(path, key, value string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	flat, err := ListValues(cfg, false)
	if err != nil {
		return err
	}
	if _, ok := flat[key]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	flat[key] = coerce(flat[key], value)

	nested := Unflatten(flat)
	data, err := json.Marshal(nested)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	updated := defaults()
	if err := json.Unmarshal(data, updated); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return Save(path, updated)
}

// coerce parses value into the same JSON type the existing entry holds.
func coerce(existing any, value string) any {
	switch existing.(type) {
	case float64:
		var f float64
		if _, err := fmt.Sscanf(value, "%g", &f); err == nil {
			return f
		}
	case bool:
		return value == "true"
	}
	return value
}
