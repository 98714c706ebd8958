package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Config captures everything recipunto needs at startup.
type Config struct {
	BackendURL    string
	AnonKey       string
	DataDir       string
	StoragePath   string
	LogLevel      string
	LogFormat     string
	LogFile       string
	PollInterval  time.Duration // How often the storage file is checked for foreign writes
	ReconnectBase time.Duration // First change feed reconnect delay
	MetricsAddr   string        // Empty disables the metrics endpoint
}

// ErrNoBackend is returned by RequireBackend when the URL or key is unset.
var ErrNoBackend = errors.New("backend url and anon key must be configured")

const (
	defaultConfigPath    = "~/.config/recipunto/config.toml"
	defaultDataDir       = "~/.local/share/recipunto"
	defaultLogLevel      = "info"
	defaultLogFormat     = "console"
	defaultPollInterval  = time.Second
	defaultReconnectBase = 2 * time.Second
)

// Environment variables that override the config file.
const (
	EnvURL      = "RECIPUNTO_URL"
	EnvAnonKey  = "RECIPUNTO_ANON_KEY"
	EnvDataDir  = "RECIPUNTO_DATA_DIR"
	EnvLogLevel = "RECIPUNTO_LOG_LEVEL"
)

type fileConfig struct {
	DataDir       string `toml:"data_dir"`
	PollInterval  string `toml:"poll_interval"`
	ReconnectBase string `toml:"reconnect_base"`
	MetricsAddr   string `toml:"metrics_addr"`
	Backend       struct {
		URL     string `toml:"url"`
		AnonKey string `toml:"anon_key"`
	} `toml:"backend"`
	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
		File   string `toml:"file"`
	} `toml:"log"`
}

// Load locates and parses the config, falling back to defaults when missing.
// A .env file in the working directory is loaded first, and environment
// variables win over file values.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	var raw fileConfig
	file, err := os.Open(resolved)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("open config: %w", err)
	default:
		defer file.Close()
		bytes, err := io.ReadAll(file)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(bytes, &raw); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg := Config{
		BackendURL:  firstNonEmpty(os.Getenv(EnvURL), raw.Backend.URL),
		AnonKey:     firstNonEmpty(os.Getenv(EnvAnonKey), raw.Backend.AnonKey),
		DataDir:     mustExpand(firstNonEmpty(os.Getenv(EnvDataDir), raw.DataDir, defaultDataDir)),
		LogLevel:    strings.ToLower(firstNonEmpty(os.Getenv(EnvLogLevel), raw.Log.Level, defaultLogLevel)),
		LogFormat:   strings.ToLower(firstNonEmpty(raw.Log.Format, defaultLogFormat)),
		MetricsAddr: strings.TrimSpace(raw.MetricsAddr),
	}
	cfg.StoragePath = filepath.Join(cfg.DataDir, "storage.db")
	cfg.LogFile = filepath.Join(cfg.DataDir, "recipunto.log")
	if f := strings.TrimSpace(raw.Log.File); f != "" {
		cfg.LogFile = mustExpand(f)
	}

	if cfg.PollInterval, err = parseDuration(raw.PollInterval, defaultPollInterval); err != nil {
		return Config{}, fmt.Errorf("parse poll_interval: %w", err)
	}
	if cfg.ReconnectBase, err = parseDuration(raw.ReconnectBase, defaultReconnectBase); err != nil {
		return Config{}, fmt.Errorf("parse reconnect_base: %w", err)
	}
	return cfg, nil
}

// RequireBackend reports ErrNoBackend when the backend is not configured.
func (c Config) RequireBackend() error {
	if c.BackendURL == "" || c.AnonKey == "" {
		return fmt.Errorf("%w (set %s and %s, or [backend] in %s)", ErrNoBackend, EnvURL, EnvAnonKey, defaultConfigPath)
	}
	return nil
}

func parseDuration(raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
