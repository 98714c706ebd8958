package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv isolates a test from the caller's environment.
func clearEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range []string{EnvURL, EnvAnonKey, EnvDataDir, EnvLogLevel} {
		t.Setenv(k, "")
	}
	return home
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoad_MissingConfigFallsBackToDefaults(t *testing.T) {
	home := clearEnv(t)

	cfg, err := Load(filepath.Join(home, "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	wantDataDir, err := expandPath(defaultDataDir)
	if err != nil {
		t.Fatalf("expandPath(defaultDataDir) returned error: %v", err)
	}
	if cfg.DataDir != wantDataDir {
		t.Fatalf("DataDir = %q, want %q", cfg.DataDir, wantDataDir)
	}
	if cfg.StoragePath != filepath.Join(wantDataDir, "storage.db") {
		t.Fatalf("StoragePath = %q", cfg.StoragePath)
	}
	if cfg.LogFile != filepath.Join(wantDataDir, "recipunto.log") {
		t.Fatalf("LogFile = %q", cfg.LogFile)
	}
	if cfg.LogLevel != defaultLogLevel || cfg.LogFormat != defaultLogFormat {
		t.Fatalf("log = %q/%q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.PollInterval != defaultPollInterval || cfg.ReconnectBase != defaultReconnectBase {
		t.Fatalf("intervals = %v/%v", cfg.PollInterval, cfg.ReconnectBase)
	}
	if !errors.Is(cfg.RequireBackend(), ErrNoBackend) {
		t.Fatalf("RequireBackend should fail without a backend")
	}
}

func TestLoad_ParsesAndTrimsConfig(t *testing.T) {
	home := clearEnv(t)

	cfg, err := Load(writeConfig(t, `
data_dir = "  ~/.recipunto  "
poll_interval = "250ms"
reconnect_base = "5s"
metrics_addr = " 127.0.0.1:9464 "

[backend]
url = "  https://example.supabase.co  "
anon_key = "anon"

[log]
level = "DEBUG"
format = "json"
file = "~/logs/r.log"
`))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.BackendURL != "https://example.supabase.co" || cfg.AnonKey != "anon" {
		t.Fatalf("backend = %q/%q", cfg.BackendURL, cfg.AnonKey)
	}
	if cfg.DataDir != filepath.Join(home, ".recipunto") {
		t.Fatalf("DataDir = %q, want it under HOME %q", cfg.DataDir, home)
	}
	if cfg.LogLevel != "debug" || cfg.LogFormat != "json" || cfg.LogFile != filepath.Join(home, "logs/r.log") {
		t.Fatalf("log = %q/%q/%q", cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	}
	if cfg.PollInterval != 250*time.Millisecond || cfg.ReconnectBase != 5*time.Second {
		t.Fatalf("intervals = %v/%v", cfg.PollInterval, cfg.ReconnectBase)
	}
	if cfg.MetricsAddr != "127.0.0.1:9464" {
		t.Fatalf("MetricsAddr = %q", cfg.MetricsAddr)
	}
	if err := cfg.RequireBackend(); err != nil {
		t.Fatalf("RequireBackend: %v", err)
	}
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	clearEnv(t)
	dataDir := t.TempDir()
	t.Setenv(EnvURL, "http://localhost:54321")
	t.Setenv(EnvAnonKey, "env-key")
	t.Setenv(EnvDataDir, dataDir)
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := Load(writeConfig(t, `
[backend]
url = "https://file.example"
anon_key = "file-key"
[log]
level = "debug"
`))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.BackendURL != "http://localhost:54321" || cfg.AnonKey != "env-key" {
		t.Fatalf("backend = %q/%q", cfg.BackendURL, cfg.AnonKey)
	}
	if cfg.DataDir != dataDir || cfg.LogLevel != "warn" {
		t.Fatalf("DataDir/LogLevel = %q/%q", cfg.DataDir, cfg.LogLevel)
	}
}

func TestLoad_EmptyValuesUseDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(writeConfig(t, `
data_dir = "   "
poll_interval = ""
[log]
level = ""
`))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	wantDataDir, _ := expandPath(defaultDataDir)
	if cfg.DataDir != wantDataDir || cfg.LogLevel != defaultLogLevel || cfg.PollInterval != defaultPollInterval {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoad_InvalidTOMLFails(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeConfig(t, `data_dir = [`))
	if err == nil {
		t.Fatalf("Load returned nil error, want parse error")
	}
	if !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("Load error = %q, want it to mention parse config", err.Error())
	}
}

func TestLoad_InvalidDurationFails(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeConfig(t, `poll_interval = "soon"`))
	if err == nil || !strings.Contains(err.Error(), "poll_interval") {
		t.Fatalf("Load error = %v, want poll_interval parse error", err)
	}
}

func TestExpandPath_ExpandsTildeAndReturnsAbs(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := expandPath("~/a/b")
	if err != nil {
		t.Fatalf("expandPath returned error: %v", err)
	}
	want := filepath.Join(home, "a/b")
	if got != want {
		t.Fatalf("expandPath = %q, want %q", got, want)
	}
}

func TestExpandPath_EmptyErrors(t *testing.T) {
	if _, err := expandPath("   "); err == nil {
		t.Fatalf("expandPath returned nil error, want error")
	}
}
