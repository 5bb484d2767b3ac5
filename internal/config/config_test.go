package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chatmark.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("setup: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	if cfg.Render.Typesetter != TypesetterQuickJS {
		t.Errorf("Render.Typesetter = %q, want %q", cfg.Render.Typesetter, TypesetterQuickJS)
	}
	if !cfg.Render.Citations || !cfg.Render.CopyButtons {
		t.Error("citations and copy buttons should default to enabled")
	}
	if cfg.API.Temperature != DefaultTemperature || cfg.API.MaxTokens != DefaultMaxTokens {
		t.Errorf("API defaults = %v/%d", cfg.API.Temperature, cfg.API.MaxTokens)
	}
	if cfg.Server.Addr != DefaultAddr {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, DefaultAddr)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v", err)
	}
}

func TestValidateFieldLength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		value   string
		max     int
		wantErr bool
	}{
		{"empty", "", 10, false},
		{"at limit", strings.Repeat("a", 10), 10, false},
		{"over limit", strings.Repeat("a", 11), 10, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := validateFieldLength("field", tt.value, tt.max)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateFieldLength() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrFieldTooLong) {
				t.Errorf("error = %v, want ErrFieldTooLong", err)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestConfig_Validate - Field rules
// ---------------------------------------------------------------------------

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr error
	}{
		{
			name:   "defaults",
			modify: func(*Config) {},
		},
		{
			name:   "https api url",
			modify: func(c *Config) { c.API.URL = "https://api.example.com/v1/chat/completions" },
		},
		{
			name:    "relative api url",
			modify:  func(c *Config) { c.API.URL = "/v1/chat" },
			wantErr: ErrInvalidValue,
		},
		{
			name:    "ftp ui url",
			modify:  func(c *Config) { c.Auth.UIURL = "ftp://example.com" },
			wantErr: ErrInvalidValue,
		},
		{
			name:    "url too long",
			modify:  func(c *Config) { c.API.URL = "https://example.com/" + strings.Repeat("a", MaxURLLength) },
			wantErr: ErrFieldTooLong,
		},
		{
			name:    "model too long",
			modify:  func(c *Config) { c.API.Model = strings.Repeat("m", MaxModelLength+1) },
			wantErr: ErrFieldTooLong,
		},
		{
			name:    "temperature too high",
			modify:  func(c *Config) { c.API.Temperature = 2.5 },
			wantErr: ErrInvalidValue,
		},
		{
			name:    "negative max tokens",
			modify:  func(c *Config) { c.API.MaxTokens = -1 },
			wantErr: ErrInvalidValue,
		},
		{
			name:   "katex typesetter any case",
			modify: func(c *Config) { c.Render.Typesetter = "KaTeX" },
		},
		{
			name:   "mathml typesetter",
			modify: func(c *Config) { c.Render.Typesetter = TypesetterMathML },
		},
		{
			name:    "unknown typesetter",
			modify:  func(c *Config) { c.Render.Typesetter = "mathjax" },
			wantErr: ErrInvalidValue,
		},
		{
			name:    "too many workers",
			modify:  func(c *Config) { c.Render.Workers = MaxWorkers + 1 },
			wantErr: ErrInvalidValue,
		},
		{
			name:    "empty server addr",
			modify:  func(c *Config) { c.Server.Addr = " " },
			wantErr: ErrInvalidValue,
		},
		{
			name:    "negative login wait",
			modify:  func(c *Config) { c.Auth.LoginWait = -time.Second },
			wantErr: ErrInvalidValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestLoad - Files and search paths
// ---------------------------------------------------------------------------

func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("file values override defaults", func(t *testing.T) {
		t.Parallel()

		path := writeConfig(t, `api:
  url: "https://api.example.com/chat"
  model: "gpt-test"
  timeout: 30s
render:
  typesetter: katex
  citations: false
server:
  addr: ":9090"
`)
		cfg, used, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if used != path {
			t.Errorf("Load() path = %q, want %q", used, path)
		}
		if cfg.API.URL != "https://api.example.com/chat" || cfg.API.Model != "gpt-test" {
			t.Errorf("API = %+v", cfg.API)
		}
		if cfg.API.Timeout != 30*time.Second {
			t.Errorf("API.Timeout = %v, want 30s", cfg.API.Timeout)
		}
		if cfg.Render.Typesetter != TypesetterKaTeX || cfg.Render.Citations {
			t.Errorf("Render = %+v", cfg.Render)
		}
		if !cfg.Render.CopyButtons {
			t.Error("absent fields should keep their defaults")
		}
		if cfg.Server.Addr != ":9090" {
			t.Errorf("Server.Addr = %q", cfg.Server.Addr)
		}
	})

	t.Run("empty file yields defaults", func(t *testing.T) {
		t.Parallel()

		cfg, _, err := Load(writeConfig(t, "\n"))
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Server.Addr != DefaultAddr {
			t.Errorf("Server.Addr = %q", cfg.Server.Addr)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, _, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		if !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("Load() error = %v, want ErrConfigNotFound", err)
		}
	})

	t.Run("invalid YAML", func(t *testing.T) {
		t.Parallel()

		_, _, err := Load(writeConfig(t, "api: [unclosed"))
		if !errors.Is(err, ErrConfigParse) {
			t.Errorf("Load() error = %v, want ErrConfigParse", err)
		}
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		t.Parallel()

		_, _, err := Load(writeConfig(t, "api:\n  modle: typo\n"))
		if !errors.Is(err, ErrConfigParse) {
			t.Errorf("Load() error = %v, want ErrConfigParse", err)
		}
	})

	t.Run("invalid value rejected", func(t *testing.T) {
		t.Parallel()

		_, _, err := Load(writeConfig(t, "render:\n  workers: 99\n"))
		if !errors.Is(err, ErrInvalidValue) {
			t.Errorf("Load() error = %v, want ErrInvalidValue", err)
		}
	})
}

func TestParse_TooLarge(t *testing.T) {
	t.Parallel()

	data := []byte("# " + strings.Repeat("x", maxFileSize))
	if _, err := Parse(data); !errors.Is(err, ErrConfigTooLarge) {
		t.Errorf("Parse() error = %v, want ErrConfigTooLarge", err)
	}
}

// Not parallel: changes the working directory and HOME.
func TestLoad_Search(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Chdir(t.TempDir())

	cfg, used, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if used != "" {
		t.Errorf("Load() path = %q, want defaults", used)
	}
	if cfg.Server.Addr != DefaultAddr {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		t.Skipf("no user config dir: %v", err)
	}
	userDir := filepath.Join(configDir, "chatmark")
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		t.Fatalf("setup: %v", err)
	}
	userFile := filepath.Join(userDir, "config.yaml")
	if err := os.WriteFile(userFile, []byte("api:\n  model: from-user\n"), 0o600); err != nil {
		t.Fatalf("setup: %v", err)
	}
	cfg, used, err = Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if used != userFile || cfg.API.Model != "from-user" {
		t.Errorf("Load() = %q from %q, want user config", cfg.API.Model, used)
	}

	// The working directory wins over the user config
	if err := os.WriteFile(FileName, []byte("api:\n  model: from-cwd\n"), 0o600); err != nil {
		t.Fatalf("setup: %v", err)
	}
	cfg, used, err = Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if used != FileName || cfg.API.Model != "from-cwd" {
		t.Errorf("Load() = %q from %q, want working directory config", cfg.API.Model, used)
	}
}

// ---------------------------------------------------------------------------
// TestConfig_ApplyEnv - Environment overrides
// ---------------------------------------------------------------------------

func TestConfig_ApplyEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		EnvAPIURL:  "https://env.example.com/chat",
		EnvAPIKey:  "sk-env",
		EnvModel:   " env-model ",
		EnvUIURL:   "https://ui.example.com",
		EnvDataDir: "",
	}

	cfg := DefaultConfig()
	cfg.API.Model = "file-model"
	cfg.Storage.DataDir = "/from/file"
	cfg.ApplyEnv(func(k string) string { return env[k] })

	if cfg.API.URL != env[EnvAPIURL] || cfg.API.Key != "sk-env" || cfg.Auth.UIURL != env[EnvUIURL] {
		t.Errorf("ApplyEnv() = %+v %+v", cfg.API, cfg.Auth)
	}
	if cfg.API.Model != "env-model" {
		t.Errorf("API.Model = %q, want trimmed env value", cfg.API.Model)
	}
	if cfg.Storage.DataDir != "/from/file" {
		t.Errorf("empty env should keep file value, got %q", cfg.Storage.DataDir)
	}
}

func TestConfig_Paths(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Storage.DataDir = "/data"

	if got := cfg.TokenPath(); got != filepath.Join("/data", "token.json") {
		t.Errorf("TokenPath() = %q", got)
	}
	if got := cfg.ProfilePath(); got != filepath.Join("/data", "browser") {
		t.Errorf("ProfilePath() = %q", got)
	}

	cfg.Auth.TokenFile = "/secrets/t.json"
	cfg.Auth.ProfileDir = "/profiles/p"
	if got := cfg.TokenPath(); got != "/secrets/t.json" {
		t.Errorf("TokenPath() = %q", got)
	}
	if got := cfg.ProfilePath(); got != "/profiles/p" {
		t.Errorf("ProfilePath() = %q", got)
	}
}

func TestConfig_Redacted(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.API.Key = "sk-secret"

	out, err := cfg.Redacted()
	if err != nil {
		t.Fatalf("Redacted() error = %v", err)
	}
	if strings.Contains(string(out), "sk-secret") {
		t.Error("Redacted() leaks the API key")
	}
	if !strings.Contains(string(out), "typesetter: quickjs") {
		t.Errorf("Redacted() = %s", out)
	}
	if cfg.API.Key != "sk-secret" {
		t.Error("Redacted() should not modify the config")
	}
}
