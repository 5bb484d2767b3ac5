// Package config loads chatmark settings from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/alnah/go-chatmark/internal/fileutil"
)

// Sentinel errors for config operations.
var (
	ErrConfigNotFound = errors.New("config file not found")
	ErrConfigParse    = errors.New("failed to parse config")
	ErrConfigTooLarge = errors.New("config file exceeds maximum size")
	ErrFieldTooLong   = errors.New("field exceeds maximum length")
	ErrInvalidValue   = errors.New("invalid config value")
)

// Environment variables that override file values.
const (
	EnvAPIURL  = "AI_API_URL"
	EnvAPIKey  = "AI_API_KEY"
	EnvModel   = "AI_MODEL"
	EnvUIURL   = "UI_URL"
	EnvDataDir = "CHATMARK_DATA_DIR"
)

// Typesetter names.
const (
	TypesetterQuickJS = "quickjs" // KaTeX in an embedded interpreter
	TypesetterKaTeX   = "katex"   // KaTeX in headless Chrome
	TypesetterMathML  = "mathml"
)

// Field limits.
const (
	MaxURLLength    = 2048
	MaxModelLength  = 100
	MaxPromptLength = 4000
	MaxPathLength   = 4096
	MaxTemperature  = 2.0
	MaxTokensLimit  = 32768
	MaxWorkers      = 16

	// maxFileSize limits config input to prevent memory exhaustion.
	maxFileSize = 1 << 20
)

// FileName is the config file looked up in the working directory.
const FileName = "chatmark.yaml"

// Defaults.
const (
	DefaultDataDir         = "~/.local/share/chatmark"
	DefaultAddr            = "127.0.0.1:8080"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultAPITimeout      = 60 * time.Second
	DefaultLoginWait       = 60 * time.Second
	DefaultTemperature     = 0.7
	DefaultMaxTokens       = 1024
)

// Config holds all configuration.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Render  RenderConfig  `yaml:"render"`
	Storage StorageConfig `yaml:"storage"`
	Auth    AuthConfig    `yaml:"auth"`
	Server  ServerConfig  `yaml:"server"`
}

// APIConfig configures the chat completions endpoint.
type APIConfig struct {
	URL          string        `yaml:"url"`
	Key          string        `yaml:"key"` // Empty = browser login token
	Model        string        `yaml:"model"`
	SystemPrompt string        `yaml:"systemPrompt"`
	Temperature  float64       `yaml:"temperature"`
	MaxTokens    int           `yaml:"maxTokens"`
	WebSearch    bool          `yaml:"webSearch"`
	Timeout      time.Duration `yaml:"timeout"`
}

// RenderConfig configures the HTML renderer.
type RenderConfig struct {
	Typesetter     string `yaml:"typesetter"`     // "quickjs" (default), "katex" or "mathml"
	HighlightStyle string `yaml:"highlightStyle"` // chroma style name
	Citations      bool   `yaml:"citations"`
	CopyButtons    bool   `yaml:"copyButtons"`
	KaTeXScriptURL string `yaml:"katexScriptURL"` // Empty = CDN default
	KaTeXStyleURL  string `yaml:"katexStyleURL"`  // Empty = CDN default
	Workers        int    `yaml:"workers"`        // 0 = auto
}

// StorageConfig configures where conversations are kept.
type StorageConfig struct {
	DataDir string `yaml:"dataDir"`
}

// AuthConfig configures the browser login.
type AuthConfig struct {
	UIURL      string        `yaml:"uiURL"`
	TokenFile  string        `yaml:"tokenFile"`  // Empty = <dataDir>/token.json
	ProfileDir string        `yaml:"profileDir"` // Empty = <dataDir>/browser
	LoginWait  time.Duration `yaml:"loginWait"`
}

// ServerConfig configures the local UI server.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	AssetsDir       string        `yaml:"assetsDir"` // Empty = embedded UI only
}

// DefaultConfig returns the configuration used when no file is found.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Temperature: DefaultTemperature,
			MaxTokens:   DefaultMaxTokens,
			Timeout:     DefaultAPITimeout,
		},
		Render: RenderConfig{
			Typesetter:     TypesetterQuickJS,
			HighlightStyle: "github",
			Citations:      true,
			CopyButtons:    true,
		},
		Storage: StorageConfig{DataDir: DefaultDataDir},
		Auth:    AuthConfig{LoginWait: DefaultLoginWait},
		Server: ServerConfig{
			Addr:            DefaultAddr,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
	}
}

// Load reads the config file at path, or the first file found in the
// search locations when path is empty. Fields absent from the file keep
// their defaults. Environment overrides are not applied.
// It returns the file that was read, or "" when defaults were used.
func Load(path string) (*Config, string, error) {
	if path == "" {
		found, ok := searchConfig()
		if !ok {
			return DefaultConfig(), "", nil
		}
		path = found
	}

	path = fileutil.ExpandHome(path)
	data, err := os.ReadFile(path) // #nosec G304 -- config path is user-provided
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, "", fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", path, err)
	}
	return cfg, path, nil
}

// Parse decodes YAML over DefaultConfig and validates the result.
// Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	if len(data) > maxFileSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrConfigTooLarge, len(data), maxFileSize)
	}

	cfg := DefaultConfig()
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := yaml.UnmarshalWithOptions(data, cfg, yaml.Strict()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SearchPaths returns the locations tried when no path is given, in order.
func SearchPaths() []string {
	paths := []string{FileName, strings.TrimSuffix(FileName, ".yaml") + ".yml"}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths,
			filepath.Join(dir, "chatmark", "config.yaml"),
			filepath.Join(dir, "chatmark", "config.yml"),
		)
	}
	return paths
}

func searchConfig() (string, bool) {
	for _, p := range SearchPaths() {
		if fileutil.FileExists(p) {
			return p, true
		}
	}
	return "", false
}

// ApplyEnv overrides file values with non-empty environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.API.URL, EnvAPIURL)
	set(&c.API.Key, EnvAPIKey)
	set(&c.API.Model, EnvModel)
	set(&c.Auth.UIURL, EnvUIURL)
	set(&c.Storage.DataDir, EnvDataDir)
}

// Validate checks field lengths, ranges and enumerations.
// Called by Load, and again by the CLI after environment overrides.
func (c *Config) Validate() error {
	if err := validateURL("api.url", c.API.URL); err != nil {
		return err
	}
	if err := validateFieldLength("api.model", c.API.Model, MaxModelLength); err != nil {
		return err
	}
	if err := validateFieldLength("api.systemPrompt", c.API.SystemPrompt, MaxPromptLength); err != nil {
		return err
	}
	if c.API.Temperature < 0 || c.API.Temperature > MaxTemperature {
		return fmt.Errorf("%w: api.temperature must be between 0 and %.1f, got %.2f", ErrInvalidValue, MaxTemperature, c.API.Temperature)
	}
	if c.API.MaxTokens < 0 || c.API.MaxTokens > MaxTokensLimit {
		return fmt.Errorf("%w: api.maxTokens must be between 0 and %d, got %d", ErrInvalidValue, MaxTokensLimit, c.API.MaxTokens)
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("%w: api.timeout must not be negative", ErrInvalidValue)
	}

	switch strings.ToLower(c.Render.Typesetter) {
	case "", TypesetterQuickJS, TypesetterKaTeX, TypesetterMathML:
	default:
		return fmt.Errorf("%w: render.typesetter %q (must be %s, %s or %s)", ErrInvalidValue,
			c.Render.Typesetter, TypesetterQuickJS, TypesetterKaTeX, TypesetterMathML)
	}
	if err := validateURL("render.katexScriptURL", c.Render.KaTeXScriptURL); err != nil {
		return err
	}
	if err := validateURL("render.katexStyleURL", c.Render.KaTeXStyleURL); err != nil {
		return err
	}
	if c.Render.Workers < 0 || c.Render.Workers > MaxWorkers {
		return fmt.Errorf("%w: render.workers must be between 0 and %d, got %d", ErrInvalidValue, MaxWorkers, c.Render.Workers)
	}

	if err := validateFieldLength("storage.dataDir", c.Storage.DataDir, MaxPathLength); err != nil {
		return err
	}

	if err := validateURL("auth.uiURL", c.Auth.UIURL); err != nil {
		return err
	}
	if err := validateFieldLength("auth.tokenFile", c.Auth.TokenFile, MaxPathLength); err != nil {
		return err
	}
	if err := validateFieldLength("auth.profileDir", c.Auth.ProfileDir, MaxPathLength); err != nil {
		return err
	}
	if c.Auth.LoginWait < 0 {
		return fmt.Errorf("%w: auth.loginWait must not be negative", ErrInvalidValue)
	}

	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("%w: server.addr is required", ErrInvalidValue)
	}
	if err := validateFieldLength("server.assetsDir", c.Server.AssetsDir, MaxPathLength); err != nil {
		return err
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("%w: server.shutdownTimeout must not be negative", ErrInvalidValue)
	}

	return nil
}

// validateFieldLength checks if a field exceeds its maximum allowed length.
func validateFieldLength(fieldName, value string, maxLength int) error {
	if len(value) > maxLength {
		return fmt.Errorf("%w: %s (%d chars, max %d)", ErrFieldTooLong, fieldName, len(value), maxLength)
	}
	return nil
}

// validateURL accepts an empty value or an absolute http(s) URL.
func validateURL(fieldName, value string) error {
	if value == "" {
		return nil
	}
	if err := validateFieldLength(fieldName, value, MaxURLLength); err != nil {
		return err
	}
	u, err := url.Parse(value)
	if !fileutil.IsURL(value) || err != nil || u.Host == "" {
		return fmt.Errorf("%w: %s must be an http(s) URL, got %q", ErrInvalidValue, fieldName, value)
	}
	return nil
}

// DataDir returns the storage directory with ~ expanded.
func (c *Config) DataDir() string {
	dir := c.Storage.DataDir
	if dir == "" {
		dir = DefaultDataDir
	}
	return fileutil.ExpandHome(dir)
}

// TokenPath returns the token file, defaulting to token.json in the data dir.
func (c *Config) TokenPath() string {
	if c.Auth.TokenFile != "" {
		return fileutil.ExpandHome(c.Auth.TokenFile)
	}
	return filepath.Join(c.DataDir(), "token.json")
}

// ProfilePath returns the browser profile directory used for login.
func (c *Config) ProfilePath() string {
	if c.Auth.ProfileDir != "" {
		return fileutil.ExpandHome(c.Auth.ProfileDir)
	}
	return filepath.Join(c.DataDir(), "browser")
}

// Redacted returns the effective configuration as YAML with the API key masked.
func (c *Config) Redacted() ([]byte, error) {
	cp := *c
	if cp.API.Key != "" {
		cp.API.Key = "********"
	}
	out, err := yaml.Marshal(&cp)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return out, nil
}
