// Package auth keeps the bearer token used for the chat endpoint.
//
// The token is read from the web UI's localStorage after the user logs in
// through a visible browser window, then persisted to a 0600 file so later
// runs can reuse it until it nears expiry.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alnah/go-chatmark/internal/fileutil"
)

// Sentinel errors for authentication.
var (
	ErrAuthInProgress = errors.New("authentication already in progress")
	ErrLoginTimeout   = errors.New("login not completed in time")
	ErrNoToken        = errors.New("no token found in page storage")
	ErrTokenPathEmpty = errors.New("token file path cannot be empty")
)

const (
	// ExpiryBuffer is how long before expiry a token stops being valid.
	ExpiryBuffer = 5 * time.Minute

	// DefaultLifetime applies when the page stores no expiry.
	DefaultLifetime = time.Hour

	// DefaultLoginWait bounds how long EnsureAuthenticated waits for a login.
	DefaultLoginWait = 60 * time.Second

	defaultPollInterval = 2 * time.Second
	tokenFileMode       = 0o600
)

// Storage keys probed in order for the access token.
var tokenKeys = []string{"accessToken", "token", "oktaToken"}

// expiryKey holds the token expiry in unix milliseconds.
const expiryKey = "tokenExpiresAt"

// TokenData is the persisted token. ExpiresAt is in unix milliseconds.
type TokenData struct {
	AccessToken string `json:"accessToken"`
	ExpiresAt   int64  `json:"expiresAt"`
}

// Scraper reads a value from the logged-in page's localStorage.
// A missing key yields "" and no error.
type Scraper interface {
	Item(ctx context.Context, key string) (string, error)
}

// Manager owns the token file and the in-memory token.
type Manager struct {
	path         string
	now          func() time.Time
	pollInterval time.Duration
	logger       *slog.Logger

	mu   sync.Mutex
	data *TokenData

	authenticating atomic.Bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger for capture diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithPollInterval sets how often EnsureAuthenticated re-reads the page.
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// NewManager loads the token stored at path, if any.
// A missing or unreadable token file leaves the manager without a token.
func NewManager(path string, opts ...Option) (*Manager, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrTokenPathEmpty
	}

	m := &Manager{
		path:         fileutil.ExpandHome(path),
		now:          time.Now,
		pollInterval: defaultPollInterval,
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}

	data, err := os.ReadFile(m.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return m, nil
	case err != nil:
		return nil, fmt.Errorf("reading token file: %w", err)
	}

	var td TokenData
	if err := json.Unmarshal(data, &td); err != nil {
		m.logger.Warn("ignoring unreadable token file", "path", m.path, "error", err)
		return m, nil
	}
	m.data = &td
	return m, nil
}

// Valid reports whether a token exists and expires more than ExpiryBuffer from now.
func (m *Manager) Valid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.validLocked()
}

func (m *Manager) validLocked() bool {
	if m.data == nil || m.data.AccessToken == "" {
		return false
	}
	return m.data.ExpiresAt > m.now().Add(ExpiryBuffer).UnixMilli()
}

// Token returns the access token when valid, "" otherwise.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.validLocked() {
		return ""
	}
	return m.data.AccessToken
}

// ExpiresAt returns the stored expiry, or the zero time without a token.
func (m *Manager) ExpiresAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return time.Time{}
	}
	return time.UnixMilli(m.data.ExpiresAt)
}

// Set stores and persists a token.
func (m *Manager) Set(td TokenData) error {
	data, err := json.Marshal(td)
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := fileutil.WriteFileAtomic(m.path, data, tokenFileMode); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}
	m.data = &td
	return nil
}

// Clear forgets the token and removes the token file.
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = nil
	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing token file: %w", err)
	}
	return nil
}

// Capture reads the token from the page and persists it.
// It reports false with ErrNoToken when the page holds no token yet.
func (m *Manager) Capture(ctx context.Context, s Scraper) (bool, error) {
	var token string
	for _, key := range tokenKeys {
		v, err := s.Item(ctx, key)
		if err != nil {
			return false, fmt.Errorf("reading %s: %w", key, err)
		}
		if v != "" {
			token = v
			break
		}
	}
	if token == "" {
		return false, ErrNoToken
	}

	expires := m.now().Add(DefaultLifetime).UnixMilli()
	raw, err := s.Item(ctx, expiryKey)
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", expiryKey, err)
	}
	if ms, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); err == nil && ms > 0 {
		expires = ms
	}

	if err := m.Set(TokenData{AccessToken: token, ExpiresAt: expires}); err != nil {
		return false, err
	}
	m.logger.Debug("token captured", "expiresAt", time.UnixMilli(expires))
	return true, nil
}

// EnsureAuthenticated returns at once when the stored token is valid.
// Otherwise it reads the page every poll interval until a token appears or
// wait elapses (DefaultLoginWait when wait <= 0). Only one attempt runs at
// a time; concurrent callers get ErrAuthInProgress.
func (m *Manager) EnsureAuthenticated(ctx context.Context, s Scraper, wait time.Duration) error {
	if !m.authenticating.CompareAndSwap(false, true) {
		return ErrAuthInProgress
	}
	defer m.authenticating.Store(false)

	if m.Valid() {
		return nil
	}

	if wait <= 0 {
		wait = DefaultLoginWait
	}
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		ok, err := m.Capture(ctx, s)
		if ok {
			return nil
		}
		if err != nil && !errors.Is(err, ErrNoToken) {
			// the page may be mid-navigation; keep polling
			m.logger.Debug("token capture failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrLoginTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}
