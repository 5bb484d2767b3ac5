// Package browser launches and tears down Chrome sessions driven by go-rod.
// Rod downloads a managed Chromium on first run when no binary is configured.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/alnah/go-chatmark/internal/process"
)

// Sentinel errors for browser operations.
var (
	ErrConnect    = errors.New("failed to connect to browser")
	ErrPageCreate = errors.New("failed to create browser page")
	ErrPageLoad   = errors.New("failed to load page")
)

// Options configures a browser launch.
type Options struct {
	// Headless hides the browser window. Token capture needs a visible one.
	Headless bool
	// UserDataDir keeps cookies and local storage between launches when set.
	UserDataDir string
}

// Session is a connected browser and the launcher that started it.
type Session struct {
	Browser  *rod.Browser
	launcher *launcher.Launcher
}

// newLauncher builds a launcher from the environment.
// ROD_BROWSER_BIN selects a pre-installed binary; the sandbox is disabled in CI,
// with a custom binary, or when ROD_NO_SANDBOX=1.
func newLauncher(opts Options) *launcher.Launcher {
	l := launcher.New().Headless(opts.Headless)

	if bin := os.Getenv("ROD_BROWSER_BIN"); bin != "" {
		l = l.Bin(bin)
	}

	if os.Getenv("CI") == "true" || os.Getenv("ROD_BROWSER_BIN") != "" || os.Getenv("ROD_NO_SANDBOX") == "1" {
		l = l.NoSandbox(true)
	}

	if opts.UserDataDir != "" {
		l = l.UserDataDir(opts.UserDataDir)
	}
	return l
}

// Launch starts a browser and connects to it.
func Launch(opts Options) (*Session, error) {
	l := newLauncher(opts)

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		killLauncher(l)
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	return &Session{Browser: b, launcher: l}, nil
}

// Close closes the browser and kills its process tree.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	var err error
	if s.Browser != nil {
		err = s.Browser.Close()
		s.Browser = nil
	}
	if s.launcher != nil {
		killLauncher(s.launcher)
		s.launcher = nil
	}
	return err
}

// killLauncher kills the Chrome process group, then lets the launcher clean
// up its temporary profile.
func killLauncher(l *launcher.Launcher) {
	if pid := l.PID(); pid > 0 {
		process.KillProcessGroup(pid)
	}
	l.Kill()
	l.Cleanup()
}

// Timeout returns the time left before ctx's deadline, or fallback when ctx has none.
func Timeout(ctx context.Context, fallback time.Duration) (time.Duration, error) {
	if deadline, ok := ctx.Deadline(); ok {
		left := time.Until(deadline)
		if left <= 0 {
			return 0, context.DeadlineExceeded
		}
		return left, nil
	}
	return fallback, nil
}

// OpenPage opens url in a new tab and waits for the load event.
func (s *Session) OpenPage(ctx context.Context, url string, fallback time.Duration) (*rod.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	page, err := s.Browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageCreate, err)
	}

	timeout, err := Timeout(ctx, fallback)
	if err != nil {
		_ = page.Close()
		return nil, err
	}

	if err := page.Timeout(timeout).WaitLoad(); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("%w: %v", ErrPageLoad, err)
	}

	if err := ctx.Err(); err != nil {
		_ = page.Close()
		return nil, err
	}
	return page, nil
}
