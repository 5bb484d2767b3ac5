package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"

	"github.com/alnah/go-chatmark/internal/browser"
)

// ErrScraperClosed indicates the login window was closed.
var ErrScraperClosed = errors.New("login browser closed")

const (
	pageLoadTimeout = 30 * time.Second
	evalTimeout     = 5 * time.Second
)

const itemScript = `(key) => window.localStorage.getItem(key)`

// RodScraper reads localStorage from a visible Chrome window showing the web UI.
// The user logs in there; the profile directory keeps the session between runs.
type RodScraper struct {
	session *browser.Session
	page    *rod.Page
}

// launch is replaced in tests.
var launch = browser.Launch

// NewRodScraper opens uiURL in a visible browser window.
// profileDir, when set, persists cookies and storage across launches.
func NewRodScraper(ctx context.Context, uiURL, profileDir string) (*RodScraper, error) {
	session, err := launch(browser.Options{Headless: false, UserDataDir: profileDir})
	if err != nil {
		return nil, err
	}

	page, err := session.OpenPage(ctx, uiURL, pageLoadTimeout)
	if err != nil {
		_ = session.Close()
		return nil, err
	}
	return &RodScraper{session: session, page: page}, nil
}

// Item returns localStorage[key] from the page's current origin.
func (r *RodScraper) Item(ctx context.Context, key string) (string, error) {
	if r.page == nil {
		return "", ErrScraperClosed
	}
	timeout, err := browser.Timeout(ctx, evalTimeout)
	if err != nil {
		return "", err
	}
	if timeout > evalTimeout {
		timeout = evalTimeout
	}

	res, err := r.page.Timeout(timeout).Eval(itemScript, key)
	if err != nil {
		return "", fmt.Errorf("evaluating page storage: %w", err)
	}
	if res.Value.Nil() {
		return "", nil
	}
	return res.Value.Str(), nil
}

// Close closes the window and its browser process.
func (r *RodScraper) Close() error {
	if r.page != nil {
		_ = r.page.Close()
		r.page = nil
	}
	return r.session.Close()
}
