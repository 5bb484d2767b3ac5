package typeset

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sync"
	"time"

	"github.com/go-rod/rod"

	"github.com/alnah/go-chatmark/internal/browser"
	"github.com/alnah/go-chatmark/internal/fileutil"
)

// KaTeX asset defaults.
const (
	DefaultKaTeXScriptURL = "https://cdn.jsdelivr.net/npm/katex@0.16.11/dist/katex.min.js"
	DefaultKaTeXStyleURL  = "https://cdn.jsdelivr.net/npm/katex@0.16.11/dist/katex.min.css"
	defaultKaTeXTimeout   = 10 * time.Second
	defaultKaTeXPages     = 2
)

// renderScript is evaluated with (formula, display, macros).
// throwOnError makes malformed input surface as an evaluation error.
const renderScript = `(formula, display, macros) => katex.renderToString(formula, {
	displayMode: display,
	throwOnError: true,
	output: "htmlAndMathml",
	macros: macros,
})`

// readyScript reports whether the KaTeX script loaded.
const readyScript = `() => typeof katex === "object" && typeof katex.renderToString === "function"`

const katexPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>katex</title>
<link rel="stylesheet" href="%s">
<script src="%s"></script>
</head>
<body></body>
</html>`

// KaTeXOption configures a KaTeX typesetter.
type KaTeXOption func(*KaTeX)

// WithScriptURL sets the URL of katex.min.js.
func WithScriptURL(url string) KaTeXOption {
	return func(k *KaTeX) { k.scriptURL = url }
}

// WithStyleURL sets the URL of katex.min.css.
func WithStyleURL(url string) KaTeXOption {
	return func(k *KaTeX) { k.styleURL = url }
}

// WithKaTeXMacros replaces the macro table passed to KaTeX.
func WithKaTeXMacros(m Macros) KaTeXOption {
	return func(k *KaTeX) { k.macros = m }
}

// WithKaTeXTimeout bounds page loads and renders when ctx has no deadline.
func WithKaTeXTimeout(d time.Duration) KaTeXOption {
	return func(k *KaTeX) {
		if d > 0 {
			k.timeout = d
		}
	}
}

// WithPages sets how many browser tabs may render concurrently.
func WithPages(n int) KaTeXOption {
	return func(k *KaTeX) {
		if n > 0 {
			k.size = n
		}
	}
}

// KaTeX typesets formulas with katex.renderToString in headless Chrome.
// The browser starts on first use; tabs are created lazily up to the pool
// size and reused across calls.
type KaTeX struct {
	scriptURL string
	styleURL  string
	macros    Macros
	timeout   time.Duration
	size      int

	mu       sync.Mutex
	session  *browser.Session
	pageFile string
	cleanup  func()
	pages    chan *rod.Page
	all      map[*rod.Page]struct{}
	created  int
	closed   bool

	// launch is replaced in tests.
	launch func() (*browser.Session, error)
}

// NewKaTeX creates a KaTeX typesetter. No browser is started until the first Typeset.
func NewKaTeX(opts ...KaTeXOption) *KaTeX {
	k := &KaTeX{
		scriptURL: DefaultKaTeXScriptURL,
		styleURL:  DefaultKaTeXStyleURL,
		macros:    DefaultMacros(),
		timeout:   defaultKaTeXTimeout,
		size:      defaultKaTeXPages,
		all:       make(map[*rod.Page]struct{}),
	}
	for _, opt := range opts {
		opt(k)
	}
	k.pages = make(chan *rod.Page, k.size)
	k.launch = func() (*browser.Session, error) {
		return browser.Launch(browser.Options{Headless: true})
	}
	return k
}

// Size returns the maximum number of concurrent tabs.
func (k *KaTeX) Size() int {
	return k.size
}

// Typeset renders formula with KaTeX.
// KaTeX parse errors are reported as ErrMalformed.
func (k *KaTeX) Typeset(ctx context.Context, formula string, display bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	page, err := k.acquire(ctx)
	if err != nil {
		return "", err
	}

	timeout, err := browser.Timeout(ctx, k.timeout)
	if err != nil {
		k.release(page)
		return "", err
	}

	res, err := page.Timeout(timeout).Eval(renderScript, formula, display, k.macros.katex())
	if err != nil {
		var evalErr *rod.EvalError
		if errors.As(err, &evalErr) {
			k.release(page)
			return "", fmt.Errorf("%w: %s", ErrMalformed, evalErr.Error())
		}
		// Timeouts and transport errors leave the tab in an unknown state.
		k.discard(page)
		return "", fmt.Errorf("rendering formula: %w", err)
	}

	k.release(page)
	return res.Value.Str(), nil
}

// acquire returns an idle tab, opening a new one while under the pool size.
// Blocks until a tab is released or ctx is done.
func (k *KaTeX) acquire(ctx context.Context) (*rod.Page, error) {
	select {
	case page, ok := <-k.pages:
		if !ok {
			return nil, ErrClosed
		}
		return page, nil
	default:
	}

	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil, ErrClosed
	}
	if k.created < k.size {
		k.created++
		k.mu.Unlock()

		page, err := k.openPage(ctx)
		if err != nil {
			k.mu.Lock()
			k.created--
			k.mu.Unlock()
			return nil, err
		}
		return page, nil
	}
	k.mu.Unlock()

	select {
	case page, ok := <-k.pages:
		if !ok {
			return nil, ErrClosed
		}
		return page, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// release returns a tab to the pool.
// The channel holds every tab the pool can create, so the send never blocks.
func (k *KaTeX) release(page *rod.Page) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		_ = page.Close()
		return
	}
	k.pages <- page
}

// discard closes a tab and frees its pool slot.
func (k *KaTeX) discard(page *rod.Page) {
	_ = page.Close()
	k.mu.Lock()
	delete(k.all, page)
	k.created--
	k.mu.Unlock()
}

// openPage starts the browser if needed and loads a page with KaTeX.
func (k *KaTeX) openPage(ctx context.Context) (*rod.Page, error) {
	session, pageURL, err := k.ensureBrowser()
	if err != nil {
		return nil, err
	}

	page, err := session.OpenPage(ctx, pageURL, k.timeout)
	if err != nil {
		return nil, err
	}

	ready, err := page.Eval(readyScript)
	if err != nil || !ready.Value.Bool() {
		_ = page.Close()
		return nil, fmt.Errorf("%w: KaTeX script not available from %s", browser.ErrPageLoad, k.scriptURL)
	}

	k.mu.Lock()
	k.all[page] = struct{}{}
	k.mu.Unlock()
	return page, nil
}

// ensureBrowser lazily launches the browser and writes the host page.
func (k *KaTeX) ensureBrowser() (*browser.Session, string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return nil, "", ErrClosed
	}

	if k.pageFile == "" {
		path, cleanup, err := fileutil.WriteTempFile(k.hostPage(), "html")
		if err != nil {
			return nil, "", err
		}
		k.pageFile, k.cleanup = path, cleanup
	}

	if k.session == nil {
		s, err := k.launch()
		if err != nil {
			return nil, "", err
		}
		k.session = s
	}
	return k.session, "file://" + k.pageFile, nil
}

// katex returns the macro table keyed the way KaTeX expects, with a leading backslash.
func (m Macros) katex() map[string]string {
	out := make(map[string]string, len(m))
	for name, body := range m {
		out[`\`+name] = body
	}
	return out
}

// hostPage returns the HTML document that loads KaTeX.
func (k *KaTeX) hostPage() string {
	return fmt.Sprintf(katexPage, html.EscapeString(k.styleURL), html.EscapeString(k.scriptURL))
}

// Close closes every tab, the browser, and removes the host page.
func (k *KaTeX) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	close(k.pages)
	pages := make([]*rod.Page, 0, len(k.all))
	for p := range k.all {
		pages = append(pages, p)
	}
	session := k.session
	cleanup := k.cleanup
	k.session, k.cleanup = nil, nil
	k.mu.Unlock()

	for _, p := range pages {
		_ = p.Close()
	}

	var errs []error
	if err := session.Close(); err != nil {
		errs = append(errs, err)
	}
	if cleanup != nil {
		cleanup()
	}
	return errors.Join(errs...)
}
