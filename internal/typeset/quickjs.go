package typeset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	katex "github.com/FurqanSoftware/goldmark-katex"
	"github.com/lithdew/quickjs"
)

const (
	defaultInterpreters = 2
	defaultCacheSize    = 512
)

// QuickJSOption configures a QuickJS typesetter.
type QuickJSOption func(*QuickJS)

// WithInterpreters sets how many formulas may be typeset at once.
// Each one holds a JS runtime with KaTeX loaded for the duration of the call.
func WithInterpreters(n int) QuickJSOption {
	return func(q *QuickJS) {
		if n > 0 {
			q.size = n
		}
	}
}

// WithCacheSize bounds the number of typeset formulas kept for reuse.
// Zero disables the cache.
func WithCacheSize(n int) QuickJSOption {
	return func(q *QuickJS) {
		if n >= 0 {
			q.cacheSize = n
		}
	}
}

// QuickJS typesets formulas with the KaTeX build embedded in goldmark-katex,
// evaluated by QuickJS inside the process. It needs no browser and is safe
// for concurrent use. Output matches the KaTeX backend and needs the same
// stylesheet.
type QuickJS struct {
	macros    Macros
	size      int
	cacheSize int
	slots     chan struct{}

	mu    sync.Mutex
	cache map[formulaKey]string

	// render is replaced in tests.
	render func(w io.Writer, src []byte, display bool) error
}

type formulaKey struct {
	src     string
	display bool
}

// NewQuickJS creates a QuickJS typesetter. A nil macro table selects DefaultMacros.
func NewQuickJS(macros Macros, opts ...QuickJSOption) *QuickJS {
	if macros == nil {
		macros = DefaultMacros()
	}
	q := &QuickJS{
		macros:    macros,
		size:      defaultInterpreters,
		cacheSize: defaultCacheSize,
		render:    katex.Render,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.slots = make(chan struct{}, q.size)
	q.cache = make(map[formulaKey]string)
	return q
}

// Typeset renders formula with KaTeX. KaTeX throws on malformed input; the
// thrown ParseError is reported as ErrMalformed.
func (q *QuickJS) Typeset(ctx context.Context, formula string, display bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	src, err := q.macros.Expand(formula)
	if err != nil {
		return "", err
	}
	key := formulaKey{src: src, display: display}
	if out, ok := q.cached(key); ok {
		return out, nil
	}

	select {
	case q.slots <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-q.slots }()

	var buf bytes.Buffer
	if err := q.render(&buf, []byte(src), display); err != nil {
		return "", fmt.Errorf("%w: %s", ErrMalformed, katexCause(err))
	}

	out := buf.String()
	q.store(key, out)
	return out, nil
}

func (q *QuickJS) cached(key formulaKey) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out, ok := q.cache[key]
	return out, ok
}

// store keeps out for key. A full cache is dropped wholesale.
func (q *QuickJS) store(key formulaKey, out string) {
	if q.cacheSize == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.cache) >= q.cacheSize {
		clear(q.cache)
	}
	q.cache[key] = out
}

// katexCause extracts KaTeX's message from an evaluation error.
func katexCause(err error) string {
	var jsErr *quickjs.Error
	if errors.As(err, &jsErr) {
		return strings.TrimPrefix(jsErr.Cause, "ParseError: ")
	}
	return err.Error()
}
