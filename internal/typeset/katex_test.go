package typeset

// Notes:
// - These tests never start Chrome: launch is replaced with stubs.
// - Rendering through a real browser is covered by katex_integration_test.go.

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alnah/go-chatmark/internal/browser"
)

func TestNewKaTeX_Defaults(t *testing.T) {
	t.Parallel()

	k := NewKaTeX()
	defer k.Close()

	if k.Size() != defaultKaTeXPages {
		t.Errorf("Size() = %d, want %d", k.Size(), defaultKaTeXPages)
	}
	if k.timeout != defaultKaTeXTimeout {
		t.Errorf("timeout = %v, want %v", k.timeout, defaultKaTeXTimeout)
	}
	if k.macros["unit"] == "" {
		t.Error("expected default macros")
	}
}

func TestNewKaTeX_Options(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		opts  []KaTeXOption
		check func(t *testing.T, k *KaTeX)
	}{
		{
			name: "pages",
			opts: []KaTeXOption{WithPages(4)},
			check: func(t *testing.T, k *KaTeX) {
				if k.Size() != 4 || cap(k.pages) != 4 {
					t.Errorf("Size() = %d, cap = %d, want 4", k.Size(), cap(k.pages))
				}
			},
		},
		{
			name: "non-positive pages ignored",
			opts: []KaTeXOption{WithPages(0)},
			check: func(t *testing.T, k *KaTeX) {
				if k.Size() != defaultKaTeXPages {
					t.Errorf("Size() = %d, want %d", k.Size(), defaultKaTeXPages)
				}
			},
		},
		{
			name: "timeout",
			opts: []KaTeXOption{WithKaTeXTimeout(3 * time.Second)},
			check: func(t *testing.T, k *KaTeX) {
				if k.timeout != 3*time.Second {
					t.Errorf("timeout = %v, want 3s", k.timeout)
				}
			},
		},
		{
			name: "macros",
			opts: []KaTeXOption{WithKaTeXMacros(Macros{"R": `\mathbb{R}`})},
			check: func(t *testing.T, k *KaTeX) {
				got := k.macros.katex()
				if got[`\R`] != `\mathbb{R}` {
					t.Errorf("katex() = %v, want backslash-prefixed key", got)
				}
			},
		},
		{
			name: "asset urls",
			opts: []KaTeXOption{WithScriptURL("/k.js"), WithStyleURL("/k.css")},
			check: func(t *testing.T, k *KaTeX) {
				page := k.hostPage()
				if !strings.Contains(page, `<script src="/k.js">`) {
					t.Errorf("hostPage() missing script: %s", page)
				}
				if !strings.Contains(page, `<link rel="stylesheet" href="/k.css">`) {
					t.Errorf("hostPage() missing stylesheet: %s", page)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			k := NewKaTeX(tt.opts...)
			defer k.Close()
			tt.check(t, k)
		})
	}
}

func TestKaTeX_HostPageEscapesURLs(t *testing.T) {
	t.Parallel()

	k := NewKaTeX(WithScriptURL(`x.js"><script>alert(1)</script>`))
	defer k.Close()

	if strings.Contains(k.hostPage(), "<script>alert(1)") {
		t.Error("hostPage() did not escape the script URL")
	}
}

func TestKaTeX_LaunchFailure(t *testing.T) {
	t.Parallel()

	k := NewKaTeX()
	defer k.Close()
	k.launch = func() (*browser.Session, error) {
		return nil, browser.ErrConnect
	}

	_, err := k.Typeset(context.Background(), "x", false)
	if !errors.Is(err, browser.ErrConnect) {
		t.Fatalf("Typeset() error = %v, want ErrConnect", err)
	}
	if k.created != 0 {
		t.Errorf("created = %d after failed launch, want 0", k.created)
	}
}

func TestKaTeX_Closed(t *testing.T) {
	t.Parallel()

	k := NewKaTeX()
	k.launch = func() (*browser.Session, error) {
		t.Error("launch called after Close")
		return nil, browser.ErrConnect
	}

	if err := k.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := k.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	_, err := k.Typeset(context.Background(), "x", false)
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Typeset() error = %v, want ErrClosed", err)
	}
}

func TestKaTeX_CanceledContext(t *testing.T) {
	t.Parallel()

	k := NewKaTeX()
	defer k.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := k.Typeset(ctx, "x", false); !errors.Is(err, context.Canceled) {
		t.Errorf("Typeset() error = %v, want context.Canceled", err)
	}
}
