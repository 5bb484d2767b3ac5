//go:build integration

package typeset

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestKaTeX_Integration(t *testing.T) {
	k := NewKaTeX(WithPages(1))
	t.Cleanup(func() { _ = k.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	t.Run("renders display math", func(t *testing.T) {
		got, err := k.Typeset(ctx, `\frac{a}{b}`, true)
		if err != nil {
			t.Fatalf("Typeset() error = %v", err)
		}
		if !strings.Contains(got, `class="katex-display"`) {
			t.Errorf("Typeset() = %s, want katex-display", got)
		}
	})

	t.Run("expands default macros", func(t *testing.T) {
		got, err := k.Typeset(ctx, `5\unit{kg}`, false)
		if err != nil {
			t.Fatalf("Typeset() error = %v", err)
		}
		if !strings.Contains(got, "kg") {
			t.Errorf("Typeset() = %s, want unit text", got)
		}
	})

	t.Run("malformed formula", func(t *testing.T) {
		_, err := k.Typeset(ctx, `\frac{1}{`, false)
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("Typeset() error = %v, want ErrMalformed", err)
		}
	})

	t.Run("tab is reused after an error", func(t *testing.T) {
		if _, err := k.Typeset(ctx, "x^2", false); err != nil {
			t.Fatalf("Typeset() error = %v", err)
		}
	})
}
