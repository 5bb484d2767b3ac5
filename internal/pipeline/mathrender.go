package pipeline

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/alnah/go-chatmark/internal/typeset"
)

// Math container classes.
const (
	mathBlockClass  = "math-block"
	mathInlineClass = "math-inline"
)

var (
	// "E=MC^2" written without spaces
	physicsPattern = regexp.MustCompile(`^([A-Z])\s*=\s*([A-Z][A-Z0-9]*(?:\^[0-9])?)$`)
	sumCommand     = regexp.MustCompile(`\\sum(?:[^A-Za-z_]|$)`)
)

var formulaFixes = strings.NewReplacer(
	`,=,`, `=`,
	`\,=\,`, `=`,
	`\,\times\,`, `\times`,
)

// NormalizeFormula repairs the formula shapes chat models commonly produce
// before they reach a typesetter.
func NormalizeFormula(formula string) string {
	f := joinLines(formula)
	f = stripBracketPair(f)

	if m := physicsPattern.FindStringSubmatch(f); m != nil {
		f = m[1] + " = " + m[2]
	}

	// a series written without limits
	if strings.Contains(f, `\frac`) && !strings.Contains(f, `\sum_`) {
		if loc := sumCommand.FindStringIndex(f); loc != nil {
			f = f[:loc[0]] + `\sum_{k=0}^{\infty}` + f[loc[0]+len(`\sum`):]
		}
	}

	return formulaFixes.Replace(f)
}

func joinLines(formula string) string {
	if !strings.Contains(formula, "\n") {
		return strings.TrimSpace(formula)
	}
	lines := strings.Split(formula, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, " ")
}

// stripBracketPair removes one "[...]" or "\[...\]" around a formula that
// carries LaTeX commands. Plain intervals like [0,1] are kept.
func stripBracketPair(f string) string {
	switch {
	case strings.HasPrefix(f, `\[`) && strings.HasSuffix(f, `\]`) && len(f) >= 4:
		return strings.TrimSpace(f[2 : len(f)-2])
	case strings.HasPrefix(f, "[") && strings.HasSuffix(f, "]") && len(f) >= 2:
		inner := f[1 : len(f)-1]
		if strings.Contains(inner, `\`) && bracketsBalanced(inner) {
			return strings.TrimSpace(inner)
		}
	}
	return f
}

func bracketsBalanced(s string) bool {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

// MathRenderer typesets fragments and sanitizes the result.
// Failures never propagate: the escaped source is shown instead.
type MathRenderer struct {
	typesetter typeset.Typesetter
	policy     *bluemonday.Policy
	logger     *slog.Logger
}

// NewMathRenderer creates a MathRenderer. A nil logger discards output.
func NewMathRenderer(ts typeset.Typesetter, logger *slog.Logger) *MathRenderer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &MathRenderer{
		typesetter: ts,
		policy:     newMathPolicy(),
		logger:     logger,
	}
}

// Render returns a fragment in its container: a div for display math,
// a span for inline math.
func (r *MathRenderer) Render(ctx context.Context, f MathFragment) string {
	return MathContainer(r.RenderBody(ctx, f), f.Display, f.Display)
}

// RenderAll returns the container bodies for fragments, in order.
func (r *MathRenderer) RenderAll(ctx context.Context, fragments []MathFragment) []string {
	bodies := make([]string, len(fragments))
	for i, f := range fragments {
		bodies[i] = r.RenderBody(ctx, f)
	}
	return bodies
}

// RenderBody typesets one fragment without its container.
func (r *MathRenderer) RenderBody(ctx context.Context, f MathFragment) (out string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Debug("math typesetter panicked", "formula", f.Formula, "panic", fmt.Sprint(rec))
			out = html.EscapeString(f.Formula)
		}
	}()

	if r.typesetter == nil {
		return html.EscapeString(f.Formula)
	}

	rendered, err := r.typesetter.Typeset(ctx, NormalizeFormula(f.Formula), f.Display)
	if err != nil {
		r.logger.Debug("math fallback to source", "formula", f.Formula, "display", f.Display, "error", err)
		return html.EscapeString(f.Formula)
	}
	return r.policy.Sanitize(rendered)
}

// MathContainer wraps rendered math. Display math outside a block position
// uses a span so the surrounding paragraph stays valid.
func MathContainer(body string, display, block bool) string {
	switch {
	case display && block:
		return `<div class="` + mathBlockClass + `">` + body + `</div>`
	case display:
		return `<span class="` + mathBlockClass + `">` + body + `</span>`
	default:
		return `<span class="` + mathInlineClass + `">` + body + `</span>`
	}
}
