// Package typeset renders LaTeX formulas to HTML.
//
// Three backends implement Typesetter:
//   - QuickJS: KaTeX evaluated in an embedded QuickJS interpreter (default)
//   - KaTeX: katex.renderToString evaluated in headless Chrome via go-rod
//   - MathML: a pure-Go LaTeX subset to MathML converter whose output needs
//     no stylesheet or fonts, for pages viewed offline
//
// All report malformed input with ErrMalformed so callers can degrade to
// escaped source text.
package typeset

import (
	"context"
	"errors"
)

// Sentinel errors for typesetting.
var (
	ErrMalformed = errors.New("malformed formula")
	ErrClosed    = errors.New("typesetter closed")
)

// Typesetter converts a LaTeX formula to HTML.
// display selects block layout; otherwise the formula flows inline.
type Typesetter interface {
	Typeset(ctx context.Context, formula string, display bool) (string, error)
}

// Macros maps a command name (without backslash) to its replacement body.
// "#1".."#9" in a body refer to the command's arguments.
type Macros map[string]string

// DefaultMacros returns the macros every backend receives.
func DefaultMacros() Macros {
	return Macros{
		"unit":   `\,\textrm{#1}`,
		"vs":     `\textsf{VS Code}`,
		"cursor": `\textsf{Cursor}`,
	}
}

// Merge returns a copy of m with extra layered on top.
func (m Macros) Merge(extra Macros) Macros {
	out := make(Macros, len(m)+len(extra))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// Expand rewrites every call of a macro in m into its body, with arguments
// substituted, until no macro calls remain. Backends that cannot take a macro
// table run their input through Expand first.
func (m Macros) Expand(formula string) (string, error) {
	if len(m) == 0 {
		return formula, nil
	}

	p := &mathParser{src: []rune(formula), macros: m}
	for !p.eof() {
		if p.peek() != '\\' {
			p.pos++
			continue
		}
		start := p.pos
		body, ok := m[p.readCommand()]
		if !ok {
			continue
		}
		if err := p.expandMacro(start, body); err != nil {
			return "", err
		}
	}
	return string(p.src), nil
}
