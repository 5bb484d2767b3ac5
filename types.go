package chatmark

import (
	"context"
	"log/slog"

	"github.com/alnah/go-chatmark/internal/store"
)

// Message is one chat message. User messages are shown as plain text,
// assistant messages are rendered.
type Message = store.Message

// Conversation is a titled, ordered list of messages.
type Conversation = store.Conversation

// Typesetter turns a LaTeX formula into HTML. Errors make the renderer
// show the formula source instead.
type Typesetter interface {
	Typeset(ctx context.Context, formula string, display bool) (string, error)
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithTypesetter sets the math backend. A nil typesetter shows formulas
// as escaped source.
func WithTypesetter(ts Typesetter) Option {
	return func(r *Renderer) {
		r.typesetter = ts
		r.typesetterSet = true
	}
}

// WithLogger sets the logger for degraded fragments and recovered panics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Renderer) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithHighlightStyle sets the chroma style used for code blocks.
func WithHighlightStyle(style string) Option {
	return func(r *Renderer) {
		r.cfg.highlightStyle = style
	}
}

// WithCitations toggles styling of [n] citation markers.
func WithCitations(enabled bool) Option {
	return func(r *Renderer) {
		r.cfg.citations = enabled
	}
}

// WithCopyButtons toggles the copy button on code blocks.
func WithCopyButtons(enabled bool) Option {
	return func(r *Renderer) {
		r.cfg.copyButtons = enabled
	}
}

// WithMathHeuristic replaces the test deciding whether a bracket-delimited
// block holds LaTeX.
func WithMathHeuristic(isMath func(string) bool) Option {
	return func(r *Renderer) {
		if isMath != nil {
			r.cfg.isMath = isMath
		}
	}
}
