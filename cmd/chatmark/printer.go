package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"

	chatmark "github.com/alnah/go-chatmark"
)

const termWordWrap = 100

// printer writes message text in one output format: HTML through the
// renderer, styled terminal markdown through glamour, or the raw text.
type printer struct {
	out      io.Writer
	renderer *chatmark.Renderer
	term     *glamour.TermRenderer
}

// newPrinter prepares a printer for format. The term format falls back
// to raw markdown when stdout is not a terminal.
func newPrinter(a *app, format string) (*printer, error) {
	p := &printer{out: a.env.Stdout}

	switch format {
	case formatHTML:
		r, err := a.newRenderer(1)
		if err != nil {
			return nil, err
		}
		p.renderer = r
	case formatTerm:
		if !a.env.IsTerminal() {
			break
		}
		tr, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(termWordWrap),
		)
		if err != nil {
			a.logger.Debug("terminal markdown unavailable", "error", err)
			break
		}
		p.term = tr
	}
	return p, nil
}

// print writes one message. User messages are never styled as markdown.
func (p *printer) print(ctx context.Context, text string, isUser bool) error {
	out := text
	switch {
	case p.renderer != nil && isUser:
		out = p.renderer.RenderUser(text)
	case p.renderer != nil:
		out = p.renderer.Render(ctx, text)
	case p.term != nil && !isUser:
		if styled, err := p.term.Render(text); err == nil {
			out = styled
		}
	}

	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	if _, err := io.WriteString(p.out, out); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteOutput, err)
	}
	return nil
}

// Close releases the renderer's typesetter.
func (p *printer) Close() error {
	if p.renderer == nil {
		return nil
	}
	return p.renderer.Close()
}
