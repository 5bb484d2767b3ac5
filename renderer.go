package chatmark

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"strings"

	"github.com/alecthomas/chroma/v2/styles"

	"github.com/alnah/go-chatmark/internal/pipeline"
	"github.com/alnah/go-chatmark/internal/typeset"
)

// Compile-time interface implementation checks.
var (
	_ pipeline.MarkdownPreprocessor = (*pipeline.ChatPreprocessor)(nil)
	_ pipeline.HTMLConverter        = (*pipeline.GoldmarkConverter)(nil)
	_ Typesetter                    = (*typeset.QuickJS)(nil)
	_ Typesetter                    = (*typeset.MathML)(nil)
	_ Typesetter                    = (*typeset.KaTeX)(nil)
	_ typeset.Typesetter            = Typesetter(nil)
)

// errorClass marks the container shown when the whole pipeline fails.
const errorClass = "error"

// rendererConfig holds the settings applied by options.
type rendererConfig struct {
	highlightStyle string
	citations      bool
	copyButtons    bool
	isMath         func(string) bool
}

// Renderer turns assistant replies into HTML.
// Create with NewRenderer, use Render, and Close when done.
// A Renderer is safe for concurrent use.
type Renderer struct {
	cfg           rendererConfig
	logger        *slog.Logger
	typesetter    Typesetter
	typesetterSet bool

	preprocessor  pipeline.MarkdownPreprocessor
	htmlConverter pipeline.HTMLConverter
	math          *pipeline.MathRenderer
}

// NewRenderer creates a Renderer with default configuration: KaTeX math
// typeset in process, the github highlight style, citations and copy buttons enabled.
// Returns ErrInvalidHighlightStyle for an unknown style name.
func NewRenderer(opts ...Option) (*Renderer, error) {
	r := &Renderer{
		cfg: rendererConfig{
			highlightStyle: pipeline.DefaultHighlightStyle,
			citations:      true,
			copyButtons:    true,
			isMath:         pipeline.IsMath,
		},
		logger: slog.New(slog.DiscardHandler),
	}

	for _, opt := range opts {
		opt(r)
	}

	style := strings.TrimSpace(r.cfg.highlightStyle)
	if _, ok := styles.Registry[style]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHighlightStyle, r.cfg.highlightStyle)
	}
	r.cfg.highlightStyle = style

	if !r.typesetterSet {
		r.typesetter = typeset.NewQuickJS(typeset.DefaultMacros())
	}

	// Stages may already be set by tests
	if r.preprocessor == nil {
		r.preprocessor = &pipeline.ChatPreprocessor{}
	}
	if r.htmlConverter == nil {
		r.htmlConverter = pipeline.NewGoldmarkConverter(style)
	}
	r.math = pipeline.NewMathRenderer(r.typesetter, r.logger)

	return r, nil
}

// HighlightStyle returns the chroma style in use.
func (r *Renderer) HighlightStyle() string {
	return r.cfg.highlightStyle
}

// Render converts an assistant reply to HTML. It never fails: malformed
// math shows its source, and a failed pipeline (including a canceled
// context) yields the escaped input in a <div class="error">.
func (r *Renderer) Render(ctx context.Context, text string) (out string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("render panicked", "panic", fmt.Sprint(rec))
			out = errorContainer(text)
		}
	}()

	rendered, err := r.render(ctx, text)
	if err != nil {
		r.logger.Warn("render failed", "error", err)
		return errorContainer(text)
	}
	return rendered
}

func (r *Renderer) render(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	// Lift math out before markdown sees it
	body, fragments := pipeline.ExtractMathWith(text, r.cfg.isMath)

	body = r.preprocessor.PreprocessMarkdown(ctx, body)
	if err := ctx.Err(); err != nil {
		return "", err
	}

	htmlContent, err := r.htmlConverter.ToHTML(ctx, body)
	if err != nil {
		return "", fmt.Errorf("converting to HTML: %w", err)
	}

	bodies := r.math.RenderAll(ctx, fragments)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	htmlContent = pipeline.RestoreMath(htmlContent, fragments, bodies)

	if r.cfg.citations {
		htmlContent = pipeline.StyleCitations(htmlContent)
	}
	if r.cfg.copyButtons {
		htmlContent = pipeline.InjectCopyButtons(htmlContent)
	}

	// Completes the ==text== feature started in preprocessing.
	return pipeline.ConvertMarkPlaceholders(htmlContent), nil
}

// RenderUser escapes text typed by the user. Line breaks are kept as <br />;
// markdown and math are not interpreted.
func (r *Renderer) RenderUser(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.ReplaceAll(html.EscapeString(text), "\n", "<br />\n")
}

// RenderMessage renders m with RenderUser or Render depending on its author.
func (r *Renderer) RenderMessage(ctx context.Context, m Message) string {
	if m.IsUser {
		return r.RenderUser(m.Text)
	}
	return r.Render(ctx, m.Text)
}

// RenderConversation renders every message of c, in order.
func (r *Renderer) RenderConversation(ctx context.Context, c Conversation) []string {
	out := make([]string, len(c.Messages))
	for i, m := range c.Messages {
		out[i] = r.RenderMessage(ctx, m)
	}
	return out
}

// Close releases resources held by the typesetter, such as a browser.
func (r *Renderer) Close() error {
	if c, ok := r.typesetter.(io.Closer); ok {
		if err := c.Close(); err != nil && !errors.Is(err, typeset.ErrClosed) {
			return err
		}
	}
	return nil
}

func errorContainer(text string) string {
	return `<div class="` + errorClass + `">` + html.EscapeString(text) + `</div>`
}
