// Package chatmark renders assistant chat replies (Markdown with LaTeX math)
// into self-contained HTML.
//
// # Quick Start
//
// Create a renderer, render text, and close when done:
//
//	r, err := chatmark.NewRenderer()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//
//	html := r.Render(ctx, "The series $\\sum_{n=1}^{\\infty} 1/n^2$ converges.")
//
// Render never fails. Malformed formulas fall back to their escaped source
// and a failure of the whole pipeline yields an escaped error container.
//
// # Rendering Pipeline
//
// The rendering process follows these stages:
//
//  1. Math extraction ($...$, $$...$$, \(...\), \[...\], bracket blocks,
//     equation environments), skipping code spans and fences
//  2. Markdown preprocessing (line endings, list spacing, fence languages,
//     ==highlight== syntax)
//  3. Markdown to HTML via Goldmark (GFM, chroma highlighting, raw HTML escaped)
//  4. Math typesetting and restoration
//  5. Citation styling, copy buttons, highlight marks
//
// # Configuration
//
// Use functional options to customize the renderer:
//
//	r, err := chatmark.NewRenderer(
//	    chatmark.WithHighlightStyle("monokai"),
//	    chatmark.WithLogger(slog.Default()),
//	    chatmark.WithCitations(false),
//	)
//
// The default typesetter runs KaTeX in an embedded QuickJS interpreter, so
// pages need the KaTeX stylesheet. A KaTeX typesetter backed by headless
// Chrome and a pure-Go MathML typesetter are available to the CLI and server.
//
// # Parallel Processing
//
// A Renderer is safe for concurrent use. When the typesetter holds a
// scarce resource such as a browser, use RendererPool:
//
//	pool := chatmark.NewRendererPool(4, factory)
//	defer pool.Close()
//
//	r, err := pool.Acquire()
//	if err != nil {
//	    return err
//	}
//	defer pool.Release(r)
//	html := r.Render(ctx, reply)
//
// # User Messages
//
// Text typed by the user is never interpreted as markdown. RenderUser
// escapes it and keeps its line breaks.
package chatmark
