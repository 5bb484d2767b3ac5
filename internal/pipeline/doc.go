// Package pipeline implements the stages that turn a chat reply into HTML.
//
// Stages, in the order the renderer runs them:
//   - Math extraction: formulas are replaced by Private Use Area placeholders
//     so markdown never sees LaTeX
//   - Markdown preprocessing (line endings, list spacing, fence languages,
//     highlight syntax)
//   - Markdown to HTML conversion via Goldmark, raw HTML escaped
//   - Math restoration with typeset and sanitized formulas
//   - Citation styling, copy buttons, highlight marks
//
// Every stage is a pure function of its input or a read-only value built
// once, so a single set of stages serves concurrent renders.
package pipeline
