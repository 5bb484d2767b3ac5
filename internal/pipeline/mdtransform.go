package pipeline

import (
	"context"
	"regexp"
	"strings"
)

// Highlight placeholders use Unicode Private Use Area characters.
// These pass through Goldmark unchanged (no WithUnsafe needed).
// Post-processing converts these to <mark> tags after HTML generation.
const (
	MarkStartPlaceholder = "\uE000" // U+E000: Private Use Area start
	MarkEndPlaceholder   = "\uE001" // U+E001: Private Use Area end
)

// Precompiled regex patterns for performance.
var (
	// Line ending normalization
	crlfOrCR = regexp.MustCompile(`\r\n?`)

	// Highlight syntax ==text==, no blank edges, no line breaks
	highlightPattern = regexp.MustCompile(`==([^\s=](?:[^\n=]*[^\s=])?)==`)

	// List markers glued to their text: "-item", "1.item"
	bulletNoSpace  = regexp.MustCompile(`^([ \t]*[-+])(\p{L})`)
	orderedNoSpace = regexp.MustCompile(`^([ \t]*\d{1,9}\.)(\p{L})`)
)

// languageAliases maps fence info strings to the names chroma knows best.
var languageAliases = map[string]string{
	"js":     "javascript",
	"jsx":    "javascript",
	"py":     "python",
	"py3":    "python",
	"ts":     "typescript",
	"tsx":    "typescript",
	"sh":     "bash",
	"zsh":    "bash",
	"shell":  "bash",
	"yml":    "yaml",
	"rb":     "ruby",
	"rs":     "rust",
	"golang": "go",
	"kt":     "kotlin",
	"cs":     "csharp",
	"c#":     "csharp",
	"c++":    "cpp",
	"md":     "markdown",
	"ps1":    "powershell",
}

// NormalizeLanguage returns the canonical highlighter name for a fence language.
func NormalizeLanguage(lang string) string {
	lower := strings.ToLower(strings.TrimSpace(lang))
	if alias, ok := languageAliases[lower]; ok {
		return alias
	}
	return lower
}

// MarkdownPreprocessor defines the contract for markdown preprocessing.
type MarkdownPreprocessor interface {
	PreprocessMarkdown(ctx context.Context, content string) string
}

// ChatPreprocessor repairs the markdown quirks common in model replies.
type ChatPreprocessor struct{}

// PreprocessMarkdown applies all transformations to prepare Markdown for conversion.
func (p *ChatPreprocessor) PreprocessMarkdown(ctx context.Context, content string) string {
	// Check for cancellation before processing
	if ctx.Err() != nil {
		return content
	}

	content = normalizeLineEndings(content)
	content = normalizeLines(content)
	content = convertHighlights(content)
	return content
}

// normalizeLineEndings converts \r\n and \r to \n.
func normalizeLineEndings(content string) string {
	return crlfOrCR.ReplaceAllString(content, "\n")
}

// normalizeLines fixes list marker spacing outside code blocks and
// canonicalizes fence languages.
func normalizeLines(content string) string {
	lines := strings.Split(content, "\n")
	indented := indentedCodeLines(lines, linesIn(lines, fenceRegions(content)))
	var open string

	for i, line := range lines {
		if m := fenceLine.FindStringSubmatch(line); m != nil {
			switch {
			case open == "":
				if m[2][0] == '`' && strings.Contains(m[3], "`") {
					break
				}
				open = m[2]
				lines[i] = m[1] + m[2] + normalizeInfo(m[3])
				continue
			case m[2][0] == open[0] && len(m[2]) >= len(open) && strings.TrimSpace(m[3]) == "":
				open = ""
				continue
			}
		}
		if open != "" || indented[i] {
			continue
		}
		line = bulletNoSpace.ReplaceAllString(line, "$1 $2")
		lines[i] = orderedNoSpace.ReplaceAllString(line, "$1 $2")
	}
	return strings.Join(lines, "\n")
}

// normalizeInfo rewrites the language word of a fence info string.
func normalizeInfo(info string) string {
	trimmed := strings.TrimSpace(info)
	if trimmed == "" {
		return info
	}
	lang, rest, _ := strings.Cut(trimmed, " ")
	if rest != "" {
		rest = " " + rest
	}
	return NormalizeLanguage(lang) + rest
}

// convertHighlights transforms ==text== to placeholder markers outside code.
// The placeholders are converted to <mark> tags after Goldmark processing
// via ConvertMarkPlaceholders. This avoids needing html.WithUnsafe().
func convertHighlights(content string) string {
	if !strings.Contains(content, "==") {
		return content
	}
	return mapOutsideCode(content, func(s string) string {
		return highlightPattern.ReplaceAllString(s, MarkStartPlaceholder+"$1"+MarkEndPlaceholder)
	})
}

// ConvertMarkPlaceholders converts placeholder markers to <mark> tags.
// Called after Goldmark HTML conversion to finalize highlight markup.
// Markers that ended up inside a tag, such as in an image's alt text, are
// dropped and their text kept.
func ConvertMarkPlaceholders(content string) string {
	if !strings.Contains(content, MarkStartPlaceholder) && !strings.Contains(content, MarkEndPlaceholder) {
		return content
	}

	var b strings.Builder
	b.Grow(len(content) + 8)
	inTag := false
	for i := 0; i < len(content); {
		switch {
		case strings.HasPrefix(content[i:], MarkStartPlaceholder):
			if !inTag {
				b.WriteString("<mark>")
			}
			i += len(MarkStartPlaceholder)
			continue
		case strings.HasPrefix(content[i:], MarkEndPlaceholder):
			if !inTag {
				b.WriteString("</mark>")
			}
			i += len(MarkEndPlaceholder)
			continue
		}

		switch content[i] {
		case '<':
			inTag = true
		case '>':
			inTag = false
		}
		b.WriteByte(content[i])
		i++
	}
	return b.String()
}
