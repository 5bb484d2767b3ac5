package pipeline

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	xhtml "golang.org/x/net/html"
)

// PageAssets lists what a standalone page embeds or links.
type PageAssets struct {
	StyleLinks []string // stylesheet URLs, e.g. the KaTeX CDN
	Styles     []string // inlined CSS
	Scripts    []string // inlined JavaScript, run at the end of <body>
}

// StandalonePage wraps rendered message HTML in a complete document so it
// can be opened without the UI server. Inlined CSS and scripts cannot close
// their enclosing element.
func StandalonePage(title, body string, a PageAssets) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n")
	b.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1">` + "\n")
	b.WriteString("<title>" + html.EscapeString(title) + "</title>\n")
	for _, href := range a.StyleLinks {
		b.WriteString(`<link rel="stylesheet" href="` + html.EscapeString(href) + "\">\n")
	}
	for _, css := range a.Styles {
		if css != "" {
			b.WriteString("<style>" + escapeEndTags(css) + "</style>\n")
		}
	}
	b.WriteString("</head>\n<body>\n<main class=\"message assistant\">\n")
	b.WriteString(body)
	b.WriteString("\n</main>\n")
	for _, js := range a.Scripts {
		if js != "" {
			b.WriteString("<script>" + escapeEndTags(js) + "</script>\n")
		}
	}
	b.WriteString("</body>\n</html>\n")
	return b.String()
}

// escapeEndTags keeps inlined CSS or JavaScript from closing its element.
func escapeEndTags(s string) string {
	return strings.ReplaceAll(s, "</", `<\/`)
}

// ---------------------------------------------------------------------------
// Math restoration
// ---------------------------------------------------------------------------

var (
	placeholderPattern          = regexp.MustCompile(MathStartPlaceholder + `(\d+)` + MathEndPlaceholder)
	paragraphPlaceholderPattern = regexp.MustCompile(`<p>` + MathStartPlaceholder + `(\d+)` + MathEndPlaceholder + `</p>`)
)

// RestoreMath replaces placeholders with rendered math. bodies[i] is the
// rendered content of fragments[i]. A paragraph holding only a display
// placeholder becomes a block container; any other placeholder becomes a
// span. Placeholders with no fragment are left as they are.
func RestoreMath(htmlContent string, fragments []MathFragment, bodies []string) string {
	if !strings.Contains(htmlContent, MathStartPlaceholder) {
		return htmlContent
	}

	lookup := func(digits string) (int, bool) {
		i, err := strconv.Atoi(digits)
		if err != nil || i < 0 || i >= len(fragments) || i >= len(bodies) {
			return 0, false
		}
		return i, true
	}

	htmlContent = replaceSubmatch(paragraphPlaceholderPattern, htmlContent, func(match []int) (string, bool) {
		i, ok := lookup(htmlContent[match[2]:match[3]])
		if !ok || !fragments[i].Display {
			return "", false
		}
		return MathContainer(bodies[i], true, true), true
	})

	return replaceSubmatch(placeholderPattern, htmlContent, func(match []int) (string, bool) {
		i, ok := lookup(htmlContent[match[2]:match[3]])
		if !ok {
			return "", false
		}
		// alt text and other attribute values take the formula as text
		if insideTag(htmlContent, match[0]) {
			return html.EscapeString(fragments[i].Formula), true
		}
		return MathContainer(bodies[i], fragments[i].Display, false), true
	})
}

// replaceSubmatch replaces each match of re for which fn reports true.
func replaceSubmatch(re *regexp.Regexp, s string, fn func(match []int) (string, bool)) string {
	matches := re.FindAllStringSubmatchIndex(s, -1)
	if matches == nil {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	prev := 0
	for _, m := range matches {
		repl, ok := fn(m)
		if !ok {
			continue
		}
		b.WriteString(s[prev:m[0]])
		b.WriteString(repl)
		prev = m[1]
	}
	b.WriteString(s[prev:])
	return b.String()
}

// insideTag reports whether pos falls between a '<' and its '>'.
func insideTag(s string, pos int) bool {
	return strings.LastIndexByte(s[:pos], '<') > strings.LastIndexByte(s[:pos], '>')
}

// ---------------------------------------------------------------------------
// Citations
// ---------------------------------------------------------------------------

var citationPattern = regexp.MustCompile(`\[(\d+)\]`)

// Elements whose text is never treated as prose.
var citationSkipTags = map[string]bool{
	"pre": true, "code": true, "a": true, "script": true, "style": true,
	"math": true, "svg": true, "textarea": true,
}

// Classes marking rendered math.
var citationSkipClasses = []string{mathBlockClass, mathInlineClass, "katex"}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

// StyleCitations turns "[n]" references in prose into superscripts.
// A reference preceded by "]" or followed by "(" is left alone, as is any
// text inside code, links, or math. Tags and attributes are never rewritten.
func StyleCitations(htmlContent string) string {
	if !citationPattern.MatchString(htmlContent) {
		return htmlContent
	}

	type openElement struct {
		name string
		skip bool
	}
	var stack []openElement
	skipping := 0

	z := xhtml.NewTokenizer(strings.NewReader(htmlContent))
	var b strings.Builder
	b.Grow(len(htmlContent) + 64)

	for {
		tt := z.Next()
		if tt == xhtml.ErrorToken {
			// the reader is a string, so the only error is io.EOF
			return b.String()
		}

		// Raw before TagName: the tokenizer lowercases names in place.
		raw := string(z.Raw())

		switch tt {
		case xhtml.TextToken:
			if skipping == 0 {
				raw = citeText(raw)
			}
			b.WriteString(raw)

		case xhtml.StartTagToken:
			b.WriteString(raw)
			name, hasAttr := z.TagName()
			tag := string(name)
			if voidElements[tag] {
				continue
			}
			skip := citationSkipTags[tag] || (hasAttr && hasSkipClass(z))
			if skip {
				skipping++
			}
			stack = append(stack, openElement{name: tag, skip: skip})

		case xhtml.EndTagToken:
			b.WriteString(raw)
			name, _ := z.TagName()
			tag := string(name)
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i].name != tag {
					continue
				}
				for _, el := range stack[i:] {
					if el.skip {
						skipping--
					}
				}
				stack = stack[:i]
				break
			}

		default:
			b.WriteString(raw)
		}
	}
}

func hasSkipClass(z *xhtml.Tokenizer) bool {
	for {
		key, val, more := z.TagAttr()
		if string(key) == "class" {
			for _, class := range strings.Fields(string(val)) {
				for _, skip := range citationSkipClasses {
					if class == skip {
						return true
					}
				}
			}
		}
		if !more {
			return false
		}
	}
}

// citeText rewrites references in one escaped text run.
func citeText(s string) string {
	matches := citationPattern.FindAllStringSubmatchIndex(s, -1)
	if matches == nil {
		return s
	}

	var b strings.Builder
	prev := 0
	for _, m := range matches {
		if m[0] > 0 && s[m[0]-1] == ']' {
			continue
		}
		if m[1] < len(s) && s[m[1]] == '(' {
			continue
		}
		b.WriteString(s[prev:m[0]])
		b.WriteString(`<sup class="citation-reference">[`)
		b.WriteString(s[m[2]:m[3]])
		b.WriteString(`]</sup>`)
		prev = m[1]
	}
	b.WriteString(s[prev:])
	return b.String()
}

// ---------------------------------------------------------------------------
// Copy buttons
// ---------------------------------------------------------------------------

var preBlockPattern = regexp.MustCompile(`(?s)<pre[\s>].*?</pre>`)

const copyButton = `<button type="button" class="copy-button" data-copy-code>Copy</button>`

// InjectCopyButtons wraps every <pre> block with a copy button.
// The host page script reads the block text when the button is pressed.
func InjectCopyButtons(htmlContent string) string {
	if !strings.Contains(htmlContent, "<pre") {
		return htmlContent
	}
	return preBlockPattern.ReplaceAllStringFunc(htmlContent, func(block string) string {
		return `<div class="code-block-wrapper">` + copyButton + block + `</div>`
	})
}
