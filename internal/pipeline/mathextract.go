package pipeline

import (
	"bytes"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Math placeholders wrap a fragment index in Private Use Area characters.
// Goldmark treats them as ordinary text: they are not markdown syntax,
// not escaped, and not punctuation for emphasis flanking. The end marker
// keeps index 1 followed by a digit distinct from index 12.
const (
	MathStartPlaceholder = "\uE002"
	MathEndPlaceholder   = "\uE003"
)

// reservedRunes are stripped from input so placeholders cannot be forged.
var reservedRunes = strings.NewReplacer(
	"\x00", "",
	MarkStartPlaceholder, "",
	MarkEndPlaceholder, "",
	MathStartPlaceholder, "",
	MathEndPlaceholder, "",
)

// MathFragment is a formula lifted out of the text before markdown conversion.
type MathFragment struct {
	Formula string
	Display bool
}

// Placeholder returns the placeholder text for fragment index i.
func Placeholder(i int) string {
	return MathStartPlaceholder + strconv.Itoa(i) + MathEndPlaceholder
}

// Recognizer patterns. Masked bytes (code and claimed spans) are NUL, and
// every pattern refuses NUL so no match can cross them.
var (
	latexDisplayPattern  = regexp.MustCompile(`\\\[([^\x00]*?)\\\]`)
	lineBracketPattern   = regexp.MustCompile(`(?m)\[[ \t]*\n([^\x00]*?)\n[ \t]*\][ \t]*$`)
	dollarDisplayPattern = regexp.MustCompile(`\$\$([^\x00]+?)\$\$`)
	dollarInlinePattern  = regexp.MustCompile(`\$([^\x00$\n]+?)\$`)
	commandLinePattern   = regexp.MustCompile(`(?m)^[ \t]*(\\(?:frac|sum|int|prod|lim)(?:[^A-Za-z\x00\n][^\x00\n]*)?)$`)
	beginEnvPattern      = regexp.MustCompile(`\\begin\{(equation|align|gather|eqnarray)(\*?)\}`)
	parenInlinePattern   = regexp.MustCompile(`\\\(([^\x00]+?)\\\)`)
	commandBracket       = regexp.MustCompile(`\[\s*(\\(?:frac|sum|int|prod|lim|inf|sup|pi)[^\x00]*?)\]`)
)

// IsMath reports whether text looks like LaTeX. It gates bracket-delimited
// blocks, which are otherwise ordinary markdown.
var IsMath = defaultIsMath

var (
	mathCommandPattern = regexp.MustCompile(`\\(?:` +
		`frac|sum|int|prod|lim|inf|sup|` +
		`alpha|beta|gamma|delta|epsilon|zeta|eta|theta|iota|kappa|lambda|mu|nu|xi|pi|rho|` +
		`sigma|tau|upsilon|phi|chi|psi|omega|` +
		`partial|nabla|approx|sim|cong|equiv|times|div|pm|mp|cup|cap|in|ni|` +
		`subset|supset|emptyset|forall|exists|neg|` +
		`rightarrow|leftarrow|Rightarrow|Leftarrow|infty|` +
		`sin|cos|tan|cot|sec|csc|log|ln|left|right|cdot|cdots|ldots)`)
	mathSymbolPattern = regexp.MustCompile(`[{}^_]|\d/\d|\([+-]?\d+\)`)
)

func defaultIsMath(text string) bool {
	return mathCommandPattern.MatchString(text) || mathSymbolPattern.MatchString(text)
}

// mathSpan is a claimed byte range and the formula it yields.
type mathSpan struct {
	start, end int
	formula    string
	display    bool
}

// extraction holds the state of one ExtractMath call.
type extraction struct {
	text   string
	masked []byte
	isMath func(string) bool
	spans  []mathSpan
}

// ExtractMath replaces math in text with placeholders and returns the
// fragments in order of appearance. Code fences and code spans are never
// scanned. NUL and placeholder runes in the input are removed first.
func ExtractMath(text string) (string, []MathFragment) {
	return ExtractMathWith(text, IsMath)
}

// ExtractMathWith is ExtractMath with a custom bracket-block heuristic.
func ExtractMathWith(text string, isMath func(string) bool) (string, []MathFragment) {
	text = reservedRunes.Replace(text)
	if isMath == nil {
		isMath = defaultIsMath
	}

	e := &extraction{text: text, masked: []byte(text), isMath: isMath}
	for _, r := range codeRegions(text) {
		e.mask(r.start, r.end)
	}

	// Priority order: earlier recognizers claim first.
	e.latexDisplay()
	e.lineBrackets()
	e.dollarDisplay()
	e.dollarInline()
	e.commandLines()
	e.environments()
	e.parenInline()
	e.commandBrackets()

	if len(e.spans) == 0 {
		return text, nil
	}

	sort.Slice(e.spans, func(i, j int) bool { return e.spans[i].start < e.spans[j].start })

	var b strings.Builder
	b.Grow(len(text))
	fragments := make([]MathFragment, 0, len(e.spans))
	prev := 0
	for i, s := range e.spans {
		b.WriteString(text[prev:s.start])
		b.WriteString(Placeholder(i))
		fragments = append(fragments, MathFragment{Formula: s.formula, Display: s.display})
		prev = s.end
	}
	b.WriteString(text[prev:])
	return b.String(), fragments
}

func (e *extraction) mask(start, end int) {
	for i := start; i < end; i++ {
		e.masked[i] = 0
	}
}

// claim records a span after absorbing any paired brackets around it.
func (e *extraction) claim(start, end int, formula string, display bool) int {
	start, end = e.absorbBrackets(start, end)
	e.spans = append(e.spans, mathSpan{start: start, end: end, formula: formula, display: display})
	e.mask(start, end)
	return end
}

// scan runs re over the unclaimed text. accept receives each match's
// submatch offsets and returns the position to resume from, or -1 to
// reject the match and retry one byte later.
func (e *extraction) scan(re *regexp.Regexp, accept func(loc []int) int) {
	from := 0
	for from < len(e.masked) {
		loc := re.FindSubmatchIndex(e.masked[from:])
		if loc == nil {
			return
		}
		for i := range loc {
			if loc[i] >= 0 {
				loc[i] += from
			}
		}
		next := accept(loc)
		if next < 0 {
			next = loc[0] + 1
		}
		from = next
	}
}

func (e *extraction) atLineStart(pos int) bool {
	return pos == 0 || e.text[pos-1] == '\n'
}

func (e *extraction) escaped(pos int) bool {
	return pos > 0 && e.text[pos-1] == '\\'
}

func (e *extraction) latexDisplay() {
	e.scan(latexDisplayPattern, func(loc []int) int {
		formula := strings.TrimSpace(e.text[loc[2]:loc[3]])
		if formula == "" || e.escaped(loc[0]) {
			return -1
		}
		return e.claim(loc[0], loc[1], formula, true)
	})
}

func (e *extraction) lineBrackets() {
	// The opener may end a line of prose; the closer must end its own line.
	e.scan(lineBracketPattern, func(loc []int) int {
		if e.escaped(loc[0]) {
			return -1
		}
		formula := strings.TrimSpace(e.text[loc[2]:loc[3]])
		if formula == "" || !e.isMath(formula) {
			return -1
		}
		return e.claim(loc[0], loc[1], formula, true)
	})
}

func (e *extraction) dollarDisplay() {
	e.scan(dollarDisplayPattern, func(loc []int) int {
		formula := strings.TrimSpace(e.text[loc[2]:loc[3]])
		if formula == "" || e.escaped(loc[0]) {
			return -1
		}
		return e.claim(loc[0], loc[1], formula, true)
	})
}

func (e *extraction) dollarInline() {
	e.scan(dollarInlinePattern, func(loc []int) int {
		formula := strings.TrimSpace(e.text[loc[2]:loc[3]])
		if formula == "" || e.escaped(loc[0]) {
			return -1
		}
		return e.claim(loc[0], loc[1], formula, false)
	})
}

func (e *extraction) commandLines() {
	// lines of an environment body belong to the environment
	var envs []region
	for _, loc := range beginEnvPattern.FindAllSubmatchIndex(e.masked, -1) {
		if end, ok := e.environmentEnd(loc); ok {
			envs = append(envs, region{loc[0], end})
		}
	}

	e.scan(commandLinePattern, func(loc []int) int {
		if !e.atLineStart(loc[0]) || inRegions(envs, loc[2]) {
			return -1
		}
		formula := strings.TrimSpace(e.text[loc[2]:loc[3]])
		return e.claim(loc[2], loc[3], formula, true)
	})
}

func (e *extraction) environments() {
	e.scan(beginEnvPattern, func(loc []int) int {
		end, ok := e.environmentEnd(loc)
		if !ok {
			return -1
		}
		closerLen := len(`\end{}`) + (loc[3] - loc[2]) + (loc[5] - loc[4])
		body := strings.TrimSpace(e.text[loc[1] : end-closerLen])
		if body == "" {
			return -1
		}
		return e.claim(loc[0], end, environmentFormula(e.text[loc[2]:loc[3]], body), true)
	})
}

// environmentEnd returns the offset just past the \end matching the
// \begin at loc, when no masked text lies between them.
func (e *extraction) environmentEnd(loc []int) (int, bool) {
	name := e.text[loc[2]:loc[3]] + e.text[loc[4]:loc[5]]
	closer := []byte(`\end{` + name + `}`)

	rel := bytes.Index(e.masked[loc[1]:], closer)
	if rel < 0 {
		return 0, false
	}
	bodyEnd := loc[1] + rel
	if bytes.IndexByte(e.masked[loc[1]:bodyEnd], 0) >= 0 {
		return 0, false
	}
	return bodyEnd + len(closer), true
}

func inRegions(regions []region, pos int) bool {
	for _, r := range regions {
		if pos >= r.start && pos < r.end {
			return true
		}
	}
	return false
}

// environmentFormula keeps multi-line alignment working once the outer
// environment name is dropped.
func environmentFormula(env, body string) string {
	switch env {
	case "align", "eqnarray":
		if strings.Contains(body, "&") || strings.Contains(body, `\\`) {
			return `\begin{aligned}` + body + `\end{aligned}`
		}
	case "gather":
		if strings.Contains(body, `\\`) {
			return `\begin{gathered}` + body + `\end{gathered}`
		}
	}
	return body
}

func (e *extraction) parenInline() {
	e.scan(parenInlinePattern, func(loc []int) int {
		formula := strings.TrimSpace(e.text[loc[2]:loc[3]])
		if formula == "" || e.escaped(loc[0]) {
			return -1
		}
		return e.claim(loc[0], loc[1], formula, false)
	})
}

func (e *extraction) commandBrackets() {
	e.scan(commandBracket, func(loc []int) int {
		if e.escaped(loc[0]) {
			return -1
		}
		formula := strings.TrimSpace(e.text[loc[2]:loc[3]])
		return e.claim(loc[0], loc[1], formula, true)
	})
}

// absorbBrackets widens [start, end) over a paired opener before and closer
// after it. Each side may cross spaces, tabs, and at most one line break; a
// bracket on an adjacent line must be alone on that line.
func (e *extraction) absorbBrackets(start, end int) (int, int) {
	for {
		openStart, latex, ok := e.openerBefore(start)
		if !ok {
			return start, end
		}
		closeEnd, ok := e.closerAfter(end, latex)
		if !ok {
			return start, end
		}
		start, end = openStart, closeEnd
	}
}

// openerBefore finds "[" or "\[" before pos and returns its start offset.
func (e *extraction) openerBefore(pos int) (int, bool, bool) {
	m := e.masked
	i := skipBlanksBack(m, pos)
	crossed := false
	if i > 0 && m[i-1] == '\n' {
		crossed = true
		i = skipBlanksBack(m, i-1)
	}
	if i == 0 || m[i-1] != '[' {
		return 0, false, false
	}

	start := i - 1
	latex := start > 0 && m[start-1] == '\\'
	if latex {
		start--
	}
	if crossed {
		if j := skipBlanksBack(m, start); j > 0 && m[j-1] != '\n' {
			return 0, false, false
		}
	}
	return start, latex, true
}

// closerAfter finds the closer matching the opener kind after pos and
// returns the offset just past it.
func (e *extraction) closerAfter(pos int, latex bool) (int, bool) {
	m := e.masked
	i := skipBlanks(m, pos)
	crossed := false
	if i < len(m) && m[i] == '\n' {
		crossed = true
		i = skipBlanks(m, i+1)
	}

	switch {
	case latex && i+1 < len(m) && m[i] == '\\' && m[i+1] == ']':
		i += 2
	case !latex && i < len(m) && m[i] == ']':
		i++
		// "[...](" is a link
		if i < len(m) && m[i] == '(' {
			return 0, false
		}
	default:
		return 0, false
	}

	if crossed {
		if j := skipBlanks(m, i); j < len(m) && m[j] != '\n' {
			return 0, false
		}
	}
	return i, true
}

func skipBlanks(b []byte, i int) int {
	for i < len(b) && (b[i] == ' ' || b[i] == '\t') {
		i++
	}
	return i
}

func skipBlanksBack(b []byte, i int) int {
	for i > 0 && (b[i-1] == ' ' || b[i-1] == '\t') {
		i--
	}
	return i
}
