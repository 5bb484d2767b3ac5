package typeset

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode"
)

// Parser limits.
const (
	maxNestingDepth  = 200
	maxMacroExpand   = 1000
	maxExpandedRunes = 100_000
)

const mathMLNamespace = "http://www.w3.org/1998/Math/MathML"

// functionApplication is U+2061, placed after function names.
const functionApplication = "\u2061"

var (
	dimensionPattern = regexp.MustCompile(`^-?(\d+\.?\d*|\.\d+)(em|ex|pt|px|mu)$`)
	colorPattern     = regexp.MustCompile(`^(#[0-9A-Fa-f]{3,8}|[A-Za-z]+)$`)
	macroArgPattern  = regexp.MustCompile(`#([1-9])`)
)

// MathML typesets LaTeX into presentation MathML with a TeX annotation.
// It needs no browser and is safe for concurrent use.
type MathML struct {
	macros Macros
}

// NewMathML creates a MathML typesetter. A nil macro table selects DefaultMacros.
func NewMathML(macros Macros) *MathML {
	if macros == nil {
		macros = DefaultMacros()
	}
	return &MathML{macros: macros}
}

// Typeset converts formula to a <math> element.
// Returns ErrMalformed when the formula cannot be parsed.
func (m *MathML) Typeset(ctx context.Context, formula string, display bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	p := &mathParser{
		src:     []rune(formula),
		macros:  m.macros,
		display: display,
	}
	body, err := p.parseDocument()
	if err != nil {
		return "", err
	}

	mode := "inline"
	if display {
		mode = "block"
	}

	var b strings.Builder
	b.Grow(len(body) + len(formula) + 160)
	fmt.Fprintf(&b, `<math xmlns="%s" display="%s">`, mathMLNamespace, mode)
	b.WriteString("<semantics><mrow>")
	b.WriteString(body)
	b.WriteString(`</mrow><annotation encoding="application/x-tex">`)
	b.WriteString(html.EscapeString(formula))
	b.WriteString("</annotation></semantics></math>")
	return b.String(), nil
}

// stopKind tells a sequence parser why it stopped.
type stopKind int

const (
	stopEOF stopKind = iota
	stopClose
	stopAmp
	stopRowSep
	stopEnd
	stopRight
	stopMiddle
	stopBracket
)

// atomKind decides how scripts attach to a base.
type atomKind int

const (
	atomOrdinary atomKind = iota
	atomLargeOp           // limits in display mode
	atomIntegral          // scripts always
	atomLimits            // limits always
)

type mathParser struct {
	src        []rune
	pos        int
	macros     Macros
	display    bool
	variant    fontVariant
	depth      int
	expansions int
	// inBracket stops sequences at ']' while reading an optional argument.
	inBracket bool
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

func (p *mathParser) parseDocument() (string, error) {
	body, stop, err := p.parseSeq(false)
	if err != nil {
		return "", err
	}
	switch stop {
	case stopEOF:
		return body, nil
	case stopClose:
		return "", malformed("unexpected '}' at position %d", p.pos)
	case stopAmp:
		return "", malformed("'&' outside of an environment")
	case stopEnd:
		return "", malformed(`\end without \begin`)
	case stopRight:
		return "", malformed(`\right without \left`)
	case stopMiddle:
		return "", malformed(`\middle without \left`)
	default:
		return "", malformed("unexpected token at position %d", p.pos)
	}
}

func (p *mathParser) eof() bool { return p.pos >= len(p.src) }

func (p *mathParser) peek() rune {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

// skipSpace skips whitespace and %-comments.
func (p *mathParser) skipSpace() {
	for !p.eof() {
		r := p.src[p.pos]
		switch {
		case unicode.IsSpace(r):
			p.pos++
		case r == '%':
			for !p.eof() && p.src[p.pos] != '\n' {
				p.pos++
			}
		default:
			return
		}
	}
}

// peekCommand returns the command name at the cursor without consuming it.
func (p *mathParser) peekCommand() (string, bool) {
	if p.peek() != '\\' {
		return "", false
	}
	save := p.pos
	name := p.readCommand()
	p.pos = save
	return name, true
}

// readCommand consumes "\name" and returns name: a run of letters, or a single
// other character. An empty name means the input ended after the backslash.
func (p *mathParser) readCommand() string {
	p.pos++ // backslash
	if p.eof() {
		return ""
	}
	start := p.pos
	if isASCIILetter(p.src[p.pos]) {
		for !p.eof() && isASCIILetter(p.src[p.pos]) {
			p.pos++
		}
		return string(p.src[start:p.pos])
	}
	p.pos++
	return string(p.src[start:p.pos])
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// parseSeq parses atoms until a stop token, which is left unconsumed.
// Outside environments "\\" becomes a line break.
func (p *mathParser) parseSeq(inEnv bool) (string, stopKind, error) {
	var b strings.Builder
	for {
		p.skipSpace()
		if p.eof() {
			return b.String(), stopEOF, nil
		}
		switch p.peek() {
		case '}':
			return b.String(), stopClose, nil
		case '&':
			return b.String(), stopAmp, nil
		case ']':
			if p.inBracket {
				return b.String(), stopBracket, nil
			}
		case '\\':
			name, _ := p.peekCommand()
			switch name {
			case "\\", "cr":
				if inEnv {
					return b.String(), stopRowSep, nil
				}
				p.readCommand()
				p.skipOptionalDimension()
				b.WriteString(`<mspace linebreak="newline"/>`)
				continue
			case "end":
				return b.String(), stopEnd, nil
			case "right":
				return b.String(), stopRight, nil
			case "middle":
				return b.String(), stopMiddle, nil
			}
		}

		atom, err := p.parseAtom()
		if err != nil {
			return "", stopEOF, err
		}
		b.WriteString(atom)
	}
}

// atSequenceEnd reports whether the cursor sits on a token that ends a sequence.
func (p *mathParser) atSequenceEnd() bool {
	p.skipSpace()
	if p.eof() {
		return true
	}
	switch p.peek() {
	case '}', '&':
		return true
	case ']':
		return p.inBracket
	}
	name, ok := p.peekCommand()
	return ok && (name == "\\" || name == "end" || name == "right" || name == "middle")
}

// skipOptionalDimension skips the "[2pt]" that may follow a row separator.
func (p *mathParser) skipOptionalDimension() {
	save := p.pos
	p.skipSpace()
	if p.peek() != '[' {
		p.pos = save
		return
	}
	end := p.pos
	for end < len(p.src) && p.src[end] != ']' {
		end++
	}
	if end < len(p.src) && dimensionPattern.MatchString(strings.TrimSpace(string(p.src[p.pos+1:end]))) {
		p.pos = end + 1
		return
	}
	p.pos = save
}

// parseAtom parses a base with optional sub/superscripts.
func (p *mathParser) parseAtom() (string, error) {
	var base string
	kind := atomOrdinary

	p.skipSpace()
	if r := p.peek(); r == '^' || r == '_' {
		base = "<mrow></mrow>"
	} else {
		var err error
		base, kind, err = p.parsePrimary()
		if err != nil {
			return "", err
		}
	}

	var sub, sup string
	var hasSub, hasSup bool
	for {
		p.skipSpace()
		if name, ok := p.peekCommand(); ok && (name == "limits" || name == "nolimits") {
			p.readCommand()
			if kind != atomOrdinary {
				if name == "limits" {
					kind = atomLimits
				} else {
					kind = atomIntegral
				}
			}
			continue
		}
		r := p.peek()
		if r != '^' && r != '_' {
			break
		}
		p.pos++
		arg, err := p.parseArgument()
		if err != nil {
			return "", err
		}
		if r == '^' {
			if hasSup {
				return "", malformed("double superscript")
			}
			sup, hasSup = arg, true
		} else {
			if hasSub {
				return "", malformed("double subscript")
			}
			sub, hasSub = arg, true
		}
	}

	if !hasSub && !hasSup {
		return base, nil
	}
	if base == "" {
		base = "<mrow></mrow>"
	}

	limits := kind == atomLimits || (kind == atomLargeOp && p.display)
	switch {
	case limits && hasSub && hasSup:
		return "<munderover>" + base + sub + sup + "</munderover>", nil
	case limits && hasSub:
		return "<munder>" + base + sub + "</munder>", nil
	case limits:
		return "<mover>" + base + sup + "</mover>", nil
	case hasSub && hasSup:
		return "<msubsup>" + base + sub + sup + "</msubsup>", nil
	case hasSub:
		return "<msub>" + base + sub + "</msub>", nil
	default:
		return "<msup>" + base + sup + "</msup>", nil
	}
}

// parseArgument parses one macro argument: a group, a command, or a single character.
// The result is a single MathML element.
func (p *mathParser) parseArgument() (string, error) {
	p.skipSpace()
	if p.eof() {
		return "", malformed("missing argument")
	}
	switch p.peek() {
	case '}', '&', '^', '_':
		return "", malformed("missing argument at position %d", p.pos)
	case '{':
		s, _, err := p.parsePrimary()
		return s, err
	case '\\':
		name, _ := p.peekCommand()
		if name == "" || name == "\\" || name == "end" || name == "right" {
			return "", malformed("missing argument at position %d", p.pos)
		}
		s, _, err := p.parsePrimary()
		return s, err
	}
	// a single character, never a whole number
	r := p.src[p.pos]
	p.pos++
	return p.character(r), nil
}

// parsePrimary parses one base element without scripts.
func (p *mathParser) parsePrimary() (string, atomKind, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > maxNestingDepth {
		return "", atomOrdinary, malformed("nesting too deep")
	}

	p.skipSpace()
	if p.eof() {
		return "", atomOrdinary, malformed("unexpected end of formula")
	}

	r := p.peek()
	switch {
	case r == '{':
		p.pos++
		inner, err := p.parseGroupBody()
		if err != nil {
			return "", atomOrdinary, err
		}
		return "<mrow>" + inner + "</mrow>", atomOrdinary, nil
	case r == '\\':
		return p.parseCommand()
	case r == '~':
		p.pos++
		return "<mtext> </mtext>", atomOrdinary, nil
	case isDigit(r) || (r == '.' && p.pos+1 < len(p.src) && isDigit(p.src[p.pos+1])):
		return p.parseNumber(), atomOrdinary, nil
	}

	p.pos++
	return p.character(r), atomOrdinary, nil
}

// parseGroupBody parses up to and including the closing brace.
func (p *mathParser) parseGroupBody() (string, error) {
	saveBracket := p.inBracket
	p.inBracket = false
	defer func() { p.inBracket = saveBracket }()

	saveVariant := p.variant
	inner, stop, err := p.parseSeq(false)
	p.variant = saveVariant
	if err != nil {
		return "", err
	}
	switch stop {
	case stopClose:
		p.pos++
		return inner, nil
	case stopEOF:
		return "", malformed("missing '}'")
	case stopAmp:
		return "", malformed("'&' inside a group")
	case stopEnd:
		return "", malformed(`\end inside a group`)
	case stopRight:
		return "", malformed(`\right inside a group without \left`)
	default:
		return "", malformed("unbalanced group")
	}
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func (p *mathParser) parseNumber() string {
	start := p.pos
	for !p.eof() {
		r := p.src[p.pos]
		if isDigit(r) {
			p.pos++
			continue
		}
		if r == '.' && p.pos+1 < len(p.src) && isDigit(p.src[p.pos+1]) {
			p.pos++
			continue
		}
		break
	}
	return "<mn>" + styleText(p.variant, string(p.src[start:p.pos])) + "</mn>"
}

// character renders a single rune as mi, mn, or mo.
func (p *mathParser) character(r rune) string {
	switch {
	case isDigit(r):
		return "<mn>" + string(styleRune(p.variant, r)) + "</mn>"
	case unicode.IsLetter(r):
		return p.identifier(string(r))
	}
	if op, ok := asciiOperators[r]; ok {
		return "<mo>" + html.EscapeString(op) + "</mo>"
	}
	return "<mo>" + html.EscapeString(string(r)) + "</mo>"
}

// identifier renders a letter in the current font variant.
func (p *mathParser) identifier(s string) string {
	switch p.variant {
	case variantDefault:
		return "<mi>" + html.EscapeString(s) + "</mi>"
	case variantNormal:
		return `<mi mathvariant="normal">` + html.EscapeString(s) + "</mi>"
	default:
		return "<mi>" + html.EscapeString(styleText(p.variant, s)) + "</mi>"
	}
}

func (p *mathParser) parseCommand() (string, atomKind, error) {
	start := p.pos
	name := p.readCommand()
	if name == "" {
		return "", atomOrdinary, malformed("trailing backslash")
	}

	if body, ok := p.macros[name]; ok {
		if err := p.expandMacro(start, body); err != nil {
			return "", atomOrdinary, err
		}
		if p.atSequenceEnd() {
			return "<mrow></mrow>", atomOrdinary, nil
		}
		return p.parsePrimary()
	}

	if s, ok := greekLetters[name]; ok {
		if unicode.IsUpper([]rune(name)[0]) {
			return `<mi mathvariant="normal">` + s + "</mi>", atomOrdinary, nil
		}
		return "<mi>" + s + "</mi>", atomOrdinary, nil
	}
	if s, ok := identifiers[name]; ok {
		return "<mi>" + s + "</mi>", atomOrdinary, nil
	}
	if s, ok := operators[name]; ok {
		return "<mo>" + html.EscapeString(s) + "</mo>", atomOrdinary, nil
	}
	if s, ok := bigOperators[name]; ok {
		return `<mo largeop="true">` + s + "</mo>", atomLargeOp, nil
	}
	if s, ok := integrals[name]; ok {
		return `<mo largeop="true">` + s + "</mo>", atomIntegral, nil
	}
	if functionNames[name] {
		return "<mi>" + name + "</mi><mo>" + functionApplication + "</mo>", atomOrdinary, nil
	}
	if limitFunctions[name] {
		text := name
		if t, ok := limitFunctionText[name]; ok {
			text = t
		}
		return "<mi>" + text + "</mi>", atomLargeOp, nil
	}
	if w, ok := spaces[name]; ok {
		return `<mspace width="` + w + `"/>`, atomOrdinary, nil
	}
	if a, ok := accents[name]; ok {
		return p.parseAccent(a)
	}
	if size, ok := delimiterSizes[name]; ok {
		d, err := p.readDelimiter()
		if err != nil {
			return "", atomOrdinary, err
		}
		if d == "" {
			return "", atomOrdinary, nil
		}
		return fmt.Sprintf(`<mo minsize="%s" maxsize="%s">%s</mo>`, size, size, d), atomOrdinary, nil
	}
	if v, ok := fontCommands[name]; ok {
		return p.parseFont(v)
	}
	if textCommands[name] {
		text, err := p.readRawArgument()
		if err != nil {
			return "", atomOrdinary, err
		}
		return "<mtext>" + html.EscapeString(unescapeText(text)) + "</mtext>", atomOrdinary, nil
	}

	switch name {
	case "frac", "dfrac", "tfrac", "cfrac":
		return p.parseFrac(name)
	case "binom", "dbinom", "tbinom":
		return p.parseBinom(name)
	case "sqrt":
		return p.parseSqrt()
	case "left":
		return p.parseLeftRight()
	case "begin":
		return p.parseEnvironment()
	case "operatorname":
		limits := false
		if p.peek() == '*' {
			p.pos++
			limits = true
		}
		text, err := p.readRawArgument()
		if err != nil {
			return "", atomOrdinary, err
		}
		mi := "<mi>" + html.EscapeString(strings.TrimSpace(unescapeText(text))) + "</mi>"
		if limits {
			return mi, atomLargeOp, nil
		}
		return mi + "<mo>" + functionApplication + "</mo>", atomOrdinary, nil
	case "not":
		return p.parseNot()
	case "overset", "stackrel", "underset":
		return p.parseOverUnder(name == "underset")
	case "color", "textcolor":
		return p.parseColor()
	case "boxed":
		arg, err := p.parseArgument()
		if err != nil {
			return "", atomOrdinary, err
		}
		return `<menclose notation="box">` + arg + "</menclose>", atomOrdinary, nil
	case "phantom":
		arg, err := p.parseArgument()
		if err != nil {
			return "", atomOrdinary, err
		}
		return "<mphantom>" + arg + "</mphantom>", atomOrdinary, nil
	case "pmod":
		arg, err := p.parseArgument()
		if err != nil {
			return "", atomOrdinary, err
		}
		return `<mspace width="1em"/><mo>(</mo><mi>mod</mi><mspace width="0.3333em"/>` + arg + "<mo>)</mo>", atomOrdinary, nil
	case "bmod", "mod":
		return `<mo lspace="0.2222em" rspace="0.2222em">mod</mo>`, atomOrdinary, nil
	case "hspace":
		text, err := p.readRawArgument()
		if err != nil {
			return "", atomOrdinary, err
		}
		if w := strings.TrimSpace(text); dimensionPattern.MatchString(w) {
			return `<mspace width="` + normalizeDimension(w) + `"/>`, atomOrdinary, nil
		}
		return "", atomOrdinary, nil
	case "tag", "label":
		if _, err := p.readRawArgument(); err != nil {
			return "", atomOrdinary, err
		}
		return "", atomOrdinary, nil
	case "displaystyle", "textstyle", "scriptstyle", "scriptscriptstyle",
		"nonumber", "notag", "limits", "nolimits", "relax", "strut":
		return "", atomOrdinary, nil
	case "\\":
		return `<mspace linebreak="newline"/>`, atomOrdinary, nil
	}

	return "<merror><mtext>" + html.EscapeString(`\`+name) + "</mtext></merror>", atomOrdinary, nil
}

// expandMacro splices the macro body, with #n arguments substituted, in
// place of the command that starts at start.
func (p *mathParser) expandMacro(start int, body string) error {
	p.expansions++
	if p.expansions > maxMacroExpand {
		return malformed("macro expansion limit exceeded")
	}

	argc := 0
	for _, m := range macroArgPattern.FindAllStringSubmatch(body, -1) {
		if n := int(m[1][0] - '0'); n > argc {
			argc = n
		}
	}

	args := make([]string, argc)
	for i := range args {
		arg, err := p.readRawArgument()
		if err != nil {
			return err
		}
		args[i] = arg
	}

	expanded := macroArgPattern.ReplaceAllStringFunc(body, func(ref string) string {
		n := int(ref[1] - '0')
		if n > len(args) {
			return ""
		}
		return args[n-1]
	})

	rest := p.src[p.pos:]
	next := make([]rune, 0, start+len(expanded)+len(rest))
	next = append(next, p.src[:start]...)
	next = append(next, []rune(expanded)...)
	next = append(next, rest...)
	if len(next) > maxExpandedRunes {
		return malformed("formula too long after macro expansion")
	}
	p.src = next
	p.pos = start
	return nil
}

// readRawArgument returns the source text of the next argument: the contents
// of a balanced group, a command, or a single character.
func (p *mathParser) readRawArgument() (string, error) {
	p.skipSpace()
	if p.eof() {
		return "", malformed("missing argument")
	}
	switch r := p.peek(); r {
	case '{':
		depth := 0
		start := p.pos + 1
		for ; p.pos < len(p.src); p.pos++ {
			switch p.src[p.pos] {
			case '\\':
				p.pos++ // skip escaped character
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					s := string(p.src[start:p.pos])
					p.pos++
					return s, nil
				}
			}
		}
		return "", malformed("missing '}'")
	case '}':
		return "", malformed("missing argument at position %d", p.pos)
	case '\\':
		start := p.pos
		if p.readCommand() == "" {
			return "", malformed("trailing backslash")
		}
		return string(p.src[start:p.pos]), nil
	default:
		p.pos++
		return string(r), nil
	}
}

// unescapeText removes grouping braces and TeX escapes from text-mode content.
func unescapeText(s string) string {
	var b strings.Builder
	rs := []rune(s)
	for i := 0; i < len(rs); i++ {
		switch rs[i] {
		case '{', '}':
			continue
		case '~':
			b.WriteRune(' ')
		case '\\':
			if i+1 < len(rs) && !isASCIILetter(rs[i+1]) {
				i++
				if rs[i] == ' ' || rs[i] == ',' {
					b.WriteRune(' ')
				} else {
					b.WriteRune(rs[i])
				}
				continue
			}
			b.WriteRune(rs[i])
		default:
			b.WriteRune(rs[i])
		}
	}
	return b.String()
}

func normalizeDimension(w string) string {
	if strings.HasSuffix(w, "mu") {
		var v float64
		if _, err := fmt.Sscanf(strings.TrimSuffix(w, "mu"), "%g", &v); err == nil {
			return fmt.Sprintf("%.4gem", v/18)
		}
	}
	return w
}

func (p *mathParser) parseFrac(name string) (string, atomKind, error) {
	num, err := p.parseArgument()
	if err != nil {
		return "", atomOrdinary, err
	}
	den, err := p.parseArgument()
	if err != nil {
		return "", atomOrdinary, err
	}
	frac := "<mfrac>" + num + den + "</mfrac>"
	switch name {
	case "dfrac", "cfrac":
		return `<mstyle displaystyle="true" scriptlevel="0">` + frac + "</mstyle>", atomOrdinary, nil
	case "tfrac":
		return `<mstyle displaystyle="false" scriptlevel="0">` + frac + "</mstyle>", atomOrdinary, nil
	}
	return frac, atomOrdinary, nil
}

func (p *mathParser) parseBinom(name string) (string, atomKind, error) {
	top, err := p.parseArgument()
	if err != nil {
		return "", atomOrdinary, err
	}
	bottom, err := p.parseArgument()
	if err != nil {
		return "", atomOrdinary, err
	}
	out := `<mrow><mo>(</mo><mfrac linethickness="0">` + top + bottom + `</mfrac><mo>)</mo></mrow>`
	switch name {
	case "dbinom":
		out = `<mstyle displaystyle="true" scriptlevel="0">` + out + "</mstyle>"
	case "tbinom":
		out = `<mstyle displaystyle="false" scriptlevel="0">` + out + "</mstyle>"
	}
	return out, atomOrdinary, nil
}

func (p *mathParser) parseSqrt() (string, atomKind, error) {
	p.skipSpace()
	var index string
	if p.peek() == '[' {
		p.pos++
		saveBracket := p.inBracket
		p.inBracket = true
		inner, stop, err := p.parseSeq(false)
		p.inBracket = saveBracket
		if err != nil {
			return "", atomOrdinary, err
		}
		if stop != stopBracket {
			return "", atomOrdinary, malformed(`unterminated \sqrt index`)
		}
		p.pos++
		index = "<mrow>" + inner + "</mrow>"
	}

	radicand, err := p.parseArgument()
	if err != nil {
		return "", atomOrdinary, err
	}
	if index != "" {
		return "<mroot>" + radicand + index + "</mroot>", atomOrdinary, nil
	}
	return "<msqrt>" + radicand + "</msqrt>", atomOrdinary, nil
}

func (p *mathParser) parseAccent(a accent) (string, atomKind, error) {
	arg, err := p.parseArgument()
	if err != nil {
		return "", atomOrdinary, err
	}
	mark := `<mo stretchy="false">` + html.EscapeString(a.mark) + "</mo>"
	if a.stretchy {
		mark = `<mo stretchy="true">` + html.EscapeString(a.mark) + "</mo>"
	}
	kind := atomOrdinary
	if a.limits {
		kind = atomLimits
	}
	if a.under {
		return `<munder accentunder="true">` + arg + mark + "</munder>", kind, nil
	}
	return `<mover accent="true">` + arg + mark + "</mover>", kind, nil
}

func (p *mathParser) parseFont(v fontVariant) (string, atomKind, error) {
	save := p.variant
	p.variant = v
	arg, err := p.parseArgument()
	p.variant = save
	if err != nil {
		return "", atomOrdinary, err
	}
	return arg, atomOrdinary, nil
}

func (p *mathParser) parseNot() (string, atomKind, error) {
	p.skipSpace()
	next, kind, err := p.parsePrimary()
	if err != nil {
		return "", atomOrdinary, err
	}
	if strings.HasPrefix(next, "<mo>") && strings.HasSuffix(next, "</mo>") {
		op := html.UnescapeString(strings.TrimSuffix(strings.TrimPrefix(next, "<mo>"), "</mo>"))
		if neg, ok := negations[op]; ok {
			return "<mo>" + html.EscapeString(neg) + "</mo>", kind, nil
		}
		return "<mo>" + html.EscapeString(op) + "\u0338</mo>", kind, nil
	}
	return "<mo>⧸</mo>" + next, kind, nil
}

func (p *mathParser) parseOverUnder(under bool) (string, atomKind, error) {
	script, err := p.parseArgument()
	if err != nil {
		return "", atomOrdinary, err
	}
	base, err := p.parseArgument()
	if err != nil {
		return "", atomOrdinary, err
	}
	if under {
		return "<munder>" + base + script + "</munder>", atomOrdinary, nil
	}
	return "<mover>" + base + script + "</mover>", atomOrdinary, nil
}

func (p *mathParser) parseColor() (string, atomKind, error) {
	color, err := p.readRawArgument()
	if err != nil {
		return "", atomOrdinary, err
	}
	arg, err := p.parseArgument()
	if err != nil {
		return "", atomOrdinary, err
	}
	color = strings.TrimSpace(color)
	if !colorPattern.MatchString(color) {
		return arg, atomOrdinary, nil
	}
	return `<mstyle mathcolor="` + color + `">` + arg + "</mstyle>", atomOrdinary, nil
}

// readDelimiter reads the delimiter after \left, \right, \middle, or \big.
// The null delimiter "." yields an empty string.
func (p *mathParser) readDelimiter() (string, error) {
	p.skipSpace()
	if p.eof() {
		return "", malformed("missing delimiter")
	}
	r := p.peek()
	if r == '\\' {
		name := p.readCommand()
		if s, ok := operators[name]; ok {
			return html.EscapeString(s), nil
		}
		return "", malformed(`bad delimiter \%s`, name)
	}
	p.pos++
	switch r {
	case '.':
		return "", nil
	case '(', ')', '[', ']', '|', '/':
		return string(r), nil
	case '<':
		return "⟨", nil
	case '>':
		return "⟩", nil
	}
	return "", malformed("bad delimiter %q", r)
}

func fence(d string) string {
	if d == "" {
		return ""
	}
	return `<mo fence="true" stretchy="true">` + d + "</mo>"
}

func (p *mathParser) parseLeftRight() (string, atomKind, error) {
	open, err := p.readDelimiter()
	if err != nil {
		return "", atomOrdinary, err
	}

	saveBracket := p.inBracket
	p.inBracket = false
	defer func() { p.inBracket = saveBracket }()

	var b strings.Builder
	b.WriteString("<mrow>")
	b.WriteString(fence(open))
	for {
		inner, stop, err := p.parseSeq(false)
		if err != nil {
			return "", atomOrdinary, err
		}
		b.WriteString(inner)
		switch stop {
		case stopMiddle:
			p.readCommand()
			d, err := p.readDelimiter()
			if err != nil {
				return "", atomOrdinary, err
			}
			if d != "" {
				b.WriteString(`<mo stretchy="true">` + d + "</mo>")
			}
			continue
		case stopRight:
			p.readCommand()
			closeDelim, err := p.readDelimiter()
			if err != nil {
				return "", atomOrdinary, err
			}
			b.WriteString(fence(closeDelim))
			b.WriteString("</mrow>")
			return b.String(), atomOrdinary, nil
		case stopEOF:
			return "", atomOrdinary, malformed(`missing \right`)
		default:
			return "", atomOrdinary, malformed(`unbalanced \left`)
		}
	}
}

type environment struct {
	open, close string
	align       string // per-column alignment cycle, "" for centered
	display     bool
	small       bool
}

var environments = map[string]environment{
	"matrix":      {},
	"pmatrix":     {open: "(", close: ")"},
	"bmatrix":     {open: "[", close: "]"},
	"Bmatrix":     {open: "{", close: "}"},
	"vmatrix":     {open: "|", close: "|"},
	"Vmatrix":     {open: "‖", close: "‖"},
	"smallmatrix": {small: true},
	"cases":       {open: "{", align: "left left"},
	"aligned":     {align: "right left", display: true},
	"align":       {align: "right left", display: true},
	"align*":      {align: "right left", display: true},
	"split":       {align: "right left", display: true},
	"eqnarray":    {align: "right center left", display: true},
	"eqnarray*":   {align: "right center left", display: true},
	"gathered":    {display: true},
	"gather":      {display: true},
	"gather*":     {display: true},
	"equation":    {display: true},
	"equation*":   {display: true},
	"array":       {},
}

func (p *mathParser) parseEnvironment() (string, atomKind, error) {
	name, err := p.readRawArgument()
	if err != nil {
		return "", atomOrdinary, err
	}
	name = strings.TrimSpace(name)
	env, ok := environments[name]
	if !ok {
		return "", atomOrdinary, malformed("unknown environment %q", name)
	}

	if name == "array" {
		spec, err := p.readRawArgument()
		if err != nil {
			return "", atomOrdinary, err
		}
		env.align = arrayAlignment(spec)
	}

	saveBracket := p.inBracket
	p.inBracket = false
	defer func() { p.inBracket = saveBracket }()

	rows := [][]string{{}}
	for {
		cell, stop, err := p.parseSeq(true)
		if err != nil {
			return "", atomOrdinary, err
		}
		last := len(rows) - 1
		rows[last] = append(rows[last], cell)

		switch stop {
		case stopAmp:
			p.pos++
			continue
		case stopRowSep:
			p.readCommand()
			p.skipOptionalDimension()
			rows = append(rows, []string{})
			continue
		case stopEnd:
			p.readCommand()
			endName, err := p.readRawArgument()
			if err != nil {
				return "", atomOrdinary, err
			}
			if strings.TrimSpace(endName) != name {
				return "", atomOrdinary, malformed(`\begin{%s} ended by \end{%s}`, name, strings.TrimSpace(endName))
			}
		case stopEOF:
			return "", atomOrdinary, malformed(`missing \end{%s}`, name)
		default:
			return "", atomOrdinary, malformed("unbalanced environment %q", name)
		}
		break
	}

	// a trailing \\ leaves an empty final row
	if last := rows[len(rows)-1]; len(rows) > 1 && len(last) == 1 && last[0] == "" {
		rows = rows[:len(rows)-1]
	}

	if (name == "equation" || name == "equation*") && len(rows) == 1 && len(rows[0]) == 1 {
		return "<mrow>" + rows[0][0] + "</mrow>", atomOrdinary, nil
	}

	return wrapTable(env, rows), atomOrdinary, nil
}

func arrayAlignment(spec string) string {
	var cols []string
	for _, r := range spec {
		switch r {
		case 'l':
			cols = append(cols, "left")
		case 'c':
			cols = append(cols, "center")
		case 'r':
			cols = append(cols, "right")
		}
	}
	return strings.Join(cols, " ")
}

func wrapTable(env environment, rows [][]string) string {
	var b strings.Builder
	b.WriteString("<mrow>")
	b.WriteString(fence(html.EscapeString(env.open)))

	b.WriteString("<mtable")
	if env.align != "" {
		b.WriteString(` columnalign="` + env.align + `"`)
	}
	if env.display {
		b.WriteString(` displaystyle="true"`)
	}
	if env.small {
		b.WriteString(` scriptlevel="1"`)
	}
	b.WriteString(">")
	for _, row := range rows {
		b.WriteString("<mtr>")
		for _, cell := range row {
			b.WriteString("<mtd><mrow>" + cell + "</mrow></mtd>")
		}
		b.WriteString("</mtr>")
	}
	b.WriteString("</mtable>")

	b.WriteString(fence(html.EscapeString(env.close)))
	b.WriteString("</mrow>")
	return b.String()
}
