package typeset

// greekLetters maps Greek letter commands to their code points.
// Uppercase letters render upright, lowercase italic.
var greekLetters = map[string]string{
	"alpha": "α", "beta": "β", "gamma": "γ", "delta": "δ", "epsilon": "ϵ",
	"varepsilon": "ε", "zeta": "ζ", "eta": "η", "theta": "θ", "vartheta": "ϑ",
	"iota": "ι", "kappa": "κ", "lambda": "λ", "mu": "μ", "nu": "ν",
	"xi": "ξ", "omicron": "ο", "pi": "π", "varpi": "ϖ", "rho": "ρ",
	"varrho": "ϱ", "sigma": "σ", "varsigma": "ς", "tau": "τ", "upsilon": "υ",
	"phi": "ϕ", "varphi": "φ", "chi": "χ", "psi": "ψ", "omega": "ω",
	"Gamma": "Γ", "Delta": "Δ", "Theta": "Θ", "Lambda": "Λ", "Xi": "Ξ",
	"Pi": "Π", "Sigma": "Σ", "Upsilon": "Υ", "Phi": "Φ", "Psi": "Ψ",
	"Omega": "Ω",
}

// identifiers are symbols rendered as <mi>.
var identifiers = map[string]string{
	"infty": "∞", "partial": "∂", "nabla": "∇", "emptyset": "∅",
	"varnothing": "∅", "hbar": "ℏ", "ell": "ℓ", "aleph": "ℵ", "Re": "ℜ",
	"Im": "ℑ", "wp": "℘", "imath": "ı", "jmath": "ȷ",
}

// operators are symbols rendered as <mo>: binary operators, relations,
// arrows, punctuation and fences.
var operators = map[string]string{
	// binary
	"times": "×", "div": "÷", "pm": "±", "mp": "∓", "cdot": "⋅", "ast": "∗",
	"star": "⋆", "circ": "∘", "bullet": "∙", "cup": "∪", "cap": "∩",
	"setminus": "∖", "wedge": "∧", "land": "∧", "vee": "∨", "lor": "∨",
	"oplus": "⊕", "ominus": "⊖", "otimes": "⊗", "odot": "⊙", "oslash": "⊘",
	"sqcup": "⊔", "sqcap": "⊓", "uplus": "⊎", "dagger": "†", "ddagger": "‡",
	"amalg": "⨿", "wr": "≀",
	// relations
	"leq": "≤", "le": "≤", "geq": "≥", "ge": "≥", "neq": "≠", "ne": "≠",
	"approx": "≈", "sim": "∼", "simeq": "≃", "cong": "≅", "equiv": "≡",
	"propto": "∝", "in": "∈", "notin": "∉", "ni": "∋", "subset": "⊂",
	"supset": "⊃", "subseteq": "⊆", "supseteq": "⊇", "subsetneq": "⊊",
	"supsetneq": "⊋", "sqsubseteq": "⊑", "sqsupseteq": "⊒", "ll": "≪",
	"gg": "≫", "perp": "⊥", "parallel": "∥", "mid": "∣", "nmid": "∤",
	"prec": "≺", "succ": "≻", "preceq": "⪯", "succeq": "⪰", "asymp": "≍",
	"doteq": "≐", "models": "⊨", "vdash": "⊢", "dashv": "⊣", "leqslant": "⩽",
	"geqslant": "⩾", "lesssim": "≲", "gtrsim": "≳", "coloneqq": "≔",
	// arrows
	"to": "→", "rightarrow": "→", "leftarrow": "←", "gets": "←",
	"leftrightarrow": "↔", "Rightarrow": "⇒", "Leftarrow": "⇐",
	"Leftrightarrow": "⇔", "implies": "⟹", "impliedby": "⟸", "iff": "⟺",
	"mapsto": "↦", "longrightarrow": "⟶", "longleftarrow": "⟵",
	"Longrightarrow": "⟹", "Longleftarrow": "⟸", "longmapsto": "⟼",
	"uparrow": "↑", "downarrow": "↓", "updownarrow": "↕", "Uparrow": "⇑",
	"Downarrow": "⇓", "nearrow": "↗", "searrow": "↘", "swarrow": "↙",
	"nwarrow": "↖", "hookrightarrow": "↪", "hookleftarrow": "↩",
	"rightharpoonup": "⇀", "leftharpoonup": "↼", "rightleftharpoons": "⇌",
	// logic and misc
	"forall": "∀", "exists": "∃", "nexists": "∄", "neg": "¬", "lnot": "¬",
	"angle": "∠", "triangle": "△", "square": "□", "therefore": "∴",
	"because": "∵", "top": "⊤", "bot": "⊥", "prime": "′", "degree": "°",
	"surd": "√", "checkmark": "✓", "diamond": "⋄", "clubsuit": "♣",
	"diamondsuit": "♢", "heartsuit": "♡", "spadesuit": "♠",
	// dots
	"dots": "…", "ldots": "…", "cdots": "⋯", "vdots": "⋮", "ddots": "⋱",
	"dotsc": "…", "dotsb": "⋯",
	// fences
	"langle": "⟨", "rangle": "⟩", "lfloor": "⌊", "rfloor": "⌋",
	"lceil": "⌈", "rceil": "⌉", "lbrace": "{", "rbrace": "}", "vert": "|",
	"Vert": "‖", "lvert": "|", "rvert": "|", "lVert": "‖", "rVert": "‖",
	"backslash": "\\",
	// escaped characters
	"{": "{", "}": "}", "|": "‖", "%": "%", "$": "$", "&": "&", "#": "#",
	"_": "_",
}

// bigOperators take limits below and above in display mode.
var bigOperators = map[string]string{
	"sum": "∑", "prod": "∏", "coprod": "∐", "bigcup": "⋃", "bigcap": "⋂",
	"bigvee": "⋁", "bigwedge": "⋀", "bigoplus": "⨁", "bigotimes": "⨂",
	"bigodot": "⨀", "biguplus": "⨄", "bigsqcup": "⨆",
}

// integrals are large operators that keep their limits as scripts.
var integrals = map[string]string{
	"int": "∫", "iint": "∬", "iiint": "∭", "oint": "∮", "oiint": "∯",
}

// functionNames render upright with a function application operator.
var functionNames = map[string]bool{
	"sin": true, "cos": true, "tan": true, "cot": true, "sec": true, "csc": true,
	"arcsin": true, "arccos": true, "arctan": true, "sinh": true, "cosh": true,
	"tanh": true, "coth": true, "log": true, "ln": true, "lg": true, "exp": true,
	"dim": true, "ker": true, "deg": true, "arg": true, "hom": true,
}

// limitFunctions behave like function names but take limits below in display mode.
var limitFunctions = map[string]bool{
	"lim": true, "limsup": true, "liminf": true, "max": true, "min": true,
	"sup": true, "inf": true, "det": true, "gcd": true, "Pr": true,
	"argmax": true, "argmin": true,
}

// limitFunctionText holds display text for names that differ from the command.
var limitFunctionText = map[string]string{
	"limsup": "lim sup",
	"liminf": "lim inf",
	"argmax": "arg max",
	"argmin": "arg min",
}

// spaces maps spacing commands to widths.
var spaces = map[string]string{
	",": "0.1667em", "thinspace": "0.1667em", ":": "0.2222em", ">": "0.2222em",
	"medspace": "0.2222em", ";": "0.2778em", "thickspace": "0.2778em",
	"!": "-0.1667em", "negthinspace": "-0.1667em", "quad": "1em",
	"qquad": "2em", " ": "0.25em", "space": "0.25em", "enspace": "0.5em",
}

type accent struct {
	mark     string
	under    bool
	stretchy bool
	limits   bool
}

// accents decorate their argument from above or below.
var accents = map[string]accent{
	"hat":                 {mark: "^"},
	"widehat":             {mark: "^", stretchy: true},
	"tilde":               {mark: "~"},
	"widetilde":           {mark: "~", stretchy: true},
	"bar":                 {mark: "¯"},
	"overline":            {mark: "‾", stretchy: true},
	"vec":                 {mark: "→"},
	"overrightarrow":      {mark: "→", stretchy: true},
	"overleftarrow":       {mark: "←", stretchy: true},
	"overleftrightarrow":  {mark: "↔", stretchy: true},
	"dot":                 {mark: "˙"},
	"ddot":                {mark: "¨"},
	"acute":               {mark: "´"},
	"grave":               {mark: "`"},
	"breve":               {mark: "˘"},
	"check":               {mark: "ˇ"},
	"mathring":            {mark: "˚"},
	"underline":           {mark: "_", under: true, stretchy: true},
	"underrightarrow":     {mark: "→", under: true, stretchy: true},
	"underleftarrow":      {mark: "←", under: true, stretchy: true},
	"overbrace":           {mark: "⏞", stretchy: true, limits: true},
	"underbrace":          {mark: "⏟", under: true, stretchy: true, limits: true},
	"underleftrightarrow": {mark: "↔", under: true, stretchy: true},
}

// delimiterSizes maps \big and friends to a fixed operator size.
var delimiterSizes = map[string]string{
	"big": "1.2em", "bigl": "1.2em", "bigr": "1.2em", "bigm": "1.2em",
	"Big": "1.623em", "Bigl": "1.623em", "Bigr": "1.623em", "Bigm": "1.623em",
	"bigg": "2.047em", "biggl": "2.047em", "biggr": "2.047em", "biggm": "2.047em",
	"Bigg": "2.470em", "Biggl": "2.470em", "Biggr": "2.470em", "Biggm": "2.470em",
}

// negations maps a relation to its precomposed negated form for \not.
var negations = map[string]string{
	"=": "≠", "∈": "∉", "≡": "≢", "⊂": "⊄", "⊃": "⊅", "⊆": "⊈", "⊇": "⊉",
	"<": "≮", ">": "≯", "≤": "≰", "≥": "≱", "∼": "≁", "≈": "≉", "≅": "≇",
	"∣": "∤", "∥": "∦", "∃": "∄",
}

// asciiOperators maps ASCII punctuation used as operators to display characters.
var asciiOperators = map[rune]string{
	'+': "+", '-': "−", '*': "∗", '/': "/", '=': "=", '<': "<", '>': ">",
	'(': "(", ')': ")", '[': "[", ']': "]", '|': "|", ',': ",", ';': ";",
	':': ":", '!': "!", '?': "?", '.': ".", '@': "@", '"': "\"", '$': "$",
	'\'': "′", '`': "‘",
}

// fontVariant selects a Unicode mathematical alphanumeric style.
type fontVariant int

const (
	variantDefault fontVariant = iota
	variantNormal
	variantBold
	variantItalic
	variantBoldItalic
	variantScript
	variantFraktur
	variantDoubleStruck
	variantSansSerif
	variantMonospace
)

// fontCommands maps font-switching commands to their variants.
var fontCommands = map[string]fontVariant{
	"mathrm":     variantNormal,
	"mathup":     variantNormal,
	"mathbf":     variantBold,
	"mathit":     variantItalic,
	"boldsymbol": variantBoldItalic,
	"bm":         variantBoldItalic,
	"mathcal":    variantScript,
	"mathscr":    variantScript,
	"mathfrak":   variantFraktur,
	"mathbb":     variantDoubleStruck,
	"mathsf":     variantSansSerif,
	"mathtt":     variantMonospace,
}

// textCommands switch to text mode.
var textCommands = map[string]bool{
	"text":       true,
	"textrm":     true,
	"mbox":       true,
	"textup":     true,
	"textnormal": true,
	"textbf":     true,
	"textit":     true,
	"emph":       true,
	"textsf":     true,
	"texttt":     true,
}

type alphabet struct {
	upper, lower, digits rune
	holes                map[rune]rune
}

// alphabets holds the start of each styled range in the Mathematical
// Alphanumeric Symbols block and the letterlike symbols that fill its gaps.
var alphabets = map[fontVariant]alphabet{
	variantBold: {upper: 0x1D400, lower: 0x1D41A, digits: 0x1D7CE},
	variantItalic: {upper: 0x1D434, lower: 0x1D44E, holes: map[rune]rune{
		'h': 0x210E,
	}},
	variantBoldItalic: {upper: 0x1D468, lower: 0x1D482},
	variantScript: {upper: 0x1D49C, lower: 0x1D4B6, holes: map[rune]rune{
		'B': 0x212C, 'E': 0x2130, 'F': 0x2131, 'H': 0x210B, 'I': 0x2110,
		'L': 0x2112, 'M': 0x2133, 'R': 0x211B, 'e': 0x212F, 'g': 0x210A,
		'o': 0x2134,
	}},
	variantFraktur: {upper: 0x1D504, lower: 0x1D51E, holes: map[rune]rune{
		'C': 0x212D, 'H': 0x210C, 'I': 0x2111, 'R': 0x211C, 'Z': 0x2128,
	}},
	variantDoubleStruck: {upper: 0x1D538, lower: 0x1D552, digits: 0x1D7D8, holes: map[rune]rune{
		'C': 0x2102, 'H': 0x210D, 'N': 0x2115, 'P': 0x2119, 'Q': 0x211A,
		'R': 0x211D, 'Z': 0x2124,
	}},
	variantSansSerif: {upper: 0x1D5A0, lower: 0x1D5BA, digits: 0x1D7E2},
	variantMonospace: {upper: 0x1D670, lower: 0x1D68A, digits: 0x1D7F6},
}

// styleRune maps an ASCII letter or digit to the variant's code point.
// Other runes, and variants without a styled range, are returned unchanged.
func styleRune(v fontVariant, r rune) rune {
	a, ok := alphabets[v]
	if !ok {
		return r
	}
	if h, ok := a.holes[r]; ok {
		return h
	}
	switch {
	case r >= 'A' && r <= 'Z':
		return a.upper + (r - 'A')
	case r >= 'a' && r <= 'z':
		return a.lower + (r - 'a')
	case r >= '0' && r <= '9' && a.digits != 0:
		return a.digits + (r - '0')
	}
	return r
}

// styleText applies styleRune to every rune of s.
func styleText(v fontVariant, s string) string {
	if _, ok := alphabets[v]; !ok {
		return s
	}
	out := []rune(s)
	for i, r := range out {
		out[i] = styleRune(v, r)
	}
	return string(out)
}
