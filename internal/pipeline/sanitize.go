package pipeline

import (
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

var (
	cssLength   = regexp.MustCompile(`^-?(\d+\.?\d*|\.\d+)(em|ex|px|pt|%)?$`)
	cssColor    = regexp.MustCompile(`^(#[0-9A-Fa-f]{3,8}|[A-Za-z]+|rgba?\([\d\s.,%]+\))$`)
	cssKeyword  = regexp.MustCompile(`^[a-z-]+$`)
	classList   = regexp.MustCompile(`^[A-Za-z0-9 _-]+$`)
	mathColor   = regexp.MustCompile(`^(#[0-9A-Fa-f]{3,8}|[A-Za-z]+)$`)
	mathValue   = regexp.MustCompile(`^[A-Za-z0-9 .#%-]+$`)
	svgPathData = regexp.MustCompile(`^[A-Za-z0-9 .,\-\n]+$`)
)

var mathMLElements = []string{
	"math", "semantics", "annotation", "mrow", "mi", "mn", "mo", "mtext", "ms",
	"mspace", "msub", "msup", "msubsup", "munder", "mover", "munderover",
	"mfrac", "msqrt", "mroot", "mtable", "mtr", "mtd", "mstyle", "mpadded",
	"mphantom", "menclose", "merror",
}

var mathMLAttributes = []string{
	"display", "mathvariant", "largeop", "stretchy", "fence", "separator",
	"accent", "accentunder", "linethickness", "displaystyle", "scriptlevel",
	"columnalign", "rowalign", "columnspacing", "rowspacing", "minsize",
	"maxsize", "width", "height", "depth", "linebreak", "lspace", "rspace",
	"notation", "movablelimits", "symmetric", "mathsize", "voffset",
}

// KaTeX inline styles carry lengths, colors, and a few keywords.
var (
	lengthStyles = []string{
		"height", "width", "min-width", "max-width", "top", "bottom", "left", "right",
		"vertical-align", "margin-left", "margin-right", "margin-top", "margin-bottom",
		"padding-left", "padding-right", "border-top-width", "border-bottom-width",
		"border-right-width", "border-left-width", "font-size", "line-height",
	}
	colorStyles   = []string{"color", "background-color", "border-color"}
	keywordStyles = []string{"position", "display", "border-style", "border-bottom-style", "border-top-style"}
)

// newMathPolicy allows the markup the typesetters emit: MathML, KaTeX's
// span layout with inline geometry, and the SVG it uses for stretchy glyphs.
// Scripts, event handlers, and links are stripped.
func newMathPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()

	p.AllowElements(mathMLElements...)
	p.AllowNoAttrs().OnElements(mathMLElements...)
	p.AllowAttrs("xmlns").Matching(regexp.MustCompile(`^http://www\.w3\.org/(1998/Math/MathML|2000/svg)$`)).OnElements("math", "svg")
	p.AllowAttrs("encoding").Matching(regexp.MustCompile(`^application/x-tex$`)).OnElements("annotation")
	p.AllowAttrs(mathMLAttributes...).Matching(mathValue).OnElements(mathMLElements...)
	p.AllowAttrs("mathcolor", "mathbackground").Matching(mathColor).OnElements(mathMLElements...)

	p.AllowElements("span")
	p.AllowNoAttrs().OnElements("span")
	p.AllowAttrs("class").Matching(classList).OnElements("span", "svg")
	p.AllowAttrs("aria-hidden").Matching(regexp.MustCompile(`^true$`)).OnElements("span")

	p.AllowElements("svg", "path", "line")
	p.AllowAttrs("width", "height").Matching(cssLength).OnElements("svg")
	p.AllowAttrs("viewbox").Matching(regexp.MustCompile(`^[\d\s.-]+$`)).OnElements("svg")
	p.AllowAttrs("preserveaspectratio").Matching(regexp.MustCompile(`^[A-Za-z ]+$`)).OnElements("svg")
	p.AllowAttrs("d").Matching(svgPathData).OnElements("path")
	p.AllowAttrs("x1", "x2", "y1", "y2", "stroke-width").Matching(cssLength).OnElements("line")

	p.AllowStyles(lengthStyles...).Matching(cssLength).Globally()
	p.AllowStyles(colorStyles...).Matching(cssColor).Globally()
	p.AllowStyles(keywordStyles...).Matching(cssKeyword).Globally()

	return p
}
