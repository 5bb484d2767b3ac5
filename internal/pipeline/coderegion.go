package pipeline

import (
	"regexp"
	"strings"
)

// fenceLine matches a fenced code block delimiter with its info string.
// Captures: 1=indent, 2=fence run, 3=info string.
var fenceLine = regexp.MustCompile("^( {0,3})(`{3,}|~{3,})(.*)$")

// region is a half-open byte range [start, end).
type region struct {
	start, end int
}

// fenceRegions returns the byte ranges of fenced code blocks, delimiters included.
// An unclosed fence runs to the end of the text.
func fenceRegions(text string) []region {
	var regions []region
	var open string
	start := -1

	pos := 0
	for pos < len(text) {
		end := strings.IndexByte(text[pos:], '\n')
		next := len(text)
		if end >= 0 {
			next = pos + end + 1
		}
		line := strings.TrimSuffix(text[pos:next], "\n")

		if m := fenceLine.FindStringSubmatch(line); m != nil {
			switch {
			case start < 0:
				// backtick fences cannot carry backticks in the info string
				if m[2][0] != '`' || !strings.Contains(m[3], "`") {
					open, start = m[2], pos
				}
			case m[2][0] == open[0] && len(m[2]) >= len(open) && strings.TrimSpace(m[3]) == "":
				regions = append(regions, region{start, next})
				start = -1
			}
		}
		pos = next
	}
	if start >= 0 {
		regions = append(regions, region{start, len(text)})
	}
	return regions
}

// codeSpanRegions returns the byte ranges of inline code spans outside the
// given blocks. A backtick run opens a span closed by the next run of the
// same length; unmatched runs are literal.
func codeSpanRegions(text string, fences []region) []region {
	var regions []region
	inFence := func(i int) (int, bool) {
		for _, f := range fences {
			if i >= f.start && i < f.end {
				return f.end, true
			}
		}
		return 0, false
	}

	i := 0
	for i < len(text) {
		if end, ok := inFence(i); ok {
			i = end
			continue
		}
		if text[i] != '`' {
			i++
			continue
		}
		runStart := i
		for i < len(text) && text[i] == '`' {
			i++
		}
		n := i - runStart

		closed := false
		for j := i; j < len(text); {
			if _, ok := inFence(j); ok {
				break
			}
			if text[j] != '`' {
				j++
				continue
			}
			k := j
			for k < len(text) && text[k] == '`' {
				k++
			}
			if k-j == n {
				regions = append(regions, region{runStart, k})
				i, closed = k, true
				break
			}
			j = k
		}
		if !closed {
			i = runStart + n
		}
	}
	return regions
}

// Line shapes that decide whether an indented line opens a code block.
var (
	listItemLine = regexp.MustCompile(`^ {0,3}(?:(?:[-+*]|\d{1,9}[.)])(?:[ \t]|$)|(?:[-+]|\d{1,9}\.)\p{L})`)
	atxHeading   = regexp.MustCompile(`^ {0,3}#{1,6}(?:[ \t]|$)`)
)

// indentWidth returns the column of the first non-blank character.
// A tab advances to the next multiple of four.
func indentWidth(line string) int {
	w := 0
	for _, c := range line {
		switch c {
		case ' ':
			w++
		case '\t':
			w += 4 - w%4
		default:
			return w
		}
	}
	return w
}

func isBlankLine(line string) bool {
	return strings.TrimSpace(line) == ""
}

// indentedCodeLines marks the lines of indented code blocks. Lines flagged
// in fenced never open or continue a block. A block opens on a line indented
// four columns or more that follows a blank line, a heading, or a fence, and
// is not list item content. It runs over later indented lines and the blank
// lines between them.
func indentedCodeLines(lines []string, fenced []bool) []bool {
	code := make([]bool, len(lines))
	canOpen, prevBlank, inList := true, true, false

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if fenced[i] {
			canOpen, prevBlank = true, false
			continue
		}
		if isBlankLine(line) {
			canOpen, prevBlank = true, true
			continue
		}

		indent := indentWidth(line)
		if indent >= 4 && canOpen && !inList {
			last := i
			for j := i + 1; j < len(lines) && !fenced[j]; j++ {
				if isBlankLine(lines[j]) {
					continue
				}
				if indentWidth(lines[j]) < 4 {
					break
				}
				last = j
			}
			for k := i; k <= last; k++ {
				code[k] = true
			}
			i = last
			canOpen, prevBlank = false, false
			continue
		}

		switch {
		case listItemLine.MatchString(line):
			inList = true
		case indent == 0 && prevBlank:
			inList = false
		}
		canOpen = atxHeading.MatchString(line)
		prevBlank = false
	}
	return code
}

// linesIn marks the lines of text whose first byte lies in one of regions.
func linesIn(lines []string, regions []region) []bool {
	flags := make([]bool, len(lines))
	pos := 0
	for i, l := range lines {
		flags[i] = inRegions(regions, pos)
		pos += len(l) + 1
	}
	return flags
}

// indentedRegions returns the byte ranges of indented code blocks outside
// fences. A range ends at the last code line's final byte, before its newline.
func indentedRegions(text string, fences []region) []region {
	lines := strings.Split(text, "\n")
	code := indentedCodeLines(lines, linesIn(lines, fences))

	var regions []region
	pos, start := 0, -1
	for i, l := range lines {
		if code[i] && start < 0 {
			start = pos
		}
		if code[i] && (i+1 == len(lines) || !code[i+1]) {
			regions = append(regions, region{start, pos + len(l)})
			start = -1
		}
		pos += len(l) + 1
	}
	return regions
}

// mergeRegions merges two position-ordered lists.
func mergeRegions(a, b []region) []region {
	all := make([]region, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		if j >= len(b) || (i < len(a) && a[i].start < b[j].start) {
			all = append(all, a[i])
			i++
		} else {
			all = append(all, b[j])
			j++
		}
	}
	return all
}

// codeRegions returns fenced blocks, indented blocks and code spans,
// ordered by position.
func codeRegions(text string) []region {
	fences := fenceRegions(text)
	blocks := mergeRegions(fences, indentedRegions(text, fences))
	return mergeRegions(blocks, codeSpanRegions(text, blocks))
}

// mapOutsideCode applies fn to every stretch of text that is not code.
func mapOutsideCode(text string, fn func(string) string) string {
	regions := codeRegions(text)
	if len(regions) == 0 {
		return fn(text)
	}

	var b strings.Builder
	b.Grow(len(text))
	prev := 0
	for _, r := range regions {
		b.WriteString(fn(text[prev:r.start]))
		b.WriteString(text[r.start:r.end])
		prev = r.end
	}
	b.WriteString(fn(text[prev:]))
	return b.String()
}
