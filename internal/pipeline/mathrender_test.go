package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/alnah/go-chatmark/internal/typeset"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// stubTypesetter returns a fixed result and records the formula it saw.
type stubTypesetter struct {
	out     string
	err     error
	panics  bool
	formula string
}

func (s *stubTypesetter) Typeset(_ context.Context, formula string, _ bool) (string, error) {
	s.formula = formula
	if s.panics {
		panic("typesetter exploded")
	}
	return s.out, s.err
}

// ---------------------------------------------------------------------------
// TestNormalizeFormula - Repairs before typesetting
// ---------------------------------------------------------------------------

func TestNormalizeFormula(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "trims spaces",
			input: "  x + 1  ",
			want:  "x + 1",
		},
		{
			name:  "joins lines and drops blanks",
			input: "a +\n\n  b",
			want:  "a + b",
		},
		{
			name:  "strips brackets around commands",
			input: `[\frac{a}{b}]`,
			want:  `\frac{a}{b}`,
		},
		{
			name:  "keeps plain interval",
			input: "[0,1]",
			want:  "[0,1]",
		},
		{
			name:  "keeps unbalanced inner brackets",
			input: `[\alpha] + [\beta]`,
			want:  `[\alpha] + [\beta]`,
		},
		{
			name:  "strips latex display delimiters",
			input: `\[ x^2 \]`,
			want:  "x^2",
		},
		{
			name:  "spaces physics equation",
			input: "E=MC^2",
			want:  "E = MC^2",
		},
		{
			name:  "adds limits to bare series",
			input: `\sum \frac{1}{n^2}`,
			want:  `\sum_{k=0}^{\infty} \frac{1}{n^2}`,
		},
		{
			name:  "keeps series with limits",
			input: `\sum_{n=1}^{N} \frac{1}{n}`,
			want:  `\sum_{n=1}^{N} \frac{1}{n}`,
		},
		{
			name:  "removes thin spaces around equals",
			input: `a \,=\, b`,
			want:  "a = b",
		},
		{
			name:  "removes thin spaces around times",
			input: `a \,\times\, b`,
			want:  `a \times b`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := NormalizeFormula(tt.input); got != tt.want {
				t.Errorf("NormalizeFormula(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestMathRenderer_RenderBody - Typesetting, sanitization, and fallback
// ---------------------------------------------------------------------------

func TestMathRenderer_RenderBody(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		ts           *stubTypesetter
		formula      string
		wantContains []string
		wantNot      []string
	}{
		{
			name:         "typeset output kept",
			ts:           &stubTypesetter{out: `<math><mi mathvariant="normal">Γ</mi></math>`},
			formula:      `\Gamma`,
			wantContains: []string{"<math>", `<mi mathvariant="normal">Γ</mi>`},
		},
		{
			name:         "script stripped",
			ts:           &stubTypesetter{out: `<math><mi>x</mi><script>alert(1)</script></math>`},
			formula:      "x",
			wantContains: []string{"<mi>x</mi>"},
			wantNot:      []string{"<script", "alert"},
		},
		{
			name:         "event handler stripped",
			ts:           &stubTypesetter{out: `<span class="katex" onclick="steal()">y</span>`},
			formula:      "y",
			wantContains: []string{`<span class="katex">y</span>`},
			wantNot:      []string{"onclick"},
		},
		{
			name:         "links stripped",
			ts:           &stubTypesetter{out: `<a href="javascript:x()">z</a>`},
			formula:      "z",
			wantContains: []string{"z"},
			wantNot:      []string{"<a", "javascript"},
		},
		{
			name:         "malformed falls back to escaped source",
			ts:           &stubTypesetter{err: typeset.ErrMalformed},
			formula:      `a<b \foo`,
			wantContains: []string{`a&lt;b \foo`},
		},
		{
			name:         "panic falls back to escaped source",
			ts:           &stubTypesetter{panics: true},
			formula:      `x > 1`,
			wantContains: []string{"x &gt; 1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := NewMathRenderer(tt.ts, nil)
			got := r.RenderBody(context.Background(), MathFragment{Formula: tt.formula})

			for _, want := range tt.wantContains {
				if !strings.Contains(got, want) {
					t.Errorf("RenderBody() missing %q\ngot: %s", want, got)
				}
			}
			for _, not := range tt.wantNot {
				if strings.Contains(got, not) {
					t.Errorf("RenderBody() should not contain %q\ngot: %s", not, got)
				}
			}
		})
	}
}

func TestMathRenderer_NormalizesBeforeTypesetting(t *testing.T) {
	t.Parallel()

	ts := &stubTypesetter{out: "<math></math>"}
	NewMathRenderer(ts, nil).RenderBody(context.Background(), MathFragment{Formula: "E=MC^2"})

	if ts.formula != "E = MC^2" {
		t.Errorf("typesetter received %q, want %q", ts.formula, "E = MC^2")
	}
}

func TestMathRenderer_NilTypesetter(t *testing.T) {
	t.Parallel()

	got := NewMathRenderer(nil, nil).RenderBody(context.Background(), MathFragment{Formula: "a&b"})
	if got != "a&amp;b" {
		t.Errorf("RenderBody() = %q, want %q", got, "a&amp;b")
	}
}

func TestMathRenderer_Render(t *testing.T) {
	t.Parallel()

	r := NewMathRenderer(&stubTypesetter{out: "<mi>x</mi>"}, nil)

	display := r.Render(context.Background(), MathFragment{Formula: "x", Display: true})
	if display != `<div class="math-block"><mi>x</mi></div>` {
		t.Errorf("Render(display) = %q", display)
	}

	inline := r.Render(context.Background(), MathFragment{Formula: "x"})
	if inline != `<span class="math-inline"><mi>x</mi></span>` {
		t.Errorf("Render(inline) = %q", inline)
	}
}

func TestMathRenderer_RenderAll(t *testing.T) {
	t.Parallel()

	r := NewMathRenderer(nil, nil)
	bodies := r.RenderAll(context.Background(), []MathFragment{{Formula: "a"}, {Formula: "<b>", Display: true}})

	if len(bodies) != 2 {
		t.Fatalf("RenderAll() returned %d bodies, want 2", len(bodies))
	}
	if bodies[0] != "a" || bodies[1] != "&lt;b&gt;" {
		t.Errorf("RenderAll() = %q", bodies)
	}
}

// ---------------------------------------------------------------------------
// TestMathContainer - Block and inline wrappers
// ---------------------------------------------------------------------------

func TestMathContainer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		display bool
		block   bool
		want    string
	}{
		{"display block", true, true, `<div class="math-block">B</div>`},
		{"display in paragraph", true, false, `<span class="math-block">B</span>`},
		{"inline", false, false, `<span class="math-inline">B</span>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := MathContainer("B", tt.display, tt.block); got != tt.want {
				t.Errorf("MathContainer(%v, %v) = %q, want %q", tt.display, tt.block, got, tt.want)
			}
		})
	}
}
