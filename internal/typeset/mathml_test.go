package typeset

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

// ---------------------------------------------------------------------------
// TestMathML_Typeset - Output structure
// ---------------------------------------------------------------------------

func TestMathML_Typeset(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		formula string
		display bool
		want    []string
	}{
		{
			name:    "superscript",
			formula: "x^2",
			want:    []string{"<msup><mi>x</mi><mn>2</mn></msup>"},
		},
		{
			name:    "subscript and superscript",
			formula: "x_i^2",
			want:    []string{"<msubsup><mi>x</mi><mi>i</mi><mn>2</mn></msubsup>"},
		},
		{
			name:    "fraction",
			formula: `\frac{a}{b}`,
			want:    []string{"<mfrac><mrow><mi>a</mi></mrow><mrow><mi>b</mi></mrow></mfrac>"},
		},
		{
			name:    "square root",
			formula: `\sqrt{x}`,
			want:    []string{"<msqrt><mrow><mi>x</mi></mrow></msqrt>"},
		},
		{
			name:    "nth root",
			formula: `\sqrt[3]{x}`,
			want:    []string{"<mroot><mrow><mi>x</mi></mrow><mrow><mn>3</mn></mrow></mroot>"},
		},
		{
			name:    "display sum takes limits",
			formula: `\sum_{k=0}^{\infty} a_k`,
			display: true,
			want: []string{
				`<munderover><mo largeop="true">∑</mo><mrow><mi>k</mi><mo>=</mo><mn>0</mn></mrow><mrow><mi>∞</mi></mrow></munderover>`,
				"<msub><mi>a</mi><mi>k</mi></msub>",
			},
		},
		{
			name:    "inline sum takes scripts",
			formula: `\sum_{k=0}^{n} k`,
			want:    []string{`<msubsup><mo largeop="true">∑</mo>`},
		},
		{
			name:    "integral keeps scripts in display",
			formula: `\int_0^1 x\,dx`,
			display: true,
			want:    []string{`<msubsup><mo largeop="true">∫</mo><mn>0</mn><mn>1</mn></msubsup>`, `<mspace width="0.1667em"/>`},
		},
		{
			name:    "limits forces limits inline",
			formula: `\sum\limits_{i} i`,
			want:    []string{`<munder><mo largeop="true">∑</mo><mrow><mi>i</mi></mrow></munder>`},
		},
		{
			name:    "display limit",
			formula: `\lim_{x \to 0} f(x)`,
			display: true,
			want:    []string{"<munder><mi>lim</mi><mrow><mi>x</mi><mo>→</mo><mn>0</mn></mrow></munder>"},
		},
		{
			name:    "greek letters",
			formula: `\alpha + \Gamma`,
			want:    []string{`<mi>α</mi><mo>+</mo><mi mathvariant="normal">Γ</mi>`},
		},
		{
			name:    "decimal number",
			formula: "3.14r",
			want:    []string{"<mn>3.14</mn><mi>r</mi>"},
		},
		{
			name:    "minus sign",
			formula: "x - y",
			want:    []string{"<mo>−</mo>"},
		},
		{
			name:    "function name",
			formula: `\sin x`,
			want:    []string{"<mi>sin</mi><mo>⁡</mo><mi>x</mi>"},
		},
		{
			name:    "operatorname",
			formula: `\operatorname{sgn}(x)`,
			want:    []string{"<mi>sgn</mi><mo>⁡</mo><mo>(</mo>"},
		},
		{
			name:    "text",
			formula: `\text{if } x`,
			want:    []string{"<mtext>if </mtext><mi>x</mi>"},
		},
		{
			name:    "blackboard bold",
			formula: `\mathbb{R}`,
			want:    []string{"<mi>ℝ</mi>"},
		},
		{
			name:    "left right fences",
			formula: `\left( x \right)`,
			want: []string{
				`<mrow><mo fence="true" stretchy="true">(</mo><mi>x</mi><mo fence="true" stretchy="true">)</mo></mrow>`,
			},
		},
		{
			name:    "pmatrix",
			formula: `\begin{pmatrix} a & b \\ c & d \end{pmatrix}`,
			want: []string{
				`<mo fence="true" stretchy="true">(</mo><mtable>`,
				"<mtr><mtd><mrow><mi>a</mi></mrow></mtd><mtd><mrow><mi>b</mi></mrow></mtd></mtr>",
				"<mtr><mtd><mrow><mi>c</mi></mrow></mtd><mtd><mrow><mi>d</mi></mrow></mtd></mtr>",
			},
		},
		{
			name:    "cases aligns left",
			formula: `\begin{cases} 1 & x > 0 \\ 0 & \text{otherwise} \end{cases}`,
			want:    []string{`<mtable columnalign="left left">`, "<mtext>otherwise</mtext>"},
		},
		{
			name:    "aligned",
			formula: `\begin{aligned} a &= b \\ c &= d \end{aligned}`,
			want:    []string{`<mtable columnalign="right left" displaystyle="true">`},
		},
		{
			name:    "accent",
			formula: `\hat{x}`,
			want:    []string{`<mover accent="true"><mrow><mi>x</mi></mrow><mo stretchy="false">^</mo></mover>`},
		},
		{
			name:    "negated relation",
			formula: `a \not= b`,
			want:    []string{"<mo>≠</mo>"},
		},
		{
			name:    "binomial",
			formula: `\binom{n}{k}`,
			want:    []string{`<mfrac linethickness="0">`},
		},
		{
			name:    "unit macro",
			formula: `5\unit{kg}`,
			want:    []string{`<mn>5</mn><mspace width="0.1667em"/><mtext>kg</mtext>`},
		},
		{
			name:    "product macro",
			formula: `\vs`,
			want:    []string{"<mtext>VS Code</mtext>"},
		},
		{
			name:    "unknown command",
			formula: `\foo + 1`,
			want:    []string{`<merror><mtext>\foo</mtext></merror>`},
		},
		{
			name:    "line break outside environment",
			formula: `a \\ b`,
			want:    []string{`<mspace linebreak="newline"/>`},
		},
		{
			name:    "comment is ignored",
			formula: "x % note\n+ y",
			want:    []string{"<mi>x</mi><mo>+</mo><mi>y</mi>"},
		},
		{
			name:    "html special characters are escaped",
			formula: "a < b",
			want:    []string{"<mo>&lt;</mo>", `<annotation encoding="application/x-tex">a &lt; b</annotation>`},
		},
		{
			name:    "inline wrapper",
			formula: "x",
			want:    []string{`<math xmlns="http://www.w3.org/1998/Math/MathML" display="inline"><semantics><mrow><mi>x</mi></mrow>`},
		},
		{
			name:    "display wrapper",
			formula: "x",
			display: true,
			want:    []string{`display="block"`},
		},
	}

	m := NewMathML(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := m.Typeset(context.Background(), tt.formula, tt.display)
			if err != nil {
				t.Fatalf("Typeset(%q) error = %v", tt.formula, err)
			}
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("Typeset(%q) missing %q\ngot: %s", tt.formula, want, got)
				}
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestMathML_Malformed - Parse errors
// ---------------------------------------------------------------------------

func TestMathML_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		formula string
	}{
		{name: "unclosed fraction argument", formula: `\frac{1}{`},
		{name: "missing fraction argument", formula: `\frac{a}`},
		{name: "unclosed group", formula: "{x"},
		{name: "stray closing brace", formula: "x}"},
		{name: "missing superscript", formula: "x^"},
		{name: "double superscript", formula: "x^1^2"},
		{name: "ampersand outside environment", formula: "a & b"},
		{name: "left without right", formula: `\left( x`},
		{name: "right without left", formula: `x \right)`},
		{name: "unknown environment", formula: `\begin{foo} x \end{foo}`},
		{name: "missing end", formula: `\begin{matrix} a`},
		{name: "mismatched end", formula: `\begin{matrix} a \end{pmatrix}`},
		{name: "stray end", formula: `x \end{matrix}`},
		{name: "unterminated root index", formula: `\sqrt[3`},
		{name: "trailing backslash", formula: `x\`},
	}

	m := NewMathML(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := m.Typeset(context.Background(), tt.formula, false)
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("Typeset(%q) error = %v, want ErrMalformed", tt.formula, err)
			}
		})
	}
}

func TestMathML_RecursiveMacro(t *testing.T) {
	t.Parallel()

	m := NewMathML(Macros{"loop": `\loop`})
	_, err := m.Typeset(context.Background(), `\loop`, false)
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("Typeset() error = %v, want ErrMalformed", err)
	}
}

func TestMathML_CustomMacros(t *testing.T) {
	t.Parallel()

	m := NewMathML(DefaultMacros().Merge(Macros{"R": `\mathbb{R}`}))
	got, err := m.Typeset(context.Background(), `x \in \R`, false)
	if err != nil {
		t.Fatalf("Typeset() error = %v", err)
	}
	if !strings.Contains(got, "<mi>ℝ</mi>") {
		t.Errorf("Typeset() = %s, want expanded \\R", got)
	}
}

func TestMathML_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMathML(nil).Typeset(ctx, "x", false)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Typeset() error = %v, want context.Canceled", err)
	}
}

func TestMathML_Concurrent(t *testing.T) {
	t.Parallel()

	m := NewMathML(nil)
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Typeset(context.Background(), `\frac{a}{b} + \unit{m}`, true); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent Typeset() error = %v", err)
	}
}

// ---------------------------------------------------------------------------
// TestMacros - Macro table helpers
// ---------------------------------------------------------------------------

func TestMacros_Merge(t *testing.T) {
	t.Parallel()

	base := Macros{"a": "1", "b": "2"}
	got := base.Merge(Macros{"b": "3", "c": "4"})

	want := Macros{"a": "1", "b": "3", "c": "4"}
	if len(got) != len(want) {
		t.Fatalf("Merge() len = %d, want %d", len(got), len(want))
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("Merge()[%q] = %q, want %q", k, got[k], v)
		}
	}
	if base["b"] != "2" {
		t.Error("Merge() modified the receiver")
	}
}

func TestStyleText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		variant fontVariant
		input   string
		want    string
	}{
		{name: "default untouched", variant: variantDefault, input: "Ab1", want: "Ab1"},
		{name: "double-struck hole", variant: variantDoubleStruck, input: "R", want: "ℝ"},
		{name: "bold letters", variant: variantBold, input: "A", want: "𝐀"},
		{name: "non-letters pass through", variant: variantBold, input: "+", want: "+"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := styleText(tt.variant, tt.input); got != tt.want {
				t.Errorf("styleText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
