package pipeline

import (
	"context"
	"testing"
)

// ---------------------------------------------------------------------------
// TestChatPreprocessor_PreprocessMarkdown - Full preprocessing chain
// ---------------------------------------------------------------------------

func TestChatPreprocessor_PreprocessMarkdown(t *testing.T) {
	t.Parallel()

	mark := func(s string) string { return MarkStartPlaceholder + s + MarkEndPlaceholder }

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "CRLF line endings",
			input: "a\r\nb",
			want:  "a\nb",
		},
		{
			name:  "bare CR line endings",
			input: "a\rb\rc",
			want:  "a\nb\nc",
		},
		{
			name:  "bullet glued to text",
			input: "-first\n-second",
			want:  "- first\n- second",
		},
		{
			name:  "plus bullet glued to text",
			input: "+item",
			want:  "+ item",
		},
		{
			name:  "nested bullet keeps indent",
			input: "- a\n  -nested",
			want:  "- a\n  - nested",
		},
		{
			name:  "ordered marker glued to text",
			input: "1.first\n2.second",
			want:  "1. first\n2. second",
		},
		{
			name:  "negative number is not a list",
			input: "-5 degrees",
			want:  "-5 degrees",
		},
		{
			name:  "horizontal rule untouched",
			input: "---",
			want:  "---",
		},
		{
			name:  "list spacing skipped inside fence",
			input: "```\n-flag\n```\n-item",
			want:  "```\n-flag\n```\n- item",
		},
		{
			name:  "fence language alias",
			input: "```js\nlet x\n```",
			want:  "```javascript\nlet x\n```",
		},
		{
			name:  "fence language case and attributes",
			input: "```PY title=x\npass\n```",
			want:  "```python title=x\npass\n```",
		},
		{
			name:  "tilde fence language alias",
			input: "~~~sh\nls\n~~~",
			want:  "~~~bash\nls\n~~~",
		},
		{
			name:  "unknown language lowercased",
			input: "```Haskell\nmain\n```",
			want:  "```haskell\nmain\n```",
		},
		{
			name:  "closing fence untouched",
			input: "```go\nx\n```",
			want:  "```go\nx\n```",
		},
		{
			name:  "highlight",
			input: "a ==key== b",
			want:  "a " + mark("key") + " b",
		},
		{
			name:  "highlight with spaces inside",
			input: "==two words==",
			want:  mark("two words"),
		},
		{
			name:  "highlight with blank edge ignored",
			input: "a == b == c",
			want:  "a == b == c",
		},
		{
			name:  "highlight in code span ignored",
			input: "`==x==` and ==y==",
			want:  "`==x==` and " + mark("y"),
		},
		{
			name:  "highlight in fence ignored",
			input: "```\n==x==\n```",
			want:  "```\n==x==\n```",
		},
		{
			name:  "highlight in indented code ignored",
			input: "Code:\n\n    a ==b== c\n\ndone ==x==",
			want:  "Code:\n\n    a ==b== c\n\ndone " + mark("x"),
		},
		{
			name:  "tab indented code ignored",
			input: "\t==b==",
			want:  "\t==b==",
		},
		{
			name:  "indented paragraph continuation is not code",
			input: "text\n    ==x==",
			want:  "text\n    " + mark("x"),
		},
		{
			name:  "indented list content is not code",
			input: "- item\n\n    ==x==",
			want:  "- item\n\n    " + mark("x"),
		},
		{
			name:  "list spacing skipped inside indented code",
			input: "Flags:\n\n    -v verbose\n\n-item",
			want:  "Flags:\n\n    -v verbose\n\n- item",
		},
		{
			name:  "plain text unchanged",
			input: "Hello, world.",
			want:  "Hello, world.",
		},
	}

	p := &ChatPreprocessor{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := p.PreprocessMarkdown(context.Background(), tt.input)
			if got != tt.want {
				t.Errorf("PreprocessMarkdown(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestChatPreprocessor_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	input := "-item\r\n==x=="
	got := (&ChatPreprocessor{}).PreprocessMarkdown(ctx, input)
	if got != input {
		t.Errorf("PreprocessMarkdown() with canceled context = %q, want input unchanged", got)
	}
}

// ---------------------------------------------------------------------------
// TestNormalizeLanguage - Fence alias table
// ---------------------------------------------------------------------------

func TestNormalizeLanguage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{"js", "javascript"},
		{"JSX", "javascript"},
		{"py", "python"},
		{"ts", "typescript"},
		{"zsh", "bash"},
		{"yml", "yaml"},
		{"golang", "go"},
		{"c++", "cpp"},
		{"C#", "csharp"},
		{" rs ", "rust"},
		{"go", "go"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			if got := NormalizeLanguage(tt.input); got != tt.want {
				t.Errorf("NormalizeLanguage(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestConvertMarkPlaceholders - Placeholder to <mark> conversion
// ---------------------------------------------------------------------------

func TestConvertMarkPlaceholders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "single pair",
			input: "<p>" + MarkStartPlaceholder + "x" + MarkEndPlaceholder + "</p>",
			want:  "<p><mark>x</mark></p>",
		},
		{
			name:  "two pairs",
			input: MarkStartPlaceholder + "a" + MarkEndPlaceholder + " " + MarkStartPlaceholder + "b" + MarkEndPlaceholder,
			want:  "<mark>a</mark> <mark>b</mark>",
		},
		{
			name:  "no placeholders",
			input: "<p>x</p>",
			want:  "<p>x</p>",
		},
		{
			name:  "placeholders in an attribute are dropped",
			input: `<p><img src="http://img" alt="alt ` + MarkStartPlaceholder + "hi" + MarkEndPlaceholder + ` x"></p>`,
			want:  `<p><img src="http://img" alt="alt hi x"></p>`,
		},
		{
			name:  "attribute and text in one document",
			input: `<a title="` + MarkStartPlaceholder + "t" + MarkEndPlaceholder + `">` + MarkStartPlaceholder + "b" + MarkEndPlaceholder + "</a>",
			want:  `<a title="t"><mark>b</mark></a>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := ConvertMarkPlaceholders(tt.input); got != tt.want {
				t.Errorf("ConvertMarkPlaceholders(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
