package chat

// TestConversationID identifies the canned formatting reply.
const TestConversationID = "test-formatting"

// showcase exercises every construct the renderer handles.
const showcase = "## Formatting check\n\n" +
	"This line has **bold**, *italic*, ~~struck~~ and ==highlighted== text.\n\n" +
	"### Numbered list\n" +
	"1.First item\n" +
	"2. Second item\n" +
	"3. Third item\n\n" +
	"### Bullet list\n" +
	"-One\n" +
	"- Two\n" +
	"  - Nested\n\n" +
	"### Code\n\n" +
	"```py\n" +
	"def leibniz(n):\n" +
	"    \"\"\"pi/4 = 1 - 1/3 + 1/5 - ... and $not math$\"\"\"\n" +
	"    return 4 * sum((-1) ** k / (2 * k + 1) for k in range(n))\n" +
	"```\n\n" +
	"```golang\n" +
	"func main() { fmt.Println(math.Pi) }\n" +
	"```\n\n" +
	"Inline code stays literal: `$x$` and `[1]`.\n\n" +
	"### Math\n\n" +
	"The Leibniz series $\\frac{\\pi}{4} = \\sum_{n=0}^{\\infty} \\frac{(-1)^n}{2n+1}$ converges slowly.\n\n" +
	"$$E = mc^2$$\n\n" +
	"\\[\n\\int_0^1 x^2 \\, dx = \\frac{1}{3}\n\\]\n\n" +
	"[\n\\alpha + \\beta = \\gamma\n]\n\n" +
	"\\begin{align}\na &= b + c \\\\\nd &= e\n\\end{align}\n\n" +
	"A unit: $1\\unit{kg} \\times 1000 = 1\\,\\text{tonne}$.\n\n" +
	"### Table\n\n" +
	"| Terms | Approximation |\n" +
	"|------:|:--------------|\n" +
	"| 10 | 3.0418 |\n" +
	"| 1000 | 3.1406 |\n\n" +
	"Sources agree [1][2], see [the docs](https://example.com) [3].\n\n" +
	"<b>Raw HTML is shown, not run.</b>\n"

// TestResponse returns a canned reply that exercises every formatting
// feature without calling the endpoint.
func TestResponse() Reply {
	return Reply{Text: showcase, ConversationID: TestConversationID}
}
