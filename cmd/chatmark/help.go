package main

import (
	"fmt"
	"io"
)

// printUsage prints the main usage message.
func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: chatmark <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  render     Render chat markdown to HTML")
	fmt.Fprintln(w, "  ask        Send a query to the chat endpoint")
	fmt.Fprintln(w, "  history    List, show or delete stored conversations")
	fmt.Fprintln(w, "  login      Capture a bearer token from the web UI")
	fmt.Fprintln(w, "  serve      Run the local chat UI")
	fmt.Fprintln(w, "  config     Show the effective configuration")
	fmt.Fprintln(w, "  doctor     Check the browser, credentials and storage")
	fmt.Fprintln(w, "  completion Generate shell completion script")
	fmt.Fprintln(w, "  version    Show version information")
	fmt.Fprintln(w, "  help       Show help for a command")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'chatmark help <command>' for details on a specific command.")
}

// printCommonFlags prints the flags every command accepts.
func printCommonFlags(w io.Writer) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Common:")
	fmt.Fprintln(w, "  -c, --config <path>       Config file path")
	fmt.Fprintln(w, "  -v, --verbose             Show debug logs")
}

// printRenderUsage prints usage for the render command.
func printRenderUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: chatmark render [file...] [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Render assistant markdown (math, code, tables, citations) to HTML.")
	fmt.Fprintln(w, "Reads stdin when no file is given or the file is \"-\".")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -o, --output <path>       Output file, or directory for several inputs")
	fmt.Fprintln(w, "  -w, --workers <n>         Parallel renderers (0 = auto)")
	fmt.Fprintln(w, "  -u, --user                Render as a user message")
	fmt.Fprintln(w, "  -s, --standalone          Wrap output in a complete HTML page with styles")
	printCommonFlags(w)
}

// printAskUsage prints usage for the ask command.
func printAskUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: chatmark ask [query] [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Send a query and print the answer. Reads stdin when no query is given.")
	fmt.Fprintln(w, "The exchange is stored; its conversation ID is printed to stderr.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -C, --conversation <id>   Continue a stored conversation")
	fmt.Fprintln(w, "  -f, --format <s>          Output: term (default), html, markdown")
	fmt.Fprintln(w, "  -t, --timeout <d>         Request timeout (e.g., 30s, 2m)")
	fmt.Fprintln(w, "      --web-search          Ask the endpoint to search the web")
	printCommonFlags(w)
}

// printHistoryUsage prints usage for the history command.
func printHistoryUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: chatmark history [id] [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Without an ID, list conversations, newest first.")
	fmt.Fprintln(w, "With an ID, print its messages.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -d, --delete              Delete the conversation instead")
	fmt.Fprintln(w, "  -f, --format <s>          Messages: term (default), html, markdown")
	printCommonFlags(w)
}

// printLoginUsage prints usage for the login command.
func printLoginUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: chatmark login [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Open the web UI (UI_URL or auth.uiURL) in Chrome and wait for you to")
	fmt.Fprintln(w, "log in, then store the bearer token for later requests.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "      --force               Log in again even if the token is valid")
	fmt.Fprintln(w, "      --wait <d>            How long to wait (default 60s)")
	printCommonFlags(w)
}

// printServeUsage prints usage for the serve command.
func printServeUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: chatmark serve [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Serve the chat UI and its JSON API until interrupted.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -a, --addr <host:port>    Listen address (default 127.0.0.1:8080)")
	printCommonFlags(w)
}

// printConfigUsage prints usage for the config command.
func printConfigUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: chatmark config [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Print the configuration after file and environment overrides.")
	fmt.Fprintln(w, "The API key is redacted.")
	printCommonFlags(w)
}

// printDoctorUsage prints usage for the doctor command.
func printDoctorUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: chatmark doctor [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Check that chatmark can run here: configuration, Chrome/Chromium")
	fmt.Fprintln(w, "(login and the katex typesetter), credentials and the data directory.")
	fmt.Fprintln(w, "Exits 1 when a check fails; warnings do not change the exit code.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "      --json                Print the report as JSON")
	printCommonFlags(w)
}

// printCompletionUsage prints help for the completion command.
func printCompletionUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: chatmark completion <shell>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Generate shell completion script for the specified shell.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Supported shells:")
	fmt.Fprintln(w, "  bash        Bash completion script")
	fmt.Fprintln(w, "  zsh         Zsh completion script")
	fmt.Fprintln(w, "  fish        Fish completion script")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Installation:")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Bash:")
	fmt.Fprintln(w, "    # Add to ~/.bashrc:")
	fmt.Fprintln(w, "    eval \"$(chatmark completion bash)\"")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Zsh:")
	fmt.Fprintln(w, "    # Add to ~/.zshrc (after compinit):")
	fmt.Fprintln(w, "    eval \"$(chatmark completion zsh)\"")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Fish:")
	fmt.Fprintln(w, "    chatmark completion fish > ~/.config/fish/completions/chatmark.fish")
}

// runHelp prints help for a specific command.
func runHelp(args []string, env *Environment) error {
	if len(args) == 0 {
		printUsage(env.Stdout)
		return nil
	}

	switch args[0] {
	case "render":
		printRenderUsage(env.Stdout)
	case "ask":
		printAskUsage(env.Stdout)
	case "history":
		printHistoryUsage(env.Stdout)
	case "login":
		printLoginUsage(env.Stdout)
	case "serve":
		printServeUsage(env.Stdout)
	case "config":
		printConfigUsage(env.Stdout)
	case "doctor":
		printDoctorUsage(env.Stdout)
	case "completion":
		printCompletionUsage(env.Stdout)
	case "version":
		fmt.Fprintln(env.Stdout, "Usage: chatmark version")
		fmt.Fprintln(env.Stdout)
		fmt.Fprintln(env.Stdout, "Show version information.")
	case "help":
		fmt.Fprintln(env.Stdout, "Usage: chatmark help [command]")
		fmt.Fprintln(env.Stdout)
		fmt.Fprintln(env.Stdout, "Show help for a command.")
	default:
		printUsage(env.Stderr)
		return fmt.Errorf("%w: %s", ErrUnknownCommand, args[0])
	}
	return nil
}
