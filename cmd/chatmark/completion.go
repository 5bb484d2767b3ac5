package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	flag "github.com/spf13/pflag"
)

// Shell represents a supported shell for completion generation.
type Shell string

// Supported shells for completion.
const (
	ShellBash Shell = "bash"
	ShellZsh  Shell = "zsh"
	ShellFish Shell = "fish"
)

// flagDef describes a flag for completion purposes.
type flagDef struct {
	Long   string   // --output
	Short  string   // -o (empty if none)
	Desc   string   // help text
	Bool   bool     // takes no value
	Values []string // fixed choices, if any
	Files  string   // file glob, if the value is a path
}

// commandDef describes a command for completion.
type commandDef struct {
	Name  string
	Desc  string
	Flags []flagDef
	Files string // glob for file arguments, "" when none
}

// completionMeta holds value hints that pflag cannot express.
// Flag names, types and descriptions come from the FlagSets.
type completionMeta struct {
	Values []string
	Files  string
}

var flagCompletionMeta = map[string]completionMeta{
	"format": {Values: []string{formatTerm, formatHTML, formatMarkdown}},
	"config": {Files: "*.yaml *.yml"},
	"output": {Files: "*.html"},
}

// extractFlags reads flag definitions from fs.
func extractFlags(fs *flag.FlagSet) []flagDef {
	var flags []flagDef
	fs.VisitAll(func(f *flag.Flag) {
		fd := flagDef{
			Long:  f.Name,
			Short: f.Shorthand,
			Desc:  f.Usage,
			Bool:  f.Value.Type() == "bool",
		}
		if meta, ok := flagCompletionMeta[f.Name]; ok {
			fd.Values = meta.Values
			fd.Files = meta.Files
		}
		flags = append(flags, fd)
	})
	return flags
}

// getCommands returns the command registry for completion.
func getCommands() []commandDef {
	w := io.Discard
	return []commandDef{
		{Name: "render", Desc: "Render chat markdown to HTML", Flags: extractFlags(renderFlagSet(&renderFlags{}, w)), Files: "*.md *.markdown *.txt"},
		{Name: "ask", Desc: "Send a query to the chat endpoint", Flags: extractFlags(askFlagSet(&askFlags{}, w))},
		{Name: "history", Desc: "List, show or delete stored conversations", Flags: extractFlags(historyFlagSet(&historyFlags{}, w))},
		{Name: "login", Desc: "Capture a bearer token from the web UI", Flags: extractFlags(loginFlagSet(&loginFlags{}, w))},
		{Name: "serve", Desc: "Run the local chat UI", Flags: extractFlags(serveFlagSet(&serveFlags{}, w))},
		{Name: "config", Desc: "Show the effective configuration", Flags: extractFlags(commonFlagSet("config", &commonFlags{}, printConfigUsage, w))},
		{Name: "doctor", Desc: "Check the browser, credentials and storage", Flags: extractFlags(doctorFlagSet(&doctorFlags{}, w))},
		{Name: "completion", Desc: "Generate shell completion script"},
		{Name: "version", Desc: "Show version information"},
		{Name: "help", Desc: "Show help for a command"},
	}
}

// GenerateCompletion writes the completion script for shell to w.
func GenerateCompletion(w io.Writer, shell Shell) error {
	var script string
	switch shell {
	case ShellBash:
		script = bashScript(getCommands())
	case ShellZsh:
		script = zshScript(getCommands())
	case ShellFish:
		script = fishScript(getCommands())
	default:
		return fmt.Errorf("%w: unsupported shell %q (supported: bash, zsh, fish)", ErrUsage, shell)
	}
	if _, err := io.WriteString(w, script); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteOutput, err)
	}
	return nil
}

// runCompletion handles the completion command.
func runCompletion(args []string, env *Environment) error {
	if len(args) == 0 {
		printCompletionUsage(env.Stdout)
		return nil
	}
	return GenerateCompletion(env.Stdout, Shell(args[0]))
}

// ---------------------------------------------------------------------------
// Bash
// ---------------------------------------------------------------------------

func bashScript(cmds []commandDef) string {
	var b strings.Builder
	b.WriteString("# bash completion for chatmark\n")
	b.WriteString("_chatmark() {\n")
	b.WriteString("  local cur prev cmd\n")
	b.WriteString("  cur=\"${COMP_WORDS[COMP_CWORD]}\"\n")
	b.WriteString("  prev=\"${COMP_WORDS[COMP_CWORD-1]}\"\n")
	b.WriteString("  cmd=\"${COMP_WORDS[1]}\"\n\n")
	b.WriteString("  if [[ ${COMP_CWORD} -eq 1 ]]; then\n")
	fmt.Fprintf(&b, "    COMPREPLY=($(compgen -W %q -- \"$cur\"))\n", strings.Join(commandNames(cmds), " "))
	b.WriteString("    return\n  fi\n\n")
	b.WriteString("  case \"$cmd\" in\n")
	for _, c := range cmds {
		if c.Name == "completion" {
			b.WriteString("  completion)\n    COMPREPLY=($(compgen -W \"bash zsh fish\" -- \"$cur\"))\n    ;;\n")
			continue
		}
		if c.Name == "help" {
			fmt.Fprintf(&b, "  help)\n    COMPREPLY=($(compgen -W %q -- \"$cur\"))\n    ;;\n", strings.Join(commandNames(cmds), " "))
			continue
		}
		if len(c.Flags) == 0 {
			continue
		}
		fmt.Fprintf(&b, "  %s)\n", c.Name)
		b.WriteString("    case \"$prev\" in\n")
		for _, f := range c.Flags {
			if f.Bool {
				continue
			}
			fmt.Fprintf(&b, "    %s)\n", strings.Join(flagSpellings(f), "|"))
			switch {
			case len(f.Values) > 0:
				fmt.Fprintf(&b, "      COMPREPLY=($(compgen -W %q -- \"$cur\"))\n", strings.Join(f.Values, " "))
			case f.Files != "":
				b.WriteString("      COMPREPLY=($(compgen -f -- \"$cur\"))\n")
			default:
				b.WriteString("      COMPREPLY=()\n")
			}
			b.WriteString("      return\n      ;;\n")
		}
		b.WriteString("    esac\n")
		b.WriteString("    if [[ \"$cur\" == -* ]]; then\n")
		fmt.Fprintf(&b, "      COMPREPLY=($(compgen -W %q -- \"$cur\"))\n", strings.Join(allSpellings(c.Flags), " "))
		if c.Files != "" {
			b.WriteString("    else\n      COMPREPLY=($(compgen -f -- \"$cur\"))\n")
		}
		b.WriteString("    fi\n    ;;\n")
	}
	b.WriteString("  esac\n}\n")
	b.WriteString("complete -F _chatmark chatmark\n")
	return b.String()
}

// ---------------------------------------------------------------------------
// Zsh
// ---------------------------------------------------------------------------

func zshScript(cmds []commandDef) string {
	var b strings.Builder
	b.WriteString("#compdef chatmark\n\n")
	b.WriteString("_chatmark() {\n")
	b.WriteString("  local -a commands\n  commands=(\n")
	for _, c := range cmds {
		fmt.Fprintf(&b, "    '%s:%s'\n", c.Name, zshEscape(c.Desc))
	}
	b.WriteString("  )\n\n")
	b.WriteString("  if (( CURRENT == 2 )); then\n    _describe 'command' commands\n    return\n  fi\n\n")
	b.WriteString("  case \"${words[2]}\" in\n")
	for _, c := range cmds {
		switch {
		case c.Name == "completion":
			b.WriteString("  completion)\n    _values 'shell' bash zsh fish\n    ;;\n")
		case c.Name == "help":
			b.WriteString("  help)\n    _describe 'command' commands\n    ;;\n")
		case len(c.Flags) > 0:
			fmt.Fprintf(&b, "  %s)\n    _arguments \\\n", c.Name)
			for _, f := range c.Flags {
				fmt.Fprintf(&b, "      %s \\\n", zshFlagSpec(f))
			}
			if c.Files != "" {
				fmt.Fprintf(&b, "      '*:file:_files -g \"%s\"'\n", zshGlob(c.Files))
			} else {
				b.WriteString("      '*:arg:'\n")
			}
			b.WriteString("    ;;\n")
		}
	}
	b.WriteString("  esac\n}\n\n")
	b.WriteString("compdef _chatmark chatmark\n")
	return b.String()
}

func zshFlagSpec(f flagDef) string {
	desc := zshEscape(f.Desc)
	var action string
	switch {
	case f.Bool:
	case len(f.Values) > 0:
		action = fmt.Sprintf(":%s:(%s)", f.Long, strings.Join(f.Values, " "))
	case f.Files != "":
		action = fmt.Sprintf(":%s:_files -g \"%s\"", f.Long, zshGlob(f.Files))
	default:
		action = fmt.Sprintf(":%s:", f.Long)
	}
	if f.Short == "" {
		return fmt.Sprintf("'--%s[%s]%s'", f.Long, desc, action)
	}
	return fmt.Sprintf("'(-%s --%s)'{-%s,--%s}'[%s]%s'", f.Short, f.Long, f.Short, f.Long, desc, action)
}

// zshGlob turns "*.yaml *.yml" into "*.(yaml|yml)".
func zshGlob(files string) string {
	parts := strings.Fields(files)
	if len(parts) == 1 {
		return parts[0]
	}
	exts := make([]string, 0, len(parts))
	for _, p := range parts {
		exts = append(exts, strings.TrimPrefix(p, "*."))
	}
	return "*.(" + strings.Join(exts, "|") + ")"
}

func zshEscape(s string) string {
	r := strings.NewReplacer("'", `'\''`, "[", `\[`, "]", `\]`, ":", `\:`)
	return r.Replace(s)
}

// ---------------------------------------------------------------------------
// Fish
// ---------------------------------------------------------------------------

func fishScript(cmds []commandDef) string {
	var b strings.Builder
	b.WriteString("# fish completion for chatmark\n")
	b.WriteString("complete -c chatmark -f\n")
	names := strings.Join(commandNames(cmds), " ")
	for _, c := range cmds {
		fmt.Fprintf(&b, "complete -c chatmark -n 'not __fish_seen_subcommand_from %s' -a %s -d '%s'\n",
			names, c.Name, fishEscape(c.Desc))
	}
	b.WriteString("complete -c chatmark -n '__fish_seen_subcommand_from completion' -a 'bash zsh fish'\n")
	fmt.Fprintf(&b, "complete -c chatmark -n '__fish_seen_subcommand_from help' -a '%s'\n", names)

	for _, c := range cmds {
		cond := fmt.Sprintf("-n '__fish_seen_subcommand_from %s'", c.Name)
		if c.Files != "" {
			fmt.Fprintf(&b, "complete -c chatmark %s -F\n", cond)
		}
		for _, f := range c.Flags {
			line := fmt.Sprintf("complete -c chatmark %s -l %s", cond, f.Long)
			if f.Short != "" {
				line += " -s " + f.Short
			}
			switch {
			case f.Bool:
			case len(f.Values) > 0:
				line += fmt.Sprintf(" -x -a '%s'", strings.Join(f.Values, " "))
			case f.Files != "":
				line += " -r -F"
			default:
				line += " -x"
			}
			line += fmt.Sprintf(" -d '%s'", fishEscape(f.Desc))
			b.WriteString(line + "\n")
		}
	}
	return b.String()
}

func fishEscape(s string) string {
	return strings.ReplaceAll(s, "'", `\'`)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func commandNames(cmds []commandDef) []string {
	names := make([]string, 0, len(cmds))
	for _, c := range cmds {
		names = append(names, c.Name)
	}
	return names
}

// flagSpellings returns "--long" and, when present, "-s".
func flagSpellings(f flagDef) []string {
	out := []string{"--" + f.Long}
	if f.Short != "" {
		out = append(out, "-"+f.Short)
	}
	return out
}

func allSpellings(flags []flagDef) []string {
	var out []string
	for _, f := range flags {
		out = append(out, flagSpellings(f)...)
	}
	sort.Strings(out)
	return out
}
