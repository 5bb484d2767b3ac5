package main

import (
	"errors"
	"fmt"
	"io"

	flag "github.com/spf13/pflag"
)

// Output formats for ask and history.
const (
	formatHTML     = "html"
	formatMarkdown = "markdown"
	formatTerm     = "term"
)

// commonFlags holds flags shared across commands.
type commonFlags struct {
	config  string
	verbose bool
}

// renderFlags holds flags for the render command.
type renderFlags struct {
	common     commonFlags
	output     string
	workers    int
	user       bool
	standalone bool
}

// askFlags holds flags for the ask command.
type askFlags struct {
	common       commonFlags
	conversation string
	format       string
	timeout      string
	webSearch    bool
}

// historyFlags holds flags for the history command.
type historyFlags struct {
	common commonFlags
	delete bool
	format string
}

// loginFlags holds flags for the login command.
type loginFlags struct {
	common commonFlags
	force  bool
	wait   string
}

// serveFlags holds flags for the serve command.
type serveFlags struct {
	common commonFlags
	addr   string
}

// addCommonFlags adds common flags to a FlagSet.
func addCommonFlags(fs *flag.FlagSet, f *commonFlags) {
	fs.StringVarP(&f.config, "config", "c", "", "config file path")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "show debug logs")
}

// newFlagSet creates a FlagSet that reports errors instead of exiting.
func newFlagSet(name string, usage func(io.Writer), w io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() { usage(w) }
	return fs
}

// parse runs fs.Parse and marks parse failures as usage errors.
// flag.ErrHelp is returned unchanged after pflag has printed the usage.
func parse(fs *flag.FlagSet, args []string) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	return fs.Args(), nil
}

// doctorFlags holds flags for the doctor command.
type doctorFlags struct {
	common commonFlags
	json   bool
}

// The *FlagSet builders register each command's flags. Parsing and shell
// completion share them.

func renderFlagSet(f *renderFlags, w io.Writer) *flag.FlagSet {
	fs := newFlagSet("render", printRenderUsage, w)
	fs.StringVarP(&f.output, "output", "o", "", "output file, or directory for several inputs")
	fs.IntVarP(&f.workers, "workers", "w", 0, "parallel renderers (0 = auto)")
	fs.BoolVarP(&f.user, "user", "u", false, "render as a user message (escaped, no markdown)")
	fs.BoolVarP(&f.standalone, "standalone", "s", false, "wrap output in a complete HTML page")
	addCommonFlags(fs, &f.common)
	return fs
}

func askFlagSet(f *askFlags, w io.Writer) *flag.FlagSet {
	fs := newFlagSet("ask", printAskUsage, w)
	fs.StringVarP(&f.conversation, "conversation", "C", "", "continue a stored conversation")
	fs.StringVarP(&f.format, "format", "f", formatTerm, "output format: term, html, markdown")
	fs.StringVarP(&f.timeout, "timeout", "t", "", "request timeout (e.g., 30s, 2m)")
	fs.BoolVar(&f.webSearch, "web-search", false, "ask the endpoint to search the web")
	addCommonFlags(fs, &f.common)
	return fs
}

func historyFlagSet(f *historyFlags, w io.Writer) *flag.FlagSet {
	fs := newFlagSet("history", printHistoryUsage, w)
	fs.BoolVarP(&f.delete, "delete", "d", false, "delete the given conversation")
	fs.StringVarP(&f.format, "format", "f", formatTerm, "message format: term, html, markdown")
	addCommonFlags(fs, &f.common)
	return fs
}

func loginFlagSet(f *loginFlags, w io.Writer) *flag.FlagSet {
	fs := newFlagSet("login", printLoginUsage, w)
	fs.BoolVar(&f.force, "force", false, "log in again even if the stored token is valid")
	fs.StringVar(&f.wait, "wait", "", "how long to wait for the login (e.g., 2m)")
	addCommonFlags(fs, &f.common)
	return fs
}

func serveFlagSet(f *serveFlags, w io.Writer) *flag.FlagSet {
	fs := newFlagSet("serve", printServeUsage, w)
	fs.StringVarP(&f.addr, "addr", "a", "", "listen address (default from config)")
	addCommonFlags(fs, &f.common)
	return fs
}

func doctorFlagSet(f *doctorFlags, w io.Writer) *flag.FlagSet {
	fs := newFlagSet("doctor", printDoctorUsage, w)
	fs.BoolVar(&f.json, "json", false, "print the report as JSON")
	addCommonFlags(fs, &f.common)
	return fs
}

func commonFlagSet(name string, f *commonFlags, usage func(io.Writer), w io.Writer) *flag.FlagSet {
	fs := newFlagSet(name, usage, w)
	addCommonFlags(fs, f)
	return fs
}

// parseRenderFlags parses render command flags and returns positional args.
func parseRenderFlags(args []string, w io.Writer) (*renderFlags, []string, error) {
	f := &renderFlags{}
	rest, err := parse(renderFlagSet(f, w), args)
	return f, rest, err
}

// parseAskFlags parses ask command flags and returns positional args.
func parseAskFlags(args []string, w io.Writer) (*askFlags, []string, error) {
	f := &askFlags{}
	rest, err := parse(askFlagSet(f, w), args)
	return f, rest, err
}

// parseHistoryFlags parses history command flags and returns positional args.
func parseHistoryFlags(args []string, w io.Writer) (*historyFlags, []string, error) {
	f := &historyFlags{}
	rest, err := parse(historyFlagSet(f, w), args)
	return f, rest, err
}

// parseLoginFlags parses login command flags.
func parseLoginFlags(args []string, w io.Writer) (*loginFlags, []string, error) {
	f := &loginFlags{}
	rest, err := parse(loginFlagSet(f, w), args)
	return f, rest, err
}

// parseServeFlags parses serve command flags.
func parseServeFlags(args []string, w io.Writer) (*serveFlags, []string, error) {
	f := &serveFlags{}
	rest, err := parse(serveFlagSet(f, w), args)
	return f, rest, err
}

// parseDoctorFlags parses doctor command flags.
func parseDoctorFlags(args []string, w io.Writer) (*doctorFlags, []string, error) {
	f := &doctorFlags{}
	rest, err := parse(doctorFlagSet(f, w), args)
	return f, rest, err
}

// parseCommonFlags parses commands that take only the common flags.
func parseCommonFlags(name string, args []string, usage func(io.Writer), w io.Writer) (*commonFlags, []string, error) {
	f := &commonFlags{}
	rest, err := parse(commonFlagSet(name, f, usage, w), args)
	return f, rest, err
}

// validateFormat checks an output format name.
func validateFormat(format string) error {
	switch format {
	case formatHTML, formatMarkdown, formatTerm:
		return nil
	default:
		return fmt.Errorf("%w: %q (use term, html or markdown)", ErrInvalidFormat, format)
	}
}
