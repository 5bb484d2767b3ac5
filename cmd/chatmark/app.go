package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	flag "github.com/spf13/pflag"

	chatmark "github.com/alnah/go-chatmark"
	"github.com/alnah/go-chatmark/internal/auth"
	"github.com/alnah/go-chatmark/internal/chat"
	"github.com/alnah/go-chatmark/internal/config"
	"github.com/alnah/go-chatmark/internal/store"
	"github.com/alnah/go-chatmark/internal/typeset"
)

// runMain runs the command named by args[1] and returns the exit code.
// Errors are printed to env.Stderr with a hint when one applies.
func runMain(args []string, env *Environment) int {
	if len(args) < 2 {
		printUsage(env.Stderr)
		return ExitUsage
	}

	ctx, stop := notifyContext(context.Background())
	defer stop()

	err := dispatch(ctx, args[1], args[2:], env)
	if errors.Is(err, flag.ErrHelp) {
		return ExitSuccess
	}
	if err != nil {
		fmt.Fprintf(env.Stderr, "chatmark: %v%s\n", err, hintFor(err))
	}
	return exitCodeFor(err)
}

func dispatch(ctx context.Context, cmd string, args []string, env *Environment) error {
	switch cmd {
	case "render":
		return runRender(ctx, args, env)
	case "ask":
		return runAsk(ctx, args, env)
	case "history":
		return runHistory(ctx, args, env)
	case "login":
		return runLogin(ctx, args, env)
	case "serve":
		return runServe(ctx, args, env)
	case "config":
		return runConfig(args, env)
	case "doctor":
		return runDoctor(ctx, args, env)
	case "completion":
		return runCompletion(args, env)
	case "version", "--version":
		fmt.Fprintf(env.Stdout, "chatmark %s\n", Version)
		return nil
	case "help", "-h", "--help":
		return runHelp(args, env)
	default:
		printUsage(env.Stderr)
		return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
	}
}

// app bundles the configuration and logger a command runs with.
type app struct {
	cfg        *config.Config
	configPath string
	logger     *slog.Logger
	env        *Environment
}

// newApp loads the config file, applies environment overrides and
// validates the result.
func newApp(common commonFlags, env *Environment) (*app, error) {
	logger := newLogger(env.Stderr, common.verbose)

	cfg, used, err := config.Load(common.config)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg.ApplyEnv(env.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if used != "" {
		logger.Debug("config loaded", "path", used)
	}

	return &app{cfg: cfg, configPath: used, logger: logger, env: env}, nil
}

// newLogger returns a text logger; verbose enables debug output.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// typesetterName returns the configured backend, lower-cased.
func (a *app) typesetterName() string {
	name := strings.ToLower(a.cfg.Render.Typesetter)
	if name == "" {
		return config.TypesetterQuickJS
	}
	return name
}

// katex reports whether the configured typesetter runs KaTeX in a browser.
func (a *app) katex() bool {
	return a.typesetterName() == config.TypesetterKaTeX
}

// typesetter builds the configured math backend. pages bounds concurrent
// renders for the KaTeX backends and is ignored for MathML.
func (a *app) typesetter(pages int) chatmark.Typesetter {
	switch a.typesetterName() {
	case config.TypesetterMathML:
		return typeset.NewMathML(typeset.DefaultMacros())
	case config.TypesetterKaTeX:
		opts := []typeset.KaTeXOption{typeset.WithPages(pages)}
		if u := a.cfg.Render.KaTeXScriptURL; u != "" {
			opts = append(opts, typeset.WithScriptURL(u))
		}
		if u := a.cfg.Render.KaTeXStyleURL; u != "" {
			opts = append(opts, typeset.WithStyleURL(u))
		}
		return typeset.NewKaTeX(opts...)
	default:
		return typeset.NewQuickJS(typeset.DefaultMacros(), typeset.WithInterpreters(pages))
	}
}

// katexStyleURL returns the stylesheet the page must link, or "" when the
// math is MathML.
func (a *app) katexStyleURL() string {
	if a.typesetterName() == config.TypesetterMathML {
		return ""
	}
	if u := a.cfg.Render.KaTeXStyleURL; u != "" {
		return u
	}
	return typeset.DefaultKaTeXStyleURL
}

// newRenderer creates a renderer from the render section.
func (a *app) newRenderer(pages int) (*chatmark.Renderer, error) {
	return chatmark.NewRenderer(
		chatmark.WithTypesetter(a.typesetter(pages)),
		chatmark.WithLogger(a.logger),
		chatmark.WithHighlightStyle(a.cfg.Render.HighlightStyle),
		chatmark.WithCitations(a.cfg.Render.Citations),
		chatmark.WithCopyButtons(a.cfg.Render.CopyButtons),
	)
}

// tokenSource returns the API key when configured, otherwise the token
// captured by 'chatmark login'.
func (a *app) tokenSource() (chat.TokenSource, error) {
	if a.cfg.API.Key != "" {
		return chat.StaticToken(a.cfg.API.Key), nil
	}
	return a.tokenManager()
}

func (a *app) tokenManager() (*auth.Manager, error) {
	return auth.NewManager(a.cfg.TokenPath(), auth.WithLogger(a.logger))
}

// chatClient creates a client for the api section.
func (a *app) chatClient() (*chat.Client, error) {
	tokens, err := a.tokenSource()
	if err != nil {
		return nil, err
	}
	api := a.cfg.API
	return chat.New(chat.Config{
		URL:          api.URL,
		Model:        api.Model,
		SystemPrompt: api.SystemPrompt,
		Temperature:  api.Temperature,
		MaxTokens:    api.MaxTokens,
		WebSearch:    api.WebSearch,
		Timeout:      api.Timeout,
	}, tokens, chat.WithLogger(a.logger)), nil
}

func (a *app) openStore() (*store.Store, error) {
	return store.Open(a.cfg.DataDir())
}

// chatHistory converts stored messages to request context.
func chatHistory(msgs []store.Message) []chat.Message {
	out := make([]chat.Message, 0, len(msgs))
	for _, m := range msgs {
		role := chat.RoleAssistant
		if m.IsUser {
			role = chat.RoleUser
		}
		out = append(out, chat.Message{Role: role, Content: m.Text})
	}
	return out
}
