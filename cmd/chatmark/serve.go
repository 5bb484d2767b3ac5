package main

import (
	"context"
	"fmt"

	chatmark "github.com/alnah/go-chatmark"
	"github.com/alnah/go-chatmark/internal/assets"
	"github.com/alnah/go-chatmark/internal/server"
)

// runServe runs the local UI until the context is canceled.
func runServe(ctx context.Context, args []string, env *Environment) error {
	flags, _, err := parseServeFlags(args, env.Stderr)
	if err != nil {
		return err
	}

	a, err := newApp(flags.common, env)
	if err != nil {
		return err
	}
	addr := a.cfg.Server.Addr
	if flags.addr != "" {
		addr = flags.addr
	}

	// One renderer serves all requests; KaTeX tabs bound its concurrency.
	r, err := a.newRenderer(chatmark.ResolvePoolSize(a.cfg.Render.Workers))
	if err != nil {
		return err
	}
	defer func() {
		if err := r.Close(); err != nil {
			a.logger.Warn("closing renderer", "error", err)
		}
	}()

	client, err := a.chatClient()
	if err != nil {
		return err
	}
	st, err := a.openStore()
	if err != nil {
		return err
	}
	loader, err := assets.NewResolver(a.cfg.Server.AssetsDir)
	if err != nil {
		return fmt.Errorf("loading assets: %w", err)
	}

	opts := []server.Option{
		server.WithLogger(a.logger),
		server.WithAssets(loader),
		server.WithKaTeXStyleURL(a.katexStyleURL()),
	}
	if a.cfg.API.Model != "" {
		opts = append(opts, server.WithModel(a.cfg.API.Model))
	}
	srv, err := server.New(r, client, st, opts...)
	if err != nil {
		return err
	}

	fmt.Fprintf(env.Stderr, "chatmark UI on http://%s\n", addr)
	return srv.Run(ctx, addr, a.cfg.Server.ShutdownTimeout)
}
