package main

import (
	"context"
	"fmt"
	"time"
)

// runLogin captures a bearer token from the web UI unless a valid one is stored.
func runLogin(ctx context.Context, args []string, env *Environment) error {
	flags, _, err := parseLoginFlags(args, env.Stderr)
	if err != nil {
		return err
	}

	a, err := newApp(flags.common, env)
	if err != nil {
		return err
	}

	wait := a.cfg.Auth.LoginWait
	if flags.wait != "" {
		if wait, err = parseDuration("--wait", flags.wait); err != nil {
			return err
		}
	}

	mgr, err := a.tokenManager()
	if err != nil {
		return err
	}
	if mgr.Valid() && !flags.force {
		fmt.Fprintf(env.Stdout, "Already logged in; token valid until %s\n", mgr.ExpiresAt().Format(time.RFC1123))
		return nil
	}
	if a.cfg.Auth.UIURL == "" {
		return ErrMissingUIURL
	}
	if flags.force {
		if err := mgr.Clear(); err != nil {
			return err
		}
	}

	fmt.Fprintf(env.Stderr, "Log in at %s in the browser window (waiting up to %s)\n", a.cfg.Auth.UIURL, wait)
	s, err := env.OpenScraper(ctx, a.cfg.Auth.UIURL, a.cfg.ProfilePath())
	if err != nil {
		return fmt.Errorf("opening login page: %w", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			a.logger.Debug("closing login browser", "error", err)
		}
	}()

	if err := mgr.EnsureAuthenticated(ctx, s, wait); err != nil {
		return fmt.Errorf("logging in: %w", err)
	}
	fmt.Fprintf(env.Stdout, "Logged in; token valid until %s\n", mgr.ExpiresAt().Format(time.RFC1123))
	return nil
}
