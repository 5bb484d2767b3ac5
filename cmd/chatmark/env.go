package main

import (
	"context"
	"io"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/alnah/go-chatmark/internal/auth"
)

// Scraper is a browser page the user logs in through.
type Scraper interface {
	auth.Scraper
	Close() error
}

// Environment holds injectable dependencies for testability.
// Includes I/O, time, environment lookup, and the login browser.
type Environment struct {
	Now    func() time.Time
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Getenv func(string) string

	// IsTerminal reports whether Stdout is an interactive terminal.
	IsTerminal func() bool

	// OpenScraper opens the web UI for login.
	OpenScraper func(ctx context.Context, uiURL, profileDir string) (Scraper, error)
}

// DefaultEnv returns the production environment.
func DefaultEnv() *Environment {
	return &Environment{
		Now:    time.Now,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Getenv: os.Getenv,
		IsTerminal: func() bool {
			return term.IsTerminal(int(os.Stdout.Fd())) // #nosec G115 -- fd fits in int
		},
		OpenScraper: func(ctx context.Context, uiURL, profileDir string) (Scraper, error) {
			return auth.NewRodScraper(ctx, uiURL, profileDir)
		},
	}
}
