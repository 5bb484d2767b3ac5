package main

import (
	"context"
	"errors"
	"os"

	chatmark "github.com/alnah/go-chatmark"
	"github.com/alnah/go-chatmark/internal/assets"
	"github.com/alnah/go-chatmark/internal/auth"
	"github.com/alnah/go-chatmark/internal/browser"
	"github.com/alnah/go-chatmark/internal/chat"
	"github.com/alnah/go-chatmark/internal/config"
	"github.com/alnah/go-chatmark/internal/hints"
	"github.com/alnah/go-chatmark/internal/store"
)

// Exit codes for the chatmark CLI.
// Follows Unix conventions: 0=success, 1=general, 2=usage, and custom codes < 126.
const (
	ExitSuccess = 0 // Command completed
	ExitGeneral = 1 // General/unexpected error
	ExitUsage   = 2 // Invalid flags, config, or validation
	ExitIO      = 3 // File not found, permission denied, unreadable store
	ExitBrowser = 4 // Browser/Chrome errors
	ExitAPI     = 5 // Chat endpoint or credential errors
)

// exitCodeFor returns the appropriate exit code for an error.
// It uses errors.Is to check wrapped errors, so callers must use fmt.Errorf("%w", err).
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	// Browser errors (exit 4)
	if errors.Is(err, browser.ErrConnect) ||
		errors.Is(err, browser.ErrPageCreate) ||
		errors.Is(err, browser.ErrPageLoad) ||
		errors.Is(err, auth.ErrScraperClosed) {
		return ExitBrowser
	}

	// Endpoint and credential errors (exit 5)
	if errors.Is(err, chat.ErrMissingCredentials) ||
		errors.Is(err, chat.ErrAPIStatus) ||
		errors.Is(err, chat.ErrEmptyResponse) ||
		errors.Is(err, chat.ErrResponseTooLarge) ||
		errors.Is(err, auth.ErrLoginTimeout) ||
		errors.Is(err, auth.ErrNoToken) ||
		errors.Is(err, auth.ErrAuthInProgress) ||
		errors.Is(err, context.DeadlineExceeded) {
		return ExitAPI
	}

	// I/O errors (exit 3)
	if errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, ErrNoInput) ||
		errors.Is(err, ErrReadInput) ||
		errors.Is(err, ErrWriteOutput) ||
		errors.Is(err, store.ErrStoreCorrupt) {
		return ExitIO
	}

	// Usage/config/validation errors (exit 2)
	if errors.Is(err, ErrUsage) ||
		errors.Is(err, ErrUnknownCommand) ||
		errors.Is(err, ErrInvalidFormat) ||
		errors.Is(err, ErrInvalidWorkerCount) ||
		errors.Is(err, ErrMissingUIURL) ||
		errors.Is(err, config.ErrConfigNotFound) ||
		errors.Is(err, config.ErrConfigParse) ||
		errors.Is(err, config.ErrConfigTooLarge) ||
		errors.Is(err, config.ErrFieldTooLong) ||
		errors.Is(err, config.ErrInvalidValue) ||
		errors.Is(err, chatmark.ErrInvalidHighlightStyle) ||
		errors.Is(err, assets.ErrInvalidBasePath) ||
		errors.Is(err, chat.ErrEmptyQuery) ||
		errors.Is(err, chat.ErrMissingURL) ||
		errors.Is(err, store.ErrConversationNotFound) ||
		errors.Is(err, store.ErrDataDirEmpty) {
		return ExitUsage
	}

	return ExitGeneral
}

// hintFor returns an actionable suffix for err, or "".
func hintFor(err error) string {
	var se *chat.StatusError
	switch {
	case errors.Is(err, browser.ErrConnect):
		return hints.ForBrowserConnect()
	case errors.Is(err, config.ErrConfigNotFound):
		return hints.ForConfigNotFound(config.SearchPaths())
	case errors.Is(err, chat.ErrMissingCredentials):
		return hints.ForMissingCredentials()
	case errors.As(err, &se):
		return hints.ForAPIStatus(se.Code)
	case errors.Is(err, context.DeadlineExceeded):
		return hints.ForTimeout()
	case errors.Is(err, store.ErrStoreCorrupt), errors.Is(err, store.ErrDataDirEmpty):
		return hints.ForDataDir()
	default:
		return ""
	}
}
