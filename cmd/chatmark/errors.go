package main

import "errors"

// Sentinel errors for CLI operations.
var (
	ErrUsage              = errors.New("invalid usage")
	ErrUnknownCommand     = errors.New("unknown command")
	ErrNoInput            = errors.New("no input specified")
	ErrReadInput          = errors.New("failed to read input")
	ErrWriteOutput        = errors.New("failed to write output")
	ErrInvalidFormat      = errors.New("invalid output format")
	ErrInvalidWorkerCount = errors.New("invalid worker count")
	ErrMissingUIURL       = errors.New("web UI URL is not configured")
	ErrNotReady           = errors.New("not ready")
)
