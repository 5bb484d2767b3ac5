package chatmark

import "errors"

// Sentinel errors for library operations.
var (
	// ErrInvalidHighlightStyle is returned by NewRenderer for an unknown chroma style.
	ErrInvalidHighlightStyle = errors.New("invalid highlight style")

	// ErrPoolClosed is returned by RendererPool.Acquire after Close.
	ErrPoolClosed = errors.New("renderer pool closed")
)
