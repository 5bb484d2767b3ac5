package assets

import (
	"embed"
	"fmt"
)

//go:embed styles/* scripts/* templates/*
var files embed.FS

// EmbeddedLoader loads assets from the embedded filesystem.
type EmbeddedLoader struct{}

// NewEmbeddedLoader creates an EmbeddedLoader.
func NewEmbeddedLoader() *EmbeddedLoader {
	return &EmbeddedLoader{}
}

// Load reads an embedded asset by kind and name.
func (e *EmbeddedLoader) Load(kind Kind, name string) (string, error) {
	if err := ValidateAssetName(name); err != nil {
		return "", err
	}
	if kind.Dir() == "" {
		return "", fmt.Errorf("%w: %v", ErrUnknownAssetType, kind)
	}

	content, err := files.ReadFile(kind.Dir() + "/" + name + kind.Ext())
	if err != nil {
		return "", fmt.Errorf("%w: %s %q", ErrAssetNotFound, kind, name)
	}
	return string(content), nil
}

// Compile-time interface check.
var _ Loader = (*EmbeddedLoader)(nil)
