package assets

import (
	"fmt"
	"strings"
)

// Kind is a category of asset, stored in its own directory.
type Kind int

// Asset kinds.
const (
	KindStyle Kind = iota
	KindScript
	KindTemplate
)

// Built-in asset names.
const (
	ChatStyle     = "chat"
	MathStyle     = "math"
	CopyScript    = "copy"
	ChatScript    = "chat"
	IndexTemplate = "index"
)

var kindInfo = map[Kind]struct {
	dir, ext, contentType string
}{
	KindStyle:    {"styles", ".css", "text/css; charset=utf-8"},
	KindScript:   {"scripts", ".js", "text/javascript; charset=utf-8"},
	KindTemplate: {"templates", ".html", "text/html; charset=utf-8"},
}

// Dir returns the directory holding assets of kind k.
func (k Kind) Dir() string { return kindInfo[k].dir }

// Ext returns the file extension of kind k, including the dot.
func (k Kind) Ext() string { return kindInfo[k].ext }

// ContentType returns the MIME type served for kind k.
func (k Kind) ContentType() string { return kindInfo[k].contentType }

// String returns the directory name.
func (k Kind) String() string {
	if d := k.Dir(); d != "" {
		return d
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Loader defines the contract for loading UI assets.
type Loader interface {
	// Load returns the asset of the given kind by name (without extension).
	// Returns ErrAssetNotFound if the asset doesn't exist.
	// Returns ErrInvalidAssetName if the name contains invalid characters.
	Load(kind Kind, name string) (string, error)
}

// ParseFileName splits a served file name such as "chat.css" into its kind
// and asset name. Templates are not served and are rejected.
func ParseFileName(file string) (Kind, string, error) {
	i := strings.LastIndexByte(file, '.')
	if i <= 0 {
		return 0, "", fmt.Errorf("%w: %q", ErrUnknownAssetType, file)
	}
	name, ext := file[:i], file[i:]
	for _, k := range []Kind{KindStyle, KindScript} {
		if ext == k.Ext() {
			if err := ValidateAssetName(name); err != nil {
				return 0, "", err
			}
			return k, name, nil
		}
	}
	return 0, "", fmt.Errorf("%w: %q", ErrUnknownAssetType, file)
}
