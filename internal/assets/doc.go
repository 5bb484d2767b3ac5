// Package assets provides the stylesheets, scripts and page template of the
// chat UI.
//
// # Loader Architecture
//
// The package implements a layered loading system:
//
//	Loader (interface)
//	    │
//	    ├── EmbeddedLoader    - loads from go:embed filesystem (built-in UI)
//	    ├── FilesystemLoader  - loads from custom directory on disk
//	    └── Resolver          - combines both with custom-first fallback
//
// Resolver is the loader used by the server. It tries the custom
// FilesystemLoader first, falling back to EmbeddedLoader when the asset is
// not found, so a single stylesheet can be overridden while the rest of the
// UI keeps its defaults.
//
// # Directory Structure
//
//	{basePath}/
//	├── styles/
//	│   └── {name}.css       # chat.css, math.css
//	├── scripts/
//	│   └── {name}.js        # copy.js, chat.js
//	└── templates/
//	    └── {name}.html      # index.html
//
// # Security
//
// Asset names are validated to prevent path traversal attacks.
// FilesystemLoader resolves symlinks and verifies paths stay within basePath.
package assets
