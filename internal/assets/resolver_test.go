package assets

import (
	"errors"
	"strings"
	"testing"
)

func TestNewResolver(t *testing.T) {
	t.Parallel()

	t.Run("empty path uses embedded only", func(t *testing.T) {
		t.Parallel()

		r, err := NewResolver("")
		if err != nil {
			t.Fatalf("NewResolver(\"\") error = %v", err)
		}
		if r.HasCustomLoader() {
			t.Error("expected no custom loader for empty path")
		}
	})

	t.Run("valid custom path", func(t *testing.T) {
		t.Parallel()

		r, err := NewResolver(t.TempDir())
		if err != nil {
			t.Fatalf("NewResolver() error = %v", err)
		}
		if !r.HasCustomLoader() {
			t.Error("expected custom loader for valid path")
		}
	})

	t.Run("invalid custom path returns error", func(t *testing.T) {
		t.Parallel()

		_, err := NewResolver("/nonexistent/path/abc123xyz")
		if !errors.Is(err, ErrInvalidBasePath) {
			t.Errorf("NewResolver() error = %v, want ErrInvalidBasePath", err)
		}
	})
}

func TestResolver_Load(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeAsset(t, dir, KindStyle, ChatStyle, "/* override */")

	r, err := NewResolver(dir)
	if err != nil {
		t.Fatalf("NewResolver() error = %v", err)
	}

	t.Run("custom asset wins", func(t *testing.T) {
		t.Parallel()

		got, err := r.Load(KindStyle, ChatStyle)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got != "/* override */" {
			t.Errorf("Load() = %q, want custom content", got)
		}
	})

	t.Run("falls back to embedded", func(t *testing.T) {
		t.Parallel()

		got, err := r.Load(KindStyle, MathStyle)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if !strings.Contains(got, ".math-block") {
			t.Error("Load() should return the embedded math style")
		}
	})

	t.Run("validation errors are not masked", func(t *testing.T) {
		t.Parallel()

		_, err := r.Load(KindStyle, "../chat")
		if !errors.Is(err, ErrInvalidAssetName) {
			t.Errorf("Load() error = %v, want ErrInvalidAssetName", err)
		}
	})

	t.Run("missing everywhere", func(t *testing.T) {
		t.Parallel()

		_, err := r.Load(KindScript, "absent")
		if !errors.Is(err, ErrAssetNotFound) {
			t.Errorf("Load() error = %v, want ErrAssetNotFound", err)
		}
	})
}
