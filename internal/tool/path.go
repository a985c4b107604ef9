package tool

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathEscape is returned when a tool argument resolves outside the
// workspace root, whether by "..", an absolute path, or a symlink.
var ErrPathEscape = errors.New("path escapes workspace root")

// ResolvePath resolves p against the workspace root and verifies the
// result stays inside it. Symlinks along the existing portion of the
// path are resolved before the containment check, so a link pointing
// out of the workspace is rejected rather than followed.
func ResolvePath(root, p string) (string, error) {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}
	rootReal, err := filepath.EvalSymlinks(rootAbs)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}

	if !filepath.IsAbs(p) {
		p = filepath.Join(rootAbs, p)
	}
	p = filepath.Clean(p)

	resolved, err := resolveExisting(p)
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(rootReal, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, p)
	}

	return resolved, nil
}

// resolveExisting resolves symlinks on the deepest existing ancestor of
// p and rejoins the non-existent remainder, so containment also holds
// for paths about to be created.
func resolveExisting(p string) (string, error) {
	resolved, err := filepath.EvalSymlinks(p)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	dir, base := filepath.Split(p)
	dir = filepath.Clean(dir)
	if dir == p {
		// Reached the filesystem root without finding anything.
		return p, nil
	}

	resolvedDir, err := resolveExisting(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedDir, base), nil
}
