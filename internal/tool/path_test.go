package tool

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePath_Relative(t *testing.T) {
	root := t.TempDir()

	got, err := ResolvePath(root, "sub/file.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(mustEval(t, root), "sub", "file.txt"), got)
}

func TestResolvePath_AbsoluteInside(t *testing.T) {
	root := t.TempDir()

	got, err := ResolvePath(root, filepath.Join(root, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(mustEval(t, root), "a.txt"), got)
}

func TestResolvePath_DotDotEscape(t *testing.T) {
	root := t.TempDir()

	_, err := ResolvePath(root, "../outside.txt")
	assert.ErrorIs(t, err, ErrPathEscape)

	_, err = ResolvePath(root, "sub/../../outside.txt")
	assert.ErrorIs(t, err, ErrPathEscape)
}

func TestResolvePath_AbsoluteOutside(t *testing.T) {
	root := t.TempDir()

	_, err := ResolvePath(root, "/etc/passwd")
	assert.ErrorIs(t, err, ErrPathEscape)
}

func TestResolvePath_SymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()

	link := filepath.Join(root, "link")
	require.NoError(t, os.Symlink(outside, link))

	_, err := ResolvePath(root, "link/secret.txt")
	assert.ErrorIs(t, err, ErrPathEscape)
}

func TestResolvePath_SymlinkInside(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "real"), 0755))
	require.NoError(t, os.Symlink(filepath.Join(root, "real"), filepath.Join(root, "alias")))

	got, err := ResolvePath(root, "alias/file.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(mustEval(t, root), "real", "file.txt"), got)
}

func TestResolvePath_NotYetExisting(t *testing.T) {
	root := t.TempDir()

	// Paths that do not exist yet still resolve as long as they stay
	// under the root.
	got, err := ResolvePath(root, "new/dir/file.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(mustEval(t, root), "new", "dir", "file.txt"), got)
}

// mustEval resolves symlinks in the root the way ResolvePath does, so
// expectations hold on platforms where TempDir itself is a symlink.
func mustEval(t *testing.T, path string) string {
	t.Helper()
	resolved, err := filepath.EvalSymlinks(path)
	require.NoError(t, err)
	return resolved
}
