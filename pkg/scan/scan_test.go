package scan

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarpack/tarpack/pkg/model"
)

func setupTree(t *testing.T, fs afero.Fs) {
	t.Helper()
	require.NoError(t, fs.MkdirAll("root/docs/nested", 0755))
	require.NoError(t, fs.MkdirAll("root/empty", 0755))
	require.NoError(t, afero.WriteFile(fs, "root/docs/a.txt", []byte("alpha"), 0644))
	require.NoError(t, afero.WriteFile(fs, "root/docs/b.txt", []byte("beta"), 0600))
	require.NoError(t, afero.WriteFile(fs, "root/docs/nested/c.txt", []byte("gamma"), 0644))
	require.NoError(t, afero.WriteFile(fs, "root/top.bin", []byte("topsecret"), 0644))
	require.NoError(t, afero.WriteFile(fs, "root/skipme.tmp", []byte("x"), 0644))
}

func TestSnapshotOrderingAndKinds(t *testing.T) {
	fs := afero.NewMemMapFs()
	setupTree(t, fs)

	snap, err := New(fs).Snapshot("root")
	require.NoError(t, err)

	paths := make([]string, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		assert.Equal(t, model.KindFile, e.Kind)
		paths = append(paths, e.Path)
	}
	assert.Equal(t, []string{
		"docs/a.txt",
		"docs/b.txt",
		"docs/nested/c.txt",
		"skipme.tmp",
		"top.bin",
	}, paths)

	dirPaths := make([]string, 0, len(snap.Dirs))
	for _, d := range snap.Dirs {
		dirPaths = append(dirPaths, d.Path)
	}
	assert.Equal(t, []string{"docs", "docs/nested", "empty"}, dirPaths)
	assert.Empty(t, snap.Skipped)
}

func TestSnapshotDeterminism(t *testing.T) {
	fs := afero.NewMemMapFs()
	setupTree(t, fs)

	s := New(fs)
	first, err := s.Snapshot("root")
	require.NoError(t, err)
	second, err := s.Snapshot("root")
	require.NoError(t, err)
	assert.Equal(t, first.Entries, second.Entries)
	assert.Equal(t, first.Dirs, second.Dirs)
}

func TestSnapshotExcludes(t *testing.T) {
	fs := afero.NewMemMapFs()
	setupTree(t, fs)

	snap, err := New(fs, Exclude("*.tmp", "docs/nested")).Snapshot("root")
	require.NoError(t, err)

	for _, e := range snap.Entries {
		assert.NotEqual(t, "skipme.tmp", e.Path)
		assert.NotContains(t, e.Path, "nested/")
	}
	for _, d := range snap.Dirs {
		assert.NotEqual(t, "docs/nested", d.Path)
	}
}

func TestSnapshotMissingRoot(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := New(fs).Snapshot("nosuch")
	require.Error(t, err)
}

func TestSnapshotSymlinksAndHardLinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink semantics differ on windows")
	}
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "d"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "d", "file"), []byte("data"), 0644))
	require.NoError(t, os.Symlink("d/file", filepath.Join(root, "link")))
	require.NoError(t, os.Link(filepath.Join(root, "d", "file"), filepath.Join(root, "hard")))

	snap, err := New(afero.NewOsFs()).Snapshot(root)
	require.NoError(t, err)

	byPath := map[string]model.FileEntry{}
	for _, e := range snap.Entries {
		byPath[e.Path] = e
	}

	link, ok := byPath["link"]
	require.True(t, ok)
	assert.Equal(t, model.KindSymlink, link.Kind)
	assert.Equal(t, "d/file", link.LinkTarget)

	hard, ok := byPath["hard"]
	require.True(t, ok)
	orig := byPath["d/file"]
	require.NotEmpty(t, hard.LinkKey)
	assert.Equal(t, orig.LinkKey, hard.LinkKey)

	groups := snap.SortedLinkGroups()
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"d/file", "hard"}, groups[0])
}

func TestSnapshotFollowSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink semantics differ on windows")
	}
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "target"), []byte("payload"), 0644))
	require.NoError(t, os.Symlink("target", filepath.Join(root, "alias")))

	snap, err := New(afero.NewOsFs(), FollowSymlinks(true)).Snapshot(root)
	require.NoError(t, err)

	byPath := map[string]model.FileEntry{}
	for _, e := range snap.Entries {
		byPath[e.Path] = e
	}
	alias, ok := byPath["alias"]
	require.True(t, ok)
	assert.Equal(t, model.KindFile, alias.Kind)
	assert.Equal(t, int64(len("payload")), alias.Size)
}

func TestSnapshotOwnership(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("no POSIX stat record on windows")
	}
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "f"), []byte("x"), 0644))

	snap, err := New(afero.NewOsFs()).Snapshot(root)
	require.NoError(t, err)
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, os.Getuid(), snap.Entries[0].UID)
	assert.False(t, snap.Entries[0].ChangeTime.IsZero())
}
