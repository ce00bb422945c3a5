package reconcile

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarpack/tarpack/pkg/fingerprint"
	"github.com/tarpack/tarpack/pkg/model"
	"github.com/tarpack/tarpack/pkg/planner"
	"github.com/tarpack/tarpack/pkg/scan"
)

func planOver(t testing.TB, fs afero.Fs) ([]model.TarballGroup, *model.Snapshot) {
	t.Helper()
	snap, err := scan.New(fs).Snapshot(".")
	require.NoError(t, err)
	groups, err := planner.New(fingerprint.New(fs, ".")).Plan(snap)
	require.NoError(t, err)
	return groups, snap
}

func seedFs(t testing.TB, files map[string][]byte) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, name, content, 0o644))
	}
	return fs
}

func opTypes(plan *model.SyncPlan) []model.OpType {
	types := make([]model.OpType, len(plan.Operations))
	for i, op := range plan.Operations {
		types[i] = op.Type
	}
	return types
}

func TestDiffFirstRun(t *testing.T) {
	fs := seedFs(t, map[string][]byte{
		"a/one.txt": []byte("1"),
		"b/two.txt": []byte("2"),
	})
	groups, snap := planOver(t, fs)

	plan, err := New().Diff(groups, model.NewManifest(), snap)
	require.NoError(t, err)

	assert.Equal(t, []model.OpType{model.OpUpload, model.OpUpload}, opTypes(plan))
	assert.False(t, plan.IsNoop())
	require.Len(t, plan.Next.Groups, 2)
	for _, op := range plan.Operations {
		assert.True(t, model.IsTarballPath(op.RemoteID))
	}
	// directory attributes survive through the next manifest
	require.Len(t, plan.Next.Dirs, 2)
	assert.Equal(t, "a", plan.Next.Dirs[0].Path)
}

func TestDiffUnchangedIsAllSkip(t *testing.T) {
	fs := seedFs(t, map[string][]byte{
		"a/one.txt": []byte("1"),
		"a/two.txt": []byte("2"),
	})
	groups, snap := planOver(t, fs)

	r := New()
	first, err := r.Diff(groups, model.NewManifest(), snap)
	require.NoError(t, err)
	first.Next.ID = "previous"

	groups2, snap2 := planOver(t, fs)
	second, err := r.Diff(groups2, first.Next, snap2)
	require.NoError(t, err)

	assert.Equal(t, []model.OpType{model.OpSkip}, opTypes(second))
	assert.True(t, second.IsNoop())
	// the skipped group keeps its recorded remote object
	assert.Equal(t, first.Next.Groups[0].RemoteID, second.Operations[0].RemoteID)
}

func TestDiffContentChangeIsReplace(t *testing.T) {
	files := map[string][]byte{
		"a/one.txt": []byte("1"),
		"a/two.txt": []byte("2"),
	}
	fs := seedFs(t, files)
	groups, snap := planOver(t, fs)

	r := New()
	first, err := r.Diff(groups, model.NewManifest(), snap)
	require.NoError(t, err)
	first.Next.ID = "previous"

	require.NoError(t, afero.WriteFile(fs, "a/two.txt", []byte("changed"), 0o644))
	groups2, snap2 := planOver(t, fs)
	second, err := r.Diff(groups2, first.Next, snap2)
	require.NoError(t, err)

	require.Equal(t, []model.OpType{model.OpReplace}, opTypes(second))
	op := second.Operations[0]
	// same grouping key: the remote object is overwritten in place
	assert.Equal(t, first.Next.Groups[0].RemoteID, op.RemoteID)
	assert.Equal(t, op.RemoteID, op.OldRemoteID)
}

func TestDiffMemberDeletedIsReplace(t *testing.T) {
	fs := seedFs(t, map[string][]byte{
		"a/one.txt":   []byte("1"),
		"a/two.txt":   []byte("2"),
		"a/three.txt": []byte("3"),
	})
	groups, snap := planOver(t, fs)

	r := New()
	first, err := r.Diff(groups, model.NewManifest(), snap)
	require.NoError(t, err)
	first.Next.ID = "previous"

	require.NoError(t, fs.Remove("a/two.txt"))
	groups2, snap2 := planOver(t, fs)
	second, err := r.Diff(groups2, first.Next, snap2)
	require.NoError(t, err)

	// deleting one member of an aggregated group replaces the group's
	// container, it does not delete it
	require.Equal(t, []model.OpType{model.OpReplace}, opTypes(second))
	assert.Equal(t, []string{"a/one.txt", "a/three.txt"}, second.Operations[0].Group.MemberPaths())
}

func TestDiffDepartedGroupIsDelete(t *testing.T) {
	fs := seedFs(t, map[string][]byte{
		"a/one.txt": []byte("1"),
		"b/two.txt": []byte("2"),
	})
	groups, snap := planOver(t, fs)

	r := New()
	first, err := r.Diff(groups, model.NewManifest(), snap)
	require.NoError(t, err)
	first.Next.ID = "previous"

	var removedRemote string
	for _, g := range first.Next.Groups {
		if g.Key == model.SmallGroupKey("b", 0) {
			removedRemote = g.RemoteID
		}
	}
	require.NotEmpty(t, removedRemote)

	require.NoError(t, fs.Remove("b/two.txt"))
	require.NoError(t, fs.RemoveAll("b"))
	groups2, snap2 := planOver(t, fs)
	second, err := r.Diff(groups2, first.Next, snap2)
	require.NoError(t, err)

	types := opTypes(second)
	require.Equal(t, []model.OpType{model.OpSkip, model.OpDelete}, types)
	assert.Equal(t, removedRemote, second.Operations[1].OldRemoteID)
	require.Len(t, second.Next.Groups, 1)
}

func TestDiffCodecSuffix(t *testing.T) {
	fs := seedFs(t, map[string][]byte{"a/one.txt": []byte("1")})
	groups, snap := planOver(t, fs)

	plan, err := New(Codec("zstd"), FastCompare("mtime-size")).Diff(groups, model.NewManifest(), snap)
	require.NoError(t, err)
	require.Len(t, plan.Operations, 1)
	assert.Contains(t, plan.Operations[0].RemoteID, ".tar.zst")
	assert.Equal(t, "zstd", plan.Next.Codec)
	assert.Equal(t, "mtime-size", plan.Next.FastCompare)

	_, err = New(Codec("lzma")).Diff(groups, model.NewManifest(), snap)
	require.Error(t, err)
}
