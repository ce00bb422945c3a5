package fingerprint

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarpack/tarpack/pkg/model"
)

func writeFile(t *testing.T, fs afero.Fs, path, content string, mtime time.Time) model.FileEntry {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0644))
	require.NoError(t, fs.Chtimes(path, mtime, mtime))
	return model.FileEntry{
		Path:    path,
		Kind:    model.KindFile,
		Size:    int64(len(content)),
		Mode:    0644,
		ModTime: mtime,
	}
}

func TestEntryFingerprintContent(t *testing.T) {
	fs := afero.NewMemMapFs()
	mtime := time.Now().Truncate(time.Second)
	a := writeFile(t, fs, "a.txt", "hello", mtime)
	b := writeFile(t, fs, "b.txt", "hello", mtime)
	c := writeFile(t, fs, "c.txt", "other", mtime)

	h := New(fs, "")
	fpA, err := h.Entry(&a)
	require.NoError(t, err)
	fpB, err := h.Entry(&b)
	require.NoError(t, err)
	fpC, err := h.Entry(&c)
	require.NoError(t, err)

	assert.Equal(t, fpA, fpB, "same content hashes equal")
	assert.NotEqual(t, fpA, fpC)
	assert.Equal(t, fpA, a.Fingerprint, "fingerprint is cached on the entry")
}

func TestEntryFingerprintSymlink(t *testing.T) {
	h := New(afero.NewMemMapFs(), "")
	link := model.FileEntry{Path: "l", Kind: model.KindSymlink, LinkTarget: "target"}
	fp, err := h.Entry(&link)
	require.NoError(t, err)
	assert.NotEmpty(t, fp)

	other := model.FileEntry{Path: "l2", Kind: model.KindSymlink, LinkTarget: "elsewhere"}
	fp2, err := h.Entry(&other)
	require.NoError(t, err)
	assert.NotEqual(t, fp, fp2)
}

func TestFastCompareReusesRecordedFingerprint(t *testing.T) {
	fs := afero.NewMemMapFs()
	mtime := time.Unix(1700000000, 0)
	entry := writeFile(t, fs, "data.bin", "0123456789", mtime)

	prev := map[string]*model.MemberRecord{
		"data.bin": {
			Path:        "data.bin",
			Kind:        model.KindFile,
			Size:        10,
			ModTimeNs:   mtime.UnixNano(),
			Fingerprint: "cafe",
		},
	}

	h := New(fs, "", WithMode(MtimeSizeThenHash), WithPrevious(prev))
	fp, err := h.Entry(&entry)
	require.NoError(t, err)
	assert.Equal(t, "cafe", fp, "unchanged size+mtime short-circuits hashing")

	// a touched file must be re-hashed
	touched := entry
	touched.Fingerprint = ""
	touched.ModTime = mtime.Add(time.Second)
	fp2, err := h.Entry(&touched)
	require.NoError(t, err)
	assert.NotEqual(t, "cafe", fp2)

	// always-hash ignores the recorded fingerprint
	fresh := entry
	fresh.Fingerprint = ""
	always := New(fs, "", WithMode(AlwaysHash), WithPrevious(prev))
	fp3, err := always.Entry(&fresh)
	require.NoError(t, err)
	assert.Equal(t, fp2, fp3)
}

func TestGroupFingerprint(t *testing.T) {
	members := []model.FileEntry{
		{Path: "a", Mode: 0644, Size: 1, Fingerprint: "aa"},
		{Path: "b", Mode: 0644, Size: 2, Fingerprint: "bb"},
	}
	base := GroupFingerprint(members)

	reordered := []model.FileEntry{members[1], members[0]}
	assert.NotEqual(t, base, GroupFingerprint(reordered), "ordering is part of group identity")

	chmodded := []model.FileEntry{members[0], members[1]}
	chmodded[1].Mode = 0600
	assert.NotEqual(t, base, GroupFingerprint(chmodded), "attribute changes invalidate the group")

	same := []model.FileEntry{members[0], members[1]}
	assert.Equal(t, base, GroupFingerprint(same))
}

func TestParseMode(t *testing.T) {
	m, ok := ParseMode("")
	require.True(t, ok)
	assert.Equal(t, MtimeSizeThenHash, m)

	_, ok = ParseMode("sometimes")
	assert.False(t, ok)
}
