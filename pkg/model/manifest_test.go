package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureManifest() *Manifest {
	m := NewManifest()
	m.ID = "20260101T000000.000000000Z-a1b2"
	m.Codec = "zstd"
	m.FastCompare = "mtime-size"
	m.Timestamp = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.Groups = []GroupRecord{
		{
			Key:         "docs#00000",
			Class:       ClassSmall,
			Fingerprint: "feed",
			RemoteID:    PathToTarball("docs#00000", ".tar.zst"),
			Members: []MemberRecord{
				{Path: "docs/a.txt", Kind: KindFile, Size: 3, Mode: 0644, ModTimeNs: 42, Fingerprint: "aa"},
				{Path: "docs/b.txt", Kind: KindFile, Size: 5, Mode: 0600, ModTimeNs: 43, Fingerprint: "bb"},
			},
		},
		{
			Key:         "big.bin",
			Class:       ClassStandalone,
			Fingerprint: "dead",
			RemoteID:    PathToTarball("big.bin", ".tar.zst"),
			Members: []MemberRecord{
				{Path: "big.bin", Kind: KindFile, Size: 1 << 20, Mode: 0644, ModTimeNs: 44, Fingerprint: "cc"},
			},
		},
	}
	m.Dirs = []DirRecord{{Path: "docs", Mode: 0755, ModTimeNs: 41}}
	return m
}

func TestManifestRoundTrip(t *testing.T) {
	m := fixtureManifest()
	data, err := MarshalManifest(m)
	require.NoError(t, err)

	back, err := UnmarshalManifest(data)
	require.NoError(t, err)
	assert.Equal(t, m, back)
	assert.False(t, back.IsEmpty())
}

func TestManifestVersionGate(t *testing.T) {
	m := fixtureManifest()
	m.Version = CurrentManifestVersion + 1
	data, err := MarshalManifest(m)
	require.NoError(t, err)

	_, err = UnmarshalManifest(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than supported")
}

func TestManifestIndexes(t *testing.T) {
	m := fixtureManifest()

	groups := m.GroupIndex()
	require.Contains(t, groups, "docs#00000")
	assert.Equal(t, []string{"docs/a.txt", "docs/b.txt"}, groups["docs#00000"].MemberPaths())

	members := m.MemberIndex()
	require.Contains(t, members, "big.bin")
	assert.Equal(t, "cc", members["big.bin"].Fingerprint)

	ids := m.RemoteIDs()
	assert.Len(t, ids, 2)
	assert.True(t, IsTarballPath(ids[0]))
}

func TestEmptyManifest(t *testing.T) {
	m := NewManifest()
	assert.True(t, m.IsEmpty())
	assert.True(t, (*Manifest)(nil).IsEmpty())
	assert.Empty(t, m.GroupIndex())
}
