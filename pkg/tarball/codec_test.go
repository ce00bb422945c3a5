package tarball

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarpack/tarpack/pkg/model"
	"github.com/tarpack/tarpack/pkg/status"
)

type decoded struct {
	entry   model.FileEntry
	content []byte
}

func testMembers(t testing.TB) ([]model.FileEntry, map[string][]byte) {
	t.Helper()
	mod := time.Date(2024, 3, 1, 12, 30, 45, 123456789, time.UTC)
	chg := mod.Add(5 * time.Second)
	members := []model.FileEntry{
		{
			Path:       "docs/readme.txt",
			Kind:       model.KindFile,
			Size:       11,
			Mode:       0o640,
			ModTime:    mod,
			ChangeTime: chg,
			UID:        1000,
			GID:        1000,
			UserName:   "alice",
			GroupName:  "staff",
		},
		{
			Path:     "docs/secret.bin",
			Kind:     model.KindFile,
			Size:     4,
			Mode:     0o600,
			ModTime:  mod,
			ACLState: model.ACLPresent,
			ACL:      []byte{0x02, 0x00, 0x01, 0x00, 0x06, 0x00},
			LinkKey:  "1a:2b3c",
		},
		{
			Path:       "docs/link",
			Kind:       model.KindSymlink,
			Mode:       0o777,
			ModTime:    mod,
			LinkTarget: "readme.txt",
		},
	}
	contents := map[string][]byte{
		"docs/readme.txt": []byte("hello world"),
		"docs/secret.bin": []byte("s3cr"),
	}
	return members, contents
}

func openFrom(contents map[string][]byte) OpenFunc {
	return func(e model.FileEntry) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(contents[e.Path])), nil
	}
}

func decodeAll(t testing.TB, c *Codec, r io.Reader) []decoded {
	t.Helper()
	var out []decoded
	err := c.Decode(r, func(e model.FileEntry, content io.Reader) error {
		data, err := io.ReadAll(content)
		if err != nil {
			return err
		}
		out = append(out, decoded{entry: e, content: data})
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestCodecRoundTrip(t *testing.T) {
	members, contents := testMembers(t)
	c, err := New()
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	require.NoError(t, c.Encode(buf, members, openFrom(contents)))

	got := decodeAll(t, c, buf)
	require.Len(t, got, len(members))

	for i, d := range got {
		want := members[i]
		assert.Equal(t, want.Path, d.entry.Path)
		assert.Equal(t, want.Kind, d.entry.Kind)
		assert.Equal(t, want.Mode.Perm(), d.entry.Mode)
		assert.Equal(t, want.UID, d.entry.UID)
		assert.Equal(t, want.GID, d.entry.GID)
		assert.Equal(t, want.UserName, d.entry.UserName)
		assert.Equal(t, want.GroupName, d.entry.GroupName)
		assert.True(t, want.ModTime.Equal(d.entry.ModTime), "mtime for %s", want.Path)
	}

	assert.Equal(t, contents["docs/readme.txt"], got[0].content)
	assert.Equal(t, contents["docs/secret.bin"], got[1].content)

	assert.Equal(t, model.ACLPresent, got[1].entry.ACLState)
	assert.Equal(t, members[1].ACL, got[1].entry.ACL)
	assert.Equal(t, "1a:2b3c", got[1].entry.LinkKey)

	assert.Equal(t, "readme.txt", got[2].entry.LinkTarget)
	assert.Empty(t, got[2].content)
}

func TestCodecSparseRoundTrip(t *testing.T) {
	// 1MiB logical file with two data extents, hole in between and at
	// the tail
	data := append(bytes.Repeat([]byte{0xaa}, 4096), bytes.Repeat([]byte{0xbb}, 512)...)
	sparse := model.FileEntry{
		Path:    "vm/disk.img",
		Kind:    model.KindFile,
		Size:    1 << 20,
		Mode:    0o644,
		ModTime: time.Now().UTC(),
		Extents: []model.Extent{
			{Offset: 0, Length: 4096},
			{Offset: 65536, Length: 512},
		},
	}
	require.Equal(t, int64(len(data)), sparse.PhysicalSize())

	c, err := New()
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	open := func(model.FileEntry) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	require.NoError(t, c.Encode(buf, []model.FileEntry{sparse}, open))

	got := decodeAll(t, c, buf)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1<<20), got[0].entry.Size)
	assert.Equal(t, sparse.Extents, got[0].entry.Extents)
	assert.Equal(t, data, got[0].content)
}

func TestCodecCompression(t *testing.T) {
	members, contents := testMembers(t)
	for _, name := range []string{CompressionGzip, CompressionZstd} {
		t.Run(name, func(t *testing.T) {
			enc, err := New(Compression(name))
			require.NoError(t, err)

			buf := &bytes.Buffer{}
			require.NoError(t, enc.Encode(buf, members, openFrom(contents)))

			// the decoder detects the codec from the stream, not from
			// its own configuration
			dec, err := New()
			require.NoError(t, err)
			got := decodeAll(t, dec, bytes.NewReader(buf.Bytes()))
			require.Len(t, got, len(members))
			assert.Equal(t, contents["docs/readme.txt"], got[0].content)
		})
	}
}

func TestCodecSuffix(t *testing.T) {
	for name, suffix := range map[string]string{
		CompressionNone: ".tar",
		CompressionGzip: ".tar.gz",
		CompressionZstd: ".tar.zst",
	} {
		c, err := New(Compression(name))
		require.NoError(t, err)
		assert.Equal(t, suffix, c.Suffix())
	}

	_, err := New(Compression("lzma"))
	require.Error(t, err)
}

func TestCodecTruncated(t *testing.T) {
	members, contents := testMembers(t)
	c, err := New()
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	require.NoError(t, c.Encode(buf, members, openFrom(contents)))

	// cut the container mid-entry: decode must fail, never silently
	// yield a partial member list
	truncated := buf.Bytes()[:buf.Len()/2]
	err = c.Decode(bytes.NewReader(truncated), func(model.FileEntry, io.Reader) error {
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, status.ErrCodec)
}

func TestCodecContentShort(t *testing.T) {
	entry := model.FileEntry{
		Path: "a.txt",
		Kind: model.KindFile,
		Size: 100,
		Mode: 0o644,
	}
	c, err := New()
	require.NoError(t, err)

	open := func(model.FileEntry) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("way too short")), nil
	}
	err = c.Encode(io.Discard, []model.FileEntry{entry}, open)
	require.Error(t, err)
}

func TestParseExtents(t *testing.T) {
	extents, err := parseExtents("0:4096,65536:512")
	require.NoError(t, err)
	assert.Equal(t, []model.Extent{{Offset: 0, Length: 4096}, {Offset: 65536, Length: 512}}, extents)

	roundTrip := formatExtents(extents)
	assert.Equal(t, "0:4096,65536:512", roundTrip)

	for _, bad := range []string{
		"4096",         // no separator
		"x:10",         // bad offset
		"0:y",          // bad length
		"100:10,50:10", // overlapping, not monotonic
		"0:10,10:-1",   // negative length
	} {
		_, err := parseExtents(bad)
		assert.Error(t, err, "input %q", bad)
	}
}
