package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathToTarballDeterminism(t *testing.T) {
	a := PathToTarball("docs#00000", ".tar.zst")
	b := PathToTarball("docs#00000", ".tar.zst")
	assert.Equal(t, a, b)
	assert.True(t, IsTarballPath(a))

	// different keys never collide on the embedded digest
	c := PathToTarball("docs#00001", ".tar.zst")
	assert.NotEqual(t, a, c)
}

func TestCompressionSuffix(t *testing.T) {
	for codec, want := range map[string]string{
		"":     ".tar",
		"none": ".tar",
		"gzip": ".tar.gz",
		"zstd": ".tar.zst",
	} {
		got, err := CompressionSuffix(codec)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := CompressionSuffix("lz4")
	require.Error(t, err)
}

func TestManifestPaths(t *testing.T) {
	assert.Equal(t, "manifests/current", PathToCurrentManifest())
	assert.Equal(t, "manifests/x.yaml", PathToManifest("x"))
	assert.False(t, IsTarballPath(PathToManifest("x")))
}

func TestSmallGroupKey(t *testing.T) {
	assert.Equal(t, "docs#00003", SmallGroupKey("docs", 3))
	assert.Equal(t, ".#00000", SmallGroupKey(".", 0))
}
