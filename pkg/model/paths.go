package model

import (
	"encoding/hex"
	"fmt"
	"strings"

	blake2b "github.com/minio/blake2b-simd"
)

// Remote namespace layout. Data containers and manifest records live
// under reserved prefixes so data listings never confuse one for the
// other.
const (
	tarballPrefix  = "tarballs/"
	manifestPrefix = "manifests/"

	// remoteIDLen is the hex length of the group-key digest embedded in
	// container object names
	remoteIDLen = 32
)

// CompressionSuffix maps a codec name to the container object suffix.
func CompressionSuffix(codec string) (string, error) {
	switch codec {
	case "", "none":
		return ".tar", nil
	case "gzip":
		return ".tar.gz", nil
	case "zstd":
		return ".tar.zst", nil
	default:
		return "", fmt.Errorf("unknown compression codec %q", codec)
	}
}

// PathToTarball derives the remote object id for a group key. The id is
// a digest of the key alone: a group whose content changes keeps its
// object (Replace overwrites in place), while a membership topology
// change produces a different key and hence a fresh object.
func PathToTarball(groupKey, suffix string) string {
	h := blake2b.Sum256([]byte(groupKey))
	return tarballPrefix + hex.EncodeToString(h[:])[:remoteIDLen] + suffix
}

// PathToManifest locates one manifest version object.
func PathToManifest(id string) string {
	return manifestPrefix + id + ".yaml"
}

// PathToCurrentManifest is the current-version pointer object: its body
// is the id of the manifest in force.
func PathToCurrentManifest() string {
	return manifestPrefix + "current"
}

// TarballPrefix is the listing prefix for container objects.
func TarballPrefix() string {
	return tarballPrefix
}

// IsTarballPath reports whether a remote key names a container object.
func IsTarballPath(key string) bool {
	return strings.HasPrefix(key, tarballPrefix)
}
