// Package fingerprint computes content and group fingerprints.
//
// Content fingerprints are blake2b digests over file content (symlinks
// hash their target). Group fingerprints chain the member identities so
// that any content, attribute or ordering change within a group is
// detected by a single comparison.
package fingerprint

import (
	"encoding/binary"
	"encoding/hex"
	"io"

	blake2b "github.com/minio/blake2b-simd"
	"github.com/spf13/afero"
	"github.com/tarpack/tarpack/pkg/model"
)

// Mode selects how entry fingerprints are derived on incremental runs.
type Mode string

const (
	// AlwaysHash re-reads and hashes every file on every run
	AlwaysHash Mode = "always-hash"
	// MtimeSizeThenHash reuses the fingerprint recorded in the previous
	// manifest when size and mtime are unchanged, avoiding re-reads of
	// large unchanged files
	MtimeSizeThenHash Mode = "mtime-size"
)

// ParseMode validates a mode name from configuration.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case AlwaysHash, MtimeSizeThenHash:
		return Mode(s), true
	case "":
		return MtimeSizeThenHash, true
	default:
		return "", false
	}
}

const readBuffer = 256 * 1024

// Option configures a Hasher
type Option func(*Hasher)

// WithMode sets the fast-compare mode
func WithMode(m Mode) Option {
	return func(h *Hasher) {
		h.mode = m
	}
}

// WithPrevious supplies the previous manifest's member records, enabling
// the mtime+size shortcut
func WithPrevious(prev map[string]*model.MemberRecord) Option {
	return func(h *Hasher) {
		h.prev = prev
	}
}

// Hasher computes entry fingerprints against a filesystem.
type Hasher struct {
	fs   afero.Fs
	root string
	mode Mode
	prev map[string]*model.MemberRecord
}

// New creates a Hasher reading entry content from root on fs.
func New(fs afero.Fs, root string, opts ...Option) *Hasher {
	h := &Hasher{
		fs:   fs,
		root: root,
		mode: MtimeSizeThenHash,
	}
	for _, apply := range opts {
		apply(h)
	}
	return h
}

// Entry returns the content fingerprint for a file or symlink, caching
// the result on the entry. Directories have no content fingerprint.
func (h *Hasher) Entry(e *model.FileEntry) (string, error) {
	if e.Fingerprint != "" {
		return e.Fingerprint, nil
	}
	switch e.Kind {
	case model.KindSymlink:
		e.Fingerprint = hexDigest([]byte(e.LinkTarget))
		return e.Fingerprint, nil
	case model.KindFile:
		// fall through
	default:
		return "", nil
	}

	if h.mode == MtimeSizeThenHash {
		if rec, ok := h.prev[e.Path]; ok &&
			rec.Kind == e.Kind &&
			rec.Size == e.Size &&
			rec.ModTimeNs == e.ModTime.UnixNano() {
			e.Fingerprint = rec.Fingerprint
			return e.Fingerprint, nil
		}
	}

	f, err := h.fs.Open(joinRoot(h.root, e.Path))
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher := blake2b.New512()
	buf := make([]byte, readBuffer)
	if _, err := io.CopyBuffer(hasher, f, buf); err != nil {
		return "", err
	}
	e.Fingerprint = hex.EncodeToString(hasher.Sum(nil))
	return e.Fingerprint, nil
}

// Group computes the group fingerprint over the canonical member
// sequence. Each member contributes its path, mode, ownership, logical
// size and content fingerprint, so attribute-only changes invalidate the
// group just as content changes do.
func (h *Hasher) Group(members []model.FileEntry) string {
	return GroupFingerprint(members)
}

// GroupFingerprint is the stateless form of Group.
func GroupFingerprint(members []model.FileEntry) string {
	hasher := blake2b.New512()
	var scratch [8]byte
	put := func(b []byte) {
		binary.LittleEndian.PutUint64(scratch[:], uint64(len(b)))
		_, _ = hasher.Write(scratch[:])
		_, _ = hasher.Write(b)
	}
	for i := range members {
		m := &members[i]
		put([]byte(m.Path))
		binary.LittleEndian.PutUint64(scratch[:], uint64(m.Mode))
		_, _ = hasher.Write(scratch[:])
		binary.LittleEndian.PutUint64(scratch[:], uint64(m.UID)<<32|uint64(uint32(m.GID)))
		_, _ = hasher.Write(scratch[:])
		binary.LittleEndian.PutUint64(scratch[:], uint64(m.Size))
		_, _ = hasher.Write(scratch[:])
		put([]byte(m.Fingerprint))
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

func hexDigest(data []byte) string {
	h := blake2b.Sum512(data)
	return hex.EncodeToString(h[:])
}

func joinRoot(root, rel string) string {
	if root == "" || root == "." {
		return rel
	}
	return root + "/" + rel
}
