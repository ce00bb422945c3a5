// Package model defines the data types shared across the sync engine:
// filesystem entries, tarball groups, the durable manifest and sync
// plans, together with the remote object naming scheme.
package model

import (
	"os"
	"sort"
	"time"
)

// Kind discriminates the filesystem entry types the engine handles.
type Kind string

const (
	// KindFile is a regular file
	KindFile Kind = "file"
	// KindDir is a directory
	KindDir Kind = "dir"
	// KindSymlink is a symbolic link (never followed by the codec)
	KindSymlink Kind = "symlink"
)

// ACLState qualifies the ACL attribute of an entry.
type ACLState string

const (
	// ACLNone means the entry carries no ACL beyond its permission bits
	ACLNone ACLState = ""
	// ACLPresent means ACL was captured and round-trips through the codec
	ACLPresent ACLState = "present"
	// ACLUnsupported means the platform could not provide ACL data; the
	// decoded record carries this flag rather than silently dropping it
	ACLUnsupported ACLState = "unsupported"
)

// Extent is one data region of a sparse file. Regions between extents are
// holes and decode back to unallocated ranges, not written zeros.
type Extent struct {
	Offset int64 `json:"offset" yaml:"offset"`
	Length int64 `json:"length" yaml:"length"`
}

// FileEntry is the normalized record for one filesystem object.
type FileEntry struct {
	// Path is relative to the sync root, slash-normalized, unique within
	// one snapshot
	Path string
	Kind Kind
	// Size is the logical size in bytes (sparse files report their
	// logical extent, not allocated blocks)
	Size       int64
	Mode       os.FileMode
	ModTime    time.Time
	ChangeTime time.Time
	UID        int
	GID        int
	UserName   string
	GroupName  string
	// LinkTarget is the symlink destination for KindSymlink entries
	LinkTarget string
	ACLState   ACLState
	// ACL is the opaque access ACL blob as read from the platform; it is
	// round-tripped byte for byte, never interpreted
	ACL []byte
	// Extents lists the data regions of a sparse file; nil means dense
	Extents []Extent
	// LinkKey groups hard links: entries sharing a LinkKey refer to the
	// same inode. Empty for entries with a single link.
	LinkKey string

	// Fingerprint caches the content fingerprint (hex); set lazily by
	// pkg/fingerprint and defined only for files and symlinks
	Fingerprint string
}

// PhysicalSize is the number of content bytes the codec stores for this
// entry: the sum of data extents for sparse files, Size otherwise.
func (e *FileEntry) PhysicalSize() int64 {
	if e.Extents == nil {
		return e.Size
	}
	var n int64
	for _, ext := range e.Extents {
		n += ext.Length
	}
	return n
}

// SkippedEntry reports a filesystem object excluded from a snapshot.
type SkippedEntry struct {
	Path  string
	Cause error
}

// Snapshot is one consistent enumeration of a directory tree.
type Snapshot struct {
	Root string
	// Entries holds files and symlinks in lexicographic path order
	Entries []FileEntry
	// Dirs holds every directory (including empty ones) in lexicographic
	// path order, for attribute preservation
	Dirs []FileEntry
	// Links groups paths by inode for entries with multiple hard links,
	// keyed by LinkKey; each group is path-sorted
	Links map[string][]string
	// Skipped lists entries excluded because their attributes could not
	// be read
	Skipped []SkippedEntry
}

// SortedLinkGroups returns the hard link groups as a deterministic slice.
func (s *Snapshot) SortedLinkGroups() [][]string {
	keys := make([]string, 0, len(s.Links))
	for k, g := range s.Links {
		if len(g) > 1 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	groups := make([][]string, 0, len(keys))
	for _, k := range keys {
		g := append([]string(nil), s.Links[k]...)
		sort.Strings(g)
		groups = append(groups, g)
	}
	return groups
}
