// Package scan produces consistent snapshots of a directory tree as
// normalized FileEntry records.
//
// Attribute extraction is best effort per entry: an object whose
// metadata cannot be read is excluded from the snapshot and reported,
// never fatal to the run.
package scan

import (
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"github.com/tarpack/tarpack/pkg/model"
	"github.com/tarpack/tarpack/pkg/status"
	"go.uber.org/zap"
)

// Option configures a Scanner
type Option func(*Scanner)

// FollowSymlinks makes the scanner record symlinked files as regular
// files. Symlinked directories are still not traversed.
func FollowSymlinks(follow bool) Option {
	return func(s *Scanner) {
		s.followSymlinks = follow
	}
}

// WithACLs enables capture of POSIX ACL blobs where the platform
// supports them. On platforms without ACL support, entries are flagged
// ACLUnsupported instead of silently losing the attribute.
func WithACLs(enabled bool) Option {
	return func(s *Scanner) {
		s.captureACLs = enabled
	}
}

// WithSparseDetection enables sparse extent mapping for regular files.
// Detection requires a real OS filesystem; elsewhere files are dense.
func WithSparseDetection(enabled bool) Option {
	return func(s *Scanner) {
		s.detectSparse = enabled
	}
}

// Exclude adds shell patterns for paths to leave out of the snapshot.
// A pattern matching a directory excludes its whole subtree.
func Exclude(patterns ...string) Option {
	return func(s *Scanner) {
		s.excludes = append(s.excludes, patterns...)
	}
}

// Logger sets a logger for this scanner
func Logger(l *zap.Logger) Option {
	return func(s *Scanner) {
		s.l = l
	}
}

// Scanner enumerates directory trees into model.Snapshot values.
type Scanner struct {
	fs             afero.Fs
	followSymlinks bool
	captureACLs    bool
	detectSparse   bool
	excludes       []string
	l              *zap.Logger
	names          *nameCache
}

// New creates a Scanner over the given filesystem. A nil fs defaults to
// the OS filesystem.
func New(fs afero.Fs, opts ...Option) *Scanner {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	s := &Scanner{
		fs:    fs,
		l:     zap.NewNop(),
		names: newNameCache(),
	}
	for _, apply := range opts {
		apply(s)
	}
	return s
}

// Snapshot walks root and returns its normalized entries in
// lexicographic path order. The walk is sequential over one consistent
// view; concurrent external mutation is a tolerated race (an entry is
// captured in either its old or new state, never torn).
func (s *Scanner) Snapshot(root string) (*model.Snapshot, error) {
	snap := &model.Snapshot{
		Root:  root,
		Links: map[string][]string{},
	}

	rootInfo, err := s.fs.Stat(root)
	if err != nil {
		return nil, status.ErrAttributeRead.Wrap(err)
	}
	if !rootInfo.IsDir() {
		return nil, status.ErrAttributeRead.Wrap(os.ErrInvalid)
	}

	err = afero.Walk(s.fs, root, func(walkPath string, info os.FileInfo, walkErr error) error {
		rel := s.relPath(root, walkPath)
		if walkErr != nil {
			if rel == "." {
				return walkErr
			}
			s.skip(snap, rel, walkErr)
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if rel == "." {
			return nil
		}
		if s.excluded(rel) {
			s.l.Debug("excluded", zap.String("path", rel))
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		entry, err := s.normalize(root, rel, info)
		if err != nil {
			s.skip(snap, rel, err)
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		switch entry.Kind {
		case model.KindDir:
			snap.Dirs = append(snap.Dirs, entry)
		default:
			if entry.LinkKey != "" {
				snap.Links[entry.LinkKey] = append(snap.Links[entry.LinkKey], entry.Path)
			}
			snap.Entries = append(snap.Entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, status.ErrAttributeRead.Wrap(err)
	}

	sort.Slice(snap.Entries, func(i, j int) bool { return snap.Entries[i].Path < snap.Entries[j].Path })
	sort.Slice(snap.Dirs, func(i, j int) bool { return snap.Dirs[i].Path < snap.Dirs[j].Path })

	s.l.Debug("snapshot complete",
		zap.String("root", root),
		zap.Int("entries", len(snap.Entries)),
		zap.Int("dirs", len(snap.Dirs)),
		zap.Int("skipped", len(snap.Skipped)),
	)
	return snap, nil
}

func (s *Scanner) skip(snap *model.Snapshot, rel string, cause error) {
	s.l.Warn("skipping entry", zap.String("path", rel), zap.Error(cause))
	snap.Skipped = append(snap.Skipped, model.SkippedEntry{
		Path:  rel,
		Cause: status.ErrAttributeRead.Wrap(cause),
	})
}

func (s *Scanner) relPath(root, walkPath string) string {
	rel, err := filepath.Rel(root, walkPath)
	if err != nil {
		return filepath.ToSlash(walkPath)
	}
	return filepath.ToSlash(rel)
}

func (s *Scanner) excluded(rel string) bool {
	for _, pattern := range s.excludes {
		if ok, _ := path.Match(pattern, rel); ok {
			return true
		}
		if ok, _ := path.Match(pattern, path.Base(rel)); ok {
			return true
		}
	}
	return false
}

// normalize builds the attribute record for one filesystem object.
func (s *Scanner) normalize(root, rel string, info os.FileInfo) (model.FileEntry, error) {
	entry := model.FileEntry{
		Path:    rel,
		Size:    info.Size(),
		Mode:    info.Mode().Perm(),
		ModTime: info.ModTime(),
	}

	mode := info.Mode()
	switch {
	case mode.IsDir():
		entry.Kind = model.KindDir
		entry.Size = 0
	case mode&os.ModeSymlink != 0:
		target, err := s.readlink(filepath.Join(root, rel))
		if err != nil {
			return entry, err
		}
		if s.followSymlinks {
			resolved, err := s.fs.Stat(filepath.Join(root, rel))
			if err != nil {
				return entry, err
			}
			if resolved.IsDir() {
				// a followed directory symlink is still not traversed
				entry.Kind = model.KindSymlink
				entry.LinkTarget = target
				entry.Size = 0
				break
			}
			entry.Kind = model.KindFile
			entry.Size = resolved.Size()
			entry.ModTime = resolved.ModTime()
			entry.Mode = resolved.Mode().Perm()
			break
		}
		entry.Kind = model.KindSymlink
		entry.LinkTarget = target
		entry.Size = 0
	case mode.IsRegular():
		entry.Kind = model.KindFile
	default:
		// sockets, devices, fifos are not synced
		return entry, os.ErrInvalid
	}

	s.fillOwnership(&entry, info)

	if s.captureACLs && entry.Kind != model.KindSymlink {
		s.fillACL(&entry, filepath.Join(root, rel))
	}
	if s.detectSparse && entry.Kind == model.KindFile {
		s.fillExtents(&entry, filepath.Join(root, rel), info)
	}
	return entry, nil
}

func (s *Scanner) readlink(fullPath string) (string, error) {
	lr, ok := s.fs.(afero.LinkReader)
	if !ok {
		return "", status.ErrAttributeRead.Wrap(afero.ErrNoReadlink)
	}
	target, err := lr.ReadlinkIfPossible(fullPath)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(target, "\x00"), nil
}

// isOsBacked reports whether the scanner can reach real OS file
// descriptors, which platform attribute probes require.
func (s *Scanner) isOsBacked() bool {
	_, ok := s.fs.(*afero.OsFs)
	return ok
}
