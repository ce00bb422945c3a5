package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/spf13/afero"
	"github.com/tarpack/tarpack/pkg/model"
	"github.com/tarpack/tarpack/pkg/scan"
	"github.com/tarpack/tarpack/pkg/status"
	storagestatus "github.com/tarpack/tarpack/pkg/storage/status"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RestoreFailure records one path or container that could not be
// restored.
type RestoreFailure struct {
	Path string
	Err  error
}

func (f RestoreFailure) String() string {
	return fmt.Sprintf("%s: %v", f.Path, f.Err)
}

// RestoreReport is the outcome of a Download run.
type RestoreReport struct {
	Files    int
	Dirs     int
	Links    int
	Failures []RestoreFailure

	ManifestID string
}

// Ok reports whether the restore fully succeeded.
func (r *RestoreReport) Ok() bool {
	return len(r.Failures) == 0
}

func (r *RestoreReport) String() string {
	s := fmt.Sprintf("restored %d files, %d dirs, %d links from manifest %s",
		r.Files, r.Dirs, r.Links, r.ManifestID)
	for _, f := range r.Failures {
		s += fmt.Sprintf("\nfailed: %s", f)
	}
	return s
}

// Download materializes the manifest in force under dest: every
// container decoded back to files with their recorded attributes,
// directories (including empty ones) recreated, hard link groups
// re-linked. Per-container failures are isolated and reported.
func (e *Engine) Download(ctx context.Context, dest string) (*RestoreReport, error) {
	m, err := e.manifests.Load(ctx)
	if err != nil {
		return nil, err
	}
	if m.IsEmpty() {
		return nil, storagestatus.ErrNotExists.Wrap(
			fmt.Errorf("remote %s holds no committed manifest", e.remote))
	}

	report := &RestoreReport{ManifestID: m.ID}
	var mu sync.Mutex
	fail := func(path string, err error) {
		e.l.Warn("restore failed", zap.String("path", path), zap.Error(err))
		mu.Lock()
		report.Failures = append(report.Failures, RestoreFailure{Path: path, Err: err})
		mu.Unlock()
	}

	if err := e.fs.MkdirAll(dest, 0o755); err != nil {
		return nil, err
	}
	for _, d := range m.Dirs {
		mode := d.Mode.Perm()
		if mode == 0 {
			mode = 0o755
		}
		if err := e.fs.MkdirAll(e.destPath(dest, d.Path), mode); err != nil {
			fail(d.Path, err)
			continue
		}
		report.Dirs++
	}

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i := range m.Groups {
		rec := &m.Groups[i]
		g.Go(func() error {
			n, err := e.restoreGroup(ctx, dest, rec)
			mu.Lock()
			report.Files += n
			mu.Unlock()
			if err != nil {
				fail(rec.Key, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return report, status.ErrInterrupted.Wrap(err)
	}

	for _, grp := range m.Links {
		if len(grp) < 2 {
			continue
		}
		linked, err := e.relink(dest, grp)
		report.Links += linked
		if err != nil {
			fail(grp[0], err)
		}
	}

	e.fixupDirs(dest, m.Dirs, fail)
	return report, nil
}

// restoreGroup fetches one container and materializes its members.
// Transient fetch failures retry; a malformed container is permanent.
func (e *Engine) restoreGroup(ctx context.Context, dest string, rec *model.GroupRecord) (int, error) {
	restored := 0
	operation := func() error {
		rdr, err := e.remote.Get(ctx, rec.RemoteID)
		if err != nil {
			if storagestatus.IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		defer rdr.Close()

		restored = 0
		err = e.codec.Decode(rdr, func(entry model.FileEntry, content io.Reader) error {
			if err := e.materialize(dest, &entry, content); err != nil {
				return err
			}
			restored++
			return nil
		})
		if err != nil {
			if storagestatus.IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}
	if err := backoff.Retry(operation, e.newBackOff(ctx)); err != nil {
		return restored, err
	}
	return restored, nil
}

// materialize writes one decoded entry under dest with its recorded
// attributes.
func (e *Engine) materialize(dest string, entry *model.FileEntry, content io.Reader) error {
	target := e.destPath(dest, entry.Path)
	if err := e.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	switch entry.Kind {
	case model.KindSymlink:
		linker, ok := e.fs.(afero.Linker)
		if !ok {
			return storagestatus.ErrNotSupported.Wrap(
				fmt.Errorf("filesystem cannot create symlink %q", entry.Path))
		}
		_ = e.fs.Remove(target)
		return linker.SymlinkIfPossible(entry.LinkTarget, target)

	case model.KindFile:
		if err := e.writeFile(target, entry, content); err != nil {
			return err
		}
	default:
		return fmt.Errorf("entry %q: unexpected kind %q in container", entry.Path, entry.Kind)
	}

	if err := e.fs.Chmod(target, entry.Mode.Perm()); err != nil {
		return err
	}
	if err := e.fs.Chtimes(target, entry.ModTime, entry.ModTime); err != nil {
		return err
	}
	// ownership restoration needs privilege; failure is expected for
	// unprivileged runs
	if err := e.fs.Chown(target, entry.UID, entry.GID); err != nil {
		e.l.Debug("cannot restore ownership", zap.String("path", entry.Path), zap.Error(err))
	}
	if entry.ACLState == model.ACLPresent && len(entry.ACL) > 0 && e.osBacked() {
		if err := scan.RestoreACL(target, entry.ACL); err != nil {
			e.l.Warn("cannot restore ACL", zap.String("path", entry.Path), zap.Error(err))
		}
	}
	return nil
}

func (e *Engine) writeFile(target string, entry *model.FileEntry, content io.Reader) error {
	f, err := e.fs.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, entry.Mode.Perm())
	if err != nil {
		return err
	}

	if entry.Extents == nil {
		n, err := io.Copy(f, content)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		if n != entry.Size {
			return status.ErrCodec.Wrap(
				fmt.Errorf("entry %q: decoded %d bytes, expected %d", entry.Path, n, entry.Size))
		}
		return nil
	}

	// sparse: extend to logical size, then place each data extent; the
	// gaps stay holes
	if err := f.Truncate(entry.Size); err != nil {
		_ = f.Close()
		return err
	}
	buf := make([]byte, 32*1024)
	for _, ext := range entry.Extents {
		if err := copyAt(f, content, ext, buf); err != nil {
			_ = f.Close()
			return status.ErrCodec.Wrap(fmt.Errorf("entry %q: %w", entry.Path, err))
		}
	}
	return f.Close()
}

func copyAt(w io.WriterAt, r io.Reader, ext model.Extent, buf []byte) error {
	var done int64
	for done < ext.Length {
		chunk := int64(len(buf))
		if remaining := ext.Length - done; remaining < chunk {
			chunk = remaining
		}
		n, err := io.ReadFull(r, buf[:chunk])
		if err != nil {
			return err
		}
		if _, err := w.WriteAt(buf[:n], ext.Offset+done); err != nil {
			return err
		}
		done += int64(n)
	}
	return nil
}

// relink rebuilds one hard link group: the first path is canonical, the
// rest become links to it.
func (e *Engine) relink(dest string, group []string) (int, error) {
	if !e.osBacked() {
		e.l.Debug("hard links not supported on this filesystem, leaving copies")
		return 0, nil
	}
	canonical := e.destPath(dest, group[0])
	linked := 0
	for _, path := range group[1:] {
		target := e.destPath(dest, path)
		if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
			return linked, err
		}
		if err := os.Link(canonical, target); err != nil {
			return linked, err
		}
		linked++
	}
	return linked, nil
}

// fixupDirs applies recorded directory attributes, children before
// parents so parent mtimes survive.
func (e *Engine) fixupDirs(dest string, dirs []model.DirRecord, fail func(string, error)) {
	ordered := append([]model.DirRecord(nil), dirs...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Path > ordered[j].Path })
	for _, d := range ordered {
		target := e.destPath(dest, d.Path)
		if d.Mode != 0 {
			if err := e.fs.Chmod(target, d.Mode.Perm()); err != nil {
				fail(d.Path, err)
				continue
			}
		}
		mtime := time.Unix(0, d.ModTimeNs)
		if d.ModTimeNs != 0 {
			if err := e.fs.Chtimes(target, mtime, mtime); err != nil {
				fail(d.Path, err)
				continue
			}
		}
		if err := e.fs.Chown(target, d.UID, d.GID); err != nil {
			e.l.Debug("cannot restore ownership", zap.String("path", d.Path), zap.Error(err))
		}
		if len(d.ACL) > 0 && e.osBacked() {
			if err := scan.RestoreACL(target, d.ACL); err != nil {
				e.l.Warn("cannot restore ACL", zap.String("path", d.Path), zap.Error(err))
			}
		}
	}
}

func (e *Engine) destPath(dest, rel string) string {
	return filepath.Join(dest, filepath.FromSlash(rel))
}

func (e *Engine) osBacked() bool {
	_, ok := e.fs.(*afero.OsFs)
	return ok
}
