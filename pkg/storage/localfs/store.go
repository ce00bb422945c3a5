// Package localfs provides a local file system backed implementation of
// the storage.Store capability interface.
//
// Put is implemented by staging the object then Rename()ing it into
// place: on POSIX filesystems this makes object replacement atomic, which
// the manifest store relies upon for its current-version pointer.
package localfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"github.com/tarpack/tarpack/pkg/storage"
	"github.com/tarpack/tarpack/pkg/storage/status"
)

// staging area for in-flight Put()s, renamed into place on completion
const putStageName = ".put-stage"

// New creates a local file system backed object store rooted at the given
// afero filesystem. A nil fs defaults to the OS filesystem rooted at
// .tarpack/objects.
func New(fs afero.Fs) (storage.Store, error) {
	if fs == nil {
		fs = afero.NewBasePathFs(afero.NewOsFs(), filepath.Join(".tarpack", "objects"))
	}
	if err := fs.MkdirAll(putStageName, 0700); err != nil {
		return nil, fmt.Errorf("ensuring put staging directory: %w", err)
	}
	return &localFS{fs: fs}, nil
}

type localFS struct {
	fs afero.Fs
}

func maybeInvalidKey(key string) error {
	key = strings.TrimLeft(filepath.ToSlash(key), "/")
	if key == "" {
		return status.ErrInvalidResource
	}
	for _, component := range strings.Split(key, "/") {
		if component == putStageName || component == ".." {
			return status.ErrInvalidResource.Wrap(fmt.Errorf("key %q conflicts with reserved name %q", key, component))
		}
	}
	return nil
}

func (l *localFS) Has(ctx context.Context, key string) (bool, error) {
	if err := maybeInvalidKey(key); err != nil {
		return false, err
	}
	fi, err := l.fs.Stat(key)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !fi.IsDir(), nil
}

func (l *localFS) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	has, err := l.Has(ctx, key)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, status.ErrNotExists
	}
	return l.fs.Open(key)
}

func (l *localFS) Put(ctx context.Context, key string, source io.Reader, exclusive bool) error {
	if err := maybeInvalidKey(key); err != nil {
		return err
	}
	if exclusive {
		has, err := l.Has(ctx, key)
		if err != nil {
			return err
		}
		if has {
			return status.ErrExists
		}
	}
	stageKey := filepath.Join(putStageName, strings.ReplaceAll(key, "/", "_"))
	if err := l.writeStaged(stageKey, source); err != nil {
		return err
	}
	// Rename() doesn't create directories automatically
	if dir := filepath.Dir(key); dir != "" {
		if err := l.fs.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("ensuring directories for %q: %w", key, err)
		}
	}
	return l.fs.Rename(stageKey, key)
}

func (l *localFS) writeStaged(stageKey string, source io.Reader) error {
	target, err := l.fs.OpenFile(stageKey, os.O_CREATE|os.O_WRONLY|os.O_TRUNC|os.O_SYNC, 0600)
	if err != nil {
		return fmt.Errorf("create staged record for %q: %w", stageKey, err)
	}
	if _, err = storage.PipeIO(target, source); err != nil {
		_ = target.Close()
		return fmt.Errorf("write staged record for %q: %w", stageKey, err)
	}
	return target.Close()
}

func (l *localFS) Delete(ctx context.Context, key string) error {
	if err := maybeInvalidKey(key); err != nil {
		return err
	}
	if err := l.fs.Remove(key); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %q: %w", key, err)
	}
	return nil
}

func (l *localFS) Keys(ctx context.Context) ([]string, error) {
	return l.keys("")
}

func (l *localFS) keys(prefix string) ([]string, error) {
	const root = "."
	var res []string
	err := afero.Walk(l.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		key := filepath.ToSlash(path)
		if strings.HasPrefix(key, putStageName) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if prefix == "" || strings.HasPrefix(key, prefix) {
			res = append(res, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(res)
	return res, nil
}

// KeysPrefix lists keys under a prefix. The pagination token is the last
// key of the previous page. The delimiter argument is accepted for
// interface parity and ignored: local listings are always recursive.
func (l *localFS) KeysPrefix(ctx context.Context, token, prefix, delimiter string, count int) ([]string, string, error) {
	all, err := l.keys(prefix)
	if err != nil {
		return nil, "", err
	}
	start := 0
	if token != "" {
		start = sort.SearchStrings(all, token)
		if start < len(all) && all[start] == token {
			start++
		}
	}
	if count <= 0 || start+count >= len(all) {
		return all[start:], "", nil
	}
	page := all[start : start+count]
	return page, page[len(page)-1], nil
}

func (l *localFS) Size(ctx context.Context, key string) (int64, error) {
	if err := maybeInvalidKey(key); err != nil {
		return 0, err
	}
	fi, err := l.fs.Stat(key)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, status.ErrNotExists
		}
		return 0, err
	}
	return fi.Size(), nil
}

func (l *localFS) String() string {
	const localfs = "localfs"
	switch fs := l.fs.(type) {
	case *afero.BasePathFs:
		pp, err := fs.RealPath("")
		if err != nil {
			return localfs
		}
		return localfs + "@" + pp
	default:
		return localfs
	}
}
