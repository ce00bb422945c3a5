// Package manifest persists the durable sync manifest in the remote
// store and guards its atomic commit.
//
// Two kinds of objects live under the manifest namespace: immutable
// version objects, one per committed manifest, and a single mutable
// pointer object naming the version in force. A run loads the pointed-to
// manifest, plans against it, and commits its successor by writing a new
// version object and swinging the pointer. The pointer is re-read just
// before the swing: if another run committed in between, the commit
// fails with status.ErrManifestDrift instead of silently clobbering it.
package manifest

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	blake2b "github.com/minio/blake2b-simd"
	"github.com/tarpack/tarpack/pkg/errors"
	"github.com/tarpack/tarpack/pkg/model"
	"github.com/tarpack/tarpack/pkg/status"
	"github.com/tarpack/tarpack/pkg/storage"
	storagestatus "github.com/tarpack/tarpack/pkg/storage/status"
	"go.uber.org/zap"
)

// Option configures a manifest Store
type Option func(*Store)

// Logger sets a logger for this store
func Logger(l *zap.Logger) Option {
	return func(s *Store) {
		s.l = l
	}
}

// Store reads and commits manifests against a remote object store.
type Store struct {
	remote storage.Store
	l      *zap.Logger

	// baseID is the manifest id observed by the last Load; the commit
	// pointer swing is conditional on it
	baseID string
	loaded bool
}

// New builds a manifest Store over the given remote.
func New(remote storage.Store, opts ...Option) *Store {
	s := &Store{
		remote: remote,
		l:      zap.NewNop(),
	}
	for _, apply := range opts {
		apply(s)
	}
	return s
}

// Load fetches the manifest currently in force. A remote with no
// manifest yet yields an empty manifest: the first-run state, not an
// error. A pointer naming a missing version object is drift.
func (s *Store) Load(ctx context.Context) (*model.Manifest, error) {
	id, err := s.currentID(ctx)
	if err != nil {
		return nil, err
	}
	if id == "" {
		s.baseID = ""
		s.loaded = true
		s.l.Debug("no manifest at remote, starting empty")
		return model.NewManifest(), nil
	}

	m, err := s.fetch(ctx, id)
	if err != nil {
		if errors.Is(err, storagestatus.ErrNotExists) {
			return nil, status.ErrManifestDrift.Wrap(
				fmt.Errorf("current pointer names manifest %q but no such object exists", id))
		}
		return nil, err
	}
	s.baseID = id
	s.loaded = true
	s.l.Debug("loaded manifest", zap.String("id", id), zap.Int("groups", len(m.Groups)))
	return m, nil
}

// Fetch retrieves one manifest version by id, without touching the
// loaded base.
func (s *Store) Fetch(ctx context.Context, id string) (*model.Manifest, error) {
	return s.fetch(ctx, id)
}

// Commit persists m as the new manifest in force. The commit is
// conditional: if the current pointer no longer matches the manifest
// this store loaded, another run has committed since and the commit
// fails with status.ErrManifestDrift. Any write failure surfaces as
// status.ErrManifestCommit; the previously committed manifest remains
// in force.
func (s *Store) Commit(ctx context.Context, m *model.Manifest) error {
	if !s.loaded {
		return status.ErrManifestCommit.Wrap(
			errors.New("commit requires a prior load"))
	}

	m.Version = model.CurrentManifestVersion
	m.Parent = s.baseID
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	m.ID = ""
	body, err := model.MarshalManifest(m)
	if err != nil {
		return status.ErrManifestCommit.Wrap(err)
	}
	m.ID = manifestID(body)

	body, err = model.MarshalManifest(m)
	if err != nil {
		return status.ErrManifestCommit.Wrap(err)
	}

	// re-check the pointer as late as possible: a concurrent commit
	// since our load must win, not be overwritten
	current, err := s.currentID(ctx)
	if err != nil {
		return status.ErrManifestCommit.Wrap(err)
	}
	if current != s.baseID {
		return status.ErrManifestDrift.Wrap(
			fmt.Errorf("manifest %q was committed concurrently (loaded %q)", current, s.baseID))
	}

	key := model.PathToManifest(m.ID)
	err = s.remote.Put(ctx, key, bytes.NewReader(body), true)
	if err != nil && !errors.Is(err, storagestatus.ErrExists) {
		return status.ErrManifestCommit.Wrap(err)
	}

	if err = s.remote.Put(ctx, model.PathToCurrentManifest(), strings.NewReader(m.ID), false); err != nil {
		return status.ErrManifestCommit.Wrap(err)
	}
	s.l.Info("committed manifest",
		zap.String("id", m.ID),
		zap.String("parent", m.Parent),
		zap.Int("groups", len(m.Groups)),
	)
	s.baseID = m.ID
	return nil
}

// Report is the outcome of a manifest-against-remote consistency check.
type Report struct {
	// Missing lists container objects the manifest references but the
	// remote does not hold. Any entry means drift.
	Missing []string
	// Orphaned lists container objects present at the remote but not
	// referenced by the manifest. Orphans waste space but do not affect
	// correctness.
	Orphaned []string
}

// InSync reports whether the manifest's references all resolve.
func (r *Report) InSync() bool {
	return len(r.Missing) == 0
}

// Verify cross-checks the manifest's container references against the
// remote's actual container listing.
func (s *Store) Verify(ctx context.Context, m *model.Manifest) (*Report, error) {
	keys, err := storage.AllKeysPrefix(ctx, s.remote, model.TarballPrefix())
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(keys))
	for _, k := range keys {
		present[k] = true
	}

	report := &Report{}
	referenced := make(map[string]bool, len(m.Groups))
	for _, id := range m.RemoteIDs() {
		referenced[id] = true
		if !present[id] {
			report.Missing = append(report.Missing, id)
		}
	}
	for _, k := range keys {
		if !referenced[k] {
			report.Orphaned = append(report.Orphaned, k)
		}
	}
	return report, nil
}

func (s *Store) currentID(ctx context.Context) (string, error) {
	rdr, err := s.remote.Get(ctx, model.PathToCurrentManifest())
	if err != nil {
		if errors.Is(err, storagestatus.ErrNotExists) {
			return "", nil
		}
		return "", err
	}
	defer rdr.Close()

	raw, err := io.ReadAll(io.LimitReader(rdr, 1024))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

func (s *Store) fetch(ctx context.Context, id string) (*model.Manifest, error) {
	rdr, err := s.remote.Get(ctx, model.PathToManifest(id))
	if err != nil {
		return nil, err
	}
	defer rdr.Close()

	raw, err := io.ReadAll(rdr)
	if err != nil {
		return nil, err
	}
	m, err := model.UnmarshalManifest(raw)
	if err != nil {
		return nil, err
	}
	if m.ID != id {
		return nil, status.ErrManifestDrift.Wrap(
			fmt.Errorf("manifest object %q declares id %q", id, m.ID))
	}
	return m, nil
}

// manifestID derives the version id from the serialized manifest body.
func manifestID(body []byte) string {
	h := blake2b.Sum256(body)
	return hex.EncodeToString(h[:])[:32]
}
