// Package engine orchestrates full sync runs: scan, plan, reconcile,
// execute, commit.
//
// The phases up to execution are sequential over one consistent
// snapshot. The executor parallelizes independent transfers over a
// bounded worker pool; deletes wait until every transfer succeeded, and
// the manifest commits only when the whole run did. A failed operation
// is isolated: it marks the run dirty and suppresses commit, the next
// run re-derives the plan from unchanged recorded state and retries
// naturally.
package engine

import (
	"time"

	"github.com/spf13/afero"
	"github.com/tarpack/tarpack/pkg/fingerprint"
	"github.com/tarpack/tarpack/pkg/manifest"
	"github.com/tarpack/tarpack/pkg/planner"
	"github.com/tarpack/tarpack/pkg/reconcile"
	"github.com/tarpack/tarpack/pkg/scan"
	"github.com/tarpack/tarpack/pkg/storage"
	"github.com/tarpack/tarpack/pkg/tarball"
	"go.uber.org/zap"
)

// Execution defaults.
const (
	DefaultConcurrency    = 4
	DefaultMaxAttempts    = 4
	DefaultInitialBackoff = 500 * time.Millisecond
)

// Option configures an Engine
type Option func(*Engine)

// SourceFs sets the filesystem holding the sync root. Defaults to the
// OS filesystem.
func SourceFs(fs afero.Fs) Option {
	return func(e *Engine) {
		e.fs = fs
	}
}

// Compression selects the container compression codec by name.
func Compression(name string) Option {
	return func(e *Engine) {
		e.compression = name
	}
}

// FastCompare selects the fingerprint shortcut mode.
func FastCompare(mode fingerprint.Mode) Option {
	return func(e *Engine) {
		e.fastCompare = mode
	}
}

// SizeThreshold bounds the total logical size of a small group.
func SizeThreshold(bytes int64) Option {
	return func(e *Engine) {
		e.sizeThreshold = bytes
	}
}

// CountThreshold bounds the member count of a small group.
func CountThreshold(n int) Option {
	return func(e *Engine) {
		e.countThreshold = n
	}
}

// Cutoff sets the per-file aggregation cutoff.
func Cutoff(bytes int64) Option {
	return func(e *Engine) {
		e.cutoff = bytes
	}
}

// CrossDirectory allows under-threshold groups to aggregate across
// directory boundaries.
func CrossDirectory(enabled bool) Option {
	return func(e *Engine) {
		e.crossDir = enabled
	}
}

// ScanOptions forwards options to the snapshot scanner.
func ScanOptions(opts ...scan.Option) Option {
	return func(e *Engine) {
		e.scanOpts = append(e.scanOpts, opts...)
	}
}

// Concurrency bounds the transfer worker pool.
func Concurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// MaxAttempts bounds retries per transfer, initial attempt included.
func MaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// InitialBackoff sets the first retry delay; later delays grow
// exponentially.
func InitialBackoff(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.initialBackoff = d
		}
	}
}

// Logger sets a logger for this engine
func Logger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.l = l
	}
}

// Engine runs syncs of one local root against one remote store.
type Engine struct {
	fs     afero.Fs
	root   string
	remote storage.Store

	compression    string
	fastCompare    fingerprint.Mode
	sizeThreshold  int64
	countThreshold int
	cutoff         int64
	crossDir       bool
	scanOpts       []scan.Option

	concurrency    int
	maxAttempts    int
	initialBackoff time.Duration
	l              *zap.Logger

	manifests *manifest.Store
	codec     *tarball.Codec
}

// New builds an Engine syncing root against remote.
func New(root string, remote storage.Store, opts ...Option) (*Engine, error) {
	e := &Engine{
		fs:             afero.NewOsFs(),
		root:           root,
		remote:         remote,
		compression:    tarball.CompressionNone,
		fastCompare:    fingerprint.MtimeSizeThenHash,
		concurrency:    DefaultConcurrency,
		maxAttempts:    DefaultMaxAttempts,
		initialBackoff: DefaultInitialBackoff,
		l:              zap.NewNop(),
	}
	for _, apply := range opts {
		apply(e)
	}

	var err error
	e.codec, err = tarball.New(
		tarball.Compression(e.compression),
		tarball.Logger(e.l),
	)
	if err != nil {
		return nil, err
	}
	e.manifests = manifest.New(remote, manifest.Logger(e.l))
	return e, nil
}

// Manifests exposes the manifest store bound to this engine's remote.
func (e *Engine) Manifests() *manifest.Store {
	return e.manifests
}

func (e *Engine) scanner() *scan.Scanner {
	opts := append([]scan.Option{scan.Logger(e.l)}, e.scanOpts...)
	return scan.New(e.fs, opts...)
}

func (e *Engine) plannerFor(h *fingerprint.Hasher) *planner.Planner {
	return planner.New(h,
		planner.SizeThreshold(e.sizeThreshold),
		planner.CountThreshold(e.countThreshold),
		planner.Cutoff(e.cutoff),
		planner.CrossDirectory(e.crossDir),
		planner.Logger(e.l),
	)
}

func (e *Engine) reconciler() *reconcile.Reconciler {
	return reconcile.New(
		reconcile.Codec(e.codec.CompressionName()),
		reconcile.FastCompare(string(e.fastCompare)),
		reconcile.Logger(e.l),
	)
}
