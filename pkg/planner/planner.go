// Package planner partitions a snapshot into tarball group candidates.
//
// Grouping is a partition: every file and symlink of the snapshot lands
// in exactly one group. Small files aggregate into bounded containers,
// one open group per directory, closed when the next member would push
// it past the size or count threshold. Large files travel standalone.
// Planning is deterministic: an unchanged snapshot always yields the
// same groups in the same order, so an unchanged tree reconciles to an
// all-skip plan.
package planner

import (
	"path"
	"sort"

	"github.com/tarpack/tarpack/pkg/fingerprint"
	"github.com/tarpack/tarpack/pkg/model"
	"github.com/tarpack/tarpack/pkg/status"
	"go.uber.org/zap"
)

// Default aggregation thresholds.
const (
	// DefaultSizeThreshold bounds the total logical size of one small group
	DefaultSizeThreshold = 32 * 1024 * 1024
	// DefaultCountThreshold bounds the member count of one small group
	DefaultCountThreshold = 1000
)

// Option configures a Planner
type Option func(*Planner)

// SizeThreshold bounds the total logical size of a small group.
func SizeThreshold(bytes int64) Option {
	return func(p *Planner) {
		if bytes > 0 {
			p.sizeThreshold = bytes
		}
	}
}

// CountThreshold bounds the member count of a small group.
func CountThreshold(n int) Option {
	return func(p *Planner) {
		if n > 0 {
			p.countThreshold = n
		}
	}
}

// Cutoff sets the per-file aggregation cutoff: files at or above it are
// transferred standalone. Defaults to the size threshold.
func Cutoff(bytes int64) Option {
	return func(p *Planner) {
		if bytes > 0 {
			p.cutoff = bytes
		}
	}
}

// CrossDirectory allows an under-threshold open group to flow into the
// next directory instead of closing at its directory boundary. Off by
// default: locality wins over packing efficiency.
func CrossDirectory(enabled bool) Option {
	return func(p *Planner) {
		p.crossDir = enabled
	}
}

// Logger sets a logger for this planner
func Logger(l *zap.Logger) Option {
	return func(p *Planner) {
		p.l = l
	}
}

// Planner turns snapshots into tarball group candidate lists.
type Planner struct {
	sizeThreshold  int64
	countThreshold int
	cutoff         int64
	crossDir       bool
	hasher         *fingerprint.Hasher
	l              *zap.Logger
}

// New creates a Planner. The hasher supplies member content
// fingerprints; group fingerprints derive from them.
func New(hasher *fingerprint.Hasher, opts ...Option) *Planner {
	p := &Planner{
		sizeThreshold:  DefaultSizeThreshold,
		countThreshold: DefaultCountThreshold,
		hasher:         hasher,
		l:              zap.NewNop(),
	}
	for _, apply := range opts {
		apply(p)
	}
	if p.cutoff <= 0 {
		p.cutoff = p.sizeThreshold
	}
	return p
}

// open is the small group currently accumulating members.
type open struct {
	key     string
	members []model.FileEntry
	size    int64
}

// Plan partitions the snapshot into groups. Members keep lexicographic
// path order inside each group; groups come out in the deterministic
// order the directory walk emits them. Entries whose content cannot be
// fingerprinted are dropped from the partition and recorded on the
// snapshot as skipped.
func (p *Planner) Plan(snap *model.Snapshot) ([]model.TarballGroup, error) {
	byDir := make(map[string][]model.FileEntry)
	for _, e := range snap.Entries {
		dir := path.Dir(e.Path)
		byDir[dir] = append(byDir[dir], e)
	}
	children := childIndex(snap, byDir)

	var (
		groups  []model.TarballGroup
		current *open
	)
	indexByDir := make(map[string]int)

	closeCurrent := func() {
		if current == nil {
			return
		}
		groups = append(groups, p.seal(current))
		current = nil
	}

	var walk func(dir string)
	walk = func(dir string) {
		for _, e := range byDir[dir] {
			e := e
			if _, err := p.hasher.Entry(&e); err != nil {
				p.l.Warn("cannot fingerprint entry", zap.String("path", e.Path), zap.Error(err))
				snap.Skipped = append(snap.Skipped, model.SkippedEntry{
					Path:  e.Path,
					Cause: status.ErrAttributeRead.Wrap(err),
				})
				continue
			}
			if e.Kind == model.KindFile && (e.Size >= p.cutoff || e.Size > p.sizeThreshold) {
				groups = append(groups, p.standalone(e))
				continue
			}
			if current != nil && !p.fits(current, &e) {
				closeCurrent()
			}
			if current == nil {
				current = &open{key: model.SmallGroupKey(dir, indexByDir[dir])}
				indexByDir[dir]++
			}
			current.members = append(current.members, e)
			current.size += e.Size
		}
		if !p.crossDir {
			closeCurrent()
		}
		for _, child := range children[dir] {
			walk(child)
		}
	}
	walk(".")
	closeCurrent()

	p.l.Debug("planned groups",
		zap.Int("groups", len(groups)),
		zap.Int("entries", len(snap.Entries)),
	)
	return groups, nil
}

// fits reports whether adding e keeps the open group within thresholds.
func (p *Planner) fits(o *open, e *model.FileEntry) bool {
	if len(o.members)+1 > p.countThreshold {
		return false
	}
	return o.size+e.Size <= p.sizeThreshold
}

func (p *Planner) seal(o *open) model.TarballGroup {
	return model.TarballGroup{
		Key:         o.key,
		Class:       model.ClassSmall,
		Members:     o.members,
		Fingerprint: p.hasher.Group(o.members),
		TotalSize:   o.size,
	}
}

func (p *Planner) standalone(e model.FileEntry) model.TarballGroup {
	members := []model.FileEntry{e}
	return model.TarballGroup{
		Key:         e.Path,
		Class:       model.ClassStandalone,
		Members:     members,
		Fingerprint: p.hasher.Group(members),
		TotalSize:   e.Size,
	}
}

// childIndex maps each directory to its sorted child directories. Only
// directories that exist in the snapshot (or hold entries) take part in
// the walk; the root is ".".
func childIndex(snap *model.Snapshot, byDir map[string][]model.FileEntry) map[string][]string {
	seen := map[string]bool{".": true}
	add := func(dir string) {
		for dir != "." && !seen[dir] {
			seen[dir] = true
			dir = path.Dir(dir)
		}
	}
	for _, d := range snap.Dirs {
		add(d.Path)
	}
	for dir := range byDir {
		add(dir)
	}

	children := make(map[string][]string)
	for dir := range seen {
		if dir == "." {
			continue
		}
		parent := path.Dir(dir)
		children[parent] = append(children[parent], dir)
	}
	for parent := range children {
		sort.Strings(children[parent])
	}
	return children
}
