// Package reconcile diffs a planned group list against the last
// committed manifest and produces the minimal operation list.
//
// A group is unchanged only when its fingerprint matches the recorded
// one AND its member path list is identical: container layout is
// positional, so reordering or membership change invalidates a match
// even when the union of bytes is the same. The diff is fully
// determined by its inputs; operation order never depends on map
// iteration.
package reconcile

import (
	"sort"

	"github.com/tarpack/tarpack/pkg/model"
	"go.uber.org/zap"
)

// Option configures a Reconciler
type Option func(*Reconciler)

// Codec names the compression codec new container objects will use; it
// decides their object name suffix and is recorded in the next
// manifest.
func Codec(name string) Option {
	return func(r *Reconciler) {
		r.codec = name
	}
}

// FastCompare records the fingerprint shortcut mode in the next
// manifest.
func FastCompare(mode string) Option {
	return func(r *Reconciler) {
		r.fastCompare = mode
	}
}

// Logger sets a logger for this reconciler
func Logger(l *zap.Logger) Option {
	return func(r *Reconciler) {
		r.l = l
	}
}

// Reconciler computes sync plans.
type Reconciler struct {
	codec       string
	fastCompare string
	l           *zap.Logger
}

// New creates a Reconciler.
func New(opts ...Option) *Reconciler {
	r := &Reconciler{
		codec: "none",
		l:     zap.NewNop(),
	}
	for _, apply := range opts {
		apply(r)
	}
	return r
}

// Diff produces the sync plan taking the remote from prev to the state
// the candidate groups describe. Deletes come last in the operation
// list; the executor additionally orders them after all transfers
// succeed.
func (r *Reconciler) Diff(groups []model.TarballGroup, prev *model.Manifest, snap *model.Snapshot) (*model.SyncPlan, error) {
	suffix, err := model.CompressionSuffix(r.codec)
	if err != nil {
		return nil, err
	}

	prevIndex := prev.GroupIndex()
	next := model.NewManifest()
	next.Codec = r.codec
	next.FastCompare = r.fastCompare

	plan := &model.SyncPlan{Next: next}
	liveKeys := make(map[string]bool, len(groups))

	for i := range groups {
		g := &groups[i]
		liveKeys[g.Key] = true
		rec, known := prevIndex[g.Key]

		switch {
		case known && rec.Fingerprint == g.Fingerprint && samePaths(rec.MemberPaths(), g.MemberPaths()):
			// unchanged: keep the recorded remote object untouched
			plan.Operations = append(plan.Operations, model.Operation{
				Type:     model.OpSkip,
				Group:    g,
				RemoteID: rec.RemoteID,
			})
			next.Groups = append(next.Groups, *rec)

		case known:
			// stable key, changed content: overwrite the remote object in
			// place rather than allocating a fresh one
			remoteID := model.PathToTarball(g.Key, suffix)
			plan.Operations = append(plan.Operations, model.Operation{
				Type:        model.OpReplace,
				Group:       g,
				RemoteID:    remoteID,
				OldRemoteID: rec.RemoteID,
			})
			next.Groups = append(next.Groups, groupRecord(g, remoteID))

		default:
			remoteID := model.PathToTarball(g.Key, suffix)
			plan.Operations = append(plan.Operations, model.Operation{
				Type:     model.OpUpload,
				Group:    g,
				RemoteID: remoteID,
			})
			next.Groups = append(next.Groups, groupRecord(g, remoteID))
		}
	}

	// groups that left the candidate set give up their remote objects
	departed := make([]string, 0)
	for _, rec := range prev.Groups {
		if !liveKeys[rec.Key] {
			departed = append(departed, rec.RemoteID)
		}
	}
	sort.Strings(departed)
	for _, remoteID := range departed {
		plan.Operations = append(plan.Operations, model.Operation{
			Type:        model.OpDelete,
			OldRemoteID: remoteID,
		})
	}

	if snap != nil {
		if dirs := dirRecords(snap); len(dirs) > 0 {
			next.Dirs = dirs
		}
		if links := snap.SortedLinkGroups(); len(links) > 0 {
			next.Links = links
		}
	}

	skip, upload, replace, del := plan.Counts()
	r.l.Debug("reconciled plan",
		zap.Int("skip", skip),
		zap.Int("upload", upload),
		zap.Int("replace", replace),
		zap.Int("delete", del),
	)
	return plan, nil
}

func samePaths(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func groupRecord(g *model.TarballGroup, remoteID string) model.GroupRecord {
	rec := model.GroupRecord{
		Key:         g.Key,
		Class:       g.Class,
		Fingerprint: g.Fingerprint,
		RemoteID:    remoteID,
		Members:     make([]model.MemberRecord, len(g.Members)),
	}
	for i := range g.Members {
		m := &g.Members[i]
		rec.Members[i] = model.MemberRecord{
			Path:        m.Path,
			Kind:        m.Kind,
			Size:        m.Size,
			Mode:        m.Mode,
			ModTimeNs:   m.ModTime.UnixNano(),
			Fingerprint: m.Fingerprint,
		}
	}
	return rec
}

func dirRecords(snap *model.Snapshot) []model.DirRecord {
	records := make([]model.DirRecord, len(snap.Dirs))
	for i := range snap.Dirs {
		d := &snap.Dirs[i]
		records[i] = model.DirRecord{
			Path:      d.Path,
			Mode:      d.Mode,
			UID:       d.UID,
			GID:       d.GID,
			ModTimeNs: d.ModTime.UnixNano(),
			ACL:       d.ACL,
		}
	}
	return records
}
