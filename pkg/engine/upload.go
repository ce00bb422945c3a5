package engine

import (
	"context"
	"reflect"

	"github.com/tarpack/tarpack/pkg/fingerprint"
	"github.com/tarpack/tarpack/pkg/model"
	"go.uber.org/zap"
)

// Plan derives the sync plan for the current state of the local root
// without touching remote objects (beyond reading the manifest). It is
// the dry-run surface.
func (e *Engine) Plan(ctx context.Context) (*model.SyncPlan, *model.Snapshot, error) {
	prev, err := e.manifests.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	return e.plan(prev)
}

func (e *Engine) plan(prev *model.Manifest) (*model.SyncPlan, *model.Snapshot, error) {
	snap, err := e.scanner().Snapshot(e.root)
	if err != nil {
		return nil, nil, err
	}

	hasher := fingerprint.New(e.fs, e.root,
		fingerprint.WithMode(e.fastCompare),
		fingerprint.WithPrevious(prev.MemberIndex()),
	)
	groups, err := e.plannerFor(hasher).Plan(snap)
	if err != nil {
		return nil, nil, err
	}

	plan, err := e.reconciler().Diff(groups, prev, snap)
	if err != nil {
		return nil, nil, err
	}
	return plan, snap, nil
}

// Upload runs one full sync: snapshot the root, reconcile against the
// last manifest, transfer what changed, and commit the new manifest.
// The returned report is valid even when err is nil but operations
// failed; callers decide the exit status from Report.Ok.
func (e *Engine) Upload(ctx context.Context) (*Report, error) {
	prev, err := e.manifests.Load(ctx)
	if err != nil {
		return nil, err
	}
	plan, snap, err := e.plan(prev)
	if err != nil {
		return nil, err
	}

	if plan.IsNoop() && !prev.IsEmpty() && unchanged(prev, plan.Next) {
		skip, _, _, _ := plan.Counts()
		e.l.Info("up to date", zap.String("manifest", prev.ID), zap.Int("groups", skip))
		return &Report{
			Skipped:        skip,
			UpToDate:       true,
			ManifestID:     prev.ID,
			SkippedEntries: snap.Skipped,
		}, nil
	}

	report, err := e.execute(ctx, plan)
	if report != nil {
		report.SkippedEntries = snap.Skipped
	}
	return report, err
}

// unchanged reports whether committing next would record the exact same
// state prev already does.
func unchanged(prev, next *model.Manifest) bool {
	prev.SortGroups()
	next.SortGroups()
	return prev.Codec == next.Codec &&
		prev.FastCompare == next.FastCompare &&
		reflect.DeepEqual(prev.Groups, next.Groups) &&
		reflect.DeepEqual(prev.Dirs, next.Dirs) &&
		reflect.DeepEqual(prev.Links, next.Links)
}
