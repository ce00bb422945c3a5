package engine

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/tarpack/tarpack/pkg/errors"
	"github.com/tarpack/tarpack/pkg/model"
	"github.com/tarpack/tarpack/pkg/scan"
	"github.com/tarpack/tarpack/pkg/status"
	"github.com/tarpack/tarpack/pkg/storage"
	storagestatus "github.com/tarpack/tarpack/pkg/storage/status"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// execute applies the plan: transfers in parallel over a bounded pool,
// deletes strictly after every transfer landed, manifest commit only on
// a fully clean run. A failed operation is recorded and isolated; it
// never aborts independent operations, only the commit.
func (e *Engine) execute(ctx context.Context, plan *model.SyncPlan) (*Report, error) {
	report := &Report{}
	report.Skipped, _, _, _ = plan.Counts()

	var mu sync.Mutex
	fail := func(op model.Operation, err error) {
		e.l.Warn("operation failed", zap.String("op", op.String()), zap.Error(err))
		mu.Lock()
		report.Failures = append(report.Failures, OpFailure{Op: op, Err: err})
		mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i := range plan.Operations {
		op := plan.Operations[i]
		if op.Type != model.OpUpload && op.Type != model.OpReplace {
			continue
		}
		g.Go(func() error {
			if err := e.transfer(ctx, op); err != nil {
				fail(op, err)
				return nil
			}
			mu.Lock()
			if op.Type == model.OpUpload {
				report.Uploaded++
			} else {
				report.Replaced++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return report, status.ErrInterrupted.Wrap(err)
	}
	if !report.Ok() {
		e.l.Warn("transfers failed, skipping deletes and manifest commit",
			zap.Int("failed", len(report.Failures)))
		return report, nil
	}

	// the replacement set is safely stored; now prior objects may go
	for _, op := range plan.Operations {
		var target string
		switch {
		case op.Type == model.OpDelete:
			target = op.OldRemoteID
		case op.Type == model.OpReplace && op.OldRemoteID != op.RemoteID:
			// codec change moved the group to a new object name
			target = op.OldRemoteID
		default:
			continue
		}
		if err := e.deleteObject(ctx, target); err != nil {
			fail(op, err)
			continue
		}
		if op.Type == model.OpDelete {
			report.Deleted++
		}
	}
	if err := ctx.Err(); err != nil {
		return report, status.ErrInterrupted.Wrap(err)
	}
	if !report.Ok() {
		return report, nil
	}

	if err := e.manifests.Commit(ctx, plan.Next); err != nil {
		return report, err
	}
	report.Committed = true
	report.ManifestID = plan.Next.ID
	return report, nil
}

// transfer encodes and uploads one group container, retrying transient
// storage failures with exponential backoff.
func (e *Engine) transfer(ctx context.Context, op model.Operation) error {
	attempt := 0
	operation := func() error {
		attempt++
		err := e.transferOnce(ctx, op)
		if err == nil {
			return nil
		}
		if storagestatus.IsTransient(err) {
			e.l.Info("transient transfer failure, retrying",
				zap.String("key", op.Group.Key),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		}
		return backoff.Permanent(err)
	}
	if err := backoff.Retry(operation, e.newBackOff(ctx)); err != nil {
		return status.ErrTransfer.Wrap(err)
	}
	e.l.Debug("transferred group",
		zap.String("key", op.Group.Key),
		zap.String("remote", op.RemoteID),
		zap.Int("attempts", attempt),
	)
	return nil
}

func (e *Engine) transferOnce(ctx context.Context, op model.Operation) error {
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(e.codec.Encode(pw, op.Group.Members, e.openEntry))
	}()

	counted := &countingReader{r: pr}
	if err := e.remote.Put(ctx, op.RemoteID, counted, false); err != nil {
		pr.CloseWithError(err)
		return err
	}

	// cheap completeness check: a backend that reports sizes must hold
	// exactly what was sent
	if sizer, ok := e.remote.(storage.Sizer); ok {
		sz, err := sizer.Size(ctx, op.RemoteID)
		if err != nil {
			return err
		}
		if sz != counted.n {
			return errors.New("stored object size mismatch").Wrap(
				fmt.Errorf("%s: stored %d bytes, sent %d", op.RemoteID, sz, counted.n))
		}
	}
	return nil
}

func (e *Engine) deleteObject(ctx context.Context, key string) error {
	operation := func() error {
		err := e.remote.Delete(ctx, key)
		switch {
		case err == nil, errors.Is(err, storagestatus.ErrNotExists):
			return nil
		case storagestatus.IsTransient(err):
			return err
		default:
			return backoff.Permanent(err)
		}
	}
	if err := backoff.Retry(operation, e.newBackOff(ctx)); err != nil {
		return status.ErrTransfer.Wrap(err)
	}
	return nil
}

func (e *Engine) newBackOff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.initialBackoff
	retries := uint64(0)
	if e.maxAttempts > 1 {
		retries = uint64(e.maxAttempts - 1)
	}
	return backoff.WithContext(backoff.WithMaxRetries(bo, retries), ctx)
}

// openEntry supplies member content for the codec. Sparse entries yield
// only their data extents.
func (e *Engine) openEntry(entry model.FileEntry) (io.ReadCloser, error) {
	f, err := e.fs.Open(e.localPath(entry.Path))
	if err != nil {
		return nil, err
	}
	if entry.Extents != nil {
		return scan.NewSparseReader(f, entry.Extents), nil
	}
	return f, nil
}

func (e *Engine) localPath(rel string) string {
	return filepath.Join(e.root, filepath.FromSlash(rel))
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
