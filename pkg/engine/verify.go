package engine

import (
	"context"

	"github.com/tarpack/tarpack/pkg/manifest"
	"github.com/tarpack/tarpack/pkg/model"
)

// Verify cross-checks the manifest in force against the remote's actual
// container listing. A missing referenced container means drift; a
// half-written upload from an interrupted run shows up as an orphan and
// is never adopted as valid.
func (e *Engine) Verify(ctx context.Context) (*manifest.Report, *model.Manifest, error) {
	m, err := e.manifests.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	report, err := e.manifests.Verify(ctx, m)
	if err != nil {
		return nil, nil, err
	}
	return report, m, nil
}
