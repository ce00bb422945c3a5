// Package status exports errors produced by the sync engine layers.
package status

import (
	"github.com/tarpack/tarpack/pkg/errors"
)

var (
	// ErrAttributeRead indicates that a filesystem entry's metadata or
	// content could not be read. The entry is excluded from the plan and
	// reported; the run continues.
	ErrAttributeRead = errors.New("cannot read entry attributes")

	// ErrCodec indicates a malformed or truncated container stream. It is
	// fatal to the affected operation only.
	ErrCodec = errors.New("malformed or truncated container")

	// ErrTransfer indicates a permanent transfer failure for one operation
	ErrTransfer = errors.New("transfer failed")

	// ErrManifestCommit indicates the manifest could not be committed
	// atomically. The run aborts without partial commit.
	ErrManifestCommit = errors.New("manifest commit failed")

	// ErrManifestDrift indicates the recorded manifest diverged from what
	// the remote actually holds, or that a concurrent run committed since
	// this run loaded its manifest. Operator reconciliation is required.
	ErrManifestDrift = errors.New("manifest drift detected")

	// ErrInterrupted signals that an in-flight run was canceled
	ErrInterrupted = errors.New("run interrupted")
)
