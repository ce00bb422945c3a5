package engine

import (
	"fmt"
	"strings"

	"github.com/tarpack/tarpack/pkg/model"
)

// OpFailure records one operation that failed for this run after its
// retry budget was spent.
type OpFailure struct {
	Op  model.Operation
	Err error
}

func (f OpFailure) String() string {
	return fmt.Sprintf("%s: %v", f.Op, f.Err)
}

// Report is the end-of-run outcome.
type Report struct {
	Skipped  int
	Uploaded int
	Replaced int
	Deleted  int
	Failures []OpFailure

	// Committed is set when the new manifest was durably committed;
	// ManifestID identifies it
	Committed  bool
	ManifestID string

	// UpToDate is set when the run found nothing to do: no operations,
	// no new manifest; ManifestID then names the manifest already in
	// force
	UpToDate bool

	// SkippedEntries lists local entries excluded from the run because
	// their attributes could not be read
	SkippedEntries []model.SkippedEntry
}

// Ok reports whether the run fully succeeded.
func (r *Report) Ok() bool {
	return len(r.Failures) == 0
}

func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "skipped %d, uploaded %d, replaced %d, deleted %d",
		r.Skipped, r.Uploaded, r.Replaced, r.Deleted)
	switch {
	case r.Committed:
		fmt.Fprintf(&b, ", committed manifest %s", r.ManifestID)
	case r.UpToDate:
		fmt.Fprintf(&b, ", up to date with manifest %s", r.ManifestID)
	default:
		b.WriteString(", manifest not committed")
	}
	for _, f := range r.Failures {
		fmt.Fprintf(&b, "\nfailed: %s", f)
	}
	for _, s := range r.SkippedEntries {
		fmt.Fprintf(&b, "\nskipped entry: %s: %v", s.Path, s.Cause)
	}
	return b.String()
}
