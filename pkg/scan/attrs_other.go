//go:build !linux && !darwin

package scan

import (
	"os"

	"github.com/tarpack/tarpack/pkg/model"
)

type nameCache struct{}

func newNameCache() *nameCache { return &nameCache{} }

// fillOwnership is a no-op on platforms without a POSIX stat record.
func (s *Scanner) fillOwnership(entry *model.FileEntry, info os.FileInfo) {}
