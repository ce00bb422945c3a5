//go:build !linux

package scan

import (
	"os"

	"github.com/tarpack/tarpack/pkg/model"
)

// fillExtents is a no-op on platforms without SEEK_DATA/SEEK_HOLE;
// files are treated as dense.
func (s *Scanner) fillExtents(entry *model.FileEntry, fullPath string, info os.FileInfo) {}
