//go:build linux

package scan

import (
	"os"
	"syscall"

	"github.com/tarpack/tarpack/pkg/model"
	"golang.org/x/sys/unix"
)

// fillExtents maps the data regions of a sparse file with
// SEEK_DATA/SEEK_HOLE. Dense files (allocated blocks cover the logical
// size) keep a nil extent list and skip the probe.
func (s *Scanner) fillExtents(entry *model.FileEntry, fullPath string, info os.FileInfo) {
	if !s.isOsBacked() {
		return
	}
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok || st.Blocks*512 >= st.Size {
		return
	}
	f, err := os.Open(fullPath)
	if err != nil {
		return
	}
	defer f.Close()

	extents, err := probeExtents(int(f.Fd()), entry.Size)
	if err != nil {
		return
	}
	entry.Extents = extents
}

func probeExtents(fd int, size int64) ([]model.Extent, error) {
	var extents []model.Extent
	var offset int64
	for offset < size {
		dataStart, err := unix.Seek(fd, offset, unix.SEEK_DATA)
		if err != nil {
			if err == unix.ENXIO {
				// trailing hole
				break
			}
			return nil, err
		}
		holeStart, err := unix.Seek(fd, dataStart, unix.SEEK_HOLE)
		if err != nil {
			if err == unix.ENXIO {
				holeStart = size
			} else {
				return nil, err
			}
		}
		if holeStart > size {
			holeStart = size
		}
		if holeStart > dataStart {
			extents = append(extents, model.Extent{Offset: dataStart, Length: holeStart - dataStart})
		}
		offset = holeStart
		if holeStart == dataStart {
			break
		}
	}
	if extents == nil {
		extents = []model.Extent{}
	}
	return extents, nil
}
