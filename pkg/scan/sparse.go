package scan

import (
	"io"

	"github.com/tarpack/tarpack/pkg/model"
)

// SparseReader reads only the data extents of a file, in order, as one
// concatenated stream. It is what the archive codec stores for a sparse
// entry.
type SparseReader struct {
	f       io.ReaderAt
	extents []model.Extent
	idx     int
	off     int64
	closer  io.Closer
}

// NewSparseReader builds a reader over the data extents of f. When f
// also implements io.Closer, Close is forwarded to it.
func NewSparseReader(f io.ReaderAt, extents []model.Extent) *SparseReader {
	closer, _ := f.(io.Closer)
	return &SparseReader{f: f, extents: extents, closer: closer}
}

func (r *SparseReader) Read(p []byte) (int, error) {
	for r.idx < len(r.extents) {
		ext := r.extents[r.idx]
		remaining := ext.Length - r.off
		if remaining <= 0 {
			r.idx++
			r.off = 0
			continue
		}
		if int64(len(p)) > remaining {
			p = p[:remaining]
		}
		n, err := r.f.ReadAt(p, ext.Offset+r.off)
		r.off += int64(n)
		if err == io.EOF && r.off < ext.Length {
			err = io.ErrUnexpectedEOF
		}
		return n, err
	}
	return 0, io.EOF
}

// Close releases the underlying file.
func (r *SparseReader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
