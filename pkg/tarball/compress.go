package tarball

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression codec names accepted by the configuration surface.
const (
	CompressionNone = "none"
	CompressionGzip = "gzip"
	CompressionZstd = "zstd"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// ValidCompression reports whether name is a known codec.
func ValidCompression(name string) bool {
	switch name {
	case "", CompressionNone, CompressionGzip, CompressionZstd:
		return true
	default:
		return false
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// compressor wraps w in the selected whole-container compression stage.
func compressor(name string, w io.Writer) (io.WriteCloser, error) {
	switch name {
	case "", CompressionNone:
		return nopWriteCloser{w}, nil
	case CompressionGzip:
		return gzip.NewWriter(w), nil
	case CompressionZstd:
		return zstd.NewWriter(w)
	default:
		return nil, fmt.Errorf("unknown compression codec %q", name)
	}
}

type zstdReadCloser struct {
	*zstd.Decoder
}

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

// decompressor sniffs the container's compression from its magic bytes
// and returns the decompressed stream together with the detected codec
// name. Containers are always told apart by content, never by name.
func decompressor(r io.Reader) (io.ReadCloser, string, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil && len(magic) < 2 {
		return nil, "", fmt.Errorf("container too short: %w", err)
	}
	switch {
	case len(magic) >= 2 && bytes.Equal(magic[:2], gzipMagic):
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, "", err
		}
		return gz, CompressionGzip, nil
	case len(magic) >= 4 && bytes.Equal(magic, zstdMagic):
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, "", err
		}
		return zstdReadCloser{dec}, CompressionZstd, nil
	default:
		return io.NopCloser(br), CompressionNone, nil
	}
}
