// Package storage declares the object-store capability interface consumed
// by the sync engine, together with small helpers shared by its
// implementations.
package storage

import (
	"context"
	"io"
)

// Store implementations know how to read and write objects in a flat
// keyed namespace.
//
// Typically this is something file system-like. Examples are S3, local FS,
// NFS, ... Implementations of this interface are assumed to be fairly
// simple: error classification (see pkg/storage/status) is the
// implementation's responsibility, retries are the caller's.
type Store interface {
	String() string
	Has(context.Context, string) (bool, error)
	Get(context.Context, string) (io.ReadCloser, error)
	// Put writes an object. With exclusive set, the write fails with
	// status.ErrExists when the key is already present.
	Put(ctx context.Context, key string, source io.Reader, exclusive bool) error
	Delete(context.Context, string) error
	Keys(context.Context) ([]string, error)
	// KeysPrefix supports paginated listing under a key prefix. The empty
	// token starts the iteration; an empty returned token ends it.
	KeysPrefix(ctx context.Context, token, prefix, delimiter string, count int) ([]string, string, error)
}

// Sizer is an optional Store capability: backends which can report an
// object's stored size allow the executor to verify uploads cheaply.
type Sizer interface {
	Size(context.Context, string) (int64, error)
}

// AllKeysPrefix drains KeysPrefix pagination for callers that want the
// complete listing under a prefix.
func AllKeysPrefix(ctx context.Context, s Store, prefix string) ([]string, error) {
	const pageSize = 1000
	var (
		keys  []string
		token string
	)
	for {
		page, next, err := s.KeysPrefix(ctx, token, prefix, "", pageSize)
		if err != nil {
			return nil, err
		}
		keys = append(keys, page...)
		if next == "" {
			return keys, nil
		}
		token = next
	}
}

// PipeIO copies all bytes from reader to writer with a fixed buffer.
func PipeIO(writer io.Writer, reader io.Reader) (n int64, err error) {
	buf := make([]byte, 32*1024)
	return io.CopyBuffer(writer, reader, buf)
}
