// Package tarball implements the archive codec: it serializes a group
// of file entries into a single container object and back, preserving
// the full attribute record (ownership, permissions, ACL blobs, sparse
// layout, nanosecond timestamps).
//
// The container is a PAX tar stream, optionally wrapped in
// whole-container compression. Sparse files store only their data
// extents; the extent map travels in PAX records so holes decode back to
// holes. Malformed or truncated containers surface status.ErrCodec: a
// partially written container is never accepted.
package tarball

import (
	"archive/tar"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/tarpack/tarpack/pkg/model"
	"github.com/tarpack/tarpack/pkg/status"
	"go.uber.org/zap"
)

// PAX record keys carrying the attributes tar cannot natively express.
const (
	paxPrefix      = "TARPACK."
	paxLogicalSize = paxPrefix + "size"
	paxSparseMap   = paxPrefix + "sparse"
	paxACL         = paxPrefix + "acl"
	paxACLState    = paxPrefix + "aclstate"
	paxLinkKey     = paxPrefix + "linkkey"
)

// OpenFunc supplies the content stream for one entry being encoded. For
// sparse entries the stream must contain exactly the data extents,
// concatenated in order.
type OpenFunc func(model.FileEntry) (io.ReadCloser, error)

// Option configures a Codec
type Option func(*Codec)

// Compression selects the whole-container compression stage by name
// (none, gzip, zstd).
func Compression(name string) Option {
	return func(c *Codec) {
		c.compression = name
	}
}

// Logger sets a logger for this codec
func Logger(l *zap.Logger) Option {
	return func(c *Codec) {
		c.l = l
	}
}

// Codec encodes and decodes tarball group containers.
type Codec struct {
	compression string
	l           *zap.Logger
}

// New creates a Codec.
func New(opts ...Option) (*Codec, error) {
	c := &Codec{
		compression: CompressionNone,
		l:           zap.NewNop(),
	}
	for _, apply := range opts {
		apply(c)
	}
	if !ValidCompression(c.compression) {
		return nil, fmt.Errorf("unknown compression codec %q", c.compression)
	}
	return c, nil
}

// CompressionName returns the configured codec name.
func (c *Codec) CompressionName() string {
	if c.compression == "" {
		return CompressionNone
	}
	return c.compression
}

// Suffix returns the container object suffix for this codec.
func (c *Codec) Suffix() string {
	suffix, _ := model.CompressionSuffix(c.CompressionName())
	return suffix
}

// Encode writes the members as one container stream. Content for files
// is pulled through open; symlinks carry no content.
func (c *Codec) Encode(w io.Writer, members []model.FileEntry, open OpenFunc) error {
	zw, err := compressor(c.compression, w)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(zw)

	for i := range members {
		if err := c.encodeEntry(tw, &members[i], open); err != nil {
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("closing container: %w", err)
	}
	return zw.Close()
}

func (c *Codec) encodeEntry(tw *tar.Writer, entry *model.FileEntry, open OpenFunc) error {
	hdr, err := headerFor(entry)
	if err != nil {
		return err
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("writing header for %q: %w", entry.Path, err)
	}
	if entry.Kind != model.KindFile {
		return nil
	}
	content, err := open(*entry)
	if err != nil {
		return status.ErrAttributeRead.Wrap(err)
	}
	n, err := io.Copy(tw, content)
	cerr := content.Close()
	if err != nil {
		return fmt.Errorf("writing content for %q: %w", entry.Path, err)
	}
	if cerr != nil {
		return cerr
	}
	if n != hdr.Size {
		return status.ErrCodec.Wrap(fmt.Errorf("entry %q: wrote %d bytes, expected %d", entry.Path, n, hdr.Size))
	}
	return nil
}

func headerFor(entry *model.FileEntry) (*tar.Header, error) {
	hdr := &tar.Header{
		Format:     tar.FormatPAX,
		Name:       entry.Path,
		Mode:       int64(entry.Mode.Perm()),
		Uid:        entry.UID,
		Gid:        entry.GID,
		Uname:      entry.UserName,
		Gname:      entry.GroupName,
		ModTime:    entry.ModTime,
		ChangeTime: entry.ChangeTime,
		PAXRecords: map[string]string{},
	}
	switch entry.Kind {
	case model.KindFile:
		hdr.Typeflag = tar.TypeReg
		hdr.Size = entry.PhysicalSize()
	case model.KindSymlink:
		hdr.Typeflag = tar.TypeSymlink
		hdr.Linkname = entry.LinkTarget
	default:
		return nil, fmt.Errorf("entry %q: kind %q does not belong in a container", entry.Path, entry.Kind)
	}

	if entry.Extents != nil {
		hdr.PAXRecords[paxLogicalSize] = strconv.FormatInt(entry.Size, 10)
		hdr.PAXRecords[paxSparseMap] = formatExtents(entry.Extents)
	}
	if entry.ACLState != model.ACLNone {
		hdr.PAXRecords[paxACLState] = string(entry.ACLState)
	}
	if len(entry.ACL) > 0 {
		hdr.PAXRecords[paxACL] = base64.StdEncoding.EncodeToString(entry.ACL)
	}
	if entry.LinkKey != "" {
		hdr.PAXRecords[paxLinkKey] = entry.LinkKey
	}
	return hdr, nil
}

// DecodeFunc receives one decoded entry and its content stream. For
// sparse entries the stream holds the concatenated data extents; the
// entry's extent map positions them.
type DecodeFunc func(model.FileEntry, io.Reader) error

// Decode reads a container stream, invoking fn for every member in
// container order. Compression is auto-detected.
func (c *Codec) Decode(r io.Reader, fn DecodeFunc) error {
	zr, name, err := decompressor(r)
	if err != nil {
		return status.ErrCodec.Wrap(err)
	}
	defer zr.Close()
	c.l.Debug("decoding container", zap.String("compression", name))

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return status.ErrCodec.Wrap(err)
		}
		entry, err := entryFor(hdr)
		if err != nil {
			return status.ErrCodec.Wrap(err)
		}
		if err := fn(entry, tr); err != nil {
			return err
		}
		// drain whatever fn left so truncation is detected even for
		// entries the callback did not fully read
		if _, err := io.Copy(io.Discard, tr); err != nil {
			return status.ErrCodec.Wrap(err)
		}
	}
}

func entryFor(hdr *tar.Header) (model.FileEntry, error) {
	entry := model.FileEntry{
		Path:       hdr.Name,
		Size:       hdr.Size,
		Mode:       os.FileMode(hdr.Mode).Perm(),
		UID:        hdr.Uid,
		GID:        hdr.Gid,
		UserName:   hdr.Uname,
		GroupName:  hdr.Gname,
		ModTime:    hdr.ModTime,
		ChangeTime: hdr.ChangeTime,
	}
	switch hdr.Typeflag {
	case tar.TypeReg:
		entry.Kind = model.KindFile
	case tar.TypeSymlink:
		entry.Kind = model.KindSymlink
		entry.LinkTarget = hdr.Linkname
		entry.Size = 0
	default:
		return entry, fmt.Errorf("entry %q: unexpected type flag %d", hdr.Name, hdr.Typeflag)
	}

	if raw, ok := hdr.PAXRecords[paxSparseMap]; ok {
		extents, err := parseExtents(raw)
		if err != nil {
			return entry, fmt.Errorf("entry %q: %w", hdr.Name, err)
		}
		entry.Extents = extents
		logical, ok := hdr.PAXRecords[paxLogicalSize]
		if !ok {
			return entry, fmt.Errorf("entry %q: sparse map without logical size", hdr.Name)
		}
		sz, err := strconv.ParseInt(logical, 10, 64)
		if err != nil {
			return entry, fmt.Errorf("entry %q: bad logical size: %w", hdr.Name, err)
		}
		entry.Size = sz
	}
	if state, ok := hdr.PAXRecords[paxACLState]; ok {
		entry.ACLState = model.ACLState(state)
	}
	if raw, ok := hdr.PAXRecords[paxACL]; ok {
		acl, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return entry, fmt.Errorf("entry %q: bad ACL record: %w", hdr.Name, err)
		}
		entry.ACL = acl
	}
	if key, ok := hdr.PAXRecords[paxLinkKey]; ok {
		entry.LinkKey = key
	}
	return entry, nil
}

func formatExtents(extents []model.Extent) string {
	parts := make([]string, len(extents))
	for i, ext := range extents {
		parts[i] = strconv.FormatInt(ext.Offset, 10) + ":" + strconv.FormatInt(ext.Length, 10)
	}
	return strings.Join(parts, ",")
}

func parseExtents(raw string) ([]model.Extent, error) {
	if raw == "" {
		return []model.Extent{}, nil
	}
	parts := strings.Split(raw, ",")
	extents := make([]model.Extent, 0, len(parts))
	var prevEnd int64 = -1
	for _, part := range parts {
		off, length, found := strings.Cut(part, ":")
		if !found {
			return nil, errors.New("malformed sparse map")
		}
		o, err := strconv.ParseInt(off, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed sparse offset: %w", err)
		}
		l, err := strconv.ParseInt(length, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed sparse length: %w", err)
		}
		if o <= prevEnd || l < 0 {
			return nil, errors.New("sparse map not monotonic")
		}
		prevEnd = o + l
		extents = append(extents, model.Extent{Offset: o, Length: l})
	}
	return extents, nil
}
