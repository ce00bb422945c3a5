//go:build !linux

package scan

import (
	"github.com/tarpack/tarpack/pkg/model"
	"github.com/tarpack/tarpack/pkg/storage/status"
)

// fillACL flags entries explicitly on platforms without POSIX ACL
// support rather than silently dropping the attribute.
func (s *Scanner) fillACL(entry *model.FileEntry, fullPath string) {
	entry.ACLState = model.ACLUnsupported
}

// RestoreACL is not available on this platform.
func RestoreACL(fullPath string, acl []byte) error {
	return status.ErrNotSupported
}
