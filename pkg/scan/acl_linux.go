//go:build linux

package scan

import (
	"github.com/tarpack/tarpack/pkg/model"
	"golang.org/x/sys/unix"
)

// aclXattrName is the access ACL attribute defined by the POSIX.1e
// draft; its binary blob round-trips without interpretation.
const aclXattrName = "system.posix_acl_access"

// fillACL captures the opaque access ACL blob of an entry. Files with
// only a minimal ACL (the one implied by their permission bits) carry no
// xattr and stay ACLNone.
func (s *Scanner) fillACL(entry *model.FileEntry, fullPath string) {
	if !s.isOsBacked() {
		entry.ACLState = model.ACLUnsupported
		return
	}
	sz, err := unix.Lgetxattr(fullPath, aclXattrName, nil)
	if err != nil {
		switch err {
		case unix.ENODATA, unix.EOPNOTSUPP:
			return
		default:
			entry.ACLState = model.ACLUnsupported
			return
		}
	}
	buf := make([]byte, sz)
	n, err := unix.Lgetxattr(fullPath, aclXattrName, buf)
	if err != nil {
		entry.ACLState = model.ACLUnsupported
		return
	}
	entry.ACL = buf[:n]
	entry.ACLState = model.ACLPresent
}

// RestoreACL writes a captured ACL blob back onto a path.
func RestoreACL(fullPath string, acl []byte) error {
	return unix.Lsetxattr(fullPath, aclXattrName, acl, 0)
}
