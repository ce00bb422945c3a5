//go:build linux || darwin

package scan

import (
	"os"
	"os/user"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/tarpack/tarpack/pkg/model"
)

// nameCache memoizes uid/gid to name lookups for the duration of a scan.
type nameCache struct {
	mu     sync.Mutex
	users  map[int]string
	groups map[int]string
}

func newNameCache() *nameCache {
	return &nameCache{
		users:  map[int]string{},
		groups: map[int]string{},
	}
}

func (c *nameCache) userName(uid int) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if name, ok := c.users[uid]; ok {
		return name
	}
	name := ""
	if u, err := user.LookupId(strconv.Itoa(uid)); err == nil {
		name = u.Username
	}
	c.users[uid] = name
	return name
}

func (c *nameCache) groupName(gid int) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if name, ok := c.groups[gid]; ok {
		return name
	}
	name := ""
	if g, err := user.LookupGroupId(strconv.Itoa(gid)); err == nil {
		name = g.Name
	}
	c.groups[gid] = name
	return name
}

// fillOwnership copies the platform stat record into the entry: owner,
// change time and the hard-link key for multiply linked files.
func (s *Scanner) fillOwnership(entry *model.FileEntry, info os.FileInfo) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return
	}
	entry.UID = int(st.Uid)
	entry.GID = int(st.Gid)
	entry.UserName = s.names.userName(entry.UID)
	entry.GroupName = s.names.groupName(entry.GID)
	entry.ChangeTime = time.Unix(ctimeSec(st))
	if st.Nlink > 1 && entry.Kind == model.KindFile {
		entry.LinkKey = strconv.FormatUint(uint64(st.Dev), 16) + ":" + strconv.FormatUint(uint64(st.Ino), 16)
	}
}
