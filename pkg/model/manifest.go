package model

import (
	"fmt"
	"os"
	"sort"
	"time"

	yaml "gopkg.in/yaml.v2"
)

// CurrentManifestVersion tags the persisted manifest format for forward
// evolution.
const CurrentManifestVersion = 1

// MemberRecord is the durable record of one group member. Size and
// modification time feed the fast-compare path on later runs.
type MemberRecord struct {
	Path        string      `json:"path" yaml:"path"`
	Kind        Kind        `json:"kind" yaml:"kind"`
	Size        int64       `json:"size" yaml:"size"`
	Mode        os.FileMode `json:"mode" yaml:"mode"`
	ModTimeNs   int64       `json:"mtimeNs" yaml:"mtimeNs"`
	Fingerprint string      `json:"hash" yaml:"hash"`
}

// GroupRecord maps one tarball group to its remote object.
type GroupRecord struct {
	Key         string         `json:"key" yaml:"key"`
	Class       GroupClass     `json:"class" yaml:"class"`
	Fingerprint string         `json:"hash" yaml:"hash"`
	RemoteID    string         `json:"remoteId" yaml:"remoteId"`
	Members     []MemberRecord `json:"members" yaml:"members"`
}

// MemberPaths returns the recorded member path list in container order.
func (g *GroupRecord) MemberPaths() []string {
	paths := make([]string, len(g.Members))
	for i := range g.Members {
		paths[i] = g.Members[i].Path
	}
	return paths
}

// DirRecord preserves attributes for directories, including ones with no
// file members (empty directories have no group to carry them).
type DirRecord struct {
	Path      string      `json:"path" yaml:"path"`
	Mode      os.FileMode `json:"mode" yaml:"mode"`
	UID       int         `json:"uid" yaml:"uid"`
	GID       int         `json:"gid" yaml:"gid"`
	ModTimeNs int64       `json:"mtimeNs" yaml:"mtimeNs"`
	ACL       []byte      `json:"acl,omitempty" yaml:"acl,omitempty"`
}

// Manifest is the durable record of the last successful sync: which
// groups exist, what they contain, and which remote objects hold them.
type Manifest struct {
	Version   int       `json:"version" yaml:"version"`
	ID        string    `json:"id" yaml:"id"`
	Parent    string    `json:"parent,omitempty" yaml:"parent,omitempty"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	// Codec names the whole-container compression in force when the
	// manifest was written
	Codec string `json:"codec" yaml:"codec"`
	// FastCompare records the fingerprint shortcut mode the run used
	FastCompare string        `json:"fastCompare" yaml:"fastCompare"`
	Groups      []GroupRecord `json:"groups" yaml:"groups"`
	Dirs        []DirRecord   `json:"dirs,omitempty" yaml:"dirs,omitempty"`
	Links       [][]string    `json:"links,omitempty" yaml:"links,omitempty"`
}

// NewManifest builds an empty manifest at the current format version.
// An empty manifest is the well-defined first-run state, not an error.
func NewManifest() *Manifest {
	return &Manifest{
		Version:   CurrentManifestVersion,
		Timestamp: time.Now().UTC(),
	}
}

// IsEmpty reports whether the manifest records no prior sync.
func (m *Manifest) IsEmpty() bool {
	return m == nil || m.ID == ""
}

// GroupIndex returns a lookup from group key to record.
func (m *Manifest) GroupIndex() map[string]*GroupRecord {
	idx := make(map[string]*GroupRecord, len(m.Groups))
	for i := range m.Groups {
		idx[m.Groups[i].Key] = &m.Groups[i]
	}
	return idx
}

// MemberIndex returns a lookup from member path to record, across all
// groups. It feeds the fast-compare fingerprint shortcut.
func (m *Manifest) MemberIndex() map[string]*MemberRecord {
	idx := make(map[string]*MemberRecord)
	for i := range m.Groups {
		for j := range m.Groups[i].Members {
			rec := &m.Groups[i].Members[j]
			idx[rec.Path] = rec
		}
	}
	return idx
}

// RemoteIDs returns the sorted set of remote object ids the manifest
// references.
func (m *Manifest) RemoteIDs() []string {
	ids := make([]string, 0, len(m.Groups))
	for i := range m.Groups {
		ids = append(ids, m.Groups[i].RemoteID)
	}
	sort.Strings(ids)
	return ids
}

// SortGroups orders group records by key for deterministic serialization.
func (m *Manifest) SortGroups() {
	sort.Slice(m.Groups, func(i, j int) bool {
		return m.Groups[i].Key < m.Groups[j].Key
	})
	sort.Slice(m.Dirs, func(i, j int) bool {
		return m.Dirs[i].Path < m.Dirs[j].Path
	})
}

// MarshalManifest serializes a manifest to its persisted YAML form.
func MarshalManifest(m *Manifest) ([]byte, error) {
	m.SortGroups()
	return yaml.Marshal(m)
}

// UnmarshalManifest deserializes a persisted manifest and validates its
// format version.
func UnmarshalManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshaling manifest: %w", err)
	}
	if m.Version > CurrentManifestVersion {
		return nil, fmt.Errorf("manifest version %d is newer than supported version %d", m.Version, CurrentManifestVersion)
	}
	return &m, nil
}
