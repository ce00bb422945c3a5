package model

import "fmt"

// GroupClass discriminates aggregated groups from standalone transfers.
type GroupClass string

const (
	// ClassSmall is an aggregation of files below the per-file cutoff
	ClassSmall GroupClass = "small"
	// ClassStandalone is a single file transferred in its own container
	ClassStandalone GroupClass = "standalone"
)

// TarballGroup is one aggregation unit: an ordered set of entries packed
// into a single remote container object.
type TarballGroup struct {
	// Key is the stable grouping identity: "<dir>#<index>" for small
	// groups, the member path for standalone groups. Remote object ids
	// derive from the key, so a group whose content changes keeps its
	// remote object (Replace) while membership topology changes produce
	// Upload/Delete pairs.
	Key   string
	Class GroupClass
	// Members is ordered lexicographically by path; ordering is part of
	// the group identity because container layout is positional
	Members []FileEntry
	// Fingerprint is the group fingerprint: a hash over the canonical
	// sequence of member paths and member content fingerprints
	Fingerprint string
	// TotalSize is the total uncompressed logical size of the members
	TotalSize int64
}

// SmallGroupKey builds the grouping key for the index-th small group
// opened in dir.
func SmallGroupKey(dir string, index int) string {
	return fmt.Sprintf("%s#%05d", dir, index)
}

// MemberPaths returns the ordered member path list.
func (g *TarballGroup) MemberPaths() []string {
	paths := make([]string, len(g.Members))
	for i := range g.Members {
		paths[i] = g.Members[i].Path
	}
	return paths
}
