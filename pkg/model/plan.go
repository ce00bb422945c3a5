package model

import "fmt"

// OpType tags the variants of a sync Operation.
type OpType uint

const (
	// OpSkip keeps the recorded remote object, no remote interaction
	OpSkip OpType = iota
	// OpUpload transfers a new group container
	OpUpload
	// OpReplace overwrites the remote object of a group whose key is
	// stable but whose fingerprint changed
	OpReplace
	// OpDelete removes a remote object whose group left the candidate
	// set; deletes are ordered after all uploads succeed
	OpDelete
)

func (t OpType) String() string {
	switch t {
	case OpSkip:
		return "skip"
	case OpUpload:
		return "upload"
	case OpReplace:
		return "replace"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("optype(%d)", uint(t))
	}
}

// Operation is one planned remote mutation (or non-mutation).
type Operation struct {
	Type OpType
	// Group is the candidate group; nil for OpDelete
	Group *TarballGroup
	// RemoteID is the object the operation targets
	RemoteID string
	// OldRemoteID is the object being superseded (OpReplace) or removed
	// (OpDelete)
	OldRemoteID string
}

func (op Operation) String() string {
	switch op.Type {
	case OpDelete:
		return fmt.Sprintf("%-7s %s", op.Type, op.OldRemoteID)
	default:
		return fmt.Sprintf("%-7s %s -> %s", op.Type, op.Group.Key, op.RemoteID)
	}
}

// SyncPlan is the full ordered operation list for one run, plus the
// manifest those operations produce when fully applied.
type SyncPlan struct {
	Operations []Operation
	// Next is committed by the executor only after every operation
	// succeeded
	Next *Manifest
}

// Counts tallies operations by type.
func (p *SyncPlan) Counts() (skip, upload, replace, del int) {
	for _, op := range p.Operations {
		switch op.Type {
		case OpSkip:
			skip++
		case OpUpload:
			upload++
		case OpReplace:
			replace++
		case OpDelete:
			del++
		}
	}
	return
}

// IsNoop reports whether the plan requires no remote mutation.
func (p *SyncPlan) IsNoop() bool {
	_, upload, replace, del := p.Counts()
	return upload+replace+del == 0
}
