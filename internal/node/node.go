package node

import (
	"os"
	"time"
)

// Kind represents the type of a discovered filesystem entry. The scan
// engine only distinguishes directories from everything else; symlinks
// and special files surface as KindFile leaves.
type Kind string

const (
	KindFile Kind = "file"
	KindDir  Kind = "dir"
)

// KindFromMode derives the Kind from an os.FileMode.
func KindFromMode(mode os.FileMode) Kind {
	if mode.IsDir() {
		return KindDir
	}
	return KindFile
}

// Metadata is the optional per-node detail bundle attached when a scan
// runs with metadata collection enabled.
type Metadata struct {
	Size         int64     `json:"size"`
	ATime        time.Time `json:"atime"`
	MTime        time.Time `json:"mtime"`
	CTime        time.Time `json:"ctime"`
	BirthTime    time.Time `json:"birthtime,omitzero"`
	LinkTarget   string    `json:"linkTarget,omitempty"`
	ResolvedType string    `json:"resolvedType,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// Node is a single discovered filesystem entry. A node is immutable once
// emitted; a node carrying an error still reports the best-guess kind at
// classification time.
type Node struct {
	Path         string    `json:"path"`
	Name         string    `json:"name"`
	Depth        int       `json:"depth"`
	Kind         Kind      `json:"kind"`
	Error        string    `json:"error,omitempty"`
	ErrorCode    string    `json:"errorCode,omitempty"`
	DepthLimited bool      `json:"depthLimited,omitempty"`
	Meta         *Metadata `json:"meta,omitempty"`
}
