// Package fsproj implements the Filesystem Projection (spec.md §4.E): it
// maps the hierarchical virtual path namespace onto reads/writes against
// the Device State Cache, and onto RPCs submitted through the
// Reconciliation Engine on flush. It does not bind to any kernel
// filesystem API (FUSE, 9P, ...) — that binding is an external
// collaborator driving the Projection interface (spec.md §6).
package fsproj

import "time"

// Kind identifies whether a path names a directory or a regular file.
type Kind int

const (
	KindFile Kind = iota
	KindDir
)

// Mode is a coarse read/write permission marker, independent of the
// external collaborator's own uid/gid/mode-bit translation.
type Mode int

const (
	ModeReadOnly Mode = iota
	ModeReadWrite
)

// Attr is the stat-equivalent information the Projection reports for a
// path (spec.md §4.E "Stat").
type Attr struct {
	Kind  Kind
	Mode  Mode
	Size  int64
	Mtime time.Time
}
