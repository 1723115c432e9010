package types

import (
	"context"
	"io/fs"
)

// FS is the filesystem interface required for incbak operations
type FS interface {
	// File operations
	Stat(name string) (fs.FileInfo, error)
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm fs.FileMode) error

	// Directory operations
	MkdirAll(path string, perm fs.FileMode) error
	ReadDir(name string) ([]fs.DirEntry, error)

	// Other operations
	Rename(oldpath, newpath string) error
	Remove(name string) error
	RemoveAll(path string) error
}

// Syncer performs the byte-level synchronization of a single source
// into its destination subpath. The in-tree implementation shells out
// to rsync; tests substitute a fake.
type Syncer interface {
	Sync(ctx context.Context, plan SourcePlan) error
}
