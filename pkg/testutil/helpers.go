// Package testutil provides an in-memory types.FS implementation and
// fixture helpers for backup engine tests.
package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/amenzel/incbak/pkg/types"
	"github.com/stretchr/testify/require"
)

// NewSourceFixture creates a source directory with its marker file.
func NewSourceFixture(t *testing.T, fsys *MemoryFS, path, markerName string) {
	t.Helper()
	require.NoError(t, fsys.MkdirAll(path, 0755))
	require.NoError(t, fsys.WriteFile(path+"/"+markerName, []byte{}, 0644))
}

// NewDestinationFixture creates a backup set root with its marker file.
func NewDestinationFixture(t *testing.T, fsys *MemoryFS, root, markerName string) {
	t.Helper()
	require.NoError(t, fsys.MkdirAll(root, 0755))
	require.NoError(t, fsys.WriteFile(root+"/"+markerName, []byte{}, 0644))
}

// NewInstanceFixture creates a promoted backup instance directory with
// the given per-identifier subdirectories (pass no ids for an instance
// populated at its root).
func NewInstanceFixture(t *testing.T, fsys *MemoryFS, setRoot, name string, ids ...string) {
	t.Helper()
	require.NoError(t, fsys.MkdirAll(setRoot+"/"+name, 0755))
	for _, id := range ids {
		require.NoError(t, fsys.MkdirAll(setRoot+"/"+name+"/"+id, 0755))
	}
}

// FakeSyncer records every plan it is handed and fails for sources
// whose identifier is listed in FailIDs. When FS is set, a successful
// sync materializes the plan's destination directory the way rsync
// would.
type FakeSyncer struct {
	mu      sync.Mutex
	Plans   []types.SourcePlan
	FailIDs map[string]error
	FS      types.FS
}

func (f *FakeSyncer) Sync(_ context.Context, plan types.SourcePlan) error {
	f.mu.Lock()
	f.Plans = append(f.Plans, plan)
	f.mu.Unlock()
	if f.FailIDs != nil {
		if err, ok := f.FailIDs[plan.Source.ID]; ok {
			return err
		}
	}
	if f.FS != nil {
		return f.FS.MkdirAll(plan.DestPath, 0755)
	}
	return nil
}

var _ types.Syncer = (*FakeSyncer)(nil)
