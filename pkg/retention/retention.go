// Package retention applies the keep-count policy to a backup set:
// it decides which existing instances survive, which are deleted, and
// which single instance is recycled in place as the staging directory
// for the backup about to be made.
package retention

import (
	"path/filepath"
	"sort"

	"github.com/amenzel/incbak/pkg/errors"
	"github.com/amenzel/incbak/pkg/logging"
	"github.com/amenzel/incbak/pkg/types"
)

// Decide computes the retention decision for the given existing
// instances and keep count. keep = 0 means unlimited: nothing is ever
// deleted or recycled.
//
// With keep = K > 0 and M existing instances, the M-(K-1) oldest are
// scheduled (K-1 survivors plus the instance about to be created make
// K). The oldest scheduled instance becomes the recycle target; when
// an unfinished staging directory is already present it takes the new
// instance's slot instead, so every scheduled instance is deleted
// outright and nothing is recycled.
//
// Instance names are timestamps, so lexicographic name order is
// chronological order; sorting by name is the deterministic, total
// tie-break.
func Decide(instances []types.BackupInstance, keep int, stagingExists bool) types.RetentionDecision {
	sorted := make([]types.BackupInstance, len(instances))
	copy(sorted, instances)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	decision := types.RetentionDecision{}

	scheduled := 0
	if keep > 0 {
		// K-1 survivors plus the instance this run creates make K.
		// M < K implies nothing is scheduled.
		scheduled = len(sorted) - (keep - 1)
		if scheduled < 0 {
			scheduled = 0
		}
	}

	decision.Delete = sorted[:scheduled]
	for i := len(sorted) - 1; i >= scheduled; i-- {
		decision.Keep = append(decision.Keep, sorted[i])
	}
	if scheduled > 0 && !stagingExists {
		decision.Recycle = &decision.Delete[0]
	}

	return decision
}

// Apply executes a retention decision against the backup set: the
// recycle target is renamed onto the staging directory, every other
// scheduled instance is deleted, and the staging directory is created
// when nothing was recycled. After recycling, top-level entries that
// do not correspond to a current source identifier are purged so stale
// data from retired sources does not leak into the new instance.
//
// Apply must complete before the new instance's synchronization
// begins; it mutates the very directory the sync writes into.
func Apply(fsys types.FS, set types.BackupSet, decision types.RetentionDecision, sources []types.SourceSpec) error {
	log := logging.GetLogger("retention")
	staging := set.StagingPath()

	for i := range decision.Delete {
		inst := decision.Delete[i]
		if decision.Recycle != nil && inst.Name == decision.Recycle.Name {
			continue
		}
		log.Info().Str("instance", inst.Name).Msg("Deleting old backup")
		if err := fsys.RemoveAll(inst.Path); err != nil {
			return errors.Wrapf(err, errors.ErrInternal, "failed to delete old backup %q", inst.Path)
		}
	}

	if decision.Recycle != nil {
		log.Info().Str("instance", decision.Recycle.Name).Msg("Recycling old backup")
		if err := fsys.Rename(decision.Recycle.Path, staging); err != nil {
			return errors.Wrapf(err, errors.ErrInternal, "failed to recycle backup %q", decision.Recycle.Path)
		}
		if err := purgeStaleEntries(fsys, staging, sources); err != nil {
			return err
		}
		return nil
	}

	if _, err := fsys.Stat(staging); err != nil {
		if err := fsys.MkdirAll(staging, 0755); err != nil {
			return errors.Wrapf(err, errors.ErrInternal, "failed to create staging directory %q", staging)
		}
	}
	return nil
}

// purgeStaleEntries removes top-level files and directories of the
// recycled staging dir that no current source identifier claims. With
// a single identifier-less source the whole tree is the link content
// and stays untouched.
func purgeStaleEntries(fsys types.FS, staging string, sources []types.SourceSpec) error {
	if len(sources) == 1 && !sources[0].HasID() {
		return nil
	}

	log := logging.GetLogger("retention")
	ids := make(map[string]bool, len(sources))
	for _, src := range sources {
		ids[src.ID] = true
	}

	entries, err := fsys.ReadDir(staging)
	if err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "failed to list staging directory %q", staging)
	}
	for _, entry := range entries {
		if entry.IsDir() && ids[entry.Name()] {
			continue
		}
		path := filepath.Join(staging, entry.Name())
		log.Info().Str("path", path).Msg("Removing stale entry from recycled backup")
		if err := fsys.RemoveAll(path); err != nil {
			return errors.Wrapf(err, errors.ErrInternal, "failed to remove stale entry %q", path)
		}
	}
	return nil
}
