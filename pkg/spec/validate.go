package spec

import (
	"github.com/amenzel/incbak/pkg/errors"
	"github.com/amenzel/incbak/pkg/types"
)

// ValidateSources checks identifier and path uniqueness across the
// parsed sources.
func ValidateSources(sources []types.SourceSpec) error {
	seenIDs := make(map[string]bool, len(sources))
	seenPaths := make(map[string]bool, len(sources))
	for _, src := range sources {
		if seenIDs[src.ID] {
			return errors.Newf(errors.ErrDuplicateSourceID,
				"source id %q must be unique", src.ID)
		}
		if seenPaths[src.Path] {
			return errors.Newf(errors.ErrDuplicateSourceID,
				"source path %q given more than once", src.Path)
		}
		seenIDs[src.ID] = true
		seenPaths[src.Path] = true
	}
	return nil
}

// AssociateExcludes resolves every exclude to exactly one source and
// partitions the exclude paths by source identifier.
//
// An explicit exclude must name an existing source identifier. A bare
// exclude is only valid when there is a single source and that source
// itself carries no explicit identifier; with multiple sources the
// association is ambiguous, and with an explicitly identified single
// source the exclude must carry the identifier too.
func AssociateExcludes(sources []types.SourceSpec, excludes []types.ExcludeSpec) (map[string][]string, error) {
	byID := make(map[string][]string, len(sources))
	for _, src := range sources {
		byID[src.ID] = nil
	}

	for _, excl := range excludes {
		if excl.Explicit {
			if _, ok := byID[excl.ID]; !ok {
				return nil, errors.Newf(errors.ErrExcludeIDUnresolved,
					"exclude id %q was not assigned to any source", excl.ID).
					WithDetail("path", excl.Path)
			}
			byID[excl.ID] = append(byID[excl.ID], excl.Path)
			continue
		}

		if len(sources) > 1 {
			return nil, errors.Newf(errors.ErrExcludeAmbiguous,
				"exclude %q cannot be associated with any source; assign an id when using multiple sources", excl.Path)
		}
		if sources[0].HasID() {
			return nil, errors.Newf(errors.ErrExcludeMissingID,
				"exclude %q was not assigned an id", excl.Path)
		}
		byID[""] = append(byID[""], excl.Path)
	}

	return byID, nil
}

// Validate runs source validation and exclude association in order and
// returns the per-source exclude partition.
func Validate(sources []types.SourceSpec, excludes []types.ExcludeSpec) (map[string][]string, error) {
	if err := ValidateSources(sources); err != nil {
		return nil, err
	}
	return AssociateExcludes(sources, excludes)
}
