// Package spec parses and validates the source and exclude
// specifications given on the command line. Parsing is a pure
// transform from raw id#path tokens to tagged values; validation
// cross-checks the parsed specs against each other.
package spec

import (
	"strings"

	"github.com/amenzel/incbak/pkg/errors"
	"github.com/amenzel/incbak/pkg/types"
)

// SplitPair splits a raw token on the reserved separator. The token
// must contain the separator exactly once with a non-empty string on
// each side; the separator itself is therefore never part of an
// identifier or a path.
func SplitPair(raw, sep string) (id, path string, ok bool) {
	parts := strings.Split(raw, sep)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// ParseSources turns raw source tokens into SourceSpecs. A single bare
// path is allowed and receives the implicit (empty) identifier; with
// more than one source every token must be an id#path pair.
func ParseSources(raw []string, sep string) ([]types.SourceSpec, error) {
	if len(raw) == 1 {
		token := raw[0]
		if !strings.Contains(token, sep) {
			return []types.SourceSpec{{ID: "", Path: token}}, nil
		}
		id, path, ok := SplitPair(token, sep)
		if !ok {
			return nil, errors.Newf(errors.ErrSourcePairMalformed,
				"invalid %s pair for source: %q", "id"+sep+"path", token)
		}
		return []types.SourceSpec{{ID: id, Path: path}}, nil
	}

	sources := make([]types.SourceSpec, 0, len(raw))
	for _, token := range raw {
		id, path, ok := SplitPair(token, sep)
		if !ok {
			return nil, errors.Newf(errors.ErrSourcePairMalformed,
				"invalid %s pair for source: %q", "id"+sep+"path", token)
		}
		sources = append(sources, types.SourceSpec{ID: id, Path: path})
	}
	return sources, nil
}

// ParseExcludes turns raw exclude tokens into ExcludeSpecs. Tokens
// containing the separator must be well-formed pairs; bare paths are
// carried with the implicit identifier and resolved during validation.
func ParseExcludes(raw []string, sep string) ([]types.ExcludeSpec, error) {
	excludes := make([]types.ExcludeSpec, 0, len(raw))
	for _, token := range raw {
		if strings.Contains(token, sep) {
			id, path, ok := SplitPair(token, sep)
			if !ok {
				return nil, errors.Newf(errors.ErrExcludePairMalformed,
					"invalid %s pair for exclude: %q", "id"+sep+"path", token)
			}
			excludes = append(excludes, types.ExcludeSpec{ID: id, Path: path, Explicit: true})
			continue
		}
		excludes = append(excludes, types.ExcludeSpec{Path: token})
	}
	return excludes, nil
}
