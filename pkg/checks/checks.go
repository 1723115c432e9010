// Package checks implements the pre-flight requirement checker. Every
// source directory and the destination must exist and contain their
// marker file before anything is written; the checker is exhaustive
// rather than fail-fast so the operator sees all problems at once.
package checks

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/amenzel/incbak/pkg/errors"
	"github.com/amenzel/incbak/pkg/logging"
	"github.com/amenzel/incbak/pkg/types"
)

// writeProbeName is the temporary file used to verify write permission
// on the destination. It is removed again before the checker returns.
const writeProbeName = "incbak_write_check"

// Failure is one unmet requirement.
type Failure struct {
	Code errors.ErrorCode
	Path string
}

func (f Failure) String() string {
	return fmt.Sprintf("%s: %q", f.Code, f.Path)
}

// Report collects every unmet requirement of a session.
type Report struct {
	Failures []Failure
}

// OK reports whether all requirements are met.
func (r *Report) OK() bool {
	return len(r.Failures) == 0
}

// Err converts the report into a single error, or nil when all checks
// passed. The error's code is the first (lowest-numbered) failure so
// the process exit code matches the stable numbering.
func (r *Report) Err() error {
	if r.OK() {
		return nil
	}
	lines := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		lines[i] = f.String()
	}
	return errors.Newf(r.Failures[0].Code, "%d requirement(s) not met: %s",
		len(r.Failures), strings.Join(lines, "; "))
}

func (r *Report) add(code errors.ErrorCode, path string) {
	r.Failures = append(r.Failures, Failure{Code: code, Path: path})
}

// CheckRequirements verifies directories and marker files for every
// source and for the destination. Directory checks come first, marker
// checks second, matching the exit-code ordering. Permission probes
// run last and only when everything else passed, because the write
// probe touches the destination.
func CheckRequirements(fsys types.FS, sources []types.SourceSpec, set types.BackupSet, sourceMarker string) *Report {
	log := logging.GetLogger("checks")
	report := &Report{}

	for _, src := range sources {
		log.Info().Str("id", src.ID).Str("path", src.Path).Msg("Checking data directory")
		if !isDir(fsys, src.Path) {
			log.Error().Str("path", src.Path).Msg("Directory does not exist")
			report.add(errors.ErrSourceDirMissing, src.Path)
		}
	}

	log.Info().Str("path", set.Root).Msg("Checking backup directory")
	if !isDir(fsys, set.Root) {
		log.Error().Str("path", set.Root).Msg("Directory does not exist")
		report.add(errors.ErrDestDirMissing, set.Root)
	}

	for _, src := range sources {
		marker := src.MarkerPath(sourceMarker)
		log.Info().Str("id", src.ID).Str("path", marker).Msg("Checking source marker file")
		if !isFile(fsys, marker) {
			log.Error().Str("path", marker).Msg("Marker file does not exist")
			report.add(errors.ErrSourceMarkerMissing, marker)
		}
	}

	log.Info().Str("path", set.MarkerPath()).Msg("Checking destination marker file")
	if !isFile(fsys, set.MarkerPath()) {
		log.Error().Str("path", set.MarkerPath()).Msg("Marker file does not exist")
		report.add(errors.ErrDestMarkerMissing, set.MarkerPath())
	}

	if !report.OK() {
		log.Error().Int("failures", len(report.Failures)).Msg("Requirements not met, no backup will be done")
		return report
	}

	// Permission probes. Reading the marker proves read access on the
	// source; a create-and-delete round trip proves write access on
	// the destination.
	for _, src := range sources {
		marker := src.MarkerPath(sourceMarker)
		if _, err := fsys.ReadFile(marker); err != nil {
			log.Error().Err(err).Str("path", marker).Msg("Cannot read source marker")
			report.add(errors.ErrSourceUnreadable, marker)
		}
	}

	probe := filepath.Join(set.Root, writeProbeName)
	if err := fsys.WriteFile(probe, []byte{}, 0644); err != nil {
		log.Error().Err(err).Str("path", probe).Msg("Cannot create file in destination")
		report.add(errors.ErrDestUnwritable, probe)
	} else if err := fsys.Remove(probe); err != nil {
		log.Warn().Err(err).Str("path", probe).Msg("Could not remove write probe")
	}

	if !report.OK() {
		log.Error().Int("failures", len(report.Failures)).Msg("Requirements not met, no backup will be done")
	}
	return report
}

func isDir(fsys types.FS, path string) bool {
	info, err := fsys.Stat(path)
	return err == nil && info.IsDir()
}

func isFile(fsys types.FS, path string) bool {
	info, err := fsys.Stat(path)
	return err == nil && !info.IsDir()
}
