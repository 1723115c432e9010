package types

import "path/filepath"

// SourceSpec is one directory tree to back up. ID is empty when a
// single bare path was given; in that case the source syncs directly
// into the instance root instead of a per-identifier subdirectory.
type SourceSpec struct {
	ID   string
	Path string
}

// HasID reports whether the source carries an explicit identifier.
func (s SourceSpec) HasID() bool {
	return s.ID != ""
}

// MarkerPath returns the path of the source marker file.
func (s SourceSpec) MarkerPath(markerName string) string {
	return filepath.Join(s.Path, markerName)
}

// ExcludeSpec is a path excluded from one source's backup. ID
// references the SourceSpec the exclude is scoped to; Explicit records
// whether the identifier was given on the command line or inferred.
type ExcludeSpec struct {
	ID       string
	Path     string
	Explicit bool
}

// BackupSet is the destination root holding the backup instances,
// already joined with the FQDN subfolder when that option is enabled.
type BackupSet struct {
	Root       string
	MarkerName string
	StagingDir string
}

// MarkerPath returns the path of the destination marker file.
func (b BackupSet) MarkerPath() string {
	return filepath.Join(b.Root, b.MarkerName)
}

// StagingPath returns the path of the partial-backup staging directory.
func (b BackupSet) StagingPath() string {
	return filepath.Join(b.Root, b.StagingDir)
}

// BackupInstance is one promoted, timestamp-named backup directory
// under a BackupSet.
type BackupInstance struct {
	Name string
	Path string
}
