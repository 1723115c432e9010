package types

// SourcePlan is the finalized per-source invocation handed to the
// Syncer. DestPath points inside the staging directory; LinkBase is the
// --link-dest argument relative to the destination, empty when this is
// the first backup for the source's identifier (full copy).
type SourcePlan struct {
	Source   SourceSpec
	DestPath string
	LinkBase string
	Excludes []string
	LogFile  string
}

// SessionPlan is the complete, immutable plan for one backup run.
type SessionPlan struct {
	Set          BackupSet
	InstanceName string
	InstancePath string
	Sources      []SourcePlan
}

// RetentionDecision records which existing instances survive a session,
// which are deleted, and which single instance (if any) is reused in
// place as the staging directory for the new backup.
type RetentionDecision struct {
	// Keep lists surviving instances, newest first.
	Keep []BackupInstance
	// Delete lists instances removed outright, oldest first.
	Delete []BackupInstance
	// Recycle, when non-nil, is renamed onto the staging directory
	// instead of being deleted.
	Recycle *BackupInstance
}

// SourceResult is the per-source outcome of the execution stage.
type SourceResult struct {
	Source SourceSpec
	Err    error
}

// SessionResult aggregates a run's outcome. Promoted is true once the
// staging directory has been renamed to its final instance name.
type SessionResult struct {
	Plan     SessionPlan
	Results  []SourceResult
	Promoted bool
	LogFiles []string
}
