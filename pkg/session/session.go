// Package session orchestrates a full backup run: specification
// parsing and validation, requirement checks, retention, planning,
// synchronization, and finally promotion of the staging directory to a
// named backup instance.
//
// The stages are strictly ordered. Nothing in the destination is
// touched before every requirement check has passed, and retention runs
// before planning because the plan's hard-link base depends on which
// instances survive.
package session

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/amenzel/incbak/pkg/checks"
	"github.com/amenzel/incbak/pkg/config"
	"github.com/amenzel/incbak/pkg/errors"
	"github.com/amenzel/incbak/pkg/logging"
	"github.com/amenzel/incbak/pkg/planner"
	"github.com/amenzel/incbak/pkg/retention"
	"github.com/amenzel/incbak/pkg/spec"
	"github.com/amenzel/incbak/pkg/types"
)

// defaultSummaryName is the file listing the rsync log files of the
// most recent run, written next to the logs unless configured otherwise.
const defaultSummaryName = "latest_log_files.txt"

// Options carries everything one run needs. FS and Syncer are injected
// so tests can drive a session against in-memory doubles.
type Options struct {
	// Sources are the raw source tokens, either bare paths or
	// id-separator-path pairs.
	Sources []string
	// Destination is the backup destination root.
	Destination string
	// Excludes are the raw exclude tokens.
	Excludes []string
	// Keep is the number of backups to retain, 0 meaning unlimited.
	Keep int
	// DstFQDN appends the machine's FQDN as a subfolder under the
	// destination root.
	DstFQDN bool
	// Parallel synchronizes all sources concurrently instead of one
	// after another.
	Parallel bool
	// DryRun reports the retention decision and the per-source plans
	// without touching the destination.
	DryRun bool
	// LogDir overrides the directory for rsync log files.
	LogDir string
	// LogSummary overrides the path of the log summary file.
	LogSummary string
	// RunLog is the path of this run's main log file. It is recorded
	// in the log summary ahead of the per-source rsync logs.
	RunLog string

	Config *config.Config
	FS     types.FS
	Syncer types.Syncer
	// Now stamps the backup instance; defaults to time.Now.
	Now func() time.Time
}

// Run executes one backup session and returns its result. On failure
// the returned error carries a stable exit code; a partially written
// result may accompany it so callers can still report per-source
// outcomes.
func Run(ctx context.Context, opts Options) (*types.SessionResult, error) {
	log := logging.GetLogger("session")

	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	if opts.Keep < 0 {
		return nil, errors.Newf(errors.ErrKeepInvalid, "keep count must be zero or positive, got %d", opts.Keep)
	}

	sources, err := spec.ParseSources(opts.Sources, cfg.Backup.Separator)
	if err != nil {
		return nil, err
	}
	excludes, err := spec.ParseExcludes(opts.Excludes, cfg.Backup.Separator)
	if err != nil {
		return nil, err
	}
	excludeMap, err := spec.Validate(sources, excludes)
	if err != nil {
		return nil, err
	}

	fqdn := ""
	if opts.DstFQDN {
		fqdn = planner.FQDN()
	}
	set := planner.ResolveSet(opts.Destination, fqdn, cfg.Markers.Destination, cfg.Backup.StagingDir)
	log.Info().Str("root", set.Root).Int("sources", len(sources)).
		Int("keep", opts.Keep).Msg("Starting backup session")

	if report := checks.CheckRequirements(opts.FS, sources, set, cfg.Markers.Source); !report.OK() {
		return nil, report.Err()
	}

	instances, err := planner.ListInstances(opts.FS, set)
	if err != nil {
		return nil, err
	}
	stagingExists := false
	if _, err := opts.FS.Stat(set.StagingPath()); err == nil {
		stagingExists = true
		log.Info().Str("path", set.StagingPath()).Msg("Reusing leftover staging directory from an aborted run")
	}
	decision := retention.Decide(instances, opts.Keep, stagingExists)

	if opts.DryRun {
		return dryRun(opts, cfg, set, sources, excludeMap, decision, now(), log)
	}

	if err := retention.Apply(opts.FS, set, decision, sources); err != nil {
		return nil, err
	}

	logDir := resolveLogDir(opts, cfg)
	if err := opts.FS.MkdirAll(logDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, errors.ErrInternal, "failed to create log directory %q", logDir)
	}

	plan, err := planner.BuildPlan(opts.FS, set, sources, excludeMap, now(), logDir)
	if err != nil {
		return nil, err
	}

	result := &types.SessionResult{Plan: plan}
	if opts.RunLog != "" {
		result.LogFiles = append(result.LogFiles, opts.RunLog)
	}
	for _, sp := range plan.Sources {
		result.LogFiles = append(result.LogFiles, sp.LogFile)
	}

	result.Results = runSync(ctx, opts.Syncer, plan, opts.Parallel)

	failed := 0
	for _, r := range result.Results {
		if r.Err != nil {
			failed++
			log.Error().Err(r.Err).Str("id", r.Source.ID).Str("path", r.Source.Path).
				Msg("Source failed to synchronize")
		}
	}
	writeSummary(opts, cfg, logDir, result.LogFiles, log)
	if failed > 0 {
		// The staging directory is left in place so the next run can
		// pick up from the partial copy.
		return result, errors.Newf(errors.ErrSyncFailed,
			"%d of %d source(s) failed to synchronize, backup not promoted", failed, len(result.Results))
	}

	if err := opts.FS.Rename(set.StagingPath(), plan.InstancePath); err != nil {
		return result, errors.Wrapf(err, errors.ErrSyncFailed,
			"failed to promote backup to %q", plan.InstancePath)
	}
	result.Promoted = true
	log.Info().Str("instance", plan.InstanceName).Msg("Backup completed")

	return result, nil
}

// dryRun reports what the session would do without mutating the
// destination. The plan is built against the current state of the set,
// so with a keep count low enough to schedule the newest instance the
// reported link-base may differ from what a real run would use.
func dryRun(opts Options, cfg *config.Config, set types.BackupSet,
	sources []types.SourceSpec, excludeMap map[string][]string,
	decision types.RetentionDecision, now time.Time, log zerolog.Logger) (*types.SessionResult, error) {

	for _, inst := range decision.Delete {
		if decision.Recycle != nil && inst.Name == decision.Recycle.Name {
			log.Info().Str("instance", inst.Name).Msg("Would recycle as staging directory")
			continue
		}
		log.Info().Str("instance", inst.Name).Msg("Would delete old backup")
	}

	plan, err := planner.BuildPlan(opts.FS, set, sources, excludeMap, now, resolveLogDir(opts, cfg))
	if err != nil {
		return nil, err
	}
	for _, sp := range plan.Sources {
		log.Info().Str("id", sp.Source.ID).Str("from", sp.Source.Path).
			Str("to", sp.DestPath).Str("link_base", sp.LinkBase).
			Msg("Would synchronize source")
	}
	log.Info().Str("instance", plan.InstanceName).Msg("Dry run, nothing was written")
	return &types.SessionResult{Plan: plan}, nil
}

// runSync executes the per-source plans, sequentially or all at once.
// Every source runs to completion regardless of sibling failures so
// the partial copy is as complete as possible.
func runSync(ctx context.Context, syncer types.Syncer, plan types.SessionPlan, parallel bool) []types.SourceResult {
	results := make([]types.SourceResult, len(plan.Sources))

	if !parallel {
		for i, sp := range plan.Sources {
			results[i] = types.SourceResult{Source: sp.Source, Err: syncer.Sync(ctx, sp)}
		}
		return results
	}

	var g errgroup.Group
	for i, sp := range plan.Sources {
		g.Go(func() error {
			results[i] = types.SourceResult{Source: sp.Source, Err: syncer.Sync(ctx, sp)}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func resolveLogDir(opts Options, cfg *config.Config) string {
	if opts.LogDir != "" {
		return opts.LogDir
	}
	if cfg.Logging.Dir != "" {
		return cfg.Logging.Dir
	}
	return logging.DefaultLogDir()
}

// writeSummary records the run's rsync log files, one path per line,
// so wrapper scripts can inspect the latest logs without globbing. A
// summary write failure never fails the session.
func writeSummary(opts Options, cfg *config.Config, logDir string, logFiles []string, log zerolog.Logger) {
	path := opts.LogSummary
	if path == "" {
		path = cfg.Logging.Summary
	}
	if path == "" {
		path = filepath.Join(logDir, defaultSummaryName)
	}

	content := strings.Join(logFiles, "\n")
	if content != "" {
		content += "\n"
	}
	if err := opts.FS.WriteFile(path, []byte(content), 0o644); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to write log summary")
		return
	}
	log.Debug().Str("path", path).Msg("Wrote log summary")
}
