// Package planner computes the plan for one backup session: the
// backup set root (optionally namespaced by the machine's FQDN), the
// new instance's timestamp name, and the per-source invocation plans
// with their hard-link bases and exclude lists.
package planner

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/amenzel/incbak/pkg/errors"
	"github.com/amenzel/incbak/pkg/logging"
	"github.com/amenzel/incbak/pkg/types"
	"github.com/rs/zerolog"
)

// instanceNameLayout names backup instances so that lexicographic and
// chronological order coincide. The layout is part of the on-disk
// format; changing it orphans existing instances.
const instanceNameLayout = "2006-01-02_15:04:05"

var instanceNamePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}_\d{2}:\d{2}:\d{2}$`)

// InstanceName formats the instance directory name for a session
// started at t.
func InstanceName(t time.Time) string {
	return t.Format(instanceNameLayout)
}

// IsInstanceName reports whether a directory name is a backup instance
// name. Anything else inside the backup set is left alone.
func IsInstanceName(name string) bool {
	return instanceNamePattern.MatchString(name)
}

// FQDN returns the machine's fully-qualified domain name, falling back
// to the plain hostname when reverse resolution is unavailable.
func FQDN() string {
	host, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	addrs, err := net.LookupHost(host)
	if err != nil {
		return host
	}
	for _, addr := range addrs {
		names, err := net.LookupAddr(addr)
		if err != nil || len(names) == 0 {
			continue
		}
		fqdn := strings.TrimSuffix(names[0], ".")
		if fqdn != "" {
			return fqdn
		}
	}
	return host
}

// ResolveSet builds the BackupSet for a destination root. A non-empty
// fqdn is appended as a subfolder, namespacing backups from several
// machines inside one destination.
func ResolveSet(root, fqdn, markerName, stagingDir string) types.BackupSet {
	if fqdn != "" {
		root = filepath.Join(root, fqdn)
	}
	return types.BackupSet{Root: root, MarkerName: markerName, StagingDir: stagingDir}
}

// ListInstances enumerates the promoted backup instances of a set,
// oldest first. Only directories matching the instance name pattern
// count; the staging directory and foreign entries are ignored.
func ListInstances(fsys types.FS, set types.BackupSet) ([]types.BackupInstance, error) {
	entries, err := fsys.ReadDir(set.Root)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrInternal, "failed to list backup set %q", set.Root)
	}

	var instances []types.BackupInstance
	for _, entry := range entries {
		if !entry.IsDir() || !IsInstanceName(entry.Name()) {
			continue
		}
		instances = append(instances, types.BackupInstance{
			Name: entry.Name(),
			Path: filepath.Join(set.Root, entry.Name()),
		})
	}
	sort.Slice(instances, func(i, j int) bool { return instances[i].Name < instances[j].Name })
	return instances, nil
}

// BuildPlan assembles the full session plan. It scans the set for the
// most recent instance to use as hard-link base, so it must run after
// the retention step has finished mutating the destination tree.
//
// The link-base is expressed relative to each source's destination
// directory, the form rsync expects for --link-dest. A source whose
// identifier has no subdirectory under the latest instance gets no
// link-base and is copied in full; an existing but empty link-base is
// passed through untouched.
func BuildPlan(fsys types.FS, set types.BackupSet, sources []types.SourceSpec,
	excludes map[string][]string, now time.Time, logDir string) (types.SessionPlan, error) {

	log := logging.GetLogger("planner")

	instances, err := ListInstances(fsys, set)
	if err != nil {
		return types.SessionPlan{}, err
	}

	var latest *types.BackupInstance
	if len(instances) > 0 {
		latest = &instances[len(instances)-1]
		log.Info().Str("instance", latest.Name).Msg("Using latest backup as link base")
	} else {
		log.Info().Msg("No previous backup found, first backup copies everything")
	}

	name := InstanceName(now)
	plan := types.SessionPlan{
		Set:          set,
		InstanceName: name,
		InstancePath: filepath.Join(set.Root, name),
	}

	for _, src := range sources {
		sp := types.SourcePlan{
			Source:   src,
			DestPath: set.StagingPath(),
			Excludes: excludes[src.ID],
			LogFile:  logFileName(logDir, name, src),
		}
		if src.HasID() {
			sp.DestPath = filepath.Join(set.StagingPath(), src.ID)
		}
		sp.LinkBase = linkBase(fsys, latest, src, log)
		plan.Sources = append(plan.Sources, sp)
	}

	return plan, nil
}

// linkBase resolves the --link-dest path for one source, relative to
// the source's destination directory inside the staging dir.
func linkBase(fsys types.FS, latest *types.BackupInstance, src types.SourceSpec, log zerolog.Logger) string {
	if latest == nil {
		return ""
	}

	if !src.HasID() {
		return "../" + latest.Name
	}

	target := filepath.Join(latest.Path, src.ID)
	if _, err := fsys.Stat(target); err != nil {
		log.Warn().Str("id", src.ID).Str("path", target).
			Msg("Latest backup has no subdirectory for this source id, copying in full")
		return ""
	}
	return "../../" + latest.Name + "/" + src.ID
}

// logFileName names the per-source rsync log file for this run.
func logFileName(logDir, instanceName string, src types.SourceSpec) string {
	if !src.HasID() {
		return filepath.Join(logDir, fmt.Sprintf("%s_rsync.log", instanceName))
	}
	return filepath.Join(logDir, fmt.Sprintf("%s_%s_rsync.log", instanceName, src.ID))
}
