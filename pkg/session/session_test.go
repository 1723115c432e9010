package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/amenzel/incbak/pkg/config"
	"github.com/amenzel/incbak/pkg/errors"
	"github.com/amenzel/incbak/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

const testInstance = "2026-03-04_05:06:07"

// newEnv builds a destination set with the given source paths ready to
// back up, plus default options pointed at an in-memory filesystem.
func newEnv(t *testing.T, sources ...string) (*testutil.MemoryFS, *testutil.FakeSyncer, Options) {
	t.Helper()
	cfg := config.Default()
	fsys := testutil.NewMemoryFS()
	for _, src := range sources {
		testutil.NewSourceFixture(t, fsys, src, cfg.Markers.Source)
	}
	testutil.NewDestinationFixture(t, fsys, "/backup", cfg.Markers.Destination)

	syncer := &testutil.FakeSyncer{FS: fsys}
	opts := Options{
		Destination: "/backup",
		DstFQDN:     false,
		LogDir:      "/logs",
		Config:      cfg,
		FS:          fsys,
		Syncer:      syncer,
		Now:         func() time.Time { return testTime },
	}
	return fsys, syncer, opts
}

func TestRunFirstBackupTwoSources(t *testing.T) {
	fsys, syncer, opts := newEnv(t, "/srv/data", "/var/www")
	opts.Sources = []string{"DATA#/srv/data", "WWW#/var/www"}

	result, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.True(t, result.Promoted)

	assert.True(t, fsys.Exists("/backup/"+testInstance))
	assert.True(t, fsys.Exists("/backup/"+testInstance+"/DATA"))
	assert.True(t, fsys.Exists("/backup/"+testInstance+"/WWW"))
	assert.False(t, fsys.Exists("/backup/tmp_partial_backup"))

	require.Len(t, syncer.Plans, 2)
	assert.Equal(t, "/backup/tmp_partial_backup/DATA", syncer.Plans[0].DestPath)
	assert.Equal(t, "/backup/tmp_partial_backup/WWW", syncer.Plans[1].DestPath)
	for _, plan := range syncer.Plans {
		assert.Empty(t, plan.LinkBase, "first backup must copy in full")
	}
}

func TestRunIncrementalUsesLinkBase(t *testing.T) {
	fsys, syncer, opts := newEnv(t, "/srv/data")
	opts.Sources = []string{"DATA#/srv/data"}
	testutil.NewInstanceFixture(t, fsys, "/backup", "2026-03-01_00:00:00", "DATA")

	result, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.True(t, result.Promoted)

	require.Len(t, syncer.Plans, 1)
	assert.Equal(t, "../../2026-03-01_00:00:00/DATA", syncer.Plans[0].LinkBase)
	assert.True(t, fsys.Exists("/backup/2026-03-01_00:00:00"), "previous instance survives with keep=0")
}

func TestRunDefaultSourceSyncsIntoInstanceRoot(t *testing.T) {
	fsys, syncer, opts := newEnv(t, "/srv/data")
	opts.Sources = []string{"/srv/data"}
	testutil.NewInstanceFixture(t, fsys, "/backup", "2026-03-01_00:00:00")

	_, err := Run(context.Background(), opts)
	require.NoError(t, err)

	require.Len(t, syncer.Plans, 1)
	assert.Equal(t, "/backup/tmp_partial_backup", syncer.Plans[0].DestPath)
	assert.Equal(t, "../2026-03-01_00:00:00", syncer.Plans[0].LinkBase)
	assert.True(t, fsys.Exists("/backup/"+testInstance))
}

func TestRunKeepRecyclesOldest(t *testing.T) {
	fsys, _, opts := newEnv(t, "/srv/data")
	opts.Sources = []string{"/srv/data"}
	opts.Keep = 3
	names := []string{
		"2026-02-25_00:00:00",
		"2026-02-26_00:00:00",
		"2026-02-27_00:00:00",
		"2026-02-28_00:00:00",
		"2026-03-01_00:00:00",
	}
	for _, name := range names {
		testutil.NewInstanceFixture(t, fsys, "/backup", name)
	}

	result, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.True(t, result.Promoted)

	// Keep 3 means two survivors plus the new instance.
	for _, name := range names[:3] {
		assert.False(t, fsys.Exists("/backup/"+name), "%s should be gone", name)
	}
	for _, name := range names[3:] {
		assert.True(t, fsys.Exists("/backup/"+name), "%s should survive", name)
	}
	assert.True(t, fsys.Exists("/backup/"+testInstance))
	assert.False(t, fsys.Exists("/backup/tmp_partial_backup"))
}

func TestRunExcludesReachSyncer(t *testing.T) {
	_, syncer, opts := newEnv(t, "/srv/data")
	opts.Sources = []string{"DATA#/srv/data"}
	opts.Excludes = []string{"DATA#cache/", "DATA#*.tmp"}

	_, err := Run(context.Background(), opts)
	require.NoError(t, err)
	require.Len(t, syncer.Plans, 1)
	assert.Equal(t, []string{"cache/", "*.tmp"}, syncer.Plans[0].Excludes)
}

func TestRunSourceFailureLeavesStaging(t *testing.T) {
	fsys, syncer, opts := newEnv(t, "/srv/data", "/var/www")
	opts.Sources = []string{"DATA#/srv/data", "WWW#/var/www"}
	syncer.FailIDs = map[string]error{"WWW": fmt.Errorf("connection reset")}

	result, err := Run(context.Background(), opts)
	require.Error(t, err)
	assert.Equal(t, 51, errors.ExitCode(err))
	require.NotNil(t, result)
	assert.False(t, result.Promoted)

	assert.True(t, fsys.Exists("/backup/tmp_partial_backup"), "staging stays for the next run")
	assert.False(t, fsys.Exists("/backup/"+testInstance))
}

func TestRunMissingMarkerMutatesNothing(t *testing.T) {
	fsys, syncer, opts := newEnv(t)
	require.NoError(t, fsys.MkdirAll("/srv/data", 0755)) // dir exists, marker does not
	opts.Sources = []string{"DATA#/srv/data"}

	_, err := Run(context.Background(), opts)
	require.Error(t, err)
	assert.Equal(t, 33, errors.ExitCode(err))
	assert.Empty(t, syncer.Plans)
	assert.False(t, fsys.Exists("/backup/tmp_partial_backup"))
	assert.False(t, fsys.Exists("/logs"))
}

func TestRunSpecificationErrors(t *testing.T) {
	tests := []struct {
		name     string
		sources  []string
		excludes []string
		keep     int
		wantExit int
	}{
		{
			name:     "negative_keep",
			sources:  []string{"/srv/data"},
			keep:     -1,
			wantExit: 11,
		},
		{
			name:     "malformed_source_pair",
			sources:  []string{"DATA#/srv/data", "/var/www"},
			wantExit: 21,
		},
		{
			name:     "duplicate_source_id",
			sources:  []string{"DATA#/srv/data", "DATA#/var/www"},
			wantExit: 22,
		},
		{
			name:     "exclude_for_unknown_id",
			sources:  []string{"DATA#/srv/data"},
			excludes: []string{"WWW#cache/"},
			wantExit: 24,
		},
		{
			name:     "ambiguous_bare_exclude",
			sources:  []string{"DATA#/srv/data", "WWW#/var/www"},
			excludes: []string{"cache/"},
			wantExit: 25,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, opts := newEnv(t, "/srv/data", "/var/www")
			opts.Sources = tt.sources
			opts.Excludes = tt.excludes
			opts.Keep = tt.keep

			_, err := Run(context.Background(), opts)
			require.Error(t, err)
			assert.Equal(t, tt.wantExit, errors.ExitCode(err))
		})
	}
}

func TestRunParallel(t *testing.T) {
	fsys, syncer, opts := newEnv(t, "/srv/data", "/var/www", "/home")
	opts.Sources = []string{"DATA#/srv/data", "WWW#/var/www", "HOME#/home"}
	opts.Parallel = true

	result, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.True(t, result.Promoted)
	assert.Len(t, syncer.Plans, 3)
	assert.True(t, fsys.Exists("/backup/"+testInstance))
}

func TestRunWritesLogSummary(t *testing.T) {
	fsys, _, opts := newEnv(t, "/srv/data", "/var/www")
	opts.Sources = []string{"DATA#/srv/data", "WWW#/var/www"}
	opts.RunLog = "/logs/" + testInstance + "_incbak.log"

	result, err := Run(context.Background(), opts)
	require.NoError(t, err)

	// The run's own log comes first, then one rsync log per source.
	require.Len(t, result.LogFiles, 3)
	assert.Equal(t, opts.RunLog, result.LogFiles[0])
	assert.Equal(t, "/logs/"+testInstance+"_DATA_rsync.log", result.LogFiles[1])
	assert.Equal(t, "/logs/"+testInstance+"_WWW_rsync.log", result.LogFiles[2])

	data, rerr := fsys.ReadFile("/logs/latest_log_files.txt")
	require.NoError(t, rerr)
	want := result.LogFiles[0] + "\n" + result.LogFiles[1] + "\n" + result.LogFiles[2] + "\n"
	assert.Equal(t, want, string(data))
}

func TestRunDryRunMutatesNothing(t *testing.T) {
	fsys, syncer, opts := newEnv(t, "/srv/data")
	opts.Sources = []string{"/srv/data"}
	opts.Keep = 1
	opts.DryRun = true
	testutil.NewInstanceFixture(t, fsys, "/backup", "2026-03-01_00:00:00")

	result, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.False(t, result.Promoted)
	assert.Empty(t, syncer.Plans)

	// Scheduled for recycling, but a dry run touches nothing.
	assert.True(t, fsys.Exists("/backup/2026-03-01_00:00:00"))
	assert.False(t, fsys.Exists("/backup/tmp_partial_backup"))
	assert.False(t, fsys.Exists("/backup/"+testInstance))
	assert.False(t, fsys.Exists("/logs"))
}

func TestRunReusesLeftoverStaging(t *testing.T) {
	fsys, _, opts := newEnv(t, "/srv/data")
	opts.Sources = []string{"/srv/data"}
	opts.Keep = 2
	testutil.NewInstanceFixture(t, fsys, "/backup", "2026-03-01_00:00:00")
	require.NoError(t, fsys.MkdirAll("/backup/tmp_partial_backup", 0755))

	result, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.True(t, result.Promoted)

	// With an existing staging dir nothing is recycled and the single
	// prior instance survives under keep=2.
	assert.True(t, fsys.Exists("/backup/2026-03-01_00:00:00"))
	assert.True(t, fsys.Exists("/backup/"+testInstance))
	assert.False(t, fsys.Exists("/backup/tmp_partial_backup"))
}
