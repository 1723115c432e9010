package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/amenzel/incbak/internal/version"
	"github.com/amenzel/incbak/pkg/config"
	"github.com/amenzel/incbak/pkg/errors"
	"github.com/amenzel/incbak/pkg/filesystem"
	"github.com/amenzel/incbak/pkg/logging"
	"github.com/amenzel/incbak/pkg/planner"
	"github.com/amenzel/incbak/pkg/rsync"
	"github.com/amenzel/incbak/pkg/session"
)

var (
	verbosity  int
	srcTokens  []string
	dstPath    string
	keep       int
	excludes   []string
	dstFQDN    string
	parallel   bool
	dryRun     bool
	logDir     string
	logSummary string
	configPath string

	rootCmd = &cobra.Command{
		Use:   "incbak",
		Short: "Incremental backups built on rsync hard-link rotation",
		Long: `incbak creates timestamped backup instances of one or more source
directories. Unchanged files are hard-linked against the previous
instance, so every backup looks complete while only changed data
occupies space. Marker files guard both ends against typos in paths,
and a keep-count rotates old instances out.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Console-only logging until the config tells us where the
			// run log file belongs.
			logging.SetupLogger(verbosity, "")
			log.Debug().Str("command", cmd.Name()).Msg("Command started")
		},
		RunE:          runBackup,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default is $XDG_CONFIG_HOME/incbak/incbak.toml)")

	rootCmd.Flags().StringArrayVarP(&srcTokens, "src", "s", nil, "Source directory, either a path or id#path (repeatable)")
	rootCmd.Flags().StringVarP(&dstPath, "dst", "d", "", "Backup destination root")
	rootCmd.Flags().IntVarP(&keep, "keep", "k", 0, "Number of backups to keep, 0 keeps all")
	rootCmd.Flags().StringArrayVarP(&excludes, "exclude", "e", nil, "Exclude pattern, either bare or id#pattern (repeatable)")
	rootCmd.Flags().StringVar(&dstFQDN, "dst-fqdn", "", "Put backups in a subfolder named after this machine's FQDN (true/false)")
	rootCmd.Flags().BoolVar(&parallel, "parallel", false, "Synchronize all sources concurrently")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be done without writing anything")
	rootCmd.Flags().StringVar(&logDir, "log-dir", "", "Directory for rsync log files")
	rootCmd.Flags().StringVar(&logSummary, "log-summary", "", "Path of the file listing this run's log files")

	_ = rootCmd.MarkFlagRequired("src")
	_ = rootCmd.MarkFlagRequired("dst")

	rootCmd.AddCommand(versionCmd)
}

func runBackup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if !cmd.Flags().Changed("keep") {
		keep = cfg.Backup.Keep
	}
	if keep < 0 {
		return errors.Newf(errors.ErrKeepInvalid, "keep count must be zero or positive, got %d", keep)
	}

	useFQDN := cfg.Backup.DstFQDN
	if dstFQDN != "" {
		useFQDN, err = parseToggle(dstFQDN)
		if err != nil {
			return err
		}
	}

	dir := logDir
	if dir == "" {
		dir = cfg.Logging.Dir
	}
	if dir == "" {
		dir = logging.DefaultLogDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "failed to create log directory %q", dir)
	}

	// One timestamp for the whole run names both the backup instance
	// and its log files.
	now := time.Now()
	runLog := logging.RunLogFile(dir, planner.InstanceName(now))
	logging.SetupLogger(verbosity, runLog)

	result, err := session.Run(cmd.Context(), session.Options{
		Sources:     srcTokens,
		Destination: dstPath,
		Excludes:    excludes,
		Keep:        keep,
		DstFQDN:     useFQDN,
		Parallel:    parallel,
		DryRun:      dryRun,
		LogDir:      dir,
		LogSummary:  logSummary,
		RunLog:      runLog,
		Config:      cfg,
		FS:          filesystem.NewOS(),
		Syncer:      rsync.New(cfg.Rsync.Binary),
		Now:         func() time.Time { return now },
	})
	if err != nil {
		return err
	}
	if dryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "Dry run: would create backup %s (%d source(s))\n",
			result.Plan.InstanceName, len(result.Plan.Sources))
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Backup %s completed (%d source(s))\n",
		result.Plan.InstanceName, len(result.Results))
	return nil
}

// parseToggle interprets the --dst-fqdn token. Matching is
// case-insensitive, so the True/False spellings wrapper scripts pass
// keep working.
func parseToggle(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "1", "t", "true", "y", "yes", "on":
		return true, nil
	case "0", "f", "false", "n", "no", "off":
		return false, nil
	}
	return false, errors.Newf(errors.ErrFQDNToggleInvalid, "invalid dst-fqdn value %q, want true or false", raw)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print version information for incbak`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("incbak version %s\n", version.Version)
		fmt.Printf("  commit: %s\n", version.Commit)
		fmt.Printf("  built:  %s\n", version.Date)
	},
}
