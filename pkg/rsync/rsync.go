// Package rsync is the execution adapter around the external rsync
// binary. It turns a finalized SourcePlan into an `rsync -a --delete`
// invocation with the plan's excludes and hard-link base, captures the
// tool's output into the session log, and reports the per-source
// outcome.
package rsync

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/amenzel/incbak/pkg/errors"
	"github.com/amenzel/incbak/pkg/logging"
	"github.com/amenzel/incbak/pkg/types"
	"github.com/kballard/go-shellquote"
)

// Client invokes rsync. The zero value is not usable; construct with
// New.
type Client struct {
	binary string
}

// New creates a Client that runs the given rsync binary.
func New(binary string) *Client {
	return &Client{binary: binary}
}

var _ types.Syncer = (*Client)(nil)

// Sync runs rsync for one source plan. A trailing slash on the source
// path makes rsync copy the directory's contents rather than the
// directory itself.
func (c *Client) Sync(ctx context.Context, plan types.SourcePlan) error {
	log := logging.GetLogger("rsync")

	args := buildArgs(plan)
	log.Info().Str("id", plan.Source.ID).
		Str("command", shellquote.Join(append([]string{c.binary}, args...)...)).
		Msg("Executing rsync")

	cmd := exec.CommandContext(ctx, c.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if out := strings.TrimSpace(stdout.String()); out != "" {
		log.Warn().Str("id", plan.Source.ID).Msg("rsync produced output on stdout:\n" + out)
	}
	if out := strings.TrimSpace(stderr.String()); out != "" {
		log.Warn().Str("id", plan.Source.ID).Msg("rsync produced output on stderr:\n" + out)
	}

	if err != nil {
		return errors.Wrapf(err, errors.ErrSyncFailed,
			"rsync failed for source %q", plan.Source.Path).
			WithDetail("id", plan.Source.ID)
	}
	return nil
}

// buildArgs assembles the rsync argument list for a source plan.
func buildArgs(plan types.SourcePlan) []string {
	args := []string{"-a", "--delete"}
	for _, exclude := range plan.Excludes {
		args = append(args, "--exclude="+exclude)
	}
	if plan.LinkBase != "" {
		args = append(args, "--link-dest="+plan.LinkBase)
	}
	if plan.LogFile != "" {
		args = append(args, "--log-file="+plan.LogFile)
	}
	args = append(args, strings.TrimSuffix(plan.Source.Path, "/")+"/", plan.DestPath)
	return args
}
