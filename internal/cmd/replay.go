package cmd

import (
	"fmt"

	"github.com/harrison/testmeta/internal/hooks"
	"github.com/spf13/cobra"
)

// NewReplayCommand creates the replay command
func NewReplayCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay [events-file]",
		Short: "Collect metadata from a lifecycle event stream",
		Long: `Read a line-delimited JSON stream of test lifecycle events and export
the collected metadata.

Each line is one event: configure, session_start, collection_finish,
runtest_protocol, setup, call, teardown, report, register, custom, set or
session_finish. The stream is read from the named file, or from stdin when
the file is omitted or "-". Replay stops at the first malformed event.

Configuration is loaded from .testmeta/config.yaml if present.
CLI flags override configuration file settings.

Examples:
  testmeta replay events.jsonl
  my-harness --emit-events | testmeta replay -o results/meta.json
  testmeta replay events.jsonl --format yaml --history`,
		Args: cobra.MaximumNArgs(1),
		RunE: runReplay,
	}
	addRunFlags(cmd)
	return cmd
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}

	path := ""
	if len(args) == 1 {
		path = args[0]
	}
	in, err := openInput(cmd, path)
	if err != nil {
		return err
	}
	defer in.Close()

	rt, err := newRuntime(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	applied, err := hooks.Replay(ctx, in, rt.c)
	if err != nil {
		rt.close()
		return fmt.Errorf("replay failed after %d events: %w", applied, err)
	}
	rt.log.LogDebug(fmt.Sprintf("Applied %d lifecycle events", applied))

	if err := rt.finish(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), summaryLine(rt.c, cfg.Output))
	return nil
}
