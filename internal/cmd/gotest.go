package cmd

import (
	"fmt"
	"os"

	"github.com/harrison/testmeta/internal/collector"
	"github.com/harrison/testmeta/internal/gotest"
	"github.com/harrison/testmeta/internal/hooks"
	"github.com/harrison/testmeta/internal/meta"
	"github.com/spf13/cobra"
)

// NewGoTestCommand creates the gotest command
func NewGoTestCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gotest [test2json-file] [-- go test args...]",
		Short: "Collect metadata from go test -json output",
		Long: `Convert the output of "go test -json" into test run metadata.

Each top-level test becomes a test entry identified by package::TestName.
Leaf subtests become runs of their top-level test with the subtest path as
the "subtest" parameter. Panics and build failures are classified as errors,
failed assertions as failures.

Arguments after "--" are recorded as the session invocation arguments.

Examples:
  go test -json ./... | testmeta gotest
  testmeta gotest results.jsonl -- -run TestParser ./internal/...
  go test -json ./... | testmeta gotest --events-out events.jsonl`,
		RunE: runGoTest,
	}
	addRunFlags(cmd)
	cmd.Flags().String("events-out", "", "Also write the converted lifecycle events to this file")
	return cmd
}

func runGoTest(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}

	positional, invocation := args, []string(nil)
	if dash := cmd.ArgsLenAtDash(); dash >= 0 {
		positional, invocation = args[:dash], args[dash:]
	}
	if len(positional) > 1 {
		return fmt.Errorf("accepts at most 1 input file before \"--\", received %d", len(positional))
	}

	path := ""
	if len(positional) == 1 {
		path = positional[0]
	}
	in, err := openInput(cmd, path)
	if err != nil {
		return err
	}
	defer in.Close()

	evs, err := gotest.Convert(in, invocation)
	if err != nil {
		return err
	}

	eventsOut, _ := cmd.Flags().GetString("events-out")
	if eventsOut != "" {
		if err := writeEvents(eventsOut, evs); err != nil {
			return err
		}
	}

	rt, err := newRuntime(cfg, cmd.ErrOrStderr(), collector.WithClassifier(meta.GoTestClassifier()))
	if err != nil {
		return err
	}
	if err := gotest.Drive(rt.c, evs); err != nil {
		rt.close()
		return err
	}

	if err := rt.finish(commandContext(cmd)); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), summaryLine(rt.c, cfg.Output))
	return nil
}

func writeEvents(path string, evs []hooks.Event) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create events file: %w", err)
	}
	w := hooks.NewWriter(f)
	for _, ev := range evs {
		if err := w.Write(ev); err != nil {
			f.Close()
			return err
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close events file: %w", err)
	}
	return nil
}
