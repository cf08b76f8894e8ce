package cmd

import (
	"fmt"
	"os"

	"github.com/harrison/testmeta/internal/config"
	"github.com/harrison/testmeta/internal/filelock"
	"github.com/harrison/testmeta/internal/fileutil"
	"github.com/harrison/testmeta/internal/history"
	"github.com/harrison/testmeta/internal/models"
	"github.com/harrison/testmeta/internal/report"
	"github.com/spf13/cobra"
)

// NewHistoryCommand creates the 'testmeta history' parent command
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Query recorded test sessions",
		Long: `Commands for viewing and managing the session history database.

Sessions are recorded by replay and gotest when history is enabled
(--history or history.enabled in the config file), or imported from an
existing export with "history record".

The database is taken from --db-path, then history.db_path of the config
file, then history.db in the nearest .testmeta directory.`,
	}

	cmd.PersistentFlags().String("db-path", "", "Path to the history database")
	cmd.PersistentFlags().String("config", "", "Path to config file (default: .testmeta/config.yaml)")

	cmd.AddCommand(newHistoryListCommand())
	cmd.AddCommand(newHistoryShowCommand())
	cmd.AddCommand(newHistoryFlakyCommand())
	cmd.AddCommand(newHistoryPruneCommand())
	cmd.AddCommand(newHistoryRecordCommand())

	return cmd
}

// historyDBPath resolves the database location for the history commands.
func historyDBPath(cmd *cobra.Command) (string, error) {
	if p, _ := cmd.Flags().GetString("db-path"); p != "" {
		return p, nil
	}

	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		candidate := ".testmeta/config.yaml"
		if _, err := os.Stat(candidate); err == nil {
			configPath = candidate
		}
	}
	if configPath != "" {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return "", fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
		return cfg.History.DBPath, nil
	}

	return config.GetHistoryDBPath()
}

// openHistory opens the history store. With mustExist, a missing database
// yields a nil store and no error.
func openHistory(cmd *cobra.Command, mustExist bool) (*history.Store, string, error) {
	dbPath, err := historyDBPath(cmd)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get history database path: %w", err)
	}
	if mustExist {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, dbPath, nil
		}
	}
	store, err := history.NewStore(dbPath)
	if err != nil {
		return nil, dbPath, fmt.Errorf("open history store: %w", err)
	}
	return store, dbPath, nil
}

func newHistoryListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			output := cmd.OutOrStdout()

			store, dbPath, err := openHistory(cmd, true)
			if err != nil {
				return err
			}
			if store == nil {
				fmt.Fprintf(output, "No history database at %s\n", dbPath)
				return nil
			}
			defer store.Close()

			sessions, err := store.ListSessions(commandContext(cmd), limit)
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
			if len(sessions) == 0 {
				fmt.Fprintln(output, "No sessions recorded")
				return nil
			}
			report.WriteSessionsTable(output, sessions)
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "Maximum number of sessions to show (0 = all)")
	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <test-id>",
		Short: "Show the recorded runs of one test",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			output := cmd.OutOrStdout()

			store, dbPath, err := openHistory(cmd, true)
			if err != nil {
				return err
			}
			if store == nil {
				fmt.Fprintf(output, "No history database at %s\n", dbPath)
				return nil
			}
			defer store.Close()

			runs, err := store.TestHistory(commandContext(cmd), args[0], limit)
			if err != nil {
				return fmt.Errorf("test history: %w", err)
			}
			if len(runs) == 0 {
				fmt.Fprintf(output, "No runs recorded for test %s\n", args[0])
				return nil
			}
			report.WriteHistoryTable(output, runs)
			return nil
		},
	}
	cmd.Flags().Int("limit", 50, "Maximum number of runs to show (0 = all)")
	return cmd
}

func newHistoryFlakyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "flaky",
		Short: "List tests that both passed and failed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := cmd.OutOrStdout()

			store, dbPath, err := openHistory(cmd, true)
			if err != nil {
				return err
			}
			if store == nil {
				fmt.Fprintf(output, "No history database at %s\n", dbPath)
				return nil
			}
			defer store.Close()

			flaky, err := store.FlakyTests(commandContext(cmd))
			if err != nil {
				return fmt.Errorf("flaky tests: %w", err)
			}
			if len(flaky) == 0 {
				fmt.Fprintln(output, "No flaky tests found")
				return nil
			}
			report.WriteFlakyTable(output, flaky)
			return nil
		},
	}
}

func newHistoryPruneCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keep, _ := cmd.Flags().GetInt("keep")
			if keep < 0 {
				return fmt.Errorf("--keep must be >= 0, got %d", keep)
			}

			store, dbPath, err := openHistory(cmd, true)
			if err != nil {
				return err
			}
			if store == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "No history database at %s\n", dbPath)
				return nil
			}
			defer store.Close()

			removed, err := store.PruneSessions(commandContext(cmd), keep)
			if err != nil {
				return fmt.Errorf("prune sessions: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d sessions\n", removed)
			return nil
		},
	}
	cmd.Flags().Int("keep", 50, "Number of newest sessions to keep")
	return cmd
}

func newHistoryRecordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "record <metadata-file-or-directory>...",
		Short: "Import JSON metadata exports into the history",
		Long: `Import JSON metadata exports into the history database.

Directories are searched recursively for .json files; hidden directories
and "logs" directories are skipped. Recording a session that is already in
the database replaces it.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)

			found, err := fileutil.ExpandPaths(args, fileutil.ScanOptions{
				Extensions:  []string{".json"},
				Recursive:   true,
				ExcludeDirs: []string{"logs"},
			})
			if err != nil {
				return err
			}
			for _, scanErr := range found.Errors {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", scanErr)
			}
			if len(found.Files) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No metadata files found")
				return nil
			}

			store, _, err := openHistory(cmd, false)
			if err != nil {
				return err
			}
			defer store.Close()

			for _, path := range found.Files {
				data, err := filelock.ReadLocked(ctx, path)
				if err != nil {
					return err
				}
				doc, err := models.DecodeDocument(data)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				if err := store.RecordSession(ctx, doc); err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Recorded session %s (%d tests)\n", doc.Session.RunID, len(doc.Tests))
			}
			return nil
		},
	}
}
