package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/harrison/testmeta/internal/collector"
	"github.com/harrison/testmeta/internal/config"
	"github.com/harrison/testmeta/internal/events"
	"github.com/harrison/testmeta/internal/history"
	"github.com/harrison/testmeta/internal/logger"
	"github.com/harrison/testmeta/internal/metrics"
	"github.com/harrison/testmeta/internal/models"
	"github.com/spf13/cobra"
)

// addRunFlags registers the flags shared by commands that collect a session.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "Path to config file (default: .testmeta/config.yaml)")
	cmd.Flags().String("log-level", "", "Log level: trace, debug, info, warn, error")
	cmd.Flags().String("log-dir", "", "Directory for run logs (empty string disables file logging)")
	cmd.Flags().StringP("output", "o", "", "Export file path")
	cmd.Flags().String("format", "", "Export format: json or yaml")
	cmd.Flags().Int("indent", 0, "JSON export indentation")
	cmd.Flags().String("metrics-file", "", "Write run metrics in Prometheus textfile format")
	cmd.Flags().Bool("history", false, "Record the session in the history database")
}

// loadConfig reads the config file named by --config, or .testmeta/config.yaml.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath != "" {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
		return cfg, nil
	}
	cfg, err := config.LoadConfigFromDir(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// loadRunConfig loads the config file and applies the flags that were set.
func loadRunConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	stringFlag := func(name string) *string {
		if !flags.Changed(name) {
			return nil
		}
		v, _ := flags.GetString(name)
		return &v
	}
	var indent *int
	if flags.Changed("indent") {
		v, _ := flags.GetInt("indent")
		indent = &v
	}
	var record *bool
	if flags.Changed("history") {
		v, _ := flags.GetBool("history")
		record = &v
	}

	cfg.MergeWithFlags(stringFlag("log-level"), stringFlag("log-dir"), stringFlag("output"),
		stringFlag("format"), indent, stringFlag("metrics-file"), record)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// runtime holds one collection run: its config, loggers and collector.
type runtime struct {
	cfg     *config.Config
	log     logger.RunLogger
	fileLog *logger.FileLogger
	c       *collector.Collector
}

// newRuntime sets up logging and a collector with the configured routes.
func newRuntime(cfg *config.Config, stderr io.Writer, opts ...collector.Option) (*runtime, error) {
	rt := &runtime{cfg: cfg}

	loggers := []logger.RunLogger{logger.NewConsoleLogger(stderr, cfg.LogLevel)}
	if cfg.LogDir != "" {
		fl, err := logger.NewFileLoggerWithDirAndLevel(cfg.LogDir, cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("failed to create file logger: %w", err)
		}
		rt.fileLog = fl
		loggers = append(loggers, fl)
	}
	rt.log = logger.NewMultiLogger(loggers...)

	opts = append([]collector.Option{collector.WithLogger(rt.log), collector.WithIndent(cfg.Indent)}, opts...)
	rt.c = collector.New(opts...)

	for _, r := range cfg.Routes {
		routeOpts := []events.HandlerOption{events.WithDefault(r.Default)}
		if r.Array {
			routeOpts = append(routeOpts, events.WithArray())
		}
		if !rt.c.RegisterRoute(r.Route, r.Event, routeOpts...) {
			rt.log.LogWarn(fmt.Sprintf("Configured route %q was not registered", r.Route))
		}
	}
	return rt, nil
}

// finish exports the session, then writes metrics and records history when
// configured. The file logger is closed in every case.
func (rt *runtime) finish(ctx context.Context) error {
	defer rt.close()

	exportCtx := ctx
	if rt.cfg.LockTimeout > 0 {
		var cancel context.CancelFunc
		exportCtx, cancel = context.WithTimeout(ctx, rt.cfg.LockTimeout)
		defer cancel()
	}
	if err := rt.c.ExportAs(exportCtx, rt.cfg.Output, rt.cfg.Format); err != nil {
		return err
	}

	if rt.cfg.History.Enabled {
		if err := rt.record(ctx); err != nil {
			return err
		}
	}

	if rt.cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(rt.cfg.MetricsFile); err != nil {
			return err
		}
		rt.log.LogDebug(fmt.Sprintf("Wrote metrics to %s", rt.cfg.MetricsFile))
	}
	return nil
}

// record stores the session in the history database.
func (rt *runtime) record(ctx context.Context) error {
	data, err := rt.c.Encode(collector.FormatJSON)
	if err != nil {
		return err
	}
	doc, err := models.DecodeDocument(data)
	if err != nil {
		return err
	}

	store, err := history.NewStore(rt.cfg.History.DBPath)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer store.Close()

	if err := store.RecordSession(ctx, doc); err != nil {
		return fmt.Errorf("record session: %w", err)
	}
	rt.log.LogInfo(fmt.Sprintf("Recorded session %s in %s", doc.Session.RunID, rt.cfg.History.DBPath))
	return nil
}

func (rt *runtime) close() {
	if rt.fileLog != nil {
		if err := rt.fileLog.Close(); err != nil {
			rt.log.LogWarn(fmt.Sprintf("Failed to close run log: %v", err))
		}
		rt.fileLog = nil
	}
}

// openInput returns the named file, or stdin for "" and "-".
func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, nil
}

// commandContext returns the command's context, or a background context when
// the command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// summaryLine is the one-line result printed on stdout after a collection run.
func summaryLine(c *collector.Collector, output string) string {
	return fmt.Sprintf("%d tests, %d passed, %d failed, %d skipped, %d errors in %s (exit status %d) -> %s",
		c.TotalTests(), c.TotalPassed(), c.TotalFailed(), c.TotalSkipped(), c.TotalErrors(),
		c.SessionDuration().Round(time.Millisecond), c.ExitStatus(), output)
}
