package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/harrison/testmeta/internal/filelock"
	"github.com/harrison/testmeta/internal/models"
	"github.com/harrison/testmeta/internal/report"
	"github.com/spf13/cobra"
)

// NewReportCommand creates the report command
func NewReportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [metadata-file]",
		Short: "Render a summary of an exported metadata file",
		Long: `Render a JSON metadata export as a console table, a markdown summary or
a standalone HTML page.

The metadata file defaults to the configured output path.

Examples:
  testmeta report
  testmeta report results/meta.json --style markdown
  testmeta report --style html --out report.html`,
		Args: cobra.MaximumNArgs(1),
		RunE: runReport,
	}
	cmd.Flags().String("config", "", "Path to config file (default: .testmeta/config.yaml)")
	cmd.Flags().String("style", "table", "Report style: table, markdown or html")
	cmd.Flags().String("out", "", "Write the report to this file instead of stdout")
	return cmd
}

func runReport(cmd *cobra.Command, args []string) error {
	style, _ := cmd.Flags().GetString("style")
	style = strings.ToLower(style)
	switch style {
	case "table", "markdown", "md", "html":
	default:
		return fmt.Errorf("invalid style %q, must be one of: table, markdown, html", style)
	}

	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		path = cfg.Output
	}

	data, err := filelock.ReadLocked(commandContext(cmd), path)
	if err != nil {
		return err
	}
	doc, err := models.DecodeDocument(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	out := cmd.OutOrStdout()
	outPath, _ := cmd.Flags().GetString("out")
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()
		out = f
	}

	return writeReport(out, doc, style)
}

func writeReport(w io.Writer, doc *models.Document, style string) error {
	switch style {
	case "table":
		report.WriteTable(w, doc)
	case "markdown", "md":
		if _, err := io.WriteString(w, report.BuildMarkdown(doc)); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	case "html":
		page, err := report.RenderHTML(fmt.Sprintf("Test session %s", doc.Session.RunID), report.BuildMarkdown(doc))
		if err != nil {
			return err
		}
		if _, err := w.Write(page); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}
	return nil
}
