package cmd

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opsdesk/opsdesk/internal/store"
)

var (
	exportFormat string
	exportType   string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export data as JSON, CSV, or Markdown",
	Long:  "Export issues or the audit log in various formats.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return exportRun()
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Output format: json, csv, markdown")
	exportCmd.Flags().StringVar(&exportType, "type", "issues", "Data type: issues, audit")
	rootCmd.AddCommand(exportCmd)
}

func exportRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	switch exportType {
	case "issues":
		return exportIssues(ctx, s)
	case "audit":
		return exportAudit(ctx, s)
	default:
		return fmt.Errorf("unknown export type: %s (use: issues, audit)", exportType)
	}
}

func exportIssues(ctx context.Context, s store.Store) error {
	issues, err := s.ListIssues(ctx, store.IssueListFilter{})
	if err != nil {
		return err
	}

	switch exportFormat {
	case "json":
		enc := json.NewEncoder(ui.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(issues)
	case "csv":
		w := csv.NewWriter(ui.Out)
		w.Write([]string{"DisplayID", "App", "Title", "Severity", "Status", "Type", "Created"})
		for _, issue := range issues {
			w.Write([]string{
				issue.DisplayID, issue.App, issue.Title,
				string(issue.Severity), string(issue.Status), string(issue.Type),
				issue.CreatedAt.Format("2006-01-02"),
			})
		}
		w.Flush()
		return w.Error()
	case "markdown":
		fmt.Fprintln(ui.Out, "# Issues")
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, "| ID | App | Title | Severity | Status |")
		fmt.Fprintln(ui.Out, "|----|-----|-------|----------|--------|")
		for _, issue := range issues {
			fmt.Fprintf(ui.Out, "| %s | %s | %s | %s | %s |\n",
				issue.DisplayID, issue.App, issue.Title, issue.Severity, issue.Status)
		}
		return nil
	default:
		return fmt.Errorf("unknown format: %s (use: json, csv, markdown)", exportFormat)
	}
}

func exportAudit(ctx context.Context, s store.Store) error {
	recs, err := s.ListAuditRecords(ctx, 0)
	if err != nil {
		return err
	}

	switch exportFormat {
	case "json":
		enc := json.NewEncoder(ui.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	case "csv":
		w := csv.NewWriter(ui.Out)
		w.Write([]string{"When", "Actor", "Action", "Targets"})
		for _, rec := range recs {
			w.Write([]string{
				rec.CreatedAt.Format("2006-01-02 15:04:05"),
				rec.Actor, rec.Action, strings.Join(rec.TargetIDs, " "),
			})
		}
		w.Flush()
		return w.Error()
	case "markdown":
		fmt.Fprintln(ui.Out, "# Audit log")
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, "| When | Actor | Action |")
		fmt.Fprintln(ui.Out, "|------|-------|--------|")
		for _, rec := range recs {
			fmt.Fprintf(ui.Out, "| %s | %s | %s |\n",
				rec.CreatedAt.Format("2006-01-02 15:04"), rec.Actor, rec.Action)
		}
		return nil
	default:
		return fmt.Errorf("unknown format: %s (use: json, csv, markdown)", exportFormat)
	}
}
