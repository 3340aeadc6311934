package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opsdesk/opsdesk/internal/bulkimport"
	"github.com/opsdesk/opsdesk/internal/output"
)

var importApp string

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Bulk-import issues from a CSV or JSON file",
	Long: `Bulk-import issues from a CSV or JSON file into one app.

CSV files need a header row; columns title, severity, status, category,
and reporter are matched by name. JSON files hold an array of row
objects with the same fields. The whole batch commits in one
transaction with consecutive display IDs, capped at 500 rows.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return importRun(args[0])
	},
}

func init() {
	importCmd.Flags().StringVar(&importApp, "app", "", "Target app: examcoach, mathdrills, writinglab (required)")
	_ = importCmd.MarkFlagRequired("app")
	rootCmd.AddCommand(importCmd)
}

func importRun(file string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	var rows []bulkimport.Row
	if strings.HasSuffix(strings.ToLower(file), ".json") {
		rows, err = bulkimport.ParseJSON(f)
	} else {
		rows, err = bulkimport.ParseCSV(f)
	}
	if err != nil {
		return err
	}

	if dryRun {
		table := ui.Table([]string{"#", "Title", "Severity", "Status", "Category"})
		for i, row := range rows {
			_ = table.Append([]string{
				fmt.Sprintf("%d", i+1), row.Title, row.Severity, row.Status, row.Category,
			})
		}
		_ = table.Render()
		ui.DryRunMsg("Would import %d issues into %s", len(rows), importApp)
		return nil
	}

	s, err := getStore()
	if err != nil {
		return err
	}

	issues, err := bulkimport.New(s).Import(context.Background(), currentActor(), importApp, rows)
	if err != nil {
		return err
	}

	for _, issue := range issues {
		ui.VerboseLog("%s  %s", issue.DisplayID, issue.Title)
	}
	first := issues[0].DisplayID
	last := issues[len(issues)-1].DisplayID
	ui.Success("Imported %d issues into %s (%s through %s)",
		len(issues), importApp, output.Cyan(first), output.Cyan(last))
	return nil
}
