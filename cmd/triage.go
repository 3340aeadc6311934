package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opsdesk/opsdesk/internal/models"
	"github.com/opsdesk/opsdesk/internal/output"
	"github.com/opsdesk/opsdesk/internal/store"
	"github.com/opsdesk/opsdesk/internal/triage"
)

var (
	triageApp  string
	triageJSON bool
)

var triageCmd = &cobra.Command{
	Use:   "triage",
	Short: "Classify open issues into priority buckets",
	Long: `Build the triage report: every open issue lands in exactly one of
Fix-Now, Fix-Next, or Parked, with the reason it was placed there.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return triageReportRun(triageApp)
	},
}

func init() {
	triageCmd.Flags().StringVar(&triageApp, "app", "", "Limit the report to one app")
	triageCmd.Flags().BoolVar(&triageJSON, "json", false, "Emit the report as JSON")
	rootCmd.AddCommand(triageCmd)
}

func triageReportRun(app string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	issues, err := s.ListIssues(ctx, store.IssueListFilter{App: app, OpenOnly: true})
	if err != nil {
		return err
	}

	report := triage.Classify(issues)
	composed := triage.Compose(report, func(userID string) (string, bool) {
		u, err := s.GetUser(ctx, userID)
		if err != nil {
			return "", false
		}
		return u.Name, true
	})

	if triageJSON {
		enc := json.NewEncoder(ui.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(composed)
	}

	renderSummary(composed.Summary, len(issues))
	renderBucket("Fix-Now", composed.FixNow)
	renderBucket("Fix-Next", composed.FixNext)
	renderBucket("Parked", composed.Parked)
	return nil
}

func renderSummary(summary triage.Summary, total int) {
	fmt.Fprintf(ui.Out, "Open issues: %d", total)
	for _, sev := range []models.Severity{models.SeverityS1, models.SeverityS2, models.SeverityS3, models.SeverityS4} {
		if n := summary.SeverityCounts[sev]; n > 0 {
			fmt.Fprintf(ui.Out, "  %s:%d", output.SeverityColor(string(sev)), n)
		}
	}
	fmt.Fprintln(ui.Out)

	if summary.CriticalRiskPresent {
		ui.Warning("Critical risk: at least one open S1")
	}
	if summary.TesterTrustRiskPresent {
		ui.Warning("Tester trust risk: high-severity issue in a trust-impacting category")
	}
	fmt.Fprintln(ui.Out)
}

func renderBucket(name string, items []*triage.ComposedItem) {
	fmt.Fprintf(ui.Out, "%s (%d)\n", output.BucketColor(name), len(items))
	if len(items) == 0 {
		fmt.Fprintln(ui.Out, "  (empty)")
		fmt.Fprintln(ui.Out)
		return
	}

	table := ui.Table([]string{"ID", "Sev", "Title", "Assignee", "Reason"})
	for _, item := range items {
		displayID := item.Issue.DisplayID
		if displayID == "" {
			displayID = "(none)"
		}
		_ = table.Append([]string{
			output.Cyan(displayID),
			output.SeverityColor(string(item.Issue.Severity)),
			item.Issue.Title,
			item.Assignee,
			item.Reason,
		})
	}
	_ = table.Render()
	fmt.Fprintln(ui.Out)
}
