package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opsdesk/opsdesk/internal/alloc"
	"github.com/opsdesk/opsdesk/internal/audit"
	"github.com/opsdesk/opsdesk/internal/llm"
	"github.com/opsdesk/opsdesk/internal/models"
	"github.com/opsdesk/opsdesk/internal/output"
	"github.com/opsdesk/opsdesk/internal/store"
)

var (
	issueApp            string
	issueTitle          string
	issueDesc           string
	issueSeverity       string
	issueType           string
	issueStatus         string
	issueClassification string
	issueOpenOnly       bool
	issueNoteBody       string
	issueDraftNote      bool
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Manage tester-reported issues",
	Long:  "Track tester-reported issues with stable display IDs across apps.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun()
	},
}

var issueAddCmd = &cobra.Command{
	Use:   "add <app>",
	Short: "Add a new issue",
	Long:  "Add a new issue to an app (examcoach, mathdrills, writinglab). A display ID is allocated automatically.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueAddRun(args[0])
	},
}

var issueListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List issues",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun()
	},
}

var issueShowCmd = &cobra.Command{
	Use:   "show <issue-id>",
	Short: "Show issue details",
	Long:  "Show issue details. Accepts a display ID (EC-12) or a storage ID.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueShowRun(args[0])
	},
}

var issueUpdateCmd = &cobra.Command{
	Use:   "update <issue-id>",
	Short: "Update an issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueUpdateRun(args[0])
	},
}

var issueCloseCmd = &cobra.Command{
	Use:   "close <issue-id>",
	Short: "Close an issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueCloseRun(args[0])
	},
}

var issueDeleteCmd = &cobra.Command{
	Use:     "delete <issue-id>",
	Aliases: []string{"rm"},
	Short:   "Soft-delete an issue",
	Long:    "Soft-delete an issue. The record is kept so its display ID number is never reused.",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueDeleteRun(args[0])
	},
}

var issueNoteCmd = &cobra.Command{
	Use:   "note <issue-id>",
	Short: "Append a note to an issue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueNoteRun(args[0])
	},
}

var issueSuggestCmd = &cobra.Command{
	Use:   "suggest <issue-id>",
	Short: "Ask the LLM for a severity/category suggestion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueSuggestRun(args[0])
	},
}

func init() {
	issueAddCmd.Flags().StringVar(&issueTitle, "title", "", "Issue title (required)")
	issueAddCmd.Flags().StringVar(&issueDesc, "desc", "", "Issue description")
	issueAddCmd.Flags().StringVar(&issueSeverity, "severity", "S3", "Severity: S1, S2, S3, S4")
	issueAddCmd.Flags().StringVar(&issueType, "type", "", "Category, e.g. auth_account_access, assessment_scoring (inferred from title if empty)")
	_ = issueAddCmd.MarkFlagRequired("title")

	issueListCmd.Flags().StringVar(&issueApp, "app", "", "Filter by app")
	issueListCmd.Flags().StringVar(&issueStatus, "status", "", "Filter by status")
	issueListCmd.Flags().StringVar(&issueSeverity, "severity", "", "Filter by severity")
	issueListCmd.Flags().BoolVar(&issueOpenOnly, "open", false, "Only issues not in a terminal status")

	issueUpdateCmd.Flags().StringVar(&issueStatus, "status", "", "New status")
	issueUpdateCmd.Flags().StringVar(&issueSeverity, "severity", "", "New severity")
	issueUpdateCmd.Flags().StringVar(&issueTitle, "title", "", "New title")
	issueUpdateCmd.Flags().StringVar(&issueDesc, "desc", "", "New description")
	issueUpdateCmd.Flags().StringVar(&issueClassification, "classification", "", "Explicit classification: blocking, misleading, trust, cosmetic")

	issueNoteCmd.Flags().StringVar(&issueNoteBody, "body", "", "Note text (required)")
	_ = issueNoteCmd.MarkFlagRequired("body")

	issueSuggestCmd.Flags().BoolVar(&issueDraftNote, "draft-note", false, "Also draft a triage note for the issue")

	issueCmd.AddCommand(issueAddCmd)
	issueCmd.AddCommand(issueListCmd)
	issueCmd.AddCommand(issueShowCmd)
	issueCmd.AddCommand(issueUpdateCmd)
	issueCmd.AddCommand(issueCloseCmd)
	issueCmd.AddCommand(issueDeleteCmd)
	issueCmd.AddCommand(issueNoteCmd)
	issueCmd.AddCommand(issueSuggestCmd)
	rootCmd.AddCommand(issueCmd)
}

// findIssue resolves a display ID (EC-12) or storage ULID to an issue.
func findIssue(ctx context.Context, s store.Store, id string) (*models.Issue, error) {
	if _, _, ok := alloc.ParseDisplayID(id); ok {
		return s.GetIssueByDisplayID(ctx, id)
	}
	return s.GetIssue(ctx, id)
}

func issueAddRun(app string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	allocator := alloc.New(s)
	displayID, err := allocator.NextIDForApp(ctx, app)
	if err != nil {
		return err
	}

	category := models.IssueType(issueType)
	if issueType == "" {
		category = classifyIssueType(issueTitle)
	}

	issue := &models.Issue{
		DisplayID:   displayID,
		App:         app,
		Title:       issueTitle,
		Description: issueDesc,
		Severity:    models.Severity(issueSeverity),
		Type:        category,
	}

	if dryRun {
		ui.DryRunMsg("Would add issue %s: %s [%s]", displayID, issueTitle, issueSeverity)
		return nil
	}

	if err := s.CreateIssue(ctx, issue); err != nil {
		return fmt.Errorf("create issue: %w", err)
	}
	audit.NewRecorder(s).Record(ctx, currentActor(), models.AuditActionIssueCreate, []string{issue.ID}, nil, issue)

	ui.Success("Created issue %s: %s", output.Cyan(issue.DisplayID), issueTitle)
	return nil
}

func issueListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	filter := store.IssueListFilter{
		App:      issueApp,
		Status:   models.IssueStatus(issueStatus),
		Severity: models.Severity(issueSeverity),
		OpenOnly: issueOpenOnly,
	}

	issues, err := s.ListIssues(ctx, filter)
	if err != nil {
		return err
	}

	if len(issues) == 0 {
		ui.Info("No issues found.")
		return nil
	}

	table := ui.Table([]string{"ID", "App", "Title", "Sev", "Status", "Type"})
	for _, issue := range issues {
		displayID := issue.DisplayID
		if displayID == "" {
			displayID = "(none)"
		}
		_ = table.Append([]string{
			output.Cyan(displayID),
			issue.App,
			issue.Title,
			output.SeverityColor(string(issue.Severity)),
			output.StatusColor(string(issue.Status)),
			string(issue.Type),
		})
	}
	_ = table.Render()
	return nil
}

func issueShowRun(id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	issue, err := findIssue(ctx, s, id)
	if err != nil {
		return err
	}

	displayID := issue.DisplayID
	if displayID == "" {
		displayID = "(no display ID)"
	}
	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(displayID), issue.Title)
	fmt.Fprintf(ui.Out, "  App:        %s\n", issue.App)
	fmt.Fprintf(ui.Out, "  Severity:   %s\n", output.SeverityColor(string(issue.Severity)))
	fmt.Fprintf(ui.Out, "  Status:     %s\n", output.StatusColor(string(issue.Status)))
	fmt.Fprintf(ui.Out, "  Type:       %s\n", issue.Type)
	if issue.Classification != "" {
		fmt.Fprintf(ui.Out, "  Class:      %s\n", issue.Classification)
	}
	if issue.Description != "" {
		fmt.Fprintf(ui.Out, "  Desc:       %s\n", issue.Description)
	}
	if issue.UserID != "" {
		fmt.Fprintf(ui.Out, "  Reporter:   %s\n", issue.UserID)
	}
	if issue.LegacyIssueID != "" {
		fmt.Fprintf(ui.Out, "  Legacy ID:  %s\n", issue.LegacyIssueID)
	}
	fmt.Fprintf(ui.Out, "  Created:    %s\n", issue.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(ui.Out, "  Full ID:    %s\n", issue.ID)

	for _, note := range issue.Notes {
		fmt.Fprintf(ui.Out, "  Note (%s, %s):\n    %s\n",
			note.Author, note.CreatedAt.Format("2006-01-02"), note.Body)
	}

	return nil
}

func issueUpdateRun(id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	issue, err := findIssue(ctx, s, id)
	if err != nil {
		return err
	}
	before := *issue

	changed := false
	if issueStatus != "" {
		issue.Status = models.IssueStatus(issueStatus)
		changed = true
	}
	if issueSeverity != "" {
		if !models.Severity(issueSeverity).Valid() {
			return fmt.Errorf("invalid severity: %s", issueSeverity)
		}
		issue.Severity = models.Severity(issueSeverity)
		changed = true
	}
	if issueTitle != "" {
		issue.Title = issueTitle
		changed = true
	}
	if issueDesc != "" {
		issue.Description = issueDesc
		changed = true
	}
	if issueClassification != "" {
		issue.Classification = models.Classification(issueClassification)
		changed = true
	}

	if !changed {
		return fmt.Errorf("no updates specified (use --status, --severity, --title, --desc, or --classification)")
	}

	if dryRun {
		ui.DryRunMsg("Would update issue %s", issue.DisplayID)
		return nil
	}

	if err := s.UpdateIssue(ctx, issue); err != nil {
		return fmt.Errorf("update issue: %w", err)
	}
	audit.NewRecorder(s).Record(ctx, currentActor(), models.AuditActionIssueUpdate, []string{issue.ID}, &before, issue)

	ui.Success("Updated issue %s", output.Cyan(issue.DisplayID))
	return nil
}

func issueCloseRun(id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	issue, err := findIssue(ctx, s, id)
	if err != nil {
		return err
	}
	before := *issue

	issue.Status = models.IssueStatusClosed

	if dryRun {
		ui.DryRunMsg("Would close issue %s: %s", issue.DisplayID, issue.Title)
		return nil
	}

	if err := s.UpdateIssue(ctx, issue); err != nil {
		return fmt.Errorf("close issue: %w", err)
	}
	audit.NewRecorder(s).Record(ctx, currentActor(), models.AuditActionIssueUpdate, []string{issue.ID}, &before, issue)

	ui.Success("Closed issue %s", output.Cyan(issue.DisplayID))
	return nil
}

func issueDeleteRun(id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	issue, err := findIssue(ctx, s, id)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would delete issue %s: %s", issue.DisplayID, issue.Title)
		return nil
	}

	if err := s.SoftDeleteIssue(ctx, issue.ID); err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}
	audit.NewRecorder(s).Record(ctx, currentActor(), models.AuditActionIssueDelete, []string{issue.ID}, issue, nil)

	ui.Success("Deleted issue %s (record kept, ID retired)", output.Cyan(issue.DisplayID))
	return nil
}

func issueNoteRun(id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	issue, err := findIssue(ctx, s, id)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would append note to %s", issue.DisplayID)
		return nil
	}

	note := &models.Note{IssueID: issue.ID, Author: currentActor(), Body: issueNoteBody}
	if err := s.AppendNote(ctx, note); err != nil {
		return fmt.Errorf("append note: %w", err)
	}
	audit.NewRecorder(s).Record(ctx, currentActor(), models.AuditActionIssueNote, []string{issue.ID}, nil, note)

	ui.Success("Noted %s", output.Cyan(issue.DisplayID))
	return nil
}

func issueSuggestRun(id string) error {
	apiKey := viper.GetString("anthropic.api_key")
	if apiKey == "" {
		return fmt.Errorf("anthropic.api_key not configured (set OPSDESK_ANTHROPIC_API_KEY or add it to config.yaml)")
	}

	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	issue, err := findIssue(ctx, s, id)
	if err != nil {
		return err
	}

	client := llm.NewClient(apiKey, viper.GetString("anthropic.model"))
	suggestion, err := client.Suggest(ctx, issue.Title, issue.Description)
	if err != nil {
		return fmt.Errorf("suggest: %w", err)
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(issue.DisplayID), issue.Title)
	fmt.Fprintf(ui.Out, "  Suggested severity: %s\n", output.SeverityColor(suggestion.Severity))
	fmt.Fprintf(ui.Out, "  Suggested category: %s\n", suggestion.Category)
	fmt.Fprintf(ui.Out, "  Summary:            %s\n", suggestion.Summary)
	ui.Info("Apply with: opsdesk issue update %s --severity %s --type %s",
		issue.DisplayID, suggestion.Severity, suggestion.Category)

	if issueDraftNote {
		draft, err := client.DraftNote(ctx, issue.Title, issue.Description, suggestion.Severity, suggestion.Category)
		if err != nil {
			return fmt.Errorf("draft note: %w", err)
		}
		fmt.Fprintf(ui.Out, "\n  Draft note:\n    %s\n", draft)
		ui.Info("Save with: opsdesk issue note %s --body '...'", issue.DisplayID)
	}
	return nil
}
