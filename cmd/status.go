package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opsdesk/opsdesk/internal/health"
	"github.com/opsdesk/opsdesk/internal/output"
)

var statusCmd = &cobra.Command{
	Use:   "status [app]",
	Short: "Show identity integrity per app",
	Long: `Show an integrity overview of every app namespace, or one app.

Reports live/open counts, open criticals, records missing a display ID,
and duplicated display IDs. Read-only; use 'opsdesk repair' to fix
anything it flags.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := ""
		if len(args) == 1 {
			app = args[0]
		}
		return statusRun(app)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func statusRun(app string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	checker := health.NewChecker(s)

	var reports []*health.AppReport
	if app != "" {
		r, err := checker.CheckApp(ctx, app)
		if err != nil {
			return err
		}
		reports = []*health.AppReport{r}
	} else {
		reports, err = checker.CheckAll(ctx)
		if err != nil {
			return err
		}
	}

	table := ui.Table([]string{"App", "Prefix", "Live", "Open", "S1 Open", "Missing IDs", "Duplicates", "Integrity"})

	needsRepair := false
	for _, r := range reports {
		dupes := "-"
		if len(r.DuplicateIDs) > 0 {
			dupes = strings.Join(r.DuplicateIDs, ", ")
		}
		integrity := output.Green("ok")
		if !r.Clean() {
			integrity = output.Red("attention")
			needsRepair = true
		}
		table.Append([]string{
			output.Cyan(r.App),
			r.Prefix,
			fmt.Sprintf("%d", r.Total),
			fmt.Sprintf("%d", r.Open),
			fmt.Sprintf("%d", r.CriticalOpen),
			fmt.Sprintf("%d", r.MissingIDs),
			dupes,
			integrity,
		})
	}
	table.Render()

	for _, r := range reports {
		if r.StaleCritical > 0 {
			ui.Warning("%s: %d open S1(s) older than 48h", r.App, r.StaleCritical)
		}
	}

	if needsRepair {
		ui.Info("Run 'opsdesk repair backfill' for missing IDs and 'opsdesk repair duplicates' for collisions.")
	}
	return nil
}
