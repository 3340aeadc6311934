package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/opsdesk/opsdesk/internal/alloc"
)

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Display-ID maintenance",
	Long: `Maintenance passes over the display-ID space.

Concurrent creation can occasionally hand two issues the same display
ID; 'repair duplicates' finds every collision and reassigns all but the
earliest-created holder. 'repair backfill' assigns IDs to live issues
that have none, in creation order. Both require an admin actor.`,
}

var repairDuplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "Find and fix colliding display IDs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return repairDuplicatesRun()
	},
}

var repairBackfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Assign display IDs to issues that have none",
	RunE: func(cmd *cobra.Command, args []string) error {
		return repairBackfillRun()
	},
}

func init() {
	repairCmd.AddCommand(repairDuplicatesCmd)
	repairCmd.AddCommand(repairBackfillCmd)
	rootCmd.AddCommand(repairCmd)
}

func repairDuplicatesRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would scan for display-ID collisions and reassign duplicates")
		return nil
	}

	result, err := alloc.New(s).RepairDuplicates(context.Background(), currentActor())
	if err != nil {
		return err
	}

	for _, line := range result.Log {
		ui.Info("%s", line)
	}
	if result.Fixed == 0 {
		return nil
	}
	ui.Success("Reassigned %d duplicate display IDs", result.Fixed)
	return nil
}

func repairBackfillRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would assign display IDs to issues that have none")
		return nil
	}

	assigned, err := alloc.New(s).AssignMissing(context.Background(), currentActor())
	if err != nil {
		return err
	}

	if assigned == 0 {
		ui.Info("All live issues already have display IDs.")
		return nil
	}
	ui.Success("Assigned %d display IDs", assigned)
	return nil
}
