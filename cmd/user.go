package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opsdesk/opsdesk/internal/models"
	"github.com/opsdesk/opsdesk/internal/output"
)

var (
	userName  string
	userAdmin bool
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
	Long:  "Manage the users that maintenance operations authorize against.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return userListRun()
	},
}

var userAddCmd = &cobra.Command{
	Use:   "add <email>",
	Short: "Add a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return userAddRun(args[0])
	},
}

var userListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List users",
	RunE: func(cmd *cobra.Command, args []string) error {
		return userListRun()
	},
}

func init() {
	userAddCmd.Flags().StringVar(&userName, "name", "", "Display name")
	userAddCmd.Flags().BoolVar(&userAdmin, "admin", false, "Grant admin rights")

	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userListCmd)
	rootCmd.AddCommand(userCmd)
}

func userAddRun(email string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would add user %s (admin: %v)", email, userAdmin)
		return nil
	}

	u := &models.User{Email: email, Name: userName, Admin: userAdmin}
	if err := s.CreateUser(context.Background(), u); err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	ui.Success("Added user %s", output.Cyan(email))
	return nil
}

func userListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	users, err := s.ListUsers(context.Background())
	if err != nil {
		return err
	}

	if len(users) == 0 {
		ui.Info("No users. Add one with: opsdesk user add <email> --admin")
		return nil
	}

	table := ui.Table([]string{"Email", "Name", "Admin"})
	for _, u := range users {
		admin := ""
		if u.Admin {
			admin = output.Green("yes")
		}
		_ = table.Append([]string{u.Email, u.Name, admin})
	}
	_ = table.Render()
	return nil
}
