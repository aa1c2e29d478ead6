package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"focusflow/internal/config"
	"focusflow/internal/db"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var dir string
	var status bool

	cmd := &cobra.Command{
		Use:           "migrate",
		Short:         "Apply the session service schema",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			database, err := db.OpenSQLite(cfg.DBPath)
			if err != nil {
				return err
			}
			defer database.Close()

			source := db.MigrationSource(dir)
			out := cmd.OutOrStdout()
			if status {
				pending, err := db.PendingMigrations(database, source)
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					fmt.Fprintln(out, "schema up to date")
				}
				for _, name := range pending {
					fmt.Fprintf(out, "pending %s\n", name)
				}
				return nil
			}

			applied, err := db.RunMigrations(database, source)
			for _, name := range applied {
				fmt.Fprintf(out, "applied %s\n", name)
			}
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(out, "schema already up to date")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.Flags().BoolVar(&status, "status", false, "List pending migrations without applying them")
	return cmd
}
