package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mixpress/internal/store"
)

func newProfileCommand(ctx *commandContext) *cobra.Command {
	profileCmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage saved compilation profiles",
	}

	profileCmd.AddCommand(newProfileSaveCommand(ctx))
	profileCmd.AddCommand(newProfileListCommand(ctx))
	profileCmd.AddCommand(newProfileDeleteCommand(ctx))

	return profileCmd
}

func newProfileSaveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "save <name> <folder>...",
		Short: "Scan folders and save them as a named compilation",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			list, err := ctx.scanFolders(cmd.Context(), args[1:])
			if err != nil {
				return err
			}
			return ctx.withStore(func(db *store.Store) error {
				if err := db.SaveProfile(cmd.Context(), name, list, nil); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved profile %q with %d folders\n", name, len(list))
				return nil
			})
		},
	}
}

func newProfileListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(db *store.Store) error {
				summaries, err := db.ListProfiles(cmd.Context())
				if err != nil {
					return err
				}
				if len(summaries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No saved profiles.")
					return nil
				}
				rows := make([][]string, 0, len(summaries))
				for _, summary := range summaries {
					rows = append(rows, []string{
						summary.Name,
						fmt.Sprintf("%d", summary.FolderCount),
						summary.UpdatedAt.Format("2006-01-02 15:04"),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Profile", "Folders", "Updated"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
}

func newProfileDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a saved profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(db *store.Store) error {
				if err := db.DeleteProfile(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted profile %q\n", args[0])
				return nil
			})
		},
	}
}
