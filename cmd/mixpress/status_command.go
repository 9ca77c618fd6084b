package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mixpress/internal/store"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <profile>",
		Short: "Show the conversion and image state of a saved profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(db *store.Store) error {
				profile, err := db.LoadProfile(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				rows := make([][]string, 0, len(profile.Folders))
				for i, folder := range profile.Folders {
					rows = append(rows, []string{
						fmt.Sprintf("%02d", i+1),
						folder.DisplayName(),
						folder.ArtistName,
						fmt.Sprintf("%d", folder.FileCount),
						formatDuration(folder.TotalDuration),
						yesNo(folder.SourceAvailable),
						folder.Status.String(),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"#", "Album", "Artist", "Tracks", "Length", "Source", "Status"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
				))

				if image := profile.Image; image != nil {
					fmt.Fprintf(out, "\nImage: %s (%s)\n", image.Path, formatBytes(image.SizeBytes))
					fmt.Fprintf(out, "Burnable as-is: %s\n", yesNo(image.Exists()))
					if image.ExceedsCapacity() {
						fmt.Fprintln(out, "Warning: the image exceeds the disc capacity ceiling.")
					}
				} else {
					fmt.Fprintln(out, "\nNo image built yet.")
				}
				fmt.Fprintf(out, "Updated: %s\n", profile.UpdatedAt.Format("2006-01-02 15:04"))
				return nil
			})
		},
	}
	return cmd
}
