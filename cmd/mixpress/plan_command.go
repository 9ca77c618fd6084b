package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"mixpress/internal/capacity"
	"mixpress/internal/media"
	"mixpress/internal/strategy"
)

func newPlanCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <folder>...",
		Short: "Preview per-file strategies and the capacity fit without encoding",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			list, err := ctx.scanFolders(cmd.Context(), args)
			if err != nil {
				return err
			}

			var files []media.FileInfo
			for _, folder := range list {
				files = append(files, folder.ActiveTracks()...)
			}
			estimate := capacity.Calculate(files, cfg.Encoding.NoLossyMode)

			out := cmd.OutOrStdout()
			for _, folder := range list {
				fmt.Fprintf(out, "\n%s (%d tracks, %s, %s)\n",
					folder.DisplayName(), folder.FileCount,
					formatDuration(folder.TotalDuration), formatBytes(folder.TotalSize))

				rows := make([][]string, 0, folder.FileCount)
				for _, file := range folder.ActiveTracks() {
					s := strategy.Determine(file.Codec, file.BitrateKbps, estimate.TargetBitrate,
						file.Lossy, cfg.Encoding.NoLossyMode, cfg.Encoding.EmbedAlbumArt)
					rows = append(rows, []string{
						filepath.Base(file.Path),
						file.Codec,
						formatKbps(file.BitrateKbps),
						s.Kind.String(),
						formatKbps(s.BitrateKbps),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Track", "Codec", "Source", "Strategy", "Target"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight},
				))
			}

			estimatedTotal := capacity.EstimatedSize(files, estimate.TargetBitrate, cfg.Encoding.NoLossyMode)
			fmt.Fprintf(out, "\nLossless target: %s\n", formatKbps(estimate.TargetBitrate))
			fmt.Fprintf(out, "Estimated output: %s of %s budget\n",
				formatBytes(estimatedTotal), formatBytes(capacity.BudgetBytes))
			fmt.Fprintf(out, "Fits on disc: %s\n",
				yesNo(!estimate.WouldExceedCapacity && capacity.WillFit(files, estimate.TargetBitrate, cfg.Encoding.NoLossyMode)))
			if estimate.WouldExceedCapacity {
				fmt.Fprintln(out, "Warning: even the lowest bitrate exceeds the disc budget; drop folders or tracks.")
			}
			return nil
		},
	}
	return cmd
}
