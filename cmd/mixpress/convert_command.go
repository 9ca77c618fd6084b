package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mixpress/internal/config"
	"mixpress/internal/engine"
	"mixpress/internal/folders"
	"mixpress/internal/logging"
	"mixpress/internal/output"
	"mixpress/internal/services"
	"mixpress/internal/services/ffmpeg"
)

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var bitrateFlag int
	var workersFlag int
	var bundleFlag string

	cmd := &cobra.Command{
		Use:   "convert <folder>...",
		Short: "Encode folders for a data CD without burning",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := ctx.verifyTools(); err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			list, err := ctx.scanFolders(runCtx, args)
			if err != nil {
				return err
			}

			workers := workersFlag
			if workers == 0 {
				workers = cfg.Encoding.Workers
			}
			var out *output.Manager
			if bundleFlag != "" {
				bundle, err := config.ExpandPath(bundleFlag)
				if err != nil {
					return err
				}
				out = output.NewBundleManager(bundle, logger)
			} else {
				out = output.NewSessionManager(cfg.Paths.OutputDir, logger)
				if _, err := out.CleanupOldSessions(); err != nil {
					logger.Warn("session cleanup failed", logging.Error(err))
				}
			}
			eng := engine.New(engine.Config{
				NoLossyMode:   cfg.Encoding.NoLossyMode,
				EmbedAlbumArt: cfg.Encoding.EmbedAlbumArt,
				Workers:       workers,
			}, out, ffmpeg.NewCLI(ffmpeg.WithBinary(cfg.FFmpegBinary())), logger)
			eng.Start()
			defer eng.Stop()

			if bitrateFlag > 0 {
				eng.SetManualBitrate(bitrateFlag)
			}

			if err := runConversion(runCtx, cmd, eng, list); err != nil {
				return err
			}

			printStatuses(cmd, list, eng)
			fmt.Fprintf(cmd.OutOrStdout(), "\nOutput: %s\n", out.RootDir())
			return nil
		},
	}

	cmd.Flags().IntVar(&bitrateFlag, "bitrate", 0, "Pin the lossless bitrate in kbps instead of computing it")
	cmd.Flags().IntVar(&workersFlag, "workers", 0, "Override the per-folder worker pool size")
	cmd.Flags().StringVar(&bundleFlag, "bundle", "", "Write output under a persistent bundle directory instead of a session")
	return cmd
}

// runConversion feeds the folder list to the engine and relays events until
// the cycle over that list finishes.
func runConversion(ctx context.Context, cmd *cobra.Command, eng *engine.Engine, list []*folders.MusicFolder) error {
	names := make(map[folders.ID]string, len(list))
	for _, folder := range list {
		names[folder.ID] = folder.DisplayName()
	}

	before := eng.Cycles()
	eng.SetFolders(list)

	out := cmd.OutOrStdout()
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return services.Wrap(services.ErrCancelled, "cli", "convert", "conversion interrupted", ctx.Err())
		case ev := <-eng.Events():
			switch ev.Type {
			case engine.EventFolderStarted:
				fmt.Fprintf(out, "converting %s\n", names[ev.FolderID])
			case engine.EventFolderCompleted:
				fmt.Fprintf(out, "finished %s\n", names[ev.FolderID])
			case engine.EventFolderFailed:
				fmt.Fprintf(out, "failed %s (%d of %d files)\n", names[ev.FolderID], ev.Failed, ev.Total)
			case engine.EventBitrateRecalculated:
				fmt.Fprintf(out, "lossless bitrate: %s\n", formatKbps(ev.NewBitrate))
			case engine.EventPhaseTransition:
				fmt.Fprintf(out, "phase: %s\n", ev.Phase)
			}
		case <-ticker.C:
			if eng.Cycles() > before && eng.Phase() == engine.PhaseComplete {
				if !eng.AllConverted() {
					return services.Wrap(services.ErrTransient, "cli", "convert", "some folders failed to convert", nil)
				}
				return nil
			}
		}
	}
}

func printStatuses(cmd *cobra.Command, list []*folders.MusicFolder, eng *engine.Engine) {
	statuses := eng.Statuses()
	rows := make([][]string, 0, len(list))
	for i, folder := range list {
		status := statuses[folder.ID]
		rows = append(rows, []string{
			fmt.Sprintf("%02d", i+1),
			folder.DisplayName(),
			folder.ArtistName,
			fmt.Sprintf("%d", folder.FileCount),
			formatBytes(status.OutputSize),
			status.String(),
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"#", "Album", "Artist", "Tracks", "Output", "Status"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))
}
