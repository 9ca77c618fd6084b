package main

import (
	"bufio"
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"mixpress/internal/burn"
	"mixpress/internal/disc"
	"mixpress/internal/engine"
	"mixpress/internal/folders"
	"mixpress/internal/iso"
	"mixpress/internal/logging"
	"mixpress/internal/output"
	"mixpress/internal/services"
	"mixpress/internal/services/ffmpeg"
	"mixpress/internal/store"
	"mixpress/internal/workflow"
)

func newBurnCommand(ctx *commandContext) *cobra.Command {
	var profileFlag string
	var bitrateFlag int
	var assumeErase bool

	cmd := &cobra.Command{
		Use:   "burn [<folder>...]",
		Short: "Encode, build the disc image, and burn it",
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

			runCtx, stopSignals := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stopSignals()

			var list []*folders.MusicFolder
			var image *iso.State
			switch {
			case profileFlag != "":
				if len(args) > 0 {
					return services.Wrap(services.ErrValidation, "cli", "burn", "pass folders or --profile, not both", nil)
				}
				if err := ctx.withStore(func(db *store.Store) error {
					profile, err := db.LoadProfile(runCtx, profileFlag)
					if err != nil {
						return err
					}
					list = profile.Folders
					image = profile.Image
					return nil
				}); err != nil {
					return err
				}
				if list, err = ctx.rehydrateFolders(runCtx, list); err != nil {
					return err
				}
			case len(args) > 0:
				if list, err = ctx.scanFolders(runCtx, args); err != nil {
					return err
				}
			default:
				return services.Wrap(services.ErrValidation, "cli", "burn", "pass at least one folder or --profile", nil)
			}

			out := output.NewSessionManager(cfg.Paths.OutputDir, logger)
			if profileFlag == "" {
				// A saved profile may point at a previous session's output
				// and image, so old sessions are only swept on fresh runs.
				if _, cleanupErr := out.CleanupOldSessions(); cleanupErr != nil {
					logger.Warn("session cleanup failed", logging.Error(cleanupErr))
				}
			}
			eng := engine.New(engine.Config{
				NoLossyMode:   cfg.Encoding.NoLossyMode,
				EmbedAlbumArt: cfg.Encoding.EmbedAlbumArt,
				Workers:       cfg.Encoding.Workers,
			}, out, ffmpeg.NewCLI(ffmpeg.WithBinary(cfg.FFmpegBinary())), logger)
			eng.Start()
			defer eng.Stop()
			if bitrateFlag > 0 {
				eng.SetManualBitrate(bitrateFlag)
			}

			wake, stopWake := newMediaWake(cfg.Burning.OpticalDevice, logger)
			defer stopWake()

			stages := make(chan burn.Stage, 16)
			manager := workflow.NewManager(cfg, eng, out,
				disc.NewCLIProber(cfg.StatusBinary()),
				burn.NewCLI(burn.WithBinary(cfg.BurnBinary())),
				iso.NewCLI(iso.WithBinary(cfg.ImageBinary())),
				logger,
				workflow.WithWake(wake),
				workflow.WithImage(image),
				workflow.WithStageCallback(func(stage burn.Stage, percent float64) {
					select {
					case stages <- stage:
					default:
					}
				}),
			)

			outcome, err := runBurn(runCtx, cmd, manager, stages, list, assumeErase)

			if profileFlag != "" {
				// Persist conversion metadata and the image so a retry can
				// skip straight to the burn.
				if saveErr := ctx.withStore(func(db *store.Store) error {
					return db.SaveProfile(cmd.Context(), profileFlag, list, manager.Image())
				}); saveErr != nil {
					logger.Warn("profile save after burn failed", logging.Error(saveErr))
				}
			}

			if outcome == burn.OutcomeComplete {
				if ejectErr := disc.Eject(cmd.Context(), cfg.Burning.OpticalDevice); ejectErr != nil {
					logger.Warn("disc eject failed", logging.Error(ejectErr))
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\nBurn result: %s\n", outcome)
			return err
		},
	}

	cmd.Flags().StringVar(&profileFlag, "profile", "", "Burn a saved profile instead of scanning folders")
	cmd.Flags().IntVar(&bitrateFlag, "bitrate", 0, "Pin the lossless bitrate in kbps instead of computing it")
	cmd.Flags().BoolVar(&assumeErase, "erase", false, "Erase rewritable media without prompting")
	return cmd
}

// runBurn drives one workflow run, relaying stage changes to the terminal
// and prompting when an erasable disc needs approval.
func runBurn(ctx context.Context, cmd *cobra.Command, manager *workflow.Manager, stages <-chan burn.Stage, list []*folders.MusicFolder, assumeErase bool) (burn.Outcome, error) {
	type result struct {
		outcome burn.Outcome
		err     error
	}
	done := make(chan result, 1)
	go func() {
		outcome, err := manager.Run(ctx, list)
		done <- result{outcome, err}
	}()

	out := cmd.OutOrStdout()
	cancelled := ctx.Done()
	var last burn.Stage
	for {
		select {
		case <-cancelled:
			manager.Cancel()
			cancelled = nil
		case stage := <-stages:
			if stage == last {
				continue
			}
			last = stage
			fmt.Fprintln(out, stage.Description())
			if stage == burn.StageErasableDisc {
				if assumeErase || confirmErase(cmd) {
					manager.ApproveErase()
				} else {
					manager.Cancel()
				}
			}
		case res := <-done:
			return res.outcome, res.err
		}
	}
}

func confirmErase(cmd *cobra.Command) bool {
	fmt.Fprint(cmd.OutOrStdout(), "The disc contains data. Erase it? [y/N] ")
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
