package main

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"

	"mixpress/internal/config"
	"mixpress/internal/deps"
	"mixpress/internal/folders"
	"mixpress/internal/logging"
	"mixpress/internal/media"
	"mixpress/internal/store"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		format := cfg.Logging.Format
		if format == "" {
			format = "json"
			if isTerminal(os.Stderr.Fd()) {
				format = "console"
			}
		}
		c.logger, c.loggerErr = logging.New(logging.Options{
			Level:  cfg.Logging.Level,
			Format: format,
		})
	})
	return c.logger, c.loggerErr
}

// verifyTools fails fast on missing binaries before any pipeline starts.
func (c *commandContext) verifyTools() error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	return deps.Verify(cfg)
}

// scanFolders probes every directory argument into a folder snapshot,
// preserving the argument order.
func (c *commandContext) scanFolders(ctx context.Context, paths []string) ([]*folders.MusicFolder, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}

	scanner := folders.NewScanner(media.NewProber(cfg.FFprobeBinary()), logger)
	list := make([]*folders.MusicFolder, 0, len(paths))
	for _, path := range paths {
		expanded, err := config.ExpandPath(path)
		if err != nil {
			return nil, err
		}
		folder, err := scanner.ScanFolder(ctx, expanded)
		if err != nil {
			return nil, err
		}
		list = append(list, folder)
	}
	return list, nil
}

// rehydrateFolders re-probes profile-restored folders, which carry no track
// list of their own. Folders whose source changed come back flagged for a
// re-encode.
func (c *commandContext) rehydrateFolders(ctx context.Context, list []*folders.MusicFolder) ([]*folders.MusicFolder, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}

	scanner := folders.NewScanner(media.NewProber(cfg.FFprobeBinary()), logger)
	out := make([]*folders.MusicFolder, 0, len(list))
	for _, stored := range list {
		folder, err := scanner.Rehydrate(ctx, stored)
		if err != nil {
			return nil, err
		}
		out = append(out, folder)
	}
	return out, nil
}

// withStore opens the profile database for the duration of fn.
func (c *commandContext) withStore(fn func(*store.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	db, err := store.Open(cfg.Paths.ProfileDB)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

func isTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
