package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeEncoding()
	c.normalizeBurning()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ProfileDB) == "" {
		c.Paths.ProfileDB = defaultProfileDB
	}
	if c.Paths.ProfileDB, err = expandPath(c.Paths.ProfileDB); err != nil {
		return fmt.Errorf("paths.profile_db: %w", err)
	}
	return nil
}

func (c *Config) normalizeEncoding() {
	c.Encoding.FFmpeg = strings.TrimSpace(c.Encoding.FFmpeg)
	c.Encoding.FFprobe = strings.TrimSpace(c.Encoding.FFprobe)
	if c.Encoding.Workers < 0 {
		c.Encoding.Workers = 0
	}
}

func (c *Config) normalizeBurning() {
	c.Burning.ImageBinary = strings.TrimSpace(c.Burning.ImageBinary)
	c.Burning.BurnBinary = strings.TrimSpace(c.Burning.BurnBinary)
	c.Burning.StatusBinary = strings.TrimSpace(c.Burning.StatusBinary)
	c.Burning.OpticalDevice = strings.TrimSpace(c.Burning.OpticalDevice)
	if c.Burning.MediaTimeout <= 0 {
		c.Burning.MediaTimeout = defaultMediaTimeout
	}
	c.Burning.VolumeLabel = strings.TrimSpace(c.Burning.VolumeLabel)
	if c.Burning.VolumeLabel == "" {
		c.Burning.VolumeLabel = defaultVolumeLabel
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
