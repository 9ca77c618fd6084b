package config

import (
	"errors"
	"fmt"
	"strings"
)

const volumeLabelExcluded = `*/:;?\`

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateEncoding(); err != nil {
		return err
	}
	if err := c.validateBurning(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateEncoding() error {
	if c.Encoding.Workers < 0 {
		return errors.New("encoding.workers must not be negative")
	}
	return nil
}

func (c *Config) validateBurning() error {
	if c.Burning.MediaTimeout <= 0 {
		return errors.New("burning.media_timeout must be positive")
	}
	label := c.Burning.VolumeLabel
	if len(label) > 16 {
		return fmt.Errorf("burning.volume_label %q exceeds 16 characters", label)
	}
	if strings.ContainsAny(label, volumeLabelExcluded) {
		return fmt.Errorf("burning.volume_label %q contains a character from %q", label, volumeLabelExcluded)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}
