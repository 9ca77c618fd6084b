package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
	ProfileDB string `toml:"profile_db"`
}

// Encoding contains transcoding behavior settings.
type Encoding struct {
	NoLossyMode   bool   `toml:"no_lossy_mode"`
	EmbedAlbumArt bool   `toml:"embed_album_art"`
	Workers       int    `toml:"workers"`
	FFmpeg        string `toml:"ffmpeg_binary"`
	FFprobe       string `toml:"ffprobe_binary"`
}

// Burning contains disc image and burn tool settings.
type Burning struct {
	ImageBinary     string `toml:"image_binary"`
	BurnBinary      string `toml:"burn_binary"`
	StatusBinary    string `toml:"status_binary"`
	MediaTimeout    int    `toml:"media_timeout"`
	Simulate        bool   `toml:"simulate"`
	VolumeLabel     string `toml:"volume_label"`
	OpticalDevice   string `toml:"optical_device"`
	VerifyAfterBurn bool   `toml:"verify_after_burn"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for mixpress.
//
// Configuration sections by subsystem:
//   - Paths: output session root, log directory, profile database
//   - Encoding: transcoding flags and ffmpeg/ffprobe binaries
//   - Burning: image/burn/status tools, media timeout, volume label
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Encoding Encoding `toml:"encoding"`
	Burning  Burning  `toml:"burning"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/mixpress/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/mixpress/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("mixpress.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for pipeline operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if db := strings.TrimSpace(c.Paths.ProfileDB); db != "" {
		if err := os.MkdirAll(filepath.Dir(db), 0o755); err != nil {
			return fmt.Errorf("create profile database directory: %w", err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable used for transcoding.
func (c *Config) FFmpegBinary() string {
	if v := strings.TrimSpace(c.Encoding.FFmpeg); v != "" {
		return v
	}
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable used for media probing.
func (c *Config) FFprobeBinary() string {
	if v := strings.TrimSpace(c.Encoding.FFprobe); v != "" {
		return v
	}
	return "ffprobe"
}

// ImageBinary returns the disc image builder executable.
func (c *Config) ImageBinary() string {
	if v := strings.TrimSpace(c.Burning.ImageBinary); v != "" {
		return v
	}
	return "hdiutil"
}

// BurnBinary returns the burn/erase executable.
func (c *Config) BurnBinary() string {
	if v := strings.TrimSpace(c.Burning.BurnBinary); v != "" {
		return v
	}
	return "hdiutil"
}

// StatusBinary returns the disc status probe executable.
func (c *Config) StatusBinary() string {
	if v := strings.TrimSpace(c.Burning.StatusBinary); v != "" {
		return v
	}
	return "drutil"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
