package config

const (
	defaultOutputDir    = "~/.cache/mixpress/output"
	defaultLogDir       = "~/.local/share/mixpress/logs"
	defaultProfileDB    = "~/.local/share/mixpress/profiles.db"
	defaultLogFormat    = "console"
	defaultLogLevel     = "info"
	defaultMediaTimeout = 120
	defaultVolumeLabel  = "MIXPRESS"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
			ProfileDB: defaultProfileDB,
		},
		Encoding: Encoding{
			EmbedAlbumArt: true,
		},
		Burning: Burning{
			MediaTimeout: defaultMediaTimeout,
			VolumeLabel:  defaultVolumeLabel,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
