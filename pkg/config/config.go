package config

import (
	"os"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/HybridEidolon/pso2-modpatcher/pkg/errors"
)

// ExpectedIceVersion is the only archive format version this tool will rewrite.
// Archives reporting any other version are left untouched.
const ExpectedIceVersion = 4

// BackupDirName is the reserved directory name under the data root where
// pre-patch copies of archives are kept. An overlay directory with this name
// collides with the backup root and is rejected during traversal.
const BackupDirName = "backup"

// Config holds the settings for one patch run.
type Config struct {
	// Strict aborts the whole run on the first per-unit failure instead of
	// logging it and continuing with sibling directories.
	Strict bool `toml:"strict"`

	// DisableBackups skips backup creation entirely; no backup paths are
	// computed during traversal.
	DisableBackups bool `toml:"disable_backups"`

	// ForceCompressionOff rewrites every archive uncompressed regardless of
	// the original's flags. The non-Oodle encoder produces output the game
	// client rejects, so compression is only ever re-enabled for archives
	// that were Oodle-compressed to begin with; this switch turns it off for
	// those too. Kept as an explicit setting so the workaround is visible
	// and reversible.
	ForceCompressionOff bool `toml:"force_compression_off"`

	// IceSuffix marks an overlay directory as a patch unit for one archive.
	IceSuffix string `toml:"ice_suffix"`
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	return &Config{
		Strict:              false,
		DisableBackups:      false,
		ForceCompressionOff: false,
		IceSuffix:           "_ice",
	}
}

// Load reads a TOML config file and overlays it on the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "cannot read config file %s", path)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, errors.ErrInvalidInput, "cannot parse config file %s", path)
	}

	if cfg.IceSuffix == "" {
		return nil, errors.New(errors.ErrInvalidInput, "ice_suffix must not be empty").
			WithDetail("path", path)
	}

	return cfg, nil
}
