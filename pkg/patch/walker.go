package patch

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/HybridEidolon/pso2-modpatcher/pkg/config"
	"github.com/HybridEidolon/pso2-modpatcher/pkg/errors"
	"github.com/HybridEidolon/pso2-modpatcher/pkg/logging"
	"github.com/HybridEidolon/pso2-modpatcher/pkg/progress"
)

// Patcher walks an overlay tree and applies every patch unit it finds onto
// the matching archives under the data root. A single Patcher processes
// units sequentially; the reporter is its only cross-goroutine surface.
type Patcher struct {
	cfg      *config.Config
	reporter *progress.Reporter
	logger   zerolog.Logger
}

// New creates a Patcher. reporter may be nil when nothing displays progress.
func New(cfg *config.Config, reporter *progress.Reporter) *Patcher {
	return &Patcher{
		cfg:      cfg,
		reporter: reporter,
		logger:   logging.GetLogger("patch"),
	}
}

// Run patches every archive under dataRoot that has a patch unit under
// overlayRoot. Both roots must be existing directories. Unless backups are
// disabled, originals are preserved under dataRoot/backup before their
// first rewrite.
func (p *Patcher) Run(overlayRoot, dataRoot string) error {
	if err := checkRoot(overlayRoot, "input patch"); err != nil {
		return err
	}
	if err := checkRoot(dataRoot, "output data path"); err != nil {
		return err
	}

	backupRoot := ""
	if !p.cfg.DisableBackups {
		backupRoot = filepath.Join(dataRoot, config.BackupDirName)
		if err := EnsureDir(backupRoot); err != nil {
			return err
		}
	}

	err := p.walk(overlayRoot, dataRoot, backupRoot)
	if err == nil {
		p.logger.Info().
			Uint64("patched", p.reporter.Patched()).
			Msg("Patch run complete")
	}
	return err
}

// checkRoot validates a traversal root before anything is touched.
func checkRoot(path, what string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return errors.Newf(errors.ErrPreflight, "%s not found", what).
			WithDetail("path", path)
	}
	if err != nil {
		return errors.Wrapf(err, errors.ErrPreflight, "cannot access %s", what).
			WithDetail("path", path)
	}
	if !info.IsDir() {
		return errors.Newf(errors.ErrPreflight, "%s is a file", what).
			WithDetail("path", path)
	}
	return nil
}

// walk descends one overlay directory. Directories ending in the ice suffix
// are patch units; anything else recurses with parallel output and backup
// paths. backupDir is empty when backups are disabled. In strict mode the
// first error aborts the walk; otherwise failed subtrees are logged and
// siblings continue.
func (p *Patcher) walk(overlayDir, outDir, backupDir string) error {
	dirEntries, err := os.ReadDir(overlayDir)
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess,
			"failed to iterate over patch directory %s", overlayDir)
	}

	for _, dirEntry := range dirEntries {
		if !dirEntry.IsDir() {
			continue
		}
		name := dirEntry.Name()
		src := filepath.Join(overlayDir, name)

		var err error
		switch {
		case name == config.BackupDirName:
			// Backups are written under this name inside the data root; an
			// overlay unit called the same would collide with them.
			err = errors.Newf(errors.ErrReservedName,
				"patch directory name in %s is %q, which is not allowed", overlayDir, name)

		case strings.HasSuffix(name, p.cfg.IceSuffix):
			stripped := strings.TrimSuffix(name, p.cfg.IceSuffix)
			iceOut := filepath.Join(outDir, stripped)
			backupFile := ""
			if backupDir != "" {
				backupFile = filepath.Join(backupDir, stripped)
			}
			err = p.applyUnit(src, iceOut, backupFile)

		default:
			nextBackup := ""
			if backupDir != "" {
				nextBackup = filepath.Join(backupDir, name)
			}
			err = p.walk(src, filepath.Join(outDir, name), nextBackup)
		}

		if err != nil {
			if p.cfg.Strict {
				return err
			}
			p.logger.Error().
				Err(err).
				Str("path", src).
				Msg("Failed to process overlay subtree, continuing")
		}
	}

	return nil
}
