package patch

import (
	"io"
	"os"
	"path/filepath"

	"github.com/HybridEidolon/pso2-modpatcher/pkg/errors"
	"github.com/HybridEidolon/pso2-modpatcher/pkg/logging"
)

// EnsureDir creates path and any missing parents. It is idempotent.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return errors.Wrapf(err, errors.ErrDirCreate, "cannot create directory %s", path)
	}
	return nil
}

// BackupIfAbsent copies original to backup unless backup already exists.
// Existing backups are never overwritten: the first run's copy is the
// pristine pre-patch archive and later runs must not clobber it. Returns
// whether a new backup was written.
func BackupIfAbsent(original, backup string) (bool, error) {
	logger := logging.GetLogger("patch.backup")

	if _, err := os.Stat(backup); err == nil {
		logger.Info().
			Str("backup", backup).
			Msg("Backup already exists, keeping it")
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, errors.Wrapf(err, errors.ErrFileAccess, "cannot stat backup path %s", backup)
	}

	if err := EnsureDir(filepath.Dir(backup)); err != nil {
		return false, err
	}

	if err := copyFile(original, backup); err != nil {
		return false, errors.Wrapf(err, errors.ErrFileWrite,
			"failed to copy %s to backup path %s", original, backup)
	}

	logger.Debug().
		Str("original", original).
		Str("backup", backup).
		Msg("Backed up archive")
	return true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
