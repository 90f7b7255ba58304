package patch

import (
	"os"
	"path/filepath"

	"github.com/HybridEidolon/pso2-modpatcher/pkg/config"
	"github.com/HybridEidolon/pso2-modpatcher/pkg/errors"
	"github.com/HybridEidolon/pso2-modpatcher/pkg/ice"
)

// groupDirs maps each archive group to its overlay subdirectory name.
var groupDirs = [2]string{"1", "2"}

// applyUnit rebuilds the archive at archivePath from one patch unit
// directory. backupPath is empty when backups are disabled. The destination
// file is only touched after the replacement archive has been fully
// assembled: a new container is written next to it and renamed into place.
func (p *Patcher) applyUnit(unitDir, archivePath, backupPath string) error {
	overlays, err := groupOverlays(unitDir)
	if err != nil {
		return err
	}

	info, err := os.Stat(archivePath)
	if os.IsNotExist(err) {
		if p.cfg.Strict {
			return errors.Newf(errors.ErrNotFound, "target archive %s does not exist", archivePath)
		}
		// The asset was never shipped; nothing to patch.
		p.logger.Info().
			Str("archive", archivePath).
			Str("unit", unitDir).
			Msg("Target archive does not exist, skipping unit")
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "cannot access target archive %s", archivePath)
	}
	if info.IsDir() {
		return errors.Newf(errors.ErrStructural, "target archive %s is not a file", archivePath)
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess, "failed to open target archive %s", archivePath)
	}
	orig, err := ice.Load(f)
	f.Close()
	if err != nil {
		return errors.Wrapf(err, errors.ErrArchiveLoad, "failed to load %s as an ICE archive", archivePath)
	}

	if orig.Version() != config.ExpectedIceVersion {
		return errors.Newf(errors.ErrVersionMismatch,
			"unable to patch archive %s with version %d", archivePath, orig.Version()).
			WithDetail("expected", config.ExpectedIceVersion)
	}

	if backupPath != "" {
		if _, err := BackupIfAbsent(archivePath, backupPath); err != nil {
			return err
		}
	}

	// The defective non-Oodle encoder means compression only survives for
	// archives that were Oodle-compressed, unless forced off outright.
	wasCompressed := orig.IsCompressed(ice.Group1) || orig.IsCompressed(ice.Group2)
	compress := wasCompressed && orig.IsOodle() && !p.cfg.ForceCompressionOff
	encrypt := orig.IsEncrypted()
	oodle := compress

	w, err := ice.NewWriter(config.ExpectedIceVersion, compress, encrypt, oodle)
	if err != nil {
		return errors.Wrapf(err, errors.ErrArchiveWrite, "unable to start new archive for %s", archivePath)
	}

	for _, g := range ice.Groups {
		if err := p.mergeGroup(w, orig, g, overlays[g], archivePath); err != nil {
			return err
		}
	}

	if err := writeArchive(w, archivePath); err != nil {
		return err
	}

	p.reporter.NotifyPatched(archivePath)
	p.logger.Info().
		Str("archive", archivePath).
		Str("unit", unitDir).
		Msg("Patched archive")
	return nil
}

// groupOverlays resolves the "1"/"2" subdirectories of a patch unit. Either
// may be absent (empty string); both absent makes the unit invalid.
func groupOverlays(unitDir string) ([2]string, error) {
	var overlays [2]string
	found := false

	for i, g := range ice.Groups {
		dir := filepath.Join(unitDir, groupDirs[g])
		info, err := os.Stat(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return overlays, errors.Wrapf(err, errors.ErrFileAccess, "cannot access %s", dir)
		}
		if !info.IsDir() {
			return overlays, errors.Newf(errors.ErrStructural,
				"%s in patch directory %s is not a directory", groupDirs[g], unitDir)
		}
		overlays[i] = dir
		found = true
	}

	if !found {
		return overlays, errors.Newf(errors.ErrStructural,
			"patch directory %s does not contain any files to patch", unitDir)
	}
	return overlays, nil
}

// mergeGroup reproduces one group into w. Existing entries keep their order;
// each is replaced by a same-named overlay file when one exists. Overlay
// files matching no existing entry are appended afterwards as new entries.
func (p *Patcher) mergeGroup(w *ice.Writer, orig *ice.Archive, g ice.Group, overlayDir, archivePath string) error {
	payload, err := orig.DecompressGroup(g)
	if err != nil {
		return errors.Wrapf(err, errors.ErrArchiveLoad, "failed to unpack %s of %s", g, archivePath)
	}
	entries, err := ice.Entries(payload, orig.GroupCount(g))
	if err != nil {
		return errors.Wrapf(err, errors.ErrArchiveLoad, "unable to enumerate %s entries in %s", g, archivePath)
	}

	seen := make(map[string]struct{}, len(entries))

	for _, entry := range entries {
		data := entry.Data

		if overlayDir != "" {
			replacement := filepath.Join(overlayDir, entry.Name)
			info, err := os.Stat(replacement)
			switch {
			case err == nil:
				if !info.Mode().IsRegular() {
					return errors.Newf(errors.ErrStructural,
						"replacement path %s for %s of %s is not a file", replacement, g, archivePath)
				}
				data, err = os.ReadFile(replacement)
				if err != nil {
					return errors.Wrapf(err, errors.ErrFileAccess,
						"failed to read replacement file %s for %s of %s", replacement, g, archivePath)
				}
			case !os.IsNotExist(err):
				return errors.Wrapf(err, errors.ErrFileAccess, "cannot access %s", replacement)
			}
		}

		if err := writeEntry(w, entry.Name, entry.Ext, g, data); err != nil {
			return errors.Wrapf(err, errors.ErrArchiveWrite,
				"failed to write %s in %s of %s", entry.Name, g, archivePath)
		}
		seen[entry.Name] = struct{}{}
	}

	if overlayDir == "" {
		return nil
	}

	additions, err := os.ReadDir(overlayDir)
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileAccess,
			"unable to read dir %s for adding files to %s", overlayDir, archivePath)
	}

	for _, add := range additions {
		name := add.Name()
		if _, ok := seen[name]; ok {
			continue
		}
		path := filepath.Join(overlayDir, name)

		if !add.Type().IsRegular() {
			return errors.Newf(errors.ErrStructural,
				"added path %s for %s of %s is not a file", path, g, archivePath)
		}
		if err := ValidateEntryName(name, path); err != nil {
			return err
		}
		ext, err := EntryExt(name, path)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, errors.ErrFileAccess, "unable to read contents of file %s", path)
		}
		if err := writeEntry(w, name, ext, g, data); err != nil {
			return errors.Wrapf(err, errors.ErrArchiveWrite,
				"unable to write contents of file %s to archive writer", path)
		}
		seen[name] = struct{}{}
	}

	return nil
}

func writeEntry(w *ice.Writer, name, ext string, g ice.Group, data []byte) error {
	ew := w.BeginFile(name, ext, g)
	if _, err := ew.Write(data); err != nil {
		return err
	}
	return ew.Finish()
}

// writeArchive finalizes w next to archivePath and renames it into place, so
// a crash mid-write cannot leave a truncated archive behind.
func writeArchive(w *ice.Writer, archivePath string) error {
	tmpPath := archivePath + ".tmp"

	out, err := os.Create(tmpPath)
	if err != nil {
		return errors.Wrapf(err, errors.ErrFileWrite,
			"unable to open %s for writing patched archive", tmpPath)
	}

	if err := w.Finish(out); err != nil {
		out.Close()
		os.Remove(tmpPath)
		return errors.Wrapf(err, errors.ErrArchiveWrite,
			"unable to write patched archive to %s", tmpPath)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, errors.ErrFileWrite, "unable to finish writing %s", tmpPath)
	}

	if err := os.Rename(tmpPath, archivePath); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, errors.ErrFileWrite,
			"unable to move patched archive into place at %s", archivePath)
	}
	return nil
}
