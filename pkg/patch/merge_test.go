package patch_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HybridEidolon/pso2-modpatcher/pkg/config"
	"github.com/HybridEidolon/pso2-modpatcher/pkg/errors"
	"github.com/HybridEidolon/pso2-modpatcher/pkg/ice"
	"github.com/HybridEidolon/pso2-modpatcher/pkg/patch"
)

type entrySpec struct {
	name string
	ext  string
	data []byte
}

// writeTestArchive creates an archive on disk with the given group contents.
func writeTestArchive(t *testing.T, path string, version int, compress, encrypt, oodle bool, g1, g2 []entrySpec) {
	t.Helper()

	w, err := ice.NewWriter(version, compress, encrypt, oodle)
	require.NoError(t, err)
	for _, e := range g1 {
		writeTestEntry(t, w, e, ice.Group1)
	}
	for _, e := range g2 {
		writeTestEntry(t, w, e, ice.Group2)
	}

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Finish(f))
	require.NoError(t, f.Close())
}

func writeTestEntry(t *testing.T, w *ice.Writer, e entrySpec, g ice.Group) {
	t.Helper()
	ew := w.BeginFile(e.name, e.ext, g)
	_, err := ew.Write(e.data)
	require.NoError(t, err)
	require.NoError(t, ew.Finish())
}

// readGroupEntries loads an archive and returns one group fully decoded.
func readGroupEntries(t *testing.T, path string, g ice.Group) []ice.Entry {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	a, err := ice.Load(f)
	require.NoError(t, err)
	payload, err := a.DecompressGroup(g)
	require.NoError(t, err)
	entries, err := ice.Entries(payload, a.GroupCount(g))
	require.NoError(t, err)
	return entries
}

func writeOverlayFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func newPatcher(mutate func(*config.Config)) *patch.Patcher {
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	return patch.New(cfg, nil)
}

func TestReplacementPreservesOrderAndUnmatchedEntries(t *testing.T) {
	tmp := t.TempDir()
	overlay := filepath.Join(tmp, "mods")
	data := filepath.Join(tmp, "data")

	writeTestArchive(t, filepath.Join(data, "weapon"), 4, false, false, false,
		[]entrySpec{
			{"grip.tex", "tex", []byte("old grip")},
			{"hilt.tex", "tex", []byte("old hilt")},
			{"blade.aqo", "aqo", []byte("old blade")},
		},
		[]entrySpec{
			{"stats.text", "text", []byte("atk=100")},
		})

	writeOverlayFile(t, filepath.Join(overlay, "weapon_ice", "1", "hilt.tex"), []byte("new hilt"))

	require.NoError(t, newPatcher(nil).Run(overlay, data))

	g1 := readGroupEntries(t, filepath.Join(data, "weapon"), ice.Group1)
	require.Len(t, g1, 3, "rebuilt group keeps the original entry count")
	assert.Equal(t, "grip.tex", g1[0].Name)
	assert.Equal(t, []byte("old grip"), g1[0].Data)
	assert.Equal(t, "hilt.tex", g1[1].Name)
	assert.Equal(t, "tex", g1[1].Ext, "name and extension carry over unchanged")
	assert.Equal(t, []byte("new hilt"), g1[1].Data)
	assert.Equal(t, "blade.aqo", g1[2].Name)
	assert.Equal(t, []byte("old blade"), g1[2].Data)

	g2 := readGroupEntries(t, filepath.Join(data, "weapon"), ice.Group2)
	require.Len(t, g2, 1)
	assert.Equal(t, "stats.text", g2[0].Name)
	assert.Equal(t, []byte("atk=100"), g2[0].Data, "group without overlay is fully unchanged")
}

func TestNewEntriesAppendAfterExisting(t *testing.T) {
	tmp := t.TempDir()
	overlay := filepath.Join(tmp, "mods")
	data := filepath.Join(tmp, "data")

	writeTestArchive(t, filepath.Join(data, "weapon"), 4, false, false, false,
		[]entrySpec{{"hilt.tex", "tex", []byte("old hilt")}},
		nil)

	writeOverlayFile(t, filepath.Join(overlay, "weapon_ice", "1", "glow.tex"), []byte("glow"))
	writeOverlayFile(t, filepath.Join(overlay, "weapon_ice", "1", "aura.aqo"), []byte("aura"))

	require.NoError(t, newPatcher(nil).Run(overlay, data))

	g1 := readGroupEntries(t, filepath.Join(data, "weapon"), ice.Group1)
	require.Len(t, g1, 3)
	assert.Equal(t, "hilt.tex", g1[0].Name, "carried entries come before additions")

	// os.ReadDir enumerates sorted by name.
	assert.Equal(t, "aura.aqo", g1[1].Name)
	assert.Equal(t, "aqo", g1[1].Ext, "extension is the file's trailing suffix")
	assert.Equal(t, []byte("aura"), g1[1].Data)
	assert.Equal(t, "glow.tex", g1[2].Name)
	assert.Equal(t, "tex", g1[2].Ext)
}

func TestRoundTripUnionOfEntries(t *testing.T) {
	tmp := t.TempDir()
	overlay := filepath.Join(tmp, "mods")
	data := filepath.Join(tmp, "data")

	writeTestArchive(t, filepath.Join(data, "weapon"), 4, true, true, true,
		[]entrySpec{
			{"a.tex", "tex", []byte("a-old")},
			{"b.tex", "tex", []byte("b-old")},
		},
		[]entrySpec{
			{"c.aqo", "aqo", []byte("c-old")},
		})

	writeOverlayFile(t, filepath.Join(overlay, "weapon_ice", "1", "b.tex"), []byte("b-new"))
	writeOverlayFile(t, filepath.Join(overlay, "weapon_ice", "2", "d.text"), []byte("d-new"))

	require.NoError(t, newPatcher(nil).Run(overlay, data))

	want := map[string][]byte{
		"a.tex":  []byte("a-old"),
		"b.tex":  []byte("b-new"),
		"c.aqo":  []byte("c-old"),
		"d.text": []byte("d-new"),
	}
	got := map[string][]byte{}
	for _, g := range ice.Groups {
		for _, e := range readGroupEntries(t, filepath.Join(data, "weapon"), g) {
			_, dup := got[e.Name]
			require.False(t, dup, "entry %s appears more than once", e.Name)
			got[e.Name] = e.Data
		}
	}
	assert.Equal(t, want, got, "no missing, extra, or mismatched entries")
}

func TestFlagDerivation(t *testing.T) {
	load := func(t *testing.T, path string) *ice.Archive {
		f, err := os.Open(path)
		require.NoError(t, err)
		defer f.Close()
		a, err := ice.Load(f)
		require.NoError(t, err)
		return a
	}

	t.Run("oodle compression and encryption carry over", func(t *testing.T) {
		tmp := t.TempDir()
		overlay := filepath.Join(tmp, "mods")
		data := filepath.Join(tmp, "data")
		writeTestArchive(t, filepath.Join(data, "w"), 4, true, true, true,
			[]entrySpec{{"a.tex", "tex", []byte("a")}}, nil)
		writeOverlayFile(t, filepath.Join(overlay, "w_ice", "1", "a.tex"), []byte("n"))

		require.NoError(t, newPatcher(nil).Run(overlay, data))

		a := load(t, filepath.Join(data, "w"))
		assert.True(t, a.IsCompressed(ice.Group1))
		assert.True(t, a.IsEncrypted())
		assert.True(t, a.IsOodle())
	})

	t.Run("non-oodle compression is dropped", func(t *testing.T) {
		tmp := t.TempDir()
		overlay := filepath.Join(tmp, "mods")
		data := filepath.Join(tmp, "data")
		writeTestArchive(t, filepath.Join(data, "w"), 4, true, false, false,
			[]entrySpec{{"a.tex", "tex", []byte("a")}}, nil)
		writeOverlayFile(t, filepath.Join(overlay, "w_ice", "1", "a.tex"), []byte("n"))

		require.NoError(t, newPatcher(nil).Run(overlay, data))

		a := load(t, filepath.Join(data, "w"))
		assert.False(t, a.IsCompressed(ice.Group1), "defective encoder workaround forces compression off")
		assert.False(t, a.IsOodle())
	})

	t.Run("force compression off overrides oodle", func(t *testing.T) {
		tmp := t.TempDir()
		overlay := filepath.Join(tmp, "mods")
		data := filepath.Join(tmp, "data")
		writeTestArchive(t, filepath.Join(data, "w"), 4, true, true, true,
			[]entrySpec{{"a.tex", "tex", []byte("a")}}, nil)
		writeOverlayFile(t, filepath.Join(overlay, "w_ice", "1", "a.tex"), []byte("n"))

		require.NoError(t, newPatcher(func(c *config.Config) { c.ForceCompressionOff = true }).Run(overlay, data))

		a := load(t, filepath.Join(data, "w"))
		assert.False(t, a.IsCompressed(ice.Group1))
		assert.True(t, a.IsEncrypted(), "encryption still mirrors the original")
	})
}

func TestVersionMismatchLeavesArchiveUntouched(t *testing.T) {
	tmp := t.TempDir()
	overlay := filepath.Join(tmp, "mods")
	data := filepath.Join(tmp, "data")

	writeTestArchive(t, filepath.Join(data, "weapon"), 3, false, false, false,
		[]entrySpec{{"a.tex", "tex", []byte("a")}}, nil)
	before, err := os.ReadFile(filepath.Join(data, "weapon"))
	require.NoError(t, err)

	writeOverlayFile(t, filepath.Join(overlay, "weapon_ice", "1", "a.tex"), []byte("n"))

	runErr := newPatcher(func(c *config.Config) { c.Strict = true }).Run(overlay, data)
	require.Error(t, runErr)
	assert.True(t, errors.IsErrorCode(runErr, errors.ErrVersionMismatch))

	after, err := os.ReadFile(filepath.Join(data, "weapon"))
	require.NoError(t, err)
	assert.Equal(t, before, after, "no bytes may be written on a version mismatch")
}

func TestEncodingErrorLeavesArchiveUntouched(t *testing.T) {
	tmp := t.TempDir()
	overlay := filepath.Join(tmp, "mods")
	data := filepath.Join(tmp, "data")

	writeTestArchive(t, filepath.Join(data, "weapon"), 4, false, false, false,
		[]entrySpec{{"a.tex", "tex", []byte("a")}}, nil)
	before, err := os.ReadFile(filepath.Join(data, "weapon"))
	require.NoError(t, err)

	badName := string([]byte{'b', 0xFF, '.', 't', 'e', 'x'})
	writeOverlayFile(t, filepath.Join(overlay, "weapon_ice", "1", badName), []byte("n"))

	runErr := newPatcher(func(c *config.Config) { c.Strict = true }).Run(overlay, data)
	require.Error(t, runErr)
	assert.True(t, errors.IsErrorCode(runErr, errors.ErrEncoding))

	after, err := os.ReadFile(filepath.Join(data, "weapon"))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestMissingExtensionOnNewEntry(t *testing.T) {
	tmp := t.TempDir()
	overlay := filepath.Join(tmp, "mods")
	data := filepath.Join(tmp, "data")

	writeTestArchive(t, filepath.Join(data, "weapon"), 4, false, false, false,
		[]entrySpec{{"a.tex", "tex", []byte("a")}}, nil)
	writeOverlayFile(t, filepath.Join(overlay, "weapon_ice", "1", "noext"), []byte("n"))

	runErr := newPatcher(func(c *config.Config) { c.Strict = true }).Run(overlay, data)
	require.Error(t, runErr)
	assert.True(t, errors.IsErrorCode(runErr, errors.ErrMissingExtension))
}

func TestBackupLifecycle(t *testing.T) {
	tmp := t.TempDir()
	overlay := filepath.Join(tmp, "mods")
	data := filepath.Join(tmp, "data")
	archivePath := filepath.Join(data, "weapon")
	backupPath := filepath.Join(data, "backup", "weapon")

	writeTestArchive(t, archivePath, 4, false, false, false,
		[]entrySpec{{"a.tex", "tex", []byte("original")}}, nil)
	prePatch, err := os.ReadFile(archivePath)
	require.NoError(t, err)

	writeOverlayFile(t, filepath.Join(overlay, "weapon_ice", "1", "a.tex"), []byte("first"))
	require.NoError(t, newPatcher(nil).Run(overlay, data))

	backup, err := os.ReadFile(backupPath)
	require.NoError(t, err)
	assert.Equal(t, prePatch, backup, "first run backs up the pre-patch bytes")

	// Second run: backup must survive, archive must still be patched.
	writeOverlayFile(t, filepath.Join(overlay, "weapon_ice", "1", "a.tex"), []byte("second"))
	require.NoError(t, newPatcher(nil).Run(overlay, data))

	backupAfter, err := os.ReadFile(backupPath)
	require.NoError(t, err)
	assert.Equal(t, prePatch, backupAfter, "existing backup is never clobbered")

	g1 := readGroupEntries(t, archivePath, ice.Group1)
	require.Len(t, g1, 1)
	assert.Equal(t, []byte("second"), g1[0].Data)
}

func TestBackupsDisabled(t *testing.T) {
	tmp := t.TempDir()
	overlay := filepath.Join(tmp, "mods")
	data := filepath.Join(tmp, "data")

	writeTestArchive(t, filepath.Join(data, "weapon"), 4, false, false, false,
		[]entrySpec{{"a.tex", "tex", []byte("a")}}, nil)
	writeOverlayFile(t, filepath.Join(overlay, "weapon_ice", "1", "a.tex"), []byte("n"))

	require.NoError(t, newPatcher(func(c *config.Config) { c.DisableBackups = true }).Run(overlay, data))

	_, err := os.Stat(filepath.Join(data, "backup"))
	assert.True(t, os.IsNotExist(err), "no backup root is created when backups are disabled")
}

func TestMissingArchive(t *testing.T) {
	t.Run("resilient skips the unit", func(t *testing.T) {
		tmp := t.TempDir()
		overlay := filepath.Join(tmp, "mods")
		data := filepath.Join(tmp, "data")
		require.NoError(t, os.MkdirAll(data, 0755))
		writeOverlayFile(t, filepath.Join(overlay, "never_shipped_ice", "1", "a.tex"), []byte("n"))

		require.NoError(t, newPatcher(nil).Run(overlay, data))
		_, err := os.Stat(filepath.Join(data, "never_shipped"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("strict fails the run", func(t *testing.T) {
		tmp := t.TempDir()
		overlay := filepath.Join(tmp, "mods")
		data := filepath.Join(tmp, "data")
		require.NoError(t, os.MkdirAll(data, 0755))
		writeOverlayFile(t, filepath.Join(overlay, "never_shipped_ice", "1", "a.tex"), []byte("n"))

		err := newPatcher(func(c *config.Config) { c.Strict = true }).Run(overlay, data)
		require.Error(t, err)
		assert.True(t, errors.IsErrorCode(err, errors.ErrNotFound))
	})
}

func TestUnitStructureErrors(t *testing.T) {
	t.Run("no group subdirectories", func(t *testing.T) {
		tmp := t.TempDir()
		overlay := filepath.Join(tmp, "mods")
		data := filepath.Join(tmp, "data")
		writeTestArchive(t, filepath.Join(data, "weapon"), 4, false, false, false,
			[]entrySpec{{"a.tex", "tex", []byte("a")}}, nil)
		require.NoError(t, os.MkdirAll(filepath.Join(overlay, "weapon_ice"), 0755))

		err := newPatcher(func(c *config.Config) { c.Strict = true }).Run(overlay, data)
		require.Error(t, err)
		assert.True(t, errors.IsErrorCode(err, errors.ErrStructural))
	})

	t.Run("group subdirectory is a file", func(t *testing.T) {
		tmp := t.TempDir()
		overlay := filepath.Join(tmp, "mods")
		data := filepath.Join(tmp, "data")
		writeTestArchive(t, filepath.Join(data, "weapon"), 4, false, false, false,
			[]entrySpec{{"a.tex", "tex", []byte("a")}}, nil)
		writeOverlayFile(t, filepath.Join(overlay, "weapon_ice", "1"), []byte("not a dir"))

		err := newPatcher(func(c *config.Config) { c.Strict = true }).Run(overlay, data)
		require.Error(t, err)
		assert.True(t, errors.IsErrorCode(err, errors.ErrStructural))
	})

	t.Run("replacement match is a directory", func(t *testing.T) {
		tmp := t.TempDir()
		overlay := filepath.Join(tmp, "mods")
		data := filepath.Join(tmp, "data")
		writeTestArchive(t, filepath.Join(data, "weapon"), 4, false, false, false,
			[]entrySpec{{"a.tex", "tex", []byte("a")}}, nil)
		require.NoError(t, os.MkdirAll(filepath.Join(overlay, "weapon_ice", "1", "a.tex"), 0755))

		err := newPatcher(func(c *config.Config) { c.Strict = true }).Run(overlay, data)
		require.Error(t, err)
		assert.True(t, errors.IsErrorCode(err, errors.ErrStructural))
	})
}
