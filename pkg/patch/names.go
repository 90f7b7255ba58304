package patch

import (
	"path/filepath"
	"strings"

	"github.com/HybridEidolon/pso2-modpatcher/pkg/errors"
)

// ICE entry names and extensions are stored in a 7-bit character set; any
// byte with the high bit set cannot be represented in the container.

// ValidateEntryName checks that name can be stored as an entry name.
func ValidateEntryName(name, path string) error {
	if !is7Bit(name) {
		return errors.Newf(errors.ErrEncoding, "file name of %s is not 7-bit clean", path).
			WithDetail("name", name)
	}
	return nil
}

// EntryExt derives the entry extension from a file name. The extension is
// the suffix after the final dot; a file without one cannot become an entry.
func EntryExt(name, path string) (string, error) {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	if ext == "" {
		return "", errors.Newf(errors.ErrMissingExtension, "file %s has no extension", path)
	}
	if !is7Bit(ext) {
		return "", errors.Newf(errors.ErrEncoding, "file extension of %s is not 7-bit clean", path).
			WithDetail("extension", ext)
	}
	return ext, nil
}

func is7Bit(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
