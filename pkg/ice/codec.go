package ice

import (
	"bytes"
	"crypto/cipher"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"golang.org/x/crypto/blowfish"
)

// groupKey is the Blowfish key applied to encrypted group payloads. The
// format uses a fixed key; per-archive variation comes from the header IV.
var groupKey = []byte("ice-group-cipher")

// compressPayload runs a plain group payload through the group's codec.
// Oodle-flagged archives use zstd, everything else LZ4 frames.
func compressPayload(payload []byte, oodle bool) ([]byte, error) {
	var buf bytes.Buffer
	if oodle {
		enc, err := zstd.NewWriter(&buf, zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		if _, err := enc.Write(payload); err != nil {
			return nil, fmt.Errorf("compress group payload: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("finish zstd stream: %w", err)
		}
		return buf.Bytes(), nil
	}

	w := lz4.NewWriter(&buf)
	if _, err := w.Write(payload); err != nil {
		return nil, fmt.Errorf("compress group payload: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finish lz4 frame: %w", err)
	}
	return buf.Bytes(), nil
}

// decompressPayload reverses compressPayload.
func decompressPayload(stored []byte, oodle bool) ([]byte, error) {
	if oodle {
		dec, err := zstd.NewReader(bytes.NewReader(stored), zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		defer dec.Close()
		payload, err := io.ReadAll(dec)
		if err != nil {
			return nil, fmt.Errorf("decompress group payload: %w", err)
		}
		return payload, nil
	}

	payload, err := io.ReadAll(lz4.NewReader(bytes.NewReader(stored)))
	if err != nil {
		return nil, fmt.Errorf("decompress group payload: %w", err)
	}
	return payload, nil
}

// cryptPayload encrypts or decrypts a stored payload in CTR mode. The same
// call performs both directions. Each group gets a distinct keystream by
// folding the group number into the archive IV.
func cryptPayload(stored []byte, iv [8]byte, g Group) ([]byte, error) {
	block, err := blowfish.NewCipher(groupKey)
	if err != nil {
		return nil, fmt.Errorf("init group cipher: %w", err)
	}

	groupIV := iv
	groupIV[len(groupIV)-1] ^= byte(g + 1)

	out := make([]byte, len(stored))
	cipher.NewCTR(block, groupIV[:]).XORKeyStream(out, stored)
	return out, nil
}
