// Package filetransfer implements the resumable, checksummed bulk file
// transfer sub-protocol multiplexed over a session (spec §3, §4.7),
// ported from original_source's wavry-common/src/file_transfer.rs into Go
// idiom: os.File plus io, rather than a trait object.
package filetransfer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/wavry-io/wavry/internal/message"
)

// DefaultMaxFileBytes is the transfer size ceiling absent an operator
// override (spec §4.7: "Max file size is configurable (default 1 GiB)").
const DefaultMaxFileBytes uint64 = 1024 * 1024 * 1024

// DefaultChunkSize matches the original's default chunk size.
const DefaultChunkSize = 900

// MaxFilenameBytes bounds a sanitized filename's length (spec §4.7).
const MaxFilenameBytes = 255

var (
	ErrInvalidFilename = errors.New("filetransfer: invalid filename")
	ErrOversizedOffer  = errors.New("filetransfer: offer exceeds maximum file size")
	ErrOutOfRange      = errors.New("filetransfer: chunk index out of range")
	ErrChunkLength     = errors.New("filetransfer: unexpected chunk payload length")
	ErrChecksumMismatch = errors.New("filetransfer: checksum mismatch")
	ErrIncomplete      = errors.New("filetransfer: file is incomplete")
)

// SanitizeFilename strips path components and replaces any byte outside
// [A-Za-z0-9._- ] with '_', trims trailing dots/spaces, and caps the
// result at MaxFilenameBytes. Returns "", false for empty, ".", or ".."
// input (spec §4.7).
func SanitizeFilename(input string) (string, bool) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", false
	}
	base := filepath.Base(filepath.FromSlash(trimmed))

	var b strings.Builder
	for i := 0; i < len(base); i++ {
		c := base[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '.', c == '_', c == '-', c == ' ':
			b.WriteByte(c)
		default:
			b.WriteByte('_')
		}
		if b.Len() >= MaxFilenameBytes {
			break
		}
	}
	clean := strings.TrimRight(b.String(), ". ")
	if clean == "" || clean == "." || clean == ".." {
		return "", false
	}
	return clean, true
}

// ChunkCount reports how many chunks a file of fileSize splits into at
// chunkSize bytes per chunk.
func ChunkCount(fileSize uint64, chunkSize uint32) (uint32, error) {
	if chunkSize == 0 {
		return 0, errors.New("filetransfer: chunk_size must be non-zero")
	}
	if fileSize == 0 {
		return 0, errors.New("filetransfer: file_size must be non-zero")
	}
	count := (fileSize + uint64(chunkSize) - 1) / uint64(chunkSize)
	return uint32(count), nil
}

// ValidateOffer checks an inbound offer's internal consistency and size
// cap before any file is created on disk (spec §4.7: "offers exceeding it
// are rejected before file creation").
func ValidateOffer(offer message.FileOffer, maxFileBytes uint64) error {
	if offer.FileID == 0 {
		return errors.New("filetransfer: file_id must be non-zero")
	}
	if _, ok := SanitizeFilename(offer.Filename); !ok {
		return ErrInvalidFilename
	}
	if offer.FileSize == 0 {
		return errors.New("filetransfer: file_size must be non-zero")
	}
	if offer.FileSize > maxFileBytes {
		return ErrOversizedOffer
	}
	expected, err := ChunkCount(offer.FileSize, offer.ChunkSize)
	if err != nil {
		return err
	}
	if expected != offer.TotalChunks {
		return errors.Errorf("filetransfer: invalid total_chunks: expected %d, got %d", expected, offer.TotalChunks)
	}
	if len(offer.ChecksumSHA256) != 64 || !isHex(offer.ChecksumSHA256) {
		return errors.New("filetransfer: invalid checksum_sha256")
	}
	return nil
}

func isHex(s string) bool {
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')) {
			return false
		}
	}
	return true
}

func expectedChunkLen(offer message.FileOffer, chunkIndex uint32) (int, error) {
	if chunkIndex >= offer.TotalChunks {
		return 0, ErrOutOfRange
	}
	offset := uint64(chunkIndex) * uint64(offer.ChunkSize)
	if offer.FileSize <= offset {
		return 0, nil
	}
	remaining := offer.FileSize - offset
	if remaining > uint64(offer.ChunkSize) {
		return int(offer.ChunkSize), nil
	}
	return int(remaining), nil
}

// SHA256FileHex hashes the contents of path and returns the lowercase hex
// digest.
func SHA256FileHex(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, "filetransfer: open %s", path)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Wrapf(err, "filetransfer: hash %s", path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SHA256BytesHex hashes data in memory.
func SHA256BytesHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// uniqueDestinationPath appends " (n)" before the extension, for n in
// 1..9999, until it finds a path that doesn't already exist (spec §4.7).
func uniqueDestinationPath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(filepath.Base(path), ext)
	for n := 1; n <= 9999; n++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, n, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
	return path
}
