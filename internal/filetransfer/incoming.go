package filetransfer

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/wavry-io/wavry/internal/message"
)

// IncomingFile owns a `.part` file preallocated to the offer's file_size
// plus a received[] bitmap (spec §3). Finalize verifies the checksum and
// renames to the final destination.
type IncomingFile struct {
	offer         message.FileOffer
	partPath      string
	finalPath     string
	file          *os.File
	received      []bool
	receivedCount uint32
}

// NewIncomingFile validates offer, creates outputDir if needed, and
// preallocates a `<name>.part` sidecar file sized to offer.FileSize (spec
// §6 Persisted state).
func NewIncomingFile(outputDir string, offer message.FileOffer, maxFileBytes uint64) (*IncomingFile, error) {
	if err := ValidateOffer(offer, maxFileBytes); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "filetransfer: create %s", outputDir)
	}

	sanitized, ok := SanitizeFilename(offer.Filename)
	if !ok {
		return nil, ErrInvalidFilename
	}
	finalPath := filepath.Join(outputDir, sanitized)
	partPath := finalPath + ".part"

	f, err := os.OpenFile(partPath, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "filetransfer: open %s", partPath)
	}
	if err := f.Truncate(int64(offer.FileSize)); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "filetransfer: size %s", partPath)
	}

	return &IncomingFile{
		offer:     offer,
		partPath:  partPath,
		finalPath: finalPath,
		file:      f,
		received:  make([]bool, offer.TotalChunks),
	}, nil
}

// Offer returns the transfer's FileOffer.
func (in *IncomingFile) Offer() message.FileOffer { return in.offer }

// IsComplete reports whether every chunk has been received.
func (in *IncomingFile) IsComplete() bool { return in.receivedCount == in.offer.TotalChunks }

// ReceivedCount reports how many distinct chunks have arrived.
func (in *IncomingFile) ReceivedCount() uint32 { return in.receivedCount }

// NextMissingChunk reports the lowest-index chunk not yet received, or
// TotalChunks if the transfer is complete — used to drive FileAck-based
// resume.
func (in *IncomingFile) NextMissingChunk() uint32 {
	for i, seen := range in.received {
		if !seen {
			return uint32(i)
		}
	}
	return in.offer.TotalChunks
}

// Abort closes and removes the `.part` file (spec §7 File error handling:
// "abort transfer, remove `.part`").
func (in *IncomingFile) Abort() error {
	in.file.Close()
	if err := os.Remove(in.partPath); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "filetransfer: remove %s", in.partPath)
	}
	return nil
}

// WriteChunk writes one chunk's payload at its offset, rejecting
// out-of-range indices and payloads whose length doesn't match what the
// offer implies for that index (spec §4.7). Returns whether the transfer
// is now complete. A duplicate write of an already-received chunk is a
// no-op beyond re-validating its shape.
func (in *IncomingFile) WriteChunk(chunkIndex uint32, payload []byte) (bool, error) {
	if chunkIndex >= in.offer.TotalChunks {
		return false, errors.Wrapf(ErrOutOfRange, "chunk %d for %d chunks", chunkIndex, in.offer.TotalChunks)
	}
	expected, err := expectedChunkLen(in.offer, chunkIndex)
	if err != nil {
		return false, err
	}
	if len(payload) != expected {
		return false, errors.Wrapf(ErrChunkLength, "chunk %d: expected %d bytes, got %d", chunkIndex, expected, len(payload))
	}

	if !in.received[chunkIndex] {
		offset := int64(chunkIndex) * int64(in.offer.ChunkSize)
		if _, err := in.file.WriteAt(payload, offset); err != nil {
			return false, errors.Wrapf(err, "filetransfer: write chunk %d of %s", chunkIndex, in.offer.Filename)
		}
		in.received[chunkIndex] = true
		in.receivedCount++
	}
	return in.IsComplete(), nil
}

// Finalize refuses if incomplete; otherwise flushes, verifies the SHA-256
// checksum against the offer, and renames `.part` to a collision-avoiding
// final name.
func (in *IncomingFile) Finalize() (string, error) {
	if !in.IsComplete() {
		return "", errors.Wrapf(ErrIncomplete, "%s (%d/%d)", in.offer.Filename, in.receivedCount, in.offer.TotalChunks)
	}

	if err := in.file.Sync(); err != nil {
		return "", errors.Wrap(err, "filetransfer: sync part file")
	}
	if err := in.file.Close(); err != nil {
		return "", errors.Wrap(err, "filetransfer: close part file")
	}

	checksum, err := SHA256FileHex(in.partPath)
	if err != nil {
		return "", err
	}
	if checksum != in.offer.ChecksumSHA256 {
		return "", errors.Wrapf(ErrChecksumMismatch, "%s: expected %s, got %s", in.offer.Filename, in.offer.ChecksumSHA256, checksum)
	}

	destination := uniqueDestinationPath(in.finalPath)
	if err := os.Rename(in.partPath, destination); err != nil {
		return "", errors.Wrapf(err, "filetransfer: move %s to %s", in.partPath, destination)
	}
	return destination, nil
}
