package filetransfer

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/wavry-io/wavry/internal/message"
)

// OutgoingFile owns a read cursor over a local file being offered for
// transfer (spec §3: "OutgoingFile owns a read cursor and next_chunk
// index").
type OutgoingFile struct {
	offer      message.FileOffer
	file       *os.File
	nextChunk  uint32
	headerSent bool
	paused     bool
}

// NewOutgoingFile stats, hashes, and opens path, building the FileOffer a
// receiver needs to prepare an IncomingFile.
func NewOutgoingFile(path string, fileID uint64, chunkSize uint32, maxFileBytes uint64) (*OutgoingFile, error) {
	if fileID == 0 {
		return nil, errors.New("filetransfer: file_id must be non-zero")
	}
	if chunkSize == 0 {
		return nil, errors.New("filetransfer: chunk_size must be non-zero")
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "filetransfer: stat %s", path)
	}
	if info.IsDir() {
		return nil, errors.Errorf("filetransfer: not a regular file: %s", path)
	}
	fileSize := uint64(info.Size())
	if fileSize == 0 {
		return nil, errors.Errorf("filetransfer: empty files are not supported: %s", path)
	}
	if fileSize > maxFileBytes {
		return nil, errors.Wrapf(ErrOversizedOffer, "%s (%d bytes, max %d)", path, fileSize, maxFileBytes)
	}

	filename, ok := SanitizeFilename(filepath.Base(path))
	if !ok {
		return nil, errors.Wrapf(ErrInvalidFilename, "%s", path)
	}
	totalChunks, err := ChunkCount(fileSize, chunkSize)
	if err != nil {
		return nil, err
	}
	checksum, err := SHA256FileHex(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "filetransfer: open %s", path)
	}

	return &OutgoingFile{
		offer: message.FileOffer{
			FileID:         fileID,
			Filename:       filename,
			FileSize:       fileSize,
			ChecksumSHA256: checksum,
			ChunkSize:      chunkSize,
			TotalChunks:    totalChunks,
		},
		file: f,
	}, nil
}

// Offer returns the FileOffer a receiver needs.
func (o *OutgoingFile) Offer() message.FileOffer { return o.offer }

// MarkHeaderSent/HeaderSent/ResetHeader track whether the FileOffer
// control message has gone out yet.
func (o *OutgoingFile) MarkHeaderSent()  { o.headerSent = true }
func (o *OutgoingFile) HeaderSent() bool { return o.headerSent }
func (o *OutgoingFile) ResetHeader()     { o.headerSent = false }

// Finished reports whether every chunk has been emitted.
func (o *OutgoingFile) Finished() bool { return o.nextChunk >= o.offer.TotalChunks }

// NextChunkIndex reports the index NextChunk will emit next.
func (o *OutgoingFile) NextChunkIndex() uint32 { return o.nextChunk }

// SetNextChunk repositions the read cursor, used to resume after an ack
// reports a missing chunk (spec §4.7).
func (o *OutgoingFile) SetNextChunk(chunkIndex uint32) error {
	if chunkIndex > o.offer.TotalChunks {
		return errors.Wrapf(ErrOutOfRange, "chunk %d for %d chunks", chunkIndex, o.offer.TotalChunks)
	}
	o.nextChunk = chunkIndex
	return nil
}

// RestartFromBeginning rewinds to chunk 0 and clears header_sent.
func (o *OutgoingFile) RestartFromBeginning() {
	o.nextChunk = 0
	o.headerSent = false
}

func (o *OutgoingFile) Pause()       { o.paused = true }
func (o *OutgoingFile) Resume()      { o.paused = false }
func (o *OutgoingFile) Paused() bool { return o.paused }

// NextChunk reads and returns the next sequential FileChunk, or ok=false
// once the file is finished.
func (o *OutgoingFile) NextChunk() (message.FileChunk, bool, error) {
	if o.Finished() {
		return message.FileChunk{}, false, nil
	}
	chunkIndex := o.nextChunk
	chunkLen, err := expectedChunkLen(o.offer, chunkIndex)
	if err != nil {
		return message.FileChunk{}, false, err
	}
	if chunkLen == 0 {
		o.nextChunk = o.offer.TotalChunks
		return message.FileChunk{}, false, nil
	}

	offset := int64(chunkIndex) * int64(o.offer.ChunkSize)
	payload := make([]byte, chunkLen)
	if _, err := o.file.ReadAt(payload, offset); err != nil {
		return message.FileChunk{}, false, errors.Wrapf(err, "filetransfer: read chunk %d of %s", chunkIndex, o.offer.Filename)
	}

	o.nextChunk++
	return message.FileChunk{FileID: o.offer.FileID, ChunkIndex: chunkIndex, Payload: payload}, true, nil
}

// Close releases the underlying file handle.
func (o *OutgoingFile) Close() error { return o.file.Close() }
