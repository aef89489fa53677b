package message

// VideoChunk is one fragment of a chunked, possibly FEC-protected encoded
// frame (spec §5). FrameID identifies the frame being reassembled;
// ChunkIndex/ChunkCount let the assembler detect completeness without
// depending on packet arrival order.
type VideoChunk struct {
	FrameID      uint32
	ChunkIndex   uint16
	ChunkCount   uint16
	Keyframe     bool
	TimestampUs  uint64
	Data         []byte
}

func (v VideoChunk) Encode() []byte {
	buf := make([]byte, 0, 4+2+2+1+8+len(v.Data))
	var u32buf [4]byte
	putUint32(u32buf[:], v.FrameID)
	buf = append(buf, u32buf[:]...)
	var u16buf [2]byte
	putUint16(u16buf[:], v.ChunkIndex)
	buf = append(buf, u16buf[:]...)
	putUint16(u16buf[:], v.ChunkCount)
	buf = append(buf, u16buf[:]...)
	if v.Keyframe {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	var u64buf [8]byte
	putUint64(u64buf[:], v.TimestampUs)
	buf = append(buf, u64buf[:]...)
	buf = append(buf, v.Data...)
	return buf
}

func DecodeVideoChunk(buf []byte) (VideoChunk, error) {
	if len(buf) < 17 {
		return VideoChunk{}, ErrTruncated
	}
	v := VideoChunk{
		FrameID:     getUint32(buf[0:4]),
		ChunkIndex:  getUint16(buf[4:6]),
		ChunkCount:  getUint16(buf[6:8]),
		Keyframe:    buf[8] != 0,
		TimestampUs: getUint64(buf[9:17]),
	}
	v.Data = append([]byte(nil), buf[17:]...)
	return v, nil
}

// FecPacket is the single parity shard emitted per FEC group: the k-1
// protected data shards are the video chunks already sent under
// first_packet_id..first_packet_id+k-2, so only the parity payload and
// each data shard's original length (needed to truncate a recovered
// shard exactly) travel on the wire (spec §4.4 FEC builder).
type FecPacket struct {
	GroupID       uint32
	FirstPacketID uint64
	ShardCount    uint8 // k, including the parity shard
	ShardLengths  []uint16 // len == ShardCount-1, one per data shard
	Payload       []byte   // XOR of all data shards, padded to max length
}

func (f FecPacket) Encode() []byte {
	buf := make([]byte, 0, 4+8+1+2*len(f.ShardLengths)+len(f.Payload))
	var u32buf [4]byte
	putUint32(u32buf[:], f.GroupID)
	buf = append(buf, u32buf[:]...)
	var u64buf [8]byte
	putUint64(u64buf[:], f.FirstPacketID)
	buf = append(buf, u64buf[:]...)
	buf = append(buf, f.ShardCount)
	var u16buf [2]byte
	for _, l := range f.ShardLengths {
		putUint16(u16buf[:], l)
		buf = append(buf, u16buf[:]...)
	}
	buf = append(buf, f.Payload...)
	return buf
}

func DecodeFecPacket(buf []byte) (FecPacket, error) {
	if len(buf) < 13 {
		return FecPacket{}, ErrTruncated
	}
	f := FecPacket{
		GroupID:       getUint32(buf[0:4]),
		FirstPacketID: getUint64(buf[4:12]),
		ShardCount:    buf[12],
	}
	buf = buf[13:]
	if f.ShardCount == 0 {
		return FecPacket{}, ErrTruncated
	}
	numLengths := int(f.ShardCount) - 1
	if len(buf) < numLengths*2 {
		return FecPacket{}, ErrTruncated
	}
	f.ShardLengths = make([]uint16, numLengths)
	for i := 0; i < numLengths; i++ {
		f.ShardLengths[i] = getUint16(buf[i*2 : i*2+2])
	}
	buf = buf[numLengths*2:]
	f.Payload = append([]byte(nil), buf...)
	return f, nil
}

// Audio carries an opaque encoded audio payload timestamped independently
// of the video pipeline so the renderer can resynchronize both streams.
type Audio struct {
	TimestampUs uint64
	Payload     []byte
}

func (a Audio) Encode() []byte {
	buf := make([]byte, 8, 8+len(a.Payload))
	putUint64(buf, a.TimestampUs)
	buf = append(buf, a.Payload...)
	return buf
}

func DecodeAudio(buf []byte) (Audio, error) {
	if len(buf) < 8 {
		return Audio{}, ErrTruncated
	}
	return Audio{TimestampUs: getUint64(buf[0:8]), Payload: append([]byte(nil), buf[8:]...)}, nil
}

// FileOffer announces an incoming file transfer (original_source
// wavry-common file_transfer.rs FileOffer).
type FileOffer struct {
	FileID         uint64
	Filename       string
	FileSize       uint64
	ChecksumSHA256 string
	ChunkSize      uint32
	TotalChunks    uint32
}

func (f FileOffer) Encode() []byte {
	buf := make([]byte, 0, 64+len(f.Filename))
	var u64buf [8]byte
	putUint64(u64buf[:], f.FileID)
	buf = append(buf, u64buf[:]...)
	putString(&buf, f.Filename)
	putUint64(u64buf[:], f.FileSize)
	buf = append(buf, u64buf[:]...)
	putString(&buf, f.ChecksumSHA256)
	var u32buf [4]byte
	putUint32(u32buf[:], f.ChunkSize)
	buf = append(buf, u32buf[:]...)
	putUint32(u32buf[:], f.TotalChunks)
	buf = append(buf, u32buf[:]...)
	return buf
}

func DecodeFileOffer(buf []byte) (FileOffer, error) {
	var f FileOffer
	if len(buf) < 8 {
		return f, ErrTruncated
	}
	f.FileID = getUint64(buf[0:8])
	buf = buf[8:]
	var err error
	f.Filename, buf, err = getString(buf)
	if err != nil {
		return f, err
	}
	if len(buf) < 8 {
		return f, ErrTruncated
	}
	f.FileSize = getUint64(buf[0:8])
	buf = buf[8:]
	f.ChecksumSHA256, buf, err = getString(buf)
	if err != nil {
		return f, err
	}
	if len(buf) < 8 {
		return f, ErrTruncated
	}
	f.ChunkSize = getUint32(buf[0:4])
	f.TotalChunks = getUint32(buf[4:8])
	return f, nil
}

// FileChunk carries one chunk of file payload (wavry-common FileChunkData).
type FileChunk struct {
	FileID     uint64
	ChunkIndex uint32
	Payload    []byte
}

func (f FileChunk) Encode() []byte {
	buf := make([]byte, 12, 12+len(f.Payload))
	putUint64(buf[0:8], f.FileID)
	putUint32(buf[8:12], f.ChunkIndex)
	buf = append(buf, f.Payload...)
	return buf
}

func DecodeFileChunk(buf []byte) (FileChunk, error) {
	if len(buf) < 12 {
		return FileChunk{}, ErrTruncated
	}
	return FileChunk{
		FileID:     getUint64(buf[0:8]),
		ChunkIndex: getUint32(buf[8:12]),
		Payload:    append([]byte(nil), buf[12:]...),
	}, nil
}

// FileAck reports receiver progress so a sender can resume after a
// disconnect rather than restart (spec §5's resumable transfer rule).
// NextMissingChunk mirrors IncomingFile.next_missing_chunk in the original.
type FileAck struct {
	FileID           uint64
	Complete         bool
	NextMissingChunk uint32
}

func (f FileAck) Encode() []byte {
	buf := make([]byte, 13)
	putUint64(buf[0:8], f.FileID)
	if f.Complete {
		buf[8] = 1
	}
	putUint32(buf[9:13], f.NextMissingChunk)
	return buf
}

func DecodeFileAck(buf []byte) (FileAck, error) {
	if len(buf) < 13 {
		return FileAck{}, ErrTruncated
	}
	return FileAck{
		FileID:           getUint64(buf[0:8]),
		Complete:         buf[8] != 0,
		NextMissingChunk: getUint32(buf[9:13]),
	}, nil
}
