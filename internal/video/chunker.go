// Package video implements the chunking, reassembly, FEC, and retransmit
// pieces of the video pipeline (spec §4.4): a frame goes out as chunked
// VideoChunk messages, protected by an XOR-parity FecPacket every k-1
// chunks, and is reassembled on the other side tolerant of reordering.
package video

import "github.com/wavry-io/wavry/internal/message"

// MaxPayload is the per-chunk payload ceiling after accounting for framing
// and AEAD overhead (spec §4.4).
const MaxPayload = 1200

// ChunkCount reports how many chunks a frame of size n splits into.
func ChunkCount(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + MaxPayload - 1) / MaxPayload
}

// ChunkFrame splits frame into ceil(len/MaxPayload) VideoChunk messages
// sharing frameID, timestampUs, and keyframe (spec §8 invariant 6:
// concatenating chunk payloads in index order reproduces frame exactly).
func ChunkFrame(frameID uint32, timestampUs uint64, keyframe bool, frame []byte) []message.VideoChunk {
	count := ChunkCount(len(frame))
	chunks := make([]message.VideoChunk, 0, count)
	for i := 0; i < count; i++ {
		start := i * MaxPayload
		end := start + MaxPayload
		if end > len(frame) {
			end = len(frame)
		}
		data := make([]byte, end-start)
		copy(data, frame[start:end])
		chunks = append(chunks, message.VideoChunk{
			FrameID:     frameID,
			ChunkIndex:  uint16(i),
			ChunkCount:  uint16(count),
			Keyframe:    keyframe,
			TimestampUs: timestampUs,
			Data:        data,
		})
	}
	return chunks
}
