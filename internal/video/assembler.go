package video

import (
	"time"

	"github.com/wavry-io/wavry/internal/message"
)

// FrameTimeout is how long a partial frame may sit before eviction (spec
// §3 Video Frame Buffer, §8 invariant 7).
const FrameTimeout = 50 * time.Millisecond

// pendingFrame mirrors the spec's Video Frame Buffer: a fixed-size chunk
// slot array plus presence tracking so completeness is O(1) to check.
type pendingFrame struct {
	firstSeen   time.Time
	timestampUs uint64
	keyframe    bool
	chunkCount  uint16
	present     uint16 // count of non-nil slots
	slots       [][]byte
}

// Assembler reassembles chunked frames tolerant of arrival reordering and
// duplicate delivery, evicting partial frames older than FrameTimeout.
type Assembler struct {
	frames map[uint32]*pendingFrame
}

// NewAssembler returns an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{frames: make(map[uint32]*pendingFrame)}
}

// Ingest inserts one chunk, ages out stale partial frames relative to now,
// and returns the assembled frame bytes once every chunk has arrived. A
// duplicate chunk is a no-op (spec §4.4: "duplicate chunks are idempotent").
func (a *Assembler) Ingest(now time.Time, chunk message.VideoChunk) (completed []byte, ts uint64, keyframe bool, ok bool) {
	a.evictStale(now)

	if chunk.ChunkCount == 0 || chunk.ChunkIndex >= chunk.ChunkCount {
		return nil, 0, false, false
	}

	f, exists := a.frames[chunk.FrameID]
	if !exists {
		f = &pendingFrame{
			firstSeen:   now,
			timestampUs: chunk.TimestampUs,
			keyframe:    chunk.Keyframe,
			chunkCount:  chunk.ChunkCount,
			slots:       make([][]byte, chunk.ChunkCount),
		}
		a.frames[chunk.FrameID] = f
	}

	if f.slots[chunk.ChunkIndex] == nil {
		f.slots[chunk.ChunkIndex] = chunk.Data
		f.present++
	}

	if f.present < f.chunkCount {
		return nil, 0, false, false
	}

	total := 0
	for _, s := range f.slots {
		total += len(s)
	}
	out := make([]byte, 0, total)
	for _, s := range f.slots {
		out = append(out, s...)
	}
	delete(a.frames, chunk.FrameID)
	return out, f.timestampUs, f.keyframe, true
}

// evictStale deletes any partial frame whose first chunk arrived more than
// FrameTimeout before now.
func (a *Assembler) evictStale(now time.Time) {
	for id, f := range a.frames {
		if now.Sub(f.firstSeen) > FrameTimeout {
			delete(a.frames, id)
		}
	}
}

// Pending reports how many frames are currently partially assembled, for
// diagnostics.
func (a *Assembler) Pending() int {
	return len(a.frames)
}
