package video

import (
	"bytes"
	"crypto/rand"
	"math/big"
	"testing"
	"time"

	"github.com/wavry-io/wavry/internal/message"
)

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand: %v", err)
	}
	return b
}

func TestChunkFrameConservation(t *testing.T) {
	frame := randomBytes(t, 3*MaxPayload+37)
	chunks := ChunkFrame(1, 1000, true, frame)
	if len(chunks) != ChunkCount(len(frame)) {
		t.Fatalf("chunk count mismatch: got %d want %d", len(chunks), ChunkCount(len(frame)))
	}
	var reconstructed []byte
	for _, c := range chunks {
		reconstructed = append(reconstructed, c.Data...)
	}
	if !bytes.Equal(reconstructed, frame) {
		t.Fatalf("concatenated chunks do not reproduce original frame")
	}
}

func TestAssemblerReorderTolerance(t *testing.T) {
	frame := randomBytes(t, 5000)
	chunks := ChunkFrame(7, 555, false, frame)

	// shuffle deterministically: reverse order
	shuffled := make([]message.VideoChunk, len(chunks))
	for i, c := range chunks {
		shuffled[len(chunks)-1-i] = c
	}

	a := NewAssembler()
	now := time.Now()
	var result []byte
	var ok bool
	for _, c := range shuffled {
		var out []byte
		out, _, _, ok = a.Ingest(now, c)
		if ok {
			result = out
		}
	}
	if !ok {
		t.Fatalf("expected frame completion after all chunks ingested")
	}
	if !bytes.Equal(result, frame) {
		t.Fatalf("reordered assembly mismatch")
	}
}

func TestAssemblerDuplicateChunkIdempotent(t *testing.T) {
	frame := randomBytes(t, 2500)
	chunks := ChunkFrame(3, 1, false, frame)

	a := NewAssembler()
	now := time.Now()
	for _, c := range chunks[:len(chunks)-1] {
		a.Ingest(now, c)
		a.Ingest(now, c) // duplicate
	}
	out, _, _, ok := a.Ingest(now, chunks[len(chunks)-1])
	if !ok {
		t.Fatalf("expected completion")
	}
	if !bytes.Equal(out, frame) {
		t.Fatalf("duplicate-tolerant assembly mismatch")
	}
}

func TestAssemblerEvictsStalePartialFrame(t *testing.T) {
	frame := randomBytes(t, 4000)
	chunks := ChunkFrame(9, 1, false, frame)
	if len(chunks) < 2 {
		t.Fatalf("test requires a multi-chunk frame")
	}

	a := NewAssembler()
	start := time.Now()
	a.Ingest(start, chunks[0])
	if a.Pending() != 1 {
		t.Fatalf("expected one pending frame")
	}

	later := start.Add(FrameTimeout + time.Millisecond)
	// ingest an unrelated chunk to trigger eviction sweep
	other := ChunkFrame(10, 1, false, []byte("x"))
	a.Ingest(later, other[0])

	if a.Pending() != 0 {
		t.Fatalf("expected stale frame 9 to be evicted, pending=%d", a.Pending())
	}
}

func TestFecRecoverSingleMissingShard(t *testing.T) {
	const k = 6
	builder := NewFecBuilder(k)
	decoder := NewFecDecoder()

	shards := make([][]byte, k-1)
	for i := range shards {
		n, _ := rand.Int(rand.Reader, big.NewInt(200))
		shards[i] = randomBytes(t, 50+int(n.Int64()))
	}

	const firstPacketID = uint64(100)
	var fecPkt message.FecPacket
	var emitted bool
	for i, s := range shards {
		decoder.Observe(firstPacketID+uint64(i), s)
		fecPkt, emitted = builder.Add(firstPacketID+uint64(i), s)
	}
	if !emitted {
		t.Fatalf("expected fec packet after %d shards", k-1)
	}

	// drop shard index 2 from the decoder's view by rebuilding a decoder
	// that never observed it.
	lossyDecoder := NewFecDecoder()
	const droppedIdx = 2
	for i, s := range shards {
		if i == droppedIdx {
			continue
		}
		lossyDecoder.Observe(firstPacketID+uint64(i), s)
	}

	recoveredID, recoveredData, ok := lossyDecoder.Recover(fecPkt)
	if !ok {
		t.Fatalf("expected recovery to succeed")
	}
	if recoveredID != firstPacketID+droppedIdx {
		t.Fatalf("recovered wrong packet id: got %d want %d", recoveredID, firstPacketID+droppedIdx)
	}
	if !bytes.Equal(recoveredData, shards[droppedIdx]) {
		t.Fatalf("recovered data mismatch")
	}
}

func TestFecRecoverFailsWithMultipleMissingShards(t *testing.T) {
	const k = 5
	builder := NewFecBuilder(k)
	shards := make([][]byte, k-1)
	for i := range shards {
		shards[i] = randomBytes(t, 80)
	}
	var fecPkt message.FecPacket
	for i, s := range shards {
		fecPkt, _ = builder.Add(uint64(200+i), s)
	}

	decoder := NewFecDecoder()
	decoder.Observe(200, shards[0]) // only one of four shards observed
	if _, _, ok := decoder.Recover(fecPkt); ok {
		t.Fatalf("expected recovery to fail with more than one missing shard")
	}
}

func TestRetransmitCacheResendAndEviction(t *testing.T) {
	c := NewRetransmitCache()
	for i := uint64(0); i < RetransmitCacheSize+10; i++ {
		c.Record(i, []byte{byte(i)})
	}
	if _, ok := c.Lookup(0); ok {
		t.Fatalf("expected packet id 0 to have been evicted")
	}
	if _, ok := c.Lookup(RetransmitCacheSize + 9); !ok {
		t.Fatalf("expected most recent packet id to still be cached")
	}

	resent := c.Resend([]uint64{5, RetransmitCacheSize + 9, 999999})
	if len(resent) != 1 {
		t.Fatalf("expected exactly one resendable id, got %d", len(resent))
	}
}
