package video

import "github.com/wavry-io/wavry/internal/message"

// FecBuilder accumulates k-1 outbound data shards by packet id and emits
// one XOR-parity FecPacket, then resets for the next group (spec §4.4 FEC
// builder). k must be >= 2, matching the DELTA-derived shard count
// (internal/cc derives clamp(round(1/fec_ratio), 4, 30)).
type FecBuilder struct {
	shardCount    int
	groupID       uint32
	firstPacketID uint64
	started       bool
	shardLengths  []uint16
	xor           []byte
}

// NewFecBuilder starts a builder targeting shardCount total shards
// (shardCount-1 data shards plus one parity shard).
func NewFecBuilder(shardCount int) *FecBuilder {
	return &FecBuilder{shardCount: shardCount}
}

// SetShardCount replaces the target shard count, abandoning any in-flight
// group (spec's Open Question decision: a shard-count change abandons the
// running group rather than trying to salvage it).
func (b *FecBuilder) SetShardCount(shardCount int) {
	b.shardCount = shardCount
	b.reset()
}

// Add folds one outbound data shard into the running parity accumulator.
// When shardCount-1 shards have been collected it returns the completed
// FecPacket and resets for the next group.
func (b *FecBuilder) Add(packetID uint64, data []byte) (message.FecPacket, bool) {
	if !b.started {
		b.started = true
		b.firstPacketID = packetID
	}
	if len(data) > len(b.xor) {
		grown := make([]byte, len(data))
		copy(grown, b.xor)
		b.xor = grown
	}
	for i, bt := range data {
		b.xor[i] ^= bt
	}
	b.shardLengths = append(b.shardLengths, uint16(len(data)))

	if len(b.shardLengths) < b.shardCount-1 {
		return message.FecPacket{}, false
	}

	pkt := message.FecPacket{
		GroupID:       b.groupID,
		FirstPacketID: b.firstPacketID,
		ShardCount:    uint8(b.shardCount),
		ShardLengths:  append([]uint16(nil), b.shardLengths...),
		Payload:       append([]byte(nil), b.xor...),
	}
	b.groupID++
	b.started = false
	b.shardLengths = b.shardLengths[:0]
	b.xor = b.xor[:0]
	return pkt, true
}

func (b *FecBuilder) reset() {
	b.started = false
	b.shardLengths = b.shardLengths[:0]
	b.xor = b.xor[:0]
}

// fecRecoveryCapacity bounds the inbound data-shard cache used for
// single-shard recovery (spec §4.4: "cap 256, eviction by lowest id").
const fecRecoveryCapacity = 256

// FecDecoder observes inbound data shards and, on receipt of a FecPacket
// covering a group with exactly one missing shard, recovers it via XOR.
type FecDecoder struct {
	cache map[uint64][]byte
}

// NewFecDecoder returns an empty decoder.
func NewFecDecoder() *FecDecoder {
	return &FecDecoder{cache: make(map[uint64][]byte)}
}

// Observe records an inbound data shard's decoded payload, keyed by its
// framing packet id, evicting the lowest id once over capacity.
func (d *FecDecoder) Observe(packetID uint64, data []byte) {
	d.cache[packetID] = append([]byte(nil), data...)
	if len(d.cache) <= fecRecoveryCapacity {
		return
	}
	var lowest uint64
	first := true
	for id := range d.cache {
		if first || id < lowest {
			lowest = id
			first = false
		}
	}
	delete(d.cache, lowest)
}

// Recover attempts to reconstruct exactly one missing shard of fec's group
// from the cache. ok is false if zero or more than one shard is missing.
func (d *FecDecoder) Recover(fec message.FecPacket) (recoveredPacketID uint64, recoveredData []byte, ok bool) {
	dataShards := int(fec.ShardCount) - 1
	if dataShards <= 0 || len(fec.ShardLengths) != dataShards {
		return 0, nil, false
	}

	present := make([][]byte, dataShards)
	missingCount := 0
	missingIdx := -1
	for i := 0; i < dataShards; i++ {
		id := fec.FirstPacketID + uint64(i)
		if shard, found := d.cache[id]; found {
			present[i] = shard
		} else {
			missingCount++
			missingIdx = i
		}
	}
	if missingCount != 1 {
		return 0, nil, false
	}

	xor := make([]byte, len(fec.Payload))
	copy(xor, fec.Payload)
	for _, shard := range present {
		if shard == nil {
			continue
		}
		for j, b := range shard {
			xor[j] ^= b
		}
	}

	shardLen := int(fec.ShardLengths[missingIdx])
	if shardLen > len(xor) {
		return 0, nil, false
	}
	recoveredPacketID = fec.FirstPacketID + uint64(missingIdx)
	recoveredData = xor[:shardLen]
	return recoveredPacketID, recoveredData, true
}
