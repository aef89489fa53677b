package client

import (
	"log"
	"time"

	"github.com/wavry-io/wavry/internal/framing"
	"github.com/wavry-io/wavry/internal/message"
)

// noteArrival folds one successfully-opened packet id into the client's
// loss/nack bookkeeping, marking any skipped ids since the last-seen id as
// missing so a later reportStats can Nack them (within missingGrace) or
// finally count them lost (spec §4.4 NACK, §4.5 Stats inputs).
func (c *Client) noteArrival(packetID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.receivedPackets++
	delete(c.missing, packetID)

	if !c.haveHighest {
		c.highestPacketID = packetID
		c.haveHighest = true
		return
	}
	if packetID <= c.highestPacketID {
		return
	}
	now := time.Now()
	for id := c.highestPacketID + 1; id < packetID; id++ {
		c.missing[id] = now
	}
	c.highestPacketID = packetID
}

// observeRTT converts a Pong's echoed timestamp into an RTT sample for the
// next Stats report, deriving jitter as the absolute change from the
// previous sample (spec §4.2 ping/pong RTT, §4.5 Stats inputs; the host's
// pacer applies its own smoothing on top of these raw samples).
func (c *Client) observeRTT(pingTsUs uint64) {
	nowUs := uint64(time.Now().UnixMicro())
	if nowUs < pingTsUs {
		return
	}
	rtt := uint32(nowUs - pingTsUs)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prevRTTUs != 0 {
		delta := int64(rtt) - int64(c.prevRTTUs)
		if delta < 0 {
			delta = -delta
		}
		c.lastJitterUs = uint32(delta)
	}
	c.prevRTTUs = rtt
	c.lastRTTUs = rtt
}

// reportStats sends the periodic Stats + Ping (and a Nack, if anything is
// still missing within its grace window) the host's DELTA controller and
// pacer feed on (spec §4.5: "periodic stats, default every 1s").
func (c *Client) reportStats(now time.Time) {
	c.mu.Lock()
	var nackIDs []uint64
	for id, seenAt := range c.missing {
		if now.Sub(seenAt) > missingGrace {
			c.lostPackets++
			delete(c.missing, id)
			continue
		}
		nackIDs = append(nackIDs, id)
	}
	stats := message.Stats{
		PeriodMs:        uint32(StatsInterval / time.Millisecond),
		ReceivedPackets: c.receivedPackets,
		LostPackets:     c.lostPackets,
		RttUs:           c.lastRTTUs,
		JitterUs:        c.lastJitterUs,
	}
	c.mu.Unlock()

	c.sendControl(message.TypeStats, stats.Encode())
	c.sendControl(message.TypePing, message.Ping{TsUs: uint64(now.UnixMicro())}.Encode())
	if len(nackIDs) > 0 {
		c.sendControl(message.TypeNack, message.Nack{PacketIDs: nackIDs}.Encode())
	}
}

// sendControl seals and sends one control-channel message over the
// Established session, mirroring internal/host's activePeer.sendControl.
func (c *Client) sendControl(typ message.Type, payload []byte) {
	envelope := message.Encode(message.ChannelControl, typ, payload)
	packetID, err := c.channel.NextSendPacketID()
	if err != nil {
		log.Println("client: next packet id:", err)
		return
	}
	sealed, err := c.channel.Seal(packetID, envelope)
	if err != nil {
		log.Println("client: seal control message:", err)
		return
	}
	pkt := &framing.Packet{Kind: framing.KindTransport, Version: framing.Version, SessionAlias: c.sess.Alias, PacketID: packetID, Payload: sealed}
	if _, err := c.conn.WriteTo(framing.Encode(pkt), c.remoteAddr); err != nil {
		log.Println("client: write:", err)
	}
}
