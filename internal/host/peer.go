package host

import (
	"context"
	"log"
	"net"
	"sync"
	"time"

	"github.com/wavry-io/wavry/internal/cc"
	"github.com/wavry-io/wavry/internal/filetransfer"
	"github.com/wavry-io/wavry/internal/framing"
	"github.com/wavry-io/wavry/internal/message"
	"github.com/wavry-io/wavry/internal/pacer"
	"github.com/wavry-io/wavry/internal/session"
	"github.com/wavry-io/wavry/internal/video"
)

// activePeer is the host's single established peer (spec §4.3 rule 5):
// the video send loop plus everything the packet handler needs to act on
// Stats/Ping/Nack feedback from it.
type activePeer struct {
	host *Host
	addr net.Addr
	sess *session.Session

	cc         *cc.Controller
	pacer      pacer.Pacer
	fecBuilder *video.FecBuilder
	retransmit *video.RetransmitCache

	lastSeen time.Time
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	incomingFiles map[uint64]*filetransfer.IncomingFile
}

// matches reports whether pkt/addr belong to this peer: either the
// negotiated transport alias, or (for the tail end of handshake traffic
// still arriving after Established) the same remote address.
func (ap *activePeer) matches(pkt *framing.Packet, addr net.Addr) bool {
	if pkt.Kind == framing.KindTransport {
		return pkt.SessionAlias == ap.sess.Alias
	}
	return addr.String() == ap.addr.String()
}

// stop cancels the send loop and waits for it to exit.
func (ap *activePeer) stop() {
	ap.cancel()
	ap.wg.Wait()
}

// runSendLoop pulls encoded frames from the collaborator encoder, chunks
// and FEC-protects them, and paces each datagram onto the wire (spec
// §4.4, §4.5). It is the session's only long-running goroutine.
func (ap *activePeer) runSendLoop(ctx context.Context) {
	defer ap.wg.Done()

	ap.pacer.SetTargetBitrate(ap.cc.TargetBitrateKbps())
	skipFrames := uint16(0)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if ap.host.encoder == nil {
			return
		}
		frame, err := ap.host.encoder.NextFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Println("host: encoder:", err)
			continue
		}

		if skipFrames > 0 {
			skipFrames--
			continue
		}

		frameID := ap.sess.NextFrameID()
		chunks := video.ChunkFrame(frameID, frame.TimestampUs, frame.Keyframe, frame.Data)
		lastSize := 0
		for _, chunk := range chunks {
			sealed, packetID, err := ap.sealEnvelope(message.ChannelMedia, message.TypeVideoChunk, chunk.Encode())
			if err != nil {
				log.Println("host: seal video chunk:", err)
				return
			}
			if err := ap.pacer.Wait(ctx, lastSize); err != nil {
				return
			}
			ap.send(sealed)
			ap.retransmit.Record(packetID, sealed)
			lastSize = len(sealed)

			if fec, ready := ap.fecBuilder.Add(packetID, chunk.Encode()); ready {
				ap.sendControl(message.ChannelMedia, message.TypeFec, fec.Encode())
			}
		}
	}
}

// sealEnvelope builds, seals, and frames one application message, returning
// the sealed transport datagram and the packet id its Seal call consumed
// (the same id the FEC builder and retransmit cache key their bookkeeping
// to, per spec §4.4's requirement that recovery operate on exactly the ids
// that went out on the wire).
func (ap *activePeer) sealEnvelope(ch message.Channel, typ message.Type, payload []byte) ([]byte, uint64, error) {
	envelope := message.Encode(ch, typ, payload)
	packetID, err := ap.sess.Channel.NextSendPacketID()
	if err != nil {
		return nil, 0, err
	}
	sealed, err := ap.sess.Channel.Seal(packetID, envelope)
	if err != nil {
		return nil, 0, err
	}
	pkt := &framing.Packet{Kind: framing.KindTransport, Version: framing.Version, SessionAlias: ap.sess.Alias, PacketID: packetID, Payload: sealed}
	return framing.Encode(pkt), packetID, nil
}

// sendControl seals and sends a non-video message without recording it to
// the retransmit cache (only video chunks are NACK-recoverable, spec §4.4).
func (ap *activePeer) sendControl(ch message.Channel, typ message.Type, payload []byte) {
	sealed, _, err := ap.sealEnvelope(ch, typ, payload)
	if err != nil {
		log.Println("host: seal control message:", err)
		return
	}
	ap.send(sealed)
}

func (ap *activePeer) send(datagram []byte) {
	if _, err := ap.host.conn.WriteTo(datagram, ap.addr); err != nil {
		log.Println("host: write:", err)
	}
}

// handleEstablished dispatches one decrypted Established-channel message
// to its handler (spec §4.5, §4.4, §6).
func (h *Host) handleEstablished(pkt *framing.Packet) {
	ap := h.active
	plaintext, err := ap.sess.Channel.Open(pkt.PacketID, pkt.Payload)
	if err != nil {
		return
	}
	env, err := message.DecodeEnvelope(plaintext)
	if err != nil {
		return
	}

	switch env.Type {
	case message.TypeStats:
		stats, err := message.DecodeStats(env.Raw)
		if err != nil {
			return
		}
		directive := ap.cc.Update(stats)
		ap.pacer.ObserveRTT(float64(stats.RttUs))
		ap.pacer.SetTargetBitrate(directive.TargetBitrateKbps)
		ap.fecBuilder.SetShardCount(cc.ShardCountForRatio(directive.FECRatio))
		if h.encoder != nil {
			if err := h.encoder.SetBitrate(directive.TargetBitrateKbps); err != nil {
				log.Println("host: set bitrate:", err)
			}
		}
		ap.sendControl(message.ChannelControl, message.TypeCongestion, message.Congestion{
			TargetBitrateKbps: directive.TargetBitrateKbps,
		}.Encode())

	case message.TypePing:
		ping, err := message.DecodePing(env.Raw)
		if err != nil {
			return
		}
		ap.sendControl(message.ChannelControl, message.TypePong, message.Pong{TsUs: ping.TsUs}.Encode())

	case message.TypeNack:
		nack, err := message.DecodeNack(env.Raw)
		if err != nil {
			return
		}
		for _, datagram := range ap.retransmit.Resend(nack.PacketIDs) {
			ap.send(datagram)
		}

	case message.TypeKey, message.TypeMouseButton, message.TypeMouseMove:
		h.handleInput(env)

	case message.TypeFileOffer:
		h.handleFileOffer(ap, env)
	case message.TypeFileChunk:
		h.handleFileChunk(ap, env)
	}
}

// handleFileOffer starts receiving a client-initiated file transfer into
// the host's incoming-files directory (spec §4.7, original_source
// wavry-common file_transfer.rs).
func (h *Host) handleFileOffer(ap *activePeer, env message.Envelope) {
	offer, err := message.DecodeFileOffer(env.Raw)
	if err != nil {
		return
	}
	if ap.incomingFiles == nil {
		ap.incomingFiles = make(map[uint64]*filetransfer.IncomingFile)
	}
	in, err := filetransfer.NewIncomingFile(h.cfg.IncomingFilesDir(), offer, filetransfer.DefaultMaxFileBytes)
	if err != nil {
		log.Println("host: file offer rejected:", err)
		return
	}
	ap.incomingFiles[offer.FileID] = in
	ap.sendControl(message.ChannelControl, message.TypeFileAck, message.FileAck{FileID: offer.FileID, NextMissingChunk: 0}.Encode())
}

func (h *Host) handleFileChunk(ap *activePeer, env message.Envelope) {
	chunk, err := message.DecodeFileChunk(env.Raw)
	if err != nil {
		return
	}
	in, ok := ap.incomingFiles[chunk.FileID]
	if !ok {
		return
	}
	complete, err := in.WriteChunk(chunk.ChunkIndex, chunk.Payload)
	if err != nil {
		log.Println("host: file chunk:", err)
		return
	}
	if complete {
		if _, err := in.Finalize(); err != nil {
			log.Println("host: finalize file:", err)
		}
		delete(ap.incomingFiles, chunk.FileID)
	}
	ap.sendControl(message.ChannelControl, message.TypeFileAck, message.FileAck{
		FileID:           chunk.FileID,
		Complete:         complete,
		NextMissingChunk: in.NextMissingChunk(),
	}.Encode())
}
