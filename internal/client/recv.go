package client

import (
	"context"
	"log"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/wavry-io/wavry/internal/filetransfer"
	"github.com/wavry-io/wavry/internal/framing"
	"github.com/wavry-io/wavry/internal/message"
	"github.com/wavry-io/wavry/internal/session"
)

// missingGrace is how long a gap in the packet-id sequence is given to
// arrive (via reordering or FEC recovery) before the client gives up on it
// and counts it as lost for the next Stats report and Nack list.
const missingGrace = 80 * time.Millisecond

type incomingTransfer struct {
	in *filetransfer.IncomingFile
}

// Run drives the client after Dial has completed Established: the UDP
// receive loop plus a periodic stats/ping ticker (spec §4.5: "periodic
// stats, default every 1s"; spec §4.2 ping/pong RTT).
func (c *Client) Run(ctx context.Context) error {
	if c.sess == nil || c.sess.FSM.State() != session.StateEstablished {
		return errors.New("client: Run called before Dial established a session")
	}

	recvErrCh := make(chan error, 1)
	go c.recvLoop(ctx, recvErrCh)

	ticker := time.NewTicker(StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-recvErrCh:
			return err
		case now := <-ticker.C:
			c.reportStats(now)
		}
	}
}

func (c *Client) recvLoop(ctx context.Context, errCh chan<- error) {
	buf := make([]byte, 65535)
	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
			errCh <- err
			return
		}
		n, addr, err := c.conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				select {
				case <-ctx.Done():
					errCh <- nil
					return
				default:
					continue
				}
			}
			errCh <- err
			return
		}
		if addr.String() != c.remoteAddr.String() {
			continue
		}
		datagram := append([]byte(nil), buf[:n]...)
		c.handleDatagram(datagram)
	}
}

func (c *Client) handleDatagram(datagram []byte) {
	pkt, err := framing.Decode(datagram)
	if err != nil {
		c.recordFramingError(err)
		return
	}
	if pkt.Kind != framing.KindTransport || pkt.SessionAlias != c.sess.Alias {
		return
	}
	c.sess.Touch(time.Now())

	plaintext, err := c.channel.Open(pkt.PacketID, pkt.Payload)
	if err != nil {
		return
	}
	env, err := message.DecodeEnvelope(plaintext)
	if err != nil {
		return
	}

	c.noteArrival(pkt.PacketID)

	switch env.Type {
	case message.TypeVideoChunk:
		chunk, err := message.DecodeVideoChunk(env.Raw)
		if err != nil {
			return
		}
		c.fecDecoder.Observe(pkt.PacketID, env.Raw)
		c.ingestChunk(chunk)

	case message.TypeFec:
		fec, err := message.DecodeFecPacket(env.Raw)
		if err != nil {
			return
		}
		if recoveredID, recoveredData, ok := c.fecDecoder.Recover(fec); ok {
			c.noteArrival(recoveredID)
			if chunk, err := message.DecodeVideoChunk(recoveredData); err == nil {
				c.ingestChunk(chunk)
			}
		}

	case message.TypePong:
		pong, err := message.DecodePong(env.Raw)
		if err != nil {
			return
		}
		c.observeRTT(pong.TsUs)

	case message.TypeCongestion:
		// Informational only on the client: the host already applied the
		// directive to its own encoder/pacer before sending this.

	case message.TypeFileAck:
		// Best-effort resumable send is driven by cmd/client's caller via
		// OutgoingFile; core orchestrator just decodes and ignores unless
		// a transfer is in flight (not wired by default).

	case message.TypeAudio:
		// Audio rendering is an external collaborator concern (spec §1);
		// nothing to do without a registered audio sink.
	}
}

func (c *Client) ingestChunk(chunk message.VideoChunk) {
	frame, ts, _, ok := c.assembler.Ingest(time.Now(), chunk)
	if !ok {
		return
	}
	if c.renderer == nil {
		return
	}
	if err := c.renderer.Render(frame, ts); err != nil {
		log.Println("client: render:", err)
	}
}

func (c *Client) recordFramingError(err error) {
	cause := framing.Validate(err)
	switch cause {
	case framing.ErrTooShort:
		c.counters.TooShort.Add(1)
	case framing.ErrInvalidMagic:
		c.counters.InvalidMagic.Add(1)
	case framing.ErrUnsupportedVer:
		c.counters.UnsupportedVer.Add(1)
	case framing.ErrChecksumMismatch:
		c.counters.ChecksumMismatch.Add(1)
	}
}
