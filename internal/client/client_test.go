package client

import (
	"context"
	"crypto/rand"
	"net"
	"testing"
	"time"

	"github.com/wavry-io/wavry/internal/collab"
	"github.com/wavry-io/wavry/internal/host"
	"github.com/wavry-io/wavry/internal/message"
	"github.com/wavry-io/wavry/internal/session"
	"github.com/wavry-io/wavry/internal/wirecrypto"
)

// TestRunRequiresEstablishedSession exercises the guard at the top of Run
// directly, so a regression that breaks the session-state comparison (as
// opposed to the wiring a full dial would also catch) fails fast without a
// network round trip.
func TestRunRequiresEstablishedSession(t *testing.T) {
	c := &Client{}
	if err := c.Run(context.Background()); err == nil {
		t.Fatal("expected Run to refuse a nil session")
	}

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer conn.Close()

	priv := genStatic(t)
	c = New(Config{NoEncrypt: true}, conn, conn.LocalAddr(), priv, &collab.FakeRenderer{})
	c.channel = wirecrypto.NewDisabledChannel()
	c.sess = session.NewSession(session.RoleClient, c.channel)
	if err := c.sess.FSM.SendHello(); err != nil {
		t.Fatalf("send hello: %v", err)
	}
	if c.sess.FSM.State() == session.StateEstablished {
		t.Fatal("session should not be Established yet")
	}
	if err := c.Run(context.Background()); err == nil {
		t.Fatal("expected Run to refuse a HelloSent (not yet Established) session")
	}
}

func genStatic(t *testing.T) wirecrypto.PrivateKey {
	t.Helper()
	priv, _, err := wirecrypto.GenerateKeypair(rand.Read)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	return priv
}

// TestDialAndRunAgainstHost drives a real Dial()/Run() pair against a real
// host.Host over loopback UDP: the full Noise handshake, Hello/HelloAck
// negotiation, and one video frame round trip through chunking, sealing,
// framing, decode, reassembly, and render. This is the mechanical check
// the maintainer asked for — any break in the wiring between the
// orchestrator and internal/session/internal/wirecrypto/internal/video
// (such as a reference to an undefined session-state helper) fails this
// test at compile time, not in a deployed binary.
func TestDialAndRunAgainstHost(t *testing.T) {
	hostConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("host listen: %v", err)
	}
	defer hostConn.Close()

	clientConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("client listen: %v", err)
	}
	defer clientConn.Close()

	hostPriv := genStatic(t)
	clientPriv := genStatic(t)

	caps := session.HostCapabilities{
		SupportedCodecs:   []message.Codec{message.CodecH264, message.CodecHEVC},
		DefaultResolution: message.Resolution{Width: 1920, Height: 1080},
	}
	encoder := collab.NewFakeVideoEncoder(20000)
	hostCfg := host.Config{
		Listen:          hostConn.LocalAddr().String(),
		PeerIdleTimeout: 5 * time.Second,
		DisableMDNS:     true,
	}
	h := host.New(hostCfg, hostConn, hostPriv, caps, encoder, &collab.FakeInputInjector{}, collab.NewFakeCapabilityProbe())

	hostCtx, hostCancel := context.WithCancel(context.Background())
	defer hostCancel()
	go h.Run(hostCtx)

	remoteAddr, err := net.ResolveUDPAddr("udp", hostConn.LocalAddr().String())
	if err != nil {
		t.Fatalf("resolve host addr: %v", err)
	}

	renderer := &collab.FakeRenderer{}
	cl := New(Config{
		Connect:         hostConn.LocalAddr().String(),
		Name:            "integration-test",
		Platform:        "test",
		SupportedCodecs: []message.Codec{message.CodecHEVC, message.CodecH264},
		MaxResolution:   message.Resolution{Width: 1920, Height: 1080},
		MaxFPS:          60,
		DisableMDNS:     true,
	}, clientConn, remoteAddr, clientPriv, renderer)

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer dialCancel()
	if err := cl.Dial(dialCtx); err != nil {
		t.Fatalf("Dial: %v", err)
	}

	if cl.Session() == nil || cl.Session().FSM.State() != session.StateEstablished {
		t.Fatalf("expected client session Established after Dial, got %+v", cl.Session())
	}

	frame := []byte("the-quick-brown-fox-jumps-over-the-lazy-dog")
	encoder.Push(collab.EncodedFrame{TimestampUs: 1, Keyframe: true, Data: frame})

	runCtx, runCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer runCancel()
	go cl.Run(runCtx)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if frames := renderer.Frames(); len(frames) > 0 {
			if string(frames[0]) != string(frame) {
				t.Fatalf("rendered frame mismatch: got %q, want %q", frames[0], frame)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for the pushed frame to reach the renderer")
}
