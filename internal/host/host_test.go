package host

import (
	"context"
	"crypto/rand"
	"net"
	"testing"
	"time"

	"github.com/wavry-io/wavry/internal/client"
	"github.com/wavry-io/wavry/internal/collab"
	"github.com/wavry-io/wavry/internal/message"
	"github.com/wavry-io/wavry/internal/session"
	"github.com/wavry-io/wavry/internal/wirecrypto"
)

func genStatic(t *testing.T) wirecrypto.PrivateKey {
	t.Helper()
	priv, _, err := wirecrypto.GenerateKeypair(rand.Read)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	return priv
}

func dialTestClient(t *testing.T, hostAddr net.Addr, name string) (*client.Client, net.PacketConn) {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("client listen: %v", err)
	}
	remoteAddr, err := net.ResolveUDPAddr("udp", hostAddr.String())
	if err != nil {
		conn.Close()
		t.Fatalf("resolve host addr: %v", err)
	}
	cl := client.New(client.Config{
		Connect:         hostAddr.String(),
		Name:            name,
		Platform:        "test",
		SupportedCodecs: []message.Codec{message.CodecHEVC, message.CodecH264},
		MaxResolution:   message.Resolution{Width: 1920, Height: 1080},
		MaxFPS:          60,
		DisableMDNS:     true,
	}, conn, remoteAddr, genStatic(t), &collab.FakeRenderer{})
	return cl, conn
}

// TestSingleTenantRejectsSecondPeer drives two real client.Client Dial()
// calls against one host.Host (spec §4.3 rule 5: "if another peer is
// already active, reply accepted=false; host is single-tenant"). Like
// internal/client's TestDialAndRunAgainstHost, this exercises the whole
// negotiation wiring end to end rather than only the packet-level pieces
// internal/session/internal/wirecrypto already cover in isolation.
func TestSingleTenantRejectsSecondPeer(t *testing.T) {
	hostConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("host listen: %v", err)
	}
	defer hostConn.Close()

	caps := session.HostCapabilities{
		SupportedCodecs:   []message.Codec{message.CodecH264, message.CodecHEVC},
		DefaultResolution: message.Resolution{Width: 1920, Height: 1080},
	}
	h := New(Config{
		Listen:          hostConn.LocalAddr().String(),
		PeerIdleTimeout: 5 * time.Second,
		DisableMDNS:     true,
	}, hostConn, genStatic(t), caps, collab.NewFakeVideoEncoder(20000), &collab.FakeInputInjector{}, collab.NewFakeCapabilityProbe())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	first, firstConn := dialTestClient(t, hostConn.LocalAddr(), "first")
	defer firstConn.Close()

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer dialCancel()
	if err := first.Dial(dialCtx); err != nil {
		t.Fatalf("first client Dial: %v", err)
	}
	if first.Session().FSM.State() != session.StateEstablished {
		t.Fatalf("expected first client Established, got %v", first.Session().FSM.State())
	}
	if h.ActivePeerAddr() == nil {
		t.Fatal("expected host to report an active peer after first Dial")
	}

	second, secondConn := dialTestClient(t, hostConn.LocalAddr(), "second")
	defer secondConn.Close()

	secondCtx, secondCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer secondCancel()
	if err := second.Dial(secondCtx); err == nil {
		t.Fatal("expected second client's Dial to be rejected while the host is single-tenant")
	}
	if second.Session() == nil || second.Session().FSM.State() != session.StateRejected {
		t.Fatalf("expected second client session Rejected, got %+v", second.Session())
	}

	if addr := h.ActivePeerAddr(); addr == nil || addr.String() != firstConn.LocalAddr().String() {
		t.Fatalf("host's active peer should remain the first client, got %v", addr)
	}
}
