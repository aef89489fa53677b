package wirecrypto

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func genStatic(t *testing.T) PrivateKey {
	t.Helper()
	priv, _, err := GenerateKeypair(rand.Read)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	return priv
}

func runHandshake(t *testing.T) (*Session, *Session) {
	t.Helper()
	clientStatic := genStatic(t)
	hostStatic := genStatic(t)

	client, err := NewHandshake(RoleInitiator, clientStatic)
	if err != nil {
		t.Fatalf("client handshake: %v", err)
	}
	host, err := NewHandshake(RoleResponder, hostStatic)
	if err != nil {
		t.Fatalf("host handshake: %v", err)
	}

	msg1, err := client.WriteMessage1()
	if err != nil {
		t.Fatalf("write msg1: %v", err)
	}
	if err := host.ReadMessage1(msg1); err != nil {
		t.Fatalf("read msg1: %v", err)
	}

	msg2, err := host.WriteMessage2()
	if err != nil {
		t.Fatalf("write msg2: %v", err)
	}
	if err := client.ReadMessage2(msg2); err != nil {
		t.Fatalf("read msg2: %v", err)
	}

	msg3, clientSession, err := client.WriteMessage3()
	if err != nil {
		t.Fatalf("write msg3: %v", err)
	}
	hostSession, err := host.ReadMessage3(msg3)
	if err != nil {
		t.Fatalf("read msg3: %v", err)
	}

	return clientSession, hostSession
}

func TestHandshakeRoundTripAndIdentities(t *testing.T) {
	clientSession, hostSession := runHandshake(t)

	if clientSession.HandshakeHash() != hostSession.HandshakeHash() {
		t.Fatalf("handshake hashes diverge between client and host")
	}
}

func TestTransportRoundTrip(t *testing.T) {
	clientSession, hostSession := runHandshake(t)

	plaintext := []byte("hello from the client")
	ct, err := clientSession.Seal(0, plaintext)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	pt, err := hostSession.Open(0, ct)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(pt, plaintext) {
		t.Fatalf("plaintext mismatch: got %q want %q", pt, plaintext)
	}
}

func TestTransportTamperDetected(t *testing.T) {
	clientSession, hostSession := runHandshake(t)

	plaintext := []byte("integrity matters")
	ct, err := clientSession.Seal(0, plaintext)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	for i := range ct {
		// Each flip goes out under its own packet id, so the replay window
		// never answers before decryption does.
		id := uint64(i)
		sealed, err := clientSession.Seal(id, plaintext)
		if err != nil {
			t.Fatalf("seal: %v", err)
		}
		mutated := append([]byte(nil), sealed...)
		mutated[i] ^= 0x01
		if _, err := hostSession.Open(id, mutated); err == nil {
			t.Fatalf("byte %d: expected decrypt failure on tampered ciphertext", i)
		}
	}
}

func TestReplayRejection(t *testing.T) {
	clientSession, hostSession := runHandshake(t)

	ct, err := clientSession.Seal(5, []byte("once"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := hostSession.Open(5, ct); err != nil {
		t.Fatalf("first open: %v", err)
	}
	if _, err := hostSession.Open(5, ct); err != ErrReplay {
		t.Fatalf("expected ErrReplay on duplicate id, got %v", err)
	}
}

func TestReplayWindowRejectsOldID(t *testing.T) {
	var w replayWindow
	if !w.checkAndUpdate(2000) {
		t.Fatal("seed id should be accepted")
	}
	if w.checkAndUpdate(2000 - replayWindowBits) {
		t.Fatal("id below window should be rejected")
	}
	if !w.checkAndUpdate(1500) {
		t.Fatal("unseen id within window should be accepted")
	}
	if w.checkAndUpdate(1500) {
		t.Fatal("re-delivery of a within-window id should be rejected")
	}
}

func TestHandshakeStateMachineOrdering(t *testing.T) {
	clientStatic := genStatic(t)
	client, err := NewHandshake(RoleInitiator, clientStatic)
	if err != nil {
		t.Fatalf("new handshake: %v", err)
	}
	if _, _, err := client.WriteMessage3(); err != ErrHandshakeOutOfOrder {
		t.Fatalf("expected ErrHandshakeOutOfOrder calling WriteMessage3 first, got %v", err)
	}
}

func TestChannelForbidsTrafficBeforeEstablished(t *testing.T) {
	priv := genStatic(t)
	ch, err := NewHandshakingChannel(RoleInitiator, priv)
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}
	if _, err := ch.Seal(0, []byte("x")); err != ErrNotEstablished {
		t.Fatalf("expected ErrNotEstablished, got %v", err)
	}
}
