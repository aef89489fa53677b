package mdns

import "testing"

func TestBuildAndParseTXTReply(t *testing.T) {
	reply := buildTXTReply("wavry-desk-1", ServiceType, 7777)
	instance, ok := parseTXTReply(reply, ServiceType)
	if !ok {
		t.Fatal("expected reply to parse")
	}
	if instance != "wavry-desk-1" {
		t.Fatalf("instance = %q, want wavry-desk-1", instance)
	}
}

func TestIsQueryForMatchesEncodedName(t *testing.T) {
	query := buildPTRQuery(ServiceType)
	if !isQueryFor(query, ServiceType) {
		t.Fatal("expected self-built query to match its own service type")
	}
	if isQueryFor(query, "_other._udp.local.") {
		t.Fatal("expected query not to match an unrelated service type")
	}
}

func TestParseTXTReplyRejectsUnrelatedService(t *testing.T) {
	reply := buildTXTReply("some-host", "_other._udp.local.", 1)
	if _, ok := parseTXTReply(reply, ServiceType); ok {
		t.Fatal("expected reply for a different service type to be rejected")
	}
}

func TestEncodeNameRoundTrip(t *testing.T) {
	encoded := encodeName("_wavry._udp.local.")
	name, ok := readFirstName(encoded)
	if !ok || name != "_wavry._udp.local" {
		t.Fatalf("readFirstName() = (%q, %v), want (_wavry._udp.local, true)", name, ok)
	}
}
