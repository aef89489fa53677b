package message

import (
	"bytes"
	"reflect"
	"testing"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	body := []byte{1, 2, 3, 4}
	buf := Encode(ChannelMedia, TypeVideoChunk, body)
	env, err := DecodeEnvelope(buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Channel != ChannelMedia || env.Type != TypeVideoChunk {
		t.Fatalf("tag mismatch: %+v", env)
	}
	if !bytes.Equal(env.Raw, body) {
		t.Fatalf("body mismatch: got %v want %v", env.Raw, body)
	}
}

func TestDecodeEnvelopeTooShort(t *testing.T) {
	if _, err := DecodeEnvelope([]byte{1}); err != ErrTruncated {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestHelloRoundTrip(t *testing.T) {
	h := Hello{
		ClientName:      "desk-01",
		Platform:        "windows",
		SupportedCodecs: []Codec{CodecAV1, CodecHEVC, CodecH264},
		MaxResolution:   Resolution{Width: 3840, Height: 2160},
		MaxFPS:          120,
		InputCaps:       InputCaps{Keyboard: true, Mouse: true, Gamepad: false},
		PublicAddr:      "203.0.113.5:41000",
	}
	got, err := DecodeHello(h.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(h, got) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, h)
	}
}

func TestHelloAckRoundTrip(t *testing.T) {
	a := HelloAck{
		Accepted:           true,
		SelectedCodec:      CodecHEVC,
		StreamResolution:   Resolution{Width: 1920, Height: 1080},
		FPS:                90,
		InitialBitrateKbps: 20000,
		KeyframeIntervalMs: 2000,
		SessionID:          [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		SessionAlias:       0xdeadbeef,
		PublicAddr:         "198.51.100.9:5000",
	}
	got, err := DecodeHelloAck(a.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(a, got) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, a)
	}
}

func TestPingPongRoundTrip(t *testing.T) {
	p := Ping{TsUs: 123456789}
	gotP, err := DecodePing(p.Encode())
	if err != nil || gotP != p {
		t.Fatalf("ping round trip: got %+v err %v", gotP, err)
	}
	q := Pong{TsUs: 987654321}
	gotQ, err := DecodePong(q.Encode())
	if err != nil || gotQ != q {
		t.Fatalf("pong round trip: got %+v err %v", gotQ, err)
	}
}

func TestStatsRoundTrip(t *testing.T) {
	s := Stats{PeriodMs: 1000, ReceivedPackets: 5000, LostPackets: 12, RttUs: 24000, JitterUs: 800}
	got, err := DecodeStats(s.Encode())
	if err != nil || got != s {
		t.Fatalf("round trip: got %+v err %v", got, err)
	}
}

func TestCongestionRoundTrip(t *testing.T) {
	c := Congestion{TargetBitrateKbps: 15000, TargetFPS: 60}
	got, err := DecodeCongestion(c.Encode())
	if err != nil || got != c {
		t.Fatalf("round trip: got %+v err %v", got, err)
	}
}

func TestNackRoundTrip(t *testing.T) {
	n := Nack{PacketIDs: []uint64{1, 2, 3, 9999999999}}
	got, err := DecodeNack(n.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(n, got) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, n)
	}
}

func TestNackEmpty(t *testing.T) {
	n := Nack{}
	got, err := DecodeNack(n.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.PacketIDs) != 0 {
		t.Fatalf("expected no packet ids, got %v", got.PacketIDs)
	}
}

func TestEncoderControlRoundTrip(t *testing.T) {
	e := EncoderControl{SkipFrames: 3}
	got, err := DecodeEncoderControl(e.Encode())
	if err != nil || got != e {
		t.Fatalf("round trip: got %+v err %v", got, err)
	}
}

func TestSelectMonitorAndMonitorListRoundTrip(t *testing.T) {
	s := SelectMonitor{DisplayID: "display-2"}
	gotS, err := DecodeSelectMonitor(s.Encode())
	if err != nil || gotS != s {
		t.Fatalf("select monitor round trip: got %+v err %v", gotS, err)
	}

	list := MonitorList{Monitors: []MonitorEntry{
		{ID: "display-1", Name: "Primary", Resolution: Resolution{Width: 2560, Height: 1440}},
		{ID: "display-2", Name: "Secondary", Resolution: Resolution{Width: 1920, Height: 1080}},
	}}
	gotList, err := DecodeMonitorList(list.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(list, gotList) {
		t.Fatalf("monitor list round trip mismatch: got %+v want %+v", gotList, list)
	}
}

func TestKeyMouseScrollGamepadRoundTrip(t *testing.T) {
	k := Key{Keycode: 65, Pressed: true}
	if gotK, err := DecodeKey(k.Encode()); err != nil || gotK != k {
		t.Fatalf("key round trip: got %+v err %v", gotK, err)
	}

	mb := MouseButton{Button: 1, Pressed: false}
	if got, err := DecodeMouseButton(mb.Encode()); err != nil || got != mb {
		t.Fatalf("mouse button round trip: got %+v err %v", got, err)
	}

	mm := MouseMove{X: -120, Y: 340}
	if got, err := DecodeMouseMove(mm.Encode()); err != nil || got != mm {
		t.Fatalf("mouse move round trip: got %+v err %v", got, err)
	}

	sc := Scroll{Dx: 0, Dy: -5}
	if got, err := DecodeScroll(sc.Encode()); err != nil || got != sc {
		t.Fatalf("scroll round trip: got %+v err %v", got, err)
	}

	gp := Gamepad{Buttons: 0x00FF, AxisLX: -32768, AxisLY: 32767, AxisRX: 0, AxisRY: 100}
	if got, err := DecodeGamepad(gp.Encode()); err != nil || got != gp {
		t.Fatalf("gamepad round trip: got %+v err %v", got, err)
	}
}

func TestVideoChunkRoundTrip(t *testing.T) {
	v := VideoChunk{
		FrameID:     42,
		ChunkIndex:  2,
		ChunkCount:  5,
		Keyframe:    true,
		TimestampUs: 1700000000,
		Data:        []byte("encoded-bytes-here"),
	}
	got, err := DecodeVideoChunk(v.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(v, got) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, v)
	}
}

func TestFecPacketRoundTrip(t *testing.T) {
	f := FecPacket{
		GroupID:       7,
		FirstPacketID: 100,
		ShardCount:    4,
		ShardLengths:  []uint16{512, 512, 300},
		Payload:       []byte{0xAA, 0xBB, 0xCC},
	}
	got, err := DecodeFecPacket(f.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(f, got) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, f)
	}
}

func TestAudioRoundTrip(t *testing.T) {
	a := Audio{TimestampUs: 555555, Payload: []byte{1, 2, 3, 4, 5}}
	got, err := DecodeAudio(a.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(a, got) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, a)
	}
}

func TestFileOfferChunkAckRoundTrip(t *testing.T) {
	offer := FileOffer{
		FileID:         99,
		Filename:       "build-output.zip",
		FileSize:       104857600,
		ChecksumSHA256: "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		ChunkSize:      900,
		TotalChunks:    116509,
	}
	gotOffer, err := DecodeFileOffer(offer.Encode())
	if err != nil {
		t.Fatalf("decode offer: %v", err)
	}
	if !reflect.DeepEqual(offer, gotOffer) {
		t.Fatalf("offer round trip mismatch: got %+v want %+v", gotOffer, offer)
	}

	chunk := FileChunk{FileID: 99, ChunkIndex: 12, Payload: []byte("chunk-payload")}
	gotChunk, err := DecodeFileChunk(chunk.Encode())
	if err != nil {
		t.Fatalf("decode chunk: %v", err)
	}
	if !reflect.DeepEqual(chunk, gotChunk) {
		t.Fatalf("chunk round trip mismatch: got %+v want %+v", gotChunk, chunk)
	}

	ack := FileAck{FileID: 99, Complete: false, NextMissingChunk: 13}
	gotAck, err := DecodeFileAck(ack.Encode())
	if err != nil || gotAck != ack {
		t.Fatalf("ack round trip: got %+v err %v", gotAck, err)
	}
}

func TestPoseHandVrTimingPassthrough(t *testing.T) {
	p := PoseUpdate{Payload: []byte{1, 2, 3}}
	gotP, err := DecodePoseUpdate(p.Encode())
	if err != nil || !bytes.Equal(gotP.Payload, p.Payload) {
		t.Fatalf("pose update round trip: got %+v err %v", gotP, err)
	}

	h := HandPoseUpdate{Payload: []byte{4, 5, 6}}
	gotH, err := DecodeHandPoseUpdate(h.Encode())
	if err != nil || !bytes.Equal(gotH.Payload, h.Payload) {
		t.Fatalf("hand pose round trip: got %+v err %v", gotH, err)
	}

	vt := VrTiming{Payload: []byte{7, 8, 9}}
	gotVt, err := DecodeVrTiming(vt.Encode())
	if err != nil || !bytes.Equal(gotVt.Payload, vt.Payload) {
		t.Fatalf("vr timing round trip: got %+v err %v", gotVt, err)
	}
}
