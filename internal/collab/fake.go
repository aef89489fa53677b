package collab

import (
	"context"
	"os"
	"sync"
)

// FakeCapabilityProbe is a deterministic CapabilityProbe used by
// host/client orchestrator tests, standing in for real OS capture/codec
// enumeration (out of core scope per spec §1).
type FakeCapabilityProbe struct {
	Displays     []Display
	Encoders     []Codec
	Capabilities []EncoderCapability
}

func (f *FakeCapabilityProbe) EnumerateDisplays(ctx context.Context) ([]Display, error) {
	return f.Displays, nil
}

func (f *FakeCapabilityProbe) SupportedEncoders(ctx context.Context) ([]Codec, error) {
	return f.Encoders, nil
}

func (f *FakeCapabilityProbe) EncoderCapabilities(ctx context.Context) ([]EncoderCapability, error) {
	return f.Capabilities, nil
}

// NewFakeCapabilityProbe returns a probe advertising one display and
// software H264/HEVC support, matching the guaranteed-fallback codec set
// spec §4.3 assumes every host has.
func NewFakeCapabilityProbe() *FakeCapabilityProbe {
	return &FakeCapabilityProbe{
		Displays: []Display{{ID: "0", Name: "fake-display"}},
		Encoders: []Codec{CodecH264, CodecHEVC},
		Capabilities: []EncoderCapability{
			{Codec: CodecH264, HardwareAccelerated: false},
			{Codec: CodecHEVC, HardwareAccelerated: false},
		},
	}
}

// FakeVideoEncoder emits frames fed to it via Push, simulating an encoder
// thread without a real codec.
type FakeVideoEncoder struct {
	mu      sync.Mutex
	frames  chan EncodedFrame
	bitrate uint32
}

// NewFakeVideoEncoder returns an encoder fed externally via Push.
func NewFakeVideoEncoder(initialBitrateKbps uint32) *FakeVideoEncoder {
	return &FakeVideoEncoder{frames: make(chan EncodedFrame, 32), bitrate: initialBitrateKbps}
}

// Push enqueues a frame as if the codec had just produced it.
func (f *FakeVideoEncoder) Push(frame EncodedFrame) { f.frames <- frame }

func (f *FakeVideoEncoder) NextFrame(ctx context.Context) (EncodedFrame, error) {
	select {
	case frame := <-f.frames:
		return frame, nil
	case <-ctx.Done():
		return EncodedFrame{}, ctx.Err()
	}
}

func (f *FakeVideoEncoder) SetBitrate(kbps uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bitrate = kbps
	return nil
}

// Bitrate reports the most recently applied bitrate, for assertions.
func (f *FakeVideoEncoder) Bitrate() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bitrate
}

func (f *FakeVideoEncoder) Close() error { close(f.frames); return nil }

// FakeRenderer records every rendered frame for assertions.
type FakeRenderer struct {
	mu     sync.Mutex
	frames [][]byte
}

func (r *FakeRenderer) Render(frame []byte, timestampUs uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, append([]byte(nil), frame...))
	return nil
}

// Frames returns every frame rendered so far, for assertions.
func (r *FakeRenderer) Frames() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.frames...)
}

// FakeInputInjector records every injected event.
type FakeInputInjector struct {
	mu     sync.Mutex
	Events []string
}

func (i *FakeInputInjector) Key(keycode uint16, pressed bool) error {
	i.record("key")
	return nil
}

func (i *FakeInputInjector) MouseButton(button uint8, pressed bool) error {
	i.record("mouse_button")
	return nil
}

func (i *FakeInputInjector) MouseAbsolute(x, y uint16) error {
	i.record("mouse_move")
	return nil
}

func (i *FakeInputInjector) record(kind string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Events = append(i.Events, kind)
}

// MemoryKeyStore is an in-memory KeyStore standing in for the platform
// secure-storage collaborator in tests.
type MemoryKeyStore struct {
	mu   sync.Mutex
	priv [32]byte
	set  bool
}

func (s *MemoryKeyStore) Load() ([32]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.priv, s.set, nil
}

func (s *MemoryKeyStore) Save(priv [32]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.priv = priv
	s.set = true
	return nil
}

// FileKeyStore persists the identity key to a single file under a user
// config directory, used absent a real platform secure-store collaborator
// (spec §6: "platform secure-storage, or absent one, a local file under
// the user config dir").
type FileKeyStore struct {
	Path string
}

func (s *FileKeyStore) Load() ([32]byte, bool, error) {
	var key [32]byte
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return key, false, nil
		}
		return key, false, err
	}
	if len(data) != 32 {
		return key, false, nil
	}
	copy(key[:], data)
	return key, true, nil
}

func (s *FileKeyStore) Save(priv [32]byte) error {
	return os.WriteFile(s.Path, priv[:], 0o600)
}
