// Package collab declares the narrow capability interfaces the core
// protocol stack consumes for everything explicitly out of scope per
// spec §1: OS display/audio capture, codec libraries, platform input
// injection, XR/HMD runtimes, and platform secure-storage. Keeping these
// behind a single indirection mirrors the teacher's own seams around
// platform specifics (xtaci-kcptun's client/utils_android.go and
// generic/rawcopy_unix.go vs rawcopy_windows.go).
package collab

import (
	"context"
	"time"
)

// Codec names a video codec, duplicated here (rather than imported from
// message) so collab stays free of a dependency on the wire layer.
type Codec = string

const (
	CodecH264 Codec = "h264"
	CodecHEVC Codec = "hevc"
	CodecAV1  Codec = "av1"
)

// Display describes one enumerable capture target.
type Display struct {
	ID         string
	Name       string
	Resolution struct{ Width, Height uint16 }
}

// EncoderCapability reports whether a codec is available and whether that
// availability is hardware-accelerated (spec §4.3 rule 1: AV1 only
// negotiated when hardware_accelerated is true).
type EncoderCapability struct {
	Codec                Codec
	HardwareAccelerated bool
}

// CapabilityProbe enumerates what the local host can capture and encode
// (spec §6).
type CapabilityProbe interface {
	EnumerateDisplays(ctx context.Context) ([]Display, error)
	SupportedEncoders(ctx context.Context) ([]Codec, error)
	EncoderCapabilities(ctx context.Context) ([]EncoderCapability, error)
}

// EncodedFrame is one encoder output unit, ready for chunking.
type EncodedFrame struct {
	TimestampUs uint64
	Keyframe    bool
	Data        []byte
}

// EncoderConfig parametrizes a VideoEncoder at construction.
type EncoderConfig struct {
	Codec          Codec
	Width, Height  uint16
	FPS            uint16
	BitrateKbps    uint32
	KeyframeIntervalMs uint32
	DisplayID      string
}

// VideoEncoder abstracts the platform codec library (spec §6). next_frame
// is expected to block the owning encoder thread until a frame is ready;
// callers cross this boundary via a bounded channel (spec §5), never by
// calling it from the cooperative loop directly.
type VideoEncoder interface {
	NextFrame(ctx context.Context) (EncodedFrame, error)
	SetBitrate(kbps uint32) error
	Close() error
}

// NewVideoEncoder constructs a VideoEncoder for config; implementations
// live outside core scope (spec §1).
type NewVideoEncoder func(config EncoderConfig) (VideoEncoder, error)

// Renderer abstracts the client's video output surface.
type Renderer interface {
	Render(frame []byte, timestampUs uint64) error
}

// InputInjector abstracts platform input injection on the host side.
type InputInjector interface {
	Key(keycode uint16, pressed bool) error
	MouseButton(button uint8, pressed bool) error
	MouseAbsolute(x, y uint16) error
}

// SignalMessage is one message exchanged with the signaling gateway (spec
// §6: "OFFER_RIFT, ANSWER_RIFT, REQUEST_RELAY, RELAY_CREDENTIALS, ERROR").
type SignalMessage struct {
	Type    string
	Payload []byte
}

const (
	SignalOfferRift       = "OFFER_RIFT"
	SignalAnswerRift      = "ANSWER_RIFT"
	SignalRequestRelay    = "REQUEST_RELAY"
	SignalRelayCredentials = "RELAY_CREDENTIALS"
	SignalError           = "ERROR"
)

// SignalingClient abstracts the REST/WebSocket signaling gateway, out of
// core scope per spec §1.
type SignalingClient interface {
	Connect(ctx context.Context, url, token string) error
	Send(ctx context.Context, msg SignalMessage) error
	Recv(ctx context.Context) (SignalMessage, error)
	Close() error
}

// KeyStore abstracts the platform secure-storage helper that persists the
// X25519 identity private key (spec §6 Persisted state, §9 "identity key
// cache").
type KeyStore interface {
	Load() ([32]byte, bool, error)
	Save(priv [32]byte) error
}

// ClockNow is injectable wall-clock access, used sparingly where tests
// need deterministic timestamps without faking whole collaborators.
type ClockNow func() time.Time
