package session

import "github.com/wavry-io/wavry/internal/message"

// codecPreference is the host's fallback order: AV1 only when hardware
// accelerated, then HEVC, then the guaranteed H264 fallback (spec §4.3
// rule 1).
var codecPreference = []message.Codec{message.CodecAV1, message.CodecHEVC, message.CodecH264}

// HostCapabilities describes what the local encoder stack can offer during
// negotiation, sourced from the CapabilityProbe collaborator (spec §6).
type HostCapabilities struct {
	SupportedCodecs     []message.Codec
	AV1HardwareAccel    bool
	DefaultResolution   message.Resolution
}

// NegotiateCodec picks the first codec in host preference order that also
// appears in the client's supported list, skipping AV1 unless the host has
// hardware acceleration for it. H264 is assumed always supported by the
// host and is the backstop if nothing else intersects.
func NegotiateCodec(caps HostCapabilities, clientCodecs []message.Codec) message.Codec {
	hostSet := make(map[message.Codec]bool, len(caps.SupportedCodecs))
	for _, c := range caps.SupportedCodecs {
		hostSet[c] = true
	}
	clientSet := make(map[message.Codec]bool, len(clientCodecs))
	for _, c := range clientCodecs {
		clientSet[c] = true
	}
	for _, c := range codecPreference {
		if c == message.CodecAV1 && !caps.AV1HardwareAccel {
			continue
		}
		if hostSet[c] && clientSet[c] {
			return c
		}
	}
	return message.CodecH264
}

const (
	minResolutionDim = 320
	maxResolutionDim = 8192
)

// NegotiateResolution clamps the client's requested resolution into
// [320, 8192] per dimension, falling back to the host default if the
// client didn't request one (spec §4.3 rule 2).
func NegotiateResolution(caps HostCapabilities, requested message.Resolution) message.Resolution {
	if requested.Width == 0 || requested.Height == 0 {
		return caps.DefaultResolution
	}
	return message.Resolution{
		Width:  clampDim(requested.Width),
		Height: clampDim(requested.Height),
	}
}

func clampDim(v uint16) uint16 {
	if v < minResolutionDim {
		return minResolutionDim
	}
	if v > maxResolutionDim {
		return maxResolutionDim
	}
	return v
}
