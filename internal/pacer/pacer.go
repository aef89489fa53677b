// Package pacer implements the outbound micro-scheduling gate driven by
// smoothed RTT and jitter (spec §4.4): Wait is the only suspension point
// on the send path, mirroring the single blocking call a KCP-style
// session loop makes before each send.
package pacer

import (
	"context"
	"time"
)

const (
	rttAlpha    = 0.875
	jitterAlpha = 0.75

	minInterval = 20 * time.Microsecond
	maxInterval = 500 * time.Microsecond
)

// Pacer smooths RTT/jitter samples and derives a per-datagram send
// interval from them, the current target bitrate, and the last packet's
// size.
type Pacer struct {
	haveSample bool
	srttUs     float64
	rttMinUs   float64
	lastRttUs  float64
	jitterUs   float64

	targetBitrateKbps uint32
}

// New returns a pacer with no samples yet. Until the first RTT observation
// the congestion multiplier is 1; NextInterval uses minInterval as its base
// whenever no target bitrate is set or the packet size is zero.
func New() *Pacer {
	return &Pacer{}
}

// ObserveRTT folds one RTT sample (microseconds) into the smoothed RTT and
// jitter estimates (spec §4.4: α=0.875 for RTT, α=0.75 for jitter).
func (p *Pacer) ObserveRTT(sampleUs float64) {
	if !p.haveSample {
		p.haveSample = true
		p.srttUs = sampleUs
		p.rttMinUs = sampleUs
		p.lastRttUs = sampleUs
		p.jitterUs = 0
		return
	}

	delta := sampleUs - p.lastRttUs
	if delta < 0 {
		delta = -delta
	}
	p.jitterUs = jitterAlpha*p.jitterUs + (1-jitterAlpha)*delta
	p.srttUs = rttAlpha*p.srttUs + (1-rttAlpha)*sampleUs
	p.lastRttUs = sampleUs
	if sampleUs < p.rttMinUs {
		p.rttMinUs = sampleUs
	}
}

// SetTargetBitrate records the current CC-derived target, used to derive
// the baseline per-byte send interval.
func (p *Pacer) SetTargetBitrate(kbps uint32) {
	p.targetBitrateKbps = kbps
}

// congestionMultiplier rises with normalized RTT inflation and normalized
// jitter, and settles back to 1 when both are small (spec §4.4).
func (p *Pacer) congestionMultiplier() float64 {
	if !p.haveSample || p.rttMinUs <= 0 {
		return 1
	}
	rttInflation := (p.srttUs - p.rttMinUs) / p.rttMinUs
	if rttInflation < 0 {
		rttInflation = 0
	}
	normalizedJitter := p.jitterUs / p.srttUs
	if normalizedJitter < 0 {
		normalizedJitter = 0
	}
	return 1 + rttInflation + normalizedJitter
}

// NextInterval derives the inter-packet send interval for a datagram of
// lastPacketSize bytes, clamped to [20µs, 500µs] (spec §4.4).
func (p *Pacer) NextInterval(lastPacketSize int) time.Duration {
	baseUs := float64(minInterval.Microseconds())
	if p.targetBitrateKbps > 0 && lastPacketSize > 0 {
		bitsPerSec := float64(p.targetBitrateKbps) * 1000
		baseUs = float64(lastPacketSize) * 8 * 1_000_000 / bitsPerSec
	}

	interval := time.Duration(baseUs*p.congestionMultiplier()) * time.Microsecond
	if interval < minInterval {
		return minInterval
	}
	if interval > maxInterval {
		return maxInterval
	}
	return interval
}

// Wait blocks until the derived interval elapses or ctx is cancelled. It
// is the send path's sole suspension point.
func (p *Pacer) Wait(ctx context.Context, lastPacketSize int) error {
	interval := p.NextInterval(lastPacketSize)
	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
