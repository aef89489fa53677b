// Package cc implements DELTA, the hysteretic congestion controller that
// turns periodic stats feedback into encoder bitrate/FPS/FEC directives
// (spec §4.5).
package cc

import "github.com/wavry-io/wavry/internal/message"

// State is one of the four DELTA classifier variants.
type State int

const (
	StateStable State = iota
	StateProbing
	StateRecovery
	StatePanic
)

func (s State) String() string {
	switch s {
	case StateStable:
		return "Stable"
	case StateProbing:
		return "Probing"
	case StateRecovery:
		return "Recovery"
	case StatePanic:
		return "Panic"
	default:
		return "Unknown"
	}
}

// Thresholds named directly from spec §4.5's transition table.
const (
	panicLossRatio      = 0.08
	panicRTTMultiplier  = 2.0
	recoveryLossRatioLo = 0.02
	recoveryLossRatioHi = 0.08
	recoveryRTTLo       = 1.3
	recoveryRTTHi       = 2.0
	probingLossRatio    = 0.005
	probingSteadyWindows = 3

	panicBitrateCutRatio    = 0.60 // cut 40%
	recoveryBitrateCutRatio = 0.85 // cut 15%
	probingBitrateGainRatio = 1.05 // +5%

	panicFECRatio    = 0.15
	recoveryFECRatio = 0.08
	stableFECRatio   = 0.05

	panicSkipFrames = 2

	minFECShards = 4
	maxFECShards = 30
)

// Controller holds DELTA's running state across stats windows.
type Controller struct {
	state State

	rttBaselineUs float64
	steadyWindows int

	targetBitrateKbps uint32
	maxBitrateKbps    uint32
	fecRatio          float64
}

// New starts DELTA in Stable at the given initial and peer-max bitrate.
func New(initialBitrateKbps, maxBitrateKbps uint32) *Controller {
	return &Controller{
		state:             StateStable,
		targetBitrateKbps: initialBitrateKbps,
		maxBitrateKbps:    maxBitrateKbps,
		fecRatio:          stableFECRatio,
	}
}

// State reports the current classifier variant.
func (c *Controller) State() State { return c.state }

// TargetBitrateKbps reports the current encoder bitrate directive.
func (c *Controller) TargetBitrateKbps() uint32 { return c.targetBitrateKbps }

// FECRatio reports the current FEC parity ratio.
func (c *Controller) FECRatio() float64 { return c.fecRatio }

// FECShardCount derives the shard count DELTA's FEC ratio implies,
// clamped to [4, 30] (spec §4.5).
func (c *Controller) FECShardCount() int {
	return ShardCountForRatio(c.fecRatio)
}

// ShardCountForRatio derives a FEC shard count from any fecRatio using the
// same rounding DELTA applies internally, clamped to [4, 30] (spec §4.5).
// Exported so callers holding only a Directive (not the Controller itself)
// can re-derive a shard count without duplicating the rounding rule.
func ShardCountForRatio(fecRatio float64) int {
	if fecRatio <= 0 {
		return minFECShards
	}
	return ClampShardCount(int(roundHalfAwayFromZero(1 / fecRatio)))
}

// ClampShardCount bounds a derived shard count to the DELTA-mandated
// range.
func ClampShardCount(n int) int {
	if n < minFECShards {
		return minFECShards
	}
	if n > maxFECShards {
		return maxFECShards
	}
	return n
}

func roundHalfAwayFromZero(v float64) float64 {
	if v >= 0 {
		return float64(int64(v + 0.5))
	}
	return float64(int64(v - 0.5))
}

// Directive is DELTA's per-window output: an encoder bitrate change and a
// frame-skip count (spec §4.5's closing sentence).
type Directive struct {
	State             State
	TargetBitrateKbps uint32
	FECRatio          float64
	SkipFrames        uint16
}

// Update folds one stats window into the controller and returns the
// resulting directive (spec §4.5 transition table).
func (c *Controller) Update(stats message.Stats) Directive {
	total := stats.ReceivedPackets + stats.LostPackets
	var lossRatio float64
	if total > 0 {
		lossRatio = float64(stats.LostPackets) / float64(total)
	}

	rttUs := float64(stats.RttUs)
	if c.rttBaselineUs == 0 {
		c.rttBaselineUs = rttUs
	}
	rttRatio := 1.0
	if c.rttBaselineUs > 0 {
		rttRatio = rttUs / c.rttBaselineUs
	}

	var skip uint16
	switch {
	case lossRatio > panicLossRatio || rttRatio > panicRTTMultiplier:
		c.state = StatePanic
		c.targetBitrateKbps = scale(c.targetBitrateKbps, panicBitrateCutRatio)
		c.fecRatio = panicFECRatio
		skip = panicSkipFrames
		c.steadyWindows = 0
	case (lossRatio >= recoveryLossRatioLo && lossRatio <= recoveryLossRatioHi) ||
		(rttRatio >= recoveryRTTLo && rttRatio <= recoveryRTTHi):
		c.state = StateRecovery
		c.targetBitrateKbps = scale(c.targetBitrateKbps, recoveryBitrateCutRatio)
		c.fecRatio = recoveryFECRatio
		c.steadyWindows = 0
	case lossRatio < probingLossRatio && rttRatio <= 1.05:
		c.steadyWindows++
		if c.steadyWindows >= probingSteadyWindows {
			c.state = StateProbing
			c.targetBitrateKbps = scale(c.targetBitrateKbps, probingBitrateGainRatio)
			if c.maxBitrateKbps > 0 && c.targetBitrateKbps > c.maxBitrateKbps {
				c.targetBitrateKbps = c.maxBitrateKbps
			}
		} else {
			c.state = StateStable
		}
		c.fecRatio = stableFECRatio
	default:
		c.state = StateStable
		c.fecRatio = stableFECRatio
		c.steadyWindows = 0
	}

	// baseline tracks steady RTT so future windows measure inflation
	// relative to recently observed conditions, not the session's first
	// ever sample.
	if c.state == StateStable || c.state == StateProbing {
		c.rttBaselineUs = rttUs
	}

	return Directive{
		State:             c.state,
		TargetBitrateKbps: c.targetBitrateKbps,
		FECRatio:          c.fecRatio,
		SkipFrames:        skip,
	}
}

func scale(kbps uint32, ratio float64) uint32 {
	scaled := float64(kbps) * ratio
	if scaled < 1 {
		return 1
	}
	return uint32(scaled)
}
