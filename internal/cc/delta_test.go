package cc

import (
	"testing"

	"github.com/wavry-io/wavry/internal/message"
)

func steadyStats(rttUs uint32) message.Stats {
	return message.Stats{PeriodMs: 1000, ReceivedPackets: 10000, LostPackets: 0, RttUs: rttUs, JitterUs: 500}
}

func TestStableUnderZeroLossSteadyRTT(t *testing.T) {
	c := New(10000, 50000)
	last := c.TargetBitrateKbps()
	for i := 0; i < 10; i++ {
		d := c.Update(steadyStats(20000))
		if d.TargetBitrateKbps < last {
			t.Fatalf("window %d: bitrate decreased under 0%% loss: %d -> %d", i, last, d.TargetBitrateKbps)
		}
		last = d.TargetBitrateKbps
	}
}

func TestPanicUnderSustainedHighLoss(t *testing.T) {
	c := New(10000, 50000)
	initial := c.TargetBitrateKbps()
	lossy := message.Stats{PeriodMs: 1000, ReceivedPackets: 9000, LostPackets: 1000, RttUs: 20000, JitterUs: 500}
	d := c.Update(lossy)
	if d.State != StatePanic {
		t.Fatalf("expected Panic at 10%% loss, got %v", d.State)
	}
	if d.TargetBitrateKbps >= initial {
		t.Fatalf("expected bitrate to decrease within one window: %d -> %d", initial, d.TargetBitrateKbps)
	}
}

func TestRecoveryUnderModerateLoss(t *testing.T) {
	c := New(10000, 50000)
	moderate := message.Stats{PeriodMs: 1000, ReceivedPackets: 9500, LostPackets: 500, RttUs: 20000, JitterUs: 500}
	d := c.Update(moderate)
	if d.State != StateRecovery {
		t.Fatalf("expected Recovery at 5%% loss, got %v", d.State)
	}
}

func TestPanicOnRTTDoubling(t *testing.T) {
	c := New(10000, 50000)
	c.Update(steadyStats(20000))
	spike := steadyStats(50000)
	d := c.Update(spike)
	if d.State != StatePanic {
		t.Fatalf("expected Panic when RTT more than doubles, got %v", d.State)
	}
}

func TestProbingRaisesAfterSteadyWindows(t *testing.T) {
	c := New(10000, 50000)
	var d Directive
	for i := 0; i < 4; i++ {
		d = c.Update(steadyStats(20000))
	}
	if d.State != StateProbing {
		t.Fatalf("expected Probing after steady windows, got %v", d.State)
	}
}

func TestProbingClampsToMaxBitrate(t *testing.T) {
	c := New(48000, 50000)
	var d Directive
	for i := 0; i < 4; i++ {
		d = c.Update(steadyStats(20000))
	}
	if d.TargetBitrateKbps > 50000 {
		t.Fatalf("expected clamp to peer max, got %d", d.TargetBitrateKbps)
	}
}

func TestFECShardCountClampRange(t *testing.T) {
	if got := ClampShardCount(1); got != minFECShards {
		t.Fatalf("expected clamp to min, got %d", got)
	}
	if got := ClampShardCount(100); got != maxFECShards {
		t.Fatalf("expected clamp to max, got %d", got)
	}
	if got := ClampShardCount(10); got != 10 {
		t.Fatalf("expected pass-through within range, got %d", got)
	}
}

func TestFECShardCountDerivedFromRatio(t *testing.T) {
	c := New(10000, 50000)
	c.Update(message.Stats{PeriodMs: 1000, ReceivedPackets: 9000, LostPackets: 1000, RttUs: 20000})
	if c.FECRatio() != panicFECRatio {
		t.Fatalf("expected panic fec ratio, got %f", c.FECRatio())
	}
	got := c.FECShardCount()
	if got < minFECShards || got > maxFECShards {
		t.Fatalf("shard count out of range: %d", got)
	}
}
