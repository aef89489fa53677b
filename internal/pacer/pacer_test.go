package pacer

import (
	"context"
	"testing"
	"time"
)

func TestNextIntervalBoundedWithoutSamples(t *testing.T) {
	p := New()
	interval := p.NextInterval(1200)
	if interval < minInterval || interval > maxInterval {
		t.Fatalf("interval out of bounds: %v", interval)
	}
}

func TestNextIntervalBoundedAcrossConditions(t *testing.T) {
	p := New()
	p.SetTargetBitrate(20000)
	for i := 0; i < 50; i++ {
		rtt := 10000.0 + float64(i)*2000
		p.ObserveRTT(rtt)
		interval := p.NextInterval(1200)
		if interval < minInterval || interval > maxInterval {
			t.Fatalf("iteration %d: interval out of bounds: %v", i, interval)
		}
	}
}

func TestCongestionMultiplierRisesWithRTTInflation(t *testing.T) {
	stable := New()
	for i := 0; i < 10; i++ {
		stable.ObserveRTT(20000)
	}

	inflating := New()
	inflating.ObserveRTT(20000)
	for i := 0; i < 10; i++ {
		inflating.ObserveRTT(60000)
	}

	if inflating.congestionMultiplier() <= stable.congestionMultiplier() {
		t.Fatalf("expected inflating RTT to raise the congestion multiplier: stable=%f inflating=%f",
			stable.congestionMultiplier(), inflating.congestionMultiplier())
	}
}

func TestWaitRespectsContextCancellation(t *testing.T) {
	p := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Wait(ctx, 1200); err == nil {
		t.Fatalf("expected context cancellation error")
	}
}

func TestWaitCompletesWithinBound(t *testing.T) {
	p := New()
	start := time.Now()
	if err := p.Wait(context.Background(), 1200); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*maxInterval {
		t.Fatalf("wait took too long: %v", elapsed)
	}
}
