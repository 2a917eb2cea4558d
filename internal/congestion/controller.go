// Package congestion implements the bitrate controller: it
// watches NACK rate over a sliding window and emits target/burst bitrate
// updates, modeled as an interceptor-style pipeline stage in the idiom of
// github.com/pion/interceptor (one stage observes, one stage emits).
package congestion

import "time"

// WindowDuration is the NACK-rate sampling window.
const WindowDuration = 3 * time.Second

// BucketSize quantizes the advertised target bitrate.
const BucketSize = 500_000 // 500 kbps

// Bounds on burst bitrate.
const (
	MinBurstBitrateBps = 4_000_000
	MaxBurstBitrateBps = 200_000_000
)

// BitrateMessage is emitted to the sender at most once per window.
type BitrateMessage struct {
	TargetBps int64
	BurstBps  int64
	FECRatio  float64
}

// Controller tracks NACKs observed in the current window and derives a new
// target bitrate at window boundaries using a monotonic multiplicative
// table keyed on NACK rate.
type Controller struct {
	targetBps int64
	burstBps  int64
	maxBps    int64
	fecRatio  float64

	workingBps int64 // highest target observed while above the >6 threshold

	windowStart time.Time
	nackCount   int

	lastEmit time.Time
}

// New creates a controller seeded with the configured initial/bound
// bitrates (internal/config.Congestion).
func New(initialTargetBps, maxTargetBps int64, fecRatio float64, now time.Time) *Controller {
	return &Controller{
		targetBps:   initialTargetBps,
		burstBps:    clamp(initialTargetBps*10, MinBurstBitrateBps, MaxBurstBitrateBps),
		maxBps:      maxTargetBps,
		fecRatio:    fecRatio,
		workingBps:  initialTargetBps,
		windowStart: now,
	}
}

// ObserveNack records one NACK occurrence for the current window.
func (c *Controller) ObserveNack(now time.Time) {
	c.rollWindowIfNeeded(now)
	c.nackCount++
}

// Tick advances the controller's clock without an observed NACK. Call this
// periodically (e.g. alongside the sync loop) so windows close even during
// a quiet period.
func (c *Controller) Tick(now time.Time) (*BitrateMessage, bool) {
	return c.rollWindowIfNeeded(now)
}

func (c *Controller) rollWindowIfNeeded(now time.Time) (*BitrateMessage, bool) {
	if now.Sub(c.windowStart) < WindowDuration {
		return nil, false
	}

	elapsed := now.Sub(c.windowStart).Seconds()
	rate := float64(c.nackCount) / elapsed

	c.applyRate(rate)

	c.windowStart = now
	c.nackCount = 0
	c.lastEmit = now

	return &BitrateMessage{
		TargetBps: bucketize(c.targetBps),
		BurstBps:  c.burstBps,
		FECRatio:  c.fecRatio,
	}, true
}

// applyRate implements the monotonic multiplicative bitrate table.
func (c *Controller) applyRate(nacksPerSec float64) {
	switch {
	case nacksPerSec > 50:
		c.targetBps = scale(c.targetBps, 0.75)
	case nacksPerSec > 25:
		c.targetBps = scale(c.targetBps, 0.83)
	case nacksPerSec > 15:
		c.targetBps = scale(c.targetBps, 0.90)
	case nacksPerSec > 10:
		c.targetBps = scale(c.targetBps, 0.95)
	case nacksPerSec > 6:
		c.targetBps = scale(c.targetBps, 0.98)
		if c.targetBps > c.workingBps {
			c.workingBps = c.targetBps
		}
	default:
		candidate := scale(c.targetBps, 1.05)
		if c.workingBps > candidate {
			candidate = c.workingBps
		}
		c.targetBps = (c.targetBps + candidate) / 2
		if c.targetBps > c.maxBps {
			c.targetBps = c.maxBps
		}
	}
}

func scale(bps int64, factor float64) int64 {
	return int64(float64(bps) * factor)
}

func bucketize(bps int64) int64 {
	return (bps / BucketSize) * BucketSize
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// TargetBps and BurstBps expose the controller's current state for tests
// and telemetry.
func (c *Controller) TargetBps() int64 { return c.targetBps }
func (c *Controller) BurstBps() int64  { return c.burstBps }
