package metrics

import (
	"math"
	"sync/atomic"
)

// SamplingObserver forwards one in every N events whose name is in Sampled.
// Other events always pass through.
type SamplingObserver struct {
	inner       Observer
	sampled     map[string]bool
	sampleEvery uint64
	counter     atomic.Uint64
}

// NewSamplingObserver samples the named events at rate (0..1). A rate of 0
// drops them entirely.
func NewSamplingObserver(inner Observer, rate float64, names ...string) *SamplingObserver {
	rate = math.Max(0, math.Min(1, rate))
	var every uint64
	if rate > 0 {
		every = uint64(math.Round(1.0 / rate))
		if every == 0 {
			every = 1
		}
	}
	sampled := make(map[string]bool, len(names))
	for _, n := range names {
		sampled[n] = true
	}
	return &SamplingObserver{inner: inner, sampled: sampled, sampleEvery: every}
}

func (s *SamplingObserver) RecordEvent(ev MetricsEvent) {
	if !s.sampled[ev.Name] || s.sampleEvery == 1 {
		s.inner.RecordEvent(ev)
		return
	}
	if s.sampleEvery == 0 {
		return
	}
	if s.counter.Add(1)%s.sampleEvery == 0 {
		s.inner.RecordEvent(ev)
	}
}
