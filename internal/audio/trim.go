package audio

import (
	"math"
	"time"
)

// PauseDuration is the length of the silence inserted for a pause marker.
const PauseDuration = 500 * time.Millisecond

// Lead-in and trail-out multipliers applied to the trim margin.
const (
	leadMargin  = 2
	trailMargin = 10
)

// Trim cuts near-silent samples from both ends of a synthesized chunk.
//
// The first and last samples whose magnitude exceeds threshold bound the
// speech. The result keeps 2*margin samples before the first and 10*margin
// after the last, clamped to the buffer. A buffer with no loud sample is
// returned unchanged. The returned slice shares storage with samples.
func Trim(samples []float32, threshold float64, margin int) []float32 {
	first := -1
	for i, s := range samples {
		if math.Abs(float64(s)) > threshold {
			first = i
			break
		}
	}
	if first < 0 {
		return samples
	}

	last := first
	for i := len(samples) - 1; i > first; i-- {
		if math.Abs(float64(samples[i])) > threshold {
			last = i
			break
		}
	}

	if margin < 0 {
		margin = 0
	}
	// Both bounds are inclusive, so a zero margin still keeps the last loud
	// sample and the sample at last+10*margin survives.
	start := max(0, first-leadMargin*margin)
	end := min(len(samples), last+trailMargin*margin+1)

	return samples[start:end]
}

// Silence returns d worth of zero samples at sampleRate.
func Silence(sampleRate int, d time.Duration) []float32 {
	n := int(float64(sampleRate) * d.Seconds())
	if n < 0 {
		n = 0
	}
	return make([]float32, n)
}

// MarginSamples converts a margin in milliseconds to samples at sampleRate.
func MarginSamples(ms float64, sampleRate int) int {
	return int(math.Round(ms * float64(sampleRate) / 1000))
}
