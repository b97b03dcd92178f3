package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// BytesPerSample is the size of one mono PCM16 sample.
const BytesPerSample = 2

// DecodePCM16 converts little-endian signed 16-bit samples to floats in
// [-1, 1). A trailing odd byte is ignored.
func DecodePCM16(data []byte) []float32 {
	n := len(data) / BytesPerSample
	out := make([]float32, n)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(data[i*BytesPerSample:]))
		out[i] = float32(v) / 32768
	}
	return out
}

// EncodePCM16 converts floats to little-endian signed 16-bit samples,
// clamping to [-1, 1].
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(toInt16(s)))
	}
	return out
}

func toInt16(s float32) int16 {
	f := float64(s)
	switch {
	case f >= 1:
		return math.MaxInt16
	case f <= -1:
		return -math.MaxInt16
	case math.IsNaN(f):
		return 0
	}
	return int16(math.Round(f * math.MaxInt16))
}

// Duration returns the playing time of n samples at sampleRate.
func Duration(n int64, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(sampleRate)
}
