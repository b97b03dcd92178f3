package audio

import (
	"math"
	"reflect"
	"testing"
	"time"
)

func TestTrim(t *testing.T) {
	tests := []struct {
		name      string
		input     []float32
		threshold float64
		margin    int
		expected  []float32
	}{
		{
			name:      "all silent passes through",
			input:     []float32{0, 0.01, -0.02, 0},
			threshold: 0.06,
			margin:    1,
			expected:  []float32{0, 0.01, -0.02, 0},
		},
		{
			name:      "zero margin keeps only the loud span",
			input:     []float32{0, 0, 0.5, 0.1, -0.7, 0, 0},
			threshold: 0.06,
			margin:    0,
			expected:  []float32{0.5, 0.1, -0.7},
		},
		{
			name:      "asymmetric margins",
			input:     []float32{0, 0, 0, 0, 0.5, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
			threshold: 0.06,
			margin:    1,
			expected:  []float32{0, 0, 0.5, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		},
		{
			name:      "trail bound is inclusive",
			input:     []float32{0.9, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0.05, 0.04},
			threshold: 0.06,
			margin:    1,
			expected:  []float32{0.9, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0.05},
		},
		{
			name:      "margins clamp to bounds",
			input:     []float32{0, 0.9, 0},
			threshold: 0.06,
			margin:    5,
			expected:  []float32{0, 0.9, 0},
		},
		{
			name:      "empty input",
			input:     []float32{},
			threshold: 0.06,
			margin:    3,
			expected:  []float32{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Trim(tt.input, tt.threshold, tt.margin)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Trim() = %v, want %v", got, tt.expected)
			}
		})
	}
}

// TestTrim_Idempotent verifies trimming twice changes nothing and never grows.
func TestTrim_Idempotent(t *testing.T) {
	buf := make([]float32, 2000)
	for i := 700; i < 900; i++ {
		buf[i] = float32(math.Sin(float64(i) / 5))
	}

	for _, margin := range []int{0, 1, 10, 50, 500} {
		once := Trim(buf, 0.06, margin)
		twice := Trim(once, 0.06, margin)
		if !reflect.DeepEqual(once, twice) {
			t.Errorf("margin %d: trim is not idempotent (%d vs %d samples)", margin, len(once), len(twice))
		}
		if len(once) > len(buf) {
			t.Errorf("margin %d: trim grew the buffer", margin)
		}
	}
}

func TestSilence(t *testing.T) {
	s := Silence(24000, PauseDuration)
	if len(s) != 12000 {
		t.Fatalf("len = %d, want 12000", len(s))
	}
	for _, v := range s {
		if v != 0 {
			t.Fatal("silence contains non-zero samples")
		}
	}
}

func TestMarginSamples(t *testing.T) {
	if got := MarginSamples(10, 24000); got != 240 {
		t.Errorf("MarginSamples(10, 24000) = %d, want 240", got)
	}
	if got := MarginSamples(0, 44100); got != 0 {
		t.Errorf("MarginSamples(0, 44100) = %d, want 0", got)
	}
}

func TestPCM16_RoundTrip(t *testing.T) {
	in := []float32{0, 0.5, -0.5, 1, -1, 2, -2}
	got := DecodePCM16(EncodePCM16(in))
	want := []float32{0, 0.5, -0.5, 1, -1, 1, -1}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1.0/16384 {
			t.Errorf("sample %d: got %f, want %f", i, got[i], want[i])
		}
	}
	if n := len(DecodePCM16([]byte{1, 2, 3})); n != 1 {
		t.Errorf("odd byte not ignored, got %d samples", n)
	}
}

func TestResample(t *testing.T) {
	in := []float32{0, 1, 0, -1}

	if got := Resample(in, 24000, 24000); !reflect.DeepEqual(got, in) {
		t.Error("equal rates should return input")
	}

	up := Resample(in, 1, 2)
	if len(up) != 8 {
		t.Fatalf("upsampled length = %d, want 8", len(up))
	}
	if up[1] != 0.5 {
		t.Errorf("interpolated sample = %f, want 0.5", up[1])
	}

	down := Resample(in, 2, 1)
	if !reflect.DeepEqual(down, []float32{0, 0}) {
		t.Errorf("downsampled = %v", down)
	}

	if !reflect.DeepEqual(Resample(up, 1, 2), Resample(up, 1, 2)) {
		t.Error("resample is not deterministic")
	}
}

func TestDuration(t *testing.T) {
	if got := Duration(48000, 24000); got != 2*time.Second {
		t.Errorf("Duration = %v, want 2s", got)
	}
	if got := Duration(10, 0); got != 0 {
		t.Errorf("Duration with zero rate = %v", got)
	}
}
