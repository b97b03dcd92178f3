package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return b
}

func TestHeader(t *testing.T) {
	h := Header(24000, 100)
	if len(h) != HeaderSize {
		t.Fatalf("header length = %d, want %d", len(h), HeaderSize)
	}

	tests := []struct {
		name   string
		offset int
		want   uint32
	}{
		{"riff size", 4, 136},
		{"fmt size", 16, 16},
		{"sample rate", 24, 24000},
		{"byte rate", 28, 48000},
		{"data size", 40, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := binary.LittleEndian.Uint32(h[tt.offset:]); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}

	if string(h[0:4]) != "RIFF" || string(h[8:12]) != "WAVE" || string(h[36:40]) != "data" {
		t.Error("missing chunk identifiers")
	}
}

// TestWriter_FreshAndResume appends across two writers and checks the bytes.
func TestWriter_FreshAndResume(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")

	w, err := Create(path, 24000)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := w.Append([]float32{0.5, -0.5}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	// The header must be valid before Close.
	partial := readFile(t, path)
	if got := binary.LittleEndian.Uint32(partial[40:]); got != 4 {
		t.Errorf("data size before close = %d, want 4", got)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if err := w.Append([]float32{1}); !errors.Is(err, ErrClosed) {
		t.Errorf("Append after Close error = %v, want ErrClosed", err)
	}

	first := readFile(t, path)

	r, err := Resume(path, 24000)
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if r.Mode() != Append {
		t.Errorf("Mode() = %v, want resume", r.Mode())
	}
	if r.Samples() != 2 {
		t.Errorf("Samples() = %d, want 2", r.Samples())
	}
	if err := r.Append([]float32{0.25}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	final := readFile(t, path)
	if len(final) != HeaderSize+6 {
		t.Fatalf("file length = %d, want %d", len(final), HeaderSize+6)
	}
	if !bytes.Equal(final[HeaderSize:HeaderSize+4], first[HeaderSize:]) {
		t.Error("resume rewrote existing samples")
	}
	if got := binary.LittleEndian.Uint32(final[40:]); got != 6 {
		t.Errorf("data size = %d, want 6", got)
	}
	if got := binary.LittleEndian.Uint32(final[4:]); got != 42 {
		t.Errorf("riff size = %d, want 42", got)
	}
}

func TestResume_DropsPartialSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	img := append(Encode([]float32{0.1, 0.2}, 22050), 0x7f)
	if err := os.WriteFile(path, img, 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := Resume(path, 22050)
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	defer w.Close() //nolint:errcheck

	if w.Samples() != 2 {
		t.Errorf("Samples() = %d, want 2", w.Samples())
	}
	if w.Size() != HeaderSize+4 {
		t.Errorf("Size() = %d, want %d", w.Size(), HeaderSize+4)
	}
}

func TestResume_Errors(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.wav")
	if err := os.WriteFile(good, Encode([]float32{0.1}, 24000), 0o644); err != nil {
		t.Fatal(err)
	}
	junk := filepath.Join(dir, "junk.wav")
	if err := os.WriteFile(junk, []byte("this is not a wav file at all, not even close"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		path       string
		sampleRate int
		wantErr    error
	}{
		{"missing file", filepath.Join(dir, "nope.wav"), 24000, os.ErrNotExist},
		{"sample rate drift", good, 44100, ErrFormatMismatch},
		{"not a wav file", junk, 24000, ErrInvalidFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resume(tt.path, tt.sampleRate)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Resume() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestWriter_Duration(t *testing.T) {
	w, err := Open(filepath.Join(t.TempDir(), "d.wav"), 8000, Fresh)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close() //nolint:errcheck

	if err := w.Append(make([]float32, 4000)); err != nil {
		t.Fatal(err)
	}
	if w.Duration() != 500*time.Millisecond {
		t.Errorf("Duration() = %v, want 500ms", w.Duration())
	}
}

// TestResume_TrustsHeaderDataSize checks that bytes past the header's data
// size are dropped instead of counted as audio.
func TestResume_TrustsHeaderDataSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	img := append(Encode([]float32{0.1, 0.2}, 24000), make([]byte, 200)...)
	if err := os.WriteFile(path, img, 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := Resume(path, 24000)
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if w.Samples() != 2 {
		t.Errorf("Samples() = %d, want 2", w.Samples())
	}
	if err := w.Append([]float32{0.3}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	got := readFile(t, path)
	want := Encode([]float32{0.1, 0.2, 0.3}, 24000)
	if !bytes.Equal(got, want) {
		t.Errorf("file = %d bytes, want %d bytes of three samples", len(got), len(want))
	}
}

type flakySync struct {
	*os.File
	fail bool
}

func (f *flakySync) Sync() error {
	if f.fail {
		return errors.New("device went away")
	}
	return f.File.Sync()
}

// TestAppend_FailureKeepsCommittedData checks that a failed append leaves
// the file and the header at the last successful append.
func TestAppend_FailureKeepsCommittedData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	w, err := Create(path, 24000)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Append([]float32{0.5, -0.5}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	fs := &flakySync{File: w.f.(*os.File), fail: true}
	w.f = fs
	if err := w.Append([]float32{0.25, 0.25, 0.25}); err == nil {
		t.Fatal("expected Append to fail")
	}
	if w.Samples() != 2 {
		t.Errorf("Samples() after failed append = %d, want 2", w.Samples())
	}

	on := readFile(t, path)
	if len(on) != HeaderSize+4 {
		t.Errorf("file length after failed append = %d, want %d", len(on), HeaderSize+4)
	}
	if got := binary.LittleEndian.Uint32(on[40:]); got != 4 {
		t.Errorf("data size after failed append = %d, want 4", got)
	}

	fs.fail = false
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	r, err := Resume(path, 24000)
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	defer r.Close() //nolint:errcheck
	if r.Samples() != 2 {
		t.Errorf("Samples() after resume = %d, want 2", r.Samples())
	}
}
