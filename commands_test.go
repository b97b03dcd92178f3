package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgnsrekt/narrator/internal/checkpoint"
	"github.com/dgnsrekt/narrator/internal/narration"
	"github.com/dgnsrekt/narrator/internal/voices"
	"github.com/dgnsrekt/narrator/internal/wav"
)

func TestFilterFamilies(t *testing.T) {
	all := voices.Default().Families()

	tests := []struct {
		lang    string
		want    string
		wantErr bool
	}{
		{lang: "", want: "abefhijpz"},
		{lang: "b", want: "b"},
		{lang: "J", want: "j"},
		{lang: "en", want: "ab"},
		{lang: "en-GB", want: "b"},
		{lang: "ja", want: "j"},
		{lang: "de", wantErr: true},
		{lang: "!!", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			got, err := filterFamilies(all, tt.lang)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected an error, got %d families", len(got))
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var codes strings.Builder
			for _, f := range got {
				codes.WriteString(f.Code)
			}
			if codes.String() != tt.want {
				t.Errorf("families = %q, want %q", codes.String(), tt.want)
			}
		})
	}
}

// TestReport checks that only failures become errors.
func TestReport(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "book.wav")
	if err := os.WriteFile(out, wav.Encode(make([]float32, 24000), 24000), 0o644); err != nil {
		t.Fatal(err)
	}
	failure := errors.New("engine exploded")

	tests := []struct {
		name   string
		update narration.Update
		want   string
		err    error
	}{
		{
			name:   "success",
			update: narration.Update{Outcome: narration.Success, OutputPath: out},
			want:   "Wrote",
		},
		{
			name:   "paused",
			update: narration.Update{Outcome: narration.Paused, ChunksDone: 4, ChunksTotal: 10, Checkpoint: &checkpoint.Checkpoint{FailedChunkIndex: 4}},
			want:   "Paused at chunk 4/10. Checkpoint saved to book.txt.lock.",
		},
		{
			name:   "stopped",
			update: narration.Update{Outcome: narration.Stopped, ChunksDone: 2, ChunksTotal: 10},
			want:   "Stopped at chunk 2/10",
		},
		{
			name:   "failed",
			update: narration.Update{Outcome: narration.Failed, Err: failure},
			want:   "engine exploded",
			err:    failure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := report(&buf, tt.update, "book.txt.lock", 24000)
			if !errors.Is(err, tt.err) {
				t.Errorf("error = %v, want %v", err, tt.err)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output %q does not contain %q", buf.String(), tt.want)
			}
		})
	}
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("Hello there."), 0o644); err != nil {
		t.Fatal(err)
	}

	src, err := fileSource(path)
	if err != nil {
		t.Fatalf("fileSource: %v", err)
	}
	if src.path != path {
		t.Errorf("path = %q, want %q", src.path, path)
	}
	text, err := src.read()
	if err != nil || text != "Hello there." {
		t.Errorf("read = %q, %v", text, err)
	}

	if _, err := fileSource(dir); err == nil {
		t.Error("expected an error for a directory")
	}
	if _, err := fileSource(filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
