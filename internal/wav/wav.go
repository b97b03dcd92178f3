// Package wav writes mono 16-bit PCM WAV files that can be extended across
// runs. The header length fields are rewritten after every append, so the
// file on disk is always a valid, playable prefix of the final audio.
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrator/internal/audio"
	gowav "github.com/go-audio/wav"
)

// WAV format constants.
const (
	// HeaderSize is the size of the canonical header this package writes.
	HeaderSize = 44

	// FormatPCM is the audio format code for uncompressed PCM.
	FormatPCM = 1

	channels      = 1
	bitsPerSample = 16
)

var (
	// ErrClosed is returned when appending to a closed writer.
	ErrClosed = errors.New("wav writer is closed")

	// ErrInvalidFile is returned when an existing file is not a readable WAV file.
	ErrInvalidFile = errors.New("not a valid wav file")

	// ErrFormatMismatch is returned when an existing file does not match the
	// requested sample rate, channel count, or bit depth.
	ErrFormatMismatch = errors.New("wav format mismatch")
)

// Mode selects how an output file is opened.
type Mode int

const (
	// Fresh truncates the file and writes a new header.
	Fresh Mode = iota
	// Append opens an existing file and continues at its end.
	Append
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	if m == Append {
		return "resume"
	}
	return "fresh"
}

// file is the part of *os.File the writer uses.
type file interface {
	io.ReaderAt
	io.WriterAt
	Truncate(size int64) error
	Sync() error
	Close() error
}

// Writer appends samples to a WAV file.
type Writer struct {
	f          file
	path       string
	sampleRate int
	dataBytes  int64
	mode       Mode

	mu     sync.Mutex
	closed bool
}

// Open opens path in the given mode.
func Open(path string, sampleRate int, mode Mode) (*Writer, error) {
	if mode == Append {
		return Resume(path, sampleRate)
	}
	return Create(path, sampleRate)
}

// Create truncates or creates path and writes an empty header.
func Create(path string, sampleRate int) (*Writer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("unable to create output file: %w", err)
	}

	w := &Writer{f: f, path: path, sampleRate: sampleRate, mode: Fresh}
	if _, err := f.WriteAt(Header(sampleRate, 0), 0); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("unable to write wav header: %w", err)
	}
	return w, nil
}

// Resume opens an existing file written by this package and positions the
// writer after its last complete sample.
func Resume(path string, sampleRate int) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("unable to open output file: %w", err)
	}

	w, err := resume(f, path, sampleRate)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return w, nil
}

func resume(f *os.File, path string, sampleRate int) (*Writer, error) {
	dec := gowav.NewDecoder(f)
	dec.ReadInfo()
	if err := dec.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	if dec.NumChans == 0 {
		return nil, ErrInvalidFile
	}
	if dec.WavAudioFormat != FormatPCM || dec.NumChans != channels || dec.BitDepth != bitsPerSample {
		return nil, fmt.Errorf("%w: got format %d, %d channel(s), %d bit",
			ErrFormatMismatch, dec.WavAudioFormat, dec.NumChans, dec.BitDepth)
	}
	if int(dec.SampleRate) != sampleRate {
		return nil, fmt.Errorf("%w: file is %d Hz, run is %d Hz", ErrFormatMismatch, dec.SampleRate, sampleRate)
	}

	var tag [4]byte
	if _, err := f.ReadAt(tag[:], 36); err != nil || string(tag[:]) != "data" {
		return nil, fmt.Errorf("%w: unexpected header layout", ErrInvalidFile)
	}

	var size [4]byte
	if _, err := f.ReadAt(size[:], 40); err != nil {
		return nil, fmt.Errorf("%w: unexpected header layout", ErrInvalidFile)
	}
	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("unable to stat output file: %w", err)
	}
	onDisk := st.Size() - HeaderSize
	if onDisk < 0 {
		return nil, ErrInvalidFile
	}

	// The header only counts samples whose append completed. Bytes past it
	// are the remains of a failed append.
	data := int64(binary.LittleEndian.Uint32(size[:]))
	if data == math.MaxUint32 || data > onDisk {
		data = onDisk
	}
	// A crash can leave half a sample behind.
	data -= data % audio.BytesPerSample
	if onDisk != data {
		log.Warn("dropping unconfirmed audio at the end of the output", "path", path, "bytes", onDisk-data)
		if err := f.Truncate(HeaderSize + data); err != nil {
			return nil, fmt.Errorf("unable to truncate output file: %w", err)
		}
	}

	w := &Writer{f: f, path: path, sampleRate: sampleRate, dataBytes: data, mode: Append}
	if err := w.patchSizes(data); err != nil {
		return nil, err
	}
	return w, nil
}

// Append encodes samples as PCM16, writes them after the existing data,
// updates the header, and syncs the file.
func (w *Writer) Append(samples []float32) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if len(samples) == 0 {
		return nil
	}

	buf := audio.EncodePCM16(samples)
	next := w.dataBytes + int64(len(buf))
	if err := w.commit(buf, next); err != nil {
		w.rollback()
		return err
	}
	w.dataBytes = next
	return nil
}

// commit writes buf after the current data and records next as the data size.
func (w *Writer) commit(buf []byte, next int64) error {
	if _, err := w.f.WriteAt(buf, HeaderSize+w.dataBytes); err != nil {
		return fmt.Errorf("unable to write samples: %w", err)
	}
	if err := w.patchSizes(next); err != nil {
		return err
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("unable to sync output file: %w", err)
	}
	return nil
}

// rollback drops whatever a failed append left behind so the file holds only
// the committed samples. Resume trusts the header if this fails too.
func (w *Writer) rollback() {
	if err := w.f.Truncate(HeaderSize + w.dataBytes); err != nil {
		log.Warn("unable to truncate failed append", "path", w.path, "err", err)
	}
	if err := w.patchSizes(w.dataBytes); err != nil {
		log.Warn("unable to restore wav header", "path", w.path, "err", err)
	}
}

// Samples returns the number of samples in the file.
func (w *Writer) Samples() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dataBytes / audio.BytesPerSample
}

// Duration returns the playing time of the file.
func (w *Writer) Duration() time.Duration {
	return audio.Duration(w.Samples(), w.sampleRate)
}

// Size returns the file size in bytes.
func (w *Writer) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return HeaderSize + w.dataBytes
}

// Mode returns the mode the writer was opened in.
func (w *Writer) Mode() Mode {
	return w.mode
}

// Path returns the file path.
func (w *Writer) Path() string {
	return w.path
}

// Close writes the final header and closes the file. It is safe to call
// more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	err := w.patchSizes(w.dataBytes)
	if serr := w.f.Sync(); err == nil && serr != nil {
		err = fmt.Errorf("unable to sync output file: %w", serr)
	}
	if cerr := w.f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("unable to close output file: %w", cerr)
	}
	return err
}

func (w *Writer) patchSizes(dataBytes int64) error {
	var b [4]byte
	PutLE32(b[:], clamp32(36+dataBytes))
	if _, err := w.f.WriteAt(b[:], 4); err != nil {
		return fmt.Errorf("unable to update wav header: %w", err)
	}
	PutLE32(b[:], clamp32(dataBytes))
	if _, err := w.f.WriteAt(b[:], 40); err != nil {
		return fmt.Errorf("unable to update wav header: %w", err)
	}
	return nil
}

func clamp32(v int64) uint32 {
	if v > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(v)
}

// Header returns a canonical mono PCM16 header for dataSize bytes of audio.
func Header(sampleRate, dataSize int) []byte {
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	header := make([]byte, HeaderSize)

	copy(header[0:4], "RIFF")
	PutLE32(header[4:8], uint32(36+dataSize))
	copy(header[8:12], "WAVE")

	copy(header[12:16], "fmt ")
	PutLE32(header[16:20], 16)
	PutLE16(header[20:22], FormatPCM)
	PutLE16(header[22:24], channels)
	PutLE32(header[24:28], uint32(sampleRate))
	PutLE32(header[28:32], uint32(byteRate))
	PutLE16(header[32:34], uint16(blockAlign))
	PutLE16(header[34:36], bitsPerSample)

	copy(header[36:40], "data")
	PutLE32(header[40:44], uint32(dataSize))

	return header
}

// Encode wraps samples in a complete WAV file image.
func Encode(samples []float32, sampleRate int) []byte {
	pcm := audio.EncodePCM16(samples)
	return append(Header(sampleRate, len(pcm)), pcm...)
}

// PutLE16 writes a uint16 value in little-endian format to a byte slice.
func PutLE16(b []byte, v uint16) {
	binary.LittleEndian.PutUint16(b, v)
}

// PutLE32 writes a uint32 value in little-endian format to a byte slice.
func PutLE32(b []byte, v uint32) {
	binary.LittleEndian.PutUint32(b, v)
}
