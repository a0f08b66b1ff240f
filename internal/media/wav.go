package media

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// AudioWindow is one fixed-length slice of the session's audio track.
// Samples are mono, normalized to [-1,1].
type AudioWindow struct {
	Index      int
	Start      float64
	End        float64
	SampleRate int
	Samples    []float64
}

// WindowSource yields audio windows in time order. Next returns io.EOF when
// the track is exhausted.
type WindowSource interface {
	Next(ctx context.Context) (*AudioWindow, error)
	Close() error
}

// WAVSource splits a 16-bit PCM WAV file into analysis windows.
type WAVSource struct {
	samples    []float64
	sampleRate int
	windowSize int
	pos        int
	index      int
}

// OpenAudio reads and windows a WAV file. Malformed or non-PCM files are an
// InputError; the engine downgrades that to a video-only session rather than
// failing it outright.
func OpenAudio(path string, windowSeconds float64) (*WAVSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &InputError{Path: path, Err: err}
	}

	samples, rate, err := decodeWAV(data)
	if err != nil {
		return nil, &InputError{Path: path, Err: err}
	}

	windowSize := int(windowSeconds * float64(rate))
	if windowSize < 1 {
		windowSize = rate
	}

	return &WAVSource{
		samples:    samples,
		sampleRate: rate,
		windowSize: windowSize,
	}, nil
}

func (s *WAVSource) Next(ctx context.Context) (*AudioWindow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.samples) {
		return nil, io.EOF
	}

	end := s.pos + s.windowSize
	if end > len(s.samples) {
		end = len(s.samples)
	}

	w := &AudioWindow{
		Index:      s.index,
		Start:      float64(s.pos) / float64(s.sampleRate),
		End:        float64(end) / float64(s.sampleRate),
		SampleRate: s.sampleRate,
		Samples:    s.samples[s.pos:end],
	}
	s.pos = end
	s.index++
	return w, nil
}

func (s *WAVSource) Close() error { return nil }

// SampleRate returns the track's sample rate in Hz.
func (s *WAVSource) SampleRate() int { return s.sampleRate }

// decodeWAV parses a RIFF/WAVE file with 16-bit PCM data, downmixing
// multi-channel audio to mono.
func decodeWAV(data []byte) ([]float64, int, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("not a RIFF/WAVE file")
	}

	var (
		channels   int
		sampleRate int
		bits       int
		pcm        []byte
	)

	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if body+size > len(data) {
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, fmt.Errorf("truncated fmt chunk")
			}
			format := int(binary.LittleEndian.Uint16(data[body : body+2]))
			if format != 1 {
				return nil, 0, fmt.Errorf("unsupported WAV format %d (need PCM)", format)
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
		case "data":
			pcm = data[body : body+size]
		}

		// chunks are word-aligned
		pos = body + size + size%2
	}

	if sampleRate == 0 || pcm == nil {
		return nil, 0, fmt.Errorf("missing fmt or data chunk")
	}
	if bits != 16 {
		return nil, 0, fmt.Errorf("unsupported bit depth %d (need 16)", bits)
	}
	if channels < 1 {
		return nil, 0, fmt.Errorf("invalid channel count %d", channels)
	}

	frameBytes := 2 * channels
	n := len(pcm) / frameBytes
	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			off := i*frameBytes + c*2
			v := int16(binary.LittleEndian.Uint16(pcm[off : off+2]))
			sum += float64(v) / 32768.0
		}
		samples[i] = sum / float64(channels)
	}
	return samples, sampleRate, nil
}

// MemoryWindowSource serves fixed windows, for tests.
type MemoryWindowSource struct {
	windows []*AudioWindow
	pos     int
}

func NewMemoryWindowSource(windows []*AudioWindow) *MemoryWindowSource {
	return &MemoryWindowSource{windows: windows}
}

func (s *MemoryWindowSource) Next(ctx context.Context) (*AudioWindow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.windows) {
		return nil, io.EOF
	}
	w := s.windows[s.pos]
	s.pos++
	return w, nil
}

func (s *MemoryWindowSource) Close() error { return nil }
