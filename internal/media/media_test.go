package media

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTestFrame(t *testing.T, dir, name string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 40), A: 255})
		}
	}
	f, err := os.Create(filepath.Join(dir, name))
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestDirSource_OrderedFrames(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"frame_0002.png", "frame_0000.png", "frame_0001.png"} {
		writeTestFrame(t, dir, name)
	}

	src, err := NewDirSource(dir, 5, 30)
	require.NoError(t, err)
	defer src.Close()

	ctx := context.Background()
	var indexes []int
	var timestamps []float64
	for {
		f, err := src.Next(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		indexes = append(indexes, f.Index)
		timestamps = append(timestamps, f.Timestamp)
	}

	require.Equal(t, []int{0, 5, 10}, indexes)
	require.InDelta(t, 10.0/30.0, timestamps[2], 1e-9)
}

func TestDirSource_EmptyDirIsInputError(t *testing.T) {
	_, err := NewDirSource(t.TempDir(), 5, 30)
	require.Error(t, err)
	require.True(t, IsInputError(err))
}

func TestOpenVideo_MissingPathIsInputError(t *testing.T) {
	_, err := OpenVideo(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"), 5, 30)
	require.Error(t, err)
	require.True(t, IsInputError(err))
}

func TestMemorySource(t *testing.T) {
	frames := []*Frame{
		{Index: 0, Timestamp: 0},
		{Index: 5, Timestamp: 1.0 / 6},
	}
	src := NewMemorySource(frames, 30)

	ctx := context.Background()
	f, err := src.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, f.Index)

	f, err = src.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, 5, f.Index)

	_, err = src.Next(ctx)
	require.Equal(t, io.EOF, err)
}

// buildWAV produces a minimal 16-bit PCM RIFF file with the given mono samples.
func buildWAV(t *testing.T, sampleRate int, samples []int16) []byte {
	t.Helper()
	var pcm bytes.Buffer
	require.NoError(t, binary.Write(&pcm, binary.LittleEndian, samples))

	var b bytes.Buffer
	b.WriteString("RIFF")
	require.NoError(t, binary.Write(&b, binary.LittleEndian, uint32(36+pcm.Len())))
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	require.NoError(t, binary.Write(&b, binary.LittleEndian, uint32(16)))
	require.NoError(t, binary.Write(&b, binary.LittleEndian, uint16(1))) // PCM
	require.NoError(t, binary.Write(&b, binary.LittleEndian, uint16(1))) // mono
	require.NoError(t, binary.Write(&b, binary.LittleEndian, uint32(sampleRate)))
	require.NoError(t, binary.Write(&b, binary.LittleEndian, uint32(sampleRate*2))) // byte rate
	require.NoError(t, binary.Write(&b, binary.LittleEndian, uint16(2)))            // block align
	require.NoError(t, binary.Write(&b, binary.LittleEndian, uint16(16)))           // bits
	b.WriteString("data")
	require.NoError(t, binary.Write(&b, binary.LittleEndian, uint32(pcm.Len())))
	b.Write(pcm.Bytes())
	return b.Bytes()
}

func TestWAVSource_Windows(t *testing.T) {
	const rate = 8000
	samples := make([]int16, rate*2+rate/2) // 2.5 seconds
	for i := range samples {
		samples[i] = int16(1000 * (i % 7))
	}

	path := filepath.Join(t.TempDir(), "track.wav")
	require.NoError(t, os.WriteFile(path, buildWAV(t, rate, samples), 0o644))

	src, err := OpenAudio(path, 1.0)
	require.NoError(t, err)
	defer src.Close()
	require.Equal(t, rate, src.SampleRate())

	ctx := context.Background()
	var windows []*AudioWindow
	for {
		w, err := src.Next(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		windows = append(windows, w)
	}

	require.Len(t, windows, 3, "2.5s at 1s windows yields two full plus one partial")
	require.Equal(t, 0.0, windows[0].Start)
	require.Equal(t, 1.0, windows[0].End)
	require.Equal(t, 2.0, windows[2].Start)
	require.InDelta(t, 2.5, windows[2].End, 1e-9)
	require.Len(t, windows[0].Samples, rate)
	require.Len(t, windows[2].Samples, rate/2)
}

func TestOpenAudio_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.wav")
	require.NoError(t, os.WriteFile(path, []byte("definitely not audio"), 0o644))

	_, err := OpenAudio(path, 5)
	require.Error(t, err)
	require.True(t, IsInputError(err))
}

func TestStreamEnd(t *testing.T) {
	decodeErr := errors.New("invalid JPEG format")
	waitErr := errors.New("exit status 1")

	t.Run("clean end after frames", func(t *testing.T) {
		err := streamEnd("v.mp4", 42, io.ErrUnexpectedEOF, nil)
		require.Equal(t, io.EOF, err)
	})

	t.Run("corrupt tail after frames", func(t *testing.T) {
		// ffmpeg died after producing usable frames. The caller must see
		// the failure, not a clean EOF.
		err := streamEnd("v.mp4", 42, decodeErr, waitErr)
		require.True(t, IsInputError(err))
		require.ErrorIs(t, err, waitErr)
	})

	t.Run("no frames at all", func(t *testing.T) {
		err := streamEnd("v.mp4", 0, decodeErr, nil)
		require.True(t, IsInputError(err))
		require.ErrorIs(t, err, decodeErr)

		err = streamEnd("v.mp4", 0, decodeErr, waitErr)
		require.True(t, IsInputError(err))
		require.ErrorIs(t, err, waitErr)
	})
}
