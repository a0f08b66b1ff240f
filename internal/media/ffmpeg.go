package media

import (
	"bufio"
	"context"
	"fmt"
	"image/jpeg"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
)

// FFmpegSource extracts sampled frames from a video file by piping MJPEG out
// of an ffmpeg child process and decoding one JPEG per sampled frame.
type FFmpegSource struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	reader *bufio.Reader

	path     string
	stride   int
	fps      float64
	produced int
	closed   bool
}

// NewFFmpegSource starts the extraction process. The frame rate is probed
// with ffprobe; fpsFallback is used when probing fails.
func NewFFmpegSource(ctx context.Context, path string, stride int, fpsFallback float64) (*FFmpegSource, error) {
	fps := probeFPS(ctx, path)
	if fps <= 0 {
		slog.Debug("ffprobe rate unavailable, using fallback", "path", path, "fallback", fpsFallback)
		fps = fpsFallback
	}

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-hide_banner", "-loglevel", "error",
		"-i", path,
		"-vf", fmt.Sprintf(`select=not(mod(n\,%d))`, stride),
		"-fps_mode", "vfr",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "3",
		"pipe:1",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &InputError{Path: path, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &InputError{Path: path, Err: err}
	}

	return &FFmpegSource{
		cmd:    cmd,
		stdout: stdout,
		reader: bufio.NewReaderSize(stdout, 1<<20),
		path:   path,
		stride: stride,
		fps:    fps,
	}, nil
}

// Next decodes the next sampled frame. Returns io.EOF once ffmpeg finishes
// cleanly; a stream that fails before its first frame, or part way through,
// is reported as an InputError so corrupt files do not masquerade as empty
// or truncated recordings.
func (s *FFmpegSource) Next(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := jpeg.Decode(s.reader)
	if err != nil {
		waitErr := s.cmd.Wait()
		s.closed = true
		return nil, streamEnd(s.path, s.produced, err, waitErr)
	}

	index := s.produced * s.stride
	s.produced++
	return &Frame{
		Index:     index,
		Timestamp: float64(index) / s.fps,
		Image:     img,
	}, nil
}

// streamEnd classifies the end of the MJPEG pipe. A stream that dies before
// its first frame is unreadable input. A stream that dies after producing
// frames still surfaces ffmpeg's exit error, so a recording with a corrupt
// tail is never mistaken for a clean end.
func streamEnd(path string, produced int, decodeErr, waitErr error) error {
	if produced == 0 {
		if waitErr == nil {
			waitErr = decodeErr
		}
		return &InputError{Path: path, Err: waitErr}
	}
	if waitErr != nil {
		return &InputError{Path: path, Err: waitErr}
	}
	return io.EOF
}

// FPS returns the probed (or fallback) frame rate of the source video.
func (s *FFmpegSource) FPS() float64 {
	return s.fps
}

// Close terminates the child process if the stream was abandoned early.
func (s *FFmpegSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.stdout.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
	return nil
}

// probeFPS asks ffprobe for the stream's average frame rate, returned by
// ffprobe as a fraction like "30000/1001". Returns 0 when unavailable.
func probeFPS(ctx context.Context, path string) float64 {
	out, err := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=avg_frame_rate",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return 0
	}
	return parseRate(strings.TrimSpace(string(out)))
}

func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return v
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
