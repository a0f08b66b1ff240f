// Package media turns a recorded session's video and audio files into the
// sampled frame and window streams the analysis pipeline consumes. Frame
// extraction shells out to ffmpeg; pre-extracted frame directories and
// in-memory sources cover tests and offline tooling.
package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
)

// Frame is one sampled video frame. Index is the position in the original
// video (raw frame number, stride applied), Timestamp is seconds from the
// start of the recording.
type Frame struct {
	Index     int
	Timestamp float64
	Image     image.Image
}

// FrameSource yields sampled frames in index order. Next returns io.EOF when
// the stream is exhausted.
type FrameSource interface {
	Next(ctx context.Context) (*Frame, error)
	FPS() float64
	Close() error
}

// InputError marks unreadable or corrupt media. It is session-fatal: the
// engine short-circuits to a degraded report instead of processing frames.
type InputError struct {
	Path string
	Err  error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("unreadable media %q: %v", e.Path, e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// IsInputError reports whether err (or anything it wraps) marks unreadable media.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

// OpenVideo returns a frame source for path: a directory of pre-extracted
// frames or a video file handed to ffmpeg. stride samples every Nth raw
// frame; fpsFallback is used when the real rate cannot be probed.
func OpenVideo(ctx context.Context, path string, stride int, fpsFallback float64) (FrameSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &InputError{Path: path, Err: err}
	}
	if info.IsDir() {
		return NewDirSource(path, stride, fpsFallback)
	}
	return NewFFmpegSource(ctx, path, stride, fpsFallback)
}
