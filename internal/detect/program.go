package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/jpeg"
	"os/exec"
	"time"

	"github.com/proctorlens/proctorlens/internal/media"
	"github.com/proctorlens/proctorlens/internal/signal"
)

// DefaultProgramTimeout bounds one external detector invocation.
const DefaultProgramTimeout = 15 * time.Second

// programReply is the JSON contract for external detector processes. Every
// field is optional; absent fields mean no opinion.
type programReply struct {
	FacePresent   *bool    `json:"face_present"`
	FaceCount     *int     `json:"face_count"`
	GazeOffScreen *bool    `json:"gaze_off_screen"`
	MouthActive   *bool    `json:"mouth_active"`
	Objects       []string `json:"objects"`
}

// ProgramCapability delegates frame analysis to an external process: the
// frame is written to stdin as JPEG and the process prints one JSON
// observation to stdout. This is how real CV models plug in without the
// engine knowing their internals.
type ProgramCapability struct {
	name    string
	command []string
	timeout time.Duration
}

// NewProgramCapability builds a program-backed capability. command is the
// argv to run per frame.
func NewProgramCapability(name string, command []string, timeout time.Duration) (*ProgramCapability, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("program detector %s: command is required", name)
	}
	if timeout <= 0 {
		timeout = DefaultProgramTimeout
	}
	return &ProgramCapability{name: name, command: command, timeout: timeout}, nil
}

func (p *ProgramCapability) Name() string { return p.name }

func (p *ProgramCapability) Observe(frame *media.Frame) (Observation, error) {
	var stdin bytes.Buffer
	if err := jpeg.Encode(&stdin, frame.Image, &jpeg.Options{Quality: 85}); err != nil {
		return Observation{}, fmt.Errorf("encoding frame %d: %w", frame.Index, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.command[0], p.command[1:]...)
	cmd.Stdin = &stdin
	out, err := cmd.Output()
	if err != nil {
		return Observation{}, fmt.Errorf("running %s on frame %d: %w", p.command[0], frame.Index, err)
	}

	var reply programReply
	if err := json.Unmarshal(out, &reply); err != nil {
		return Observation{}, fmt.Errorf("parsing %s output for frame %d: %w", p.command[0], frame.Index, err)
	}

	obs := Observation{
		FacePresent:   reply.FacePresent,
		FaceCount:     reply.FaceCount,
		GazeOffScreen: reply.GazeOffScreen,
		MouthActive:   reply.MouthActive,
	}
	for _, o := range reply.Objects {
		obs.Objects = append(obs.Objects, signal.ObjectClass(o))
	}
	return obs, nil
}
