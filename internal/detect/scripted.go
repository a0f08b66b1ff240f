package detect

import (
	"fmt"

	"github.com/proctorlens/proctorlens/internal/media"
	"github.com/proctorlens/proctorlens/internal/signal"
)

// FrameRange is one scripted span of sampled-frame observations, inclusive
// on both ends of the raw frame index.
type FrameRange struct {
	From int `mapstructure:"from"`
	To   int `mapstructure:"to"`

	FacePresent   *bool    `mapstructure:"face_present"`
	FaceCount     *int     `mapstructure:"face_count"`
	GazeOffScreen *bool    `mapstructure:"gaze_off_screen"`
	MouthActive   *bool    `mapstructure:"mouth_active"`
	Objects       []string `mapstructure:"objects"`

	// Fail simulates a detector failure across the range.
	Fail bool `mapstructure:"fail"`
}

// ScriptedCapability replays a fixed observation script keyed by frame
// index. It backs tests and dry runs; outside any scripted range it has no
// opinion.
type ScriptedCapability struct {
	name   string
	ranges []FrameRange
}

// NewScriptedCapability validates the script's object classes up front.
func NewScriptedCapability(name string, ranges []FrameRange) (*ScriptedCapability, error) {
	for _, r := range ranges {
		if r.To < r.From {
			return nil, fmt.Errorf("scripted detector %s: range [%d,%d] is inverted", name, r.From, r.To)
		}
	}
	return &ScriptedCapability{name: name, ranges: ranges}, nil
}

func (s *ScriptedCapability) Name() string { return s.name }

func (s *ScriptedCapability) Observe(frame *media.Frame) (Observation, error) {
	var obs Observation
	for _, r := range s.ranges {
		if frame.Index < r.From || frame.Index > r.To {
			continue
		}
		if r.Fail {
			return Observation{}, fmt.Errorf("scripted failure at frame %d", frame.Index)
		}
		if r.FacePresent != nil {
			obs.FacePresent = r.FacePresent
		}
		if r.FaceCount != nil {
			obs.FaceCount = r.FaceCount
		}
		if r.GazeOffScreen != nil {
			obs.GazeOffScreen = r.GazeOffScreen
		}
		if r.MouthActive != nil {
			obs.MouthActive = r.MouthActive
		}
		for _, o := range r.Objects {
			obs.Objects = append(obs.Objects, signal.ObjectClass(o))
		}
	}
	return obs, nil
}

// WindowRange is one scripted span of audio windows, by seconds.
type WindowRange struct {
	From  float64 `mapstructure:"from_seconds"`
	To    float64 `mapstructure:"to_seconds"`
	Score float64 `mapstructure:"score"`
	Fail  bool    `mapstructure:"fail"`
}

// ScriptedAudio replays speaker-match scores keyed by window start time.
// Windows outside every range score a full match.
type ScriptedAudio struct {
	name   string
	ranges []WindowRange
}

func NewScriptedAudio(name string, ranges []WindowRange) *ScriptedAudio {
	return &ScriptedAudio{name: name, ranges: ranges}
}

func (s *ScriptedAudio) Name() string { return s.name }

func (s *ScriptedAudio) Analyze(w *media.AudioWindow) (float64, error) {
	for _, r := range s.ranges {
		if w.Start >= r.From && w.Start < r.To {
			if r.Fail {
				return 0, fmt.Errorf("scripted audio failure at window %d", w.Index)
			}
			return r.Score, nil
		}
	}
	return 1.0, nil
}
