package detect

import (
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/proctorlens/proctorlens/internal/config"
)

// Type identifies a detector backend.
type Type string

const (
	// TypeScripted replays fixed observations; tests and dry runs.
	TypeScripted Type = "scripted"
	// TypeStatic reports one fixed observation on every frame.
	TypeStatic Type = "static"
	// TypeProgram shells out to an external detector process per frame.
	TypeProgram Type = "program"
)

// commonParams are scheduling params every detector type accepts.
type commonParams struct {
	Every  int  `mapstructure:"every"`
	Sticky bool `mapstructure:"sticky"`
}

// New creates a bound capability from config. Unrecognized types and
// malformed params are config errors: better to fail the session up front
// than run with a silently missing detector.
func New(dc config.DetectorConfig) (*BoundCapability, error) {
	var common commonParams
	if err := mapstructure.Decode(dc.Params, &common); err != nil {
		return nil, fmt.Errorf("detector %s: %w", dc.Name, err)
	}

	var (
		backend Capability
		err     error
	)
	switch Type(dc.Type) {
	case TypeScripted:
		var v struct {
			Ranges []FrameRange `mapstructure:"ranges"`
		}
		if err := mapstructure.Decode(dc.Params, &v); err != nil {
			return nil, fmt.Errorf("detector %s: %w", dc.Name, err)
		}
		backend, err = NewScriptedCapability(dc.Name, v.Ranges)
	case TypeStatic:
		var v struct {
			Observation FrameRange `mapstructure:"observation"`
		}
		if err := mapstructure.Decode(dc.Params, &v); err != nil {
			return nil, fmt.Errorf("detector %s: %w", dc.Name, err)
		}
		backend, err = NewScriptedCapability(dc.Name, []FrameRange{{
			From:          0,
			To:            int(^uint(0) >> 1),
			FacePresent:   v.Observation.FacePresent,
			FaceCount:     v.Observation.FaceCount,
			GazeOffScreen: v.Observation.GazeOffScreen,
			MouthActive:   v.Observation.MouthActive,
			Objects:       v.Observation.Objects,
		}})
	case TypeProgram:
		var v struct {
			Command        []string `mapstructure:"command"`
			TimeoutSeconds int      `mapstructure:"timeout_seconds"`
		}
		if err := mapstructure.Decode(dc.Params, &v); err != nil {
			return nil, fmt.Errorf("detector %s: %w", dc.Name, err)
		}
		backend, err = NewProgramCapability(dc.Name, v.Command, time.Duration(v.TimeoutSeconds)*time.Second)
	default:
		return nil, fmt.Errorf("detector %s: %q is not a valid detector type", dc.Name, dc.Type)
	}
	if err != nil {
		return nil, err
	}

	return &BoundCapability{Capability: backend, Every: common.Every, Sticky: common.Sticky}, nil
}

// NewAudio creates an audio capability from config. Only the scripted
// backend ships in-process; real speaker models run as external services
// behind the same interface.
func NewAudio(dc config.DetectorConfig) (AudioCapability, error) {
	switch Type(dc.Type) {
	case TypeScripted:
		var v struct {
			Ranges []WindowRange `mapstructure:"ranges"`
		}
		if err := mapstructure.Decode(dc.Params, &v); err != nil {
			return nil, fmt.Errorf("audio detector %s: %w", dc.Name, err)
		}
		return NewScriptedAudio(dc.Name, v.Ranges), nil
	default:
		return nil, fmt.Errorf("audio detector %s: %q is not a valid detector type", dc.Name, dc.Type)
	}
}
