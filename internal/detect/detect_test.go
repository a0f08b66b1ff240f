package detect

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/proctorlens/proctorlens/internal/config"
	"github.com/proctorlens/proctorlens/internal/media"
	"github.com/proctorlens/proctorlens/internal/signal"
)

func boolPtr(b bool) *bool { return &b }
func intPtr(n int) *int    { return &n }

func frameAt(index int) *media.Frame {
	return &media.Frame{Index: index, Timestamp: float64(index) / 30.0}
}

func TestFrameAnalyzer_NeutralDefaults(t *testing.T) {
	a := NewFrameAnalyzer(nil, 1, nil)
	sig := a.Analyze(frameAt(7))

	require.Equal(t, 7, sig.FrameIndex)
	require.True(t, sig.FacePresent)
	require.Equal(t, 1, sig.FaceCount)
	require.False(t, sig.GazeOffScreen)
	require.False(t, sig.MouthActive)
	require.Empty(t, sig.Objects)
	require.False(t, sig.Degraded)
}

func TestFrameAnalyzer_MergesCapabilities(t *testing.T) {
	face, err := NewScriptedCapability("face", []FrameRange{
		{From: 50, To: 65, FacePresent: boolPtr(false)},
	})
	require.NoError(t, err)
	objects, err := NewScriptedCapability("objects", []FrameRange{
		{From: 120, To: 120, Objects: []string{"phone"}},
	})
	require.NoError(t, err)

	a := NewFrameAnalyzer([]*BoundCapability{
		{Capability: face, Every: 1},
		{Capability: objects, Every: 1},
	}, 1, nil)

	sig := a.Analyze(frameAt(55))
	require.False(t, sig.FacePresent)
	require.Empty(t, sig.Objects)

	sig = a.Analyze(frameAt(120))
	require.True(t, sig.FacePresent)
	require.Equal(t, []signal.ObjectClass{signal.ObjectPhone}, sig.Objects)
}

func TestFrameAnalyzer_FailureDegradesFrameOnly(t *testing.T) {
	flaky, err := NewScriptedCapability("flaky", []FrameRange{
		{From: 10, To: 10, Fail: true},
	})
	require.NoError(t, err)
	face, err := NewScriptedCapability("face", []FrameRange{
		{From: 0, To: 100, FacePresent: boolPtr(false)},
	})
	require.NoError(t, err)

	a := NewFrameAnalyzer([]*BoundCapability{
		{Capability: flaky, Every: 1},
		{Capability: face, Every: 1},
	}, 1, nil)

	sig := a.Analyze(frameAt(10))
	require.True(t, sig.Degraded, "failing detector marks the frame degraded")
	require.False(t, sig.FacePresent, "other detectors still contribute")

	sig = a.Analyze(frameAt(11))
	require.False(t, sig.Degraded, "failure is local to one frame")
}

type panicky struct{}

func (panicky) Name() string { return "panicky" }
func (panicky) Observe(*media.Frame) (Observation, error) {
	panic("model exploded")
}

func TestFrameAnalyzer_PanicBecomesDegraded(t *testing.T) {
	a := NewFrameAnalyzer([]*BoundCapability{{Capability: panicky{}, Every: 1}}, 1, nil)

	sig := a.Analyze(frameAt(3))
	require.True(t, sig.Degraded)
	require.True(t, sig.FacePresent, "neutral fields survive a panic")
}

func TestBoundCapability_CadenceAndSticky(t *testing.T) {
	multi, err := NewScriptedCapability("multi_face", []FrameRange{
		{From: 0, To: 1000, FaceCount: intPtr(2)},
	})
	require.NoError(t, err)

	// stride 5: raw indexes 0,5,10,... are sample positions 0,1,2,...
	a := NewFrameAnalyzer([]*BoundCapability{
		{Capability: multi, Every: 4, Sticky: true},
	}, 5, nil)

	sig := a.Analyze(frameAt(0)) // sample 0: due
	require.Equal(t, 2, sig.FaceCount)

	sig = a.Analyze(frameAt(5)) // sample 1: skipped, sticky replay
	require.Equal(t, 2, sig.FaceCount)

	sig = a.Analyze(frameAt(20)) // sample 4: due again
	require.Equal(t, 2, sig.FaceCount)
}

func TestFrameAnalyzer_StickyReplayIgnoresCompletionOrder(t *testing.T) {
	// A second face appears only at frame 8, a cadence frame. Workers may
	// finish in any order, here frame 8 strictly before frame 5, but once
	// Fuse consumes the ordered stream, the skipped frames 5-7 must replay
	// frame 4's observation, never frame 8's.
	multi, err := NewScriptedCapability("multi_face", []FrameRange{
		{From: 8, To: 8, FaceCount: intPtr(2)},
	})
	require.NoError(t, err)

	a := NewFrameAnalyzer([]*BoundCapability{
		{Capability: multi, Every: 4, Sticky: true},
	}, 1, nil)

	work := make([]*FrameWork, 10)
	for _, idx := range []int{8, 9, 5, 7, 6, 0, 3, 1, 4, 2} {
		work[idx] = a.Observe(frameAt(idx))
	}

	sigs := make([]signal.FrameSignal, len(work))
	for i, w := range work {
		sigs[i] = a.Fuse(w)
	}

	require.Equal(t, 1, sigs[5].FaceCount, "skipped frame must not see a future cadence observation")
	require.Equal(t, 1, sigs[6].FaceCount)
	require.Equal(t, 1, sigs[7].FaceCount)
	require.Equal(t, 2, sigs[8].FaceCount)
	require.Equal(t, 2, sigs[9].FaceCount, "skipped frame replays the previous cadence observation")
}

func TestBoundCapability_NonStickySkipsQuietly(t *testing.T) {
	objects, err := NewScriptedCapability("objects", []FrameRange{
		{From: 0, To: 1000, Objects: []string{"book"}},
	})
	require.NoError(t, err)

	a := NewFrameAnalyzer([]*BoundCapability{
		{Capability: objects, Every: 2},
	}, 1, nil)

	require.NotEmpty(t, a.Analyze(frameAt(0)).Objects)
	require.Empty(t, a.Analyze(frameAt(1)).Objects, "skipped frame has no opinion")
	require.NotEmpty(t, a.Analyze(frameAt(2)).Objects)
}

func TestAudioAdapter(t *testing.T) {
	scripted := NewScriptedAudio("speaker", []WindowRange{
		{From: 10, To: 20, Score: 0.3},
		{From: 20, To: 25, Fail: true},
	})
	adapter := NewAudioAdapter(scripted)

	sig := adapter.Analyze(&media.AudioWindow{Index: 0, Start: 0, End: 5})
	require.Equal(t, 1.0, sig.SpeakerMatch)
	require.False(t, sig.Degraded)

	sig = adapter.Analyze(&media.AudioWindow{Index: 2, Start: 10, End: 15})
	require.Equal(t, 0.3, sig.SpeakerMatch)

	sig = adapter.Analyze(&media.AudioWindow{Index: 4, Start: 20, End: 25})
	require.True(t, sig.Degraded)
	require.Equal(t, 1.0, sig.SpeakerMatch, "degraded windows must not look like mismatches")
}

func TestFactory(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.DetectorConfig
		wantErr bool
	}{
		{
			name: "scripted",
			cfg: config.DetectorConfig{
				Name: "face", Type: "scripted",
				Params: map[string]any{
					"ranges": []map[string]any{{"from": 0, "to": 10, "face_present": false}},
				},
			},
		},
		{
			name: "static with cadence",
			cfg: config.DetectorConfig{
				Name: "multi_face", Type: "static",
				Params: map[string]any{
					"every": 4, "sticky": true,
					"observation": map[string]any{"face_count": 1},
				},
			},
		},
		{
			name: "program without command",
			cfg: config.DetectorConfig{
				Name: "objects", Type: "program",
				Params: map[string]any{},
			},
			wantErr: true,
		},
		{
			name:    "unknown type",
			cfg:     config.DetectorConfig{Name: "x", Type: "grpc"},
			wantErr: true,
		},
		{
			name: "inverted scripted range",
			cfg: config.DetectorConfig{
				Name: "face", Type: "scripted",
				Params: map[string]any{
					"ranges": []map[string]any{{"from": 10, "to": 0}},
				},
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bound, err := New(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.cfg.Name, bound.Capability.Name())
		})
	}
}

func TestFactory_StaticObservesEveryFrame(t *testing.T) {
	bound, err := New(config.DetectorConfig{
		Name: "gaze", Type: "static",
		Params: map[string]any{"observation": map[string]any{"gaze_off_screen": true}},
	})
	require.NoError(t, err)

	a := NewFrameAnalyzer([]*BoundCapability{bound}, 1, nil)
	for _, idx := range []int{0, 1, 999} {
		require.True(t, a.Analyze(frameAt(idx)).GazeOffScreen, fmt.Sprintf("frame %d", idx))
	}
}
