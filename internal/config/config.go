// Package config provides the analysis policy configuration: sampling rates,
// per-kind debounce thresholds, score weights, verdict thresholds, and
// detector wiring. Defaults here are the single source of truth; New()
// references them and no other code should duplicate them.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/proctorlens/proctorlens/internal/signal"
)

// Default policy values. Run thresholds and detector cadences are counted in
// sampled frames, not raw video frames.
const (
	DefaultFrameStride   = 5
	DefaultFPSFallback   = 30.0
	DefaultObjectEvery   = 10
	DefaultMultiFaceEvery = 4

	DefaultNoFaceRun      = 10
	DefaultLookingAwayRun = 3
	DefaultTalkingRun     = 3

	DefaultNoFaceWeight          = 5
	DefaultLookingAwayWeight     = 3
	DefaultTalkingWeight         = 2
	DefaultMultiFaceWeight       = 20
	DefaultObjectDetectedWeight  = 25
	DefaultSpeakerMismatchWeight = 15

	DefaultSuspiciousBelow = 80.0
	DefaultCheatingBelow   = 50.0
	DefaultHighRecurrence  = 2
	DefaultCollusionWindow = 10.0

	DefaultAudioWindowSeconds = 5.0
	DefaultSpeakerMatchFloor  = 0.6

	DefaultEvidenceWidth = 480
	DefaultJPEGQuality   = 80

	DefaultReportsDir  = "sessions"
	DefaultEvidenceDir = "sessions/evidence"

	DefaultWorkers = 4
)

// Error is a configuration validation failure. A misconfigured run would
// produce a meaningless verdict, so these fail the session before any frame
// is processed.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// SamplingConfig controls which frames get analyzed.
type SamplingConfig struct {
	FrameStride    int     `yaml:"frame_stride,omitempty"`
	FPSFallback    float64 `yaml:"fps_fallback,omitempty"`
	ObjectEvery    int     `yaml:"object_detect_every,omitempty"`
	MultiFaceEvery int     `yaml:"multi_face_detect_every,omitempty"`
}

// VerdictConfig holds the verdict state machine thresholds.
type VerdictConfig struct {
	SuspiciousBelow float64  `yaml:"suspicious_below,omitempty"`
	CheatingBelow   float64  `yaml:"cheating_below,omitempty"`
	HighRecurrence  int      `yaml:"high_severity_recurrence,omitempty"`
	CollusionWindow float64  `yaml:"collusion_window_seconds,omitempty"`
	HighSeverity    []string `yaml:"high_severity_kinds,omitempty"`
}

// AudioConfig holds speaker-consistency analysis settings.
type AudioConfig struct {
	WindowSeconds     float64 `yaml:"window_seconds,omitempty"`
	SpeakerMatchFloor float64 `yaml:"speaker_match_floor,omitempty"`
}

// EvidenceConfig controls proof-frame capture.
type EvidenceConfig struct {
	Kinds       []string `yaml:"kinds,omitempty"`
	ResizeWidth int      `yaml:"resize_width,omitempty"`
	JPEGQuality int      `yaml:"jpeg_quality,omitempty"`
}

// StorageConfig holds the report and evidence directories.
type StorageConfig struct {
	ReportsDir  string `yaml:"reports_dir,omitempty"`
	EvidenceDir string `yaml:"evidence_dir,omitempty"`
	SessionLog  *bool  `yaml:"session_log,omitempty"`
}

// DetectorConfig wires one detector capability into the frame pipeline.
// Params are detector-specific and decoded by the detector factory.
type DetectorConfig struct {
	Name   string         `yaml:"name"`
	Type   string         `yaml:"type"`
	Params map[string]any `yaml:"params,omitempty"`
}

// Config is the top-level analysis configuration loaded from YAML.
type Config struct {
	Sampling SamplingConfig     `yaml:"sampling,omitempty"`
	Runs     map[string]int     `yaml:"run_thresholds,omitempty"`
	Weights  map[string]float64 `yaml:"weights,omitempty"`
	Verdict  VerdictConfig      `yaml:"verdict,omitempty"`
	Audio    AudioConfig        `yaml:"audio,omitempty"`
	Evidence EvidenceConfig     `yaml:"evidence,omitempty"`
	Storage  StorageConfig      `yaml:"storage,omitempty"`
	Workers  int                `yaml:"workers,omitempty"`

	Detectors     []DetectorConfig `yaml:"detectors,omitempty"`
	AudioDetector *DetectorConfig  `yaml:"audio_detector,omitempty"`

	// Populated by Validate from the string-keyed YAML maps.
	runs          map[signal.ViolationKind]int
	weights       map[signal.ViolationKind]float64
	evidenceKinds map[signal.ViolationKind]bool
	highSeverity  map[signal.ViolationKind]bool
}

// New returns a Config with all defaults populated.
func New() *Config {
	return &Config{
		Sampling: SamplingConfig{
			FrameStride:    DefaultFrameStride,
			FPSFallback:    DefaultFPSFallback,
			ObjectEvery:    DefaultObjectEvery,
			MultiFaceEvery: DefaultMultiFaceEvery,
		},
		Runs: map[string]int{
			"no_face":      DefaultNoFaceRun,
			"looking_away": DefaultLookingAwayRun,
			"talking":      DefaultTalkingRun,
		},
		Weights: map[string]float64{
			"no_face":          DefaultNoFaceWeight,
			"looking_away":     DefaultLookingAwayWeight,
			"talking":          DefaultTalkingWeight,
			"multi_face":       DefaultMultiFaceWeight,
			"object_detected":  DefaultObjectDetectedWeight,
			"speaker_mismatch": DefaultSpeakerMismatchWeight,
		},
		Verdict: VerdictConfig{
			SuspiciousBelow: DefaultSuspiciousBelow,
			CheatingBelow:   DefaultCheatingBelow,
			HighRecurrence:  DefaultHighRecurrence,
			CollusionWindow: DefaultCollusionWindow,
			HighSeverity:    []string{"multi_face", "object_detected"},
		},
		Audio: AudioConfig{
			WindowSeconds:     DefaultAudioWindowSeconds,
			SpeakerMatchFloor: DefaultSpeakerMatchFloor,
		},
		Evidence: EvidenceConfig{
			Kinds:       []string{"no_face", "looking_away", "multi_face", "object_detected", "talking"},
			ResizeWidth: DefaultEvidenceWidth,
			JPEGQuality: DefaultJPEGQuality,
		},
		Storage: StorageConfig{
			ReportsDir:  DefaultReportsDir,
			EvidenceDir: DefaultEvidenceDir,
			SessionLog:  boolPtr(true),
		},
		Workers: DefaultWorkers,
	}
}

// Load reads a YAML config file and fills in missing fields with defaults.
// An empty path returns defaults. The result is already validated.
func Load(path string) (*Config, error) {
	cfg := New()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("parsing config %q: %w", path, err)
		}
		mergeConfig(cfg, &fileCfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeConfig overlays non-zero values from src onto dst. Maps and lists
// replace wholesale so a file can narrow the evidence kinds.
func mergeConfig(dst, src *Config) {
	if src.Sampling.FrameStride != 0 {
		dst.Sampling.FrameStride = src.Sampling.FrameStride
	}
	if src.Sampling.FPSFallback != 0 {
		dst.Sampling.FPSFallback = src.Sampling.FPSFallback
	}
	if src.Sampling.ObjectEvery != 0 {
		dst.Sampling.ObjectEvery = src.Sampling.ObjectEvery
	}
	if src.Sampling.MultiFaceEvery != 0 {
		dst.Sampling.MultiFaceEvery = src.Sampling.MultiFaceEvery
	}

	for k, v := range src.Runs {
		dst.Runs[k] = v
	}
	for k, v := range src.Weights {
		dst.Weights[k] = v
	}

	if src.Verdict.SuspiciousBelow != 0 {
		dst.Verdict.SuspiciousBelow = src.Verdict.SuspiciousBelow
	}
	if src.Verdict.CheatingBelow != 0 {
		dst.Verdict.CheatingBelow = src.Verdict.CheatingBelow
	}
	if src.Verdict.HighRecurrence != 0 {
		dst.Verdict.HighRecurrence = src.Verdict.HighRecurrence
	}
	if src.Verdict.CollusionWindow != 0 {
		dst.Verdict.CollusionWindow = src.Verdict.CollusionWindow
	}
	if len(src.Verdict.HighSeverity) > 0 {
		dst.Verdict.HighSeverity = src.Verdict.HighSeverity
	}

	if src.Audio.WindowSeconds != 0 {
		dst.Audio.WindowSeconds = src.Audio.WindowSeconds
	}
	if src.Audio.SpeakerMatchFloor != 0 {
		dst.Audio.SpeakerMatchFloor = src.Audio.SpeakerMatchFloor
	}

	if len(src.Evidence.Kinds) > 0 {
		dst.Evidence.Kinds = src.Evidence.Kinds
	}
	if src.Evidence.ResizeWidth != 0 {
		dst.Evidence.ResizeWidth = src.Evidence.ResizeWidth
	}
	if src.Evidence.JPEGQuality != 0 {
		dst.Evidence.JPEGQuality = src.Evidence.JPEGQuality
	}

	if src.Storage.ReportsDir != "" {
		dst.Storage.ReportsDir = src.Storage.ReportsDir
	}
	if src.Storage.EvidenceDir != "" {
		dst.Storage.EvidenceDir = src.Storage.EvidenceDir
	}
	if src.Storage.SessionLog != nil {
		dst.Storage.SessionLog = src.Storage.SessionLog
	}

	if src.Workers != 0 {
		dst.Workers = src.Workers
	}
	if len(src.Detectors) > 0 {
		dst.Detectors = src.Detectors
	}
	if src.AudioDetector != nil {
		dst.AudioDetector = src.AudioDetector
	}
}

// Validate checks the policy for values that would make a verdict
// meaningless and resolves the string-keyed maps to violation kinds.
func (c *Config) Validate() error {
	if c.Sampling.FrameStride < 1 {
		return &Error{Field: "sampling.frame_stride", Reason: "must be >= 1"}
	}
	if c.Sampling.FPSFallback <= 0 {
		return &Error{Field: "sampling.fps_fallback", Reason: "must be > 0"}
	}
	if c.Sampling.ObjectEvery < 1 || c.Sampling.MultiFaceEvery < 1 {
		return &Error{Field: "sampling", Reason: "detector cadences must be >= 1"}
	}
	if c.Workers < 1 {
		return &Error{Field: "workers", Reason: "must be >= 1"}
	}

	c.runs = map[signal.ViolationKind]int{}
	for name, n := range c.Runs {
		kind, err := signal.ParseViolationKind(name)
		if err != nil {
			return &Error{Field: "run_thresholds", Reason: err.Error()}
		}
		if n < 1 {
			return &Error{Field: "run_thresholds." + name, Reason: "must be >= 1"}
		}
		c.runs[kind] = n
	}

	c.weights = map[signal.ViolationKind]float64{}
	for name, w := range c.Weights {
		kind, err := signal.ParseViolationKind(name)
		if err != nil {
			return &Error{Field: "weights", Reason: err.Error()}
		}
		if w < 0 {
			return &Error{Field: "weights." + name, Reason: "must be >= 0"}
		}
		c.weights[kind] = w
	}
	for _, kind := range signal.Kinds() {
		if _, ok := c.weights[kind]; !ok {
			return &Error{Field: "weights", Reason: fmt.Sprintf("missing weight for %s", kind)}
		}
	}

	if c.Verdict.CheatingBelow <= 0 || c.Verdict.SuspiciousBelow <= c.Verdict.CheatingBelow {
		return &Error{Field: "verdict", Reason: "need 0 < cheating_below < suspicious_below"}
	}
	if c.Verdict.SuspiciousBelow > 100 {
		return &Error{Field: "verdict.suspicious_below", Reason: "must be <= 100"}
	}
	if c.Verdict.HighRecurrence < 1 {
		return &Error{Field: "verdict.high_severity_recurrence", Reason: "must be >= 1"}
	}
	if c.Verdict.CollusionWindow < 0 {
		return &Error{Field: "verdict.collusion_window_seconds", Reason: "must be >= 0"}
	}
	c.highSeverity = map[signal.ViolationKind]bool{}
	for _, name := range c.Verdict.HighSeverity {
		kind, err := signal.ParseViolationKind(name)
		if err != nil {
			return &Error{Field: "verdict.high_severity_kinds", Reason: err.Error()}
		}
		c.highSeverity[kind] = true
	}

	if c.Audio.WindowSeconds <= 0 {
		return &Error{Field: "audio.window_seconds", Reason: "must be > 0"}
	}
	if c.Audio.SpeakerMatchFloor < 0 || c.Audio.SpeakerMatchFloor > 1 {
		return &Error{Field: "audio.speaker_match_floor", Reason: "must be in [0,1]"}
	}

	if c.Evidence.ResizeWidth < 1 {
		return &Error{Field: "evidence.resize_width", Reason: "must be >= 1"}
	}
	if c.Evidence.JPEGQuality < 1 || c.Evidence.JPEGQuality > 100 {
		return &Error{Field: "evidence.jpeg_quality", Reason: "must be in [1,100]"}
	}
	c.evidenceKinds = map[signal.ViolationKind]bool{}
	for _, name := range c.Evidence.Kinds {
		kind, err := signal.ParseViolationKind(name)
		if err != nil {
			return &Error{Field: "evidence.kinds", Reason: err.Error()}
		}
		if !kind.Visual() {
			return &Error{Field: "evidence.kinds", Reason: fmt.Sprintf("%s has no frame to capture", kind)}
		}
		c.evidenceKinds[kind] = true
	}

	return nil
}

// RunThreshold returns the consecutive-sampled-frame threshold for a kind,
// or 1 for kinds that are edge-triggered on first detection.
func (c *Config) RunThreshold(kind signal.ViolationKind) int {
	if n, ok := c.runs[kind]; ok {
		return n
	}
	return 1
}

// Weight returns the score penalty for a kind. Validate guarantees every
// kind has one.
func (c *Config) Weight(kind signal.ViolationKind) float64 {
	return c.weights[kind]
}

// HighSeverity reports whether a single event of this kind escalates the
// verdict on its own.
func (c *Config) HighSeverity(kind signal.ViolationKind) bool {
	return c.highSeverity[kind]
}

// CapturesEvidence reports whether events of this kind persist a proof frame.
func (c *Config) CapturesEvidence(kind signal.ViolationKind) bool {
	return c.evidenceKinds[kind]
}

// SessionLogEnabled reports whether the NDJSON timeline side log is written.
func (c *Config) SessionLogEnabled() bool {
	return c.Storage.SessionLog == nil || *c.Storage.SessionLog
}

// IsConfigError reports whether err (or anything it wraps) is a config
// validation failure.
func IsConfigError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}

func boolPtr(b bool) *bool {
	return &b
}
