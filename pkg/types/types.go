// Package types defines the shared data model for recording sessions,
// polling queries, and the merged screen context they produce.
package types

import (
	"time"

	apperrors "github.com/inframehq/inframe/pkg/errors"
)

// RecordingMode selects how much of the screen a capture pipeline grabs.
type RecordingMode string

const (
	RecordingModeFullScreen RecordingMode = "full_screen"
	RecordingModeWindowOnly RecordingMode = "window_only"
)

// ParseRecordingMode validates a mode string from config or CLI input.
func ParseRecordingMode(s string) (RecordingMode, error) {
	switch RecordingMode(s) {
	case RecordingModeFullScreen, RecordingModeWindowOnly:
		return RecordingMode(s), nil
	default:
		return "", apperrors.Newf(apperrors.ErrCodeInvalidConfig, "unknown recording mode %q", s)
	}
}

// SessionParams configures one recording session. Zero values are filled in
// by Normalize; Validate rejects values Normalize cannot repair.
type SessionParams struct {
	// IncludeApps is an application-name allow-list (glob patterns
	// supported). Empty means capture everything.
	IncludeApps []string `yaml:"include_apps" json:"include_apps"`
	// ExcludeApps is a deny-list applied after IncludeApps; deny wins.
	ExcludeApps []string `yaml:"exclude_apps,omitempty" json:"exclude_apps,omitempty"`

	Mode            RecordingMode `yaml:"recording_mode" json:"recording_mode"`
	ChunkDuration   time.Duration `yaml:"chunk_duration" json:"chunk_duration"`
	BufferDuration  time.Duration `yaml:"buffer_duration" json:"buffer_duration"`
	MaxClips        int           `yaml:"max_clips" json:"max_clips"`
	VideoPriority   int           `yaml:"video_priority" json:"video_priority"`
	ContextPriority int           `yaml:"context_priority" json:"context_priority"`

	// VisualTask is the natural-language prompt given to the analysis
	// backend for every captured frame.
	VisualTask string `yaml:"visual_task" json:"visual_task"`
}

const (
	DefaultChunkDuration  = 5 * time.Second
	DefaultBufferDuration = 30 * time.Second
	DefaultMaxClips       = 20

	// DefaultVisualTask is the frame-analysis instruction used when a
	// session does not supply its own.
	DefaultVisualTask = "Describe the screen content focusing on application names, file names, UI elements, and text content."
)

// Normalize fills zero values with defaults. It does not touch values the
// caller set explicitly.
func (p *SessionParams) Normalize() {
	if p.Mode == "" {
		p.Mode = RecordingModeFullScreen
	}
	if p.ChunkDuration == 0 {
		p.ChunkDuration = DefaultChunkDuration
	}
	if p.BufferDuration == 0 {
		p.BufferDuration = DefaultBufferDuration
	}
	if p.MaxClips == 0 {
		p.MaxClips = DefaultMaxClips
	}
	if p.VisualTask == "" {
		p.VisualTask = DefaultVisualTask
	}
}

// Validate reports malformed parameters. Called after Normalize, so only
// values no default can repair are rejected.
func (p *SessionParams) Validate() error {
	if p.Mode != RecordingModeFullScreen && p.Mode != RecordingModeWindowOnly {
		return apperrors.Newf(apperrors.ErrCodeInvalidConfig, "unknown recording mode %q", string(p.Mode))
	}
	if p.ChunkDuration < 0 {
		return apperrors.Newf(apperrors.ErrCodeInvalidConfig, "chunk duration must be positive, got %s", p.ChunkDuration)
	}
	if p.BufferDuration < 0 {
		return apperrors.Newf(apperrors.ErrCodeInvalidConfig, "buffer duration must be positive, got %s", p.BufferDuration)
	}
	if p.BufferDuration > 0 && p.ChunkDuration > p.BufferDuration {
		return apperrors.Newf(apperrors.ErrCodeInvalidConfig, "chunk duration %s exceeds buffer duration %s", p.ChunkDuration, p.BufferDuration)
	}
	if p.MaxClips < 1 {
		return apperrors.Newf(apperrors.ErrCodeInvalidConfig, "max clips must be at least 1, got %d", p.MaxClips)
	}
	return nil
}

// Clip is one recorded segment produced by a capture pipeline.
type Clip struct {
	ID        string
	Sequence  int
	Path      string
	StartedAt time.Time
	Duration  time.Duration
}

// Analysis is the textual description of one clip produced by the analysis
// pipeline.
type Analysis struct {
	ClipID    string
	Text      string
	Speakers  []string
	Frames    int
	CreatedAt time.Time
}

// Result is delivered to a query callback once per poll tick. Immutable
// once produced.
type Result struct {
	// Question is the originating prompt text.
	Question string
	// Answer may be empty when the backend produced nothing usable.
	Answer string
	// Confidence is always within [0,1].
	Confidence float64
	// Success is true only if the analysis call completed and produced a
	// usable answer.
	Success bool
	// Err carries the failure description when Success is false.
	Err string
	// ClipID identifies the source clip/frame the answer was drawn from,
	// when the backend reported one.
	ClipID  string
	AskedAt time.Time
}

// ClampConfidence forces a backend-reported confidence into [0,1].
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// StatusSnapshot merges capture buffer status, analysis pipeline status and
// integrator status into one read-only record.
type StatusSnapshot struct {
	SessionID string       `yaml:"session_id" json:"session_id"`
	State     SessionState `yaml:"state" json:"state"`
	Active    bool         `yaml:"active" json:"active"`
	// Recording is the registry-wide flag: true iff any session is active.
	Recording bool `yaml:"recording" json:"recording"`

	VideoClips         int     `yaml:"video_clips" json:"video_clips"`
	BufferSeconds      float64 `yaml:"buffer_seconds" json:"buffer_seconds"`
	ProcessedClips     int     `yaml:"processed_clips" json:"processed_clips"`
	ContextClips       int     `yaml:"context_clips" json:"context_clips"`
	SessionSeconds     float64 `yaml:"session_seconds" json:"session_seconds"`
	SpeakersIdentified int     `yaml:"speakers_identified" json:"speakers_identified"`

	// Err is set instead of returning an error when a collaborator status
	// read fails; the rest of the snapshot keeps its last known values.
	Err string `yaml:"error,omitempty" json:"error,omitempty"`
}

// SessionStats summarizes one session after (or during) recording.
type SessionStats struct {
	SessionID               string        `yaml:"session_id" json:"session_id"`
	RecordingDuration       time.Duration `yaml:"recording_duration" json:"recording_duration"`
	TotalClipsRecorded      int           `yaml:"total_clips_recorded" json:"total_clips_recorded"`
	TotalClipsProcessed     int           `yaml:"total_clips_processed" json:"total_clips_processed"`
	TotalProcessingFailures int           `yaml:"total_processing_failures" json:"total_processing_failures"`
}

// QueryStats aggregates results across all queries of an engine.
type QueryStats struct {
	TotalQueries      int     `yaml:"total_queries" json:"total_queries"`
	SuccessfulQueries int     `yaml:"successful_queries" json:"successful_queries"`
	FailedQueries     int     `yaml:"failed_queries" json:"failed_queries"`
	AverageConfidence float64 `yaml:"average_confidence" json:"average_confidence"`
}

// SessionInfo is the listing view of a registered session.
type SessionInfo struct {
	ID        string        `yaml:"id" json:"id"`
	State     SessionState  `yaml:"state" json:"state"`
	Active    bool          `yaml:"active" json:"active"`
	Mode      RecordingMode `yaml:"recording_mode" json:"recording_mode"`
	CreatedAt time.Time     `yaml:"created_at" json:"created_at"`
}
