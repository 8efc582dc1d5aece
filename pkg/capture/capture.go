// Package capture defines the capture-pipeline contract and provides an
// ffmpeg-backed implementation that turns the screen into a bounded,
// chunked stream of recorded clips.
package capture

import (
	"context"

	"github.com/inframehq/inframe/pkg/types"
)

// BufferStatus is the capture side of a session status read.
type BufferStatus struct {
	// ClipCount is the number of clips currently retained in the buffer.
	ClipCount int
	// BufferSeconds is the total duration covered by retained clips.
	BufferSeconds float64
}

// Pipeline produces a chunked stream of recorded clips for one session.
// A pipeline handle is exclusively owned by its session record and is
// never shared.
type Pipeline interface {
	// Start begins recording in the given mode. It returns an error when
	// the underlying grabber cannot be started; nothing is left running
	// on failure.
	Start(ctx context.Context, mode types.RecordingMode) error

	// Stop ends recording and finalizes the in-flight clip. Idempotent.
	Stop(ctx context.Context) error

	// Clips delivers completed clips in sequence order. The channel is
	// closed after Stop once the final clip has been delivered.
	Clips() <-chan types.Clip

	// BufferStatus reports the current clip buffer.
	BufferStatus(ctx context.Context) (BufferStatus, error)

	// TotalRecorded counts every clip produced since Start, including
	// clips already pruned from the buffer.
	TotalRecorded() int
}
