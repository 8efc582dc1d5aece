package recorder

import (
	"fmt"
	"sync"
	"time"

	"github.com/inframehq/inframe/pkg/analysis"
	"github.com/inframehq/inframe/pkg/capture"
	"github.com/inframehq/inframe/pkg/integrator"
	"github.com/inframehq/inframe/pkg/types"
)

// Session binds the three stages of one recording: a capture pipeline
// producing clips, an analysis pipeline describing them, and an
// integrator folding descriptions into the session narrative.
type Session struct {
	id        string
	params    types.SessionParams
	createdAt time.Time

	capture    capture.Pipeline
	analysis   *analysis.Pipeline
	integrator *integrator.NarrativeIntegrator

	// op serializes start/stop/restart on this session. Two goroutines
	// racing those operations on the same ID queue up instead of
	// interleaving stage starts.
	op sync.Mutex

	mu        sync.Mutex
	state     types.SessionState
	startedAt time.Time
	elapsed   time.Duration
}

// State returns the current lifecycle state.
func (s *Session) State() types.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// transition moves the session to next, rejecting moves the lifecycle
// does not allow.
func (s *Session) transition(next types.SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.CanTransitionTo(next) {
		return fmt.Errorf("session %s: invalid transition %s -> %s", shortID(s.id), s.state, next)
	}
	s.state = next
	return nil
}

// markActive flips the session to active and stamps the run start. Only
// called once the whole start sequence has succeeded, so observers never
// see active alongside a partially started stack.
func (s *Session) markActive(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = types.SessionStateActive
	s.startedAt = now
}

// markStopped flips the session to stopped and banks the run duration.
func (s *Session) markStopped(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = types.SessionStateStopped
	s.elapsed += now.Sub(s.startedAt)
}

// markFailed records a failed start attempt.
func (s *Session) markFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = types.SessionStateFailed
}

// recordingDuration returns time spent recording across all runs,
// including the current one when active.
func (s *Session) recordingDuration(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := s.elapsed
	if s.state == types.SessionStateActive {
		total += now.Sub(s.startedAt)
	}
	return total
}

// info returns the listing view of the session.
func (s *Session) info() types.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	return types.SessionInfo{
		ID:        s.id,
		State:     s.state,
		Active:    s.state.IsActive(),
		Mode:      s.params.Mode,
		CreatedAt: s.createdAt,
	}
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
