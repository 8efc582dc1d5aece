// Package recorder orchestrates recording sessions. A Registry owns every
// session, wires capture through analysis into per-session integrators,
// and keeps the day's context cache current via an aggregator.
package recorder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/inframehq/inframe/pkg/analysis"
	"github.com/inframehq/inframe/pkg/cache"
	"github.com/inframehq/inframe/pkg/capture"
	apperrors "github.com/inframehq/inframe/pkg/errors"
	"github.com/inframehq/inframe/pkg/integrator"
	"github.com/inframehq/inframe/pkg/logging"
	"github.com/inframehq/inframe/pkg/types"
)

const (
	// NoRecordingMessage is returned when context is requested while no
	// recording is in progress.
	NoRecordingMessage = "No recording in progress"

	// NoSessionToExportMessage is returned when a summary export is
	// requested while no recording is in progress.
	NoSessionToExportMessage = "No recording session to export"
)

// CaptureFactory builds the capture pipeline for one session.
type CaptureFactory func(scratchDir string, params types.SessionParams, logger *logging.Logger) (capture.Pipeline, error)

// Registry owns all recording sessions and the shared context cache.
type Registry struct {
	analyzer    analysis.Analyzer
	store       cache.Store
	logger      *logging.Logger
	factory     CaptureFactory
	aggregator  *integrator.Aggregator
	scratchRoot string
	now         func() time.Time

	mu          sync.RWMutex
	sessions    map[string]*Session
	activeCount int
	recording   bool
}

// Option is a function that configures a Registry.
type Option func(*Registry)

// WithCaptureFactory overrides how capture pipelines are built.
func WithCaptureFactory(factory CaptureFactory) Option {
	return func(r *Registry) {
		r.factory = factory
	}
}

// WithScratchRoot overrides where sessions keep their clip files.
func WithScratchRoot(dir string) Option {
	return func(r *Registry) {
		r.scratchRoot = dir
	}
}

// NewRegistry creates a registry writing combined context to store.
func NewRegistry(analyzer analysis.Analyzer, store cache.Store, logger *logging.Logger, opts ...Option) *Registry {
	r := &Registry{
		analyzer:    analyzer,
		store:       store,
		logger:      logger,
		factory:     defaultCaptureFactory,
		scratchRoot: filepath.Join(os.TempDir(), "inframe-recordings"),
		now:         time.Now,
		sessions:    make(map[string]*Session),
	}

	for _, opt := range opts {
		opt(r)
	}

	r.aggregator = integrator.NewAggregator(r.writeCache)
	return r
}

func defaultCaptureFactory(scratchDir string, params types.SessionParams, logger *logging.Logger) (capture.Pipeline, error) {
	return capture.NewFFmpegPipeline(scratchDir, params, logger)
}

// CreateSession registers a new session in created state. Nothing starts
// recording until Start is called.
func (r *Registry) CreateSession(params types.SessionParams) (string, error) {
	params.Normalize()
	if err := params.Validate(); err != nil {
		return "", err
	}

	id := uuid.New().String()
	scratchDir := filepath.Join(r.scratchRoot, id)

	pipe, err := r.factory(scratchDir, params, r.logger)
	if err != nil {
		return "", err
	}

	integ := integrator.New(id, r.analyzer, r.logger)
	integ.SetOnUpdate(func(narrative string) {
		r.aggregator.Update(id, narrative)
	})

	session := &Session{
		id:         id,
		params:     params,
		createdAt:  r.now(),
		capture:    pipe,
		analysis:   analysis.NewPipeline(r.analyzer, integ.Append, r.logger),
		integrator: integ,
		state:      types.SessionStateCreated,
	}

	r.mu.Lock()
	r.sessions[id] = session
	r.mu.Unlock()

	r.logger.Infof("session %s created (%s mode)", shortID(id), params.Mode)
	return id, nil
}

// Start brings a session to active: capture, then analysis bound to the
// clip channel, then the integrator. A failure at any stage stops the
// stages already running and leaves the session failed, so a start error
// never leaks a live pipeline.
func (r *Registry) Start(ctx context.Context, id string) error {
	session, err := r.session(id)
	if err != nil {
		return err
	}

	session.op.Lock()
	defer session.op.Unlock()

	if session.State().IsActive() {
		return apperrors.Newf(apperrors.ErrCodeSessionActive, "session %s is already recording", shortID(id))
	}
	if err := session.transition(types.SessionStateStarting); err != nil {
		return err
	}

	if err := session.capture.Start(ctx, session.params.Mode); err != nil {
		session.markFailed()
		return apperrors.New(apperrors.ErrCodeDependencyStart, "capture pipeline failed to start", err)
	}

	if err := session.analysis.Start(ctx, session.capture.Clips(), session.params.VisualTask); err != nil {
		r.unwind(session, false)
		session.markFailed()
		return apperrors.New(apperrors.ErrCodeDependencyStart, "analysis pipeline failed to start", err)
	}

	if err := session.integrator.Start(ctx); err != nil {
		r.unwind(session, true)
		session.markFailed()
		return apperrors.New(apperrors.ErrCodeDependencyStart, "context integrator failed to start", err)
	}

	session.markActive(r.now())

	r.mu.Lock()
	r.activeCount++
	r.recording = true
	r.mu.Unlock()

	r.logger.Infof("session %s recording", shortID(id))
	return nil
}

// unwind stops stages left running after a later stage failed to start.
// Capture goes first so the clip channel closes and the analysis worker
// can exit. Stop failures are logged and swallowed: the start error is
// the one the caller needs.
func (r *Registry) unwind(session *Session, stopAnalysis bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := session.capture.Stop(ctx); err != nil {
		r.logger.Warnf("session %s: %v", shortID(session.id),
			apperrors.New(apperrors.ErrCodeDependencyStop, "capture unwind failed", err))
	}
	if stopAnalysis {
		if err := session.analysis.Stop(ctx); err != nil {
			r.logger.Warnf("session %s: %v", shortID(session.id),
				apperrors.New(apperrors.ErrCodeDependencyStop, "analysis unwind failed", err))
		}
	}
}

// Stop halts an active session. Unknown IDs and sessions that are not
// active are a no-op. Stage failures are logged and swallowed so the
// session always reaches stopped.
func (r *Registry) Stop(ctx context.Context, id string) error {
	session, err := r.session(id)
	if err != nil {
		return nil
	}

	if stopErr := r.stopSession(ctx, session); stopErr != nil {
		r.logger.Warnf("session %s: stop completed with failures: %v", shortID(id), stopErr)
	}
	return nil
}

// stopSession runs the stop sequence and reports aggregated stage
// failures. The session reaches stopped regardless.
func (r *Registry) stopSession(ctx context.Context, session *Session) error {
	session.op.Lock()
	defer session.op.Unlock()

	if !session.State().IsActive() {
		return nil
	}
	if err := session.transition(types.SessionStateStopping); err != nil {
		return err
	}

	// Integrator, then analysis, then capture. Clips still buffered on
	// the capture channel when analysis halts are discarded rather than
	// analyzed.
	var result *multierror.Error
	if err := session.integrator.Stop(ctx); err != nil {
		result = multierror.Append(result,
			apperrors.New(apperrors.ErrCodeDependencyStop, "integrator stop failed", err))
	}
	if err := session.analysis.Stop(ctx); err != nil {
		result = multierror.Append(result,
			apperrors.New(apperrors.ErrCodeDependencyStop, "analysis pipeline stop failed", err))
	}
	if err := session.capture.Stop(ctx); err != nil {
		result = multierror.Append(result,
			apperrors.New(apperrors.ErrCodeDependencyStop, "capture pipeline stop failed", err))
	}

	session.markStopped(r.now())

	r.mu.Lock()
	if r.activeCount > 0 {
		r.activeCount--
	}
	r.recording = r.activeCount > 0
	r.mu.Unlock()

	r.logger.Infof("session %s stopped", shortID(session.id))
	return result.ErrorOrNil()
}

// Shutdown stops every active session. Sessions are isolated from each
// other: one failing stop does not keep the rest from stopping. The
// aggregated failures are returned for observability.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)

	var result *multierror.Error
	for _, id := range ids {
		session, err := r.session(id)
		if err != nil {
			continue
		}
		if err := r.stopSession(ctx, session); err != nil {
			result = multierror.Append(result, fmt.Errorf("session %s: %w", shortID(id), err))
		}
	}

	r.mu.Lock()
	r.activeCount = 0
	r.recording = false
	r.mu.Unlock()

	return result.ErrorOrNil()
}

// Status merges capture, analysis and integrator state into one snapshot.
// A collaborator read failure is reported inside the snapshot rather than
// as an error.
func (r *Registry) Status(ctx context.Context, id string) (*types.StatusSnapshot, error) {
	session, err := r.session(id)
	if err != nil {
		return nil, err
	}

	state := session.State()
	snapshot := &types.StatusSnapshot{
		SessionID: id,
		State:     state,
		Active:    state.IsActive(),
		Recording: r.IsRecording(),
	}
	if !snapshot.Active {
		return snapshot, nil
	}

	buffer, err := session.capture.BufferStatus(ctx)
	if err != nil {
		snapshot.Err = err.Error()
		return snapshot, nil
	}

	pipelineStatus := session.analysis.Status()
	integratorStatus := session.integrator.Status()

	snapshot.VideoClips = buffer.ClipCount
	snapshot.BufferSeconds = buffer.BufferSeconds
	snapshot.ProcessedClips = pipelineStatus.Processed
	snapshot.ContextClips = integratorStatus.ClipsIntegrated
	snapshot.SessionSeconds = integratorStatus.SessionSeconds
	snapshot.SpeakersIdentified = len(integratorStatus.Speakers)
	return snapshot, nil
}

// CurrentContext returns the session's narrative while it records.
func (r *Registry) CurrentContext(ctx context.Context, id string) (string, error) {
	session, err := r.session(id)
	if err != nil {
		return "", err
	}
	if !session.State().IsActive() {
		return NoRecordingMessage, nil
	}
	return session.integrator.Narrative(), nil
}

// ExportSummary produces a compact summary of the active session.
func (r *Registry) ExportSummary(ctx context.Context, id string) (string, error) {
	session, err := r.session(id)
	if err != nil {
		return "", err
	}
	if !session.State().IsActive() {
		return NoSessionToExportMessage, nil
	}
	return session.integrator.ExportSummary(ctx)
}

// Stats reports per-session counters, usable during and after recording.
func (r *Registry) Stats(id string) (*types.SessionStats, error) {
	session, err := r.session(id)
	if err != nil {
		return nil, err
	}

	pipelineStatus := session.analysis.Status()
	return &types.SessionStats{
		SessionID:               id,
		RecordingDuration:       session.recordingDuration(r.now()),
		TotalClipsRecorded:      session.capture.TotalRecorded(),
		TotalClipsProcessed:     pipelineStatus.Processed,
		TotalProcessingFailures: pipelineStatus.Failures,
	}, nil
}

// ListSessions returns every registered session, oldest first.
func (r *Registry) ListSessions() []types.SessionInfo {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, session)
	}
	r.mu.RUnlock()

	infos := make([]types.SessionInfo, 0, len(sessions))
	for _, session := range sessions {
		infos = append(infos, session.info())
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// HasSession reports whether a session with the given ID is registered.
func (r *Registry) HasSession(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[id]
	return ok
}

// IsRecording reports whether any session is active.
func (r *Registry) IsRecording() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.recording
}

// ActiveCount returns the number of active sessions.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeCount
}

// CacheFilePath returns where the combined context is being written.
func (r *Registry) CacheFilePath() string {
	return r.store.Path()
}

// CombinedContext returns the merged context document across sessions,
// as written to the cache.
func (r *Registry) CombinedContext() string {
	return r.aggregator.Combined()
}

func (r *Registry) session(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrCodeSessionNotFound, "session %s not found", id)
	}
	return session, nil
}

// writeCache pushes the combined context document to the store. Cache
// failures must not disturb recording, so they are logged and swallowed.
func (r *Registry) writeCache(combined string) {
	if err := r.store.Write(combined); err != nil {
		r.logger.Warnf("%v",
			apperrors.New(apperrors.ErrCodeCacheWrite, "context cache write failed", err))
	}
}
