package recorder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/inframehq/inframe/pkg/analysis"
	"github.com/inframehq/inframe/pkg/cache"
	"github.com/inframehq/inframe/pkg/capture"
	apperrors "github.com/inframehq/inframe/pkg/errors"
	"github.com/inframehq/inframe/pkg/logging"
	"github.com/inframehq/inframe/pkg/types"
)

type fakeAnalyzer struct{}

func (f *fakeAnalyzer) AnalyzeFrame(ctx context.Context, req analysis.FrameRequest) (types.Analysis, error) {
	return types.Analysis{Text: "frame"}, nil
}

func (f *fakeAnalyzer) AnswerQuestion(ctx context.Context, req analysis.QuestionRequest) (analysis.Answer, error) {
	return analysis.Answer{Text: "YES", Confidence: 0.9}, nil
}

func (f *fakeAnalyzer) Summarize(ctx context.Context, text string, budgetTokens int) (string, error) {
	return "session summary", nil
}

// fakeCapture is a controllable capture pipeline.
type fakeCapture struct {
	mu        sync.Mutex
	startErr  error
	stopErr   error
	nilClips  bool
	buffer    capture.BufferStatus
	bufferErr error
	total     int
	starts    int
	stops     int
	clips     chan types.Clip
}

func (f *fakeCapture) Start(ctx context.Context, mode types.RecordingMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.starts++
	f.clips = make(chan types.Clip, 8)
	return nil
}

func (f *fakeCapture) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	if f.clips != nil {
		close(f.clips)
		f.clips = nil
	}
	return f.stopErr
}

func (f *fakeCapture) Clips() <-chan types.Clip {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.nilClips {
		return nil
	}
	return f.clips
}

func (f *fakeCapture) BufferStatus(ctx context.Context) (capture.BufferStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bufferErr != nil {
		return capture.BufferStatus{}, f.bufferErr
	}
	return f.buffer, nil
}

func (f *fakeCapture) TotalRecorded() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total
}

func (f *fakeCapture) counts() (starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

// fakeFactory hands out fakeCapture pipelines, one per created session.
type fakeFactory struct {
	mu    sync.Mutex
	next  *fakeCapture
	built []*fakeCapture
}

func (f *fakeFactory) build(scratchDir string, params types.SessionParams, logger *logging.Logger) (capture.Pipeline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pipe := f.next
	if pipe == nil {
		pipe = &fakeCapture{}
	}
	f.next = nil
	f.built = append(f.built, pipe)
	return pipe, nil
}

func (f *fakeFactory) last(t *testing.T) *fakeCapture {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.built) == 0 {
		t.Fatal("no capture pipeline was built")
	}
	return f.built[len(f.built)-1]
}

func newTestRegistry(t *testing.T) (*Registry, *fakeFactory, string) {
	t.Helper()

	logger, err := logging.NewLogger("recorder-test")
	if err != nil {
		t.Fatalf("logging.NewLogger() error = %v", err)
	}
	t.Cleanup(func() { logger.Close() })

	cachePath := filepath.Join(t.TempDir(), "context")
	store := cache.NewFileStoreAt(cachePath)

	factory := &fakeFactory{}
	registry := NewRegistry(&fakeAnalyzer{}, store, logger,
		WithCaptureFactory(factory.build),
		WithScratchRoot(t.TempDir()),
	)
	return registry, factory, cachePath
}

func TestCreateSession_ValidatesParams(t *testing.T) {
	registry, _, _ := newTestRegistry(t)

	_, err := registry.CreateSession(types.SessionParams{ChunkDuration: -time.Second})
	if !apperrors.HasCode(err, apperrors.ErrCodeInvalidConfig) {
		t.Errorf("CreateSession() error = %v, want %s", err, apperrors.ErrCodeInvalidConfig)
	}
}

func TestCreateSession_StartsNothing(t *testing.T) {
	registry, factory, _ := newTestRegistry(t)

	id, err := registry.CreateSession(types.SessionParams{})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	if starts, _ := factory.last(t).counts(); starts != 0 {
		t.Errorf("capture started %d times before Start()", starts)
	}
	if registry.IsRecording() {
		t.Error("IsRecording() = true before any Start()")
	}

	infos := registry.ListSessions()
	if len(infos) != 1 || infos[0].ID != id || infos[0].State != types.SessionStateCreated {
		t.Errorf("ListSessions() = %+v", infos)
	}
}

func TestStart_BringsSessionActive(t *testing.T) {
	registry, factory, _ := newTestRegistry(t)

	id, err := registry.CreateSession(types.SessionParams{})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if err := registry.Start(context.Background(), id); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if starts, _ := factory.last(t).counts(); starts != 1 {
		t.Errorf("capture starts = %d, want 1", starts)
	}
	if !registry.IsRecording() {
		t.Error("IsRecording() = false after Start()")
	}
	if got := registry.ActiveCount(); got != 1 {
		t.Errorf("ActiveCount() = %d, want 1", got)
	}

	snapshot, err := registry.Status(context.Background(), id)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if snapshot.State != types.SessionStateActive || !snapshot.Active {
		t.Errorf("Status() = %+v, want active", snapshot)
	}
}

func TestStart_UnknownSession(t *testing.T) {
	registry, _, _ := newTestRegistry(t)

	err := registry.Start(context.Background(), "no-such-id")
	if !apperrors.HasCode(err, apperrors.ErrCodeSessionNotFound) {
		t.Errorf("Start() error = %v, want %s", err, apperrors.ErrCodeSessionNotFound)
	}
}

func TestStart_AlreadyActive(t *testing.T) {
	registry, factory, _ := newTestRegistry(t)

	id, _ := registry.CreateSession(types.SessionParams{})
	if err := registry.Start(context.Background(), id); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	err := registry.Start(context.Background(), id)
	if !apperrors.HasCode(err, apperrors.ErrCodeSessionActive) {
		t.Errorf("second Start() error = %v, want %s", err, apperrors.ErrCodeSessionActive)
	}

	if starts, _ := factory.last(t).counts(); starts != 1 {
		t.Errorf("capture starts = %d, want still 1", starts)
	}
	if got := registry.ActiveCount(); got != 1 {
		t.Errorf("ActiveCount() = %d, want 1", got)
	}
}

func TestStart_CaptureFailureLeavesSessionFailed(t *testing.T) {
	registry, factory, _ := newTestRegistry(t)

	factory.next = &fakeCapture{startErr: errors.New("no display")}
	id, _ := registry.CreateSession(types.SessionParams{})

	err := registry.Start(context.Background(), id)
	if !apperrors.HasCode(err, apperrors.ErrCodeDependencyStart) {
		t.Fatalf("Start() error = %v, want %s", err, apperrors.ErrCodeDependencyStart)
	}

	if registry.IsRecording() {
		t.Error("IsRecording() = true after failed start")
	}
	snapshot, err := registry.Status(context.Background(), id)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if snapshot.State != types.SessionStateFailed {
		t.Errorf("state = %s, want failed", snapshot.State)
	}

	// Stop after a failed start is a no-op.
	if err := registry.Stop(context.Background(), id); err != nil {
		t.Errorf("Stop() after failed start error = %v", err)
	}
	if _, stops := factory.last(t).counts(); stops != 0 {
		t.Errorf("capture stops = %d, want 0", stops)
	}
}

func TestStart_AnalysisFailureUnwindsCapture(t *testing.T) {
	registry, factory, _ := newTestRegistry(t)

	// A capture pipeline with no clip channel makes the analysis stage
	// refuse to start.
	factory.next = &fakeCapture{nilClips: true}
	id, _ := registry.CreateSession(types.SessionParams{})

	err := registry.Start(context.Background(), id)
	if !apperrors.HasCode(err, apperrors.ErrCodeDependencyStart) {
		t.Fatalf("Start() error = %v, want %s", err, apperrors.ErrCodeDependencyStart)
	}

	starts, stops := factory.last(t).counts()
	if starts != 1 || stops != 1 {
		t.Errorf("capture starts/stops = %d/%d, want 1/1 (started then unwound)", starts, stops)
	}
	if registry.IsRecording() {
		t.Error("IsRecording() = true after failed start")
	}

	snapshot, _ := registry.Status(context.Background(), id)
	if snapshot.State != types.SessionStateFailed {
		t.Errorf("state = %s, want failed", snapshot.State)
	}
}

func TestStart_RetryAfterFailure(t *testing.T) {
	registry, factory, _ := newTestRegistry(t)

	pipe := &fakeCapture{startErr: errors.New("no display")}
	factory.next = pipe
	id, _ := registry.CreateSession(types.SessionParams{})

	if err := registry.Start(context.Background(), id); err == nil {
		t.Fatal("first Start() expected error")
	}

	pipe.mu.Lock()
	pipe.startErr = nil
	pipe.mu.Unlock()

	if err := registry.Start(context.Background(), id); err != nil {
		t.Fatalf("retry Start() error = %v", err)
	}
	if !registry.IsRecording() {
		t.Error("IsRecording() = false after successful retry")
	}
}

func TestStop_ActiveSession(t *testing.T) {
	registry, factory, _ := newTestRegistry(t)

	id, _ := registry.CreateSession(types.SessionParams{})
	if err := registry.Start(context.Background(), id); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := registry.Stop(context.Background(), id); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if registry.IsRecording() {
		t.Error("IsRecording() = true after Stop()")
	}
	if got := registry.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount() = %d, want 0", got)
	}

	snapshot, _ := registry.Status(context.Background(), id)
	if snapshot.State != types.SessionStateStopped {
		t.Errorf("state = %s, want stopped", snapshot.State)
	}

	// Stop is idempotent.
	if err := registry.Stop(context.Background(), id); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
	if _, stops := factory.last(t).counts(); stops != 1 {
		t.Errorf("capture stops = %d, want still 1", stops)
	}
}

func TestStop_UnknownSessionIsNoop(t *testing.T) {
	registry, _, _ := newTestRegistry(t)

	if err := registry.Stop(context.Background(), "no-such-id"); err != nil {
		t.Errorf("Stop() on unknown session error = %v", err)
	}
}

func TestRestart_AfterStop(t *testing.T) {
	registry, factory, _ := newTestRegistry(t)

	id, _ := registry.CreateSession(types.SessionParams{})
	if err := registry.Start(context.Background(), id); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := registry.Stop(context.Background(), id); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := registry.Start(context.Background(), id); err != nil {
		t.Fatalf("restart Start() error = %v", err)
	}

	if starts, _ := factory.last(t).counts(); starts != 2 {
		t.Errorf("capture starts = %d, want 2", starts)
	}
	if !registry.IsRecording() {
		t.Error("IsRecording() = false after restart")
	}
}

func TestMultipleSessions_RecordingFlagTracksActiveCount(t *testing.T) {
	registry, _, _ := newTestRegistry(t)

	first, _ := registry.CreateSession(types.SessionParams{})
	second, _ := registry.CreateSession(types.SessionParams{})

	if err := registry.Start(context.Background(), first); err != nil {
		t.Fatalf("Start(first) error = %v", err)
	}
	if err := registry.Start(context.Background(), second); err != nil {
		t.Fatalf("Start(second) error = %v", err)
	}
	if got := registry.ActiveCount(); got != 2 {
		t.Fatalf("ActiveCount() = %d, want 2", got)
	}

	if err := registry.Stop(context.Background(), first); err != nil {
		t.Fatalf("Stop(first) error = %v", err)
	}
	if !registry.IsRecording() {
		t.Error("IsRecording() = false while one session still active")
	}

	if err := registry.Stop(context.Background(), second); err != nil {
		t.Fatalf("Stop(second) error = %v", err)
	}
	if registry.IsRecording() {
		t.Error("IsRecording() = true after both sessions stopped")
	}
}

func TestShutdown_StopsEverything(t *testing.T) {
	registry, factory, _ := newTestRegistry(t)

	first, _ := registry.CreateSession(types.SessionParams{})
	second, _ := registry.CreateSession(types.SessionParams{})
	if err := registry.Start(context.Background(), first); err != nil {
		t.Fatalf("Start(first) error = %v", err)
	}
	if err := registry.Start(context.Background(), second); err != nil {
		t.Fatalf("Start(second) error = %v", err)
	}

	if err := registry.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	if registry.IsRecording() {
		t.Error("IsRecording() = true after Shutdown()")
	}
	if got := registry.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount() = %d, want 0", got)
	}
	for _, pipe := range factory.built {
		if _, stops := pipe.counts(); stops != 1 {
			t.Errorf("capture stops = %d, want 1", stops)
		}
	}
}

func TestShutdown_AggregatesStopFailures(t *testing.T) {
	registry, factory, _ := newTestRegistry(t)

	factory.next = &fakeCapture{stopErr: errors.New("encoder hung")}
	failing, _ := registry.CreateSession(types.SessionParams{})
	healthy, _ := registry.CreateSession(types.SessionParams{})
	if err := registry.Start(context.Background(), failing); err != nil {
		t.Fatalf("Start(failing) error = %v", err)
	}
	if err := registry.Start(context.Background(), healthy); err != nil {
		t.Fatalf("Start(healthy) error = %v", err)
	}

	err := registry.Shutdown(context.Background())
	if err == nil {
		t.Fatal("Shutdown() error = nil, want aggregated stop failure")
	}
	if !strings.Contains(err.Error(), "capture pipeline stop failed") {
		t.Errorf("Shutdown() error = %v, want a capture stop failure inside", err)
	}

	// The failing session does not keep the healthy one from stopping.
	if registry.IsRecording() {
		t.Error("IsRecording() = true after Shutdown()")
	}
	if got := registry.ActiveCount(); got != 0 {
		t.Errorf("ActiveCount() = %d, want 0", got)
	}
	for _, pipe := range factory.built {
		if _, stops := pipe.counts(); stops != 1 {
			t.Errorf("capture stops = %d, want 1", stops)
		}
	}
}

func TestStatus_MergesCollaborators(t *testing.T) {
	registry, factory, _ := newTestRegistry(t)

	factory.next = &fakeCapture{
		buffer: capture.BufferStatus{ClipCount: 3, BufferSeconds: 15},
		total:  7,
	}
	id, _ := registry.CreateSession(types.SessionParams{})
	if err := registry.Start(context.Background(), id); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	snapshot, err := registry.Status(context.Background(), id)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if snapshot.VideoClips != 3 {
		t.Errorf("VideoClips = %d, want 3", snapshot.VideoClips)
	}
	if snapshot.BufferSeconds != 15 {
		t.Errorf("BufferSeconds = %v, want 15", snapshot.BufferSeconds)
	}
	if !snapshot.Recording {
		t.Error("Recording = false on active session")
	}
	if snapshot.Err != "" {
		t.Errorf("Err = %q, want empty", snapshot.Err)
	}
}

func TestStatus_CollaboratorFailureGoesIntoSnapshot(t *testing.T) {
	registry, factory, _ := newTestRegistry(t)

	pipe := &fakeCapture{}
	factory.next = pipe
	id, _ := registry.CreateSession(types.SessionParams{})
	if err := registry.Start(context.Background(), id); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	pipe.mu.Lock()
	pipe.bufferErr = errors.New("buffer probe failed")
	pipe.mu.Unlock()

	snapshot, err := registry.Status(context.Background(), id)
	if err != nil {
		t.Fatalf("Status() error = %v, want failure inside snapshot", err)
	}
	if snapshot.Err == "" {
		t.Error("snapshot.Err is empty, want the collaborator failure")
	}
	if !snapshot.Recording {
		t.Error("Recording flag lost on collaborator failure")
	}
}

func TestStatus_UnknownSession(t *testing.T) {
	registry, _, _ := newTestRegistry(t)

	_, err := registry.Status(context.Background(), "no-such-id")
	if !apperrors.HasCode(err, apperrors.ErrCodeSessionNotFound) {
		t.Errorf("Status() error = %v, want %s", err, apperrors.ErrCodeSessionNotFound)
	}
}

func TestCurrentContext_Sentinels(t *testing.T) {
	registry, _, _ := newTestRegistry(t)

	id, _ := registry.CreateSession(types.SessionParams{})

	got, err := registry.CurrentContext(context.Background(), id)
	if err != nil {
		t.Fatalf("CurrentContext() error = %v", err)
	}
	if got != NoRecordingMessage {
		t.Errorf("CurrentContext() = %q, want %q", got, NoRecordingMessage)
	}

	if err := registry.Start(context.Background(), id); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	got, err = registry.CurrentContext(context.Background(), id)
	if err != nil {
		t.Fatalf("CurrentContext() error = %v", err)
	}
	if !strings.Contains(got, "NEW RECORDING SESSION ") {
		t.Errorf("CurrentContext() = %q, want the session narrative", got)
	}
}

func TestExportSummary_Sentinels(t *testing.T) {
	registry, _, _ := newTestRegistry(t)

	id, _ := registry.CreateSession(types.SessionParams{})

	got, err := registry.ExportSummary(context.Background(), id)
	if err != nil {
		t.Fatalf("ExportSummary() error = %v", err)
	}
	if got != NoSessionToExportMessage {
		t.Errorf("ExportSummary() = %q, want %q", got, NoSessionToExportMessage)
	}

	if err := registry.Start(context.Background(), id); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	got, err = registry.ExportSummary(context.Background(), id)
	if err != nil {
		t.Fatalf("ExportSummary() error = %v", err)
	}
	if got != "session summary" {
		t.Errorf("ExportSummary() = %q, want the analyzer summary", got)
	}
}

func TestStats_ReportsCounters(t *testing.T) {
	registry, factory, _ := newTestRegistry(t)

	factory.next = &fakeCapture{total: 5}
	id, _ := registry.CreateSession(types.SessionParams{})

	stats, err := registry.Stats(id)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.SessionID != id {
		t.Errorf("SessionID = %q, want %q", stats.SessionID, id)
	}
	if stats.TotalClipsRecorded != 5 {
		t.Errorf("TotalClipsRecorded = %d, want 5", stats.TotalClipsRecorded)
	}
	if stats.RecordingDuration != 0 {
		t.Errorf("RecordingDuration = %v, want 0 before any run", stats.RecordingDuration)
	}
}

func TestCacheReceivesSessionMarkerOnStart(t *testing.T) {
	registry, _, cachePath := newTestRegistry(t)

	id, _ := registry.CreateSession(types.SessionParams{})
	if err := registry.Start(context.Background(), id); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	data, err := os.ReadFile(cachePath)
	if err != nil {
		t.Fatalf("cache file not written: %v", err)
	}
	if !strings.Contains(string(data), "NEW RECORDING SESSION ") {
		t.Errorf("cache content = %q, want a session marker", string(data))
	}

	if got := registry.CacheFilePath(); got != cachePath {
		t.Errorf("CacheFilePath() = %q, want %q", got, cachePath)
	}
}
