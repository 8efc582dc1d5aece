package capture

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/inframehq/inframe/pkg/errors"
	"github.com/inframehq/inframe/pkg/logging"
	"github.com/inframehq/inframe/pkg/types"
)

const (
	segmentPrefix = "clip-"
	segmentExt    = ".mp4"

	// startProbeWindow is how long ffmpeg must stay alive after launch
	// before the start is considered successful.
	startProbeWindow = 500 * time.Millisecond

	// stopGracePeriod is how long Stop waits for ffmpeg to finalize the
	// in-flight segment before killing it.
	stopGracePeriod = 3 * time.Second
)

// FFmpegPipeline implements Pipeline by shelling out to ffmpeg with
// segment-based chunking. Completed segments are detected by a watcher
// goroutine, emitted on the clips channel, and pruned to the configured
// ring size.
type FFmpegPipeline struct {
	scratchDir string
	params     types.SessionParams
	filter     *AppFilter
	logger     *logging.Logger
	binary     string

	mu            sync.Mutex
	running       bool
	cmd           *exec.Cmd
	cancel        context.CancelFunc
	waitCh        chan error
	clips         chan types.Clip
	stopWatch     chan struct{}
	watcherDone   chan struct{}
	startedAt     time.Time
	nextEmit      int
	retained      []string
	totalRecorded int
}

// NewFFmpegPipeline creates a pipeline recording into scratchDir. The
// params must already be normalized and validated.
func NewFFmpegPipeline(scratchDir string, params types.SessionParams, logger *logging.Logger) (*FFmpegPipeline, error) {
	filter, err := NewAppFilter(params.IncludeApps, params.ExcludeApps)
	if err != nil {
		return nil, err
	}

	return &FFmpegPipeline{
		scratchDir: scratchDir,
		params:     params,
		filter:     filter,
		logger:     logger,
		binary:     "ffmpeg",
	}, nil
}

// Start launches ffmpeg and the segment watcher. The recording outlives
// the Start call, so the grabber runs under its own context; ctx only
// bounds the startup probe.
func (p *FFmpegPipeline) Start(ctx context.Context, mode types.RecordingMode) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return apperrors.Newf(apperrors.ErrCodeDependencyStart, "capture pipeline already running")
	}

	if _, err := exec.LookPath(p.binary); err != nil {
		return apperrors.New(apperrors.ErrCodeDependencyStart, "ffmpeg binary not found", err)
	}

	if mode == types.RecordingModeWindowOnly {
		if title, ok := activeWindowTitle(ctx); ok && !p.filter.Allows(title) {
			return apperrors.Newf(apperrors.ErrCodeDependencyStart, "active window %q is not in the include-apps list", title)
		}
	}

	if err := os.MkdirAll(p.scratchDir, 0750); err != nil {
		return apperrors.New(apperrors.ErrCodeDependencyStart, "failed to create scratch directory", err)
	}
	p.clearSegmentsLocked()

	runCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(runCtx, p.binary, p.buildArgs(mode)...)
	cmd.Stderr = p.logger.Writer()

	if err := cmd.Start(); err != nil {
		cancel()
		return apperrors.New(apperrors.ErrCodeDependencyStart, "failed to launch ffmpeg", err)
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	// Fail fast when ffmpeg dies immediately (bad device, permissions)
	select {
	case err := <-waitCh:
		cancel()
		return apperrors.New(apperrors.ErrCodeDependencyStart, "ffmpeg exited during startup", err)
	case <-ctx.Done():
		cancel()
		<-waitCh
		return apperrors.New(apperrors.ErrCodeDependencyStart, "capture start canceled", ctx.Err())
	case <-time.After(startProbeWindow):
	}

	p.cmd = cmd
	p.cancel = cancel
	p.waitCh = waitCh
	p.running = true
	p.startedAt = time.Now()
	p.nextEmit = 0
	p.retained = nil
	p.clips = make(chan types.Clip, p.params.MaxClips)
	p.stopWatch = make(chan struct{})
	p.watcherDone = make(chan struct{})

	go p.watchSegments(p.clips, p.stopWatch, p.watcherDone)

	return nil
}

// Stop interrupts ffmpeg so the in-flight segment is finalized, waits for
// exit up to the grace period, then lets the watcher run a final scan and
// close the clips channel. Calling Stop on an idle pipeline is a no-op.
func (p *FFmpegPipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	cmd, cancel, waitCh := p.cmd, p.cancel, p.waitCh
	stopWatch, watcherDone := p.stopWatch, p.watcherDone
	p.mu.Unlock()

	if cmd.Process != nil {
		_ = cmd.Process.Signal(os.Interrupt)
	}

	select {
	case <-waitCh:
	case <-time.After(stopGracePeriod):
		cancel()
		<-waitCh
	case <-ctx.Done():
		cancel()
		<-waitCh
	}
	cancel()

	close(stopWatch)
	<-watcherDone

	return nil
}

// Clips returns the channel of completed clips. Valid after Start; closed
// after Stop delivers the final clip.
func (p *FFmpegPipeline) Clips() <-chan types.Clip {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clips
}

// BufferStatus reports the retained ring.
func (p *FFmpegPipeline) BufferStatus(ctx context.Context) (BufferStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	seconds := float64(len(p.retained)) * p.params.ChunkDuration.Seconds()
	if max := p.params.BufferDuration.Seconds(); seconds > max {
		seconds = max
	}
	return BufferStatus{
		ClipCount:     len(p.retained),
		BufferSeconds: seconds,
	}, nil
}

// TotalRecorded counts every clip produced since the pipeline was created.
func (p *FFmpegPipeline) TotalRecorded() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalRecorded
}

func (p *FFmpegPipeline) watchSegments(clips chan types.Clip, stop <-chan struct{}, done chan struct{}) {
	defer close(done)

	interval := p.params.ChunkDuration / 2
	if interval < 200*time.Millisecond {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			p.scanSegments(clips, true)
			close(clips)
			return
		case <-ticker.C:
			p.scanSegments(clips, false)
		}
	}
}

// scanSegments emits newly completed segments in order. A segment is
// complete once the next one exists; on the final scan every remaining
// segment is complete.
func (p *FFmpegPipeline) scanSegments(clips chan types.Clip, final bool) {
	indexes, paths := listSegments(p.scratchDir)

	p.mu.Lock()
	defer p.mu.Unlock()

	for i, idx := range indexes {
		if idx < p.nextEmit {
			continue
		}
		if !final && i == len(indexes)-1 {
			break
		}

		clip := types.Clip{
			ID:        uuid.New().String(),
			Sequence:  idx,
			Path:      paths[i],
			StartedAt: p.startedAt.Add(time.Duration(idx) * p.params.ChunkDuration),
			Duration:  p.params.ChunkDuration,
		}

		select {
		case clips <- clip:
		default:
			p.logger.Warnf("clip buffer full, dropping segment %d", idx)
		}

		p.nextEmit = idx + 1
		p.totalRecorded++
		p.retained = append(p.retained, paths[i])
	}

	p.pruneLocked()
}

// pruneLocked removes the oldest retained clips beyond the ring size.
// Must be called with the mutex held.
func (p *FFmpegPipeline) pruneLocked() {
	for len(p.retained) > p.params.MaxClips {
		oldest := p.retained[0]
		p.retained = p.retained[1:]
		if err := os.Remove(oldest); err != nil && !os.IsNotExist(err) {
			p.logger.Warnf("failed to prune clip %s: %v", oldest, err)
		}
	}
}

// clearSegmentsLocked removes leftover segment files from a previous run
// so segment numbering restarts cleanly. Must be called with the mutex
// held.
func (p *FFmpegPipeline) clearSegmentsLocked() {
	_, paths := listSegments(p.scratchDir)
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			p.logger.Warnf("failed to clear stale clip %s: %v", path, err)
		}
	}
}

func (p *FFmpegPipeline) buildArgs(mode types.RecordingMode) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-y"}
	args = append(args, grabArgs(mode)...)
	args = append(args,
		"-f", "segment",
		"-segment_time", fmt.Sprintf("%g", p.params.ChunkDuration.Seconds()),
		"-reset_timestamps", "1",
		filepath.Join(p.scratchDir, segmentPrefix+"%05d"+segmentExt),
	)
	return args
}

// grabArgs selects the platform screen grabber. On linux, window-only
// mode narrows capture to INFRAME_WINDOW_ID when set.
func grabArgs(mode types.RecordingMode) []string {
	switch runtime.GOOS {
	case "darwin":
		screen := envOrDefault("INFRAME_SCREEN_INDEX", "1")
		return []string{"-f", "avfoundation", "-framerate", "30", "-i", screen + ":none"}
	case "windows":
		return []string{"-f", "gdigrab", "-framerate", "30", "-i", "desktop"}
	default:
		args := []string{"-f", "x11grab", "-framerate", "30"}
		if mode == types.RecordingModeWindowOnly {
			if id := os.Getenv("INFRAME_WINDOW_ID"); id != "" {
				args = append(args, "-window_id", id)
			}
		}
		return append(args, "-i", envOrDefault("DISPLAY", ":0"))
	}
}

// activeWindowTitle resolves the focused window's title where the
// platform allows it. Returns false when no resolver is available.
func activeWindowTitle(ctx context.Context) (string, bool) {
	if runtime.GOOS != "linux" {
		return "", false
	}
	if _, err := exec.LookPath("xdotool"); err != nil {
		return "", false
	}
	out, err := exec.CommandContext(ctx, "xdotool", "getactivewindow", "getwindowname").Output()
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(out)), true
}

// listSegments returns completed-or-in-progress segment files, sorted by
// segment index.
func listSegments(dir string) ([]int, []string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil
	}

	type segment struct {
		index int
		path  string
	}
	var segments []segment
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, segmentPrefix) || !strings.HasSuffix(name, segmentExt) {
			continue
		}
		raw := strings.TrimSuffix(strings.TrimPrefix(name, segmentPrefix), segmentExt)
		index, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		segments = append(segments, segment{index: index, path: filepath.Join(dir, name)})
	}

	sort.Slice(segments, func(i, j int) bool { return segments[i].index < segments[j].index })

	indexes := make([]int, len(segments))
	paths := make([]string, len(segments))
	for i, s := range segments {
		indexes[i] = s.index
		paths[i] = s.path
	}
	return indexes, paths
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
