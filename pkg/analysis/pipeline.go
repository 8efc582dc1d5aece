package analysis

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	apperrors "github.com/inframehq/inframe/pkg/errors"
	"github.com/inframehq/inframe/pkg/logging"
	"github.com/inframehq/inframe/pkg/types"
)

// Status reports pipeline progress counters.
type Status struct {
	Processed int
	Failures  int
}

// Pipeline consumes clips from a capture pipeline, extracts a
// representative frame from each and feeds it to the analyzer. Analyses
// are delivered to the sink in clip order, from a single worker.
type Pipeline struct {
	analyzer Analyzer
	sink     func(types.Analysis)
	logger   *logging.Logger
	frameFn  func(ctx context.Context, clipPath string) (string, error)

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	processed int
	failures  int
}

// NewPipeline creates a pipeline delivering analyses to sink.
func NewPipeline(analyzer Analyzer, sink func(types.Analysis), logger *logging.Logger) *Pipeline {
	return &Pipeline{
		analyzer: analyzer,
		sink:     sink,
		logger:   logger,
		frameFn:  extractFrame,
	}
}

// Start begins consuming clips. The worker runs until the clips channel
// closes or Stop cancels it; ctx only bounds the Start call itself.
func (p *Pipeline) Start(ctx context.Context, clips <-chan types.Clip, task string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return apperrors.Newf(apperrors.ErrCodeDependencyStart, "analysis pipeline already running")
	}
	if clips == nil {
		return apperrors.Newf(apperrors.ErrCodeDependencyStart, "analysis pipeline needs a clip source")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.running = true
	p.cancel = cancel
	p.done = done

	go p.consume(runCtx, clips, task, done)

	return nil
}

// Stop halts the worker promptly. Clips still queued on the channel are
// discarded, not analyzed. ctx bounds the wait for the in-flight clip.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}

// Status returns progress counters. Safe to call while running.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{Processed: p.processed, Failures: p.failures}
}

func (p *Pipeline) consume(ctx context.Context, clips <-chan types.Clip, task string, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case clip, ok := <-clips:
			if !ok {
				return
			}

			analysis, err := p.processClip(ctx, clip, task)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				p.logger.Warnf("clip %s analysis failed: %v", clip.ID, err)
				p.mu.Lock()
				p.failures++
				p.mu.Unlock()
				continue
			}

			p.mu.Lock()
			p.processed++
			p.mu.Unlock()
			p.sink(analysis)
		}
	}
}

func (p *Pipeline) processClip(ctx context.Context, clip types.Clip, task string) (types.Analysis, error) {
	dataURL, err := p.frameFn(ctx, clip.Path)
	if err != nil {
		return types.Analysis{}, err
	}

	analysis, err := p.analyzer.AnalyzeFrame(ctx, FrameRequest{
		ClipID:       clip.ID,
		ImageDataURL: dataURL,
		Task:         task,
	})
	if err != nil {
		return types.Analysis{}, err
	}

	analysis.ClipID = clip.ID
	if analysis.CreatedAt.IsZero() {
		analysis.CreatedAt = time.Now()
	}
	return analysis, nil
}

// extractFrame pulls a frame from near the end of the clip, so the most
// recent screen state is described, and encodes it as a JPEG data URL.
func extractFrame(ctx context.Context, clipPath string) (string, error) {
	framePath := clipPath + ".frame.jpg"
	defer os.Remove(framePath)

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-hide_banner", "-loglevel", "error", "-y",
		"-sseof", "-1", "-i", clipPath,
		"-frames:v", "1", "-q:v", "3",
		framePath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("frame extraction failed: %v (%s)", err, strings.TrimSpace(string(out)))
	}

	data, err := os.ReadFile(framePath)
	if err != nil {
		return "", fmt.Errorf("failed to read extracted frame: %w", err)
	}

	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data), nil
}
