// Package integrator folds per-clip analyses into a rolling narrative of
// a recording session, compacting older material to stay within a token
// budget.
package integrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/inframehq/inframe/pkg/analysis"
	"github.com/inframehq/inframe/pkg/logging"
	"github.com/inframehq/inframe/pkg/types"
)

const (
	// sessionMarker opens every recording session inside the narrative.
	// Consumers locate sessions by matching this prefix, so it must stay
	// at the start of its own line.
	sessionMarker = "NEW RECORDING SESSION"

	defaultTokenBudget = 8000

	// summaryTokens bounds an exported session summary.
	summaryTokens = 500

	compactionTimeout = 30 * time.Second
)

// UpdateFunc is notified with the full narrative after every change.
type UpdateFunc func(narrative string)

// Status reports integrator progress for one session.
type Status struct {
	ClipsIntegrated int
	Speakers        []string
	SessionSeconds  float64
}

// NarrativeIntegrator accumulates clip analyses for one session. All
// methods are safe for concurrent use; Append is called from the analysis
// worker while Status and Narrative serve reads.
type NarrativeIntegrator struct {
	sessionID string
	analyzer  analysis.Analyzer
	tokenizer *analysis.Tokenizer
	logger    *logging.Logger
	now       func() time.Time

	mu         sync.Mutex
	budget     int
	onUpdate   UpdateFunc
	started    bool
	startedAt  time.Time
	blocks     []string
	speakers   []string
	speakerSet map[string]struct{}
	clips      int
}

// New creates an integrator for the given session. The analyzer is used
// for narrative compaction and summaries.
func New(sessionID string, analyzer analysis.Analyzer, logger *logging.Logger) *NarrativeIntegrator {
	return &NarrativeIntegrator{
		sessionID:  sessionID,
		analyzer:   analyzer,
		tokenizer:  analysis.NewTokenizer(),
		logger:     logger,
		now:        time.Now,
		budget:     defaultTokenBudget,
		speakerSet: make(map[string]struct{}),
	}
}

// SetOnUpdate registers the callback invoked with the full narrative after
// every change. Must be called before Start.
func (n *NarrativeIntegrator) SetOnUpdate(fn UpdateFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onUpdate = fn
}

// SetTokenBudget overrides the narrative token budget.
func (n *NarrativeIntegrator) SetTokenBudget(budget int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if budget > 0 {
		n.budget = budget
	}
}

// Start opens a new session block in the narrative. Starting again after
// Stop appends a fresh marker, keeping earlier blocks intact.
func (n *NarrativeIntegrator) Start(ctx context.Context) error {
	n.mu.Lock()

	now := n.now()
	n.started = true
	n.startedAt = now
	n.blocks = append(n.blocks,
		fmt.Sprintf("%s %s %s\nContext Recording Session - %s",
			sessionMarker,
			now.Format(time.RFC3339),
			shortID(n.sessionID),
			now.Format("2006-01-02 15:04:05"),
		),
	)

	narrative, fn := n.narrativeLocked(), n.onUpdate
	n.mu.Unlock()

	notify(fn, narrative)
	return nil
}

// Stop closes the session block. The narrative is kept so it can still be
// read, exported, or extended by a restart.
func (n *NarrativeIntegrator) Stop(ctx context.Context) error {
	n.mu.Lock()
	if !n.started {
		n.mu.Unlock()
		return nil
	}
	n.started = false
	narrative, fn := n.narrativeLocked(), n.onUpdate
	n.mu.Unlock()

	notify(fn, narrative)
	return nil
}

// Append folds one clip analysis into the narrative. Analyses arriving
// before Start or after Stop are dropped.
func (n *NarrativeIntegrator) Append(a types.Analysis) {
	n.mu.Lock()

	if !n.started {
		n.mu.Unlock()
		return
	}

	at := a.CreatedAt
	if at.IsZero() {
		at = n.now()
	}

	block := fmt.Sprintf("[%s] %s", at.Format("15:04:05"), strings.TrimSpace(a.Text))
	if len(a.Speakers) > 0 {
		block += "\nSpeakers present: " + strings.Join(a.Speakers, ", ")
	}
	n.blocks = append(n.blocks, block)
	n.clips++

	for _, speaker := range a.Speakers {
		key := strings.ToLower(speaker)
		if _, seen := n.speakerSet[key]; seen {
			continue
		}
		n.speakerSet[key] = struct{}{}
		n.speakers = append(n.speakers, speaker)
	}

	n.compactLocked()

	narrative, fn := n.narrativeLocked(), n.onUpdate
	n.mu.Unlock()

	notify(fn, narrative)
}

// Narrative returns the current narrative text.
func (n *NarrativeIntegrator) Narrative() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.narrativeLocked()
}

// Status reports progress counters for the session.
func (n *NarrativeIntegrator) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()

	var seconds float64
	if n.started {
		seconds = n.now().Sub(n.startedAt).Seconds()
	}
	return Status{
		ClipsIntegrated: n.clips,
		Speakers:        append([]string(nil), n.speakers...),
		SessionSeconds:  seconds,
	}
}

// ExportSummary produces a compact summary of the whole narrative.
func (n *NarrativeIntegrator) ExportSummary(ctx context.Context) (string, error) {
	narrative := n.Narrative()
	if strings.TrimSpace(narrative) == "" {
		return "", nil
	}

	summary, err := n.analyzer.Summarize(ctx, narrative, summaryTokens)
	if err != nil {
		return "", fmt.Errorf("session summary failed: %w", err)
	}
	return summary, nil
}

func (n *NarrativeIntegrator) narrativeLocked() string {
	return strings.Join(n.blocks, "\n\n")
}

// compactLocked rewrites the narrative when it exceeds the token budget.
// The model compaction preserves recent events; if it fails, the oldest
// text is cut instead. The latest session marker line survives compaction
// so consumers can still locate the session. Must be called with the
// mutex held.
func (n *NarrativeIntegrator) compactLocked() {
	narrative := n.narrativeLocked()
	if n.tokenizer.Count(narrative) <= n.budget {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), compactionTimeout)
	defer cancel()

	target := n.budget / 2
	compacted, err := n.analyzer.Summarize(ctx, narrative, target)
	if err != nil || strings.TrimSpace(compacted) == "" {
		if err != nil {
			n.logger.Warnf("narrative compaction failed, truncating instead: %v", err)
		}
		compacted = n.tokenizer.Truncate(narrative, target)
	}

	if marker := n.latestMarkerLocked(); marker != "" {
		n.blocks = []string{marker, compacted}
	} else {
		n.blocks = []string{compacted}
	}
}

// latestMarkerLocked returns the most recent session marker block, or ""
// when none exists. Must be called with the mutex held.
func (n *NarrativeIntegrator) latestMarkerLocked() string {
	for i := len(n.blocks) - 1; i >= 0; i-- {
		if strings.HasPrefix(n.blocks[i], sessionMarker) {
			return n.blocks[i]
		}
	}
	return ""
}

func notify(fn UpdateFunc, narrative string) {
	if fn == nil {
		return
	}
	fn(narrative)
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
