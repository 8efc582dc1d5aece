// Package query runs named, interval-driven natural-language queries
// against a session's live context and dispatches each result to a
// caller-supplied callback. Callbacks may stop their own query and start
// another, which is how monitoring logic chains detection stages.
package query

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/inframehq/inframe/pkg/analysis"
	apperrors "github.com/inframehq/inframe/pkg/errors"
	"github.com/inframehq/inframe/pkg/logging"
	"github.com/inframehq/inframe/pkg/types"
)

// Callback receives every evaluation result of a polling query, failed
// ones included. Interpreting the answer and its confidence is the
// callback's business. A returned error or a panic is logged and never
// terminates the query loop.
type Callback func(types.Result) error

// ContextSource supplies the live context text queries evaluate against.
// *recorder.Registry satisfies it.
type ContextSource interface {
	HasSession(id string) bool
	CurrentContext(ctx context.Context, sessionID string) (string, error)
}

// Query is one registered polling definition. Queries are created through
// Engine.Define and driven through Engine.Start and Engine.Stop.
type Query struct {
	id        string
	prompt    string
	sessionID string
	callback  Callback
	interval  time.Duration

	mu     sync.Mutex
	state  types.QueryState
	cancel context.CancelFunc
}

// State returns the query's current lifecycle state.
func (q *Query) State() types.QueryState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Engine owns every polling query. Each active query runs its own loop
// goroutine; ticks of one query never overlap, ticks of different
// queries run independently.
type Engine struct {
	source   ContextSource
	analyzer analysis.Analyzer
	logger   *logging.Logger

	mu      sync.RWMutex
	queries map[string]*Query

	statsMu       sync.Mutex
	total         int
	successes     int
	failures      int
	confidenceSum float64
}

// NewEngine creates an engine evaluating queries against source.
func NewEngine(source ContextSource, analyzer analysis.Analyzer, logger *logging.Logger) *Engine {
	return &Engine{
		source:   source,
		analyzer: analyzer,
		logger:   logger,
		queries:  make(map[string]*Query),
	}
}

// Define registers a polling query against the given session. Nothing
// is evaluated until Start is called with the returned ID.
func (e *Engine) Define(prompt, sessionID string, callback Callback, interval time.Duration) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", apperrors.Newf(apperrors.ErrCodeInvalidConfig, "query prompt must not be empty")
	}
	if callback == nil {
		return "", apperrors.Newf(apperrors.ErrCodeInvalidConfig, "query callback must not be nil")
	}
	if interval <= 0 {
		return "", apperrors.Newf(apperrors.ErrCodeInvalidConfig, "query interval must be positive, got %s", interval)
	}
	if !e.source.HasSession(sessionID) {
		return "", apperrors.Newf(apperrors.ErrCodeSessionNotFound, "session %s not found", sessionID)
	}

	q := &Query{
		id:        uuid.New().String(),
		prompt:    prompt,
		sessionID: sessionID,
		callback:  callback,
		interval:  interval,
		state:     types.QueryStateCreated,
	}

	e.mu.Lock()
	e.queries[q.id] = q
	e.mu.Unlock()

	e.logger.Infof("query %s defined (session %s, every %s)", shortID(q.id), shortID(sessionID), interval)
	return q.id, nil
}

// Start begins the query's polling loop. Starting an already-active
// query is a no-op. The loop's lifetime is governed by Stop, not by the
// caller's context.
func (e *Engine) Start(ctx context.Context, id string) error {
	q, err := e.query(id)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.state == types.QueryStateActive {
		return nil
	}
	if !q.state.CanTransitionTo(types.QueryStateActive) {
		return fmt.Errorf("query %s cannot start from state %s", shortID(q.id), q.state)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	q.state = types.QueryStateActive
	q.cancel = cancel

	go e.run(runCtx, q)

	e.logger.Infof("query %s started", shortID(q.id))
	return nil
}

// Stop cancels the query's polling loop. Idempotent, and safe to call
// from within the query's own callback: the current dispatch completes,
// and no further tick fires after that.
func (e *Engine) Stop(id string) error {
	q, err := e.query(id)
	if err != nil {
		return err
	}

	q.mu.Lock()
	if q.state != types.QueryStateActive {
		q.mu.Unlock()
		return nil
	}
	q.state = types.QueryStateStopped
	cancel := q.cancel
	q.cancel = nil
	q.mu.Unlock()

	cancel()
	e.logger.Infof("query %s stopped", shortID(q.id))
	return nil
}

// ShutdownAll stops every registered query regardless of its state.
// Per-query failures are isolated and aggregated so one stuck query
// never blocks the others.
func (e *Engine) ShutdownAll() error {
	e.mu.RLock()
	ids := make([]string, 0, len(e.queries))
	for id := range e.queries {
		ids = append(ids, id)
	}
	e.mu.RUnlock()
	sort.Strings(ids)

	var result *multierror.Error
	for _, id := range ids {
		if err := e.Stop(id); err != nil {
			result = multierror.Append(result, fmt.Errorf("query %s: %w", shortID(id), err))
		}
	}

	e.logger.Infof("query engine shut down (%d queries)", len(ids))
	return result.ErrorOrNil()
}

// Ask evaluates a single question against the session's current context
// and returns the result immediately, without registering a query.
// Analysis failures are reported inside the result, not as an error.
func (e *Engine) Ask(ctx context.Context, sessionID, question string) (*types.Result, error) {
	if strings.TrimSpace(question) == "" {
		return nil, apperrors.Newf(apperrors.ErrCodeInvalidConfig, "question must not be empty")
	}
	if !e.source.HasSession(sessionID) {
		return nil, apperrors.Newf(apperrors.ErrCodeSessionNotFound, "session %s not found", sessionID)
	}

	result := e.ask(ctx, sessionID, question)
	e.record(result)
	return &result, nil
}

// AskMany evaluates several questions concurrently against the same
// session. Results come back in question order.
func (e *Engine) AskMany(ctx context.Context, sessionID string, questions []string) ([]*types.Result, error) {
	for _, question := range questions {
		if strings.TrimSpace(question) == "" {
			return nil, apperrors.Newf(apperrors.ErrCodeInvalidConfig, "question must not be empty")
		}
	}
	if !e.source.HasSession(sessionID) {
		return nil, apperrors.Newf(apperrors.ErrCodeSessionNotFound, "session %s not found", sessionID)
	}

	results := make([]*types.Result, len(questions))
	var wg sync.WaitGroup
	for i, question := range questions {
		wg.Add(1)
		go func(i int, question string) {
			defer wg.Done()
			result := e.ask(ctx, sessionID, question)
			e.record(result)
			results[i] = &result
		}(i, question)
	}
	wg.Wait()

	return results, nil
}

// Stats reports evaluation counters across all queries and one-shot
// asks. Average confidence covers successful results only.
func (e *Engine) Stats() types.QueryStats {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()

	stats := types.QueryStats{
		TotalQueries:      e.total,
		SuccessfulQueries: e.successes,
		FailedQueries:     e.failures,
	}
	if e.successes > 0 {
		stats.AverageConfidence = e.confidenceSum / float64(e.successes)
	}
	return stats
}

// run is the polling loop, one goroutine per active query. Ticks are
// processed serially; a slow evaluation makes the ticker drop beats
// rather than overlap them.
func (e *Engine) run(ctx context.Context, q *Query) {
	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// A tick that raced Stop must not fire.
			if ctx.Err() != nil {
				return
			}
			result := e.ask(ctx, q.sessionID, q.prompt)
			e.record(result)
			e.dispatch(q, result)
		}
	}
}

// ask runs one evaluation: read the session's current context, put the
// question to the analyzer, shape the outcome into a Result. Failures
// land in the result's Err field.
func (e *Engine) ask(ctx context.Context, sessionID, question string) types.Result {
	result := types.Result{
		Question: question,
		AskedAt:  time.Now(),
	}

	contextText, err := e.source.CurrentContext(ctx, sessionID)
	if err != nil {
		result.Err = err.Error()
		return result
	}

	answer, err := e.analyzer.AnswerQuestion(ctx, analysis.QuestionRequest{
		Question: question,
		Context:  contextText,
	})
	if err != nil {
		result.Err = err.Error()
		return result
	}

	result.Answer = answer.Text
	result.Confidence = types.ClampConfidence(answer.Confidence)
	result.Success = true
	return result
}

func (e *Engine) dispatch(q *Query, result types.Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warnf("%v", apperrors.Newf(apperrors.ErrCodeCallback,
				"query %s callback panicked: %v", shortID(q.id), r))
		}
	}()

	if err := q.callback(result); err != nil {
		e.logger.Warnf("%v", apperrors.New(apperrors.ErrCodeCallback,
			fmt.Sprintf("query %s callback failed", shortID(q.id)), err))
	}
}

func (e *Engine) record(result types.Result) {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()

	e.total++
	if result.Success {
		e.successes++
		e.confidenceSum += result.Confidence
	} else {
		e.failures++
	}
}

func (e *Engine) query(id string) (*Query, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	q, ok := e.queries[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrCodeQueryNotFound, "query %s not found", id)
	}
	return q, nil
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
