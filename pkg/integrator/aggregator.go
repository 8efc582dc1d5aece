package integrator

import (
	"strings"
	"sync"
)

// Aggregator merges the narratives of all sessions into one context
// document and pushes it to a sink whenever any session updates. Sections
// keep the order in which their sessions first reported.
type Aggregator struct {
	mu       sync.Mutex
	order    []string
	sections map[string]string
	sink     func(combined string)
}

// NewAggregator creates an aggregator publishing to sink. A nil sink
// keeps the aggregator usable as a plain combiner.
func NewAggregator(sink func(combined string)) *Aggregator {
	return &Aggregator{
		sections: make(map[string]string),
		sink:     sink,
	}
}

// Update replaces the narrative section of one session and publishes the
// combined document.
func (g *Aggregator) Update(sessionID, narrative string) {
	g.mu.Lock()
	if _, known := g.sections[sessionID]; !known {
		g.order = append(g.order, sessionID)
	}
	g.sections[sessionID] = narrative
	combined, sink := g.combinedLocked(), g.sink
	g.mu.Unlock()

	if sink != nil {
		sink(combined)
	}
}

// Remove drops a session's section without publishing. Used when a
// session is deleted rather than stopped.
func (g *Aggregator) Remove(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, known := g.sections[sessionID]; !known {
		return
	}
	delete(g.sections, sessionID)
	for i, id := range g.order {
		if id == sessionID {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
}

// Combined returns the current merged document.
func (g *Aggregator) Combined() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.combinedLocked()
}

func (g *Aggregator) combinedLocked() string {
	parts := make([]string, 0, len(g.order))
	for _, id := range g.order {
		if section := strings.TrimSpace(g.sections[id]); section != "" {
			parts = append(parts, section)
		}
	}
	return strings.Join(parts, "\n\n")
}
