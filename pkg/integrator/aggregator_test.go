package integrator

import (
	"strings"
	"sync"
	"testing"
)

func TestAggregator_CombinesInFirstReportOrder(t *testing.T) {
	agg := NewAggregator(nil)

	agg.Update("session-b", "narrative of b")
	agg.Update("session-a", "narrative of a")
	agg.Update("session-b", "updated narrative of b")

	combined := agg.Combined()
	first := strings.Index(combined, "updated narrative of b")
	second := strings.Index(combined, "narrative of a")

	if first == -1 || second == -1 {
		t.Fatalf("Combined() missing sections: %q", combined)
	}
	if first > second {
		t.Errorf("sections out of first-report order: %q", combined)
	}
	if strings.Contains(combined, "narrative of b\n") && !strings.Contains(combined, "updated") {
		t.Errorf("Update() did not replace the old section: %q", combined)
	}
}

func TestAggregator_PublishesToSink(t *testing.T) {
	var mu sync.Mutex
	var published []string
	agg := NewAggregator(func(combined string) {
		mu.Lock()
		defer mu.Unlock()
		published = append(published, combined)
	})

	agg.Update("session-a", "first")
	agg.Update("session-a", "second")

	mu.Lock()
	defer mu.Unlock()
	if len(published) != 2 {
		t.Fatalf("sink called %d times, want 2", len(published))
	}
	if published[0] != "first" || published[1] != "second" {
		t.Errorf("published = %v", published)
	}
}

func TestAggregator_SkipsEmptySections(t *testing.T) {
	agg := NewAggregator(nil)

	agg.Update("session-a", "")
	agg.Update("session-b", "only b")

	if got := agg.Combined(); got != "only b" {
		t.Errorf("Combined() = %q, want %q", got, "only b")
	}
}

func TestAggregator_Remove(t *testing.T) {
	agg := NewAggregator(nil)

	agg.Update("session-a", "a")
	agg.Update("session-b", "b")
	agg.Remove("session-a")

	if got := agg.Combined(); got != "b" {
		t.Errorf("Combined() = %q, want %q", got, "b")
	}

	// Removing an unknown session is a no-op.
	agg.Remove("session-c")
	if got := agg.Combined(); got != "b" {
		t.Errorf("Combined() after no-op remove = %q, want %q", got, "b")
	}
}
