package config

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/AaronLay10/questgraph/internal/events"
)

func lastEvent(name string) (events.Event, bool) {
	snap := events.Snapshot()
	for i := len(snap) - 1; i >= 0; i-- {
		if snap[i].Name == name {
			return snap[i], true
		}
	}
	return events.Event{}, false
}

func TestGraphWatcherCheckEmitsResult(t *testing.T) {
	events.Clear()
	path := writeFile(t, "graph.yaml", "name: village\n")

	fail := errors.New("unknown target Nowhere")
	var calls []error
	w := NewGraphWatcher(path, func(string) error { return fail }, nil)
	w.OnChange(func(err error) { calls = append(calls, err) })

	if err := w.Check(); !errors.Is(err, fail) {
		t.Fatalf("Check() = %v, want %v", err, fail)
	}
	e, ok := lastEvent("graph.file_changed")
	if !ok {
		t.Fatal("graph.file_changed not emitted")
	}
	if e.Fields["valid"] != false || e.Fields["error"] != fail.Error() {
		t.Errorf("fields = %v", e.Fields)
	}
	if len(calls) != 1 || calls[0] != fail {
		t.Errorf("callbacks = %v", calls)
	}
}

func TestGraphWatcherSeesWrites(t *testing.T) {
	events.Clear()
	path := writeFile(t, "graph.yaml", "name: village\n")

	changed := make(chan error, 4)
	w := NewGraphWatcher(path, func(string) error { return nil }, nil)
	w.OnChange(func(err error) { changed <- err })

	stop, err := w.Watch()
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer stop()

	if err := os.WriteFile(path, []byte("name: town\n"), 0644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	select {
	case err := <-changed:
		if err != nil {
			t.Errorf("expected valid result, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for change notification")
	}

	e, ok := lastEvent("graph.file_changed")
	if !ok || e.Fields["valid"] != true {
		t.Errorf("expected valid graph.file_changed, got %+v", e)
	}
	stop()
	stop()
}
