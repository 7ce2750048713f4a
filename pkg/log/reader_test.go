package log

import (
	"io"
	"path/filepath"
	"testing"
	"time"
)

func createTestTrace(t *testing.T, events []Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.ptrace")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create test trace: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

func readAll(t *testing.T, r *Reader) []Event {
	t.Helper()
	var out []Event
	for {
		ev, err := r.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		out = append(out, ev)
	}
}

func sampleEvents(base time.Time) []Event {
	return []Event{
		{Timestamp: base, RunID: "a", Category: CategoryRun, Run: &RunEvent{Phase: RunStart, SVDFile: "dev.svd"}},
		{Timestamp: base.Add(time.Millisecond), RunID: "a", Category: CategoryDirective, Scope: ScopePeripheral,
			Path: "GPIOA", Directive: &DirectiveEvent{Directive: "_modify", Spec: "MODER"}},
		{Timestamp: base.Add(2 * time.Millisecond), RunID: "a", Category: CategoryWarning, Scope: ScopeRegister,
			Path: "GPIOA/MODER", Warning: &WarningEvent{Directive: "_merge", Message: "gap"}},
		{Timestamp: base.Add(3 * time.Millisecond), RunID: "b", Category: CategoryDirective, Scope: ScopeRegister,
			Path: "RCC/CR", Directive: &DirectiveEvent{Directive: "_merge"}},
		{Timestamp: base.Add(4 * time.Millisecond), RunID: "b", Category: CategoryError,
			Error: &ErrorEventData{Kind: "match", Message: "no match"}},
	}
}

func TestReaderIteratesEvents(t *testing.T) {
	base := time.Now()
	path := createTestTrace(t, sampleEvents(base))

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	events := readAll(t, reader)
	if len(events) != 5 {
		t.Fatalf("got %d events, want 5", len(events))
	}
	if events[0].Run == nil || events[0].Run.SVDFile != "dev.svd" {
		t.Errorf("first event: got %+v, want run start for dev.svd", events[0])
	}
	if !events[1].Timestamp.Equal(base.Add(time.Millisecond)) {
		t.Errorf("timestamp lost precision: %v", events[1].Timestamp)
	}
}

func TestReaderFilters(t *testing.T) {
	base := time.Now()
	path := createTestTrace(t, sampleEvents(base))

	directive := CategoryDirective
	register := ScopeRegister
	start := base.Add(time.Millisecond)
	end := base.Add(3 * time.Millisecond)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"run", Filter{RunID: "b"}, 2},
		{"category", Filter{Category: &directive}, 2},
		{"scope", Filter{Scope: &register}, 2},
		{"directive", Filter{Directive: "_merge"}, 2},
		{"path", Filter{PathPrefix: "GPIOA"}, 2},
		{"time", Filter{TimeStart: &start, TimeEnd: &end}, 2},
		{"combined", Filter{RunID: "a", Directive: "_merge"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader, err := NewFilteredReader(path, tt.filter)
			if err != nil {
				t.Fatalf("NewFilteredReader failed: %v", err)
			}
			defer reader.Close()

			if got := len(readAll(t, reader)); got != tt.want {
				t.Errorf("got %d events, want %d", got, tt.want)
			}
		})
	}
}

func TestReaderMissingFile(t *testing.T) {
	if _, err := NewReader(filepath.Join(t.TempDir(), "missing.ptrace")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestCollectStats(t *testing.T) {
	base := time.Now()
	d := 5 * time.Millisecond
	events := append(sampleEvents(base),
		Event{Timestamp: base.Add(5 * time.Millisecond), RunID: "a", Category: CategoryRun,
			Run: &RunEvent{Phase: RunEnd, Duration: &d}},
		Event{Timestamp: base.Add(6 * time.Millisecond), RunID: "b", Category: CategoryRun,
			Run: &RunEvent{Phase: RunEnd, Duration: &d, Failed: true}},
	)
	path := createTestTrace(t, events)

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	stats, err := Collect(reader)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if stats.Runs != 2 || stats.FailedRuns != 1 {
		t.Errorf("runs: got %d/%d failed, want 2/1", stats.Runs, stats.FailedRuns)
	}
	if stats.Warnings != 1 {
		t.Errorf("warnings: got %d, want 1", stats.Warnings)
	}
	if stats.ErrorsByKind["match"] != 1 {
		t.Errorf("errors: got %v", stats.ErrorsByKind)
	}
	if stats.TotalTime != 10*time.Millisecond {
		t.Errorf("total time: got %v", stats.TotalTime)
	}
	names := stats.DirectiveNames()
	if len(names) != 2 || names[0] != "_merge" {
		t.Errorf("directive names: got %v", names)
	}
}
