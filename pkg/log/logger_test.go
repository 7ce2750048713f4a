package log

import (
	"testing"
	"time"
)

type recordingLogger struct {
	events []Event
}

func (r *recordingLogger) Log(event Event) {
	r.events = append(r.events, event)
}

func TestNoopLogger(t *testing.T) {
	var l Logger = NoopLogger{}
	l.Log(Event{Timestamp: time.Now(), RunID: "x"})
}

func TestMultiLoggerCallsAll(t *testing.T) {
	r1, r2 := &recordingLogger{}, &recordingLogger{}
	multi := NewMultiLogger(r1, nil, r2)

	multi.Log(Event{Timestamp: time.Now(), RunID: "run-1", Category: CategoryRun})

	for i, r := range []*recordingLogger{r1, r2} {
		if len(r.events) != 1 {
			t.Errorf("logger %d: got %d events, want 1", i, len(r.events))
			continue
		}
		if r.events[0].RunID != "run-1" {
			t.Errorf("logger %d: RunID = %q", i, r.events[0].RunID)
		}
	}
}

func TestMultiLoggerEmpty(t *testing.T) {
	NewMultiLogger().Log(Event{RunID: "x"})
}

func TestCategoryAndScopeNames(t *testing.T) {
	if CategoryWarning.String() != "WARNING" {
		t.Errorf("CategoryWarning = %q", CategoryWarning.String())
	}
	if Category(99).String() != "UNKNOWN" {
		t.Errorf("unknown category = %q", Category(99).String())
	}
	if ScopeCluster.String() != "CLUSTER" {
		t.Errorf("ScopeCluster = %q", ScopeCluster.String())
	}
	if RunEnd.String() != "END" {
		t.Errorf("RunEnd = %q", RunEnd.String())
	}
}
