package log

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestFileLoggerCreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.ptrace")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	defer logger.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("trace file was not created")
	}
}

func TestFileLoggerWritesCBOR(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.ptrace")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	event := Event{
		Timestamp: time.Now(),
		RunID:     "run-123",
		Category:  CategoryDirective,
		Scope:     ScopeRegister,
		Path:      "GPIOA/MODER",
		Directive: &DirectiveEvent{
			Directive: "_merge",
			Spec:      "MODER*",
			Matched:   []string{"MODER0", "MODER1"},
		},
	}

	logger.Log(event)
	if n := logger.Dropped(); n != 0 {
		t.Errorf("Dropped: got %d, want 0", n)
	}
	logger.Close()

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	decoded, err := reader.Next()
	if err != nil {
		t.Fatalf("failed to decode event: %v", err)
	}
	if h := reader.Header(); h == nil || h.Format != FormatName {
		t.Errorf("header: got %+v", h)
	}
	if decoded.RunID != event.RunID {
		t.Errorf("RunID: got %q, want %q", decoded.RunID, event.RunID)
	}
	if decoded.Directive == nil {
		t.Fatal("Directive is nil")
	}
	if len(decoded.Directive.Matched) != 2 {
		t.Errorf("Matched: got %v, want 2 names", decoded.Directive.Matched)
	}
}

func TestFileLoggerAppends(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.ptrace")

	for _, id := range []string{"run-1", "run-2"} {
		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("NewFileLogger failed: %v", err)
		}
		logger.Log(Event{Timestamp: time.Now(), RunID: id, Category: CategoryRun, Run: &RunEvent{Phase: RunStart}})
		logger.Close()
	}

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	var ids []string
	for {
		ev, err := reader.Next()
		if err != nil {
			break
		}
		ids = append(ids, ev.RunID)
	}
	if len(ids) != 2 || ids[0] != "run-1" || ids[1] != "run-2" {
		t.Errorf("got run IDs %v, want [run-1 run-2]", ids)
	}
}

func TestFileLoggerConcurrentWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.ptrace")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				logger.Log(Event{Timestamp: time.Now(), RunID: "run", Category: CategoryDirective,
					Directive: &DirectiveEvent{Directive: "_modify"}})
			}
		}()
	}
	wg.Wait()
	logger.Close()

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	stats, err := Collect(reader)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if stats.Events != 200 {
		t.Errorf("got %d events, want 200", stats.Events)
	}
}

func TestFileLoggerIgnoresLogAfterClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.ptrace")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close returned %v", err)
	}
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read trace file: %v", err)
	}

	logger.Log(Event{Timestamp: time.Now(), RunID: "late"})

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read trace file: %v", err)
	}
	if len(after) != len(before) {
		t.Errorf("trace file grew from %d to %d bytes after closed Log", len(before), len(after))
	}
}

func TestFileLoggerWritesHeaderOnce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.ptrace")

	sizes := make([]int64, 0, 2)
	for i := 0; i < 2; i++ {
		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("NewFileLogger failed: %v", err)
		}
		logger.Close()
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("Stat failed: %v", err)
		}
		sizes = append(sizes, info.Size())
	}
	if sizes[0] == 0 {
		t.Error("new trace file has no header")
	}
	if sizes[1] != sizes[0] {
		t.Errorf("reopening added %d bytes", sizes[1]-sizes[0])
	}
}
