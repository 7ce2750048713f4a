package log

import (
	"os"
	"sync"
)

// FileLogger appends trace records to a file. A new or empty file gets a
// header first. It is safe for concurrent use from multiple goroutines.
type FileLogger struct {
	file   *os.File
	w      *recordWriter
	mu     sync.Mutex
	closed bool

	// dropped counts events that could not be written.
	dropped int
}

// NewFileLogger creates a FileLogger writing to path. Existing traces are
// appended to, so several runs can share one file.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	w := newRecordWriter(f)
	if info.Size() == 0 {
		if err := w.writeHeader(NewHeader()); err != nil {
			f.Close()
			return nil, err
		}
	}
	return &FileLogger{file: f, w: w}, nil
}

// Log appends an event. Write errors are counted, not returned, so that
// tracing never fails a patch run.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	if err := l.w.writeEvent(event); err != nil {
		l.dropped++
	}
}

// Dropped returns the number of events that failed to write.
func (l *FileLogger) Dropped() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Close closes the trace file. Later Log calls are ignored.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

var _ Logger = (*FileLogger)(nil)
