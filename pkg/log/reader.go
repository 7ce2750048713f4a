package log

import (
	"os"
	"strings"
	"time"
)

// Filter specifies criteria for selecting trace events.
// Empty/nil fields match all events for that criterion.
type Filter struct {
	// RunID filters by exact run ID.
	RunID string

	// Category filters by event category.
	Category *Category

	// Scope filters by tree level.
	Scope *Scope

	// Directive filters directive and warning events by rule key.
	Directive string

	// PathPrefix keeps events whose path starts with the prefix.
	PathPrefix string

	// TimeStart filters events at or after this time.
	TimeStart *time.Time

	// TimeEnd filters events before this time.
	TimeEnd *time.Time
}

func (f *Filter) matches(event Event) bool {
	if f.RunID != "" && event.RunID != f.RunID {
		return false
	}
	if f.Category != nil && event.Category != *f.Category {
		return false
	}
	if f.Scope != nil && event.Scope != *f.Scope {
		return false
	}
	if f.Directive != "" {
		switch {
		case event.Directive != nil && event.Directive.Directive == f.Directive:
		case event.Warning != nil && event.Warning.Directive == f.Directive:
		default:
			return false
		}
	}
	if f.PathPrefix != "" && !strings.HasPrefix(event.Path, f.PathPrefix) {
		return false
	}
	if f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart) {
		return false
	}
	if f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd) {
		return false
	}
	return true
}

// Reader streams trace events from a trace file.
type Reader struct {
	file   *os.File
	rr     *recordReader
	filter Filter
}

// NewReader creates a Reader over all events of the trace file.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader creates a Reader that yields events matching filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{
		file:   f,
		rr:     newRecordReader(f),
		filter: filter,
	}, nil
}

// Next returns the next matching event, or io.EOF at the end of the file.
func (r *Reader) Next() (Event, error) {
	for {
		event, err := r.rr.next()
		if err != nil {
			return Event{}, err
		}
		if r.filter.matches(event) {
			return event, nil
		}
	}
}

// Header returns the last header read, or nil before the first event.
func (r *Reader) Header() *Header {
	return r.rr.header
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
