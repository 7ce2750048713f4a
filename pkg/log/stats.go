package log

import (
	"errors"
	"io"
	"sort"
	"time"
)

// Stats summarizes a trace.
type Stats struct {
	Runs         int
	FailedRuns   int
	Events       int
	Warnings     int
	Directives   map[string]int
	ErrorsByKind map[string]int
	TotalTime    time.Duration
	FirstEvent   time.Time
	LastEvent    time.Time
}

// DirectiveNames returns the directive keys of s.Directives, most
// frequent first.
func (s *Stats) DirectiveNames() []string {
	names := make([]string, 0, len(s.Directives))
	for n := range s.Directives {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		if s.Directives[names[i]] != s.Directives[names[j]] {
			return s.Directives[names[i]] > s.Directives[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}

// Collect reads every event from r and summarizes them.
func Collect(r *Reader) (*Stats, error) {
	s := &Stats{
		Directives:   make(map[string]int),
		ErrorsByKind: make(map[string]int),
	}
	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			return s, nil
		}
		if err != nil {
			return s, err
		}
		s.add(ev)
	}
}

func (s *Stats) add(ev Event) {
	s.Events++
	if s.FirstEvent.IsZero() || ev.Timestamp.Before(s.FirstEvent) {
		s.FirstEvent = ev.Timestamp
	}
	if ev.Timestamp.After(s.LastEvent) {
		s.LastEvent = ev.Timestamp
	}
	switch {
	case ev.Run != nil:
		if ev.Run.Phase != RunEnd {
			return
		}
		s.Runs++
		if ev.Run.Failed {
			s.FailedRuns++
		}
		if ev.Run.Duration != nil {
			s.TotalTime += *ev.Run.Duration
		}
	case ev.Directive != nil:
		s.Directives[ev.Directive.Directive]++
	case ev.Warning != nil:
		s.Warnings++
	case ev.Error != nil:
		s.ErrorsByKind[ev.Error.Kind]++
	}
}
