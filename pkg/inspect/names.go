package inspect

import (
	"errors"
	"fmt"
	"strings"

	"github.com/svdpatch/svdpatch-go/pkg/match"
)

// ErrNotFound is returned when a path segment names no element.
var ErrNotFound = errors.New("not found")

// NotFoundError reports a path segment that names no element, with close
// names to try instead.
type NotFoundError struct {
	Kind        string
	Name        string
	Parent      string
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("%s %s not found", e.Kind, e.Name)
	if e.Parent != "" {
		msg += " in " + e.Parent
	}
	if len(e.Suggestions) > 0 {
		msg += "; did you mean " + strings.Join(e.Suggestions, ", ") + "?"
	}
	return msg
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// lookup finds the item called name, exactly first, then ignoring case.
func lookup[T any](items []T, name string, nameOf func(T) string) (T, bool) {
	for _, it := range items {
		if nameOf(it) == name {
			return it, true
		}
	}
	for _, it := range items {
		if strings.EqualFold(nameOf(it), name) {
			return it, true
		}
	}
	var zero T
	return zero, false
}

func notFound[T any](kind, name, parent string, items []T, nameOf func(T) string) error {
	candidates := make([]string, len(items))
	for i, it := range items {
		candidates[i] = nameOf(it)
	}
	return &NotFoundError{
		Kind:        kind,
		Name:        name,
		Parent:      parent,
		Suggestions: match.Suggest(match.Parse(name), candidates),
	}
}
