package patch

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/svdpatch/svdpatch-go/pkg/match"
	"github.com/svdpatch/svdpatch-go/pkg/rules"
)

// Sentinel errors wrapped by *Error.
var (
	ErrNoMatch   = errors.New("specifier matched nothing")
	ErrExists    = errors.New("element already exists")
	ErrNotFound  = errors.New("referenced element not found")
	ErrMalformed = errors.New("malformed rule")
	ErrConflict  = errors.New("conflicting definitions")
)

// Kind classifies patch errors.
type Kind uint8

const (
	// KindMatch is a non-optional specifier that selected nothing.
	KindMatch Kind = iota + 1
	// KindStructural is a rule that cannot be applied to the tree as it is.
	KindStructural
	// KindReference is a derivedFrom or copy source that does not resolve.
	KindReference
)

func (k Kind) String() string {
	switch k {
	case KindMatch:
		return "match"
	case KindStructural:
		return "structural"
	case KindReference:
		return "reference"
	}
	return "unknown"
}

// Error is returned when a rule document cannot be applied. The first
// error aborts the run.
type Error struct {
	// Kind classifies the failure.
	Kind Kind

	// Path lists the enclosing scopes, outermost first, for example
	// "peripheral GPIOA", "register MODER".
	Path []string

	// Spec is the failing name specifier, if any.
	Spec string

	// Msg describes the failure.
	Msg string

	// Suggestions holds near misses for a specifier that matched nothing.
	Suggestions []string

	// Fragment is the YAML text of the failing directive. Only set when
	// Config.ShowPatchOnError is enabled.
	Fragment string

	// File and Line locate the failing directive in the rule documents.
	File string
	Line int

	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		if e.Line > 0 {
			b.WriteString(":")
			b.WriteString(strconv.Itoa(e.Line))
		}
		b.WriteString(": ")
	}
	if len(e.Path) > 0 {
		b.WriteString(strings.Join(e.Path, " > "))
		b.WriteString(": ")
	}
	b.WriteString(e.Msg)
	if len(e.Suggestions) > 0 {
		b.WriteString(" (did you mean ")
		b.WriteString(strings.Join(e.Suggestions, ", "))
		b.WriteString("?)")
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func noMatch(what string, spec match.Spec, candidates []string) error {
	return &Error{
		Kind:        KindMatch,
		Spec:        spec.String(),
		Msg:         fmt.Sprintf("%s %q matched nothing", what, spec.String()),
		Suggestions: match.Suggest(spec, candidates),
		Err:         ErrNoMatch,
	}
}

func structural(format string, args ...any) error {
	return &Error{Kind: KindStructural, Msg: fmt.Sprintf(format, args...), Err: ErrMalformed}
}

func exists(format string, args ...any) error {
	return &Error{Kind: KindStructural, Msg: fmt.Sprintf(format, args...), Err: ErrExists}
}

func conflict(format string, args ...any) error {
	return &Error{Kind: KindStructural, Msg: fmt.Sprintf(format, args...), Err: ErrConflict}
}

func missing(format string, args ...any) error {
	return &Error{Kind: KindReference, Msg: fmt.Sprintf(format, args...), Err: ErrNotFound}
}

// malformed wraps a lower level error, such as a bad SVD number, as a
// structural error.
func malformed(err error, format string, args ...any) error {
	return &Error{
		Kind: KindStructural,
		Msg:  fmt.Sprintf(format, args...) + ": " + err.Error(),
		Err:  fmt.Errorf("%w: %w", ErrMalformed, err),
	}
}

// within records that err happened inside the named element.
func within(err error, kind, name string) error {
	if err == nil {
		return nil
	}
	pe := toError(err)
	pe.Path = append([]string{kind + " " + name}, pe.Path...)
	return pe
}

// toError returns err as a patch error, converting rule loading errors
// and foreign errors to structural ones.
func toError(err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	var le *rules.LoadError
	if errors.As(err, &le) {
		return &Error{
			Kind: KindStructural,
			Msg:  le.Message,
			File: le.File,
			Line: le.Line,
			Err:  fmt.Errorf("%w: %w", ErrMalformed, err),
		}
	}
	return &Error{Kind: KindStructural, Msg: err.Error(), Err: err}
}

// KindOf returns the kind of a patch error, or 0 for other errors.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return 0
}
