package rules

import (
	"errors"
	"strconv"
	"strings"
)

// Sentinel errors for rule document problems.
var (
	ErrDuplicateKey  = errors.New("duplicate key")
	ErrIncludeCycle  = errors.New("include cycle")
	ErrNotMapping    = errors.New("rule document must be a mapping")
	ErrUnknownKey    = errors.New("unknown directive")
	ErrMissingSVD    = errors.New("no _svd key in rule document")
	ErrInvalidValue  = errors.New("invalid value")
	ErrMisplacedRule = errors.New("directive not allowed here")
)

// LoadError provides details about a rule document loading error.
type LoadError struct {
	// File is the path to the file that failed to load.
	File string

	// Line is the line number where the error occurred (0 if unknown).
	Line int

	// Message describes the error.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *LoadError) Error() string {
	var b strings.Builder
	b.WriteString(e.File)
	if e.Line > 0 {
		b.WriteString(":")
		b.WriteString(strconv.Itoa(e.Line))
	}
	if b.Len() > 0 {
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Cause != nil && !strings.Contains(e.Message, e.Cause.Error()) {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// IncludeCycleError reports an _include chain that leads back to a file
// still being loaded.
type IncludeCycleError struct {
	// Chain lists the files from the first occurrence of the repeated file
	// to the include that closes the cycle.
	Chain []string
}

func (e *IncludeCycleError) Error() string {
	return "include cycle: " + strings.Join(e.Chain, " -> ")
}

func (e *IncludeCycleError) Is(target error) bool {
	return target == ErrIncludeCycle
}
