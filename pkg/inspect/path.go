// Package inspect resolves paths into an SVD device tree and renders what
// they address.
//
// The inspect package offers a unified interface for:
//   - Parsing path expressions (e.g., "GPIOA/MODER/MODER0")
//   - Resolving them against a device, following derivedFrom
//   - Listing interrupts and the memory map
//   - Formatting output for display
package inspect

import (
	"errors"
	"strings"
)

// Path errors.
var (
	ErrEmptyPath   = errors.New("empty path")
	ErrInvalidPath = errors.New("invalid path format")
	ErrTooDeep     = errors.New("path goes below an enumeration")
)

// Path represents a parsed inspection path.
// Format: peripheral[/cluster...][/register[/field[/enumeration]]]
type Path struct {
	// Segments are the element names, outermost first.
	Segments []string

	// Raw stores the original input string.
	Raw string
}

// ParsePath parses a path string into a Path struct.
//
// Supported formats:
//   - "GPIOA" - a peripheral
//   - "DMA1/CH%s" - a cluster, clusters nest
//   - "GPIOA/MODER" - a register
//   - "GPIOA/MODER/MODER0" - a field
//   - "GPIOA/MODER/MODER0/MODE" - an enumeratedValues set of the field
//
// "." is accepted as separator too, so derivedFrom references can be
// pasted as they are.
func ParsePath(input string) (*Path, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyPath
	}

	sep := "/"
	if !strings.Contains(input, "/") {
		sep = "."
	}
	parts := strings.Split(input, sep)
	for _, part := range parts {
		if part == "" {
			return nil, ErrInvalidPath
		}
	}
	return &Path{Segments: parts, Raw: input}, nil
}

// String returns the path as a string.
func (p *Path) String() string {
	return strings.Join(p.Segments, "/")
}

// Peripheral returns the first segment.
func (p *Path) Peripheral() string {
	return p.Segments[0]
}
