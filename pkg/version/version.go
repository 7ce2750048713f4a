// Package version provides the tool version and CMSIS-SVD schema version
// parsing and comparison.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Tool is the version of svdpatch. Release builds override it with
// -ldflags "-X github.com/svdpatch/svdpatch-go/pkg/version.Tool=...".
var Tool = "0.1.0-dev"

// Supported is the newest SVD schema version the tool understands.
const Supported = "1.3"

// SchemaVersion represents a parsed "major.minor" schema version.
type SchemaVersion struct {
	Major uint16
	Minor uint16
}

// Parse parses a "major.minor" version string. A trailing patch
// component ("1.3.9") is accepted and ignored.
func Parse(s string) (SchemaVersion, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) == 3 {
		if _, err := strconv.ParseUint(parts[2], 10, 16); err != nil {
			return SchemaVersion{}, fmt.Errorf("invalid version %q: bad patch component", s)
		}
		parts = parts[:2]
	}
	if len(parts) != 2 {
		return SchemaVersion{}, fmt.Errorf("invalid version %q: expected major.minor", s)
	}

	major, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil || parts[0] == "" {
		return SchemaVersion{}, fmt.Errorf("invalid version %q: bad major component", s)
	}

	minor, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil || parts[1] == "" {
		return SchemaVersion{}, fmt.Errorf("invalid version %q: bad minor component", s)
	}

	return SchemaVersion{Major: uint16(major), Minor: uint16(minor)}, nil
}

// String returns the version as "major.minor".
func (v SchemaVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible returns true if the other version has the same major version.
func (v SchemaVersion) Compatible(other SchemaVersion) bool {
	return v.Major == other.Major
}

// Less reports whether v precedes other.
func (v SchemaVersion) Less(other SchemaVersion) bool {
	if v.Major != other.Major {
		return v.Major < other.Major
	}
	return v.Minor < other.Minor
}

// CheckSchema reports whether a device's schemaVersion attribute can be
// handled. An empty attribute is accepted. ok is false for versions newer
// than Supported within the same major version; err is set for
// unparseable or incompatible versions.
func CheckSchema(s string) (ok bool, err error) {
	if s == "" {
		return true, nil
	}
	v, err := Parse(s)
	if err != nil {
		return false, err
	}
	supported, _ := Parse(Supported)
	if !v.Compatible(supported) {
		return false, fmt.Errorf("schema version %s is not compatible with %s", v, supported)
	}
	return !supported.Less(v), nil
}

// String returns the tool name and version, for --version output.
func String() string {
	return fmt.Sprintf("svdpatch %s (SVD schema %s)", Tool, Supported)
}
