package svd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidNumber is returned when a value is not a valid SVD integer.
var ErrInvalidNumber = errors.New("invalid SVD integer")

// ParseInt parses an SVD scaledNonNegativeInteger.
//
// Accepted forms are decimal ("42"), hexadecimal ("0x2A", "0X2a"), binary
// with a leading '#' ("#101010"), each optionally followed by one of the
// multipliers k, m, g, t (case insensitive, powers of 1024).
func ParseInt(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty value", ErrInvalidNumber)
	}

	var shift uint
	switch s[len(s)-1] {
	case 'k', 'K':
		shift = 10
	case 'm', 'M':
		shift = 20
	case 'g', 'G':
		shift = 30
	case 't', 'T':
		shift = 40
	}
	body := s
	if shift > 0 {
		body = s[:len(s)-1]
	}

	var (
		v   uint64
		err error
	)
	switch {
	case strings.HasPrefix(body, "0x"), strings.HasPrefix(body, "0X"):
		v, err = strconv.ParseUint(body[2:], 16, 64)
	case strings.HasPrefix(body, "#"):
		v, err = strconv.ParseUint(body[1:], 2, 64)
	default:
		v, err = strconv.ParseUint(body, 10, 64)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}
	return v << shift, nil
}

// ParseBool parses an SVD boolean ("true", "false", "1", "0").
func ParseBool(s string) (bool, error) {
	switch strings.TrimSpace(s) {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid SVD boolean %q", s)
}

// Num is an SVD integer written in decimal.
type Num uint64

// MarshalText implements encoding.TextMarshaler.
func (n Num) MarshalText() ([]byte, error) {
	return strconv.AppendUint(nil, uint64(n), 10), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *Num) UnmarshalText(b []byte) error {
	v, err := ParseInt(string(b))
	if err != nil {
		return err
	}
	*n = Num(v)
	return nil
}

// Hex is an SVD integer written in hexadecimal (addresses, offsets, masks).
type Hex uint64

// MarshalText implements encoding.TextMarshaler.
func (h Hex) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hex) UnmarshalText(b []byte) error {
	v, err := ParseInt(string(b))
	if err != nil {
		return err
	}
	*h = Hex(v)
	return nil
}

// String formats the value as 0x-prefixed upper case hex.
func (h Hex) String() string {
	return fmt.Sprintf("0x%X", uint64(h))
}

// NumPtr returns a pointer to n.
func NumPtr(n uint64) *Num {
	v := Num(n)
	return &v
}

// HexPtr returns a pointer to h.
func HexPtr(h uint64) *Hex {
	v := Hex(h)
	return &v
}
