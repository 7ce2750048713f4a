package svd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrBitRange is returned for malformed or inverted bit ranges.
var ErrBitRange = errors.New("invalid bit range")

// BitRange is a contiguous range of bits given by its lowest bit and width.
type BitRange struct {
	Offset uint32
	Width  uint32
}

// MSB returns the most significant bit of the range.
func (b BitRange) MSB() uint32 {
	return b.Offset + b.Width - 1
}

// End returns the bit just past the range.
func (b BitRange) End() uint32 {
	return b.Offset + b.Width
}

// Mask returns the bit mask covered by the range.
func (b BitRange) Mask() uint64 {
	if b.Width >= 64 {
		return ^uint64(0) << b.Offset
	}
	return ((uint64(1) << b.Width) - 1) << b.Offset
}

// Overlaps reports whether b and o share at least one bit.
func (b BitRange) Overlaps(o BitRange) bool {
	return b.Offset < o.End() && o.Offset < b.End()
}

// String formats the range in SVD bitRange notation.
func (b BitRange) String() string {
	return fmt.Sprintf("[%d:%d]", b.MSB(), b.Offset)
}

// ParseBitRange parses SVD bitRange notation "[msb:lsb]".
func ParseBitRange(s string) (BitRange, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return BitRange{}, fmt.Errorf("%w: %q", ErrBitRange, s)
	}
	msbText, lsbText, ok := strings.Cut(s[1:len(s)-1], ":")
	if !ok {
		return BitRange{}, fmt.Errorf("%w: %q", ErrBitRange, s)
	}
	msb, err1 := strconv.ParseUint(strings.TrimSpace(msbText), 10, 32)
	lsb, err2 := strconv.ParseUint(strings.TrimSpace(lsbText), 10, 32)
	if err1 != nil || err2 != nil {
		return BitRange{}, fmt.Errorf("%w: %q", ErrBitRange, s)
	}
	return RangeFromLSBMSB(uint32(lsb), uint32(msb))
}

// RangeFromLSBMSB builds a range from its least and most significant bits.
func RangeFromLSBMSB(lsb, msb uint32) (BitRange, error) {
	if msb < lsb {
		return BitRange{}, fmt.Errorf("%w: msb %d below lsb %d", ErrBitRange, msb, lsb)
	}
	return BitRange{Offset: lsb, Width: msb - lsb + 1}, nil
}

// Range returns the bit range of the field.
func (f *Field) Range() BitRange {
	return BitRange{Offset: f.BitOffset, Width: f.BitWidth}
}

// SetRange sets the bit range of the field.
func (f *Field) SetRange(b BitRange) {
	f.BitOffset, f.BitWidth = b.Offset, b.Width
}

// FieldMask returns the union of the bit masks of the register's fields.
func (r *Register) FieldMask() uint64 {
	var m uint64
	for _, f := range r.Fields {
		m |= f.Range().Mask()
	}
	return m
}

// SizeOr returns the register size in bits, or def when unset.
func (p *RegisterProperties) SizeOr(def uint32) uint32 {
	if p.Size == nil {
		return def
	}
	return uint32(*p.Size)
}

// DimIndices expands a dimIndex value into its labels. Supported
// forms are a numeric range "0-7", a letter range "A-D" and a comma list
// "A,B,C". An empty spec yields 0..dim-1.
func DimIndices(spec string, dim int) ([]string, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		out := make([]string, dim)
		for i := range out {
			out[i] = strconv.Itoa(i)
		}
		return out, nil
	}

	if strings.Contains(spec, ",") {
		parts := strings.Split(spec, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}

	lo, hi, ok := strings.Cut(spec, "-")
	if !ok {
		return []string{spec}, nil
	}
	if a, err := strconv.Atoi(lo); err == nil {
		b, err := strconv.Atoi(hi)
		if err != nil || b < a {
			return nil, fmt.Errorf("invalid dimIndex %q", spec)
		}
		var out []string
		for i := a; i <= b; i++ {
			out = append(out, strconv.Itoa(i))
		}
		return out, nil
	}
	if len(lo) == 1 && len(hi) == 1 && lo[0] <= hi[0] {
		var out []string
		for c := lo[0]; c <= hi[0]; c++ {
			out = append(out, string(c))
		}
		return out, nil
	}
	return nil, fmt.Errorf("invalid dimIndex %q", spec)
}

// FormatDimIndex renders labels in the most compact dimIndex form: a
// numeric range when the labels are consecutive integers, a comma list
// otherwise.
func FormatDimIndex(labels []string) string {
	if len(labels) > 1 {
		first, err := strconv.Atoi(labels[0])
		if err == nil {
			consecutive := true
			for i, l := range labels {
				if n, err := strconv.Atoi(l); err != nil || n != first+i || l != strconv.Itoa(n) {
					consecutive = false
					break
				}
			}
			if consecutive {
				return fmt.Sprintf("%d-%d", first, first+len(labels)-1)
			}
		}
	}
	return strings.Join(labels, ",")
}
