package check

import (
	"fmt"
	"sort"

	"github.com/svdpatch/svdpatch-go/pkg/svd"
)

// maxElements bounds the expansion of dim arrays.
const maxElements = 1024

// elementOffsets returns the offsets of the elements of a possibly
// dimensioned element at off.
func elementOffsets(d svd.DimElement, off uint64) []uint64 {
	if d.Dim == nil {
		return []uint64{off}
	}
	n := min(int(*d.Dim), maxElements)
	var inc uint64
	if d.DimIncrement != nil {
		inc = uint64(*d.DimIncrement)
	}
	out := make([]uint64, n)
	for i := range out {
		out[i] = off + uint64(i)*inc
	}
	return out
}

// fieldRanges returns the bit ranges of the elements of f.
func fieldRanges(f *svd.Field) []svd.BitRange {
	var out []svd.BitRange
	for _, off := range elementOffsets(f.DimElement, uint64(f.BitOffset)) {
		out = append(out, svd.BitRange{Offset: uint32(off), Width: f.BitWidth})
	}
	return out
}

// FLD001 reports fields of one register sharing bits.
type FLD001 struct {
	*BaseRule
}

func NewFLD001() *FLD001 {
	return &FLD001{
		BaseRule: NewBaseRule("FLD001", "overlapping fields", CategoryLayout, SeverityError),
	}
}

func (r *FLD001) Check(dev *svd.Device) []Violation {
	var violations []Violation
	registers(dev, func(ri regInfo) {
		fs := ri.r.Fields
		for i, a := range fs {
			for _, b := range fs[i+1:] {
				if ra, rb, ok := overlap(a, b); ok {
					violations = append(violations, r.violation(ri.regPath(),
						"field %s %s overlaps field %s %s", a.Name, ra, b.Name, rb))
				}
			}
		}
	})
	return violations
}

func overlap(a, b *svd.Field) (svd.BitRange, svd.BitRange, bool) {
	if a.BitWidth == 0 || b.BitWidth == 0 {
		return svd.BitRange{}, svd.BitRange{}, false
	}
	for _, ra := range fieldRanges(a) {
		for _, rb := range fieldRanges(b) {
			if ra.Overlaps(rb) {
				return ra, rb, true
			}
		}
	}
	return svd.BitRange{}, svd.BitRange{}, false
}

// FLD002 reports fields reaching past the size of their register.
type FLD002 struct {
	*BaseRule
}

func NewFLD002() *FLD002 {
	return &FLD002{
		BaseRule: NewBaseRule("FLD002", "field outside register", CategoryLayout, SeverityError),
	}
}

func (r *FLD002) Check(dev *svd.Device) []Violation {
	var violations []Violation
	registers(dev, func(ri regInfo) {
		size := ri.regSize()
		for _, f := range ri.r.Fields {
			for _, br := range fieldRanges(f) {
				if f.BitWidth > 0 && br.End() > size {
					v := r.violation(ri.regPath()+"/"+f.Name, "bits %s exceed the %d bit register", br, size)
					v.Suggestion = "fix bitOffset and bitWidth, or the register size"
					violations = append(violations, v)
					break
				}
			}
		}
	})
	return violations
}

// ADR001 reports registers of one peripheral sharing addresses when
// neither is marked as an alternate. Arrays are expanded element by
// element.
type ADR001 struct {
	*BaseRule
}

func NewADR001() *ADR001 {
	return &ADR001{
		BaseRule: NewBaseRule("ADR001", "overlapping registers", CategoryLayout, SeverityWarning),
	}
}

// span is the byte range of one register element.
type span struct {
	start, end uint64
	path       string
	alternate  bool
}

func (r *ADR001) Check(dev *svd.Device) []Violation {
	var violations []Violation
	size := dev.SizeOr(defaultSize)
	for _, per := range dev.Peripherals {
		var spans []span
		collectSpans(per.Children, []uint64{0}, per.Name, per.SizeOr(size), false, &spans)
		sort.SliceStable(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

		seen := make(map[[2]string]bool)
		for i, a := range spans {
			for _, b := range spans[i+1:] {
				if b.start >= a.end {
					break
				}
				if a.alternate || b.alternate {
					continue
				}
				key := [2]string{a.path, b.path}
				if seen[key] {
					continue
				}
				seen[key] = true
				var msg string
				if a.path == b.path {
					msg = fmt.Sprintf("elements of %s overlap at %#x", a.path, b.start)
				} else {
					msg = fmt.Sprintf("%s at %#x overlaps %s at %#x", a.path, a.start, b.path, b.start)
				}
				v := r.violation(per.Name, "%s", msg)
				v.Suggestion = "mark one of them with alternateRegister or alternateGroup"
				violations = append(violations, v)
			}
		}
	}
	return violations
}

func collectSpans(cs svd.Children, bases []uint64, path string, size uint32, alternate bool, out *[]span) {
	for _, c := range cs {
		switch {
		case c.Register != nil:
			reg := c.Register
			n := uint64(reg.SizeOr(size)+7) / 8
			alt := alternate || reg.AlternateRegister != "" || reg.AlternateGroup != ""
			for _, base := range bases {
				for _, off := range elementOffsets(reg.DimElement, uint64(reg.AddressOffset)) {
					*out = append(*out, span{
						start:     base + off,
						end:       base + off + max(n, 1),
						path:      path + "/" + reg.Name,
						alternate: alt,
					})
				}
			}
		case c.Cluster != nil:
			cl := c.Cluster
			var inner []uint64
			for _, base := range bases {
				for _, off := range elementOffsets(cl.DimElement, uint64(cl.AddressOffset)) {
					inner = append(inner, base+off)
				}
				if len(inner) > maxElements {
					break
				}
			}
			collectSpans(cl.Children, inner, path+"/"+cl.Name, cl.SizeOr(size), alternate || cl.AlternateCluster != "", out)
		}
	}
}
