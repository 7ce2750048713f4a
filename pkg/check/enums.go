package check

import (
	"math/bits"
	"strings"

	"github.com/svdpatch/svdpatch-go/pkg/svd"
)

// ENM001 reports enumerations with more than one default value and
// values that do not fit the width of their field.
type ENM001 struct {
	*BaseRule
}

func NewENM001() *ENM001 {
	return &ENM001{
		BaseRule: NewBaseRule("ENM001", "invalid enumerated values", CategoryEnum, SeverityError),
	}
}

func (r *ENM001) Check(dev *svd.Device) []Violation {
	var violations []Violation
	registers(dev, func(ri regInfo) {
		for _, f := range ri.r.Fields {
			path := ri.regPath() + "/" + f.Name
			for _, ev := range f.EnumeratedValues {
				if ev.DerivedFrom != "" {
					continue
				}
				defaults := 0
				for _, v := range ev.Values {
					if v.Default() {
						defaults++
						continue
					}
					if f.BitWidth == 0 {
						continue
					}
					width, ok := valueWidth(v.Value)
					switch {
					case !ok:
						violations = append(violations, r.violation(path, "value %s of %s is not a number", v.Value, v.Name))
					case width > f.BitWidth:
						violations = append(violations, r.violation(path,
							"value %s of %s needs %d bits, field is %d bits wide", v.Value, v.Name, width, f.BitWidth))
					}
				}
				if defaults > 1 {
					violations = append(violations, r.violation(path, "enumeratedValues %s has %d default values", ev.Name, defaults))
				}
			}
		}
	})
	return violations
}

// valueWidth returns the number of bits an enumerated value occupies.
// Binary values with don't-care digits ("#1x0") count every digit.
func valueWidth(s string) (uint32, bool) {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "#"); ok && strings.ContainsAny(rest, "xX") {
		for _, c := range rest {
			if c != '0' && c != '1' && c != 'x' && c != 'X' {
				return 0, false
			}
		}
		return uint32(len(strings.TrimLeft(rest, "0"))), true
	}
	v, err := svd.ParseInt(s)
	if err != nil {
		return 0, false
	}
	return uint32(bits.Len64(v)), true
}
