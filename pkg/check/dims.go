package check

import (
	"fmt"
	"strings"

	"github.com/svdpatch/svdpatch-go/pkg/svd"
)

// DIM001 reports inconsistent array metadata: dim without dimIncrement,
// dimIndex lists of the wrong length and array names without a %s
// placeholder.
type DIM001 struct {
	*BaseRule
}

func NewDIM001() *DIM001 {
	return &DIM001{
		BaseRule: NewBaseRule("DIM001", "inconsistent dim", CategoryDim, SeverityError),
	}
}

func (r *DIM001) Check(dev *svd.Device) []Violation {
	var violations []Violation
	check := func(path, name string, d svd.DimElement) {
		for _, msg := range dimProblems(name, d) {
			violations = append(violations, r.violation(path, "%s", msg))
		}
	}

	for _, per := range dev.Peripherals {
		check(per.Name, per.Name, per.DimElement)
	}
	blocks(dev, func(b block) {
		for _, cl := range b.children.Clusters() {
			check(b.path+"/"+cl.Name, cl.Name, cl.DimElement)
		}
	})
	registers(dev, func(ri regInfo) {
		check(ri.regPath(), ri.r.Name, ri.r.DimElement)
		for _, f := range ri.r.Fields {
			check(ri.regPath()+"/"+f.Name, f.Name, f.DimElement)
		}
	})
	return violations
}

func dimProblems(name string, d svd.DimElement) []string {
	if d.Dim == nil {
		if d.DimIncrement != nil || d.DimIndex != "" {
			return []string{"dimIncrement or dimIndex without dim"}
		}
		return nil
	}

	var out []string
	dim := int(*d.Dim)
	if dim == 0 {
		out = append(out, "dim is zero")
	}
	if d.DimIncrement == nil {
		out = append(out, "dim without dimIncrement")
	}
	if !strings.Contains(name, "%s") {
		out = append(out, "array name has no %s placeholder")
	}
	if d.DimIndex != "" {
		labels, err := svd.DimIndices(d.DimIndex, dim)
		switch {
		case err != nil:
			out = append(out, err.Error())
		case len(labels) != dim:
			out = append(out, fmt.Sprintf("dimIndex %s lists %d labels for dim %d", d.DimIndex, len(labels), dim))
		}
	}
	return out
}
