package check

import (
	"fmt"

	"github.com/svdpatch/svdpatch-go/pkg/svd"
)

// Rule categories.
const (
	CategoryNaming = "naming"
	CategoryDerive = "derive"
	CategoryLayout = "layout"
	CategoryDim    = "dim"
	CategoryEnum   = "enum"
)

// RegisterAllRules registers all built-in rules with the given registry.
func RegisterAllRules(registry *RuleRegistry) {
	registry.Register(NewDESC001())
	registry.Register(NewDRV001())
	registry.Register(NewDRV002())
	registry.Register(NewFLD001())
	registry.Register(NewFLD002())
	registry.Register(NewADR001())
	registry.Register(NewDIM001())
	registry.Register(NewENM001())
	registry.Register(NewNAM001())
}

// DESC001 reports peripherals, registers and fields without a description.
// Derived elements inherit theirs and are skipped.
type DESC001 struct {
	*BaseRule
}

func NewDESC001() *DESC001 {
	return &DESC001{
		BaseRule: NewBaseRule("DESC001", "missing description", CategoryNaming, SeverityWarning),
	}
}

func (r *DESC001) Check(dev *svd.Device) []Violation {
	var violations []Violation
	for _, per := range dev.Peripherals {
		if per.DerivedFrom == "" && per.Description == "" {
			violations = append(violations, r.violation(per.Name, "peripheral has no description"))
		}
	}
	registers(dev, func(ri regInfo) {
		if ri.r.DerivedFrom != "" {
			return
		}
		if ri.r.Description == "" {
			violations = append(violations, r.violation(ri.regPath(), "register has no description"))
		}
		for _, f := range ri.r.Fields {
			if f.DerivedFrom == "" && f.Description == "" {
				violations = append(violations, r.violation(ri.regPath()+"/"+f.Name, "field has no description"))
			}
		}
	})
	return violations
}

// NAM001 reports siblings sharing a name: peripherals, registers and
// clusters of one block, fields of one register and values of one
// enumeration.
type NAM001 struct {
	*BaseRule
}

func NewNAM001() *NAM001 {
	return &NAM001{
		BaseRule: NewBaseRule("NAM001", "duplicate sibling names", CategoryNaming, SeverityError),
	}
}

func (r *NAM001) Check(dev *svd.Device) []Violation {
	var violations []Violation
	report := func(path, what string, names []string) {
		for _, n := range duplicates(names) {
			v := r.violation(path, "%s %s is defined more than once", what, n)
			v.Suggestion = fmt.Sprintf("rename or delete one %s %s", what, n)
			violations = append(violations, v)
		}
	}

	names := make([]string, len(dev.Peripherals))
	for i, per := range dev.Peripherals {
		names[i] = per.Name
	}
	report(dev.Name, "peripheral", names)

	blocks(dev, func(b block) {
		names := make([]string, len(b.children))
		for i, c := range b.children {
			names[i] = c.Name()
		}
		report(b.path, "register or cluster", names)
	})
	registers(dev, func(ri regInfo) {
		names := make([]string, len(ri.r.Fields))
		for i, f := range ri.r.Fields {
			names[i] = f.Name
		}
		report(ri.regPath(), "field", names)
		for _, f := range ri.r.Fields {
			for _, ev := range f.EnumeratedValues {
				names := make([]string, len(ev.Values))
				for i, v := range ev.Values {
					names[i] = v.Name
				}
				report(ri.regPath()+"/"+f.Name, "enumerated value", names)
			}
		}
	})
	return violations
}

// duplicates returns the names occurring more than once, in order of
// their second occurrence.
func duplicates(names []string) []string {
	seen := make(map[string]int, len(names))
	var out []string
	for _, n := range names {
		seen[n]++
		if seen[n] == 2 {
			out = append(out, n)
		}
	}
	return out
}
