package check

import (
	"slices"
	"strings"

	"github.com/svdpatch/svdpatch-go/pkg/svd"
)

// DRV001 reports derivedFrom references that do not resolve. Register
// and cluster references are looked up among the siblings first, then as
// dotted paths from the peripheral and from the device.
type DRV001 struct {
	*BaseRule
}

func NewDRV001() *DRV001 {
	return &DRV001{
		BaseRule: NewBaseRule("DRV001", "dangling derivedFrom", CategoryDerive, SeverityError),
	}
}

func (r *DRV001) Check(dev *svd.Device) []Violation {
	var violations []Violation
	dangling := func(path, what, ref string) {
		violations = append(violations, r.violation(path, "%s derives from %s, which does not exist", what, ref))
	}

	for _, per := range dev.Peripherals {
		if per.DerivedFrom != "" && dev.Peripheral(per.DerivedFrom) == nil {
			dangling(per.Name, "peripheral", per.DerivedFrom)
		}
	}
	blocks(dev, func(b block) {
		for _, c := range b.children {
			switch {
			case c.Cluster != nil && c.Cluster.DerivedFrom != "":
				if t, ok := resolve(dev, b, c.Cluster.DerivedFrom); !ok || t.cluster == nil {
					dangling(b.path+"/"+c.Cluster.Name, "cluster", c.Cluster.DerivedFrom)
				}
			case c.Register != nil && c.Register.DerivedFrom != "":
				if t, ok := resolve(dev, b, c.Register.DerivedFrom); !ok || t.register == nil || t.field != nil {
					dangling(b.path+"/"+c.Register.Name, "register", c.Register.DerivedFrom)
				}
			}
		}
	})
	registers(dev, func(ri regInfo) {
		for _, f := range ri.r.Fields {
			path := ri.regPath() + "/" + f.Name
			if f.DerivedFrom != "" && !fieldExists(dev, ri, f) {
				dangling(path, "field", f.DerivedFrom)
			}
			for _, ev := range f.EnumeratedValues {
				if ev.DerivedFrom != "" && !enumExists(dev, ri, ev) {
					dangling(path, "enumeratedValues", ev.DerivedFrom)
				}
			}
		}
	})
	return violations
}

func fieldExists(dev *svd.Device, ri regInfo, f *svd.Field) bool {
	if !strings.Contains(f.DerivedFrom, ".") {
		src := ri.r.Field(f.DerivedFrom)
		return src != nil && src != f
	}
	t, ok := resolve(dev, ri.block, f.DerivedFrom)
	return ok && t.field != nil && t.enum == nil
}

func enumExists(dev *svd.Device, ri regInfo, ev *svd.EnumeratedValues) bool {
	parts := strings.Split(ev.DerivedFrom, ".")
	switch len(parts) {
	case 1:
		for _, f := range ri.r.Fields {
			for _, other := range f.EnumeratedValues {
				if other != ev && other.Name == parts[0] {
					return true
				}
			}
		}
		return false
	case 2:
		if f := ri.r.Field(parts[0]); f != nil {
			return findEnum(f, parts[1]) != nil
		}
	}
	t, ok := resolve(dev, ri.block, ev.DerivedFrom)
	return ok && t.enum != nil
}

// target is the element a dotted reference resolves to. The innermost
// non-nil member is the element itself.
type target struct {
	cluster  *svd.Cluster
	register *svd.Register
	field    *svd.Field
	enum     *svd.EnumeratedValues
}

// resolve looks ref up relative to the block, then relative to its
// peripheral, then from the device root.
func resolve(dev *svd.Device, b block, ref string) (target, bool) {
	parts := strings.Split(ref, ".")
	if t, ok := locate(b.children, parts); ok {
		return t, true
	}
	if t, ok := locate(peripheralChildren(dev, b.per), parts); ok {
		return t, true
	}
	if len(parts) > 1 {
		if per := dev.Peripheral(parts[0]); per != nil {
			return locate(peripheralChildren(dev, per), parts[1:])
		}
	}
	return target{}, false
}

// locate walks parts down from a register block: clusters, a register,
// then optionally a field and one of its enumerations.
func locate(cs svd.Children, parts []string) (target, bool) {
	if len(parts) == 0 {
		return target{}, false
	}
	name, rest := parts[0], parts[1:]
	if cl := cs.Cluster(name); cl != nil {
		if len(rest) == 0 {
			return target{cluster: cl}, true
		}
		return locate(cl.Children, rest)
	}
	reg := cs.Register(name)
	if reg == nil {
		return target{}, false
	}
	t := target{register: reg}
	if len(rest) == 0 {
		return t, true
	}
	if t.field = reg.Field(rest[0]); t.field == nil {
		return target{}, false
	}
	switch len(rest) {
	case 1:
		return t, true
	case 2:
		if t.enum = findEnum(t.field, rest[1]); t.enum != nil {
			return t, true
		}
	}
	return target{}, false
}

// peripheralChildren returns the register block of per, following
// derivedFrom for peripherals that declare none of their own.
func peripheralChildren(dev *svd.Device, per *svd.Peripheral) svd.Children {
	for i := 0; per != nil && i <= len(dev.Peripherals); i++ {
		if len(per.Children) > 0 || per.DerivedFrom == "" {
			return per.Children
		}
		per = dev.Peripheral(per.DerivedFrom)
	}
	return nil
}

func findEnum(f *svd.Field, name string) *svd.EnumeratedValues {
	for _, ev := range f.EnumeratedValues {
		if ev.Name == name {
			return ev
		}
	}
	return nil
}

// DRV002 reports derivedFrom chains that loop: between peripherals,
// between registers or clusters of one block and between fields of one
// register.
type DRV002 struct {
	*BaseRule
}

func NewDRV002() *DRV002 {
	return &DRV002{
		BaseRule: NewBaseRule("DRV002", "derivedFrom cycle", CategoryDerive, SeverityError),
	}
}

func (r *DRV002) Check(dev *svd.Device) []Violation {
	var violations []Violation
	report := func(parent string, loops [][]string) {
		for _, loop := range loops {
			path := loop[0]
			if parent != "" {
				path = parent + "/" + path
			}
			violations = append(violations, r.violation(path, "derivedFrom loops: %s", strings.Join(loop, " -> ")))
		}
	}

	g := newDeriveGraph()
	for _, per := range dev.Peripherals {
		g.add(per.Name, per.DerivedFrom)
	}
	report("", g.cycles())

	blocks(dev, func(b block) {
		g := newDeriveGraph()
		for _, c := range b.children {
			switch {
			case c.Register != nil:
				g.add(c.Register.Name, c.Register.DerivedFrom)
			case c.Cluster != nil:
				g.add(c.Cluster.Name, c.Cluster.DerivedFrom)
			}
		}
		report(b.path, g.cycles())
	})
	registers(dev, func(ri regInfo) {
		g := newDeriveGraph()
		for _, f := range ri.r.Fields {
			g.add(f.Name, f.DerivedFrom)
		}
		report(ri.regPath(), g.cycles())
	})
	return violations
}

// deriveGraph maps element names to the name they derive from.
type deriveGraph struct {
	order []string
	next  map[string]string
}

func newDeriveGraph() *deriveGraph {
	return &deriveGraph{next: make(map[string]string)}
}

func (g *deriveGraph) add(name, from string) {
	if from == "" {
		return
	}
	g.order = append(g.order, name)
	g.next[name] = from
}

// cycles returns each loop once, starting at the member reached first in
// insertion order and ending where it closes.
func (g *deriveGraph) cycles() [][]string {
	const (
		visiting = 1
		done     = 2
	)
	state := make(map[string]int)
	var out [][]string
	for _, start := range g.order {
		var stack []string
		for n := start; ; {
			if state[n] == done {
				break
			}
			if state[n] == visiting {
				i := slices.Index(stack, n)
				out = append(out, append(slices.Clone(stack[i:]), n))
				break
			}
			from, ok := g.next[n]
			if !ok {
				break
			}
			state[n] = visiting
			stack = append(stack, n)
			n = from
		}
		for _, s := range stack {
			state[s] = done
		}
	}
	return out
}
