package inspect

import (
	"fmt"
	"sort"
	"strings"

	"github.com/svdpatch/svdpatch-go/pkg/svd"
)

// Kind is the type of element a path resolves to.
type Kind int

const (
	KindPeripheral Kind = iota + 1
	KindCluster
	KindRegister
	KindField
	KindEnum
)

func (k Kind) String() string {
	switch k {
	case KindPeripheral:
		return "peripheral"
	case KindCluster:
		return "cluster"
	case KindRegister:
		return "register"
	case KindField:
		return "field"
	case KindEnum:
		return "enumeratedValues"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

// Node is a resolved path. The members up to and including Kind are set.
type Node struct {
	Kind       Kind
	Path       string
	Peripheral *svd.Peripheral
	Clusters   []*svd.Cluster
	Register   *svd.Register
	Field      *svd.Field
	Enum       *svd.EnumeratedValues

	// Address is the absolute address of the first element of the
	// peripheral, cluster or register.
	Address uint64
}

// Inspector provides read access to a device tree.
type Inspector struct {
	device *svd.Device
}

// NewInspector creates a new Inspector for the given device.
func NewInspector(device *svd.Device) *Inspector {
	return &Inspector{device: device}
}

// Device returns the underlying device.
func (i *Inspector) Device() *svd.Device {
	return i.device
}

// Resolve walks p down the device tree. Derived peripherals resolve into
// the register block they derive from.
func (i *Inspector) Resolve(p *Path) (*Node, error) {
	per, ok := lookup(i.device.Peripherals, p.Peripheral(), peripheralName)
	if !ok {
		return nil, notFound("peripheral", p.Peripheral(), "", i.device.Peripherals, peripheralName)
	}
	n := &Node{Kind: KindPeripheral, Path: per.Name, Peripheral: per, Address: uint64(per.BaseAddress)}
	children := i.RegisterBlock(per)

	for _, seg := range p.Segments[1:] {
		switch n.Kind {
		case KindPeripheral, KindCluster:
			names := childNames(children)
			if cl, ok := lookup(children.Clusters(), seg, clusterName); ok {
				n.Kind = KindCluster
				n.Clusters = append(n.Clusters, cl)
				n.Address += uint64(cl.AddressOffset)
				n.Path += "/" + cl.Name
				children = cl.Children
				continue
			}
			r, ok := lookup(children.Registers(), seg, registerName)
			if !ok {
				return nil, notFound("register", seg, n.Path, names, identity)
			}
			n.Kind = KindRegister
			n.Register = r
			n.Address += uint64(r.AddressOffset)
			n.Path += "/" + r.Name
		case KindRegister:
			f, ok := lookup(n.Register.Fields, seg, fieldName)
			if !ok {
				return nil, notFound("field", seg, n.Path, n.Register.Fields, fieldName)
			}
			n.Kind = KindField
			n.Field = f
			n.Path += "/" + f.Name
		case KindField:
			ev, ok := lookup(n.Field.EnumeratedValues, seg, enumName)
			if !ok {
				return nil, notFound("enumeratedValues", seg, n.Path, n.Field.EnumeratedValues, enumName)
			}
			n.Kind = KindEnum
			n.Enum = ev
			n.Path += "/" + ev.Name
		default:
			return nil, fmt.Errorf("%w: %s", ErrTooDeep, p)
		}
	}
	return n, nil
}

// RegisterBlock returns the registers of per, following derivedFrom.
func (i *Inspector) RegisterBlock(per *svd.Peripheral) svd.Children {
	for n := 0; per != nil && n <= len(i.device.Peripherals); n++ {
		if per.DerivedFrom == "" || len(per.Children) > 0 {
			return per.Children
		}
		per = i.device.Peripheral(per.DerivedFrom)
	}
	return nil
}

// PeripheralInfo summarizes a peripheral for listings.
type PeripheralInfo struct {
	Name        string
	BaseAddress uint64
	DerivedFrom string
	GroupName   string
	Description string
	Registers   int
}

// Peripherals lists the peripherals in declaration order.
func (i *Inspector) Peripherals() []PeripheralInfo {
	out := make([]PeripheralInfo, 0, len(i.device.Peripherals))
	for _, per := range i.device.Peripherals {
		count := 0
		i.RegisterBlock(per).Walk(func([]*svd.Cluster, *svd.Register) { count++ })
		out = append(out, PeripheralInfo{
			Name:        per.Name,
			BaseAddress: uint64(per.BaseAddress),
			DerivedFrom: per.DerivedFrom,
			GroupName:   per.GroupName,
			Description: per.Description,
			Registers:   count,
		})
	}
	return out
}

// InterruptInfo is an interrupt with the peripheral declaring it.
type InterruptInfo struct {
	Value       int
	Name        string
	Description string
	Peripheral  string
}

// Interrupts lists every interrupt of the device ordered by value. An
// interrupt shared by several peripherals is listed once per peripheral.
func (i *Inspector) Interrupts() []InterruptInfo {
	var out []InterruptInfo
	for _, per := range i.device.Peripherals {
		for _, irq := range per.Interrupts {
			out = append(out, InterruptInfo{
				Value:       irq.Value,
				Name:        irq.Name,
				Description: oneLine(irq.Description),
				Peripheral:  per.Name,
			})
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Value < out[b].Value })
	return out
}

// Gaps returns the interrupt values missing between the lowest and the
// highest declared one.
func Gaps(irqs []InterruptInfo) []int {
	var gaps []int
	for k := 1; k < len(irqs); k++ {
		for v := irqs[k-1].Value + 1; v < irqs[k].Value; v++ {
			gaps = append(gaps, v)
		}
	}
	return gaps
}

// MemoryMap returns one sorted line per peripheral, register, field and
// interrupt, suitable for diffing two devices. Arrays are expanded.
func (i *Inspector) MemoryMap() []string {
	var lines []string
	for _, per := range i.device.Peripherals {
		lines = append(lines, fmt.Sprintf("%s A PERIPHERAL %s", svd.Hex(per.BaseAddress), per.Name))
		for _, irq := range per.Interrupts {
			lines = append(lines, fmt.Sprintf("INTERRUPT %03d: %s (%s): %s",
				irq.Value, irq.Name, per.Name, oneLine(irq.Description)))
		}
		lines = mapBlock(lines, uint64(per.BaseAddress), i.RegisterBlock(per), "")
	}
	sort.Strings(lines)
	return lines
}

func mapBlock(lines []string, base uint64, cs svd.Children, suffix string) []string {
	for _, c := range cs {
		switch {
		case c.Register != nil:
			r := c.Register
			desc := oneLine(r.Description)
			access := withBrace(r.Access)
			labels, offsets := elements(r.DimElement, base+uint64(r.AddressOffset))
			for k, addr := range offsets {
				name, d := r.Name+suffix, desc
				if labels != nil {
					name = substitute(r.Name, labels[k])
					d = strings.ReplaceAll(desc, "%s", labels[k])
				}
				lines = append(lines, fmt.Sprintf("%s B  REGISTER %s%s: %s", svd.Hex(addr), name, access, d))
				lines = mapFields(lines, svd.Hex(addr).String(), r)
			}
		case c.Cluster != nil:
			cl := c.Cluster
			desc := oneLine(cl.Description)
			labels, offsets := elements(cl.DimElement, base+uint64(cl.AddressOffset))
			for k, addr := range offsets {
				name, d, sfx := cl.Name, desc, ""
				if labels != nil {
					name = substitute(cl.Name, labels[k])
					d = strings.ReplaceAll(desc, "%s", labels[k])
					sfx = labels[k]
				}
				lines = append(lines, fmt.Sprintf("%s B  CLUSTER %s: %s", svd.Hex(addr), name, d))
				lines = mapBlock(lines, addr, cl.Children, sfx)
			}
		}
	}
	return lines
}

func mapFields(lines []string, addr string, r *svd.Register) []string {
	for _, f := range r.Fields {
		desc := oneLine(f.Description)
		access := withBrace(f.Access)
		labels, offsets := elements(f.DimElement, uint64(f.BitOffset))
		for k, off := range offsets {
			name := f.Name
			if labels != nil {
				name = substitute(f.Name, labels[k])
			}
			lines = append(lines, fmt.Sprintf("%s C   FIELD %02dw%02d %s%s: %s", addr, off, f.BitWidth, name, access, desc))
		}
	}
	return lines
}

// elements returns the labels and offsets of the elements of a possibly
// dimensioned element. labels is nil for plain elements.
func elements(d svd.DimElement, first uint64) ([]string, []uint64) {
	if !d.IsArray() {
		return nil, []uint64{first}
	}
	labels, err := svd.DimIndices(d.DimIndex, int(*d.Dim))
	if err != nil || len(labels) != int(*d.Dim) {
		labels, _ = svd.DimIndices("", int(*d.Dim))
	}
	var inc uint64
	if d.DimIncrement != nil {
		inc = uint64(*d.DimIncrement)
	}
	offsets := make([]uint64, len(labels))
	for k := range offsets {
		offsets[k] = first + uint64(k)*inc
	}
	return labels, offsets
}

func substitute(name, label string) string {
	return strings.ReplaceAll(strings.ReplaceAll(name, "[%s]", label), "%s", label)
}

func withBrace(a svd.Access) string {
	if a == "" {
		return ""
	}
	return " (" + string(a) + ")"
}

// oneLine collapses runs of white space.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func peripheralName(p *svd.Peripheral) string { return p.Name }
func clusterName(c *svd.Cluster) string       { return c.Name }
func registerName(r *svd.Register) string     { return r.Name }
func fieldName(f *svd.Field) string           { return f.Name }
func enumName(e *svd.EnumeratedValues) string { return e.Name }
func identity(s string) string                { return s }

func childNames(cs svd.Children) []string {
	out := make([]string, len(cs))
	for k, c := range cs {
		out[k] = c.Name()
	}
	return out
}
