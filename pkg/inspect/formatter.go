package inspect

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/svdpatch/svdpatch-go/pkg/svd"
)

// Formatter formats inspection output.
type Formatter struct {
	// ShowFields lists the fields of registers.
	ShowFields bool

	// ShowEnums lists the enumerated values of fields.
	ShowEnums bool

	// IndentWidth is the number of spaces per indent level
	IndentWidth int
}

// NewFormatter creates a new Formatter with default settings.
func NewFormatter() *Formatter {
	return &Formatter{
		ShowFields:  true,
		ShowEnums:   true,
		IndentWidth: 2,
	}
}

// Indent returns the content with indentation.
func (f *Formatter) Indent(depth int, content string) string {
	width := f.IndentWidth
	if width == 0 {
		width = 2
	}
	return strings.Repeat(" ", depth*width) + content
}

// FormatDevice lists the peripherals of a device.
func (f *Formatter) FormatDevice(dev *svd.Device, pers []PeripheralInfo) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "device %s", dev.Name)
	if dev.Version != "" {
		fmt.Fprintf(&sb, " %s", dev.Version)
	}
	sb.WriteString("\n")
	for _, p := range pers {
		line := fmt.Sprintf("%s @ %s", p.Name, svd.Hex(p.BaseAddress))
		if p.DerivedFrom != "" {
			line += " derived from " + p.DerivedFrom
		}
		line += fmt.Sprintf(", %d registers", p.Registers)
		sb.WriteString(f.Indent(1, line))
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatNode renders a resolved path and everything below it. children
// is the register block of a peripheral node.
func (f *Formatter) FormatNode(n *Node, children svd.Children) string {
	var sb strings.Builder
	switch n.Kind {
	case KindPeripheral:
		per := n.Peripheral
		sb.WriteString(fmt.Sprintf("peripheral %s @ %s", per.Name, per.BaseAddress))
		if per.DerivedFrom != "" {
			sb.WriteString(" derived from " + per.DerivedFrom)
		}
		sb.WriteString(describe(per.Description))
		sb.WriteString("\n")
		for _, irq := range per.Interrupts {
			sb.WriteString(f.Indent(1, fmt.Sprintf("interrupt %s = %d", irq.Name, irq.Value)))
			sb.WriteString("\n")
		}
		f.writeBlock(&sb, children, 1)
	case KindCluster:
		f.writeCluster(&sb, n.Clusters[len(n.Clusters)-1], int64(n.Address), 0)
	case KindRegister:
		f.writeRegister(&sb, n.Register, int64(n.Address), 0)
	case KindField:
		f.writeField(&sb, n.Field, 0)
	case KindEnum:
		f.writeEnum(&sb, n.Enum, 0)
	}
	return sb.String()
}

func (f *Formatter) writeBlock(sb *strings.Builder, cs svd.Children, depth int) {
	for _, c := range cs {
		switch {
		case c.Register != nil:
			f.writeRegister(sb, c.Register, -1, depth)
		case c.Cluster != nil:
			f.writeCluster(sb, c.Cluster, -1, depth)
		}
	}
}

func (f *Formatter) writeCluster(sb *strings.Builder, cl *svd.Cluster, addr int64, depth int) {
	line := fmt.Sprintf("cluster %s @ +%s%s%s", cl.Name, cl.AddressOffset, absolute(addr), dims(cl.DimElement))
	if cl.DerivedFrom != "" {
		line += " derived from " + cl.DerivedFrom
	}
	sb.WriteString(f.Indent(depth, line+describe(cl.Description)))
	sb.WriteString("\n")
	f.writeBlock(sb, cl.Children, depth+1)
}

func (f *Formatter) writeRegister(sb *strings.Builder, r *svd.Register, addr int64, depth int) {
	line := fmt.Sprintf("register %s @ +%s%s%s", r.Name, r.AddressOffset, absolute(addr), dims(r.DimElement))
	if r.Size != nil {
		line += fmt.Sprintf(" %d bit", uint64(*r.Size))
	}
	if r.Access != "" {
		line += " " + string(r.Access)
	}
	if r.DerivedFrom != "" {
		line += " derived from " + r.DerivedFrom
	}
	sb.WriteString(f.Indent(depth, line+describe(r.Description)))
	sb.WriteString("\n")
	if !f.ShowFields {
		return
	}
	for _, fd := range r.Fields {
		f.writeField(sb, fd, depth+1)
	}
}

func (f *Formatter) writeField(sb *strings.Builder, fd *svd.Field, depth int) {
	line := fmt.Sprintf("field %s %s%s", fd.Name, fd.Range(), dims(fd.DimElement))
	if fd.Access != "" {
		line += " " + string(fd.Access)
	}
	if fd.DerivedFrom != "" {
		line += " derived from " + fd.DerivedFrom
	}
	sb.WriteString(f.Indent(depth, line+describe(fd.Description)))
	sb.WriteString("\n")
	if !f.ShowEnums {
		return
	}
	for _, ev := range fd.EnumeratedValues {
		f.writeEnum(sb, ev, depth+1)
	}
}

func (f *Formatter) writeEnum(sb *strings.Builder, ev *svd.EnumeratedValues, depth int) {
	line := "enumeratedValues"
	if ev.Name != "" {
		line += " " + ev.Name
	}
	if ev.Usage != "" {
		line += " (" + ev.Usage + ")"
	}
	if ev.DerivedFrom != "" {
		line += " derived from " + ev.DerivedFrom
	}
	sb.WriteString(f.Indent(depth, line))
	sb.WriteString("\n")
	for _, v := range ev.Values {
		value := v.Value
		if v.Default() {
			value = "default"
		}
		sb.WriteString(f.Indent(depth+1, fmt.Sprintf("%s = %s%s", v.Name, value, describe(v.Description))))
		sb.WriteString("\n")
	}
}

// FormatInterrupts renders an interrupt table, one line per interrupt.
func (f *Formatter) FormatInterrupts(irqs []InterruptInfo) string {
	var sb strings.Builder
	for _, irq := range irqs {
		fmt.Fprintf(&sb, "%d %s: %s (in %s)\n", irq.Value, irq.Name, irq.Description, irq.Peripheral)
	}
	return sb.String()
}

// FormatGaps renders unused interrupt values.
func (f *Formatter) FormatGaps(gaps []int) string {
	parts := make([]string, len(gaps))
	for k, g := range gaps {
		parts[k] = strconv.Itoa(g)
	}
	return "Gaps: " + strings.Join(parts, ", ") + "\n"
}

func describe(desc string) string {
	if desc = oneLine(desc); desc != "" {
		return ": " + desc
	}
	return ""
}

func absolute(addr int64) string {
	if addr < 0 {
		return ""
	}
	return fmt.Sprintf(" (%s)", svd.Hex(addr))
}

func dims(d svd.DimElement) string {
	if !d.IsArray() {
		return ""
	}
	s := fmt.Sprintf(" [dim %d", uint64(*d.Dim))
	if d.DimIncrement != nil {
		s += " step " + d.DimIncrement.String()
	}
	if d.DimIndex != "" {
		s += " index " + d.DimIndex
	}
	return s + "]"
}
