package svd

import "encoding/xml"

// Deep copies used when elements are duplicated by copy, derive and array
// expansion. Copies never share mutable state with the original.

func cloneNum(n *Num) *Num {
	if n == nil {
		return nil
	}
	v := *n
	return &v
}

func cloneHex(h *Hex) *Hex {
	if h == nil {
		return nil
	}
	v := *h
	return &v
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}

func cloneRaw(r *Raw) *Raw {
	if r == nil {
		return nil
	}
	c := *r
	c.Attrs = append([]xml.Attr(nil), r.Attrs...)
	return &c
}

// Clone returns a deep copy of the dimension metadata.
func (d DimElement) Clone() DimElement {
	return DimElement{
		Dim:           cloneNum(d.Dim),
		DimIncrement:  cloneHex(d.DimIncrement),
		DimIndex:      d.DimIndex,
		DimName:       d.DimName,
		DimArrayIndex: cloneRaw(d.DimArrayIndex),
	}
}

// Clone returns a deep copy of the properties.
func (p RegisterProperties) Clone() RegisterProperties {
	return RegisterProperties{
		Size:       cloneNum(p.Size),
		Access:     p.Access,
		Protection: p.Protection,
		ResetValue: cloneHex(p.ResetValue),
		ResetMask:  cloneHex(p.ResetMask),
	}
}

// Clone returns a deep copy of the write constraint.
func (w *WriteConstraint) Clone() *WriteConstraint {
	if w == nil {
		return nil
	}
	c := &WriteConstraint{
		WriteAsRead:         cloneBool(w.WriteAsRead),
		UseEnumeratedValues: cloneBool(w.UseEnumeratedValues),
	}
	if w.Range != nil {
		r := *w.Range
		c.Range = &r
	}
	return c
}

// Clone returns a deep copy of the enumeration.
func (e *EnumeratedValues) Clone() *EnumeratedValues {
	c := *e
	c.Values = make([]*EnumeratedValue, len(e.Values))
	for i, v := range e.Values {
		vc := *v
		vc.IsDefault = cloneBool(v.IsDefault)
		c.Values[i] = &vc
	}
	return &c
}

// Clone returns a deep copy of the field.
func (f *Field) Clone() *Field {
	c := *f
	c.DimElement = f.DimElement.Clone()
	c.WriteConstraint = f.WriteConstraint.Clone()
	c.EnumeratedValues = nil
	for _, e := range f.EnumeratedValues {
		c.EnumeratedValues = append(c.EnumeratedValues, e.Clone())
	}
	return &c
}

// Clone returns a deep copy of the register.
func (r *Register) Clone() *Register {
	c := *r
	c.DimElement = r.DimElement.Clone()
	c.RegisterProperties = r.RegisterProperties.Clone()
	c.WriteConstraint = r.WriteConstraint.Clone()
	c.Fields = nil
	for _, f := range r.Fields {
		c.Fields = append(c.Fields, f.Clone())
	}
	return &c
}

// Clone returns a deep copy of the register block.
func (cs Children) Clone() Children {
	if cs == nil {
		return nil
	}
	out := make(Children, len(cs))
	for i, ch := range cs {
		switch {
		case ch.Register != nil:
			out[i] = Child{Register: ch.Register.Clone()}
		case ch.Cluster != nil:
			out[i] = Child{Cluster: ch.Cluster.Clone()}
		}
	}
	return out
}

// Clone returns a deep copy of the cluster.
func (c *Cluster) Clone() *Cluster {
	n := *c
	n.DimElement = c.DimElement.Clone()
	n.RegisterProperties = c.RegisterProperties.Clone()
	n.Children = c.Children.Clone()
	return &n
}

// Clone returns a deep copy of the peripheral.
func (p *Peripheral) Clone() *Peripheral {
	n := *p
	n.DimElement = p.DimElement.Clone()
	n.RegisterProperties = p.RegisterProperties.Clone()
	n.AddressBlocks = nil
	for _, b := range p.AddressBlocks {
		bc := *b
		n.AddressBlocks = append(n.AddressBlocks, &bc)
	}
	n.Interrupts = nil
	for _, i := range p.Interrupts {
		ic := *i
		n.Interrupts = append(n.Interrupts, &ic)
	}
	n.Children = p.Children.Clone()
	return &n
}

// Clone returns a deep copy of the CPU description.
func (c *CPU) Clone() *CPU {
	if c == nil {
		return nil
	}
	n := *c
	n.MPUPresent = cloneBool(c.MPUPresent)
	n.FPUPresent = cloneBool(c.FPUPresent)
	n.FPUDP = cloneBool(c.FPUDP)
	n.DSPPresent = cloneBool(c.DSPPresent)
	n.ICachePresent = cloneBool(c.ICachePresent)
	n.DCachePresent = cloneBool(c.DCachePresent)
	n.ITCMPresent = cloneBool(c.ITCMPresent)
	n.DTCMPresent = cloneBool(c.DTCMPresent)
	n.VTORPresent = cloneBool(c.VTORPresent)
	n.DeviceNumInterrupts = cloneNum(c.DeviceNumInterrupts)
	n.SAUNumRegions = cloneNum(c.SAUNumRegions)
	n.SAURegionsConfig = cloneRaw(c.SAURegionsConfig)
	return &n
}

// Clone returns a deep copy of the whole device tree.
func (d *Device) Clone() *Device {
	n := *d
	n.CPU = d.CPU.Clone()
	n.RegisterProperties = d.RegisterProperties.Clone()
	n.Peripherals = nil
	for _, p := range d.Peripherals {
		n.Peripherals = append(n.Peripherals, p.Clone())
	}
	n.VendorExtensions = cloneRaw(d.VendorExtensions)
	return &n
}
