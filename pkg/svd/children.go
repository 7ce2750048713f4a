package svd

// Children is the ordered register block of a peripheral or cluster.
type Children []Child

// Registers returns the registers of the block, in order.
func (cs Children) Registers() []*Register {
	var out []*Register
	for _, c := range cs {
		if c.Register != nil {
			out = append(out, c.Register)
		}
	}
	return out
}

// Clusters returns the clusters of the block, in order.
func (cs Children) Clusters() []*Cluster {
	var out []*Cluster
	for _, c := range cs {
		if c.Cluster != nil {
			out = append(out, c.Cluster)
		}
	}
	return out
}

// Register returns the register with the given name, or nil.
func (cs Children) Register(name string) *Register {
	for _, c := range cs {
		if c.Register != nil && c.Register.Name == name {
			return c.Register
		}
	}
	return nil
}

// Cluster returns the cluster with the given name, or nil.
func (cs Children) Cluster(name string) *Cluster {
	for _, c := range cs {
		if c.Cluster != nil && c.Cluster.Name == name {
			return c.Cluster
		}
	}
	return nil
}

// Index returns the position of the child with the given name, or -1.
func (cs Children) Index(name string) int {
	for i, c := range cs {
		if c.Name() == name {
			return i
		}
	}
	return -1
}

// Insert places c at position i.
func (cs *Children) Insert(i int, c Child) {
	if i < 0 || i > len(*cs) {
		i = len(*cs)
	}
	*cs = append(*cs, Child{})
	copy((*cs)[i+1:], (*cs)[i:])
	(*cs)[i] = c
}

// RemoveRegister deletes the register r and returns its former position,
// or -1 if r is not part of the block.
func (cs *Children) RemoveRegister(r *Register) int {
	for i, c := range *cs {
		if c.Register == r {
			*cs = append((*cs)[:i], (*cs)[i+1:]...)
			return i
		}
	}
	return -1
}

// RemoveCluster deletes the cluster c and returns its former position, or
// -1 if c is not part of the block.
func (cs *Children) RemoveCluster(cl *Cluster) int {
	for i, c := range *cs {
		if c.Cluster == cl {
			*cs = append((*cs)[:i], (*cs)[i+1:]...)
			return i
		}
	}
	return -1
}

// Peripheral returns the peripheral with the given name, or nil.
func (d *Device) Peripheral(name string) *Peripheral {
	for _, p := range d.Peripherals {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// RemovePeripheral deletes p and returns its former position, or -1.
func (d *Device) RemovePeripheral(p *Peripheral) int {
	for i, q := range d.Peripherals {
		if q == p {
			d.Peripherals = append(d.Peripherals[:i], d.Peripherals[i+1:]...)
			return i
		}
	}
	return -1
}

// Field returns the field with the given name, or nil.
func (r *Register) Field(name string) *Field {
	for _, f := range r.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// RemoveField deletes f and returns its former position, or -1.
func (r *Register) RemoveField(f *Field) int {
	for i, g := range r.Fields {
		if g == f {
			r.Fields = append(r.Fields[:i], r.Fields[i+1:]...)
			return i
		}
	}
	return -1
}

// Interrupt returns the interrupt with the given name, or nil.
func (p *Peripheral) Interrupt(name string) *Interrupt {
	for _, i := range p.Interrupts {
		if i.Name == name {
			return i
		}
	}
	return nil
}

// Walk calls fn for every register reachable from the block, descending
// into clusters. The cluster path leading to each register is passed
// along, outermost first.
func (cs Children) Walk(fn func(path []*Cluster, r *Register)) {
	cs.walk(nil, fn)
}

func (cs Children) walk(path []*Cluster, fn func([]*Cluster, *Register)) {
	for _, c := range cs {
		switch {
		case c.Register != nil:
			fn(path, c.Register)
		case c.Cluster != nil:
			c.Cluster.Children.walk(append(path[:len(path):len(path)], c.Cluster), fn)
		}
	}
}
