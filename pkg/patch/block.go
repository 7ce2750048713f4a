package patch

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/svdpatch/svdpatch-go/pkg/match"
	"github.com/svdpatch/svdpatch-go/pkg/rules"
	"github.com/svdpatch/svdpatch-go/pkg/svd"
)

// block applies a peripheral or cluster rule block to a register block.
func (p *patcher) block(c *container, b *rules.Block) error {
	ts := p.containerText(c)
	pre := append(p.textSteps(ts),
		p.replaceStep(ts),
		step{rules.DirModify, func(n *yaml.Node) error { return p.modifyChildren(c, n) }},
		step{rules.DirClearFields, func(n *yaml.Node) error { return p.clearRegisterFields(c, n) }},
		step{rules.DirAdd, func(n *yaml.Node) error { return p.addChildren(c, n) }},
		step{rules.DirDelete, func(n *yaml.Node) error { return p.deleteChildren(c, n) }},
		step{rules.DirCopy, func(n *yaml.Node) error { return p.copyChildren(c, n) }},
		step{rules.DirDerive, func(n *yaml.Node) error { return p.deriveChildren(c, n) }},
	)
	if err := p.run(b, pre); err != nil {
		return err
	}

	for _, e := range b.Children {
		if err := p.childSpec(c, e); err != nil {
			return p.annotateEntry(err, e)
		}
	}

	return p.run(b, []step{
		{rules.DirExpandArray, func(n *yaml.Node) error { return p.expandArrays(c, n) }},
		{rules.DirArray, func(n *yaml.Node) error { return p.collectArrays(c, n) }},
		{rules.DirCluster, func(n *yaml.Node) error { return p.collectClusters(c, n) }},
		{rules.DirClusters, func(n *yaml.Node) error { return p.clusterSpecs(c, n) }},
		{rules.DirExpandCluster, func(n *yaml.Node) error { return p.expandClusters(c, n) }},
	})
}

// childSpec applies a register specifier. A specifier matching no
// register is tried against the clusters.
func (p *patcher) childSpec(c *container, e rules.Entry) error {
	spec := match.Parse(e.Spec)
	if regs := c.registers(spec); len(regs) > 0 {
		b, err := rules.ParseBlock(e.Value, rules.ScopeRegister)
		if err != nil {
			return err
		}
		for _, r := range regs {
			if err := p.register(c, r, b, p.cfg.UpdateFields); err != nil {
				return within(err, "register", r.Name)
			}
		}
		return nil
	}
	if cls := c.clusters(spec); len(cls) > 0 {
		return p.applyClusters(c, cls, e.Value)
	}
	if spec.Optional() {
		return nil
	}
	return noMatch("register", spec, c.childNames())
}

// clusterSpecs handles _clusters: {SPEC: cluster rules}.
func (p *patcher) clusterSpecs(c *container, n *yaml.Node) error {
	for _, kv := range rules.Pairs(n) {
		spec := match.Parse(kv.Key)
		cls := c.clusters(spec)
		if len(cls) == 0 {
			if spec.Optional() {
				continue
			}
			return noMatch("cluster", spec, c.childNames())
		}
		if err := p.applyClusters(c, cls, kv.Value); err != nil {
			return err
		}
	}
	return nil
}

func (p *patcher) applyClusters(c *container, cls []*svd.Cluster, n *yaml.Node) error {
	b, err := rules.ParseBlock(n, rules.ScopeCluster)
	if err != nil {
		return err
	}
	for _, cl := range cls {
		if cl.DerivedFrom != "" {
			p.debugLog("skipping derived cluster", "path", c.path, "cluster", cl.Name)
			continue
		}
		if err := p.block(c.cluster(cl), b); err != nil {
			return within(err, "cluster", cl.Name)
		}
	}
	return nil
}

// modifyChildren handles _modify at peripheral and cluster scope.
func (p *patcher) modifyChildren(c *container, n *yaml.Node) error {
	for _, kv := range rules.Pairs(n) {
		var err error
		switch kv.Key {
		case "_registers":
			for _, rk := range rules.Pairs(kv.Value) {
				if err = p.modifyRegisters(c, rk.Key, rk.Value, false); err != nil {
					break
				}
			}
		case "_clusters":
			for _, ck := range rules.Pairs(kv.Value) {
				if err = p.modifyClusters(c, ck.Key, ck.Value, false); err != nil {
					break
				}
			}
		case "_interrupts":
			err = p.modifyInterrupts(c, kv.Value)
		default:
			err = p.modifyAny(c, kv.Key, kv.Value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// modifyAny modifies the registers and clusters matching key.
func (p *patcher) modifyAny(c *container, key string, attrs *yaml.Node) error {
	spec := match.Parse(key)
	if len(c.registers(spec)) == 0 && len(c.clusters(spec)) == 0 {
		if spec.Optional() {
			return nil
		}
		return noMatch("register", spec, c.childNames())
	}
	if err := p.modifyRegisters(c, key, attrs, true); err != nil {
		return err
	}
	return p.modifyClusters(c, key, attrs, true)
}

func (p *patcher) modifyRegisters(c *container, key string, attrs *yaml.Node, quiet bool) error {
	spec := match.Parse(key)
	regs := c.registers(spec)
	if len(regs) == 0 {
		if spec.Optional() || quiet {
			return nil
		}
		return noMatch("register", spec, c.childNames())
	}
	before := c.childNames()
	for _, r := range regs {
		if err := p.setRegister(r, attrs, c.names(), c.size); err != nil {
			return within(err, "register", r.Name)
		}
	}
	if _, err := p.containerText(c).settle(before); err != nil {
		return err
	}
	p.trace(c.scope(), c.path, rules.DirModify, key, registerNames(regs), nil, nil)
	return nil
}

func (p *patcher) modifyClusters(c *container, key string, attrs *yaml.Node, quiet bool) error {
	spec := match.Parse(key)
	cls := c.clusters(spec)
	if len(cls) == 0 {
		if spec.Optional() || quiet {
			return nil
		}
		return noMatch("cluster", spec, c.childNames())
	}
	before := c.childNames()
	for _, cl := range cls {
		if err := p.setCluster(cl, attrs, c.names(), c.size); err != nil {
			return within(err, "cluster", cl.Name)
		}
	}
	if _, err := p.containerText(c).settle(before); err != nil {
		return err
	}
	p.trace(c.scope(), c.path, rules.DirModify, key, nil, nil, nil)
	return nil
}

// clearRegisterFields drops enumerated values and write constraints of
// every field of the matched registers.
func (p *patcher) clearRegisterFields(c *container, n *yaml.Node) error {
	specs, err := rules.Strings(n)
	if err != nil {
		return err
	}
	for _, s := range specs {
		spec := match.Parse(s)
		regs := c.registers(spec)
		if len(regs) == 0 && !spec.Optional() {
			return noMatch("register", spec, c.childNames())
		}
		for _, r := range regs {
			clearFields(r.Fields)
		}
		p.trace(c.scope(), c.path, rules.DirClearFields, s, registerNames(regs), nil, nil)
	}
	return nil
}

// addChildren handles _add at peripheral and cluster scope.
func (p *patcher) addChildren(c *container, n *yaml.Node) error {
	for _, kv := range rules.Pairs(n) {
		var err error
		switch kv.Key {
		case "_registers":
			for _, rk := range rules.Pairs(kv.Value) {
				if err = p.addRegister(c, rk.Key, rk.Value); err != nil {
					break
				}
			}
		case "_clusters":
			for _, ck := range rules.Pairs(kv.Value) {
				if err = p.addCluster(c, ck.Key, ck.Value); err != nil {
					break
				}
			}
		case "_interrupts":
			err = p.addInterrupts(c, kv.Value)
		default:
			err = p.addRegister(c, kv.Key, kv.Value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *patcher) addRegister(c *container, name string, attrs *yaml.Node) error {
	r, err := p.newRegister(c.children, name, attrs, c.names(), c.size)
	if err != nil {
		return within(err, "register", name)
	}
	if r.DerivedFrom != "" && !registerSourceExists(c, r.DerivedFrom) {
		return within(missing("derivedFrom %s does not exist", r.DerivedFrom), "register", name)
	}
	insertByOffset(c.children, svd.Child{Register: r}, uint64(r.AddressOffset))
	p.trace(c.scope(), c.path, rules.DirAdd, name, nil, []string{name}, nil)
	return nil
}

func registerSourceExists(c *container, name string) bool {
	return strings.Contains(name, ".") || c.children.Register(name) != nil
}

func (p *patcher) addCluster(c *container, name string, attrs *yaml.Node) error {
	if c.children.Index(name) >= 0 {
		return exists("%s already exists in %s", name, c.name)
	}
	cl := &svd.Cluster{Name: name}
	if err := p.setCluster(cl, attrs, c.names(), c.size); err != nil {
		return within(err, "cluster", name)
	}
	insertByOffset(c.children, svd.Child{Cluster: cl}, uint64(cl.AddressOffset))
	p.trace(c.scope(), c.path, rules.DirAdd, name, nil, []string{name}, nil)
	return nil
}

// deleteChildren handles _delete at peripheral and cluster scope: a name
// list removing registers and clusters, or a mapping of _registers,
// _clusters and _interrupts lists.
func (p *patcher) deleteChildren(c *container, n *yaml.Node) error {
	if !rules.IsMap(n) {
		specs, err := rules.Strings(n)
		if err != nil {
			return err
		}
		for _, s := range specs {
			p.deleteMatching(c, s, true, true)
		}
		return nil
	}
	for _, kv := range rules.Pairs(n) {
		specs, err := rules.Strings(kv.Value)
		if err != nil {
			return err
		}
		switch kv.Key {
		case "_registers":
			for _, s := range specs {
				p.deleteMatching(c, s, true, false)
			}
		case "_clusters":
			for _, s := range specs {
				p.deleteMatching(c, s, false, true)
			}
		case "_interrupts":
			if err := p.deleteInterrupts(c, kv.Value); err != nil {
				return err
			}
		default:
			return structural("_delete takes _registers, _clusters or _interrupts, found %s", kv.Key)
		}
	}
	return nil
}

func (p *patcher) deleteMatching(c *container, s string, regs, clusters bool) {
	spec := match.Parse(s)
	var removed []string
	if regs {
		for _, r := range c.registers(spec) {
			c.children.RemoveRegister(r)
			removed = append(removed, r.Name)
		}
	}
	if clusters {
		for _, cl := range c.clusters(spec) {
			c.children.RemoveCluster(cl)
			removed = append(removed, cl.Name)
		}
	}
	if len(removed) == 0 {
		p.debugLog("delete: nothing matched", "path", c.path, "spec", s)
		return
	}
	p.trace(c.scope(), c.path, rules.DirDelete, s, nil, nil, removed)
}

func (p *patcher) modifyInterrupts(c *container, n *yaml.Node) error {
	for _, kv := range rules.Pairs(n) {
		spec := match.Parse(kv.Key)
		irqs := match.Filter(c.periph.Interrupts, spec, interruptName)
		if len(irqs) == 0 {
			if spec.Optional() {
				continue
			}
			return noMatch("interrupt", spec, interruptNames(c.periph.Interrupts))
		}
		for _, irq := range irqs {
			if err := setAttrs(kv.Value, interpolated(c.names(), irq.Set), nil); err != nil {
				return within(err, "interrupt", irq.Name)
			}
		}
		p.trace(c.scope(), c.path, rules.DirModify, kv.Key, interruptNames(irqs), nil, nil)
	}
	return nil
}

func (p *patcher) addInterrupts(c *container, n *yaml.Node) error {
	for _, kv := range rules.Pairs(n) {
		if c.periph.Interrupt(kv.Key) != nil {
			return exists("interrupt %s already exists", kv.Key)
		}
		irq := &svd.Interrupt{Name: kv.Key}
		if err := setAttrs(kv.Value, interpolated(c.names(), irq.Set), nil); err != nil {
			return within(err, "interrupt", kv.Key)
		}
		c.periph.Interrupts = append(c.periph.Interrupts, irq)
		p.trace(c.scope(), c.path, rules.DirAdd, kv.Key, nil, []string{kv.Key}, nil)
	}
	return nil
}

func (p *patcher) deleteInterrupts(c *container, n *yaml.Node) error {
	specs, err := rules.Strings(n)
	if err != nil {
		return err
	}
	for _, s := range specs {
		spec := match.Parse(s)
		var kept []*svd.Interrupt
		var removed []string
		for _, irq := range c.periph.Interrupts {
			if spec.Match(irq.Name) {
				removed = append(removed, irq.Name)
				continue
			}
			kept = append(kept, irq)
		}
		c.periph.Interrupts = kept
		if len(removed) == 0 {
			p.debugLog("delete: no interrupt matched", "path", c.path, "spec", s)
			continue
		}
		p.trace(c.scope(), c.path, rules.DirDelete, s, nil, nil, removed)
	}
	return nil
}

func interruptNames(irqs []*svd.Interrupt) []string {
	out := make([]string, len(irqs))
	for i, irq := range irqs {
		out[i] = irq.Name
	}
	return out
}
