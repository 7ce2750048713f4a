package patch

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/svdpatch/svdpatch-go/pkg/log"
	"github.com/svdpatch/svdpatch-go/pkg/match"
	"github.com/svdpatch/svdpatch-go/pkg/rules"
	"github.com/svdpatch/svdpatch-go/pkg/svd"
)

// copyPeripherals handles {TARGET: {from: "[file.svd:]SOURCE"}}.
func (p *patcher) copyPeripherals(n *yaml.Node) error {
	for _, kv := range rules.Pairs(n) {
		from := kv.Value
		if rules.IsMap(kv.Value) {
			from = rules.Lookup(kv.Value, "from")
		}
		src, err := rules.Scalar(from)
		if err != nil || src == "" {
			return within(structural("_copy needs a from: source"), "peripheral", kv.Key)
		}
		if err := p.copyPeripheral(kv.Key, src); err != nil {
			return within(err, "peripheral", kv.Key)
		}
	}
	return nil
}

func (p *patcher) copyPeripheral(target, from string) error {
	var (
		source    *svd.Peripheral
		sameFile  = true
		file, src = "", from
	)
	if i := strings.LastIndex(from, ":"); i >= 0 {
		file, src = from[:i], from[i+1:]
		sameFile = false
	}
	if sameFile {
		source = p.dev.Peripheral(src)
	} else {
		other, err := p.cfg.loader().LoadDevice(p.doc.Resolve(file))
		if err != nil {
			return &Error{Kind: KindReference, Msg: "load copy source " + file + ": " + err.Error(), Err: err}
		}
		source = other.Peripheral(src)
	}
	if source == nil {
		return missing("copy source %s not found", from)
	}

	cp := source.Clone()
	cp.Name = target
	cp.DerivedFrom = ""
	if sameFile {
		cp.BaseAddress = 0
		cp.Interrupts = nil
	}

	if old := p.dev.Peripheral(target); old != nil {
		cp.BaseAddress = old.BaseAddress
		cp.Interrupts = old.Interrupts
		*old = *cp
	} else {
		p.dev.Peripherals = append(p.dev.Peripherals, cp)
	}
	p.debugLog("copied peripheral", "from", from, "to", target)
	p.trace(log.ScopeDevice, "", rules.DirCopy, target, []string{from}, []string{target}, nil)
	return nil
}

// peripheralChain reports whether following derivedFrom links from name
// reaches target.
func (p *patcher) peripheralChain(name, target string) bool {
	seen := make(map[string]bool)
	for name != "" && !seen[name] {
		if name == target {
			return true
		}
		seen[name] = true
		per := p.dev.Peripheral(name)
		if per == nil {
			return false
		}
		name = per.DerivedFrom
	}
	return false
}

// repointPeripherals moves every derivedFrom reference to from onto to.
func (p *patcher) repointPeripherals(from, to string) []string {
	var moved []string
	for _, per := range p.dev.Peripherals {
		if per.DerivedFrom == from && per.Name != to {
			per.DerivedFrom = to
			moved = append(moved, per.Name)
		}
	}
	return moved
}

// derivePeripherals handles {TARGET: SOURCE}: TARGET keeps its name, base
// address and interrupts and derives everything else from SOURCE.
func (p *patcher) derivePeripherals(n *yaml.Node) error {
	for _, kv := range rules.Pairs(n) {
		src, err := rules.Scalar(kv.Value)
		if err != nil {
			return err
		}
		if err := p.derivePeripheral(kv.Key, src); err != nil {
			return within(err, "peripheral", kv.Key)
		}
	}
	return nil
}

func (p *patcher) derivePeripheral(target, src string) error {
	if target == src {
		return &Error{Kind: KindReference, Msg: "peripheral cannot derive from itself", Err: ErrConflict}
	}
	per := p.dev.Peripheral(target)
	if per == nil {
		return missing("peripheral %s not found", target)
	}
	if p.dev.Peripheral(src) == nil {
		return missing("derive source %s not found", src)
	}
	if p.peripheralChain(src, target) {
		return &Error{Kind: KindReference, Msg: "deriving from " + src + " creates a derivedFrom cycle", Err: ErrConflict}
	}

	*per = svd.Peripheral{
		Name:        per.Name,
		BaseAddress: per.BaseAddress,
		Interrupts:  per.Interrupts,
		DerivedFrom: src,
	}
	moved := p.repointPeripherals(target, src)
	p.debugLog("derived peripheral", "peripheral", target, "from", src, "repointed", moved)
	p.trace(log.ScopeDevice, "", rules.DirDerive, target, moved, nil, nil)
	return nil
}

// rebasePeripherals handles {NEW: OLD}: NEW takes over the content of
// OLD, which becomes derived from NEW.
func (p *patcher) rebasePeripherals(n *yaml.Node) error {
	for _, kv := range rules.Pairs(n) {
		old, err := rules.Scalar(kv.Value)
		if err != nil {
			return err
		}
		if err := p.rebasePeripheral(kv.Key, old); err != nil {
			return within(err, "peripheral", kv.Key)
		}
	}
	return nil
}

func (p *patcher) rebasePeripheral(newName, oldName string) error {
	if newName == oldName {
		return &Error{Kind: KindReference, Msg: "peripheral cannot be rebased onto itself", Err: ErrConflict}
	}
	nw := p.dev.Peripheral(newName)
	if nw == nil {
		return missing("peripheral %s not found", newName)
	}
	old := p.dev.Peripheral(oldName)
	if old == nil {
		return missing("rebase source %s not found", oldName)
	}

	content := *old
	content.Name = nw.Name
	content.BaseAddress = nw.BaseAddress
	content.Interrupts = nw.Interrupts
	content.DerivedFrom = ""

	*old = svd.Peripheral{
		Name:        old.Name,
		BaseAddress: old.BaseAddress,
		Interrupts:  old.Interrupts,
		DerivedFrom: newName,
	}
	*nw = content

	moved := p.repointPeripherals(oldName, newName)
	p.debugLog("rebased peripheral", "peripheral", newName, "from", oldName, "repointed", moved)
	p.trace(log.ScopeDevice, "", rules.DirRebase, newName, append([]string{oldName}, moved...), nil, nil)
	return nil
}

// copyChildren handles the container _copy forms:
// {_registers: {NAME: {_from: SRC}}} and {NAME: {_from: SRC, attrs}}.
func (p *patcher) copyChildren(c *container, n *yaml.Node) error {
	for _, kv := range rules.Pairs(n) {
		switch kv.Key {
		case "_registers":
			for _, rk := range rules.Pairs(kv.Value) {
				if err := p.copyRegister(c, rk.Key, rk.Value); err != nil {
					return within(err, "register", rk.Key)
				}
			}
		case "_clusters":
			return structural("_copy of clusters is not supported; use _derive")
		default:
			if err := p.copyRegister(c, kv.Key, kv.Value); err != nil {
				return within(err, "register", kv.Key)
			}
		}
	}
	return nil
}

func (p *patcher) copyRegister(c *container, target string, n *yaml.Node) error {
	from, err := rules.Scalar(rules.Lookup(n, "_from"))
	if err != nil || from == "" {
		return structural("_copy needs a _from: source register")
	}
	src := c.children.Register(from)
	if src == nil {
		return missing("copy source %s not found in %s", from, c.name)
	}
	cp := src.Clone()
	cp.Name = target
	cp.DisplayName = ""
	if err := p.setRegister(cp, without(n, "_from"), c.names(), c.size); err != nil {
		return err
	}

	if old := c.children.Register(target); old != nil {
		cp.AddressOffset = old.AddressOffset
		*old = *cp
	} else {
		if c.children.Cluster(target) != nil {
			return exists("a cluster named %s already exists", target)
		}
		insertByOffset(c.children, svd.Child{Register: cp}, uint64(cp.AddressOffset))
	}
	p.trace(c.scope(), c.path, rules.DirCopy, target, []string{from}, []string{target}, nil)
	return nil
}

// deriveChildren handles the container _derive forms:
// {NAME: SRC}, {NAME: {_from: SRC, attrs}} and the same under
// _registers or _clusters.
func (p *patcher) deriveChildren(c *container, n *yaml.Node) error {
	for _, kv := range rules.Pairs(n) {
		var err error
		switch kv.Key {
		case "_registers":
			for _, rk := range rules.Pairs(kv.Value) {
				if err = p.deriveRegister(c, rk.Key, rk.Value); err != nil {
					break
				}
			}
		case "_clusters":
			for _, ck := range rules.Pairs(kv.Value) {
				if err = p.deriveCluster(c, ck.Key, ck.Value); err != nil {
					break
				}
			}
		default:
			err = p.deriveRegister(c, kv.Key, kv.Value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// deriveSource splits SRC or {_from: SRC, attrs} into the source name and
// the remaining attributes.
func deriveSource(n *yaml.Node) (string, *yaml.Node, error) {
	if rules.IsMap(n) {
		src, err := rules.Scalar(rules.Lookup(n, "_from"))
		if err != nil || src == "" {
			return "", nil, structural("_derive needs a _from: source")
		}
		return src, without(n, "_from"), nil
	}
	src, err := rules.Scalar(n)
	if err != nil || src == "" {
		return "", nil, structural("_derive needs a source name")
	}
	return src, nil, nil
}

// registerChain reports whether following register derivedFrom links
// inside c from name reaches target.
func registerChain(c *container, name, target string) bool {
	seen := make(map[string]bool)
	for name != "" && !seen[name] {
		if name == target {
			return true
		}
		seen[name] = true
		r := c.children.Register(name)
		if r == nil {
			return false
		}
		name = r.DerivedFrom
	}
	return false
}

func (p *patcher) deriveRegister(c *container, key string, n *yaml.Node) error {
	src, attrs, err := deriveSource(n)
	if err != nil {
		return within(err, "register", key)
	}
	spec := match.Parse(key)
	// A dotted source names a register in another block and is not
	// verified here.
	if !strings.Contains(src, ".") {
		if c.children.Register(src) == nil {
			return within(missing("derive source %s not found", src), "register", key)
		}
	}

	targets := c.registers(spec)
	var created []string
	if len(targets) == 0 {
		if spec.Optional() {
			return nil
		}
		if !spec.IsLiteral() {
			return noMatch("register", spec, c.childNames())
		}
		r := &svd.Register{Name: key, DerivedFrom: src}
		if err := p.setRegister(r, attrs, c.names(), c.size); err != nil {
			return within(err, "register", key)
		}
		insertByOffset(c.children, svd.Child{Register: r}, uint64(r.AddressOffset))
		created = append(created, key)
	}

	var moved []string
	for _, r := range targets {
		if r.Name == src || (!strings.Contains(src, ".") && registerChain(c, src, r.Name)) {
			return within(&Error{Kind: KindReference, Msg: "deriving from " + src + " creates a derivedFrom cycle", Err: ErrConflict}, "register", r.Name)
		}
		*r = svd.Register{
			Name:          r.Name,
			AddressOffset: r.AddressOffset,
			DimElement:    r.DimElement,
			DerivedFrom:   src,
		}
		if err := p.setRegister(r, attrs, c.names(), c.size); err != nil {
			return within(err, "register", r.Name)
		}
		for _, other := range c.children.Registers() {
			if other.DerivedFrom == r.Name && other != r {
				other.DerivedFrom = src
				moved = append(moved, other.Name)
			}
		}
	}
	p.trace(c.scope(), c.path, rules.DirDerive, key, append(registerNames(targets), moved...), created, nil)
	return nil
}

func (p *patcher) deriveCluster(c *container, key string, n *yaml.Node) error {
	src, attrs, err := deriveSource(n)
	if err != nil {
		return within(err, "cluster", key)
	}
	if !strings.Contains(src, ".") && c.children.Cluster(src) == nil {
		return within(missing("derive source %s not found", src), "cluster", key)
	}
	spec := match.Parse(key)
	targets := c.clusters(spec)
	if len(targets) == 0 {
		if spec.Optional() {
			return nil
		}
		return noMatch("cluster", spec, c.childNames())
	}
	for _, cl := range targets {
		if cl.Name == src {
			return within(&Error{Kind: KindReference, Msg: "cluster cannot derive from itself", Err: ErrConflict}, "cluster", cl.Name)
		}
		*cl = svd.Cluster{
			Name:          cl.Name,
			AddressOffset: cl.AddressOffset,
			DimElement:    cl.DimElement,
			DerivedFrom:   src,
		}
		if err := p.setCluster(cl, attrs, c.names(), c.size); err != nil {
			return within(err, "cluster", cl.Name)
		}
		for _, other := range c.children.Clusters() {
			if other.DerivedFrom == cl.Name && other != cl {
				other.DerivedFrom = src
			}
		}
	}
	p.trace(c.scope(), c.path, rules.DirDerive, key, nil, nil, nil)
	return nil
}
