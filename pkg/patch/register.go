package patch

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/svdpatch/svdpatch-go/pkg/log"
	"github.com/svdpatch/svdpatch-go/pkg/match"
	"github.com/svdpatch/svdpatch-go/pkg/rules"
	"github.com/svdpatch/svdpatch-go/pkg/svd"
)

// regScope is a register being patched.
type regScope struct {
	c    *container
	r    *svd.Register
	path string
	size uint32
}

func (rs *regScope) names() names {
	n := rs.c.names()
	n.register = rs.r.Name
	return n
}

func (rs *regScope) fields(s match.Spec) []*svd.Field {
	return match.Filter(rs.r.Fields, s, fieldName)
}

func (rs *regScope) selectFields(s match.Spec) ([]*svd.Field, error) {
	fs := rs.fields(s)
	if len(fs) == 0 && !s.Optional() {
		return nil, noMatch("field", s, fieldNames(rs.r.Fields))
	}
	return fs, nil
}

// register applies a register rule block. Derived registers are left
// alone. updateFields enables field specs.
func (p *patcher) register(c *container, r *svd.Register, b *rules.Block, updateFields bool) error {
	if r.DerivedFrom != "" {
		p.debugLog("skipping derived register", "path", c.path, "register", r.Name)
		return nil
	}
	rs := &regScope{c: c, r: r, path: c.path + "/" + r.Name, size: c.registerSize(r)}
	ts := p.fieldTextScope(rs.path, r)

	steps := append(p.textSteps(ts),
		p.replaceStep(ts),
		step{rules.DirModify, func(n *yaml.Node) error { return p.modifyFields(rs, n) }},
		step{rules.DirAdd, func(n *yaml.Node) error { return p.addFields(rs, n) }},
		step{rules.DirDelete, func(n *yaml.Node) error { return p.deleteFields(rs, n) }},
		step{rules.DirClear, func(n *yaml.Node) error { return p.clearEnums(rs, n) }},
		step{rules.DirMerge, func(n *yaml.Node) error { return p.mergeFields(rs, n) }},
		step{rules.DirSplit, func(n *yaml.Node) error { return p.splitFields(rs, n) }},
	)
	if err := p.run(b, steps); err != nil {
		return err
	}

	if updateFields {
		for _, e := range b.Children {
			if err := p.fieldSpec(rs, e); err != nil {
				return p.annotateEntry(err, e)
			}
		}
	}

	return p.run(b, []step{
		{rules.DirArray, func(n *yaml.Node) error { return p.collectFieldArrays(rs, n) }},
	})
}

func (p *patcher) modifyFields(rs *regScope, n *yaml.Node) error {
	for _, kv := range rules.Pairs(n) {
		spec := match.Parse(kv.Key)
		fs, err := rs.selectFields(spec)
		if err != nil {
			return err
		}
		if len(fs) == 0 {
			continue
		}
		before := fieldNames(rs.r.Fields)
		for _, f := range fs {
			if err := p.setField(f, kv.Value, rs.names()); err != nil {
				return within(err, "field", f.Name)
			}
		}
		if _, err := p.fieldTextScope(rs.path, rs.r).settle(before); err != nil {
			return err
		}
		if err := checkFields(rs.r, rs.size); err != nil {
			return err
		}
		p.trace(log.ScopeRegister, rs.path, rules.DirModify, kv.Key, fieldNames(fs), nil, nil)
	}
	return nil
}

func (p *patcher) addFields(rs *regScope, n *yaml.Node) error {
	for _, kv := range rules.Pairs(n) {
		if rs.r.Field(kv.Key) != nil {
			return exists("field %s already exists", kv.Key)
		}
		f := &svd.Field{Name: kv.Key}
		if err := p.setField(f, kv.Value, rs.names()); err != nil {
			return within(err, "field", kv.Key)
		}
		if !fitsIn(f.Range(), rs.size) {
			return within(structural("bits %s exceed the %d bit register", f.Range(), rs.size), "field", kv.Key)
		}
		insertField(rs.r, f)
		p.trace(log.ScopeRegister, rs.path, rules.DirAdd, kv.Key, nil, []string{kv.Key}, nil)
	}
	return nil
}

// deleteFields takes a list of field specifiers, or {_fields: [...]}.
func (p *patcher) deleteFields(rs *regScope, n *yaml.Node) error {
	if rules.IsMap(n) {
		for _, kv := range rules.Pairs(n) {
			if kv.Key != "_fields" {
				return structural("_delete at register scope takes _fields, found %s", kv.Key)
			}
		}
		n = rules.Lookup(n, "_fields")
	}
	specs, err := rules.Strings(n)
	if err != nil {
		return err
	}
	for _, s := range specs {
		fs := rs.fields(match.Parse(s))
		if len(fs) == 0 {
			p.debugLog("delete: no field matched", "path", rs.path, "spec", s)
			continue
		}
		for _, f := range fs {
			rs.r.RemoveField(f)
		}
		p.trace(log.ScopeRegister, rs.path, rules.DirDelete, s, nil, nil, fieldNames(fs))
	}
	return nil
}

// clearEnums drops the enumerated values and write constraint of the
// matched fields. Fields derived from another field are left alone.
func (p *patcher) clearEnums(rs *regScope, n *yaml.Node) error {
	specs, err := rules.Strings(n)
	if err != nil {
		return err
	}
	for _, s := range specs {
		fs := rs.fields(match.Parse(s))
		if len(fs) == 0 {
			p.debugLog("clear: no field matched", "path", rs.path, "spec", s)
			continue
		}
		var cleared []*svd.Field
		for _, f := range fs {
			if f.DerivedFrom != "" {
				p.debugLog("clear: skipping derived field", "path", rs.path, "field", f.Name)
				continue
			}
			f.EnumeratedValues = nil
			f.WriteConstraint = nil
			cleared = append(cleared, f)
		}
		if len(cleared) > 0 {
			p.trace(log.ScopeRegister, rs.path, rules.DirClear, s, fieldNames(cleared), nil, nil)
		}
	}
	return nil
}

// mergeFields handles _merge as a list of specifiers, each merged under
// the common prefix of the matched names, or as {NAME: spec|[specs]}. A
// null value merges the fields matched by NAME itself.
func (p *patcher) mergeFields(rs *regScope, n *yaml.Node) error {
	if !rules.IsMap(n) {
		specs, err := rules.Strings(n)
		if err != nil {
			return err
		}
		for _, s := range specs {
			if err := p.mergeField(rs, "", []string{s}); err != nil {
				return err
			}
		}
		return nil
	}
	for _, kv := range rules.Pairs(n) {
		if rules.IsNull(kv.Value) {
			if err := p.mergeField(rs, "", []string{kv.Key}); err != nil {
				return err
			}
			continue
		}
		specs, err := rules.Strings(kv.Value)
		if err != nil {
			return err
		}
		if err := p.mergeField(rs, kv.Key, specs); err != nil {
			return err
		}
	}
	return nil
}

func (p *patcher) mergeField(rs *regScope, name string, specs []string) error {
	var fs []*svd.Field
	seen := make(map[*svd.Field]bool)
	for _, s := range specs {
		spec := match.Parse(s)
		matched := rs.fields(spec)
		if len(matched) == 0 {
			if spec.Optional() {
				continue
			}
			return noMatch("field", spec, fieldNames(rs.r.Fields))
		}
		for _, f := range matched {
			if !seen[f] {
				seen[f] = true
				fs = append(fs, f)
			}
		}
	}
	if len(fs) == 0 {
		p.debugLog("merge: no field matched", "path", rs.path, "spec", strings.Join(specs, ","))
		return nil
	}
	if name == "" {
		name = commonPrefix(fieldNames(fs))
		if name == "" {
			name = fs[0].Name
		}
	}
	if other := rs.r.Field(name); other != nil && !seen[other] {
		return exists("field %s already exists", name)
	}

	access := fs[0].Access
	ranges := make([]svd.BitRange, len(fs))
	for i, f := range fs {
		if f.Access != access {
			return structural("fields %s and %s have different access", fs[0].Name, f.Name)
		}
		ranges[i] = f.Range()
	}
	merged, gap, err := mergeRanges(ranges)
	if err != nil {
		return structural("cannot merge %v: %v", fieldNames(fs), err)
	}
	spec := strings.Join(specs, ",")
	if gap {
		p.warn(log.ScopeRegister, rs.path, rules.DirMerge, spec,
			fmt.Sprintf("merged fields %v leave unused bits inside %s", fieldNames(fs), merged))
	}

	pos := len(rs.r.Fields)
	for _, f := range fs {
		if i := rs.r.RemoveField(f); i >= 0 && i < pos {
			pos = i
		}
	}
	nf := &svd.Field{
		Name:        name,
		Description: fs[0].Description,
		Access:      access,
	}
	nf.SetRange(merged)
	rs.r.Fields = append(rs.r.Fields, nil)
	copy(rs.r.Fields[pos+1:], rs.r.Fields[pos:])
	rs.r.Fields[pos] = nf

	p.trace(log.ScopeRegister, rs.path, rules.DirMerge, spec, fieldNames(fs), []string{name}, nil)
	return nil
}

// splitFields handles _split as a list of specifiers or
// {SPEC: {name: "X%s", description: "... %s"}}.
func (p *patcher) splitFields(rs *regScope, n *yaml.Node) error {
	if !rules.IsMap(n) {
		specs, err := rules.Strings(n)
		if err != nil {
			return err
		}
		for _, s := range specs {
			if err := p.splitField(rs, s, nil); err != nil {
				return err
			}
		}
		return nil
	}
	for _, kv := range rules.Pairs(n) {
		if err := p.splitField(rs, kv.Key, kv.Value); err != nil {
			return err
		}
	}
	return nil
}

func (p *patcher) splitField(rs *regScope, s string, opts *yaml.Node) error {
	spec := match.Parse(s)
	fs, err := rs.selectFields(spec)
	if err != nil {
		return err
	}
	switch {
	case len(fs) == 0:
		return nil
	case len(fs) > 1:
		return structural("%s matches %d fields %v; _split takes one field at a time", s, len(fs), fieldNames(fs))
	}
	f := fs[0]

	nameTmpl := f.Name + "%s"
	if v := rules.Lookup(opts, "name"); v != nil {
		if nameTmpl, err = rules.Scalar(v); err != nil {
			return err
		}
	}
	descTmpl := f.Description
	if v := rules.Lookup(opts, "description"); v != nil {
		if descTmpl, err = rules.Scalar(v); err != nil {
			return err
		}
	}
	for _, kv := range rules.Pairs(opts) {
		if kv.Key != "name" && kv.Key != "description" {
			return structural("_split takes name and description, found %s", kv.Key)
		}
	}

	pos := rs.r.RemoveField(f)
	var created []string
	for i, br := range splitRange(f.Range()) {
		idx := strconv.Itoa(i)
		nf := &svd.Field{
			Name:        strings.ReplaceAll(nameTmpl, "%s", idx),
			Description: strings.ReplaceAll(descTmpl, "%s", idx),
			Access:      f.Access,
		}
		nf.SetRange(br)
		if rs.r.Field(nf.Name) != nil {
			return exists("field %s already exists", nf.Name)
		}
		rs.r.Fields = append(rs.r.Fields, nil)
		copy(rs.r.Fields[pos+i+1:], rs.r.Fields[pos+i:])
		rs.r.Fields[pos+i] = nf
		created = append(created, nf.Name)
	}
	p.trace(log.ScopeRegister, rs.path, rules.DirSplit, s, []string{f.Name}, created, nil)
	return nil
}
