package patch

import (
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/svdpatch/svdpatch-go/pkg/log"
	"github.com/svdpatch/svdpatch-go/pkg/match"
	"github.com/svdpatch/svdpatch-go/pkg/rules"
	"github.com/svdpatch/svdpatch-go/pkg/svd"
)

// specKeys reads a directive payload given as a name, a list of names or
// a mapping keyed by names.
func specKeys(n *yaml.Node) ([]string, error) {
	if rules.IsMap(n) {
		var out []string
		for _, kv := range rules.Pairs(n) {
			out = append(out, kv.Key)
		}
		return out, nil
	}
	return rules.Strings(n)
}

// expandArrays replaces each matched register array by its elements.
func (p *patcher) expandArrays(c *container, n *yaml.Node) error {
	specs, err := specKeys(n)
	if err != nil {
		return err
	}
	for _, s := range specs {
		spec := match.Parse(s)
		var arrays []*svd.Register
		for _, r := range c.registers(spec) {
			if r.IsArray() {
				arrays = append(arrays, r)
			}
		}
		if len(arrays) == 0 {
			if spec.Optional() {
				continue
			}
			return noMatch("register array", spec, c.childNames())
		}
		var created []string
		for _, r := range arrays {
			names, err := expandArray(c.children, r)
			if err != nil {
				return within(err, "register", r.Name)
			}
			created = append(created, names...)
		}
		p.trace(c.scope(), c.path, rules.DirExpandArray, s, registerNames(arrays), created, nil)
	}
	return nil
}

func expandArray(cs *svd.Children, r *svd.Register) ([]string, error) {
	dim := int(*r.Dim)
	labels, err := svd.DimIndices(r.DimIndex, dim)
	if err != nil {
		return nil, malformed(err, "dimIndex")
	}
	if len(labels) != dim {
		return nil, structural("dimIndex %q has %d labels for dim %d", r.DimIndex, len(labels), dim)
	}
	var inc uint64
	if r.DimIncrement != nil {
		inc = uint64(*r.DimIncrement)
	}
	if dim > 1 && inc == 0 {
		return nil, structural("register %s has dim but no dimIncrement", r.Name)
	}

	pos := cs.RemoveRegister(r)
	out := make([]string, dim)
	for i, l := range labels {
		nr := r.Clone()
		nr.ClearDim()
		nr.Name = substituteIndex(r.Name, l)
		nr.DisplayName = substituteIndex(r.DisplayName, l)
		nr.Description = strings.ReplaceAll(r.Description, "%s", l)
		nr.AddressOffset = r.AddressOffset + svd.Hex(uint64(i)*inc)
		cs.Insert(pos+i, svd.Child{Register: nr})
		out[i] = nr.Name
	}
	return out, nil
}

// collectArrays handles _array: {SPEC: register rules}. The registers
// matched by SPEC become one dimensioned register.
func (p *patcher) collectArrays(c *container, n *yaml.Node) error {
	for _, kv := range rules.Pairs(n) {
		if err := p.collectArray(c, kv.Key, kv.Value); err != nil {
			return within(err, "array", kv.Key)
		}
	}
	return nil
}

func (p *patcher) collectArray(c *container, key string, rmod *yaml.Node) error {
	spec := match.Parse(key)
	var regs []*svd.Register
	for _, r := range c.registers(spec) {
		if !r.IsArray() {
			regs = append(regs, r)
		}
	}
	if len(regs) == 0 {
		if spec.Optional() {
			return nil
		}
		return noMatch("register", spec, c.childNames())
	}
	sort.SliceStable(regs, func(i, j int) bool { return regs[i].AddressOffset < regs[j].AddressOffset })
	members := registerNames(regs)

	fromZero, err := optBool(rmod, "_start_from_zero")
	if err != nil {
		return err
	}
	left, right, indexed := match.Index(key)
	if !indexed && !fromZero {
		return structural("%s has no wildcard to take the array index from", key)
	}
	labels := sequential(len(regs))
	if !fromZero {
		for i, r := range regs {
			if left+right > len(r.Name) {
				return structural("cannot take an index from %s", r.Name)
			}
			labels[i] = r.Name[left : len(r.Name)-right]
		}
	}

	offsets := make([]uint64, len(regs))
	for i, r := range regs {
		offsets[i] = uint64(r.AddressOffset)
	}
	fallback := uint64(c.registerSize(regs[0]) / 8)
	if v := rules.Lookup(rmod, "dimIncrement"); v != nil {
		inc, err := rules.Int(v)
		if err != nil {
			return malformed(err, "dimIncrement")
		}
		fallback = uint64(inc)
	}
	dim, inc, err := collectDims(offsets, fallback)
	if err != nil {
		return structural("cannot collect %v: %v", members, err)
	}
	for _, r := range regs[1:] {
		if r.FieldMask() != regs[0].FieldMask() {
			return structural("%s and %s have different fields", regs[0].Name, r.Name)
		}
	}

	name, _ := match.Template(key)
	if v := rules.Lookup(rmod, "name"); v != nil {
		if name, err = rules.Scalar(v); err != nil {
			return err
		}
	}
	if !strings.Contains(name, "%s") {
		return structural("array name %q has no %%s placeholder", name)
	}
	descs, displays := make([]string, dim), make([]string, dim)
	for i, r := range regs {
		descs[i], displays[i] = r.Description, r.DisplayName
	}
	desc, err := arrayText(rules.Lookup(rmod, "description"), descs, labels, "descriptions", members)
	if err != nil {
		return err
	}
	display, err := arrayText(rules.Lookup(rmod, "displayName"), displays, labels, "display names", members)
	if err != nil {
		return err
	}

	pos := len(*c.children)
	for _, r := range regs {
		if i := c.children.RemoveRegister(r); i >= 0 && i < pos {
			pos = i
		}
	}
	first := regs[0]
	first.Name = name
	first.Description = desc
	first.DisplayName = display
	first.Dim = svd.NumPtr(uint64(dim))
	first.DimIncrement = svd.HexPtr(inc)
	first.DimIndex = svd.FormatDimIndex(labels)
	c.children.Insert(pos, svd.Child{Register: first})
	p.trace(c.scope(), c.path, rules.DirArray, key, members, []string{name}, nil)

	rest := without(rmod, "name", "description", "displayName", "dimIncrement", "_start_from_zero")
	if len(rules.Pairs(rest)) == 0 {
		return nil
	}
	b, err := rules.ParseBlock(rest, rules.ScopeRegister)
	if err != nil {
		return err
	}
	return p.register(c, first, b, true)
}

// arrayText picks the description or display name of a collected array:
// the explicit value, the first member's text for "_original", or a
// template shared by every member.
func arrayText(opt *yaml.Node, texts, labels []string, what string, members []string) (string, error) {
	if opt != nil {
		s, err := rules.Scalar(opt)
		if err != nil {
			return "", err
		}
		if s == "_original" {
			return texts[0], nil
		}
		return s, nil
	}
	if t, ok := commonDescription(texts, labels); ok {
		return t, nil
	}
	return "", structural("%s of %v differ beyond their index; set one explicitly", what, members)
}

func optBool(n *yaml.Node, key string) (bool, error) {
	v := rules.Lookup(n, key)
	if v == nil {
		return false, nil
	}
	return rules.Bool(v)
}

// clusterGroup is the set of registers one member specifier of a
// _cluster rule collects.
type clusterGroup struct {
	spec   string
	rmod   *yaml.Node
	regs   []*svd.Register
	member string
}

// collectClusters handles _cluster: {CNAME: {SPEC: register rules}}.
func (p *patcher) collectClusters(c *container, n *yaml.Node) error {
	for _, kv := range rules.Pairs(n) {
		if err := p.collectCluster(c, kv.Key, kv.Value); err != nil {
			return within(err, "cluster", kv.Key)
		}
	}
	return nil
}

func (p *patcher) collectCluster(c *container, cname string, cmod *yaml.Node) error {
	single := !strings.Contains(cname, "%s")

	var (
		groups []clusterGroup
		labels []string
		inc    uint64
	)
	fallback := uint64(0)
	if v := rules.Lookup(cmod, "dimIncrement"); v != nil {
		i, err := rules.Int(v)
		if err != nil {
			return malformed(err, "dimIncrement")
		}
		fallback = uint64(i)
	}

	for _, kv := range rules.Pairs(cmod) {
		if strings.HasPrefix(kv.Key, "_") || kv.Key == "description" || kv.Key == "dimIncrement" {
			continue
		}
		spec := match.Parse(kv.Key)
		regs := c.registers(spec)
		if len(regs) == 0 {
			if spec.Optional() {
				continue
			}
			return noMatch("register", spec, c.childNames())
		}
		g := clusterGroup{spec: kv.Key, rmod: kv.Value, regs: regs}

		if single {
			if len(regs) > 1 {
				return structural("%s matches %v but %s is not an array; add %%s to the cluster name",
					kv.Key, registerNames(regs), cname)
			}
			g.member = regs[0].Name
			groups = append(groups, g)
			continue
		}

		sort.SliceStable(regs, func(i, j int) bool { return regs[i].AddressOffset < regs[j].AddressOffset })
		ls := make([]string, len(regs))
		arrays := 0
		for i, r := range regs {
			alt := spec.Alternative(spec.MatchIndex(r.Name))
			v, ok := match.Varying(alt, r.Name)
			if !ok {
				return structural("%s has no wildcard to take the cluster index from", kv.Key)
			}
			ls[i] = v
			if r.IsArray() {
				arrays++
			}
		}
		if arrays != 0 && arrays != len(regs) {
			return structural("%s mixes register arrays and single registers", kv.Key)
		}
		offsets := make([]uint64, len(regs))
		for i, r := range regs {
			offsets[i] = uint64(r.AddressOffset)
		}
		if groups == nil {
			_, step, err := collectDims(offsets, fallback)
			if err != nil {
				return structural("cannot collect %v: %v", registerNames(regs), err)
			}
			labels, inc = ls, step
		} else {
			if !equalStrings(ls, labels) {
				return structural("%s indexes %v, the first member indexes %v", kv.Key, ls, labels)
			}
			if !checkStride(offsets, inc) {
				return structural("%s is not spaced by the cluster stride %#x", kv.Key, inc)
			}
		}
		for _, r := range regs[1:] {
			if r.FieldMask() != regs[0].FieldMask() {
				return structural("%s and %s have different fields", regs[0].Name, r.Name)
			}
			if r.IsArray() && (uint64(*r.Dim) != uint64(*regs[0].Dim) || !sameIncrement(r, regs[0])) {
				return structural("register arrays %s and %s have different dimensions", regs[0].Name, r.Name)
			}
		}
		tmpl, _ := match.Template(alt0(spec, regs[0].Name))
		g.member = strings.ReplaceAll(tmpl, "%s", "")
		groups = append(groups, g)
	}
	if len(groups) == 0 {
		return structural("no registers collected into %s", cname)
	}

	base := uint64(groups[0].regs[0].AddressOffset)
	memberNames := make([]string, len(groups))
	var collected []string
	for i, g := range groups {
		if o := uint64(g.regs[0].AddressOffset); o < base {
			base = o
		}
		memberNames[i] = g.member
		collected = append(collected, registerNames(g.regs)...)
	}

	desc := "Cluster " + cname + ", containing " + strings.Join(memberNames, ", ")
	if v := rules.Lookup(cmod, "description"); v != nil {
		s, err := rules.Scalar(v)
		if err != nil {
			return err
		}
		desc = s
	}

	cl := &svd.Cluster{Name: cname, Description: desc, AddressOffset: svd.Hex(base)}
	pos := len(*c.children)
	for _, g := range groups {
		for _, r := range g.regs {
			if i := c.children.RemoveRegister(r); i >= 0 && i < pos {
				pos = i
			}
		}
	}
	for _, g := range groups {
		r := g.regs[0]
		r.Name = g.member
		if !single {
			r.DisplayName = ""
		}
		if v := rules.Lookup(g.rmod, "name"); v != nil {
			s, err := rules.Scalar(v)
			if err != nil {
				return err
			}
			r.Name = s
		}
		if cl.Children.Index(r.Name) >= 0 {
			return exists("register %s already exists in %s", r.Name, cname)
		}
		r.AddressOffset -= svd.Hex(base)
		if !single {
			if end := registerEnd(r, c.registerSize(r)); end > inc {
				return structural("member %s ends at %#x, beyond the cluster stride %#x", r.Name, end, inc)
			}
		}
		insertByOffset(&cl.Children, svd.Child{Register: r}, uint64(r.AddressOffset))
	}
	if !single {
		cl.Dim = svd.NumPtr(uint64(len(labels)))
		cl.DimIncrement = svd.HexPtr(inc)
		cl.DimIndex = svd.FormatDimIndex(labels)
	}
	c.children.Insert(pos, svd.Child{Cluster: cl})
	p.trace(c.scope(), c.path, rules.DirCluster, cname, collected, []string{cname}, nil)

	cc := c.cluster(cl)
	for _, g := range groups {
		rest := without(g.rmod, "name")
		if len(rules.Pairs(rest)) == 0 {
			continue
		}
		b, err := rules.ParseBlock(rest, rules.ScopeRegister)
		if err != nil {
			return err
		}
		r := g.regs[0]
		if err := p.register(cc, r, b, true); err != nil {
			return within(err, "register", r.Name)
		}
	}

	if d := directivesOnly(cmod); len(rules.Pairs(d)) > 0 {
		b, err := rules.ParseBlock(d, rules.ScopeCluster)
		if err != nil {
			return err
		}
		return p.block(cc, b)
	}
	return nil
}

// alt0 returns the alternative of spec that selects name.
func alt0(spec match.Spec, name string) string {
	return spec.Alternative(spec.MatchIndex(name))
}

// registerEnd returns the first byte offset past r, or past its last
// element for an array.
func registerEnd(r *svd.Register, size uint32) uint64 {
	end := uint64(r.AddressOffset) + uint64(size/8)
	if r.IsArray() && r.DimIncrement != nil {
		end += (uint64(*r.Dim) - 1) * uint64(*r.DimIncrement)
	}
	return end
}

func sameIncrement(a, b *svd.Register) bool {
	if a.DimIncrement == nil || b.DimIncrement == nil {
		return a.DimIncrement == b.DimIncrement
	}
	return *a.DimIncrement == *b.DimIncrement
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// expandOptions are the _expand_cluster settings of one cluster
// specifier.
type expandOptions struct {
	pre, post string
	zeroIndex bool
	noPrefix  bool
}

func parseExpandOptions(n *yaml.Node) (expandOptions, error) {
	var o expandOptions
	for _, kv := range rules.Pairs(n) {
		var err error
		switch kv.Key {
		case "_preindex":
			o.pre, err = rules.Scalar(kv.Value)
		case "_postindex":
			o.post, err = rules.Scalar(kv.Value)
		case "_zeroindex":
			o.zeroIndex, err = rules.Bool(kv.Value)
		case "_noprefix":
			o.noPrefix, err = rules.Bool(kv.Value)
		default:
			return o, structural("_expand_cluster takes _preindex, _postindex, _zeroindex and _noprefix, found %s", kv.Key)
		}
		if err != nil {
			return o, malformed(err, "%s", kv.Key)
		}
	}
	return o, nil
}

// expandPrefix returns the name prefix of the members of element i of a
// cluster named name.
func expandPrefix(name string, i, dim int, labels []string, hasIndex bool, o expandOptions) (string, error) {
	if dim > 1 || o.zeroIndex {
		if o.noPrefix {
			return "", structural("cannot drop the prefix of %s with %d elements", name, dim)
		}
		bracket := strings.Contains(name, "[%s]")
		if hasIndex && bracket {
			return "", structural("%s uses [%%s] together with a dimIndex", name)
		}
		label := labels[i]
		switch {
		case bracket:
			return strings.Replace(name, "[%s]", o.pre+label, 1) + o.post, nil
		case strings.Contains(name, "%s"):
			return strings.Replace(name, "%s", o.pre+label, 1) + o.post, nil
		}
		return name + o.pre + label + o.post, nil
	}
	if o.noPrefix {
		return "", nil
	}
	name = strings.ReplaceAll(name, "[%s]", "")
	return strings.ReplaceAll(name, "%s", "") + o.post, nil
}

// expandClusters replaces each matched cluster by its member registers,
// once per cluster element. Nested clusters are moved up with the same
// prefix and offset shift.
func (p *patcher) expandClusters(c *container, n *yaml.Node) error {
	type target struct {
		spec string
		opts *yaml.Node
	}
	var targets []target
	if rules.IsMap(n) {
		for _, kv := range rules.Pairs(n) {
			targets = append(targets, target{kv.Key, kv.Value})
		}
	} else {
		specs, err := rules.Strings(n)
		if err != nil {
			return err
		}
		for _, s := range specs {
			targets = append(targets, target{spec: s})
		}
	}

	for _, t := range targets {
		o, err := parseExpandOptions(t.opts)
		if err != nil {
			return err
		}
		spec := match.Parse(t.spec)
		cls := c.clusters(spec)
		if len(cls) == 0 {
			if spec.Optional() {
				continue
			}
			return noMatch("cluster", spec, c.childNames())
		}
		var created []string
		for _, cl := range cls {
			names, err := expandCluster(c.children, cl, o)
			if err != nil {
				return within(err, "cluster", cl.Name)
			}
			created = append(created, names...)
		}
		p.trace(c.scope(), c.path, rules.DirExpandCluster, t.spec, clusterNames(cls), created, nil)
	}
	return nil
}

func expandCluster(cs *svd.Children, cl *svd.Cluster, o expandOptions) ([]string, error) {
	if cl.DerivedFrom != "" {
		return nil, structural("cannot expand %s, it is derived from %s", cl.Name, cl.DerivedFrom)
	}
	if len(cl.Children) == 0 {
		return nil, structural("cluster %s has no registers", cl.Name)
	}
	dim := 1
	var inc uint64
	if cl.IsArray() {
		dim = int(*cl.Dim)
		if cl.DimIncrement != nil {
			inc = uint64(*cl.DimIncrement)
		}
		if dim > 1 && inc == 0 {
			return nil, structural("cluster %s has dim but no dimIncrement", cl.Name)
		}
	}
	hasIndex := cl.DimIndex != ""
	labels, err := svd.DimIndices(cl.DimIndex, dim)
	if err != nil {
		return nil, malformed(err, "dimIndex")
	}
	if len(labels) != dim {
		return nil, structural("dimIndex %q has %d labels for dim %d", cl.DimIndex, len(labels), dim)
	}

	pos := cs.RemoveCluster(cl)
	var out []string
	for i := 0; i < dim; i++ {
		prefix, err := expandPrefix(cl.Name, i, dim, labels, hasIndex, o)
		if err != nil {
			return nil, err
		}
		shift := svd.Hex(uint64(cl.AddressOffset) + uint64(i)*inc)
		for _, ch := range cl.Children {
			var child svd.Child
			if ch.Register != nil {
				r := ch.Register.Clone()
				r.Name = prefix + r.Name
				r.AddressOffset += shift
				child.Register = r
			} else {
				sub := ch.Cluster.Clone()
				sub.Name = prefix + sub.Name
				sub.AddressOffset += shift
				child.Cluster = sub
			}
			if cs.Index(child.Name()) >= 0 {
				return nil, exists("%s already exists", child.Name())
			}
			cs.Insert(pos, child)
			pos++
			out = append(out, child.Name())
		}
	}
	return out, nil
}

func clusterNames(cls []*svd.Cluster) []string {
	out := make([]string, len(cls))
	for i, cl := range cls {
		out[i] = cl.Name
	}
	return out
}

// collectFieldArrays handles _array at register scope: the fields matched
// by each specifier become one dimensioned field.
func (p *patcher) collectFieldArrays(rs *regScope, n *yaml.Node) error {
	for _, kv := range rules.Pairs(n) {
		if err := p.collectFieldArray(rs, kv.Key, kv.Value); err != nil {
			return within(err, "array", kv.Key)
		}
	}
	return nil
}

func (p *patcher) collectFieldArray(rs *regScope, key string, fmod *yaml.Node) error {
	spec := match.Parse(key)
	var fs []*svd.Field
	for _, f := range rs.fields(spec) {
		if !f.IsArray() {
			fs = append(fs, f)
		}
	}
	if len(fs) == 0 {
		if spec.Optional() {
			return nil
		}
		return noMatch("field", spec, fieldNames(rs.r.Fields))
	}
	sort.SliceStable(fs, func(i, j int) bool { return fs[i].BitOffset < fs[j].BitOffset })
	members := fieldNames(fs)

	fromZero, err := optBool(fmod, "_start_from_zero")
	if err != nil {
		return err
	}
	left, right, indexed := match.Index(key)
	if !indexed && !fromZero {
		return structural("%s has no wildcard to take the array index from", key)
	}
	labels := sequential(len(fs))
	if !fromZero {
		for i, f := range fs {
			if left+right > len(f.Name) {
				return structural("cannot take an index from %s", f.Name)
			}
			labels[i] = f.Name[left : len(f.Name)-right]
		}
	}

	offsets := make([]uint64, len(fs))
	for i, f := range fs {
		offsets[i] = uint64(f.BitOffset)
		if f.BitWidth != fs[0].BitWidth {
			return structural("%s and %s have different widths", fs[0].Name, f.Name)
		}
	}
	fallback := uint64(fs[0].BitWidth)
	if v := rules.Lookup(fmod, "dimIncrement"); v != nil {
		inc, err := rules.Int(v)
		if err != nil {
			return malformed(err, "dimIncrement")
		}
		fallback = uint64(inc)
	}
	dim, inc, err := collectDims(offsets, fallback)
	if err != nil {
		return structural("cannot collect %v: %v", members, err)
	}

	name, _ := match.Template(key)
	if v := rules.Lookup(fmod, "name"); v != nil {
		if name, err = rules.Scalar(v); err != nil {
			return err
		}
	}
	if !strings.Contains(name, "%s") {
		return structural("array name %q has no %%s placeholder", name)
	}
	descs := make([]string, dim)
	for i, f := range fs {
		descs[i] = f.Description
	}
	desc, err := arrayText(rules.Lookup(fmod, "description"), descs, labels, "descriptions", members)
	if err != nil {
		return err
	}

	pos := len(rs.r.Fields)
	for _, f := range fs {
		if i := rs.r.RemoveField(f); i >= 0 && i < pos {
			pos = i
		}
	}
	first := fs[0]
	first.Name = name
	first.Description = desc
	first.Dim = svd.NumPtr(uint64(dim))
	first.DimIncrement = svd.HexPtr(inc)
	first.DimIndex = svd.FormatDimIndex(labels)
	rs.r.Fields = append(rs.r.Fields, nil)
	copy(rs.r.Fields[pos+1:], rs.r.Fields[pos:])
	rs.r.Fields[pos] = first
	p.trace(log.ScopeRegister, rs.path, rules.DirArray, key, members, []string{name}, nil)

	rest := without(fmod, "name", "description", "dimIncrement", "_start_from_zero")
	if len(rules.Pairs(rest)) == 0 {
		return nil
	}
	return p.setField(first, rest, rs.names())
}
