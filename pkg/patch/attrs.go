package patch

import (
	"errors"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/svdpatch/svdpatch-go/pkg/rules"
	"github.com/svdpatch/svdpatch-go/pkg/svd"
)

// attrHandler applies an attribute whose value is structured.
type attrHandler func(value *yaml.Node) error

// setAttrs assigns the entries of an attribute mapping through set. Keys
// with a handler in special are routed to it instead.
func setAttrs(node *yaml.Node, set func(key, value string) error, special map[string]attrHandler) error {
	if rules.IsNull(node) {
		return nil
	}
	if !rules.IsMap(node) {
		return structural("expected a mapping of attributes, found %s", describe(node))
	}
	for _, kv := range rules.Pairs(node) {
		if h, ok := special[kv.Key]; ok {
			if err := h(kv.Value); err != nil {
				return err
			}
			continue
		}
		value, err := rules.Scalar(kv.Value)
		if err != nil {
			return structural("attribute %s: expected a single value, found %s", kv.Key, describe(kv.Value))
		}
		if err := set(kv.Key, value); err != nil {
			if errors.Is(err, svd.ErrUnknownAttribute) {
				return malformed(err, "cannot set %s", kv.Key)
			}
			return malformed(err, "attribute %s", kv.Key)
		}
	}
	return nil
}

func describe(n *yaml.Node) string {
	switch {
	case rules.IsNull(n):
		return "nothing"
	case rules.IsMap(n):
		return "a mapping"
	case rules.IsSeq(n):
		return "a list"
	}
	return "a value"
}

// without returns a copy of a mapping node lacking the given keys.
func without(node *yaml.Node, keys ...string) *yaml.Node {
	out := rules.MapNode()
	for _, kv := range rules.Pairs(node) {
		skip := false
		for _, k := range keys {
			if kv.Key == k {
				skip = true
				break
			}
		}
		if !skip {
			out.Content = append(out.Content, kv.KeyNode, kv.Value)
		}
	}
	return out
}

// directivesOnly returns a copy of a mapping node with only its
// underscore keys.
func directivesOnly(node *yaml.Node) *yaml.Node {
	out := rules.MapNode()
	for _, kv := range rules.Pairs(node) {
		if strings.HasPrefix(kv.Key, "_") {
			out.Content = append(out.Content, kv.KeyNode, kv.Value)
		}
	}
	return out
}

// names are the element names substituted into added descriptions.
type names struct {
	peripheral string
	register   string
	field      string
}

// expand replaces `peripheral`, `register` and `field` in s by the names
// of the current scope.
func (n names) expand(s string) string {
	if !strings.Contains(s, "`") {
		return s
	}
	var pairs []string
	if n.peripheral != "" {
		pairs = append(pairs, "`peripheral`", n.peripheral)
	}
	if n.register != "" {
		pairs = append(pairs, "`register`", n.register)
	}
	if n.field != "" {
		pairs = append(pairs, "`field`", n.field)
	}
	if len(pairs) == 0 {
		return s
	}
	return strings.NewReplacer(pairs...).Replace(s)
}

// interpolated wraps a Set method so that description and derivedFrom
// values are expanded first.
func interpolated(n names, set func(key, value string) error) func(key, value string) error {
	return func(key, value string) error {
		if key == "description" || key == "derivedFrom" {
			value = n.expand(value)
		}
		return set(key, value)
	}
}

// writeConstraint parses the write constraint forms "none", "enum" and
// [minimum, maximum]. "none" yields nil.
func writeConstraint(node *yaml.Node) (*svd.WriteConstraint, error) {
	if rules.IsSeq(node) {
		items := rules.Items(node)
		if len(items) != 2 {
			return nil, structural("write constraint range needs [minimum, maximum], found %d values", len(items))
		}
		lo, err := rules.Int(items[0])
		if err != nil {
			return nil, malformed(err, "write constraint minimum")
		}
		hi, err := rules.Int(items[1])
		if err != nil {
			return nil, malformed(err, "write constraint maximum")
		}
		if lo < 0 || hi < lo {
			return nil, structural("write constraint range [%d, %d] is empty or negative", lo, hi)
		}
		return &svd.WriteConstraint{Range: &svd.Range{Minimum: svd.Num(lo), Maximum: svd.Num(hi)}}, nil
	}
	s, err := rules.Scalar(node)
	if err != nil {
		return nil, structural("write constraint must be none, enum or [minimum, maximum]")
	}
	switch s {
	case "none":
		return nil, nil
	case "enum":
		t := true
		return &svd.WriteConstraint{UseEnumeratedValues: &t}, nil
	}
	return nil, structural("unknown write constraint %q", s)
}

// checkRangeFits verifies that a write constraint range fits a field of
// the given width.
func checkRangeFits(wc *svd.WriteConstraint, width uint32) error {
	if wc == nil || wc.Range == nil || width >= 64 {
		return nil
	}
	if uint64(wc.Range.Maximum) >= uint64(1)<<width {
		return structural("write constraint maximum %d does not fit %d bits", wc.Range.Maximum, width)
	}
	return nil
}

func (p *patcher) setCPU(node *yaml.Node) error {
	if p.dev.CPU == nil {
		p.dev.CPU = &svd.CPU{}
	}
	return setAttrs(node, p.dev.CPU.Set, nil)
}

// setPeripheral applies peripheral attributes. interrupts, addressBlock,
// addressBlocks and registers take structured values.
func (p *patcher) setPeripheral(per *svd.Peripheral, node *yaml.Node, size uint32) error {
	n := names{peripheral: per.Name}
	return setAttrs(node, interpolated(n, per.Set), map[string]attrHandler{
		"addressBlock": func(v *yaml.Node) error {
			if len(per.AddressBlocks) != 1 {
				per.AddressBlocks = []*svd.AddressBlock{{Usage: "registers"}}
			}
			return setAttrs(v, per.AddressBlocks[0].Set, nil)
		},
		"addressBlocks": func(v *yaml.Node) error {
			if !rules.IsSeq(v) {
				return structural("addressBlocks must be a list")
			}
			var blocks []*svd.AddressBlock
			for _, item := range rules.Items(v) {
				b := &svd.AddressBlock{Usage: "registers"}
				if err := setAttrs(item, b.Set, nil); err != nil {
					return err
				}
				blocks = append(blocks, b)
			}
			per.AddressBlocks = blocks
			return nil
		},
		"interrupts": func(v *yaml.Node) error {
			for _, kv := range rules.Pairs(v) {
				irq := per.Interrupt(kv.Key)
				if irq == nil {
					irq = &svd.Interrupt{Name: kv.Key}
					per.Interrupts = append(per.Interrupts, irq)
				}
				if err := setAttrs(kv.Value, interpolated(n, irq.Set), nil); err != nil {
					return within(err, "interrupt", kv.Key)
				}
			}
			return nil
		},
		"registers": func(v *yaml.Node) error {
			for _, kv := range rules.Pairs(v) {
				r, err := p.newRegister(&per.Children, kv.Key, kv.Value, n, per.SizeOr(size))
				if err != nil {
					return within(err, "register", kv.Key)
				}
				insertByOffset(&per.Children, svd.Child{Register: r}, uint64(r.AddressOffset))
			}
			return nil
		},
	})
}

// newRegister builds a register named name from an attribute mapping.
func (p *patcher) newRegister(siblings *svd.Children, name string, node *yaml.Node, n names, size uint32) (*svd.Register, error) {
	if siblings.Index(name) >= 0 {
		return nil, exists("register %s already exists", name)
	}
	r := &svd.Register{Name: name}
	n.register = name
	if err := p.setRegister(r, node, n, size); err != nil {
		return nil, err
	}
	return r, nil
}

// setRegister applies register attributes. fields takes a mapping of
// field name to field attributes; writeConstraint takes one of the write
// constraint forms.
func (p *patcher) setRegister(r *svd.Register, node *yaml.Node, n names, size uint32) error {
	n.register = r.Name
	wc := func(v *yaml.Node) error {
		c, err := writeConstraint(v)
		if err != nil {
			return err
		}
		r.WriteConstraint = c
		return nil
	}
	err := setAttrs(node, interpolated(n, r.Set), map[string]attrHandler{
		"fields": func(v *yaml.Node) error {
			for _, kv := range rules.Pairs(v) {
				if r.Field(kv.Key) != nil {
					return exists("field %s already exists in %s", kv.Key, r.Name)
				}
				f := &svd.Field{Name: kv.Key}
				if err := p.setField(f, kv.Value, n); err != nil {
					return within(err, "field", kv.Key)
				}
				insertField(r, f)
			}
			return nil
		},
		"writeConstraint":   wc,
		"_write_constraint": wc,
	})
	if err != nil {
		return err
	}
	return checkFields(r, r.SizeOr(size))
}

// setField applies field attributes.
func (p *patcher) setField(f *svd.Field, node *yaml.Node, n names) error {
	n.field = f.Name
	wc := func(v *yaml.Node) error {
		c, err := writeConstraint(v)
		if err != nil {
			return err
		}
		f.WriteConstraint = c
		return nil
	}
	if err := setAttrs(node, interpolated(n, f.Set), map[string]attrHandler{
		"writeConstraint":   wc,
		"_write_constraint": wc,
	}); err != nil {
		return err
	}
	if f.BitWidth == 0 && f.DerivedFrom == "" {
		return structural("field %s has no bit range", f.Name)
	}
	return checkRangeFits(f.WriteConstraint, f.BitWidth)
}

// setCluster applies cluster attributes. registers takes a mapping of
// register name to register attributes.
func (p *patcher) setCluster(cl *svd.Cluster, node *yaml.Node, n names, size uint32) error {
	return setAttrs(node, interpolated(n, cl.Set), map[string]attrHandler{
		"registers": func(v *yaml.Node) error {
			for _, kv := range rules.Pairs(v) {
				r, err := p.newRegister(&cl.Children, kv.Key, kv.Value, n, cl.SizeOr(size))
				if err != nil {
					return within(err, "register", kv.Key)
				}
				insertByOffset(&cl.Children, svd.Child{Register: r}, uint64(r.AddressOffset))
			}
			return nil
		},
	})
}

// checkFields verifies that every field of r lies inside size bits.
func checkFields(r *svd.Register, size uint32) error {
	for _, f := range r.Fields {
		if f.DerivedFrom != "" && f.BitWidth == 0 {
			continue
		}
		if !fitsIn(f.Range(), size) {
			return structural("field %s bits %s exceed the %d bit register %s", f.Name, f.Range(), size, r.Name)
		}
	}
	return nil
}

// insertField places f among the fields of r, ordered by bit offset.
func insertField(r *svd.Register, f *svd.Field) {
	pos := len(r.Fields)
	for i, g := range r.Fields {
		if g.BitOffset > f.BitOffset {
			pos = i
			break
		}
	}
	r.Fields = append(r.Fields, nil)
	copy(r.Fields[pos+1:], r.Fields[pos:])
	r.Fields[pos] = f
}

// insertByOffset places c after the last child whose offset does not
// exceed offset.
func insertByOffset(cs *svd.Children, c svd.Child, offset uint64) {
	pos := 0
	for i, ch := range *cs {
		if childOffset(ch) <= offset {
			pos = i + 1
		}
	}
	cs.Insert(pos, c)
}

func childOffset(c svd.Child) uint64 {
	if c.Register != nil {
		return uint64(c.Register.AddressOffset)
	}
	return uint64(c.Cluster.AddressOffset)
}
