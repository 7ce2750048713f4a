package patch

import (
	"sort"
	"strconv"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/svdpatch/svdpatch-go/pkg/log"
	"github.com/svdpatch/svdpatch-go/pkg/match"
	"github.com/svdpatch/svdpatch-go/pkg/rules"
	"github.com/svdpatch/svdpatch-go/pkg/svd"
)

// enumEventDirective names trace events of enumerations given directly
// under a field specifier.
const enumEventDirective = "enumeratedValues"

var (
	readKeys = []rules.Directive{
		rules.DirRead, rules.DirRM, rules.DirRS, rules.DirRC, rules.DirRME,
	}
	writeKeys = []rules.Directive{
		rules.DirWrite, rules.DirWM, rules.DirWS, rules.DirWC, rules.DirW1S,
		rules.DirW0C, rules.DirW1C, rules.DirW0S, rules.DirW1T, rules.DirW0T,
	}
)

// fieldSpec applies the rules of one field specifier: enumerated values,
// read and write actions, or a [minimum, maximum] write constraint.
func (p *patcher) fieldSpec(rs *regScope, e rules.Entry) error {
	spec := match.Parse(e.Spec)
	fs, err := rs.selectFields(spec)
	if err != nil || len(fs) == 0 {
		return err
	}
	fs = p.ownFields(rs, fs)
	if len(fs) == 0 {
		return nil
	}

	if rules.IsSeq(e.Value) {
		wc, err := writeConstraint(e.Value)
		if err != nil {
			return err
		}
		for _, f := range fs {
			if err := checkRangeFits(wc, f.BitWidth); err != nil {
				return within(err, "field", f.Name)
			}
			f.WriteConstraint = wc.Clone()
		}
		p.trace(log.ScopeField, rs.path, rules.DirWriteConstraint, e.Spec, fieldNames(fs), nil, nil)
		return nil
	}
	if !rules.IsMap(e.Value) {
		return structural("field rules for %s must be a mapping or [minimum, maximum]", e.Spec)
	}

	b, err := rules.ParseBlock(e.Value, rules.ScopeField)
	if err != nil {
		return err
	}
	read, write := firstOf(b, readKeys), firstOf(b, writeKeys)
	if read == rules.DirUnknown && write == rules.DirUnknown {
		if err := p.enumBlock(rs, fs, b, rules.DirUnknown, "", e.Spec); err != nil {
			return err
		}
	}
	if read != rules.DirUnknown {
		if err := p.directionBlock(rs, fs, read, b.Get(read), svd.UsageRead, e.Spec); err != nil {
			return err
		}
		if ra := read.ReadAction(); ra != "" {
			for _, f := range fs {
				f.ReadAction = ra
			}
		}
	}
	if write != rules.DirUnknown {
		if err := p.directionBlock(rs, fs, write, b.Get(write), svd.UsageWrite, e.Spec); err != nil {
			return err
		}
		if mwv := write.ModifiedWriteValues(); mwv != "" {
			for _, f := range fs {
				// modify is the SVD default and is left implicit.
				if mwv == "modify" {
					f.ModifiedWriteValues = ""
				} else {
					f.ModifiedWriteValues = mwv
				}
			}
		}
	}

	if n := b.Get(rules.DirWriteConstraint); n != nil {
		wc, err := writeConstraint(n)
		if err != nil {
			return err
		}
		for _, f := range fs {
			if err := checkRangeFits(wc, f.BitWidth); err != nil {
				return within(err, "field", f.Name)
			}
			f.WriteConstraint = wc.Clone()
		}
	}
	return nil
}

// ownFields drops fields that inherit their definition through
// derivedFrom.
func (p *patcher) ownFields(rs *regScope, fs []*svd.Field) []*svd.Field {
	out := fs[:0:0]
	for _, f := range fs {
		if f.DerivedFrom != "" {
			p.debugLog("skipping derived field", "path", rs.path, "field", f.Name)
			continue
		}
		out = append(out, f)
	}
	return out
}

func firstOf(b *rules.Block, keys []rules.Directive) rules.Directive {
	for _, d := range keys {
		if b.Has(d) {
			return d
		}
	}
	return rules.DirUnknown
}

// directionBlock applies the enumerated values given under a read or
// write key. An empty mapping only sets the action.
func (p *patcher) directionBlock(rs *regScope, fs []*svd.Field, d rules.Directive, n *yaml.Node, usage, spec string) error {
	if rules.IsNull(n) || (rules.IsMap(n) && len(rules.Pairs(n)) == 0) {
		return nil
	}
	b, err := rules.ParseBlock(n, rules.ScopeField)
	if err != nil {
		return err
	}
	if err := p.enumBlock(rs, fs, b, d, usage, spec); err != nil {
		return within(err, "directive", d.String())
	}
	return nil
}

// enumBlock creates or derives the enumeration described by b on fs.
// d is the read or write key the block was given under, and usage is ""
// for an enumeration without direction.
func (p *patcher) enumBlock(rs *regScope, fs []*svd.Field, b *rules.Block, d rules.Directive, usage, spec string) error {
	replace := false
	if n := b.Get(rules.DirReplaceEnum); n != nil {
		inner, err := rules.ParseBlock(n, rules.ScopeField)
		if err != nil {
			return err
		}
		b, replace, d = inner, true, rules.DirReplaceEnum
	}
	if n := b.Get(rules.DirDerivedFrom); n != nil {
		name, err := rules.Scalar(n)
		if err != nil {
			return err
		}
		return p.deriveEnum(rs, fs, name, spec)
	}
	if len(b.Children) == 0 {
		return nil
	}

	values, err := enumValues(b)
	if err != nil {
		return err
	}

	sorted := append([]*svd.Field(nil), fs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].BitOffset < sorted[j].BitOffset })
	owner := sorted[0]

	name := strings.ReplaceAll(owner.Name, "%s", "")
	switch usage {
	case svd.UsageRead:
		name += "R"
	case svd.UsageWrite:
		name += "W"
	}
	if name == "" || unicode.IsDigit(rune(name[0])) {
		return structural("enumeratedValues name %q must start with a letter", name)
	}

	for _, f := range sorted {
		if err := checkEnumWidth(values, f.BitWidth); err != nil {
			return within(err, "field", f.Name)
		}
	}

	if prior, ok := findEnum(rs.r, name); ok {
		if !sameValues(prior.Values, values) && !replace && !contains(sorted, prior.field) {
			return conflict("enumeratedValues %s is already defined by field %s with different values", name, prior.field.Name)
		}
		if sameValues(prior.Values, values) && !contains(sorted, prior.field) {
			p.debugLog("reusing enumeration", "path", rs.path, "enum", name, "field", prior.field.Name)
			return p.attachDerived(rs, sorted, prior.field.Name+"."+name, usage, replace)
		}
	}

	ownerUsage, err := checkUsage(p.fieldAccess(rs, owner), usage)
	if err != nil {
		return within(err, "field", owner.Name)
	}
	ev := &svd.EnumeratedValues{Name: name, Values: values}
	if usage != "" {
		ev.Usage = ownerUsage
	}
	if err := setEnum(owner, ev, ownerUsage, replace, p.fieldAccess(rs, owner)); err != nil {
		return err
	}
	if err := p.attachDerived(rs, sorted[1:], owner.Name+"."+name, usage, replace); err != nil {
		return err
	}
	p.traceEnum(rs.path, d, spec, fieldNames(sorted), name)
	return nil
}

// traceEnum records a created enumeration. Enumerations given directly
// under a field specifier have no directive key of their own.
func (p *patcher) traceEnum(path string, d rules.Directive, spec string, matched []string, name string) {
	directive := enumEventDirective
	if d != rules.DirUnknown {
		directive = d.String()
	}
	p.emit(log.Event{
		Category: log.CategoryDirective,
		Scope:    log.ScopeField,
		Path:     path,
		Directive: &log.DirectiveEvent{
			Directive: directive,
			Spec:      spec,
			Matched:   matched,
			Created:   []string{name},
		},
	})
}

// attachDerived makes fs share the enumeration at ref ("FIELD.ENUM")
// according to the configured EnumDerive mode.
func (p *patcher) attachDerived(rs *regScope, fs []*svd.Field, ref, usage string, replace bool) error {
	ownerName, enumName, _ := strings.Cut(ref, ".")
	for _, f := range fs {
		access := p.fieldAccess(rs, f)
		checked, err := checkUsage(access, usage)
		if err != nil {
			return within(err, "field", f.Name)
		}
		switch p.cfg.enumDerive() {
		case EnumDeriveField:
			f.DerivedFrom = ownerName
			f.EnumeratedValues = nil
		case EnumDeriveNone:
			src := rs.r.Field(ownerName)
			var ev *svd.EnumeratedValues
			for _, e := range src.EnumeratedValues {
				if e.Name == enumName {
					ev = e.Clone()
				}
			}
			if ev == nil {
				return missing("enumeratedValues %s not found", ref)
			}
			if err := setEnum(f, ev, checked, true, access); err != nil {
				return err
			}
		default:
			if err := setEnum(f, &svd.EnumeratedValues{DerivedFrom: ref}, checked, true, access); err != nil {
				return err
			}
		}
	}
	return nil
}

// deriveEnum handles _derivedFrom: NAME, sharing an enumeration defined
// once elsewhere in the register.
func (p *patcher) deriveEnum(rs *regScope, fs []*svd.Field, name, spec string) error {
	prior, ok := findEnum(rs.r, name)
	if !ok {
		return missing("enumeratedValues %s not found in %s", name, rs.r.Name)
	}
	if prior.count > 1 {
		return structural("enumeratedValues %s is defined %d times in %s", name, prior.count, rs.r.Name)
	}
	usage := prior.EffectiveUsage()
	for _, f := range fs {
		if f == prior.field {
			return structural("field %s cannot derive its own enumeratedValues %s", f.Name, name)
		}
		access := p.fieldAccess(rs, f)
		checked, err := checkUsage(access, usage)
		if err != nil {
			return within(err, "field", f.Name)
		}
		if checked != usage {
			return within(structural("usage %s of %s does not fit the field access", usage, name), "field", f.Name)
		}
		if err := setEnum(f, &svd.EnumeratedValues{DerivedFrom: name}, usage, true, access); err != nil {
			return err
		}
	}
	p.trace(log.ScopeField, rs.path, rules.DirDerivedFrom, spec, fieldNames(fs), nil, nil)
	return nil
}

// fieldAccess returns the effective access of f.
func (p *patcher) fieldAccess(rs *regScope, f *svd.Field) svd.Access {
	if f.Access != "" {
		return f.Access
	}
	return rs.r.Access
}

// checkUsage validates a requested usage against the field access. An
// empty usage resolves to the only usage the access allows.
func checkUsage(access svd.Access, usage string) (string, error) {
	switch access {
	case svd.AccessReadOnly:
		if usage == "" || usage == svd.UsageRead {
			return svd.UsageRead, nil
		}
	case svd.AccessWriteOnly, svd.AccessWriteOnce:
		if usage == "" || usage == svd.UsageWrite {
			return svd.UsageWrite, nil
		}
	default:
		if usage == "" {
			return svd.UsageReadWrite, nil
		}
		return usage, nil
	}
	return "", structural("%s enumeratedValues do not fit %s access", usage, access)
}

// setEnum attaches ev with the given usage to f. A field holds either one
// read-write enumeration or one read and one write enumeration. Existing
// sets of the same usage are only replaced when replace is set.
func setEnum(f *svd.Field, ev *svd.EnumeratedValues, usage string, replace bool, access svd.Access) error {
	occupied := func() error {
		return exists("field %s already has %s enumeratedValues; use _replace_enum", f.Name, usage)
	}
	if usage == svd.UsageReadWrite {
		if len(f.EnumeratedValues) > 0 && !replace {
			return occupied()
		}
		f.EnumeratedValues = []*svd.EnumeratedValues{ev}
		return nil
	}

	switch len(f.EnumeratedValues) {
	case 0:
		f.EnumeratedValues = []*svd.EnumeratedValues{ev}
	case 1:
		cur := f.EnumeratedValues[0]
		switch {
		case cur.Usage == usage || cur.Usage == svd.UsageReadWrite:
			if !replace {
				return occupied()
			}
			f.EnumeratedValues[0] = ev
		case cur.Usage == "":
			if access != "" && access != svd.AccessReadWrite && access != svd.AccessReadWriteOnce {
				if !replace {
					return occupied()
				}
				f.EnumeratedValues[0] = ev
				return nil
			}
			if usage == svd.UsageRead {
				cur.Usage = svd.UsageWrite
			} else {
				cur.Usage = svd.UsageRead
			}
			f.EnumeratedValues = append(f.EnumeratedValues, ev)
		default:
			f.EnumeratedValues = append(f.EnumeratedValues, ev)
		}
	case 2:
		if !replace {
			return occupied()
		}
		for i, cur := range f.EnumeratedValues {
			if cur.Usage == usage {
				f.EnumeratedValues[i] = ev
			}
		}
	default:
		return structural("field %s has more than two enumeratedValues", f.Name)
	}
	return nil
}

// enumValues builds the values of an enumeration from
// {NAME: [value, description]}. -1 marks the default value.
func enumValues(b *rules.Block) ([]*svd.EnumeratedValue, error) {
	var out []*svd.EnumeratedValue
	seen := make(map[int64]string)
	for _, e := range b.Children {
		if e.Spec == "" || unicode.IsDigit(rune(e.Spec[0])) {
			return nil, structural("enumerated value name %q must start with a letter", e.Spec)
		}
		items := rules.Items(e.Value)
		if len(items) < 2 {
			return nil, structural("enumerated value %s needs [value, description]", e.Spec)
		}
		v, err := rules.Int(items[0])
		if err != nil {
			return nil, malformed(err, "enumerated value %s", e.Spec)
		}
		desc, err := rules.Scalar(items[1])
		if err != nil {
			return nil, malformed(err, "enumerated value %s description", e.Spec)
		}
		if prev, ok := seen[v]; ok {
			if v == -1 {
				return nil, structural("enumerated values %s and %s are both the default", prev, e.Spec)
			}
			return nil, structural("enumerated values %s and %s share the value %d", prev, e.Spec, v)
		}
		seen[v] = e.Spec

		ev := &svd.EnumeratedValue{Name: e.Spec, Description: desc}
		switch {
		case v == -1:
			t := true
			ev.IsDefault = &t
		case v < 0:
			return nil, structural("enumerated value %s has negative value %d", e.Spec, v)
		default:
			ev.Value = strconv.FormatInt(v, 10)
		}
		out = append(out, ev)
	}
	return out, nil
}

func checkEnumWidth(values []*svd.EnumeratedValue, width uint32) error {
	if width >= 64 {
		return nil
	}
	for _, v := range values {
		if v.Value == "" {
			continue
		}
		n, err := svd.ParseInt(v.Value)
		if err != nil {
			return malformed(err, "enumerated value %s", v.Name)
		}
		if n >= uint64(1)<<width {
			return structural("enumerated value %s = %d does not fit %d bits", v.Name, n, width)
		}
	}
	return nil
}

// foundEnum is an enumeration located in a register.
type foundEnum struct {
	*svd.EnumeratedValues
	field *svd.Field
	count int
}

// findEnum looks up a locally defined enumeration by name.
func findEnum(r *svd.Register, name string) (foundEnum, bool) {
	var found foundEnum
	for _, f := range r.Fields {
		for _, ev := range f.EnumeratedValues {
			if ev.Name == name && ev.DerivedFrom == "" {
				if found.count == 0 {
					found.EnumeratedValues, found.field = ev, f
				}
				found.count++
			}
		}
	}
	return found, found.count > 0
}

func sameValues(a, b []*svd.EnumeratedValue) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || a[i].Value != b[i].Value || a[i].Default() != b[i].Default() {
			return false
		}
	}
	return true
}

func contains(fs []*svd.Field, f *svd.Field) bool {
	for _, g := range fs {
		if g == f {
			return true
		}
	}
	return false
}
