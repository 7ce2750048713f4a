package patch

import (
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/svdpatch/svdpatch-go/pkg/log"
	"github.com/svdpatch/svdpatch-go/pkg/match"
	"github.com/svdpatch/svdpatch-go/pkg/rules"
	"github.com/svdpatch/svdpatch-go/pkg/svd"
)

// renamer maps a name to its new form.
type renamer func(string) string

func textRenamer(d rules.Directive, arg string) renamer {
	switch d {
	case rules.DirStrip:
		return func(s string) string { return match.StripPrefix(arg, s) }
	case rules.DirStripEnd:
		return func(s string) string { return match.StripSuffix(arg, s) }
	case rules.DirPrefix:
		return func(s string) string { return arg + s }
	default:
		return func(s string) string { return s + arg }
	}
}

// renameOptional applies fn to an optional attribute.
func renameOptional(s *string, fn renamer) {
	if *s != "" {
		*s = fn(*s)
	}
}

// textScope is a level of the tree whose element names can be rewritten.
type textScope struct {
	scope log.Scope
	path  string

	// names lists the current element names in tree order.
	names func() []string

	// rename applies fn to every element name and its name-like
	// attributes.
	rename func(fn renamer)

	// repoint rewrites derivedFrom references after a rename.
	repoint func(renamed map[string]string)

	// elements selects the elements matching s for _replace.
	elements func(s match.Spec) []textAttrs
}

// textAttrs exposes the textual attributes of one element by name.
type textAttrs map[string]*string

// textSteps returns the _strip, _strip_end, _prefix and _suffix steps
// of a scope.
func (p *patcher) textSteps(ts *textScope) []step {
	var steps []step
	for _, d := range []rules.Directive{rules.DirStrip, rules.DirStripEnd, rules.DirPrefix, rules.DirSuffix} {
		steps = append(steps, step{d, func(n *yaml.Node) error {
			args, err := rules.Strings(n)
			if err != nil {
				return err
			}
			for _, arg := range args {
				before := ts.names()
				ts.rename(textRenamer(d, arg))
				renamed, err := ts.settle(before)
				if err != nil {
					return err
				}
				if len(renamed) > 0 {
					p.debugLog("renamed elements", "path", ts.path, "directive", d.String(), "renames", describeRename(renamed))
				}
				p.trace(ts.scope, ts.path, d, arg, sortedKeys(renamed), sortedValues(renamed), nil)
			}
			return nil
		}})
	}
	return steps
}

// settle compares the element names with before, repoints references to
// renamed elements and rejects renames that collide.
func (ts *textScope) settle(before []string) (map[string]string, error) {
	after := ts.names()
	renamed := make(map[string]string)
	for i, old := range before {
		if i < len(after) && after[i] != old {
			renamed[old] = after[i]
		}
	}
	if len(renamed) == 0 {
		return renamed, nil
	}
	count := make(map[string]int, len(after))
	for _, n := range after {
		count[n]++
	}
	for _, n := range sortedValues(renamed) {
		if count[n] > 1 {
			return nil, exists("renaming produces a second element named %s", n)
		}
	}
	ts.repoint(renamed)
	return renamed, nil
}

// substitution is one regular expression replacement.
type substitution struct {
	re   *regexp.Regexp
	repl string
}

// parseSubstitutions accepts [pattern, replacement] or a list of such
// pairs.
func parseSubstitutions(n *yaml.Node) ([]substitution, error) {
	items := rules.Items(n)
	if len(items) == 0 {
		return nil, structural("replacement must be [pattern, replacement]")
	}
	if rules.IsSeq(items[0]) {
		var out []substitution
		for _, item := range items {
			s, err := parseSubstitutions(item)
			if err != nil {
				return nil, err
			}
			out = append(out, s...)
		}
		return out, nil
	}
	if len(items) != 2 {
		return nil, structural("replacement must be [pattern, replacement], found %d values", len(items))
	}
	pattern, err := rules.Scalar(items[0])
	if err != nil {
		return nil, err
	}
	repl, err := rules.Scalar(items[1])
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, malformed(err, "pattern %q", pattern)
	}
	return []substitution{{re: re, repl: repl}}, nil
}

// replaceStep returns the _replace step of a scope:
// {SPEC: {attribute: [pattern, replacement]}}.
func (p *patcher) replaceStep(ts *textScope) step {
	return step{rules.DirReplace, func(n *yaml.Node) error {
		for _, kv := range rules.Pairs(n) {
			spec := match.Parse(kv.Key)
			before := ts.names()
			elems := ts.elements(spec)
			if len(elems) == 0 {
				if spec.Optional() {
					continue
				}
				return noMatch("element", spec, before)
			}
			for _, attr := range rules.Pairs(kv.Value) {
				subs, err := parseSubstitutions(attr.Value)
				if err != nil {
					return within(err, "attribute", attr.Key)
				}
				for _, e := range elems {
					dst, ok := e[attr.Key]
					if !ok {
						return structural("%s cannot be replaced", attr.Key)
					}
					for _, s := range subs {
						*dst = s.re.ReplaceAllString(*dst, s.repl)
					}
				}
			}
			renamed, err := ts.settle(before)
			if err != nil {
				return err
			}
			p.trace(ts.scope, ts.path, rules.DirReplace, kv.Key, nil, sortedValues(renamed), nil)
		}
		return nil
	}}
}

func peripheralText(per *svd.Peripheral) textAttrs {
	return textAttrs{
		"name":             &per.Name,
		"description":      &per.Description,
		"groupName":        &per.GroupName,
		"headerStructName": &per.HeaderStructName,
	}
}

func registerText(r *svd.Register) textAttrs {
	return textAttrs{
		"name":              &r.Name,
		"description":       &r.Description,
		"displayName":       &r.DisplayName,
		"alternateRegister": &r.AlternateRegister,
	}
}

func clusterText(cl *svd.Cluster) textAttrs {
	return textAttrs{
		"name":             &cl.Name,
		"description":      &cl.Description,
		"headerStructName": &cl.HeaderStructName,
		"alternateCluster": &cl.AlternateCluster,
	}
}

func fieldText(f *svd.Field) textAttrs {
	return textAttrs{
		"name":        &f.Name,
		"description": &f.Description,
	}
}

// deviceText is the text scope of the peripheral list.
func (p *patcher) deviceText() *textScope {
	return &textScope{
		scope: log.ScopeDevice,
		path:  "",
		names: func() []string { return peripheralNames(p.dev.Peripherals) },
		rename: func(fn renamer) {
			for _, per := range p.dev.Peripherals {
				per.Name = fn(per.Name)
			}
		},
		repoint: func(renamed map[string]string) {
			for _, per := range p.dev.Peripherals {
				if n, ok := renamed[per.DerivedFrom]; ok {
					per.DerivedFrom = n
				}
			}
			repointQualified(p.dev, nil, renamed)
		},
		elements: func(s match.Spec) []textAttrs {
			var out []textAttrs
			for _, per := range match.Filter(p.dev.Peripherals, s, peripheralName) {
				out = append(out, peripheralText(per))
			}
			return out
		},
	}
}

// containerText is the text scope of a register block.
func (p *patcher) containerText(c *container) *textScope {
	return &textScope{
		scope: c.scope(),
		path:  c.path,
		names: c.childNames,
		rename: func(fn renamer) {
			for _, ch := range *c.children {
				switch {
				case ch.Register != nil:
					ch.Register.Name = fn(ch.Register.Name)
					renameOptional(&ch.Register.DisplayName, fn)
					renameOptional(&ch.Register.AlternateRegister, fn)
				case ch.Cluster != nil:
					ch.Cluster.Name = fn(ch.Cluster.Name)
					renameOptional(&ch.Cluster.HeaderStructName, fn)
					renameOptional(&ch.Cluster.AlternateCluster, fn)
				}
			}
		},
		repoint: func(renamed map[string]string) {
			for _, ch := range *c.children {
				switch {
				case ch.Register != nil:
					if n, ok := renamed[ch.Register.DerivedFrom]; ok {
						ch.Register.DerivedFrom = n
					}
				case ch.Cluster != nil:
					if n, ok := renamed[ch.Cluster.DerivedFrom]; ok {
						ch.Cluster.DerivedFrom = n
					}
				}
			}
			repointQualified(p.dev, strings.Split(c.path, "/"), renamed)
		},
		elements: func(s match.Spec) []textAttrs {
			var out []textAttrs
			for _, ch := range *c.children {
				switch {
				case ch.Register != nil && s.Match(ch.Register.Name):
					out = append(out, registerText(ch.Register))
				case ch.Cluster != nil && s.Match(ch.Cluster.Name):
					out = append(out, clusterText(ch.Cluster))
				}
			}
			return out
		},
	}
}

// fieldTextScope is the text scope of the fields of a register.
func (p *patcher) fieldTextScope(path string, r *svd.Register) *textScope {
	return &textScope{
		scope: log.ScopeRegister,
		path:  path,
		names: func() []string { return fieldNames(r.Fields) },
		rename: func(fn renamer) {
			for _, f := range r.Fields {
				f.Name = fn(f.Name)
			}
		},
		repoint: func(renamed map[string]string) {
			for _, f := range r.Fields {
				if n, ok := renamed[f.DerivedFrom]; ok {
					f.DerivedFrom = n
				}
				// FIELD.ENUM refers to a field of the same register.
				for _, ev := range f.EnumeratedValues {
					if field, enum, ok := strings.Cut(ev.DerivedFrom, "."); ok && !strings.Contains(enum, ".") {
						if n, ok := renamed[field]; ok {
							ev.DerivedFrom = n + "." + enum
						}
					}
				}
			}
			repointQualified(p.dev, strings.Split(path, "/"), renamed)
		},
		elements: func(s match.Spec) []textAttrs {
			var out []textAttrs
			for _, f := range match.Filter(r.Fields, s, fieldName) {
				out = append(out, fieldText(f))
			}
			return out
		},
	}
}

// repointQualified rewrites the dotted derivedFrom references of dev
// that pass through scope and name a renamed element right below it.
// Undotted references are local and handled by each scope.
func repointQualified(dev *svd.Device, scope []string, renamed map[string]string) {
	for _, ref := range derivedRefs(dev) {
		parts := strings.Split(*ref, ".")
		if len(parts) < 2 || len(parts) <= len(scope) || !slices.Equal(parts[:len(scope)], scope) {
			continue
		}
		if n, ok := renamed[parts[len(scope)]]; ok {
			parts[len(scope)] = n
			*ref = strings.Join(parts, ".")
		}
	}
}

// derivedRefs returns the derivedFrom attributes of every element of dev.
func derivedRefs(dev *svd.Device) []*string {
	var out []*string
	var fields func(fs []*svd.Field)
	fields = func(fs []*svd.Field) {
		for _, f := range fs {
			out = append(out, &f.DerivedFrom)
			for _, ev := range f.EnumeratedValues {
				out = append(out, &ev.DerivedFrom)
			}
		}
	}
	var block func(cs svd.Children)
	block = func(cs svd.Children) {
		for _, ch := range cs {
			switch {
			case ch.Register != nil:
				out = append(out, &ch.Register.DerivedFrom)
				fields(ch.Register.Fields)
			case ch.Cluster != nil:
				out = append(out, &ch.Cluster.DerivedFrom)
				block(ch.Cluster.Children)
			}
		}
	}
	for _, per := range dev.Peripherals {
		block(per.Children)
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedValues(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// describeRename renders a rename map for log output.
func describeRename(m map[string]string) string {
	keys := sortedKeys(m)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s->%s", k, m[k])
	}
	return strings.Join(parts, ", ")
}
