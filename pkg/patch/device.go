package patch

import (
	"gopkg.in/yaml.v3"

	"github.com/svdpatch/svdpatch-go/pkg/log"
	"github.com/svdpatch/svdpatch-go/pkg/match"
	"github.com/svdpatch/svdpatch-go/pkg/rules"
	"github.com/svdpatch/svdpatch-go/pkg/svd"
)

// deviceAttrs are the _modify keys naming device elements rather than
// peripherals.
var deviceAttrs = map[string]bool{
	"name": true, "vendor": true, "vendorID": true, "series": true,
	"version": true, "description": true, "licenseText": true,
	"headerSystemFilename": true, "headerDefinitionsPrefix": true,
	"schemaVersion": true, "addressUnitBits": true, "width": true,
	"size": true, "access": true, "protection": true,
	"resetValue": true, "resetMask": true,
}

// device applies the root rule block.
func (p *patcher) device() error {
	b, err := rules.ParseBlock(p.doc.Root, rules.ScopeDevice)
	if err != nil {
		pe := toError(err)
		if pe.File == "" {
			pe.File = p.doc.Path
		}
		return pe
	}

	ts := p.deviceText()
	steps := append(p.textSteps(ts),
		p.replaceStep(ts),
		step{rules.DirModify, p.modifyDevice},
		step{rules.DirClearFields, p.clearPeripheralFields},
		step{rules.DirAdd, p.addPeripherals},
		step{rules.DirDelete, p.deletePeripherals},
		step{rules.DirCopy, p.copyPeripherals},
		step{rules.DirDerive, p.derivePeripherals},
		step{rules.DirRebase, p.rebasePeripherals},
	)
	if err := p.run(b, steps); err != nil {
		return err
	}

	for _, e := range b.Children {
		if err := p.ctx.Err(); err != nil {
			return err
		}
		if err := p.peripheralSpec(e); err != nil {
			return p.annotateEntry(err, e)
		}
	}
	return nil
}

// selectPeripherals returns the peripherals matching spec. A required spec
// matching nothing is an error.
func (p *patcher) selectPeripherals(spec match.Spec) ([]*svd.Peripheral, error) {
	ps := match.Filter(p.dev.Peripherals, spec, peripheralName)
	if len(ps) == 0 && !spec.Optional() {
		return nil, noMatch("peripheral", spec, peripheralNames(p.dev.Peripherals))
	}
	return ps, nil
}

func (p *patcher) modifyDevice(n *yaml.Node) error {
	for _, kv := range rules.Pairs(n) {
		var err error
		switch {
		case kv.Key == "cpu":
			err = p.setCPU(kv.Value)
		case kv.Key == "_peripherals":
			for _, pk := range rules.Pairs(kv.Value) {
				if err = p.modifyPeripherals(pk.Key, pk.Value); err != nil {
					break
				}
			}
		case deviceAttrs[kv.Key] && !rules.IsMap(kv.Value):
			var v string
			if v, err = rules.Scalar(kv.Value); err == nil {
				if err = p.dev.Set(kv.Key, v); err != nil {
					err = malformed(err, "device %s", kv.Key)
				}
			}
		default:
			err = p.modifyPeripherals(kv.Key, kv.Value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *patcher) modifyPeripherals(key string, attrs *yaml.Node) error {
	spec := match.Parse(key)
	ps, err := p.selectPeripherals(spec)
	if err != nil {
		return err
	}
	before := peripheralNames(p.dev.Peripherals)
	for _, per := range ps {
		if err := p.setPeripheral(per, attrs, p.dev.SizeOr(32)); err != nil {
			return within(err, "peripheral", per.Name)
		}
	}
	if _, err := p.deviceText().settle(before); err != nil {
		return err
	}
	p.trace(log.ScopeDevice, "", rules.DirModify, key, peripheralNames(ps), nil, nil)
	return nil
}

// clearPeripheralFields drops enumerated values and write constraints
// from every field of the matched peripherals.
func (p *patcher) clearPeripheralFields(n *yaml.Node) error {
	specs, err := rules.Strings(n)
	if err != nil {
		return err
	}
	for _, s := range specs {
		ps, err := p.selectPeripherals(match.Parse(s))
		if err != nil {
			return err
		}
		for _, per := range ps {
			per.Children.Walk(func(_ []*svd.Cluster, r *svd.Register) {
				clearFields(r.Fields)
			})
		}
		p.trace(log.ScopeDevice, "", rules.DirClearFields, s, peripheralNames(ps), nil, nil)
	}
	return nil
}

func clearFields(fs []*svd.Field) {
	for _, f := range fs {
		f.EnumeratedValues = nil
		f.WriteConstraint = nil
	}
}

func (p *patcher) addPeripherals(n *yaml.Node) error {
	for _, kv := range rules.Pairs(n) {
		if p.dev.Peripheral(kv.Key) != nil {
			return exists("peripheral %s already exists", kv.Key)
		}
		per := &svd.Peripheral{Name: kv.Key}
		if err := p.setPeripheral(per, kv.Value, p.dev.SizeOr(32)); err != nil {
			return within(err, "peripheral", kv.Key)
		}
		if per.DerivedFrom != "" && p.dev.Peripheral(per.DerivedFrom) == nil {
			return within(missing("derivedFrom %s does not exist", per.DerivedFrom), "peripheral", kv.Key)
		}
		p.dev.Peripherals = append(p.dev.Peripherals, per)
		p.trace(log.ScopeDevice, "", rules.DirAdd, kv.Key, nil, []string{kv.Key}, nil)
	}
	return nil
}

func (p *patcher) deletePeripherals(n *yaml.Node) error {
	var specs []string
	if rules.IsMap(n) {
		for _, kv := range rules.Pairs(n) {
			if kv.Key != "_peripherals" {
				return structural("_delete at device scope takes _peripherals, found %s", kv.Key)
			}
			s, err := rules.Strings(kv.Value)
			if err != nil {
				return err
			}
			specs = append(specs, s...)
		}
	} else {
		var err error
		if specs, err = rules.Strings(n); err != nil {
			return err
		}
	}
	for _, s := range specs {
		spec := match.Parse(s)
		ps := match.Filter(p.dev.Peripherals, spec, peripheralName)
		if len(ps) == 0 {
			p.debugLog("delete: no peripheral matched", "spec", s)
			continue
		}
		for _, per := range ps {
			p.dev.RemovePeripheral(per)
		}
		p.trace(log.ScopeDevice, "", rules.DirDelete, s, nil, nil, peripheralNames(ps))
	}
	return nil
}

// peripheralSpec applies the rules of one peripheral specifier.
func (p *patcher) peripheralSpec(e rules.Entry) error {
	spec := match.Parse(e.Spec)
	ps, err := p.selectPeripherals(spec)
	if err != nil || len(ps) == 0 {
		return err
	}
	b, err := rules.ParseBlock(e.Value, rules.ScopePeripheral)
	if err != nil {
		return err
	}

	patched := 0
	for _, per := range ps {
		if per.DerivedFrom != "" {
			if err := p.derivedPeripheral(per, b); err != nil {
				return within(err, "peripheral", per.Name)
			}
			continue
		}
		patched++
		p.debugLog("patching peripheral", "peripheral", per.Name)
		if err := p.block(peripheralContainer(p.dev, per), b); err != nil {
			return within(err, "peripheral", per.Name)
		}
	}
	if patched == 0 && !interruptsOnly(b) {
		return structural("%s matched only derived peripherals (%v); they accept interrupt rules only",
			e.Spec, peripheralNames(ps))
	}
	return nil
}

// interruptsOnly reports whether b carries nothing but _interrupts
// sub-blocks of _delete, _modify and _add.
func interruptsOnly(b *rules.Block) bool {
	if len(b.Children) > 0 {
		return false
	}
	for d, n := range b.Directives {
		switch d {
		case rules.DirDelete, rules.DirModify, rules.DirAdd:
			for _, kv := range rules.Pairs(n) {
				if kv.Key != "_interrupts" {
					return false
				}
			}
			if !rules.IsMap(n) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// derivedPeripheral applies the interrupt rules of b to a peripheral that
// inherits its registers.
func (p *patcher) derivedPeripheral(per *svd.Peripheral, b *rules.Block) error {
	c := peripheralContainer(p.dev, per)
	return p.run(b, []step{
		{rules.DirModify, func(n *yaml.Node) error {
			return p.modifyInterrupts(c, rules.Lookup(n, "_interrupts"))
		}},
		{rules.DirAdd, func(n *yaml.Node) error {
			return p.addInterrupts(c, rules.Lookup(n, "_interrupts"))
		}},
		{rules.DirDelete, func(n *yaml.Node) error {
			return p.deleteInterrupts(c, rules.Lookup(n, "_interrupts"))
		}},
	})
}
