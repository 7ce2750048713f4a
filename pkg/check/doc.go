// Package check runs consistency rules over an SVD device tree.
//
// Rules are registered with a RuleRegistry, which keeps them in
// registration order and lets callers enable, disable or re-grade them:
//
//	reg := check.NewDefaultRegistry()
//	reg.Disable("DESC001")
//	reg.SetSeverity("ADR001", check.SeverityError)
//	report := reg.Run(dev)
//	if report.HasErrors() {
//		...
//	}
//
// # Built-in Rules
//
//   - DESC001: peripheral, register or field without a description
//   - DRV001: derivedFrom naming an element that does not exist
//   - DRV002: derivedFrom chain that loops back on itself
//   - FLD001: fields sharing bits
//   - FLD002: field reaching past the register size
//   - ADR001: registers sharing addresses without alternateRegister or alternateGroup
//   - DIM001: inconsistent dim, dimIncrement or dimIndex
//   - ENM001: several default values, or values wider than the field
//   - NAM001: siblings with the same name
//
// Every rule reports all of its findings; a run never stops at the first
// violation.
package check
