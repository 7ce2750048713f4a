// Package rules loads YAML patch rule documents.
//
// A document is decoded into yaml.Node trees so that key order survives
// and duplicate keys can be rejected with their position. _include entries
// are resolved relative to the including file and merged into the
// includer; an include chain that returns to a file still being loaded is
// an error.
//
//	doc, err := rules.Load("devices/stm32f405.yaml")
//	if err != nil {
//		return err
//	}
//	svdPath, err := doc.SVDPath()
package rules
