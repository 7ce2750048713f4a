package rules

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Directive identifies an underscore-prefixed rule key.
type Directive uint8

// Rule document directives.
const (
	DirUnknown Directive = iota
	DirSVD
	DirInclude
	DirModify
	DirAdd
	DirDelete
	DirCopy
	DirDerive
	DirRebase
	DirStrip
	DirStripEnd
	DirPrefix
	DirSuffix
	DirReplace
	DirClearFields
	DirClear
	DirArray
	DirCluster
	DirClusters
	DirExpandArray
	DirExpandCluster
	DirMerge
	DirSplit

	// Field scope.
	DirRead
	DirWrite
	DirReplaceEnum
	DirDerivedFrom
	DirWriteConstraint
	DirRM
	DirRS
	DirRC
	DirRME
	DirWM
	DirWS
	DirWC
	DirW1S
	DirW0C
	DirW1C
	DirW0S
	DirW1T
	DirW0T
)

var directiveNames = map[Directive]string{
	DirSVD:             "_svd",
	DirInclude:         "_include",
	DirModify:          "_modify",
	DirAdd:             "_add",
	DirDelete:          "_delete",
	DirCopy:            "_copy",
	DirDerive:          "_derive",
	DirRebase:          "_rebase",
	DirStrip:           "_strip",
	DirStripEnd:        "_strip_end",
	DirPrefix:          "_prefix",
	DirSuffix:          "_suffix",
	DirReplace:         "_replace",
	DirClearFields:     "_clear_fields",
	DirClear:           "_clear",
	DirArray:           "_array",
	DirCluster:         "_cluster",
	DirClusters:        "_clusters",
	DirExpandArray:     "_expand_array",
	DirExpandCluster:   "_expand_cluster",
	DirMerge:           "_merge",
	DirSplit:           "_split",
	DirRead:            "_read",
	DirWrite:           "_write",
	DirReplaceEnum:     "_replace_enum",
	DirDerivedFrom:     "_derivedFrom",
	DirWriteConstraint: "_write_constraint",
	DirRM:              "_RM",
	DirRS:              "_RS",
	DirRC:              "_RC",
	DirRME:             "_RME",
	DirWM:              "_WM",
	DirWS:              "_WS",
	DirWC:              "_WC",
	DirW1S:             "_W1S",
	DirW0C:             "_W0C",
	DirW1C:             "_W1C",
	DirW0S:             "_W0S",
	DirW1T:             "_W1T",
	DirW0T:             "_W0T",
}

var directivesByName = func() map[string]Directive {
	m := make(map[string]Directive, len(directiveNames))
	for d, n := range directiveNames {
		m[n] = d
	}
	return m
}()

// String returns the directive key as written in rule documents.
func (d Directive) String() string {
	if n, ok := directiveNames[d]; ok {
		return n
	}
	return "_unknown"
}

// ParseDirective looks up a directive key.
func ParseDirective(key string) (Directive, bool) {
	d, ok := directivesByName[key]
	return d, ok
}

// ReadAction returns the readAction implied by a field directive such as
// _RC, or "".
func (d Directive) ReadAction() string {
	switch d {
	case DirRM:
		return "modify"
	case DirRS:
		return "set"
	case DirRC:
		return "clear"
	case DirRME:
		return "modifyExternal"
	}
	return ""
}

// ModifiedWriteValues returns the modifiedWriteValues implied by a field
// directive such as _W1C, or "".
func (d Directive) ModifiedWriteValues() string {
	switch d {
	case DirWM:
		return "modify"
	case DirWS:
		return "set"
	case DirWC:
		return "clear"
	case DirW1S:
		return "oneToSet"
	case DirW0C:
		return "zeroToClear"
	case DirW1C:
		return "oneToClear"
	case DirW0S:
		return "zeroToSet"
	case DirW1T:
		return "oneToToggle"
	case DirW0T:
		return "zeroToToggle"
	}
	return ""
}

// Scope is a level of the device tree a rule block applies to.
type Scope uint8

const (
	ScopeDevice Scope = iota
	ScopePeripheral
	ScopeCluster
	ScopeRegister
	ScopeField
)

func (s Scope) String() string {
	switch s {
	case ScopeDevice:
		return "device"
	case ScopePeripheral:
		return "peripheral"
	case ScopeCluster:
		return "cluster"
	case ScopeRegister:
		return "register"
	case ScopeField:
		return "field"
	}
	return "unknown"
}

var scopeDirectives = map[Scope][]Directive{
	ScopeDevice: {
		DirSVD, DirInclude, DirModify, DirAdd, DirDelete, DirCopy, DirDerive,
		DirRebase, DirStrip, DirStripEnd, DirPrefix, DirSuffix, DirReplace,
		DirClearFields,
	},
	ScopePeripheral: {
		DirInclude, DirModify, DirAdd, DirDelete, DirCopy, DirDerive,
		DirStrip, DirStripEnd, DirPrefix, DirSuffix, DirReplace, DirClearFields,
		DirArray, DirCluster, DirClusters, DirExpandArray, DirExpandCluster,
	},
	ScopeCluster: {
		DirInclude, DirModify, DirAdd, DirDelete, DirCopy, DirDerive,
		DirStrip, DirStripEnd, DirPrefix, DirSuffix, DirReplace, DirClearFields,
		DirArray, DirCluster, DirClusters, DirExpandArray, DirExpandCluster,
	},
	ScopeRegister: {
		DirInclude, DirModify, DirAdd, DirDelete, DirClear, DirStrip, DirStripEnd,
		DirPrefix, DirSuffix, DirReplace, DirArray, DirMerge, DirSplit,
	},
	ScopeField: {
		DirRead, DirWrite, DirReplaceEnum, DirDerivedFrom, DirWriteConstraint,
		DirRM, DirRS, DirRC, DirRME, DirWM, DirWS, DirWC,
		DirW1S, DirW0C, DirW1C, DirW0S, DirW1T, DirW0T,
	},
}

// Allowed reports whether d may appear directly in a block of scope s.
func (s Scope) Allowed(d Directive) bool {
	for _, x := range scopeDirectives[s] {
		if x == d {
			return true
		}
	}
	return false
}

// Entry is a non-directive key of a block: an element specifier at
// device, peripheral, cluster and register scope, or an enumerated value
// name at field scope.
type Entry struct {
	Spec  string
	Key   *yaml.Node
	Value *yaml.Node
}

// Block is a parsed rule mapping.
type Block struct {
	Scope      Scope
	Node       *yaml.Node
	Directives map[Directive]*yaml.Node
	Children   []Entry
}

// Has reports whether the block carries d.
func (b *Block) Has(d Directive) bool {
	_, ok := b.Directives[d]
	return ok
}

// Get returns the payload of d, or nil.
func (b *Block) Get(d Directive) *yaml.Node {
	return b.Directives[d]
}

// ParseBlock splits a rule mapping into directives and child entries.
// A null node yields an empty block. Unknown directives, and directives
// that do not belong to scope, are rejected.
func ParseBlock(node *yaml.Node, scope Scope) (*Block, error) {
	b := &Block{Scope: scope, Node: node, Directives: make(map[Directive]*yaml.Node)}
	if IsNull(node) {
		return b, nil
	}
	if !IsMap(node) {
		return nil, &LoadError{
			Line:    Resolve(node).Line,
			Message: fmt.Sprintf("%s rules must be a mapping", scope),
			Cause:   ErrInvalidValue,
		}
	}
	for _, p := range Pairs(node) {
		if p.Key == "" {
			return nil, &LoadError{
				Line:    p.KeyNode.Line,
				Message: fmt.Sprintf("empty key in %s rules", scope),
				Cause:   ErrInvalidValue,
			}
		}
		if !strings.HasPrefix(p.Key, "_") {
			b.Children = append(b.Children, Entry{Spec: p.Key, Key: p.KeyNode, Value: p.Value})
			continue
		}
		d, ok := ParseDirective(p.Key)
		if !ok {
			return nil, &LoadError{
				Line:    p.KeyNode.Line,
				Message: fmt.Sprintf("%s %q at %s scope", ErrUnknownKey, p.Key, scope),
				Cause:   ErrUnknownKey,
			}
		}
		if !scope.Allowed(d) {
			return nil, &LoadError{
				Line:    p.KeyNode.Line,
				Message: fmt.Sprintf("%s is not allowed at %s scope", p.Key, scope),
				Cause:   ErrMisplacedRule,
			}
		}
		b.Directives[d] = p.Value
	}
	return b, nil
}
