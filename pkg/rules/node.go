package rules

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/svdpatch/svdpatch-go/pkg/svd"
)

// Pair is one key/value entry of a mapping node.
type Pair struct {
	Key     string
	KeyNode *yaml.Node
	Value   *yaml.Node
}

// Resolve follows document wrappers and aliases.
func Resolve(n *yaml.Node) *yaml.Node {
	for n != nil {
		switch {
		case n.Kind == yaml.DocumentNode && len(n.Content) > 0:
			n = n.Content[0]
		case n.Kind == yaml.AliasNode:
			n = n.Alias
		default:
			return n
		}
	}
	return nil
}

// IsNull reports whether n is absent or an explicit null.
func IsNull(n *yaml.Node) bool {
	n = Resolve(n)
	return n == nil || n.Kind == 0 || (n.Kind == yaml.ScalarNode && n.Tag == "!!null")
}

// IsMap reports whether n is a mapping.
func IsMap(n *yaml.Node) bool {
	n = Resolve(n)
	return n != nil && n.Kind == yaml.MappingNode
}

// IsSeq reports whether n is a sequence.
func IsSeq(n *yaml.Node) bool {
	n = Resolve(n)
	return n != nil && n.Kind == yaml.SequenceNode
}

// IsScalar reports whether n is a non-null scalar.
func IsScalar(n *yaml.Node) bool {
	n = Resolve(n)
	return n != nil && n.Kind == yaml.ScalarNode && n.Tag != "!!null"
}

// Pairs returns the entries of a mapping in document order. Non-mapping
// nodes yield nil.
func Pairs(n *yaml.Node) []Pair {
	n = Resolve(n)
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	out := make([]Pair, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k := n.Content[i]
		out = append(out, Pair{Key: k.Value, KeyNode: k, Value: n.Content[i+1]})
	}
	return out
}

// Items returns the elements of a sequence.
func Items(n *yaml.Node) []*yaml.Node {
	n = Resolve(n)
	if n == nil || n.Kind != yaml.SequenceNode {
		return nil
	}
	return n.Content
}

// Lookup returns the value stored under key in a mapping, or nil.
func Lookup(n *yaml.Node, key string) *yaml.Node {
	for _, p := range Pairs(n) {
		if p.Key == key {
			return p.Value
		}
	}
	return nil
}

// Remove deletes key from a mapping and returns its value, or nil.
func Remove(n *yaml.Node, key string) *yaml.Node {
	n = Resolve(n)
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			v := n.Content[i+1]
			n.Content = append(n.Content[:i], n.Content[i+2:]...)
			return v
		}
	}
	return nil
}

// Scalar returns the text of a scalar node. Null yields "".
func Scalar(n *yaml.Node) (string, error) {
	n = Resolve(n)
	switch {
	case IsNull(n):
		return "", nil
	case n.Kind == yaml.ScalarNode:
		return n.Value, nil
	}
	return "", valueError(n, "expected a scalar")
}

// Strings accepts a scalar or a sequence of scalars.
func Strings(n *yaml.Node) ([]string, error) {
	n = Resolve(n)
	switch {
	case IsNull(n):
		return nil, nil
	case n.Kind == yaml.ScalarNode:
		return []string{n.Value}, nil
	case n.Kind == yaml.SequenceNode:
		out := make([]string, 0, len(n.Content))
		for _, item := range n.Content {
			s, err := Scalar(item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, valueError(n, "expected a name or a list of names")
}

// Int parses a scalar as a signed integer. Non-negative values accept the
// SVD number forms (0x.., #binary).
func Int(n *yaml.Node) (int64, error) {
	s, err := Scalar(n)
	if err != nil {
		return 0, err
	}
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-") {
		v, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return 0, valueError(n, fmt.Sprintf("%q is not an integer", s))
		}
		return v, nil
	}
	v, err := svd.ParseInt(s)
	if err != nil {
		return 0, valueError(n, fmt.Sprintf("%q is not an integer", s))
	}
	return int64(v), nil
}

// Bool parses a scalar as a boolean. Null is false.
func Bool(n *yaml.Node) (bool, error) {
	if IsNull(n) {
		return false, nil
	}
	var b bool
	if err := Resolve(n).Decode(&b); err != nil {
		return false, valueError(n, "expected true or false")
	}
	return b, nil
}

// Encode renders n as YAML text.
func Encode(n *yaml.Node) string {
	out, err := yaml.Marshal(Resolve(n))
	if err != nil {
		return fmt.Sprintf("<unprintable: %v>", err)
	}
	return string(out)
}

// MapNode builds a mapping node from alternating keys and values.
func MapNode(kv ...*yaml.Node) *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map", Content: kv}
}

// StringNode builds a string scalar node.
func StringNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func valueError(n *yaml.Node, msg string) error {
	line := 0
	if n != nil {
		line = n.Line
	}
	return &LoadError{Line: line, Message: msg, Cause: ErrInvalidValue}
}
