// Package match implements the name specifiers used by patch rules to
// select elements of a device tree.
//
// A specifier is a comma separated list of alternatives. Each alternative
// is a glob: '?' matches one character, '*' any run of characters, and
// "[abc]", "[a-z]" or "[!abc]" one character from (or outside) a set.
// Brace groups "{a,b}" expand into further alternatives. A leading "?~"
// marks the whole specifier optional: selecting nothing with it is not an
// error. Specifiers starting with '_' are directive keys and never match.
package match

import (
	"regexp"
	"strings"
)

// OptionalPrefix marks a specifier that may match nothing.
const OptionalPrefix = "?~"

// Spec is a compiled name specifier.
type Spec struct {
	raw      string
	optional bool
	alts     []alternative
}

type alternative struct {
	pattern string
	literal bool
	re      *regexp.Regexp
}

// Parse compiles a specifier. Malformed character classes are treated as
// literal text, so Parse never fails.
func Parse(spec string) Spec {
	s := Spec{raw: spec}
	body := spec
	if strings.HasPrefix(body, OptionalPrefix) {
		s.optional = true
		body = body[len(OptionalPrefix):]
	}
	if body == "" || strings.HasPrefix(body, "_") {
		return s
	}
	for _, part := range splitTopLevel(body) {
		for _, p := range expandBraces(part) {
			s.alts = append(s.alts, compile(p))
		}
	}
	return s
}

// String returns the specifier as written, including the optional marker.
func (s Spec) String() string {
	return s.raw
}

// Optional reports whether the specifier carried the "?~" marker.
func (s Spec) Optional() bool {
	return s.optional
}

// Patterns returns the expanded alternatives.
func (s Spec) Patterns() []string {
	out := make([]string, len(s.alts))
	for i, a := range s.alts {
		out[i] = a.pattern
	}
	return out
}

// IsLiteral reports whether every alternative is a plain name.
func (s Spec) IsLiteral() bool {
	for _, a := range s.alts {
		if !a.literal {
			return false
		}
	}
	return len(s.alts) > 0
}

// Match reports whether name is selected by the specifier.
func (s Spec) Match(name string) bool {
	return s.MatchIndex(name) >= 0
}

// MatchIndex returns the index of the first alternative matching name, or
// -1 if none does.
func (s Spec) MatchIndex(name string) int {
	for i, a := range s.alts {
		if a.match(name) {
			return i
		}
	}
	return -1
}

// Alternative returns the i-th expanded alternative.
func (s Spec) Alternative(i int) string {
	return s.alts[i].pattern
}

// Captures returns the text matched by each wildcard token of the first
// alternative matching name. Runs of adjacent wildcard tokens form one
// capture. It returns nil when name does not match.
func (s Spec) Captures(name string) []string {
	i := s.MatchIndex(name)
	if i < 0 {
		return nil
	}
	a := s.alts[i]
	if a.literal {
		return []string{}
	}
	m := a.re.FindStringSubmatch(name)
	return m[1:]
}

func (a alternative) match(name string) bool {
	if a.literal {
		return a.pattern == name
	}
	return a.re.MatchString(name)
}

// Filter returns the items whose names match s, in their original order.
func Filter[T any](items []T, s Spec, name func(T) string) []T {
	var out []T
	for _, it := range items {
		if s.Match(name(it)) {
			out = append(out, it)
		}
	}
	return out
}

// Names returns the names of items matching s, in their original order.
func Names[T any](items []T, s Spec, name func(T) string) []string {
	var out []string
	for _, it := range items {
		if n := name(it); s.Match(n) {
			out = append(out, n)
		}
	}
	return out
}

func compile(pattern string) alternative {
	var (
		b       strings.Builder
		literal = true
		inGroup bool
	)
	b.WriteString("^")
	open := func() {
		if !inGroup {
			b.WriteString("(")
			inGroup = true
		}
	}
	closeGroup := func() {
		if inGroup {
			b.WriteString(")")
			inGroup = false
		}
	}

	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '*':
			literal = false
			open()
			b.WriteString(".*")
		case '?':
			literal = false
			open()
			b.WriteString(".")
		case '[':
			end := classEnd(pattern, i)
			if end < 0 {
				closeGroup()
				b.WriteString(regexp.QuoteMeta("["))
				continue
			}
			literal = false
			open()
			b.WriteString(translateClass(pattern[i+1 : end]))
			i = end
		default:
			closeGroup()
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	closeGroup()
	b.WriteString("$")

	a := alternative{pattern: pattern, literal: literal}
	if !literal {
		a.re = regexp.MustCompile(b.String())
	}
	return a
}

// classEnd returns the index of the ']' closing the class opened at i, or
// -1. A ']' right after the opening (or after '!') is part of the set.
func classEnd(p string, i int) int {
	j := i + 1
	if j < len(p) && p[j] == '!' {
		j++
	}
	if j < len(p) && p[j] == ']' {
		j++
	}
	for ; j < len(p); j++ {
		if p[j] == ']' {
			return j
		}
	}
	return -1
}

func translateClass(body string) string {
	var b strings.Builder
	b.WriteString("[")
	if strings.HasPrefix(body, "!") {
		b.WriteString("^")
		body = body[1:]
	}
	for _, r := range body {
		switch r {
		case '\\', '[', ']', '^':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteString("]")
	return b.String()
}

// splitTopLevel splits on commas that are not inside a brace group.
func splitTopLevel(s string) []string {
	var (
		parts []string
		depth int
		start int
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}
