package match

import (
	"strconv"
	"strings"
)

// expandBraces expands shell style brace groups: "A{1,2}B" yields "A1B"
// and "A2B", "{1..3}" a numeric sequence. Groups may nest. Text without a
// well formed group is returned unchanged.
func expandBraces(s string) []string {
	open := strings.IndexByte(s, '{')
	if open < 0 {
		return []string{s}
	}
	closing := matchingBrace(s, open)
	if closing < 0 {
		return []string{s}
	}

	prefix, body, suffix := s[:open], s[open+1:closing], s[closing+1:]

	var items []string
	if seq, ok := sequence(body); ok {
		items = seq
	} else {
		items = splitTopLevel(body)
		if len(items) < 2 {
			// "{x}" is not a group; keep the braces and expand the rest.
			var out []string
			for _, tail := range expandBraces(suffix) {
				out = append(out, prefix+"{"+body+"}"+tail)
			}
			return out
		}
	}

	var out []string
	for _, item := range items {
		for _, head := range expandBraces(item) {
			for _, tail := range expandBraces(suffix) {
				out = append(out, prefix+head+tail)
			}
		}
	}
	return out
}

func matchingBrace(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// sequence expands "a..b" for integers a and b, counting down when a > b.
func sequence(body string) ([]string, bool) {
	lo, hi, ok := strings.Cut(body, "..")
	if !ok {
		return nil, false
	}
	a, err1 := strconv.Atoi(lo)
	b, err2 := strconv.Atoi(hi)
	if err1 != nil || err2 != nil {
		return nil, false
	}
	step := 1
	if a > b {
		step = -1
	}
	var out []string
	for i := a; ; i += step {
		out = append(out, strconv.Itoa(i))
		if i == b {
			break
		}
	}
	return out, true
}
