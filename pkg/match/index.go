package match

import (
	"regexp"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

var indexToken = regexp.MustCompile(`^[\w%]*((?:[?*]|\[\d+(?:-\d+)?\]|\[[a-zA-Z]+(?:-[a-zA-Z]+)?\])+)[\w%]*$`)

// Index locates the single wildcard token of the first alternative of
// spec. left is the length of the literal text before the token and right
// the length after it. ok is false when the pattern has no token or more
// than one.
func Index(spec string) (left, right int, ok bool) {
	spec = strings.TrimPrefix(spec, OptionalPrefix)
	first, _, _ := strings.Cut(spec, ",")
	m := indexToken.FindStringSubmatchIndex(first)
	if m == nil {
		return 0, 0, false
	}
	return m[2], len(first) - m[3], true
}

// Varying returns the part of name that corresponds to the wildcard token
// of spec: name with the token's literal prefix and suffix lengths cut
// off.
func Varying(spec, name string) (string, bool) {
	left, right, ok := Index(spec)
	if !ok || left+right > len(name) {
		return "", false
	}
	return name[left : len(name)-right], true
}

// Template replaces the wildcard token of spec by "%s", keeping the
// literal text around it: "CH?_CR" becomes "CH%s_CR".
func Template(spec string) (string, bool) {
	spec = strings.TrimPrefix(spec, OptionalPrefix)
	first, _, _ := strings.Cut(spec, ",")
	left, right, ok := Index(first)
	if !ok {
		return "", false
	}
	return first[:left] + "%s" + first[len(first)-right:], true
}

func globRegexp(pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '*':
			b.WriteString(".*?")
		case '?':
			b.WriteString(".")
		case '[':
			end := classEnd(pattern, i)
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			b.WriteString(translateClass(pattern[i+1 : end]))
			i = end
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return b.String()
}

// StripPrefix removes the shortest leading match of the glob pattern from
// name. Names not starting with a match are returned unchanged.
func StripPrefix(pattern, name string) string {
	re := regexp.MustCompile("^" + globRegexp(pattern))
	if loc := re.FindStringIndex(name); loc != nil {
		return name[loc[1]:]
	}
	return name
}

// StripSuffix removes the trailing match of the glob pattern from name.
func StripSuffix(pattern, name string) string {
	re := regexp.MustCompile(globRegexp(pattern) + "$")
	if loc := re.FindStringIndex(name); loc != nil {
		return name[:loc[0]]
	}
	return name
}

// Suggest returns up to three candidates resembling the literal parts of
// spec, closest first. It is used to enrich "matched nothing" errors.
func Suggest(s Spec, candidates []string) []string {
	type scored struct {
		name string
		dist int
	}
	seen := make(map[string]bool)
	var hits []scored
	for _, pat := range s.Patterns() {
		needle := strings.NewReplacer("*", "", "?", "").Replace(pat)
		if needle == "" {
			continue
		}
		limit := max(1, len(needle)/3)
		for _, c := range candidates {
			if seen[c] {
				continue
			}
			d := fuzzy.LevenshteinDistance(strings.ToUpper(needle), strings.ToUpper(c))
			if d <= limit {
				seen[c] = true
				hits = append(hits, scored{c, d})
			}
		}
		for _, r := range fuzzy.RankFindFold(needle, candidates) {
			if !seen[r.Target] {
				seen[r.Target] = true
				hits = append(hits, scored{r.Target, r.Distance + limit})
			}
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })

	var out []string
	for _, h := range hits {
		if len(out) == 3 {
			break
		}
		out = append(out, h.name)
	}
	return out
}
