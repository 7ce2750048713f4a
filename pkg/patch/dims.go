package patch

import (
	"fmt"
	"strconv"
	"strings"
)

// collectDims computes the stride of elements found at offsets, which
// must be sorted. A single element uses fallback. The stride must be
// non-zero and constant.
func collectDims(offsets []uint64, fallback uint64) (dim int, increment uint64, err error) {
	dim = len(offsets)
	switch {
	case dim == 0:
		return 0, 0, fmt.Errorf("no elements")
	case dim == 1:
		increment = fallback
	default:
		increment = offsets[1] - offsets[0]
	}
	if increment == 0 {
		return 0, 0, fmt.Errorf("dimIncrement is zero")
	}
	if !checkStride(offsets, increment) {
		return 0, 0, fmt.Errorf("elements are not evenly spaced by %#x", increment)
	}
	return dim, increment, nil
}

// checkStride reports whether offsets advance by exactly increment.
func checkStride(offsets []uint64, increment uint64) bool {
	for i := 1; i < len(offsets); i++ {
		if offsets[i]-offsets[i-1] != increment || offsets[i] <= offsets[i-1] {
			return false
		}
	}
	return true
}

// substituteIndex replaces the "%s" placeholders of an array name
// template by label. "[%s]" is replaced as a whole.
func substituteIndex(template, label string) string {
	s := strings.ReplaceAll(template, "[%s]", label)
	return strings.ReplaceAll(s, "%s", label)
}

// sequential returns the labels "0" to "n-1".
func sequential(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = strconv.Itoa(i)
	}
	return out
}

// commonDescription turns the texts of collected elements into one
// template. The label of the first element is replaced by "%s"; every
// other text must then equal the template with its own label. Identical
// texts are returned unchanged.
func commonDescription(texts, labels []string) (string, bool) {
	if len(texts) == 0 {
		return "", false
	}
	first := texts[0]
	if labels[0] != "" {
		for start := 0; ; {
			i := strings.Index(first[start:], labels[0])
			if i < 0 {
				break
			}
			i += start
			tmpl := first[:i] + "%s" + first[i+len(labels[0]):]
			if descriptionsFit(tmpl, texts, labels) {
				return tmpl, true
			}
			start = i + 1
		}
	}
	for _, t := range texts[1:] {
		if t != first {
			return "", false
		}
	}
	return first, true
}

func descriptionsFit(tmpl string, texts, labels []string) bool {
	for i, t := range texts {
		if strings.Replace(tmpl, "%s", labels[i], 1) != t {
			return false
		}
	}
	return true
}
