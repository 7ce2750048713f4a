package patch

import (
	"fmt"
	"sort"
	"strings"

	"github.com/svdpatch/svdpatch-go/pkg/svd"
)

// mergeRanges returns the smallest range covering rs. gap reports whether
// some bit inside the result is not covered by any input. Overlapping
// inputs are an error.
func mergeRanges(rs []svd.BitRange) (merged svd.BitRange, gap bool, err error) {
	if len(rs) == 0 {
		return svd.BitRange{}, false, fmt.Errorf("no bit ranges to merge")
	}
	sorted := append([]svd.BitRange(nil), rs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })

	lo, end := sorted[0].Offset, sorted[0].End()
	for _, r := range sorted[1:] {
		switch {
		case r.Offset < end:
			return svd.BitRange{}, false, fmt.Errorf("bits %s overlap bits below %d", r, end)
		case r.Offset > end:
			gap = true
		}
		end = r.End()
	}
	return svd.BitRange{Offset: lo, Width: end - lo}, gap, nil
}

// splitRange returns one single-bit range per bit of r, lowest first.
func splitRange(r svd.BitRange) []svd.BitRange {
	out := make([]svd.BitRange, r.Width)
	for i := range out {
		out[i] = svd.BitRange{Offset: r.Offset + uint32(i), Width: 1}
	}
	return out
}

// fitsIn reports whether r lies inside a register of size bits.
func fitsIn(r svd.BitRange, size uint32) bool {
	return r.Width > 0 && r.End() <= size
}

// commonPrefix returns the longest common prefix of names.
func commonPrefix(names []string) string {
	if len(names) == 0 {
		return ""
	}
	prefix := names[0]
	for _, n := range names[1:] {
		for !strings.HasPrefix(n, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	return prefix
}
