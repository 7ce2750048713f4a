package svd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBitRange(t *testing.T) {
	r, err := ParseBitRange("[7:4]")
	require.NoError(t, err)
	assert.Equal(t, BitRange{Offset: 4, Width: 4}, r)
	assert.Equal(t, uint32(7), r.MSB())
	assert.Equal(t, "[7:4]", r.String())

	for _, bad := range []string{"7:4", "[4:7]", "[a:1]", "[3]"} {
		_, err := ParseBitRange(bad)
		assert.ErrorIs(t, err, ErrBitRange, bad)
	}
}

func TestBitRangeMask(t *testing.T) {
	assert.Equal(t, uint64(0xF0), BitRange{Offset: 4, Width: 4}.Mask())
	assert.Equal(t, uint64(0xFFFFFFFF), BitRange{Offset: 0, Width: 32}.Mask())
	assert.Equal(t, ^uint64(0), BitRange{Offset: 0, Width: 64}.Mask())
}

func TestBitRangeOverlaps(t *testing.T) {
	a := BitRange{Offset: 0, Width: 4}
	assert.True(t, a.Overlaps(BitRange{Offset: 3, Width: 2}))
	assert.False(t, a.Overlaps(BitRange{Offset: 4, Width: 2}))
}

func TestDimIndices(t *testing.T) {
	tests := []struct {
		spec string
		dim  int
		want []string
	}{
		{"", 3, []string{"0", "1", "2"}},
		{"0-3", 4, []string{"0", "1", "2", "3"}},
		{"A-C", 3, []string{"A", "B", "C"}},
		{"A,B,X", 3, []string{"A", "B", "X"}},
		{"5", 1, []string{"5"}},
	}
	for _, tt := range tests {
		got, err := DimIndices(tt.spec, tt.dim)
		require.NoError(t, err, tt.spec)
		assert.Equal(t, tt.want, got, tt.spec)
	}

	_, err := DimIndices("3-1", 0)
	assert.Error(t, err)
}

func TestFormatDimIndex(t *testing.T) {
	assert.Equal(t, "0-3", FormatDimIndex([]string{"0", "1", "2", "3"}))
	assert.Equal(t, "2-4", FormatDimIndex([]string{"2", "3", "4"}))
	assert.Equal(t, "A,B", FormatDimIndex([]string{"A", "B"}))
	assert.Equal(t, "1,3", FormatDimIndex([]string{"1", "3"}))
	assert.Equal(t, "01,02", FormatDimIndex([]string{"01", "02"}))
}

func TestFieldSetBitForms(t *testing.T) {
	f := &Field{Name: "F"}
	require.NoError(t, f.Set("lsb", "4"))
	require.NoError(t, f.Set("msb", "7"))
	assert.Equal(t, BitRange{Offset: 4, Width: 4}, f.Range())

	g := &Field{Name: "G"}
	require.NoError(t, g.Set("msb", "7"))
	require.NoError(t, g.Set("lsb", "4"))
	assert.Equal(t, BitRange{Offset: 4, Width: 4}, g.Range())

	h := &Field{Name: "H"}
	require.NoError(t, h.Set("bitRange", "[15:8]"))
	assert.Equal(t, BitRange{Offset: 8, Width: 8}, h.Range())

	i := &Field{Name: "I"}
	require.NoError(t, i.Set("bitOffset", "3"))
	assert.Equal(t, BitRange{Offset: 3, Width: 1}, i.Range())
}

func TestSetUnknownAttribute(t *testing.T) {
	r := &Register{Name: "R"}
	err := r.Set("colour", "red")
	assert.ErrorIs(t, err, ErrUnknownAttribute)

	require.NoError(t, r.Set("size", "16"))
	assert.Equal(t, uint32(16), r.SizeOr(32))
	require.NoError(t, r.Set("size", ""))
	assert.Nil(t, r.Size)
}
