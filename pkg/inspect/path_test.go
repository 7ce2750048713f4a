package inspect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr error
	}{
		{name: "peripheral", input: "GPIOA", want: []string{"GPIOA"}},
		{name: "field", input: "GPIOA/MODER/MODER0", want: []string{"GPIOA", "MODER", "MODER0"}},
		{name: "cluster placeholder", input: "DMA1/CH%s/CR", want: []string{"DMA1", "CH%s", "CR"}},
		{name: "dotted", input: "GPIOA.MODER.MODER0", want: []string{"GPIOA", "MODER", "MODER0"}},
		{name: "surrounding space", input: "  GPIOA/ODR ", want: []string{"GPIOA", "ODR"}},
		{name: "empty", input: "  ", wantErr: ErrEmptyPath},
		{name: "leading slash", input: "/GPIOA", wantErr: ErrInvalidPath},
		{name: "double slash", input: "GPIOA//MODER", wantErr: ErrInvalidPath},
		{name: "trailing slash", input: "GPIOA/", wantErr: ErrInvalidPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePath(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Segments)
			assert.Equal(t, tt.want[0], p.Peripheral())
		})
	}
}

func TestPathString(t *testing.T) {
	p, err := ParsePath("GPIOA.MODER")
	require.NoError(t, err)
	assert.Equal(t, "GPIOA/MODER", p.String())
	assert.Equal(t, "GPIOA.MODER", p.Raw)
}
