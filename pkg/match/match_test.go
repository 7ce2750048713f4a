package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchGlobs(t *testing.T) {
	tests := []struct {
		spec  string
		name  string
		match bool
	}{
		{"GPIO*", "GPIOA", true},
		{"GPIO*", "GPIO", true},
		{"GPIO*", "XGPIOA", false},
		{"TIM[18]", "TIM1", true},
		{"TIM[18]", "TIM8", true},
		{"TIM[18]", "TIM2", false},
		{"TIM[1-3]", "TIM2", true},
		{"TIM[!1-3]", "TIM2", false},
		{"TIM[!1-3]", "TIM4", true},
		{"USART?", "USART1", true},
		{"USART?", "USART10", false},
		{"UART4,UART5", "UART5", true},
		{"UART4,UART5", "UART6", false},
		{"CH{1,2}_CR", "CH2_CR", true},
		{"CH{1,2}_CR", "CH3_CR", false},
		{"CH{1..3}", "CH3", true},
		{"DMA1", "DMA1", true},
		{"DMA1", "DMA10", false},
		{"A.B", "AxB", false},
		{"A[", "A[", true},
		{"_modify", "_modify", false},
	}
	for _, tt := range tests {
		t.Run(tt.spec+"/"+tt.name, func(t *testing.T) {
			assert.Equal(t, tt.match, Parse(tt.spec).Match(tt.name))
		})
	}
}

func TestOptionalSpec(t *testing.T) {
	s := Parse("?~OIS?N")
	assert.True(t, s.Optional())
	assert.Equal(t, "?~OIS?N", s.String())
	assert.True(t, s.Match("OIS1N"))

	names := []string{"CR1", "CR2", "SR"}
	got := Filter(names, s, func(n string) string { return n })
	assert.Empty(t, got)
}

func TestMatchIndexFirstAlternative(t *testing.T) {
	s := Parse("CR*,CR1")
	assert.Equal(t, 0, s.MatchIndex("CR1"))
	assert.Equal(t, "CR*", s.Alternative(0))
	assert.Equal(t, -1, s.MatchIndex("SR"))
}

func TestIsLiteral(t *testing.T) {
	assert.True(t, Parse("CR1").IsLiteral())
	assert.True(t, Parse("CR1,CR2").IsLiteral())
	assert.False(t, Parse("CR?").IsLiteral())
	assert.False(t, Parse("").IsLiteral())
}

func TestCaptures(t *testing.T) {
	s := Parse("CH?_CR")
	assert.Equal(t, []string{"1"}, s.Captures("CH1_CR"))
	assert.Nil(t, s.Captures("CH1_SR"))

	s = Parse("DMA*_CH[0-9]")
	assert.Equal(t, []string{"2", "5"}, s.Captures("DMA2_CH5"))

	s = Parse("P[AB]*")
	assert.Equal(t, []string{"A12"}, s.Captures("PA12"))
}

func TestFilterKeepsOrder(t *testing.T) {
	names := []string{"GPIOC", "GPIOA", "RCC", "GPIOB"}
	got := Filter(names, Parse("GPIO*"), func(n string) string { return n })
	assert.Equal(t, []string{"GPIOC", "GPIOA", "GPIOB"}, got)
}

func TestIndex(t *testing.T) {
	tests := []struct {
		spec        string
		left, right int
	}{
		{"CH?_CR", 2, 3},
		{"MODER*", 5, 0},
		{"*_EN", 0, 3},
		{"ADC[12]_DR", 3, 3},
		{"PIN[A-D]", 3, 0},
		{"GPIO*,FOO?", 4, 0},
	}
	for _, tt := range tests {
		l, r, ok := Index(tt.spec)
		require.True(t, ok, tt.spec)
		assert.Equal(t, tt.left, l, tt.spec)
		assert.Equal(t, tt.right, r, tt.spec)
	}

	_, _, ok := Index("CR1")
	assert.False(t, ok)
	_, _, ok = Index("A*B*C")
	assert.False(t, ok)
}

func TestVaryingAndTemplate(t *testing.T) {
	v, ok := Varying("CH?_CR", "CH3_CR")
	require.True(t, ok)
	assert.Equal(t, "3", v)

	tpl, ok := Template("CH?_CR")
	require.True(t, ok)
	assert.Equal(t, "CH%s_CR", tpl)

	tpl, ok = Template("?~MODER*")
	require.True(t, ok)
	assert.Equal(t, "MODER%s", tpl)
}

func TestStrip(t *testing.T) {
	assert.Equal(t, "CR1", StripPrefix("USART1_", "USART1_CR1"))
	assert.Equal(t, "CR1", StripPrefix("USART?_", "USART2_CR1"))
	assert.Equal(t, "X_SR", StripPrefix("USART*_", "USART_X_SR"))
	assert.Equal(t, "CR1", StripPrefix("TIM_", "CR1"))

	assert.Equal(t, "CR", StripSuffix("_EN", "CR_EN"))
	assert.Equal(t, "CR", StripSuffix("_?", "CR_1"))
	assert.Equal(t, "CR", StripSuffix("_X", "CR"))
}

func TestExpandBraces(t *testing.T) {
	assert.Equal(t, []string{"A1B", "A2B"}, expandBraces("A{1,2}B"))
	assert.Equal(t, []string{"X1", "X2", "X3"}, expandBraces("X{1..3}"))
	assert.Equal(t, []string{"X3", "X2"}, expandBraces("X{3..2}"))
	assert.Equal(t, []string{"A1x", "A1y", "A2"}, expandBraces("A{1{x,y},2}"))
	assert.Equal(t, []string{"A{1}"}, expandBraces("A{1}"))
	assert.Equal(t, []string{"A{1"}, expandBraces("A{1"))
}

func TestSuggest(t *testing.T) {
	candidates := []string{"GPIOA", "GPIOB", "USART1", "RCC"}
	got := Suggest(Parse("GPIOZ"), candidates)
	require.NotEmpty(t, got)
	assert.Contains(t, got, "GPIOA")
	assert.NotContains(t, got, "RCC")

	assert.Empty(t, Suggest(Parse("TOTALLYDIFFERENT"), candidates))
}
