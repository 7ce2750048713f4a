package patch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, EnumDeriveEnum, cfg.EnumDerive)
	assert.True(t, cfg.UpdateFields)
	assert.False(t, cfg.Check)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnumDerive = "copy"
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestParseEnumDerive(t *testing.T) {
	for in, want := range map[string]EnumDerive{
		"":      EnumDeriveEnum,
		"enum":  EnumDeriveEnum,
		"field": EnumDeriveField,
		"none":  EnumDeriveNone,
	} {
		got, err := ParseEnumDerive(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseEnumDerive("Field")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestParseConfigApply(t *testing.T) {
	fc, err := ParseConfig([]byte("check: true\nenum_derive: none\nupdate_fields: false\n"))
	require.NoError(t, err)

	cfg := DefaultConfig()
	fc.Apply(&cfg)
	assert.True(t, cfg.Check)
	assert.False(t, cfg.ShowPatchOnError)
	assert.Equal(t, EnumDeriveNone, cfg.EnumDerive)
	assert.False(t, cfg.UpdateFields)
}

func TestParseConfigEmpty(t *testing.T) {
	fc, err := ParseConfig(nil)
	require.NoError(t, err)

	cfg := DefaultConfig()
	fc.Apply(&cfg)
	assert.Equal(t, DefaultConfig().EnumDerive, cfg.EnumDerive)
	assert.True(t, cfg.UpdateFields)
}

func TestParseConfigRejects(t *testing.T) {
	tests := map[string]string{
		"unknown key": "chekc: true\n",
		"derive mode": "enum_derive: copy\n",
		"wrong type":  "check: [1]\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(in))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}
