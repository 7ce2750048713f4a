package rules

import (
	"bytes"
	"errors"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/tools/txtar"
)

type archiveReader map[string][]byte

func (a archiveReader) ReadFile(path string) ([]byte, error) {
	if data, ok := a[path]; ok {
		return data, nil
	}
	return nil, fs.ErrNotExist
}

func newArchive(t *testing.T, src string) archiveReader {
	t.Helper()
	ar := txtar.Parse([]byte(src))
	files := make(archiveReader, len(ar.Files))
	for _, f := range ar.Files {
		files[filepath.Join("/rules", f.Name)] = f.Data
	}
	return files
}

func loadArchive(t *testing.T, src string) (*Document, error) {
	t.Helper()
	return Load("/rules/root.yaml", WithReader(newArchive(t, src)))
}

func TestLoadSimpleDocument(t *testing.T) {
	doc, err := loadArchive(t, `
-- root.yaml --
_svd: ../svd/device.svd
GPIOA:
  MODER:
    _merge: [MODER*]
`)
	require.NoError(t, err)

	svdPath, err := doc.SVDPath()
	require.NoError(t, err)
	assert.Equal(t, "/svd/device.svd", svdPath)
	assert.Equal(t, "/rules", doc.Dir())
	assert.Empty(t, doc.Includes())

	gpio := Lookup(doc.Root, "GPIOA")
	require.True(t, IsMap(gpio))
	moder := Lookup(gpio, "MODER")
	got, err := Strings(Lookup(moder, "_merge"))
	require.NoError(t, err)
	assert.Equal(t, []string{"MODER*"}, got)
}

func TestLoadMissingSVD(t *testing.T) {
	doc, err := loadArchive(t, `
-- root.yaml --
GPIOA: {}
`)
	require.NoError(t, err)
	_, err = doc.SVDPath()
	assert.ErrorIs(t, err, ErrMissingSVD)
}

func TestLoadRejectsDuplicateKeys(t *testing.T) {
	_, err := loadArchive(t, `
-- root.yaml --
GPIOA:
  _delete: [CR]
GPIOA:
  _delete: [SR]
`)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateKey)

	var dk *DuplicateKeyError
	require.True(t, errors.As(err, &dk))
	assert.Equal(t, "GPIOA", dk.Key)
	assert.Equal(t, 3, dk.Line)
	assert.Equal(t, 1, dk.OtherLine)
}

func TestLoadRejectsNestedDuplicateKeys(t *testing.T) {
	_, err := loadArchive(t, `
-- root.yaml --
GPIOA:
  _modify:
    CR: {}
    CR: {}
`)
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

func TestIncludeMergesRelativeToIncluder(t *testing.T) {
	doc, err := loadArchive(t, `
-- root.yaml --
_svd: device.svd
_include:
  - common/gpio.yaml
_delete: [DAC]
GPIOA:
  _modify:
    MODER:
      description: mode
-- common/gpio.yaml --
_include:
  - ../shared/rcc.yaml
_delete: [ADC]
GPIOA:
  _modify:
    IDR:
      description: input
-- shared/rcc.yaml --
RCC:
  _delete: [CSR]
`)
	require.NoError(t, err)
	assert.Equal(t, []string{"/rules/common/gpio.yaml", "/rules/shared/rcc.yaml"}, doc.Includes())

	del, err := Strings(Lookup(doc.Root, "_delete"))
	require.NoError(t, err)
	assert.Equal(t, []string{"DAC", "ADC"}, del)

	mod := Lookup(Lookup(doc.Root, "GPIOA"), "_modify")
	var keys []string
	for _, p := range Pairs(mod) {
		keys = append(keys, p.Key)
	}
	assert.Equal(t, []string{"MODER", "IDR"}, keys)

	assert.NotNil(t, Lookup(doc.Root, "RCC"))
	assert.Nil(t, Lookup(doc.Root, "_include"))

	file, _ := doc.Origin(Lookup(doc.Root, "RCC"))
	assert.Equal(t, "/rules/shared/rcc.yaml", file)
}

func TestIncludeAtPeripheralScope(t *testing.T) {
	doc, err := loadArchive(t, `
-- root.yaml --
USART1:
  _include: [usart.yaml]
  CR1:
    UE: [0, 1]
-- usart.yaml --
SR:
  TXE:
    Empty: [1, "Empty"]
`)
	require.NoError(t, err)
	usart := Lookup(doc.Root, "USART1")
	assert.NotNil(t, Lookup(usart, "SR"))
	assert.NotNil(t, Lookup(usart, "CR1"))
	assert.Nil(t, Lookup(usart, "_include"))
}

func TestIncludeCollisionIsError(t *testing.T) {
	_, err := loadArchive(t, `
-- root.yaml --
_include: [a.yaml]
GPIOA:
  _modify:
    CR:
      description: one
-- a.yaml --
GPIOA:
  _modify:
    CR:
      description: two
`)
	require.Error(t, err)
	var dk *DuplicateKeyError
	require.True(t, errors.As(err, &dk))
	assert.Equal(t, "description", dk.Key)
	assert.Equal(t, "/rules/a.yaml", dk.File)
	assert.Equal(t, "/rules/root.yaml", dk.OtherFile)
}

func TestIncludeIdenticalScalarsAccepted(t *testing.T) {
	_, err := loadArchive(t, `
-- root.yaml --
_svd: device.svd
_include: [a.yaml]
-- a.yaml --
_svd: device.svd
`)
	assert.NoError(t, err)
}

func TestIncludeCycle(t *testing.T) {
	_, err := loadArchive(t, `
-- root.yaml --
_include: [a.yaml]
-- a.yaml --
_include: [b.yaml]
-- b.yaml --
_include: [a.yaml]
`)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIncludeCycle)

	var ce *IncludeCycleError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, []string{"/rules/a.yaml", "/rules/b.yaml", "/rules/a.yaml"}, ce.Chain)
}

func TestIncludeDiamondMergedOnce(t *testing.T) {
	doc, err := loadArchive(t, `
-- root.yaml --
_include: [a.yaml, b.yaml]
-- a.yaml --
_include: [common.yaml]
-- b.yaml --
_include: [common.yaml]
-- common.yaml --
_delete: [DAC]
`)
	require.NoError(t, err)
	del, err := Strings(Lookup(doc.Root, "_delete"))
	require.NoError(t, err)
	assert.Equal(t, []string{"DAC"}, del)
	assert.Len(t, doc.Includes(), 3)
}

func TestIncludeMissingFile(t *testing.T) {
	_, err := loadArchive(t, `
-- root.yaml --
_include: [missing.yaml]
`)
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "/rules/missing.yaml", le.File)
	assert.Contains(t, le.Error(), "root.yaml:1")
}

func TestParseRejectsNonMapping(t *testing.T) {
	_, err := Parse("/rules/list.yaml", []byte("- a\n- b\n"))
	assert.ErrorIs(t, err, ErrNotMapping)

	doc, err := Parse("/rules/empty.yaml", nil)
	require.NoError(t, err)
	assert.Empty(t, Pairs(doc.Root))
}

func TestParseBlock(t *testing.T) {
	doc, err := Parse("/rules/root.yaml", []byte(`
_svd: x.svd
_modify:
  name: DEV
_delete: [ADC]
GPIO*:
  _strip: GPIO_
`))
	require.NoError(t, err)

	b, err := ParseBlock(doc.Root, ScopeDevice)
	require.NoError(t, err)
	assert.True(t, b.Has(DirModify))
	assert.True(t, b.Has(DirDelete))
	assert.False(t, b.Has(DirArray))
	require.Len(t, b.Children, 1)
	assert.Equal(t, "GPIO*", b.Children[0].Spec)

	pb, err := ParseBlock(b.Children[0].Value, ScopePeripheral)
	require.NoError(t, err)
	s, err := Scalar(pb.Get(DirStrip))
	require.NoError(t, err)
	assert.Equal(t, "GPIO_", s)
}

func TestParseBlockRejectsDirectives(t *testing.T) {
	doc, err := Parse("/rules/root.yaml", []byte(`
_frobnicate: 1
`))
	require.NoError(t, err)
	_, err = ParseBlock(doc.Root, ScopeDevice)
	assert.ErrorIs(t, err, ErrUnknownKey)

	doc, err = Parse("/rules/root.yaml", []byte(`
_merge: [A*]
`))
	require.NoError(t, err)
	_, err = ParseBlock(doc.Root, ScopePeripheral)
	assert.ErrorIs(t, err, ErrMisplacedRule)

	b, err := ParseBlock(nil, ScopeRegister)
	require.NoError(t, err)
	assert.Empty(t, b.Children)
}

func TestParseBlockRejectsEmptyKey(t *testing.T) {
	doc, err := Parse("/rules/root.yaml", []byte(`
UART1:
  "": [0, empty]
`))
	require.NoError(t, err)
	b, err := ParseBlock(doc.Root, ScopeDevice)
	require.NoError(t, err)

	_, err = ParseBlock(b.Children[0].Value, ScopeField)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.Contains(t, err.Error(), "empty key")
}

func TestDirectiveActions(t *testing.T) {
	d, ok := ParseDirective("_W1C")
	require.True(t, ok)
	assert.Equal(t, "oneToClear", d.ModifiedWriteValues())
	assert.Empty(t, d.ReadAction())

	d, ok = ParseDirective("_RC")
	require.True(t, ok)
	assert.Equal(t, "clear", d.ReadAction())
	assert.Equal(t, "_RC", d.String())

	_, ok = ParseDirective("_nope")
	assert.False(t, ok)
}

func TestNodeHelpers(t *testing.T) {
	doc, err := Parse("/rules/root.yaml", []byte(`
hex: 0x20
neg: -1
bin: "#101"
flag: true
name: GPIOA
list: [A, B]
`))
	require.NoError(t, err)

	v, err := Int(Lookup(doc.Root, "hex"))
	require.NoError(t, err)
	assert.Equal(t, int64(32), v)

	v, err = Int(Lookup(doc.Root, "neg"))
	require.NoError(t, err)
	assert.Equal(t, int64(-1), v)

	v, err = Int(Lookup(doc.Root, "bin"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)

	_, err = Int(Lookup(doc.Root, "name"))
	assert.ErrorIs(t, err, ErrInvalidValue)

	b, err := Bool(Lookup(doc.Root, "flag"))
	require.NoError(t, err)
	assert.True(t, b)

	s, err := Strings(Lookup(doc.Root, "name"))
	require.NoError(t, err)
	assert.Equal(t, []string{"GPIOA"}, s)

	_, err = Scalar(Lookup(doc.Root, "list"))
	assert.ErrorIs(t, err, ErrInvalidValue)

	assert.Equal(t, "[A, B]\n", Encode(Lookup(doc.Root, "list")))

	removed := Remove(doc.Root, "flag")
	assert.NotNil(t, removed)
	assert.Nil(t, Lookup(doc.Root, "flag"))
}

func TestMakedeps(t *testing.T) {
	doc, err := loadArchive(t, `
-- root.yaml --
_include: [inc1.yaml]
-- inc1.yaml --
_include: [inc2.yaml]
-- inc2.yaml --
`)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, Makedeps(&out, doc, "/out/test.d"))
	assert.Equal(t, "/out/test.d: /rules/inc1.yaml /rules/inc2.yaml\n", out.String())
}
