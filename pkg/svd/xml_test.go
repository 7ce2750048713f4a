package svd

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadSample(t *testing.T) *Device {
	t.Helper()
	dev, err := ParseFile("testdata/sample.svd")
	require.NoError(t, err)
	return dev
}

func TestDecodeSample(t *testing.T) {
	dev := loadSample(t)

	assert.Equal(t, "ACME42", dev.Name)
	assert.Equal(t, "1.3", dev.SchemaVersion)
	assert.Equal(t, Num(8), dev.AddressUnitBits)
	require.NotNil(t, dev.CPU)
	assert.Equal(t, "CM4", dev.CPU.Name)
	require.NotNil(t, dev.CPU.FPUPresent)
	assert.True(t, *dev.CPU.FPUPresent)
	require.NotNil(t, dev.Size)
	assert.Equal(t, Num(32), *dev.Size)

	require.Len(t, dev.Peripherals, 2)
	gpioa := dev.Peripheral("GPIOA")
	require.NotNil(t, gpioa)
	assert.Equal(t, Hex(0x40020000), gpioa.BaseAddress)
	require.Len(t, gpioa.Interrupts, 1)
	assert.Equal(t, 6, gpioa.Interrupts[0].Value)

	require.Len(t, gpioa.Children, 3)
	assert.Equal(t, []string{"MODER", "CH[%s]", "IDR"},
		[]string{gpioa.Children[0].Name(), gpioa.Children[1].Name(), gpioa.Children[2].Name()})

	moder := gpioa.Children.Register("MODER")
	require.NotNil(t, moder)
	require.Len(t, moder.Fields, 2)
	assert.Equal(t, BitRange{Offset: 2, Width: 2}, moder.Field("MODER1").Range())
	assert.Equal(t, BitRange{Offset: 0, Width: 2}, moder.Field("MODER0").Range())
	assert.Equal(t, uint64(0xF), moder.FieldMask())

	ev := moder.Field("MODER0").EnumeratedValues
	require.Len(t, ev, 1)
	assert.Equal(t, "MODE", ev[0].Name)
	require.Len(t, ev[0].Values, 2)
	assert.True(t, ev[0].Values[1].Default())

	ch := gpioa.Children.Cluster("CH[%s]")
	require.NotNil(t, ch)
	require.NotNil(t, ch.Dim)
	assert.Equal(t, Num(2), *ch.Dim)
	assert.Equal(t, Hex(0x10), *ch.DimIncrement)
	require.Len(t, ch.Children, 1)
	assert.Equal(t, "CR", ch.Children[0].Register.Name)

	gpiob := dev.Peripheral("GPIOB")
	assert.Equal(t, "GPIOA", gpiob.DerivedFrom)
	assert.Empty(t, gpiob.Children)
}

func TestEncodeRoundTrip(t *testing.T) {
	dev := loadSample(t)

	data, err := Marshal(dev)
	require.NoError(t, err)

	text := string(data)
	assert.True(t, strings.HasPrefix(text, "<?xml"))
	assert.Contains(t, text, `xs:noNamespaceSchemaLocation="CMSIS-SVD.xsd"`)
	assert.Contains(t, text, `<peripheral derivedFrom="GPIOA">`)
	assert.Contains(t, text, "<bitOffset>2</bitOffset>")
	assert.NotContains(t, text, "bitRange")
	assert.Contains(t, text, "<baseAddress>0x40020000</baseAddress>")

	again, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)
	if diff := cmp.Diff(dev, again); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeKeepsRegisterClusterOrder(t *testing.T) {
	dev := loadSample(t)
	data, err := Marshal(dev)
	require.NoError(t, err)

	text := string(data)
	moder := strings.Index(text, "<name>MODER</name>")
	cluster := strings.Index(text, "<name>CH[%s]</name>")
	idr := strings.Index(text, "<name>IDR</name>")
	assert.True(t, moder < cluster && cluster < idr, "children out of order")
}

func TestDecodeLatin1(t *testing.T) {
	src := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n" +
		"<device><name>D</name><description>Temp \xb0C</description>" +
		"<addressUnitBits>8</addressUnitBits><width>32</width><peripherals/></device>"

	dev, err := Decode(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, "Temp °C", dev.Description)
}

func TestWriteFile(t *testing.T) {
	dev := loadSample(t)
	path := t.TempDir() + "/out.svd"
	require.NoError(t, WriteFile(path, dev))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, info.Size())
}

func TestFieldBitRangeError(t *testing.T) {
	src := `<device><name>D</name><addressUnitBits>8</addressUnitBits><width>32</width><peripherals>
<peripheral><name>P</name><baseAddress>0</baseAddress><registers><register><name>R</name><addressOffset>0</addressOffset>
<fields><field><name>F</name><bitRange>[1:4]</bitRange></field></fields></register></registers></peripheral></peripherals></device>`

	_, err := Decode(strings.NewReader(src))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBitRange)
}
