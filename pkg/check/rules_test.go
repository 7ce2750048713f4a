package check

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svdpatch/svdpatch-go/pkg/svd"
)

// testDevice returns a device every built-in rule accepts.
func testDevice() *svd.Device {
	return &svd.Device{
		Name:               "TESTDEV",
		RegisterProperties: svd.RegisterProperties{Size: svd.NumPtr(32)},
		Peripherals: []*svd.Peripheral{
			{
				Name:        "TIM1",
				Description: "Timer",
				BaseAddress: 0x40000000,
				Children: svd.Children{
					{Register: &svd.Register{
						Name:        "CR",
						Description: "Control",
						Fields: []*svd.Field{
							{Name: "EN", Description: "Enable", BitOffset: 0, BitWidth: 1},
							{
								Name: "MODE", Description: "Mode", BitOffset: 1, BitWidth: 2,
								EnumeratedValues: []*svd.EnumeratedValues{{
									Name: "MODE",
									Values: []*svd.EnumeratedValue{
										{Name: "Off", Value: "0"},
										{Name: "On", Value: "3"},
									},
								}},
							},
						},
					}},
					{Register: &svd.Register{
						Name:          "SR",
						Description:   "Status",
						AddressOffset: 4,
						Fields: []*svd.Field{
							{Name: "UIF", Description: "Update", BitOffset: 0, BitWidth: 1},
						},
					}},
					{Cluster: &svd.Cluster{
						Name:          "CH%s",
						Description:   "Channel",
						DimElement:    svd.DimElement{Dim: svd.NumPtr(2), DimIncrement: svd.HexPtr(8)},
						AddressOffset: 0x10,
						Children: svd.Children{
							{Register: &svd.Register{Name: "CCR", Description: "Compare"}},
							{Register: &svd.Register{Name: "CNT", Description: "Count", AddressOffset: 4}},
						},
					}},
				},
			},
			{Name: "TIM2", DerivedFrom: "TIM1", BaseAddress: 0x40000400},
		},
	}
}

func reg(dev *svd.Device, name string) *svd.Register {
	return dev.Peripheral("TIM1").Children.Register(name)
}

func channel(dev *svd.Device) *svd.Cluster {
	return dev.Peripheral("TIM1").Children.Cluster("CH%s")
}

func TestDefaultRulesAcceptValidDevice(t *testing.T) {
	report := NewDefaultRegistry().Run(testDevice())
	assert.Empty(t, report.Violations)
	assert.Len(t, report.Rules, 9)
}

func paths(vs []Violation) []string {
	var out []string
	for _, v := range vs {
		out = append(out, v.Path)
	}
	return out
}

func TestDESC001(t *testing.T) {
	dev := testDevice()
	reg(dev, "CR").Field("EN").Description = ""
	channel(dev).Children.Register("CNT").Description = ""
	dev.Peripheral("TIM2").Description = ""

	vs := NewDESC001().Check(dev)
	assert.Equal(t, []string{"TIM1/CR/EN", "TIM1/CH%s/CNT"}, paths(vs))
	for _, v := range vs {
		assert.Equal(t, SeverityWarning, v.Severity)
	}
}

func TestNAM001(t *testing.T) {
	dev := testDevice()
	per := dev.Peripheral("TIM1")
	per.Children = append(per.Children, svd.Child{Register: &svd.Register{Name: "SR", AddressOffset: 0x40}})
	reg(dev, "CR").Fields[1].EnumeratedValues[0].Values[1].Name = "Off"

	vs := NewNAM001().Check(dev)
	require.Len(t, vs, 2)
	assert.Equal(t, "TIM1", vs[0].Path)
	assert.Contains(t, vs[0].Message, "SR")
	assert.Equal(t, "TIM1/CR/MODE", vs[1].Path)
	assert.Contains(t, vs[1].Message, "Off")
}

func TestDRV001(t *testing.T) {
	tests := []struct {
		name   string
		modify func(dev *svd.Device)
		want   []string
	}{
		{
			name:   "peripheral",
			modify: func(dev *svd.Device) { dev.Peripheral("TIM2").DerivedFrom = "TIM9" },
			want:   []string{"TIM2"},
		},
		{
			name: "sibling register",
			modify: func(dev *svd.Device) {
				reg(dev, "SR").DerivedFrom = "CR"
				reg(dev, "SR").Fields = nil
			},
		},
		{
			name: "register path through derived peripheral",
			modify: func(dev *svd.Device) {
				channel(dev).Children.Register("CNT").DerivedFrom = "TIM2.SR"
			},
		},
		{
			name:   "missing register",
			modify: func(dev *svd.Device) { channel(dev).Children.Register("CNT").DerivedFrom = "ARR" },
			want:   []string{"TIM1/CH%s/CNT"},
		},
		{
			name: "register naming a cluster",
			modify: func(dev *svd.Device) {
				reg(dev, "SR").DerivedFrom = "CH%s"
			},
			want: []string{"TIM1/SR"},
		},
		{
			name:   "field",
			modify: func(dev *svd.Device) { reg(dev, "CR").Field("EN").DerivedFrom = "TIM1.SR.UIF" },
		},
		{
			name:   "field itself",
			modify: func(dev *svd.Device) { reg(dev, "CR").Field("EN").DerivedFrom = "EN" },
			want:   []string{"TIM1/CR/EN"},
		},
		{
			name: "enumeration by field",
			modify: func(dev *svd.Device) {
				reg(dev, "CR").Field("EN").EnumeratedValues = []*svd.EnumeratedValues{{DerivedFrom: "MODE.MODE"}}
			},
		},
		{
			name: "enumeration by name",
			modify: func(dev *svd.Device) {
				reg(dev, "CR").Field("EN").EnumeratedValues = []*svd.EnumeratedValues{{DerivedFrom: "MODE"}}
			},
		},
		{
			name: "enumeration by path",
			modify: func(dev *svd.Device) {
				reg(dev, "SR").Field("UIF").EnumeratedValues = []*svd.EnumeratedValues{{DerivedFrom: "TIM1.CR.MODE.MODE"}}
			},
		},
		{
			name: "missing enumeration",
			modify: func(dev *svd.Device) {
				reg(dev, "CR").Field("EN").EnumeratedValues = []*svd.EnumeratedValues{{DerivedFrom: "MODE.NOPE"}}
			},
			want: []string{"TIM1/CR/EN"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := testDevice()
			tt.modify(dev)
			assert.Equal(t, tt.want, paths(NewDRV001().Check(dev)))
		})
	}
}

func TestDRV002(t *testing.T) {
	dev := testDevice()
	dev.Peripheral("TIM1").DerivedFrom = "TIM2"
	reg(dev, "CR").Field("EN").DerivedFrom = "EN"

	vs := NewDRV002().Check(dev)
	require.Len(t, vs, 2)
	assert.Equal(t, "TIM1", vs[0].Path)
	assert.Contains(t, vs[0].Message, "TIM1 -> TIM2 -> TIM1")
	assert.Equal(t, "TIM1/CR/EN", vs[1].Path)
	assert.Contains(t, vs[1].Message, "EN -> EN")
}

func TestDeriveGraphReportsEachLoopOnce(t *testing.T) {
	g := newDeriveGraph()
	g.add("A", "B")
	g.add("B", "C")
	g.add("C", "B")
	g.add("D", "A")
	g.add("E", "X")

	assert.Equal(t, [][]string{{"B", "C", "B"}}, g.cycles())
}

func TestFLD001(t *testing.T) {
	dev := testDevice()
	reg(dev, "CR").Field("MODE").BitOffset = 0

	vs := NewFLD001().Check(dev)
	require.Len(t, vs, 1)
	assert.Equal(t, "TIM1/CR", vs[0].Path)
	assert.Equal(t, "field EN [0:0] overlaps field MODE [1:0]", vs[0].Message)
}

func TestFLD001FieldArrays(t *testing.T) {
	dev := testDevice()
	f := reg(dev, "SR").Field("UIF")
	f.Name = "CC%sIF"
	f.DimElement = svd.DimElement{Dim: svd.NumPtr(4), DimIncrement: svd.HexPtr(1)}
	reg(dev, "SR").Fields = append(reg(dev, "SR").Fields, &svd.Field{Name: "TIF", Description: "Trigger", BitOffset: 3, BitWidth: 1})

	vs := NewFLD001().Check(dev)
	require.Len(t, vs, 1)
	assert.Equal(t, "field CC%sIF [3:3] overlaps field TIF [3:3]", vs[0].Message)
}

func TestFLD002(t *testing.T) {
	dev := testDevice()
	reg(dev, "SR").Size = svd.NumPtr(16)
	reg(dev, "SR").Field("UIF").BitOffset = 16

	vs := NewFLD002().Check(dev)
	require.Len(t, vs, 1)
	assert.Equal(t, "TIM1/SR/UIF", vs[0].Path)
	assert.Equal(t, "bits [16:16] exceed the 16 bit register", vs[0].Message)
}

func TestADR001(t *testing.T) {
	dev := testDevice()
	reg(dev, "SR").AddressOffset = 2

	vs := NewADR001().Check(dev)
	require.Len(t, vs, 1)
	assert.Equal(t, "TIM1", vs[0].Path)
	assert.Equal(t, "TIM1/CR at 0x0 overlaps TIM1/SR at 0x2", vs[0].Message)
	assert.Equal(t, SeverityWarning, vs[0].Severity)

	reg(dev, "SR").AlternateRegister = "CR"
	assert.Empty(t, NewADR001().Check(dev))
}

func TestADR001ClusterStride(t *testing.T) {
	dev := testDevice()
	channel(dev).DimIncrement = svd.HexPtr(4)

	vs := NewADR001().Check(dev)
	require.Len(t, vs, 1)
	assert.Equal(t, "TIM1/CH%s/CCR at 0x14 overlaps TIM1/CH%s/CNT at 0x14", vs[0].Message)
}

func TestDIM001(t *testing.T) {
	tests := []struct {
		name   string
		modify func(cl *svd.Cluster)
		want   string
	}{
		{
			name:   "missing increment",
			modify: func(cl *svd.Cluster) { cl.DimIncrement = nil },
			want:   "dim without dimIncrement",
		},
		{
			name:   "index length",
			modify: func(cl *svd.Cluster) { cl.DimIndex = "A,B,C" },
			want:   "dimIndex A,B,C lists 3 labels for dim 2",
		},
		{
			name:   "placeholder",
			modify: func(cl *svd.Cluster) { cl.Name = "CH" },
			want:   "array name has no %s placeholder",
		},
		{
			name:   "increment without dim",
			modify: func(cl *svd.Cluster) { cl.Dim = nil },
			want:   "dimIncrement or dimIndex without dim",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := testDevice()
			tt.modify(channel(dev))
			vs := NewDIM001().Check(dev)
			require.Len(t, vs, 1)
			assert.Equal(t, tt.want, vs[0].Message)
		})
	}
}

func TestENM001(t *testing.T) {
	isDefault := true
	dev := testDevice()
	ev := reg(dev, "CR").Field("MODE").EnumeratedValues[0]
	ev.Values = append(ev.Values,
		&svd.EnumeratedValue{Name: "Wide", Value: "4"},
		&svd.EnumeratedValue{Name: "Masked", Value: "#1x"},
		&svd.EnumeratedValue{Name: "MaskedWide", Value: "#1xx"},
		&svd.EnumeratedValue{Name: "Other", IsDefault: &isDefault},
		&svd.EnumeratedValue{Name: "Rest", IsDefault: &isDefault},
	)

	vs := NewENM001().Check(dev)
	var msgs []string
	for _, v := range vs {
		msgs = append(msgs, v.Message)
	}
	assert.Equal(t, []string{
		"value 4 of Wide needs 3 bits, field is 2 bits wide",
		"value #1xx of MaskedWide needs 3 bits, field is 2 bits wide",
		"enumeratedValues MODE has 2 default values",
	}, msgs)
}

func TestValueWidth(t *testing.T) {
	for in, want := range map[string]uint32{
		"0":     0,
		"1":     1,
		"0x10":  5,
		"#0101": 3,
		"#x1":   2,
		"#01x":  2,
	} {
		got, ok := valueWidth(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := valueWidth("#12x")
	assert.False(t, ok)
}
