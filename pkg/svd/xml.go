package svd

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"

	"golang.org/x/text/encoding/ianaindex"
)

const (
	xsNamespace    = "http://www.w3.org/2001/XMLSchema-instance"
	schemaLocation = "CMSIS-SVD.xsd"
)

// Decode reads an SVD document.
func Decode(r io.Reader) (*Device, error) {
	d := xml.NewDecoder(r)
	d.CharsetReader = charsetReader

	var dev Device
	if err := d.Decode(&dev); err != nil {
		return nil, fmt.Errorf("decode svd: %w", err)
	}
	return &dev, nil
}

// ParseFile reads the SVD document at path.
func ParseFile(path string) (*Device, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dev, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return dev, nil
}

// Encode writes dev as an indented SVD document. Elements are emitted in
// CMSIS-SVD schema order.
func Encode(w io.Writer, dev *Device) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}

	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	start := xml.StartElement{
		Name: xml.Name{Local: "device"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "xmlns:xs"}, Value: xsNamespace},
			{Name: xml.Name{Local: "xs:noNamespaceSchemaLocation"}, Value: schemaLocation},
		},
	}
	if err := enc.EncodeElement(dev, start); err != nil {
		return fmt.Errorf("encode svd: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// Marshal returns the encoded form of dev.
func Marshal(dev *Device) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, dev); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile encodes dev to path.
func WriteFile(path string, dev *Device) error {
	data, err := Marshal(dev)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported charset %q", label)
	}
	return enc.NewDecoder().Reader(input), nil
}

// Child is one entry of a register block: either a register or a cluster.
type Child struct {
	Register *Register
	Cluster  *Cluster
}

// Name returns the name of the register or cluster.
func (c Child) Name() string {
	switch {
	case c.Register != nil:
		return c.Register.Name
	case c.Cluster != nil:
		return c.Cluster.Name
	}
	return ""
}

// UnmarshalXML implements xml.Unmarshaler. Elements other than register
// and cluster are skipped.
func (c *Child) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	switch start.Name.Local {
	case "register":
		c.Register = new(Register)
		return d.DecodeElement(c.Register, &start)
	case "cluster":
		c.Cluster = new(Cluster)
		return d.DecodeElement(c.Cluster, &start)
	}
	return d.Skip()
}

// MarshalXML implements xml.Marshaler.
func (c Child) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	switch {
	case c.Register != nil:
		return e.EncodeElement(c.Register, xml.StartElement{Name: xml.Name{Local: "register"}})
	case c.Cluster != nil:
		return e.EncodeElement(c.Cluster, xml.StartElement{Name: xml.Name{Local: "cluster"}})
	}
	return nil
}

func (cs Children) compact() Children {
	out := cs[:0]
	for _, c := range cs {
		if c.Register != nil || c.Cluster != nil {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

type registersXML struct {
	Children Children `xml:",any"`
}

// UnmarshalXML implements xml.Unmarshaler, lifting the registers wrapper
// element into Children.
func (p *Peripheral) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	type plain Peripheral
	aux := struct {
		*plain
		Registers *registersXML `xml:"registers"`
	}{plain: (*plain)(p)}
	if err := d.DecodeElement(&aux, &start); err != nil {
		return err
	}
	if aux.Registers != nil {
		p.Children = aux.Registers.Children.compact()
	}
	return nil
}

// MarshalXML implements xml.Marshaler.
func (p *Peripheral) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	type plain Peripheral
	aux := struct {
		*plain
		Registers *registersXML `xml:"registers,omitempty"`
	}{plain: (*plain)(p)}
	if len(p.Children) > 0 {
		aux.Registers = &registersXML{Children: p.Children}
	}
	return e.EncodeElement(aux, start)
}

// UnmarshalXML implements xml.Unmarshaler.
func (c *Cluster) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	type plain Cluster
	if err := d.DecodeElement((*plain)(c), &start); err != nil {
		return err
	}
	c.Children = c.Children.compact()
	return nil
}

type fieldXML struct {
	DerivedFrom string `xml:"derivedFrom,attr,omitempty"`
	DimElement

	Name                string           `xml:"name"`
	Description         string           `xml:"description,omitempty"`
	BitOffset           *Num             `xml:"bitOffset,omitempty"`
	BitWidth            *Num             `xml:"bitWidth,omitempty"`
	LSB                 *Num             `xml:"lsb,omitempty"`
	MSB                 *Num             `xml:"msb,omitempty"`
	BitRange            string           `xml:"bitRange,omitempty"`
	Access              Access           `xml:"access,omitempty"`
	ModifiedWriteValues string           `xml:"modifiedWriteValues,omitempty"`
	WriteConstraint     *WriteConstraint `xml:"writeConstraint,omitempty"`
	ReadAction          string           `xml:"readAction,omitempty"`

	EnumeratedValues []*EnumeratedValues `xml:"enumeratedValues"`
}

// UnmarshalXML implements xml.Unmarshaler, normalizing the bit range.
func (f *Field) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var aux fieldXML
	if err := d.DecodeElement(&aux, &start); err != nil {
		return err
	}

	*f = Field{
		DerivedFrom:         aux.DerivedFrom,
		DimElement:          aux.DimElement,
		Name:                aux.Name,
		Description:         aux.Description,
		Access:              aux.Access,
		ModifiedWriteValues: aux.ModifiedWriteValues,
		WriteConstraint:     aux.WriteConstraint,
		ReadAction:          aux.ReadAction,
		EnumeratedValues:    aux.EnumeratedValues,
	}

	switch {
	case aux.BitOffset != nil:
		f.BitOffset = uint32(*aux.BitOffset)
		f.BitWidth = 1
		if aux.BitWidth != nil {
			f.BitWidth = uint32(*aux.BitWidth)
		}
	case aux.LSB != nil && aux.MSB != nil:
		r, err := RangeFromLSBMSB(uint32(*aux.LSB), uint32(*aux.MSB))
		if err != nil {
			return fmt.Errorf("field %s: %w", aux.Name, err)
		}
		f.BitOffset, f.BitWidth = r.Offset, r.Width
	case aux.BitRange != "":
		r, err := ParseBitRange(aux.BitRange)
		if err != nil {
			return fmt.Errorf("field %s: %w", aux.Name, err)
		}
		f.BitOffset, f.BitWidth = r.Offset, r.Width
	}
	return nil
}

// MarshalXML implements xml.Marshaler. The bit range is always written as
// bitOffset and bitWidth.
func (f *Field) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	aux := fieldXML{
		DerivedFrom:         f.DerivedFrom,
		DimElement:          f.DimElement,
		Name:                f.Name,
		Description:         f.Description,
		Access:              f.Access,
		ModifiedWriteValues: f.ModifiedWriteValues,
		WriteConstraint:     f.WriteConstraint,
		ReadAction:          f.ReadAction,
		EnumeratedValues:    f.EnumeratedValues,
	}
	if f.DerivedFrom == "" || f.BitWidth > 0 {
		aux.BitOffset = NumPtr(uint64(f.BitOffset))
		aux.BitWidth = NumPtr(uint64(f.BitWidth))
	}
	return e.EncodeElement(aux, start)
}
