package svd

import (
	"encoding/xml"
)

// Access is the SVD access type of a register or field.
type Access string

// Access values defined by the CMSIS-SVD schema.
const (
	AccessReadOnly      Access = "read-only"
	AccessWriteOnly     Access = "write-only"
	AccessReadWrite     Access = "read-write"
	AccessWriteOnce     Access = "writeOnce"
	AccessReadWriteOnce Access = "read-writeOnce"
)

// Readable reports whether the access allows reads. An empty access is
// treated as read-write.
func (a Access) Readable() bool {
	return a != AccessWriteOnly && a != AccessWriteOnce
}

// Writable reports whether the access allows writes.
func (a Access) Writable() bool {
	return a != AccessReadOnly
}

// Device is the root of an SVD device tree.
type Device struct {
	XMLName       xml.Name `xml:"device"`
	SchemaVersion string   `xml:"schemaVersion,attr,omitempty"`

	Vendor                  string `xml:"vendor,omitempty"`
	VendorID                string `xml:"vendorID,omitempty"`
	Name                    string `xml:"name"`
	Series                  string `xml:"series,omitempty"`
	Version                 string `xml:"version,omitempty"`
	Description             string `xml:"description,omitempty"`
	LicenseText             string `xml:"licenseText,omitempty"`
	CPU                     *CPU   `xml:"cpu,omitempty"`
	HeaderSystemFilename    string `xml:"headerSystemFilename,omitempty"`
	HeaderDefinitionsPrefix string `xml:"headerDefinitionsPrefix,omitempty"`
	AddressUnitBits         Num    `xml:"addressUnitBits"`
	Width                   Num    `xml:"width"`
	RegisterProperties

	Peripherals []*Peripheral `xml:"peripherals>peripheral"`

	VendorExtensions *Raw `xml:"vendorExtensions,omitempty"`
}

// CPU describes the processor core of a device.
type CPU struct {
	Name                string `xml:"name"`
	Revision            string `xml:"revision"`
	Endian              string `xml:"endian"`
	MPUPresent          *bool  `xml:"mpuPresent,omitempty"`
	FPUPresent          *bool  `xml:"fpuPresent,omitempty"`
	FPUDP               *bool  `xml:"fpuDP,omitempty"`
	DSPPresent          *bool  `xml:"dspPresent,omitempty"`
	ICachePresent       *bool  `xml:"icachePresent,omitempty"`
	DCachePresent       *bool  `xml:"dcachePresent,omitempty"`
	ITCMPresent         *bool  `xml:"itcmPresent,omitempty"`
	DTCMPresent         *bool  `xml:"dtcmPresent,omitempty"`
	VTORPresent         *bool  `xml:"vtorPresent,omitempty"`
	NVICPrioBits        Num    `xml:"nvicPrioBits"`
	VendorSystickConfig bool   `xml:"vendorSystickConfig"`
	DeviceNumInterrupts *Num   `xml:"deviceNumInterrupts,omitempty"`
	SAUNumRegions       *Num   `xml:"sauNumRegions,omitempty"`
	SAURegionsConfig    *Raw   `xml:"sauRegionsConfig,omitempty"`
}

// RegisterProperties is the inheritable group of register defaults.
type RegisterProperties struct {
	Size       *Num   `xml:"size,omitempty"`
	Access     Access `xml:"access,omitempty"`
	Protection string `xml:"protection,omitempty"`
	ResetValue *Hex   `xml:"resetValue,omitempty"`
	ResetMask  *Hex   `xml:"resetMask,omitempty"`
}

// DimElement describes an element repeated dim times, dimIncrement apart.
type DimElement struct {
	Dim           *Num   `xml:"dim,omitempty"`
	DimIncrement  *Hex   `xml:"dimIncrement,omitempty"`
	DimIndex      string `xml:"dimIndex,omitempty"`
	DimName       string `xml:"dimName,omitempty"`
	DimArrayIndex *Raw   `xml:"dimArrayIndex,omitempty"`
}

// IsArray reports whether the element carries dimension metadata.
func (d *DimElement) IsArray() bool {
	return d.Dim != nil
}

// ClearDim removes the dimension metadata.
func (d *DimElement) ClearDim() {
	*d = DimElement{}
}

// Peripheral is a hardware block with a base address.
type Peripheral struct {
	DerivedFrom string `xml:"derivedFrom,attr,omitempty"`
	DimElement

	Name                string `xml:"name"`
	Version             string `xml:"version,omitempty"`
	Description         string `xml:"description,omitempty"`
	AlternatePeripheral string `xml:"alternatePeripheral,omitempty"`
	GroupName           string `xml:"groupName,omitempty"`
	PrependToName       string `xml:"prependToName,omitempty"`
	AppendToName        string `xml:"appendToName,omitempty"`
	HeaderStructName    string `xml:"headerStructName,omitempty"`
	DisableCondition    string `xml:"disableCondition,omitempty"`
	BaseAddress         Hex    `xml:"baseAddress"`
	RegisterProperties

	AddressBlocks []*AddressBlock `xml:"addressBlock"`
	Interrupts    []*Interrupt    `xml:"interrupt"`

	// Children holds registers and clusters in declaration order.
	Children Children `xml:"-"`
}

// AddressBlock is a region of the peripheral address space.
type AddressBlock struct {
	Offset     Hex    `xml:"offset"`
	Size       Hex    `xml:"size"`
	Usage      string `xml:"usage"`
	Protection string `xml:"protection,omitempty"`
}

// Interrupt is an interrupt line of a peripheral.
type Interrupt struct {
	Name        string `xml:"name"`
	Description string `xml:"description,omitempty"`
	Value       int    `xml:"value"`
}

// Cluster groups registers and sub-clusters at a relative offset.
type Cluster struct {
	DerivedFrom string `xml:"derivedFrom,attr,omitempty"`
	DimElement

	Name             string `xml:"name"`
	Description      string `xml:"description,omitempty"`
	AlternateCluster string `xml:"alternateCluster,omitempty"`
	HeaderStructName string `xml:"headerStructName,omitempty"`
	AddressOffset    Hex    `xml:"addressOffset"`
	RegisterProperties

	Children Children `xml:",any"`
}

// Register is an addressable storage unit composed of fields.
type Register struct {
	DerivedFrom string `xml:"derivedFrom,attr,omitempty"`
	DimElement

	Name              string `xml:"name"`
	DisplayName       string `xml:"displayName,omitempty"`
	Description       string `xml:"description,omitempty"`
	AlternateGroup    string `xml:"alternateGroup,omitempty"`
	AlternateRegister string `xml:"alternateRegister,omitempty"`
	AddressOffset     Hex    `xml:"addressOffset"`
	RegisterProperties

	DataType            string           `xml:"dataType,omitempty"`
	ModifiedWriteValues string           `xml:"modifiedWriteValues,omitempty"`
	WriteConstraint     *WriteConstraint `xml:"writeConstraint,omitempty"`
	ReadAction          string           `xml:"readAction,omitempty"`

	Fields []*Field `xml:"fields>field,omitempty"`
}

// Field is a contiguous bit range of a register. The bit range is always
// held as offset and width; bitRange and lsb/msb inputs are normalized
// when decoded.
type Field struct {
	DerivedFrom string
	DimElement

	Name                string
	Description         string
	BitOffset           uint32
	BitWidth            uint32
	Access              Access
	ModifiedWriteValues string
	WriteConstraint     *WriteConstraint
	ReadAction          string

	EnumeratedValues []*EnumeratedValues
}

// WriteConstraint restricts the values writable to a field or register.
type WriteConstraint struct {
	WriteAsRead         *bool  `xml:"writeAsRead,omitempty"`
	UseEnumeratedValues *bool  `xml:"useEnumeratedValues,omitempty"`
	Range               *Range `xml:"range,omitempty"`
}

// Range is an inclusive numeric range.
type Range struct {
	Minimum Num `xml:"minimum"`
	Maximum Num `xml:"maximum"`
}

// Usage values of an enumeratedValues set.
const (
	UsageRead      = "read"
	UsageWrite     = "write"
	UsageReadWrite = "read-write"
)

// EnumeratedValues is a named set of symbolic field values.
type EnumeratedValues struct {
	DerivedFrom    string             `xml:"derivedFrom,attr,omitempty"`
	Name           string             `xml:"name,omitempty"`
	HeaderEnumName string             `xml:"headerEnumName,omitempty"`
	Usage          string             `xml:"usage,omitempty"`
	Values         []*EnumeratedValue `xml:"enumeratedValue"`
}

// EffectiveUsage returns the usage, defaulting to read-write.
func (e *EnumeratedValues) EffectiveUsage() string {
	if e.Usage == "" {
		return UsageReadWrite
	}
	return e.Usage
}

// EnumeratedValue is one symbolic value. Value keeps the SVD text so that
// don't-care bits ("#1x") survive a round trip.
type EnumeratedValue struct {
	Name        string `xml:"name"`
	Description string `xml:"description,omitempty"`
	Value       string `xml:"value,omitempty"`
	IsDefault   *bool  `xml:"isDefault,omitempty"`
}

// Default reports whether the value is the catch-all variant.
func (v *EnumeratedValue) Default() bool {
	return v.IsDefault != nil && *v.IsDefault
}

// Raw keeps an element the model does not interpret.
type Raw struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Inner   string     `xml:",innerxml"`
}
