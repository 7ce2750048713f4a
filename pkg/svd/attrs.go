package svd

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrUnknownAttribute is returned by the Set methods for attribute names
// the element does not have.
var ErrUnknownAttribute = errors.New("unknown attribute")

// The Set methods assign one SVD child element by its schema name. An
// empty value clears optional elements.

func setNum(dst **Num, value string) error {
	if value == "" {
		*dst = nil
		return nil
	}
	v, err := ParseInt(value)
	if err != nil {
		return err
	}
	*dst = NumPtr(v)
	return nil
}

func setHex(dst **Hex, value string) error {
	if value == "" {
		*dst = nil
		return nil
	}
	v, err := ParseInt(value)
	if err != nil {
		return err
	}
	*dst = HexPtr(v)
	return nil
}

func setBool(dst **bool, value string) error {
	if value == "" {
		*dst = nil
		return nil
	}
	v, err := ParseBool(value)
	if err != nil {
		return err
	}
	*dst = &v
	return nil
}

func parseU32(value string) (uint32, error) {
	v, err := ParseInt(value)
	if err != nil {
		return 0, err
	}
	if v > 1<<32-1 {
		return 0, fmt.Errorf("%w: %s out of range", ErrInvalidNumber, value)
	}
	return uint32(v), nil
}

func (p *RegisterProperties) set(key, value string) (bool, error) {
	switch key {
	case "size":
		return true, setNum(&p.Size, value)
	case "access":
		p.Access = Access(value)
	case "protection":
		p.Protection = value
	case "resetValue":
		return true, setHex(&p.ResetValue, value)
	case "resetMask":
		return true, setHex(&p.ResetMask, value)
	default:
		return false, nil
	}
	return true, nil
}

func (d *DimElement) set(key, value string) (bool, error) {
	switch key {
	case "dim":
		return true, setNum(&d.Dim, value)
	case "dimIncrement":
		return true, setHex(&d.DimIncrement, value)
	case "dimIndex":
		d.DimIndex = value
	case "dimName":
		d.DimName = value
	default:
		return false, nil
	}
	return true, nil
}

func unknown(kind, key string) error {
	return fmt.Errorf("%w %q on %s", ErrUnknownAttribute, key, kind)
}

// Set assigns a device-level element.
func (d *Device) Set(key, value string) error {
	switch key {
	case "name":
		d.Name = value
	case "vendor":
		d.Vendor = value
	case "vendorID":
		d.VendorID = value
	case "series":
		d.Series = value
	case "version":
		d.Version = value
	case "description":
		d.Description = value
	case "licenseText":
		d.LicenseText = value
	case "headerSystemFilename":
		d.HeaderSystemFilename = value
	case "headerDefinitionsPrefix":
		d.HeaderDefinitionsPrefix = value
	case "schemaVersion":
		d.SchemaVersion = value
	case "addressUnitBits":
		v, err := ParseInt(value)
		if err != nil {
			return err
		}
		d.AddressUnitBits = Num(v)
	case "width":
		v, err := ParseInt(value)
		if err != nil {
			return err
		}
		d.Width = Num(v)
	default:
		if ok, err := d.RegisterProperties.set(key, value); ok {
			return err
		}
		return unknown("device", key)
	}
	return nil
}

// Set assigns a CPU element.
func (c *CPU) Set(key, value string) error {
	switch key {
	case "name":
		c.Name = value
	case "revision":
		c.Revision = value
	case "endian":
		c.Endian = value
	case "mpuPresent":
		return setBool(&c.MPUPresent, value)
	case "fpuPresent":
		return setBool(&c.FPUPresent, value)
	case "fpuDP":
		return setBool(&c.FPUDP, value)
	case "dspPresent":
		return setBool(&c.DSPPresent, value)
	case "icachePresent":
		return setBool(&c.ICachePresent, value)
	case "dcachePresent":
		return setBool(&c.DCachePresent, value)
	case "itcmPresent":
		return setBool(&c.ITCMPresent, value)
	case "dtcmPresent":
		return setBool(&c.DTCMPresent, value)
	case "vtorPresent":
		return setBool(&c.VTORPresent, value)
	case "nvicPrioBits":
		v, err := ParseInt(value)
		if err != nil {
			return err
		}
		c.NVICPrioBits = Num(v)
	case "vendorSystickConfig":
		v, err := ParseBool(value)
		if err != nil {
			return err
		}
		c.VendorSystickConfig = v
	case "deviceNumInterrupts":
		return setNum(&c.DeviceNumInterrupts, value)
	case "sauNumRegions":
		return setNum(&c.SAUNumRegions, value)
	default:
		return unknown("cpu", key)
	}
	return nil
}

// Set assigns a peripheral element.
func (p *Peripheral) Set(key, value string) error {
	switch key {
	case "name":
		p.Name = value
	case "derivedFrom":
		p.DerivedFrom = value
	case "version":
		p.Version = value
	case "description":
		p.Description = value
	case "alternatePeripheral":
		p.AlternatePeripheral = value
	case "groupName":
		p.GroupName = value
	case "prependToName":
		p.PrependToName = value
	case "appendToName":
		p.AppendToName = value
	case "headerStructName":
		p.HeaderStructName = value
	case "disableCondition":
		p.DisableCondition = value
	case "baseAddress":
		v, err := ParseInt(value)
		if err != nil {
			return err
		}
		p.BaseAddress = Hex(v)
	default:
		if ok, err := p.RegisterProperties.set(key, value); ok {
			return err
		}
		if ok, err := p.DimElement.set(key, value); ok {
			return err
		}
		return unknown("peripheral", key)
	}
	return nil
}

// Set assigns a cluster element.
func (c *Cluster) Set(key, value string) error {
	switch key {
	case "name":
		c.Name = value
	case "derivedFrom":
		c.DerivedFrom = value
	case "description":
		c.Description = value
	case "alternateCluster":
		c.AlternateCluster = value
	case "headerStructName":
		c.HeaderStructName = value
	case "addressOffset":
		v, err := ParseInt(value)
		if err != nil {
			return err
		}
		c.AddressOffset = Hex(v)
	default:
		if ok, err := c.RegisterProperties.set(key, value); ok {
			return err
		}
		if ok, err := c.DimElement.set(key, value); ok {
			return err
		}
		return unknown("cluster", key)
	}
	return nil
}

// Set assigns a register element.
func (r *Register) Set(key, value string) error {
	switch key {
	case "name":
		r.Name = value
	case "derivedFrom":
		r.DerivedFrom = value
	case "displayName":
		r.DisplayName = value
	case "description":
		r.Description = value
	case "alternateGroup":
		r.AlternateGroup = value
	case "alternateRegister":
		r.AlternateRegister = value
	case "addressOffset":
		v, err := ParseInt(value)
		if err != nil {
			return err
		}
		r.AddressOffset = Hex(v)
	case "dataType":
		r.DataType = value
	case "modifiedWriteValues":
		r.ModifiedWriteValues = value
	case "readAction":
		r.ReadAction = value
	default:
		if ok, err := r.RegisterProperties.set(key, value); ok {
			return err
		}
		if ok, err := r.DimElement.set(key, value); ok {
			return err
		}
		return unknown("register", key)
	}
	return nil
}

// Set assigns a field element. bitRange, lsb and msb are converted to the
// offset and width form. lsb keeps the current msb (or moves it up to lsb),
// msb keeps the current lsb, so lsb and msb may be given in either order.
func (f *Field) Set(key, value string) error {
	switch key {
	case "name":
		f.Name = value
	case "derivedFrom":
		f.DerivedFrom = value
	case "description":
		f.Description = value
	case "access":
		f.Access = Access(value)
	case "modifiedWriteValues":
		f.ModifiedWriteValues = value
	case "readAction":
		f.ReadAction = value
	case "bitOffset":
		v, err := parseU32(value)
		if err != nil {
			return err
		}
		f.BitOffset = v
		if f.BitWidth == 0 {
			f.BitWidth = 1
		}
	case "bitWidth":
		v, err := parseU32(value)
		if err != nil {
			return err
		}
		f.BitWidth = v
	case "bitRange":
		r, err := ParseBitRange(value)
		if err != nil {
			return err
		}
		f.SetRange(r)
	case "lsb":
		v, err := parseU32(value)
		if err != nil {
			return err
		}
		msb := f.BitOffset
		if f.BitWidth > 0 {
			msb = f.Range().MSB()
		}
		r, err := RangeFromLSBMSB(v, max(msb, v))
		if err != nil {
			return err
		}
		f.SetRange(r)
	case "msb":
		v, err := parseU32(value)
		if err != nil {
			return err
		}
		r, err := RangeFromLSBMSB(f.BitOffset, v)
		if err != nil {
			return err
		}
		f.SetRange(r)
	default:
		if ok, err := f.DimElement.set(key, value); ok {
			return err
		}
		return unknown("field", key)
	}
	return nil
}

// Set assigns an interrupt element.
func (i *Interrupt) Set(key, value string) error {
	switch key {
	case "name":
		i.Name = value
	case "description":
		i.Description = value
	case "value":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidNumber, value)
		}
		i.Value = v
	default:
		return unknown("interrupt", key)
	}
	return nil
}

// Set assigns an address block element.
func (b *AddressBlock) Set(key, value string) error {
	switch key {
	case "offset", "size":
		v, err := ParseInt(value)
		if err != nil {
			return err
		}
		if key == "offset" {
			b.Offset = Hex(v)
		} else {
			b.Size = Hex(v)
		}
	case "usage":
		b.Usage = value
	case "protection":
		b.Protection = value
	default:
		return unknown("addressBlock", key)
	}
	return nil
}
