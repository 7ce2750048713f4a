// Package svd models CMSIS-SVD device descriptions and reads and writes
// them as XML.
//
// The tree mirrors the schema: a Device holds Peripherals, a Peripheral
// holds an ordered block of Registers and Clusters (Children), a Register
// holds Fields and a Field holds EnumeratedValues. References between
// elements (derivedFrom) are plain names, never pointers, so renaming or
// rebasing an element is a data rewrite.
//
// Field bit ranges are normalized to offset and width on input; the three
// schema forms (bitOffset/bitWidth, bitRange, lsb/msb) are all accepted.
//
//	dev, err := svd.ParseFile("STM32F411.svd")
//	if err != nil {
//	    return err
//	}
//	gpioa := dev.Peripheral("GPIOA")
//	moder := gpioa.Children.Register("MODER")
//	fmt.Printf("%s @ %s mask %#x\n", moder.Name, moder.AddressOffset, moder.FieldMask())
package svd
