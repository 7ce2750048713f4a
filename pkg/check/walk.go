package check

import (
	"github.com/svdpatch/svdpatch-go/pkg/svd"
)

const defaultSize = 32

// block is a register block of a peripheral or cluster.
type block struct {
	per      *svd.Peripheral
	path     string
	clusters []*svd.Cluster
	children svd.Children
	size     uint32
	access   svd.Access
}

// regInfo is a register with its location and inherited properties.
type regInfo struct {
	block
	r *svd.Register
}

func (ri regInfo) regPath() string {
	return ri.block.path + "/" + ri.r.Name
}

// regSize returns the size of the register in bits.
func (ri regInfo) regSize() uint32 {
	return ri.r.SizeOr(ri.size)
}

// fieldAccess returns the effective access of f.
func (ri regInfo) fieldAccess(f *svd.Field) svd.Access {
	switch {
	case f.Access != "":
		return f.Access
	case ri.r.Access != "":
		return ri.r.Access
	}
	return ri.access
}

// blocks calls fn for every register block of dev, peripherals first,
// then their clusters depth first.
func blocks(dev *svd.Device, fn func(b block)) {
	size := dev.SizeOr(defaultSize)
	for _, per := range dev.Peripherals {
		access := per.Access
		if access == "" {
			access = dev.Access
		}
		visitBlock(block{
			per:      per,
			path:     per.Name,
			children: per.Children,
			size:     per.SizeOr(size),
			access:   access,
		}, fn)
	}
}

func visitBlock(b block, fn func(block)) {
	fn(b)
	for _, cl := range b.children.Clusters() {
		access := cl.Access
		if access == "" {
			access = b.access
		}
		visitBlock(block{
			per:      b.per,
			path:     b.path + "/" + cl.Name,
			clusters: append(b.clusters[:len(b.clusters):len(b.clusters)], cl),
			children: cl.Children,
			size:     cl.SizeOr(b.size),
			access:   access,
		}, fn)
	}
}

// registers calls fn for every register of dev.
func registers(dev *svd.Device, fn func(ri regInfo)) {
	blocks(dev, func(b block) {
		for _, r := range b.children.Registers() {
			fn(regInfo{block: b, r: r})
		}
	})
}
