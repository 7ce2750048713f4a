package patch

import (
	"github.com/svdpatch/svdpatch-go/pkg/log"
	"github.com/svdpatch/svdpatch-go/pkg/match"
	"github.com/svdpatch/svdpatch-go/pkg/svd"
)

// container is a register block: the children of a peripheral or of a
// cluster.
type container struct {
	kind     string
	name     string
	path     string
	children *svd.Children

	// periph is the enclosing peripheral. It owns the interrupts.
	periph *svd.Peripheral

	// size is the register size in bits inherited by the children.
	size uint32
}

func peripheralContainer(dev *svd.Device, per *svd.Peripheral) *container {
	return &container{
		kind:     "peripheral",
		name:     per.Name,
		path:     per.Name,
		children: &per.Children,
		periph:   per,
		size:     per.SizeOr(dev.SizeOr(32)),
	}
}

func (c *container) cluster(cl *svd.Cluster) *container {
	return &container{
		kind:     "cluster",
		name:     cl.Name,
		path:     c.path + "/" + cl.Name,
		children: &cl.Children,
		periph:   c.periph,
		size:     cl.SizeOr(c.size),
	}
}

func (c *container) scope() log.Scope {
	if c.kind == "cluster" {
		return log.ScopeCluster
	}
	return log.ScopePeripheral
}

func (c *container) names() names {
	return names{peripheral: c.periph.Name}
}

func (c *container) registers(s match.Spec) []*svd.Register {
	return match.Filter(c.children.Registers(), s, registerName)
}

func (c *container) clusters(s match.Spec) []*svd.Cluster {
	return match.Filter(c.children.Clusters(), s, clusterName)
}

// childNames lists register and cluster names for match suggestions.
func (c *container) childNames() []string {
	out := make([]string, 0, len(*c.children))
	for _, ch := range *c.children {
		out = append(out, ch.Name())
	}
	return out
}

func (c *container) registerSize(r *svd.Register) uint32 {
	return r.SizeOr(c.size)
}

func registerName(r *svd.Register) string     { return r.Name }
func clusterName(c *svd.Cluster) string       { return c.Name }
func fieldName(f *svd.Field) string           { return f.Name }
func peripheralName(p *svd.Peripheral) string { return p.Name }
func interruptName(i *svd.Interrupt) string   { return i.Name }

func registerNames(rs []*svd.Register) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Name
	}
	return out
}

func fieldNames(fs []*svd.Field) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Name
	}
	return out
}

func peripheralNames(ps []*svd.Peripheral) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Name
	}
	return out
}
