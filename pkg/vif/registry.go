// Package vif implements the VIF Registry: the bijection between network
// interface names and the kernel's compact 0-31 Virtual Interface index
// space, reference-counted across every rule that touches an interface.
package vif

import (
	"github.com/marmos91/mfcd/internal/logger"
	"github.com/marmos91/mfcd/pkg/mfcerr"
	"github.com/marmos91/mfcd/pkg/mrt"
)

const maxVIFs = 32

// Binding is one live interface's entry in the Registry.
type Binding struct {
	Name     string
	Ifindex  uint32
	VIFIndex uint16
	RefCount uint32
}

// Registry owns the name<->VIF-index bijection. It is not safe for
// concurrent use; the Transactional Controller is its only caller and the
// daemon is single-threaded by design.
type Registry struct {
	engine        mrt.KernelAPI
	resolveIfindex func(string) (uint32, error)
	byName        map[string]*Binding
	occupied      [maxVIFs]bool
}

// New returns an empty Registry backed by the given kernel adapter, using
// the real OS interface table to resolve ifindexes.
func New(engine mrt.KernelAPI) *Registry {
	return NewWithResolver(engine, mrt.IfindexByName)
}

// NewWithResolver returns an empty Registry with an injected ifindex
// resolver, letting tests stand in interface names that don't exist on the
// host running the test.
func NewWithResolver(engine mrt.KernelAPI, resolveIfindex func(string) (uint32, error)) *Registry {
	return &Registry{
		engine:         engine,
		resolveIfindex: resolveIfindex,
		byName:         make(map[string]*Binding),
	}
}

// Acquire returns the VIF index bound to name, creating the binding if one
// doesn't exist yet. A fresh binding resolves the ifindex, picks the lowest
// free VIF slot, and calls Adapter.AddVIF; on failure no binding is
// inserted and no ref-count changes.
func (r *Registry) Acquire(name string) (uint16, error) {
	if b, ok := r.byName[name]; ok {
		b.RefCount++
		logger.Debug("VIF ref-count incremented", logger.Ifname(name), logger.Vifi(uint8(b.VIFIndex)), logger.RefCount(b.RefCount))
		return b.VIFIndex, nil
	}

	ifindex, err := r.resolveIfindex(name)
	if err != nil {
		return 0, err
	}

	slot, ok := r.lowestFreeSlot()
	if !ok {
		return 0, mfcerr.New(mfcerr.KindResourceExhausted, "no free VIF slot (32 in use)")
	}

	if err := r.engine.AddVIF(slot, ifindex); err != nil {
		return 0, err
	}

	r.occupied[slot] = true
	r.byName[name] = &Binding{
		Name:     name,
		Ifindex:  ifindex,
		VIFIndex: slot,
		RefCount: 1,
	}
	logger.Info("VIF acquired", logger.Ifname(name), logger.Ifindex(ifindex), logger.Vifi(uint8(slot)))
	return slot, nil
}

// Release decrements the binding's ref-count; at zero it calls
// Adapter.DelVIF and removes the binding.
func (r *Registry) Release(name string) error {
	b, ok := r.byName[name]
	if !ok {
		return nil
	}

	b.RefCount--
	if b.RefCount > 0 {
		logger.Debug("VIF ref-count decremented", logger.Ifname(name), logger.RefCount(b.RefCount))
		return nil
	}

	if err := r.engine.DelVIF(b.VIFIndex, b.Ifindex); err != nil {
		return err
	}
	r.occupied[b.VIFIndex] = false
	delete(r.byName, name)
	logger.Info("VIF released", logger.Ifname(name), logger.Vifi(uint8(b.VIFIndex)))
	return nil
}

// Snapshot returns a read-only copy of the current bindings, keyed by
// interface name, for the SHOW action.
func (r *Registry) Snapshot() map[string]Binding {
	out := make(map[string]Binding, len(r.byName))
	for name, b := range r.byName {
		out[name] = *b
	}
	return out
}

// Lookup returns the VIF index currently bound to name, if any.
func (r *Registry) Lookup(name string) (uint16, bool) {
	b, ok := r.byName[name]
	if !ok {
		return 0, false
	}
	return b.VIFIndex, true
}

func (r *Registry) lowestFreeSlot() (uint16, bool) {
	for i := 0; i < maxVIFs; i++ {
		if !r.occupied[i] {
			return uint16(i), true
		}
	}
	return 0, false
}
