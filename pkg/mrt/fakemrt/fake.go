// Package fakemrt is an in-memory double for pkg/mrt.KernelAPI, used by
// controller and registry tests that must not require CAP_NET_ADMIN or a
// real kernel.
package fakemrt

import (
	"fmt"

	"github.com/marmos91/mfcd/pkg/mfcerr"
)

type mfcKey struct {
	source string
	group  string
}

// Fake records every call made to it and can be configured to fail on a
// named operation, so tests can exercise the Transactional Controller's
// undo-stack behaviour deterministically.
type Fake struct {
	Opened bool
	Closed bool

	VIFs map[uint16]uint32       // vifi -> ifindex
	MFCs map[mfcKey]mfcEntry     // (source, group) -> entry
	Calls []string               // ordered log of method calls, for assertions

	// FailOn, if set, causes the named method to return an error the next
	// time it is called. The method name matches Go identifiers: "Open",
	// "AddVIF", "DelVIF", "AddMFC", "DelMFC".
	FailOn map[string]error
}

type mfcEntry struct {
	parentVIFi uint16
	outputs    map[uint16]struct{}
}

// New returns a ready-to-use Fake.
func New() *Fake {
	return &Fake{
		VIFs:   make(map[uint16]uint32),
		MFCs:   make(map[mfcKey]mfcEntry),
		FailOn: make(map[string]error),
	}
}

func (f *Fake) fail(name string) error {
	if err, ok := f.FailOn[name]; ok {
		delete(f.FailOn, name)
		return err
	}
	return nil
}

func (f *Fake) Open() error {
	f.Calls = append(f.Calls, "Open")
	if err := f.fail("Open"); err != nil {
		return err
	}
	f.Opened = true
	return nil
}

func (f *Fake) Close() error {
	f.Calls = append(f.Calls, "Close")
	f.Closed = true
	f.Opened = false
	return nil
}

func (f *Fake) AddVIF(vifi uint16, ifindex uint32) error {
	f.Calls = append(f.Calls, fmt.Sprintf("AddVIF(%d,%d)", vifi, ifindex))
	if err := f.fail("AddVIF"); err != nil {
		return err
	}
	if _, exists := f.VIFs[vifi]; exists {
		return mfcerr.Wrap(mfcerr.KindKernel, "MRT_ADD_VIF", fmt.Errorf("EEXIST"))
	}
	f.VIFs[vifi] = ifindex
	return nil
}

func (f *Fake) DelVIF(vifi uint16, ifindex uint32) error {
	f.Calls = append(f.Calls, fmt.Sprintf("DelVIF(%d,%d)", vifi, ifindex))
	if err := f.fail("DelVIF"); err != nil {
		return err
	}
	delete(f.VIFs, vifi)
	return nil
}

func (f *Fake) AddMFC(source, group string, parentVIFi uint16, outputVIFs map[uint16]struct{}) error {
	f.Calls = append(f.Calls, fmt.Sprintf("AddMFC(%s,%s)", source, group))
	if err := f.fail("AddMFC"); err != nil {
		return err
	}
	cp := make(map[uint16]struct{}, len(outputVIFs))
	for k := range outputVIFs {
		cp[k] = struct{}{}
	}
	f.MFCs[mfcKey{source, group}] = mfcEntry{parentVIFi: parentVIFi, outputs: cp}
	return nil
}

func (f *Fake) DelMFC(source, group string) error {
	f.Calls = append(f.Calls, fmt.Sprintf("DelMFC(%s,%s)", source, group))
	if err := f.fail("DelMFC"); err != nil {
		return err
	}
	key := mfcKey{source, group}
	if _, ok := f.MFCs[key]; !ok {
		return mfcerr.Wrap(mfcerr.KindKernel, "MRT_DEL_MFC", fmt.Errorf("ENOENT"))
	}
	delete(f.MFCs, key)
	return nil
}
