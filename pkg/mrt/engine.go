// Package mrt implements the Kernel Engine Adapter: the thin capability
// layer that programs the Linux kernel's IPv4 Multicast Forwarding Cache via
// raw-socket control options. It hides struct layout, byte order, and errno
// mapping behind six operations and exposes nothing else.
package mrt

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/marmos91/mfcd/internal/logger"
	"github.com/marmos91/mfcd/pkg/mfcerr"
)

// KernelAPI is the capability the Transactional Controller depends on. The
// production implementation is *Engine; fakemrt.Fake implements it for unit
// tests that never touch CAP_NET_ADMIN or a real kernel.
type KernelAPI interface {
	Open() error
	Close() error
	AddVIF(vifi uint16, ifindex uint32) error
	DelVIF(vifi uint16, ifindex uint32) error
	AddMFC(source, group string, parentVIFi uint16, outputVIFs map[uint16]struct{}) error
	DelMFC(source, group string) error
}

// Engine is the one process-wide handle to the kernel's multicast router.
// Its zero value is usable; Open must succeed before any other method is
// called.
type Engine struct {
	fd int
}

var _ KernelAPI = (*Engine)(nil)

// Open opens a raw IPv4/IGMP socket and issues MRT_INIT. Only one process
// per network namespace may hold the engine open; a second Open fails with
// EADDRINUSE, surfaced as mfcerr.KindEngineConflict. Missing CAP_NET_ADMIN
// fails with EPERM.
func (e *Engine) Open() error {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_RAW, unix.IPPROTO_IGMP)
	if err != nil {
		return mfcerr.Wrap(mfcerr.KindKernel, "open raw IGMP socket", err)
	}

	one := int32(1)
	if err := unix.SetsockoptInt(fd, 0, mrtInit, int(one)); err != nil {
		_ = unix.Close(fd)
		if err == unix.EADDRINUSE {
			return mfcerr.Wrap(mfcerr.KindEngineConflict, "MRT_INIT: multicast router already owned in this namespace", err)
		}
		return mfcerr.Wrap(mfcerr.KindKernel, "MRT_INIT", &mfcerr.KernelError{
			Operation: "MRT_INIT", Errno: err, Description: "failed to initialize multicast router",
		})
	}

	e.fd = fd
	logger.Info("kernel multicast engine opened")
	return nil
}

// Close issues MRT_DONE and closes the socket. Idempotent: calling Close on
// an engine that was never opened (fd == 0) is a no-op. Close always
// attempts the syscall teardown even if the caller is already unwinding
// from an earlier error.
func (e *Engine) Close() error {
	if e.fd == 0 {
		return nil
	}

	one := int32(1)
	setErr := unix.SetsockoptInt(e.fd, 0, mrtDone, int(one))
	closeErr := unix.Close(e.fd)
	e.fd = 0

	if setErr != nil {
		logger.Warn("MRT_DONE failed during close", "error", setErr)
	}
	if closeErr != nil {
		return mfcerr.Wrap(mfcerr.KindKernel, "close engine socket", closeErr)
	}
	return nil
}

// AddVIF submits a VIF control record identifying the interface by ifindex.
func (e *Engine) AddVIF(vifi uint16, ifindex uint32) error {
	rec := encodeVifctl(vifctl{
		vifi:    vifi,
		flags:   vifFlagUseIfindex,
		ifindex: ifindex,
	})
	if err := unix.SetsockoptString(e.fd, 0, mrtAddVIF, string(rec)); err != nil {
		return mfcerr.Wrap(mfcerr.KindKernel, "MRT_ADD_VIF", &mfcerr.KernelError{
			Operation: "MRT_ADD_VIF", Errno: err,
			Description: fmt.Sprintf("add VIF %d for ifindex %d", vifi, ifindex),
		})
	}
	return nil
}

// DelVIF removes a VIF. EADDRNOTAVAIL (already gone) is surfaced as a
// regular *mfcerr.KernelError; callers performing teardown may choose to
// treat EADDRNOTAVAIL as success since the state is already gone.
func (e *Engine) DelVIF(vifi uint16, ifindex uint32) error {
	rec := encodeVifctl(vifctl{
		vifi:    vifi,
		flags:   vifFlagUseIfindex,
		ifindex: ifindex,
	})
	if err := unix.SetsockoptString(e.fd, 0, mrtDelVIF, string(rec)); err != nil {
		return mfcerr.Wrap(mfcerr.KindKernel, "MRT_DEL_VIF", &mfcerr.KernelError{
			Operation: "MRT_DEL_VIF", Errno: err,
			Description: fmt.Sprintf("delete VIF %d for ifindex %d", vifi, ifindex),
		})
	}
	return nil
}

// AddMFC installs an MFC entry. outputVIFs is encoded as a per-VIF TTL
// threshold array where a present index holds 1 and an absent one holds 0.
func (e *Engine) AddMFC(source, group string, parentVIFi uint16, outputVIFs map[uint16]struct{}) error {
	rec, err := buildMfcctl(source, group, parentVIFi, outputVIFs)
	if err != nil {
		return mfcerr.Wrap(mfcerr.KindValidation, "encode MFC record", err)
	}
	if err := unix.SetsockoptString(e.fd, 0, mrtAddMFC, string(rec)); err != nil {
		return mfcerr.Wrap(mfcerr.KindKernel, "MRT_ADD_MFC", &mfcerr.KernelError{
			Operation: "MRT_ADD_MFC", Errno: err,
			Description: fmt.Sprintf("add MFC entry (%s, %s)", source, group),
		})
	}
	return nil
}

// DelMFC removes an MFC entry keyed by (source, group). ENOENT (already
// gone) is surfaced as a regular *mfcerr.KernelError; callers performing
// cleanup may choose to treat ENOENT as success since the state is already
// gone.
func (e *Engine) DelMFC(source, group string) error {
	rec, err := buildMfcctl(source, group, 0, nil)
	if err != nil {
		return mfcerr.Wrap(mfcerr.KindValidation, "encode MFC record", err)
	}
	if err := unix.SetsockoptString(e.fd, 0, mrtDelMFC, string(rec)); err != nil {
		return mfcerr.Wrap(mfcerr.KindKernel, "MRT_DEL_MFC", &mfcerr.KernelError{
			Operation: "MRT_DEL_MFC", Errno: err,
			Description: fmt.Sprintf("delete MFC entry (%s, %s)", source, group),
		})
	}
	return nil
}

func buildMfcctl(source, group string, parentVIFi uint16, outputVIFs map[uint16]struct{}) ([]byte, error) {
	originBytes, err := ipv4To4(source)
	if err != nil {
		return nil, err
	}
	groupBytes, err := ipv4To4(group)
	if err != nil {
		return nil, err
	}

	rec := mfcctl{
		origin: originBytes,
		group:  groupBytes,
		parent: parentVIFi,
	}
	for vifi := range outputVIFs {
		if int(vifi) >= maxVIFs {
			return nil, fmt.Errorf("output VIF index %d out of range [0, %d)", vifi, maxVIFs)
		}
		rec.ttls[vifi] = 1
	}
	return encodeMfcctl(rec), nil
}

// IfindexByName resolves a network interface name to a kernel ifindex,
// returning mfcerr.ErrInterfaceDown wrapped as mfcerr.KindInterfaceUnknown
// when the OS has no such interface.
func IfindexByName(name string) (uint32, error) {
	idx, err := unix.IfNameToIndex(name)
	if err != nil {
		return 0, mfcerr.Wrap(mfcerr.KindInterfaceUnknown, fmt.Sprintf("interface %q", name), mfcerr.ErrInterfaceDown)
	}
	return idx, nil
}
