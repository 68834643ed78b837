// Package mfcerr defines the error taxonomy shared by the controller, the
// kernel adapter, and the control plane server.
package mfcerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so the control plane server can translate it
// into a client-visible response without inspecting error strings.
type Kind string

const (
	// KindValidation covers malformed input: non-IPv4 literals, a
	// non-multicast group, a duplicate rule, empty outputs, or iif
	// appearing in oifs. Always local to the request; never a side effect.
	KindValidation Kind = "VALIDATION"

	// KindResourceExhausted means all 32 VIF slots are in use.
	KindResourceExhausted Kind = "RESOURCE_EXHAUSTED"

	// KindInterfaceUnknown means the OS has no interface by that name.
	KindInterfaceUnknown Kind = "INTERFACE_UNKNOWN"

	// KindKernel wraps any nonzero return from a kernel control-option call.
	KindKernel Kind = "KERNEL"

	// KindPersistence covers file-system errors on load/save.
	KindPersistence Kind = "PERSISTENCE"

	// KindEngineConflict means MRT_INIT failed because another process
	// already owns the multicast router in this namespace. Fatal at
	// startup.
	KindEngineConflict Kind = "ENGINE_CONFLICT"
)

// Sentinel errors for conditions callers commonly need to distinguish with
// errors.Is, independent of the Kind carried by a wrapping *Error.
var (
	ErrDuplicateRule = errors.New("duplicate rule")
	ErrNotFound      = errors.New("rule not found")
	ErrNoFreeVIF     = errors.New("no free VIF slot")
	ErrInterfaceDown = errors.New("interface unknown or not multicast-capable")
)

// Error is a typed failure carrying the taxonomy Kind plus an optional
// wrapped cause. Controller and adapter code always returns one of these so
// the control plane server can report {status: "error", message} without
// guesswork.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KernelError describes a failed kernel control-option call: the operation
// name (e.g. "MRT_ADD_VIF"), the raw errno, and a human description.
type KernelError struct {
	Operation   string
	Errno       error
	Description string
}

func (e *KernelError) Error() string {
	return fmt.Sprintf("%s failed: %s (%v)", e.Operation, e.Description, e.Errno)
}

func (e *KernelError) Unwrap() error {
	return e.Errno
}

// AsKernel extracts a *KernelError from err, if present.
func AsKernel(err error) (*KernelError, bool) {
	var ke *KernelError
	if errors.As(err, &ke) {
		return ke, true
	}
	return nil, false
}
