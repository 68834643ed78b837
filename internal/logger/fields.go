package logger

import (
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements for log aggregation and querying.
const (
	// ========================================================================
	// Request correlation
	// ========================================================================
	KeyRequestID = "request_id" // per-connection correlation id
	KeyAction    = "action"     // ADD_MFC, DEL_MFC, SHOW
	KeyClientPID = "client_pid" // peer PID from SO_PEERCRED, when available

	// ========================================================================
	// Rule identity
	// ========================================================================
	KeySource = "source" // rule source IPv4 literal
	KeyGroup  = "group"  // rule group IPv4 literal
	KeyIIF    = "iif"    // input interface name
	KeyOIF    = "oif"    // a single output interface name
	KeyOIFs   = "oifs"   // output interface name list

	// ========================================================================
	// VIF / kernel identifiers
	// ========================================================================
	KeyIfname   = "ifname"    // interface name
	KeyIfindex  = "ifindex"   // kernel ifindex
	KeyVifi     = "vifi"      // VIF index (0-31)
	KeyRefCount = "ref_count" // VIF Registry reference count

	// ========================================================================
	// Kernel adapter
	// ========================================================================
	KeyMrtOption = "mrt_option" // kernel control-option name (MRT_ADD_VIF, ...)
	KeyErrno     = "errno"      // raw kernel errno
	KeyDurationMs = "duration_ms"

	// ========================================================================
	// Persistence / socket
	// ========================================================================
	KeyStateFile  = "state_file"
	KeySocketPath = "socket_path"
	KeyRuleCount  = "rule_count"
	KeyError      = "error"
)

// RequestID returns a slog.Attr for the per-connection correlation id.
func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

// Action returns a slog.Attr for the IPC action name.
func Action(a string) slog.Attr {
	return slog.String(KeyAction, a)
}

// ClientPID returns a slog.Attr for the peer process id.
func ClientPID(pid int32) slog.Attr {
	return slog.Int64(KeyClientPID, int64(pid))
}

// Source returns a slog.Attr for a rule's source address.
func Source(ip string) slog.Attr {
	return slog.String(KeySource, ip)
}

// Group returns a slog.Attr for a rule's group address.
func Group(ip string) slog.Attr {
	return slog.String(KeyGroup, ip)
}

// IIF returns a slog.Attr for a rule's input interface.
func IIF(name string) slog.Attr {
	return slog.String(KeyIIF, name)
}

// OIF returns a slog.Attr for a single output interface.
func OIF(name string) slog.Attr {
	return slog.String(KeyOIF, name)
}

// OIFs returns a slog.Attr for an output interface set.
func OIFs(names []string) slog.Attr {
	return slog.Any(KeyOIFs, names)
}

// Ifname returns a slog.Attr for an interface name.
func Ifname(name string) slog.Attr {
	return slog.String(KeyIfname, name)
}

// Ifindex returns a slog.Attr for a kernel ifindex.
func Ifindex(idx uint32) slog.Attr {
	return slog.Uint64(KeyIfindex, uint64(idx))
}

// Vifi returns a slog.Attr for a VIF index.
func Vifi(v uint8) slog.Attr {
	return slog.Int(KeyVifi, int(v))
}

// RefCount returns a slog.Attr for a binding's reference count.
func RefCount(n uint32) slog.Attr {
	return slog.Uint64(KeyRefCount, uint64(n))
}

// MrtOption returns a slog.Attr for the kernel control-option name.
func MrtOption(name string) slog.Attr {
	return slog.String(KeyMrtOption, name)
}

// Errno returns a slog.Attr for a raw kernel errno.
func Errno(err error) slog.Attr {
	return slog.Any(KeyErrno, err)
}

// StateFile returns a slog.Attr for the persisted state file path.
func StateFile(path string) slog.Attr {
	return slog.String(KeyStateFile, path)
}

// SocketPath returns a slog.Attr for the control socket path.
func SocketPath(path string) slog.Attr {
	return slog.String(KeySocketPath, path)
}

// RuleCount returns a slog.Attr for a rule set size.
func RuleCount(n int) slog.Attr {
	return slog.Int(KeyRuleCount, n)
}

// Err returns a slog.Attr for an error value, or an empty Attr (which
// handlers skip) when err is nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
