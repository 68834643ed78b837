package mrt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
)

// Kernel control-option numbers, protocol level IPPROTO_IP (0), matching
// the setsockopt wire contract this package implements.
const (
	mrtInit   = 200
	mrtDone   = 201
	mrtAddVIF = 202
	mrtDelVIF = 203
	mrtAddMFC = 204
	mrtDelMFC = 205
)

const (
	maxVIFs = 32

	vifFlagUseIfindex = 0x08

	vifctlSize = 16
	mfcctlSize = 60
)

// vifctl is the bit-exact layout of the kernel's VIF control record.
//
//	offset 0  (2 bytes): VIF index
//	offset 2  (1 byte):  flags
//	offset 3  (1 byte):  TTL threshold (unused, 0)
//	offset 4  (4 bytes): rate limit (unused, 0)
//	offset 8  (4 bytes): union of IPv4 address or ifindex (we always use ifindex)
//	offset 12 (4 bytes): remote IPv4 (unused, 0)
type vifctl struct {
	vifi    uint16
	flags   uint8
	ttl     uint8
	rateLim uint32
	ifindex uint32
	remote  uint32
}

func encodeVifctl(v vifctl) []byte {
	buf := new(bytes.Buffer)
	buf.Grow(vifctlSize)
	_ = binary.Write(buf, binary.LittleEndian, v.vifi)
	_ = binary.Write(buf, binary.LittleEndian, v.flags)
	_ = binary.Write(buf, binary.LittleEndian, v.ttl)
	_ = binary.Write(buf, binary.LittleEndian, v.rateLim)
	_ = binary.Write(buf, binary.LittleEndian, v.ifindex)
	_ = binary.Write(buf, binary.LittleEndian, v.remote)
	return buf.Bytes()
}

// mfcctl is the bit-exact layout of the kernel's MFC control record.
//
//	offset 0  (4 bytes):  origin IPv4, network byte order
//	offset 4  (4 bytes):  group IPv4, network byte order
//	offset 8  (2 bytes):  parent VIF
//	offset 10 (32 bytes): TTL-threshold array, one byte per VIF slot
//	offset 42 (2 bytes):  alignment padding -- load-bearing: the counters below start at 44
//	offset 44 (4 bytes):  kernel-written packet count
//	offset 48 (4 bytes):  kernel-written byte count
//	offset 52 (4 bytes):  kernel-written wrong-input-interface count
//	offset 56 (4 bytes):  kernel-written expiry
type mfcctl struct {
	origin   [4]byte
	group    [4]byte
	parent   uint16
	ttls     [maxVIFs]uint8
	_        [2]byte // padding at offset 42, see mfcctl doc comment
	pktCnt   uint32
	byteCnt  uint32
	wrongIf  uint32
	expire   uint32
}

func encodeMfcctl(m mfcctl) []byte {
	buf := new(bytes.Buffer)
	buf.Grow(mfcctlSize)
	buf.Write(m.origin[:])
	buf.Write(m.group[:])
	_ = binary.Write(buf, binary.LittleEndian, m.parent)
	buf.Write(m.ttls[:])
	buf.Write(make([]byte, 2)) // offset 42 padding
	_ = binary.Write(buf, binary.LittleEndian, m.pktCnt)
	_ = binary.Write(buf, binary.LittleEndian, m.byteCnt)
	_ = binary.Write(buf, binary.LittleEndian, m.wrongIf)
	_ = binary.Write(buf, binary.LittleEndian, m.expire)
	return buf.Bytes()
}

func ipv4To4(ip string) ([4]byte, error) {
	var out [4]byte
	addr := net.ParseIP(ip)
	if addr == nil {
		return out, fmt.Errorf("invalid IPv4 literal %q", ip)
	}
	v4 := addr.To4()
	if v4 == nil {
		return out, fmt.Errorf("not an IPv4 literal: %q", ip)
	}
	copy(out[:], v4)
	return out, nil
}

func init() {
	if n := len(encodeMfcctl(mfcctl{})); n != mfcctlSize {
		panic(fmt.Sprintf("mrt: mfcctl record encodes to %d bytes, expected %d", n, mfcctlSize))
	}
	if n := len(encodeVifctl(vifctl{})); n != vifctlSize {
		panic(fmt.Sprintf("mrt: vifctl record encodes to %d bytes, expected %d", n, vifctlSize))
	}
}
