// vxlan.go: VXLAN (RFC 7348) header encoding for the EndpointVXLAN
// transport. VL1 treats VXLAN purely as an additional physical
// destination form: a wire packet is carried as the VXLAN payload,
// addressed to a VNI, with no inner Ethernet/IP framing of its own.

package netio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// VXLANHeaderSize is the fixed VXLAN header size in bytes.
	// RFC 7348 Section 5: 8 bytes (Flags + Reserved + VNI + Reserved).
	VXLANHeaderSize = 8

	// VXLANPort is the standard VXLAN UDP destination port.
	// RFC 7348 Section 5: "IANA has assigned the value 4789".
	VXLANPort uint16 = 4789

	// vxlanFlagVNI is the VXLAN flag indicating a valid VNI.
	// RFC 7348 Section 5: bit 4 (I flag) MUST be set to 1.
	vxlanFlagVNI uint8 = 0x08
)

// VXLANHeader represents a parsed VXLAN header.
//
//	 0                   1                   2                   3
//	 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|R|R|R|R|I|R|R|R|            Reserved                           |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                VXLAN Network Identifier (VNI) |   Reserved    |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
type VXLANHeader struct {
	// VNI is the VXLAN Network Identifier (24-bit).
	VNI uint32
}

// Sentinel errors for VXLAN operations.
var (
	// ErrVXLANHeaderTooShort indicates the buffer is shorter than 8 bytes.
	ErrVXLANHeaderTooShort = errors.New("vxlan header too short: need 8 bytes")

	// ErrVXLANInvalidFlags indicates the I flag is not set.
	ErrVXLANInvalidFlags = errors.New("vxlan header: I flag (VNI valid) not set")

	// ErrVXLANVNIOverflow indicates the VNI exceeds 24 bits.
	ErrVXLANVNIOverflow = errors.New("vxlan VNI exceeds 24-bit range")
)

// MarshalVXLANHeader encodes a VXLAN header into buf (must be >= 8 bytes).
// Returns the number of bytes written (always 8).
func MarshalVXLANHeader(buf []byte, vni uint32) (int, error) {
	if len(buf) < VXLANHeaderSize {
		return 0, ErrVXLANHeaderTooShort
	}
	if vni > 0x00FFFFFF {
		return 0, fmt.Errorf("vni=%d: %w", vni, ErrVXLANVNIOverflow)
	}

	buf[0] = vxlanFlagVNI // Flags: I=1, rest=0
	buf[1] = 0
	buf[2] = 0
	buf[3] = 0

	// VNI occupies bytes 4-6 (24 bits), byte 7 is reserved.
	binary.BigEndian.PutUint32(buf[4:8], vni<<8)

	return VXLANHeaderSize, nil
}

// UnmarshalVXLANHeader parses a VXLAN header from buf (must be >= 8 bytes).
func UnmarshalVXLANHeader(buf []byte) (VXLANHeader, error) {
	if len(buf) < VXLANHeaderSize {
		return VXLANHeader{}, ErrVXLANHeaderTooShort
	}

	if buf[0]&vxlanFlagVNI == 0 {
		return VXLANHeader{}, ErrVXLANInvalidFlags
	}

	vni := binary.BigEndian.Uint32(buf[4:8]) >> 8

	return VXLANHeader{VNI: vni}, nil
}
