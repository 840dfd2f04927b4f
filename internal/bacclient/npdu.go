package bacclient

// Network layer protocol data unit encode/decode (ASHRAE 135 clause 6)

import (
	"encoding/binary"
	"fmt"
)

const npduVersion = 1

// GlobalBroadcastNet is the destination network number that addresses
// every network.
const GlobalBroadcastNet uint16 = 0xFFFF

// NPDU carries the network-layer header of one message.
type NPDU struct {
	ExpectingReply bool
	Priority       byte

	HasDestination bool
	DNet           uint16
	DAdr           []byte
	HopCount       byte

	HasSource bool
	SNet      uint16
	SAdr      []byte

	// Network-layer messages (router chatter) carry a message type
	// instead of an APDU.
	NetworkMessage bool
	MessageType    byte
}

// NewGlobalBroadcastNPDU returns the header used for Who-Is broadcasts:
// destination network 0xFFFF with a zero-length address and a fresh hop
// count.
func NewGlobalBroadcastNPDU() NPDU {
	return NPDU{
		HasDestination: true,
		DNet:           GlobalBroadcastNet,
		HopCount:       255,
	}
}

// Encode serializes the NPDU header:
// - Version (1 byte, always 1)
// - Control (1 byte: bit7 network message, bit5 destination present,
//   bit3 source present, bit2 expecting reply, bits1-0 priority)
// - Optional DNET (2 bytes) + DLEN (1 byte) + DADR
// - Optional SNET (2 bytes) + SLEN (1 byte) + SADR
// - Hop count (1 byte, only when a destination is present)
func (n NPDU) Encode() []byte {
	control := byte(0)
	if n.NetworkMessage {
		control |= 0x80
	}
	if n.HasDestination {
		control |= 0x20
	}
	if n.HasSource {
		control |= 0x08
	}
	if n.ExpectingReply {
		control |= 0x04
	}
	control |= n.Priority & 0x03

	out := []byte{npduVersion, control}
	if n.HasDestination {
		out = binary.BigEndian.AppendUint16(out, n.DNet)
		out = append(out, byte(len(n.DAdr)))
		out = append(out, n.DAdr...)
	}
	if n.HasSource {
		out = binary.BigEndian.AppendUint16(out, n.SNet)
		out = append(out, byte(len(n.SAdr)))
		out = append(out, n.SAdr...)
	}
	if n.HasDestination {
		out = append(out, n.HopCount)
	}
	if n.NetworkMessage {
		out = append(out, n.MessageType)
	}
	return out
}

// DecodeNPDU parses the network header and returns it together with the
// offset of the APDU within data. Address slices are copied, so the
// result stays valid when the receive buffer is reused.
func DecodeNPDU(data []byte) (NPDU, int, error) {
	var n NPDU
	if len(data) < 2 {
		return n, 0, fmt.Errorf("NPDU too short: %d bytes", len(data))
	}
	if data[0] != npduVersion {
		return n, 0, fmt.Errorf("unsupported NPDU version %d", data[0])
	}

	control := data[1]
	n.NetworkMessage = control&0x80 != 0
	n.HasDestination = control&0x20 != 0
	n.HasSource = control&0x08 != 0
	n.ExpectingReply = control&0x04 != 0
	n.Priority = control & 0x03

	offset := 2
	if n.HasDestination {
		if len(data) < offset+3 {
			return n, 0, fmt.Errorf("NPDU truncated in destination")
		}
		n.DNet = binary.BigEndian.Uint16(data[offset : offset+2])
		dlen := int(data[offset+2])
		offset += 3
		if len(data) < offset+dlen {
			return n, 0, fmt.Errorf("NPDU truncated in destination address")
		}
		n.DAdr = append([]byte(nil), data[offset:offset+dlen]...)
		offset += dlen
	}
	if n.HasSource {
		if len(data) < offset+3 {
			return n, 0, fmt.Errorf("NPDU truncated in source")
		}
		n.SNet = binary.BigEndian.Uint16(data[offset : offset+2])
		slen := int(data[offset+2])
		offset += 3
		if len(data) < offset+slen {
			return n, 0, fmt.Errorf("NPDU truncated in source address")
		}
		n.SAdr = append([]byte(nil), data[offset:offset+slen]...)
		offset += slen
	}
	if n.HasDestination {
		if len(data) < offset+1 {
			return n, 0, fmt.Errorf("NPDU truncated before hop count")
		}
		n.HopCount = data[offset]
		offset++
	}
	if n.NetworkMessage {
		if len(data) < offset+1 {
			return n, 0, fmt.Errorf("NPDU truncated before message type")
		}
		n.MessageType = data[offset]
		offset++
	}

	return n, offset, nil
}
