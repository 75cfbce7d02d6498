// Package rtp parses and emits RTP headers (RFC 3550 §5.1).
//
// Grounded on the teacher's internal/media/relay.go RTP payload-type
// extraction (same 0x7F payload-type mask) and the fixed 12-byte header
// layout described in rtcp_utility.cc's sibling RTP parser; extended here
// to the full header (CSRCs, extension) per spec.md §4.1.
package rtp

import (
	"encoding/binary"

	"github.com/flowpbx/neteq/internal/neteq/neteqerr"
)

// HeaderSize is the fixed RTP header size before CSRCs and extensions.
const HeaderSize = 12

// Version is the only RTP version this parser accepts.
const Version = 2

// Packet is a parsed RTP packet. Payload aliases the caller's buffer; the
// caller retains ownership until the call that produced the Packet returns,
// matching spec.md §4.1.
type Packet struct {
	Version        uint8
	Padding        bool
	Extension      bool
	CSRCCount      uint8
	Marker         bool
	PayloadType    uint8
	SequenceNumber uint16
	Timestamp      uint32
	SSRC           uint32
	CSRC           []uint32
	Payload        []byte
}

// Parse decodes an RTP header from buf. buf must be at least HeaderSize
// bytes; it fails with RtpTooShort otherwise, and with RtpCorrupt if the
// version isn't 2 or the declared header length overruns the buffer.
func Parse(buf []byte) (Packet, neteqerr.Code) {
	var p Packet
	if len(buf) < HeaderSize {
		return p, neteqerr.RtpTooShort
	}

	p.Version = buf[0] >> 6
	if p.Version != Version {
		return p, neteqerr.RtpCorrupt
	}
	p.Padding = buf[0]&0x20 != 0
	p.Extension = buf[0]&0x10 != 0
	p.CSRCCount = buf[0] & 0x0F
	p.Marker = buf[1]&0x80 != 0
	p.PayloadType = buf[1] & 0x7F
	p.SequenceNumber = binary.BigEndian.Uint16(buf[2:4])
	p.Timestamp = binary.BigEndian.Uint32(buf[4:8])
	p.SSRC = binary.BigEndian.Uint32(buf[8:12])

	offset := HeaderSize + 4*int(p.CSRCCount)
	if offset > len(buf) {
		return p, neteqerr.RtpCorrupt
	}
	if p.CSRCCount > 0 {
		p.CSRC = make([]uint32, p.CSRCCount)
		for i := range p.CSRC {
			p.CSRC[i] = binary.BigEndian.Uint32(buf[HeaderSize+4*i:])
		}
	}

	if p.Extension {
		if offset+4 > len(buf) {
			return p, neteqerr.RtpCorrupt
		}
		extLenWords := int(binary.BigEndian.Uint16(buf[offset+2 : offset+4]))
		offset += 4 + 4*extLenWords
		if offset > len(buf) {
			return p, neteqerr.RtpCorrupt
		}
	}

	p.Payload = buf[offset:]
	return p, 0
}

// HeaderLen returns the total header length (fixed header + CSRCs), not
// including any extension header.
func (p Packet) HeaderLen() int {
	return HeaderSize + 4*int(p.CSRCCount)
}

// Marshal encodes p (fixed header + CSRCs + payload; extension headers are
// not re-emitted since the engine never needs to produce one) into a new
// byte slice.
func Marshal(p Packet) []byte {
	buf := make([]byte, HeaderSize+4*len(p.CSRC)+len(p.Payload))
	buf[0] = Version<<6 | byte(len(p.CSRC)&0x0F)
	if p.Padding {
		buf[0] |= 0x20
	}
	if p.Extension {
		buf[0] |= 0x10
	}
	buf[1] = p.PayloadType & 0x7F
	if p.Marker {
		buf[1] |= 0x80
	}
	binary.BigEndian.PutUint16(buf[2:4], p.SequenceNumber)
	binary.BigEndian.PutUint32(buf[4:8], p.Timestamp)
	binary.BigEndian.PutUint32(buf[8:12], p.SSRC)
	for i, csrc := range p.CSRC {
		binary.BigEndian.PutUint32(buf[HeaderSize+4*i:], csrc)
	}
	copy(buf[HeaderSize+4*len(p.CSRC):], p.Payload)
	return buf
}

// TimestampBefore reports whether a precedes b on the 32-bit timestamp
// torus, using signed(a-b) per spec.md §4.3's numeric semantics for
// wraparound-safe ordering.
func TimestampBefore(a, b uint32) bool {
	return int32(a-b) < 0
}

// SeqBefore reports whether sequence number a precedes b modulo 16-bit
// wraparound, using the same signed-difference rule as TimestampBefore.
func SeqBefore(a, b uint16) bool {
	return int16(a-b) < 0
}
