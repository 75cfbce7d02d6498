// Package rtcp implements a stateful iterator over RTCP compound packets
// (RFC 3550 §6, RFC 4585, RFC 5104, RFC 3611 §4.7, draft-alvestrand REMB),
// per spec.md §4.1.
//
// Grounded bit-exactly on
// original_source/src/modules/rtp_rtcp/source/rtcp_utility.cc
// (RTCPParserV2): the common-header layout, per-packet-type field offsets,
// and the item-state transitions below are a direct translation of that
// parser's Parse*/Iterate* functions, re-expressed as a single owning Go
// iterator with a tagged Event value instead of a C++ union, per spec.md
// §9's design note ("do not model states as separate objects").
package rtcp

import "encoding/binary"

// PacketType values (RFC 3550 §12.1, RFC 4585, RFC 5104, RFC 3611).
const (
	PTSR    = 200
	PTRR    = 201
	PTSDES  = 202
	PTBye   = 203
	PTApp   = 204
	PTRTPFB = 205
	PTPSFB  = 206
	PTXR    = 207
	PTIJ    = 195
)

// RTPFB (transport-layer feedback, RFC 4585/5104) sub-types, carried in
// the common header's IC (item-count) field.
const (
	rtpfbNack  = 1
	rtpfbTMMBR = 3
	rtpfbTMMBN = 4
	rtpfbSRReq = 5
)

// PSFB (payload-specific feedback, RFC 4585/5104) sub-types.
const (
	psfbPLI  = 1
	psfbSLI  = 2
	psfbRPSI = 3
	psfbFIR  = 4
	psfbApp  = 15
)

// commonHeader is the 4-byte header common to every RTCP sub-packet.
type commonHeader struct {
	Version        uint8
	Padding        bool
	ItemCount      uint8 // IC: report count, or sub-type for feedback packets
	PacketType     uint8
	LengthInOctets int // total length of this sub-packet, header included
}

// parseCommonHeader decodes the 4-byte RTCP common header at the start of
// buf. Matches RTCPParseCommonHeader: length is (words+1)*4 header-included,
// version must be 2.
func parseCommonHeader(buf []byte) (commonHeader, bool) {
	if len(buf) < 4 {
		return commonHeader{}, false
	}
	var h commonHeader
	h.Version = buf[0] >> 6
	h.Padding = buf[0]&0x20 != 0
	h.ItemCount = buf[0] & 0x1F
	h.PacketType = buf[1]
	h.LengthInOctets = (int(binary.BigEndian.Uint16(buf[2:4])) + 1) * 4
	if h.Version != 2 || h.LengthInOctets == 0 {
		return commonHeader{}, false
	}
	return h, true
}
