// Package redsplit splits an RFC 2198 (RED) framed RTP payload into its
// primary and redundancy sub-packets, each insertable into the packet
// buffer with its own timestamp.
//
// Supplemented from original_source/.../webrtc_neteq.c's RED handling,
// which spec.md's distillation dropped; spec.md §6 calls out RED framing
// as something "the core splits ... into its primary and redundancy
// sub-packets, inserting each with adjusted timestamps" without detailing
// the wire format, so the split logic here follows RFC 2198 directly.
package redsplit

import "github.com/flowpbx/neteq/internal/neteq/neteqerr"

// Block is one decoded sub-packet recovered from a RED payload.
type Block struct {
	PayloadType uint8
	Timestamp   uint32 // rewritten backward by the block's declared offset
	Payload     []byte
	Redundant   bool // false for the primary (most recent) block
}

// redHeaderSize is the size of a non-terminal RED block header (RFC 2198 §3).
const redHeaderSize = 4

// Split decodes a RED-framed RTP payload (primaryTimestamp is the RTP
// packet's own timestamp) into its constituent blocks, ordered oldest
// (most redundant) first and primary last. Fails with RedSplitError if the
// header chain or declared block lengths don't fit within payload.
func Split(payload []byte, primaryTimestamp uint32) ([]Block, neteqerr.Code) {
	type hdr struct {
		pt     uint8
		offset uint32
		length int // -1 for the terminal header (implicit length)
	}

	var headers []hdr
	pos := 0
	for {
		if pos >= len(payload) {
			return nil, neteqerr.RedSplitError
		}
		first := payload[pos]
		follows := first&0x80 != 0
		pt := first & 0x7F

		if !follows {
			headers = append(headers, hdr{pt: pt, length: -1})
			pos++
			break
		}

		if pos+redHeaderSize > len(payload) {
			return nil, neteqerr.RedSplitError
		}
		offset := uint32(payload[pos+1])<<6 | uint32(payload[pos+2])>>2
		length := int(payload[pos+2]&0x03)<<8 | int(payload[pos+3])
		headers = append(headers, hdr{pt: pt, offset: offset, length: length})
		pos += redHeaderSize
	}

	blocks := make([]Block, 0, len(headers))
	dataOffset := pos
	for i, h := range headers {
		n := h.length
		if n < 0 {
			n = len(payload) - dataOffset
		}
		if dataOffset+n > len(payload) || n < 0 {
			return nil, neteqerr.RedSplitError
		}
		blocks = append(blocks, Block{
			PayloadType: h.pt,
			Timestamp:   primaryTimestamp - h.offset,
			Payload:     payload[dataOffset : dataOffset+n],
			Redundant:   i != len(headers)-1,
		})
		dataOffset += n
	}
	return blocks, 0
}
