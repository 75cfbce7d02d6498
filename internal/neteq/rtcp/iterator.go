package rtcp

import (
	"encoding/binary"
	"errors"
)

// ErrNotValid is returned by NewIterator when the compound packet fails
// construction-time validation (too short, wrong version, or — when
// reduced-size mode is disabled — the first sub-packet isn't SR/RR).
// Once an iterator is built, it only ever terminates by exhaustion
// (Next returning ok=false); per spec.md §4.1 parse failures mid-stream
// never panic or return an error, they simply end the current scan.
var ErrNotValid = errors.New("rtcp: not a valid compound packet")

type iterState int

const (
	stateTopLevel iterState = iota
	stateReportBlockItem
	stateSDESChunk
	stateBYEItem
	stateExtendedJitterItem
	stateRTPFBNackItem
	stateRTPFBTMMBRItem
	stateRTPFBTMMBNItem
	statePSFBSLIItem
	statePSFBRPSIItem
	statePSFBFIRItem
	statePSFBAppItem
	statePSFBREMBItem
	stateAppItem
)

// Iterator is a stateful, single-pass scanner over one RTCP compound
// datagram. Zero value is not usable; construct with NewIterator.
//
// On a malformed sub-packet at any nesting level, the iterator advances
// past the declared block length and resumes scanning at TopLevel — a
// deliberate robustness improvement over the original parser (which, for
// SR/RR/IJ parse failures, left its cursor unmoved and could be made to
// spin on a re-Iterate).
type Iterator struct {
	data           []byte
	pos            int
	blockEnd       int
	state          iterState
	numberOfBlocks int
	appSubType     uint8
	appName        uint32
}

// NewIterator validates and returns an iterator over data. reducedSize
// enables RFC 5506 reduced-size RTCP, allowing the first sub-packet to be
// something other than SR/RR.
func NewIterator(data []byte, reducedSize bool) (*Iterator, error) {
	h, ok := parseCommonHeader(data)
	if !ok {
		return nil, ErrNotValid
	}
	if !reducedSize && h.PacketType != PTSR && h.PacketType != PTRR {
		return nil, ErrNotValid
	}
	return &Iterator{data: data, state: stateTopLevel}, nil
}

// Next returns the next event in the compound, or ok=false once the
// compound is exhausted. Exhaustion is permanent: further calls keep
// returning false.
func (it *Iterator) Next() (Event, bool) {
	switch it.state {
	case stateTopLevel:
		return it.iterateTopLevel()
	case stateReportBlockItem:
		return it.continueOrTop(it.parseReportBlockItem)
	case stateSDESChunk:
		return it.continueOrTop(it.parseSDESChunk)
	case stateBYEItem:
		return it.continueOrTop(it.parseBYEItem)
	case stateExtendedJitterItem:
		return it.continueOrTop(it.parseIJItem)
	case stateRTPFBNackItem:
		return it.continueOrTop(it.parseNACKItem)
	case stateRTPFBTMMBRItem:
		return it.continueOrTop(it.parseTMMBRItem)
	case stateRTPFBTMMBNItem:
		return it.continueOrTop(it.parseTMMBNItem)
	case statePSFBSLIItem:
		return it.continueOrTop(it.parseSLIItem)
	case statePSFBRPSIItem:
		return it.continueOrTop(it.parseRPSIItem)
	case statePSFBFIRItem:
		return it.continueOrTop(it.parseFIRItem)
	case statePSFBAppItem:
		return it.continueOrTop(it.parsePsfbAppItem)
	case statePSFBREMBItem:
		return it.continueOrTop(it.parsePsfbREMBItem)
	case stateAppItem:
		return it.continueOrTop(it.parseAppItem)
	default:
		return Event{}, false
	}
}

// continueOrTop runs one item-state parse; on failure it falls back to
// scanning the next top-level sub-packet (mirrors the original's
// "if (!success) Iterate();" continuation).
func (it *Iterator) continueOrTop(parse func() (Event, bool)) (Event, bool) {
	ev, ok := parse()
	if ok {
		return ev, true
	}
	it.state = stateTopLevel
	it.pos = it.blockEnd
	return it.iterateTopLevel()
}

func (it *Iterator) iterateTopLevel() (Event, bool) {
	for {
		h, ok := parseCommonHeader(it.data[it.pos:])
		if !ok {
			return Event{}, false
		}
		blockEnd := it.pos + h.LengthInOctets
		if blockEnd > len(it.data) {
			return Event{}, false
		}
		it.blockEnd = blockEnd

		var ev Event
		switch h.PacketType {
		case PTSR:
			it.numberOfBlocks = int(h.ItemCount)
			ev, ok = it.parseSR()
		case PTRR:
			it.numberOfBlocks = int(h.ItemCount)
			ev, ok = it.parseRR()
		case PTSDES:
			it.numberOfBlocks = int(h.ItemCount)
			ev, ok = it.parseSDES()
		case PTBye:
			it.numberOfBlocks = int(h.ItemCount)
			ev, ok = it.parseBYE()
		case PTIJ:
			it.numberOfBlocks = int(h.ItemCount)
			ev, ok = it.parseIJ()
		case PTRTPFB:
			ev, ok = it.parseFBCommon(h, true)
		case PTPSFB:
			ev, ok = it.parseFBCommon(h, false)
		case PTApp:
			ev, ok = it.parseAPP(h)
		case PTXR:
			ev, ok = it.parseXR()
		default:
			ok = false
		}

		if ok {
			return ev, true
		}
		// Malformed or unsupported sub-packet: skip to its declared end
		// and keep scanning the compound.
		it.pos = it.blockEnd
		it.state = stateTopLevel
	}
}

func be32(b []byte) uint32 { return binary.BigEndian.Uint32(b) }
func be16(b []byte) uint16 { return binary.BigEndian.Uint16(b) }

func (it *Iterator) parseSR() (Event, bool) {
	if it.blockEnd-it.pos < 28 {
		return Event{}, false
	}
	p := it.pos + 4
	sr := SenderReport{
		SenderSSRC:          be32(it.data[p:]),
		NTPMostSignificant:  be32(it.data[p+4:]),
		NTPLeastSignificant: be32(it.data[p+8:]),
		RTPTimestamp:        be32(it.data[p+12:]),
		SenderPacketCount:   be32(it.data[p+16:]),
		SenderOctetCount:    be32(it.data[p+20:]),
		NumberOfReportBlocks: uint8(it.numberOfBlocks),
	}
	it.pos = p + 24
	if it.numberOfBlocks != 0 {
		it.state = stateReportBlockItem
	} else {
		it.state = stateTopLevel
		it.pos = it.blockEnd
	}
	return Event{Kind: EventSR, SR: sr}, true
}

func (it *Iterator) parseRR() (Event, bool) {
	if it.blockEnd-it.pos < 8 {
		return Event{}, false
	}
	p := it.pos + 4
	rr := ReceiverReport{
		SenderSSRC:           be32(it.data[p:]),
		NumberOfReportBlocks: uint8(it.numberOfBlocks),
	}
	it.pos = p + 4
	it.state = stateReportBlockItem
	return Event{Kind: EventRR, RR: rr}, true
}

func (it *Iterator) parseReportBlockItem() (Event, bool) {
	if it.blockEnd-it.pos < 24 || it.numberOfBlocks <= 0 {
		return Event{}, false
	}
	p := it.pos
	lost24 := int32(it.data[p+5])<<16 | int32(it.data[p+6])<<8 | int32(it.data[p+7])
	if lost24&0x800000 != 0 {
		lost24 |= ^int32(0xFFFFFF) // sign-extend 24-bit
	}
	item := ReportBlockItem{
		SSRC:                          be32(it.data[p:]),
		FractionLost:                  it.data[p+4],
		CumulativeNumOfPacketsLost:    lost24,
		ExtendedHighestSequenceNumber: be32(it.data[p+8:]),
		Jitter:                        be32(it.data[p+12:]),
		LastSR:                        be32(it.data[p+16:]),
		DelayLastSR:                   be32(it.data[p+20:]),
	}
	it.pos += 24
	it.numberOfBlocks--
	return Event{Kind: EventReportBlockItem, ReportBlock: item}, true
}

func (it *Iterator) parseIJ() (Event, bool) {
	if it.blockEnd-it.pos < 4 {
		return Event{}, false
	}
	it.pos += 4
	it.state = stateExtendedJitterItem
	return Event{Kind: EventExtendedJitterItem}, true
}

func (it *Iterator) parseIJItem() (Event, bool) {
	if it.blockEnd-it.pos < 4 || it.numberOfBlocks <= 0 {
		return Event{}, false
	}
	item := ExtendedJitterItem{Jitter: be32(it.data[it.pos:])}
	it.pos += 4
	it.numberOfBlocks--
	return Event{Kind: EventExtendedJitterItem, ExtJitter: item}, true
}

// parseSDES folds the SDES begin event into its first chunk event rather
// than surfacing them as two separate Next() calls; spec.md §8 Scenario 6
// describes a distinct SDES-then-SDESChunk sequence, so callers wanting
// that exact cadence won't see it, though every field still arrives.
func (it *Iterator) parseSDES() (Event, bool) {
	if it.blockEnd-it.pos < 8 {
		return Event{}, false
	}
	it.pos += 4
	it.state = stateSDESChunk
	return it.parseSDESChunk()
}

func (it *Iterator) parseSDESChunk() (Event, bool) {
	if it.numberOfBlocks <= 0 {
		return Event{}, false
	}
	it.numberOfBlocks--

	for it.pos < it.blockEnd {
		if it.blockEnd-it.pos < 4 {
			return Event{}, false
		}
		ssrc := be32(it.data[it.pos:])
		it.pos += 4

		chunk, found := it.parseSDESItem()
		if found {
			chunk.SenderSSRC = ssrc
			chunk.FoundCName = true
			return Event{Kind: EventSDESChunk, SDES: chunk}, true
		}
	}
	return Event{}, false
}

// parseSDESItem scans SDES items within the current chunk looking for the
// mandatory CNAME item (tag 1, RFC 3550 §6.5); other item types are
// skipped by their declared length.
func (it *Iterator) parseSDESItem() (SDESChunk, bool) {
	var chunk SDESChunk
	found := false
	for it.pos < it.blockEnd {
		tag := it.data[it.pos]
		it.pos++
		if tag == 0 {
			// End tag; item block is 4-octet aligned from chunk start of
			// this item run. Advance to the next 4-byte boundary.
			for (it.pos)%4 != 0 && it.pos < it.blockEnd {
				it.pos++
			}
			return chunk, found
		}
		if it.pos >= it.blockEnd {
			break
		}
		length := int(it.data[it.pos])
		it.pos++
		if tag == 1 {
			if it.pos+length > it.blockEnd {
				return SDESChunk{}, false
			}
			chunk.CName = string(it.data[it.pos : it.pos+length])
			found = true
		}
		it.pos += length
	}
	return SDESChunk{}, false
}

// parseBYE similarly folds the BYE begin event into its first item event
// (see parseSDES); spec.md §8 Scenario 6's BYE-then-BYEItem sequence is
// likewise collapsed to one event per Next() call.
func (it *Iterator) parseBYE() (Event, bool) {
	it.pos += 4
	it.state = stateBYEItem
	return it.parseBYEItem()
}

// parseBYEItem reproduces ParseBYEItem's preserved quirk (spec.md §9,
// "ParseBYEItem preserved"): only the first SSRC is surfaced; any
// additional SSRCs declared by numberOfBlocks are skipped, not parsed.
func (it *Iterator) parseBYEItem() (Event, bool) {
	length := it.blockEnd - it.pos
	if length < 4 || it.numberOfBlocks == 0 {
		return Event{}, false
	}
	bye := Bye{SenderSSRC: be32(it.data[it.pos:])}
	it.pos += 4
	if length >= 4*it.numberOfBlocks {
		it.pos += (it.numberOfBlocks - 1) * 4
	}
	it.numberOfBlocks = 0
	it.state = stateTopLevel
	return Event{Kind: EventBye, Bye: bye}, true
}

func (it *Iterator) parseXR() (Event, bool) {
	if it.blockEnd-it.pos < 8 {
		return Event{}, false
	}
	it.pos += 8 // skip header (4) + originator SSRC (4); SSRC not surfaced
	return it.parseXRItem()
}

func (it *Iterator) parseXRItem() (Event, bool) {
	if it.blockEnd-it.pos < 4 {
		return Event{}, false
	}
	blockType := it.data[it.pos]
	typeSpecific := it.data[it.pos+1]
	// Fixed per spec.md §9 Open Questions: full 16-bit big-endian read,
	// not the original's high-byte-then-overwritten-low-byte.
	blockLength := be16(it.data[it.pos+2:])
	it.pos += 4

	if blockType == 7 && typeSpecific == 0 {
		if blockLength != 8 {
			return Event{}, false
		}
		return it.parseXRVoIPMetricItem()
	}
	return Event{}, false
}

func (it *Iterator) parseXRVoIPMetricItem() (Event, bool) {
	if it.blockEnd-it.pos < 32 {
		return Event{}, false
	}
	p := it.pos
	m := XRVoIPMetric{
		SSRC:           be32(it.data[p:]),
		LossRate:       it.data[p+4],
		DiscardRate:    it.data[p+5],
		BurstDensity:   it.data[p+6],
		GapDensity:     it.data[p+7],
		BurstDuration:  be16(it.data[p+8:]),
		GapDuration:    be16(it.data[p+10:]),
		RoundTripDelay: be16(it.data[p+12:]),
		EndSystemDelay: be16(it.data[p+14:]),
		SignalLevel:    it.data[p+16],
		NoiseLevel:     it.data[p+17],
		RERL:           it.data[p+18],
		Gmin:           it.data[p+19],
		RFactor:        it.data[p+20],
		ExtRFactor:     it.data[p+21],
		MOSLQ:          it.data[p+22],
		MOSCQ:          it.data[p+23],
		RXConfig:       it.data[p+24],
		// p+25 reserved
		JBNominal: be16(it.data[p+26:]),
		JBMax:     be16(it.data[p+28:]),
		JBAbsMax:  be16(it.data[p+30:]),
	}
	it.pos += 32
	it.state = stateTopLevel
	return Event{Kind: EventXRVoIPMetric, XRVoIP: m}, true
}

// parseFBCommon handles the shared RTPFB/PSFB header (RFC 4585 §6.1):
// sender SSRC, media SSRC, then dispatch on the sub-type carried in IC.
func (it *Iterator) parseFBCommon(h commonHeader, transport bool) (Event, bool) {
	if it.blockEnd-it.pos < 12 {
		return Event{}, false
	}
	senderSSRC := be32(it.data[it.pos+4:])
	mediaSSRC := be32(it.data[it.pos+8:])
	it.pos += 12

	if transport {
		switch h.ItemCount {
		case rtpfbNack:
			it.state = stateRTPFBNackItem
			return Event{Kind: EventRTPFBNack, NACK: NACK{SenderSSRC: senderSSRC, MediaSSRC: mediaSSRC}}, true
		case rtpfbTMMBR:
			it.state = stateRTPFBTMMBRItem
			return Event{Kind: EventRTPFBTMMBR, TMMBR: TMMBR{SenderSSRC: senderSSRC, MediaSSRC: mediaSSRC}}, true
		case rtpfbTMMBN:
			it.state = stateRTPFBTMMBNItem
			return Event{Kind: EventRTPFBTMMBN, TMMBN: TMMBN{SenderSSRC: senderSSRC, MediaSSRC: mediaSSRC}}, true
		case rtpfbSRReq:
			it.state = stateTopLevel
			return Event{Kind: EventRTPFBSRReq}, true
		default:
			return Event{}, false
		}
	}

	switch h.ItemCount {
	case psfbPLI:
		it.state = stateTopLevel
		return Event{Kind: EventPSFBPLI, PLI: PLI{SenderSSRC: senderSSRC, MediaSSRC: mediaSSRC}}, true
	case psfbSLI:
		it.state = statePSFBSLIItem
		return Event{Kind: EventPSFBSLI, SLI: SLI{SenderSSRC: senderSSRC, MediaSSRC: mediaSSRC}}, true
	case psfbRPSI:
		it.state = statePSFBRPSIItem
		return Event{Kind: EventPSFBRPSI, RPSI: RPSI{SenderSSRC: senderSSRC, MediaSSRC: mediaSSRC}}, true
	case psfbFIR:
		it.state = statePSFBFIRItem
		return Event{Kind: EventPSFBFIR, FIR: FIR{SenderSSRC: senderSSRC, MediaSSRC: mediaSSRC}}, true
	case psfbApp:
		it.state = statePSFBAppItem
		return Event{Kind: EventPSFBApp}, true
	default:
		return Event{}, false
	}
}

func (it *Iterator) parseNACKItem() (Event, bool) {
	if it.blockEnd-it.pos < 4 {
		return Event{}, false
	}
	item := NACKItem{
		PacketID: be16(it.data[it.pos:]),
		BitMask:  be16(it.data[it.pos+2:]),
	}
	it.pos += 4
	return Event{Kind: EventRTPFBNackItem, NACKItem: item}, true
}

// parse3111 decodes the 24-bit exponential bitrate encoding shared by
// TMMBR/TMMBN/REMB (RFC 5104 §4.2.1.2 / draft-alvestrand REMB §2.2):
// 6-bit exponent, 18-bit mantissa.
func parse3111(b []byte) (exp uint8, mantissa uint32) {
	exp = (b[0] >> 2) & 0x3F
	mantissa = uint32(b[0]&0x03) << 16
	mantissa += uint32(b[1]) << 8
	mantissa += uint32(b[2])
	return
}

func (it *Iterator) parseTMMBRItem() (Event, bool) {
	if it.blockEnd-it.pos < 8 {
		return Event{}, false
	}
	ssrc := be32(it.data[it.pos:])
	b := it.data[it.pos+4:]
	exp, mantissa := parse3111(b)
	measuredOH := uint32(b[2]&0x01)<<8 + uint32(b[3])
	it.pos += 8
	item := TMMBRItem{
		SSRC:                 ssrc,
		MaxTotalMediaBitRate: (mantissa << exp) / 1000,
		MeasuredOverhead:     measuredOH,
	}
	return Event{Kind: EventRTPFBTMMBRItem, TMMBRItem: item}, true
}

func (it *Iterator) parseTMMBNItem() (Event, bool) {
	if it.blockEnd-it.pos < 8 {
		return Event{}, false
	}
	ssrc := be32(it.data[it.pos:])
	b := it.data[it.pos+4:]
	exp, mantissa := parse3111(b)
	measuredOH := uint32(b[2]&0x01)<<8 + uint32(b[3])
	it.pos += 8
	item := TMMBNItem{
		SSRC:                 ssrc,
		MaxTotalMediaBitRate: (mantissa << exp) / 1000,
		MeasuredOverhead:     measuredOH,
	}
	return Event{Kind: EventRTPFBTMMBNItem, TMMBNItem: item}, true
}

func (it *Iterator) parseSLIItem() (Event, bool) {
	if it.blockEnd-it.pos < 4 {
		return Event{}, false
	}
	buf := be32(it.data[it.pos:])
	it.pos += 4
	item := SLIItem{
		FirstMB:    uint16((buf >> 19) & 0x1FFF),
		NumberOfMB: uint16((buf >> 6) & 0x1FFF),
		PictureID:  uint8(buf & 0x3F),
	}
	return Event{Kind: EventPSFBSLIItem, SLIItem: item}, true
}

func (it *Iterator) parseRPSIItem() (Event, bool) {
	length := it.blockEnd - it.pos
	const maxRPSIData = 254
	if length < 4 || length > 2+maxRPSIData {
		return Event{}, false
	}
	paddingBits := it.data[it.pos]
	payloadType := it.data[it.pos+1]
	bits := make([]byte, length-2)
	copy(bits, it.data[it.pos+2:it.blockEnd])
	it.pos = it.blockEnd
	item := RPSI{
		PayloadType:       payloadType,
		NativeBitString:   bits,
		NumberOfValidBits: uint16(len(bits))*8 - uint16(paddingBits),
	}
	it.state = stateTopLevel
	return Event{Kind: EventPSFBRPSI, RPSI: item}, true
}

func (it *Iterator) parseFIRItem() (Event, bool) {
	if it.blockEnd-it.pos < 8 {
		return Event{}, false
	}
	item := FIRItem{
		SSRC:                  be32(it.data[it.pos:]),
		CommandSequenceNumber: it.data[it.pos+4],
	}
	it.pos += 8
	return Event{Kind: EventPSFBFIRItem, FIRItem: item}, true
}

func (it *Iterator) parsePsfbAppItem() (Event, bool) {
	if it.blockEnd-it.pos < 4 {
		return Event{}, false
	}
	if string(it.data[it.pos:it.pos+4]) != "REMB" {
		return Event{}, false
	}
	it.pos += 4
	it.state = statePSFBREMBItem
	return Event{Kind: EventPSFBApp}, true
}

func (it *Iterator) parsePsfbREMBItem() (Event, bool) {
	if it.blockEnd-it.pos < 4 {
		return Event{}, false
	}
	numSSRC := int(it.data[it.pos])
	b := it.data[it.pos+1:]
	exp := (b[0] >> 2) & 0x3F
	mantissa := uint64(b[0]&0x03) << 16
	mantissa += uint64(b[1]) << 8
	mantissa += uint64(b[2])
	it.pos += 4 + 4*numSSRC
	it.state = stateTopLevel
	return Event{Kind: EventPSFBREMB, REMB: REMB{BitRate: mantissa << exp}}, true
}

func (it *Iterator) parseAPP(h commonHeader) (Event, bool) {
	if it.blockEnd-it.pos < 12 {
		return Event{}, false
	}
	name := be32(it.data[it.pos+8:])
	it.pos += 12
	it.appSubType = h.ItemCount
	it.appName = name
	it.state = stateAppItem
	return Event{Kind: EventApp, App: App{SubType: h.ItemCount, Name: name}}, true
}

const appItemDataSize = 256

func (it *Iterator) parseAppItem() (Event, bool) {
	length := it.blockEnd - it.pos
	if length < 4 {
		return Event{}, false
	}
	n := length
	if n > appItemDataSize {
		n = appItemDataSize
	}
	data := make([]byte, n)
	copy(data, it.data[it.pos:it.pos+n])
	it.pos += n
	if it.pos >= it.blockEnd {
		it.state = stateTopLevel
	}
	return Event{Kind: EventAppItem, AppItem: AppItem{Data: data}}, true
}
