// Package engine implements the NetEQ Engine Facade (C7): a single
// instance owning the codec registry, packet buffer, arrival stats,
// automode decision state, and DSP engine, exposing RecIn/RecOut/Init/
// FlushBuffers/CodecDbAdd/GetErrorCode/GetVersion and master/slave
// timing-share per spec.md §4.7.
//
// Grounded on the teacher's per-call session object in
// internal/media/relay.go (one struct per active RTP session owning its
// buffers, counters, and state machine, driven by a single goroutine per
// session so no internal locking is needed) — this package keeps that
// single-threaded-per-instance discipline, substituting the original's
// two-step "caller-provided arena" allocation (spec.md §9's design note)
// with a plain Go constructor, recorded as an Open Question decision in
// DESIGN.md: Go has no placement-new, so AssignSize/Assign are kept as
// documented API surface (size hinting, construction) rather than a
// literal caller-memory placement.
package engine

import (
	"github.com/flowpbx/neteq/internal/neteq/arrival"
	"github.com/flowpbx/neteq/internal/neteq/automode"
	"github.com/flowpbx/neteq/internal/neteq/codec"
	"github.com/flowpbx/neteq/internal/neteq/dsp"
	"github.com/flowpbx/neteq/internal/neteq/neteqerr"
	"github.com/flowpbx/neteq/internal/neteq/packetbuffer"
	"github.com/flowpbx/neteq/internal/neteq/redsplit"
	"github.com/flowpbx/neteq/internal/neteq/rtp"
)

// NetworkType selects the buffer-sizing multiplier AssignSize applies, per spec.md §5's "Allocation discipline" table.
type NetworkType int

const (
	NetworkUDPNormal NetworkType = iota
	NetworkUDPVideoSync
	NetworkTCPNormal
	NetworkTCPLargeJitter
	NetworkTCPXLargeJitter
)

var networkMultiplier = map[NetworkType]int{
	NetworkUDPNormal:       1,
	NetworkUDPVideoSync:    4,
	NetworkTCPNormal:       4,
	NetworkTCPLargeJitter:  8,
	NetworkTCPXLargeJitter: 20,
}

// Role is the master/slave timing-share role spec.md §4.7 describes.
type Role int

const (
	RoleStandalone Role = iota
	RoleMaster
	RoleSlave
)

// MSInfo is the out-of-band timing-decision record a master instance
// produces and slave instances consume within the same RecOut tick.
type MSInfo struct {
	Decision       automode.Decision
	SamplesPerCall int
}

const (
	defaultMaxCodecs     = 16
	defaultMaxSlots      = 64
	defaultPoolBytes     = 64 * 1024
	defaultSampleRate    = 8000
)

// Instance is the opaque engine handle (C7).
type Instance struct {
	codecs  *codec.Registry
	packets *packetbuffer.Buffer
	stats   *arrival.Stats
	dspEng  *dsp.Engine

	fs                int
	samplesPerCall    int
	currentPT         uint8
	currentKind       codec.Kind
	firstPacket       bool
	playoutMode       automode.PlayoutMode
	role              Role
	lastErrorCode     neteqerr.Code
	nextExpectedTS    uint32
	haveNextExpected  bool
}

// AssignSize reports the byte size a host should reserve if it wants to
// account for the instance's footprint ahead of time; Go's allocator
// makes the reservation itself a no-op, but the hint still reflects
// spec.md §5's network-type multiplier table, applied to the default
// pool size (the slot count is not scaled).
func AssignSize(networkType NetworkType) int {
	mult := networkMultiplier[networkType]
	if mult == 0 {
		mult = 1
	}
	return defaultPoolBytes * mult
}

// Assign constructs a new instance. In the original two-step allocation
// this placed the instance inside caller-provided storage; here it is a
// plain constructor, the Open Question decision recorded in DESIGN.md.
func Assign() *Instance {
	return &Instance{
		codecs:  codec.NewRegistry(defaultMaxCodecs),
		packets: packetbuffer.New(defaultMaxSlots, defaultPoolBytes),
	}
}

// Init clears state and resets automode for sample rate fs (Hz).
func (inst *Instance) Init(fs int) neteqerr.Code {
	if fs != 8000 && fs != 16000 && fs != 32000 && fs != 48000 {
		return neteqerr.FaultyInstruction
	}
	inst.fs = fs
	inst.samplesPerCall = fs / 100
	inst.stats = arrival.New(inst.samplesPerCall)
	inst.dspEng = dsp.NewEngine(fs, inst.samplesPerCall)
	inst.firstPacket = true
	inst.currentPT = 0
	inst.currentKind = codec.KindUnknown
	inst.lastErrorCode = 0
	inst.haveNextExpected = false
	inst.packets.Flush()
	return 0
}

// CodecDbAdd registers a decoder, populating C2 without allocation beyond
// the registry's pre-sized table.
func (inst *Instance) CodecDbAdd(kind codec.Kind, pt uint8, funcs codec.FuncTable, state any, sampleRate int) neteqerr.Code {
	return inst.codecs.Add(kind, pt, funcs, state, sampleRate)
}

// CodecDbRemove clears the slot registered for kind. If it was the
// active codec, the DSP's active decoder reference is cleared too,
// satisfying spec.md §4.2's use-after-free-prevention invariant.
func (inst *Instance) CodecDbRemove(kind codec.Kind) {
	inst.codecs.Remove(kind)
	if inst.currentKind == kind {
		inst.currentKind = codec.KindUnknown
		inst.currentPT = 0
	}
}

// GetErrorCode returns the last recorded error code; zero if none.
func (inst *Instance) GetErrorCode() neteqerr.Code { return inst.lastErrorCode }

// GetErrorName returns the taxonomy name for the last recorded error.
func (inst *Instance) GetErrorName() string { return inst.lastErrorCode.String() }

// GetVersion copies the fixed version string into dst (must be ≥ 11
// bytes), per spec.md §6: "Fixed ASCII \"3.3.0\" zero-terminated via a
// caller buffer of ≥ 11 bytes." Implemented as a fixed-length copy
// (Open Question decision, recorded in DESIGN.md) rather than returning
// a Go string directly, to keep the call shape aligned with the rest of
// the facade's caller-buffer convention.
func (inst *Instance) GetVersion(dst []byte) neteqerr.Code {
	const version = "3.3.0"
	if len(dst) < 11 {
		return neteqerr.FaultyInstruction
	}
	n := copy(dst, version)
	dst[n] = 0
	for i := n + 1; i < len(dst); i++ {
		dst[i] = 0
	}
	return 0
}

// FlushBuffers empties C3 and the sync buffer.
func (inst *Instance) FlushBuffers() {
	inst.packets.Flush()
	if inst.dspEng != nil {
		inst.dspEng.Sync.Reset()
	}
}

func (inst *Instance) fail(code neteqerr.Code) neteqerr.Code {
	inst.lastErrorCode = code
	return code
}

// RecIn feeds one inbound RTP datagram through C1 parse, C2 payload-type
// lookup, RED splitting, and C3 insertion, updating C4 arrival stats.
func (inst *Instance) RecIn(buf []byte, receiveTimestamp uint32) neteqerr.Code {
	pkt, code := rtp.Parse(buf)
	if code != 0 {
		return inst.fail(code)
	}

	desc, lookupCode := inst.codecs.LookupByPayload(pkt.PayloadType)
	if lookupCode != 0 {
		return inst.fail(neteqerr.UnknownPayload)
	}

	if desc.Kind == codec.KindRED {
		blocks, splitCode := redsplit.Split(pkt.Payload, pkt.Timestamp)
		if splitCode != 0 {
			return inst.fail(splitCode)
		}
		for _, b := range blocks {
			if err := inst.insertOne(b.PayloadType, pkt.SequenceNumber, b.Timestamp, pkt.SSRC, pkt.Marker, b.Payload, receiveTimestamp); err != 0 {
				return inst.fail(err)
			}
		}
		return 0
	}

	if err := inst.insertOne(pkt.PayloadType, pkt.SequenceNumber, pkt.Timestamp, pkt.SSRC, pkt.Marker, pkt.Payload, receiveTimestamp); err != 0 {
		return inst.fail(err)
	}
	return 0
}

func (inst *Instance) insertOne(pt uint8, seq uint16, ts, ssrc uint32, marker bool, payload []byte, receiveTimestamp uint32) neteqerr.Code {
	desc, lookupCode := inst.codecs.LookupByPayload(pt)
	if lookupCode != 0 {
		return neteqerr.UnknownPayload
	}

	if inst.dspEng != nil && inst.dspEng.Sync.Available() > 0 {
		lastEmitted := inst.nextExpectedTS
		if inst.haveNextExpected && rtp.TimestampBefore(ts, lastEmitted) {
			if desc.Funcs.AddLatePkt != nil {
				desc.Funcs.AddLatePkt(desc.State, payload)
				return 0
			}
			return neteqerr.BufferInsertError
		}
	}

	code := inst.packets.Insert(packetbuffer.Packet{
		PayloadType:    pt,
		SequenceNumber: seq,
		Timestamp:      ts,
		SSRC:           ssrc,
		Marker:         marker,
		Payload:        payload,
	}, int64(receiveTimestamp))
	if code != 0 {
		// Duplicate/overflow are normal discard events, not fatal.
		return 0
	}

	if inst.stats != nil {
		inst.stats.Update(ts, receiveTimestamp, seq)
	}
	return 0
}

// RecOut produces one 10ms tick of PCM into dst (must hold samplesPerCall
// int16 samples), driving C5's decision and C6's execution.
func (inst *Instance) RecOut(dst []int16) neteqerr.Code {
	if inst.dspEng == nil {
		return inst.fail(neteqerr.NotInitialized)
	}
	if len(dst) < inst.samplesPerCall {
		return inst.fail(neteqerr.SampleUnderrun)
	}

	idx, hasNext := inst.packets.PeekNext()
	var peeked packetbuffer.Packet
	if hasNext {
		peeked, hasNext = inst.packets.Peek(idx)
	}

	in := automode.Inputs{
		BufferOccupancySamples: inst.dspEng.Sync.Available(),
		PacketSpeechLenSamples: inst.samplesPerCall,
		LastDecision:           inst.dspEng.LastMode(),
		Mode:                   inst.playoutMode,
		SyncBufferUnderrun:     inst.dspEng.Sync.Available() == 0,
	}
	if inst.stats != nil {
		in.TargetLevelQ8 = inst.stats.OptimalBufferLevelQ8()
	} else {
		in.TargetLevelQ8 = 1 << 8
	}

	if hasNext {
		in.NextPacketAvailable = true
		desc, lookupCode := inst.codecs.LookupByPayload(peeked.PayloadType)
		if lookupCode == 0 {
			in.NextPacketIsCNG = desc.Kind == codec.KindCNG
		}
		if inst.haveNextExpected {
			in.NextPacketIsContinuation = peeked.Timestamp == inst.nextExpectedTS
			if !in.NextPacketIsContinuation && rtp.TimestampBefore(inst.nextExpectedTS, peeked.Timestamp) {
				gap := int64(peeked.Timestamp) - int64(inst.nextExpectedTS)
				in.NextPacketAheadUnits = int(gap / int64(inst.samplesPerCall))
			}
		} else {
			in.NextPacketIsContinuation = true
		}
	}

	decision, code := automode.Decide(in)
	if code != 0 {
		return inst.fail(code)
	}

	// Only take the peeked packet out of C3 once the decision is known to
	// actually consume it. DecisionExpand's concealment path runs off
	// history, not the live packet, so it never reads pkt.Payload — a
	// packet that's merely ahead of the merge window must stay buffered
	// for a later tick instead of being discarded here.
	consumed := hasNext && decision != automode.DecisionExpand

	var pkt packetbuffer.Packet
	if consumed {
		var extractCode neteqerr.Code
		pkt, extractCode = inst.packets.Extract(idx)
		if extractCode != 0 {
			consumed = false
		}
	}

	// desc stays nil whenever no packet was consumed this tick: there is no
	// payload to decode either way, and execNormal's drain branch (and
	// execExpand) both key off dec==nil rather than a stale codec handle.
	var desc *dsp.Decoder
	if consumed {
		d, lookupCode := inst.codecs.LookupByPayload(pkt.PayloadType)
		if lookupCode == 0 {
			desc = &dsp.Decoder{Descriptor: d}
			inst.currentPT = pkt.PayloadType
			inst.currentKind = d.Kind
		}
	}

	result, execCode := inst.dspEng.Execute(decision, desc, pkt.Payload, inst.samplesPerCall)
	if execCode != 0 {
		return inst.fail(execCode)
	}

	copy(dst, result.PCM)
	if consumed {
		// Advance by the actual decoded span, not samplesPerCall: a frame
		// larger than one call quantum (G.711's 160 samples against 80-
		// sample calls) leaves extra audio sitting in the sync buffer, and
		// the next packet's timestamp must be compared against where that
		// audio actually ends, not where this single call stopped reading.
		advance := result.FrameSamples
		if advance <= 0 {
			advance = inst.samplesPerCall
		}
		inst.nextExpectedTS = pkt.Timestamp + uint32(advance)
		inst.haveNextExpected = true
		inst.dspEng.SetVideoSyncTimestamp(pkt.Timestamp)
	}
	inst.lastErrorCode = 0
	return 0
}

// SetPlayoutMode configures the On/Off/Fax/Streaming override automode
// applies to its decision chain.
func (inst *Instance) SetPlayoutMode(mode automode.PlayoutMode) { inst.playoutMode = mode }

// SetRole assigns master/slave timing-share role; switching role without
// a subsequent Init fails with IllegalMasterSlaveSwitch.
func (inst *Instance) SetRole(role Role) neteqerr.Code {
	if inst.role != RoleStandalone && inst.role != role && inst.fs != 0 {
		return inst.fail(neteqerr.IllegalMasterSlaveSwitch)
	}
	inst.role = role
	return 0
}

// RecOutMasterSlave produces PCM for a slave instance using a master's
// already-decided MSInfo instead of running its own automode decision,
// per spec.md §4.7's shared-timing contract. The host must call the
// master's RecOut first within the same tick.
func (inst *Instance) RecOutMasterSlave(dst []int16, ms MSInfo) neteqerr.Code {
	if inst.role != RoleSlave {
		return inst.fail(neteqerr.MasterSlaveError)
	}
	if inst.dspEng == nil {
		return inst.fail(neteqerr.NotInitialized)
	}
	if len(dst) < ms.SamplesPerCall {
		return inst.fail(neteqerr.SampleUnderrun)
	}

	idx, hasNext := inst.packets.PeekNext()
	var pkt packetbuffer.Packet
	if hasNext {
		var extractCode neteqerr.Code
		pkt, extractCode = inst.packets.Extract(idx)
		hasNext = extractCode == 0
	}

	// As in RecOut, desc stays nil with no packet in hand: there is no
	// payload to decode, and a stale codec handle would only make
	// execNormal attempt (and fail) a decode instead of draining the sync
	// buffer or falling through to concealment.
	var desc *dsp.Decoder
	if hasNext {
		if d, lookupCode := inst.codecs.LookupByPayload(pkt.PayloadType); lookupCode == 0 {
			desc = &dsp.Decoder{Descriptor: d}
			inst.currentPT = pkt.PayloadType
			inst.currentKind = d.Kind
		}
	}

	result, execCode := inst.dspEng.Execute(ms.Decision, desc, pkt.Payload, ms.SamplesPerCall)
	if execCode != 0 {
		return inst.fail(execCode)
	}
	copy(dst, result.PCM)
	inst.lastErrorCode = 0
	return 0
}

// NumPacketsBuffered reports C3 occupancy, for host introspection/stats.
func (inst *Instance) NumPacketsBuffered() int {
	if inst.packets == nil {
		return 0
	}
	return inst.packets.NumPacketsBuffered()
}

// BufferStats returns the packet buffer's discard counters.
func (inst *Instance) BufferStats() packetbuffer.Stats { return inst.packets.Stats() }

// ArrivalStats returns the RFC 3550 jitter/loss tracker, or nil before
// Init.
func (inst *Instance) ArrivalStats() *arrival.Stats { return inst.stats }

// LastOutputType reports how the most recent RecOut frame was produced
// (real decode, drain, concealment, or comfort noise), for hosts and tests
// that need to distinguish genuine speech continuity from PLC.
func (inst *Instance) LastOutputType() dsp.OutputType {
	if inst.dspEng == nil {
		return dsp.OutputNormalSpeech
	}
	return inst.dspEng.LastOutputType()
}
