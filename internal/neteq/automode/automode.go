// Package automode implements the BufStat/Automode decision engine
// (spec.md §4.5): the priority-ordered rule chain that picks the next
// playout action given buffer occupancy, target delay, last action, and
// DSP hints.
//
// Grounded on the teacher's call-admission/routing decision chain in
// internal/flow (ordered if/else policy evaluation with a terminal
// default) and spec.md §9's note to avoid modeling each branch as a
// separate object — this is a single function walking an explicit
// priority list, matching both the teacher's style and the C original's
// flat decision tree.
package automode

import "github.com/flowpbx/neteq/internal/neteq/neteqerr"

// Decision is the action BufStat selects for one RecOut call.
type Decision int

const (
	DecisionNormal Decision = iota
	DecisionExpand
	DecisionAccelerate
	DecisionFastAccelerate
	DecisionPreemptiveExpand
	DecisionMerge
	DecisionRFC3389CNG
)

func (d Decision) String() string {
	switch d {
	case DecisionNormal:
		return "Normal"
	case DecisionExpand:
		return "Expand"
	case DecisionAccelerate:
		return "Accelerate"
	case DecisionFastAccelerate:
		return "FastAccelerate"
	case DecisionPreemptiveExpand:
		return "PreemptiveExpand"
	case DecisionMerge:
		return "Merge"
	case DecisionRFC3389CNG:
		return "RFC3389CNG"
	default:
		return "Unknown"
	}
}

// PlayoutMode configures the overrides spec.md §4.5 describes: Off
// disables PLC stretching, Fax suppresses accelerate, Streaming raises
// the effective target and biases against expand.
type PlayoutMode int

const (
	PlayoutOn PlayoutMode = iota
	PlayoutOff
	PlayoutFax
	PlayoutStreaming
)

// highWatermarkPackets and lowWatermarkPackets are expressed as a multiple
// of packet length, matching spec.md §4.5's "≈ 2× packet len" / low
// watermark language.
const (
	highWatermarkPackets = 2.0
	lowWatermarkPackets  = 0.5
	mergeThresholdUnits  = 1
)

// Inputs bundles the per-tick state BufStat's decision reads.
type Inputs struct {
	BufferOccupancySamples int
	TargetLevelQ8          uint32 // packets, Q8 fixed-point
	PacketSpeechLenSamples int

	LastDecision Decision

	NextPacketAvailable  bool
	NextPacketIsCNG      bool
	NextPacketIsContinuation bool
	NextPacketAheadUnits int // 0 if continuation; units of packet length otherwise

	SyncBufferUnderrun bool
	CodecInternalCNG   bool

	Mode PlayoutMode
}

// Decide applies the nine-step priority-ordered rule chain (spec.md
// §4.5's rules plus the sync-buffer drain rule at step 8) and returns the
// selected action.
func Decide(in Inputs) (Decision, neteqerr.Code) {
	if in.PacketSpeechLenSamples <= 0 {
		return 0, neteqerr.UnknownBufStatDecision
	}

	targetSamples := (int64(in.TargetLevelQ8) * int64(in.PacketSpeechLenSamples)) >> 8
	if in.Mode == PlayoutStreaming {
		targetSamples = targetSamples + targetSamples/2
	}

	high := targetSamples + int64(float64(in.PacketSpeechLenSamples)*highWatermarkPackets)
	low := targetSamples - int64(float64(in.PacketSpeechLenSamples)*lowWatermarkPackets)

	occ := int64(in.BufferOccupancySamples)

	// 1. Empty buffer, sync-buffer underrun, and nothing available to
	// decode. If a packet is available it always takes priority here:
	// only Normal/Accelerate/PreemptiveExpand/Merge ever refill the sync
	// buffer, so deciding Expand while a packet is sitting in C3 would
	// leave the buffer empty forever.
	if occ == 0 && in.SyncBufferUnderrun && !in.NextPacketAvailable {
		return DecisionExpand, 0
	}

	// 2. Next packet is RFC 3389 comfort noise.
	if in.NextPacketAvailable && in.NextPacketIsCNG {
		return DecisionRFC3389CNG, 0
	}

	// 3. Occupancy far above target and not already accelerating.
	if in.Mode != PlayoutFax && occ > high && in.LastDecision != DecisionAccelerate {
		return DecisionAccelerate, 0
	}

	// 4. Occupancy above target (lower bar) while already stretched.
	if in.Mode != PlayoutFax && occ > targetSamples+int64(float64(in.PacketSpeechLenSamples)*lowWatermarkPackets) &&
		(in.LastDecision == DecisionAccelerate || in.LastDecision == DecisionFastAccelerate) {
		return DecisionFastAccelerate, 0
	}

	// 5. Occupancy below target and a packet is available to stretch.
	if occ < low && in.NextPacketAvailable {
		if in.Mode == PlayoutOff {
			return DecisionNormal, 0
		}
		return DecisionPreemptiveExpand, 0
	}

	// 6. Next packet continues the stream with no gap.
	if in.NextPacketAvailable && in.NextPacketIsContinuation {
		return DecisionNormal, 0
	}

	// 7. Next packet is ahead but within the merge threshold.
	if in.NextPacketAvailable && in.NextPacketAheadUnits > 0 && in.NextPacketAheadUnits < mergeThresholdUnits+1 {
		return DecisionMerge, 0
	}

	// 8. No new packet to act on, but the sync buffer still holds at least
	// one call's worth of real decoded audio from an earlier Normal/
	// Accelerate/PreemptiveExpand/Merge execution: drain it before ever
	// conceal, so genuine speech already in hand is never stranded behind
	// a codec frame size larger than one call quantum (e.g. a 160-sample
	// G.711 frame feeding 80-sample calls).
	if !in.NextPacketAvailable && occ >= int64(in.PacketSpeechLenSamples) {
		return DecisionNormal, 0
	}

	// 9. Default: conceal the gap.
	if in.Mode == PlayoutOff {
		return DecisionNormal, 0
	}
	return DecisionExpand, 0
}
