package dsp

import (
	"github.com/flowpbx/neteq/internal/neteq/automode"
	"github.com/flowpbx/neteq/internal/neteq/codec"
	"github.com/flowpbx/neteq/internal/neteq/neteqerr"
)

// OutputType is the observable classification spec.md §4.6 requires.
type OutputType int

const (
	OutputNormalSpeech OutputType = iota
	OutputPLC
	OutputCNG
	OutputPLCtoCNG
	OutputVADPassive
)

func (o OutputType) String() string {
	switch o {
	case OutputPLC:
		return "PLC"
	case OutputCNG:
		return "CNG"
	case OutputPLCtoCNG:
		return "PLCtoCNG"
	case OutputVADPassive:
		return "VADPassive"
	default:
		return "NormalSpeech"
	}
}

// Engine is the DSP Mode Engine (C6): it executes BufStat's chosen
// action, owning the sync buffer, expand state, and BGN model.
type Engine struct {
	SampleRate int

	Sync   *SyncBuffer
	Expand *ExpandState
	BGN    *BGNState

	lastMode       automode.Decision
	lastOutputType OutputType
	randSeed       uint64

	videoSyncTimestamp uint32
}

// NewEngine creates a DSP engine for the given sample rate and
// samples-per-call quantum (sync buffer sized for one frame plus
// overlap, per spec.md §3).
func NewEngine(sampleRate, samplesPerCall int) *Engine {
	capacity := samplesPerCall*3 + sampleRate/100 // headroom for overlap
	return &Engine{
		SampleRate: sampleRate,
		Sync:       NewSyncBuffer(capacity),
		Expand:     NewExpandState(0x1234567890ABCDEF),
		BGN:        NewBGNState(),
	}
}

// Reset clears all DSP run-state, for FlushBuffers/Init.
func (e *Engine) Reset() {
	e.Sync.Reset()
	e.Expand.Reset()
	e.BGN = NewBGNState()
	e.lastMode = automode.DecisionNormal
	e.videoSyncTimestamp = 0
}

// Decoder is the subset of a codec.Descriptor's FuncTable the DSP engine
// invokes directly; passed in by the engine facade per RecOut call so
// this package stays decoupled from the registry's lookup mechanics.
type Decoder struct {
	Descriptor codec.Descriptor
}

// Result is what one RecOut execution produces.
type Result struct {
	PCM        []int16
	OutputType OutputType

	// FrameSamples is the RTP-timestamp span of decoded audio this call
	// added to history (the full decoded frame length, not the n samples
	// popped out this tick). Zero when no packet was decoded. The facade
	// uses it to advance its "next expected timestamp" by the actual
	// decoded span instead of samples_per_call, so a frame larger than one
	// call quantum (e.g. 160-sample G.711 against 80-sample calls) doesn't
	// make every other tick look like a gap.
	FrameSamples int
}

// Execute runs the action BufStat selected, pulling from dec (nil if no
// packet / no active codec) and filling exactly n output samples,
// matching spec.md §4.6's "Emit exactly samples_per_call samples
// regardless; excess goes to the sync buffer."
func (e *Engine) Execute(decision automode.Decision, dec *Decoder, payload []byte, n int) (Result, neteqerr.Code) {
	defer func() { e.lastMode = decision }()

	var result Result
	var code neteqerr.Code
	switch decision {
	case automode.DecisionNormal:
		result, code = e.execNormal(dec, payload, n)
	case automode.DecisionAccelerate, automode.DecisionFastAccelerate:
		result, code = e.execAccelerate(dec, payload, n)
	case automode.DecisionPreemptiveExpand:
		result, code = e.execPreemptive(dec, payload, n)
	case automode.DecisionMerge:
		result, code = e.execMerge(dec, payload, n)
	case automode.DecisionRFC3389CNG:
		result, code = e.execCNG(dec, payload, n)
	case automode.DecisionExpand:
		result, code = e.execExpand(n)
	default:
		return Result{}, neteqerr.UnknownBufStatDecision
	}
	if code == 0 {
		e.lastOutputType = result.OutputType
	}
	return result, code
}

// LastOutputType returns the classification of the most recently produced
// frame, for hosts that need to distinguish real speech from concealment.
func (e *Engine) LastOutputType() OutputType { return e.lastOutputType }

func (e *Engine) decode(dec *Decoder, payload []byte) ([]int16, neteqerr.Code) {
	if dec == nil || dec.Descriptor.Funcs.Decode == nil {
		return nil, neteqerr.DecodingError
	}
	scratch := make([]int16, 2*e.SampleRate/50) // generous scratch: up to 20ms @ 2x oversample headroom
	got := dec.Descriptor.Funcs.Decode(dec.Descriptor.State, payload, scratch)
	if got < 0 {
		return nil, neteqerr.DecodingError
	}
	return scratch[:got], 0
}

// execNormal decodes the next frame, overlap-adds its start against the
// sync buffer's tail, and emits n samples. With no new packet (dec==nil),
// it instead drains real audio a previous call already decoded into the
// sync buffer but couldn't emit in one quantum (automode's occupancy
// drain rule only selects this path when enough is buffered).
func (e *Engine) execNormal(dec *Decoder, payload []byte, n int) (Result, neteqerr.Code) {
	if dec == nil {
		if e.Sync.Available() >= n {
			out := make([]int16, n)
			e.Sync.PopFront(out)
			return Result{PCM: out, OutputType: OutputNormalSpeech}, 0
		}
		return e.fallbackExpand(n), 0
	}

	pcm, code := e.decode(dec, payload)
	if code != 0 {
		return e.fallbackExpand(n), 0
	}
	frameLen := len(pcm)

	overlapLen := 3 * e.SampleRate / 1000 // ~3ms
	if overlapLen > len(pcm) {
		overlapLen = len(pcm)
	}
	tail := e.Sync.Tail(overlapLen)
	if len(tail) > 0 && overlapLen > 0 {
		blended := make([]int16, overlapLen)
		crossFade(tail, pcm[:overlapLen], blended)
		e.Sync.PushBack(blended)
		e.Sync.PushBack(pcm[overlapLen:])
	} else {
		e.Sync.PushBack(pcm)
	}

	e.Expand.FeedHistory(pcm)
	e.Expand.Reset()
	e.BGN.Update(pcm)
	if lag := FindPitchPeriod(pcm, e.SampleRate); lag > 0 {
		e.Expand.LagSamples = lag
	}

	out := make([]int16, n)
	got := e.Sync.PopFront(out)
	if got < n {
		return e.fallbackExpand(n), 0
	}
	return Result{PCM: out, OutputType: OutputNormalSpeech, FrameSamples: frameLen}, 0
}

// execAccelerate finds the best pitch-period correlation in the decoded
// frame and splices one period out, cross-faded, to compress time while
// still emitting exactly n samples this call.
func (e *Engine) execAccelerate(dec *Decoder, payload []byte, n int) (Result, neteqerr.Code) {
	pcm, code := e.decode(dec, payload)
	if code != 0 {
		return e.fallbackExpand(n), 0
	}
	frameLen := len(pcm)
	lag := FindPitchPeriod(pcm, e.SampleRate)
	if lag > 0 && lag*2 <= len(pcm) {
		spliced := make([]int16, len(pcm)-lag)
		crossFade(pcm[:lag], pcm[lag:2*lag], spliced[:lag])
		copy(spliced[lag:], pcm[2*lag:])
		pcm = spliced
	}
	e.Sync.PushBack(pcm)
	e.Expand.FeedHistory(pcm)
	e.Expand.Reset()

	out := make([]int16, n)
	got := e.Sync.PopFront(out)
	if got < n {
		return e.fallbackExpand(n), 0
	}
	return Result{PCM: out, OutputType: OutputNormalSpeech, FrameSamples: frameLen}, 0
}

// execPreemptive duplicates one pitch period, cross-faded, to stretch
// time and raise buffer occupancy ahead of an anticipated gap.
func (e *Engine) execPreemptive(dec *Decoder, payload []byte, n int) (Result, neteqerr.Code) {
	pcm, code := e.decode(dec, payload)
	if code != 0 {
		return e.fallbackExpand(n), 0
	}
	frameLen := len(pcm)
	lag := FindPitchPeriod(pcm, e.SampleRate)
	if lag > 0 && lag <= len(pcm) {
		dup := make([]int16, lag)
		crossFade(pcm[len(pcm)-lag:], pcm[:lag], dup)
		stretched := make([]int16, 0, len(pcm)+lag)
		stretched = append(stretched, pcm...)
		stretched = append(stretched, dup...)
		pcm = stretched
	}
	e.Sync.PushBack(pcm)
	e.Expand.FeedHistory(pcm)
	e.Expand.Reset()

	out := make([]int16, n)
	got := e.Sync.PopFront(out)
	if got < n {
		return e.fallbackExpand(n), 0
	}
	return Result{PCM: out, OutputType: OutputNormalSpeech, FrameSamples: frameLen}, 0
}

// execMerge cross-fades extrapolated prior audio against the newly
// decoded frame over one pitch period to mask the gap it's bridging.
func (e *Engine) execMerge(dec *Decoder, payload []byte, n int) (Result, neteqerr.Code) {
	pcm, code := e.decode(dec, payload)
	if code != 0 {
		return e.fallbackExpand(n), 0
	}
	frameLen := len(pcm)
	lag := e.Expand.LagSamples
	if lag <= 0 {
		lag = FindPitchPeriod(pcm, e.SampleRate)
	}
	if lag > len(pcm) {
		lag = len(pcm)
	}
	extrapolated, _ := e.Expand.Generate(lag, lag)
	if lag > 0 {
		blended := make([]int16, lag)
		crossFade(extrapolated, pcm[:lag], blended)
		e.Sync.PushBack(blended)
		e.Sync.PushBack(pcm[lag:])
	} else {
		e.Sync.PushBack(pcm)
	}
	e.Expand.FeedHistory(pcm)
	e.Expand.Reset()

	out := make([]int16, n)
	got := e.Sync.PopFront(out)
	if got < n {
		return e.fallbackExpand(n), 0
	}
	return Result{PCM: out, OutputType: OutputNormalSpeech, FrameSamples: frameLen}, 0
}

// execCNG emits one frame via the codec's own CNG decode callback
// (codec-internal or RFC 3389), mixing in the BGN model if the codec
// payload underfills the call quantum.
func (e *Engine) execCNG(dec *Decoder, payload []byte, n int) (Result, neteqerr.Code) {
	pcm, code := e.decode(dec, payload)
	out := make([]int16, n)
	if code == 0 {
		copy(out, pcm)
		if len(pcm) < n {
			fill := e.BGN.Generate(n-len(pcm), &e.randSeed)
			copy(out[len(pcm):], fill)
		}
	} else {
		fill := e.BGN.Generate(n, &e.randSeed)
		copy(out, fill)
	}
	e.Sync.Reset()
	return Result{PCM: out, OutputType: OutputCNG, FrameSamples: n}, 0
}

// execExpand runs packet-loss concealment: a replacement pitch period
// re-synthesized from history, attenuated by a decaying mute factor,
// falling back to BGN-only once the continuous-expand threshold passes.
func (e *Engine) execExpand(n int) (Result, neteqerr.Code) {
	return e.fallbackExpand(n), 0
}

func (e *Engine) fallbackExpand(n int) Result {
	pcm, bgnOnly := e.Expand.Generate(n, 0)
	if bgnOnly {
		return Result{PCM: e.BGN.Generate(n, &e.randSeed), OutputType: OutputPLCtoCNG}
	}
	return Result{PCM: pcm, OutputType: OutputPLC}
}

// LastMode returns the most recently executed decision, for automode's
// "last-mode from C6" input on the next RecOut tick.
func (e *Engine) LastMode() automode.Decision { return e.lastMode }

// VideoSyncTimestamp returns the last RTP timestamp consumed, used by
// hosts pairing audio with a video track.
func (e *Engine) VideoSyncTimestamp() uint32 { return e.videoSyncTimestamp }

// SetVideoSyncTimestamp records the timestamp of the most recently
// decoded audio frame.
func (e *Engine) SetVideoSyncTimestamp(ts uint32) { e.videoSyncTimestamp = ts }
