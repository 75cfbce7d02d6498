// Package codec implements the NetEQ codec registry (spec.md §4.2): a
// mapping from RTP payload type to a registered decoder descriptor.
//
// Grounded on the teacher's payload-type handling in
// internal/media/relay.go (PayloadPCMU/PayloadPCMA/PayloadOpus constants,
// rtpPayloadType masking) and its G.711 codec tables in
// internal/media/mixer.go, generalized here into a capability table per
// spec.md §9's "function-pointer tables become a capability abstraction"
// design note: each decoder supplies only the callbacks it implements,
// represented as explicit absence (nil) rather than a universal
// interface every codec must fully satisfy.
package codec

import "github.com/flowpbx/neteq/internal/neteq/neteqerr"

// Kind identifies a codec family. The engine treats unknown kinds as
// opaque as long as a FuncTable is supplied; Kind only participates in the
// "at most one descriptor per kind" invariant and diagnostics.
type Kind int

const (
	KindUnknown Kind = iota
	KindPCMU
	KindPCMA
	KindG722
	KindILBC
	KindISAC
	KindOpus
	KindCNG
	KindRED
	KindDTMF
)

func (k Kind) String() string {
	switch k {
	case KindPCMU:
		return "PCMU"
	case KindPCMA:
		return "PCMA"
	case KindG722:
		return "G722"
	case KindILBC:
		return "ILBC"
	case KindISAC:
		return "ISAC"
	case KindOpus:
		return "Opus"
	case KindCNG:
		return "CNG"
	case KindRED:
		return "RED"
	case KindDTMF:
		return "DTMF"
	default:
		return "Unknown"
	}
}

// DecodeResult pairs a PCM sample count with an error. The FuncTable
// callbacks do not return it: they return a plain int sample count.
type DecodeResult struct {
	Samples int
	Err     error
}

// FuncTable is the capability table a registered codec supplies. Only
// Decode is mandatory; every other entry may be nil, and callers must
// check before invoking — this is the "explicit absence, not null
// function pointers" design spec.md §9 calls for.
type FuncTable struct {
	// Decode decodes one encoded frame from payload into pcmOut, returning
	// the number of samples written or a negative error.
	Decode func(state any, payload []byte, pcmOut []int16) int

	// DecodeRCU decodes the "redundant coding unit" variant some codecs
	// (iSAC) support for the RED secondary payload.
	DecodeRCU func(state any, payload []byte, pcmOut []int16) int

	// DecodePLC synthesizes one concealment frame with no input payload.
	DecodePLC func(state any, pcmOut []int16) int

	// DecodeInit (re)initializes decoder state, e.g. after a discontinuity.
	DecodeInit func(state any)

	// AddLatePkt feeds a late-arriving packet directly to the decoder
	// instead of the packet buffer (spec.md §4.3 late-arrival policy).
	AddLatePkt func(state any, payload []byte)

	// GetMDInfo reports whether the last decode produced "mostly dominant"
	// (music/DTX-relevant) content; nil if the codec doesn't report this.
	GetMDInfo func(state any) bool

	// GetPitch reports the last-estimated pitch period in samples.
	GetPitch func(state any) int

	// UpdateBWEst feeds receiver-side bandwidth estimation hints back to
	// variable-rate codecs.
	UpdateBWEst func(state any, payload []byte, rtpTimestamp uint32)

	// GetErrorCode returns the codec-specific error after a negative
	// Decode/DecodeRCU/DecodePLC return.
	GetErrorCode func(state any) int
}

// Descriptor is a registered codec's full record (spec.md §3 "Codec
// descriptor").
type Descriptor struct {
	Kind        Kind
	PayloadType uint8
	SampleRate  int // 8000, 16000, 32000, or 48000
	Funcs       FuncTable
	State       any
}

// Registry is the codec payload-type → descriptor table (C2). MaxEntries
// bounds the table the way spec.md's "total descriptors ≤ configured max"
// invariant requires; the backing array is sized once at construction, no
// further allocation happens on Add/Remove.
type Registry struct {
	slots    []Descriptor
	used     []bool
	byPT     map[uint8]int // payload type -> slot index
	maxUsed  int
}

// NewRegistry creates a registry with room for maxEntries descriptors.
func NewRegistry(maxEntries int) *Registry {
	return &Registry{
		slots: make([]Descriptor, maxEntries),
		used:  make([]bool, maxEntries),
		byPT:  make(map[uint8]int, maxEntries),
	}
}

// Add registers a codec at the given payload type. Fails with
// CodecDbPayloadTaken if pt is already mapped, CodecDbKindTaken if kind
// is already registered under a different payload type, CodecDbFull if
// the table has no free slot, CodecDbUnsupportedCodec if kind is
// KindUnknown. spec.md §3's "at most one descriptor per codec kind"
// invariant is what makes LookupByKind and Remove(kind) unambiguous.
func (r *Registry) Add(kind Kind, pt uint8, funcs FuncTable, state any, sampleRate int) neteqerr.Code {
	if kind == KindUnknown {
		return neteqerr.CodecDBUnsupportedCodec
	}
	if funcs.Decode == nil {
		return neteqerr.CodecDBUnsupportedCodec
	}
	if _, exists := r.byPT[pt]; exists {
		return neteqerr.CodecDBPayloadTaken
	}
	for i, u := range r.used {
		if u && r.slots[i].Kind == kind {
			return neteqerr.CodecDBKindTaken
		}
	}
	slot := -1
	for i, u := range r.used {
		if !u {
			slot = i
			break
		}
	}
	if slot == -1 {
		return neteqerr.CodecDBFull
	}
	r.slots[slot] = Descriptor{Kind: kind, PayloadType: pt, SampleRate: sampleRate, Funcs: funcs, State: state}
	r.used[slot] = true
	r.byPT[pt] = slot
	return 0
}

// Remove clears the slot registered for kind, if any. A no-op (not an
// error) if kind isn't currently registered; callers that need to assert
// existence should check LookupByKind first.
func (r *Registry) Remove(kind Kind) {
	for i, u := range r.used {
		if u && r.slots[i].Kind == kind {
			delete(r.byPT, r.slots[i].PayloadType)
			r.slots[i] = Descriptor{}
			r.used[i] = false
			return
		}
	}
}

// LookupByPayload returns the descriptor registered for pt.
func (r *Registry) LookupByPayload(pt uint8) (Descriptor, neteqerr.Code) {
	i, ok := r.byPT[pt]
	if !ok {
		return Descriptor{}, neteqerr.CodecDBNotExist
	}
	return r.slots[i], 0
}

// LookupByKind returns the descriptor registered for kind.
func (r *Registry) LookupByKind(kind Kind) (Descriptor, neteqerr.Code) {
	for i, u := range r.used {
		if u && r.slots[i].Kind == kind {
			return r.slots[i], 0
		}
	}
	return Descriptor{}, neteqerr.CodecDBNotExist
}

// SizeInfo returns (used, max) slot counts.
func (r *Registry) SizeInfo() (used, max int) {
	for _, u := range r.used {
		if u {
			used++
		}
	}
	return used, len(r.slots)
}

// GetByIndex enumerates registered kinds by slot index, for host-side
// introspection. ok is false if the slot is empty or out of range.
func (r *Registry) GetByIndex(i int) (Kind, bool) {
	if i < 0 || i >= len(r.slots) || !r.used[i] {
		return KindUnknown, false
	}
	return r.slots[i].Kind, true
}
