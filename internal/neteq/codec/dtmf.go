package codec

import "github.com/flowpbx/neteq/internal/neteq/rtp"

// dtmfState holds the most recently parsed RFC 4733 telephone-event.
type dtmfState struct {
	last rtp.DTMFEvent
	got  bool
}

// NewDTMFState creates decoder state for an RFC 4733 telephone-event
// payload type.
func NewDTMFState() any { return &dtmfState{} }

// decodeDTMF parses the telephone-event payload and records it; DTMF
// events carry no PCM of their own; the host renders (or suppresses) an
// audible tone out-of-band using LastDTMFEvent, matching spec.md §6's
// "DTMF telephone-events ... are routed to the DTMF decoder" without
// requiring the core to synthesize tone PCM.
func decodeDTMF(state any, payload []byte, _ []int16) int {
	s, _ := state.(*dtmfState)
	if s == nil {
		return 0
	}
	ev, ok := rtp.ParseDTMFEvent(payload)
	if !ok {
		return 0
	}
	s.last = ev
	s.got = true
	return 0
}

// LastDTMFEvent returns the most recently decoded telephone-event.
func LastDTMFEvent(state any) (rtp.DTMFEvent, bool) {
	s, _ := state.(*dtmfState)
	if s == nil {
		return rtp.DTMFEvent{}, false
	}
	return s.last, s.got
}

// DTMFFuncTable returns the capability table for registering RFC 4733
// telephone-event payloads.
func DTMFFuncTable() FuncTable { return FuncTable{Decode: decodeDTMF} }
