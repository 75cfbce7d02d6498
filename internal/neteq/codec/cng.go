package codec

import "math/rand/v2"

// cngState holds the RFC 3389 comfort-noise generator's spectral
// envelope, refreshed from each CN payload (SID frame).
type cngState struct {
	energyQ0  uint8
	reflCoefs []uint8
}

// NewCNGState creates decoder state for an RFC 3389 CNG descriptor.
func NewCNGState() any { return &cngState{} }

// decodeCNG treats payload as a SID frame: byte 0 is quantized energy,
// the rest are quantized reflection coefficients (RFC 3389 §3). It
// produces one frame of white noise scaled by the envelope's energy. No
// LPC synthesis is done: the reflection coefficients are stored but do
// not shape the output.
func decodeCNG(state any, payload []byte, pcmOut []int16) int {
	s, _ := state.(*cngState)
	if s == nil || len(payload) == 0 {
		return 0
	}
	s.energyQ0 = payload[0]
	if len(payload) > 1 {
		s.reflCoefs = append(s.reflCoefs[:0], payload[1:]...)
	}

	amplitude := int32(s.energyQ0) * 8
	if amplitude > 32767 {
		amplitude = 32767
	}
	for i := range pcmOut {
		pcmOut[i] = int16(rand.IntN(int(2*amplitude+1)) - int(amplitude))
	}
	return len(pcmOut)
}

// Envelope exposes the last decoded SID frame's energy and reflection
// coefficients. Nothing in the DSP engine reads it.
func Envelope(state any) (energyQ0 uint8, reflCoefs []uint8) {
	s, _ := state.(*cngState)
	if s == nil {
		return 0, nil
	}
	return s.energyQ0, s.reflCoefs
}

// CNGFuncTable returns the capability table for registering RFC 3389 CNG.
func CNGFuncTable() FuncTable { return FuncTable{Decode: decodeCNG} }
