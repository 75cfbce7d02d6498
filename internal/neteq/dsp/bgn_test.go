package dsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewBGNStateDefaults(t *testing.T) {
	b := NewBGNState()
	assert.Equal(t, BGNOn, b.Mode)
	assert.Equal(t, int32(400), b.energyThreshold)
}

func TestUpdateIgnoresEmptyFrame(t *testing.T) {
	b := NewBGNState()
	before := b.energyThreshold
	b.Update(nil)
	assert.Equal(t, before, b.energyThreshold)
}

func TestUpdateLoudFrameSkipsLPCFit(t *testing.T) {
	b := NewBGNState()
	loud := make([]int16, 160)
	for i := range loud {
		loud[i] = 20000
	}
	b.Update(loud)
	assert.Equal(t, int32(0), b.excitationRMS, "a loud frame must not be absorbed into the noise model")
}

func TestUpdateQuietFrameFitsModel(t *testing.T) {
	b := NewBGNState()
	quiet := make([]int16, 160)
	for i := range quiet {
		if i%2 == 0 {
			quiet[i] = 5
		} else {
			quiet[i] = -5
		}
	}
	// Repeated quiet frames let the adaptive threshold settle near the
	// frame's own energy so it's eventually accepted as a fit source.
	for i := 0; i < 50; i++ {
		b.Update(quiet)
	}
	assert.Greater(t, b.excitationRMS, int32(0))
}

func TestGenerateProducesBoundedSamples(t *testing.T) {
	b := NewBGNState()
	seed := uint64(42)
	out := b.Generate(160, &seed)
	assert.Len(t, out, 160)
	for _, v := range out {
		assert.GreaterOrEqual(t, v, int16(-32768))
	}
}

func TestGenerateAdvancesSeed(t *testing.T) {
	b := NewBGNState()
	seed := uint64(1)
	orig := seed
	b.Generate(80, &seed)
	assert.NotEqual(t, orig, seed)
}

func TestIsqrt(t *testing.T) {
	assert.Equal(t, int64(0), isqrt(0))
	assert.Equal(t, int64(0), isqrt(-5))
	assert.Equal(t, int64(4), isqrt(16))
	assert.Equal(t, int64(10), isqrt(100))
}
