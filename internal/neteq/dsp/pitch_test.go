package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sineWave(n int, period float64) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(8000 * math.Sin(2*math.Pi*float64(i)/period))
	}
	return out
}

func TestFindPitchPeriodLocksOntoKnownPeriod(t *testing.T) {
	const sampleRate = 8000
	const period = 40 // 5ms, inside [2.5ms,15ms] at 8kHz
	pcm := sineWave(400, period)
	lag := FindPitchPeriod(pcm, sampleRate)
	assert.InDelta(t, period, lag, 3)
}

func TestFindPitchPeriodBoundedByLagRange(t *testing.T) {
	pcm := sineWave(400, 40)
	lag := FindPitchPeriod(pcm, 8000)
	assert.GreaterOrEqual(t, lag, 20) // 2.5ms @ 8kHz
	assert.LessOrEqual(t, lag, 120)   // 15ms @ 8kHz
}

func TestFindPitchPeriodShortBufferFallsBackToMinLag(t *testing.T) {
	pcm := make([]int16, 5)
	lag := FindPitchPeriod(pcm, 8000)
	require.GreaterOrEqual(t, lag, 1)
}

func TestCrossFadeEndpoints(t *testing.T) {
	a := []int16{100, 100, 100, 100}
	b := []int16{200, 200, 200, 200}
	out := make([]int16, 4)
	crossFade(a, b, out)

	assert.InDelta(t, 100, out[0], 30, "start of the ramp should favor a")
	assert.InDelta(t, 200, out[len(out)-1], 30, "end of the ramp should favor b")
	for i := 1; i < len(out); i++ {
		assert.GreaterOrEqual(t, out[i], out[i-1])
	}
}
