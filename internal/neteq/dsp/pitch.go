package dsp

// Pitch search bounds in milliseconds; FindPitchPeriod converts them to
// samples at the given sample rate. spec.md §4.6: "pitch search in [2.5 ms, 15 ms]".
const (
	minLagMS = 2.5
	maxLagMS = 15.0
)

// FindPitchPeriod locates the best autocorrelation peak in pcm within
// [2.5ms, 15ms] at the given sample rate, for Accelerate/PreemptiveExpand
// splice points and Expand's extrapolation lag.
func FindPitchPeriod(pcm []int16, sampleRate int) int {
	minLag := int(minLagMS * float64(sampleRate) / 1000)
	maxLag := int(maxLagMS * float64(sampleRate) / 1000)
	if minLag < 1 {
		minLag = 1
	}
	if maxLag >= len(pcm) {
		maxLag = len(pcm) - 1
	}
	if maxLag <= minLag {
		return minLag
	}

	bestLag := minLag
	var bestCorr int64 = -1 << 62
	for lag := minLag; lag <= maxLag; lag++ {
		var corr int64
		for i := lag; i < len(pcm); i++ {
			corr += int64(pcm[i]) * int64(pcm[i-lag])
		}
		if corr > bestCorr {
			bestCorr = corr
			bestLag = lag
		}
	}
	return bestLag
}

// crossFade blends a into b over len(out) samples with a linear ramp,
// used at accelerate/preemptive-expand/merge splice seams.
func crossFade(a, b []int16, out []int16) {
	n := len(out)
	for i := 0; i < n; i++ {
		var av, bv int32
		if i < len(a) {
			av = int32(a[i])
		}
		if i < len(b) {
			bv = int32(b[i])
		}
		wB := int32(i+1) * 32768 / int32(n+1)
		wA := 32768 - wB
		out[i] = int16((av*wA + bv*wB) >> 15)
	}
}
