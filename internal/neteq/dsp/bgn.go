package dsp

// BGNMode is the background-noise model's activity state.
type BGNMode int

const (
	BGNOn BGNMode = iota
	BGNFade
	BGNOff
)

// bgnLPCOrder is the "low-order LPC model" spec.md §4.6 calls for.
const bgnLPCOrder = 4

// BGNState is the background-noise model: an LPC filter fit over recent
// quiet segments plus an excitation energy level, used as the comfort
// noise generator during expand/PLCtoCNG when the active codec doesn't
// supply its own CNG.
type BGNState struct {
	Mode           BGNMode
	lpcCoefsQ12    [bgnLPCOrder]int32
	excitationRMS  int32
	energyThreshold int32
	history        [bgnLPCOrder]int16
}

// NewBGNState creates a BGN model starting in On mode with a
// conservative quiet-energy threshold; Update adapts it from real audio.
func NewBGNState() *BGNState {
	return &BGNState{Mode: BGNOn, energyThreshold: 400}
}

// Update fits the LPC model over pcm if its energy is below the adaptive
// quiet threshold (spec.md: "fit ... over quiet segments (energy below
// adaptive threshold)"), using autocorrelation/Levinson-Durbin.
func (b *BGNState) Update(pcm []int16) {
	if len(pcm) == 0 {
		return
	}
	var energy int64
	for _, v := range pcm {
		energy += int64(v) * int64(v)
	}
	rms := int32(isqrt(energy / int64(len(pcm))))

	// Adaptive threshold: slowly track the quietest recent frames.
	if rms < b.energyThreshold {
		b.energyThreshold += (rms - b.energyThreshold) >> 4
	} else {
		b.energyThreshold += (rms - b.energyThreshold) >> 7
	}
	if b.energyThreshold < 50 {
		b.energyThreshold = 50
	}

	if rms > b.energyThreshold {
		return // not a quiet segment; don't pollute the noise model
	}

	coefs := levinsonDurbin(pcm, bgnLPCOrder)
	for i := range b.lpcCoefsQ12 {
		b.lpcCoefsQ12[i] = int32(coefs[i] * (1 << 12))
	}
	b.excitationRMS = rms
	if len(pcm) >= bgnLPCOrder {
		copy(b.history[:], pcm[len(pcm)-bgnLPCOrder:])
	}
}

// Generate synthesizes n samples of comfort noise by exciting the fitted
// LPC filter with scaled white noise, the excitation energy carried over
// from the last quiet segment seen by Update.
func (b *BGNState) Generate(n int, randSeed *uint64) []int16 {
	out := make([]int16, n)
	state := b.history
	amp := b.excitationRMS
	if amp == 0 {
		amp = 30
	}
	seed := *randSeed
	for i := 0; i < n; i++ {
		seed = seed*6364136223846793005 + 1442695040888963407
		noise := int32(int16(seed>>48)) % (amp + 1)

		var pred int64
		for k := 0; k < bgnLPCOrder; k++ {
			pred += int64(b.lpcCoefsQ12[k]) * int64(state[bgnLPCOrder-1-k])
		}
		sample := int32(pred>>12) + noise
		if sample > 32767 {
			sample = 32767
		} else if sample < -32768 {
			sample = -32768
		}
		out[i] = int16(sample)
		copy(state[:], state[1:])
		state[bgnLPCOrder-1] = out[i]
	}
	*randSeed = seed
	return out
}

// levinsonDurbin computes order LPC coefficients from pcm via the
// standard autocorrelation method.
func levinsonDurbin(pcm []int16, order int) []float64 {
	autoc := make([]float64, order+1)
	for lag := 0; lag <= order; lag++ {
		var sum float64
		for i := lag; i < len(pcm); i++ {
			sum += float64(pcm[i]) * float64(pcm[i-lag])
		}
		autoc[lag] = sum
	}
	if autoc[0] == 0 {
		return make([]float64, order)
	}

	a := make([]float64, order+1)
	err := autoc[0]
	for i := 1; i <= order; i++ {
		acc := autoc[i]
		for j := 1; j < i; j++ {
			acc -= a[j] * autoc[i-j]
		}
		k := acc / err
		a[i] = k
		for j := 1; j <= (i-1)/2+1 && j < i; j++ {
			tmp := a[j]
			a[j] -= k * a[i-j]
			if j != i-j {
				a[i-j] -= k * tmp
			}
		}
		err *= 1 - k*k
		if err <= 0 {
			break
		}
	}
	return a[1:]
}

func isqrt(v int64) int64 {
	if v <= 0 {
		return 0
	}
	x := v
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + v/x) / 2
	}
	return x
}
