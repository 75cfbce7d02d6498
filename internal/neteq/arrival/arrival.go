// Package arrival implements RFC 3550 §6.4.1 arrival jitter and loss
// statistics, plus the inter-arrival-time histogram that drives automode's
// optimal buffer level (spec.md §4.4).
//
// Grounded on the teacher's session statistics in internal/media/relay.go
// (per-call packet/jitter counters reported to internal/metrics), extended
// here with the RFC 3550 Q4 jitter accumulator and the IAT histogram
// spec.md §4.4 requires but the teacher doesn't implement — that part is
// grounded directly on RFC 3550 Appendix A.8's reference algorithm.
package arrival

// histBuckets is the number of IAT histogram buckets (spec.md §3: "32
// buckets, one per packet-time unit").
const histBuckets = 32

// forgetFactorShift implements the histogram's forgetting factor
// α ≈ 1 − 2⁻⁷ as an integer right-shift, matching the Q4/Q8 fixed-point
// style the rest of the core uses instead of floating point.
const forgetFactorShift = 7

// Stats is the RFC 3550 jitter/loss/IAT tracking state for one stream.
type Stats struct {
	firstPacket bool

	lastTransit int32
	jitterQ4    uint32 // Q4 fixed-point, RFC 3550 A.8

	baseSeq         uint32
	extendedMaxSeq  uint32 // cycle count in high 16 bits, last seqno in low 16
	receivedCount   uint32
	expectedPrior   uint32
	receivedPrior   uint32

	hist               [histBuckets]uint32 // Q8 fixed-point counts
	packetSpeechLenMS  int
	lastArrivalSamples int64
	haveLastArrival    bool

	peakAmplitude uint32
	peakPeriod    int
	sincePeak     int

	optimalBufferLevelQ8 uint32
}

// New creates arrival-stats tracking for a stream whose packet spacing is
// packetSpeechLenMS per packet, in sample-rate units despite the name
// (used to convert the sample-unit IAT into histogram-bucket units).
func New(packetSpeechLenMS int) *Stats {
	return &Stats{
		firstPacket:          true,
		packetSpeechLenMS:    packetSpeechLenMS,
		optimalBufferLevelQ8: 1 << 8,
	}
}

// Update folds in one arriving packet: rtpTimestamp is the packet's RTP
// timestamp (in sample-rate units), receiveTimestamp is the host clock at
// arrival expressed in the same sample-rate units, and seq is the RTP
// sequence number.
func (s *Stats) Update(rtpTimestamp uint32, receiveTimestamp uint32, seq uint16) {
	transit := int32(receiveTimestamp - rtpTimestamp)

	if s.firstPacket {
		s.firstPacket = false
		s.lastTransit = transit
		s.baseSeq = uint32(seq)
		s.extendedMaxSeq = uint32(seq)
		s.receivedCount = 1
		return
	}

	d := transit - s.lastTransit
	if d < 0 {
		d = -d
	}
	// RFC 3550 A.8: J += D - (J >> 4), computed here with an explicit +8
	// rounding term the reference implementation adds before the shift.
	s.jitterQ4 += uint32(d) - (s.jitterQ4+8)>>4
	s.lastTransit = transit

	s.updateSeq(seq)
	s.receivedCount++

	s.updateHistogram(receiveTimestamp)
}

// updateSeq maintains extendedMaxSeq with cycle-count bumps on wraparound,
// per spec.md §4.4's "if seqno < low-16(prev_max), bump cycle count".
func (s *Stats) updateSeq(seq uint16) {
	prevMax := uint16(s.extendedMaxSeq & 0xFFFF)
	cycles := s.extendedMaxSeq &^ 0xFFFF
	if seq < prevMax && prevMax-seq > 0x8000 {
		cycles += 0x10000
	}
	ext := cycles | uint32(seq)
	if int32(ext-s.extendedMaxSeq) > 0 || seq == prevMax {
		s.extendedMaxSeq = ext
	}
}

// CumulativeLost returns expected - received, per spec.md §4.4.
func (s *Stats) CumulativeLost() int32 {
	expected := int32(s.extendedMaxSeq-s.baseSeq) + 1
	return expected - int32(s.receivedCount)
}

// FractionLost returns the loss fraction (0..255, Q8) since the last call,
// then resets the expected/received-prior baseline, matching RFC 3550's
// per-report-interval semantics.
func (s *Stats) FractionLost() uint8 {
	expected := int32(s.extendedMaxSeq-s.baseSeq) + 1
	expectedInterval := uint32(expected) - s.expectedPrior
	receivedInterval := s.receivedCount - s.receivedPrior
	s.expectedPrior = uint32(expected)
	s.receivedPrior = s.receivedCount

	lostInterval := int32(expectedInterval) - int32(receivedInterval)
	if expectedInterval == 0 || lostInterval <= 0 {
		return 0
	}
	frac := (uint64(lostInterval) << 8) / uint64(expectedInterval)
	if frac > 255 {
		return 255
	}
	return uint8(frac)
}

// JitterSamples returns the reportable jitter, the Q4 accumulator
// right-shifted by 4 per RFC 3550.
func (s *Stats) JitterSamples() uint32 { return s.jitterQ4 >> 4 }

// ExtendedMaxSeq returns the cycle-count/seqno combined value.
func (s *Stats) ExtendedMaxSeq() uint32 { return s.extendedMaxSeq }

// updateHistogram folds one inter-arrival-time sample into the automode
// histogram, applying the forgetting factor to every bucket so the
// distribution tracks recent network behavior, then re-derives
// optimal_buffer_level as the histogram's 95th percentile. Per spec.md
// §4.4 the histogram tracks inter-*arrival* time (receiver clock), not
// inter-departure time (RTP timestamp spacing) — the latter is constant
// for a steady talker regardless of network jitter and would never make
// the distribution react to real delay variation.
func (s *Stats) updateHistogram(receiveTimestamp uint32) {
	arrivalSamples := int64(receiveTimestamp)
	if !s.haveLastArrival {
		s.lastArrivalSamples = arrivalSamples
		s.haveLastArrival = true
		return
	}

	iatSamples := arrivalSamples - s.lastArrivalSamples
	s.lastArrivalSamples = arrivalSamples
	if iatSamples < 0 {
		return
	}

	packetLenSamples := int64(s.packetSpeechLenMS)
	if packetLenSamples <= 0 {
		packetLenSamples = 1
	}
	iat := int(iatSamples / packetLenSamples)
	if iat < 0 {
		iat = 0
	}
	if iat >= histBuckets {
		iat = histBuckets - 1
	}

	for i := range s.hist {
		s.hist[i] -= s.hist[i] >> forgetFactorShift
	}
	s.hist[iat] += 1 << 8

	s.trackPeak(iat)
	s.recomputeOptimalLevel()
}

// trackPeak watches for rare large-IAT bursts (network stalls) that the
// percentile-based level alone would smooth away too slowly.
func (s *Stats) trackPeak(iat int) {
	amplitude := s.hist[iat]
	if iat > histBuckets/2 && amplitude > s.peakAmplitude {
		s.peakAmplitude = amplitude
		s.peakPeriod = iat
		s.sincePeak = 0
	} else {
		s.sincePeak++
		if s.sincePeak > 4*histBuckets {
			s.peakAmplitude -= s.peakAmplitude >> 2
		}
	}
}

// recomputeOptimalLevel derives optimal_buffer_level (Q8 packets) as the
// histogram's 95th percentile, raised to cover a significant peak if one
// is currently tracked, matching spec.md §4.4.
func (s *Stats) recomputeOptimalLevel() {
	var total uint32
	for _, v := range s.hist {
		total += v
	}
	if total == 0 {
		return
	}
	threshold := uint32(uint64(total) * 95 / 100)
	var cum uint32
	level := 1
	for i, v := range s.hist {
		cum += v
		if cum >= threshold {
			level = i + 1
			break
		}
	}
	levelQ8 := uint32(level) << 8
	if s.peakAmplitude > total/8 {
		peakQ8 := uint32(s.peakPeriod+1) << 8
		if peakQ8 > levelQ8 {
			levelQ8 = peakQ8
		}
	}
	if levelQ8 == 0 {
		levelQ8 = 1 << 8
	}
	s.optimalBufferLevelQ8 = levelQ8
}

// OptimalBufferLevelQ8 returns the current target buffer level in Q8
// fixed-point packets, clamped by the caller to [1, max_slots].
func (s *Stats) OptimalBufferLevelQ8() uint32 { return s.optimalBufferLevelQ8 }
