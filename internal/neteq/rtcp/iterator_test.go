package rtcp

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func putCommon(buf []byte, ic uint8, pt uint8, lengthWords uint16) {
	buf[0] = 0x80 | ic
	buf[1] = pt
	binary.BigEndian.PutUint16(buf[2:4], lengthWords)
}

// buildRRSDESBye constructs a compound: RR(0 blocks) + SDES(1 chunk, CNAME
// "ab") + BYE(1 SSRC), matching the sequence the event-by-event test below
// asserts against.
func buildRRSDESBye() []byte {
	buf := make([]byte, 32)

	// RR: 8 bytes total, length field = (8/4)-1 = 1.
	putCommon(buf[0:], 0, PTRR, 1)
	binary.BigEndian.PutUint32(buf[4:], 0x01010101)

	// SDES: 16 bytes total, length field = (16/4)-1 = 3.
	putCommon(buf[8:], 1, PTSDES, 3)
	binary.BigEndian.PutUint32(buf[12:], 0x22222222)
	buf[16] = 1    // CNAME tag
	buf[17] = 2    // length
	buf[18] = 'a'
	buf[19] = 'b'
	buf[20] = 0 // terminator; buf[21:24] are padding, already zero

	// BYE: 8 bytes total, length field = (8/4)-1 = 1.
	putCommon(buf[24:], 1, PTBye, 1)
	binary.BigEndian.PutUint32(buf[28:], 0xAABBCCDD)

	return buf
}

func TestIteratorRRSDESBye(t *testing.T) {
	it, err := NewIterator(buildRRSDESBye(), false)
	require.NoError(t, err)

	ev, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, EventRR, ev.Kind)
	assert.Equal(t, uint32(0x01010101), ev.RR.SenderSSRC)

	ev, ok = it.Next()
	require.True(t, ok)
	assert.Equal(t, EventSDESChunk, ev.Kind)
	assert.Equal(t, uint32(0x22222222), ev.SDES.SenderSSRC)
	assert.Equal(t, "ab", ev.SDES.CName)
	assert.True(t, ev.SDES.FoundCName)

	ev, ok = it.Next()
	require.True(t, ok)
	assert.Equal(t, EventBye, ev.Kind)
	assert.Equal(t, uint32(0xAABBCCDD), ev.Bye.SenderSSRC)

	_, ok = it.Next()
	assert.False(t, ok)
	_, ok = it.Next()
	assert.False(t, ok, "exhaustion must be permanent")
}

func TestNewIteratorRejectsNonSRRRWithoutReducedSize(t *testing.T) {
	buf := make([]byte, 8)
	putCommon(buf, 1, PTBye, 1)
	_, err := NewIterator(buf, false)
	assert.ErrorIs(t, err, ErrNotValid)
}

func TestNewIteratorAllowsReducedSize(t *testing.T) {
	buf := make([]byte, 8)
	putCommon(buf, 1, PTBye, 1)
	binary.BigEndian.PutUint32(buf[4:], 0x42)
	it, err := NewIterator(buf, true)
	require.NoError(t, err)
	ev, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, EventBye, ev.Kind)
}

func TestSRWithReportBlocks(t *testing.T) {
	// SR with 1 report block: 28 (SR fixed) + 24 (block) = 52 bytes.
	buf := make([]byte, 52)
	putCommon(buf, 1, PTSR, uint16(52/4-1))
	binary.BigEndian.PutUint32(buf[4:], 0x10)  // sender SSRC
	binary.BigEndian.PutUint32(buf[8:], 0x20)  // NTP MSW
	binary.BigEndian.PutUint32(buf[12:], 0x30) // NTP LSW
	binary.BigEndian.PutUint32(buf[16:], 0x40) // RTP ts
	binary.BigEndian.PutUint32(buf[20:], 5)    // packet count
	binary.BigEndian.PutUint32(buf[24:], 6000) // octet count

	block := buf[28:52]
	binary.BigEndian.PutUint32(block[0:], 0x99)  // report SSRC
	block[4] = 10                                // fraction lost
	block[5], block[6], block[7] = 0, 0, 3       // cumulative lost = 3
	binary.BigEndian.PutUint32(block[8:], 1000)  // extended highest seq
	binary.BigEndian.PutUint32(block[12:], 42)   // jitter
	binary.BigEndian.PutUint32(block[16:], 7)    // last SR
	binary.BigEndian.PutUint32(block[20:], 8)    // delay since last SR

	it, err := NewIterator(buf, false)
	require.NoError(t, err)

	ev, ok := it.Next()
	require.True(t, ok)
	require.Equal(t, EventSR, ev.Kind)
	assert.Equal(t, uint32(0x10), ev.SR.SenderSSRC)
	assert.Equal(t, uint32(5), ev.SR.SenderPacketCount)

	ev, ok = it.Next()
	require.True(t, ok)
	require.Equal(t, EventReportBlockItem, ev.Kind)
	assert.Equal(t, uint32(0x99), ev.ReportBlock.SSRC)
	assert.Equal(t, uint8(10), ev.ReportBlock.FractionLost)
	assert.Equal(t, int32(3), ev.ReportBlock.CumulativeNumOfPacketsLost)
	assert.Equal(t, uint32(42), ev.ReportBlock.Jitter)

	_, ok = it.Next()
	assert.False(t, ok)
}

func TestXRVoIPMetricFullBlockLength(t *testing.T) {
	// XR common(4) + originator SSRC(4) + block header(4) + metric body(32) = 44.
	buf := make([]byte, 44)
	putCommon(buf, 0, PTXR, uint16(44/4-1))
	binary.BigEndian.PutUint32(buf[4:], 0x55) // originator SSRC, not surfaced
	buf[8] = 7                                // block type: VoIP metrics
	buf[9] = 0                                // type-specific
	binary.BigEndian.PutUint16(buf[10:], 8)   // block length in words, full 16-bit
	binary.BigEndian.PutUint32(buf[12:], 0x77)
	buf[16] = 5 // loss rate

	it, err := NewIterator(buf, false)
	require.NoError(t, err)
	ev, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, EventXRVoIPMetric, ev.Kind)
	assert.Equal(t, uint32(0x77), ev.XRVoIP.SSRC)
	assert.Equal(t, uint8(5), ev.XRVoIP.LossRate)
}

// TestXRVoIPMetricTruncatedBlockDoesNotPanic crafts an XR packet whose
// outer length bounds the VoIP metrics item to 28 bytes while the item
// claims to be the full 32-byte layout. Next must report no event rather
// than reading past the buffer.
func TestXRVoIPMetricTruncatedBlockDoesNotPanic(t *testing.T) {
	buf := make([]byte, 40)
	putCommon(buf, 0, PTXR, uint16(40/4-1))
	binary.BigEndian.PutUint32(buf[4:], 0x55) // originator SSRC
	buf[8] = 7                                // block type: VoIP metrics
	buf[9] = 0
	binary.BigEndian.PutUint16(buf[10:], 8) // claims full 32-byte body

	it, err := NewIterator(buf, false)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		_, ok := it.Next()
		assert.False(t, ok)
	})
}

func TestUnknownPacketTypeSkippedWithoutHaltingScan(t *testing.T) {
	// RR(8 bytes, 0 blocks) + an unknown PT block(8 bytes) + BYE(8 bytes).
	buf := make([]byte, 24)
	putCommon(buf[0:], 0, PTRR, 1)
	binary.BigEndian.PutUint32(buf[4:], 1)

	putCommon(buf[8:], 0, 250, 1) // unknown/unsupported packet type
	binary.BigEndian.PutUint32(buf[12:], 2)

	putCommon(buf[16:], 1, PTBye, 1)
	binary.BigEndian.PutUint32(buf[20:], 3)

	it, err := NewIterator(buf, false)
	require.NoError(t, err)

	ev, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, EventRR, ev.Kind)

	ev, ok = it.Next()
	require.True(t, ok)
	assert.Equal(t, EventBye, ev.Kind, "unknown PT must be skipped without consuming the following valid sub-packet")
}
