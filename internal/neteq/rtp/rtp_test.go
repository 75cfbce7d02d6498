package rtp

import (
	"testing"

	"github.com/flowpbx/neteq/internal/neteq/neteqerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalParseRoundTrip(t *testing.T) {
	pkt := Packet{
		Version:        Version,
		Marker:         true,
		PayloadType:    0,
		SequenceNumber: 4242,
		Timestamp:      0xDEADBEEF,
		SSRC:           0x12345678,
		CSRC:           []uint32{1, 2, 3},
		Payload:        []byte{1, 2, 3, 4, 5},
	}

	buf := Marshal(pkt)
	got, code := Parse(buf)
	require.Equal(t, neteqerr.Code(0), code)

	assert.Equal(t, pkt.Marker, got.Marker)
	assert.Equal(t, pkt.PayloadType, got.PayloadType)
	assert.Equal(t, pkt.SequenceNumber, got.SequenceNumber)
	assert.Equal(t, pkt.Timestamp, got.Timestamp)
	assert.Equal(t, pkt.SSRC, got.SSRC)
	assert.Equal(t, pkt.CSRC, got.CSRC)
	assert.Equal(t, pkt.Payload, got.Payload)
}

func TestParseTooShort(t *testing.T) {
	_, code := Parse(make([]byte, 8))
	assert.Equal(t, neteqerr.RtpTooShort, code)
}

func TestParseBadVersion(t *testing.T) {
	buf := make([]byte, 12)
	buf[0] = 0x40 // version 1
	_, code := Parse(buf)
	assert.Equal(t, neteqerr.RtpCorrupt, code)
}

func TestParseCSRCOverrun(t *testing.T) {
	buf := make([]byte, 12)
	buf[0] = 0x80 | 0x0F // version 2, CSRC count 15 (needs 60 more bytes)
	_, code := Parse(buf)
	assert.Equal(t, neteqerr.RtpCorrupt, code)
}

func TestTimestampBeforeWraparound(t *testing.T) {
	assert.True(t, TimestampBefore(0xFFFFFFFF, 0))
	assert.False(t, TimestampBefore(0, 0xFFFFFFFF))
	assert.True(t, TimestampBefore(100, 200))
	assert.False(t, TimestampBefore(200, 100))
}

func TestSeqBeforeWraparound(t *testing.T) {
	assert.True(t, SeqBefore(0xFFFF, 0))
	assert.False(t, SeqBefore(0, 0xFFFF))
}
